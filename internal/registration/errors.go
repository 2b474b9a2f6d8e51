package registration

import "errors"

var (
	// ErrUnsupportedModel is returned when a strategy is asked for a motion
	// model it cannot fit.
	ErrUnsupportedModel = errors.New("motion model not supported by strategy")

	// ErrInvalidConfig is returned by Validate for out-of-range options.
	ErrInvalidConfig = errors.New("invalid registration configuration")

	// ErrEmptyImage is returned when an input image has no pixels.
	ErrEmptyImage = errors.New("empty input image")

	// ErrSizeMismatch is returned when two images must share dimensions but don't.
	ErrSizeMismatch = errors.New("image sizes differ")

	// ErrNotNormalized is returned when Fourier-Mellin input is not
	// single-channel floating point in [0, 1].
	ErrNotNormalized = errors.New("image is not normalized grayscale float")

	// ErrInsufficientMatches is returned when there are too few
	// correspondences to fit the requested model.
	ErrInsufficientMatches = errors.New("insufficient correspondences")

	// ErrRegistrationFailed wraps any failure that left no usable transform.
	ErrRegistrationFailed = errors.New("registration failed: insufficient features/correlation")
)
