package registration

import (
	"fmt"
	"image"
	"log/slog"
	"math"

	"imgreg/internal/transform"
	"imgreg/pkg/geometry"

	"gocv.io/x/gocv"
)

// minFourierMellinSize is the smallest side the log-polar radius (a quarter
// of the spectrum width) still has a positive logarithm for.
const minFourierMellinSize = 8

// FourierMellin recovers rotation, uniform scale and translation from
// phase correlation of log-polar magnitude spectra.
type FourierMellin struct {
	Logger *slog.Logger
}

// NewFourierMellin returns a Fourier-Mellin strategy.
func NewFourierMellin() *FourierMellin { return &FourierMellin{} }

// Name implements Strategy.
func (f *FourierMellin) Name() string { return "fourier-mellin" }

// Supports implements Strategy.
func (f *FourierMellin) Supports(m MotionModel) bool { return m == Rigid }

// FourierMellinResult carries the estimated transform and the intermediate
// quantities. The responses are the phase correlation peak values and are
// informative only.
type FourierMellinResult struct {
	Transform           transform.Transform
	Angle               float64 // degrees
	Scale               float64
	RotationResponse    float64
	TranslationResponse float64
}

// Normalize converts img to single-channel CV_64F in [0,1]: 8-bit input is
// divided by 255, 16-bit by 65535, CV_32F is widened. Already normalised
// input comes back unchanged.
func Normalize(img gocv.Mat) (gocv.Mat, error) {
	if img.Empty() {
		return gocv.Mat{}, ErrEmptyImage
	}

	src := img
	if img.Channels() > 1 && depthOf(img) == gocv.MatTypeCV64F {
		// cvtColor has no double precision path
		src = gocv.NewMat()
		defer src.Close()
		img.ConvertTo(&src, gocv.MatTypeCV32F)
	}
	gray, err := toGray(src)
	if err != nil {
		return gocv.Mat{}, err
	}
	defer gray.Close()

	out := gocv.NewMat()
	switch depthOf(gray) {
	case gocv.MatTypeCV8U:
		gray.ConvertToWithParams(&out, gocv.MatTypeCV64F, 1.0/255, 0)
	case gocv.MatTypeCV16U:
		gray.ConvertToWithParams(&out, gocv.MatTypeCV64F, 1.0/65535, 0)
	case gocv.MatTypeCV32F, gocv.MatTypeCV64F:
		gray.ConvertTo(&out, gocv.MatTypeCV64F)
	default:
		out.Close()
		return gocv.Mat{}, fmt.Errorf("%w: cannot normalise depth %d", ErrNotNormalized, depthOf(gray))
	}
	return out, nil
}

// checkNormalized rejects anything but single-channel floating point data
// within [0,1].
func checkNormalized(m gocv.Mat) error {
	if m.Channels() != 1 {
		return fmt.Errorf("%w: %d channels", ErrNotNormalized, m.Channels())
	}
	d := depthOf(m)
	if d != gocv.MatTypeCV32F && d != gocv.MatTypeCV64F {
		return fmt.Errorf("%w: integer depth %d", ErrNotNormalized, d)
	}
	lo, hi, _, _ := gocv.MinMaxLoc(m)
	const tol = 1e-6
	if lo < -tol || hi > 1+tol {
		return fmt.Errorf("%w: values span [%g, %g]", ErrNotNormalized, lo, hi)
	}
	return nil
}

func depthOf(m gocv.Mat) gocv.MatType {
	return m.Type() & 7
}

// Estimate returns the affine transform mapping sensed coordinates onto
// reference coordinates. Both images must have the same size and be
// normalised with Normalize.
func (f *FourierMellin) Estimate(ref, sensed gocv.Mat) (transform.Transform, error) {
	res, err := f.EstimateDetailed(ref, sensed)
	if err != nil {
		return transform.Transform{}, err
	}
	return res.Transform, nil
}

// EstimateDetailed is Estimate that also reports angle, scale and the two
// phase correlation responses.
func (f *FourierMellin) EstimateDetailed(ref, sensed gocv.Mat) (FourierMellinResult, error) {
	if ref.Empty() || sensed.Empty() {
		return FourierMellinResult{}, ErrEmptyImage
	}
	if !sameSize(ref, sensed) {
		return FourierMellinResult{}, fmt.Errorf("%w: reference %v, sensed %v", ErrSizeMismatch, matSize(ref), matSize(sensed))
	}
	if ref.Rows() < minFourierMellinSize || ref.Cols() < minFourierMellinSize {
		return FourierMellinResult{}, fmt.Errorf("%w: fourier-mellin needs at least %dx%d, got %v",
			ErrSizeMismatch, minFourierMellinSize, minFourierMellinSize, matSize(ref))
	}
	if err := checkNormalized(ref); err != nil {
		return FourierMellinResult{}, fmt.Errorf("reference: %w", err)
	}
	if err := checkNormalized(sensed); err != nil {
		return FourierMellinResult{}, fmt.Errorf("sensed: %w", err)
	}

	a := gocv.NewMat()
	defer a.Close()
	ref.ConvertTo(&a, gocv.MatTypeCV64F)
	b := gocv.NewMat()
	defer b.Close()
	sensed.ConvertTo(&b, gocv.MatTypeCV64F)

	ftA, err := highPassSpectrum(a)
	if err != nil {
		return FourierMellinResult{}, err
	}
	defer ftA.Close()
	ftB, err := highPassSpectrum(b)
	if err != nil {
		return FourierMellinResult{}, err
	}
	defer ftB.Close()

	center := image.Pt(ftA.Cols()/2, ftA.Rows()/2)
	radius := float64(ftA.Cols()) / 4
	logScale := float64(ftA.Cols()) / math.Log(radius)

	lpA := gocv.NewMat()
	defer lpA.Close()
	lpB := gocv.NewMat()
	defer lpB.Close()
	gocv.LogPolar(ftA, &lpA, center, logScale, gocv.InterpolationLinear+gocv.WarpFillOutliers)
	gocv.LogPolar(ftB, &lpB, center, logScale, gocv.InterpolationLinear+gocv.WarpFillOutliers)

	window := gocv.NewMat()
	defer window.Close()
	shift, rotResponse := gocv.PhaseCorrelate(lpB, lpA, window)

	angle := wrapAngle(-float64(shift.Y) * 360 / float64(lpA.Rows()))
	scale := 1 / math.Exp(float64(shift.X)/logScale)

	rotScale := transform.RotationScale(geometry.NewPoint2D(float64(center.X), float64(center.Y)), angle, scale)
	rsMat := rotScale.ToMat()
	defer rsMat.Close()
	rotated, err := warpTo(b, rsMat, matSize(b), false)
	if err != nil {
		return FourierMellinResult{}, err
	}
	defer rotated.Close()

	shift, translResponse := gocv.PhaseCorrelate(a, rotated, window)
	transl := geometry.FromPoint2f(shift)

	// rotScale brings sensed into the reference orientation; the residual
	// shift was measured on that rotated image, so it is undone last.
	t, err := transform.ComposeAffines(transform.Translation(-transl.X, -transl.Y), rotScale)
	if err != nil {
		return FourierMellinResult{}, err
	}

	logger(f.Logger).Debug("fourier-mellin estimate",
		"angle", angle,
		"scale", scale,
		"tx", transl.X,
		"ty", transl.Y,
		"rotation_response", rotResponse,
		"translation_response", translResponse)

	return FourierMellinResult{
		Transform:           t,
		Angle:               angle,
		Scale:               scale,
		RotationResponse:    rotResponse,
		TranslationResponse: translResponse,
	}, nil
}

// highPassSpectrum apodizes src and returns its high-pass filtered
// log-magnitude spectrum.
func highPassSpectrum(src gocv.Mat) (gocv.Mat, error) {
	apodized, err := Apodize(src)
	if err != nil {
		return gocv.Mat{}, err
	}
	defer apodized.Close()

	ft, err := MagnitudeSpectrum(apodized)
	if err != nil {
		return gocv.Mat{}, err
	}
	hp, err := HighPass(ft.Rows(), ft.Cols())
	if err != nil {
		ft.Close()
		return gocv.Mat{}, err
	}
	defer hp.Close()
	gocv.Multiply(ft, hp, &ft)
	return ft, nil
}

// wrapAngle resolves the 180 degree ambiguity of log-polar rotation
// estimates and returns a value in (-180, 180].
func wrapAngle(angle float64) float64 {
	if math.Abs(angle) > 90 {
		angle += 180
	}
	for angle > 180 {
		angle -= 360
	}
	for angle <= -180 {
		angle += 360
	}
	return angle
}
