package registration

import (
	"fmt"
	"log/slog"

	"imgreg/internal/transform"

	"gocv.io/x/gocv"
)

// ECC estimates a warp by iteratively maximising the enhanced correlation
// coefficient between the reference and the warped sensed image.
type ECC struct {
	Config ECCConfig
	Logger *slog.Logger
}

// NewECC returns an ECC strategy with the default termination criteria.
func NewECC() *ECC {
	return &ECC{Config: DefaultECCConfig()}
}

// Name implements Strategy.
func (e *ECC) Name() string { return "ecc" }

// Supports implements Strategy. Rigid is served by ECC's Euclidean motion
// since OpenCV's ECC has no similarity mode.
func (e *ECC) Supports(m MotionModel) bool {
	switch m {
	case Translation, Euclidean, Rigid, Affine, Homography:
		return true
	}
	return false
}

func eccMotion(m MotionModel) int {
	switch m {
	case Translation:
		return gocv.MotionTranslation
	case Euclidean, Rigid:
		return gocv.MotionEuclidean
	case Affine:
		return gocv.MotionAffine
	default:
		return gocv.MotionHomography
	}
}

// Estimate returns the warp mapping reference coordinates to sensed
// coordinates; the result has InverseMap set. Hitting the iteration cap is
// not an error: the last iterate is returned.
func (e *ECC) Estimate(ref, sensed gocv.Mat, model MotionModel) (transform.Transform, error) {
	t, _, err := e.EstimateWithScore(ref, sensed, model)
	return t, err
}

// EstimateWithScore is Estimate that also returns the correlation
// coefficient OpenCV reached.
//
// OpenCV aborts ECC with an exception, which cgo cannot recover from, when
// an input has no variance. Flat images are therefore rejected up front with
// an empty Transform and ErrRegistrationFailed. OpenCV also aborts when the
// two images turn out to be uncorrelated during the iterations; callers
// facing arbitrary input pairs should prefer the feature strategies.
func (e *ECC) EstimateWithScore(ref, sensed gocv.Mat, model MotionModel) (transform.Transform, float64, error) {
	if !e.Supports(model) {
		return transform.Transform{}, 0, fmt.Errorf("%w: ecc cannot fit %v", ErrUnsupportedModel, model)
	}
	if err := e.Config.Validate(); err != nil {
		return transform.Transform{}, 0, err
	}

	refGray, err := toGray32F(ref)
	if err != nil {
		return transform.Transform{}, 0, fmt.Errorf("reference: %w", err)
	}
	defer refGray.Close()
	sensedGray, err := toGray32F(sensed)
	if err != nil {
		return transform.Transform{}, 0, fmt.Errorf("sensed: %w", err)
	}
	defer sensedGray.Close()

	if err := checkTexture(refGray); err != nil {
		return transform.Transform{}, 0, fmt.Errorf("reference: %w", err)
	}
	if err := checkTexture(sensedGray); err != nil {
		return transform.Transform{}, 0, fmt.Errorf("sensed: %w", err)
	}

	var warp gocv.Mat
	if model == Homography {
		warp = gocv.Eye(3, 3, gocv.MatTypeCV32F)
	} else {
		warp = gocv.Eye(2, 3, gocv.MatTypeCV32F)
	}
	defer warp.Close()

	criteria := gocv.NewTermCriteria(gocv.Count+gocv.EPS, e.Config.Iterations, e.Config.Epsilon)
	mask := gocv.NewMat()
	defer mask.Close()

	rho := gocv.FindTransformECC(refGray, sensedGray, &warp, eccMotion(model), criteria, mask, e.Config.GaussFilterSize)
	logger(e.Logger).Debug("ecc finished", "model", model, "correlation", rho)

	t, err := transform.FromMat(warp)
	if err != nil {
		return transform.Transform{}, rho, fmt.Errorf("read ecc warp: %w", err)
	}
	t.InverseMap = true
	return t, rho, nil
}

// minECCStdDev is the smallest gray level deviation ECC accepts.
const minECCStdDev = 1e-6

// checkTexture rejects images ECC cannot correlate: a zero standard deviation
// makes OpenCV's correlation NaN.
func checkTexture(gray gocv.Mat) error {
	mean := gocv.NewMat()
	defer mean.Close()
	stdDev := gocv.NewMat()
	defer stdDev.Close()
	gocv.MeanStdDev(gray, &mean, &stdDev)
	if sd := stdDev.GetDoubleAt(0, 0); !(sd >= minECCStdDev) {
		return fmt.Errorf("%w: ecc needs texture, gray level deviation is %g", ErrRegistrationFailed, sd)
	}
	return nil
}

func logger(l *slog.Logger) *slog.Logger {
	if l == nil {
		return slog.Default()
	}
	return l
}
