package registration

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"imgreg/internal/filter"
	"imgreg/internal/transform"

	"gocv.io/x/gocv"
)

// Strategy is implemented by every registration method.
type Strategy interface {
	Name() string
	Supports(m MotionModel) bool
}

var (
	_ Strategy = (*ECC)(nil)
	_ Strategy = (*Features)(nil)
	_ Strategy = (*FourierMellin)(nil)
)

// Request describes one registration run.
type Request struct {
	Strategy   StrategyKind
	Model      MotionModel
	Features   FeatureConfig // used by the feature strategies; Model and Detector are overridden as needed
	ECC        ECCConfig
	Preprocess Preprocess
	Gamma      float64 // smoothing strength for Preprocess, in [0, 1)
	Logger     *slog.Logger
}

// DefaultRequest returns an ECC affine request with default settings.
func DefaultRequest() Request {
	return Request{
		Strategy: StrategyECC,
		Model:    Affine,
		Features: DefaultFeatureConfig(),
		ECC:      DefaultECCConfig(),
		Gamma:    0.5,
	}
}

// Validate checks that the strategy can fit the requested model and that
// every option is in range.
func (r Request) Validate() error {
	if r.Gamma < 0 || r.Gamma >= 1 {
		return fmt.Errorf("%w: gamma must be in [0,1), got %g", ErrInvalidConfig, r.Gamma)
	}
	switch r.Preprocess {
	case PreprocessNone, PreprocessSmooth, PreprocessEdges:
	default:
		return fmt.Errorf("%w: preprocessing %v", ErrInvalidConfig, r.Preprocess)
	}

	switch r.Strategy {
	case StrategyECC:
		if !NewECC().Supports(r.Model) {
			return fmt.Errorf("%w: ecc cannot fit %v", ErrUnsupportedModel, r.Model)
		}
		return r.ECC.Validate()
	case StrategyFeatures, StrategyORB, StrategyAKAZE:
		return r.featureConfig().Validate()
	case StrategyFourierMellin:
		if !NewFourierMellin().Supports(r.Model) {
			return fmt.Errorf("%w: fourier-mellin cannot fit %v", ErrUnsupportedModel, r.Model)
		}
		return nil
	}
	return fmt.Errorf("%w: strategy %v", ErrInvalidConfig, r.Strategy)
}

// featureConfig applies the request's model and the detector implied by
// the strategy kind.
func (r Request) featureConfig() FeatureConfig {
	cfg := r.Features
	cfg.Model = r.Model
	switch r.Strategy {
	case StrategyORB:
		cfg.Detector = ORB
	case StrategyAKAZE:
		cfg.Detector = AKAZE
	}
	return cfg
}

// Result is the outcome of RegisterImages. The caller owns its Mats and
// must Close it.
type Result struct {
	Strategy   StrategyKind
	Model      MotionModel
	Transform  transform.Transform
	Registered gocv.Mat  // sensed image resampled into the reference frame
	Matches    *MatchSet // feature strategies only
	Score      float64   // ECC correlation or Fourier-Mellin translation response
	Angle      float64   // Fourier-Mellin only, degrees
	Scale      float64   // Fourier-Mellin only
	Elapsed    time.Duration
}

// Close releases the registered image and the match set.
func (r *Result) Close() error {
	if r == nil {
		return nil
	}
	r.Matches.Close()
	return r.Registered.Close()
}

// RegisterImages estimates the transform mapping sensed onto ref with the
// requested strategy and warps sensed into the reference frame. The inputs
// are never modified; preprocessing works on copies and the original
// sensed image is the one warped.
func RegisterImages(ref, sensed gocv.Mat, req Request) (*Result, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if ref.Empty() || sensed.Empty() {
		return nil, ErrEmptyImage
	}
	if req.Strategy == StrategyFourierMellin && !sameSize(ref, sensed) {
		return nil, fmt.Errorf("%w: reference %v, sensed %v", ErrSizeMismatch, matSize(ref), matSize(sensed))
	}

	log := logger(req.Logger).With("strategy", req.Strategy, "model", req.Model)
	start := time.Now()

	refIn, err := preprocess(ref, req)
	if err != nil {
		return nil, fmt.Errorf("preprocess reference: %w", err)
	}
	defer refIn.Close()
	sensedIn, err := preprocess(sensed, req)
	if err != nil {
		return nil, fmt.Errorf("preprocess sensed: %w", err)
	}
	defer sensedIn.Close()

	res := &Result{Strategy: req.Strategy, Model: req.Model}

	switch req.Strategy {
	case StrategyECC:
		ecc := &ECC{Config: req.ECC, Logger: req.Logger}
		res.Transform, res.Score, err = ecc.EstimateWithScore(refIn, sensedIn, req.Model)

	case StrategyFeatures, StrategyORB, StrategyAKAZE:
		f := &Features{Config: req.featureConfig(), Logger: req.Logger}
		res.Transform, res.Matches, err = f.EstimateMatches(refIn, sensedIn, req.Model)

	case StrategyFourierMellin:
		err = registerFourierMellin(refIn, sensedIn, req, res)
	}

	if err == nil {
		err = checkTransform(res.Transform)
	}
	if err != nil {
		res.Close()
		log.Debug("registration failed", "error", err)
		if errors.Is(err, ErrRegistrationFailed) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", ErrRegistrationFailed, err)
	}

	res.Registered, err = WarpStrict(ref, sensed, res.Transform)
	if err != nil {
		res.Close()
		return nil, fmt.Errorf("%w: %w", ErrRegistrationFailed, err)
	}
	res.Elapsed = time.Since(start)

	log.Debug("registration done", "transform", res.Transform.String(), "score", res.Score, "elapsed", res.Elapsed)
	return res, nil
}

func registerFourierMellin(ref, sensed gocv.Mat, req Request, res *Result) error {
	a, err := Normalize(ref)
	if err != nil {
		return err
	}
	defer a.Close()
	b, err := Normalize(sensed)
	if err != nil {
		return err
	}
	defer b.Close()

	fm := &FourierMellin{Logger: req.Logger}
	out, err := fm.EstimateDetailed(a, b)
	if err != nil {
		return err
	}
	res.Transform = out.Transform
	res.Score = out.TranslationResponse
	res.Angle = out.Angle
	res.Scale = out.Scale
	return nil
}

// preprocess returns a filtered copy of img according to req.
func preprocess(img gocv.Mat, req Request) (gocv.Mat, error) {
	switch req.Preprocess {
	case PreprocessSmooth:
		return filter.Smooth(img, req.Gamma, filter.Deriche)
	case PreprocessEdges:
		return filter.Gradient(img, req.Gamma)
	}
	return img.Clone(), nil
}

var errDegenerate = errors.New("degenerate transform")

// checkTransform rejects empty transforms, non-finite entries and
// transforms that collapse the plane.
func checkTransform(t transform.Transform) error {
	if t.IsEmpty() {
		return fmt.Errorf("%w: no transform", ErrInsufficientMatches)
	}
	rows, cols := t.Dims()
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			v := t.At(i, j)
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return fmt.Errorf("%w: non-finite entry at (%d,%d)", errDegenerate, i, j)
			}
		}
	}
	det := t.At(0, 0)*t.At(1, 1) - t.At(0, 1)*t.At(1, 0)
	if math.Abs(det) < 1e-9 {
		return fmt.Errorf("%w: singular linear part", errDegenerate)
	}
	return nil
}
