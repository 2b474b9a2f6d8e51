package registration

import (
	"fmt"
	"log/slog"
	"math"
	"sort"

	"imgreg/internal/transform"
	"imgreg/pkg/geometry"

	"gocv.io/x/gocv"
)

// PointFitter fits a motion model to point correspondences. Estimator is the
// default implementation.
type PointFitter interface {
	Estimate(src, dst []geometry.Point2D, model MotionModel) (Fit, error)
}

// MatchSet is the outcome of keypoint matching between a reference and a
// sensed image. Matches are sorted by ascending descriptor distance and
// Reference.BestPoints[i] corresponds to Sensed.BestPoints[i].
type MatchSet struct {
	Reference     KeypointSet
	Sensed        KeypointSet
	Matches       []gocv.DMatch
	Visualization gocv.Mat // empty unless FeatureConfig.Visualize
}

// Len returns the number of kept matches.
func (m *MatchSet) Len() int {
	if m == nil {
		return 0
	}
	return len(m.Matches)
}

// Close releases every Mat held by the set.
func (m *MatchSet) Close() error {
	if m == nil {
		return nil
	}
	m.Reference.Close()
	m.Sensed.Close()
	return m.Visualization.Close()
}

// FindMatches detects keypoints in both images, matches descriptors with a
// brute-force matcher and keeps the best GoodMatchFraction of the matches.
// The caller owns the returned set.
func FindMatches(im1, im2 gocv.Mat, cfg FeatureConfig) (*MatchSet, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	gray1, err := toGray8(im1)
	if err != nil {
		return nil, fmt.Errorf("reference: %w", err)
	}
	defer gray1.Close()
	gray2, err := toGray8(im2)
	if err != nil {
		return nil, fmt.Errorf("sensed: %w", err)
	}
	defer gray2.Close()

	detector, err := NewDetector(cfg)
	if err != nil {
		return nil, err
	}
	defer detector.Close()

	ms := &MatchSet{
		Reference: detector.DetectAndCompute(gray1),
		Sensed:    detector.DetectAndCompute(gray2),
	}

	if !ms.Reference.Descriptors.Empty() && !ms.Sensed.Descriptors.Empty() {
		matcher := gocv.NewBFMatcherWithParams(detector.Norm(), false)
		matches := matcher.Match(ms.Reference.Descriptors, ms.Sensed.Descriptors)
		matcher.Close()
		ms.Matches = selectMatches(matches, cfg.GoodMatchFraction, cfg.MinMatchDistance)
	}

	ms.Reference.BestPoints = make([]geometry.Point2D, len(ms.Matches))
	ms.Sensed.BestPoints = make([]geometry.Point2D, len(ms.Matches))
	for i, m := range ms.Matches {
		kp1 := ms.Reference.Keypoints[m.QueryIdx]
		kp2 := ms.Sensed.Keypoints[m.TrainIdx]
		ms.Reference.BestPoints[i] = geometry.NewPoint2D(kp1.X, kp1.Y)
		ms.Sensed.BestPoints[i] = geometry.NewPoint2D(kp2.X, kp2.Y)
	}

	if cfg.Visualize {
		ms.Visualization = DrawMatches(gray1, gray2, ms)
	}
	return ms, nil
}

// selectMatches stable-sorts by distance, keeps the top fraction and then
// drops anything above maxDistance when it is set.
func selectMatches(matches []gocv.DMatch, fraction, maxDistance float64) []gocv.DMatch {
	sorted := append([]gocv.DMatch(nil), matches...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Distance < sorted[j].Distance
	})

	keep := int(math.Floor(float64(len(sorted)) * fraction))
	sorted = sorted[:keep]

	if maxDistance > 0 {
		n := 0
		for _, m := range sorted {
			if m.Distance <= maxDistance {
				sorted[n] = m
				n++
			}
		}
		sorted = sorted[:n]
	}
	return sorted
}

// FindTransform matches keypoints and fits cfg.Model mapping sensed (im2)
// coordinates onto reference (im1) coordinates.
func FindTransform(im1, im2 gocv.Mat, cfg FeatureConfig) (transform.Transform, error) {
	f := &Features{Config: cfg}
	t, ms, err := f.EstimateMatches(im1, im2, cfg.Model)
	ms.Close()
	return t, err
}

// Register estimates the transform with FindTransform and warps im2 into
// the frame of im1.
func Register(im1, im2 gocv.Mat, cfg FeatureConfig) (gocv.Mat, transform.Transform, error) {
	t, err := FindTransform(im1, im2, cfg)
	if err != nil {
		return gocv.NewMat(), t, err
	}
	out, err := WarpStrict(im1, im2, t)
	if err != nil {
		return gocv.NewMat(), t, err
	}
	return out, t, nil
}

// Features is the keypoint matching strategy.
type Features struct {
	Config FeatureConfig
	Fitter PointFitter // nil uses an Estimator built from Config
	Logger *slog.Logger
}

// NewFeatures returns a feature strategy for cfg.
func NewFeatures(cfg FeatureConfig) *Features {
	return &Features{Config: cfg}
}

// Name implements Strategy.
func (f *Features) Name() string { return f.Config.Detector.String() }

// Supports implements Strategy.
func (f *Features) Supports(m MotionModel) bool {
	switch m {
	case Rigid, Affine, Homography:
		return true
	}
	return false
}

// Estimate implements Strategy; model overrides Config.Model.
func (f *Features) Estimate(ref, sensed gocv.Mat, model MotionModel) (transform.Transform, error) {
	t, ms, err := f.EstimateMatches(ref, sensed, model)
	ms.Close()
	return t, err
}

// EstimateMatches is Estimate that also hands back the match set, which the
// caller must Close. The set may be non-nil when err is not.
func (f *Features) EstimateMatches(ref, sensed gocv.Mat, model MotionModel) (transform.Transform, *MatchSet, error) {
	if !f.Supports(model) {
		return transform.Transform{}, nil, fmt.Errorf("%w: feature matching cannot fit %v", ErrUnsupportedModel, model)
	}
	cfg := f.Config
	cfg.Model = model

	ms, err := FindMatches(ref, sensed, cfg)
	if err != nil {
		return transform.Transform{}, nil, err
	}
	log := logger(f.Logger)
	log.Debug("keypoints matched",
		"detector", cfg.Detector,
		"reference_keypoints", len(ms.Reference.Keypoints),
		"sensed_keypoints", len(ms.Sensed.Keypoints),
		"kept", ms.Len())

	if ms.Len() < model.MinPoints() {
		return transform.Transform{}, ms, fmt.Errorf("%w: %d good matches, %v needs %d",
			ErrInsufficientMatches, ms.Len(), model, model.MinPoints())
	}

	fitter := f.Fitter
	if fitter == nil {
		fitter = NewEstimator(cfg)
	}
	fit, err := fitter.Estimate(ms.Sensed.BestPoints, ms.Reference.BestPoints, model)
	if err != nil {
		return transform.Transform{}, ms, err
	}
	log.Debug("model fitted",
		"model", model,
		"robust", cfg.Robust,
		"inliers", len(fit.Inliers),
		"mean_residual", fit.MeanResidual,
		"std_residual", fit.StdResidual)
	return fit.Transform, ms, nil
}
