package registration

import "fmt"

// FeatureConfig configures keypoint detection, matching and robust fitting.
type FeatureConfig struct {
	Detector          DetectorKind // ORB or AKAZE
	Model             MotionModel  // Rigid, Affine or Homography
	Robust            RobustMethod // RANSAC or LMedS
	MaxFeatures       int          // Keypoint cap (ORB only)
	GoodMatchFraction float64      // Share of best-ranked matches kept, in (0, 1]
	ReprojThreshold   float64      // RANSAC inlier distance in pixels
	MaxIterations     int          // Robust estimator iterations
	Confidence        float64      // Robust estimator confidence, in (0, 1)
	MinMatchDistance  float64      // Drop kept matches with descriptor distance above this; 0 disables
	Visualize         bool         // Draw the kept matches into MatchSet.Visualization
}

// DefaultFeatureConfig returns ORB + RANSAC homography fitting on the best
// 15% of at most 500 keypoint matches.
func DefaultFeatureConfig() FeatureConfig {
	return FeatureConfig{
		Detector:          ORB,
		Model:             Homography,
		Robust:            RANSAC,
		MaxFeatures:       500,
		GoodMatchFraction: 0.15,
		ReprojThreshold:   3.0,
		MaxIterations:     2000,
		Confidence:        0.995,
	}
}

// Validate checks every option and returns an ErrInvalidConfig wrap for the
// first bad one.
func (c FeatureConfig) Validate() error {
	if c.Detector != ORB && c.Detector != AKAZE {
		return fmt.Errorf("%w: detector %v", ErrInvalidConfig, c.Detector)
	}
	switch c.Model {
	case Rigid, Affine, Homography:
	default:
		return fmt.Errorf("%w: feature matching cannot fit %v", ErrUnsupportedModel, c.Model)
	}
	if c.Robust != RANSAC && c.Robust != LMedS {
		return fmt.Errorf("%w: robust method %v", ErrInvalidConfig, c.Robust)
	}
	if c.MaxFeatures <= 0 {
		return fmt.Errorf("%w: max features must be > 0, got %d", ErrInvalidConfig, c.MaxFeatures)
	}
	if c.GoodMatchFraction <= 0 || c.GoodMatchFraction > 1 {
		return fmt.Errorf("%w: good match fraction must be in (0,1], got %g", ErrInvalidConfig, c.GoodMatchFraction)
	}
	if c.ReprojThreshold <= 0 {
		return fmt.Errorf("%w: reprojection threshold must be > 0, got %g", ErrInvalidConfig, c.ReprojThreshold)
	}
	if c.MaxIterations <= 0 {
		return fmt.Errorf("%w: max iterations must be > 0, got %d", ErrInvalidConfig, c.MaxIterations)
	}
	if c.Confidence <= 0 || c.Confidence >= 1 {
		return fmt.Errorf("%w: confidence must be in (0,1), got %g", ErrInvalidConfig, c.Confidence)
	}
	if c.MinMatchDistance < 0 {
		return fmt.Errorf("%w: min match distance must be >= 0, got %g", ErrInvalidConfig, c.MinMatchDistance)
	}
	return nil
}

// ECCConfig holds the termination criteria of the ECC maximisation.
type ECCConfig struct {
	Iterations      int     // Iteration cap
	Epsilon         float64 // Minimum correlation increment between iterations
	GaussFilterSize int     // Gaussian pre-blur kernel size used by OpenCV
}

// DefaultECCConfig returns 999 iterations and an increment threshold of 1e-10.
func DefaultECCConfig() ECCConfig {
	return ECCConfig{
		Iterations:      999,
		Epsilon:         1e-10,
		GaussFilterSize: 5,
	}
}

// Validate checks the termination criteria.
func (c ECCConfig) Validate() error {
	if c.Iterations <= 0 {
		return fmt.Errorf("%w: ECC iterations must be > 0, got %d", ErrInvalidConfig, c.Iterations)
	}
	if c.Epsilon < 0 {
		return fmt.Errorf("%w: ECC epsilon must be >= 0, got %g", ErrInvalidConfig, c.Epsilon)
	}
	if c.GaussFilterSize < 1 || c.GaussFilterSize%2 == 0 {
		return fmt.Errorf("%w: ECC gauss filter size must be odd and positive, got %d", ErrInvalidConfig, c.GaussFilterSize)
	}
	return nil
}
