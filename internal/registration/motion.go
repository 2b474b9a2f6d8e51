package registration

import (
	"fmt"
	"strings"
)

// MotionModel is the family of transforms a strategy is allowed to fit.
type MotionModel int

const (
	// Translation has 2 degrees of freedom.
	Translation MotionModel = iota
	// Euclidean is rotation plus translation (3 dof). Only ECC fits it.
	Euclidean
	// Rigid is rotation, uniform scale and translation (4 dof), also known
	// as a similarity or partial affine.
	Rigid
	// Affine has 6 degrees of freedom.
	Affine
	// Homography is a full perspective mapping (8 dof).
	Homography
)

var motionNames = map[MotionModel]string{
	Translation: "translation",
	Euclidean:   "euclidean",
	Rigid:       "rigid",
	Affine:      "affine",
	Homography:  "homography",
}

func (m MotionModel) String() string {
	if s, ok := motionNames[m]; ok {
		return s
	}
	return fmt.Sprintf("MotionModel(%d)", int(m))
}

// DOF returns the number of free parameters.
func (m MotionModel) DOF() int {
	switch m {
	case Translation:
		return 2
	case Euclidean:
		return 3
	case Rigid:
		return 4
	case Affine:
		return 6
	case Homography:
		return 8
	}
	return 0
}

// MinPoints is the smallest correspondence count a robust fit accepts. The
// affine family, Rigid included, needs 3 even though a similarity is fixed
// by 2 points.
func (m MotionModel) MinPoints() int {
	switch m {
	case Homography:
		return 4
	case Affine, Rigid:
		return 3
	default:
		return 2
	}
}

// ParseMotionModel maps a user-facing name to a MotionModel.
func ParseMotionModel(s string) (MotionModel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "translation":
		return Translation, nil
	case "euclidean":
		return Euclidean, nil
	case "rigid", "similarity", "affine_partial", "affinepartial", "partial":
		return Rigid, nil
	case "affine":
		return Affine, nil
	case "homography", "perspective", "":
		return Homography, nil
	}
	return 0, fmt.Errorf("%w: unknown motion model %q", ErrInvalidConfig, s)
}

// DetectorKind selects the keypoint detector/descriptor.
type DetectorKind int

const (
	ORB DetectorKind = iota
	AKAZE
)

func (d DetectorKind) String() string {
	switch d {
	case ORB:
		return "orb"
	case AKAZE:
		return "akaze"
	}
	return fmt.Sprintf("DetectorKind(%d)", int(d))
}

// ParseDetectorKind maps a user-facing name to a DetectorKind.
func ParseDetectorKind(s string) (DetectorKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "orb", "":
		return ORB, nil
	case "akaze":
		return AKAZE, nil
	}
	return 0, fmt.Errorf("%w: unknown detector %q", ErrInvalidConfig, s)
}

// RobustMethod selects the outlier-tolerant estimator.
type RobustMethod int

const (
	RANSAC RobustMethod = iota
	LMedS
)

func (r RobustMethod) String() string {
	switch r {
	case RANSAC:
		return "ransac"
	case LMedS:
		return "lmeds"
	}
	return fmt.Sprintf("RobustMethod(%d)", int(r))
}

// ParseRobustMethod maps a user-facing name to a RobustMethod.
func ParseRobustMethod(s string) (RobustMethod, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "ransac", "":
		return RANSAC, nil
	case "lmeds", "lmed", "least-median":
		return LMedS, nil
	}
	return 0, fmt.Errorf("%w: unknown robust method %q", ErrInvalidConfig, s)
}

// StrategyKind selects the registration strategy run by RegisterImages.
type StrategyKind int

const (
	StrategyECC StrategyKind = iota
	// StrategyFeatures uses the detector named in the FeatureConfig.
	StrategyFeatures
	StrategyORB
	StrategyAKAZE
	StrategyFourierMellin
)

func (s StrategyKind) String() string {
	switch s {
	case StrategyECC:
		return "ecc"
	case StrategyFeatures:
		return "features"
	case StrategyORB:
		return "orb"
	case StrategyAKAZE:
		return "akaze"
	case StrategyFourierMellin:
		return "fourier-mellin"
	}
	return fmt.Sprintf("StrategyKind(%d)", int(s))
}

// ParseStrategyKind maps a user-facing name to a StrategyKind.
func ParseStrategyKind(s string) (StrategyKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "ecc", "correlation":
		return StrategyECC, nil
	case "features", "feature":
		return StrategyFeatures, nil
	case "orb":
		return StrategyORB, nil
	case "akaze":
		return StrategyAKAZE, nil
	case "fourier-mellin", "fmt", "fourier":
		return StrategyFourierMellin, nil
	}
	return 0, fmt.Errorf("%w: unknown strategy %q", ErrInvalidConfig, s)
}

// Preprocess selects the optional filtering applied before estimation.
type Preprocess int

const (
	PreprocessNone Preprocess = iota
	// PreprocessSmooth applies the recursive Deriche smoothing.
	PreprocessSmooth
	// PreprocessEdges replaces the inputs with their Deriche gradient map.
	PreprocessEdges
)

func (p Preprocess) String() string {
	switch p {
	case PreprocessNone:
		return "none"
	case PreprocessSmooth:
		return "smooth"
	case PreprocessEdges:
		return "edges"
	}
	return fmt.Sprintf("Preprocess(%d)", int(p))
}

// ParsePreprocess maps a user-facing name to a Preprocess.
func ParsePreprocess(s string) (Preprocess, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "none", "":
		return PreprocessNone, nil
	case "smooth", "blur":
		return PreprocessSmooth, nil
	case "edges", "gradient", "deriche":
		return PreprocessEdges, nil
	}
	return 0, fmt.Errorf("%w: unknown preprocessing %q", ErrInvalidConfig, s)
}
