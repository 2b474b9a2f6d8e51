package registration

import (
	"fmt"

	"imgreg/pkg/geometry"

	"gocv.io/x/gocv"
)

// KeypointSet holds the keypoints and descriptors found in one image.
// BestPoints is filled by FindMatches with the coordinates of the kept
// matches, in match order.
type KeypointSet struct {
	Keypoints   []gocv.KeyPoint
	Descriptors gocv.Mat
	BestPoints  []geometry.Point2D
}

// Close releases the descriptor matrix.
func (k *KeypointSet) Close() error {
	return k.Descriptors.Close()
}

// Detector finds keypoints and computes binary descriptors on a grayscale
// image.
type Detector interface {
	DetectAndCompute(gray gocv.Mat) KeypointSet
	Norm() gocv.NormType
	Close() error
}

// NewDetector returns the detector selected by cfg.Detector.
func NewDetector(cfg FeatureConfig) (Detector, error) {
	switch cfg.Detector {
	case ORB:
		return newORBDetector(cfg.MaxFeatures), nil
	case AKAZE:
		return newAKAZEDetector(), nil
	}
	return nil, fmt.Errorf("%w: detector %v", ErrInvalidConfig, cfg.Detector)
}

type orbDetector struct {
	orb gocv.ORB
}

func newORBDetector(maxFeatures int) *orbDetector {
	// OpenCV defaults apart from the feature cap
	orb := gocv.NewORBWithParams(maxFeatures, 1.2, 8, 31, 0, 2, gocv.ORBScoreTypeHarris, 31, 20)
	return &orbDetector{orb: orb}
}

func (d *orbDetector) DetectAndCompute(gray gocv.Mat) KeypointSet {
	mask := gocv.NewMat()
	defer mask.Close()
	kps, desc := d.orb.DetectAndCompute(gray, mask)
	return KeypointSet{Keypoints: kps, Descriptors: desc}
}

func (d *orbDetector) Norm() gocv.NormType { return gocv.NormHamming }

func (d *orbDetector) Close() error { return d.orb.Close() }

// akazeDetector has no feature cap: AKAZE keeps every response above its
// detector threshold.
type akazeDetector struct {
	akaze gocv.AKAZE
}

func newAKAZEDetector() *akazeDetector {
	return &akazeDetector{akaze: gocv.NewAKAZE()}
}

func (d *akazeDetector) DetectAndCompute(gray gocv.Mat) KeypointSet {
	mask := gocv.NewMat()
	defer mask.Close()
	kps, desc := d.akaze.DetectAndCompute(gray, mask)
	return KeypointSet{Keypoints: kps, Descriptors: desc}
}

// Norm is Hamming: the default AKAZE descriptor is binary MLDB.
func (d *akazeDetector) Norm() gocv.NormType { return gocv.NormHamming }

func (d *akazeDetector) Close() error { return d.akaze.Close() }
