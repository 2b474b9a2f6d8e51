package registration

import (
	"strings"
	"testing"

	"imgreg/internal/transform"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestValidate(t *testing.T) {
	require.NoError(t, DefaultRequest().Validate())

	req := DefaultRequest()
	req.Gamma = 1
	require.ErrorIs(t, req.Validate(), ErrInvalidConfig)

	req = DefaultRequest()
	req.Strategy = StrategyFourierMellin
	req.Model = Homography
	require.ErrorIs(t, req.Validate(), ErrUnsupportedModel)

	req = DefaultRequest()
	req.Strategy = StrategyORB
	req.Model = Translation
	require.ErrorIs(t, req.Validate(), ErrUnsupportedModel)

	req = DefaultRequest()
	req.Strategy = StrategyKind(99)
	require.ErrorIs(t, req.Validate(), ErrInvalidConfig)
}

func TestFeatureConfigFollowsStrategy(t *testing.T) {
	req := DefaultRequest()
	req.Model = Rigid
	req.Features.Detector = ORB

	req.Strategy = StrategyAKAZE
	assert.Equal(t, AKAZE, req.featureConfig().Detector)
	assert.Equal(t, Rigid, req.featureConfig().Model)

	req.Strategy = StrategyFeatures
	assert.Equal(t, ORB, req.featureConfig().Detector)
}

func TestRegisterImagesStrategies(t *testing.T) {
	ref := texturedImage(t, 256, 13)
	defer ref.Close()
	sensed := shifted(ref, shiftX, shiftY)
	defer sensed.Close()
	refBytes := ref.ToBytes()
	sensedBytes := sensed.ToBytes()

	cases := []struct {
		name       string
		strategy   StrategyKind
		model      MotionModel
		preprocess Preprocess
	}{
		{"ecc smoothed", StrategyECC, Translation, PreprocessSmooth},
		{"orb", StrategyORB, Affine, PreprocessNone},
		{"akaze", StrategyAKAZE, Rigid, PreprocessNone},
		{"fourier-mellin", StrategyFourierMellin, Rigid, PreprocessNone},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := DefaultRequest()
			req.Strategy = tc.strategy
			req.Model = tc.model
			req.Preprocess = tc.preprocess
			req.Gamma = 0.8
			req.Features.GoodMatchFraction = 0.5

			res, err := RegisterImages(ref, sensed, req)
			require.NoError(t, err)
			defer res.Close()

			assert.Equal(t, ref.Rows(), res.Registered.Rows())
			assert.Equal(t, ref.Cols(), res.Registered.Cols())
			assert.Positive(t, res.Elapsed)
			assert.Less(t, meanAbsDiff(t, ref, res.Registered, 40), 8.0)
		})
	}

	// inputs are never modified
	assert.Equal(t, refBytes, ref.ToBytes())
	assert.Equal(t, sensedBytes, sensed.ToBytes())
}

func TestRegisterImagesReportsMatches(t *testing.T) {
	ref := texturedImage(t, 256, 14)
	defer ref.Close()
	sensed := shifted(ref, shiftX, shiftY)
	defer sensed.Close()

	req := DefaultRequest()
	req.Strategy = StrategyFeatures
	req.Model = Homography
	res, err := RegisterImages(ref, sensed, req)
	require.NoError(t, err)
	defer res.Close()

	require.NotNil(t, res.Matches)
	assert.GreaterOrEqual(t, res.Matches.Len(), Homography.MinPoints())
	assert.Equal(t, transform.KindHomography, res.Transform.Kind())
}

func TestRegisterImagesBlankFails(t *testing.T) {
	a := blankImage(64)
	defer a.Close()
	b := blankImage(64)
	defer b.Close()

	req := DefaultRequest()
	req.Strategy = StrategyORB
	res, err := RegisterImages(a, b, req)
	require.ErrorIs(t, err, ErrRegistrationFailed)
	require.ErrorIs(t, err, ErrInsufficientMatches)
	assert.Nil(t, res)

	req = DefaultRequest()
	req.Model = Translation
	res, err = RegisterImages(a, b, req)
	require.ErrorIs(t, err, ErrRegistrationFailed)
	assert.Nil(t, res)
	assert.Equal(t, 1, strings.Count(err.Error(), ErrRegistrationFailed.Error()))
}

func TestRegisterImagesSizeMismatch(t *testing.T) {
	a := blankImage(64)
	defer a.Close()
	b := blankImage(32)
	defer b.Close()

	req := DefaultRequest()
	req.Strategy = StrategyFourierMellin
	req.Model = Rigid
	_, err := RegisterImages(a, b, req)
	require.ErrorIs(t, err, ErrSizeMismatch)
}

func TestCheckTransform(t *testing.T) {
	require.ErrorIs(t, checkTransform(transform.Transform{}), ErrInsufficientMatches)
	require.NoError(t, checkTransform(transform.Identity(transform.KindAffine)))

	flat := transform.NewAffine([2][3]float64{{1, 2, 0}, {2, 4, 0}})
	require.Error(t, checkTransform(flat))
}
