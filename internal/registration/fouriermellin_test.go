package registration

import (
	"testing"

	"imgreg/internal/transform"
	"imgreg/pkg/geometry"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"
)

func TestNormalizeIsIdempotent(t *testing.T) {
	img := texturedImage(t, 64, 6)
	defer img.Close()

	once, err := Normalize(img)
	require.NoError(t, err)
	defer once.Close()
	assert.Equal(t, gocv.MatTypeCV64F, once.Type())
	require.NoError(t, checkNormalized(once))

	twice, err := Normalize(once)
	require.NoError(t, err)
	defer twice.Close()
	assert.Equal(t, once.ToBytes(), twice.ToBytes())
}

func TestNormalizeScales(t *testing.T) {
	img := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(255, 255, 255, 0), 4, 4, gocv.MatTypeCV8UC3)
	defer img.Close()
	out, err := Normalize(img)
	require.NoError(t, err)
	defer out.Close()
	assert.Equal(t, 1, out.Channels())
	assert.InDelta(t, 1.0, out.GetDoubleAt(2, 2), 1e-9)

	wide := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(65535, 0, 0, 0), 4, 4, gocv.MatTypeCV16UC1)
	defer wide.Close()
	out16, err := Normalize(wide)
	require.NoError(t, err)
	defer out16.Close()
	assert.InDelta(t, 1.0, out16.GetDoubleAt(0, 0), 1e-9)
}

func TestFourierMellinPreconditions(t *testing.T) {
	fm := NewFourierMellin()

	a := gocv.NewMatWithSize(64, 64, gocv.MatTypeCV64F)
	defer a.Close()
	b := gocv.NewMatWithSize(64, 32, gocv.MatTypeCV64F)
	defer b.Close()
	_, err := fm.Estimate(a, b)
	require.ErrorIs(t, err, ErrSizeMismatch)

	raw := texturedImage(t, 64, 7)
	defer raw.Close()
	_, err = fm.Estimate(raw, raw)
	require.ErrorIs(t, err, ErrNotNormalized)

	big := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(3, 0, 0, 0), 64, 64, gocv.MatTypeCV64F)
	defer big.Close()
	_, err = fm.Estimate(big, big)
	require.ErrorIs(t, err, ErrNotNormalized)

	assert.True(t, fm.Supports(Rigid))
	assert.False(t, fm.Supports(Affine))
}

func TestFourierMellinRecoversShift(t *testing.T) {
	ref8 := texturedImage(t, 256, 8)
	defer ref8.Close()
	sensed8 := shifted(ref8, shiftX, shiftY)
	defer sensed8.Close()

	ref, err := Normalize(ref8)
	require.NoError(t, err)
	defer ref.Close()
	sensed, err := Normalize(sensed8)
	require.NoError(t, err)
	defer sensed.Close()

	res, err := NewFourierMellin().EstimateDetailed(ref, sensed)
	require.NoError(t, err)
	assert.InDelta(t, 0, res.Angle, 1)
	assert.InDelta(t, 1, res.Scale, 0.02)

	// sensed maps back onto the reference, so the shift is undone
	tx, ty, err := transform.ExtractTranslation(res.Transform)
	require.NoError(t, err)
	assert.InDelta(t, -shiftX, tx, 1)
	assert.InDelta(t, -shiftY, ty, 1)
}

func TestFourierMellinRecoversRotationScaleShift(t *testing.T) {
	const (
		angle = 10.0
		scale = 1.1
		size  = 256
	)
	ref8 := texturedImage(t, size, 8)
	defer ref8.Close()

	center := geometry.NewPoint2D(size/2, size/2)
	distortion, err := transform.ComposeAffines(
		transform.Translation(shiftX, shiftY),
		transform.RotationScale(center, angle, scale))
	require.NoError(t, err)
	sensed8 := Warp(ref8, ref8, distortion)
	defer sensed8.Close()

	ref, err := Normalize(ref8)
	require.NoError(t, err)
	defer ref.Close()
	sensed, err := Normalize(sensed8)
	require.NoError(t, err)
	defer sensed.Close()

	res, err := NewFourierMellin().EstimateDetailed(ref, sensed)
	require.NoError(t, err)
	assert.InDelta(t, -angle, res.Angle, 1)
	assert.InDelta(t, 1/scale, res.Scale, 0.02)

	// the image centre only moves by the shift, so mapping it back is a
	// signed check on the translation that rotation errors barely touch
	moved := distortion.Apply(center)
	back := res.Transform.Apply(moved)
	assert.InDelta(t, center.X, back.X, 1.5)
	assert.InDelta(t, center.Y, back.Y, 1.5)

	reg, err := WarpStrict(ref8, sensed8, res.Transform)
	require.NoError(t, err)
	defer reg.Close()
	assert.Less(t, meanAbsDiff(t, ref8, reg, 48), 12.0)
}

func TestFourierMellinRejectsTinyImages(t *testing.T) {
	tiny := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0.5, 0, 0, 0), 6, 6, gocv.MatTypeCV64F)
	defer tiny.Close()
	res, err := NewFourierMellin().Estimate(tiny, tiny)
	require.ErrorIs(t, err, ErrSizeMismatch)
	assert.True(t, res.IsEmpty())
}

func TestHannWindow(t *testing.T) {
	assert.InDeltaSlice(t, []float64{0, 0.5, 1, 0.5, 0}, hann1D(5), 1e-12)
	assert.Equal(t, []float64{1}, hann1D(1))

	w, err := hannWindow(5, 3)
	require.NoError(t, err)
	defer w.Close()
	assert.InDelta(t, 1, w.GetDoubleAt(2, 1), 1e-12)
	assert.InDelta(t, 0.5, w.GetDoubleAt(1, 1), 1e-12)
	assert.InDelta(t, 0, w.GetDoubleAt(0, 1), 1e-12)
}

func TestWrapAngle(t *testing.T) {
	assert.InDelta(t, 45, wrapAngle(45), 1e-12)
	assert.InDelta(t, -80, wrapAngle(100), 1e-12)
	assert.InDelta(t, 80, wrapAngle(-100), 1e-12)
	assert.InDelta(t, 90, wrapAngle(90), 1e-12)
}

func TestHighPass(t *testing.T) {
	hp, err := HighPass(8, 8)
	require.NoError(t, err)
	defer hp.Close()
	assert.InDelta(t, 0, hp.GetDoubleAt(4, 4), 1e-12)
	assert.InDelta(t, 2, hp.GetDoubleAt(0, 0), 1e-12)
	assert.Greater(t, hp.GetDoubleAt(0, 4), hp.GetDoubleAt(3, 4))
}

func TestFFTShift(t *testing.T) {
	m := gocv.NewMatWithSize(5, 4, gocv.MatTypeCV64F)
	for i := 0; i < 5; i++ {
		for j := 0; j < 4; j++ {
			m.SetDoubleAt(i, j, float64(i*4+j))
		}
	}
	FFTShift(&m)
	defer m.Close()

	require.Equal(t, 4, m.Rows())
	require.Equal(t, 4, m.Cols())
	// top-left quadrant now holds the old bottom-right one
	assert.Equal(t, 10.0, m.GetDoubleAt(0, 0))
	assert.Equal(t, 0.0, m.GetDoubleAt(2, 2))
	assert.Equal(t, 8.0, m.GetDoubleAt(0, 2))
	assert.Equal(t, 2.0, m.GetDoubleAt(2, 0))
}

func TestMagnitudeSpectrumRange(t *testing.T) {
	img := texturedImage(t, 64, 9)
	defer img.Close()
	norm, err := Normalize(img)
	require.NoError(t, err)
	defer norm.Close()

	mag, err := MagnitudeSpectrum(norm)
	require.NoError(t, err)
	defer mag.Close()
	lo, hi, _, maxLoc := gocv.MinMaxLoc(mag)
	assert.InDelta(t, 0, lo, 1e-6)
	assert.InDelta(t, 1, hi, 1e-6)
	// DC dominates and sits in the centre
	assert.Equal(t, mag.Cols()/2, maxLoc.X)
	assert.Equal(t, mag.Rows()/2, maxLoc.Y)

	phase, err := PhaseSpectrum(norm)
	require.NoError(t, err)
	defer phase.Close()
	assert.Equal(t, mag.Rows(), phase.Rows())
}
