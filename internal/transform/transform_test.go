package transform

import (
	"encoding/json"
	"errors"
	"math"
	"testing"

	"imgreg/pkg/geometry"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"
)

const tol = 1e-12

func sampleAffine() Transform {
	return NewAffine([2][3]float64{{0.9, -0.2, 12.5}, {0.3, 1.1, -7}})
}

func sampleHomography() Transform {
	return NewHomography([3][3]float64{{1.02, 0.01, 4}, {-0.03, 0.98, -2}, {1e-4, -2e-4, 1}})
}

func TestComposeWithIdentity(t *testing.T) {
	a := sampleAffine()
	id := Identity(KindAffine)

	left, err := ComposeAffines(id, a)
	require.NoError(t, err)
	right, err := ComposeAffines(a, id)
	require.NoError(t, err)
	assert.True(t, left.Equal(a, tol), "I*A = %v", left)
	assert.True(t, right.Equal(a, tol), "A*I = %v", right)

	h := sampleHomography()
	hid := Identity(KindHomography)
	left, err = ComposeHomographies(hid, h)
	require.NoError(t, err)
	right, err = ComposeHomographies(h, hid)
	require.NoError(t, err)
	assert.True(t, left.Equal(h, tol))
	assert.True(t, right.Equal(h, tol))
}

func TestPromoteExtractRoundTrip(t *testing.T) {
	a := sampleAffine()
	h, err := Promote(a)
	require.NoError(t, err)
	assert.Equal(t, KindHomography, h.Kind())
	assert.Equal(t, []float64{0, 0, 1}, h.Rows()[2])

	back, err := ExtractAffine(h)
	require.NoError(t, err)
	assert.True(t, back.Equal(a, 0))
}

// The second argument is applied first.
func TestComposeOrder(t *testing.T) {
	rot := CreateHomography(90, 0, 0)
	shift := CreateHomography(0, 10, 0)

	h, err := ComposeHomographies(rot, shift)
	require.NoError(t, err)

	// shift (1,0) -> (11,0), then rotate 90° -> (0,11)
	p := h.Apply(geometry.NewPoint2D(1, 0))
	assert.InDelta(t, 0, p.X, 1e-9)
	assert.InDelta(t, 11, p.Y, 1e-9)

	a, err := ComposeAffines(Translation(5, 0), NewAffine([2][3]float64{{2, 0, 0}, {0, 2, 0}}))
	require.NoError(t, err)
	tx, ty, err := ExtractTranslation(a)
	require.NoError(t, err)
	assert.Equal(t, 5.0, tx)
	assert.Equal(t, 0.0, ty)

	a, err = ComposeAffines(NewAffine([2][3]float64{{2, 0, 0}, {0, 2, 0}}), Translation(5, 0))
	require.NoError(t, err)
	tx, _, err = ExtractTranslation(a)
	require.NoError(t, err)
	assert.Equal(t, 10.0, tx)
}

func TestComposeAffinesIsAssociative(t *testing.T) {
	a := sampleAffine()
	b := RotationScale(geometry.NewPoint2D(50, 40), 12, 1.3)
	c := Translation(-3, 8)

	ab, err := ComposeAffines(a, b)
	require.NoError(t, err)
	abc1, err := ComposeAffines(ab, c)
	require.NoError(t, err)

	bc, err := ComposeAffines(b, c)
	require.NoError(t, err)
	abc2, err := ComposeAffines(a, bc)
	require.NoError(t, err)

	assert.True(t, abc1.Equal(abc2, 1e-9))
}

func TestShapeErrors(t *testing.T) {
	_, err := ExtractAffine(sampleAffine())
	assert.True(t, errors.Is(err, ErrShape))

	_, _, err = ExtractTranslation(sampleHomography())
	assert.True(t, errors.Is(err, ErrShape))

	_, err = ComposeHomographies(sampleAffine(), sampleHomography())
	assert.True(t, errors.Is(err, ErrShape))

	_, err = ComposeAffines(sampleAffine(), Transform{})
	assert.True(t, errors.Is(err, ErrShape))
}

func TestCreateHomography(t *testing.T) {
	h := CreateHomography(30, 4, -6)
	c, s := math.Cos(math.Pi/6), math.Sin(math.Pi/6)
	want := NewHomography([3][3]float64{{c, -s, 4}, {s, c, -6}, {0, 0, 1}})
	assert.True(t, h.Equal(want, tol))
}

func TestRotationScaleKeepsCenter(t *testing.T) {
	center := geometry.NewPoint2D(64, 32)
	rs := RotationScale(center, 37, 0.8)
	p := rs.Apply(center)
	assert.InDelta(t, center.X, p.X, 1e-9)
	assert.InDelta(t, center.Y, p.Y, 1e-9)
}

func TestInverse(t *testing.T) {
	a := sampleAffine()
	inv, err := a.Inverse()
	require.NoError(t, err)
	assert.True(t, inv.InverseMap)

	inv.InverseMap = false
	id, err := ComposeAffines(a, inv)
	require.NoError(t, err)
	assert.True(t, id.Equal(Identity(KindAffine), 1e-9))

	_, err = NewAffine([2][3]float64{{1, 2, 0}, {2, 4, 0}}).Inverse()
	assert.True(t, errors.Is(err, ErrSingular))
}

func TestExtractTranslationAllDepths(t *testing.T) {
	const tx, ty = 10, 20

	cases := []struct {
		name string
		mt   gocv.MatType
		set  func(m *gocv.Mat, r, c int, v float64)
	}{
		{"8U", gocv.MatTypeCV8U, func(m *gocv.Mat, r, c int, v float64) { m.SetUCharAt(r, c, uint8(v)) }},
		{"8S", gocv.MatTypeCV8S, func(m *gocv.Mat, r, c int, v float64) { m.SetSCharAt(r, c, int8(v)) }},
		{"16U", gocv.MatTypeCV16U, func(m *gocv.Mat, r, c int, v float64) { m.SetShortAt(r, c, int16(v)) }},
		{"16S", gocv.MatTypeCV16S, func(m *gocv.Mat, r, c int, v float64) { m.SetShortAt(r, c, int16(v)) }},
		{"32S", gocv.MatTypeCV32S, func(m *gocv.Mat, r, c int, v float64) { m.SetIntAt(r, c, int32(v)) }},
		{"32F", gocv.MatTypeCV32F, func(m *gocv.Mat, r, c int, v float64) { m.SetFloatAt(r, c, float32(v)) }},
		{"64F", gocv.MatTypeCV64F, func(m *gocv.Mat, r, c int, v float64) { m.SetDoubleAt(r, c, v) }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			m := gocv.NewMatWithSize(2, 3, tc.mt)
			defer m.Close()
			rows := [2][3]float64{{1, 0, tx}, {0, 1, ty}}
			for r := 0; r < 2; r++ {
				for c := 0; c < 3; c++ {
					tc.set(&m, r, c, rows[r][c])
				}
			}
			x, y := ExtractTranslationMat(m)
			assert.Equal(t, float64(tx), x)
			assert.Equal(t, float64(ty), y)

			tr, err := FromMat(m)
			require.NoError(t, err)
			x, y, err = ExtractTranslation(tr)
			require.NoError(t, err)
			assert.Equal(t, float64(tx), x)
			assert.Equal(t, float64(ty), y)
		})
	}
}

func TestExtractTranslationMatRejectsShape(t *testing.T) {
	m := gocv.NewMatWithSize(3, 3, gocv.MatTypeCV64F)
	defer m.Close()
	x, y := ExtractTranslationMat(m)
	assert.True(t, math.IsNaN(x))
	assert.True(t, math.IsNaN(y))
}

func TestMatRoundTrip(t *testing.T) {
	h := sampleHomography()
	m := h.ToMat()
	defer m.Close()
	back, err := FromMat(m)
	require.NoError(t, err)
	assert.True(t, back.Equal(h, 0))
}

func TestJSON(t *testing.T) {
	a := sampleAffine()
	a.InverseMap = true
	data, err := json.Marshal(a)
	require.NoError(t, err)

	var back Transform
	require.NoError(t, json.Unmarshal(data, &back))
	assert.True(t, back.Equal(a, 0))
	assert.True(t, back.InverseMap)

	data, err = json.Marshal(Transform{})
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &back))
	assert.True(t, back.IsEmpty())
}
