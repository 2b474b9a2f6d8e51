package transform

import (
	"fmt"
	"math"

	"gocv.io/x/gocv"
	"gonum.org/v1/gonum/mat"
)

// FromMat copies a 2x3 or 3x3 single-channel gocv matrix of any numeric
// depth into a Transform. An empty Mat yields the empty Transform.
func FromMat(m gocv.Mat) (Transform, error) {
	if m.Empty() {
		return Transform{}, nil
	}
	rows, cols := m.Rows(), m.Cols()
	if m.Channels() != 1 {
		return Transform{}, fmt.Errorf("%w: %d channels", ErrShape, m.Channels())
	}
	d := mat.NewDense(rows, cols, nil)
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			v, ok := matElement(m, i, j)
			if !ok {
				return Transform{}, fmt.Errorf("%w: unsupported matrix type %v", ErrShape, m.Type())
			}
			d.Set(i, j, v)
		}
	}
	return FromDense(d)
}

// ToMat returns the matrix as a CV_64F gocv.Mat. The caller owns the Mat.
func (t Transform) ToMat() gocv.Mat {
	r, c := t.Dims()
	if r == 0 {
		return gocv.NewMat()
	}
	m := gocv.NewMatWithSize(r, c, gocv.MatTypeCV64F)
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			m.SetDoubleAt(i, j, t.m.At(i, j))
		}
	}
	return m
}

// ExtractTranslationMat reads the translation column of a raw 2x3 matrix of
// any common storage depth. It returns (NaN, NaN) for other shapes and
// depths instead of failing.
func ExtractTranslationMat(m gocv.Mat) (tx, ty float64) {
	if m.Empty() || m.Rows() != 2 || m.Cols() != 3 || m.Channels() != 1 {
		return math.NaN(), math.NaN()
	}
	x, okx := matElement(m, 0, 2)
	y, oky := matElement(m, 1, 2)
	if !okx || !oky {
		return math.NaN(), math.NaN()
	}
	return x, y
}

// depth strips the channel bits from a gocv matrix type.
func depth(mt gocv.MatType) gocv.MatType {
	return mt & 7
}

func matElement(m gocv.Mat, i, j int) (float64, bool) {
	switch depth(m.Type()) {
	case gocv.MatTypeCV8U:
		return float64(m.GetUCharAt(i, j)), true
	case gocv.MatTypeCV8S:
		return float64(m.GetSCharAt(i, j)), true
	case gocv.MatTypeCV16U:
		return float64(uint16(m.GetShortAt(i, j))), true
	case gocv.MatTypeCV16S:
		return float64(m.GetShortAt(i, j)), true
	case gocv.MatTypeCV32S:
		return float64(m.GetIntAt(i, j)), true
	case gocv.MatTypeCV32F:
		return float64(m.GetFloatAt(i, j)), true
	case gocv.MatTypeCV64F:
		return m.GetDoubleAt(i, j), true
	default:
		return 0, false
	}
}
