// Package transform holds the 2-D geometric transforms produced by the
// registration strategies: 2x3 affine matrices and 3x3 homographies.
package transform

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"

	"imgreg/pkg/geometry"

	"gonum.org/v1/gonum/mat"
)

// ErrShape is returned when a matrix does not have the dimensions an
// operation requires.
var ErrShape = errors.New("transform: shape mismatch")

// ErrSingular is returned when a transform has no inverse.
var ErrSingular = errors.New("transform: singular matrix")

// Kind tags the matrix form of a Transform.
type Kind int

const (
	KindEmpty      Kind = iota
	KindAffine          // 2x3 [A | t]
	KindHomography      // 3x3 perspective
)

func (k Kind) String() string {
	switch k {
	case KindAffine:
		return "affine"
	case KindHomography:
		return "homography"
	default:
		return "empty"
	}
}

// Transform is an immutable 2-D mapping. The zero value is the empty
// transform returned by strategies that could not estimate anything.
type Transform struct {
	kind Kind
	m    *mat.Dense

	// InverseMap marks a matrix that maps reference coordinates to sensed
	// coordinates (the ECC convention). Warping must then sample the sensed
	// image through the matrix directly instead of through its inverse.
	InverseMap bool
}

// Identity returns the identity transform of the given kind.
func Identity(kind Kind) Transform {
	switch kind {
	case KindAffine:
		return NewAffine([2][3]float64{{1, 0, 0}, {0, 1, 0}})
	case KindHomography:
		return NewHomography([3][3]float64{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}})
	default:
		return Transform{}
	}
}

// NewAffine builds an affine transform from a 2x3 matrix.
func NewAffine(m [2][3]float64) Transform {
	d := mat.NewDense(2, 3, []float64{
		m[0][0], m[0][1], m[0][2],
		m[1][0], m[1][1], m[1][2],
	})
	return Transform{kind: KindAffine, m: d}
}

// NewHomography builds a homography from a 3x3 matrix.
func NewHomography(m [3][3]float64) Transform {
	d := mat.NewDense(3, 3, []float64{
		m[0][0], m[0][1], m[0][2],
		m[1][0], m[1][1], m[1][2],
		m[2][0], m[2][1], m[2][2],
	})
	return Transform{kind: KindHomography, m: d}
}

// FromDense wraps a copy of a 2x3 or 3x3 matrix.
func FromDense(m mat.Matrix) (Transform, error) {
	r, c := m.Dims()
	var kind Kind
	switch {
	case r == 2 && c == 3:
		kind = KindAffine
	case r == 3 && c == 3:
		kind = KindHomography
	default:
		return Transform{}, fmt.Errorf("%w: got %dx%d, want 2x3 or 3x3", ErrShape, r, c)
	}
	return Transform{kind: kind, m: mat.DenseCopyOf(m)}, nil
}

// Translation returns the pure translation affine [[1 0 tx] [0 1 ty]].
func Translation(tx, ty float64) Transform {
	return NewAffine([2][3]float64{{1, 0, tx}, {0, 1, ty}})
}

// RotationScale returns the affine rotating by angleDeg (counter-clockwise
// on screen, as getRotationMatrix2D) and scaling uniformly about center.
func RotationScale(center geometry.Point2D, angleDeg, scale float64) Transform {
	rad := angleDeg * math.Pi / 180
	alpha := scale * math.Cos(rad)
	beta := scale * math.Sin(rad)
	return NewAffine([2][3]float64{
		{alpha, beta, (1-alpha)*center.X - beta*center.Y},
		{-beta, alpha, beta*center.X + (1-alpha)*center.Y},
	})
}

// CreateHomography builds a rotation-then-translation homography. The angle
// is in degrees, positive counter-clockwise in a y-up frame.
func CreateHomography(angleDeg, tx, ty float64) Transform {
	rad := angleDeg * math.Pi / 180
	cos, sin := math.Cos(rad), math.Sin(rad)
	return NewHomography([3][3]float64{
		{cos, -sin, tx},
		{sin, cos, ty},
		{0, 0, 1},
	})
}

// Kind returns the matrix form.
func (t Transform) Kind() Kind { return t.kind }

// IsEmpty reports whether t carries no matrix.
func (t Transform) IsEmpty() bool { return t.m == nil || t.kind == KindEmpty }

// Dims returns the matrix dimensions, (0, 0) for the empty transform.
func (t Transform) Dims() (rows, cols int) {
	if t.IsEmpty() {
		return 0, 0
	}
	return t.m.Dims()
}

// At returns a matrix element.
func (t Transform) At(i, j int) float64 { return t.m.At(i, j) }

// Matrix returns a copy of the underlying matrix, nil for the empty transform.
func (t Transform) Matrix() *mat.Dense {
	if t.IsEmpty() {
		return nil
	}
	return mat.DenseCopyOf(t.m)
}

// Rows returns the matrix as nested slices.
func (t Transform) Rows() [][]float64 {
	r, c := t.Dims()
	out := make([][]float64, r)
	for i := range out {
		out[i] = make([]float64, c)
		for j := range out[i] {
			out[i][j] = t.m.At(i, j)
		}
	}
	return out
}

// Apply maps a point. Homographies divide by the projective coordinate.
func (t Transform) Apply(p geometry.Point2D) geometry.Point2D {
	x := t.m.At(0, 0)*p.X + t.m.At(0, 1)*p.Y + t.m.At(0, 2)
	y := t.m.At(1, 0)*p.X + t.m.At(1, 1)*p.Y + t.m.At(1, 2)
	if t.kind == KindHomography {
		w := t.m.At(2, 0)*p.X + t.m.At(2, 1)*p.Y + t.m.At(2, 2)
		if w != 0 {
			x /= w
			y /= w
		}
	}
	return geometry.Point2D{X: x, Y: y}
}

// Inverse returns the inverse mapping. InverseMap is toggled so that
// warping with the result is equivalent to warping with t.
func (t Transform) Inverse() (Transform, error) {
	if t.IsEmpty() {
		return Transform{}, fmt.Errorf("%w: empty transform", ErrShape)
	}
	h, err := Promote(t)
	if err != nil {
		return Transform{}, err
	}
	var inv mat.Dense
	if err := inv.Inverse(h.m); err != nil {
		return Transform{}, fmt.Errorf("%w: %v", ErrSingular, err)
	}
	out := Transform{kind: KindHomography, m: &inv, InverseMap: !t.InverseMap}
	if t.kind == KindAffine {
		return ExtractAffine(out)
	}
	return out, nil
}

// Equal reports element-wise equality within tol.
func (t Transform) Equal(other Transform, tol float64) bool {
	if t.IsEmpty() || other.IsEmpty() {
		return t.IsEmpty() && other.IsEmpty()
	}
	if t.kind != other.kind {
		return false
	}
	return mat.EqualApprox(t.m, other.m, tol)
}

func (t Transform) String() string {
	if t.IsEmpty() {
		return "Transform[empty]"
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "Transform[%s", t.kind)
	for _, row := range t.Rows() {
		sb.WriteString(" [")
		for j, v := range row {
			if j > 0 {
				sb.WriteByte(' ')
			}
			fmt.Fprintf(&sb, "%.6g", v)
		}
		sb.WriteByte(']')
	}
	if t.InverseMap {
		sb.WriteString(" inverse-map")
	}
	sb.WriteByte(']')
	return sb.String()
}

type transformJSON struct {
	Kind       string      `json:"kind"`
	Matrix     [][]float64 `json:"matrix,omitempty"`
	InverseMap bool        `json:"inverse_map,omitempty"`
}

// MarshalJSON encodes the kind and matrix rows.
func (t Transform) MarshalJSON() ([]byte, error) {
	return json.Marshal(transformJSON{Kind: t.kind.String(), Matrix: t.Rows(), InverseMap: t.InverseMap})
}

// UnmarshalJSON decodes the MarshalJSON form.
func (t *Transform) UnmarshalJSON(data []byte) error {
	var v transformJSON
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	if v.Kind == KindEmpty.String() || len(v.Matrix) == 0 {
		*t = Transform{}
		return nil
	}
	cols := len(v.Matrix[0])
	flat := make([]float64, 0, len(v.Matrix)*cols)
	for _, row := range v.Matrix {
		if len(row) != cols {
			return fmt.Errorf("%w: ragged matrix rows", ErrShape)
		}
		flat = append(flat, row...)
	}
	out, err := FromDense(mat.NewDense(len(v.Matrix), cols, flat))
	if err != nil {
		return err
	}
	if out.kind.String() != v.Kind {
		return fmt.Errorf("%w: kind %q does not match %dx%d matrix", ErrShape, v.Kind, len(v.Matrix), cols)
	}
	out.InverseMap = v.InverseMap
	*t = out
	return nil
}
