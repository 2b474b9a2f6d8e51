package transform

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Promote embeds a 2x3 affine into the top two rows of a 3x3 identity.
// Homographies are returned unchanged.
func Promote(t Transform) (Transform, error) {
	switch t.kind {
	case KindHomography:
		return t, nil
	case KindAffine:
		h := mat.NewDense(3, 3, nil)
		h.Slice(0, 2, 0, 3).(*mat.Dense).Copy(t.m)
		h.Set(2, 2, 1)
		return Transform{kind: KindHomography, m: h, InverseMap: t.InverseMap}, nil
	default:
		return Transform{}, fmt.Errorf("%w: cannot promote empty transform", ErrShape)
	}
}

// ExtractAffine keeps the top two rows of a homography. Any perspective
// component in the last row is lost.
func ExtractAffine(h Transform) (Transform, error) {
	r, c := h.Dims()
	if h.kind != KindHomography || r != 3 || c != 3 {
		return Transform{}, fmt.Errorf("%w: extract affine needs 3x3, got %dx%d", ErrShape, r, c)
	}
	a := mat.DenseCopyOf(h.m.Slice(0, 2, 0, 3))
	return Transform{kind: KindAffine, m: a, InverseMap: h.InverseMap}, nil
}

// ExtractTranslation reads the last column of a 2x3 affine.
func ExtractTranslation(a Transform) (tx, ty float64, err error) {
	r, c := a.Dims()
	if a.kind != KindAffine || r != 2 || c != 3 {
		return 0, 0, fmt.Errorf("%w: extract translation needs 2x3, got %dx%d", ErrShape, r, c)
	}
	return a.m.At(0, 2), a.m.At(1, 2), nil
}

// ComposeHomographies returns first*second. The second transform is the
// inner one: the result maps p to first(second(p)).
func ComposeHomographies(first, second Transform) (Transform, error) {
	if err := requireShape(first, 3, 3); err != nil {
		return Transform{}, fmt.Errorf("first: %w", err)
	}
	if err := requireShape(second, 3, 3); err != nil {
		return Transform{}, fmt.Errorf("second: %w", err)
	}
	if first.InverseMap != second.InverseMap {
		return Transform{}, fmt.Errorf("%w: cannot compose forward and inverse-map transforms", ErrShape)
	}
	var out mat.Dense
	out.Mul(first.m, second.m)
	return Transform{kind: KindHomography, m: &out, InverseMap: first.InverseMap}, nil
}

// ComposeAffines composes two 2x3 affines with the ComposeHomographies order
// convention, going through the homogeneous 3x3 form.
func ComposeAffines(first, second Transform) (Transform, error) {
	if err := requireShape(first, 2, 3); err != nil {
		return Transform{}, fmt.Errorf("first: %w", err)
	}
	if err := requireShape(second, 2, 3); err != nil {
		return Transform{}, fmt.Errorf("second: %w", err)
	}
	h1, err := Promote(first)
	if err != nil {
		return Transform{}, err
	}
	h2, err := Promote(second)
	if err != nil {
		return Transform{}, err
	}
	h, err := ComposeHomographies(h1, h2)
	if err != nil {
		return Transform{}, err
	}
	return ExtractAffine(h)
}

// Compose composes two transforms of any kind. The result is affine only
// when both inputs are.
func Compose(first, second Transform) (Transform, error) {
	if first.kind == KindAffine && second.kind == KindAffine {
		return ComposeAffines(first, second)
	}
	h1, err := Promote(first)
	if err != nil {
		return Transform{}, fmt.Errorf("first: %w", err)
	}
	h2, err := Promote(second)
	if err != nil {
		return Transform{}, fmt.Errorf("second: %w", err)
	}
	return ComposeHomographies(h1, h2)
}

func requireShape(t Transform, rows, cols int) error {
	r, c := t.Dims()
	if r != rows || c != cols {
		return fmt.Errorf("%w: got %dx%d, want %dx%d", ErrShape, r, c, rows, cols)
	}
	return nil
}
