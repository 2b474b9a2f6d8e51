package registration

import (
	"fmt"
	"image"
	"image/color"

	"imgreg/internal/transform"

	"gocv.io/x/gocv"
)

// Warp resamples sensed into the frame of ref: a 3x3 transform is applied
// as a perspective warp, a 2x3 one as an affine warp. Any other shape,
// including the empty Transform, returns a clone of sensed. Use WarpStrict
// to get an error instead.
func Warp(ref, sensed gocv.Mat, t transform.Transform) gocv.Mat {
	out, err := WarpStrict(ref, sensed, t)
	if err != nil {
		return sensed.Clone()
	}
	return out
}

// WarpStrict is Warp that reports an unusable transform as ErrShape.
func WarpStrict(ref, sensed gocv.Mat, t transform.Transform) (gocv.Mat, error) {
	if t.IsEmpty() {
		return gocv.Mat{}, fmt.Errorf("%w: empty transform", transform.ErrShape)
	}
	m := t.ToMat()
	defer m.Close()
	return warpTo(sensed, m, matSize(ref), t.InverseMap)
}

// WarpMat is Warp for a raw matrix of any shape and depth.
func WarpMat(ref, sensed, m gocv.Mat) gocv.Mat {
	m64 := gocv.NewMat()
	defer m64.Close()
	m.ConvertTo(&m64, gocv.MatTypeCV64F)

	out, err := warpTo(sensed, m64, matSize(ref), false)
	if err != nil {
		return sensed.Clone()
	}
	return out
}

// warpTo dispatches on the matrix shape. Output has the given size, linear
// interpolation and a black constant border.
func warpTo(src, m gocv.Mat, size image.Point, inverse bool) (gocv.Mat, error) {
	flags := gocv.InterpolationLinear
	if inverse {
		flags += gocv.WarpInverseMap
	}

	dst := gocv.NewMat()
	switch {
	case m.Rows() == 3 && m.Cols() == 3:
		gocv.WarpPerspectiveWithParams(src, &dst, m, size, flags, gocv.BorderConstant, color.RGBA{})
	case m.Rows() == 2 && m.Cols() == 3:
		gocv.WarpAffineWithParams(src, &dst, m, size, flags, gocv.BorderConstant, color.RGBA{})
	default:
		dst.Close()
		return gocv.Mat{}, fmt.Errorf("%w: cannot warp with a %dx%d matrix", transform.ErrShape, m.Rows(), m.Cols())
	}
	return dst, nil
}
