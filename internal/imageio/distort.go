package imageio

import (
	"image"
	"image/color"

	"gocv.io/x/gocv"
)

// Shift translates the content of img by (dx, dy) pixels. The output keeps
// the input size and uncovered pixels are black.
func Shift(img gocv.Mat, dx, dy float64) gocv.Mat {
	m := gocv.NewMatWithSize(2, 3, gocv.MatTypeCV64F)
	defer m.Close()
	m.SetDoubleAt(0, 0, 1)
	m.SetDoubleAt(0, 1, 0)
	m.SetDoubleAt(0, 2, dx)
	m.SetDoubleAt(1, 0, 0)
	m.SetDoubleAt(1, 1, 1)
	m.SetDoubleAt(1, 2, dy)
	return warp(img, m)
}

// Rotate rotates img about its centre by angleDegrees, counter-clockwise
// positive, keeping the input size.
func Rotate(img gocv.Mat, angleDegrees float64) gocv.Mat {
	return RotateScale(img, angleDegrees, 1)
}

// Rescale scales img about its centre, keeping the input size.
func Rescale(img gocv.Mat, scale float64) gocv.Mat {
	return RotateScale(img, 0, scale)
}

// RotateScale combines Rotate and Rescale in a single resampling.
func RotateScale(img gocv.Mat, angleDegrees, scale float64) gocv.Mat {
	center := image.Point{X: img.Cols() / 2, Y: img.Rows() / 2}
	rotMat := gocv.GetRotationMatrix2D(center, angleDegrees, scale)
	defer rotMat.Close()
	return warp(img, rotMat)
}

func warp(img, m gocv.Mat) gocv.Mat {
	out := gocv.NewMat()
	gocv.WarpAffineWithParams(img, &out, m, image.Pt(img.Cols(), img.Rows()),
		gocv.InterpolationLinear, gocv.BorderConstant, color.RGBA{})
	return out
}
