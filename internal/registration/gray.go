package registration

import (
	"fmt"
	"image"

	"gocv.io/x/gocv"
)

// toGray returns a single-channel copy of img. BGR and BGRA inputs are
// converted, single-channel inputs are cloned.
func toGray(img gocv.Mat) (gocv.Mat, error) {
	if img.Empty() {
		return gocv.Mat{}, ErrEmptyImage
	}
	gray := gocv.NewMat()
	switch img.Channels() {
	case 1:
		img.CopyTo(&gray)
	case 3:
		gocv.CvtColor(img, &gray, gocv.ColorBGRToGray)
	case 4:
		gocv.CvtColor(img, &gray, gocv.ColorBGRAToGray)
	default:
		gray.Close()
		return gocv.Mat{}, fmt.Errorf("cannot convert %d-channel image to grayscale", img.Channels())
	}
	return gray, nil
}

// toGray8 returns an 8-bit single-channel copy of img, scaling floating
// point inputs from [0,1].
func toGray8(img gocv.Mat) (gocv.Mat, error) {
	gray, err := toGray(img)
	if err != nil {
		return gocv.Mat{}, err
	}
	switch gray.Type() {
	case gocv.MatTypeCV8UC1:
		return gray, nil
	case gocv.MatTypeCV32FC1, gocv.MatTypeCV64FC1:
		out := gocv.NewMat()
		gray.ConvertToWithParams(&out, gocv.MatTypeCV8UC1, 255, 0)
		gray.Close()
		return out, nil
	default:
		out := gocv.NewMat()
		gocv.Normalize(gray, &out, 0, 255, gocv.NormMinMax)
		gray.Close()
		conv := gocv.NewMat()
		out.ConvertTo(&conv, gocv.MatTypeCV8UC1)
		out.Close()
		return conv, nil
	}
}

// toGray32F returns a CV_32F single-channel copy of img, as ECC expects.
func toGray32F(img gocv.Mat) (gocv.Mat, error) {
	gray, err := toGray(img)
	if err != nil {
		return gocv.Mat{}, err
	}
	if gray.Type() == gocv.MatTypeCV32FC1 {
		return gray, nil
	}
	out := gocv.NewMat()
	gray.ConvertTo(&out, gocv.MatTypeCV32F)
	gray.Close()
	return out, nil
}

func matSize(m gocv.Mat) image.Point {
	return image.Pt(m.Cols(), m.Rows())
}

func sameSize(a, b gocv.Mat) bool {
	return a.Rows() == b.Rows() && a.Cols() == b.Cols()
}
