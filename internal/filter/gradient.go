package filter

import (
	"fmt"

	"gocv.io/x/gocv"
)

// Gradient computes a Deriche edge map: the image is smoothed, the absolute
// horizontal and vertical first derivatives are averaged 50/50, and the
// result is stretched to the full 8-bit range. The returned Mat is CV_8U
// with the channel count of src.
func Gradient(src gocv.Mat, gamma float64) (gocv.Mat, error) {
	smoothed, err := Smooth(src, gamma, Deriche)
	if err != nil {
		return gocv.Mat{}, fmt.Errorf("deriche gradient: %w", err)
	}
	defer smoothed.Close()

	gx := gocv.NewMat()
	defer gx.Close()
	gy := gocv.NewMat()
	defer gy.Close()
	gocv.Sobel(smoothed, &gx, gocv.MatTypeCV32F, 1, 0, 1, 1, 0, gocv.BorderDefault)
	gocv.Sobel(smoothed, &gy, gocv.MatTypeCV32F, 0, 1, 1, 1, 0, gocv.BorderDefault)

	agx := gocv.NewMat()
	defer agx.Close()
	agy := gocv.NewMat()
	defer agy.Close()
	gocv.ConvertScaleAbs(gx, &agx, 1, 0)
	gocv.ConvertScaleAbs(gy, &agy, 1, 0)

	dst := gocv.NewMat()
	gocv.AddWeighted(agx, 0.5, agy, 0.5, 0, &dst)
	gocv.Normalize(dst, &dst, 0, 255, gocv.NormMinMax)
	return dst, nil
}

// LocalDispersion1D highlights significant local changes in a 1-D signal:
// each output sample is the mean of the 3 samples around it minus the mean
// of the 6 samples at distance 6..8 on both sides. Borders are mirrored.
func LocalDispersion1D(sig []float64) []float64 {
	const deviation = 8
	n := len(sig)
	out := make([]float64, n)
	if n == 0 {
		return out
	}
	at := func(i int) float64 { return sig[reflectIndex(i, n)] }
	for i := 0; i < n; i++ {
		center := (at(i) + at(i-1) + at(i+1)) / 3
		around := (at(i-deviation) + at(i-deviation+1) + at(i-deviation+2) +
			at(i+deviation) + at(i+deviation-1) + at(i+deviation-2)) / 6
		out[i] = center - around
	}
	return out
}

// FindPeaks1D keeps strict local maxima (rising on the left, not rising on
// the right) and zeroes everything else.
func FindPeaks1D(sig []float64) []float64 {
	out := make([]float64, len(sig))
	for i := 1; i < len(sig)-1; i++ {
		if sig[i-1] < sig[i] && sig[i+1] <= sig[i] {
			out[i] = sig[i]
		}
	}
	return out
}

// reflectIndex mirrors an out-of-range index back into [0, n) repeating the
// edge sample, like BORDER_REFLECT.
func reflectIndex(i, n int) int {
	if n == 1 {
		return 0
	}
	for i < 0 || i >= n {
		if i < 0 {
			i = -i - 1
		}
		if i >= n {
			i = 2*n - i - 1
		}
	}
	return i
}
