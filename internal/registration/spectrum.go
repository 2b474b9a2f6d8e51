package registration

import (
	"fmt"
	"image"
	"image/color"
	"math"

	"gocv.io/x/gocv"
	"gonum.org/v1/gonum/dsp/window"
)

// hannWindow returns a rows x cols CV_64F Hann window, the outer product of
// two 1-D windows. The weights match cv::createHanningWindow.
func hannWindow(rows, cols int) (gocv.Mat, error) {
	w := gocv.NewMatWithSize(rows, cols, gocv.MatTypeCV64F)
	data, err := w.DataPtrFloat64()
	if err != nil {
		w.Close()
		return gocv.Mat{}, fmt.Errorf("hann window: %w", err)
	}

	wr := hann1D(rows)
	wc := hann1D(cols)
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			data[i*cols+j] = wr[i] * wc[j]
		}
	}
	return w, nil
}

func hann1D(n int) []float64 {
	w := make([]float64, n)
	for i := range w {
		w[i] = 1
	}
	if n == 1 {
		return w
	}
	return window.Hann(w)
}

// Apodize multiplies a single-channel CV_64F image by a Hann window to
// suppress the cross artefact image borders leave in the spectrum.
func Apodize(src gocv.Mat) (gocv.Mat, error) {
	w, err := hannWindow(src.Rows(), src.Cols())
	if err != nil {
		return gocv.Mat{}, err
	}
	defer w.Close()
	dst := gocv.NewMat()
	gocv.Multiply(src, w, &dst)
	return dst, nil
}

// complexSpectrum zero-pads src to the optimal DFT size and returns its
// real and imaginary planes.
func complexSpectrum(src gocv.Mat) (re, im gocv.Mat, err error) {
	if src.Empty() {
		return gocv.Mat{}, gocv.Mat{}, ErrEmptyImage
	}
	if src.Channels() != 1 {
		return gocv.Mat{}, gocv.Mat{}, fmt.Errorf("%w: spectrum needs one channel, got %d", ErrNotNormalized, src.Channels())
	}

	real64 := gocv.NewMat()
	defer real64.Close()
	src.ConvertTo(&real64, gocv.MatTypeCV64F)

	rows := gocv.GetOptimalDFTSize(src.Rows())
	cols := gocv.GetOptimalDFTSize(src.Cols())
	padded := gocv.NewMat()
	defer padded.Close()
	gocv.CopyMakeBorder(real64, &padded, 0, rows-src.Rows(), 0, cols-src.Cols(), gocv.BorderConstant, color.RGBA{})

	spectrum := gocv.NewMat()
	defer spectrum.Close()
	gocv.DFT(padded, &spectrum, gocv.DftComplexOutput)

	planes := gocv.Split(spectrum)
	return planes[0], planes[1], nil
}

// MagnitudeSpectrum returns log(1+|F|) of src with the DC term moved to the
// centre, cropped to even dimensions and min-max normalised to [0,1].
func MagnitudeSpectrum(src gocv.Mat) (gocv.Mat, error) {
	re, im, err := complexSpectrum(src)
	if err != nil {
		return gocv.Mat{}, err
	}
	defer re.Close()
	defer im.Close()

	mag := gocv.NewMat()
	gocv.Magnitude(re, im, &mag)
	mag.AddFloat(1)
	gocv.Log(mag, &mag)

	FFTShift(&mag)
	gocv.Normalize(mag, &mag, 0, 1, gocv.NormMinMax)
	return mag, nil
}

// PhaseSpectrum returns the phase angle of the DFT of src in radians,
// quadrant swapped and scaled so its maximum is 1.
func PhaseSpectrum(src gocv.Mat) (gocv.Mat, error) {
	re, im, err := complexSpectrum(src)
	if err != nil {
		return gocv.Mat{}, err
	}
	defer re.Close()
	defer im.Close()

	phase := gocv.NewMat()
	gocv.Phase(re, im, &phase, false)

	FFTShift(&phase)
	gocv.Normalize(phase, &phase, 1, 0, gocv.NormInf)
	return phase, nil
}

// FFTShift crops m to even dimensions and swaps its quadrants diagonally so
// the zero frequency ends up in the centre.
func FFTShift(m *gocv.Mat) {
	rows, cols := m.Rows()&^1, m.Cols()&^1
	if rows != m.Rows() || cols != m.Cols() {
		roi := m.Region(image.Rect(0, 0, cols, rows))
		cropped := roi.Clone()
		roi.Close()
		m.Close()
		*m = cropped
	}

	cx, cy := cols/2, rows/2
	q0 := m.Region(image.Rect(0, 0, cx, cy))
	defer q0.Close()
	q1 := m.Region(image.Rect(cx, 0, cols, cy))
	defer q1.Close()
	q2 := m.Region(image.Rect(0, cy, cx, rows))
	defer q2.Close()
	q3 := m.Region(image.Rect(cx, cy, cols, rows))
	defer q3.Close()

	swapRegions(&q0, &q3)
	swapRegions(&q1, &q2)
}

func swapRegions(a, b *gocv.Mat) {
	tmp := a.Clone()
	defer tmp.Close()
	b.CopyTo(a)
	tmp.CopyTo(b)
}

// HighPass returns a rows x cols CV_64F mask (1-c)(2-c), where c is the
// separable product of cosines running over [-pi/2, pi/2). It is zero at
// the centre and grows towards the borders.
func HighPass(rows, cols int) (gocv.Mat, error) {
	a := cosineRamp(rows)
	b := cosineRamp(cols)

	h := gocv.NewMatWithSize(rows, cols, gocv.MatTypeCV64F)
	data, err := h.DataPtrFloat64()
	if err != nil {
		h.Close()
		return gocv.Mat{}, fmt.Errorf("high-pass mask: %w", err)
	}
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			c := a[i] * b[j]
			data[i*cols+j] = (1 - c) * (2 - c)
		}
	}
	return h, nil
}

func cosineRamp(n int) []float64 {
	out := make([]float64, n)
	step := math.Pi / float64(n)
	val := -math.Pi / 2
	for i := range out {
		out[i] = math.Cos(val)
		val += step
	}
	return out
}
