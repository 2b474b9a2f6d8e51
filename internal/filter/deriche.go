// Package filter implements the Garcia-Lorca recursive approximation of the
// Deriche smoothing filter and a gradient edge map built on top of it.
//
// The filter is a cascade of first order IIR operators
//
//	causal:      y[i] = (1-γ)·x[i] + γ·y[i-1]
//	anti-causal: y[i] = (1-γ)·x[i] + γ·y[i+1]
//
// with γ = exp(-α). One causal/anti-causal pair approximates Shen's filter,
// two pairs approximate Deriche's. The cost per pixel does not depend on γ.
package filter

import (
	"errors"
	"fmt"

	"gocv.io/x/gocv"
)

var (
	// ErrUnsupportedDepth is returned for pixel storage other than 8-bit
	// unsigned, 16-bit signed and 32-bit float.
	ErrUnsupportedDepth = errors.New("filter: unsupported pixel depth")

	// ErrGamma is returned when γ is outside [0, 1).
	ErrGamma = errors.New("filter: gamma must be in [0, 1)")
)

// Order selects how many causal/anti-causal pairs are cascaded.
type Order int

const (
	// Deriche runs the causal/anti-causal pair twice.
	Deriche Order = iota
	// Shen runs the pair once.
	Shen
)

func (o Order) passes() int {
	if o == Shen {
		return 1
	}
	return 2
}

func (o Order) String() string {
	if o == Shen {
		return "shen"
	}
	return "deriche"
}

// Sample is the set of storage types the filter runs on.
type Sample interface {
	~uint8 | ~int16 | ~float32
}

// Causal filters n samples of x, stride apart, into y. x and y may alias.
// The recursion is seeded with the first sample.
func Causal[T Sample](x, y []T, n, stride int, gamma float64) {
	if n == 0 {
		return
	}
	accu := float64(x[0])
	for i := 0; i < n; i++ {
		accu = (1-gamma)*float64(x[i*stride]) + gamma*accu
		y[i*stride] = T(accu)
	}
}

// AntiCausal is Causal run from the last sample backwards.
func AntiCausal[T Sample](x, y []T, n, stride int, gamma float64) {
	if n == 0 {
		return
	}
	accu := float64(x[(n-1)*stride])
	for i := n - 1; i >= 0; i-- {
		accu = (1-gamma)*float64(x[i*stride]) + gamma*accu
		y[i*stride] = T(accu)
	}
}

// Smooth1D filters a strided 1-D signal in place.
func Smooth1D[T Sample](sig []T, n, stride int, gamma float64, order Order) {
	for p := 0; p < order.passes(); p++ {
		Causal(sig, sig, n, stride, gamma)
		AntiCausal(sig, sig, n, stride, gamma)
	}
}

// smooth2D filters an interleaved rows x cols x channels buffer in place:
// every column first, then every row.
func smooth2D[T Sample](data []T, rows, cols, channels int, gamma float64, order Order) {
	rowStride := cols * channels
	for c := 0; c < channels; c++ {
		for x := 0; x < cols; x++ {
			Smooth1D(data[x*channels+c:], rows, rowStride, gamma, order)
		}
	}
	for c := 0; c < channels; c++ {
		for y := 0; y < rows; y++ {
			Smooth1D(data[y*rowStride+c:], cols, channels, gamma, order)
		}
	}
}

// Smooth returns a smoothed copy of src. Each channel is filtered
// independently; output storage matches the input and values are truncated
// back from the floating-point accumulator.
func Smooth(src gocv.Mat, gamma float64, order Order) (gocv.Mat, error) {
	if gamma < 0 || gamma >= 1 {
		return gocv.Mat{}, fmt.Errorf("%w: got %g", ErrGamma, gamma)
	}
	if src.Empty() {
		return gocv.Mat{}, fmt.Errorf("empty input image")
	}

	dst := src.Clone()
	rows, cols, ch := dst.Rows(), dst.Cols(), dst.Channels()

	var err error
	switch dst.Type() & 7 {
	case gocv.MatTypeCV8U:
		var data []uint8
		if data, err = dst.DataPtrUint8(); err == nil {
			smooth2D(data, rows, cols, ch, gamma, order)
		}
	case gocv.MatTypeCV16S:
		var data []int16
		if data, err = dst.DataPtrInt16(); err == nil {
			smooth2D(data, rows, cols, ch, gamma, order)
		}
	case gocv.MatTypeCV32F:
		var data []float32
		if data, err = dst.DataPtrFloat32(); err == nil {
			smooth2D(data, rows, cols, ch, gamma, order)
		}
	default:
		dst.Close()
		return gocv.Mat{}, fmt.Errorf("%w: type %v", ErrUnsupportedDepth, src.Type())
	}
	if err != nil {
		dst.Close()
		return gocv.Mat{}, fmt.Errorf("access pixel data: %w", err)
	}
	return dst, nil
}
