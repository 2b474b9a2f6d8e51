package registration

import (
	"image"
	"image/color"
	"testing"

	"imgreg/internal/transform"

	"github.com/stretchr/testify/require"
	"github.com/valyala/fastrand"
	"gocv.io/x/gocv"
)

const (
	shiftX = 10
	shiftY = 20
)

// texturedImage builds a deterministic 8-bit grayscale scene: smooth blobs
// from upsampled noise with filled rectangles and discs on top, so both
// intensity based and keypoint based methods have something to lock on.
func texturedImage(t *testing.T, size int, seed uint32) gocv.Mat {
	t.Helper()
	var rng fastrand.RNG
	rng.Seed(seed)

	small := gocv.NewMatWithSize(size/8, size/8, gocv.MatTypeCV8UC1)
	defer small.Close()
	data, err := small.DataPtrUint8()
	require.NoError(t, err)
	for i := range data {
		data[i] = uint8(40 + rng.Uint32n(160))
	}

	img := gocv.NewMat()
	gocv.Resize(small, &img, image.Pt(size, size), 0, 0, gocv.InterpolationCubic)

	for k := 0; k < 30; k++ {
		x := int(rng.Uint32n(uint32(size - 40)))
		y := int(rng.Uint32n(uint32(size - 40)))
		w := 8 + int(rng.Uint32n(30))
		h := 8 + int(rng.Uint32n(30))
		v := uint8(rng.Uint32n(256))
		c := color.RGBA{R: v, G: v, B: v, A: 255}
		if k%3 == 0 {
			gocv.Circle(&img, image.Pt(x+w/2, y+h/2), w/2, c, -1)
		} else {
			gocv.Rectangle(&img, image.Rect(x, y, x+w, y+h), c, -1)
		}
	}
	return img
}

// shifted moves the content of img by (dx, dy) pixels, filling with black.
func shifted(img gocv.Mat, dx, dy float64) gocv.Mat {
	return Warp(img, img, transform.Translation(dx, dy))
}

// meanAbsDiff compares the central region of two 8-bit images, away from
// the borders a shift uncovers.
func meanAbsDiff(t *testing.T, a, b gocv.Mat, margin int) float64 {
	t.Helper()
	require.Equal(t, a.Rows(), b.Rows())
	require.Equal(t, a.Cols(), b.Cols())

	roi := image.Rect(margin, margin, a.Cols()-margin, a.Rows()-margin)
	ra := a.Region(roi)
	defer ra.Close()
	rb := b.Region(roi)
	defer rb.Close()

	diff := gocv.NewMat()
	defer diff.Close()
	gocv.AbsDiff(ra, rb, &diff)
	return diff.Mean().Val1
}

func blankImage(size int) gocv.Mat {
	return gocv.NewMatWithSizeFromScalar(gocv.NewScalar(128, 0, 0, 0), size, size, gocv.MatTypeCV8UC1)
}
