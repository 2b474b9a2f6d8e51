package registration

import (
	"image"
	"image/color"

	"github.com/lucasb-eyer/go-colorful"
	"gocv.io/x/gocv"
)

var (
	bestMatchColor  = colorful.Hcl(135, 0.8, 0.75)
	worstMatchColor = colorful.Hcl(15, 0.8, 0.55)
)

// rankColor blends from green for the best match to red for the worst.
func rankColor(rank, n int) color.RGBA {
	t := 0.0
	if n > 1 {
		t = float64(rank) / float64(n-1)
	}
	r, g, b := bestMatchColor.BlendHcl(worstMatchColor, t).Clamped().RGB255()
	return color.RGBA{R: r, G: g, B: b, A: 255}
}

// DrawMatches renders the reference and sensed images side by side with a
// line per kept match, coloured by rank. The caller owns the result.
func DrawMatches(ref, sensed gocv.Mat, ms *MatchSet) gocv.Mat {
	left := toBGR(ref)
	defer left.Close()
	right := toBGR(sensed)
	defer right.Close()

	rows := max(left.Rows(), right.Rows())
	padRows(&left, rows)
	padRows(&right, rows)

	canvas := gocv.NewMat()
	gocv.Hconcat(left, right, &canvas)

	offset := left.Cols()
	n := ms.Len()
	// worst first so the best matches end up on top
	for i := n - 1; i >= 0; i-- {
		c := rankColor(i, n)
		p1 := ms.Reference.BestPoints[i]
		p2 := ms.Sensed.BestPoints[i]
		a := image.Pt(int(p1.X+0.5), int(p1.Y+0.5))
		b := image.Pt(int(p2.X+0.5)+offset, int(p2.Y+0.5))
		gocv.Circle(&canvas, a, 3, c, 1)
		gocv.Circle(&canvas, b, 3, c, 1)
		gocv.Line(&canvas, a, b, c, 1)
	}
	return canvas
}

func toBGR(m gocv.Mat) gocv.Mat {
	gray, err := toGray8(m)
	if err != nil {
		return gocv.NewMatWithSize(1, 1, gocv.MatTypeCV8UC3)
	}
	defer gray.Close()
	out := gocv.NewMat()
	gocv.CvtColor(gray, &out, gocv.ColorGrayToBGR)
	return out
}

// padRows extends m with black rows at the bottom until it has rows rows.
func padRows(m *gocv.Mat, rows int) {
	if m.Rows() >= rows {
		return
	}
	padded := gocv.NewMat()
	gocv.CopyMakeBorder(*m, &padded, 0, rows-m.Rows(), 0, 0, gocv.BorderConstant, color.RGBA{})
	m.Close()
	*m = padded
}
