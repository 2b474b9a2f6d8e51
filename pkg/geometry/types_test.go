package geometry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"gocv.io/x/gocv"
)

func TestPointArithmetic(t *testing.T) {
	a := NewPoint2D(1, 2)
	b := NewPoint2D(4, 6)
	assert.Equal(t, 5.0, a.Distance(b))
	assert.Equal(t, Point2D{5, 8}, a.Add(b))
	assert.Equal(t, Point2D{3, 4}, b.Sub(a))
	assert.Equal(t, Point2D{2, 4}, a.Scale(2))
	assert.Equal(t, Point2D{1.5, -2}, FromPoint2f(gocv.Point2f{X: 1.5, Y: -2}))
}

func TestCentroidAndSubset(t *testing.T) {
	pts := []Point2D{{0, 0}, {4, 0}, {4, 4}, {0, 4}}
	assert.Equal(t, Point2D{2, 2}, Centroid(pts))
	assert.Equal(t, Point2D{}, Centroid(nil))
	assert.Equal(t, []Point2D{{4, 4}, {0, 0}}, Subset(pts, []int{2, 0}))
}

func TestCollinear(t *testing.T) {
	assert.True(t, Collinear(Point2D{0, 0}, Point2D{1, 1}, Point2D{5, 5}, 1e-9))
	assert.False(t, Collinear(Point2D{0, 0}, Point2D{1, 0}, Point2D{0, 1}, 1e-9))
}
