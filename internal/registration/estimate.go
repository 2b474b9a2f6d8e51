package registration

import (
	"fmt"
	"math"
	"sort"

	"imgreg/internal/transform"
	"imgreg/pkg/geometry"

	"github.com/valyala/fastrand"
	"gocv.io/x/gocv"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// Estimator fits a motion model to point correspondences while tolerating
// outliers. Affine and similarity fits are done in Go on gonum; homographies
// go through OpenCV's findHomography.
type Estimator struct {
	Method        RobustMethod
	Threshold     float64 // RANSAC inlier distance in pixels
	MaxIterations int
	Confidence    float64
	Seed          uint32 // 0 picks a random seed
}

// NewEstimator builds an Estimator from a FeatureConfig.
func NewEstimator(cfg FeatureConfig) Estimator {
	return Estimator{
		Method:        cfg.Robust,
		Threshold:     cfg.ReprojThreshold,
		MaxIterations: cfg.MaxIterations,
		Confidence:    cfg.Confidence,
	}
}

// Fit is the result of a robust estimation.
type Fit struct {
	Transform    transform.Transform
	Inliers      []int   // indices into the input correspondences
	MeanResidual float64 // over inliers, in pixels
	StdResidual  float64
}

// Estimate fits model mapping src points onto dst points. Too few points or
// a degenerate configuration yields an empty Transform and
// ErrInsufficientMatches.
func (e Estimator) Estimate(src, dst []geometry.Point2D, model MotionModel) (Fit, error) {
	if len(src) != len(dst) {
		return Fit{}, fmt.Errorf("point count mismatch: %d vs %d", len(src), len(dst))
	}
	if len(src) < model.MinPoints() {
		return Fit{}, fmt.Errorf("%w: %v needs %d points, got %d", ErrInsufficientMatches, model, model.MinPoints(), len(src))
	}

	var fit Fit
	var err error
	switch model {
	case Affine:
		fit, err = e.robust(src, dst, 3, affineMinimal, affineLeastSquares)
	case Rigid:
		fit, err = e.robust(src, dst, 2, similarityMinimal, similarityLeastSquares)
	case Homography:
		fit, err = e.homography(src, dst)
	default:
		return Fit{}, fmt.Errorf("%w: cannot estimate %v from correspondences", ErrUnsupportedModel, model)
	}
	if err != nil {
		return Fit{}, err
	}
	fit.MeanResidual, fit.StdResidual = residualStats(fit.Transform, src, dst, fit.Inliers)
	return fit, nil
}

type minimalSolver func(src, dst []geometry.Point2D) (transform.Transform, error)
type refineSolver func(src, dst []geometry.Point2D) (transform.Transform, error)

// robust runs RANSAC or LMedS over minimal samples of size k, then refits
// on the consensus set.
func (e Estimator) robust(src, dst []geometry.Point2D, k int, minimal minimalSolver, refine refineSolver) (Fit, error) {
	n := len(src)
	var rng fastrand.RNG
	if e.Seed != 0 {
		rng.Seed(e.Seed)
	} else {
		rng.Seed(fastrand.Uint32())
	}

	iterations := e.MaxIterations
	if iterations <= 0 {
		iterations = 2000
	}

	var best transform.Transform
	bestScore := math.Inf(1) // negative inlier count for RANSAC, median error for LMedS
	sample := make([]int, k)
	sampleSrc := make([]geometry.Point2D, k)
	sampleDst := make([]geometry.Point2D, k)
	residuals := make([]float64, n)

	for iter := 0; iter < iterations; iter++ {
		drawSample(&rng, n, sample)
		for i, idx := range sample {
			sampleSrc[i] = src[idx]
			sampleDst[i] = dst[idx]
		}

		candidate, err := minimal(sampleSrc, sampleDst)
		if err != nil {
			continue
		}

		for i := range src {
			residuals[i] = candidate.Apply(src[i]).Distance(dst[i])
		}

		var score float64
		if e.Method == LMedS {
			score = median(residuals)
		} else {
			inliers := 0
			for _, r := range residuals {
				if r < e.Threshold {
					inliers++
				}
			}
			score = -float64(inliers)
		}

		if score < bestScore {
			bestScore = score
			best = candidate
			if e.Method == RANSAC {
				iterations = min(iterations, adaptiveIterations(-score/float64(n), k, e.Confidence, iter+1))
			}
		}
	}

	if best.IsEmpty() {
		return Fit{}, fmt.Errorf("%w: every minimal sample was degenerate", ErrInsufficientMatches)
	}

	threshold := e.Threshold
	if e.Method == LMedS {
		// robust standard deviation estimate from the least median, as OpenCV does
		sigma := 2.5 * 1.4826 * (1 + 5.0/float64(max(n-k, 1))) * bestScore
		threshold = math.Max(sigma, 1e-6)
	}

	inliers := make([]int, 0, n)
	for i := range src {
		if best.Apply(src[i]).Distance(dst[i]) <= threshold {
			inliers = append(inliers, i)
		}
	}
	if len(inliers) < k {
		return Fit{}, fmt.Errorf("%w: %d inliers, need %d", ErrInsufficientMatches, len(inliers), k)
	}

	refined, err := refine(geometry.Subset(src, inliers), geometry.Subset(dst, inliers))
	if err != nil {
		return Fit{Transform: best, Inliers: inliers}, nil
	}
	return Fit{Transform: refined, Inliers: inliers}, nil
}

// drawSample fills sample with distinct indices in [0, n).
func drawSample(rng *fastrand.RNG, n int, sample []int) {
	for i := range sample {
	retry:
		idx := int(rng.Uint32n(uint32(n)))
		for _, prev := range sample[:i] {
			if prev == idx {
				goto retry
			}
		}
		sample[i] = idx
	}
}

// adaptiveIterations returns the number of iterations after which a sample
// of k inliers has been drawn with the requested confidence.
func adaptiveIterations(inlierRatio float64, k int, confidence float64, done int) int {
	if inlierRatio <= 0 {
		return math.MaxInt32
	}
	if inlierRatio >= 1 {
		return done
	}
	denom := math.Log(1 - math.Pow(inlierRatio, float64(k)))
	if denom >= 0 {
		return math.MaxInt32
	}
	need := math.Ceil(math.Log(1-confidence) / denom)
	if need > math.MaxInt32 {
		return math.MaxInt32
	}
	return max(int(need), done)
}

func median(values []float64) float64 {
	s := append([]float64(nil), values...)
	sort.Float64s(s)
	n := len(s)
	if n%2 == 1 {
		return s[n/2]
	}
	return (s[n/2-1] + s[n/2]) / 2
}

func residualStats(t transform.Transform, src, dst []geometry.Point2D, inliers []int) (mean, std float64) {
	if t.IsEmpty() || len(inliers) == 0 {
		return 0, 0
	}
	res := make([]float64, len(inliers))
	for i, idx := range inliers {
		res[i] = t.Apply(src[idx]).Distance(dst[idx])
	}
	if len(res) == 1 {
		return res[0], 0
	}
	return stat.MeanStdDev(res, nil)
}

// affineMinimal computes an affine transform from exactly 3 point pairs.
func affineMinimal(src, dst []geometry.Point2D) (transform.Transform, error) {
	if len(src) != 3 || len(dst) != 3 {
		return transform.Transform{}, fmt.Errorf("need exactly 3 points")
	}
	if geometry.Collinear(src[0], src[1], src[2], 1e-6) {
		return transform.Transform{}, fmt.Errorf("collinear sample")
	}

	// [x', y'] = [a, b, tx; c, d, ty] * [x, y, 1]
	A := mat.NewDense(6, 6, nil)
	B := mat.NewVecDense(6, nil)
	for i := 0; i < 3; i++ {
		x, y := src[i].X, src[i].Y
		A.Set(i*2, 0, x)
		A.Set(i*2, 1, y)
		A.Set(i*2, 2, 1)
		B.SetVec(i*2, dst[i].X)

		A.Set(i*2+1, 3, x)
		A.Set(i*2+1, 4, y)
		A.Set(i*2+1, 5, 1)
		B.SetVec(i*2+1, dst[i].Y)
	}

	var params mat.VecDense
	if err := params.SolveVec(A, B); err != nil {
		return transform.Transform{}, err
	}
	return affineFromParams(&params), nil
}

// affineLeastSquares fits an affine transform to n >= 3 pairs with QR.
func affineLeastSquares(src, dst []geometry.Point2D) (transform.Transform, error) {
	n := len(src)
	if n < 3 {
		return transform.Transform{}, fmt.Errorf("need at least 3 points")
	}

	A := mat.NewDense(n*2, 6, nil)
	B := mat.NewVecDense(n*2, nil)
	for i := 0; i < n; i++ {
		x, y := src[i].X, src[i].Y
		A.Set(i*2, 0, x)
		A.Set(i*2, 1, y)
		A.Set(i*2, 2, 1)
		B.SetVec(i*2, dst[i].X)

		A.Set(i*2+1, 3, x)
		A.Set(i*2+1, 4, y)
		A.Set(i*2+1, 5, 1)
		B.SetVec(i*2+1, dst[i].Y)
	}

	var qr mat.QR
	qr.Factorize(A)
	var params mat.VecDense
	if err := qr.SolveVecTo(&params, false, B); err != nil {
		return transform.Transform{}, err
	}
	return affineFromParams(&params), nil
}

func affineFromParams(p *mat.VecDense) transform.Transform {
	return transform.NewAffine([2][3]float64{
		{p.AtVec(0), p.AtVec(1), p.AtVec(2)},
		{p.AtVec(3), p.AtVec(4), p.AtVec(5)},
	})
}

// similarityMinimal computes rotation, uniform scale and translation from 2
// point pairs.
func similarityMinimal(src, dst []geometry.Point2D) (transform.Transform, error) {
	sx, sy := src[1].X-src[0].X, src[1].Y-src[0].Y
	dx, dy := dst[1].X-dst[0].X, dst[1].Y-dst[0].Y

	norm := sx*sx + sy*sy
	if norm < 1e-6 || dx*dx+dy*dy < 1e-6 {
		return transform.Transform{}, fmt.Errorf("degenerate points")
	}

	// (a + ib) = d / s in complex form
	a := (sx*dx + sy*dy) / norm
	b := (sx*dy - sy*dx) / norm
	return similarity(a, b, src[0], dst[0]), nil
}

// similarityLeastSquares fits rotation, uniform scale and translation to n
// pairs in closed form around the centroids.
func similarityLeastSquares(src, dst []geometry.Point2D) (transform.Transform, error) {
	if len(src) < 2 {
		return transform.Transform{}, fmt.Errorf("need at least 2 points")
	}
	sc := geometry.Centroid(src)
	dc := geometry.Centroid(dst)

	var dot, cross, norm float64
	for i := range src {
		s := src[i].Sub(sc)
		d := dst[i].Sub(dc)
		dot += s.X*d.X + s.Y*d.Y
		cross += s.X*d.Y - s.Y*d.X
		norm += s.X*s.X + s.Y*s.Y
	}
	if norm < 1e-12 {
		return transform.Transform{}, fmt.Errorf("degenerate points")
	}
	return similarity(dot/norm, cross/norm, sc, dc), nil
}

// similarity builds [[a -b tx] [b a ty]] so that from maps onto to.
func similarity(a, b float64, from, to geometry.Point2D) transform.Transform {
	return transform.NewAffine([2][3]float64{
		{a, -b, to.X - (a*from.X - b*from.Y)},
		{b, a, to.Y - (b*from.X + a*from.Y)},
	})
}

// homography delegates to OpenCV's findHomography.
func (e Estimator) homography(src, dst []geometry.Point2D) (Fit, error) {
	srcMat := pointsToMat(src)
	defer srcMat.Close()
	dstMat := pointsToMat(dst)
	defer dstMat.Close()
	mask := gocv.NewMat()
	defer mask.Close()

	method := gocv.HomographyMethodRANSAC
	if e.Method == LMedS {
		method = gocv.HomographyMethodLMEDS
	}
	iterations := e.MaxIterations
	if iterations <= 0 {
		iterations = 2000
	}

	h := gocv.FindHomography(srcMat, dstMat, method, e.Threshold, &mask, iterations, e.Confidence)
	defer h.Close()
	if h.Empty() {
		return Fit{}, fmt.Errorf("%w: findHomography found no solution", ErrInsufficientMatches)
	}

	t, err := transform.FromMat(h)
	if err != nil {
		return Fit{}, err
	}

	var inliers []int
	for i := 0; i < mask.Rows(); i++ {
		if mask.GetUCharAt(i, 0) != 0 {
			inliers = append(inliers, i)
		}
	}
	return Fit{Transform: t, Inliers: inliers}, nil
}

// pointsToMat packs points into an n x 1 CV_32FC2 matrix.
func pointsToMat(pts []geometry.Point2D) gocv.Mat {
	m := gocv.NewMatWithSize(len(pts), 1, gocv.MatTypeCV32FC2)
	for i, p := range pts {
		m.SetFloatAt(i, 0, float32(p.X))
		m.SetFloatAt(i, 1, float32(p.Y))
	}
	return m
}
