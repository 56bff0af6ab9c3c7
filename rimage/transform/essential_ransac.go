package transform

import (
	"math"
	"math/rand"

	"github.com/golang/geo/r2"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// ransacSeed keeps the robust fit deterministic from run to run.
const ransacSeed = 1

// EstimateEssentialMatrixRANSAC robustly fits an essential matrix to normalized point
// correspondences. Minimal eight-point models are scored by Sampson distance against
// threshold; confidence drives early termination, nIterations caps the search. The
// final matrix is refit on the full consensus set. Returns the matrix and the inlier
// mask over the input points.
func EstimateEssentialMatrixRANSAC(
	pts1, pts2 []r2.Point,
	confidence, threshold float64,
	nIterations int,
) (*mat.Dense, []bool, error) {
	if len(pts1) != len(pts2) {
		return nil, nil, errors.New("sets of points pts1 and pts2 must have the same number of elements")
	}
	nPoints := len(pts1)
	if nPoints < MinCorrespondences {
		return nil, nil, errors.Errorf("need at least %d correspondences, got %d", MinCorrespondences, nPoints)
	}

	r := rand.New(rand.NewSource(ransacSeed)) //nolint:gosec
	sample1 := make([]r2.Point, MinCorrespondences)
	sample2 := make([]r2.Point, MinCorrespondences)

	var bestMask []bool
	bestCount := 0
	maxIters := nIterations

	for iter := 0; iter < maxIters; iter++ {
		perm := r.Perm(nPoints)
		for i := 0; i < MinCorrespondences; i++ {
			sample1[i] = pts1[perm[i]]
			sample2[i] = pts2[perm[i]]
		}

		f, err := ComputeFundamentalMatrixAllPoints(sample1, sample2, true)
		if err != nil {
			// degenerate sample, try another
			continue
		}
		e, err := EnforceEssentialMatrixConstraints(f)
		if err != nil {
			continue
		}

		count, candMask := scoreEssentialMatrix(e, pts1, pts2, threshold)
		if count > bestCount {
			bestCount = count
			bestMask = candMask

			// adaptive termination: once a model this good exists, the number of
			// iterations needed to hit an all-inlier sample with the requested
			// confidence shrinks
			w := float64(count) / float64(nPoints)
			if denom := math.Log(1 - math.Pow(w, MinCorrespondences)); denom < 0 {
				if needed := int(math.Ceil(math.Log(1-confidence) / denom)); needed < maxIters {
					maxIters = needed
				}
			}
		}
	}

	if bestCount < MinCorrespondences {
		return nil, nil, errors.Errorf("robust fit found only %d consistent correspondences", bestCount)
	}

	// refit on the consensus set
	in1 := make([]r2.Point, 0, bestCount)
	in2 := make([]r2.Point, 0, bestCount)
	for i, ok := range bestMask {
		if ok {
			in1 = append(in1, pts1[i])
			in2 = append(in2, pts2[i])
		}
	}
	f, err := ComputeFundamentalMatrixAllPoints(in1, in2, true)
	if err != nil {
		return nil, nil, err
	}
	e, err := EnforceEssentialMatrixConstraints(f)
	if err != nil {
		return nil, nil, err
	}
	_, mask := scoreEssentialMatrix(e, pts1, pts2, threshold)
	return e, mask, nil
}

// scoreEssentialMatrix counts the correspondences whose Sampson distance to the
// epipolar model is below threshold.
func scoreEssentialMatrix(e *mat.Dense, pts1, pts2 []r2.Point, threshold float64) (int, []bool) {
	mask := make([]bool, len(pts1))
	count := 0
	for i := range pts1 {
		if sampsonDistance(e, pts1[i], pts2[i]) < threshold {
			mask[i] = true
			count++
		}
	}
	return count, mask
}

// sampsonDistance is the first-order approximation of the geometric error of a
// correspondence with respect to the epipolar constraint x2^T E x1 = 0.
func sampsonDistance(e *mat.Dense, p1, p2 r2.Point) float64 {
	x1 := []float64{p1.X, p1.Y, 1}
	x2 := []float64{p2.X, p2.Y, 1}

	// Ex1 and E^T x2
	var ex1, etx2 [3]float64
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			ex1[i] += e.At(i, j) * x1[j]
			etx2[i] += e.At(j, i) * x2[j]
		}
	}
	num := x2[0]*ex1[0] + x2[1]*ex1[1] + x2[2]*ex1[2]
	denom := ex1[0]*ex1[0] + ex1[1]*ex1[1] + etx2[0]*etx2[0] + etx2[1]*etx2[1]
	if denom == 0 {
		return math.Inf(1)
	}
	return math.Abs(num) / math.Sqrt(denom)
}
