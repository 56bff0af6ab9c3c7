package transform

import (
	"math"
	"math/rand"
	"testing"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"go.viam.com/test"
	"gonum.org/v1/gonum/mat"
)

// syntheticScene builds two normalized-coordinate views of a random 3D point cloud.
// The second camera observes the scene after applying rotation rot and translation tr
// to the first camera's points.
func syntheticScene(n int, rot *mat.Dense, tr r3.Vector, seed int64) ([]r2.Point, []r2.Point) {
	r := rand.New(rand.NewSource(seed)) //nolint:gosec
	pts1 := make([]r2.Point, 0, n)
	pts2 := make([]r2.Point, 0, n)
	for len(pts1) < n {
		p := r3.Vector{
			X: r.Float64()*2 - 1,
			Y: r.Float64()*2 - 1,
			Z: 4 + r.Float64()*4,
		}
		q := r3.Vector{
			X: rot.At(0, 0)*p.X + rot.At(0, 1)*p.Y + rot.At(0, 2)*p.Z,
			Y: rot.At(1, 0)*p.X + rot.At(1, 1)*p.Y + rot.At(1, 2)*p.Z,
			Z: rot.At(2, 0)*p.X + rot.At(2, 1)*p.Y + rot.At(2, 2)*p.Z,
		}.Add(tr)
		if q.Z <= 0.1 {
			continue
		}
		pts1 = append(pts1, r2.Point{X: p.X / p.Z, Y: p.Y / p.Z})
		pts2 = append(pts2, r2.Point{X: q.X / q.Z, Y: q.Y / q.Z})
	}
	return pts1, pts2
}

func rotationAboutY(theta float64) *mat.Dense {
	c, s := math.Cos(theta), math.Sin(theta)
	return mat.NewDense(3, 3, []float64{
		c, 0, s,
		0, 1, 0,
		-s, 0, c,
	})
}

func TestComputeFundamentalMatrixAllPoints(t *testing.T) {
	rot := rotationAboutY(0.05)
	tr := r3.Vector{X: 0.3, Y: 0.1, Z: 0}
	pts1, pts2 := syntheticScene(24, rot, tr, 7)

	f, err := ComputeFundamentalMatrixAllPoints(pts1, pts2, true)
	test.That(t, err, test.ShouldBeNil)

	// every correspondence satisfies the epipolar constraint
	for i := range pts1 {
		test.That(t, sampsonDistance(f, pts1[i], pts2[i]), test.ShouldBeLessThan, 1e-6)
	}

	// too few points
	_, err = ComputeFundamentalMatrixAllPoints(pts1[:5], pts2[:5], true)
	test.That(t, err, test.ShouldNotBeNil)
	// mismatched lengths
	_, err = ComputeFundamentalMatrixAllPoints(pts1[:9], pts2[:8], true)
	test.That(t, err, test.ShouldNotBeNil)
}

func TestDecomposeEssentialMatrix(t *testing.T) {
	rot := rotationAboutY(0.1)
	tr := r3.Vector{X: 0.5, Y: 0, Z: 0}
	pts1, pts2 := syntheticScene(30, rot, tr, 11)

	f, err := ComputeFundamentalMatrixAllPoints(pts1, pts2, true)
	test.That(t, err, test.ShouldBeNil)
	e, err := EnforceEssentialMatrixConstraints(f)
	test.That(t, err, test.ShouldBeNil)

	// essential matrix must have singular values (s, s, 0)
	var svd mat.SVD
	test.That(t, svd.Factorize(e, mat.SVDNone), test.ShouldBeTrue)
	vals := svd.Values(nil)
	test.That(t, vals[0], test.ShouldAlmostEqual, vals[1], 1e-8)
	test.That(t, vals[2], test.ShouldAlmostEqual, 0, 1e-8)

	r1, r2mat, tvec, err := DecomposeEssentialMatrix(e)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, mat.Det(r1), test.ShouldAlmostEqual, 1, 1e-8)
	test.That(t, mat.Det(r2mat), test.ShouldAlmostEqual, 1, 1e-8)
	rows, cols := tvec.Dims()
	test.That(t, rows, test.ShouldEqual, 3)
	test.That(t, cols, test.ShouldEqual, 1)
}

func TestNormalizePointsDegenerate(t *testing.T) {
	same := make([]r2.Point, 10)
	_, _, err := normalizePoints(same)
	test.That(t, err, test.ShouldNotBeNil)
}

func TestGetPossibleCameraPoses(t *testing.T) {
	rot := rotationAboutY(0.08)
	tr := r3.Vector{X: 0.2, Y: 0.1, Z: 0.05}
	pts1, pts2 := syntheticScene(30, rot, tr, 3)

	f, err := ComputeFundamentalMatrixAllPoints(pts1, pts2, true)
	test.That(t, err, test.ShouldBeNil)
	e, err := EnforceEssentialMatrixConstraints(f)
	test.That(t, err, test.ShouldBeNil)

	poses, err := GetPossibleCameraPoses(e)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, poses, test.ShouldHaveLength, 4)
	for _, pose := range poses {
		rows, cols := pose.Dims()
		test.That(t, rows, test.ShouldEqual, 3)
		test.That(t, cols, test.ShouldEqual, 4)
		// rotation part is proper after sign adjustment
		sub := mat.DenseCopyOf(pose.Slice(0, 3, 0, 3))
		test.That(t, mat.Det(sub), test.ShouldBeGreaterThan, 0)
	}
}
