package transform

import (
	"math"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"github.com/zeuston/gyroflow/spatialmath"
)

// Robust fit parameters for relative rotation recovery. The correspondences are in
// normalized camera coordinates, so the inlier threshold is in those units.
const (
	// EssentialMatrixConfidence is the probability that the robust fit samples at
	// least one outlier-free minimal set.
	EssentialMatrixConfidence = 0.999
	// EssentialMatrixInlierThreshold is the Sampson distance below which a
	// correspondence supports a candidate model.
	EssentialMatrixInlierThreshold = 0.0005
	// MaxRobustFitIterations caps the RANSAC search, bounding worst-case cost.
	MaxRobustFitIterations = 1000
	// TriangulationDepthBound rejects triangulated points farther than this from the
	// first camera when counting pose support.
	TriangulationDepthBound = 100000
	// MinPoseInliers is the fewest supporting correspondences for which a recovered
	// rotation is considered reliable.
	MinPoseInliers = 20
)

// ErrInsufficientInliers is returned when a candidate motion was computed but too few
// correspondences support it.
var ErrInsufficientInliers = errors.New("motion model not found: insufficient inliers")

// RecoverCameraRotation computes the relative rotation between two camera views from
// index-aligned, undistorted correspondences in normalized coordinates.
//
// A rotation-only model is tried first: when the views are related by a (near) pure
// rotation, or have not moved at all, the essential matrix is degenerate and the
// epipolar pipeline cannot be trusted. If that model does not account for the motion,
// an essential matrix is fit robustly and decomposed, with the candidate selected by
// triangulated-depth support.
func RecoverCameraRotation(pts1, pts2 []r2.Point) (*spatialmath.RotationMatrix, error) {
	if len(pts1) != len(pts2) {
		return nil, errors.New("sets of points pts1 and pts2 must have the same number of elements")
	}
	if len(pts1) < MinCorrespondences {
		return nil, errors.Errorf("need at least %d correspondences, got %d", MinCorrespondences, len(pts1))
	}

	if rot, count := fitRotationOnly(pts1, pts2, EssentialMatrixInlierThreshold); rot != nil {
		// only trust the rotation-only model when it explains nearly every track,
		// otherwise real parallax is present and triangulation must arbitrate
		if count >= MinPoseInliers && count*10 >= len(pts1)*9 {
			return RotationFromDense(rot)
		}
	}

	essMat, mask, err := EstimateEssentialMatrixRANSAC(
		pts1, pts2, EssentialMatrixConfidence, EssentialMatrixInlierThreshold, MaxRobustFitIterations)
	if err != nil {
		return nil, err
	}

	pose, inliers, err := RecoverPoseTriangulated(essMat, pts1, pts2, mask, TriangulationDepthBound)
	if err != nil {
		return nil, err
	}
	if inliers < MinPoseInliers {
		return nil, errors.Wrapf(ErrInsufficientInliers, "%d < %d", inliers, MinPoseInliers)
	}
	return pose.Orientation()
}

// fitRotationOnly finds the rotation best aligning the bearing vectors of the two
// point sets (orthogonal Procrustes via SVD) and counts the correspondences it
// explains within tol. Returns nil if the fit is not computable.
func fitRotationOnly(pts1, pts2 []r2.Point, tol float64) (*mat.Dense, int) {
	b1 := bearingVectors(pts1)
	b2 := bearingVectors(pts2)

	// cross-covariance M = sum b2_i * b1_i^T
	m := mat.NewDense(3, 3, nil)
	for i := range b1 {
		a, b := b1[i], b2[i]
		m.Set(0, 0, m.At(0, 0)+b.X*a.X)
		m.Set(0, 1, m.At(0, 1)+b.X*a.Y)
		m.Set(0, 2, m.At(0, 2)+b.X*a.Z)
		m.Set(1, 0, m.At(1, 0)+b.Y*a.X)
		m.Set(1, 1, m.At(1, 1)+b.Y*a.Y)
		m.Set(1, 2, m.At(1, 2)+b.Y*a.Z)
		m.Set(2, 0, m.At(2, 0)+b.Z*a.X)
		m.Set(2, 1, m.At(2, 1)+b.Z*a.Y)
		m.Set(2, 2, m.At(2, 2)+b.Z*a.Z)
	}

	mats := performSVD(m)
	if mats == nil {
		return nil, 0
	}
	// R = U diag(1, 1, det(U V^T)) V^T keeps the result a proper rotation
	var uvt mat.Dense
	uvt.Mul(mats.U, mats.VT)
	d := eye(3)
	d.Set(2, 2, math.Copysign(1, mat.Det(&uvt)))

	rot := mat.NewDense(3, 3, nil)
	rot.Mul(mats.U, d)
	rot.Mul(rot, mats.VT)

	count := 0
	for i := range b1 {
		a := b1[i]
		rotated := r3.Vector{
			X: rot.At(0, 0)*a.X + rot.At(0, 1)*a.Y + rot.At(0, 2)*a.Z,
			Y: rot.At(1, 0)*a.X + rot.At(1, 1)*a.Y + rot.At(1, 2)*a.Z,
			Z: rot.At(2, 0)*a.X + rot.At(2, 1)*a.Y + rot.At(2, 2)*a.Z,
		}
		if rotated.Sub(b2[i]).Norm() < tol {
			count++
		}
	}
	return rot, count
}

// bearingVectors converts normalized image coordinates to unit view rays.
func bearingVectors(pts []r2.Point) []r3.Vector {
	out := make([]r3.Vector, len(pts))
	for i, pt := range pts {
		out[i] = r3.Vector{X: pt.X, Y: pt.Y, Z: 1}.Normalize()
	}
	return out
}
