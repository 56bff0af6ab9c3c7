package transform

import (
	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"github.com/zeuston/gyroflow/spatialmath"
)

// CamPose stores the 3x4 pose matrix as well as the 3D Rotation and Translation matrices.
type CamPose struct {
	PoseMat     *mat.Dense
	Rotation    *mat.Dense
	Translation *mat.Dense
}

// NewCamPoseFromMat creates a pointer to a Camera pose from a 3x4 pose dense matrix.
func NewCamPoseFromMat(pose *mat.Dense) *CamPose {
	U3 := pose.ColView(3)
	t := mat.NewDense(3, 1, []float64{U3.AtVec(0), U3.AtVec(1), U3.AtVec(2)})
	rot := mat.NewDense(3, 3, nil)
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			rot.Set(i, j, pose.At(i, j))
		}
	}
	return &CamPose{
		PoseMat:     pose,
		Rotation:    rot,
		Translation: t,
	}
}

// Orientation converts the pose's rotation into the pipeline's rotation representation.
func (cp *CamPose) Orientation() (*spatialmath.RotationMatrix, error) {
	return RotationFromDense(cp.Rotation)
}

// ErrInvalidMatrixType is returned when a matrix handed to the rotation adapter is not
// a dense 3x3 of 64-bit floats.
var ErrInvalidMatrixType = errors.New("invalid matrix type")

// RotationFromDense is the single conversion boundary between the estimator's matrix
// type and the pipeline's rotation abstraction. It validates the matrix's storage
// before reading the nine elements in row-major order; it does not re-normalize.
func RotationFromDense(m mat.Matrix) (*spatialmath.RotationMatrix, error) {
	d, ok := m.(*mat.Dense)
	if !ok || d == nil {
		return nil, errors.Wrap(ErrInvalidMatrixType, "expected a dense float64 matrix")
	}
	if r, c := d.Dims(); r != 3 || c != 3 {
		return nil, errors.Wrapf(ErrInvalidMatrixType, "expected 3x3, got %dx%d", r, c)
	}
	data := make([]float64, 0, 9)
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			data = append(data, d.At(i, j))
		}
	}
	return spatialmath.NewRotationMatrix(data)
}

// adjustPoseSign adjusts the sign of a pose.
func adjustPoseSign(pose *mat.Dense) *mat.Dense {
	// take 3x3 sub-matrix
	subPose := pose.Slice(0, 3, 0, 3)

	// if determinant is negative, scale by -1
	if m := mat.DenseCopyOf(subPose); mat.Det(m) < 0 {
		pose.Scale(-1, pose)
	}
	return pose
}

// GetPossibleCameraPoses computes all 4 possible poses from the essential matrix.
func GetPossibleCameraPoses(essMat *mat.Dense) ([]*mat.Dense, error) {
	R1, R2, t, err := DecomposeEssentialMatrix(essMat)
	if err != nil {
		return nil, err
	}
	// poses
	var tOpp mat.Dense
	tOpp.Scale(-1, t)
	poses := make([]mat.Dense, 4)
	poses[0].Augment(R1, t)
	poses[1].Augment(R1, &tOpp)
	poses[2].Augment(R2, t)
	poses[3].Augment(R2, &tOpp)
	// adjust sign of poses
	posesOut := make([]*mat.Dense, 4)
	for i := range poses {
		posesOut[i] = mat.DenseCopyOf(adjustPoseSign(&poses[i]))
	}

	return posesOut, nil
}

// getCrossProductMatFromPoint returns the cross product with point p matrix.
func getCrossProductMatFromPoint(p r3.Vector) *mat.Dense {
	cross := mat.NewDense(3, 3, nil)
	cross.Set(0, 1, -p.Z)
	cross.Set(0, 2, p.Y)
	cross.Set(1, 0, p.Z)
	cross.Set(1, 2, -p.X)
	cross.Set(2, 0, -p.Y)
	cross.Set(2, 1, p.X)
	return cross
}

// GetLinearTriangulatedPoints computes triangulated 3D points with linear method.
func GetLinearTriangulatedPoints(pose *mat.Dense, pts1, pts2 []r3.Vector) ([]r3.Vector, error) {
	// set identity pose for pts1
	P := mat.NewDense(3, 4, nil)
	P.Set(0, 0, 1)
	P.Set(1, 1, 1)
	P.Set(2, 2, 1)
	// copy pose for pts2
	Pdash := mat.DenseCopyOf(pose)
	// initialize 3D points
	nPoints := len(pts1)
	pts3d := make([]r3.Vector, nPoints)
	for i := range pts1 {
		p1 := pts1[i]
		p2 := pts2[i]
		p1Cross := getCrossProductMatFromPoint(p1)
		p2Cross := getCrossProductMatFromPoint(p2)
		p1CrossP := mat.NewDense(3, 4, nil)
		p1CrossP.Mul(p1Cross, P)
		p2CrossPdash := mat.NewDense(3, 4, nil)
		p2CrossPdash.Mul(p2Cross, Pdash)
		var A mat.Dense
		A.Stack(p1CrossP, p2CrossPdash)
		// svd
		var svd mat.SVD
		ok := svd.Factorize(&A, mat.SVDThin)
		if !ok {
			return nil, errors.New("failed to factorize A")
		}
		// Determine the rank of the A matrix with a near zero condition threshold.
		const rcond = 1e-15
		rank := svd.Rank(rcond)
		if rank == 0 {
			return nil, errors.New("zero rank system")
		}
		var V mat.Dense
		svd.VTo(&V)
		pt3d := V.ColView(3)
		w := pt3d.AtVec(3)
		if w == 0 {
			// point at infinity, push it past any depth bound
			pts3d[i] = r3.Vector{X: pt3d.AtVec(0), Y: pt3d.AtVec(1), Z: pt3d.AtVec(2)}.Mul(1e12)
			continue
		}
		pts3d[i] = r3.Vector{
			X: pt3d.AtVec(0) / w,
			Y: pt3d.AtVec(1) / w,
			Z: pt3d.AtVec(2) / w,
		}
	}

	return pts3d, nil
}

// countBoundedPositiveDepth computes how many triangulated points end up in front of
// both cameras for the given pose, with their distance from the first camera bounded
// by distanceThresh. Returns the count and the per-point support mask.
func countBoundedPositiveDepth(pose *mat.Dense, pts1, pts2 []r3.Vector, distanceThresh float64) (int, []bool) {
	// get vectors from pose that are necessary to check if depth is positive
	rot3 := r3.Vector{X: pose.At(2, 0), Y: pose.At(2, 1), Z: pose.At(2, 2)}
	c := r3.Vector{X: pose.At(0, 3), Y: pose.At(1, 3), Z: pose.At(2, 3)}

	// triangulated points
	pts3D, err := GetLinearTriangulatedPoints(pose, pts1, pts2)
	if err != nil {
		return 0, nil
	}

	support := make([]bool, len(pts3D))
	nPositiveDepth := 0
	for i, pt := range pts3D {
		if pt.Z > 0 && rot3.Dot(pt.Sub(c)) > 0 && pt.Norm() < distanceThresh {
			support[i] = true
			nPositiveDepth++
		}
	}
	return nPositiveDepth, support
}

// RecoverPoseTriangulated selects, among the four pose candidates encoded by the
// essential matrix, the one supported by the most triangulated points with positive,
// bounded depth in both views. Only the points selected by the mask participate; the
// returned count is the number of supporting points.
func RecoverPoseTriangulated(
	essMat *mat.Dense,
	pts1, pts2 []r2.Point,
	selected []bool,
	distanceThresh float64,
) (*CamPose, int, error) {
	poses, err := GetPossibleCameraPoses(essMat)
	if err != nil {
		return nil, 0, err
	}

	kept1 := make([]r2.Point, 0, len(pts1))
	kept2 := make([]r2.Point, 0, len(pts2))
	for i := range pts1 {
		if selected == nil || selected[i] {
			kept1 = append(kept1, pts1[i])
			kept2 = append(kept2, pts2[i])
		}
	}
	pts1H := Convert2DPointsToHomogeneousPoints(kept1)
	pts2H := Convert2DPointsToHomogeneousPoints(kept2)

	best := poses[0]
	bestCount := -1
	for _, pose := range poses {
		count, _ := countBoundedPositiveDepth(pose, pts1H, pts2H, distanceThresh)
		if count > bestCount {
			bestCount = count
			best = pose
		}
	}
	if bestCount < 0 {
		return nil, 0, errors.New("triangulation failed for every pose candidate")
	}
	return NewCamPoseFromMat(mat.DenseCopyOf(best)), bestCount, nil
}
