// Package synchronization implements the motion estimator backends used to recover
// per-frame-pair camera rotations for video/gyroscope synchronization. Each backend
// turns a grayscale frame into a trackable item and matches items pairwise to
// estimate the relative rotation between their capture times.
package synchronization

import (
	"image"

	"github.com/golang/geo/r2"

	"github.com/zeuston/gyroflow/rimage/transform"
	"github.com/zeuston/gyroflow/spatialmath"
)

// OpticalFlowPair holds index-aligned tracked point sets: PointsA[i] in the first
// frame corresponds to PointsB[i] in the second. The two slices always have equal
// length; both may be empty when nothing survived filtering.
type OpticalFlowPair struct {
	PointsA []r2.Point
	PointsB []r2.Point
}

// UndistortFunc maps raw tracked pixel coordinates to normalized, distortion-free
// coordinates at the given capture timestamp. Implementations must be pure and
// return output index-aligned with the input.
type UndistortFunc func(pts []r2.Point, timestampUS int64, frameSize image.Point) ([]r2.Point, error)

// LensUndistortion adapts a lens profile into the UndistortFunc consumed by pose
// estimation.
func LensUndistortion(lens *transform.LensProfile) UndistortFunc {
	return func(pts []r2.Point, timestampUS int64, frameSize image.Point) ([]r2.Point, error) {
		return transform.UndistortPointsForOpticalFlow(pts, timestampUS, lens, frameSize)
	}
}

// EstimatorItemInterface is the contract every estimator backend exposes to the
// synchronization loop. All operations degrade to "no result" on data-dependent
// failure; none of them panic.
type EstimatorItemInterface interface {
	// Features returns a read-only view of the detected feature locations, in
	// detector output order.
	Features() []r2.Point
	// EstimatePose recovers the relative camera rotation between this item's frame
	// and the next one, or nil when no reliable estimate exists.
	EstimatePose(next *EstimatorItem, undistort UndistortFunc, timestampUS, nextTimestampUS int64) *spatialmath.RotationMatrix
	// OpticalFlowTo returns the matched correspondences between this item's frame
	// and the next one, without rotation recovery, or nil on failure.
	OpticalFlowTo(next *EstimatorItem) *OpticalFlowPair
	// Cleanup releases the item's frame buffer. Idempotent; afterwards every
	// operation involving the item reports no result.
	Cleanup()
}

// EstimatorItem is a tagged union over the available estimator backends. Exactly one
// variant is set. Matching requires both sides to be the same variant, so backends
// check variant identity before tracking.
type EstimatorItem struct {
	OpenCV *ItemOpenCV
}

// Interface returns the active backend, or nil for a zero item.
func (ei *EstimatorItem) Interface() EstimatorItemInterface {
	if ei == nil {
		return nil
	}
	if ei.OpenCV != nil {
		return ei.OpenCV
	}
	return nil
}

// Features returns the active backend's detected features.
func (ei *EstimatorItem) Features() []r2.Point {
	if iface := ei.Interface(); iface != nil {
		return iface.Features()
	}
	return nil
}

// EstimatePose recovers the relative rotation to the next item, or nil.
func (ei *EstimatorItem) EstimatePose(
	next *EstimatorItem,
	undistort UndistortFunc,
	timestampUS, nextTimestampUS int64,
) *spatialmath.RotationMatrix {
	if iface := ei.Interface(); iface != nil {
		return iface.EstimatePose(next, undistort, timestampUS, nextTimestampUS)
	}
	return nil
}

// OpticalFlowTo returns the matched correspondences to the next item, or nil.
func (ei *EstimatorItem) OpticalFlowTo(next *EstimatorItem) *OpticalFlowPair {
	if iface := ei.Interface(); iface != nil {
		return iface.OpticalFlowTo(next)
	}
	return nil
}

// Cleanup releases the active backend's frame buffer.
func (ei *EstimatorItem) Cleanup() {
	if iface := ei.Interface(); iface != nil {
		iface.Cleanup()
	}
}
