package synchronization

import (
	"image"
	"sync"

	"github.com/edaniels/golog"
	"github.com/golang/geo/r2"
	"gocv.io/x/gocv"

	"github.com/zeuston/gyroflow/rimage"
	"github.com/zeuston/gyroflow/rimage/transform"
	"github.com/zeuston/gyroflow/spatialmath"
)

// Feature detection parameters (goodFeaturesToTrack with the default 3x3 block and
// standard min-eigenvalue criterion).
const (
	maxTrackedFeatures = 200
	featureQuality     = 0.01
	minFeatureDistance = 10.
)

// Pyramidal Lucas-Kanade tracking parameters.
const (
	lkWindowSize      = 21
	lkPyramidLevels   = 3
	lkMaxIterations   = 30
	lkEpsilon         = 0.01
	lkMinEigThreshold = 1e-4
)

var initOnce sync.Once

// Init performs the optional one-time acceleration probe for the OpenCV backend.
// Idempotent; skipping it never affects correctness, only performance.
func Init(logger golog.Logger) error {
	initOnce.Do(func() {
		// OpenCL device enumeration is not exposed by the binding in use; tracking
		// and detection run on the CPU paths.
		logger.Debug("opencv backend initialized")
	})
	return nil
}

// NewEstimatorItem runs feature detection on the frame with the OpenCV backend and
// wraps the result for the synchronization loop.
func NewEstimatorItem(timestampUS int64, img *rimage.GrayFrame, width, height int, logger golog.Logger) *EstimatorItem {
	return &EstimatorItem{OpenCV: DetectFeatures(timestampUS, img, width, height, logger)}
}

// ItemOpenCV is the OpenCV-backed estimator item: the features detected in one frame
// plus a shared handle to the frame's pixels, everything needed to match the frame
// against another one later.
type ItemOpenCV struct {
	features []r2.Point
	img      *rimage.GrayFrame
	size     image.Point
	logger   golog.Logger
}

// DetectFeatures locates up to maxTrackedFeatures corner-like points in the frame and
// returns an item holding them alongside the frame itself. Detection failure is not
// fatal: the returned item simply has no features and will produce no matches.
func DetectFeatures(timestampUS int64, img *rimage.GrayFrame, width, height int, logger golog.Logger) *ItemOpenCV {
	item := &ItemOpenCV{
		img:    img,
		size:   image.Point{X: width, Y: height},
		logger: logger,
	}
	if img.Empty() || width <= 0 || height <= 0 {
		logger.Errorw("cannot detect features on empty frame", "timestamp_us", timestampUS, "width", width, "height", height)
		return item
	}

	inp, err := gocv.NewMatFromBytes(height, width, gocv.MatTypeCV8UC1, img.Bytes())
	if err != nil {
		logger.Errorw("opencv error", "error", err)
		return item
	}
	defer inp.Close() //nolint:errcheck

	corners := gocv.NewMat()
	defer corners.Close() //nolint:errcheck
	gocv.GoodFeaturesToTrack(inp, &corners, maxTrackedFeatures, featureQuality, minFeatureDistance)

	item.features = pointsFromMat(corners)
	return item
}

// Features returns a read-only view of the detected feature locations.
func (item *ItemOpenCV) Features() []r2.Point {
	return item.features
}

// EstimatePose tracks this item's features into the next frame, undistorts both point
// sets at their capture timestamps, and recovers the relative camera rotation. Any
// failure along the way is logged and reported as nil; a bad frame pair never takes
// down the caller's loop.
func (item *ItemOpenCV) EstimatePose(
	next *EstimatorItem,
	undistort UndistortFunc,
	timestampUS, nextTimestampUS int64,
) *spatialmath.RotationMatrix {
	pair := item.matchedFeatures(next)
	if pair == nil {
		return nil
	}

	pts1, err := undistort(pair.PointsA, timestampUS, item.size)
	if err != nil {
		item.logger.Errorw("undistortion failed", "error", err)
		return nil
	}
	pts2, err := undistort(pair.PointsB, nextTimestampUS, item.size)
	if err != nil {
		item.logger.Errorw("undistortion failed", "error", err)
		return nil
	}

	rot, err := transform.RecoverCameraRotation(pts1, pts2)
	if err != nil {
		item.logger.Errorw("rotation recovery failed", "error", err)
		return nil
	}
	return rot
}

// OpticalFlowTo returns the raw matched correspondences to the next item, for callers
// that only need flow data.
func (item *ItemOpenCV) OpticalFlowTo(next *EstimatorItem) *OpticalFlowPair {
	return item.matchedFeatures(next)
}

// Cleanup releases the frame buffer, substituting the shared empty placeholder.
// Idempotent. Features and size are kept so spatial bookkeeping stays consistent.
func (item *ItemOpenCV) Cleanup() {
	item.img = rimage.EmptyGrayFrame()
}

// matchedFeatures tracks this item's features into the next item's frame with
// pyramidal Lucas-Kanade flow and filters the results down to valid, in-bounds pairs.
func (item *ItemOpenCV) matchedFeatures(next *EstimatorItem) *OpticalFlowPair {
	if next == nil || next.OpenCV == nil {
		// different estimator variant, nothing to match against
		return nil
	}
	other := next.OpenCV

	w, h := item.size.X, item.size.Y
	if item.img.Empty() || other.img.Empty() || w <= 0 || h <= 0 {
		return nil
	}
	if other.img.Width() != w || other.img.Height() != h {
		item.logger.Errorw("frame dimensions differ between items", "a", item.size, "b", image.Point{X: other.img.Width(), Y: other.img.Height()})
		return nil
	}
	if len(item.features) == 0 {
		return &OpticalFlowPair{PointsA: []r2.Point{}, PointsB: []r2.Point{}}
	}

	imgA, err := gocv.NewMatFromBytes(h, w, gocv.MatTypeCV8UC1, item.img.Bytes())
	if err != nil {
		item.logger.Errorw("opencv error", "error", err)
		return nil
	}
	defer imgA.Close() //nolint:errcheck
	imgB, err := gocv.NewMatFromBytes(h, w, gocv.MatTypeCV8UC1, other.img.Bytes())
	if err != nil {
		item.logger.Errorw("opencv error", "error", err)
		return nil
	}
	defer imgB.Close() //nolint:errcheck

	prevPts := matFromPoints(item.features)
	defer prevPts.Close() //nolint:errcheck
	nextPts := gocv.NewMat()
	defer nextPts.Close() //nolint:errcheck
	status := gocv.NewMat()
	defer status.Close() //nolint:errcheck
	flowErr := gocv.NewMat()
	defer flowErr.Close() //nolint:errcheck

	criteria := gocv.NewTermCriteria(gocv.Count+gocv.EPS, lkMaxIterations, lkEpsilon)
	gocv.CalcOpticalFlowPyrLKWithParams(
		imgA, imgB, prevPts, nextPts, &status, &flowErr,
		image.Point{X: lkWindowSize, Y: lkWindowSize}, lkPyramidLevels,
		criteria, 0, lkMinEigThreshold,
	)

	tracked := pointsFromMat(nextPts)
	if len(tracked) != len(item.features) || status.Rows() != len(item.features) {
		item.logger.Errorw("tracker output misaligned with input features",
			"features", len(item.features), "tracked", len(tracked), "status", status.Rows())
		return nil
	}

	fw, fh := float64(w), float64(h)
	ptsA := make([]r2.Point, 0, len(tracked))
	ptsB := make([]r2.Point, 0, len(tracked))
	for i := range tracked {
		if status.GetUCharAt(i, 0) != 1 {
			continue
		}
		p1, p2 := item.features[i], tracked[i]
		if p1.X >= 0 && p1.X < fw && p1.Y >= 0 && p1.Y < fh &&
			p2.X >= 0 && p2.X < fw && p2.Y >= 0 && p2.Y < fh {
			ptsA = append(ptsA, p1)
			ptsB = append(ptsB, p2)
		}
	}
	return &OpticalFlowPair{PointsA: ptsA, PointsB: ptsB}
}

// matFromPoints packs points into the Nx2 CV32F layout the tracker consumes.
func matFromPoints(pts []r2.Point) gocv.Mat {
	m := gocv.NewMatWithSize(len(pts), 2, gocv.MatTypeCV32F)
	for i, pt := range pts {
		m.SetFloatAt(i, 0, float32(pt.X))
		m.SetFloatAt(i, 1, float32(pt.Y))
	}
	return m
}

// pointsFromMat reads point coordinates out of either the two-channel or the Nx2
// single-channel float layout OpenCV produces.
func pointsFromMat(m gocv.Mat) []r2.Point {
	if m.Empty() {
		return nil
	}
	pts := make([]r2.Point, 0, m.Rows())
	for i := 0; i < m.Rows(); i++ {
		if m.Channels() == 2 {
			vec := m.GetVecfAt(i, 0)
			pts = append(pts, r2.Point{X: float64(vec[0]), Y: float64(vec[1])})
		} else {
			pts = append(pts, r2.Point{
				X: float64(m.GetFloatAt(i, 0)),
				Y: float64(m.GetFloatAt(i, 1)),
			})
		}
	}
	return pts
}
