package transform

import (
	"encoding/json"
	"image"
	"os"
	"sort"

	"github.com/golang/geo/r2"
	"github.com/pkg/errors"
)

// LensKeyframe pins a set of intrinsics to a capture timestamp, for lenses whose
// parameters drift over a recording (focus breathing, digital zoom).
type LensKeyframe struct {
	TimestampUS int64                   `json:"timestamp_us"`
	Intrinsics  PinholeCameraIntrinsics `json:"intrinsic_parameters"`
}

// LensProfile holds the per-timestamp camera calibration used to undistort tracked
// points before pose recovery.
type LensProfile struct {
	Intrinsics *PinholeCameraIntrinsics `json:"intrinsic_parameters"`
	Distortion Distorter                `json:"-"`
	Keyframes  []LensKeyframe           `json:"keyframes,omitempty"`
}

// lensProfileJSON is the on-disk shape of a LensProfile.
type lensProfileJSON struct {
	Intrinsics *PinholeCameraIntrinsics `json:"intrinsic_parameters"`
	Keyframes  []LensKeyframe           `json:"keyframes,omitempty"`
	Distortion *struct {
		Model      DistortionType `json:"model"`
		Parameters []float64      `json:"parameters"`
	} `json:"distortion,omitempty"`
}

// NewLensProfileFromJSONFile loads a lens profile, including its distortion model,
// from a JSON file.
func NewLensProfileFromJSONFile(jsonPath string) (*LensProfile, error) {
	//nolint:gosec
	raw, err := os.ReadFile(jsonPath)
	if err != nil {
		return nil, errors.Wrap(err, "error opening JSON file")
	}
	var cfg lensProfileJSON
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, errors.Wrap(err, "error parsing JSON string")
	}
	lens := &LensProfile{Intrinsics: cfg.Intrinsics, Keyframes: cfg.Keyframes}
	if cfg.Distortion != nil {
		lens.Distortion, err = NewDistorter(cfg.Distortion.Model, cfg.Distortion.Parameters)
		if err != nil {
			return nil, err
		}
	}
	if err := lens.CheckValid(); err != nil {
		return nil, err
	}
	return lens, nil
}

// CheckValid checks if the fields for LensProfile have valid inputs.
func (lp *LensProfile) CheckValid() error {
	if lp == nil {
		return NewNoIntrinsicsError("lens profile does not exist")
	}
	if lp.Intrinsics == nil && len(lp.Keyframes) == 0 {
		return NewNoIntrinsicsError("lens profile has neither static intrinsics nor keyframes")
	}
	if lp.Intrinsics != nil {
		if err := lp.Intrinsics.CheckValid(); err != nil {
			return err
		}
	}
	for i := range lp.Keyframes {
		if err := lp.Keyframes[i].Intrinsics.CheckValid(); err != nil {
			return errors.Wrapf(err, "keyframe %d", i)
		}
	}
	if lp.Distortion != nil {
		return lp.Distortion.CheckValid()
	}
	return nil
}

// IntrinsicsAt returns the intrinsics in effect at the given capture timestamp,
// linearly interpolated between the neighboring keyframes. With no keyframes the
// static intrinsics are returned.
func (lp *LensProfile) IntrinsicsAt(timestampUS int64) *PinholeCameraIntrinsics {
	if len(lp.Keyframes) == 0 {
		return lp.Intrinsics
	}
	kfs := lp.Keyframes
	i := sort.Search(len(kfs), func(i int) bool { return kfs[i].TimestampUS >= timestampUS })
	if i == 0 {
		return &kfs[0].Intrinsics
	}
	if i == len(kfs) {
		return &kfs[len(kfs)-1].Intrinsics
	}
	lo, hi := &kfs[i-1], &kfs[i]
	span := hi.TimestampUS - lo.TimestampUS
	if span == 0 {
		return &lo.Intrinsics
	}
	t := float64(timestampUS-lo.TimestampUS) / float64(span)
	lerp := func(a, b float64) float64 { return a + (b-a)*t }
	return &PinholeCameraIntrinsics{
		Width:  lo.Intrinsics.Width,
		Height: lo.Intrinsics.Height,
		Fx:     lerp(lo.Intrinsics.Fx, hi.Intrinsics.Fx),
		Fy:     lerp(lo.Intrinsics.Fy, hi.Intrinsics.Fy),
		Ppx:    lerp(lo.Intrinsics.Ppx, hi.Intrinsics.Ppx),
		Ppy:    lerp(lo.Intrinsics.Ppy, hi.Intrinsics.Ppy),
	}
}

// UndistortPointsForOpticalFlow maps raw tracked pixel coordinates to normalized,
// distortion-free camera coordinates at the given capture timestamp. The output is
// index aligned with the input and suitable for pose recovery under an identity
// calibration matrix. It is a pure function of its inputs.
func UndistortPointsForOpticalFlow(
	pts []r2.Point,
	timestampUS int64,
	lens *LensProfile,
	frameSize image.Point,
) ([]r2.Point, error) {
	if err := lens.CheckValid(); err != nil {
		return nil, err
	}
	if frameSize.X <= 0 || frameSize.Y <= 0 {
		return nil, errors.Errorf("frame size must be positive, got (%d, %d)", frameSize.X, frameSize.Y)
	}
	intrinsics := lens.IntrinsicsAt(timestampUS)

	// The calibration may have been made at a different resolution than the frames
	// being tracked; rescale it to the frame.
	sx, sy := 1.0, 1.0
	if intrinsics.Width > 0 && intrinsics.Width != frameSize.X {
		sx = float64(frameSize.X) / float64(intrinsics.Width)
	}
	if intrinsics.Height > 0 && intrinsics.Height != frameSize.Y {
		sy = float64(frameSize.Y) / float64(intrinsics.Height)
	}
	fx, fy := intrinsics.Fx*sx, intrinsics.Fy*sy
	ppx, ppy := intrinsics.Ppx*sx, intrinsics.Ppy*sy

	out := make([]r2.Point, len(pts))
	for i, pt := range pts {
		x := (pt.X - ppx) / fx
		y := (pt.Y - ppy) / fy
		if lens.Distortion != nil {
			x, y = lens.Distortion.Transform(x, y)
		}
		out[i] = r2.Point{X: x, Y: y}
	}
	return out, nil
}
