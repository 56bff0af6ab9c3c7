// Command motionestimate recovers the relative camera rotation between two frames of
// the same recording.
package main

import (
	"flag"
	"math"

	"github.com/disintegration/imaging"
	"github.com/edaniels/golog"

	"github.com/zeuston/gyroflow/rimage"
	"github.com/zeuston/gyroflow/rimage/transform"
	"github.com/zeuston/gyroflow/synchronization"
)

var logger = golog.NewLogger("motionestimate")

func main() {
	lensPath := flag.String("lens", "", "path to the lens profile JSON")
	tsA := flag.Int64("ts-a", 0, "capture timestamp of the first frame, in microseconds")
	tsB := flag.Int64("ts-b", 33333, "capture timestamp of the second frame, in microseconds")
	flag.Parse()

	if flag.NArg() != 2 || *lensPath == "" {
		logger.Fatal("usage: motionestimate -lens profile.json [-ts-a us] [-ts-b us] frame_a.png frame_b.png")
	}

	lens, err := transform.NewLensProfileFromJSONFile(*lensPath)
	if err != nil {
		logger.Fatalw("cannot load lens profile", "error", err)
	}

	frameA, err := loadGray(flag.Arg(0))
	if err != nil {
		logger.Fatalw("cannot load frame", "path", flag.Arg(0), "error", err)
	}
	frameB, err := loadGray(flag.Arg(1))
	if err != nil {
		logger.Fatalw("cannot load frame", "path", flag.Arg(1), "error", err)
	}
	if !rimage.SameSize(frameA, frameB) {
		logger.Fatalw("frames differ in size",
			"a", frameA.Bounds(), "b", frameB.Bounds())
	}

	if err := synchronization.Init(logger); err != nil {
		logger.Fatalw("backend init failed", "error", err)
	}

	itemA := synchronization.NewEstimatorItem(*tsA, frameA, frameA.Width(), frameA.Height(), logger)
	itemB := synchronization.NewEstimatorItem(*tsB, frameB, frameB.Width(), frameB.Height(), logger)
	defer itemA.Cleanup()
	defer itemB.Cleanup()

	logger.Infow("detected features", "frame_a", len(itemA.Features()), "frame_b", len(itemB.Features()))

	rot := itemA.EstimatePose(itemB, synchronization.LensUndistortion(lens), *tsA, *tsB)
	if rot == nil {
		logger.Fatal("no reliable rotation estimate for this frame pair")
	}

	aa := rot.AxisAngles()
	ea := rot.EulerAngles()
	logger.Infow("recovered rotation",
		"angle_deg", aa.Theta*180/math.Pi,
		"axis_x", aa.RX, "axis_y", aa.RY, "axis_z", aa.RZ,
		"roll_deg", ea.Roll*180/math.Pi,
		"pitch_deg", ea.Pitch*180/math.Pi,
		"yaw_deg", ea.Yaw*180/math.Pi,
	)
}

func loadGray(path string) (*rimage.GrayFrame, error) {
	img, err := imaging.Open(path)
	if err != nil {
		return nil, err
	}
	return rimage.MakeGray(img), nil
}
