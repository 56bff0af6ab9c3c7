package transform

import (
	"image"
	"os"
	"path/filepath"
	"testing"

	"github.com/golang/geo/r2"
	"go.viam.com/test"
)

func TestUndistortPointsForOpticalFlow(t *testing.T) {
	lens := &LensProfile{
		Intrinsics: &PinholeCameraIntrinsics{
			Width: 640, Height: 480,
			Fx: 500, Fy: 500, Ppx: 320, Ppy: 240,
		},
	}
	pts := []r2.Point{{X: 320, Y: 240}, {X: 420, Y: 240}, {X: 320, Y: 340}}

	out, err := UndistortPointsForOpticalFlow(pts, 0, lens, image.Point{X: 640, Y: 480})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, out, test.ShouldHaveLength, len(pts))
	// principal point maps to the optical axis
	test.That(t, out[0].X, test.ShouldAlmostEqual, 0)
	test.That(t, out[0].Y, test.ShouldAlmostEqual, 0)
	test.That(t, out[1].X, test.ShouldAlmostEqual, 0.2)
	test.That(t, out[2].Y, test.ShouldAlmostEqual, 0.2)

	// calibration made at half resolution still lands on the same rays
	halfLens := &LensProfile{
		Intrinsics: &PinholeCameraIntrinsics{
			Width: 320, Height: 240,
			Fx: 250, Fy: 250, Ppx: 160, Ppy: 120,
		},
	}
	out2, err := UndistortPointsForOpticalFlow(pts, 0, halfLens, image.Point{X: 640, Y: 480})
	test.That(t, err, test.ShouldBeNil)
	for i := range out {
		test.That(t, out2[i].X, test.ShouldAlmostEqual, out[i].X)
		test.That(t, out2[i].Y, test.ShouldAlmostEqual, out[i].Y)
	}

	_, err = UndistortPointsForOpticalFlow(pts, 0, lens, image.Point{})
	test.That(t, err, test.ShouldNotBeNil)
	_, err = UndistortPointsForOpticalFlow(pts, 0, &LensProfile{}, image.Point{X: 640, Y: 480})
	test.That(t, err, test.ShouldNotBeNil)
}

func TestIntrinsicsAtInterpolation(t *testing.T) {
	lens := &LensProfile{
		Keyframes: []LensKeyframe{
			{TimestampUS: 0, Intrinsics: PinholeCameraIntrinsics{Width: 640, Height: 480, Fx: 500, Fy: 500, Ppx: 320, Ppy: 240}},
			{TimestampUS: 1000000, Intrinsics: PinholeCameraIntrinsics{Width: 640, Height: 480, Fx: 600, Fy: 600, Ppx: 320, Ppy: 240}},
		},
	}
	test.That(t, lens.CheckValid(), test.ShouldBeNil)
	test.That(t, lens.IntrinsicsAt(-5).Fx, test.ShouldEqual, 500)
	test.That(t, lens.IntrinsicsAt(500000).Fx, test.ShouldAlmostEqual, 550)
	test.That(t, lens.IntrinsicsAt(2000000).Fx, test.ShouldEqual, 600)
}

func TestBrownConradyRoundTrip(t *testing.T) {
	params := []float64{-0.2, 0.05, -0.002, 0.001, -0.0005}
	forward, err := NewBrownConrady(params)
	test.That(t, err, test.ShouldBeNil)
	inverse, err := NewInverseBrownConrady(params)
	test.That(t, err, test.ShouldBeNil)

	for _, pt := range []r2.Point{{X: 0, Y: 0}, {X: 0.1, Y: 0.05}, {X: -0.3, Y: 0.2}, {X: 0.4, Y: -0.4}} {
		xd, yd := forward.Transform(pt.X, pt.Y)
		xu, yu := inverse.Transform(xd, yd)
		test.That(t, xu, test.ShouldAlmostEqual, pt.X, 1e-6)
		test.That(t, yu, test.ShouldAlmostEqual, pt.Y, 1e-6)
	}

	_, err = NewBrownConrady(make([]float64, 6))
	test.That(t, err, test.ShouldNotBeNil)
}

func TestNewLensProfileFromJSONFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "lens.json")
	content := `{
		"intrinsic_parameters": {"width_px": 640, "height_px": 480, "fx": 500, "fy": 500, "ppx": 320, "ppy": 240},
		"distortion": {"model": "inverse_brown_conrady", "parameters": [-0.1, 0.01, 0, 0, 0]}
	}`
	test.That(t, os.WriteFile(path, []byte(content), 0o600), test.ShouldBeNil)

	lens, err := NewLensProfileFromJSONFile(path)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, lens.Intrinsics.Fx, test.ShouldEqual, 500)
	test.That(t, lens.Distortion, test.ShouldNotBeNil)
	test.That(t, lens.Distortion.ModelType(), test.ShouldEqual, InverseBrownConradyDistortionType)

	_, err = NewLensProfileFromJSONFile(filepath.Join(dir, "missing.json"))
	test.That(t, err, test.ShouldNotBeNil)

	badPath := filepath.Join(dir, "bad.json")
	test.That(t, os.WriteFile(badPath, []byte(`{"distortion": {"model": "fisheye"}}`), 0o600), test.ShouldBeNil)
	_, err = NewLensProfileFromJSONFile(badPath)
	test.That(t, err, test.ShouldNotBeNil)
}
