package transform

import (
	"os"
	"path/filepath"
	"testing"

	"go.viam.com/test"
)

func TestPinholeCheckValid(t *testing.T) {
	var nilParams *PinholeCameraIntrinsics
	test.That(t, nilParams.CheckValid(), test.ShouldNotBeNil)

	params := &PinholeCameraIntrinsics{Width: 640, Height: 480, Fx: 500, Fy: 500, Ppx: 320, Ppy: 240}
	test.That(t, params.CheckValid(), test.ShouldBeNil)

	for _, bad := range []PinholeCameraIntrinsics{
		{Width: 0, Height: 480, Fx: 500, Fy: 500},
		{Width: 640, Height: 480, Fx: 0, Fy: 500},
		{Width: 640, Height: 480, Fx: 500, Fy: -1},
		{Width: 640, Height: 480, Fx: 500, Fy: 500, Ppx: -2},
		{Width: 640, Height: 480, Fx: 500, Fy: 500, Ppy: -2},
	} {
		bad := bad
		test.That(t, bad.CheckValid(), test.ShouldNotBeNil)
	}
}

func TestGetCameraMatrix(t *testing.T) {
	params := &PinholeCameraIntrinsics{Width: 640, Height: 480, Fx: 500, Fy: 510, Ppx: 320, Ppy: 240}
	k := params.GetCameraMatrix()
	test.That(t, k.At(0, 0), test.ShouldEqual, 500)
	test.That(t, k.At(1, 1), test.ShouldEqual, 510)
	test.That(t, k.At(0, 2), test.ShouldEqual, 320)
	test.That(t, k.At(1, 2), test.ShouldEqual, 240)
	test.That(t, k.At(2, 2), test.ShouldEqual, 1)
	test.That(t, k.At(1, 0), test.ShouldEqual, 0)
}

func TestNewPinholeCameraIntrinsicsFromJSONFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "intrinsics.json")
	content := `{"width_px": 1280, "height_px": 720, "fx": 900.5, "fy": 900.5, "ppx": 640, "ppy": 360}`
	test.That(t, os.WriteFile(path, []byte(content), 0o600), test.ShouldBeNil)

	params, err := NewPinholeCameraIntrinsicsFromJSONFile(path)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, params.Width, test.ShouldEqual, 1280)
	test.That(t, params.Fx, test.ShouldEqual, 900.5)

	_, err = NewPinholeCameraIntrinsicsFromJSONFile(filepath.Join(dir, "nope.json"))
	test.That(t, err, test.ShouldNotBeNil)
}
