package rimage

import (
	"image"
	"image/color"
	"testing"

	"go.viam.com/test"
)

func TestGrayFrameFromBytes(t *testing.T) {
	data := make([]byte, 4*3)
	for i := range data {
		data[i] = byte(i)
	}
	gf, err := GrayFrameFromBytes(data, 4, 3)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, gf.Width(), test.ShouldEqual, 4)
	test.That(t, gf.Height(), test.ShouldEqual, 3)
	test.That(t, gf.Empty(), test.ShouldBeFalse)
	// zero copy: the frame views the caller's bytes
	test.That(t, &gf.Bytes()[0], test.ShouldEqual, &data[0])

	_, err = GrayFrameFromBytes(data, 5, 3)
	test.That(t, err, test.ShouldNotBeNil)
	_, err = GrayFrameFromBytes(data, 0, 0)
	test.That(t, err, test.ShouldNotBeNil)
}

func TestEmptyGrayFrame(t *testing.T) {
	test.That(t, EmptyGrayFrame().Empty(), test.ShouldBeTrue)
	test.That(t, NewGrayFrame(0, 10).Empty(), test.ShouldBeTrue)
	test.That(t, NewGrayFrame(2, 2).Empty(), test.ShouldBeFalse)
}

func TestMakeGray(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 8, 6))
	for y := 0; y < 6; y++ {
		for x := 0; x < 8; x++ {
			src.Set(x, y, color.RGBA{uint8(x * 30), uint8(x * 30), uint8(x * 30), 255})
		}
	}
	gf := MakeGray(src)
	test.That(t, gf.Width(), test.ShouldEqual, 8)
	test.That(t, gf.Height(), test.ShouldEqual, 6)
	// gray input stays gray
	test.That(t, int(gf.Bytes()[1]), test.ShouldAlmostEqual, 30, 2)
	test.That(t, SameSize(gf, NewGrayFrame(8, 6)), test.ShouldBeTrue)
	test.That(t, SameSize(gf, NewGrayFrame(6, 8)), test.ShouldBeFalse)
}
