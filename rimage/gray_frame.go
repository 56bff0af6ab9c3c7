// Package rimage defines the grayscale frame buffers shared between the video
// decoder and the motion estimators.
package rimage

import (
	"image"

	"github.com/disintegration/imaging"
	"github.com/pkg/errors"
)

// GrayFrame is a single-channel raster shared by whoever decoded the frame and any
// estimator items built from it. The pixel data is immutable after construction;
// concurrent reads are safe without locking.
type GrayFrame struct {
	gray          *image.Gray
	width, height int
}

// emptyFrame is the placeholder substituted when a frame is released. Shared so
// cleaned-up items hold no backing pixel array at all.
var emptyFrame = &GrayFrame{gray: image.NewGray(image.Rect(0, 0, 0, 0))}

// NewGrayFrame allocates a zeroed frame of the given dimensions.
func NewGrayFrame(width, height int) *GrayFrame {
	if width <= 0 || height <= 0 {
		return emptyFrame
	}
	return &GrayFrame{
		gray:   image.NewGray(image.Rect(0, 0, width, height)),
		width:  width,
		height: height,
	}
}

// GrayFrameFromBytes wraps caller-owned pixel data without copying. The data must be
// exactly width*height bytes with a stride equal to the width; the caller must not
// mutate it afterwards.
func GrayFrameFromBytes(data []byte, width, height int) (*GrayFrame, error) {
	if width <= 0 || height <= 0 {
		return nil, errors.Errorf("frame dimensions must be positive, got (%d, %d)", width, height)
	}
	if len(data) != width*height {
		return nil, errors.Errorf("frame data has %d bytes, expected %d for (%d, %d)", len(data), width*height, width, height)
	}
	return &GrayFrame{
		gray: &image.Gray{
			Pix:    data,
			Stride: width,
			Rect:   image.Rect(0, 0, width, height),
		},
		width:  width,
		height: height,
	}, nil
}

// MakeGray converts an arbitrary decoded frame to a grayscale raster.
func MakeGray(img image.Image) *GrayFrame {
	desaturated := imaging.Grayscale(img)
	b := desaturated.Bounds()
	out := NewGrayFrame(b.Dx(), b.Dy())
	for y := 0; y < out.height; y++ {
		for x := 0; x < out.width; x++ {
			// all three channels are equal after desaturation, take the first
			out.gray.Pix[out.gray.PixOffset(x, y)] = desaturated.Pix[desaturated.PixOffset(x, y)]
		}
	}
	return out
}

// EmptyGrayFrame returns the shared zero-size placeholder frame.
func EmptyGrayFrame() *GrayFrame {
	return emptyFrame
}

// Empty reports whether the frame holds no pixel data.
func (gf *GrayFrame) Empty() bool {
	return gf == nil || len(gf.gray.Pix) == 0
}

// Width returns the frame width in pixels.
func (gf *GrayFrame) Width() int {
	return gf.width
}

// Height returns the frame height in pixels.
func (gf *GrayFrame) Height() int {
	return gf.height
}

// Bounds returns the frame bounds.
func (gf *GrayFrame) Bounds() image.Rectangle {
	return image.Rect(0, 0, gf.width, gf.height)
}

// Bytes returns the raw pixel data, row major, one byte per pixel. Callers must
// treat the returned slice as read only.
func (gf *GrayFrame) Bytes() []byte {
	return gf.gray.Pix
}

// Gray returns the underlying image. Callers must treat it as read only.
func (gf *GrayFrame) Gray() *image.Gray {
	return gf.gray
}

// SameSize compares two frames for equal dimensions.
func SameSize(a, b *GrayFrame) bool {
	return a.width == b.width && a.height == b.height
}
