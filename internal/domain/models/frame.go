package models

import (
	"image"
	"image/draw"
	"time"
)

// Frame is one captured camera image.
//
// Frames are shared by pointer between the capture goroutine and any number of
// readers, so Image must not be modified after the frame is published.
// Renderers work on a copy (see CloneImage).
type Frame struct {
	Image      *image.RGBA
	Seq        uint64
	CapturedAt time.Time
}

// Width of the frame in pixels.
func (f *Frame) Width() int {
	if f == nil || f.Image == nil {
		return 0
	}
	return f.Image.Bounds().Dx()
}

// Height of the frame in pixels.
func (f *Frame) Height() int {
	if f == nil || f.Image == nil {
		return 0
	}
	return f.Image.Bounds().Dy()
}

// CloneImage returns a private copy of the pixel buffer.
func (f *Frame) CloneImage() *image.RGBA {
	if f == nil || f.Image == nil {
		return nil
	}
	dst := image.NewRGBA(f.Image.Bounds())
	draw.Draw(dst, dst.Bounds(), f.Image, f.Image.Bounds().Min, draw.Src)
	return dst
}
