package camera

import (
	"context"
	"errors"
	"image"
	"image/color"
	"image/draw"
	"sync"
	"time"
)

// ErrDeviceClosed is returned when reading from a device that is not open.
var ErrDeviceClosed = errors.New("device closed")

// PatternDevice generates synthetic frames: a solid background with an optional
// filled rectangle. It is used by the synthetic camera driver and in tests.
type PatternDevice struct {
	Width      int
	Height     int
	Background color.RGBA
	// Patch, when non-empty, is filled with PatchColor on every frame.
	Patch      image.Rectangle
	PatchColor color.RGBA
	// Interval throttles Read to roughly one frame per interval.
	Interval time.Duration

	mu     sync.Mutex
	open   bool
	opens  int
	closes int
}

// NewPatternDevice builds a synthetic device producing uniform frames.
func NewPatternDevice(width, height int, background color.RGBA) *PatternDevice {
	return &PatternDevice{
		Width:      width,
		Height:     height,
		Background: background,
		Interval:   33 * time.Millisecond,
	}
}

func (d *PatternDevice) Open(context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.Width <= 0 || d.Height <= 0 {
		return errors.New("invalid synthetic frame size")
	}
	d.open = true
	d.opens++
	return nil
}

func (d *PatternDevice) Read() (*image.RGBA, error) {
	d.mu.Lock()
	open := d.open
	d.mu.Unlock()
	if !open {
		return nil, ErrDeviceClosed
	}
	if d.Interval > 0 {
		time.Sleep(d.Interval)
	}

	img := image.NewRGBA(image.Rect(0, 0, d.Width, d.Height))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: d.Background}, image.Point{}, draw.Src)
	if !d.Patch.Empty() {
		draw.Draw(img, d.Patch, &image.Uniform{C: d.PatchColor}, image.Point{}, draw.Src)
	}
	return img, nil
}

func (d *PatternDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.open = false
	d.closes++
	return nil
}

// Closes reports how many times the device was released.
func (d *PatternDevice) Closes() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closes
}
