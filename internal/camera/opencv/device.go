// Package opencv captures frames from a local video device through OpenCV.
package opencv

import (
	"context"
	"fmt"
	"image"
	"image/draw"
	"sync"

	"gocv.io/x/gocv"

	"github.com/mamadbah2/cropwatch/internal/camera"
)

var _ camera.Device = (*Device)(nil)

// Device reads BGR frames from a numbered capture device.
type Device struct {
	index int

	mu      sync.Mutex
	capture *gocv.VideoCapture
	mat     gocv.Mat
}

// NewDevice prepares a device; nothing is opened until Open.
func NewDevice(index int) *Device {
	return &Device{index: index}
}

func (d *Device) Open(context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.capture != nil {
		return nil
	}

	vc, err := gocv.OpenVideoCapture(d.index)
	if err != nil {
		return fmt.Errorf("open video capture %d: %w", d.index, err)
	}
	if !vc.IsOpened() {
		_ = vc.Close()
		return fmt.Errorf("video capture %d is not opened", d.index)
	}

	d.capture = vc
	d.mat = gocv.NewMat()
	return nil
}

func (d *Device) Read() (*image.RGBA, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.capture == nil {
		return nil, camera.ErrDeviceClosed
	}
	if ok := d.capture.Read(&d.mat); !ok {
		return nil, fmt.Errorf("read from video capture %d failed", d.index)
	}
	if d.mat.Empty() {
		return nil, camera.ErrEmptyFrame
	}

	img, err := d.mat.ToImage()
	if err != nil {
		return nil, fmt.Errorf("convert frame: %w", err)
	}
	return toRGBA(img), nil
}

func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.capture == nil {
		return nil
	}
	err := d.capture.Close()
	_ = d.mat.Close()
	d.capture = nil
	return err
}

func toRGBA(img image.Image) *image.RGBA {
	if rgba, ok := img.(*image.RGBA); ok {
		return rgba
	}
	dst := image.NewRGBA(img.Bounds())
	draw.Draw(dst, dst.Bounds(), img, img.Bounds().Min, draw.Src)
	return dst
}
