// Package roi turns configured plant regions into polygons and draws them on frames.
package roi

import (
	"errors"
	"image"
	"image/color"
	"math"

	"github.com/mamadbah2/cropwatch/internal/domain/models"
)

// ErrInvalidFrame is returned when a frame carries no usable pixel buffer.
var ErrInvalidFrame = errors.New("frame is not a valid 2-D pixel buffer")

// Polygon is a closed polygon; the last vertex connects back to the first.
type Polygon []image.Point

// Bounds returns the smallest rectangle containing every vertex (inclusive max).
func (p Polygon) Bounds() image.Rectangle {
	if len(p) == 0 {
		return image.Rectangle{}
	}
	r := image.Rectangle{Min: p[0], Max: p[0]}
	for _, pt := range p[1:] {
		r.Min.X = min(r.Min.X, pt.X)
		r.Min.Y = min(r.Min.Y, pt.Y)
		r.Max.X = max(r.Max.X, pt.X)
		r.Max.Y = max(r.Max.Y, pt.Y)
	}
	return r
}

// BoundingBox returns the box a descriptor occupies in a frame of the given size.
// The polygon produced by Compute lies inside it.
func BoundingBox(d models.ROIDescriptor, frameWidth, frameHeight int) image.Rectangle {
	x1 := (frameWidth-d.Width)/2 + d.OffsetX
	y1 := (frameHeight-d.Height)/2 + d.OffsetY
	return image.Rect(x1, y1, x1+d.Width, y1+d.Height)
}

// Compute derives the polygon for one descriptor. The centre sits in the middle of
// the bounding box, the radius is half the smaller box side and vertex i lies at
// angle 2πi/sides. Descriptors with fewer than three sides or no size yield nil.
func Compute(d models.ROIDescriptor, frameWidth, frameHeight int) Polygon {
	if d.Sides < 3 || d.Width <= 0 || d.Height <= 0 {
		return nil
	}

	box := BoundingBox(d, frameWidth, frameHeight)
	cx := box.Min.X + d.Width/2
	cy := box.Min.Y + d.Height/2
	radius := float64(min(d.Width, d.Height) / 2)
	step := 2 * math.Pi / float64(d.Sides)

	poly := make(Polygon, d.Sides)
	for i := range poly {
		angle := step * float64(i)
		poly[i] = image.Point{
			X: cx + int(radius*math.Cos(angle)),
			Y: cy + int(radius*math.Sin(angle)),
		}
	}
	return poly
}

// Options parameterise overlay rendering.
type Options struct {
	Color     color.RGBA
	Thickness int
}

// DefaultOptions draws 2px green outlines.
func DefaultOptions() Options {
	return Options{Color: color.RGBA{G: 255, A: 255}, Thickness: 2}
}

// Engine evaluates plant regions and renders overlays.
type Engine struct {
	opts Options
}

// NewEngine builds an engine; a non-positive thickness falls back to the default.
func NewEngine(opts Options) *Engine {
	if opts.Thickness <= 0 {
		opts.Thickness = DefaultOptions().Thickness
	}
	if opts.Color == (color.RGBA{}) {
		opts.Color = DefaultOptions().Color
	}
	return &Engine{opts: opts}
}

// Evaluate returns one polygon per plant, in plant order.
func (e *Engine) Evaluate(plants []models.Plant, frame *models.Frame) []Polygon {
	w, h := frame.Width(), frame.Height()
	out := make([]Polygon, len(plants))
	for i, p := range plants {
		out[i] = Compute(p.ROI, w, h)
	}
	return out
}

// Visualize draws every polygon outline onto a copy of the frame.
// The input frame is left untouched.
func (e *Engine) Visualize(frame *models.Frame, polygons []Polygon) (*models.Frame, error) {
	if frame == nil || frame.Image == nil || frame.Image.Bounds().Empty() {
		return nil, ErrInvalidFrame
	}

	canvas := frame.CloneImage()
	for _, poly := range polygons {
		if len(poly) < 2 {
			continue
		}
		for i := range poly {
			drawLine(canvas, poly[i], poly[(i+1)%len(poly)], e.opts.Color, e.opts.Thickness)
		}
	}

	return &models.Frame{Image: canvas, Seq: frame.Seq, CapturedAt: frame.CapturedAt}, nil
}

// EvaluateAndVisualize renders the plants' regions on a copy of the frame.
func (e *Engine) EvaluateAndVisualize(plants []models.Plant, frame *models.Frame) (*models.Frame, error) {
	if frame == nil || frame.Image == nil {
		return nil, ErrInvalidFrame
	}
	return e.Visualize(frame, e.Evaluate(plants, frame))
}
