package analytics

import (
	"image"
	"math"

	"golang.org/x/image/vector"

	"github.com/mamadbah2/cropwatch/internal/domain/models"
	"github.com/mamadbah2/cropwatch/internal/roi"
)

// GreennessName is the registry key of the greenness analytic.
const GreennessName = "Greenness ratio"

// coverage at or above one half marks a pixel as inside the region
const insideAlpha = 0x7f

// HSVBand is an inclusive range on the 8-bit HSV scale (hue 0-179).
type HSVBand struct {
	HueMin, HueMax uint8
	SatMin, SatMax uint8
	ValMin, ValMax uint8
}

// DefaultGreenBand matches foliage under indoor lighting.
func DefaultGreenBand() HSVBand {
	return HSVBand{HueMin: 36, HueMax: 86, SatMin: 25, SatMax: 255, ValMin: 25, ValMax: 255}
}

// Contains reports whether an HSV triple falls inside the band.
func (b HSVBand) Contains(h, s, v uint8) bool {
	return h >= b.HueMin && h <= b.HueMax &&
		s >= b.SatMin && s <= b.SatMax &&
		v >= b.ValMin && v <= b.ValMax
}

// Greenness is the fraction of region pixels whose colour falls in the green band.
type Greenness struct {
	band HSVBand
}

func NewGreenness(band HSVBand) *Greenness {
	return &Greenness{band: band}
}

func (g *Greenness) Name() string { return GreennessName }

func (g *Greenness) Description() string {
	return "Greenness ratio of pixels in the ROI with green vs. without"
}

func (g *Greenness) Evaluate(frame *models.Frame, rois []roi.Polygon) ([]float64, error) {
	if frame == nil || frame.Image == nil || frame.Image.Bounds().Empty() {
		return nil, roi.ErrInvalidFrame
	}
	out := make([]float64, len(rois))
	for i, poly := range rois {
		out[i] = g.ratio(frame.Image, poly)
	}
	return out, nil
}

func (g *Greenness) ratio(img *image.RGBA, poly roi.Polygon) float64 {
	if len(poly) < 3 {
		return 0
	}

	b := poly.Bounds()
	area := image.Rect(b.Min.X, b.Min.Y, b.Max.X+1, b.Max.Y+1).Intersect(img.Bounds())
	if area.Empty() {
		return 0
	}

	mask := rasterize(poly, area)

	var inside, green int
	for y := area.Min.Y; y < area.Max.Y; y++ {
		row := mask.Pix[(y-area.Min.Y)*mask.Stride:]
		for x := area.Min.X; x < area.Max.X; x++ {
			if row[x-area.Min.X] < insideAlpha {
				continue
			}
			inside++
			c := img.RGBAAt(x, y)
			if g.band.Contains(RGBToHSV(c.R, c.G, c.B)) {
				green++
			}
		}
	}
	if inside == 0 {
		return 0
	}
	return float64(green) / float64(inside)
}

// rasterize fills the polygon into an alpha mask covering area. Vertices are
// treated as pixel centres.
func rasterize(poly roi.Polygon, area image.Rectangle) *image.Alpha {
	w, h := area.Dx(), area.Dy()
	z := vector.NewRasterizer(w, h)

	at := func(p image.Point) (float32, float32) {
		return float32(p.X-area.Min.X) + 0.5, float32(p.Y-area.Min.Y) + 0.5
	}
	z.MoveTo(at(poly[0]))
	for _, p := range poly[1:] {
		z.LineTo(at(p))
	}
	z.ClosePath()

	mask := image.NewAlpha(image.Rect(0, 0, w, h))
	z.Draw(mask, mask.Bounds(), image.Opaque, image.Point{})
	return mask
}

// RGBToHSV converts to 8-bit HSV the way OpenCV does: hue is halved to fit
// 0-179, saturation and value span 0-255.
func RGBToHSV(r, g, b uint8) (h, s, v uint8) {
	maxC := max(r, g, b)
	minC := min(r, g, b)
	v = maxC
	if maxC == 0 {
		return 0, 0, 0
	}

	diff := float64(maxC) - float64(minC)
	s = uint8(math.Round(255 * diff / float64(maxC)))
	if diff == 0 {
		return 0, s, v
	}

	var deg float64
	switch maxC {
	case r:
		deg = 60 * (float64(g) - float64(b)) / diff
	case g:
		deg = 120 + 60*(float64(b)-float64(r))/diff
	default:
		deg = 240 + 60*(float64(r)-float64(g))/diff
	}
	if deg < 0 {
		deg += 360
	}

	hue := math.Round(deg / 2)
	if hue >= 180 {
		hue -= 180
	}
	return uint8(hue), s, v
}
