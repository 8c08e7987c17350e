package roi

import (
	"image"
	"image/color"
	"image/draw"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mamadbah2/cropwatch/internal/domain/models"
)

func solidFrame(w, h int, c color.RGBA) *models.Frame {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: c}, image.Point{}, draw.Src)
	return &models.Frame{Image: img, Seq: 7}
}

func TestComputeVerticesStayInsideBox(t *testing.T) {
	for sides := 3; sides <= 12; sides++ {
		d := models.ROIDescriptor{Width: 100, Height: 100, Sides: sides}
		poly := Compute(d, 640, 480)
		require.Len(t, poly, sides, "sides=%d", sides)

		box := BoundingBox(d, 640, 480)
		seen := make(map[image.Point]bool)
		for _, pt := range poly {
			assert.GreaterOrEqual(t, pt.X, box.Min.X)
			assert.LessOrEqual(t, pt.X, box.Max.X)
			assert.GreaterOrEqual(t, pt.Y, box.Min.Y)
			assert.LessOrEqual(t, pt.Y, box.Max.Y)
			seen[pt] = true
		}
		assert.Len(t, seen, sides, "vertices must be distinct for sides=%d", sides)
	}
}

func TestComputeUsesCentreOffsets(t *testing.T) {
	d := models.ROIDescriptor{OffsetX: -20, OffsetY: -90, Width: 40, Height: 40, Sides: 4}
	poly := Compute(d, 640, 480)

	// corner (300-20, 220-90) = (280, 130); centre (300, 150); radius 20
	require.Equal(t, Polygon{
		{X: 320, Y: 150},
		{X: 300, Y: 170},
		{X: 280, Y: 150},
		{X: 300, Y: 130},
	}, poly)
}

func TestComputeDegenerateDescriptors(t *testing.T) {
	cases := map[string]models.ROIDescriptor{
		"two sides":   {Width: 50, Height: 50, Sides: 2},
		"zero sides":  {Width: 50, Height: 50},
		"zero width":  {Height: 50, Sides: 4},
		"negative":    {Width: -10, Height: 50, Sides: 4},
		"zero height": {Width: 50, Sides: 5},
	}
	for name, d := range cases {
		t.Run(name, func(t *testing.T) {
			assert.Empty(t, Compute(d, 640, 480))
		})
	}
}

func TestEvaluatePreservesPlantOrder(t *testing.T) {
	plants := []models.Plant{
		{ID: "1", ROI: models.ROIDescriptor{OffsetX: -100, Width: 20, Height: 20, Sides: 4}},
		{ID: "2", ROI: models.ROIDescriptor{OffsetX: 100, Width: 20, Height: 20, Sides: 4}},
		{ID: "3", ROI: models.ROIDescriptor{Sides: 1}},
	}
	frame := solidFrame(640, 480, color.RGBA{A: 255})

	polys := NewEngine(DefaultOptions()).Evaluate(plants, frame)
	require.Len(t, polys, 3)
	assert.Less(t, polys[0].Bounds().Max.X, polys[1].Bounds().Min.X)
	assert.Empty(t, polys[2])
}

func TestVisualizeDrawsOnCopy(t *testing.T) {
	bg := color.RGBA{R: 10, G: 10, B: 10, A: 255}
	frame := solidFrame(64, 64, bg)
	original := append([]uint8(nil), frame.Image.Pix...)

	engine := NewEngine(Options{Color: color.RGBA{R: 255, A: 255}, Thickness: 1})
	poly := Polygon{{X: 10, Y: 10}, {X: 50, Y: 10}, {X: 50, Y: 50}, {X: 10, Y: 50}}

	out, err := engine.Visualize(frame, []Polygon{poly})
	require.NoError(t, err)

	assert.Equal(t, original, frame.Image.Pix, "source frame was mutated")
	assert.Equal(t, frame.Seq, out.Seq)
	assert.Equal(t, color.RGBA{R: 255, A: 255}, out.Image.RGBAAt(30, 10))
	assert.Equal(t, color.RGBA{R: 255, A: 255}, out.Image.RGBAAt(10, 30))
	assert.Equal(t, bg, out.Image.RGBAAt(30, 30))
}

func TestVisualizeClipsOutOfFrameOutlines(t *testing.T) {
	frame := solidFrame(16, 16, color.RGBA{A: 255})
	poly := Polygon{{X: -20, Y: -20}, {X: 40, Y: -20}, {X: 40, Y: 40}}

	_, err := NewEngine(DefaultOptions()).Visualize(frame, []Polygon{poly})
	assert.NoError(t, err)
}

func TestVisualizeRejectsInvalidFrames(t *testing.T) {
	engine := NewEngine(DefaultOptions())

	_, err := engine.Visualize(nil, nil)
	assert.ErrorIs(t, err, ErrInvalidFrame)

	_, err = engine.Visualize(&models.Frame{}, nil)
	assert.ErrorIs(t, err, ErrInvalidFrame)

	_, err = engine.EvaluateAndVisualize(nil, &models.Frame{Image: image.NewRGBA(image.Rectangle{})})
	assert.ErrorIs(t, err, ErrInvalidFrame)
}

func TestEvaluateAndVisualize(t *testing.T) {
	frame := solidFrame(640, 480, color.RGBA{A: 255})
	plants := []models.Plant{{ID: "1", ROI: models.ROIDescriptor{Width: 100, Height: 100, Sides: 6}}}

	out, err := NewEngine(DefaultOptions()).EvaluateAndVisualize(plants, frame)
	require.NoError(t, err)
	// vertex 0 of a hexagon centred at (320, 240) with radius 50
	assert.Equal(t, DefaultOptions().Color, out.Image.RGBAAt(370, 240))
}
