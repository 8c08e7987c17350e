package analytics

import (
	"context"
	"errors"
	"image"
	"image/color"
	"image/draw"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mamadbah2/cropwatch/internal/domain/models"
	"github.com/mamadbah2/cropwatch/internal/roi"
)

var (
	leaf = color.RGBA{R: 40, G: 160, B: 40, A: 255}
	soil = color.RGBA{R: 110, G: 70, B: 40, A: 255}
)

// halfGreenFrame paints the left half of the frame green and the right half brown.
func halfGreenFrame(w, h int) *models.Frame {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: soil}, image.Point{}, draw.Src)
	draw.Draw(img, image.Rect(0, 0, w/2, h), &image.Uniform{C: leaf}, image.Point{}, draw.Src)
	return &models.Frame{Image: img}
}

func square(x0, y0, x1, y1 int) roi.Polygon {
	return roi.Polygon{{X: x0, Y: y0}, {X: x1, Y: y0}, {X: x1, Y: y1}, {X: x0, Y: y1}}
}

func TestRGBToHSV(t *testing.T) {
	cases := []struct {
		name    string
		r, g, b uint8
		h, s, v uint8
	}{
		{"black", 0, 0, 0, 0, 0, 0},
		{"grey", 128, 128, 128, 0, 0, 128},
		{"red", 255, 0, 0, 0, 255, 255},
		{"green", 0, 255, 0, 60, 255, 255},
		{"blue", 0, 0, 255, 120, 255, 255},
		{"yellow", 255, 255, 0, 30, 255, 255},
		{"leaf", 40, 160, 40, 60, 191, 160},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h, s, v := RGBToHSV(tc.r, tc.g, tc.b)
			assert.Equal(t, []uint8{tc.h, tc.s, tc.v}, []uint8{h, s, v})
		})
	}
}

func TestGreenBandBoundsAreInclusive(t *testing.T) {
	band := DefaultGreenBand()
	assert.True(t, band.Contains(36, 25, 25))
	assert.True(t, band.Contains(86, 255, 255))
	assert.False(t, band.Contains(35, 200, 200))
	assert.False(t, band.Contains(87, 200, 200))
	assert.False(t, band.Contains(60, 24, 200))
	assert.False(t, band.Contains(60, 200, 24))
}

func TestGreennessRatio(t *testing.T) {
	frame := halfGreenFrame(200, 100)
	g := NewGreenness(DefaultGreenBand())

	values, err := g.Evaluate(frame, []roi.Polygon{
		square(10, 10, 60, 60),     // all leaf
		square(130, 10, 180, 60),   // all soil
		square(50, 10, 149, 60),    // straddles the border
		nil,                        // no region
		square(500, 500, 550, 550), // off frame
	})
	require.NoError(t, err)
	require.Len(t, values, 5)

	assert.Equal(t, 1.0, values[0])
	assert.Equal(t, 0.0, values[1])
	assert.InDelta(t, 0.5, values[2], 0.03)
	assert.Equal(t, 0.0, values[3])
	assert.Equal(t, 0.0, values[4])
}

func TestGreennessValuesAreRatios(t *testing.T) {
	frame := halfGreenFrame(320, 240)
	engine := roi.NewEngine(roi.DefaultOptions())
	plants := []models.Plant{
		{ROI: models.ROIDescriptor{OffsetX: -80, Width: 60, Height: 60, Sides: 4}},
		{ROI: models.ROIDescriptor{Width: 90, Height: 90, Sides: 7}},
		{ROI: models.ROIDescriptor{OffsetX: 90, Width: 40, Height: 40, Sides: 12}},
	}

	values, err := NewGreenness(DefaultGreenBand()).Evaluate(frame, engine.Evaluate(plants, frame))
	require.NoError(t, err)
	for _, v := range values {
		assert.GreaterOrEqual(t, v, 0.0)
		assert.LessOrEqual(t, v, 1.0)
	}
	assert.Equal(t, 1.0, values[0])
	assert.Equal(t, 0.0, values[2])
}

func TestGreennessRejectsMissingFrame(t *testing.T) {
	_, err := NewGreenness(DefaultGreenBand()).Evaluate(nil, []roi.Polygon{square(0, 0, 5, 5)})
	assert.ErrorIs(t, err, roi.ErrInvalidFrame)
}

type stubAnalytic struct {
	name   string
	values []float64
	err    error
}

func (s stubAnalytic) Name() string        { return s.name }
func (s stubAnalytic) Description() string { return "stub" }
func (s stubAnalytic) Evaluate(*models.Frame, []roi.Polygon) ([]float64, error) {
	return s.values, s.err
}

func TestRegistryRejectsDuplicateNames(t *testing.T) {
	reg, err := NewRegistry(NewGreenness(DefaultGreenBand()))
	require.NoError(t, err)

	err = reg.Register(NewGreenness(DefaultGreenBand()))
	assert.ErrorIs(t, err, ErrDuplicateAnalytic)
	assert.Equal(t, []string{GreennessName}, reg.Names())
}

func TestRegistryRunKeysResultsByName(t *testing.T) {
	reg, err := NewRegistry(
		NewGreenness(DefaultGreenBand()),
		stubAnalytic{name: "height", values: []float64{3, 4}},
	)
	require.NoError(t, err)

	frame := halfGreenFrame(200, 100)
	rois := []roi.Polygon{square(10, 10, 60, 60), square(130, 10, 180, 60)}

	results, err := reg.Run(context.Background(), frame, rois)
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 0}, results[GreennessName])
	assert.Equal(t, []float64{3, 4}, results["height"])
}

func TestRegistryRunPropagatesFailures(t *testing.T) {
	boom := errors.New("boom")
	reg, err := NewRegistry(stubAnalytic{name: "broken", err: boom})
	require.NoError(t, err)

	_, err = reg.Run(context.Background(), halfGreenFrame(10, 10), []roi.Polygon{square(0, 0, 5, 5)})
	assert.ErrorIs(t, err, boom)
}

func TestRegistryRunChecksResultLength(t *testing.T) {
	reg, err := NewRegistry(stubAnalytic{name: "short", values: []float64{1}})
	require.NoError(t, err)

	_, err = reg.Run(context.Background(), halfGreenFrame(10, 10), []roi.Polygon{square(0, 0, 5, 5), square(1, 1, 4, 4)})
	assert.ErrorIs(t, err, ErrResultLength)
}
