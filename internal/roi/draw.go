package roi

import (
	"image"
	"image/color"
)

// drawLine paints a segment with Bresenham's algorithm, stamping a square brush
// of the given thickness at every step. Pixels outside the canvas are skipped.
func drawLine(canvas *image.RGBA, from, to image.Point, c color.RGBA, thickness int) {
	dx := abs(to.X - from.X)
	dy := -abs(to.Y - from.Y)
	sx, sy := 1, 1
	if from.X > to.X {
		sx = -1
	}
	if from.Y > to.Y {
		sy = -1
	}

	x, y := from.X, from.Y
	e := dx + dy
	for {
		stamp(canvas, x, y, c, thickness)
		if x == to.X && y == to.Y {
			return
		}
		e2 := 2 * e
		if e2 >= dy {
			e += dy
			x += sx
		}
		if e2 <= dx {
			e += dx
			y += sy
		}
	}
}

func stamp(canvas *image.RGBA, x, y int, c color.RGBA, thickness int) {
	half := (thickness - 1) / 2
	bounds := canvas.Bounds()
	for py := y - half; py < y-half+thickness; py++ {
		for px := x - half; px < x-half+thickness; px++ {
			if (image.Point{X: px, Y: py}).In(bounds) {
				canvas.SetRGBA(px, py, c)
			}
		}
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
