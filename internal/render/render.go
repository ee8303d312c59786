// Package render rasterises a window of signed 8-bit samples as a connected
// polyline, centred vertically, one segment per pair of consecutive samples.
package render

import (
	"fmt"
	"image"
	"image/color"

	colorful "github.com/lucasb-eyer/go-colorful"
	"golang.org/x/image/draw"
)

var (
	Background = mustParseHex("#000000")
	Foreground = mustParseHex("#00ff00")
)

func mustParseHex(s string) color.RGBA {
	c, err := colorful.Hex(s)
	if err != nil {
		panic("mustParseHex: " + err.Error())
	}
	r, g, b := c.RGB255()
	return color.RGBA{R: r, G: g, B: b, A: 0xff}
}

// Trace draws windows of a fixed sample count. The horizontal scale is
// computed once in NewTrace and never changes; a different window length
// needs a new Trace.
type Trace struct {
	width  int
	height int
	window int
	scale  float64
}

// NewTrace returns a Trace mapping window samples across width columns.
func NewTrace(width, height, window int) *Trace {
	if window < 1 {
		window = 1
	}
	return &Trace{
		width:  width,
		height: height,
		window: window,
		scale:  float64(width) / float64(window),
	}
}

func (t *Trace) Window() int    { return t.window }
func (t *Trace) Scale() float64 { return t.scale }

// Columns is the count of leading columns one full window rewrites.
func (t *Trace) Columns() int {
	if t.width < 1 {
		return 0
	}
	return t.column(t.window-1) + 1
}

func (t *Trace) column(i int) int {
	x := int(float64(i) * t.scale)
	if x >= t.width {
		x = t.width - 1
	}
	return x
}

// row maps a sample to a pixel row: silence at the centre, positive upward.
func (t *Trace) row(v int8) int {
	y := t.height/2 - int(v)
	switch {
	case y < 0:
		return 0
	case y >= t.height:
		return t.height - 1
	}
	return y
}

// Draw clears the columns covered by the window and draws samples on dst.
// Samples beyond the window length are ignored.
func (t *Trace) Draw(dst *image.RGBA, samples []int8) {
	cols := image.Rect(0, 0, t.Columns(), t.height).Add(dst.Rect.Min)
	draw.Draw(dst, cols, image.NewUniform(Background), image.Point{}, draw.Src)

	n := min(len(samples), t.window)
	if n == 0 || t.height < 1 {
		return
	}

	origin := dst.Rect.Min
	px, py := t.column(0), t.row(samples[0])
	dst.SetRGBA(origin.X+px, origin.Y+py, Foreground)
	for i := 1; i < n; i++ {
		x, y := t.column(i), t.row(samples[i])
		line(dst, origin.X+px, origin.Y+py, origin.X+x, origin.Y+y, Foreground)
		px, py = x, y
	}
}

func (t *Trace) String() string {
	return fmt.Sprintf("trace %dx%d window=%d scale=%.4f", t.width, t.height, t.window, t.scale)
}

// NewCanvas returns a width x height raster cleared to the background colour.
func NewCanvas(width, height int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(img, img.Rect, image.NewUniform(Background), image.Point{}, draw.Src)
	return img
}

// Render draws samples onto a fresh canvas. It is deterministic: equal inputs
// give byte-identical rasters.
func Render(samples []int8, width, height int) *image.RGBA {
	canvas := NewCanvas(width, height)
	NewTrace(width, height, len(samples)).Draw(canvas, samples)
	return canvas
}

// line is Bresenham's algorithm, no anti-aliasing.
func line(dst *image.RGBA, x0, y0, x1, y1 int, c color.RGBA) {
	dx := abs(x1 - x0)
	dy := -abs(y1 - y0)
	sx, sy := 1, 1
	if x0 > x1 {
		sx = -1
	}
	if y0 > y1 {
		sy = -1
	}
	e := dx + dy
	for {
		dst.SetRGBA(x0, y0, c)
		if x0 == x1 && y0 == y1 {
			return
		}
		e2 := 2 * e
		if e2 >= dy {
			e += dy
			x0 += sx
		}
		if e2 <= dx {
			e += dx
			y0 += sy
		}
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
