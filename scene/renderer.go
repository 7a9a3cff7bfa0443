package scene

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"math"

	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// Overlay colors shared by the raster and vector renderers
var (
	SectionColor = color.RGBA{255, 0, 0, 255}
	ROIColor     = color.RGBA{0, 255, 255, 255}
	BoxColor     = color.RGBA{0, 0, 255, 255}
	TitleColor   = color.RGBA{0, 0, 0, 255}
)

const titleHeight = 20

// Title returns the plot title for a geometry.
func Title(g *Geometry) string {
	if g.Ribbon > 0 {
		return fmt.Sprintf("Scene %d Ribbon %d", g.Scene, g.Ribbon)
	}
	return fmt.Sprintf("Scene %d", g.Scene)
}

// PreviewRenderer draws a downsampled scene image with its annotations.
type PreviewRenderer struct {
	Downsample int
	Background color.RGBA
}

// NewPreviewRenderer creates a renderer with the default export downsampling.
func NewPreviewRenderer() *PreviewRenderer {
	return &PreviewRenderer{
		Downsample: DefaultDownsample,
		Background: color.RGBA{240, 240, 240, 255},
	}
}

// Render draws img (may be nil for an outline-only plot) with section polygons
// in red, ROIs in cyan and ribbon boxes in blue under a title bar.
func (r *PreviewRenderer) Render(img image.Image, g *Geometry) (*image.RGBA, error) {
	factor := r.Downsample
	if factor < 1 {
		factor = 1
	}

	w := int(math.Ceil(float64(g.SceneBox.Size.X) / float64(factor)))
	h := int(math.Ceil(float64(g.SceneBox.Size.Y) / float64(factor)))
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}

	out := image.NewRGBA(image.Rect(0, 0, w, h+titleHeight))
	draw.Draw(out, out.Bounds(), image.NewUniform(r.Background), image.Point{}, draw.Src)

	if img != nil {
		small, err := BlockReduce(img, factor)
		if err != nil {
			return nil, err
		}
		sb := small.Bounds()
		draw.Draw(out, image.Rect(0, titleHeight, sb.Dx(), titleHeight+sb.Dy()), small, sb.Min, draw.Src)
	}

	toImage := func(p Point) (int, int) {
		return int(math.Round(p.X / float64(factor))), int(math.Round(p.Y/float64(factor))) + titleHeight
	}

	for _, b := range g.Boxes {
		x0, y0 := toImage(Point{X: float64(b.Corner.X), Y: float64(b.Corner.Y)})
		end := b.Max()
		x1, y1 := toImage(Point{X: float64(end.X), Y: float64(end.Y)})
		drawRect(out, x0, y0, x1, y1, BoxColor)
	}
	for _, p := range g.Sections {
		drawPolygon(out, p.Points, toImage, SectionColor)
	}
	for _, p := range g.ROIs {
		drawPolygon(out, p.Points, toImage, ROIColor)
	}

	drawText(out, 4, 14, Title(g), TitleColor)
	return out, nil
}

// WritePNG renders and encodes the preview as PNG.
func (r *PreviewRenderer) WritePNG(w io.Writer, img image.Image, g *Geometry) error {
	out, err := r.Render(img, g)
	if err != nil {
		return err
	}
	return png.Encode(w, out)
}

func drawPolygon(img *image.RGBA, pts []Point, toImage func(Point) (int, int), c color.RGBA) {
	for i := range pts {
		x0, y0 := toImage(pts[i])
		x1, y1 := toImage(pts[(i+1)%len(pts)])
		drawLine(img, x0, y0, x1, y1, c)
	}
}

func drawRect(img *image.RGBA, x0, y0, x1, y1 int, c color.RGBA) {
	drawLine(img, x0, y0, x1, y0, c)
	drawLine(img, x1, y0, x1, y1, c)
	drawLine(img, x1, y1, x0, y1, c)
	drawLine(img, x0, y1, x0, y0, c)
}

// drawLine draws a Bresenham line; pixels outside the image are skipped.
func drawLine(img *image.RGBA, x0, y0, x1, y1 int, c color.RGBA) {
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
	b := img.Bounds()
	for {
		if (image.Point{X: x0, Y: y0}).In(b) {
			img.SetRGBA(x0, y0, c)
		}
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

// drawText renders text with the built-in 7x13 face; y is the baseline.
func drawText(img *image.RGBA, x, y int, text string, c color.RGBA) {
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(c),
		Face: basicfont.Face7x13,
		Dot:  fixed.Point26_6{X: fixed.I(x), Y: fixed.I(y)},
	}
	d.DrawString(text)
}
