package scene

import (
	"image/color"
	"image/png"
	"io"

	"github.com/tdewolff/canvas"
	"github.com/tdewolff/canvas/renderers/rasterizer"
	"github.com/tdewolff/canvas/renderers/svg"
)

// VectorRenderer draws scene annotations as vector graphics in scene pixel units.
type VectorRenderer struct {
	Padding     float64           // Padding in scene pixels
	StrokeWidth float64           // Outline width in scene pixels
	Resolution  canvas.Resolution // Resolution for PNG output
}

// NewVectorRenderer creates a vector renderer with default settings
func NewVectorRenderer() *VectorRenderer {
	return &VectorRenderer{
		Padding:     10,
		StrokeWidth: 2,
		Resolution:  canvas.DPI(25.4), // one output pixel per scene pixel
	}
}

// canvasRenderer is implemented by both the svg and rasterizer renderers
type canvasRenderer interface {
	RenderPath(path *canvas.Path, style canvas.Style, m canvas.Matrix)
}

func (r *VectorRenderer) size(g *Geometry) (float64, float64) {
	return float64(g.SceneBox.Size.X) + 2*r.Padding, float64(g.SceneBox.Size.Y) + 2*r.Padding
}

// RenderToSVG writes the overlay as an SVG to the provided writer
func (r *VectorRenderer) RenderToSVG(w io.Writer, g *Geometry) error {
	width, height := r.size(g)
	svgRenderer := svg.New(w, width, height, nil)
	r.renderToCanvas(svgRenderer, g, height)
	return svgRenderer.Close()
}

// RenderToPNG writes the overlay as a PNG to the provided writer
func (r *VectorRenderer) RenderToPNG(w io.Writer, g *Geometry) error {
	width, height := r.size(g)
	rast := rasterizer.New(width, height, r.Resolution, canvas.DefaultColorSpace)
	r.renderToCanvas(rast, g, height)
	return png.Encode(w, rast)
}

// renderToCanvas draws the scene outline, ribbon boxes and polygons. Canvas
// coordinates grow upwards, so rows are flipped against height.
func (r *VectorRenderer) renderToCanvas(renderer canvasRenderer, g *Geometry, height float64) {
	width := float64(g.SceneBox.Size.X) + 2*r.Padding
	bgStyle := canvas.DefaultStyle
	bgStyle.Fill = canvas.Paint{Color: canvas.White}
	renderer.RenderPath(canvas.Rectangle(width, height), bgStyle, canvas.Identity)

	toCanvas := func(p Point) (float64, float64) {
		return p.X + r.Padding, height - (p.Y + r.Padding)
	}

	outline := func(c color.RGBA) canvas.Style {
		s := canvas.DefaultStyle
		s.Fill = canvas.Paint{Color: canvas.Transparent}
		s.Stroke = canvas.Paint{Color: c}
		s.StrokeWidth = r.StrokeWidth
		return s
	}

	sceneStyle := outline(color.RGBA{128, 128, 128, 255})
	sceneStyle.Dashes = []float64{10, 10}
	renderer.RenderPath(closedPath(boxPoints(BoxPix{Size: g.SceneBox.Size}), toCanvas), sceneStyle, canvas.Identity)

	boxStyle := outline(BoxColor)
	for _, b := range g.Boxes {
		renderer.RenderPath(closedPath(boxPoints(b), toCanvas), boxStyle, canvas.Identity)
	}

	sectionStyle := outline(SectionColor)
	for _, p := range g.Sections {
		renderer.RenderPath(closedPath(p.Points, toCanvas), sectionStyle, canvas.Identity)
	}

	roiStyle := outline(ROIColor)
	for _, p := range g.ROIs {
		renderer.RenderPath(closedPath(p.Points, toCanvas), roiStyle, canvas.Identity)
	}
}

func closedPath(pts []Point, toCanvas func(Point) (float64, float64)) *canvas.Path {
	cp := &canvas.Path{}
	for i, pt := range pts {
		x, y := toCanvas(pt)
		if i == 0 {
			cp.MoveTo(x, y)
		} else {
			cp.LineTo(x, y)
		}
	}
	if len(pts) > 0 {
		cp.Close()
	}
	return cp
}

// boxPoints returns the four corners of a box in drawing order.
func boxPoints(b BoxPix) []Point {
	x0, y0 := float64(b.Corner.X), float64(b.Corner.Y)
	end := b.Max()
	x1, y1 := float64(end.X), float64(end.Y)
	return []Point{{X: x0, Y: y0}, {X: x1, Y: y0}, {X: x1, Y: y1}, {X: x0, Y: y1}}
}
