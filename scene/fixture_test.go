package scene

import (
	"fmt"
	"image"
	"image/color"
	"math"
	"strings"
	"testing"

	"github.com/charmbracelet/log"
)

const epsilon = 1e-9

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < epsilon
}

func pointsEqual(p1, p2 Point) bool {
	return math.Abs(p1.X-p2.X) < 1e-6 && math.Abs(p1.Y-p2.Y) < 1e-6
}

func pointListsEqual(a, b []Point) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !pointsEqual(a[i], b[i]) {
			return false
		}
	}
	return true
}

// fixtureSection is a polygon entry of the metadata fixture; rotation is in
// degrees and omitted from the document when nil.
type fixtureSection struct {
	points   string
	rotation *float64
}

type metadataFixture struct {
	scaleX, scaleY string
	markers        []Point
	scenes         []SceneRecord
	boxes          []SelectionBox
	sections       []fixtureSection
	rois           []fixtureSection
}

func deg(v float64) *float64 { return &v }

// twoSceneFixture is an axis-aligned slide with two scenes. With a scale of
// 1 um/px the box around all scenes starts at (400, 350) and scene 2 sits at
// (1400, 500) with size (400, 300) relative to it.
func twoSceneFixture() metadataFixture {
	return metadataFixture{
		scaleX:  "1e-06",
		scaleY:  "1e-06",
		markers: []Point{{X: 0, Y: 0}, {X: 1000, Y: 0}, {X: 0, Y: 800}},
		scenes: []SceneRecord{
			{Index: 0, Center: Point{X: 500, Y: 400}, ContourSize: Point{X: 200, Y: 100}},
			{Index: 1, Center: Point{X: 2000, Y: 1000}, ContourSize: Point{X: 400, Y: 300}},
		},
		boxes: []SelectionBox{
			{Corner: Point{X: 1410, Y: 510}, Size: Point{X: 100, Y: 80}},
			{Corner: Point{X: 1600, Y: 600}, Size: Point{X: 150, Y: 150}},
			{Corner: Point{X: 10, Y: 10}, Size: Point{X: 50, Y: 50}},
		},
		sections: []fixtureSection{
			{points: "1420,520 1480,520 1480,570 1420,570", rotation: deg(0)},
			{points: "1620,620 1700,620 1700,700 1620,700"},
			{points: "20,20 40,20 40,40 20,40"},
		},
		rois: []fixtureSection{
			{points: "1430,530 1450,530 1450,550", rotation: deg(90)},
		},
	}
}

func singleSceneFixture() metadataFixture {
	f := twoSceneFixture()
	f.scenes = f.scenes[:1]
	return f
}

func (f metadataFixture) XML() string {
	var b strings.Builder
	b.WriteString("<?xml version=\"1.0\"?>\n<ImageDocument><Metadata>\n")
	fmt.Fprintf(&b, "<Scaling><Items><Distance Id=\"X\"><Value>%s</Value></Distance>"+
		"<Distance Id=\"Y\"><Value>%s</Value></Distance></Items></Scaling>\n", f.scaleX, f.scaleY)

	b.WriteString("<Experiment><ExperimentBlocks><AcquisitionBlock><SubDimensionSetups><CorrelativeSetup>" +
		"<HolderDocument><Calibration>")
	for i, m := range f.markers {
		fmt.Fprintf(&b, "<Marker%d><X>%g</X><Y>%g</Y></Marker%d>", i+1, m.X, m.Y, i+1)
	}
	b.WriteString("</Calibration></HolderDocument></CorrelativeSetup></SubDimensionSetups>" +
		"</AcquisitionBlock></ExperimentBlocks></Experiment>\n")

	b.WriteString("<Information><Image><Dimensions><S><Scenes>")
	for _, s := range f.scenes {
		fmt.Fprintf(&b, "<Scene Index=\"%d\"><CenterPosition>%g,%g</CenterPosition>"+
			"<ContourSize>%g,%g</ContourSize></Scene>",
			s.Index, s.Center.X, s.Center.Y, s.ContourSize.X, s.ContourSize.Y)
	}
	b.WriteString("</Scenes></S></Dimensions></Image></Information>\n")

	b.WriteString("<MetadataNodes><MetadataNode><Layers>\n<Layer Name=\"Cat_Ribbon\"><Elements>")
	for _, r := range f.boxes {
		fmt.Fprintf(&b, "<Rectangle><Geometry><Left>%g</Left><Top>%g</Top><Width>%g</Width>"+
			"<Height>%g</Height></Geometry></Rectangle>", r.Corner.X, r.Corner.Y, r.Size.X, r.Size.Y)
	}
	b.WriteString("</Elements></Layer>\n")
	writePolygons(&b, "CAT_Section", f.sections)
	writePolygons(&b, "CAT_ROI", f.rois)
	b.WriteString("</Layers></MetadataNode></MetadataNodes>\n</Metadata></ImageDocument>\n")
	return b.String()
}

func writePolygons(b *strings.Builder, layer string, polys []fixtureSection) {
	fmt.Fprintf(b, "<Layer Name=%q><Elements>", layer)
	for _, p := range polys {
		b.WriteString("<Polygon>")
		if p.rotation != nil {
			fmt.Fprintf(b, "<Attributes><Rotation>%g</Rotation></Attributes>", *p.rotation)
		}
		fmt.Fprintf(b, "<Geometry><Points>%s</Points></Geometry></Polygon>", p.points)
	}
	b.WriteString("</Elements></Layer>\n")
}

func (f metadataFixture) Metadata(t *testing.T) *Metadata {
	t.Helper()
	md, err := ParseMetadata([]byte(f.XML()), QueryPaths{})
	if err != nil {
		t.Fatalf("ParseMetadata: %v", err)
	}
	return md
}

// fakeDecoder serves a fixture document and synthetic images.
type fakeDecoder struct {
	metadata   string
	metaErr    error
	full       image.Image
	regions    []*Region
	metaReads  int
	tiles      []Tile
	tileCoords []Point
}

func newFakeDecoder(f metadataFixture) *fakeDecoder {
	return &fakeDecoder{metadata: f.XML()}
}

func (d *fakeDecoder) ReadMetadata(string) ([]byte, error) {
	d.metaReads++
	if d.metaErr != nil {
		return nil, d.metaErr
	}
	return []byte(d.metadata), nil
}

func (d *fakeDecoder) ReadScene(_ string, region *Region) (image.Image, error) {
	d.regions = append(d.regions, region)
	if region == nil {
		return d.full, nil
	}
	return gradient(region.Size.X, region.Size.Y), nil
}

func (d *fakeDecoder) ReadTiles(string) ([]Tile, []Point, error) {
	return d.tiles, d.tileCoords, nil
}

// gradient returns a gray image whose pixel value is (x + y) mod 256.
func gradient(w, h int) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetGray(x, y, color.Gray{Y: uint8((x + y) % 256)})
		}
	}
	return img
}

func uniformGray(w, h int, v uint8) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = v
	}
	return img
}

func quietLogger() *log.Logger {
	l := log.New(&strings.Builder{})
	l.SetLevel(log.ErrorLevel)
	return l
}
