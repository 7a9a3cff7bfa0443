package scene

import (
	"fmt"
	"image"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
	"gonum.org/v1/gonum/mat"
)

// AssignNearest assigns every polygon center to the closest ribbon center.
// Ties go to the lowest ribbon index. With no ribbons every entry is -1.
func AssignNearest(ribbons, polygons []Point) RibbonAssignment {
	assign := make(RibbonAssignment, len(polygons))
	if len(polygons) == 0 {
		return assign
	}
	if len(ribbons) == 0 {
		for i := range assign {
			assign[i] = -1
		}
		return assign
	}

	d := mat.NewDense(len(ribbons), len(polygons), nil)
	for i, r := range ribbons {
		for j, p := range polygons {
			d.Set(i, j, planar.Distance(orb.Point{r.X, r.Y}, orb.Point{p.X, p.Y}))
		}
	}

	for j := range polygons {
		best := 0
		for i := 1; i < len(ribbons); i++ {
			if d.At(i, j) < d.At(best, j) {
				best = i
			}
		}
		assign[j] = best
	}
	return assign
}

// polygonCenters returns the bounding-box center of each polygon relative to origin.
func polygonCenters(polys []Polygon, origin Point) []Point {
	centers := make([]Point, len(polys))
	for i, p := range polys {
		centers[i] = BoundsCenter(Translate(p.Points, origin))
	}
	return centers
}

// RibbonCrop is the crop box computed for one ribbon, in pixels relative to the
// scene corner it was computed against.
type RibbonCrop struct {
	Ribbon   int // 0-based
	Min      Point
	Max      Point
	Sections RibbonAssignment
	ROIs     RibbonAssignment
	Members  int
}

// Empty reports whether no polygon of either family was assigned to the ribbon.
func (c RibbonCrop) Empty() bool {
	return c.Members == 0
}

// Apply replaces the scene box by the crop: corner += floor(min), size = round(max - min).
func (c RibbonCrop) Apply(scene BoxPix) BoxPix {
	return BoxPix{
		Corner: scene.Corner.Add(image.Point{X: int(math.Floor(c.Min.X)), Y: int(math.Floor(c.Min.Y))}),
		Size:   image.Point{X: roundPix(c.Max.X - c.Min.X), Y: roundPix(c.Max.Y - c.Min.Y)},
	}
}

// CropToRibbon classifies section and ROI polygons to their nearest ribbon and
// returns the box that encloses the chosen ribbon's selection box and the
// bounds of its member polygons grown by one pixel. boxes are relative to the
// scene corner; polygons are still relative to the all-scenes box.
func CropToRibbon(boxes []BoxPix, sections, rois []Polygon, sceneCorner image.Point, ribbon int) (RibbonCrop, error) {
	if ribbon < 0 || ribbon >= len(boxes) {
		return RibbonCrop{}, fmt.Errorf("%w: ribbon %d of %d", ErrRibbonNotFound, ribbon+1, len(boxes))
	}

	origin := Point{X: float64(sceneCorner.X), Y: float64(sceneCorner.Y)}
	centers := make([]Point, len(boxes))
	for i, b := range boxes {
		centers[i] = b.Center()
	}

	crop := RibbonCrop{
		Ribbon:   ribbon,
		Sections: AssignNearest(centers, polygonCenters(sections, origin)),
		ROIs:     AssignNearest(centers, polygonCenters(rois, origin)),
	}

	box := boxes[ribbon]
	crop.Min = Point{X: float64(box.Corner.X), Y: float64(box.Corner.Y)}
	end := box.Max()
	crop.Max = Point{X: float64(end.X), Y: float64(end.Y)}

	grow := func(polys []Polygon, assign RibbonAssignment) {
		for _, i := range assign.Members(ribbon) {
			if len(polys[i].Points) == 0 {
				continue
			}
			lo, hi := Bounds(Translate(polys[i].Points, origin))
			crop.Min.X = math.Min(crop.Min.X, lo.X-1)
			crop.Min.Y = math.Min(crop.Min.Y, lo.Y-1)
			crop.Max.X = math.Max(crop.Max.X, hi.X+1)
			crop.Max.Y = math.Max(crop.Max.Y, hi.Y+1)
			crop.Members++
		}
	}
	grow(sections, crop.Sections)
	grow(rois, crop.ROIs)

	return crop, nil
}
