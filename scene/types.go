package scene

import (
	"image"
	"math"
)

// MarkerCount is the number of calibration markers read from the holder document.
// The frame solver assumes they are three corners of a rectangle.
const MarkerCount = 3

// ScaleUnits converts the metadata pixel size (stored in meters although labelled
// as microns) to micrometers.
const ScaleUnits = 1e6

// Point represents a 2D coordinate
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Sub returns p - q
func (p Point) Sub(q Point) Point {
	return Point{X: p.X - q.X, Y: p.Y - q.Y}
}

// Add returns p + q
func (p Point) Add(q Point) Point {
	return Point{X: p.X + q.X, Y: p.Y + q.Y}
}

// Norm returns the distance of p from the origin
func (p Point) Norm() float64 {
	return math.Hypot(p.X, p.Y)
}

// AffineMatrix for 2D transforms: x' = ax + by + tx, y' = cx + dy + ty
type AffineMatrix struct {
	A  float64 `json:"a"`
	B  float64 `json:"b"`
	Tx float64 `json:"tx"`
	C  float64 `json:"c"`
	D  float64 `json:"d"`
	Ty float64 `json:"ty"`
}

// ScaleVector is the pixel size along X and Y in micrometers.
type ScaleVector struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Valid reports whether both components are strictly positive.
func (s ScaleVector) Valid() bool {
	return s.X > 0 && s.Y > 0
}

// BoxPix is an axis-aligned box in pixel subscripts.
type BoxPix struct {
	Corner image.Point `json:"corner"`
	Size   image.Point `json:"size"`
}

// Max returns the exclusive far corner of the box.
func (b BoxPix) Max() image.Point {
	return b.Corner.Add(b.Size)
}

// Center returns the box center in (fractional) pixel coordinates.
func (b BoxPix) Center() Point {
	return Point{
		X: float64(b.Corner.X) + float64(b.Size.X)/2,
		Y: float64(b.Corner.Y) + float64(b.Size.Y)/2,
	}
}

// Rect converts the box to an image.Rectangle.
func (b BoxPix) Rect() image.Rectangle {
	return image.Rectangle{Min: b.Corner, Max: b.Max()}
}

// SceneRecord is one entry of the metadata scene collection, in physical units.
type SceneRecord struct {
	Index       int   `json:"index"`
	Center      Point `json:"center"`
	ContourSize Point `json:"contourSize"`
}

// SelectionBox is a ribbon rectangle as stored in the metadata. Although it lives
// in the annotation layers it is already expressed in pixels relative to the
// bounding box around all scenes.
type SelectionBox struct {
	Corner Point `json:"corner"`
	Size   Point `json:"size"`
}

// PolygonKind distinguishes the two annotation families.
type PolygonKind string

const (
	SectionPolygon PolygonKind = "section"
	ROIPolygon     PolygonKind = "roi"
)

// Polygon is an annotation outline with its self-rotation in radians.
type Polygon struct {
	Points   []Point `json:"points"`
	Rotation float64 `json:"rotation"`
	InScene  bool    `json:"inScene"`
}

// Clone returns a deep copy of the polygon.
func (p Polygon) Clone() Polygon {
	pts := make([]Point, len(p.Points))
	copy(pts, p.Points)
	return Polygon{Points: pts, Rotation: p.Rotation, InScene: p.InScene}
}

// RibbonAssignment maps polygon index to the index of its nearest ribbon box.
type RibbonAssignment []int

// Members returns the polygon indices assigned to ribbon.
func (a RibbonAssignment) Members(ribbon int) []int {
	var idx []int
	for i, r := range a {
		if r == ribbon {
			idx = append(idx, i)
		}
	}
	return idx
}

// Geometry is everything derived from one metadata load for one scene.
// It is replaced wholesale on reload and never edited in place.
type Geometry struct {
	// Scene and Ribbon are 1-based; Ribbon is 0 when ribbon cropping is disabled.
	Scene      int         `json:"scene"`
	Ribbon     int         `json:"ribbon"`
	SceneCount int         `json:"sceneCount"`
	Scale      ScaleVector `json:"scale"`
	Frame      RigidFrame  `json:"frame"`

	// AllScenes is the box around every scene; SceneBox is relative to its corner.
	AllScenes BoxPix   `json:"allScenes"`
	SceneBox  BoxPix   `json:"sceneBox"`
	Boxes     []BoxPix `json:"boxes"`

	Sections []Polygon `json:"sections"`
	ROIs     []Polygon `json:"rois"`

	SectionRibbons RibbonAssignment `json:"sectionRibbons,omitempty"`
	ROIRibbons     RibbonAssignment `json:"roiRibbons,omitempty"`

	Warnings []string `json:"warnings,omitempty"`
}

// Clone returns a deep copy so callers cannot reach into a scene's cache.
func (g *Geometry) Clone() *Geometry {
	if g == nil {
		return nil
	}
	c := *g
	c.Boxes = append([]BoxPix(nil), g.Boxes...)
	c.Sections = clonePolygons(g.Sections)
	c.ROIs = clonePolygons(g.ROIs)
	c.SectionRibbons = append(RibbonAssignment(nil), g.SectionRibbons...)
	c.ROIRibbons = append(RibbonAssignment(nil), g.ROIRibbons...)
	c.Warnings = append([]string(nil), g.Warnings...)
	return &c
}

func clonePolygons(polys []Polygon) []Polygon {
	if polys == nil {
		return nil
	}
	out := make([]Polygon, len(polys))
	for i, p := range polys {
		out[i] = p.Clone()
	}
	return out
}
