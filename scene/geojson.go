package scene

import (
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// BoxKind labels ribbon box features.
const BoxKind = "ribbon"

// polygonRing converts a point list into a closed orb ring.
func polygonRing(pts []Point) orb.Ring {
	ring := make(orb.Ring, 0, len(pts)+1)
	for _, p := range pts {
		ring = append(ring, orb.Point{p.X, p.Y})
	}
	if len(ring) > 0 && !ring.Closed() {
		ring = append(ring, ring[0])
	}
	return ring
}

func newFeature(geom orb.Geometry, kind string, index int, g *Geometry) *geojson.Feature {
	f := geojson.NewFeature(geom)
	f.ID = fmt.Sprintf("%s-%d", kind, index+1)
	f.Properties["kind"] = kind
	f.Properties["index"] = index
	f.Properties["scene"] = g.Scene
	if g.Ribbon > 0 {
		f.Properties["ribbon"] = g.Ribbon
	}
	return f
}

// ToFeatureCollection exports ribbon boxes, sections and ROIs as GeoJSON
// polygons in scene pixel coordinates (x = column, y = row).
func ToFeatureCollection(g *Geometry) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()

	for i, b := range g.Boxes {
		fc.Append(newFeature(orb.Polygon{polygonRing(boxPoints(b))}, BoxKind, i, g))
	}

	add := func(polys []Polygon, kind PolygonKind) {
		for i, p := range polys {
			f := newFeature(orb.Polygon{polygonRing(p.Points)}, string(kind), i, g)
			f.Properties["rotation"] = p.Rotation
			fc.Append(f)
		}
	}
	add(g.Sections, SectionPolygon)
	add(g.ROIs, ROIPolygon)

	return fc
}

// PolygonsFromFeatureCollection reads section and ROI outlines back from a
// collection written by ToFeatureCollection. Closing points are dropped.
func PolygonsFromFeatureCollection(fc *geojson.FeatureCollection) (sections, rois []Polygon, err error) {
	for _, f := range fc.Features {
		kind, _ := f.Properties["kind"].(string)
		if kind != string(SectionPolygon) && kind != string(ROIPolygon) {
			continue
		}
		poly, ok := f.Geometry.(orb.Polygon)
		if !ok || len(poly) == 0 {
			return nil, nil, fmt.Errorf("%w: feature %v is not a polygon", ErrMalformedMetadata, f.ID)
		}
		ring := poly[0]
		if len(ring) > 1 && ring.Closed() {
			ring = ring[:len(ring)-1]
		}
		p := Polygon{Points: make([]Point, len(ring)), InScene: true}
		for i, q := range ring {
			p.Points[i] = Point{X: q[0], Y: q[1]}
		}
		p.Rotation = f.Properties.MustFloat64("rotation", 0)

		if kind == string(SectionPolygon) {
			sections = append(sections, p)
		} else {
			rois = append(rois, p)
		}
	}
	return sections, rois, nil
}
