package scene

import (
	"bytes"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/antchfx/xmlquery"
)

// QueryPaths holds the XPath expressions used to pull geometry out of the
// metadata document. Empty fields fall back to DefaultQueryPaths.
type QueryPaths struct {
	ScaleX        string `yaml:"scaleX,omitempty" json:"scaleX,omitempty"`
	ScaleY        string `yaml:"scaleY,omitempty" json:"scaleY,omitempty"`
	Calibration   string `yaml:"calibration,omitempty" json:"calibration,omitempty"`
	Scenes        string `yaml:"scenes,omitempty" json:"scenes,omitempty"`
	SelectionBox  string `yaml:"selectionBox,omitempty" json:"selectionBox,omitempty"`
	SectionPoints string `yaml:"sectionPoints,omitempty" json:"sectionPoints,omitempty"`
	ROIPoints     string `yaml:"roiPoints,omitempty" json:"roiPoints,omitempty"`
}

const layersPath = "/ImageDocument/Metadata/MetadataNodes/MetadataNode/Layers/Layer"

// DefaultQueryPaths returns the paths used by the acquisition software.
func DefaultQueryPaths() QueryPaths {
	return QueryPaths{
		ScaleX: "/ImageDocument/Metadata/Scaling/Items/Distance[@Id='X']/Value",
		ScaleY: "/ImageDocument/Metadata/Scaling/Items/Distance[@Id='Y']/Value",
		Calibration: "/ImageDocument/Metadata/Experiment/ExperimentBlocks/AcquisitionBlock/SubDimensionSetups/" +
			"CorrelativeSetup/HolderDocument/Calibration",
		Scenes:        "/ImageDocument/Metadata/Information/Image/Dimensions/S/Scenes",
		SelectionBox:  layersPath + "[@Name='Cat_Ribbon']/Elements/Rectangle/Geometry",
		SectionPoints: layersPath + "[@Name='CAT_Section']/Elements/Polygon",
		ROIPoints:     layersPath + "[@Name='CAT_ROI']/Elements/Polygon",
	}
}

// WithDefaults fills empty paths from DefaultQueryPaths.
func (q QueryPaths) WithDefaults() QueryPaths {
	d := DefaultQueryPaths()
	fill := func(v *string, def string) {
		if *v == "" {
			*v = def
		}
	}
	fill(&q.ScaleX, d.ScaleX)
	fill(&q.ScaleY, d.ScaleY)
	fill(&q.Calibration, d.Calibration)
	fill(&q.Scenes, d.Scenes)
	fill(&q.SelectionBox, d.SelectionBox)
	fill(&q.SectionPoints, d.SectionPoints)
	fill(&q.ROIPoints, d.ROIPoints)
	return q
}

// Metadata holds the raw geometry values read from the metadata document,
// still in physical units except for the annotation layers.
type Metadata struct {
	Scale    ScaleVector
	Markers  []Point
	Scenes   []SceneRecord
	Boxes    []SelectionBox
	Sections []Polygon
	ROIs     []Polygon
}

// FindScene returns the record with the given 0-based index.
func (m *Metadata) FindScene(index int) (SceneRecord, bool) {
	for _, s := range m.Scenes {
		if s.Index == index {
			return s, true
		}
	}
	return SceneRecord{}, false
}

// ParseMetadata parses the metadata XML and extracts the values needed for
// scene geometry.
func ParseMetadata(data []byte, paths QueryPaths) (*Metadata, error) {
	doc, err := xmlquery.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: parsing XML: %v", ErrMalformedMetadata, err)
	}
	return extractMetadata(doc, paths.WithDefaults())
}

func extractMetadata(doc *xmlquery.Node, paths QueryPaths) (*Metadata, error) {
	md := &Metadata{}
	var err error

	if md.Scale.X, err = queryFloat(doc, paths.ScaleX, "scale X"); err != nil {
		return nil, err
	}
	if md.Scale.Y, err = queryFloat(doc, paths.ScaleY, "scale Y"); err != nil {
		return nil, err
	}
	md.Scale.X *= ScaleUnits
	md.Scale.Y *= ScaleUnits
	if !md.Scale.Valid() {
		return nil, fmt.Errorf("%w: non-positive pixel scale %v", ErrMalformedMetadata, md.Scale)
	}

	if md.Markers, err = extractMarkers(doc, paths.Calibration); err != nil {
		return nil, err
	}
	if md.Scenes, err = extractScenes(doc, paths.Scenes); err != nil {
		return nil, err
	}
	if md.Boxes, err = extractBoxes(doc, paths.SelectionBox); err != nil {
		return nil, err
	}
	if md.Sections, err = extractPolygons(doc, paths.SectionPoints); err != nil {
		return nil, fmt.Errorf("section polygons: %w", err)
	}
	if md.ROIs, err = extractPolygons(doc, paths.ROIPoints); err != nil {
		return nil, fmt.Errorf("ROI polygons: %w", err)
	}
	return md, nil
}

func queryOne(top *xmlquery.Node, expr, what string) (*xmlquery.Node, error) {
	n, err := xmlquery.Query(top, expr)
	if err != nil {
		return nil, fmt.Errorf("%w: %s query %q: %v", ErrMalformedMetadata, what, expr, err)
	}
	if n == nil {
		return nil, fmt.Errorf("%w: %s not found at %q", ErrMalformedMetadata, what, expr)
	}
	return n, nil
}

func queryAll(top *xmlquery.Node, expr, what string) ([]*xmlquery.Node, error) {
	nodes, err := xmlquery.QueryAll(top, expr)
	if err != nil {
		return nil, fmt.Errorf("%w: %s query %q: %v", ErrMalformedMetadata, what, expr, err)
	}
	return nodes, nil
}

func queryFloat(top *xmlquery.Node, expr, what string) (float64, error) {
	n, err := queryOne(top, expr, what)
	if err != nil {
		return 0, err
	}
	return parseFloat(n.InnerText(), what)
}

func parseFloat(s, what string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %v", ErrMalformedMetadata, what, err)
	}
	return v, nil
}

// parsePair parses "x,y".
func parsePair(s, what string) (Point, error) {
	parts := strings.Split(strings.TrimSpace(s), ",")
	if len(parts) != 2 {
		return Point{}, fmt.Errorf("%w: %s: expected \"x,y\", got %q", ErrMalformedMetadata, what, s)
	}
	x, err := parseFloat(parts[0], what)
	if err != nil {
		return Point{}, err
	}
	y, err := parseFloat(parts[1], what)
	if err != nil {
		return Point{}, err
	}
	return Point{X: x, Y: y}, nil
}

// ParsePointList parses a space separated list of "x,y" pairs.
func ParsePointList(s string) ([]Point, error) {
	fields := strings.Fields(s)
	points := make([]Point, 0, len(fields))
	for _, f := range fields {
		p, err := parsePair(f, "polygon point")
		if err != nil {
			return nil, err
		}
		points = append(points, p)
	}
	return points, nil
}

// extractMarkers reads Marker1..Marker3 below the calibration node. Missing
// markers are skipped; the frame solver rejects an incomplete set.
func extractMarkers(doc *xmlquery.Node, expr string) ([]Point, error) {
	cal, err := queryOne(doc, expr, "calibration")
	if err != nil {
		return nil, err
	}
	var markers []Point
	for i := 1; i <= MarkerCount; i++ {
		m, err := xmlquery.Query(cal, fmt.Sprintf(".//Marker%d", i))
		if err != nil || m == nil {
			continue
		}
		x, err := queryFloat(m, ".//X", fmt.Sprintf("marker %d X", i))
		if err != nil {
			return nil, err
		}
		y, err := queryFloat(m, ".//Y", fmt.Sprintf("marker %d Y", i))
		if err != nil {
			return nil, err
		}
		markers = append(markers, Point{X: x, Y: y})
	}
	return markers, nil
}

func extractScenes(doc *xmlquery.Node, expr string) ([]SceneRecord, error) {
	root, err := queryOne(doc, expr, "scenes")
	if err != nil {
		return nil, err
	}
	nodes, err := queryAll(root, "Scene", "scene")
	if err != nil {
		return nil, err
	}

	scenes := make([]SceneRecord, 0, len(nodes))
	for _, n := range nodes {
		idx, err := strconv.Atoi(strings.TrimSpace(n.SelectAttr("Index")))
		if err != nil {
			return nil, fmt.Errorf("%w: scene index: %v", ErrMalformedMetadata, err)
		}
		rec := SceneRecord{Index: idx}

		c, err := queryOne(n, "CenterPosition", "scene center")
		if err != nil {
			return nil, err
		}
		if rec.Center, err = parsePair(c.InnerText(), "scene center"); err != nil {
			return nil, err
		}
		s, err := queryOne(n, "ContourSize", "scene size")
		if err != nil {
			return nil, err
		}
		if rec.ContourSize, err = parsePair(s.InnerText(), "scene size"); err != nil {
			return nil, err
		}
		scenes = append(scenes, rec)
	}
	return scenes, nil
}

func extractBoxes(doc *xmlquery.Node, expr string) ([]SelectionBox, error) {
	nodes, err := queryAll(doc, expr, "selection box")
	if err != nil {
		return nil, err
	}
	boxes := make([]SelectionBox, 0, len(nodes))
	for i, n := range nodes {
		var vals [4]float64
		for k, tag := range []string{"Left", "Top", "Width", "Height"} {
			v, err := queryFloat(n, ".//"+tag, fmt.Sprintf("selection box %d %s", i+1, tag))
			if err != nil {
				return nil, err
			}
			vals[k] = v
		}
		boxes = append(boxes, SelectionBox{
			Corner: Point{X: vals[0], Y: vals[1]},
			Size:   Point{X: vals[2], Y: vals[3]},
		})
	}
	return boxes, nil
}

// extractPolygons reads point lists and rotations; a missing Rotation means 0.
func extractPolygons(doc *xmlquery.Node, expr string) ([]Polygon, error) {
	nodes, err := queryAll(doc, expr, "polygon")
	if err != nil {
		return nil, err
	}
	polys := make([]Polygon, 0, len(nodes))
	for i, n := range nodes {
		pn, err := queryOne(n, ".//Points", fmt.Sprintf("polygon %d points", i+1))
		if err != nil {
			return nil, err
		}
		pts, err := ParsePointList(pn.InnerText())
		if err != nil {
			return nil, err
		}
		if len(pts) == 0 {
			continue
		}

		var rot float64
		if rn, _ := xmlquery.Query(n, ".//Rotation"); rn != nil {
			deg, err := parseFloat(rn.InnerText(), fmt.Sprintf("polygon %d rotation", i+1))
			if err != nil {
				return nil, err
			}
			rot = deg / 180 * math.Pi
		}
		polys = append(polys, Polygon{Points: pts, Rotation: rot})
	}
	return polys, nil
}
