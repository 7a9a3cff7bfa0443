package scene

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// GeometryRecord is the on-disk form of a computed scene geometry. Downstream
// tools use it to map analysis results back to stage coordinates.
type GeometryRecord struct {
	File        string    `json:"file"`
	Geometry    *Geometry `json:"geometry"`
	LastUpdated int64     `json:"lastUpdated"`
}

// SaveGeometry writes the geometry of file to a JSON file at path
func SaveGeometry(path, file string, g *Geometry) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating geometry directory: %w", err)
	}

	rec := GeometryRecord{File: file, Geometry: g, LastUpdated: time.Now().Unix()}
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling geometry: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing geometry file: %w", err)
	}
	return nil
}

// LoadGeometry reads a geometry file. A missing file yields nil without error.
func LoadGeometry(path string) (*GeometryRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading geometry file: %w", err)
	}

	var rec GeometryRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("parsing geometry file: %w", err)
	}
	return &rec, nil
}

// IsStale reports whether the record is older than the slide file it was
// computed from, or older than maxAge when maxAge is positive.
func (r *GeometryRecord) IsStale(maxAge time.Duration) bool {
	if r == nil || r.LastUpdated == 0 || r.Geometry == nil {
		return true
	}
	updated := time.Unix(r.LastUpdated, 0)
	if maxAge > 0 && time.Since(updated) > maxAge {
		return true
	}
	if info, err := os.Stat(r.File); err == nil && info.ModTime().After(updated) {
		return true
	}
	return false
}

// ToStage maps a pixel position relative to the scene back to stage
// coordinates, inverting the scene box offset, pixel scale and frame rotation.
func (g *Geometry) ToStage(p Point) Point {
	px := Point{
		X: (p.X + float64(g.SceneBox.Corner.X+g.AllScenes.Corner.X)) * g.Scale.X,
		Y: (p.Y + float64(g.SceneBox.Corner.Y+g.AllScenes.Corner.Y)) * g.Scale.Y,
	}
	return g.Frame.FromFrame(px)
}
