package scene

import "image"

// LocalizePolygon expresses a polygon relative to the scene corner and applies
// its self-rotation about the center of its own bounding box. InScene is set
// when every point satisfies 0 < v <= size on both axes.
func LocalizePolygon(p Polygon, sceneCorner, sceneSize image.Point) Polygon {
	rel := Translate(p.Points, Point{X: float64(sceneCorner.X), Y: float64(sceneCorner.Y)})
	rotated := RotateAbout(rel, p.Rotation, BoundsCenter(rel))

	inScene := len(rotated) > 0
	w, h := float64(sceneSize.X), float64(sceneSize.Y)
	for _, q := range rotated {
		if !(q.X > 0 && q.Y > 0 && q.X <= w && q.Y <= h) {
			inScene = false
			break
		}
	}
	return Polygon{Points: rotated, Rotation: p.Rotation, InScene: inScene}
}

// LocalizePolygons localizes every polygon and drops those outside the scene,
// preserving the order of the survivors. The input is not modified.
func LocalizePolygons(polys []Polygon, sceneCorner, sceneSize image.Point) []Polygon {
	kept := make([]Polygon, 0, len(polys))
	for _, p := range polys {
		if lp := LocalizePolygon(p, sceneCorner, sceneSize); lp.InScene {
			kept = append(kept, lp)
		}
	}
	return kept
}
