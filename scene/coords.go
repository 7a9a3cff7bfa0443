package scene

import (
	"image"
	"math"
)

// PixelTransform converts physical stage coordinates to pixel subscripts through
// a rigid frame and a pixel scale. Every physical-to-pixel conversion rounds half
// away from zero (math.Round); box edges can therefore differ by one pixel from
// a truncating conversion.
type PixelTransform struct {
	Frame RigidFrame
	Scale ScaleVector
}

// roundPix is the single rounding policy for pixel subscripts.
func roundPix(v float64) int {
	return int(math.Round(v))
}

// ToPixel maps a physical point to pixel subscripts: round((R^T (p - a) + a) / s)
func (t PixelTransform) ToPixel(p Point) image.Point {
	q := t.Frame.ToFrame(p)
	return image.Point{X: roundPix(q.X / t.Scale.X), Y: roundPix(q.Y / t.Scale.Y)}
}

// ScaleSize converts a physical extent to pixels without rotating it.
func (t PixelTransform) ScaleSize(s Point) image.Point {
	return image.Point{X: roundPix(s.X / t.Scale.X), Y: roundPix(s.Y / t.Scale.Y)}
}

// UnionBox returns the pixel box around all scenes. The corner is the minimum
// scene corner mapped through the frame; the size is the maximum far corner
// over all scenes, scaled but not rotated.
func (t PixelTransform) UnionBox(scenes []SceneRecord) BoxPix {
	lo := Point{X: math.Inf(1), Y: math.Inf(1)}
	hi := Point{X: math.Inf(-1), Y: math.Inf(-1)}
	for _, s := range scenes {
		half := Point{X: s.ContourSize.X / 2, Y: s.ContourSize.Y / 2}
		c0 := s.Center.Sub(half)
		c1 := s.Center.Add(half)
		lo.X, lo.Y = math.Min(lo.X, c0.X), math.Min(lo.Y, c0.Y)
		hi.X, hi.Y = math.Max(hi.X, c1.X), math.Max(hi.Y, c1.Y)
	}
	return BoxPix{Corner: t.ToPixel(lo), Size: t.ScaleSize(hi)}
}

// SceneBox returns the scene's pixel box relative to the union box corner.
func (t PixelTransform) SceneBox(s SceneRecord, union BoxPix) BoxPix {
	half := Point{X: s.ContourSize.X / 2, Y: s.ContourSize.Y / 2}
	return BoxPix{
		Corner: t.ToPixel(s.Center.Sub(half)).Sub(union.Corner),
		Size:   t.ScaleSize(s.ContourSize),
	}
}

// RelativeBoxes expresses selection boxes relative to the scene corner.
func RelativeBoxes(boxes []SelectionBox, scene BoxPix) []BoxPix {
	out := make([]BoxPix, len(boxes))
	for i, b := range boxes {
		out[i] = BoxPix{
			Corner: image.Point{X: roundPix(b.Corner.X), Y: roundPix(b.Corner.Y)}.Sub(scene.Corner),
			Size:   image.Point{X: roundPix(b.Size.X), Y: roundPix(b.Size.Y)},
		}
	}
	return out
}

// BoxesInScene keeps the relative boxes that lie entirely inside the scene.
func BoxesInScene(boxes []BoxPix, sceneSize image.Point) []BoxPix {
	var kept []BoxPix
	for _, b := range boxes {
		end := b.Max()
		if b.Corner.X >= 0 && b.Corner.Y >= 0 && end.X <= sceneSize.X && end.Y <= sceneSize.Y {
			kept = append(kept, b)
		}
	}
	return kept
}
