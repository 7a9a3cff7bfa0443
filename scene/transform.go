package scene

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// TransformPoint applies m to p.
func TransformPoint(p Point, m AffineMatrix) Point {
	return Point{
		X: m.A*p.X + m.B*p.Y + m.Tx,
		Y: m.C*p.X + m.D*p.Y + m.Ty,
	}
}

// Rotation is the counter-clockwise rotation by angle radians about the origin.
func Rotation(angle float64) AffineMatrix {
	sin, cos := math.Sincos(angle)
	return AffineMatrix{A: cos, B: -sin, C: sin, D: cos}
}

// Transpose returns the transpose of the linear part; translation is dropped.
// For a rotation this is its inverse.
func Transpose(m AffineMatrix) AffineMatrix {
	return AffineMatrix{A: m.A, B: m.C, C: m.B, D: m.D}
}

// RotateAbout rotates points by angle (radians) around center
func RotateAbout(points []Point, angle float64, center Point) []Point {
	rot := Rotation(angle)
	result := make([]Point, len(points))
	for i, p := range points {
		result[i] = TransformPoint(p.Sub(center), rot).Add(center)
	}
	return result
}

// Translate shifts every point by -origin
func Translate(points []Point, origin Point) []Point {
	result := make([]Point, len(points))
	for i, p := range points {
		result[i] = p.Sub(origin)
	}
	return result
}

// Distance is the Euclidean distance between two points.
func Distance(p1, p2 Point) float64 {
	return planar.Distance(orb.Point{p1.X, p1.Y}, orb.Point{p2.X, p2.Y})
}

// toOrb converts a point list to an orb.MultiPoint
func toOrb(points []Point) orb.MultiPoint {
	mp := make(orb.MultiPoint, len(points))
	for i, p := range points {
		mp[i] = orb.Point{p.X, p.Y}
	}
	return mp
}

// Bounds returns the axis-aligned min and max corners of a point set.
// An empty set yields +Inf/-Inf corners.
func Bounds(points []Point) (Point, Point) {
	if len(points) == 0 {
		return Point{X: math.Inf(1), Y: math.Inf(1)}, Point{X: math.Inf(-1), Y: math.Inf(-1)}
	}
	b := toOrb(points).Bound()
	return Point{X: b.Min[0], Y: b.Min[1]}, Point{X: b.Max[0], Y: b.Max[1]}
}

// BoundsCenter returns the center of the axis-aligned bounding box of points
func BoundsCenter(points []Point) Point {
	c := toOrb(points).Bound().Center()
	return Point{X: c[0], Y: c[1]}
}
