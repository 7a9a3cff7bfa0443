package scene

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// RigidFrame maps physical stage coordinates into the frame defined by the
// calibration markers. It is computed once per metadata load.
type RigidFrame struct {
	Rotation AffineMatrix `json:"rotation"`
	Angle    float64      `json:"angle"` // radians
	Anchor   Point        `json:"anchor"`
	// Corners holds the three markers followed by the reconstructed fourth corner.
	Corners [MarkerCount + 1]Point `json:"corners"`
}

// ToFrame applies R^T about the anchor: R^T (p - anchor) + anchor
func (f RigidFrame) ToFrame(p Point) Point {
	return TransformPoint(p.Sub(f.Anchor), Transpose(f.Rotation)).Add(f.Anchor)
}

// FromFrame is the inverse of ToFrame: R (p - anchor) + anchor
func (f RigidFrame) FromFrame(p Point) Point {
	return TransformPoint(p.Sub(f.Anchor), f.Rotation).Add(f.Anchor)
}

// collinearTolerance bounds |a x b| / (|a| |b|), the sine of the angle
// between the legs, below which the markers span no rectangle.
const collinearTolerance = 1e-9

// SolveFrame derives the rigid frame from three markers lying on two adjacent
// legs of a rectangle. The farthest pair are the far corners, the remaining
// marker is the right-angle corner. The leg with the larger x-extent defines
// the rotation angle and the rectangle corner nearest the stage origin is the
// anchor.
func SolveFrame(markers []Point) (RigidFrame, error) {
	if len(markers) != MarkerCount {
		return RigidFrame{}, fmt.Errorf("%w: need %d markers, got %d",
			ErrInvalidMarkerConfiguration, MarkerCount, len(markers))
	}

	dist := mat.NewSymDense(MarkerCount, nil)
	for i := 0; i < MarkerCount; i++ {
		for j := i + 1; j < MarkerCount; j++ {
			d := Distance(markers[i], markers[j])
			if d == 0 || math.IsNaN(d) {
				return RigidFrame{}, fmt.Errorf("%w: markers %d and %d coincide",
					ErrInvalidMarkerConfiguration, i+1, j+1)
			}
			dist.SetSym(i, j, d)
		}
	}

	// First maximum in row-major order, so far0 < far1.
	far0, far1, best := 0, 0, -1.0
	for i := 0; i < MarkerCount; i++ {
		for j := 0; j < MarkerCount; j++ {
			if d := dist.At(i, j); d > best {
				best, far0, far1 = d, i, j
			}
		}
	}
	corner := 3 - far0 - far1 // indices sum to 0+1+2

	a := markers[far0].Sub(markers[corner])
	b := markers[far1].Sub(markers[corner])
	if math.Abs(a.X*b.Y-a.Y*b.X) <= collinearTolerance*a.Norm()*b.Norm() {
		return RigidFrame{}, fmt.Errorf("%w: markers are collinear", ErrInvalidMarkerConfiguration)
	}
	leg := b
	if math.Abs(a.X) > math.Abs(b.X) {
		leg = a
	}

	angle := math.Atan(leg.Y / leg.X)
	rot := Rotation(angle)
	inv := Transpose(rot)

	// Fourth corner: per axis take the larger leg component in the rotated frame.
	pa := TransformPoint(a, inv)
	pb := TransformPoint(b, inv)
	far := pa
	if math.Abs(pb.X) > math.Abs(pa.X) {
		far.X = pb.X
	}
	if math.Abs(pb.Y) > math.Abs(pa.Y) {
		far.Y = pb.Y
	}

	frame := RigidFrame{Rotation: rot, Angle: angle}
	copy(frame.Corners[:], markers)
	frame.Corners[MarkerCount] = TransformPoint(far, rot).Add(markers[corner])

	frame.Anchor = frame.Corners[0]
	for _, c := range frame.Corners[1:] {
		if c.Norm() < frame.Anchor.Norm() {
			frame.Anchor = c
		}
	}

	return frame, nil
}
