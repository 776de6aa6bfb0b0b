package geometry

import (
	"fmt"
	"math"

	"github.com/golang/geo/r3"
)

// AABB is an axis-aligned bounding box. Min is lower than or equal to Max on
// every axis.
type AABB struct {
	Min r3.Vector `json:"min"`
	Max r3.Vector `json:"max"`
}

// NewAABB returns the smallest box that contains both points.
func NewAABB(a, b r3.Vector) AABB {
	return AABB{
		Min: MinVector(a, b),
		Max: MaxVector(a, b),
	}
}

// SurfaceArea returns the sum of the box face areas.
func (b AABB) SurfaceArea() float64 {
	d := b.Max.Sub(b.Min)
	return 2 * (d.X*d.Y + d.Y*d.Z + d.Z*d.X)
}

// Union returns the tightest box containing b and o.
func (b AABB) Union(o AABB) AABB {
	return AABB{
		Min: MinVector(b.Min, o.Min),
		Max: MaxVector(b.Max, o.Max),
	}
}

func (b AABB) Size() r3.Vector {
	return b.Max.Sub(b.Min)
}

func (b AABB) Center() r3.Vector {
	return b.Min.Add(b.Max).Mul(0.5)
}

// Valid reports whether Min <= Max on every axis.
func (b AABB) Valid() bool {
	return b.Min.X <= b.Max.X &&
		b.Min.Y <= b.Max.Y &&
		b.Min.Z <= b.Max.Z
}

// Expand returns the box grown by pad on each side.
func (b AABB) Expand(pad r3.Vector) AABB {
	return AABB{
		Min: b.Min.Sub(pad),
		Max: b.Max.Add(pad),
	}
}

// Overlap reports whether the boxes intersect. Touching boxes overlap.
func (b AABB) Overlap(o AABB) bool {
	return b.Min.X <= o.Max.X && b.Max.X >= o.Min.X &&
		b.Min.Y <= o.Max.Y && b.Max.Y >= o.Min.Y &&
		b.Min.Z <= o.Max.Z && b.Max.Z >= o.Min.Z
}

// Contains reports whether o is fully inside b.
func (b AABB) Contains(o AABB) bool {
	return b.Min.X <= o.Min.X && o.Max.X <= b.Max.X &&
		b.Min.Y <= o.Min.Y && o.Max.Y <= b.Max.Y &&
		b.Min.Z <= o.Min.Z && o.Max.Z <= b.Max.Z
}

func (b AABB) ContainsPoint(p r3.Vector) bool {
	return b.Min.X <= p.X && p.X <= b.Max.X &&
		b.Min.Y <= p.Y && p.Y <= b.Max.Y &&
		b.Min.Z <= p.Z && p.Z <= b.Max.Z
}

// ClosestPoint returns the point of the box nearest to p.
func (b AABB) ClosestPoint(p r3.Vector) r3.Vector {
	return r3.Vector{
		X: clamp(p.X, b.Min.X, b.Max.X),
		Y: clamp(p.Y, b.Min.Y, b.Max.Y),
		Z: clamp(p.Z, b.Min.Z, b.Max.Z),
	}
}

// DistanceToPoint returns the euclidean distance between p and the box. It is
// zero when p is inside.
func (b AABB) DistanceToPoint(p r3.Vector) float64 {
	return b.ClosestPoint(p).Distance(p)
}

// PlanarDistanceToPoint returns the distance between p and the box on the
// horizontal plane. Heights are ignored.
func (b AABB) PlanarDistanceToPoint(p r3.Vector) float64 {
	dx := p.X - clamp(p.X, b.Min.X, b.Max.X)
	dz := p.Z - clamp(p.Z, b.Min.Z, b.Max.Z)
	return math.Hypot(dx, dz)
}

// OverlapSegment reports whether the segment going from a to b crosses the
// box. It clips the segment parameter range against the three slabs and fails
// as soon as the range becomes empty.
func (b AABB) OverlapSegment(from, to r3.Vector) bool {
	dir := to.Sub(from)
	tmin, tmax := 0.0, 1.0

	for axis := 0; axis < 3; axis++ {
		origin, d := component(from, axis), component(dir, axis)
		lo, hi := component(b.Min, axis), component(b.Max, axis)

		if math.Abs(d) < epsilon {
			if origin < lo || origin > hi {
				return false
			}
			continue
		}

		t1 := (lo - origin) / d
		t2 := (hi - origin) / d
		if t1 > t2 {
			t1, t2 = t2, t1
		}

		tmin = math.Max(tmin, t1)
		tmax = math.Min(tmax, t2)
		if tmin > tmax {
			return false
		}
	}

	return true
}

func (b AABB) String() string {
	return fmt.Sprintf("[%v - %v]", b.Min, b.Max)
}
