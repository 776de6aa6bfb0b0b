package geometry

import (
	"math"

	"github.com/golang/geo/r3"
)

// Shape is a query shape that can be tested against boxes.
type Shape interface {
	// Returns a box containing the shape.
	Bounds() AABB

	// Reports whether the shape intersects the given box.
	Overlaps(AABB) bool
}

func (b AABB) Bounds() AABB {
	return b
}

func (b AABB) Overlaps(o AABB) bool {
	return b.Overlap(o)
}

// Segment is a line segment.
type Segment struct {
	From r3.Vector
	To   r3.Vector
}

func (s Segment) Bounds() AABB {
	return NewAABB(s.From, s.To)
}

func (s Segment) Overlaps(b AABB) bool {
	return b.OverlapSegment(s.From, s.To)
}

// Sphere is a ball.
type Sphere struct {
	Center r3.Vector
	Radius float64
}

func (s Sphere) Bounds() AABB {
	return AABB{
		Min: s.Center.Sub(Splat(s.Radius)),
		Max: s.Center.Add(Splat(s.Radius)),
	}
}

func (s Sphere) Overlaps(b AABB) bool {
	return b.DistanceToPoint(s.Center) <= s.Radius
}

// Cylinder is an upright cylinder standing on Base.
type Cylinder struct {
	Base   r3.Vector
	Radius float64
	Height float64
}

func (c Cylinder) Bounds() AABB {
	return AABB{
		Min: c.Base.Sub(r3.Vector{X: c.Radius, Z: c.Radius}),
		Max: c.Base.Add(r3.Vector{X: c.Radius, Y: c.Height, Z: c.Radius}),
	}
}

func (c Cylinder) Overlaps(b AABB) bool {
	if b.Max.Y < c.Base.Y || b.Min.Y > c.Base.Y+c.Height {
		return false
	}

	return b.PlanarDistanceToPoint(c.Base) <= c.Radius
}

// Circle is a disk on the horizontal plane that spans every height.
type Circle struct {
	Center r3.Vector
	Radius float64
}

func (c Circle) Bounds() AABB {
	return AABB{
		Min: r3.Vector{X: c.Center.X - c.Radius, Y: math.Inf(-1), Z: c.Center.Z - c.Radius},
		Max: r3.Vector{X: c.Center.X + c.Radius, Y: math.Inf(1), Z: c.Center.Z + c.Radius},
	}
}

func (c Circle) Overlaps(b AABB) bool {
	return b.PlanarDistanceToPoint(c.Center) <= c.Radius
}
