package geometry

import (
	"testing"

	"github.com/golang/geo/r3"
	"github.com/stretchr/testify/require"
)

func box(minX, minY, minZ, maxX, maxY, maxZ float64) AABB {
	return AABB{
		Min: r3.Vector{X: minX, Y: minY, Z: minZ},
		Max: r3.Vector{X: maxX, Y: maxY, Z: maxZ},
	}
}

func TestAABBSurfaceArea(t *testing.T) {
	require.Equal(t, 6.0, box(0, 0, 0, 1, 1, 1).SurfaceArea())
	require.Equal(t, 22.0, box(0, 0, 0, 1, 2, 3).SurfaceArea())
	require.Zero(t, box(1, 1, 1, 1, 1, 1).SurfaceArea())
}

func TestAABBUnion(t *testing.T) {
	a := box(0, 0, 0, 1, 1, 1)
	b := box(5, -1, 2, 6, 0, 3)

	u := a.Union(b)
	require.Equal(t, box(0, -1, 0, 6, 1, 3), u)
	require.Equal(t, u, b.Union(a))
	require.True(t, u.Contains(a))
	require.True(t, u.Contains(b))
}

func TestAABBOverlap(t *testing.T) {
	a := box(0, 0, 0, 1, 1, 1)

	require.True(t, a.Overlap(box(0.5, 0.5, 0.5, 2, 2, 2)))
	require.True(t, a.Overlap(box(1, 1, 1, 2, 2, 2)))
	require.False(t, a.Overlap(box(1.1, 0, 0, 2, 1, 1)))
	require.False(t, a.Overlap(box(0, 0, -2, 1, 1, -0.5)))
}

func TestAABBDistanceToPoint(t *testing.T) {
	a := box(0, 0, 0, 1, 1, 1)

	require.Zero(t, a.DistanceToPoint(r3.Vector{X: 0.5, Y: 0.5, Z: 0.5}))
	require.InDelta(t, 2, a.DistanceToPoint(r3.Vector{X: 3, Y: 0.5, Z: 0.5}), 1e-9)
	require.InDelta(t, 5, a.DistanceToPoint(r3.Vector{X: 4, Y: 5, Z: 0}), 1e-9)
}

func TestAABBOverlapSegment(t *testing.T) {
	a := box(0, 0, 0, 1, 1, 1)

	t.Run("crossing", func(t *testing.T) {
		require.True(t, a.OverlapSegment(r3.Vector{X: -1, Y: 0.5, Z: 0.5}, r3.Vector{X: 2, Y: 0.5, Z: 0.5}))
		require.True(t, a.OverlapSegment(r3.Vector{X: -1, Y: -1, Z: -1}, r3.Vector{X: 2, Y: 2, Z: 2}))
	})

	t.Run("inside", func(t *testing.T) {
		require.True(t, a.OverlapSegment(r3.Vector{X: 0.2, Y: 0.2, Z: 0.2}, r3.Vector{X: 0.8, Y: 0.8, Z: 0.8}))
	})

	t.Run("too short", func(t *testing.T) {
		require.False(t, a.OverlapSegment(r3.Vector{X: -3, Y: 0.5, Z: 0.5}, r3.Vector{X: -1, Y: 0.5, Z: 0.5}))
	})

	t.Run("axis parallel outside", func(t *testing.T) {
		require.False(t, a.OverlapSegment(r3.Vector{X: -1, Y: 2, Z: 0.5}, r3.Vector{X: 2, Y: 2, Z: 0.5}))
	})

	t.Run("missing diagonal", func(t *testing.T) {
		require.False(t, a.OverlapSegment(r3.Vector{X: 2, Y: -1, Z: 0.5}, r3.Vector{X: 4, Y: 1, Z: 0.5}))
	})

	t.Run("degenerated segment", func(t *testing.T) {
		p := r3.Vector{X: 0.5, Y: 0.5, Z: 0.5}
		require.True(t, a.OverlapSegment(p, p))
		q := r3.Vector{X: 5, Y: 0.5, Z: 0.5}
		require.False(t, a.OverlapSegment(q, q))
	})
}

func TestShapes(t *testing.T) {
	a := box(0, 0, 0, 1, 1, 1)

	t.Run("sphere", func(t *testing.T) {
		s := Sphere{Center: r3.Vector{X: 2, Y: 0.5, Z: 0.5}, Radius: 1}
		require.True(t, s.Overlaps(a))
		require.Equal(t, box(1, -0.5, -0.5, 3, 1.5, 1.5), s.Bounds())

		s.Radius = 0.9
		require.False(t, s.Overlaps(a))
	})

	t.Run("cylinder", func(t *testing.T) {
		c := Cylinder{Base: r3.Vector{X: 1.5, Y: -2, Z: 0.5}, Radius: 0.6, Height: 2}
		require.True(t, c.Overlaps(a))
		require.True(t, c.Bounds().Overlap(a))

		c.Height = 1.5
		require.False(t, c.Overlaps(a))
	})

	t.Run("circle", func(t *testing.T) {
		c := Circle{Center: r3.Vector{X: 2, Y: 100, Z: 0.5}, Radius: 1}
		require.True(t, c.Overlaps(a))
		require.True(t, c.Bounds().Overlap(a))
		require.True(t, c.Bounds().Overlap(box(1.5, -1000, 0, 2, -999, 1)))

		c.Radius = 0.9
		require.False(t, c.Overlaps(a))
	})

	t.Run("segment", func(t *testing.T) {
		s := Segment{From: r3.Vector{X: 2, Y: 0.5, Z: 0.5}, To: r3.Vector{X: -2, Y: 0.5, Z: 0.5}}
		require.True(t, s.Overlaps(a))
		require.Equal(t, box(-2, 0.5, 0.5, 2, 0.5, 0.5), s.Bounds())
	})
}

func TestAABBPlanarDistanceToPoint(t *testing.T) {
	a := box(0, 0, 0, 1, 1, 1)

	require.Zero(t, a.PlanarDistanceToPoint(r3.Vector{X: 0.5, Y: 10, Z: 0.5}))
	require.InDelta(t, 2, a.PlanarDistanceToPoint(r3.Vector{X: 3, Y: -4, Z: 0.5}), 1e-9)
	require.InDelta(t, 5, a.PlanarDistanceToPoint(r3.Vector{X: 4, Y: 7, Z: 5}), 1e-9)
}
