package geometry

import (
	"math"

	"github.com/golang/geo/r3"
)

const epsilon = 1e-9

// MinVector returns the componentwise minimum of a and b.
func MinVector(a, b r3.Vector) r3.Vector {
	return r3.Vector{
		X: math.Min(a.X, b.X),
		Y: math.Min(a.Y, b.Y),
		Z: math.Min(a.Z, b.Z),
	}
}

// MaxVector returns the componentwise maximum of a and b.
func MaxVector(a, b r3.Vector) r3.Vector {
	return r3.Vector{
		X: math.Max(a.X, b.X),
		Y: math.Max(a.Y, b.Y),
		Z: math.Max(a.Z, b.Z),
	}
}

// Splat returns a vector with v on every axis.
func Splat(v float64) r3.Vector {
	return r3.Vector{X: v, Y: v, Z: v}
}

// Planar drops the vertical component of v.
func Planar(v r3.Vector) r3.Vector {
	return r3.Vector{X: v.X, Z: v.Z}
}

// ClampLength returns v scaled down so that its norm does not exceed max.
func ClampLength(v r3.Vector, max float64) r3.Vector {
	n := v.Norm()
	if n <= max || n == 0 {
		return v
	}
	return v.Mul(max / n)
}

func component(v r3.Vector, axis int) float64 {
	switch axis {
	case 0:
		return v.X
	case 1:
		return v.Y
	default:
		return v.Z
	}
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(v, hi))
}
