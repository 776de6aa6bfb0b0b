package models

import (
	"math"

	"github.com/aukilabs/crowdnav/geometry"
	"github.com/golang/geo/r3"
)

// EntityID identifies an agent in a world.
type EntityID uint32

// NavigationLayers is a bit mask of the layers an agent belongs to.
type NavigationLayers uint32

// Everything matches all the layers.
const Everything NavigationLayers = math.MaxUint32

// Any reports whether l and o share at least one layer.
func (l NavigationLayers) Any(o NavigationLayers) bool {
	return l&o != 0
}

type ShapeType int

const (
	ShapeCircle ShapeType = iota
	ShapeCylinder
)

func (t ShapeType) String() string {
	switch t {
	case ShapeCircle:
		return "circle"
	case ShapeCylinder:
		return "cylinder"
	default:
		return "unknown"
	}
}

// Shape is the agent collision shape. Circles are flat cylinders.
type Shape struct {
	Type   ShapeType `json:"type"`
	Radius float64   `json:"radius"`
	Height float64   `json:"height"`
}

// Bounds returns the box containing the shape standing at position.
func (s Shape) Bounds(position r3.Vector) geometry.AABB {
	height := s.Height
	if s.Type == ShapeCircle {
		height = 0
	}

	return geometry.AABB{
		Min: position.Sub(r3.Vector{X: s.Radius, Z: s.Radius}),
		Max: position.Add(r3.Vector{X: s.Radius, Y: height, Z: s.Radius}),
	}
}

// Body is the agent locomotion state.
type Body struct {
	Velocity    r3.Vector `json:"velocity"`
	Destination r3.Vector `json:"destination"`
	Speed       float64   `json:"speed"`
	IsStopped   bool      `json:"is_stopped"`
}

// Transform is the agent placement in the world.
type Transform struct {
	Position r3.Vector `json:"position"`
	Rotation float64   `json:"rotation"`
	Scale    float64   `json:"scale"`
}

// Agent is the snapshot of a navigating agent.
type Agent struct {
	ID        EntityID         `json:"id"`
	Layers    NavigationLayers `json:"layers"`
	Body      Body             `json:"body"`
	Shape     Shape            `json:"shape"`
	Transform Transform        `json:"transform"`
}

// Bounds returns the tight box around the agent.
func (a Agent) Bounds() geometry.AABB {
	return a.Shape.Bounds(a.Transform.Position)
}
