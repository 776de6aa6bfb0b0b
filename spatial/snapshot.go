package spatial

import (
	"github.com/aukilabs/crowdnav/geometry"
	"github.com/aukilabs/crowdnav/models"
)

// snapshot stores agent data in parallel slices addressed by slot. Slots of
// removed agents are reused by the next added agents; slices never shrink so
// that live slots stay valid.
type snapshot struct {
	entities   []models.EntityID
	layers     []models.NavigationLayers
	bodies     []models.Body
	shapes     []models.Shape
	transforms []models.Transform
	freeSlots  []int
}

func newSnapshot(capacity int) snapshot {
	return snapshot{
		entities:   make([]models.EntityID, 0, capacity),
		layers:     make([]models.NavigationLayers, 0, capacity),
		bodies:     make([]models.Body, 0, capacity),
		shapes:     make([]models.Shape, 0, capacity),
		transforms: make([]models.Transform, 0, capacity),
	}
}

// acquire returns a slot for a new agent.
func (s *snapshot) acquire() int {
	if n := len(s.freeSlots); n != 0 {
		slot := s.freeSlots[n-1]
		s.freeSlots = s.freeSlots[:n-1]
		return slot
	}

	s.entities = append(s.entities, 0)
	s.layers = append(s.layers, 0)
	s.bodies = append(s.bodies, models.Body{})
	s.shapes = append(s.shapes, models.Shape{})
	s.transforms = append(s.transforms, models.Transform{})
	return len(s.entities) - 1
}

func (s *snapshot) release(slot int) {
	s.layers[slot] = 0
	s.freeSlots = append(s.freeSlots, slot)
}

func (s *snapshot) write(slot int, a models.Agent) {
	s.entities[slot] = a.ID
	s.layers[slot] = a.Layers
	s.bodies[slot] = a.Body
	s.shapes[slot] = a.Shape
	s.transforms[slot] = a.Transform
}

func (s *snapshot) entry(slot int) Entry {
	return Entry{
		Entity:    s.entities[slot],
		Body:      s.bodies[slot],
		Shape:     s.shapes[slot],
		Transform: s.transforms[slot],
	}
}

func (s *snapshot) bounds(slot int) geometry.AABB {
	return s.shapes[slot].Bounds(s.transforms[slot].Position)
}

// matches reports whether the slot holds an agent on one of the given layers.
func (s *snapshot) matches(slot int, layers models.NavigationLayers) bool {
	return s.layers[slot].Any(layers)
}

func (s *snapshot) reset() {
	s.entities = s.entities[:0]
	s.layers = s.layers[:0]
	s.bodies = s.bodies[:0]
	s.shapes = s.shapes[:0]
	s.transforms = s.transforms[:0]
	s.freeSlots = s.freeSlots[:0]
}

func (s *snapshot) len() int {
	return len(s.entities) - len(s.freeSlots)
}
