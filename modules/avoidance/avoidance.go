// Package avoidance pushes overlapping agents away from each other.
package avoidance

import (
	"context"
	"sync"

	"github.com/aukilabs/crowdnav/geometry"
	"github.com/aukilabs/crowdnav/models"
	"github.com/aukilabs/crowdnav/modules"
	"github.com/aukilabs/crowdnav/spatial"
	"github.com/golang/geo/r3"
)

type Config struct {
	// The distance kept between agent shapes.
	Margin float64

	// Scales the push away vector.
	Strength float64
}

func DefaultConfig() Config {
	return Config{
		Margin:   0.2,
		Strength: 1,
	}
}

// Contact is the avoidance result of an agent.
type Contact struct {
	Push     r3.Vector `json:"push"`
	Contacts int       `json:"contacts"`
}

// State represents a state that keeps track of the agents in contact with
// others.
type State struct {
	mutex    sync.RWMutex
	contacts map[models.EntityID]Contact
}

func (s *State) replace(contacts map[models.EntityID]Contact) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.contacts = contacts
}

func (s *State) Contact(id models.EntityID) (Contact, bool) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	c, ok := s.contacts[id]
	return c, ok
}

// Len returns the number of agents in contact.
func (s *State) Len() int {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	return len(s.contacts)
}

type Module struct {
	conf  Config
	state *State
}

func New(conf Config) *Module {
	return &Module{
		conf:  conf,
		state: &State{},
	}
}

func (m *Module) Name() string {
	return "avoidance"
}

func (m *Module) State() *State {
	return m.state
}

func (m *Module) HandleTick(ctx context.Context, tick modules.Tick) error {
	contacts := make(map[models.EntityID]Contact)

	err := modules.Walk(ctx, tick, func(a models.Agent) {
		if c := m.avoid(tick.Index, a); c.Contacts != 0 {
			contacts[a.ID] = c
		}
	})
	if err != nil {
		return err
	}

	m.state.replace(contacts)
	return nil
}

func (m *Module) avoid(index spatial.Querier, a models.Agent) Contact {
	position := a.Transform.Position
	radius := a.Shape.Radius + m.conf.Margin
	height := a.Bounds().Max.Y - position.Y

	var c Contact
	index.QueryCylinder(position, radius, height, a.Layers, func(e spatial.Entry) bool {
		if e.Entity == a.ID {
			return true
		}

		offset := geometry.Planar(position.Sub(e.Transform.Position))
		distance := offset.Norm()
		penetration := radius + e.Shape.Radius - distance
		if penetration <= 0 {
			return true
		}

		direction := r3.Vector{X: 1}
		if distance > 0 {
			direction = offset.Mul(1 / distance)
		} else if a.ID < e.Entity {
			direction = direction.Mul(-1)
		}

		c.Push = c.Push.Add(direction.Mul(penetration * m.conf.Strength))
		c.Contacts++
		return true
	})
	return c
}

// Steering returns the last push away vector computed for the given agent.
func (m *Module) Steering(id models.EntityID) r3.Vector {
	c, _ := m.state.Contact(id)
	return c.Push
}
