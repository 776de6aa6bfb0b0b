// Package flock steers agents toward the group they move with.
package flock

import (
	"context"

	"github.com/aukilabs/crowdnav/geometry"
	"github.com/aukilabs/crowdnav/models"
	"github.com/aukilabs/crowdnav/modules"
	"github.com/aukilabs/crowdnav/spatial"
	"github.com/golang/geo/r3"
)

type Config struct {
	// The horizontal distance within which agents are neighbors, at any
	// height.
	Radius float64

	// The maximum number of neighbors considered per agent.
	Neighbors int

	SeparationWeight float64
	CohesionWeight   float64
	AlignmentWeight  float64

	// The maximum norm of the steering force.
	MaxForce float64
}

func DefaultConfig() Config {
	return Config{
		Radius:           4,
		Neighbors:        8,
		SeparationWeight: 1.5,
		CohesionWeight:   0.3,
		AlignmentWeight:  0.5,
		MaxForce:         2,
	}
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
	return "flock"
}

func (m *Module) State() *State {
	return m.state
}

func (m *Module) HandleTick(ctx context.Context, tick modules.Tick) error {
	steerings := make(map[models.EntityID]Steering, len(tick.Agents))

	err := modules.Walk(ctx, tick, func(a models.Agent) {
		steerings[a.ID] = m.steer(tick.Index, a)
	})
	if err != nil {
		return err
	}

	m.state.replace(steerings)
	return nil
}

func (m *Module) steer(index spatial.Querier, a models.Agent) Steering {
	position := a.Transform.Position

	var separation, center, velocity r3.Vector
	neighbors := 0

	// The agent itself is the nearest result.
	index.QueryCircle(position, m.conf.Radius, m.conf.Neighbors+1, a.Layers, func(e spatial.Entry) bool {
		if e.Entity == a.ID {
			return true
		}

		offset := geometry.Planar(position.Sub(e.Transform.Position))
		if d2 := offset.Norm2(); d2 > 0 {
			separation = separation.Add(offset.Mul(1 / d2))
		}
		center = center.Add(e.Transform.Position)
		velocity = velocity.Add(e.Body.Velocity)
		neighbors++
		return true
	})

	if neighbors == 0 {
		return Steering{}
	}

	n := float64(neighbors)
	cohesion := geometry.Planar(center.Mul(1 / n).Sub(position))
	alignment := geometry.Planar(velocity.Mul(1 / n).Sub(a.Body.Velocity))

	force := separation.Mul(m.conf.SeparationWeight).
		Add(cohesion.Mul(m.conf.CohesionWeight)).
		Add(alignment.Mul(m.conf.AlignmentWeight))

	return Steering{
		Force:     geometry.ClampLength(force, m.conf.MaxForce),
		Neighbors: neighbors,
	}
}

// Steering returns the last flocking force computed for the given agent.
func (m *Module) Steering(id models.EntityID) r3.Vector {
	st, _ := m.state.Steering(id)
	return st.Force
}
