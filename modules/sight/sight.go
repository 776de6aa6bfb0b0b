// Package sight tracks whether agents can see their destination.
package sight

import (
	"context"
	"sync"

	"github.com/aukilabs/crowdnav/models"
	"github.com/aukilabs/crowdnav/modules"
	"github.com/aukilabs/crowdnav/spatial"
	"github.com/golang/geo/r3"
)

// Visibility is the line of sight of an agent to its destination.
type Visibility struct {
	Blockers []models.EntityID `json:"blockers"`
}

func (v Visibility) Visible() bool {
	return len(v.Blockers) == 0
}

// State represents a state that keeps track of agent lines of sight.
type State struct {
	mutex        sync.RWMutex
	visibilities map[models.EntityID]Visibility
}

func (s *State) replace(visibilities map[models.EntityID]Visibility) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.visibilities = visibilities
}

func (s *State) Visibility(id models.EntityID) (Visibility, bool) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	v, ok := s.visibilities[id]
	return v, ok
}

// Blocked returns the number of agents whose destination is hidden.
func (s *State) Blocked() int {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	blocked := 0
	for _, v := range s.visibilities {
		if !v.Visible() {
			blocked++
		}
	}
	return blocked
}

type Module struct {
	// The height of the line of sight above agent positions.
	EyeHeight float64

	// The maximum number of blockers recorded per agent.
	MaxBlockers int

	state *State
}

func New(eyeHeight float64, maxBlockers int) *Module {
	return &Module{
		EyeHeight:   eyeHeight,
		MaxBlockers: maxBlockers,
		state:       &State{},
	}
}

func (m *Module) Name() string {
	return "sight"
}

func (m *Module) State() *State {
	return m.state
}

func (m *Module) HandleTick(ctx context.Context, tick modules.Tick) error {
	visibilities := make(map[models.EntityID]Visibility, len(tick.Agents))

	err := modules.Walk(ctx, tick, func(a models.Agent) {
		visibilities[a.ID] = m.look(tick.Index, a)
	})
	if err != nil {
		return err
	}

	m.state.replace(visibilities)
	return nil
}

func (m *Module) look(index spatial.Querier, a models.Agent) Visibility {
	eye := r3.Vector{Y: m.EyeHeight}
	from := a.Transform.Position.Add(eye)
	to := a.Body.Destination.Add(eye)

	var v Visibility
	index.QueryLine(from, to, a.Layers, func(e spatial.Entry) bool {
		if e.Entity == a.ID {
			return true
		}

		v.Blockers = append(v.Blockers, e.Entity)
		return m.MaxBlockers <= 0 || len(v.Blockers) < m.MaxBlockers
	})
	return v
}
