package flock

import (
	"sync"

	"github.com/aukilabs/crowdnav/models"
	"github.com/golang/geo/r3"
)

// Steering is the flocking result of an agent.
type Steering struct {
	Force     r3.Vector `json:"force"`
	Neighbors int       `json:"neighbors"`
}

// State represents a state that keeps track of the last computed flocking
// steering of each agent.
type State struct {
	mutex     sync.RWMutex
	steerings map[models.EntityID]Steering
}

func (s *State) replace(steerings map[models.EntityID]Steering) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.steerings = steerings
}

func (s *State) Steering(id models.EntityID) (Steering, bool) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	st, ok := s.steerings[id]
	return st, ok
}

func (s *State) Len() int {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	return len(s.steerings)
}
