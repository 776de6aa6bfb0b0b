package models

import "sync"

// SequentialIDGenerator generates increasing ids starting at 1. Released ids
// are handed out again, most recently released first.
type SequentialIDGenerator[ID ~uint32] struct {
	mutex       sync.Mutex
	currentID   ID
	reusableIDs []ID
}

// New returns a sequential id.
func (g *SequentialIDGenerator[ID]) New() ID {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	if n := len(g.reusableIDs); n != 0 {
		id := g.reusableIDs[n-1]
		g.reusableIDs = g.reusableIDs[:n-1]
		return id
	}

	g.currentID++
	return g.currentID
}

// Reuse marks the given id as reusable. Reusable ids are returned in priority
// when using New.
func (g *SequentialIDGenerator[ID]) Reuse(id ID) {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	g.reusableIDs = append(g.reusableIDs, id)
}
