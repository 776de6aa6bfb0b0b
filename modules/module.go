package modules

import (
	"context"
	"time"

	"github.com/aukilabs/crowdnav/models"
	"github.com/aukilabs/crowdnav/spatial"
	"github.com/golang/geo/r3"
)

// Tick is the data a module receives during the query phase of a world tick.
// Agents and Index must only be read.
type Tick struct {
	Frame  uint64
	Delta  time.Duration
	Agents []models.Agent
	Index  spatial.Querier
}

// Module is the interface that describes a module that consumes the spatial
// index once per tick.
type Module interface {
	// Returns the module name.
	Name() string

	// Handles a tick query phase. Modules run concurrently with each other
	// and must not mutate the tick data.
	//
	// Returned errors abort the tick.
	HandleTick(ctx context.Context, tick Tick) error
}

// Steerer is implemented by modules that contribute to agent movement. The
// world adds the returned vector to the agent velocity on the next tick.
type Steerer interface {
	Steering(id models.EntityID) r3.Vector
}

// checkEvery is the number of agents processed between two context checks.
const checkEvery = 64

// Walk calls fn for each moving agent of the tick and stops early when the
// context is canceled.
func Walk(ctx context.Context, tick Tick, fn func(models.Agent)) error {
	for i, a := range tick.Agents {
		if i%checkEvery == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}

		if a.Body.IsStopped {
			continue
		}
		fn(a)
	}
	return nil
}
