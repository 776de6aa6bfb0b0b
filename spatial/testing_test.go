package spatial

import (
	"math/rand"
	"sort"

	"github.com/aukilabs/crowdnav/geometry"
	"github.com/aukilabs/crowdnav/models"
	"github.com/golang/geo/r3"
)

func newAgent(id models.EntityID, x, z float64) models.Agent {
	return models.Agent{
		ID:     id,
		Layers: 1,
		Shape: models.Shape{
			Type:   models.ShapeCylinder,
			Radius: 0.5,
			Height: 2,
		},
		Transform: models.Transform{
			Position: r3.Vector{X: x, Z: z},
			Scale:    1,
		},
	}
}

func randomAgents(rnd *rand.Rand, n int, extent float64) []models.Agent {
	agents := make([]models.Agent, n)
	for i := range agents {
		agents[i] = newAgent(models.EntityID(i+1), rnd.Float64()*extent, rnd.Float64()*extent)
		agents[i].Layers = models.NavigationLayers(1 << (i % 3))
	}
	return agents
}

func collect(query func(Visitor) int) []models.EntityID {
	var ids []models.EntityID
	query(func(e Entry) bool {
		ids = append(ids, e.Entity)
		return true
	})
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func bruteForce(agents []models.Agent, layers models.NavigationLayers, shape geometry.Shape) []models.EntityID {
	var ids []models.EntityID
	for _, a := range agents {
		if a.Layers.Any(layers) && shape.Overlaps(a.Bounds()) {
			ids = append(ids, a.ID)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// collectInOrder returns the visited ids in visit order.
func collectInOrder(query func(Visitor) int) []models.EntityID {
	var ids []models.EntityID
	query(func(e Entry) bool {
		ids = append(ids, e.Entity)
		return true
	})
	return ids
}

// bruteForcePlanarNearest returns the ids of the agents overlapping the
// shape, ordered by horizontal distance to center, truncated to maxCount
// when positive.
func bruteForcePlanarNearest(agents []models.Agent, layers models.NavigationLayers, shape geometry.Shape, center r3.Vector, maxCount int) []models.EntityID {
	var found []models.Agent
	for _, a := range agents {
		if a.Layers.Any(layers) && shape.Overlaps(a.Bounds()) {
			found = append(found, a)
		}
	}

	distance := func(a models.Agent) float64 {
		return geometry.Planar(a.Transform.Position.Sub(center)).Norm()
	}
	sort.Slice(found, func(i, j int) bool {
		return distance(found[i]) < distance(found[j])
	})

	if maxCount > 0 && len(found) > maxCount {
		found = found[:maxCount]
	}

	var ids []models.EntityID
	for _, a := range found {
		ids = append(ids, a.ID)
	}
	return ids
}

// stackAgents spreads the agents over several heights.
func stackAgents(agents []models.Agent, levels int, spacing float64) []models.Agent {
	for i := range agents {
		agents[i].Transform.Position.Y = float64(i%levels) * spacing
	}
	return agents
}
