package sight

import (
	"context"
	"testing"

	"github.com/aukilabs/crowdnav/models"
	"github.com/aukilabs/crowdnav/modules"
	"github.com/aukilabs/crowdnav/spatial"
	"github.com/golang/geo/r3"
	"github.com/stretchr/testify/require"
)

func newAgent(id models.EntityID, position, destination r3.Vector) models.Agent {
	return models.Agent{
		ID:     id,
		Layers: 1,
		Body:   models.Body{Destination: destination},
		Shape:  models.Shape{Type: models.ShapeCylinder, Radius: 0.5, Height: 2},
		Transform: models.Transform{
			Position: position,
		},
	}
}

func TestModuleHandleTick(t *testing.T) {
	agents := []models.Agent{
		newAgent(1, r3.Vector{}, r3.Vector{X: 10}),
		newAgent(2, r3.Vector{X: 5}, r3.Vector{X: 5}),
		newAgent(3, r3.Vector{X: 5, Z: 5}, r3.Vector{X: 5, Z: 10}),
	}

	for _, backend := range []string{spatial.BackendTree, spatial.BackendGrid} {
		t.Run(backend, func(t *testing.T) {
			idx, err := spatial.New(spatial.Config{Backend: backend})
			require.NoError(t, err)
			defer idx.Close()

			_, err = idx.Sync(agents)
			require.NoError(t, err)

			m := New(1, 4)
			require.Equal(t, "sight", m.Name())

			err = m.HandleTick(context.Background(), modules.Tick{Agents: agents, Index: idx})
			require.NoError(t, err)

			v, ok := m.State().Visibility(1)
			require.True(t, ok)
			require.False(t, v.Visible())
			require.Equal(t, []models.EntityID{2}, v.Blockers)

			v, ok = m.State().Visibility(2)
			require.True(t, ok)
			require.True(t, v.Visible())

			v, ok = m.State().Visibility(3)
			require.True(t, ok)
			require.True(t, v.Visible())

			require.Equal(t, 1, m.State().Blocked())
		})
	}
}

func TestModuleMaxBlockers(t *testing.T) {
	agents := []models.Agent{newAgent(1, r3.Vector{}, r3.Vector{X: 20})}
	for i := 0; i < 5; i++ {
		agents = append(agents, newAgent(models.EntityID(i+2), r3.Vector{X: float64(3 + 3*i)}, r3.Vector{X: float64(3 + 3*i)}))
	}

	idx := spatial.NewTreeIndex(spatial.Config{})
	defer idx.Close()
	_, err := idx.Sync(agents)
	require.NoError(t, err)

	m := New(1, 2)
	err = m.HandleTick(context.Background(), modules.Tick{Agents: agents, Index: idx})
	require.NoError(t, err)

	v, _ := m.State().Visibility(1)
	require.Len(t, v.Blockers, 2)
}
