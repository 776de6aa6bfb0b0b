package http

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/aukilabs/crowdnav/models"
	"github.com/aukilabs/crowdnav/simulation"
	"github.com/aukilabs/crowdnav/spatial"
	"github.com/golang/geo/r3"
	"github.com/segmentio/encoding/json"
	"github.com/stretchr/testify/require"
)

func newWorld(t *testing.T) *simulation.World {
	w := simulation.NewWorld(simulation.Config{}, spatial.NewTreeIndex(spatial.Config{}))
	t.Cleanup(w.Close)

	for _, x := range []float64{3, 6} {
		_, err := w.AddAgent(models.Agent{
			Layers: 1,
			Shape:  models.Shape{Type: models.ShapeCylinder, Radius: 0.5, Height: 2},
			Transform: models.Transform{
				Position: r3.Vector{X: x},
			},
			Body: models.Body{Destination: r3.Vector{X: x}, Speed: 1},
		})
		require.NoError(t, err)
	}

	_, err := w.Tick(context.Background(), time.Second)
	require.NoError(t, err)
	return w
}

func TestHandleStats(t *testing.T) {
	world := newWorld(t)
	server := httptest.NewServer(HandleStats(world.ID, world))
	defer server.Close()

	res, err := http.Get(server.URL)
	require.NoError(t, err)
	defer res.Body.Close()
	require.Equal(t, http.StatusOK, res.StatusCode)
	require.Equal(t, "application/json", res.Header.Get("Content-Type"))

	var stats statsResponse
	err = json.NewDecoder(res.Body).Decode(&stats)
	require.NoError(t, err)
	require.Equal(t, world.ID, stats.WorldID)
	require.Equal(t, 2, stats.Agents)
	require.Equal(t, spatial.BackendTree, stats.Index.Backend)
	require.NotNil(t, stats.Index.Tree)
	require.Equal(t, 3, stats.Index.Tree.Nodes)
	require.Equal(t, uint64(1), stats.Frame.Number)

	t.Run("method not allowed", func(t *testing.T) {
		res, err := http.Post(server.URL, "application/json", nil)
		require.NoError(t, err)
		res.Body.Close()
		require.Equal(t, http.StatusMethodNotAllowed, res.StatusCode)
	})
}

func TestHandleSelect(t *testing.T) {
	world := newWorld(t)
	server := httptest.NewServer(HandleSelect(world))
	defer server.Close()

	tests := []struct {
		scenario string
		query    string
		status   int
		entity   models.EntityID
	}{
		{
			scenario: "nearest agent along the segment",
			query:    "?fx=0&fy=1&fz=0&tx=10&ty=1&tz=0",
			status:   http.StatusOK,
			entity:   1,
		},
		{
			scenario: "reversed segment",
			query:    "?fx=10&fy=1&fz=0&tx=0&ty=1&tz=0",
			status:   http.StatusOK,
			entity:   2,
		},
		{
			scenario: "no agent",
			query:    "?fx=0&fy=1&fz=5&tx=10&ty=1&tz=5",
			status:   http.StatusNotFound,
		},
		{
			scenario: "filtered layers",
			query:    "?fx=0&fy=1&fz=0&tx=10&ty=1&tz=0&layers=2",
			status:   http.StatusNotFound,
		},
		{
			scenario: "missing parameter",
			query:    "?fx=0&fy=1&fz=0&tx=10&ty=1",
			status:   http.StatusBadRequest,
		},
		{
			scenario: "invalid parameter",
			query:    "?fx=zero&fy=1&fz=0&tx=10&ty=1&tz=0",
			status:   http.StatusBadRequest,
		},
		{
			scenario: "non finite parameter",
			query:    "?fx=NaN&fy=1&fz=0&tx=10&ty=1&tz=0",
			status:   http.StatusBadRequest,
		},
		{
			scenario: "invalid layers",
			query:    "?fx=0&fy=1&fz=0&tx=10&ty=1&tz=0&layers=-1",
			status:   http.StatusBadRequest,
		},
	}

	for _, test := range tests {
		t.Run(test.scenario, func(t *testing.T) {
			res, err := http.Get(server.URL + test.query)
			require.NoError(t, err)
			defer res.Body.Close()
			require.Equal(t, test.status, res.StatusCode)

			if test.status != http.StatusOK {
				return
			}

			var entry spatial.Entry
			err = json.NewDecoder(res.Body).Decode(&entry)
			require.NoError(t, err)
			require.Equal(t, test.entity, entry.Entity)
		})
	}
}
