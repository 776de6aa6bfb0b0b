package http

import (
	"math"
	"net/http"
	"strconv"

	"github.com/aukilabs/crowdnav/models"
	"github.com/aukilabs/crowdnav/simulation"
	"github.com/aukilabs/crowdnav/spatial"
	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/golang/geo/r3"
)

const ErrTypeInvalidQuery = "invalid_query"

// World is the read side of a simulation world.
type World interface {
	AgentCount() int
	IndexStats() spatial.Stats
	LastFrame() simulation.Frame
	Select(from, to r3.Vector, layers models.NavigationLayers) (spatial.Entry, bool)
}

type statsResponse struct {
	WorldID string           `json:"world_id,omitempty"`
	Agents  int              `json:"agents"`
	Index   spatial.Stats    `json:"index"`
	Frame   simulation.Frame `json:"frame"`
}

// HandleStats responds with the spatial index health and the summary of the
// last tick.
func HandleStats(worldID string, world World) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}

		writeJSON(w, http.StatusOK, statsResponse{
			WorldID: worldID,
			Agents:  world.AgentCount(),
			Index:   world.IndexStats(),
			Frame:   world.LastFrame(),
		})
	}
}

// HandleSelect responds with the agent crossed by a segment that is the closest
// to the segment origin. The segment is given by the fx, fy, fz, tx, ty and tz
// query parameters. An optional layers parameter filters agents.
func HandleSelect(world World) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}

		from, to, layers, err := parseSelectQuery(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}

		entry, ok := world.Select(from, to, layers)
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		writeJSON(w, http.StatusOK, entry)
	}
}

func parseSelectQuery(r *http.Request) (from, to r3.Vector, layers models.NavigationLayers, err error) {
	q := r.URL.Query()

	var values [6]float64
	for i, k := range []string{"fx", "fy", "fz", "tx", "ty", "tz"} {
		v := q.Get(k)
		if v == "" {
			return from, to, layers, errors.New("missing query parameter").
				WithType(ErrTypeInvalidQuery).
				WithTag("parameter", k)
		}

		if values[i], err = strconv.ParseFloat(v, 64); err != nil {
			return from, to, layers, errors.New("invalid query parameter").
				WithType(ErrTypeInvalidQuery).
				WithTag("parameter", k).
				Wrap(err)
		}
		if math.IsNaN(values[i]) || math.IsInf(values[i], 0) {
			return from, to, layers, errors.New("query parameter is not finite").
				WithType(ErrTypeInvalidQuery).
				WithTag("parameter", k)
		}
	}

	layers = models.Everything
	if v := q.Get("layers"); v != "" {
		l, err := strconv.ParseUint(v, 10, 32)
		if err != nil {
			return from, to, layers, errors.New("invalid layers").
				WithType(ErrTypeInvalidQuery).
				Wrap(err)
		}
		layers = models.NavigationLayers(l)
	}

	from = r3.Vector{X: values[0], Y: values[1], Z: values[2]}
	to = r3.Vector{X: values[3], Y: values[4], Z: values[5]}
	return from, to, layers, nil
}
