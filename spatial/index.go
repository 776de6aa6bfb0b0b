// Package spatial keeps a spatial index in sync with a population of agents
// and answers read-only queries about them.
package spatial

import (
	"time"

	"github.com/aukilabs/crowdnav/bvh"
	"github.com/aukilabs/crowdnav/geometry"
	"github.com/aukilabs/crowdnav/models"
	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/golang/geo/r3"
)

const (
	BackendTree = "tree"
	BackendGrid = "grid"

	DefaultPadding         = 0.4
	DefaultCellSize        = 3
	DefaultInitialCapacity = 256

	ErrTypeUnknownBackend = "unknown_backend"
)

// Entry is the agent data passed to query visitors.
type Entry struct {
	Entity    models.EntityID  `json:"entity_id"`
	Body      models.Body      `json:"body"`
	Shape     models.Shape     `json:"shape"`
	Transform models.Transform `json:"transform"`
}

// Visitor is called for each agent matching a query. Returning false stops
// the query.
type Visitor func(Entry) bool

// Querier is the read-only side of an index. Queries only visit agents whose
// layers intersect the given layers and return the number of visited agents.
type Querier interface {
	// Visits the agents crossed by the segment going from a point to another.
	QueryLine(from, to r3.Vector, layers models.NavigationLayers, visit Visitor) int

	// Visits the agents overlapping a box.
	QueryAABB(box geometry.AABB, layers models.NavigationLayers, visit Visitor) int

	// Visits the agents overlapping a sphere.
	QuerySphere(center r3.Vector, radius float64, layers models.NavigationLayers, visit Visitor) int

	// Visits the agents overlapping an upright cylinder standing on center.
	QueryCylinder(center r3.Vector, radius, height float64, layers models.NavigationLayers, visit Visitor) int

	// Visits, nearest first, at most maxCount agents whose position is within
	// radius of center. Zero or negative maxCount means no limit.
	QueryNearest(center r3.Vector, radius float64, maxCount int, layers models.NavigationLayers, visit Visitor) int

	// Visits the agents overlapping a circle on the horizontal plane, at any
	// height. Agents are visited by increasing horizontal distance between
	// their position and center, at most maxCount of them. Zero or negative
	// maxCount means no limit.
	QueryCircle(center r3.Vector, radius float64, maxCount int, layers models.NavigationLayers, visit Visitor) int

	// Same as QueryCircle, restricted to the agents overlapping an upright
	// cylinder standing on center.
	QueryCylinderNearest(center r3.Vector, radius, height float64, maxCount int, layers models.NavigationLayers, visit Visitor) int

	// Returns the number of indexed agents.
	Len() int
}

// Index is a spatial index synchronized once per tick.
type Index interface {
	Querier

	// Returns the backend name.
	Name() string

	// Synchronizes the index with the given agents: agents that are not
	// indexed yet are added, missing ones are removed and others are updated.
	// Sync must not run concurrently with queries.
	Sync(agents []models.Agent) (SyncStats, error)

	// Returns the index health.
	Stats() Stats

	// Releases the index resources.
	Close()
}

// SyncStats describes what a Sync call did.
type SyncStats struct {
	Added      int           `json:"added"`
	Removed    int           `json:"removed"`
	Updated    int           `json:"updated"`
	Reinserted int           `json:"reinserted"`
	Duration   time.Duration `json:"duration"`
}

// Stats describes an index health.
type Stats struct {
	Backend string     `json:"backend"`
	Agents  int        `json:"agents"`
	Tree    *bvh.Stats `json:"tree,omitempty"`
	Cells   int        `json:"cells,omitempty"`
}

// Config is the index configuration.
type Config struct {
	// The backend name: tree or grid.
	Backend string

	// The margin added around agent bounds in the tree. Agents are only
	// reinserted when they leave their enlarged bounds.
	Padding float64

	// Enlarges reinserted bounds in the direction of the agent displacement
	// since the previous sync, scaled by this factor.
	Prediction float64

	// Disables tree rotations on insert.
	DisableRotation bool

	// The size of a grid cell.
	CellSize float64

	// The maximum number of candidates a grid nearest query checks. Zero
	// means no limit.
	QueryChecks int

	// The initial number of tracked agents.
	InitialCapacity int
}

func (c *Config) setDefaults() {
	if c.Backend == "" {
		c.Backend = BackendTree
	}
	if c.Padding < 0 {
		c.Padding = 0
	}
	if c.CellSize <= 0 {
		c.CellSize = DefaultCellSize
	}
	if c.InitialCapacity <= 0 {
		c.InitialCapacity = DefaultInitialCapacity
	}
}

// New returns the index for the configured backend.
func New(conf Config) (Index, error) {
	conf.setDefaults()

	switch conf.Backend {
	case BackendTree:
		return NewTreeIndex(conf), nil

	case BackendGrid:
		return NewGridIndex(conf), nil

	default:
		return nil, errors.New("unknown spatial index backend").
			WithType(ErrTypeUnknownBackend).
			WithTag("backend", conf.Backend)
	}
}
