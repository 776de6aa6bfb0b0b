package spatial

import (
	"math"
	"slices"
	"time"

	"github.com/aukilabs/crowdnav/bvh"
	"github.com/aukilabs/crowdnav/geometry"
	"github.com/aukilabs/crowdnav/models"
	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/golang/geo/r3"
)

type trackedAgent struct {
	handle     bvh.Handle
	slot       int
	fat        geometry.AABB
	bounds     geometry.AABB
	position   r3.Vector
	generation uint64
}

// TreeIndex indexes agents in a dynamic bounding volume hierarchy. Agent
// bounds are enlarged by a padding so that agents moving inside their
// enlarged bounds don't change the tree.
type TreeIndex struct {
	conf       Config
	tree       *bvh.Tree[geometry.AABB, int]
	tracked    map[models.EntityID]*trackedAgent
	snapshot   snapshot
	generation uint64
	stale      []models.EntityID
}

// NewTreeIndex returns an empty tree index.
func NewTreeIndex(conf Config) *TreeIndex {
	conf.setDefaults()

	return &TreeIndex{
		conf:     conf,
		tree:     bvh.New[geometry.AABB, int](2 * conf.InitialCapacity),
		tracked:  make(map[models.EntityID]*trackedAgent, conf.InitialCapacity),
		snapshot: newSnapshot(conf.InitialCapacity),
	}
}

func (idx *TreeIndex) Name() string {
	return BackendTree
}

func (idx *TreeIndex) Len() int {
	return idx.tree.Len()
}

// Tree returns the underlying tree. It must only be read.
func (idx *TreeIndex) Tree() *bvh.Tree[geometry.AABB, int] {
	return idx.tree
}

// Handle returns the tree leaf of the given agent.
func (idx *TreeIndex) Handle(id models.EntityID) (bvh.Handle, bool) {
	a, ok := idx.tracked[id]
	if !ok {
		return bvh.Null, false
	}
	return a.handle, true
}

// FatBounds returns the enlarged bounds stored in the tree for the given
// agent.
func (idx *TreeIndex) FatBounds(id models.EntityID) (geometry.AABB, bool) {
	a, ok := idx.tracked[id]
	if !ok {
		return geometry.AABB{}, false
	}
	return a.fat, true
}

func (idx *TreeIndex) Sync(agents []models.Agent) (SyncStats, error) {
	start := time.Now()
	var stats SyncStats

	idx.generation++
	for _, a := range agents {
		if t, ok := idx.tracked[a.ID]; ok {
			t.generation = idx.generation
		}
	}

	idx.stale = idx.stale[:0]
	for id, t := range idx.tracked {
		if t.generation != idx.generation {
			idx.stale = append(idx.stale, id)
		}
	}
	slices.Sort(idx.stale)

	for _, id := range idx.stale {
		if err := idx.remove(id); err != nil {
			return stats, err
		}
		stats.Removed++
	}

	for _, a := range agents {
		t, ok := idx.tracked[a.ID]
		if !ok {
			idx.add(a)
			stats.Added++
			continue
		}

		reinserted, err := idx.update(t, a)
		if err != nil {
			return stats, err
		}
		stats.Updated++
		if reinserted {
			stats.Reinserted++
		}
	}

	stats.Duration = time.Since(start)
	return stats, nil
}

func (idx *TreeIndex) add(a models.Agent) {
	slot := idx.snapshot.acquire()
	idx.snapshot.write(slot, a)

	tight := a.Bounds()
	fat := tight.Expand(geometry.Splat(idx.conf.Padding))
	idx.tracked[a.ID] = &trackedAgent{
		handle:     idx.tree.Insert(fat, slot, !idx.conf.DisableRotation),
		slot:       slot,
		fat:        fat,
		bounds:     tight,
		position:   a.Transform.Position,
		generation: idx.generation,
	}
}

// update refreshes the agent snapshot. An agent leaving its enlarged bounds
// gets a new leaf bounding both its previous and its current bounds, inserted
// before the previous leaf is removed so that its handle always changes.
func (idx *TreeIndex) update(t *trackedAgent, a models.Agent) (bool, error) {
	idx.snapshot.write(t.slot, a)

	tight := a.Bounds()
	previous, displacement := t.bounds, a.Transform.Position.Sub(t.position)
	t.bounds = tight
	t.position = a.Transform.Position

	if t.fat.Contains(tight) {
		return false, nil
	}

	fat := tight.Union(previous).Expand(geometry.Splat(idx.conf.Padding))
	if idx.conf.Prediction > 0 {
		d := displacement.Mul(idx.conf.Prediction)
		fat = geometry.AABB{
			Min: fat.Min.Add(geometry.MinVector(d, r3.Vector{})),
			Max: fat.Max.Add(geometry.MaxVector(d, r3.Vector{})),
		}
	}

	handle := idx.tree.Insert(fat, t.slot, !idx.conf.DisableRotation)
	if err := idx.tree.RemoveAt(t.handle); err != nil {
		idx.tree.RemoveAt(handle)
		return false, errors.New("removing moved agent failed").
			WithTag("entity_id", a.ID).
			Wrap(err)
	}

	t.handle = handle
	t.fat = fat
	return true, nil
}

func (idx *TreeIndex) remove(id models.EntityID) error {
	t := idx.tracked[id]
	if err := idx.tree.RemoveAt(t.handle); err != nil {
		return errors.New("removing agent failed").
			WithTag("entity_id", id).
			Wrap(err)
	}

	idx.snapshot.release(t.slot)
	delete(idx.tracked, id)
	return nil
}

func (idx *TreeIndex) QueryLine(from, to r3.Vector, layers models.NavigationLayers, visit Visitor) int {
	return idx.query(geometry.Segment{From: from, To: to}, layers, visit)
}

func (idx *TreeIndex) QueryAABB(box geometry.AABB, layers models.NavigationLayers, visit Visitor) int {
	return idx.query(box, layers, visit)
}

func (idx *TreeIndex) QuerySphere(center r3.Vector, radius float64, layers models.NavigationLayers, visit Visitor) int {
	return idx.query(geometry.Sphere{Center: center, Radius: radius}, layers, visit)
}

func (idx *TreeIndex) QueryCylinder(center r3.Vector, radius, height float64, layers models.NavigationLayers, visit Visitor) int {
	return idx.query(geometry.Cylinder{Base: center, Radius: radius, Height: height}, layers, visit)
}

// query walks the subtrees whose enlarged bounds overlap the shape and visits
// the agents whose tight bounds overlap it.
func (idx *TreeIndex) query(shape geometry.Shape, layers models.NavigationLayers, visit Visitor) int {
	count := 0
	idx.tree.Query(shape.Overlaps, func(h bvh.Handle, n bvh.Node[geometry.AABB, int]) bool {
		slot := n.Value
		if !idx.snapshot.matches(slot, layers) || !shape.Overlaps(idx.snapshot.bounds(slot)) {
			return true
		}

		count++
		return visit(idx.snapshot.entry(slot))
	})
	return count
}

func (idx *TreeIndex) QueryNearest(center r3.Vector, radius float64, maxCount int, layers models.NavigationLayers, visit Visitor) int {
	if radius <= 0 {
		return 0
	}

	return idx.tree.QueryNearest(bvh.NearestQuery[geometry.AABB, int]{
		LowerBound: func(b geometry.AABB) float64 {
			return b.DistanceToPoint(center)
		},
		Distance: func(n bvh.Node[geometry.AABB, int]) float64 {
			if !idx.snapshot.matches(n.Value, layers) {
				return math.Inf(1)
			}
			return idx.snapshot.transforms[n.Value].Position.Distance(center)
		},
		MaxCount:    maxCount,
		MaxDistance: radius,
	}, func(h bvh.Handle, n bvh.Node[geometry.AABB, int], distance float64) bool {
		return visit(idx.snapshot.entry(n.Value))
	})
}

func (idx *TreeIndex) QueryCircle(center r3.Vector, radius float64, maxCount int, layers models.NavigationLayers, visit Visitor) int {
	return idx.queryPlanarNearest(geometry.Circle{Center: center, Radius: radius}, center, radius, maxCount, layers, visit)
}

func (idx *TreeIndex) QueryCylinderNearest(center r3.Vector, radius, height float64, maxCount int, layers models.NavigationLayers, visit Visitor) int {
	return idx.queryPlanarNearest(geometry.Cylinder{Base: center, Radius: radius, Height: height}, center, radius, maxCount, layers, visit)
}

// queryPlanarNearest visits the agents whose tight bounds overlap the shape,
// ordered by the horizontal distance between their position and center.
// Subtrees missing the shape are never expanded.
func (idx *TreeIndex) queryPlanarNearest(shape geometry.Shape, center r3.Vector, radius float64, maxCount int, layers models.NavigationLayers, visit Visitor) int {
	if radius < 0 {
		return 0
	}

	return idx.tree.QueryNearest(bvh.NearestQuery[geometry.AABB, int]{
		LowerBound: func(b geometry.AABB) float64 {
			if !shape.Overlaps(b) {
				return math.Inf(1)
			}
			return b.PlanarDistanceToPoint(center)
		},
		Distance: func(n bvh.Node[geometry.AABB, int]) float64 {
			slot := n.Value
			if !idx.snapshot.matches(slot, layers) || !shape.Overlaps(idx.snapshot.bounds(slot)) {
				return math.Inf(1)
			}
			return planarDistance(idx.snapshot.transforms[slot].Position, center)
		},
		MaxCount: maxCount,
	}, func(h bvh.Handle, n bvh.Node[geometry.AABB, int], distance float64) bool {
		return visit(idx.snapshot.entry(n.Value))
	})
}

func planarDistance(a, b r3.Vector) float64 {
	return geometry.Planar(a.Sub(b)).Norm()
}

func (idx *TreeIndex) Stats() Stats {
	stats := idx.tree.Stats()
	return Stats{
		Backend: BackendTree,
		Agents:  idx.tree.Len(),
		Tree:    &stats,
	}
}

func (idx *TreeIndex) Close() {
	idx.tree.Clear()
	idx.snapshot.reset()
	clear(idx.tracked)
}
