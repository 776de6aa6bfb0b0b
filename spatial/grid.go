package spatial

import (
	"math"
	"sort"
	"time"

	"github.com/aukilabs/crowdnav/geometry"
	"github.com/aukilabs/crowdnav/models"
	"github.com/golang/geo/r3"
)

// maxLineCells bounds the number of cells walked by a line query.
const maxLineCells = 4096

type cell struct {
	X, Y, Z int
}

// GridIndex indexes agents in a uniform grid rebuilt from scratch on every
// sync. Agents are stored in every cell their bounds overlap.
type GridIndex struct {
	conf     Config
	cells    map[cell][]int
	snapshot snapshot
	known    map[models.EntityID]struct{}
	next     map[models.EntityID]struct{}

	// Vertical extent of the indexed agents. Query cell ranges are clamped
	// to it so that shapes unbounded in height scan occupied cells only.
	minY, maxY float64
}

// NewGridIndex returns an empty grid index.
func NewGridIndex(conf Config) *GridIndex {
	conf.setDefaults()

	return &GridIndex{
		conf:     conf,
		cells:    make(map[cell][]int, conf.InitialCapacity),
		snapshot: newSnapshot(conf.InitialCapacity),
		known:    make(map[models.EntityID]struct{}, conf.InitialCapacity),
		next:     make(map[models.EntityID]struct{}, conf.InitialCapacity),
	}
}

func (idx *GridIndex) Name() string {
	return BackendGrid
}

func (idx *GridIndex) Len() int {
	return idx.snapshot.len()
}

func (idx *GridIndex) Sync(agents []models.Agent) (SyncStats, error) {
	start := time.Now()
	var stats SyncStats

	clear(idx.cells)
	idx.snapshot.reset()
	clear(idx.next)
	idx.minY, idx.maxY = math.Inf(1), math.Inf(-1)

	for _, a := range agents {
		if _, ok := idx.next[a.ID]; ok {
			continue
		}
		idx.next[a.ID] = struct{}{}

		if _, ok := idx.known[a.ID]; ok {
			stats.Updated++
		} else {
			stats.Added++
		}

		slot := idx.snapshot.acquire()
		idx.snapshot.write(slot, a)

		b := a.Bounds()
		idx.minY = math.Min(idx.minY, b.Min.Y)
		idx.maxY = math.Max(idx.maxY, b.Max.Y)

		min, max := idx.cellOf(b.Min), idx.cellOf(b.Max)
		for x := min.X; x <= max.X; x++ {
			for y := min.Y; y <= max.Y; y++ {
				for z := min.Z; z <= max.Z; z++ {
					c := cell{X: x, Y: y, Z: z}
					idx.cells[c] = append(idx.cells[c], slot)
				}
			}
		}
	}

	stats.Removed = len(idx.known) - stats.Updated
	idx.known, idx.next = idx.next, idx.known

	stats.Duration = time.Since(start)
	return stats, nil
}

func (idx *GridIndex) cellOf(p r3.Vector) cell {
	s := idx.conf.CellSize
	return cell{
		X: int(math.Floor(p.X / s)),
		Y: int(math.Floor(p.Y / s)),
		Z: int(math.Floor(p.Z / s)),
	}
}

// cellRange returns the cells overlapped by b within the occupied height.
// It must not be called on an empty index.
func (idx *GridIndex) cellRange(b geometry.AABB) (cell, cell) {
	b.Min.Y = math.Min(math.Max(b.Min.Y, idx.minY), idx.maxY)
	b.Max.Y = math.Max(math.Min(b.Max.Y, idx.maxY), idx.minY)
	return idx.cellOf(b.Min), idx.cellOf(b.Max)
}

func (idx *GridIndex) QueryAABB(box geometry.AABB, layers models.NavigationLayers, visit Visitor) int {
	return idx.query(box, layers, visit)
}

func (idx *GridIndex) QuerySphere(center r3.Vector, radius float64, layers models.NavigationLayers, visit Visitor) int {
	return idx.query(geometry.Sphere{Center: center, Radius: radius}, layers, visit)
}

func (idx *GridIndex) QueryCylinder(center r3.Vector, radius, height float64, layers models.NavigationLayers, visit Visitor) int {
	return idx.query(geometry.Cylinder{Base: center, Radius: radius, Height: height}, layers, visit)
}

// query scans the cells overlapped by the shape bounds.
func (idx *GridIndex) query(shape geometry.Shape, layers models.NavigationLayers, visit Visitor) int {
	if idx.snapshot.len() == 0 {
		return 0
	}

	v := newVisit(idx, shape, layers, visit)
	min, max := idx.cellRange(shape.Bounds())

	for x := min.X; x <= max.X; x++ {
		for y := min.Y; y <= max.Y; y++ {
			for z := min.Z; z <= max.Z; z++ {
				if !v.cell(cell{X: x, Y: y, Z: z}) {
					return v.count
				}
			}
		}
	}
	return v.count
}

// QueryLine walks the cells crossed by the segment, in order, with the
// Amanatides-Woo voxel traversal.
func (idx *GridIndex) QueryLine(from, to r3.Vector, layers models.NavigationLayers, visit Visitor) int {
	if idx.snapshot.len() == 0 {
		return 0
	}

	v := newVisit(idx, geometry.Segment{From: from, To: to}, layers, visit)

	current := idx.cellOf(from)
	end := idx.cellOf(to)
	dir := to.Sub(from)
	s := idx.conf.CellSize

	var step [3]int
	var tMax, tDelta [3]float64
	origins := [3]float64{from.X, from.Y, from.Z}
	dirs := [3]float64{dir.X, dir.Y, dir.Z}
	cells := [3]int{current.X, current.Y, current.Z}

	for axis := 0; axis < 3; axis++ {
		d := dirs[axis]
		switch {
		case d > 0:
			step[axis] = 1
			tDelta[axis] = s / d
			tMax[axis] = (float64(cells[axis]+1)*s - origins[axis]) / d
		case d < 0:
			step[axis] = -1
			tDelta[axis] = -s / d
			tMax[axis] = (float64(cells[axis])*s - origins[axis]) / d
		default:
			tDelta[axis] = math.Inf(1)
			tMax[axis] = math.Inf(1)
		}
	}

	for i := 0; i < maxLineCells; i++ {
		c := cell{X: cells[0], Y: cells[1], Z: cells[2]}
		if !v.cell(c) || c == end {
			break
		}

		axis := 0
		if tMax[1] < tMax[axis] {
			axis = 1
		}
		if tMax[2] < tMax[axis] {
			axis = 2
		}
		if tMax[axis] > 1 {
			break
		}

		cells[axis] += step[axis]
		tMax[axis] += tDelta[axis]
	}

	return v.count
}

func (idx *GridIndex) QueryNearest(center r3.Vector, radius float64, maxCount int, layers models.NavigationLayers, visit Visitor) int {
	if idx.snapshot.len() == 0 || radius <= 0 {
		return 0
	}

	bounds := geometry.Sphere{Center: center, Radius: radius}.Bounds()
	return idx.nearest(center, bounds, maxCount, func(slot int) (float64, bool) {
		if !idx.snapshot.matches(slot, layers) {
			return 0, false
		}
		d := idx.snapshot.transforms[slot].Position.Distance(center)
		return d, d <= radius
	}, visit)
}

func (idx *GridIndex) QueryCircle(center r3.Vector, radius float64, maxCount int, layers models.NavigationLayers, visit Visitor) int {
	return idx.queryPlanarNearest(geometry.Circle{Center: center, Radius: radius}, center, radius, maxCount, layers, visit)
}

func (idx *GridIndex) QueryCylinderNearest(center r3.Vector, radius, height float64, maxCount int, layers models.NavigationLayers, visit Visitor) int {
	return idx.queryPlanarNearest(geometry.Cylinder{Base: center, Radius: radius, Height: height}, center, radius, maxCount, layers, visit)
}

// queryPlanarNearest visits the agents whose bounds overlap the shape,
// ordered by the horizontal distance between their position and center.
// Unlimited queries sort every overlapping agent and are not bounded by
// FixedEntriesCapacity.
func (idx *GridIndex) queryPlanarNearest(shape geometry.Shape, center r3.Vector, radius float64, maxCount int, layers models.NavigationLayers, visit Visitor) int {
	if idx.snapshot.len() == 0 || radius < 0 {
		return 0
	}

	if maxCount > 0 {
		return idx.nearest(center, shape.Bounds(), maxCount, func(slot int) (float64, bool) {
			if !idx.snapshot.matches(slot, layers) || !shape.Overlaps(idx.snapshot.bounds(slot)) {
				return 0, false
			}
			return planarDistance(idx.snapshot.transforms[slot].Position, center), true
		}, visit)
	}

	type found struct {
		entry    Entry
		distance float64
	}
	var entries []found
	idx.query(shape, layers, func(e Entry) bool {
		entries = append(entries, found{
			entry:    e,
			distance: planarDistance(e.Transform.Position, center),
		})
		return true
	})

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].distance != entries[j].distance {
			return entries[i].distance < entries[j].distance
		}
		return entries[i].entry.Entity < entries[j].entry.Entity
	})

	count := 0
	for _, f := range entries {
		count++
		if !visit(f.entry) {
			break
		}
	}
	return count
}

// nearest walks the cells overlapped by bounds in rings around the cell of
// center and visits, nearest first, at most maxCount agents accepted by
// distance. Distances must not be less than the horizontal distance between
// the agent position and center.
func (idx *GridIndex) nearest(center r3.Vector, bounds geometry.AABB, maxCount int, distance func(slot int) (float64, bool), visit Visitor) int {
	entries := newFixedEntries(maxCount)
	checks := 0

	min, max := idx.cellRange(bounds)
	origin := idx.cellOf(center)

	rings := 0
	for _, d := range []int{origin.X - min.X, max.X - origin.X, origin.Z - min.Z, max.Z - origin.Z} {
		if d > rings {
			rings = d
		}
	}

	s := idx.conf.CellSize

spiral:
	for ring := 0; ring <= rings; ring++ {
		full := false
		forEachRingCell(origin, ring, func(x, z int) bool {
			if x < min.X || x > max.X || z < min.Z || z > max.Z {
				return true
			}

			for y := min.Y; y <= max.Y; y++ {
				for _, slot := range idx.cells[cell{X: x, Y: y, Z: z}] {
					d, ok := distance(slot)
					if !ok {
						continue
					}

					if entries.add(slot, d) {
						checks++
						if checks == idx.conf.QueryChecks {
							full = true
							return false
						}
					}
				}
			}
			return true
		})

		if full {
			break spiral
		}

		// Cells of the next rings are at least ring cells away from the center.
		if entries.full() && entries.worst() <= float64(ring)*s {
			break
		}
	}

	count := 0
	for _, e := range entries.sorted() {
		count++
		if !visit(idx.snapshot.entry(e.slot)) {
			break
		}
	}
	return count
}

// forEachRingCell calls fn on the cells at the given Chebyshev distance of
// the origin on the horizontal plane, walking around the ring.
func forEachRingCell(origin cell, ring int, fn func(x, z int) bool) {
	if ring == 0 {
		fn(origin.X, origin.Z)
		return
	}

	x, z := origin.X-ring, origin.Z-ring
	directions := [4][2]int{{1, 0}, {0, 1}, {-1, 0}, {0, -1}}
	for _, d := range directions {
		for i := 0; i < 2*ring; i++ {
			if !fn(x, z) {
				return
			}
			x += d[0]
			z += d[1]
		}
	}
}

func (idx *GridIndex) Stats() Stats {
	return Stats{
		Backend: BackendGrid,
		Agents:  idx.snapshot.len(),
		Cells:   len(idx.cells),
	}
}

func (idx *GridIndex) Close() {
	clear(idx.cells)
	clear(idx.known)
	idx.snapshot.reset()
}

// cellVisit visits the agents of cells at most once.
type cellVisit struct {
	idx     *GridIndex
	shape   geometry.Shape
	layers  models.NavigationLayers
	visit   Visitor
	visited map[int]struct{}
	count   int
}

func newVisit(idx *GridIndex, shape geometry.Shape, layers models.NavigationLayers, visit Visitor) *cellVisit {
	return &cellVisit{
		idx:    idx,
		shape:  shape,
		layers: layers,
		visit:  visit,
	}
}

// cell visits the matching agents of c. It returns false when the visitor
// stopped the query.
func (v *cellVisit) cell(c cell) bool {
	for _, slot := range v.idx.cells[c] {
		if _, ok := v.visited[slot]; ok {
			continue
		}
		if v.visited == nil {
			v.visited = make(map[int]struct{})
		}
		v.visited[slot] = struct{}{}

		if !v.idx.snapshot.matches(slot, v.layers) || !v.shape.Overlaps(v.idx.snapshot.bounds(slot)) {
			continue
		}

		v.count++
		if !v.visit(v.idx.snapshot.entry(slot)) {
			return false
		}
	}
	return true
}
