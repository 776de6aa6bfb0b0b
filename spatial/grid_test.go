package spatial

import (
	"math/rand"
	"testing"

	"github.com/aukilabs/crowdnav/geometry"
	"github.com/aukilabs/crowdnav/models"
	"github.com/golang/geo/r3"
	"github.com/stretchr/testify/require"
)

func TestGridIndexSync(t *testing.T) {
	idx := NewGridIndex(Config{CellSize: 2})
	defer idx.Close()

	agents := []models.Agent{newAgent(1, 0, 0), newAgent(2, 5, 0), newAgent(3, 10, 0)}
	stats, err := idx.Sync(agents)
	require.NoError(t, err)
	require.Equal(t, 3, stats.Added)
	require.Zero(t, stats.Updated)
	require.Zero(t, stats.Removed)
	require.Equal(t, 3, idx.Len())

	stats, err = idx.Sync([]models.Agent{agents[0], agents[2], newAgent(4, 20, 0)})
	require.NoError(t, err)
	require.Equal(t, 1, stats.Added)
	require.Equal(t, 2, stats.Updated)
	require.Equal(t, 1, stats.Removed)
	require.Equal(t, 3, idx.Len())

	t.Run("duplicated agents are indexed once", func(t *testing.T) {
		stats, err := idx.Sync([]models.Agent{agents[0], agents[0]})
		require.NoError(t, err)
		require.Equal(t, 1, stats.Updated)
		require.Equal(t, 1, idx.Len())
	})

	t.Run("agents are stored in every overlapped cell", func(t *testing.T) {
		a := newAgent(1, 0, 0)
		_, err := idx.Sync([]models.Agent{a})
		require.NoError(t, err)

		// x and z span [-0.5, 0.5] and y spans [0, 2], over 2x2x2 cells.
		require.Equal(t, 8, idx.Stats().Cells)
	})
}

func TestGridIndexMatchesTreeIndex(t *testing.T) {
	rnd := rand.New(rand.NewSource(11))
	agents := randomAgents(rnd, 300, 60)

	tree := NewTreeIndex(Config{Padding: DefaultPadding})
	defer tree.Close()
	grid := NewGridIndex(Config{CellSize: DefaultCellSize})
	defer grid.Close()

	for _, idx := range []Index{tree, grid} {
		_, err := idx.Sync(agents)
		require.NoError(t, err)
	}

	for i := 0; i < 30; i++ {
		center := r3.Vector{X: rnd.Float64() * 60, Y: rnd.Float64(), Z: rnd.Float64() * 60}
		layers := models.NavigationLayers(1 + rnd.Intn(7))
		to := r3.Vector{X: rnd.Float64() * 60, Y: 1, Z: rnd.Float64() * 60}
		box := geometry.AABB{Min: center.Sub(geometry.Splat(3)), Max: center.Add(geometry.Splat(3))}

		queries := map[string]func(Index, Visitor) int{
			"aabb": func(idx Index, v Visitor) int {
				return idx.QueryAABB(box, layers, v)
			},
			"sphere": func(idx Index, v Visitor) int {
				return idx.QuerySphere(center, 6, layers, v)
			},
			"cylinder": func(idx Index, v Visitor) int {
				return idx.QueryCylinder(center, 4, 2, layers, v)
			},
			"line": func(idx Index, v Visitor) int {
				return idx.QueryLine(center, to, layers, v)
			},
			"circle": func(idx Index, v Visitor) int {
				return idx.QueryCircle(center, 5, 0, layers, v)
			},
		}

		for name, query := range queries {
			expected := collect(func(v Visitor) int { return query(tree, v) })
			actual := collect(func(v Visitor) int { return query(grid, v) })
			require.Equal(t, expected, actual, name)
		}

		var expected, actual []models.EntityID
		tree.QueryNearest(center, 8, 5, layers, func(e Entry) bool {
			expected = append(expected, e.Entity)
			return true
		})
		grid.QueryNearest(center, 8, 5, layers, func(e Entry) bool {
			actual = append(actual, e.Entity)
			return true
		})
		require.Equal(t, expected, actual, "nearest")

		expected = collectInOrder(func(v Visitor) int { return tree.QueryCircle(center, 8, 5, layers, v) })
		actual = collectInOrder(func(v Visitor) int { return grid.QueryCircle(center, 8, 5, layers, v) })
		require.Equal(t, expected, actual, "nearest circle")

		expected = collectInOrder(func(v Visitor) int { return tree.QueryCylinderNearest(center, 8, 2, 5, layers, v) })
		actual = collectInOrder(func(v Visitor) int { return grid.QueryCylinderNearest(center, 8, 2, 5, layers, v) })
		require.Equal(t, expected, actual, "nearest cylinder")
	}
}

func TestGridIndexQueryCircle(t *testing.T) {
	rnd := rand.New(rand.NewSource(10))
	agents := stackAgents(randomAgents(rnd, 300, 60), 3, 10)

	idx := NewGridIndex(Config{CellSize: 4})
	defer idx.Close()
	_, err := idx.Sync(agents)
	require.NoError(t, err)

	for i := 0; i < 20; i++ {
		center := r3.Vector{X: rnd.Float64() * 60, Y: rnd.Float64(), Z: rnd.Float64() * 60}
		layers := models.NavigationLayers(1 + rnd.Intn(7))
		circle := geometry.Circle{Center: center, Radius: 9}
		cylinder := geometry.Cylinder{Base: center, Radius: 9, Height: 2}

		t.Run("circle without limit", func(t *testing.T) {
			require.Equal(t, bruteForcePlanarNearest(agents, layers, circle, center, 0), collectInOrder(func(v Visitor) int {
				return idx.QueryCircle(center, 9, 0, layers, v)
			}))
		})

		t.Run("circle with limit", func(t *testing.T) {
			require.Equal(t, bruteForcePlanarNearest(agents, layers, circle, center, 5), collectInOrder(func(v Visitor) int {
				return idx.QueryCircle(center, 9, 5, layers, v)
			}))
		})

		t.Run("cylinder without limit", func(t *testing.T) {
			require.Equal(t, bruteForcePlanarNearest(agents, layers, cylinder, center, 0), collectInOrder(func(v Visitor) int {
				return idx.QueryCylinderNearest(center, 9, 2, 0, layers, v)
			}))
		})

		t.Run("cylinder with limit", func(t *testing.T) {
			require.Equal(t, bruteForcePlanarNearest(agents, layers, cylinder, center, 3), collectInOrder(func(v Visitor) int {
				return idx.QueryCylinderNearest(center, 9, 2, 3, layers, v)
			}))
		})
	}

	t.Run("unlimited queries are not capped", func(t *testing.T) {
		ids := collect(func(v Visitor) int {
			return idx.QueryCircle(r3.Vector{X: 30, Y: 100, Z: 30}, 100, 0, models.Everything, v)
		})
		require.Len(t, ids, len(agents))
	})

	t.Run("limited queries are capped", func(t *testing.T) {
		count := idx.QueryCircle(r3.Vector{X: 30, Z: 30}, 100, 100, models.Everything, func(Entry) bool { return true })
		require.Equal(t, FixedEntriesCapacity, count)
	})

	t.Run("negative radius", func(t *testing.T) {
		require.Zero(t, idx.QueryCircle(r3.Vector{}, -1, 0, models.Everything, func(Entry) bool { return true }))
	})
}

func TestGridIndexQueryLine(t *testing.T) {
	idx := NewGridIndex(Config{CellSize: 1})
	defer idx.Close()

	agents := []models.Agent{newAgent(1, 2, 0), newAgent(2, 5, 0), newAgent(3, 5, 5), newAgent(4, -3, 0)}
	_, err := idx.Sync(agents)
	require.NoError(t, err)

	t.Run("segment crossing agents", func(t *testing.T) {
		ids := collect(func(v Visitor) int {
			return idx.QueryLine(r3.Vector{Y: 1}, r3.Vector{X: 8, Y: 1}, models.Everything, v)
		})
		require.Equal(t, []models.EntityID{1, 2}, ids)
	})

	t.Run("agents are visited in walk order", func(t *testing.T) {
		var ids []models.EntityID
		idx.QueryLine(r3.Vector{X: 8, Y: 1}, r3.Vector{X: -8, Y: 1}, models.Everything, func(e Entry) bool {
			ids = append(ids, e.Entity)
			return true
		})
		require.Equal(t, []models.EntityID{2, 1, 4}, ids)
	})

	t.Run("stop early", func(t *testing.T) {
		count := idx.QueryLine(r3.Vector{Y: 1}, r3.Vector{X: 8, Y: 1}, models.Everything, func(Entry) bool {
			return false
		})
		require.Equal(t, 1, count)
	})

	t.Run("point segment", func(t *testing.T) {
		ids := collect(func(v Visitor) int {
			return idx.QueryLine(r3.Vector{X: 5, Y: 1, Z: 5}, r3.Vector{X: 5, Y: 1, Z: 5}, models.Everything, v)
		})
		require.Equal(t, []models.EntityID{3}, ids)
	})
}

func TestGridIndexQueryNearest(t *testing.T) {
	idx := NewGridIndex(Config{CellSize: 1})
	defer idx.Close()

	var agents []models.Agent
	for i := 0; i < 50; i++ {
		agents = append(agents, newAgent(models.EntityID(i+1), float64(i), 0))
	}
	_, err := idx.Sync(agents)
	require.NoError(t, err)

	t.Run("nearest first", func(t *testing.T) {
		var ids []models.EntityID
		count := idx.QueryNearest(r3.Vector{X: 10.2}, 100, 3, models.Everything, func(e Entry) bool {
			ids = append(ids, e.Entity)
			return true
		})
		require.Equal(t, 3, count)
		require.Equal(t, []models.EntityID{11, 12, 10}, ids)
	})

	t.Run("radius", func(t *testing.T) {
		count := idx.QueryNearest(r3.Vector{X: 10}, 1.5, 0, models.Everything, func(Entry) bool { return true })
		require.Equal(t, 3, count)
	})

	t.Run("results are capped", func(t *testing.T) {
		count := idx.QueryNearest(r3.Vector{X: 25}, 100, 0, models.Everything, func(Entry) bool { return true })
		require.Equal(t, FixedEntriesCapacity, count)
	})

	t.Run("query checks", func(t *testing.T) {
		limited := NewGridIndex(Config{CellSize: 1, QueryChecks: 2})
		defer limited.Close()
		_, err := limited.Sync(agents)
		require.NoError(t, err)

		count := limited.QueryNearest(r3.Vector{X: 25}, 100, 0, models.Everything, func(Entry) bool { return true })
		require.Equal(t, 2, count)
	})

	t.Run("non positive radius", func(t *testing.T) {
		require.Zero(t, idx.QueryNearest(r3.Vector{}, -1, 3, models.Everything, func(Entry) bool { return true }))
	})
}

func TestForEachRingCell(t *testing.T) {
	var cells [][2]int
	forEachRingCell(cell{}, 1, func(x, z int) bool {
		cells = append(cells, [2]int{x, z})
		return true
	})
	require.Len(t, cells, 8)
	require.NotContains(t, cells, [2]int{0, 0})

	cells = cells[:0]
	forEachRingCell(cell{X: 3, Z: 3}, 0, func(x, z int) bool {
		cells = append(cells, [2]int{x, z})
		return true
	})
	require.Equal(t, [][2]int{{3, 3}}, cells)
}

func TestFixedEntries(t *testing.T) {
	e := newFixedEntries(3)
	require.True(t, e.add(1, 5))
	require.True(t, e.add(2, 1))
	require.False(t, e.add(2, 1))
	require.False(t, e.full())
	require.True(t, e.add(3, 3))
	require.True(t, e.full())
	require.Equal(t, 5.0, e.worst())

	require.True(t, e.add(4, 2))
	require.Equal(t, 3.0, e.worst())

	var slots []int
	for _, entry := range e.sorted() {
		slots = append(slots, entry.slot)
	}
	require.Equal(t, []int{2, 4, 3}, slots)

	require.Equal(t, FixedEntriesCapacity, newFixedEntries(0).limit)
	require.Equal(t, FixedEntriesCapacity, newFixedEntries(1000).limit)
}
