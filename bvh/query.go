package bvh

import "math"

const defaultStackSize = 32

// Query visits the leaves whose volume overlaps, as reported by the overlaps
// function. Subtrees whose volume does not overlap are skipped. The traversal
// stops when visit returns false. It returns the number of visited leaves.
func (t *Tree[V, T]) Query(overlaps func(V) bool, visit func(Handle, Node[V, T]) bool) int {
	if t.root == Null {
		return 0
	}

	count := 0
	stack := make([]Handle, 0, defaultStackSize)
	stack = append(stack, t.root)

	for len(stack) != 0 {
		h := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if t.arena.isFree(h) {
			corrupted(h)
			continue
		}

		node := t.arena.at(h)
		if !overlaps(node.Volume) {
			continue
		}

		if !node.IsLeaf() {
			stack = append(stack, node.Right, node.Left)
			continue
		}

		count++
		if !visit(h, *node) {
			break
		}
	}

	return count
}

// NearestQuery describes a best first traversal of a tree.
type NearestQuery[V any, T any] struct {
	// Returns a distance lower than or equal to the distance of every leaf
	// bounded by the given volume.
	LowerBound func(V) float64

	// Returns the distance of a leaf. Leaves with an infinite distance are
	// ignored. Defaults to LowerBound applied to the leaf volume.
	Distance func(Node[V, T]) float64

	// The maximum number of visited leaves. Zero means no limit.
	MaxCount int

	// Leaves further than MaxDistance are ignored. Zero means no limit.
	MaxDistance float64
}

// QueryNearest visits leaves nearest first, as ordered by the query distance
// functions. The traversal stops when MaxCount leaves are visited or when
// visit returns false. It returns the number of visited leaves.
func (t *Tree[V, T]) QueryNearest(q NearestQuery[V, T], visit func(Handle, Node[V, T], float64) bool) int {
	if t.root == Null || q.LowerBound == nil {
		return 0
	}

	maxDistance := q.MaxDistance
	if maxDistance <= 0 {
		maxDistance = math.Inf(1)
	}

	distance := q.Distance
	if distance == nil {
		distance = func(n Node[V, T]) float64 {
			return q.LowerBound(n.Volume)
		}
	}

	var queue priorityQueue
	push := func(h Handle) {
		if t.arena.isFree(h) {
			corrupted(h)
			return
		}

		node := t.arena.at(h)

		var d float64
		if node.IsLeaf() {
			d = distance(*node)
		} else {
			d = q.LowerBound(node.Volume)
		}

		if d > maxDistance || math.IsInf(d, 1) || math.IsNaN(d) {
			return
		}
		queue.Push(d, h)
	}

	count := 0
	push(t.root)

	for {
		item, ok := queue.TryPop()
		if !ok {
			break
		}

		node := t.arena.at(item.handle)
		if !node.IsLeaf() {
			push(node.Left)
			push(node.Right)
			continue
		}

		count++
		if !visit(item.handle, *node, item.priority) {
			break
		}
		if q.MaxCount > 0 && count == q.MaxCount {
			break
		}
	}

	return count
}
