package bvh

import (
	"math/bits"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"go.uber.org/multierr"
)

// Stats is a snapshot of the tree health.
type Stats struct {
	Length         int     `json:"length"`
	Nodes          int     `json:"nodes"`
	Depth          int     `json:"depth"`
	Cost           float64 `json:"cost"`
	BalanceFactor  float64 `json:"balance_factor"`
	Capacity       int     `json:"capacity"`
	FreeNodes      int     `json:"free_nodes"`
	AllocatedNodes int     `json:"allocated_nodes"`
}

// Stats returns the tree health metrics.
func (t *Tree[V, T]) Stats() Stats {
	return Stats{
		Length:         t.length,
		Nodes:          t.CountNodes(),
		Depth:          t.GetDepth(),
		Cost:           t.Cost(),
		BalanceFactor:  t.GetBalancedTreeFactor(),
		Capacity:       t.arena.capacity(),
		FreeNodes:      len(t.arena.freeHandles),
		AllocatedNodes: t.arena.len(),
	}
}

// Cost returns the sum of the internal node surface areas. The lower it is,
// the cheaper the tree is to query.
func (t *Tree[V, T]) Cost() float64 {
	var cost float64
	t.walk(func(n *Node[V, T], depth int) {
		if !n.IsLeaf() {
			cost += n.Volume.SurfaceArea()
		}
	})
	return cost
}

// CountLeafs returns the number of leaves reachable from the root.
func (t *Tree[V, T]) CountLeafs() int {
	count := 0
	t.walk(func(n *Node[V, T], depth int) {
		if n.IsLeaf() {
			count++
		}
	})
	return count
}

// CountNodes returns the number of nodes reachable from the root.
func (t *Tree[V, T]) CountNodes() int {
	count := 0
	t.walk(func(n *Node[V, T], depth int) {
		count++
	})
	return count
}

// GetDepth returns the depth of the deepest leaf. The root is at depth 0.
func (t *Tree[V, T]) GetDepth() int {
	maxDepth := 0
	t.walk(func(n *Node[V, T], depth int) {
		if n.IsLeaf() && depth > maxDepth {
			maxDepth = depth
		}
	})
	return maxDepth
}

// GetBalancedTreeFactor returns a value between 0 and 1 telling where the
// tree depth stands between the depth of a perfectly balanced tree (1) and
// the depth of a degenerated one (0). Trees with less than two leaves return
// 0.
func (t *Tree[V, T]) GetBalancedTreeFactor() float64 {
	if t.length <= 1 {
		return 0
	}

	nodes := t.CountNodes()
	minDepth := bits.Len(uint(nodes)) - 1
	maxDepth := (nodes - 1) / 2
	if minDepth == maxDepth {
		return 1
	}

	depth := t.GetDepth()
	factor := 1 - float64(depth-minDepth)/float64(maxDepth-minDepth)
	switch {
	case factor < 0:
		return 0
	case factor > 1:
		return 1
	default:
		return factor
	}
}

// Validate checks the tree structure and returns every broken invariant.
func (t *Tree[V, T]) Validate() error {
	var err error

	if (t.length == 0) != (t.root == Null) {
		err = multierr.Append(err, errors.New("length and root disagree").
			WithType(ErrTypeCorruptedState).
			WithTag("length", t.length).
			WithTag("root", t.root))
	}

	if t.root == Null {
		return err
	}

	if p := t.arena.at(t.root).Parent; p != Null {
		err = multierr.Append(err, errors.New("root has a parent").
			WithType(ErrTypeCorruptedState).
			WithTag("parent", p))
	}

	reachable := 0
	leafs := 0
	stack := []Handle{t.root}

	for len(stack) != 0 {
		h := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if h < 0 || int(h) >= t.arena.len() || t.arena.isFree(h) {
			err = multierr.Append(err, errors.New("reachable node is not alive").
				WithType(ErrTypeCorruptedState).
				WithTag("handle", h))
			continue
		}

		reachable++
		if reachable > t.arena.len() {
			return multierr.Append(err, errors.New("tree contains a cycle").
				WithType(ErrTypeCorruptedState))
		}
		n := t.arena.at(h)

		if n.IsLeaf() {
			leafs++
			if n.Right != Null {
				err = multierr.Append(err, errors.New("leaf has a right child").
					WithType(ErrTypeCorruptedState).
					WithTag("handle", h))
			}
			continue
		}

		if n.Right == Null {
			err = multierr.Append(err, errors.New("internal node has a single child").
				WithType(ErrTypeCorruptedState).
				WithTag("handle", h))
			continue
		}

		stack = append(stack, n.Left, n.Right)

		alive := true
		for _, c := range []Handle{n.Left, n.Right} {
			if c < 0 || int(c) >= t.arena.len() {
				alive = false
				continue
			}
			if t.arena.at(c).Parent != h {
				err = multierr.Append(err, errors.New("child does not reference its parent").
					WithType(ErrTypeCorruptedState).
					WithTag("handle", c).
					WithTag("parent", h))
			}
		}
		if !alive {
			continue
		}

		if c := t.arena.at(n.Left).Volume.Union(t.arena.at(n.Right).Volume); c != n.Volume {
			err = multierr.Append(err, errors.New("internal volume is not the union of its children").
				WithType(ErrTypeCorruptedState).
				WithTag("handle", h))
		}
	}

	if leafs != t.length {
		err = multierr.Append(err, errors.New("leaf count does not match length").
			WithType(ErrTypeCorruptedState).
			WithTag("leafs", leafs).
			WithTag("length", t.length))
	}

	if reachable+len(t.arena.freeHandles) != t.arena.len() {
		err = multierr.Append(err, errors.New("nodes are leaking").
			WithType(ErrTypeCorruptedState).
			WithTag("reachable", reachable).
			WithTag("free", len(t.arena.freeHandles)).
			WithTag("allocated", t.arena.len()))
	}

	return err
}

// walk calls fn on every node reachable from the root with its depth.
func (t *Tree[V, T]) walk(fn func(n *Node[V, T], depth int)) {
	if t.root == Null {
		return
	}

	type entry struct {
		handle Handle
		depth  int
	}

	stack := make([]entry, 0, defaultStackSize)
	stack = append(stack, entry{handle: t.root})

	for len(stack) != 0 {
		e := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		n := t.arena.at(e.handle)
		fn(n, e.depth)

		if !n.IsLeaf() {
			stack = append(stack,
				entry{handle: n.Left, depth: e.depth + 1},
				entry{handle: n.Right, depth: e.depth + 1},
			)
		}
	}
}
