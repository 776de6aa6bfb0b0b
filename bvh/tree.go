// Package bvh implements a dynamic bounding volume hierarchy.
//
// Leaves are inserted next to the sibling that minimizes the surface area
// added to the tree, found with a branch and bound search. Internal nodes are
// refit on the way back to the root and locally rotated when swapping a node
// with its uncle lowers the surface area of their parent.
//
// A Tree is not safe for concurrent mutation. Queries only read the tree and
// can run concurrently once mutations are done.
package bvh

import "math"

// Tree is a dynamic bounding volume hierarchy storing values of type T bounded
// by volumes of type V.
type Tree[V Volume[V], T any] struct {
	arena  arena[V, T]
	queue  priorityQueue
	root   Handle
	length int
}

// New returns an empty tree with room for the given number of nodes.
func New[V Volume[V], T any](capacity int) *Tree[V, T] {
	return &Tree[V, T]{
		arena: newArena[V, T](capacity),
		root:  Null,
	}
}

// Len returns the number of leaves.
func (t *Tree[V, T]) Len() int {
	return t.length
}

// IsEmpty reports whether the tree has no leaves.
func (t *Tree[V, T]) IsEmpty() bool {
	return t.length == 0
}

// Root returns the root handle. It is Null when the tree is empty.
func (t *Tree[V, T]) Root() Handle {
	return t.root
}

// Capacity returns the number of nodes that fit in the current allocation.
func (t *Tree[V, T]) Capacity() int {
	return t.arena.capacity()
}

// GetNode returns the node referenced by h.
func (t *Tree[V, T]) GetNode(h Handle) (Node[V, T], error) {
	if err := t.arena.check(h); err != nil {
		return Node[V, T]{}, err
	}
	return *t.arena.at(h), nil
}

// Clear removes all nodes without releasing memory.
func (t *Tree[V, T]) Clear() {
	t.arena.clear()
	t.queue.Clear()
	t.root = Null
	t.length = 0
}

// Insert adds a leaf with the given volume and value and returns its handle.
// When rebalance is true, nodes on the path to the root are rotated when it
// lowers the tree cost.
func (t *Tree[V, T]) Insert(volume V, value T, rebalance bool) Handle {
	if t.root == Null {
		t.root = t.arena.allocate(volume, value)
		t.length = 1
		return t.root
	}

	sibling := t.findBestSibling(volume)

	var zeroValue T
	leaf := t.arena.allocate(volume, value)
	parent := t.arena.allocate(volume, zeroValue)

	siblingNode := t.arena.at(sibling)
	parentNode := t.arena.at(parent)

	if sibling == t.root {
		t.root = parent
	} else {
		grandParent := siblingNode.Parent
		grandParentNode := t.arena.at(grandParent)
		if grandParentNode.Left == sibling {
			grandParentNode.Left = parent
		} else {
			grandParentNode.Right = parent
		}
		parentNode.Parent = grandParent
	}

	parentNode.Left = sibling
	parentNode.Right = leaf
	siblingNode.Parent = parent
	t.arena.at(leaf).Parent = parent

	for h := parent; h != Null; h = t.arena.at(h).Parent {
		t.refit(h)
		if rebalance {
			t.rotate(h)
		}
	}

	t.length++
	return leaf
}

// RemoveAt removes the leaf referenced by h. Its sibling takes the place of
// their parent and every ancestor is refit.
func (t *Tree[V, T]) RemoveAt(h Handle) error {
	if err := t.arena.check(h); err != nil {
		return err
	}

	node := t.arena.at(h)
	if DebugChecks && !node.IsLeaf() {
		return errNotALeaf(h)
	}

	if h == t.root {
		t.arena.free(h)
		t.root = Null
		t.length = 0
		return nil
	}

	parent := node.Parent
	parentNode := t.arena.at(parent)

	sibling := parentNode.Left
	if sibling == h {
		sibling = parentNode.Right
	}
	siblingNode := t.arena.at(sibling)

	grandParent := parentNode.Parent
	if parent == t.root {
		t.root = sibling
		siblingNode.Parent = Null
	} else {
		grandParentNode := t.arena.at(grandParent)
		if grandParentNode.Left == parent {
			grandParentNode.Left = sibling
		} else {
			grandParentNode.Right = sibling
		}
		siblingNode.Parent = grandParent
	}

	t.arena.free(h)
	t.arena.free(parent)
	t.length--

	for a := grandParent; a != Null; a = t.arena.at(a).Parent {
		t.refit(a)
	}
	return nil
}

func (t *Tree[V, T]) refit(h Handle) {
	n := t.arena.at(h)
	n.Volume = t.arena.at(n.Left).Volume.Union(t.arena.at(n.Right).Volume)
}

// findBestSibling returns the node next to which inserting volume adds the
// least surface area. Children are only explored when the lower bound of
// their cost is below the best cost found so far.
func (t *Tree[V, T]) findBestSibling(volume V) Handle {
	best := t.root
	if t.length == 1 {
		return best
	}

	bestCost := math.MaxFloat64
	area := volume.SurfaceArea()

	t.queue.Clear()
	t.queue.Push(bestCost, t.root)

	for {
		item, ok := t.queue.TryPop()
		if !ok {
			break
		}
		h := item.handle
		if t.arena.isFree(h) {
			corrupted(h)
		}
		node := t.arena.at(h)

		directCost := node.Volume.Union(volume).SurfaceArea()
		inheritedCost := t.inheritedCost(node.Parent, volume)

		if cost := directCost + inheritedCost; cost < bestCost {
			bestCost = cost
			best = h
		}

		if node.IsLeaf() {
			continue
		}

		lowerBound := area + deltaSurfaceArea(node.Volume, volume) + inheritedCost
		if lowerBound < bestCost {
			t.queue.Push(lowerBound, node.Left)
			t.queue.Push(lowerBound, node.Right)
		}
	}

	return best
}

// inheritedCost returns the surface area added to h and its ancestors when
// they are enlarged to contain volume.
func (t *Tree[V, T]) inheritedCost(h Handle, volume V) float64 {
	var cost float64
	for h != Null {
		n := t.arena.at(h)
		cost += deltaSurfaceArea(n.Volume, volume)
		h = n.Parent
	}
	return cost
}

// rotate swaps h with its uncle when the union of the uncle and the brother
// of h has a smaller surface area than h. Ties keep the tree unchanged.
func (t *Tree[V, T]) rotate(h Handle) {
	if h == t.root {
		return
	}

	current := t.arena.at(h)
	parent := current.Parent
	if parent == t.root {
		return
	}
	parentNode := t.arena.at(parent)

	brother := parentNode.Right
	brotherOnRight := parentNode.Left == h
	if !brotherOnRight {
		brother = parentNode.Left
	}

	grandParent := parentNode.Parent
	grandParentNode := t.arena.at(grandParent)

	uncle := grandParentNode.Right
	uncleOnRight := grandParentNode.Left == parent
	if !uncleOnRight {
		uncle = grandParentNode.Left
	}
	uncleNode := t.arena.at(uncle)

	balanced := uncleNode.Volume.Union(t.arena.at(brother).Volume)
	if balanced.SurfaceArea() >= current.Volume.SurfaceArea() {
		return
	}

	if uncleOnRight {
		grandParentNode.Right = h
	} else {
		grandParentNode.Left = h
	}
	current.Parent = grandParent

	if brotherOnRight {
		parentNode.Left = uncle
	} else {
		parentNode.Right = uncle
	}
	uncleNode.Parent = parent
	parentNode.Volume = balanced
}

func deltaSurfaceArea[V Volume[V]](a, b V) float64 {
	return a.Union(b).SurfaceArea() - a.SurfaceArea()
}
