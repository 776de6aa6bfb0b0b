package bvh

// Handle references a node stored in a tree. A handle is valid from the
// Insert that returned it until the matching RemoveAt.
type Handle int

// Null is the handle that references no node.
const Null Handle = -1

// IsValid reports whether h is not Null. It does not tell whether the
// referenced node is still alive.
func (h Handle) IsValid() bool {
	return h != Null
}

// Node is a tree node. Leaves carry the inserted value; internal nodes always
// have two children and a volume that bounds both of them.
type Node[V any, T any] struct {
	Volume V
	Value  T
	Parent Handle
	Left   Handle
	Right  Handle
}

// IsLeaf reports whether the node has no children.
func (n Node[V, T]) IsLeaf() bool {
	return n.Left == Null
}

type slot[V any, T any] struct {
	Node[V, T]
	free bool
}

// arena stores nodes in a growable slice. Removed slots are kept and their
// handles reused by later allocations so that live handles never move.
type arena[V any, T any] struct {
	nodes       []slot[V, T]
	freeHandles []Handle
}

func newArena[V any, T any](capacity int) arena[V, T] {
	return arena[V, T]{
		nodes:       make([]slot[V, T], 0, capacity),
		freeHandles: make([]Handle, 0, capacity),
	}
}

// allocate returns the handle of a detached node holding the given volume and
// value. Pointers previously returned by at are invalidated.
func (a *arena[V, T]) allocate(volume V, value T) Handle {
	s := slot[V, T]{
		Node: Node[V, T]{
			Volume: volume,
			Value:  value,
			Parent: Null,
			Left:   Null,
			Right:  Null,
		},
	}

	if n := len(a.freeHandles); n != 0 {
		h := a.freeHandles[n-1]
		a.freeHandles = a.freeHandles[:n-1]
		a.nodes[h] = s
		return h
	}

	a.nodes = append(a.nodes, s)
	return Handle(len(a.nodes) - 1)
}

func (a *arena[V, T]) free(h Handle) {
	a.nodes[h].free = true
	a.freeHandles = append(a.freeHandles, h)
}

func (a *arena[V, T]) at(h Handle) *Node[V, T] {
	return &a.nodes[h].Node
}

func (a *arena[V, T]) isFree(h Handle) bool {
	return a.nodes[h].free
}

// check returns an error when h does not reference a live node. It always
// succeeds when debug checks are disabled.
func (a *arena[V, T]) check(h Handle) error {
	if !DebugChecks {
		return nil
	}

	if h < 0 || int(h) >= len(a.nodes) || a.nodes[h].free {
		return errInvalidHandle(h, len(a.nodes))
	}
	return nil
}

func (a *arena[V, T]) clear() {
	a.nodes = a.nodes[:0]
	a.freeHandles = a.freeHandles[:0]
}

func (a *arena[V, T]) len() int {
	return len(a.nodes)
}

func (a *arena[V, T]) capacity() int {
	return cap(a.nodes)
}
