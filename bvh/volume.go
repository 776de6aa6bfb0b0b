package bvh

// SurfaceArea is implemented by volumes that can report their surface area.
// The surface area is used as the cost of a volume when choosing where to
// insert new leaves.
type SurfaceArea interface {
	SurfaceArea() float64
}

// Union is implemented by volumes that can be merged with another volume of
// the same type into the tightest volume containing both.
type Union[V any] interface {
	Union(V) V
}

// Volume is the constraint satisfied by bounding volumes stored in a Tree.
type Volume[V any] interface {
	comparable
	SurfaceArea
	Union[V]
}
