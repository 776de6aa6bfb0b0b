package bvh

import (
	"github.com/aukilabs/go-tooling/pkg/errors"
)

const (
	// A handle that is out of range or that references a removed node.
	ErrTypeInvalidHandle = "invalid_handle"

	// A removal that targets an internal node.
	ErrTypeNotALeaf = "not_a_leaf"

	// A traversal that reached a removed node.
	ErrTypeCorruptedState = "corrupted_state"
)

func errInvalidHandle(h Handle, length int) error {
	return errors.New("invalid handle").
		WithType(ErrTypeInvalidHandle).
		WithTag("handle", h).
		WithTag("arena_length", length)
}

func errNotALeaf(h Handle) error {
	return errors.New("only leafs can be removed").
		WithType(ErrTypeNotALeaf).
		WithTag("handle", h)
}

// corrupted panics when debug checks are enabled. A tree in that state is the
// result of a previous bug and can't be recovered.
func corrupted(h Handle) {
	if !DebugChecks {
		return
	}

	panic(errors.New("tree is corrupted, using an already removed node").
		WithType(ErrTypeCorruptedState).
		WithTag("handle", h))
}
