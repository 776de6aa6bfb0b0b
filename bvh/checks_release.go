//go:build release

package bvh

const DebugChecks = false
