//go:build !release

package bvh

// DebugChecks enables handle validation and corruption detection. Build with
// the release tag to compile them out.
const DebugChecks = true
