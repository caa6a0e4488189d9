//go:build !linux

package zeroconf

// DefaultBackend is the backend used unless another is selected.
const DefaultBackend = "builtin"
