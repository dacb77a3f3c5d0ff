// Package memory provides the low-level primitives used when a view is
// torn down: a typed object pool for value buffers and a bounded retire
// ring that hands released resources from any goroutine to a single
// reclaimer.
//
// The memory package is dependency-free.
package memory
