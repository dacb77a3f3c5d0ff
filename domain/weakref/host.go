package weakref

// Host is implemented by objects that can be weakly referenced.
//
// Retain and Release are the host's ordinary owning-reference primitives.
// The gate calls Retain only while the host is live, and calls Release
// while holding the gate lock, so both must be short and must not call
// back into the gate.
type Host interface {
	// Retain takes a new owning reference.
	Retain()
	// Release drops an owning reference and reports whether it was the last.
	Release() bool
	// Finalize runs once, after the gate has become Invalid and before the
	// host's storage is reclaimed. It must not promote or register on the
	// same gate.
	Finalize()
}

// Reclaimer is implemented by hosts that need an explicit storage
// teardown step after Finalize.
type Reclaimer interface {
	Reclaim()
}

// Gated is a Host that exposes its embedded gate.
type Gated interface {
	Host
	WeakGate() *Gate
}

// TryPromote converts a weak reference into an owning one. It returns the
// zero value and false once h has been finalized or is being finalized.
func TryPromote[T Host](g *Gate, h T) (T, bool) {
	if !g.promote(h) {
		var zero T
		return zero, false
	}
	return h, true
}

// ReleaseOwning drops one owning reference to h. When it is the last one,
// g becomes Invalid and h is finalized and reclaimed on this goroutine.
func ReleaseOwning(g *Gate, h Host) {
	g.ReleaseOwning(h)
}

// Release is ReleaseOwning for hosts that carry their own gate.
func Release(h Gated) {
	h.WeakGate().ReleaseOwning(h)
}
