package weakref

import "sync/atomic"

// Weak is an observer's weak reference to a gated host.
//
//	w := weakref.NewWeak(obj)
//	defer w.Drop()
//
//	if v, ok := w.Promote(); ok {
//		defer weakref.Release(v)
//		// use v
//	}
type Weak[T Gated] struct {
	target  T
	dropped atomic.Bool
}

// NewWeak registers a weak reference to target. The caller must hold an
// owning reference to target for the duration of the call.
func NewWeak[T Gated](target T) *Weak[T] {
	target.WeakGate().RegisterWeak()
	return &Weak[T]{target: target}
}

// Promote returns target with a new owning reference, or false if target
// has been finalized. Callers must not retry after false.
func (w *Weak[T]) Promote() (T, bool) {
	if w.dropped.Load() {
		var zero T
		return zero, false
	}
	return TryPromote(w.target.WeakGate(), w.target)
}

// Alive reports whether target is still promotable. The answer may be
// stale by the time the caller acts on it.
func (w *Weak[T]) Alive() bool {
	return !w.dropped.Load() && w.target.WeakGate().State() == Live
}

// Drop unregisters the weak reference. Only the first call has an effect.
func (w *Weak[T]) Drop() {
	if w.dropped.CompareAndSwap(false, true) {
		w.target.WeakGate().UnregisterWeak()
	}
}
