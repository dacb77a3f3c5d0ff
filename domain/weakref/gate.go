package weakref

import (
	"math"
	"sync"
)

// Gate is the weak-reference state of one host object. It is embedded by
// value in the host. The zero value is a Live gate with no weak
// registrations, and must be in place before the host is shared with
// other goroutines. A Gate must not be copied after first use.
type Gate struct {
	mu        sync.Mutex
	weakCount uint32
	state     State

	dbg gateDebug
}

// RegisterWeak records a new weak reference. It is a no-op once the gate
// is Invalid; the observer's promotions will simply fail.
func (g *Gate) RegisterWeak() {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.state == Live && g.weakCount != math.MaxUint32 {
		g.weakCount++
	}
	debugf("register weak: state=%s count=%d", g.state, g.weakCount)
}

// UnregisterWeak drops a weak reference taken with RegisterWeak.
func (g *Gate) UnregisterWeak() {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.state == Live {
		assertf(g.weakCount > 0, "weakref: unregister without matching register")
		if g.weakCount > 0 {
			g.weakCount--
		}
	}
	debugf("unregister weak: state=%s count=%d", g.state, g.weakCount)
}

// TryPromote takes an owning reference on h if the gate is still Live.
// On true the caller owns a reference and must release it through
// ReleaseOwning. On false h is gone for good and must not be touched.
func (g *Gate) TryPromote(h Host) bool {
	return g.promote(h)
}

func (g *Gate) promote(h Host) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.state == Invalid {
		assertf(!g.dbg.finalizing(), "weakref: promotion from inside Finalize")
		debugf("promote: gate invalid")
		return false
	}
	// Retain runs under the lock so that no ReleaseOwning can observe the
	// last owner between the check above and the new reference.
	h.Retain()
	return true
}

// ReleaseOwning drops one owning reference to h. It must replace every
// direct call to h.Release in the host's code. When the reference was the
// last one the gate becomes Invalid, then h.Finalize runs exactly once and,
// if h is a Reclaimer, h.Reclaim runs after it.
func (g *Gate) ReleaseOwning(h Host) {
	if !g.releaseLocked(h) {
		return
	}

	g.dbg.enterFinalize()
	h.Finalize()
	g.dbg.exitFinalize()

	if r, ok := h.(Reclaimer); ok {
		r.Reclaim()
	}
}

// releaseLocked reports whether this call performed the terminal transition.
func (g *Gate) releaseLocked(h Host) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !h.Release() {
		return false
	}
	if g.state == Invalid {
		debugf("release: gate already invalid, ignoring terminal release")
		return false
	}
	g.state = Invalid
	g.weakCount = 0
	debugf("release: gate invalidated")
	return true
}

// State returns the current state of the gate.
func (g *Gate) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// WeakCount returns the number of outstanding weak registrations. It is
// advisory: hosts may skip invalidation work when it is zero, but
// promotion never depends on it. It is always zero once Invalid.
func (g *Gate) WeakCount() uint32 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.weakCount
}
