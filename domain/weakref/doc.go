// Package weakref provides weak references for objects that manage their
// own lifetime with an explicit owning reference count.
//
// A host object embeds a Gate and routes every owning release through
// ReleaseOwning. Observers register weak interest with RegisterWeak and
// later call TryPromote to obtain a temporary owning reference. Promotion
// and the final release serialize on the gate's mutex, so a promotion
// either completes before teardown starts or fails cleanly afterwards.
//
// The package has no I/O and no background goroutines. Debug checks and
// logging are compiled in with the weakrefdebug build tag.
package weakref
