// Package view defines View, a reference-counted read view over the
// store that can be weakly referenced.
package view

import (
	"weakgate/domain/weakref"
	"weakgate/infra/memory"
	"weakgate/infra/store"
)

// Options wires a view to its storage and to the service that owns it.
type Options struct {
	ID       uint64
	Snapshot *store.Snapshot
	// Buffers backs Get. Required.
	Buffers *memory.Pool[memory.Buffer]
	// Retire receives the snapshot on reclaim. When nil, or when the ring
	// is full, the snapshot is closed on the releasing goroutine.
	Retire *memory.RetireRing
	// OnFinalize runs once, after the view stopped being promotable.
	OnFinalize func(v *View)
}

// View is a consistent read view over the store. A new View carries one
// owning reference that belongs to its creator.
//
// Every owning reference must be dropped with Close (or weakref.Release),
// never with the raw Release method.
type View struct {
	gate weakref.Gate
	refs weakref.RefCount

	id         uint64
	snap       *store.Snapshot
	bufs       *memory.Pool[memory.Buffer]
	retire     *memory.RetireRing
	onFinalize func(*View)
}

func New(opts Options) *View {
	v := &View{
		id:         opts.ID,
		snap:       opts.Snapshot,
		bufs:       opts.Buffers,
		retire:     opts.Retire,
		onFinalize: opts.OnFinalize,
	}
	v.refs.Init(1)
	return v
}

func (v *View) ID() uint64 { return v.id }

// Owners returns the current number of owning references.
func (v *View) Owners() int32 { return v.refs.Count() }

// WeakGate implements weakref.Gated.
func (v *View) WeakGate() *weakref.Gate { return &v.gate }

// Retain implements weakref.Host. Use Promote or Clone instead.
func (v *View) Retain() { v.refs.Retain() }

// Release implements weakref.Host. Use Close instead.
func (v *View) Release() bool { return v.refs.Release() }

// Finalize implements weakref.Host.
func (v *View) Finalize() {
	if v.onFinalize != nil {
		v.onFinalize(v)
	}
}

// Reclaim implements weakref.Reclaimer. The snapshot is handed to the
// retire ring so that closing it stays off the release path.
func (v *View) Reclaim() {
	snap := v.snap
	v.snap = nil
	if snap == nil {
		return
	}
	if v.retire == nil || !v.retire.Enqueue(snap) {
		_ = snap.Close()
	}
}

// Clone takes an additional owning reference. The caller must already
// own one.
func (v *View) Clone() *View {
	v.refs.Retain()
	return v
}

// Close drops one owning reference.
func (v *View) Close() {
	weakref.Release(v)
}

// Weak returns a weak reference to the view. The caller must own a
// reference while calling it.
func (v *View) Weak() *weakref.Weak[*View] {
	return weakref.NewWeak(v)
}

// Get calls fn with the value of key as of the view. value is only valid
// during fn. The caller must own a reference.
func (v *View) Get(key []byte, fn func(value []byte) error) error {
	buf := v.bufs.Get()
	defer v.bufs.Put(buf)

	var err error
	buf.B, err = v.snap.Get(key, buf.B[:0])
	if err != nil {
		return err
	}
	return fn(buf.B)
}

// Scan calls fn for every key with prefix, in order. The caller must own
// a reference.
func (v *View) Scan(prefix []byte, fn func(key, value []byte) error) error {
	return v.snap.Scan(prefix, fn)
}
