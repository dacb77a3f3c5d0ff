package weakref

import (
	"math"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testHost struct {
	Gate
	RefCount

	finalized atomic.Int32
	reclaimed atomic.Int32
	inUse     atomic.Int32
	// set when Finalize observes a promoted reference still in use
	overlap atomic.Bool
}

func newTestHost() *testHost {
	h := &testHost{}
	h.Init(1)
	return h
}

func (h *testHost) WeakGate() *Gate { return &h.Gate }

func (h *testHost) Finalize() {
	if h.inUse.Load() != 0 {
		h.overlap.Store(true)
	}
	h.finalized.Add(1)
}

func (h *testHost) Reclaim() { h.reclaimed.Add(1) }

// doubleHost reports "last owner" on every release.
type doubleHost struct {
	finalized int
}

func (*doubleHost) Retain()       {}
func (*doubleHost) Release() bool { return true }
func (h *doubleHost) Finalize()   { h.finalized++ }

func TestGateZeroValue(t *testing.T) {
	var g Gate
	assert.Equal(t, Live, g.State())
	assert.Equal(t, uint32(0), g.WeakCount())
}

func TestRegisterUnregister(t *testing.T) {
	h := newTestHost()

	h.RegisterWeak()
	h.RegisterWeak()
	assert.Equal(t, uint32(2), h.WeakCount())

	h.UnregisterWeak()
	assert.Equal(t, uint32(1), h.WeakCount())
	h.UnregisterWeak()
	assert.Equal(t, uint32(0), h.WeakCount())
}

func TestRegisterSaturates(t *testing.T) {
	h := newTestHost()
	h.weakCount = math.MaxUint32 - 1

	h.RegisterWeak()
	h.RegisterWeak()
	h.RegisterWeak()
	assert.Equal(t, uint32(math.MaxUint32), h.WeakCount())

	h.UnregisterWeak()
	assert.Equal(t, uint32(math.MaxUint32-1), h.WeakCount())
}

func TestTryPromoteLive(t *testing.T) {
	h := newTestHost()

	got, ok := TryPromote(h.WeakGate(), h)
	require.True(t, ok)
	assert.Same(t, h, got)
	assert.Equal(t, int32(2), h.Count())

	Release(got)
	assert.Equal(t, int32(1), h.Count())
	assert.Equal(t, Live, h.State())
	assert.Zero(t, h.finalized.Load())
}

func TestReleaseOwningFinalizesOnce(t *testing.T) {
	h := newTestHost()
	h.RegisterWeak()

	ReleaseOwning(h.WeakGate(), h)

	assert.Equal(t, Invalid, h.State())
	assert.Equal(t, uint32(0), h.WeakCount())
	assert.Equal(t, int32(1), h.finalized.Load())
	assert.Equal(t, int32(1), h.reclaimed.Load())
}

func TestPromoteAfterInvalidation(t *testing.T) {
	h := newTestHost()
	Release(h)

	for i := 0; i < 10; i++ {
		got, ok := TryPromote(h.WeakGate(), h)
		assert.False(t, ok)
		assert.Nil(t, got)
		assert.False(t, h.TryPromote(h))
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, ok := TryPromote(h.WeakGate(), h)
			assert.False(t, ok)
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(0), h.Count())
}

func TestRegisterAfterInvalidationIsNoop(t *testing.T) {
	h := newTestHost()
	Release(h)

	h.RegisterWeak()
	assert.Equal(t, uint32(0), h.WeakCount())
	h.UnregisterWeak()
	assert.Equal(t, uint32(0), h.WeakCount())
	assert.Equal(t, Invalid, h.State())
}

func TestDoubleTerminalRelease(t *testing.T) {
	var g Gate
	h := &doubleHost{}

	g.ReleaseOwning(h)
	g.ReleaseOwning(h)

	assert.Equal(t, Invalid, g.State())
	assert.Equal(t, 1, h.finalized)
}

// Weak reference outlives its target: register, the owner releases on
// another goroutine, promotion fails, unregister leaves the state alone.
func TestWeakOutlivesTarget(t *testing.T) {
	h := newTestHost()

	h.RegisterWeak()
	assert.Equal(t, uint32(1), h.WeakCount())

	done := make(chan struct{})
	go func() {
		defer close(done)
		Release(h)
	}()
	<-done

	assert.Equal(t, Invalid, h.State())
	assert.Equal(t, int32(1), h.finalized.Load())

	_, ok := TryPromote(h.WeakGate(), h)
	assert.False(t, ok)

	h.UnregisterWeak()
	assert.Equal(t, uint32(0), h.WeakCount())
	assert.Equal(t, Invalid, h.State())
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "LIVE", Live.String())
	assert.Equal(t, "INVALID", Invalid.String())
	assert.Equal(t, "UNKNOWN", State(7).String())
}
