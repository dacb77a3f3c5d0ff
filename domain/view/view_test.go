package view

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"weakgate/domain/weakref"
	"weakgate/infra/memory"
	"weakgate/infra/store"
)

func openStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(store.Config{Dir: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func newView(s *store.Store, ring *memory.RetireRing, onFinalize func(*View)) *View {
	return New(Options{
		ID:         1,
		Snapshot:   s.NewSnapshot(),
		Buffers:    memory.NewBufferPool(64),
		Retire:     ring,
		OnFinalize: onFinalize,
	})
}

func TestViewReadsSnapshot(t *testing.T) {
	s := openStore(t)
	require.NoError(t, s.Put([]byte("a"), []byte("1")))

	v := newView(s, nil, nil)
	defer v.Close()

	require.NoError(t, s.Put([]byte("a"), []byte("2")))

	var got string
	require.NoError(t, v.Get([]byte("a"), func(val []byte) error {
		got = string(val)
		return nil
	}))
	assert.Equal(t, "1", got)

	err := v.Get([]byte("missing"), func([]byte) error { return nil })
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestViewFinalizeAndRetire(t *testing.T) {
	s := openStore(t)
	ring := memory.NewRetireRing(4)

	var finalized []uint64
	v := newView(s, ring, func(v *View) { finalized = append(finalized, v.ID()) })
	w := v.Weak()
	defer w.Drop()

	c := v.Clone()
	v.Close()
	assert.Empty(t, finalized, "clone still owns the view")
	assert.True(t, w.Alive())

	c.Close()
	assert.Equal(t, []uint64{1}, finalized)
	assert.Equal(t, weakref.Invalid, v.WeakGate().State())
	assert.Equal(t, 1, ring.Len())

	_, ok := w.Promote()
	assert.False(t, ok)

	n := ring.Drain(func(x any) { require.NoError(t, x.(*store.Snapshot).Close()) })
	assert.Equal(t, 1, n)
}

func TestViewClosesSnapshotWhenRingFull(t *testing.T) {
	s := openStore(t)
	ring := memory.NewRetireRing(1)
	require.True(t, ring.Enqueue("occupied"))

	v := newView(s, ring, nil)
	v.Close()
	assert.Nil(t, v.snap)
	assert.Equal(t, 1, ring.Len())
}

func TestViewConcurrentReaders(t *testing.T) {
	s := openStore(t)
	require.NoError(t, s.Put([]byte("k"), []byte("v")))

	var (
		mu        sync.Mutex
		finalized int
	)
	v := newView(s, nil, func(*View) {
		mu.Lock()
		finalized++
		mu.Unlock()
	})
	w := v.Weak()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				r, ok := w.Promote()
				if !ok {
					return
				}
				err := r.Get([]byte("k"), func(val []byte) error {
					assert.Equal(t, "v", string(val))
					return nil
				})
				assert.NoError(t, err)
				r.Close()
			}
		}()
	}
	v.Close()
	wg.Wait()
	w.Drop()

	assert.Equal(t, 1, finalized)
	assert.Equal(t, int32(0), v.Owners())
}
