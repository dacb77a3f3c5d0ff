package service

import (
	"context"
	"encoding/binary"
	"sort"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"weakgate/domain/view"
	"weakgate/domain/weakref"
	"weakgate/infra/journal"
	"weakgate/infra/log"
	"weakgate/infra/memory"
	"weakgate/infra/metrics"
	"weakgate/infra/outbox"
	"weakgate/infra/sequence"
	"weakgate/infra/store"
	"weakgate/jobs/broadcaster"
)

var (
	// ErrViewNotFound means the ID was never issued, or its view is long
	// gone from the registry.
	ErrViewNotFound = errors.New("view not found")
	// ErrViewGone means the view was finalized; it will never come back.
	ErrViewGone = errors.New("view finalized")
)

/*
ViewService is the only entry point into views.

All coordination between:
- domain (view, weakref)
- infra (store, journal, outbox, memory)
happens here.
*/
type ViewService struct {
	store   *store.Store
	outbox  *outbox.Outbox
	journal *journal.Journal
	seq     *sequence.Sequencer
	bufs    *memory.Pool[memory.Buffer]
	ring    *memory.RetireRing
	log     *logrus.Entry

	// openMu keeps journal appends in sequence order
	openMu sync.Mutex

	mu     sync.RWMutex
	views  map[uint64]*weakref.Weak[*view.View]
	leases map[uint64]*view.View
}

// NewViewService wires all dependencies. outbox may be nil, in which case
// finalizations are only logged.
func NewViewService(
	st *store.Store,
	ob *outbox.Outbox,
	j *journal.Journal,
	seq *sequence.Sequencer,
	bufs *memory.Pool[memory.Buffer],
	ring *memory.RetireRing,
) *ViewService {
	return &ViewService{
		store:   st,
		outbox:  ob,
		journal: j,
		seq:     seq,
		bufs:    bufs,
		ring:    ring,
		log:     log.Component("views"),
		views:   make(map[uint64]*weakref.Weak[*view.View]),
		leases:  make(map[uint64]*view.View),
	}
}

//
// ──────────────────────────────────────────────────────────
// Writes
// ──────────────────────────────────────────────────────────
//

// Put writes key to the store. Open views keep seeing their snapshot.
func (s *ViewService) Put(key, value []byte) error {
	if err := s.store.Put(key, value); err != nil {
		return err
	}
	s.log.WithField(log.KeyKey, string(key)).Debug("put")
	return nil
}

func (s *ViewService) Delete(key []byte) error {
	if err := s.store.Delete(key); err != nil {
		return err
	}
	s.log.WithField(log.KeyKey, string(key)).Debug("delete")
	return nil
}

// Latest reads the current value of key, outside any view, and appends
// it to dst.
func (s *ViewService) Latest(key, dst []byte) ([]byte, error) {
	return s.store.Get(key, dst)
}

//
// ──────────────────────────────────────────────────────────
// View lifecycle
// ──────────────────────────────────────────────────────────
//

// Open creates a view of the current store contents. The caller owns the
// returned view and must Close it.
func (s *ViewService) Open() (*view.View, error) {
	id, err := s.nextID()
	if err != nil {
		return nil, err
	}

	v := view.New(view.Options{
		ID:         id,
		Snapshot:   s.store.NewSnapshot(),
		Buffers:    s.bufs,
		Retire:     s.ring,
		OnFinalize: s.finalized,
	})

	s.mu.Lock()
	s.views[id] = v.Weak()
	s.mu.Unlock()

	metrics.WeakRegistrations.Inc()
	metrics.LiveViews.Inc()
	s.log.WithField(log.KeyView, id).Debug("view opened")
	return v, nil
}

func (s *ViewService) nextID() (uint64, error) {
	s.openMu.Lock()
	defer s.openMu.Unlock()

	id := s.seq.Next()
	if err := s.journal.Append(journal.NewRecord(journal.RecordOpen, id, idBytes(id))); err != nil {
		return 0, errors.Wrapf(err, "journal view %d", id)
	}
	return id, nil
}

// Lease opens a view whose owning reference is kept by the service until
// Close(id). It is how remote clients hold views.
func (s *ViewService) Lease() (uint64, error) {
	v, err := s.Open()
	if err != nil {
		return 0, err
	}
	s.mu.Lock()
	s.leases[v.ID()] = v
	s.mu.Unlock()
	return v.ID(), nil
}

// Close drops the lease taken by Lease.
func (s *ViewService) Close(id uint64) error {
	s.mu.Lock()
	v, ok := s.leases[id]
	delete(s.leases, id)
	s.mu.Unlock()

	if !ok {
		return errors.Wrapf(ErrViewNotFound, "lease %d", id)
	}
	v.Close()
	return nil
}

// Acquire promotes the registry's weak reference to view id. On success
// the caller owns the returned view and must Close it.
func (s *ViewService) Acquire(id uint64) (*view.View, error) {
	s.mu.RLock()
	w, ok := s.views[id]
	s.mu.RUnlock()
	if !ok {
		if s.seq.Issued(id) {
			metrics.Promotions.WithLabelValues(metrics.ResultGone).Inc()
			return nil, errors.Wrapf(ErrViewGone, "view %d", id)
		}
		return nil, errors.Wrapf(ErrViewNotFound, "view %d", id)
	}

	v, ok := w.Promote()
	if !ok {
		metrics.Promotions.WithLabelValues(metrics.ResultGone).Inc()
		return nil, errors.Wrapf(ErrViewGone, "view %d", id)
	}
	metrics.Promotions.WithLabelValues(metrics.ResultOK).Inc()
	return v, nil
}

// Get reads key through view id and appends the value to dst.
func (s *ViewService) Get(id uint64, key, dst []byte) ([]byte, error) {
	v, err := s.Acquire(id)
	if err != nil {
		return dst, err
	}
	defer v.Close()

	err = v.Get(key, func(value []byte) error {
		dst = append(dst, value...)
		return nil
	})
	return dst, err
}

// Scan calls fn for every key with prefix as of view id, in key order.
// key and value are only valid during fn.
func (s *ViewService) Scan(id uint64, prefix []byte, fn func(key, value []byte) error) error {
	v, err := s.Acquire(id)
	if err != nil {
		return err
	}
	defer v.Close()
	return v.Scan(prefix, fn)
}

// finalized runs on whichever goroutine released the last owning
// reference to v.
func (s *ViewService) finalized(v *view.View) {
	id := v.ID()

	s.mu.Lock()
	w := s.views[id]
	delete(s.views, id)
	s.mu.Unlock()

	if w != nil {
		w.Drop()
	}

	metrics.Finalizations.Inc()
	metrics.LiveViews.Dec()

	entry := s.log.WithField(log.KeyView, id)
	if s.outbox == nil {
		entry.Debug("view finalized")
		return
	}

	seq, err := s.outbox.PutNew(id, func(seq uint64) ([]byte, error) {
		return broadcaster.NewFinalizedEvent(id, seq).Marshal()
	})
	if err != nil {
		entry.WithError(err).Error("record finalization")
		return
	}
	entry.WithField(log.KeySeq, seq).Debug("view finalized")
}

//
// ──────────────────────────────────────────────────────────
// Reclamation
// ──────────────────────────────────────────────────────────
//

// Reclaim closes every snapshot retired since the last call. It must not
// be called concurrently with itself.
func (s *ViewService) Reclaim() int {
	n := s.ring.Drain(func(x any) {
		snap, ok := x.(*store.Snapshot)
		if !ok {
			s.log.Errorf("unexpected %T in retire ring", x)
			return
		}
		if err := snap.Close(); err != nil {
			s.log.WithError(err).Warn("close retired snapshot")
		}
	})
	if n > 0 {
		metrics.Reclaimed.Add(float64(n))
		s.log.WithField("count", n).Debug("reclaimed snapshots")
	}
	return n
}

// RunReclaimer calls Reclaim every interval until ctx is done, then once
// more.
func (s *ViewService) RunReclaimer(ctx context.Context, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			s.Reclaim()
			return
		case <-t.C:
			s.Reclaim()
		}
	}
}

// Shutdown drops every lease and reclaims what that released. Views owned
// by in-process callers stay alive until those callers close them.
func (s *ViewService) Shutdown() {
	s.mu.Lock()
	leases := s.leases
	s.leases = make(map[uint64]*view.View)
	s.mu.Unlock()

	for _, v := range leases {
		v.Close()
	}
	s.Reclaim()
}

//
// ──────────────────────────────────────────────────────────
// Queries
// ──────────────────────────────────────────────────────────
//

type Stats struct {
	Live    int
	Leased  int
	Retired int
	LastID  uint64
	Views   []uint64
}

func (s *ViewService) Stats() Stats {
	s.mu.RLock()
	st := Stats{
		Live:   len(s.views),
		Leased: len(s.leases),
		Views:  make([]uint64, 0, len(s.views)),
	}
	for id := range s.views {
		st.Views = append(st.Views, id)
	}
	s.mu.RUnlock()

	sort.Slice(st.Views, func(i, j int) bool { return st.Views[i] < st.Views[j] })
	st.Retired = s.ring.Len()
	st.LastID = s.seq.Current()
	return st
}

func idBytes(id uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, id)
	return b
}
