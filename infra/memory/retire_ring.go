package memory

import (
	"sync"
	"sync/atomic"
)

// RetireRing is a bounded ring of retired objects. Any number of
// goroutines may Enqueue; producers are serialised by a mutex. Dequeue
// must only be called from a single reclaimer goroutine.
type RetireRing struct {
	head  uint64
	_pad1 [56]byte
	tail  uint64
	_pad2 [56]byte
	buf   []any
	mask  uint64

	produce sync.Mutex
}

func NewRetireRing(size uint64) *RetireRing {
	if size == 0 || size&(size-1) != 0 {
		panic("RetireRing size must be power of two")
	}
	return &RetireRing{
		buf:  make([]any, size),
		mask: size - 1,
	}
}

// Enqueue adds v; returns false if the ring is full.
func (r *RetireRing) Enqueue(v any) bool {
	r.produce.Lock()
	defer r.produce.Unlock()

	h := r.head
	t := atomic.LoadUint64(&r.tail)
	if h-t == uint64(len(r.buf)) {
		return false
	}
	r.buf[h&r.mask] = v
	atomic.StoreUint64(&r.head, h+1)
	return true
}

// Dequeue removes the oldest element; returns nil if empty.
func (r *RetireRing) Dequeue() any {
	t := r.tail
	h := atomic.LoadUint64(&r.head)
	if t == h {
		return nil
	}
	v := r.buf[t&r.mask]
	r.buf[t&r.mask] = nil
	atomic.StoreUint64(&r.tail, t+1)
	return v
}

// Drain dequeues everything currently queued and hands it to fn. It
// returns the number of objects reclaimed.
func (r *RetireRing) Drain(fn func(any)) int {
	n := 0
	for {
		v := r.Dequeue()
		if v == nil {
			return n
		}
		fn(v)
		n++
	}
}

func (r *RetireRing) Len() int {
	return int(atomic.LoadUint64(&r.head) - atomic.LoadUint64(&r.tail))
}

func (r *RetireRing) Cap() int { return len(r.buf) }
