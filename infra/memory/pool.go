package memory

import "sync"

// Pool is a typed object pool.
type Pool[T any] struct {
	p     *sync.Pool
	reset func(*T)
}

// NewPool creates a pool. reset, if not nil, runs on every object handed
// back with Put.
func NewPool[T any](ctor func() *T, reset func(*T)) *Pool[T] {
	return &Pool[T]{
		p: &sync.Pool{
			New: func() any { return ctor() },
		},
		reset: reset,
	}
}

func (p *Pool[T]) Get() *T {
	return p.p.Get().(*T)
}

func (p *Pool[T]) Put(v *T) {
	if v == nil {
		return
	}
	if p.reset != nil {
		p.reset(v)
	}
	p.p.Put(v)
}

// Buffer is a reusable byte buffer for values copied out of views.
type Buffer struct {
	B []byte
}

// NewBufferPool returns a pool of buffers with the given initial capacity.
func NewBufferPool(capacity int) *Pool[Buffer] {
	return NewPool(
		func() *Buffer { return &Buffer{B: make([]byte, 0, capacity)} },
		func(b *Buffer) { b.B = b.B[:0] },
	)
}
