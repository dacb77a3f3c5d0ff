package weakref

import (
	"fmt"
	"sync/atomic"
)

// RefCount is an owning reference counter for hosts. Hosts embed it next
// to their Gate and forward Retain and Release to it.
//
// The zero value has no owners; call Init before publishing the host.
type RefCount struct {
	n atomic.Int32
}

// Init sets the initial number of owning references.
func (c *RefCount) Init(n int32) {
	c.n.Store(n)
}

// Retain adds an owning reference. Retaining a freed counter panics.
func (c *RefCount) Retain() {
	if n := c.n.Add(1); n <= 1 {
		panic(fmt.Errorf("weakref: retain on released ref count %d", n-1))
	}
}

// Release drops an owning reference and reports whether it was the last.
func (c *RefCount) Release() bool {
	n := c.n.Add(-1)
	if n < 0 {
		panic(fmt.Errorf("weakref: ref count released too often (%d)", n))
	}
	return n == 0
}

// Count returns the current number of owning references.
func (c *RefCount) Count() int32 {
	return c.n.Load()
}
