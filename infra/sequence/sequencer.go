// Package sequence numbers things that must never repeat: view IDs, and
// the order in which the outbox records finalizations.
package sequence

import "sync/atomic"

// Sequencer issues strictly increasing numbers starting after a floor.
// 0 is never issued, so it can stand for "none".
type Sequencer struct {
	last atomic.Uint64
}

// New resumes after last, the highest number issued by a previous run
// (0 on a fresh start).
func New(last uint64) *Sequencer {
	s := &Sequencer{}
	s.last.Store(last)
	return s
}

func (s *Sequencer) Next() uint64 {
	return s.last.Add(1)
}

// Current returns the highest number issued so far.
func (s *Sequencer) Current() uint64 {
	return s.last.Load()
}

// Issued reports whether n was handed out by s or by the run it resumed.
func (s *Sequencer) Issued(n uint64) bool {
	return n != 0 && n <= s.last.Load()
}
