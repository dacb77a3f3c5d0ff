package sequence

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSequencerResumes(t *testing.T) {
	s := New(41)
	assert.Equal(t, uint64(42), s.Next())
	assert.Equal(t, uint64(42), s.Current())
}

func TestSequencerUnique(t *testing.T) {
	s := New(0)
	var (
		mu   sync.Mutex
		seen = make(map[uint64]bool)
		wg   sync.WaitGroup
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				id := s.Next()
				mu.Lock()
				seen[id] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Len(t, seen, 800)
	assert.Equal(t, uint64(800), s.Current())
}

func TestSequencerIssued(t *testing.T) {
	s := New(3)
	assert.False(t, s.Issued(0))
	assert.True(t, s.Issued(1))
	assert.True(t, s.Issued(3))
	assert.False(t, s.Issued(4))

	s.Next()
	assert.True(t, s.Issued(4))
}
