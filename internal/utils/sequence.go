package utils

import "sync/atomic"

// Sequence is a monotonic identifier generator shared by everything that mints ids
// (graph nodes, pricing packs). It is the only synchronized resource on the hot path.
type Sequence struct {
	last atomic.Int64
}

// NewSequence creates a sequence whose first Next() returns start+1
func NewSequence(start int64) *Sequence {
	s := &Sequence{}
	s.last.Store(start)
	return s
}

// Next returns the next identifier
func (s *Sequence) Next() int64 {
	return s.last.Add(1)
}

// Current returns the last identifier handed out
func (s *Sequence) Current() int64 {
	return s.last.Load()
}

// AdvanceTo moves the sequence forward so the next id is greater than floor.
// It never moves the sequence backwards.
func (s *Sequence) AdvanceTo(floor int64) {
	for {
		cur := s.last.Load()
		if cur >= floor {
			return
		}
		if s.last.CompareAndSwap(cur, floor) {
			return
		}
	}
}
