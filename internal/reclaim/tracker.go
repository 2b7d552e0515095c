package reclaim

import "sync/atomic"

// Stats is a snapshot of a Tracker.
type Stats struct {
	Allocated uint64
	Freed     uint64
}

// Live returns the number of nodes allocated and not yet reclaimed.
func (s Stats) Live() int64 {
	return int64(s.Allocated) - int64(s.Freed)
}

// Tracker counts node allocations and reclamations.
//
// Reads of Allocated and Freed are not taken at one instant; Stats is only
// exact while no operation is in flight.
type Tracker struct {
	allocated atomic.Uint64
	freed     atomic.Uint64
}

// Alloc records one node allocation.
func (t *Tracker) Alloc() {
	t.allocated.Add(1)
}

// Free records n node reclamations.
func (t *Tracker) Free(n int) {
	t.freed.Add(uint64(n))
}

// Stats returns the current counts. Freed is read first so that a
// concurrent snapshot never reports more frees than allocations.
func (t *Tracker) Stats() Stats {
	freed := t.freed.Load()
	return Stats{
		Allocated: t.allocated.Load(),
		Freed:     freed,
	}
}
