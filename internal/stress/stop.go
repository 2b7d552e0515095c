package stress

import (
	"context"
	"sync/atomic"
)

// stopFlag is the shutdown signal workers poll on every iteration.
//
// Polling is a single atomic load, much cheaper than a select on
// ctx.Done() in a loop that runs millions of times per second. The
// context is bridged in once with watch.
type stopFlag struct {
	done atomic.Bool
}

// Done returns true once Stop has been called.
func (s *stopFlag) Done() bool {
	return s.done.Load()
}

// Stop raises the flag. Safe to call multiple times.
func (s *stopFlag) Stop() {
	s.done.Store(true)
}

// watch raises the flag when ctx is done. The returned function detaches
// the watch and must be called once the run is over.
func (s *stopFlag) watch(ctx context.Context) (release func() bool) {
	return context.AfterFunc(ctx, s.Stop)
}
