package stress

import (
	"sync/atomic"
	"time"
	_ "unsafe" // Required for go:linkname
)

// nanotime returns the current monotonic time in nanoseconds.
// This is faster than time.Now() because it returns a single int64
// and avoids constructing a time.Time struct.
//
//go:linkname nanotime runtime.nanotime
func nanotime() int64

// progressTicker decides which worker reports progress.
//
// Every worker polls Tick in its loop; once per interval exactly one of
// them wins the CAS and gets true.
type progressTicker struct {
	interval int64 // nanoseconds, 0 disables
	lastTick atomic.Int64
}

func newProgressTicker(interval time.Duration) *progressTicker {
	t := &progressTicker{interval: int64(interval)}
	t.lastTick.Store(nanotime())
	return t
}

// Tick returns true if the interval has elapsed since the last tick.
func (t *progressTicker) Tick() bool {
	if t.interval <= 0 {
		return false
	}
	now := nanotime()
	last := t.lastTick.Load()
	if now-last < t.interval {
		return false
	}
	return t.lastTick.CompareAndSwap(last, now)
}
