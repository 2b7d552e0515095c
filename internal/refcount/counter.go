// Package refcount implements the per-node half of a split reference count.
//
// A node shared through counted pointers is referenced in two ways. Each
// counted pointer slot (a queue's head, tail or a node's next link) carries
// an external count that readers bump before they dereference the node.
// The node itself carries a Counter holding the internal count and the
// number of slots that still hold an external count for it. When a slot
// stops pointing at the node, its external count is folded into the
// internal count with ReleaseExternal. Readers that lost their slot give
// their reference back with Release.
//
// The node may be reclaimed exactly when both halves of the Counter are
// zero; Release and ReleaseExternal report that moment to the single caller
// that caused it.
package refcount

import (
	"fmt"
	"sync/atomic"

	"github.com/randomizedcoder/go-lock-free-containers/internal/cas"
)

// MaxExternal is the largest number of counted pointer slots that may
// reference one node at a time.
const MaxExternal = 2

// Counter packs a signed internal count and the number of live external
// counters into one word so both change with a single CAS.
//
// The zero Counter has no owners; call Init before publishing the node.
type Counter struct {
	word atomic.Uint64
}

func pack(internal int32, external uint32) uint64 {
	return uint64(external)<<32 | uint64(uint32(internal))
}

func unpack(w uint64) (internal int32, external uint32) {
	return int32(uint32(w)), uint32(w >> 32)
}

// Init sets the number of external owners and clears the internal count.
// It must only be called before the node is shared.
func (c *Counter) Init(external uint32) {
	if external > MaxExternal {
		panic(fmt.Sprintf("refcount: %d external counters, at most %d allowed", external, MaxExternal))
	}
	c.word.Store(pack(0, external))
}

// Load returns a snapshot of both counts.
func (c *Counter) Load() (internal int32, external uint32) {
	return unpack(c.word.Load())
}

// Release gives back one internal reference and reports whether the node
// is now unreferenced.
func (c *Counter) Release() (zero bool) {
	var next uint64
	cas.Loop(func() bool {
		old := c.word.Load()
		internal, external := unpack(old)
		next = pack(internal-1, external)
		return c.word.CompareAndSwap(old, next)
	})
	internal, external := unpack(next)
	return internal == 0 && external == 0
}

// ReleaseExternal retires one external counter and adds transfer, the
// references that counter accumulated beyond its owners, to the internal
// count. It reports whether the node is now unreferenced.
//
// Releasing more external counters than were registered panics.
func (c *Counter) ReleaseExternal(transfer int32) (zero bool) {
	var next uint64
	cas.Loop(func() bool {
		old := c.word.Load()
		internal, external := unpack(old)
		if external == 0 {
			panic("refcount: external counter released with none registered")
		}
		next = pack(internal+transfer, external-1)
		return c.word.CompareAndSwap(old, next)
	})
	internal, external := unpack(next)
	return internal == 0 && external == 0
}
