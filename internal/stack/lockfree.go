package stack

import (
	"sync/atomic"

	"github.com/randomizedcoder/go-lock-free-containers/internal/cas"
	"github.com/randomizedcoder/go-lock-free-containers/internal/reclaim"
)

type node[T any] struct {
	// data is shared by every popper that loaded this node as head; only
	// the one whose CAS detaches the node takes it.
	data atomic.Pointer[T]
	next *node[T]

	// pending links detached nodes waiting for reclamation.
	pending *node[T]
	freed   atomic.Bool
}

func (n *node[T]) checkLive() {
	if n.freed.Load() {
		panic("stack: node used after reclamation")
	}
}

// LockFree is an unbounded lock-free multi-producer multi-consumer stack.
//
// The zero value is an empty stack ready to use. A LockFree must not be
// copied after first use.
type LockFree[T any] struct {
	_ noCopy

	head atomic.Pointer[node[T]]
	size atomic.Int64

	// toReclaim is the pending list of detached nodes that a popper could
	// not prove unreferenced.
	toReclaim    atomic.Pointer[node[T]]
	pendingCount atomic.Int64
	poppers      reclaim.Epoch

	nodes   reclaim.Tracker
	retries atomic.Uint64
}

var _ Stack[int] = (*LockFree[int])(nil)

// NewLockFree creates an empty stack.
func NewLockFree[T any]() *LockFree[T] {
	return &LockFree[T]{}
}

// Push places v on top of the stack.
func (s *LockFree[T]) Push(v T) {
	n := &node[T]{}
	n.data.Store(&v)
	s.nodes.Alloc()

	s.addRetries(cas.Loop(func() bool {
		n.next = s.head.Load()
		return s.head.CompareAndSwap(n.next, n)
	}))
	s.size.Add(1)
}

// Pop removes and returns the value on top of the stack.
// Returns false if the stack is empty.
func (s *LockFree[T]) Pop() (T, bool) {
	s.poppers.Enter()

	var old *node[T]
	s.addRetries(cas.Loop(func() bool {
		old = s.head.Load()
		if old == nil {
			return true
		}
		old.checkLive()
		return s.head.CompareAndSwap(old, old.next)
	}))

	var value T
	if old != nil {
		value = *old.data.Swap(nil)
		s.size.Add(-1)
	}
	s.tryReclaim(old)
	return value, old != nil
}

// tryReclaim is the exit path of every Pop. detached is the node this Pop
// removed, or nil if the stack was empty.
func (s *LockFree[T]) tryReclaim(detached *node[T]) {
	if s.poppers.State() != reclaim.SoleActive {
		if detached != nil {
			s.deferNode(detached)
		}
		s.poppers.Exit()
		return
	}

	// Nobody else is in Pop, so nobody else can have loaded detached.
	pending := s.toReclaim.Swap(nil)
	s.settle(pending, s.poppers.Exit())
	if detached != nil {
		s.reclaim(detached)
	}
}

// settle disposes of a pending list taken by a sole popper, given the
// state that popper's Exit left behind.
func (s *LockFree[T]) settle(pending *node[T], left reclaim.State) {
	switch {
	case pending == nil:
	case left == reclaim.Idle:
		// Still alone after taking the list: every node on it was
		// parked before the swap, by poppers that have all left.
		s.freeList(pending)
	default:
		// A popper came in between the swap and the exit and may hold a
		// node from the list. Put it back for a later pass.
		s.deferList(pending)
	}
}

// deferNode parks a single node on the pending list.
func (s *LockFree[T]) deferNode(n *node[T]) {
	s.pendingCount.Add(1)
	s.pushPending(n, n)
}

// deferList parks a whole list that was swapped off the pending list.
func (s *LockFree[T]) deferList(first *node[T]) {
	last := first
	for last.pending != nil {
		last = last.pending
	}
	s.pushPending(first, last)
}

func (s *LockFree[T]) pushPending(first, last *node[T]) {
	s.addRetries(cas.Loop(func() bool {
		last.pending = s.toReclaim.Load()
		return s.toReclaim.CompareAndSwap(last.pending, first)
	}))
}

func (s *LockFree[T]) freeList(n *node[T]) {
	freed := 0
	for n != nil {
		next := n.pending
		s.reclaim(n)
		n = next
		freed++
	}
	s.pendingCount.Add(-int64(freed))
}

// reclaim poisons n and records it as freed. Every node leaves the stack
// through here, exactly once.
func (s *LockFree[T]) reclaim(n *node[T]) {
	if n.freed.Swap(true) {
		panic("stack: node reclaimed twice")
	}
	n.data.Store(nil)
	s.nodes.Free(1)
}

func (s *LockFree[T]) addRetries(n uint64) {
	if n > 0 {
		s.retries.Add(n)
	}
}

// Size returns the number of values in the stack.
func (s *LockFree[T]) Size() int {
	if n := s.size.Load(); n > 0 {
		return int(n)
	}
	return 0
}

// Empty reports whether Size is zero.
func (s *LockFree[T]) Empty() bool {
	return s.Size() == 0
}

// Pending returns the number of detached nodes waiting on the pending
// list.
func (s *LockFree[T]) Pending() int {
	return int(s.pendingCount.Load())
}

// Nodes returns the node allocation counts. After Close, Live is zero.
func (s *LockFree[T]) Nodes() reclaim.Stats {
	return s.nodes.Stats()
}

// Retries returns the number of failed CAS attempts so far.
func (s *LockFree[T]) Retries() uint64 {
	return s.retries.Load()
}

// Close reclaims every node still on the stack or on the pending list.
//
// Close must not run concurrently with any other method, and the stack
// must not be used afterwards.
func (s *LockFree[T]) Close() {
	for n := s.head.Swap(nil); n != nil; {
		next := n.next
		s.reclaim(n)
		n = next
	}
	s.freeList(s.toReclaim.Swap(nil))
	s.size.Store(0)
}
