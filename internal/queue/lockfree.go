package queue

import (
	"sync/atomic"

	"github.com/randomizedcoder/go-lock-free-containers/internal/cas"
	"github.com/randomizedcoder/go-lock-free-containers/internal/reclaim"
	"github.com/randomizedcoder/go-lock-free-containers/internal/refcount"
)

// countedPtr is a node together with the external count of references
// handed out through the slot holding it.
//
// A countedPtr is immutable once stored in a slot: every change to either
// half installs a new one. A slot CAS compares countedPtr identity, and a
// countedPtr cannot be reused while any goroutine still holds it, so
// identity stands for the (node, external) pair without ABA.
type countedPtr[T any] struct {
	node     *node[T]
	external uint64
}

// slot holds a counted pointer. A nil countedPtr is the empty pointer.
type slot[T any] struct {
	p atomic.Pointer[countedPtr[T]]
}

func newSlot[T any](p *countedPtr[T]) *slot[T] {
	s := &slot[T]{}
	s.p.Store(p)
	return s
}

// node is a queue cell. The tail always points at a node whose data is
// still empty; a push fills it and links a fresh empty node behind it.
type node[T any] struct {
	// data goes from nil to the payload exactly once, and from the
	// payload to the queue's consumed marker when popped.
	data  atomic.Pointer[T]
	count refcount.Counter
	// next is set once, from nil to the following node.
	next  slot[T]
	freed atomic.Bool
}

func (n *node[T]) checkLive() {
	if n.freed.Load() {
		panic("queue: node used after reclamation")
	}
}

// LockFree is an unbounded lock-free multi-producer multi-consumer queue.
//
// Push and Pop never block on a lock. A goroutine whose CAS on the tail
// loses helps the winner link its node before retrying, so some goroutine
// always completes.
//
// The zero value is not usable; create queues with NewLockFree. A
// LockFree must not be copied after first use.
type LockFree[T any] struct {
	_ noCopy

	head *slot[T]
	tail *slot[T]
	size atomic.Int64

	// consumed replaces the payload of a popped node. A popped node's
	// data never returns to nil, so a pusher that stalled while holding
	// it can never store a value into it.
	consumed *T

	nodes   reclaim.Tracker
	retries atomic.Uint64
}

var _ Queue[int] = (*LockFree[int])(nil)

// NewLockFree creates an empty queue holding only its dummy node.
func NewLockFree[T any]() *LockFree[T] {
	q := &LockFree[T]{consumed: new(T)}
	dummy := q.newNode()
	q.head = newSlot(&countedPtr[T]{node: dummy, external: 1})
	q.tail = newSlot(&countedPtr[T]{node: dummy, external: 1})
	return q
}

// newNode allocates an empty node. It starts with two owners: the next
// slot of the node it will be linked behind, and the tail.
func (q *LockFree[T]) newNode() *node[T] {
	n := &node[T]{}
	n.count.Init(refcount.MaxExternal)
	q.nodes.Alloc()
	return n
}

func (q *LockFree[T]) newSpare() *countedPtr[T] {
	return &countedPtr[T]{node: q.newNode(), external: 1}
}

// Push appends v to the back of the queue.
//
// The payload and the next dummy node are allocated before the queue is
// touched.
func (q *LockFree[T]) Push(v T) {
	data := &v
	spare := q.newSpare()

	q.addRetries(cas.Loop(func() bool {
		oldTail := q.acquire(q.tail)
		if oldTail.node.data.CompareAndSwap(nil, data) {
			q.link(oldTail, spare)
			return true
		}
		spare = q.help(oldTail, spare)
		return false
	}))
	q.size.Add(1)
}

// link finishes a push whose data CAS on oldTail succeeded: it links
// spare behind oldTail, unless a helper already linked its own node, and
// moves the tail forward.
func (q *LockFree[T]) link(oldTail, spare *countedPtr[T]) {
	next := spare
	if !oldTail.node.next.p.CompareAndSwap(nil, spare) {
		q.discard(spare.node)
		next = oldTail.node.next.p.Load()
	}
	q.setTail(oldTail, next)
}

// help is run by a pusher that lost the data CAS on oldTail. It links its
// spare node on behalf of the winner if nobody has yet, and tries to move
// the tail forward. It returns the spare to use for the next attempt,
// which is a new one if this one got linked.
func (q *LockFree[T]) help(oldTail, spare *countedPtr[T]) *countedPtr[T] {
	next := spare
	if oldTail.node.next.p.CompareAndSwap(nil, spare) {
		spare = q.newSpare()
	} else {
		next = oldTail.node.next.p.Load()
	}
	q.setTail(oldTail, next)
	return spare
}

// setTail moves the tail from oldTail to newTail unless another goroutine
// already moved it off oldTail's node, then gives back the reference
// acquired on oldTail.
func (q *LockFree[T]) setTail(oldTail, newTail *countedPtr[T]) {
	current := oldTail.node
	q.addRetries(cas.Loop(func() bool {
		if q.tail.p.CompareAndSwap(oldTail, newTail) {
			return true
		}
		oldTail = q.tail.p.Load()
		return oldTail.node != current
	}))

	if oldTail.node == current {
		q.releaseExternal(oldTail)
		return
	}
	q.releaseRef(current)
}

// Pop removes and returns the value at the front of the queue.
// Returns false if the queue is empty.
func (q *LockFree[T]) Pop() (T, bool) {
	var (
		value T
		ok    bool
	)
	q.addRetries(cas.Loop(func() bool {
		oldHead := q.acquire(q.head)
		n := oldHead.node

		if n == q.tail.p.Load().node {
			q.releaseRef(n)
			return true
		}

		// The tail has passed n, so n's next is linked.
		if !q.head.p.CompareAndSwap(oldHead, n.next.p.Load()) {
			q.releaseRef(n)
			return false
		}
		value, ok = *n.data.Swap(q.consumed), true
		q.releaseExternal(oldHead)
		return true
	}))

	if ok {
		q.size.Add(-1)
	}
	return value, ok
}

// acquire bumps the external count of s and returns the counted pointer
// including the new reference. The node cannot be reclaimed until that
// reference is given back with releaseRef or releaseExternal.
func (q *LockFree[T]) acquire(s *slot[T]) *countedPtr[T] {
	var acquired *countedPtr[T]
	q.addRetries(cas.Loop(func() bool {
		old := s.p.Load()
		acquired = &countedPtr[T]{node: old.node, external: old.external + 1}
		return s.p.CompareAndSwap(old, acquired)
	}))
	acquired.node.checkLive()
	return acquired
}

// releaseRef gives back a reference acquired through a slot that has
// since moved to another node.
func (q *LockFree[T]) releaseRef(n *node[T]) {
	if n.count.Release() {
		q.reclaim(n)
	}
}

// releaseExternal is called by the goroutine that moved slot p off its
// node. It folds the slot's external count into the node, minus one for
// the slot itself and one for the caller's own reference.
func (q *LockFree[T]) releaseExternal(p *countedPtr[T]) {
	if p.node.count.ReleaseExternal(int32(p.external) - 2) {
		q.reclaim(p.node)
	}
}

// retire is releaseExternal for a caller that holds no reference of its
// own through s, which only Close does. s keeps pointing at the node so
// later use trips checkLive.
func (q *LockFree[T]) retire(s *slot[T]) {
	p := s.p.Load()
	if p.node.count.ReleaseExternal(int32(p.external) - 1) {
		q.reclaim(p.node)
	}
}

// discard drops a spare that was never linked. Nobody else has seen it,
// so both of its owners are given up here.
func (q *LockFree[T]) discard(n *node[T]) {
	n.count.ReleaseExternal(0)
	if n.count.ReleaseExternal(0) {
		q.reclaim(n)
	}
}

// reclaim poisons n and records it as freed. Every node leaves the queue
// through here, exactly once, after its Counter reported zero.
func (q *LockFree[T]) reclaim(n *node[T]) {
	if n.freed.Swap(true) {
		panic("queue: node reclaimed twice")
	}
	n.data.Store(nil)
	q.nodes.Free(1)
}

func (q *LockFree[T]) addRetries(n uint64) {
	if n > 0 {
		q.retries.Add(n)
	}
}

// Size returns the number of values in the queue.
//
// A pop can overtake the size increment of the push it consumed, so the
// raw counter may be briefly negative; Size reports that as zero.
func (q *LockFree[T]) Size() int {
	if n := q.size.Load(); n > 0 {
		return int(n)
	}
	return 0
}

// Empty reports whether Size is zero.
func (q *LockFree[T]) Empty() bool {
	return q.Size() == 0
}

// Nodes returns the node allocation counts. After Close, Live is zero.
func (q *LockFree[T]) Nodes() reclaim.Stats {
	return q.nodes.Stats()
}

// Retries returns the number of failed CAS attempts so far.
func (q *LockFree[T]) Retries() uint64 {
	return q.retries.Load()
}

// Close drains the queue and releases the head and tail, which reclaims
// the dummy node.
//
// Close must not run concurrently with any other method, and the queue
// must not be used afterwards.
func (q *LockFree[T]) Close() {
	for {
		if _, ok := q.Pop(); !ok {
			break
		}
	}
	q.retire(q.head)
	q.retire(q.tail)
	q.size.Store(0)
}
