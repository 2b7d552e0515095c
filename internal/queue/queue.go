// Package queue provides multi-producer multi-consumer FIFO queues.
//
// This package offers two implementations of the Queue interface:
//   - LockFree: unbounded lock-free queue built on counted pointers
//   - Channel: buffered channel baseline used for comparison
//
// # LockFree Memory Reclamation
//
// LockFree keeps every node behind a split reference count. A goroutine
// that reads the head or tail first bumps the external count stored next
// to the pointer, so the node it is about to dereference cannot be
// reclaimed underneath it. A node is reclaimed exactly once, by whichever
// goroutine drops the last reference, and reclaimed nodes are poisoned so
// that any later access panics instead of silently reading stale data.
package queue

// Queue is a multi-producer multi-consumer FIFO queue.
//
// Pop never blocks: it returns false when the queue holds no value.
type Queue[T any] interface {
	// Push appends an item to the back of the queue.
	Push(T)

	// Pop removes and returns the item at the front of the queue.
	// Returns false if the queue is empty.
	Pop() (T, bool)

	// Size returns the number of items in the queue.
	// Under concurrent use this is a snapshot.
	Size() int

	// Empty reports whether Size is zero.
	Empty() bool
}

// noCopy may be embedded into structs which must not be copied after
// first use. See https://golang.org/issues/8005#issuecomment-190753527.
type noCopy struct{}

func (*noCopy) Lock()   {}
func (*noCopy) Unlock() {}
