// Package stack provides a multi-producer multi-consumer LIFO stack.
//
// LockFree is a Treiber stack: push and pop swing a single atomic head
// pointer with CAS. Nodes detached by Pop are not reclaimed on the spot,
// because another popper that loaded the same head may still be reading
// it. Instead Pop counts the goroutines inside it (reclaim.Epoch):
//
//   - A popper that finds itself alone reclaims the node it detached, and
//     also the pending list if it is still alone once it leaves.
//   - A popper that is not alone parks its node on the pending list, to be
//     reclaimed by a later popper that finds itself alone.
//
// Under sustained overlapping pops the pending list only grows; it is
// emptied by the first pop that runs with no other pop in flight.
package stack

// Stack is a multi-producer multi-consumer LIFO stack.
//
// Pop never blocks: it returns false when the stack holds no value.
type Stack[T any] interface {
	// Push places an item on top of the stack.
	Push(T)

	// Pop removes and returns the item on top of the stack.
	// Returns false if the stack is empty.
	Pop() (T, bool)

	// Size returns the number of items in the stack.
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
