package queue

// Channel wraps a buffered channel as a Queue.
//
// This is the standard library approach and serves as the comparison
// baseline. Unlike LockFree it is bounded: Push blocks while the buffer
// is full.
type Channel[T any] struct {
	ch chan T
}

var _ Queue[int] = (*Channel[int])(nil)

// NewChannel creates a Channel with the specified buffer size.
func NewChannel[T any](size int) *Channel[T] {
	return &Channel[T]{
		ch: make(chan T, size),
	}
}

// Push appends an item, blocking while the buffer is full.
func (q *Channel[T]) Push(v T) {
	q.ch <- v
}

// Pop removes and returns an item from the queue.
// Returns false if the queue is empty (non-blocking).
func (q *Channel[T]) Pop() (T, bool) {
	select {
	case v := <-q.ch:
		return v, true
	default:
		var zero T
		return zero, false
	}
}

// Size returns the current number of items in the queue.
func (q *Channel[T]) Size() int {
	return len(q.ch)
}

// Empty reports whether the queue holds no items.
func (q *Channel[T]) Empty() bool {
	return len(q.ch) == 0
}

// Cap returns the capacity of the queue.
func (q *Channel[T]) Cap() int {
	return cap(q.ch)
}
