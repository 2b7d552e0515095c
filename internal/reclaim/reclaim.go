// Package reclaim holds the bookkeeping the lock-free containers use to
// decide when a detached node may be reclaimed, and to prove afterwards
// that every node was.
//
//   - Epoch tracks how many goroutines are inside a reclaiming section
//     (the stack's Pop) and tells a leaving goroutine whether it was alone.
//   - Tracker counts node allocations and reclamations. A container that
//     was fully drained and closed must report zero live nodes.
package reclaim
