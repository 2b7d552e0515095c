// Package combined provides comparison benchmarks across the containers.
//
// These benchmarks run the lock-free queue and stack side by side with a
// buffered channel and with the sharded MPSC ring from go-lock-free-ring,
// under the same producer/consumer shapes, so the cost of unbounded
// lock-free MPMC containers can be read against bounded alternatives.
package combined
