// Command bench compares the lock-free containers against a channel and
// the sharded ring from go-lock-free-ring.
//
// Usage:
//
//	go run ./cmd/bench -n 10000000 -size 1024
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	ring "github.com/randomizedcoder/go-lock-free-ring"

	"github.com/randomizedcoder/go-lock-free-containers/internal/queue"
	"github.com/randomizedcoder/go-lock-free-containers/internal/stack"
)

type container interface {
	Push(int)
	Pop() (int, bool)
}

// ringAdapter runs the sharded MPSC ring through the same loop, writing
// as producer 0.
type ringAdapter struct {
	r *ring.ShardedRing
}

func (a ringAdapter) Push(v int) {
	for !a.r.Write(0, v) {
	}
}

func (a ringAdapter) Pop() (int, bool) {
	v, ok := a.r.TryRead()
	if !ok {
		return 0, false
	}
	return v.(int), true
}

type result struct {
	name    string
	dur     time.Duration
	perOp   float64
	retries uint64
}

func run(name string, c container, iterations int) result {
	start := time.Now()
	for i := 0; i < iterations; i++ {
		c.Push(i)
		c.Pop()
	}
	dur := time.Since(start)
	return result{
		name:  name,
		dur:   dur,
		perOp: float64(dur.Nanoseconds()) / float64(iterations),
	}
}

func main() {
	iterations := flag.Int("n", 10_000_000, "number of iterations")
	size := flag.Int("size", 1024, "channel buffer size")
	flag.Parse()

	fmt.Printf("Benchmarking containers (%d iterations, channel size=%d)\n", *iterations, *size)
	fmt.Println("─────────────────────────────────────────────────")

	ch := queue.NewChannel[int](*size)
	chRes := run("Channel", ch, *iterations)

	q := queue.NewLockFree[int]()
	qRes := run("LockFree queue", q, *iterations)
	qRes.retries = q.Retries()
	q.Close()

	s := stack.NewLockFree[int]()
	sRes := run("LockFree stack", s, *iterations)
	sRes.retries = s.Retries()
	s.Close()

	sr, err := ring.NewShardedRing(1024, 1)
	if err != nil {
		fmt.Fprintf(os.Stderr, "sharded ring: %v\n", err)
		os.Exit(1)
	}
	rRes := run("ShardedRing", ringAdapter{r: sr}, *iterations)

	all := []result{chRes, qRes, sRes, rRes}

	fmt.Printf("\nResults (push + pop per iteration):\n")
	for _, r := range all {
		fmt.Printf("  %-15s %v (%.2f ns/op, %d CAS retries)\n", r.name+":", r.dur, r.perOp, r.retries)
	}

	fmt.Printf("\nRelative to Channel:\n")
	for _, r := range all[1:] {
		if r.perOp < chRes.perOp {
			fmt.Printf("  %-15s %.2fx faster\n", r.name+":", chRes.perOp/r.perOp)
		} else {
			fmt.Printf("  %-15s %.2fx slower\n", r.name+":", r.perOp/chRes.perOp)
		}
	}

	// Extrapolate to ops/second
	fmt.Printf("\nThroughput (theoretical max):\n")
	for _, r := range all {
		fmt.Printf("  %-15s %.2f M ops/sec\n", r.name+":", 1000/r.perOp)
	}
}
