// Package stress drives concurrent producers and consumers against a
// container and checks the properties every correct concurrent queue or
// stack must keep:
//
//   - Conservation: no more values are popped than pushes were started, and
//     at quiescence Size equals pushes minus pops.
//   - No lost or duplicated values: popped and drained values together are
//     exactly the pushed values.
//   - Order: with OrderFIFO every consumer sees each producer's values in
//     push order; with OrderLIFO the final single-threaded drain sees each
//     producer's values in reverse push order.
//
// Workers poll an atomic stop flag and an atomic progress ticker, so the
// harness adds no channel or timer traffic to the operations it measures.
package stress

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/randomizedcoder/go-lock-free-containers/internal/reclaim"
)

var (
	// ErrInvalidConfig is returned by Config.Validate.
	ErrInvalidConfig = errors.New("stress: invalid config")
	// ErrConservation means pops overtook pushes or Size disagreed with
	// the counts at quiescence.
	ErrConservation = errors.New("stress: conservation violated")
	// ErrLost means a pushed value never came back.
	ErrLost = errors.New("stress: values lost")
	// ErrDuplicated means a value came back more than once.
	ErrDuplicated = errors.New("stress: values duplicated")
	// ErrUnknownValue means a popped value was never pushed.
	ErrUnknownValue = errors.New("stress: unknown values popped")
	// ErrOrder means values of one producer came back out of order.
	ErrOrder = errors.New("stress: order violated")
	// ErrLeaked means a closed container still has live nodes.
	ErrLeaked = errors.New("stress: nodes leaked")
)

// Container is what the harness drives. Both lock-free containers
// satisfy it for int payloads.
type Container interface {
	Push(int)
	Pop() (int, bool)
	Size() int
	Empty() bool
}

// Instrumented containers report node accounting and contention.
type Instrumented interface {
	Nodes() reclaim.Stats
	Retries() uint64
}

// Reclaimed checks that a container that has been closed holds no live
// nodes.
func Reclaimed(c Instrumented) error {
	if st := c.Nodes(); st.Live() != 0 {
		return fmt.Errorf("%w: %d of %d nodes never reclaimed", ErrLeaked, st.Live(), st.Allocated)
	}
	return nil
}

// PendingReporter containers report nodes parked for deferred reclamation.
type PendingReporter interface {
	Pending() int
}

// Order selects the ordering property Run verifies.
type Order int

const (
	OrderNone Order = iota
	OrderFIFO
	OrderLIFO
)

func (o Order) String() string {
	switch o {
	case OrderNone:
		return "none"
	case OrderFIFO:
		return "fifo"
	case OrderLIFO:
		return "lifo"
	default:
		return fmt.Sprintf("Order(%d)", int(o))
	}
}

// Config describes one stress run.
type Config struct {
	// Name labels the container in logs and metrics.
	Name string
	// Producers each push Ops distinct values.
	Producers int
	Ops       int
	// Consumers pop until every producer is done. Zero means values are
	// only taken out by the final drain.
	Consumers int
	Order     Order
	// Progress is the interval between progress reports; 0 disables them.
	Progress time.Duration

	Logger  log.FieldLogger
	Metrics *Metrics
}

// DefaultConfig returns the 100 goroutines × 100 operations workload.
func DefaultConfig() Config {
	return Config{
		Name:      "container",
		Producers: 100,
		Ops:       100,
		Consumers: 100,
		Progress:  time.Second,
	}
}

// Validate reports the first problem with c.
func (c Config) Validate() error {
	switch {
	case c.Producers < 1:
		return fmt.Errorf("%w: producers must be >= 1, got %d", ErrInvalidConfig, c.Producers)
	case c.Ops < 1:
		return fmt.Errorf("%w: ops must be >= 1, got %d", ErrInvalidConfig, c.Ops)
	case c.Consumers < 0:
		return fmt.Errorf("%w: consumers must be >= 0, got %d", ErrInvalidConfig, c.Consumers)
	case c.Progress < 0:
		return fmt.Errorf("%w: negative progress interval %s", ErrInvalidConfig, c.Progress)
	case c.Order < OrderNone || c.Order > OrderLIFO:
		return fmt.Errorf("%w: unknown order %s", ErrInvalidConfig, c.Order)
	case int64(c.Producers)*int64(c.Ops) > int64(^uint32(0)):
		return fmt.Errorf("%w: %d producers × %d ops is too many values", ErrInvalidConfig, c.Producers, c.Ops)
	}
	return nil
}

func (c Config) logger() log.FieldLogger {
	if c.Logger != nil {
		return c.Logger
	}
	return log.StandardLogger()
}

// Report summarizes a run.
type Report struct {
	Name      string
	Pushed    int64
	Popped    int64
	Drained   int64
	EmptyPops int64
	// SizeAtQuiescence is Size() after all workers stopped, before the
	// drain.
	SizeAtQuiescence int
	Elapsed          time.Duration

	// Filled in for Instrumented and PendingReporter containers after
	// the drain.
	Retries   uint64
	LiveNodes int64
	Pending   int
}

// Fields returns r as structured log fields.
func (r Report) Fields() log.Fields {
	return log.Fields{
		"container": r.Name,
		"pushed":    r.Pushed,
		"popped":    r.Popped,
		"drained":   r.Drained,
		"emptyPops": r.EmptyPops,
		"elapsed":   r.Elapsed,
		"retries":   r.Retries,
		"live":      r.LiveNodes,
		"pending":   r.Pending,
	}
}

// run is the shared state of one Run call.
type run struct {
	cfg Config
	c   Container
	log log.FieldLogger
	ops opCounters

	stop   stopFlag
	ticker *progressTicker

	started   atomic.Int64 // pushes begun
	pushed    atomic.Int64 // pushes returned
	popped    atomic.Int64
	emptyPops atomic.Int64
	overPops  atomic.Int64

	// sent[p] is how many values producer p pushed.
	sent []int
	// seen[v] counts how often v was popped or drained.
	seen []atomic.Uint32
	// outOfOrder counts order violations seen by consumers and the drain.
	outOfOrder atomic.Int64
}

// Run pushes Producers×Ops distinct values into c while Consumers pop
// concurrently, drains c once every worker has stopped, and verifies the
// result. Cancelling ctx stops producers early; the values they did push
// are still verified.
//
// The returned error joins every violated property; the Report is valid
// either way. Run does not close c.
func Run(ctx context.Context, c Container, cfg Config) (Report, error) {
	if err := cfg.Validate(); err != nil {
		return Report{}, err
	}

	r := &run{
		cfg:    cfg,
		c:      c,
		log:    cfg.logger().WithField("container", cfg.Name),
		ops:    cfg.Metrics.counters(cfg.Name),
		ticker: newProgressTicker(cfg.Progress),
		sent:   make([]int, cfg.Producers),
		seen:   make([]atomic.Uint32, cfg.Producers*cfg.Ops),
	}
	release := r.stop.watch(ctx)
	defer release()

	r.log.WithFields(log.Fields{
		"producers": cfg.Producers,
		"consumers": cfg.Consumers,
		"ops":       cfg.Ops,
		"order":     cfg.Order,
	}).Info("stress run started")

	start := time.Now()
	var producers, consumers sync.WaitGroup
	for p := 0; p < cfg.Producers; p++ {
		producers.Add(1)
		go func() {
			defer producers.Done()
			r.produce(p)
		}()
	}
	for w := 0; w < cfg.Consumers; w++ {
		consumers.Add(1)
		go func() {
			defer consumers.Done()
			r.consume()
		}()
	}

	producers.Wait()
	r.stop.Stop()
	consumers.Wait()

	rep := Report{
		Name:             cfg.Name,
		Pushed:           r.pushed.Load(),
		Popped:           r.popped.Load(),
		EmptyPops:        r.emptyPops.Load(),
		SizeAtQuiescence: c.Size(),
	}
	rep.Drained = r.drain()
	rep.Elapsed = time.Since(start)

	if ic, ok := c.(Instrumented); ok {
		rep.Retries = ic.Retries()
		rep.LiveNodes = ic.Nodes().Live()
	}
	if pc, ok := c.(PendingReporter); ok {
		rep.Pending = pc.Pending()
	}
	cfg.Metrics.observe(cfg.Name, c)

	err := r.verify(rep)
	if err != nil {
		r.log.WithFields(rep.Fields()).WithError(err).Error("stress run failed")
	} else {
		r.log.WithFields(rep.Fields()).Info("stress run finished")
	}
	return rep, err
}

func (r *run) produce(p int) {
	base := p * r.cfg.Ops
	i := 0
	for ; i < r.cfg.Ops; i++ {
		if r.stop.Done() {
			break
		}
		r.started.Add(1)
		r.c.Push(base + i)
		r.pushed.Add(1)
		inc(r.ops.push)
		if r.cfg.Consumers == 0 {
			r.maybeReport()
		}
	}
	r.sent[p] = i
}

func (r *run) consume() {
	order := r.newOrderCheck(OrderFIFO)
	for !r.stop.Done() {
		r.maybeReport()

		v, ok := r.c.Pop()
		if !ok {
			r.emptyPops.Add(1)
			inc(r.ops.emptyPop)
			continue
		}
		if r.popped.Add(1) > r.started.Load() {
			r.overPops.Add(1)
		}
		inc(r.ops.pop)
		r.record(v, order)
	}
}

// drain empties the container single-threaded and returns how many
// values it took out.
func (r *run) drain() int64 {
	order := r.newOrderCheck(r.cfg.Order)
	var n int64
	for {
		v, ok := r.c.Pop()
		if !ok {
			return n
		}
		n++
		r.record(v, order)
	}
}

func (r *run) record(v int, order *orderCheck) {
	if v < 0 || v >= len(r.seen) {
		// Counted as unknown by verify through the pop totals.
		return
	}
	r.seen[v].Add(1)
	if order != nil && !order.next(v/r.cfg.Ops, v%r.cfg.Ops) {
		r.outOfOrder.Add(1)
	}
}

func (r *run) maybeReport() {
	if !r.ticker.Tick() {
		return
	}
	r.cfg.Metrics.observe(r.cfg.Name, r.c)
	r.log.WithFields(log.Fields{
		"pushed": r.pushed.Load(),
		"popped": r.popped.Load(),
		"size":   r.c.Size(),
	}).Info("stress progress")
}

// newOrderCheck returns nil when want is not checked by this caller's
// phase.
func (r *run) newOrderCheck(want Order) *orderCheck {
	if r.cfg.Order != want || want == OrderNone {
		return nil
	}
	oc := &orderCheck{order: want, last: make([]int, r.cfg.Producers)}
	for i := range oc.last {
		oc.last[i] = -1
	}
	return oc
}

// orderCheck follows, for one observer, the last index seen from each
// producer.
type orderCheck struct {
	order Order
	last  []int
}

func (o *orderCheck) next(producer, index int) bool {
	prev := o.last[producer]
	o.last[producer] = index
	if prev < 0 {
		return true
	}
	if o.order == OrderFIFO {
		return index > prev
	}
	return index < prev
}

func (r *run) verify(rep Report) error {
	var errs []error

	if n := r.overPops.Load(); n > 0 {
		errs = append(errs, fmt.Errorf("%w: %d pops observed more values than pushes started", ErrConservation, n))
	}
	if want := rep.Pushed - rep.Popped; int64(rep.SizeAtQuiescence) != want {
		errs = append(errs, fmt.Errorf("%w: size %d at quiescence, want %d", ErrConservation, rep.SizeAtQuiescence, want))
	}
	if !r.c.Empty() {
		errs = append(errs, fmt.Errorf("%w: size %d after drain", ErrConservation, r.c.Size()))
	}

	var lost, dup, unknown []int
	var seenTotal int64
	for v := range r.seen {
		n := int(r.seen[v].Load())
		seenTotal += int64(n)
		pushed := v%r.cfg.Ops < r.sent[v/r.cfg.Ops]
		switch {
		case !pushed && n > 0:
			unknown = append(unknown, v)
		case pushed && n == 0:
			lost = append(lost, v)
		case n > 1:
			dup = append(dup, v)
		}
	}
	if outside := rep.Popped + rep.Drained - seenTotal; outside > 0 {
		errs = append(errs, fmt.Errorf("%w: %d values outside the pushed range", ErrUnknownValue, outside))
	}
	if len(unknown) > 0 {
		errs = append(errs, fmt.Errorf("%w: %d values, first %d", ErrUnknownValue, len(unknown), unknown[0]))
	}
	if len(lost) > 0 {
		errs = append(errs, fmt.Errorf("%w: %d values, first %d", ErrLost, len(lost), lost[0]))
	}
	if len(dup) > 0 {
		errs = append(errs, fmt.Errorf("%w: %d values, first %d", ErrDuplicated, len(dup), dup[0]))
	}
	if n := r.outOfOrder.Load(); n > 0 {
		errs = append(errs, fmt.Errorf("%w: %d values out of %s order", ErrOrder, n, r.cfg.Order))
	}
	return errors.Join(errs...)
}
