package stress_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randomizedcoder/go-lock-free-containers/internal/queue"
	"github.com/randomizedcoder/go-lock-free-containers/internal/stack"
	"github.com/randomizedcoder/go-lock-free-containers/internal/stress"
)

func quietConfig(name string) stress.Config {
	logger, _ := logtest.NewNullLogger()
	cfg := stress.DefaultConfig()
	cfg.Name = name
	cfg.Logger = logger
	return cfg
}

func TestRun_LockFreeQueue(t *testing.T) {
	q := queue.NewLockFree[int]()
	cfg := quietConfig("queue")
	cfg.Order = stress.OrderFIFO

	rep, err := stress.Run(context.Background(), q, cfg)
	require.NoError(t, err)

	assert.Equal(t, int64(cfg.Producers*cfg.Ops), rep.Pushed)
	assert.Equal(t, rep.Pushed, rep.Popped+rep.Drained)
	assert.Equal(t, int64(1), rep.LiveNodes, "only the dummy node is left before Close")

	assert.ErrorIs(t, stress.Reclaimed(q), stress.ErrLeaked)
	q.Close()
	assert.NoError(t, stress.Reclaimed(q))
}

func TestRun_LockFreeStack(t *testing.T) {
	s := stack.NewLockFree[int]()
	cfg := quietConfig("stack")
	cfg.Order = stress.OrderLIFO

	rep, err := stress.Run(context.Background(), s, cfg)
	require.NoError(t, err)

	assert.Equal(t, rep.Pushed, rep.Popped+rep.Drained)
	assert.Equal(t, 0, rep.Pending, "the single-threaded drain empties the pending list")
	assert.Equal(t, int64(0), rep.LiveNodes)

	s.Close()
	assert.NoError(t, stress.Reclaimed(s))
}

// closable is a container a test owns and must close.
type closable interface {
	stress.Container
	stress.Instrumented
	Close()
}

func TestRun_ProducersOnly(t *testing.T) {
	for _, tt := range []struct {
		name  string
		c     closable
		order stress.Order
	}{
		{"queue", queue.NewLockFree[int](), stress.OrderFIFO},
		{"stack", stack.NewLockFree[int](), stress.OrderLIFO},
	} {
		t.Run(tt.name, func(t *testing.T) {
			defer func() {
				tt.c.Close()
				assert.NoError(t, stress.Reclaimed(tt.c))
			}()

			cfg := quietConfig(tt.name)
			cfg.Consumers = 0
			cfg.Ops = 1
			cfg.Order = tt.order

			rep, err := stress.Run(context.Background(), tt.c, cfg)
			require.NoError(t, err)
			assert.Equal(t, cfg.Producers, rep.SizeAtQuiescence)
			assert.Equal(t, int64(cfg.Producers), rep.Drained)
		})
	}
}

func TestRun_CancelledContext(t *testing.T) {
	q := queue.NewLockFree[int]()
	defer q.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	cfg := quietConfig("queue")
	cfg.Ops = 10000
	rep, err := stress.Run(ctx, q, cfg)
	require.NoError(t, err, "values pushed before the stop must still be conserved")
	assert.LessOrEqual(t, rep.Pushed, int64(cfg.Producers*cfg.Ops))
	assert.Equal(t, rep.Pushed, rep.Popped+rep.Drained)
}

func TestRun_LogsResult(t *testing.T) {
	logger, hook := logtest.NewNullLogger()
	cfg := stress.DefaultConfig()
	cfg.Name = "queue"
	cfg.Logger = logger
	cfg.Producers, cfg.Consumers, cfg.Ops = 2, 2, 10

	q := queue.NewLockFree[int]()
	defer q.Close()
	_, err := stress.Run(context.Background(), q, cfg)
	require.NoError(t, err)

	last := hook.LastEntry()
	require.NotNil(t, last)
	assert.Equal(t, logrus.InfoLevel, last.Level)
	assert.Equal(t, "stress run finished", last.Message)
	assert.Equal(t, "queue", last.Data["container"])
	assert.Equal(t, int64(20), last.Data["pushed"])
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*stress.Config)
		ok     bool
	}{
		{"default", func(*stress.Config) {}, true},
		{"no consumers", func(c *stress.Config) { c.Consumers = 0 }, true},
		{"no producers", func(c *stress.Config) { c.Producers = 0 }, false},
		{"no ops", func(c *stress.Config) { c.Ops = 0 }, false},
		{"negative consumers", func(c *stress.Config) { c.Consumers = -1 }, false},
		{"negative progress", func(c *stress.Config) { c.Progress = -time.Second }, false},
		{"unknown order", func(c *stress.Config) { c.Order = stress.Order(9) }, false},
		{"too many values", func(c *stress.Config) { c.Producers, c.Ops = 1<<20, 1<<20 }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := stress.DefaultConfig()
			tt.modify(&cfg)
			err := cfg.Validate()
			if tt.ok {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, stress.ErrInvalidConfig)

			_, runErr := stress.Run(context.Background(), queue.NewChannel[int](1), cfg)
			assert.ErrorIs(t, runErr, stress.ErrInvalidConfig)
		})
	}
}

// Broken containers used to prove the harness catches violations.

type sliceContainer struct {
	mu    sync.Mutex
	items []int
	lifo  bool
	// mangle may rewrite or drop (return false) a pushed value.
	mangle func(v int) (int, bool)
	// repeat pushes every value this many extra times.
	repeat int
}

func (c *sliceContainer) Push(v int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.mangle != nil {
		var keep bool
		if v, keep = c.mangle(v); !keep {
			return
		}
	}
	for i := 0; i <= c.repeat; i++ {
		c.items = append(c.items, v)
	}
}

func (c *sliceContainer) Pop() (int, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.items) == 0 {
		return 0, false
	}
	var v int
	if c.lifo {
		v = c.items[len(c.items)-1]
		c.items = c.items[:len(c.items)-1]
	} else {
		v, c.items = c.items[0], c.items[1:]
	}
	return v, true
}

func (c *sliceContainer) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

func (c *sliceContainer) Empty() bool { return c.Size() == 0 }

func TestRun_DetectsViolations(t *testing.T) {
	tests := []struct {
		name  string
		c     *sliceContainer
		order stress.Order
		want  []error
	}{
		{
			name:  "correct fifo",
			c:     &sliceContainer{},
			order: stress.OrderFIFO,
		},
		{
			name:  "correct lifo",
			c:     &sliceContainer{lifo: true},
			order: stress.OrderLIFO,
		},
		{
			name: "lost",
			c: &sliceContainer{mangle: func(v int) (int, bool) {
				return v, v%10 != 0
			}},
			want: []error{stress.ErrLost, stress.ErrConservation},
		},
		{
			name: "duplicated",
			c:    &sliceContainer{repeat: 1},
			want: []error{stress.ErrDuplicated, stress.ErrConservation},
		},
		{
			name: "unknown",
			c: &sliceContainer{mangle: func(v int) (int, bool) {
				return -v - 1, true
			}},
			want: []error{stress.ErrUnknownValue, stress.ErrLost},
		},
		{
			name:  "lifo checked as fifo",
			c:     &sliceContainer{lifo: true},
			order: stress.OrderFIFO,
			want:  []error{stress.ErrOrder},
		},
		{
			name:  "fifo checked as lifo",
			c:     &sliceContainer{},
			order: stress.OrderLIFO,
			want:  []error{stress.ErrOrder},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := quietConfig(tt.name)
			cfg.Producers, cfg.Ops, cfg.Consumers = 1, 100, 0
			cfg.Order = tt.order

			_, err := stress.Run(context.Background(), tt.c, cfg)
			if len(tt.want) == 0 {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			for _, want := range tt.want {
				assert.True(t, errors.Is(err, want), "want %v in %v", want, err)
			}
		})
	}
}
