// Command stress runs the concurrent stress workload against the
// lock-free containers and checks that nothing is lost, duplicated,
// reordered or leaked.
//
// Usage:
//
//	go run ./cmd/stress -container both -producers 100 -consumers 100 -ops 100
//	go run ./cmd/stress -ops 1000000 -rounds 10 -metrics-addr :9090
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	"github.com/randomizedcoder/go-lock-free-containers/internal/queue"
	"github.com/randomizedcoder/go-lock-free-containers/internal/stack"
	"github.com/randomizedcoder/go-lock-free-containers/internal/stress"
)

// closer is a container under test that can be torn down and audited.
type closer interface {
	stress.Container
	stress.Instrumented
	Close()
}

type target struct {
	name  string
	order stress.Order
	new   func() closer
}

var targets = []target{
	{name: "queue", order: stress.OrderFIFO, new: func() closer { return queue.NewLockFree[int]() }},
	{name: "stack", order: stress.OrderLIFO, new: func() closer { return stack.NewLockFree[int]() }},
}

func selectTargets(which string) ([]target, error) {
	if which == "both" {
		return targets, nil
	}
	for _, t := range targets {
		if t.name == which {
			return []target{t}, nil
		}
	}
	return nil, fmt.Errorf("unknown container %q, want queue, stack or both", which)
}

func setupLogging(level, format string) error {
	lvl, err := log.ParseLevel(level)
	if err != nil {
		return err
	}
	log.SetLevel(lvl)

	switch format {
	case "text":
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	case "json":
		log.SetFormatter(&log.JSONFormatter{})
	default:
		return fmt.Errorf("unknown log format %q, want text or json", format)
	}
	return nil
}

func serveMetrics(addr string, reg *prometheus.Registry) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	go func() {
		log.Infof("serving metrics on %s", addr)
		if err := http.ListenAndServe(addr, mux); err != nil {
			log.Errorf("metrics listener: %v", err)
		}
	}()
}

// runOne stresses a fresh container, closes it and checks that every node
// was reclaimed.
func runOne(ctx context.Context, t target, cfg stress.Config) error {
	c := t.new()
	cfg.Name = t.name
	cfg.Order = t.order

	_, err := stress.Run(ctx, c, cfg)
	c.Close()
	return errors.Join(err, stress.Reclaimed(c))
}

func main() {
	defaults := stress.DefaultConfig()

	which := flag.String("container", "both", "container to stress: queue, stack or both")
	producers := flag.Int("producers", defaults.Producers, "number of producer goroutines")
	consumers := flag.Int("consumers", defaults.Consumers, "number of consumer goroutines")
	ops := flag.Int("ops", defaults.Ops, "values pushed per producer")
	rounds := flag.Int("rounds", 1, "number of runs per container")
	timeout := flag.Duration("timeout", 0, "stop producers after this long (0 = no limit)")
	progress := flag.Duration("progress", defaults.Progress, "progress log interval (0 = off)")
	metricsAddr := flag.String("metrics-addr", "", "serve Prometheus metrics on this address")
	logLevel := flag.String("log-level", "info", "log level")
	logFormat := flag.String("log-format", "text", "log format: text or json")
	flag.Parse()

	if err := setupLogging(*logLevel, *logFormat); err != nil {
		log.Fatal(err)
	}

	selected, err := selectTargets(*which)
	if err != nil {
		log.Fatal(err)
	}

	cfg := defaults
	cfg.Producers = *producers
	cfg.Consumers = *consumers
	cfg.Ops = *ops
	cfg.Progress = *progress
	if err := cfg.Validate(); err != nil {
		log.Fatal(err)
	}

	if *metricsAddr != "" {
		reg := prometheus.NewRegistry()
		cfg.Metrics = stress.NewMetrics(reg)
		serveMetrics(*metricsAddr, reg)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if *timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, *timeout)
		defer cancel()
	}

	start := time.Now()
	failed := 0
	for round := 1; round <= *rounds && ctx.Err() == nil; round++ {
		for _, t := range selected {
			if err := runOne(ctx, t, cfg); err != nil {
				log.WithFields(log.Fields{"container": t.name, "round": round}).Error(err)
				failed++
			}
		}
	}

	log.WithFields(log.Fields{
		"elapsed": time.Since(start),
		"failed":  failed,
	}).Info("stress finished")
	if failed > 0 {
		os.Exit(1)
	}
}
