// Package supervisor watches for requests that stay waiting for too long.
//
// A stalled request is only observed: it is logged and counted, never
// completed, failed or deleted. Retrying collectors is left to the operator.
package supervisor

import (
	"context"
	"sync"
	"time"

	"github.com/getpup/pupsourcing-gather"
	"github.com/getpup/pupsourcing-gather/metrics"
	"github.com/getpup/pupsourcing-gather/store"
	"github.com/getpup/pupsourcing/es"
)

// Config holds configuration for the Watchdog.
type Config struct {
	// Store is the partial store to inspect (required).
	Store store.PartialStore

	// Interval is the time between two checks (default: 30s).
	Interval time.Duration

	// StallAfter is how long a request may wait before it is reported (default: 5m).
	StallAfter time.Duration

	// Logger is for observability (optional).
	Logger es.Logger

	// Metrics is an optional metrics collector.
	Metrics *metrics.Collector
}

// Watchdog periodically reports requests that have been waiting longer than StallAfter.
type Watchdog struct {
	config Config

	mu      sync.Mutex
	stalled []gather.CollectionRequest
}

// New creates a new Watchdog with the given configuration.
// Applies default values for Interval and StallAfter if not set.
func New(cfg Config) *Watchdog {
	if cfg.Interval == 0 {
		cfg.Interval = 30 * time.Second
	}
	if cfg.StallAfter == 0 {
		cfg.StallAfter = 5 * time.Minute
	}

	return &Watchdog{
		config: cfg,
	}
}

// Check queries the store once and records the stalled requests it finds.
func (w *Watchdog) Check(ctx context.Context) ([]gather.CollectionRequest, error) {
	stalled, err := w.config.Store.WaitingRequests(ctx, w.config.StallAfter)
	if err != nil {
		return nil, err
	}

	w.mu.Lock()
	w.stalled = stalled
	w.mu.Unlock()

	if w.config.Metrics != nil {
		w.config.Metrics.SetStalledRequests(len(stalled))
	}

	if w.config.Logger != nil {
		for _, req := range stalled {
			w.config.Logger.Info(ctx, "request stalled",
				"requestID", req.ID,
				"topic", req.Topic,
				"received", req.ReceivedPartials,
				"expected", req.ExpectedPartials,
				"waiting", time.Since(req.CreatedAt).String())
		}
	}

	return stalled, nil
}

// Run checks the store at the configured interval until the context is cancelled.
// Failed checks are logged and retried on the next tick.
func (w *Watchdog) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			stalled, err := w.Check(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				if w.config.Logger != nil {
					w.config.Logger.Error(ctx, "stall check failed", "error", err)
				}
				continue
			}

			if w.config.Logger != nil {
				w.config.Logger.Debug(ctx, "stall check done", "stalled", len(stalled))
			}
		}
	}
}

// Stalled returns the requests found by the most recent check.
func (w *Watchdog) Stalled() []gather.CollectionRequest {
	w.mu.Lock()
	defer w.mu.Unlock()

	out := make([]gather.CollectionRequest, len(w.stalled))
	copy(out, w.stalled)
	return out
}
