package executor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/getpup/pupsourcing-gather/metrics"
	"github.com/getpup/pupsourcing/es"
	"github.com/panjf2000/ants/v2"
)

// Config configures the collector job pool.
type Config struct {
	// Size is the maximum number of jobs running at once (default: 64).
	Size int

	// ReleaseTimeout bounds how long Close waits for running jobs (default: 10s).
	ReleaseTimeout time.Duration

	// Logger is an optional logger for observability.
	Logger es.Logger

	// Metrics is an optional metrics collector.
	Metrics *metrics.Collector
}

// Pool runs collector jobs on a bounded ants goroutine pool.
// Jobs are detached from the submitter's cancellation: a request that was
// dispatched keeps collecting even if the submitting call returns.
type Pool struct {
	config Config
	pool   *ants.Pool
	wg     sync.WaitGroup
}

// Compile-time check that Pool implements Executor.
var _ Executor = (*Pool)(nil)

// New creates a new Pool with the given configuration.
// It applies default values for Size and ReleaseTimeout if zero.
func New(cfg Config) (*Pool, error) {
	if cfg.Size <= 0 {
		cfg.Size = 64
	}
	if cfg.ReleaseTimeout <= 0 {
		cfg.ReleaseTimeout = 10 * time.Second
	}

	p := &Pool{config: cfg}

	pool, err := ants.NewPool(cfg.Size, ants.WithPanicHandler(p.recovered))
	if err != nil {
		return nil, fmt.Errorf("failed to create job pool: %w", err)
	}
	p.pool = pool

	return p, nil
}

// Submit schedules the job and returns without waiting for it.
// Blocks only while the pool is saturated.
func (p *Pool) Submit(ctx context.Context, job Job, handler Handler) error {
	if job.Attempt == 0 {
		job.Attempt = 1
	}

	detached := context.WithoutCancel(ctx)

	p.wg.Add(1)
	err := p.pool.Submit(func() {
		defer p.wg.Done()
		p.run(detached, job, handler)
	})
	if err != nil {
		p.wg.Done()
		return fmt.Errorf("failed to submit collector %d for request %s: %w", job.CollectorIndex, job.RequestID, err)
	}

	return nil
}

func (p *Pool) run(ctx context.Context, job Job, handler Handler) {
	if p.config.Metrics != nil {
		p.config.Metrics.SetRunningJobs(p.pool.Running())
	}

	err := handler(ctx, job)

	if err != nil {
		if p.config.Logger != nil {
			p.config.Logger.Error(ctx, "collector job failed",
				"requestID", job.RequestID,
				"collectorIndex", job.CollectorIndex,
				"attempt", job.Attempt,
				"error", err)
		}
		if p.config.Metrics != nil {
			p.config.Metrics.IncJobErrors()
		}
	}
}

func (p *Pool) recovered(v any) {
	if p.config.Logger != nil {
		p.config.Logger.Error(context.Background(), "collector job panicked", "panic", v)
	}
	if p.config.Metrics != nil {
		p.config.Metrics.IncJobErrors()
	}
}

// Running returns the number of jobs currently running.
func (p *Pool) Running() int {
	return p.pool.Running()
}

// ReleaseTimeout returns how long Close waits for running jobs.
func (p *Pool) ReleaseTimeout() time.Duration {
	return p.config.ReleaseTimeout
}

// Wait blocks until every submitted job has finished.
func (p *Pool) Wait() {
	p.wg.Wait()
}

// Close stops accepting jobs and waits up to ReleaseTimeout for running ones.
func (p *Pool) Close() error {
	if err := p.pool.ReleaseTimeout(p.config.ReleaseTimeout); err != nil {
		return fmt.Errorf("failed to release job pool: %w", err)
	}
	return nil
}
