// Package gather is the public entry point for building a scatter/gather coordinator.
//
// A Gatherer registers each request, fans it out to a fixed number of collector
// jobs and runs the cleanup and process stages once every collector has reported.
package gather

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	rootpkg "github.com/getpup/pupsourcing-gather"
	"github.com/getpup/pupsourcing-gather/collector"
	"github.com/getpup/pupsourcing-gather/coordinator"
	"github.com/getpup/pupsourcing-gather/executor"
	"github.com/getpup/pupsourcing-gather/metrics"
	"github.com/getpup/pupsourcing-gather/pipeline"
	"github.com/getpup/pupsourcing-gather/sink"
	sinkmemory "github.com/getpup/pupsourcing-gather/sink/memory"
	"github.com/getpup/pupsourcing-gather/store"
	"github.com/getpup/pupsourcing-gather/store/memory"
	"github.com/getpup/pupsourcing-gather/store/sqlstore"
	"github.com/getpup/pupsourcing-gather/supervisor"
	"github.com/getpup/pupsourcing/es"
)

// Re-export core types from root package
type (
	// RequestID uniquely identifies a collection request.
	RequestID = rootpkg.RequestID

	// Outcome describes what happened to a reported partial.
	Outcome = rootpkg.Outcome

	// ProcessingSummary is the result of a completed request.
	ProcessingSummary = rootpkg.ProcessingSummary
)

// Option configures a Gatherer.
type Option func(*config)

// config holds the internal configuration for creating a Gatherer.
type config struct {
	name           string
	store          store.PartialStore
	executor       executor.Executor
	collector      collector.Collector
	sink           sink.ResultSink
	collectors     int
	poolSize       int
	releaseTimeout time.Duration
	retention      int
	cleaners       []pipeline.Cleaner
	newID          func() RequestID
	stallInterval  time.Duration
	stallAfter     time.Duration
	logger         es.Logger
	metricsEnabled *bool
}

// Gatherer is a ready to use coordinator together with the resources it owns.
type Gatherer struct {
	*coordinator.Coordinator

	store    store.PartialStore
	pool     *executor.Pool
	watchdog *supervisor.Watchdog
}

// Compile-time check that Gatherer implements the root Gatherer interface.
var _ rootpkg.Gatherer = (*Gatherer)(nil)

// New creates a new Gatherer with the given options.
//
// Required options:
//   - WithCollector: produces the items of each partial
//
// Optional configuration (with defaults):
//   - WithName: metrics label of this gatherer (default: "default")
//   - WithCollectors: partials per request (default: 3)
//   - WithStore: partial store (default: in-memory store)
//   - WithExecutor: job executor (default: ants pool of WithPoolSize workers)
//   - WithPoolSize: size of the default pool (default: 64)
//   - WithReleaseTimeout: how long Close waits for running jobs (default: 10s)
//   - WithSink: summary sink (default: LRU sink of WithRetention entries)
//   - WithRetention: summaries kept by the default sink (default: 1024)
//   - WithCleaners: cleanup stage cleaners (default: none)
//   - WithStallDetection: enables the stalled request watchdog (default: disabled)
//   - WithLogger: logger for observability (default: nil)
//   - WithMetricsEnabled: enable Prometheus metrics (default: true)
//
// When the default sink evicts a summary, the request is deleted from the store,
// so later reports for it return ErrUnknownRequest and Result returns ErrNotFound.
//
// Example:
//
//	g, err := gather.New(
//	    gather.WithCollector(collector.Random{}),
//	    gather.WithCollectors(3),
//	)
func New(opts ...Option) (*Gatherer, error) {
	cfg := &config{
		name:       "default",
		collectors: coordinator.DefaultCollectors,
		poolSize:   64,
		retention:  sinkmemory.DefaultSize,
	}

	for _, opt := range opts {
		opt(cfg)
	}

	if cfg.collector == nil {
		return nil, fmt.Errorf("collector is required: use WithCollector option")
	}
	if cfg.collectors < 1 {
		return nil, fmt.Errorf("collectors must be at least 1, got %d", cfg.collectors)
	}
	if cfg.retention < 1 {
		return nil, fmt.Errorf("retention must be at least 1, got %d", cfg.retention)
	}

	var collectorMetrics *metrics.Collector
	if cfg.metricsEnabled == nil || *cfg.metricsEnabled {
		collectorMetrics = metrics.NewCollector(cfg.name)
	}

	if cfg.store == nil {
		cfg.store = memory.New()
	}

	g := &Gatherer{store: cfg.store}

	if cfg.sink == nil {
		st, logger := cfg.store, cfg.logger
		s, err := sinkmemory.New(sinkmemory.Config{
			Size: cfg.retention,
			OnEvict: func(id RequestID) {
				err := st.DeleteRequest(context.Background(), id)
				if err != nil && !errors.Is(err, rootpkg.ErrUnknownRequest) && logger != nil {
					logger.Error(context.Background(), "failed to delete evicted request", "requestID", id, "error", err)
				}
			},
		})
		if err != nil {
			return nil, err
		}
		cfg.sink = s
	}

	if cfg.executor == nil {
		pool, err := executor.New(executor.Config{
			Size:           cfg.poolSize,
			ReleaseTimeout: cfg.releaseTimeout,
			Logger:         cfg.logger,
			Metrics:        collectorMetrics,
		})
		if err != nil {
			return nil, err
		}
		g.pool = pool
		cfg.executor = pool
	}

	g.Coordinator = coordinator.New(coordinator.Config{
		Store:     cfg.store,
		Executor:  cfg.executor,
		Collector: cfg.collector,
		Sink:      cfg.sink,
		Pipeline: pipeline.New(pipeline.Config{
			Cleaners: cfg.cleaners,
			Logger:   cfg.logger,
			Metrics:  collectorMetrics,
		}),
		Collectors: cfg.collectors,
		NewID:      cfg.newID,
		Logger:     cfg.logger,
		Metrics:    collectorMetrics,
	})

	if cfg.stallInterval > 0 {
		g.watchdog = supervisor.New(supervisor.Config{
			Store:      cfg.store,
			Interval:   cfg.stallInterval,
			StallAfter: cfg.stallAfter,
			Logger:     cfg.logger,
			Metrics:    collectorMetrics,
		})
	}

	return g, nil
}

// Store returns the partial store used by the Gatherer.
func (g *Gatherer) Store() store.PartialStore {
	return g.store
}

// Pool returns the default job pool, or nil when a custom executor was supplied.
func (g *Gatherer) Pool() *executor.Pool {
	return g.pool
}

// Watchdog returns the stalled request watchdog, or nil if stall detection is disabled.
func (g *Gatherer) Watchdog() *supervisor.Watchdog {
	return g.watchdog
}

// Run runs the watchdog until the context is cancelled.
// It returns immediately when stall detection is disabled.
func (g *Gatherer) Run(ctx context.Context) error {
	if g.watchdog == nil {
		return nil
	}
	return g.watchdog.Run(ctx)
}

// Wait blocks until every job submitted to the default pool has finished.
// It is a no-op when a custom executor was supplied.
func (g *Gatherer) Wait() {
	if g.pool != nil {
		g.pool.Wait()
	}
}

// Close releases the default pool. Custom executors are left to the caller.
func (g *Gatherer) Close() error {
	if g.pool == nil {
		return nil
	}
	return g.pool.Close()
}

// WithName sets the name used as the gatherer label of every metric.
func WithName(name string) Option {
	return func(c *config) {
		c.name = name
	}
}

// WithCollector sets the collector that produces the items of each partial.
func WithCollector(col collector.Collector) Option {
	return func(c *config) {
		c.collector = col
	}
}

// WithCollectors sets the number of partials each request waits for.
func WithCollectors(n int) Option {
	return func(c *config) {
		c.collectors = n
	}
}

// WithStore sets a custom partial store.
// The memory, sqlstore and redisstore packages provide implementations.
func WithStore(s store.PartialStore) Option {
	return func(c *config) {
		c.store = s
	}
}

// WithExecutor sets a custom executor for collector jobs.
func WithExecutor(exec executor.Executor) Option {
	return func(c *config) {
		c.executor = exec
	}
}

// WithPoolSize sets the size of the default job pool.
func WithPoolSize(size int) Option {
	return func(c *config) {
		c.poolSize = size
	}
}

// WithReleaseTimeout bounds how long Close waits for the jobs of the default pool.
func WithReleaseTimeout(d time.Duration) Option {
	return func(c *config) {
		c.releaseTimeout = d
	}
}

// WithSink sets a custom summary sink. Eviction-driven cleanup of the store
// only applies to the default sink.
func WithSink(s sink.ResultSink) Option {
	return func(c *config) {
		c.sink = s
	}
}

// WithRetention sets how many summaries the default sink keeps.
func WithRetention(size int) Option {
	return func(c *config) {
		c.retention = size
	}
}

// WithCleaners sets the cleaners run by the cleanup stage, in order.
func WithCleaners(cleaners ...pipeline.Cleaner) Option {
	return func(c *config) {
		c.cleaners = cleaners
	}
}

// WithIDGenerator sets a custom request id generator.
func WithIDGenerator(newID func() RequestID) Option {
	return func(c *config) {
		c.newID = newID
	}
}

// WithStallDetection enables the watchdog that reports requests waiting longer than stallAfter.
// The watchdog runs in Run.
func WithStallDetection(interval, stallAfter time.Duration) Option {
	return func(c *config) {
		c.stallInterval = interval
		c.stallAfter = stallAfter
	}
}

// WithLogger sets the logger for observability.
func WithLogger(logger es.Logger) Option {
	return func(c *config) {
		c.logger = logger
	}
}

// WithMetricsEnabled enables or disables Prometheus metrics collection.
func WithMetricsEnabled(enabled bool) Option {
	return func(c *config) {
		c.metricsEnabled = &enabled
	}
}

// RunMigrations creates the tables of the SQL store with default names.
//
// This should typically be run once during application deployment or startup.
func RunMigrations(ctx context.Context, db *sql.DB, dialect sqlstore.Dialect) error {
	return RunMigrationsWithTableNames(ctx, db, dialect, sqlstore.DefaultTableConfig())
}

// RunMigrationsWithTableNames creates the tables of the SQL store with custom names.
//
// Example:
//
//	tables := sqlstore.TableConfig{
//	    RequestsTable:  "search_requests",
//	    PartialsTable:  "search_partials",
//	    SummariesTable: "search_summaries",
//	}
//	if err := gather.RunMigrationsWithTableNames(ctx, db, sqlstore.Postgres, tables); err != nil {
//	    log.Fatal(err)
//	}
func RunMigrationsWithTableNames(ctx context.Context, db *sql.DB, dialect sqlstore.Dialect, tables sqlstore.TableConfig) error {
	if err := sqlstore.NewWithConfig(db, dialect, tables).Migrate(ctx); err != nil {
		return fmt.Errorf("failed to execute migrations: %w", err)
	}
	return nil
}
