// Package app assembles a running gatherer from a config.Config.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/getpup/pupsourcing-gather/api"
	"github.com/getpup/pupsourcing-gather/collector"
	"github.com/getpup/pupsourcing-gather/config"
	"github.com/getpup/pupsourcing-gather/metrics"
	"github.com/getpup/pupsourcing-gather/pkg/gather"
	"github.com/getpup/pupsourcing-gather/store/redisstore"
	"github.com/getpup/pupsourcing-gather/store/sqlstore"
	"github.com/getpup/pupsourcing/es"
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/redis/go-redis/v9"
)

// ShutdownTimeout bounds how long Run waits for servers to stop.
const ShutdownTimeout = 10 * time.Second

// App owns a Gatherer, its HTTP surfaces and the connections behind them.
type App struct {
	Gatherer *gather.Gatherer
	API      *api.Server
	Metrics  *metrics.Server

	config  config.Config
	logger  es.Logger
	closers []func() error
}

// Build connects the configured backings and creates the gatherer.
// The collector runs every job; pass nil for collector.Random.
func Build(ctx context.Context, cfg config.Config, col collector.Collector, logger es.Logger) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if col == nil {
		col = collector.Random{}
	}

	a := &App{config: cfg, logger: logger}

	opts := []gather.Option{
		gather.WithName(cfg.Gatherer),
		gather.WithCollector(col),
		gather.WithCollectors(cfg.Collectors),
		gather.WithPoolSize(cfg.Executor.Size),
		gather.WithReleaseTimeout(cfg.Executor.ReleaseTimeout),
		gather.WithRetention(cfg.Sink.Size),
		gather.WithMetricsEnabled(cfg.MetricsEnabled()),
	}
	if logger != nil {
		opts = append(opts, gather.WithLogger(logger))
	}
	if cfg.Supervisor.Enabled {
		opts = append(opts, gather.WithStallDetection(cfg.Supervisor.Interval, cfg.Supervisor.StallAfter))
	}

	backing, err := a.openStore(ctx)
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	opts = append(opts, backing...)

	g, err := gather.New(opts...)
	if err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("failed to create gatherer: %w", err)
	}
	a.Gatherer = g
	// Release the pool before the connections its jobs use.
	a.closers = append([]func() error{g.Close}, a.closers...)

	a.API = api.NewServer(g, api.Config{Logger: logger})
	if cfg.MetricsEnabled() {
		a.Metrics = metrics.NewServer(cfg.Metrics.Addr)
	}

	return a, nil
}

// openStore returns the store and sink options of the configured driver.
func (a *App) openStore(ctx context.Context) ([]gather.Option, error) {
	cfg := a.config

	switch {
	case cfg.Store.IsSQL():
		dialect, err := sqlstore.ParseDialect(cfg.Store.Driver)
		if err != nil {
			return nil, err
		}
		db, err := sql.Open(dialect.DriverName(), cfg.Store.DSN)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
		a.closers = append(a.closers, db.Close)
		if err := db.PingContext(ctx); err != nil {
			return nil, fmt.Errorf("failed to ping database: %w", err)
		}

		s := sqlstore.New(db, dialect)
		if cfg.Store.Migrate {
			if err := s.Migrate(ctx); err != nil {
				return nil, err
			}
		}

		opts := []gather.Option{gather.WithStore(s)}
		if cfg.Sink.Driver == config.SinkSQL {
			opts = append(opts, gather.WithSink(s.Summaries()))
		}
		return opts, nil

	case cfg.Store.Driver == config.DriverRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Store.Redis.Addr,
			Password: cfg.Store.Redis.Password,
			DB:       cfg.Store.Redis.DB,
		})
		a.closers = append(a.closers, client.Close)
		if err := client.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("failed to ping redis: %w", err)
		}

		s := redisstore.New(client, redisstore.Config{Prefix: cfg.Store.Redis.Prefix})
		opts := []gather.Option{gather.WithStore(s)}
		if cfg.Sink.Driver == config.SinkRedis {
			opts = append(opts, gather.WithSink(s.Summaries(cfg.Sink.TTL)))
		}
		return opts, nil

	default:
		// The facade's default in-memory store and LRU sink.
		return nil, nil
	}
}

// Run serves the API, the metrics endpoint and the stall watchdog until the
// context is cancelled or a server fails.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 2)

	go func() {
		if err := a.API.Listen(a.config.HTTP.Addr); err != nil {
			errCh <- fmt.Errorf("api server: %w", err)
		}
	}()

	if a.Metrics != nil {
		a.Metrics.Start()
		go func() {
			ticker := time.NewTicker(time.Second)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					if err := a.Metrics.Err(); err != nil {
						errCh <- fmt.Errorf("metrics server: %w", err)
						return
					}
				}
			}
		}()
	}

	watchCtx, stopWatch := context.WithCancel(ctx)
	defer stopWatch()
	go func() {
		_ = a.Gatherer.Run(watchCtx)
	}()

	if a.logger != nil {
		a.logger.Info(ctx, "gatherer started",
			"gatherer", a.config.Gatherer,
			"http", a.config.HTTP.Addr,
			"store", a.config.Store.Driver,
			"sink", a.config.Sink.Driver,
			"collectors", a.config.Collectors)
	}

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errCh:
	}
	stopWatch()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()

	var errs []error
	if runErr != nil {
		errs = append(errs, runErr)
	}
	if err := a.API.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("failed to stop api server: %w", err))
	}
	if a.Metrics != nil {
		if err := a.Metrics.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("failed to stop metrics server: %w", err))
		}
	}

	if a.logger != nil {
		a.logger.Info(context.Background(), "gatherer stopped")
	}

	return errors.Join(errs...)
}

// Close releases the pool and every connection opened by Build.
func (a *App) Close() error {
	var errs []error
	for _, c := range a.closers {
		if err := c(); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
