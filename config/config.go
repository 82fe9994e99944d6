// Package config loads the YAML configuration of the gather binary.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/getpup/pupsourcing-gather/logging"
	"gopkg.in/yaml.v3"
)

// Store drivers.
const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverMySQL    = "mysql"
	DriverSQLite   = "sqlite"
	DriverRedis    = "redis"
)

// Sink drivers. A sink shares the connection of the store.
const (
	SinkMemory = "memory"
	SinkSQL    = "sql"
	SinkRedis  = "redis"
)

// Config is the configuration of the gather binary.
type Config struct {
	// Gatherer names this instance in metrics labels.
	Gatherer string `yaml:"gatherer"`

	// Collectors is the number of partials each request waits for.
	Collectors int `yaml:"collectors"`

	Store      StoreConfig      `yaml:"store"`
	Sink       SinkConfig       `yaml:"sink"`
	Executor   ExecutorConfig   `yaml:"executor"`
	Supervisor SupervisorConfig `yaml:"supervisor"`
	HTTP       HTTPConfig       `yaml:"http"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	Log        logging.Config   `yaml:"log"`
}

// StoreConfig selects the partial store backing.
type StoreConfig struct {
	// Driver is one of memory, postgres, mysql, sqlite, redis.
	Driver string `yaml:"driver"`

	// DSN is the data source name of the SQL drivers.
	DSN string `yaml:"dsn"`

	// Migrate creates the SQL tables on startup.
	Migrate bool `yaml:"migrate"`

	Redis RedisConfig `yaml:"redis"`
}

// RedisConfig configures the Redis client.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"`
}

// SinkConfig selects where processing summaries are kept.
type SinkConfig struct {
	// Driver is one of memory, sql, redis.
	Driver string `yaml:"driver"`

	// Size is the number of summaries the memory sink retains.
	Size int `yaml:"size"`

	// TTL is how long the redis sink keeps a summary; zero keeps it forever.
	TTL time.Duration `yaml:"ttl"`
}

// ExecutorConfig configures the collector worker pool.
type ExecutorConfig struct {
	Size           int           `yaml:"size"`
	ReleaseTimeout time.Duration `yaml:"release_timeout"`
}

// SupervisorConfig configures the stalled request watchdog.
type SupervisorConfig struct {
	Enabled    bool          `yaml:"enabled"`
	Interval   time.Duration `yaml:"interval"`
	StallAfter time.Duration `yaml:"stall_after"`
}

// HTTPConfig configures the API server.
type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	// Enabled defaults to true when omitted.
	Enabled *bool  `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// Default returns the configuration used for omitted values.
func Default() Config {
	enabled := true
	return Config{
		Gatherer:   "default",
		Collectors: 3,
		Store: StoreConfig{
			Driver: DriverMemory,
			Redis: RedisConfig{
				Addr:   "localhost:6379",
				Prefix: "gather",
			},
		},
		Sink: SinkConfig{
			Driver: SinkMemory,
			Size:   1024,
		},
		Executor: ExecutorConfig{
			Size:           64,
			ReleaseTimeout: 10 * time.Second,
		},
		Supervisor: SupervisorConfig{
			Enabled:    true,
			Interval:   30 * time.Second,
			StallAfter: 5 * time.Minute,
		},
		HTTP: HTTPConfig{
			Addr: ":8080",
		},
		Metrics: MetricsConfig{
			Enabled: &enabled,
			Addr:    ":9090",
		},
		Log: logging.DefaultConfig(),
	}
}

// Load reads a YAML file on top of Default and validates the result.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML on top of Default and validates the result.
func Parse(data []byte) (Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// MetricsEnabled reports whether the metrics endpoint should be served.
func (c Config) MetricsEnabled() bool {
	return c.Metrics.Enabled == nil || *c.Metrics.Enabled
}

// IsSQL reports whether the store driver is one of the SQL drivers.
func (c StoreConfig) IsSQL() bool {
	switch c.Driver {
	case DriverPostgres, DriverMySQL, DriverSQLite:
		return true
	default:
		return false
	}
}

// Validate checks the configuration for values the binary cannot run with.
func (c Config) Validate() error {
	var errs []error

	if c.Collectors < 1 {
		errs = append(errs, fmt.Errorf("collectors must be at least 1, got %d", c.Collectors))
	}

	switch {
	case c.Store.IsSQL():
		if c.Store.DSN == "" {
			errs = append(errs, fmt.Errorf("store driver %q requires a dsn", c.Store.Driver))
		}
	case c.Store.Driver == DriverRedis:
		if c.Store.Redis.Addr == "" {
			errs = append(errs, errors.New("store driver \"redis\" requires redis.addr"))
		}
	case c.Store.Driver == DriverMemory:
	default:
		errs = append(errs, fmt.Errorf("unknown store driver %q", c.Store.Driver))
	}

	switch c.Sink.Driver {
	case SinkMemory:
		if c.Sink.Size < 1 {
			errs = append(errs, fmt.Errorf("sink size must be at least 1, got %d", c.Sink.Size))
		}
	case SinkSQL:
		if !c.Store.IsSQL() {
			errs = append(errs, fmt.Errorf("sink driver \"sql\" requires a SQL store, got %q", c.Store.Driver))
		}
	case SinkRedis:
		if c.Store.Driver != DriverRedis {
			errs = append(errs, fmt.Errorf("sink driver \"redis\" requires the redis store, got %q", c.Store.Driver))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown sink driver %q", c.Sink.Driver))
	}

	if c.Executor.Size < 1 {
		errs = append(errs, fmt.Errorf("executor size must be at least 1, got %d", c.Executor.Size))
	}
	if c.Supervisor.Enabled && (c.Supervisor.Interval <= 0 || c.Supervisor.StallAfter <= 0) {
		errs = append(errs, errors.New("supervisor interval and stall_after must be positive"))
	}
	if err := c.Log.Validate(); err != nil {
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}
