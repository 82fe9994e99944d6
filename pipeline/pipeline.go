// Package pipeline runs the cleanup and process stages over an aggregated result.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/getpup/pupsourcing-gather"
	"github.com/getpup/pupsourcing-gather/metrics"
	"github.com/getpup/pupsourcing/es"
)

// Stage names used in logs and metrics.
const (
	StageCleanup = "cleanup"
	StageProcess = "process"
)

// ErrInvalidItem indicates a cleaner rejected the aggregate.
var ErrInvalidItem = errors.New("invalid item")

// Cleaner is one step of the cleanup stage.
// Clean must preserve the relative order of the items it keeps and must not
// modify its input.
type Cleaner interface {
	Name() string
	Clean(items []int) ([]int, error)
}

// Config configures a Pipeline.
type Config struct {
	// Cleaners run in order during cleanup (default: none, cleanup copies the items).
	Cleaners []Cleaner

	// Logger is an optional logger for observability.
	Logger es.Logger

	// Metrics is an optional metrics collector.
	Metrics *metrics.Collector

	// Now returns the time stamped on summaries (default: time.Now).
	Now func() time.Time
}

// Pipeline turns an aggregated result into a processing summary.
// It holds no per-request state and may be shared across requests.
type Pipeline struct {
	config Config
}

// New creates a new Pipeline with the given configuration.
func New(cfg Config) *Pipeline {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &Pipeline{config: cfg}
}

// Run executes cleanup then process for one aggregate.
func (p *Pipeline) Run(ctx context.Context, agg gather.AggregatedResult) (gather.ProcessingSummary, error) {
	if p.config.Metrics != nil {
		p.config.Metrics.IncPipelineRuns()
	}

	cleaned, err := p.Cleanup(ctx, agg.RequestID, agg.Items)
	if err != nil {
		if p.config.Metrics != nil {
			p.config.Metrics.IncPipelineErrors(StageCleanup)
		}
		return gather.ProcessingSummary{}, err
	}

	return p.Process(ctx, agg.RequestID, agg.Topic, cleaned), nil
}

// Cleanup runs the configured cleaners over a copy of items.
func (p *Pipeline) Cleanup(ctx context.Context, id gather.RequestID, items []int) ([]int, error) {
	start := time.Now()

	cleaned := make([]int, len(items))
	copy(cleaned, items)

	for _, c := range p.config.Cleaners {
		out, err := c.Clean(cleaned)
		if err != nil {
			if p.config.Logger != nil {
				p.config.Logger.Error(ctx, "cleanup failed", "requestID", id, "cleaner", c.Name(), "error", err)
			}
			return nil, fmt.Errorf("failed to clean request %s with %s: %w", id, c.Name(), err)
		}
		cleaned = out
	}

	p.observe(StageCleanup, start)
	if p.config.Logger != nil {
		p.config.Logger.Info(ctx, "cleaned aggregate",
			"requestID", id,
			"itemsIn", len(items),
			"itemsOut", len(cleaned))
	}

	return cleaned, nil
}

// Process summarizes the cleaned items of a request.
func (p *Pipeline) Process(ctx context.Context, id gather.RequestID, topic string, cleaned []int) gather.ProcessingSummary {
	start := time.Now()

	summary := gather.ProcessingSummary{
		RequestID:   id,
		Topic:       topic,
		ItemCount:   len(cleaned),
		ProcessedAt: p.config.Now(),
	}

	p.observe(StageProcess, start)
	if p.config.Logger != nil {
		p.config.Logger.Info(ctx, "processed request", "requestID", id, "topic", topic, "itemCount", summary.ItemCount)
	}

	return summary
}

func (p *Pipeline) observe(stage string, start time.Time) {
	if p.config.Metrics != nil {
		p.config.Metrics.ObserveStageDuration(stage, time.Since(start).Seconds())
	}
}

// Filter keeps the items for which Keep returns true.
type Filter struct {
	Label string
	Keep  func(int) bool
}

// Name implements Cleaner.
func (f Filter) Name() string { return f.Label }

// Clean implements Cleaner.
func (f Filter) Clean(items []int) ([]int, error) {
	out := make([]int, 0, len(items))
	for _, v := range items {
		if f.Keep(v) {
			out = append(out, v)
		}
	}
	return out, nil
}

// Validate returns a Cleaner that fails the run when check rejects any item.
// It never removes items.
func Validate(label string, check func(int) error) Cleaner {
	return validator{label: label, check: check}
}

type validator struct {
	label string
	check func(int) error
}

func (v validator) Name() string { return v.label }

func (v validator) Clean(items []int) ([]int, error) {
	for i, item := range items {
		if err := v.check(item); err != nil {
			return nil, fmt.Errorf("%w at position %d: %w", ErrInvalidItem, i, err)
		}
	}
	return items, nil
}

// Range returns a Validate cleaner accepting items in [lo, hi].
func Range(lo, hi int) Cleaner {
	return Validate(fmt.Sprintf("range[%d,%d]", lo, hi), func(v int) error {
		if v < lo || v > hi {
			return fmt.Errorf("value %d outside [%d, %d]", v, lo, hi)
		}
		return nil
	})
}
