package coordinator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/getpup/pupsourcing-gather"
	"github.com/getpup/pupsourcing-gather/collector"
	"github.com/getpup/pupsourcing-gather/executor"
	"github.com/getpup/pupsourcing-gather/metrics"
	"github.com/getpup/pupsourcing-gather/pipeline"
	"github.com/getpup/pupsourcing-gather/sink"
	"github.com/getpup/pupsourcing-gather/store"
	"github.com/getpup/pupsourcing/es"
	"github.com/google/uuid"
)

// DefaultCollectors is the number of collectors per request when Config.Collectors is zero.
const DefaultCollectors = 3

// Config holds configuration for the Coordinator.
type Config struct {
	// Store holds the partial results of every request (required).
	Store store.PartialStore

	// Executor runs the collector jobs (required).
	Executor executor.Executor

	// Collector produces the items of each partial (required).
	Collector collector.Collector

	// Sink receives the summary of every completed request (required).
	Sink sink.ResultSink

	// Pipeline turns aggregates into summaries (default: a pipeline without cleaners).
	Pipeline *pipeline.Pipeline

	// Collectors is the number of partials each request waits for (default: 3).
	Collectors int

	// NewID generates request ids (default: random UUID).
	NewID func() gather.RequestID

	// Logger is for observability (optional).
	Logger es.Logger

	// Metrics is an optional metrics collector.
	Metrics *metrics.Collector
}

// Coordinator dispatches collection requests and runs the aggregation barrier.
// The report that completes a request is the only one that runs the pipeline.
type Coordinator struct {
	config     Config
	dispatcher *Dispatcher
}

// Compile-time check that Coordinator implements Gatherer.
var _ gather.Gatherer = (*Coordinator)(nil)

// New creates a new Coordinator with the given configuration.
// Applies default values for Collectors, NewID and Pipeline if not set.
func New(cfg Config) *Coordinator {
	if cfg.Collectors == 0 {
		cfg.Collectors = DefaultCollectors
	}
	if cfg.NewID == nil {
		cfg.NewID = func() gather.RequestID {
			return gather.RequestID(uuid.New().String())
		}
	}
	if cfg.Pipeline == nil {
		cfg.Pipeline = pipeline.New(pipeline.Config{
			Logger:  cfg.Logger,
			Metrics: cfg.Metrics,
		})
	}

	return &Coordinator{
		config:     cfg,
		dispatcher: NewDispatcher(cfg.Executor),
	}
}

// Submit registers a request for topic and dispatches one collector job per index.
// It returns as soon as the jobs are handed to the executor.
// When dispatch fails after registration, the id is returned with the error and
// the request stays waiting.
func (c *Coordinator) Submit(ctx context.Context, topic string) (gather.RequestID, error) {
	if topic == "" {
		if c.config.Metrics != nil {
			c.config.Metrics.IncDispatchRejected("invalid_topic")
		}
		return "", gather.ErrInvalidTopic
	}

	req := gather.CollectionRequest{
		ID:               c.config.NewID(),
		Topic:            topic,
		ExpectedPartials: c.config.Collectors,
		CreatedAt:        time.Now(),
	}

	if err := c.config.Store.Register(ctx, req); err != nil {
		return "", storeError("failed to register request", err)
	}

	if err := c.dispatcher.Dispatch(ctx, req, c.runJob); err != nil {
		if c.config.Logger != nil {
			c.config.Logger.Error(ctx, "dispatch failed", "requestID", req.ID, "topic", topic, "error", err)
		}
		return req.ID, err
	}

	if c.config.Metrics != nil {
		c.config.Metrics.IncRequestsDispatched()
	}
	if c.config.Logger != nil {
		c.config.Logger.Info(ctx, "dispatched request", "requestID", req.ID, "topic", topic, "collectors", req.ExpectedPartials)
	}

	return req.ID, nil
}

// runJob is the executor handler of every collector job.
func (c *Coordinator) runJob(ctx context.Context, job executor.Job) error {
	items, err := c.config.Collector.Collect(ctx, collector.Task{
		Topic:     job.Topic,
		RequestID: job.RequestID,
		Index:     job.CollectorIndex,
	})
	if err != nil {
		return fmt.Errorf("collector %d of request %s failed: %w", job.CollectorIndex, job.RequestID, err)
	}

	_, err = c.ReportPartial(ctx, job.RequestID, job.CollectorIndex, items)
	return err
}

// ReportPartial records the items of one collector and fires the barrier when
// it completes the request. Duplicate and late reports change nothing and are
// not errors.
//
// When the barrier fires but the pipeline or the sink fails, OutcomeCompleted
// is returned together with the error; the request stays complete without a summary.
func (c *Coordinator) ReportPartial(ctx context.Context, id gather.RequestID, collectorIndex int, items []int) (gather.Outcome, error) {
	res, err := c.config.Store.RecordAndCheck(ctx, gather.PartialResult{
		RequestID:      id,
		CollectorIndex: collectorIndex,
		Items:          items,
		ArrivedAt:      time.Now(),
	})
	if err != nil {
		return "", storeError("failed to record partial", err)
	}

	if c.config.Metrics != nil {
		c.config.Metrics.IncPartials(string(res.Outcome))
	}

	switch res.Outcome {
	case gather.OutcomeDuplicate, gather.OutcomeLate:
		if c.config.Logger != nil {
			c.config.Logger.Debug(ctx, "ignored partial",
				"requestID", id,
				"collectorIndex", collectorIndex,
				"outcome", res.Outcome)
		}
	case gather.OutcomeAccepted:
		if c.config.Logger != nil {
			c.config.Logger.Debug(ctx, "accepted partial", "requestID", id, "collectorIndex", collectorIndex, "items", len(items))
		}
	case gather.OutcomeCompleted:
		if res.Aggregate == nil {
			return res.Outcome, fmt.Errorf("request %s completed without an aggregate", id)
		}
		if err := c.complete(ctx, *res.Aggregate); err != nil {
			return res.Outcome, err
		}
	}

	return res.Outcome, nil
}

// complete runs the pipeline for a request whose barrier just fired.
func (c *Coordinator) complete(ctx context.Context, agg gather.AggregatedResult) error {
	if c.config.Metrics != nil {
		c.config.Metrics.IncBarrierFired()
		if req, err := c.config.Store.GetRequest(ctx, agg.RequestID); err == nil {
			c.config.Metrics.ObserveGatherDuration(req.CompletedAt.Sub(req.CreatedAt).Seconds())
		}
	}
	if c.config.Logger != nil {
		c.config.Logger.Info(ctx, "all partials received", "requestID", agg.RequestID, "items", len(agg.Items))
	}

	summary, err := c.config.Pipeline.Run(ctx, agg)
	if err != nil {
		c.unsummarized(ctx, agg.RequestID, stepPipeline, err)
		return fmt.Errorf("failed to process request %s: %w", agg.RequestID, err)
	}

	if err := c.config.Sink.Put(ctx, summary); err != nil {
		c.unsummarized(ctx, agg.RequestID, stepSink, err)
		return fmt.Errorf("failed to write summary of request %s: %w", agg.RequestID, err)
	}

	return nil
}

// Steps after the barrier that can leave a completed request without a summary.
const (
	stepPipeline = "pipeline"
	stepSink     = "sink"
)

// unsummarized reports a completed request that will never get a summary.
// Redelivery cannot repair it: every further report is late.
func (c *Coordinator) unsummarized(ctx context.Context, id gather.RequestID, step string, err error) {
	if c.config.Metrics != nil {
		c.config.Metrics.IncUnsummarized(step)
	}
	if c.config.Logger != nil {
		c.config.Logger.Error(ctx, "request completed without summary", "requestID", id, "step", step, "error", err)
	}
}

// Result returns the processing summary of a request.
// Returns gather.ErrNotFound for ids that were never submitted or have been
// evicted and gather.ErrNotReady while the request has no summary yet.
func (c *Coordinator) Result(ctx context.Context, id gather.RequestID) (gather.ProcessingSummary, error) {
	summary, err := c.config.Sink.Get(ctx, id)
	if err == nil {
		return summary, nil
	}
	if !errors.Is(err, sink.ErrNotFound) {
		return gather.ProcessingSummary{}, storeError("failed to read summary", err)
	}

	if _, err := c.config.Store.GetRequest(ctx, id); err != nil {
		if errors.Is(err, gather.ErrUnknownRequest) {
			return gather.ProcessingSummary{}, gather.ErrNotFound
		}
		return gather.ProcessingSummary{}, storeError("failed to get request", err)
	}

	return gather.ProcessingSummary{}, gather.ErrNotReady
}

// storeError passes domain errors through and marks everything else as an
// unavailable store.
func storeError(msg string, err error) error {
	switch {
	case errors.Is(err, gather.ErrUnknownRequest),
		errors.Is(err, gather.ErrInvalidCollectorIndex),
		errors.Is(err, gather.ErrStoreUnavailable):
		return err
	default:
		return fmt.Errorf("%s: %w: %w", msg, gather.ErrStoreUnavailable, err)
	}
}
