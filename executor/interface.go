package executor

import (
	"context"

	"github.com/getpup/pupsourcing-gather"
)

// Job is a single collector unit of work for one collection request.
type Job struct {
	// RequestID identifies the request the collector works for.
	RequestID gather.RequestID

	// Topic is the subject the collector gathers data for.
	Topic string

	// CollectorIndex is the position of the collector in [0, N).
	// A redelivered job keeps its index so its report deduplicates.
	CollectorIndex int

	// Attempt counts deliveries of this job, starting at 1.
	Attempt int
}

// Handler runs a job. Errors are reported to the executor, which never retries.
type Handler func(ctx context.Context, job Job) error

// Executor schedules collector jobs.
// Submit must not wait for the job to finish.
// This interface allows for mock implementations in tests.
type Executor interface {
	Submit(ctx context.Context, job Job, handler Handler) error
}
