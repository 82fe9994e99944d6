package coordinator

import (
	"context"
	"fmt"

	"github.com/getpup/pupsourcing-gather"
	"github.com/getpup/pupsourcing-gather/executor"
)

// Dispatcher hands the collector jobs of a request to an executor.
type Dispatcher struct {
	executor executor.Executor
}

// NewDispatcher creates a new Dispatcher with the given executor.
func NewDispatcher(e executor.Executor) *Dispatcher {
	return &Dispatcher{
		executor: e,
	}
}

// Jobs returns the collector jobs of a request, one per index in [0, n).
func Jobs(req gather.CollectionRequest) []executor.Job {
	jobs := make([]executor.Job, req.ExpectedPartials)
	for i := range jobs {
		jobs[i] = executor.Job{
			RequestID:      req.ID,
			Topic:          req.Topic,
			CollectorIndex: i,
			Attempt:        1,
		}
	}
	return jobs
}

// Dispatch submits every collector job of req and returns without waiting for them.
// If a submission fails, the remaining jobs are not submitted and the error names
// the collector index that could not be scheduled.
func (d *Dispatcher) Dispatch(ctx context.Context, req gather.CollectionRequest, handler executor.Handler) error {
	for _, job := range Jobs(req) {
		if err := d.executor.Submit(ctx, job, handler); err != nil {
			return fmt.Errorf("failed to dispatch collector %d of request %s: %w", job.CollectorIndex, req.ID, err)
		}
	}

	return nil
}
