package gather

import "context"

// Gatherer scatters a collection request across collector workers and gathers
// their partial results into a single processed summary.
//
// Submit returns as soon as the collector jobs are handed to the executor.
// Each collector reports through ReportPartial; the report that completes the
// request runs the cleanup and process stages exactly once. Result can be polled
// at any time:
//   - ErrNotFound when the id was never submitted or has been evicted
//   - ErrNotReady while collectors are still reporting or the pipeline is running
//   - the ProcessingSummary once the pipeline has finished
type Gatherer interface {
	// Submit creates a request for topic and dispatches its collector jobs.
	// Returns ErrInvalidTopic if topic is empty.
	Submit(ctx context.Context, topic string) (RequestID, error)

	// ReportPartial records the items produced by one collector.
	// Duplicate and late reports are not errors; the returned Outcome says what happened.
	ReportPartial(ctx context.Context, id RequestID, collectorIndex int, items []int) (Outcome, error)

	// Result returns the processing summary of a request.
	Result(ctx context.Context, id RequestID) (ProcessingSummary, error)
}
