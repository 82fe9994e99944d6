package store

import (
	"context"
	"time"

	"github.com/getpup/pupsourcing-gather"
)

// PartialStore is the keyed accumulator of partial results.
// It is the only shared mutable state between collector workers.
//
// Implementations must make RecordAndCheck a single atomic step per request id:
// adding the collector index and checking whether all partials have arrived
// cannot be split into a read followed by a write. Different request ids must not
// contend with each other. All implementations provide identical semantics so
// callers can swap backings freely.
type PartialStore interface {
	// Register creates a waiting request expecting req.ExpectedPartials distinct partials.
	// Returns ErrRequestExists if the id is already registered and
	// ErrInvalidExpected if ExpectedPartials is less than one.
	Register(ctx context.Context, req gather.CollectionRequest) error

	// RecordAndCheck stores a partial and reports whether it completed the request.
	//
	// Returns gather.ErrUnknownRequest if the request is not registered and
	// gather.ErrInvalidCollectorIndex if the index is outside [0, ExpectedPartials).
	// A partial whose index was already recorded yields OutcomeDuplicate and a report
	// against a complete request yields OutcomeLate; neither mutates the store.
	// When the distinct index count reaches ExpectedPartials the request becomes
	// complete and the result carries the aggregate ordered by collector index.
	RecordAndCheck(ctx context.Context, partial gather.PartialResult) (gather.RecordResult, error)

	// GetRequest returns a request by id.
	// Returns gather.ErrUnknownRequest if the request does not exist.
	GetRequest(ctx context.Context, id gather.RequestID) (gather.CollectionRequest, error)

	// WaitingRequests returns requests that are still waiting and were created
	// more than olderThan ago. Returns an empty slice if there are none.
	WaitingRequests(ctx context.Context, olderThan time.Duration) ([]gather.CollectionRequest, error)

	// DeleteRequest removes a request and its partials.
	// Returns gather.ErrUnknownRequest if the request does not exist.
	DeleteRequest(ctx context.Context, id gather.RequestID) error
}

// Aggregate concatenates partial item sequences in ascending collector index order.
// partials[i] holds the items of collector i; nil entries contribute nothing.
func Aggregate(id gather.RequestID, topic string, partials [][]int) *gather.AggregatedResult {
	total := 0
	for _, items := range partials {
		total += len(items)
	}

	combined := make([]int, 0, total)
	for _, items := range partials {
		combined = append(combined, items...)
	}

	return &gather.AggregatedResult{
		RequestID: id,
		Topic:     topic,
		Items:     combined,
	}
}
