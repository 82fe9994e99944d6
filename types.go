package gather

import "time"

// RequestID uniquely identifies a collection request.
// Ids are random 128-bit tokens rendered as UUID text.
type RequestID string

// RequestState represents the lifecycle state of a collection request.
type RequestState string

const (
	// RequestStateWaiting indicates the request is still missing at least one partial.
	RequestStateWaiting RequestState = "waiting"

	// RequestStateComplete indicates every expected partial has arrived.
	// This state is terminal: further reports are ignored.
	RequestStateComplete RequestState = "complete"
)

// CollectionRequest is a request that has been scattered across collector workers.
type CollectionRequest struct {
	// ID is the unique identifier of the request.
	ID RequestID

	// Topic is the subject the collectors gather data for.
	Topic string

	// ExpectedPartials is the number of distinct collector indexes the barrier waits for.
	ExpectedPartials int

	// State is the current lifecycle state of the request.
	State RequestState

	// ReceivedPartials is the number of distinct collector indexes recorded so far.
	ReceivedPartials int

	// CreatedAt is when the request was registered.
	CreatedAt time.Time

	// CompletedAt is when the last expected partial arrived.
	// It is the zero time while the request is waiting.
	CompletedAt time.Time
}

// PartialResult is the output of a single collector worker.
// Its identity is the pair (RequestID, CollectorIndex).
type PartialResult struct {
	// RequestID identifies the request this partial belongs to.
	RequestID RequestID

	// CollectorIndex is the position of the collector, in [0, ExpectedPartials).
	CollectorIndex int

	// Items is the ordered sequence of values produced by the collector.
	Items []int

	// ArrivedAt is when the partial was reported.
	ArrivedAt time.Time
}

// AggregatedResult is the combination of all partials of a request.
// Items are concatenated in ascending CollectorIndex order, never arrival order.
type AggregatedResult struct {
	// RequestID identifies the completed request.
	RequestID RequestID

	// Topic is the topic of the completed request.
	Topic string

	// Items is the concatenation of every partial ordered by collector index.
	Items []int
}

// ProcessingSummary is the terminal artifact produced by the pipeline.
type ProcessingSummary struct {
	// RequestID identifies the request the summary belongs to.
	RequestID RequestID `json:"request_id"`

	// Topic is the topic of the request.
	Topic string `json:"topic"`

	// ItemCount is the number of items that survived cleanup.
	ItemCount int `json:"item_count"`

	// ProcessedAt is when the process stage produced the summary.
	ProcessedAt time.Time `json:"processed_at"`
}

// Outcome describes what a store did with a reported partial.
type Outcome string

const (
	// OutcomeAccepted indicates the partial was stored and the request is still waiting.
	OutcomeAccepted Outcome = "accepted"

	// OutcomeDuplicate indicates a partial with the same collector index was already stored.
	OutcomeDuplicate Outcome = "duplicate"

	// OutcomeLate indicates the request had already completed; nothing was changed.
	OutcomeLate Outcome = "late"

	// OutcomeCompleted indicates this partial was the last one expected.
	// Exactly one report per request observes this outcome.
	OutcomeCompleted Outcome = "completed"
)

// RecordResult is returned by a store when a partial is recorded.
type RecordResult struct {
	// Outcome is what the store did with the partial.
	Outcome Outcome

	// Aggregate is set only when Outcome is OutcomeCompleted.
	Aggregate *AggregatedResult
}

// JustCompleted reports whether this record call fired the barrier.
func (r RecordResult) JustCompleted() bool {
	return r.Outcome == OutcomeCompleted
}
