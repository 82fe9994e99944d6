// Package sink defines where processing summaries are written once the pipeline finishes.
package sink

import (
	"context"
	"errors"

	"github.com/getpup/pupsourcing-gather"
)

// ErrNotFound indicates no summary has been written for the request.
var ErrNotFound = errors.New("summary not found")

// ResultSink stores processing summaries.
// Put is write-once per request id: a second Put for the same id keeps the
// first summary and returns nil.
type ResultSink interface {
	Put(ctx context.Context, summary gather.ProcessingSummary) error

	// Get returns ErrNotFound if no summary exists for id.
	Get(ctx context.Context, id gather.RequestID) (gather.ProcessingSummary, error)
}
