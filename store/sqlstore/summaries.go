package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/getpup/pupsourcing-gather"
	"github.com/getpup/pupsourcing-gather/sink"
)

// Summaries is a SQL implementation of ResultSink.
type Summaries struct {
	db      *sql.DB
	dialect Dialect
	table   string
}

// Compile-time check that Summaries implements ResultSink.
var _ sink.ResultSink = (*Summaries)(nil)

// Put writes the summary unless one already exists for the request.
func (s *Summaries) Put(ctx context.Context, summary gather.ProcessingSummary) error {
	query := s.dialect.rebind(s.dialect.insertIgnore(s.table, "request_id", "topic", "item_count", "processed_at"))

	_, err := s.db.ExecContext(ctx, query,
		string(summary.RequestID),
		summary.Topic,
		summary.ItemCount,
		summary.ProcessedAt.UnixNano(),
	)
	if err != nil {
		return unavailable("failed to write summary", err)
	}
	return nil
}

// Get returns the summary of a request, or sink.ErrNotFound.
func (s *Summaries) Get(ctx context.Context, id gather.RequestID) (gather.ProcessingSummary, error) {
	query := s.dialect.rebind(fmt.Sprintf(`
		SELECT request_id, topic, item_count, processed_at
		FROM %s
		WHERE request_id = ?
	`, s.table))

	var (
		summary     gather.ProcessingSummary
		requestID   string
		processedAt int64
	)
	err := s.db.QueryRowContext(ctx, query, string(id)).Scan(&requestID, &summary.Topic, &summary.ItemCount, &processedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return gather.ProcessingSummary{}, sink.ErrNotFound
	}
	if err != nil {
		return gather.ProcessingSummary{}, unavailable("failed to read summary", err)
	}

	summary.RequestID = gather.RequestID(requestID)
	summary.ProcessedAt = time.Unix(0, processedAt)
	return summary, nil
}

// Delete removes the summary of a request. Missing summaries are not an error.
func (s *Summaries) Delete(ctx context.Context, id gather.RequestID) error {
	query := s.dialect.rebind(fmt.Sprintf(`DELETE FROM %s WHERE request_id = ?`, s.table))
	if _, err := s.db.ExecContext(ctx, query, string(id)); err != nil {
		return unavailable("failed to delete summary", err)
	}
	return nil
}
