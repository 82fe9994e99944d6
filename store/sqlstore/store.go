// Package sqlstore implements PartialStore and ResultSink on database/sql for
// PostgreSQL, MySQL/MariaDB and SQLite.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/bytedance/sonic"
	"github.com/getpup/pupsourcing-gather"
	"github.com/getpup/pupsourcing-gather/store"
)

// Store is a SQL implementation of PartialStore.
//
// Each report runs in its own transaction that first locks the request row
// (SELECT ... FOR UPDATE, or the database write lock on SQLite), so reports for
// the same request serialize while unrelated requests proceed in parallel.
type Store struct {
	db             *sql.DB
	dialect        Dialect
	requestsTable  string
	partialsTable  string
	summariesTable string
	now            func() time.Time
}

// Compile-time check that Store implements PartialStore.
var _ store.PartialStore = (*Store)(nil)

// New creates a new SQL store with default table names.
func New(db *sql.DB, dialect Dialect) *Store {
	return NewWithConfig(db, dialect, DefaultTableConfig())
}

// NewWithConfig creates a new SQL store with custom table names.
// For SQLite the pool is limited to one connection; SQLite serializes writers
// and an in-memory database exists per connection.
func NewWithConfig(db *sql.DB, dialect Dialect, config TableConfig) *Store {
	if dialect == SQLite && db != nil {
		db.SetMaxOpenConns(1)
	}

	return &Store{
		db:             db,
		dialect:        dialect,
		requestsTable:  config.RequestsTable,
		partialsTable:  config.PartialsTable,
		summariesTable: config.SummariesTable,
		now:            time.Now,
	}
}

// Migrate creates the gatherer tables if they do not exist.
func (s *Store) Migrate(ctx context.Context) error {
	config := TableConfig{
		RequestsTable:  s.requestsTable,
		PartialsTable:  s.partialsTable,
		SummariesTable: s.summariesTable,
	}
	for _, stmt := range MigrationStatements(s.dialect, config) {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to migrate: %w", err)
		}
	}
	return nil
}

// Summaries returns a ResultSink backed by the summaries table of this store.
func (s *Store) Summaries() *Summaries {
	return &Summaries{
		db:      s.db,
		dialect: s.dialect,
		table:   s.summariesTable,
	}
}

// Register creates a waiting request.
// Returns store.ErrRequestExists if the id is already registered.
func (s *Store) Register(ctx context.Context, req gather.CollectionRequest) error {
	if req.ExpectedPartials < 1 {
		return store.ErrInvalidExpected
	}
	if req.CreatedAt.IsZero() {
		req.CreatedAt = s.now()
	}

	query := s.dialect.rebind(s.dialect.insertIgnore(s.requestsTable,
		"id", "topic", "expected", "received", "state", "created_at", "completed_at"))

	result, err := s.db.ExecContext(ctx, query,
		string(req.ID),
		req.Topic,
		req.ExpectedPartials,
		0,
		string(gather.RequestStateWaiting),
		req.CreatedAt.UnixNano(),
		int64(0),
	)
	if err != nil {
		return unavailable("failed to register request", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return unavailable("failed to check rows affected", err)
	}
	if rowsAffected == 0 {
		return store.ErrRequestExists
	}

	return nil
}

// RecordAndCheck stores a partial and reports whether it completed the request.
func (s *Store) RecordAndCheck(ctx context.Context, partial gather.PartialResult) (gather.RecordResult, error) {
	items, err := encodeItems(partial.Items)
	if err != nil {
		return gather.RecordResult{}, err
	}
	arrivedAt := partial.ArrivedAt
	if arrivedAt.IsZero() {
		arrivedAt = s.now()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return gather.RecordResult{}, unavailable("failed to begin transaction", err)
	}
	defer func() { _ = tx.Rollback() }()

	var (
		topic    string
		expected int
		received int
		state    string
	)
	query := s.dialect.rebind(fmt.Sprintf(`
		SELECT topic, expected, received, state
		FROM %s
		WHERE id = ?%s
	`, s.requestsTable, s.dialect.forUpdate()))

	err = tx.QueryRowContext(ctx, query, string(partial.RequestID)).Scan(&topic, &expected, &received, &state)
	if errors.Is(err, sql.ErrNoRows) {
		return gather.RecordResult{}, gather.ErrUnknownRequest
	}
	if err != nil {
		return gather.RecordResult{}, unavailable("failed to lock request", err)
	}

	if partial.CollectorIndex < 0 || partial.CollectorIndex >= expected {
		return gather.RecordResult{}, gather.ErrInvalidCollectorIndex
	}
	if gather.RequestState(state) == gather.RequestStateComplete {
		return gather.RecordResult{Outcome: gather.OutcomeLate}, nil
	}

	insert := s.dialect.rebind(s.dialect.insertIgnore(s.partialsTable,
		"request_id", "collector_index", "items", "arrived_at"))
	result, err := tx.ExecContext(ctx, insert, string(partial.RequestID), partial.CollectorIndex, items, arrivedAt.UnixNano())
	if err != nil {
		return gather.RecordResult{}, unavailable("failed to insert partial", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return gather.RecordResult{}, unavailable("failed to check rows affected", err)
	}
	if rowsAffected == 0 {
		return gather.RecordResult{Outcome: gather.OutcomeDuplicate}, nil
	}

	received++
	if received < expected {
		update := s.dialect.rebind(fmt.Sprintf(`UPDATE %s SET received = ? WHERE id = ?`, s.requestsTable))
		if _, err := tx.ExecContext(ctx, update, received, string(partial.RequestID)); err != nil {
			return gather.RecordResult{}, unavailable("failed to update request", err)
		}
		if err := tx.Commit(); err != nil {
			return gather.RecordResult{}, unavailable("failed to commit partial", err)
		}
		return gather.RecordResult{Outcome: gather.OutcomeAccepted}, nil
	}

	complete := s.dialect.rebind(fmt.Sprintf(`
		UPDATE %s
		SET received = ?, state = ?, completed_at = ?
		WHERE id = ?
	`, s.requestsTable))
	if _, err := tx.ExecContext(ctx, complete, received, string(gather.RequestStateComplete), s.now().UnixNano(), string(partial.RequestID)); err != nil {
		return gather.RecordResult{}, unavailable("failed to complete request", err)
	}

	partials, err := s.loadPartials(ctx, tx, partial.RequestID, expected)
	if err != nil {
		return gather.RecordResult{}, err
	}

	if err := tx.Commit(); err != nil {
		return gather.RecordResult{}, unavailable("failed to commit completion", err)
	}

	return gather.RecordResult{
		Outcome:   gather.OutcomeCompleted,
		Aggregate: store.Aggregate(partial.RequestID, topic, partials),
	}, nil
}

func (s *Store) loadPartials(ctx context.Context, tx *sql.Tx, id gather.RequestID, expected int) ([][]int, error) {
	query := s.dialect.rebind(fmt.Sprintf(`
		SELECT collector_index, items
		FROM %s
		WHERE request_id = ?
		ORDER BY collector_index
	`, s.partialsTable))

	rows, err := tx.QueryContext(ctx, query, string(id))
	if err != nil {
		return nil, unavailable("failed to load partials", err)
	}
	defer rows.Close()

	partials := make([][]int, expected)
	for rows.Next() {
		var (
			index int
			raw   string
		)
		if err := rows.Scan(&index, &raw); err != nil {
			return nil, unavailable("failed to scan partial", err)
		}
		if index < 0 || index >= expected {
			continue
		}
		items, err := decodeItems(raw)
		if err != nil {
			return nil, err
		}
		partials[index] = items
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("failed to iterate partials", err)
	}

	return partials, nil
}

// GetRequest returns a request by id.
// Returns gather.ErrUnknownRequest if the request does not exist.
func (s *Store) GetRequest(ctx context.Context, id gather.RequestID) (gather.CollectionRequest, error) {
	query := s.dialect.rebind(fmt.Sprintf(`
		SELECT id, topic, expected, received, state, created_at, completed_at
		FROM %s
		WHERE id = ?
	`, s.requestsTable))

	req, err := scanRequest(s.db.QueryRowContext(ctx, query, string(id)))
	if errors.Is(err, sql.ErrNoRows) {
		return gather.CollectionRequest{}, gather.ErrUnknownRequest
	}
	if err != nil {
		return gather.CollectionRequest{}, unavailable("failed to get request", err)
	}

	return req, nil
}

// WaitingRequests returns waiting requests created more than olderThan ago, oldest first.
func (s *Store) WaitingRequests(ctx context.Context, olderThan time.Duration) ([]gather.CollectionRequest, error) {
	query := s.dialect.rebind(fmt.Sprintf(`
		SELECT id, topic, expected, received, state, created_at, completed_at
		FROM %s
		WHERE state = ? AND created_at < ?
		ORDER BY created_at ASC
	`, s.requestsTable))

	cutoff := s.now().Add(-olderThan).UnixNano()
	rows, err := s.db.QueryContext(ctx, query, string(gather.RequestStateWaiting), cutoff)
	if err != nil {
		return nil, unavailable("failed to query waiting requests", err)
	}
	defer rows.Close()

	requests := []gather.CollectionRequest{}
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, unavailable("failed to scan request", err)
		}
		requests = append(requests, req)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("failed to iterate requests", err)
	}

	return requests, nil
}

// DeleteRequest removes a request and its partials.
// Returns gather.ErrUnknownRequest if the request does not exist.
func (s *Store) DeleteRequest(ctx context.Context, id gather.RequestID) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return unavailable("failed to begin transaction", err)
	}
	defer func() { _ = tx.Rollback() }()

	result, err := tx.ExecContext(ctx, s.dialect.rebind(fmt.Sprintf(`DELETE FROM %s WHERE id = ?`, s.requestsTable)), string(id))
	if err != nil {
		return unavailable("failed to delete request", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return unavailable("failed to check rows affected", err)
	}
	if rowsAffected == 0 {
		return gather.ErrUnknownRequest
	}

	if _, err := tx.ExecContext(ctx, s.dialect.rebind(fmt.Sprintf(`DELETE FROM %s WHERE request_id = ?`, s.partialsTable)), string(id)); err != nil {
		return unavailable("failed to delete partials", err)
	}

	if err := tx.Commit(); err != nil {
		return unavailable("failed to commit delete", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRequest(row rowScanner) (gather.CollectionRequest, error) {
	var (
		req         gather.CollectionRequest
		id          string
		state       string
		createdAt   int64
		completedAt int64
	)
	if err := row.Scan(&id, &req.Topic, &req.ExpectedPartials, &req.ReceivedPartials, &state, &createdAt, &completedAt); err != nil {
		return gather.CollectionRequest{}, err
	}

	req.ID = gather.RequestID(id)
	req.State = gather.RequestState(state)
	req.CreatedAt = time.Unix(0, createdAt)
	if completedAt != 0 {
		req.CompletedAt = time.Unix(0, completedAt)
	}
	return req, nil
}

func encodeItems(items []int) (string, error) {
	if items == nil {
		items = []int{}
	}
	data, err := sonic.Marshal(items)
	if err != nil {
		return "", fmt.Errorf("failed to encode items: %w", err)
	}
	return string(data), nil
}

func decodeItems(raw string) ([]int, error) {
	var items []int
	if err := sonic.Unmarshal([]byte(raw), &items); err != nil {
		return nil, fmt.Errorf("failed to decode items: %w", err)
	}
	return items, nil
}

func unavailable(msg string, err error) error {
	return fmt.Errorf("%s: %w: %w", msg, gather.ErrStoreUnavailable, err)
}
