package memory

import (
	"context"
	"sync"
	"time"

	"github.com/getpup/pupsourcing-gather"
	"github.com/getpup/pupsourcing-gather/store"
)

// Store is an in-memory implementation of PartialStore.
// The request map is guarded by a sync.RWMutex that is only held for lookups and
// membership changes; the add-and-check step of each request runs under that
// request's own mutex, so unrelated requests never wait on each other.
type Store struct {
	mu       sync.RWMutex
	requests map[gather.RequestID]*entry
	now      func() time.Time
}

type entry struct {
	mu       sync.Mutex
	request  gather.CollectionRequest
	partials [][]int // collector index -> items, nil until reported
	seen     []bool
	deleted  bool
}

// New creates a new in-memory store.
func New() *Store {
	return &Store{
		requests: make(map[gather.RequestID]*entry),
		now:      time.Now,
	}
}

// Register creates a waiting request.
// Returns store.ErrRequestExists if the id is already registered.
func (s *Store) Register(ctx context.Context, req gather.CollectionRequest) error {
	if req.ExpectedPartials < 1 {
		return store.ErrInvalidExpected
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.requests[req.ID]; ok {
		return store.ErrRequestExists
	}

	req.State = gather.RequestStateWaiting
	req.ReceivedPartials = 0
	req.CompletedAt = time.Time{}
	if req.CreatedAt.IsZero() {
		req.CreatedAt = s.now()
	}

	s.requests[req.ID] = &entry{
		request:  req,
		partials: make([][]int, req.ExpectedPartials),
		seen:     make([]bool, req.ExpectedPartials),
	}

	return nil
}

// RecordAndCheck stores a partial and reports whether it completed the request.
func (s *Store) RecordAndCheck(ctx context.Context, partial gather.PartialResult) (gather.RecordResult, error) {
	e, ok := s.lookup(partial.RequestID)
	if !ok {
		return gather.RecordResult{}, gather.ErrUnknownRequest
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.deleted {
		return gather.RecordResult{}, gather.ErrUnknownRequest
	}
	if partial.CollectorIndex < 0 || partial.CollectorIndex >= e.request.ExpectedPartials {
		return gather.RecordResult{}, gather.ErrInvalidCollectorIndex
	}
	if e.request.State == gather.RequestStateComplete {
		return gather.RecordResult{Outcome: gather.OutcomeLate}, nil
	}
	if e.seen[partial.CollectorIndex] {
		return gather.RecordResult{Outcome: gather.OutcomeDuplicate}, nil
	}

	items := make([]int, len(partial.Items))
	copy(items, partial.Items)
	e.partials[partial.CollectorIndex] = items
	e.seen[partial.CollectorIndex] = true
	e.request.ReceivedPartials++

	if e.request.ReceivedPartials < e.request.ExpectedPartials {
		return gather.RecordResult{Outcome: gather.OutcomeAccepted}, nil
	}

	e.request.State = gather.RequestStateComplete
	e.request.CompletedAt = s.now()

	return gather.RecordResult{
		Outcome:   gather.OutcomeCompleted,
		Aggregate: store.Aggregate(e.request.ID, e.request.Topic, e.partials),
	}, nil
}

// GetRequest returns a request by id.
// Returns gather.ErrUnknownRequest if the request does not exist.
func (s *Store) GetRequest(ctx context.Context, id gather.RequestID) (gather.CollectionRequest, error) {
	e, ok := s.lookup(id)
	if !ok {
		return gather.CollectionRequest{}, gather.ErrUnknownRequest
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.deleted {
		return gather.CollectionRequest{}, gather.ErrUnknownRequest
	}

	return e.request, nil
}

// WaitingRequests returns waiting requests created more than olderThan ago.
func (s *Store) WaitingRequests(ctx context.Context, olderThan time.Duration) ([]gather.CollectionRequest, error) {
	s.mu.RLock()
	entries := make([]*entry, 0, len(s.requests))
	for _, e := range s.requests {
		entries = append(entries, e)
	}
	s.mu.RUnlock()

	cutoff := s.now().Add(-olderThan)
	requests := []gather.CollectionRequest{}
	for _, e := range entries {
		e.mu.Lock()
		req := e.request
		deleted := e.deleted
		e.mu.Unlock()

		if deleted || req.State != gather.RequestStateWaiting {
			continue
		}
		if req.CreatedAt.Before(cutoff) {
			requests = append(requests, req)
		}
	}

	return requests, nil
}

// DeleteRequest removes a request and its partials.
// Returns gather.ErrUnknownRequest if the request does not exist.
func (s *Store) DeleteRequest(ctx context.Context, id gather.RequestID) error {
	s.mu.Lock()
	e, ok := s.requests[id]
	if ok {
		delete(s.requests, id)
	}
	s.mu.Unlock()

	if !ok {
		return gather.ErrUnknownRequest
	}

	e.mu.Lock()
	e.deleted = true
	e.partials = nil
	e.mu.Unlock()

	return nil
}

// Len returns the number of registered requests.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.requests)
}

func (s *Store) lookup(id gather.RequestID) (*entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.requests[id]
	return e, ok
}
