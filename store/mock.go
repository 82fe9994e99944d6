package store

import (
	"context"
	"sync"
	"time"

	"github.com/getpup/pupsourcing-gather"
)

// MockPartialStore is a configurable mock implementation of PartialStore
// for use in tests. It allows setting up expected return values, tracking method
// calls, and injecting errors for testing error paths.
type MockPartialStore struct {
	mu sync.RWMutex

	// RegisterFunc is called by Register if set.
	RegisterFunc func(ctx context.Context, req gather.CollectionRequest) error

	// RecordAndCheckFunc is called by RecordAndCheck if set.
	RecordAndCheckFunc func(ctx context.Context, partial gather.PartialResult) (gather.RecordResult, error)

	// GetRequestFunc is called by GetRequest if set.
	GetRequestFunc func(ctx context.Context, id gather.RequestID) (gather.CollectionRequest, error)

	// WaitingRequestsFunc is called by WaitingRequests if set.
	WaitingRequestsFunc func(ctx context.Context, olderThan time.Duration) ([]gather.CollectionRequest, error)

	// DeleteRequestFunc is called by DeleteRequest if set.
	DeleteRequestFunc func(ctx context.Context, id gather.RequestID) error

	// Call tracking
	RegisterCalls        []RegisterCall
	RecordAndCheckCalls  []RecordAndCheckCall
	GetRequestCalls      []GetRequestCall
	WaitingRequestsCalls []WaitingRequestsCall
	DeleteRequestCalls   []DeleteRequestCall
}

// Call tracking structs
type RegisterCall struct {
	Request gather.CollectionRequest
}

type RecordAndCheckCall struct {
	Partial gather.PartialResult
}

type GetRequestCall struct {
	RequestID gather.RequestID
}

type WaitingRequestsCall struct {
	OlderThan time.Duration
}

type DeleteRequestCall struct {
	RequestID gather.RequestID
}

// NewMockPartialStore creates a new mock partial store.
func NewMockPartialStore() *MockPartialStore {
	return &MockPartialStore{}
}

// Register implements PartialStore.
func (m *MockPartialStore) Register(ctx context.Context, req gather.CollectionRequest) error {
	m.mu.Lock()
	m.RegisterCalls = append(m.RegisterCalls, RegisterCall{Request: req})
	m.mu.Unlock()

	if m.RegisterFunc != nil {
		return m.RegisterFunc(ctx, req)
	}

	return nil
}

// RecordAndCheck implements PartialStore.
func (m *MockPartialStore) RecordAndCheck(ctx context.Context, partial gather.PartialResult) (gather.RecordResult, error) {
	m.mu.Lock()
	m.RecordAndCheckCalls = append(m.RecordAndCheckCalls, RecordAndCheckCall{Partial: partial})
	m.mu.Unlock()

	if m.RecordAndCheckFunc != nil {
		return m.RecordAndCheckFunc(ctx, partial)
	}

	return gather.RecordResult{Outcome: gather.OutcomeAccepted}, nil
}

// GetRequest implements PartialStore.
func (m *MockPartialStore) GetRequest(ctx context.Context, id gather.RequestID) (gather.CollectionRequest, error) {
	m.mu.Lock()
	m.GetRequestCalls = append(m.GetRequestCalls, GetRequestCall{RequestID: id})
	m.mu.Unlock()

	if m.GetRequestFunc != nil {
		return m.GetRequestFunc(ctx, id)
	}

	return gather.CollectionRequest{}, gather.ErrUnknownRequest
}

// WaitingRequests implements PartialStore.
func (m *MockPartialStore) WaitingRequests(ctx context.Context, olderThan time.Duration) ([]gather.CollectionRequest, error) {
	m.mu.Lock()
	m.WaitingRequestsCalls = append(m.WaitingRequestsCalls, WaitingRequestsCall{OlderThan: olderThan})
	m.mu.Unlock()

	if m.WaitingRequestsFunc != nil {
		return m.WaitingRequestsFunc(ctx, olderThan)
	}

	return []gather.CollectionRequest{}, nil
}

// DeleteRequest implements PartialStore.
func (m *MockPartialStore) DeleteRequest(ctx context.Context, id gather.RequestID) error {
	m.mu.Lock()
	m.DeleteRequestCalls = append(m.DeleteRequestCalls, DeleteRequestCall{RequestID: id})
	m.mu.Unlock()

	if m.DeleteRequestFunc != nil {
		return m.DeleteRequestFunc(ctx, id)
	}

	return nil
}

// CallCounts returns the number of calls per method, safe for concurrent use.
func (m *MockPartialStore) CallCounts() map[string]int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return map[string]int{
		"Register":        len(m.RegisterCalls),
		"RecordAndCheck":  len(m.RecordAndCheckCalls),
		"GetRequest":      len(m.GetRequestCalls),
		"WaitingRequests": len(m.WaitingRequestsCalls),
		"DeleteRequest":   len(m.DeleteRequestCalls),
	}
}

// Reset clears all call tracking data.
func (m *MockPartialStore) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.RegisterCalls = nil
	m.RecordAndCheckCalls = nil
	m.GetRequestCalls = nil
	m.WaitingRequestsCalls = nil
	m.DeleteRequestCalls = nil
}
