package sink

import (
	"context"
	"sync"

	"github.com/getpup/pupsourcing-gather"
)

// MockResultSink is a configurable mock implementation of ResultSink.
// Without PutFunc and GetFunc it behaves as an unbounded write-once map.
type MockResultSink struct {
	mu        sync.Mutex
	summaries map[gather.RequestID]gather.ProcessingSummary

	PutFunc func(ctx context.Context, summary gather.ProcessingSummary) error
	GetFunc func(ctx context.Context, id gather.RequestID) (gather.ProcessingSummary, error)

	PutCalls []gather.ProcessingSummary
	GetCalls []gather.RequestID
}

// NewMockResultSink creates a new mock sink.
func NewMockResultSink() *MockResultSink {
	return &MockResultSink{
		summaries: make(map[gather.RequestID]gather.ProcessingSummary),
	}
}

// Put implements ResultSink.
func (m *MockResultSink) Put(ctx context.Context, summary gather.ProcessingSummary) error {
	m.mu.Lock()
	m.PutCalls = append(m.PutCalls, summary)
	m.mu.Unlock()

	if m.PutFunc != nil {
		return m.PutFunc(ctx, summary)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.summaries[summary.RequestID]; !ok {
		m.summaries[summary.RequestID] = summary
	}
	return nil
}

// Get implements ResultSink.
func (m *MockResultSink) Get(ctx context.Context, id gather.RequestID) (gather.ProcessingSummary, error) {
	m.mu.Lock()
	m.GetCalls = append(m.GetCalls, id)
	m.mu.Unlock()

	if m.GetFunc != nil {
		return m.GetFunc(ctx, id)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	summary, ok := m.summaries[id]
	if !ok {
		return gather.ProcessingSummary{}, ErrNotFound
	}
	return summary, nil
}

// PutCount returns the number of Put calls, safe for concurrent use.
func (m *MockResultSink) PutCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.PutCalls)
}

// Reset clears all call tracking data and stored summaries.
func (m *MockResultSink) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.summaries = make(map[gather.RequestID]gather.ProcessingSummary)
	m.PutCalls = nil
	m.GetCalls = nil
}
