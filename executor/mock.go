package executor

import (
	"context"
	"fmt"
	"sync"
)

// MockExecutor is a mock implementation of Executor for testing.
// Submitted jobs are captured and never run until the test replays them,
// in any order and any number of times.
type MockExecutor struct {
	mu          sync.Mutex
	SubmitFunc  func(ctx context.Context, job Job, handler Handler) error
	SubmitCalls []SubmitCall
}

// SubmitCall records the parameters of a single Submit call.
type SubmitCall struct {
	Job     Job
	Handler Handler
}

// NewMockExecutor creates a new MockExecutor with an empty call history.
func NewMockExecutor() *MockExecutor {
	return &MockExecutor{
		SubmitCalls: make([]SubmitCall, 0),
	}
}

// Submit implements the Executor interface.
// It records the call, then:
// - If SubmitFunc is set, calls and returns it
// - Otherwise, returns nil without running the job
func (m *MockExecutor) Submit(ctx context.Context, job Job, handler Handler) error {
	if job.Attempt == 0 {
		job.Attempt = 1
	}

	m.mu.Lock()
	m.SubmitCalls = append(m.SubmitCalls, SubmitCall{Job: job, Handler: handler})
	m.mu.Unlock()

	if m.SubmitFunc != nil {
		return m.SubmitFunc(ctx, job, handler)
	}

	return nil
}

// Calls returns a copy of the recorded Submit calls.
func (m *MockExecutor) Calls() []SubmitCall {
	m.mu.Lock()
	defer m.mu.Unlock()

	calls := make([]SubmitCall, len(m.SubmitCalls))
	copy(calls, m.SubmitCalls)
	return calls
}

// RunAll runs every captured job in submission order and returns the handler errors.
func (m *MockExecutor) RunAll(ctx context.Context) []error {
	calls := m.Calls()

	var errs []error
	for _, call := range calls {
		if err := call.Handler(ctx, call.Job); err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}

// RunInOrder runs the captured jobs at the given call positions, in that order.
// Positions may repeat to simulate redelivery.
func (m *MockExecutor) RunInOrder(ctx context.Context, order ...int) error {
	calls := m.Calls()

	for _, i := range order {
		if i < 0 || i >= len(calls) {
			return fmt.Errorf("no submitted job at position %d", i)
		}
		if err := calls[i].Handler(ctx, calls[i].Job); err != nil {
			return err
		}
	}
	return nil
}

// Redeliver runs the captured job at position i again with its attempt incremented.
func (m *MockExecutor) Redeliver(ctx context.Context, i int) error {
	calls := m.Calls()
	if i < 0 || i >= len(calls) {
		return fmt.Errorf("no submitted job at position %d", i)
	}

	job := calls[i].Job
	job.Attempt++
	return calls[i].Handler(ctx, job)
}

// Reset clears the call history.
func (m *MockExecutor) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.SubmitCalls = make([]SubmitCall, 0)
}
