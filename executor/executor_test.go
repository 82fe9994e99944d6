package executor

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/getpup/pupsourcing-gather/metrics"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockLogger captures log calls for testing
type mockLogger struct {
	mu    sync.Mutex
	calls []logCall
}

type logCall struct {
	level   string
	message string
	args    []interface{}
}

func newMockLogger() *mockLogger {
	return &mockLogger{
		calls: make([]logCall, 0),
	}
}

func (m *mockLogger) Debug(ctx context.Context, msg string, args ...interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, logCall{level: "debug", message: msg, args: args})
}

func (m *mockLogger) Info(ctx context.Context, msg string, args ...interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, logCall{level: "info", message: msg, args: args})
}

func (m *mockLogger) Error(ctx context.Context, msg string, args ...interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, logCall{level: "error", message: msg, args: args})
}

func (m *mockLogger) messages(level string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	var msgs []string
	for _, c := range m.calls {
		if c.level == level {
			msgs = append(msgs, c.message)
		}
	}
	return msgs
}

func TestNew_AppliesDefaults(t *testing.T) {
	p, err := New(Config{})
	require.NoError(t, err)
	defer p.Close()

	assert.Equal(t, 64, p.config.Size)
	assert.Equal(t, 10*time.Second, p.config.ReleaseTimeout)
	assert.Equal(t, 64, p.pool.Cap())
}

func TestNew_PreservesConfig(t *testing.T) {
	logger := newMockLogger()
	collector := metrics.NewCollector("executor-test-config")

	p, err := New(Config{Size: 4, ReleaseTimeout: time.Second, Logger: logger, Metrics: collector})
	require.NoError(t, err)
	defer p.Close()

	assert.Equal(t, 4, p.config.Size)
	assert.Equal(t, time.Second, p.ReleaseTimeout())
	assert.Equal(t, logger, p.config.Logger)
	assert.Equal(t, collector, p.config.Metrics)
}

func TestPool_RunsEveryJob(t *testing.T) {
	p, err := New(Config{Size: 3})
	require.NoError(t, err)
	defer p.Close()

	var mu sync.Mutex
	seen := make(map[int]int)

	for i := 0; i < 20; i++ {
		err := p.Submit(context.Background(), Job{RequestID: "req-1", CollectorIndex: i}, func(ctx context.Context, job Job) error {
			mu.Lock()
			defer mu.Unlock()
			seen[job.CollectorIndex]++
			return nil
		})
		require.NoError(t, err)
	}

	p.Wait()

	assert.Len(t, seen, 20)
	for i := 0; i < 20; i++ {
		assert.Equal(t, 1, seen[i])
	}
}

func TestPool_SetsFirstAttempt(t *testing.T) {
	p, err := New(Config{Size: 1})
	require.NoError(t, err)
	defer p.Close()

	var attempt int32
	require.NoError(t, p.Submit(context.Background(), Job{}, func(ctx context.Context, job Job) error {
		atomic.StoreInt32(&attempt, int32(job.Attempt))
		return nil
	}))
	p.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&attempt))
}

func TestPool_DetachesFromCallerCancellation(t *testing.T) {
	p, err := New(Config{Size: 1})
	require.NoError(t, err)
	defer p.Close()

	ctx, cancel := context.WithCancel(context.Background())
	release := make(chan struct{})
	var jobErr error

	require.NoError(t, p.Submit(ctx, Job{}, func(ctx context.Context, job Job) error {
		<-release
		jobErr = ctx.Err()
		return nil
	}))

	cancel()
	close(release)
	p.Wait()

	assert.NoError(t, jobErr)
}

func TestPool_LogsAndCountsHandlerErrors(t *testing.T) {
	logger := newMockLogger()
	collector := metrics.NewCollector("executor-test-errors")

	p, err := New(Config{Size: 2, Logger: logger, Metrics: collector})
	require.NoError(t, err)
	defer p.Close()

	before := testutil.ToFloat64(metrics.JobErrorsTotal.WithLabelValues("executor-test-errors"))

	var calls int32
	require.NoError(t, p.Submit(context.Background(), Job{RequestID: "req-1", CollectorIndex: 2}, func(ctx context.Context, job Job) error {
		atomic.AddInt32(&calls, 1)
		return errors.New("collector failed")
	}))
	p.Wait()

	after := testutil.ToFloat64(metrics.JobErrorsTotal.WithLabelValues("executor-test-errors"))
	assert.Equal(t, before+1, after)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls), "failed jobs are not retried")
	assert.Contains(t, logger.messages("error"), "collector job failed")
}

func TestPool_RecoversPanics(t *testing.T) {
	logger := newMockLogger()

	p, err := New(Config{Size: 1, Logger: logger})
	require.NoError(t, err)
	defer p.Close()

	require.NoError(t, p.Submit(context.Background(), Job{}, func(ctx context.Context, job Job) error {
		panic("boom")
	}))
	p.Wait()

	var ran bool
	require.NoError(t, p.Submit(context.Background(), Job{}, func(ctx context.Context, job Job) error {
		ran = true
		return nil
	}))
	p.Wait()

	assert.True(t, ran)
	assert.Eventually(t, func() bool {
		for _, msg := range logger.messages("error") {
			if msg == "collector job panicked" {
				return true
			}
		}
		return false
	}, time.Second, 10*time.Millisecond)
}

func TestPool_SubmitAfterCloseFails(t *testing.T) {
	p, err := New(Config{Size: 1})
	require.NoError(t, err)
	require.NoError(t, p.Close())

	err = p.Submit(context.Background(), Job{RequestID: "req-1", CollectorIndex: 1}, func(ctx context.Context, job Job) error {
		return nil
	})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "collector 1")
}
