package gather

import (
	"context"
	"database/sql"
	"testing"
	"time"

	rootpkg "github.com/getpup/pupsourcing-gather"
	"github.com/getpup/pupsourcing-gather/collector"
	"github.com/getpup/pupsourcing-gather/executor"
	"github.com/getpup/pupsourcing-gather/pipeline"
	"github.com/getpup/pupsourcing-gather/sink"
	"github.com/getpup/pupsourcing-gather/store/sqlstore"
	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var examplePartials = collector.Static{0: {1, 2}, 1: {3}, 2: {4, 5}}

// waitForResult polls Result until the summary is ready.
func waitForResult(t *testing.T, g *Gatherer, id RequestID) ProcessingSummary {
	t.Helper()

	var summary ProcessingSummary
	require.Eventually(t, func() bool {
		var err error
		summary, err = g.Result(context.Background(), id)
		return err == nil
	}, 2*time.Second, 5*time.Millisecond)
	return summary
}

func TestNew_MissingCollector(t *testing.T) {
	g, err := New()

	assert.Error(t, err)
	assert.Nil(t, g)
	assert.Contains(t, err.Error(), "collector is required")
}

func TestNew_InvalidCollectors(t *testing.T) {
	g, err := New(WithCollector(examplePartials), WithCollectors(0))

	assert.Error(t, err)
	assert.Nil(t, g)
	assert.Contains(t, err.Error(), "collectors must be at least 1")
}

func TestNew_InvalidRetention(t *testing.T) {
	_, err := New(WithCollector(examplePartials), WithRetention(0))

	assert.ErrorContains(t, err, "retention must be at least 1")
}

func TestNew_Defaults(t *testing.T) {
	g, err := New(WithCollector(examplePartials), WithName("facade-defaults"))
	require.NoError(t, err)
	defer g.Close()

	assert.NotNil(t, g.Store())
	assert.Nil(t, g.Watchdog())
	require.NotNil(t, g.Pool())
	assert.Equal(t, 10*time.Second, g.Pool().ReleaseTimeout())
	assert.NoError(t, g.Run(context.Background()), "Run returns at once without stall detection")
}

func TestNew_ReleaseTimeout(t *testing.T) {
	g, err := New(
		WithCollector(examplePartials),
		WithName("facade-release"),
		WithReleaseTimeout(250*time.Millisecond),
	)
	require.NoError(t, err)
	defer g.Close()

	assert.Equal(t, 250*time.Millisecond, g.Pool().ReleaseTimeout())
}

func TestGatherer_EndToEnd(t *testing.T) {
	g, err := New(
		WithCollector(examplePartials),
		WithName("facade-e2e"),
		WithPoolSize(4),
	)
	require.NoError(t, err)
	defer g.Close()

	ctx := context.Background()
	id, err := g.Submit(ctx, "weather")
	require.NoError(t, err)

	summary := waitForResult(t, g, id)
	assert.Equal(t, id, summary.RequestID)
	assert.Equal(t, "weather", summary.Topic)
	assert.Equal(t, 5, summary.ItemCount)

	outcome, err := g.ReportPartial(ctx, id, 1, []int{99})
	require.NoError(t, err)
	assert.Equal(t, rootpkg.OutcomeLate, outcome)
}

func TestGatherer_InvalidTopic(t *testing.T) {
	g, err := New(WithCollector(examplePartials), WithName("facade-topic"))
	require.NoError(t, err)
	defer g.Close()

	_, err = g.Submit(context.Background(), "")
	assert.ErrorIs(t, err, rootpkg.ErrInvalidTopic)
}

func TestGatherer_CleanersRunInOrder(t *testing.T) {
	g, err := New(
		WithCollector(examplePartials),
		WithName("facade-cleaners"),
		WithCleaners(
			pipeline.Filter{Label: "above-one", Keep: func(v int) bool { return v > 1 }},
			pipeline.Filter{Label: "odd", Keep: func(v int) bool { return v%2 == 1 }},
		),
	)
	require.NoError(t, err)
	defer g.Close()

	id, err := g.Submit(context.Background(), "weather")
	require.NoError(t, err)

	// [1,2,3,4,5] -> [2,3,4,5] -> [3,5]
	summary := waitForResult(t, g, id)
	assert.Equal(t, 2, summary.ItemCount)
}

func TestGatherer_EvictionDeletesRequest(t *testing.T) {
	g, err := New(
		WithCollector(examplePartials),
		WithName("facade-retention"),
		WithRetention(1),
	)
	require.NoError(t, err)
	defer g.Close()

	ctx := context.Background()

	first, err := g.Submit(ctx, "weather")
	require.NoError(t, err)
	waitForResult(t, g, first)

	second, err := g.Submit(ctx, "traffic")
	require.NoError(t, err)
	waitForResult(t, g, second)

	_, err = g.Result(ctx, first)
	assert.ErrorIs(t, err, rootpkg.ErrNotFound)

	_, err = g.Store().GetRequest(ctx, first)
	assert.ErrorIs(t, err, rootpkg.ErrUnknownRequest)

	_, err = g.ReportPartial(ctx, first, 0, []int{1})
	assert.ErrorIs(t, err, rootpkg.ErrUnknownRequest)
}

func TestGatherer_CustomExecutorAndSink(t *testing.T) {
	exec := executor.NewMockExecutor()
	s := sink.NewMockResultSink()

	g, err := New(
		WithCollector(examplePartials),
		WithName("facade-custom"),
		WithExecutor(exec),
		WithSink(s),
		WithCollectors(2),
		WithIDGenerator(func() RequestID { return "fixed-id" }),
		WithMetricsEnabled(false),
	)
	require.NoError(t, err)
	defer g.Close()

	ctx := context.Background()
	id, err := g.Submit(ctx, "weather")
	require.NoError(t, err)
	assert.Equal(t, RequestID("fixed-id"), id)
	require.Len(t, exec.Calls(), 2)

	_, err = g.Result(ctx, id)
	assert.ErrorIs(t, err, rootpkg.ErrNotReady)

	require.NoError(t, exec.RunInOrder(ctx, 1, 0))

	summary, err := g.Result(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 3, summary.ItemCount)
	assert.Equal(t, 1, s.PutCount())
	g.Wait()
}

func TestGatherer_StallDetection(t *testing.T) {
	exec := executor.NewMockExecutor()
	g, err := New(
		WithCollector(examplePartials),
		WithName("facade-stall"),
		WithExecutor(exec),
		WithStallDetection(10*time.Millisecond, time.Nanosecond),
	)
	require.NoError(t, err)

	ctx := context.Background()
	id, err := g.Submit(ctx, "weather")
	require.NoError(t, err)

	require.NotNil(t, g.Watchdog())

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- g.Run(runCtx) }()

	require.Eventually(t, func() bool {
		stalled := g.Watchdog().Stalled()
		return len(stalled) == 1 && stalled[0].ID == id
	}, time.Second, 5*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
}

func TestRunMigrations_SQLite(t *testing.T) {
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	defer db.Close()

	ctx := context.Background()
	require.NoError(t, RunMigrations(ctx, db, sqlstore.SQLite))

	// Migrations are idempotent.
	require.NoError(t, RunMigrations(ctx, db, sqlstore.SQLite))

	var count int
	err = db.QueryRowContext(ctx, "SELECT COUNT(*) FROM gather_requests").Scan(&count)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestRunMigrations_ClosedDatabase(t *testing.T) {
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	require.NoError(t, db.Close())

	err = RunMigrations(context.Background(), db, sqlstore.SQLite)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to execute migrations")
}

func TestGatherer_SQLStore(t *testing.T) {
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	defer db.Close()

	st := sqlstore.New(db, sqlstore.SQLite)
	require.NoError(t, st.Migrate(context.Background()))

	g, err := New(
		WithCollector(examplePartials),
		WithName("facade-sql"),
		WithStore(st),
		WithSink(st.Summaries()),
	)
	require.NoError(t, err)
	defer g.Close()

	id, err := g.Submit(context.Background(), "weather")
	require.NoError(t, err)

	summary := waitForResult(t, g, id)
	assert.Equal(t, 5, summary.ItemCount)
}
