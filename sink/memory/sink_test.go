package memory

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/getpup/pupsourcing-gather"
	"github.com/getpup/pupsourcing-gather/sink"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func summary(id string, count int) gather.ProcessingSummary {
	return gather.ProcessingSummary{
		RequestID:   gather.RequestID(id),
		Topic:       "weather",
		ItemCount:   count,
		ProcessedAt: time.Now(),
	}
}

func TestNew_RejectsNegativeSize(t *testing.T) {
	_, err := New(Config{Size: -1})
	assert.Error(t, err)
}

func TestSink_PutAndGet(t *testing.T) {
	s, err := New(Config{})
	require.NoError(t, err)
	ctx := context.Background()

	_, err = s.Get(ctx, "req-1")
	assert.ErrorIs(t, err, sink.ErrNotFound)

	want := summary("req-1", 5)
	require.NoError(t, s.Put(ctx, want))

	got, err := s.Get(ctx, "req-1")
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestSink_PutIsWriteOnce(t *testing.T) {
	s, err := New(Config{})
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, summary("req-1", 5)))
	require.NoError(t, s.Put(ctx, summary("req-1", 99)))

	got, err := s.Get(ctx, "req-1")
	require.NoError(t, err)
	assert.Equal(t, 5, got.ItemCount)
	assert.Equal(t, 1, s.Len())
}

func TestSink_EvictsLeastRecentlyUsed(t *testing.T) {
	var evicted []gather.RequestID
	s, err := New(Config{
		Size: 2,
		OnEvict: func(id gather.RequestID) {
			evicted = append(evicted, id)
		},
	})
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, summary("req-1", 1)))
	require.NoError(t, s.Put(ctx, summary("req-2", 2)))

	_, err = s.Get(ctx, "req-1")
	require.NoError(t, err)

	require.NoError(t, s.Put(ctx, summary("req-3", 3)))

	assert.Equal(t, []gather.RequestID{"req-2"}, evicted)
	_, err = s.Get(ctx, "req-2")
	assert.ErrorIs(t, err, sink.ErrNotFound)
	assert.Equal(t, 2, s.Len())
}

func TestSink_WithoutEvictHook(t *testing.T) {
	s, err := New(Config{Size: 3})
	require.NoError(t, err)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		require.NoError(t, s.Put(ctx, summary(fmt.Sprintf("req-%d", i), i)))
	}

	assert.Equal(t, 3, s.Len())
	got, err := s.Get(ctx, "req-9")
	require.NoError(t, err)
	assert.Equal(t, 9, got.ItemCount)
}
