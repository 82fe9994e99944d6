// Package storetest provides a conformance suite shared by every PartialStore backing.
package storetest

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/getpup/pupsourcing-gather"
	"github.com/getpup/pupsourcing-gather/store"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

// Factory returns an empty store for a single test.
type Factory func(t *testing.T) store.PartialStore

// Run executes the conformance suite against stores produced by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Run("Register", func(t *testing.T) { testRegister(t, newStore) })
	t.Run("RecordAndCheck errors", func(t *testing.T) { testRecordErrors(t, newStore) })
	t.Run("delivery order does not change the aggregate", func(t *testing.T) { testOrderInvariance(t, newStore) })
	t.Run("duplicates are ignored", func(t *testing.T) { testDuplicates(t, newStore) })
	t.Run("single collector and empty partials", func(t *testing.T) { testEdgeSizes(t, newStore) })
	t.Run("concurrent reports fire once", func(t *testing.T) { testConcurrentFiring(t, newStore) })
	t.Run("requests are independent", func(t *testing.T) { testIndependentRequests(t, newStore) })
	t.Run("WaitingRequests", func(t *testing.T) { testWaitingRequests(t, newStore) })
	t.Run("DeleteRequest", func(t *testing.T) { testDeleteRequest(t, newStore) })
	t.Run("property: fires exactly once on the last distinct index", func(t *testing.T) { testFiringProperty(t, newStore) })
}

// NewID returns a fresh request id.
func NewID() gather.RequestID {
	return gather.RequestID(uuid.New().String())
}

func register(t *testing.T, s store.PartialStore, expected int) gather.RequestID {
	t.Helper()

	id := NewID()
	err := s.Register(context.Background(), gather.CollectionRequest{
		ID:               id,
		Topic:            "topic-" + string(id)[:8],
		ExpectedPartials: expected,
	})
	require.NoError(t, err)
	return id
}

func record(t *testing.T, s store.PartialStore, id gather.RequestID, index int, items []int) gather.RecordResult {
	t.Helper()

	res, err := s.RecordAndCheck(context.Background(), gather.PartialResult{
		RequestID:      id,
		CollectorIndex: index,
		Items:          items,
		ArrivedAt:      time.Now(),
	})
	require.NoError(t, err)
	return res
}

func testRegister(t *testing.T, newStore Factory) {
	ctx := context.Background()

	t.Run("new request is waiting", func(t *testing.T) {
		s := newStore(t)
		id := NewID()

		before := time.Now().Add(-time.Second)
		err := s.Register(ctx, gather.CollectionRequest{ID: id, Topic: "weather", ExpectedPartials: 3})
		require.NoError(t, err)

		req, err := s.GetRequest(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, id, req.ID)
		assert.Equal(t, "weather", req.Topic)
		assert.Equal(t, 3, req.ExpectedPartials)
		assert.Equal(t, 0, req.ReceivedPartials)
		assert.Equal(t, gather.RequestStateWaiting, req.State)
		assert.True(t, req.CreatedAt.After(before))
		assert.True(t, req.CompletedAt.IsZero())
	})

	t.Run("duplicate id is rejected", func(t *testing.T) {
		s := newStore(t)
		id := register(t, s, 2)

		err := s.Register(ctx, gather.CollectionRequest{ID: id, Topic: "again", ExpectedPartials: 2})
		assert.ErrorIs(t, err, store.ErrRequestExists)
	})

	t.Run("expected partials below one is rejected", func(t *testing.T) {
		s := newStore(t)
		id := NewID()

		err := s.Register(ctx, gather.CollectionRequest{ID: id, Topic: "weather", ExpectedPartials: 0})
		assert.ErrorIs(t, err, store.ErrInvalidExpected)

		_, err = s.GetRequest(ctx, id)
		assert.ErrorIs(t, err, gather.ErrUnknownRequest)
	})

	t.Run("unknown request", func(t *testing.T) {
		s := newStore(t)

		_, err := s.GetRequest(ctx, NewID())
		assert.ErrorIs(t, err, gather.ErrUnknownRequest)
	})
}

func testRecordErrors(t *testing.T, newStore Factory) {
	ctx := context.Background()

	t.Run("unknown request", func(t *testing.T) {
		s := newStore(t)

		_, err := s.RecordAndCheck(ctx, gather.PartialResult{RequestID: NewID(), CollectorIndex: 0, Items: []int{1}})
		assert.ErrorIs(t, err, gather.ErrUnknownRequest)
	})

	t.Run("index out of range", func(t *testing.T) {
		s := newStore(t)
		id := register(t, s, 3)

		for _, index := range []int{-1, 3, 42} {
			_, err := s.RecordAndCheck(ctx, gather.PartialResult{RequestID: id, CollectorIndex: index, Items: []int{1}})
			assert.ErrorIs(t, err, gather.ErrInvalidCollectorIndex, "index %d", index)
		}

		req, err := s.GetRequest(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, 0, req.ReceivedPartials)
	})
}

func testOrderInvariance(t *testing.T, newStore Factory) {
	partials := map[int][]int{
		0: {1, 2},
		1: {3},
		2: {4, 5},
	}
	orders := [][]int{
		{0, 1, 2},
		{2, 0, 1},
		{1, 2, 0},
		{2, 1, 0},
	}

	for _, order := range orders {
		t.Run(fmt.Sprint(order), func(t *testing.T) {
			s := newStore(t)
			id := register(t, s, 3)

			for i, index := range order {
				res := record(t, s, id, index, partials[index])
				if i < len(order)-1 {
					assert.Equal(t, gather.OutcomeAccepted, res.Outcome)
					assert.False(t, res.JustCompleted())
					assert.Nil(t, res.Aggregate)
					continue
				}

				require.True(t, res.JustCompleted())
				require.NotNil(t, res.Aggregate)
				assert.Equal(t, id, res.Aggregate.RequestID)
				assert.Equal(t, []int{1, 2, 3, 4, 5}, res.Aggregate.Items)
			}

			req, err := s.GetRequest(context.Background(), id)
			require.NoError(t, err)
			assert.Equal(t, gather.RequestStateComplete, req.State)
			assert.Equal(t, 3, req.ReceivedPartials)
			assert.False(t, req.CompletedAt.IsZero())
		})
	}
}

func testDuplicates(t *testing.T, newStore Factory) {
	t.Run("before completion", func(t *testing.T) {
		s := newStore(t)
		id := register(t, s, 2)

		assert.Equal(t, gather.OutcomeAccepted, record(t, s, id, 0, []int{7, 8}).Outcome)
		assert.Equal(t, gather.OutcomeDuplicate, record(t, s, id, 0, []int{99, 99, 99}).Outcome)

		req, err := s.GetRequest(context.Background(), id)
		require.NoError(t, err)
		assert.Equal(t, 1, req.ReceivedPartials)
		assert.Equal(t, gather.RequestStateWaiting, req.State)

		res := record(t, s, id, 1, []int{9})
		require.True(t, res.JustCompleted())
		assert.Equal(t, []int{7, 8, 9}, res.Aggregate.Items)
	})

	t.Run("after completion", func(t *testing.T) {
		s := newStore(t)
		id := register(t, s, 2)

		record(t, s, id, 1, []int{2})
		require.True(t, record(t, s, id, 0, []int{1}).JustCompleted())

		for index := 0; index < 2; index++ {
			res := record(t, s, id, index, []int{100})
			assert.Equal(t, gather.OutcomeLate, res.Outcome)
			assert.False(t, res.JustCompleted())
			assert.Nil(t, res.Aggregate)
		}
	})
}

func testEdgeSizes(t *testing.T, newStore Factory) {
	t.Run("single collector completes on first report", func(t *testing.T) {
		s := newStore(t)
		id := register(t, s, 1)

		res := record(t, s, id, 0, []int{42})
		require.True(t, res.JustCompleted())
		assert.Equal(t, []int{42}, res.Aggregate.Items)
	})

	t.Run("empty partials produce an empty aggregate", func(t *testing.T) {
		s := newStore(t)
		id := register(t, s, 3)

		record(t, s, id, 0, nil)
		record(t, s, id, 2, []int{})
		res := record(t, s, id, 1, []int{5})

		require.True(t, res.JustCompleted())
		assert.Equal(t, []int{5}, res.Aggregate.Items)
	})
}

func testConcurrentFiring(t *testing.T, newStore Factory) {
	cases := []struct {
		name       string
		collectors int
		deliveries int
	}{
		{name: "three collectors once each", collectors: 3, deliveries: 1},
		{name: "eight collectors redelivered", collectors: 8, deliveries: 4},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := newStore(t)
			id := register(t, s, tc.collectors)

			var (
				wg        sync.WaitGroup
				mu        sync.Mutex
				fired     int
				aggregate []int
				failures  []error
			)

			start := make(chan struct{})
			for index := 0; index < tc.collectors; index++ {
				for d := 0; d < tc.deliveries; d++ {
					wg.Add(1)
					go func(index int) {
						defer wg.Done()
						<-start

						res, err := s.RecordAndCheck(context.Background(), gather.PartialResult{
							RequestID:      id,
							CollectorIndex: index,
							Items:          []int{index, index},
						})

						mu.Lock()
						defer mu.Unlock()
						if err != nil {
							failures = append(failures, err)
							return
						}
						if res.JustCompleted() {
							fired++
							aggregate = res.Aggregate.Items
						}
					}(index)
				}
			}
			close(start)
			wg.Wait()

			require.Empty(t, failures)
			assert.Equal(t, 1, fired, "barrier must fire exactly once")

			expected := make([]int, 0, 2*tc.collectors)
			for index := 0; index < tc.collectors; index++ {
				expected = append(expected, index, index)
			}
			assert.Equal(t, expected, aggregate)
		})
	}
}

func testIndependentRequests(t *testing.T, newStore Factory) {
	s := newStore(t)
	first := register(t, s, 2)
	second := register(t, s, 2)

	record(t, s, first, 0, []int{1})
	record(t, s, second, 1, []int{20})

	res := record(t, s, first, 1, []int{2})
	require.True(t, res.JustCompleted())
	assert.Equal(t, []int{1, 2}, res.Aggregate.Items)

	req, err := s.GetRequest(context.Background(), second)
	require.NoError(t, err)
	assert.Equal(t, gather.RequestStateWaiting, req.State)
	assert.Equal(t, 1, req.ReceivedPartials)

	res = record(t, s, second, 0, []int{10})
	require.True(t, res.JustCompleted())
	assert.Equal(t, []int{10, 20}, res.Aggregate.Items)
}

func testWaitingRequests(t *testing.T, newStore Factory) {
	ctx := context.Background()
	s := newStore(t)

	old := NewID()
	require.NoError(t, s.Register(ctx, gather.CollectionRequest{
		ID:               old,
		Topic:            "old",
		ExpectedPartials: 2,
		CreatedAt:        time.Now().Add(-time.Hour),
	}))

	oldComplete := NewID()
	require.NoError(t, s.Register(ctx, gather.CollectionRequest{
		ID:               oldComplete,
		Topic:            "old-complete",
		ExpectedPartials: 1,
		CreatedAt:        time.Now().Add(-time.Hour),
	}))
	require.True(t, record(t, s, oldComplete, 0, []int{1}).JustCompleted())

	register(t, s, 2)

	waiting, err := s.WaitingRequests(ctx, time.Minute)
	require.NoError(t, err)
	require.Len(t, waiting, 1)
	assert.Equal(t, old, waiting[0].ID)
	assert.Equal(t, gather.RequestStateWaiting, waiting[0].State)

	waiting, err = s.WaitingRequests(ctx, 2*time.Hour)
	require.NoError(t, err)
	assert.Empty(t, waiting)
}

func testDeleteRequest(t *testing.T, newStore Factory) {
	ctx := context.Background()
	s := newStore(t)
	id := register(t, s, 2)
	record(t, s, id, 0, []int{1})

	require.NoError(t, s.DeleteRequest(ctx, id))

	_, err := s.GetRequest(ctx, id)
	assert.ErrorIs(t, err, gather.ErrUnknownRequest)

	_, err = s.RecordAndCheck(ctx, gather.PartialResult{RequestID: id, CollectorIndex: 1, Items: []int{2}})
	assert.ErrorIs(t, err, gather.ErrUnknownRequest)

	assert.ErrorIs(t, s.DeleteRequest(ctx, id), gather.ErrUnknownRequest)
}

func testFiringProperty(t *testing.T, newStore Factory) {
	s := newStore(t)

	rapid.Check(t, func(rt *rapid.T) {
		n := rapid.IntRange(1, 6).Draw(rt, "collectors")

		partials := make([][]int, n)
		for i := range partials {
			partials[i] = rapid.SliceOfN(rapid.IntRange(0, 100), 0, 10).Draw(rt, fmt.Sprintf("partial-%d", i))
		}

		indexes := make([]int, n)
		for i := range indexes {
			indexes[i] = i
		}
		deliveries := rapid.Permutation(indexes).Draw(rt, "order")

		redeliveries := rapid.SliceOfN(rapid.IntRange(0, n-1), 0, n).Draw(rt, "redeliveries")
		for i, index := range redeliveries {
			pos := rapid.IntRange(0, len(deliveries)).Draw(rt, fmt.Sprintf("redelivery-pos-%d", i))
			deliveries = append(deliveries[:pos], append([]int{index}, deliveries[pos:]...)...)
		}

		id := NewID()
		err := s.Register(context.Background(), gather.CollectionRequest{ID: id, Topic: "property", ExpectedPartials: n})
		if err != nil {
			rt.Fatalf("register: %v", err)
		}

		seen := make(map[int]bool, n)
		firstItems := make([][]int, n)
		fired := 0

		for _, index := range deliveries {
			items := []int{-1}
			if !seen[index] {
				items = partials[index]
				firstItems[index] = items
			}

			res, err := s.RecordAndCheck(context.Background(), gather.PartialResult{
				RequestID:      id,
				CollectorIndex: index,
				Items:          items,
			})
			if err != nil {
				rt.Fatalf("record: %v", err)
			}

			wasNew := !seen[index]
			seen[index] = true
			completesNow := wasNew && len(seen) == n

			if res.JustCompleted() != completesNow {
				rt.Fatalf("index %d: JustCompleted=%v, want %v (outcome %s)", index, res.JustCompleted(), completesNow, res.Outcome)
			}
			if !res.JustCompleted() {
				continue
			}

			fired++
			want := store.Aggregate(id, "property", firstItems).Items
			if !assert.ObjectsAreEqual(want, res.Aggregate.Items) {
				rt.Fatalf("aggregate = %v, want %v", res.Aggregate.Items, want)
			}
		}

		if fired != 1 {
			rt.Fatalf("barrier fired %d times, want 1", fired)
		}
	})
}
