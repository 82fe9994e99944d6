package collector

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestRandom_StaysWithinBounds(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		maxItems := rapid.IntRange(0, 20).Draw(rt, "maxItems")
		maxValue := rapid.IntRange(0, 500).Draw(rt, "maxValue")
		r := Random{MaxItems: maxItems, MaxValue: maxValue}

		if maxItems == 0 {
			maxItems = DefaultMaxItems
		}
		if maxValue == 0 {
			maxValue = DefaultMaxValue
		}

		items, err := r.Collect(context.Background(), Task{Topic: "weather", Index: 0})
		if err != nil {
			rt.Fatalf("collect: %v", err)
		}
		if len(items) > maxItems {
			rt.Fatalf("got %d items, max %d", len(items), maxItems)
		}
		for _, v := range items {
			if v < 0 || v > maxValue {
				rt.Fatalf("value %d outside [0, %d]", v, maxValue)
			}
		}
	})
}

func TestRandom_Defaults(t *testing.T) {
	for i := 0; i < 100; i++ {
		items, err := Random{}.Collect(context.Background(), Task{})
		require.NoError(t, err)
		assert.LessOrEqual(t, len(items), DefaultMaxItems)
		for _, v := range items {
			assert.GreaterOrEqual(t, v, 0)
			assert.LessOrEqual(t, v, DefaultMaxValue)
		}
	}
}

func TestStatic_ReturnsPartialPerIndex(t *testing.T) {
	s := Static{0: {1, 2}, 2: {4, 5}}

	items, err := s.Collect(context.Background(), Task{Index: 0})
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, items)

	items, err = s.Collect(context.Background(), Task{Index: 1})
	require.NoError(t, err)
	assert.Empty(t, items)

	items, err = s.Collect(context.Background(), Task{Index: 2})
	require.NoError(t, err)
	items[0] = 99
	assert.Equal(t, []int{4, 5}, s[2], "returned slice must not alias the fixture")
}

func TestFunc_Adapts(t *testing.T) {
	expected := errors.New("source down")
	var got Task
	c := Func(func(ctx context.Context, task Task) ([]int, error) {
		got = task
		return nil, expected
	})

	_, err := c.Collect(context.Background(), Task{Topic: "news", RequestID: "req-1", Index: 3})

	assert.ErrorIs(t, err, expected)
	assert.Equal(t, Task{Topic: "news", RequestID: "req-1", Index: 3}, got)
}
