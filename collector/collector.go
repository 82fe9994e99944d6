// Package collector defines the worker that produces one partial result of a request.
package collector

import (
	"context"
	"math/rand/v2"

	"github.com/getpup/pupsourcing-gather"
)

// Task identifies the unit of work handed to a collector.
type Task struct {
	Topic     string
	RequestID gather.RequestID
	Index     int
}

// Collector produces the items of one partial result.
// Collect may run more than once for the same task when the executor redelivers it.
type Collector interface {
	Collect(ctx context.Context, task Task) ([]int, error)
}

// Func adapts an ordinary function to a Collector.
type Func func(ctx context.Context, task Task) ([]int, error)

// Collect calls f(ctx, task).
func (f Func) Collect(ctx context.Context, task Task) ([]int, error) {
	return f(ctx, task)
}

const (
	// DefaultMaxItems is the largest number of items Random produces per task.
	DefaultMaxItems = 10

	// DefaultMaxValue is the largest value Random produces.
	DefaultMaxValue = 100
)

// Random produces between 0 and MaxItems values, each uniform in [0, MaxValue].
// Zero fields use DefaultMaxItems and DefaultMaxValue.
type Random struct {
	MaxItems int
	MaxValue int
}

// Collect implements Collector.
func (r Random) Collect(ctx context.Context, task Task) ([]int, error) {
	maxItems := r.MaxItems
	if maxItems <= 0 {
		maxItems = DefaultMaxItems
	}
	maxValue := r.MaxValue
	if maxValue <= 0 {
		maxValue = DefaultMaxValue
	}

	items := make([]int, rand.IntN(maxItems+1))
	for i := range items {
		items[i] = rand.IntN(maxValue + 1)
	}
	return items, nil
}

// Static returns a fixed partial per collector index.
// Indexes without an entry produce an empty partial.
type Static map[int][]int

// Collect implements Collector.
func (s Static) Collect(ctx context.Context, task Task) ([]int, error) {
	items := s[task.Index]
	out := make([]int, len(items))
	copy(out, items)
	return out, nil
}
