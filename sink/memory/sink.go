// Package memory keeps the most recent processing summaries in a bounded LRU cache.
package memory

import (
	"context"
	"fmt"

	"github.com/getpup/pupsourcing-gather"
	"github.com/getpup/pupsourcing-gather/sink"
	lru "github.com/hashicorp/golang-lru"
)

// DefaultSize is the number of summaries kept when Config.Size is zero.
const DefaultSize = 1024

// Config configures the in-memory sink.
type Config struct {
	// Size is the maximum number of summaries retained (default: 1024).
	Size int

	// OnEvict is called with the id of every summary pushed out of the cache (optional).
	// It runs while the cache is locked and must not call back into the sink.
	OnEvict func(id gather.RequestID)
}

// Sink is an LRU-bounded ResultSink.
type Sink struct {
	cache *lru.Cache
}

// Compile-time check that Sink implements ResultSink.
var _ sink.ResultSink = (*Sink)(nil)

// New creates a new Sink with the given configuration.
func New(cfg Config) (*Sink, error) {
	if cfg.Size == 0 {
		cfg.Size = DefaultSize
	}

	var onEvicted func(key interface{}, value interface{})
	if cfg.OnEvict != nil {
		onEvicted = func(key interface{}, _ interface{}) {
			cfg.OnEvict(key.(gather.RequestID))
		}
	}

	cache, err := lru.NewWithEvict(cfg.Size, onEvicted)
	if err != nil {
		return nil, fmt.Errorf("failed to create summary cache: %w", err)
	}

	return &Sink{cache: cache}, nil
}

// Put stores the summary unless one already exists for the request.
func (s *Sink) Put(ctx context.Context, summary gather.ProcessingSummary) error {
	s.cache.ContainsOrAdd(summary.RequestID, summary)
	return nil
}

// Get returns the summary for id, or sink.ErrNotFound.
func (s *Sink) Get(ctx context.Context, id gather.RequestID) (gather.ProcessingSummary, error) {
	v, ok := s.cache.Get(id)
	if !ok {
		return gather.ProcessingSummary{}, sink.ErrNotFound
	}
	return v.(gather.ProcessingSummary), nil
}

// Len returns the number of summaries currently retained.
func (s *Sink) Len() int {
	return s.cache.Len()
}
