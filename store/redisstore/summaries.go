package redisstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bytedance/sonic"
	"github.com/getpup/pupsourcing-gather"
	"github.com/getpup/pupsourcing-gather/sink"
	"github.com/redis/go-redis/v9"
)

// Summaries is a Redis implementation of ResultSink.
// Summaries are stored as JSON strings, written with SET NX. With a ttl, the
// request hash and its partials expire together with the summary.
type Summaries struct {
	store *Store
	ttl   time.Duration
}

// Compile-time check that Summaries implements ResultSink.
var _ sink.ResultSink = (*Summaries)(nil)

func (s *Summaries) key(id gather.RequestID) string {
	return fmt.Sprintf("%s:summary:{%s}", s.store.prefix, id)
}

var putSummaryScript = redis.NewScript(`
if not redis.call('SET', KEYS[1], ARGV[1], 'NX') then
  return 0
end
local ttl = tonumber(ARGV[2])
if ttl > 0 then
  redis.call('PEXPIRE', KEYS[1], ttl)
  redis.call('PEXPIRE', KEYS[2], ttl)
  redis.call('PEXPIRE', KEYS[3], ttl)
end
return 1
`)

// Put writes the summary unless one already exists for the request.
// A zero ttl keeps summaries and request state until they are deleted.
func (s *Summaries) Put(ctx context.Context, summary gather.ProcessingSummary) error {
	data, err := sonic.Marshal(summary)
	if err != nil {
		return fmt.Errorf("failed to encode summary: %w", err)
	}

	id := summary.RequestID
	err = putSummaryScript.Run(ctx, s.store.client,
		[]string{s.key(id), s.store.requestKey(id), s.store.partialsKey(id)},
		data,
		s.ttl.Milliseconds(),
	).Err()
	if err != nil {
		return unavailable("failed to write summary", err)
	}
	return nil
}

// Get returns the summary of a request, or sink.ErrNotFound.
func (s *Summaries) Get(ctx context.Context, id gather.RequestID) (gather.ProcessingSummary, error) {
	data, err := s.store.client.Get(ctx, s.key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return gather.ProcessingSummary{}, sink.ErrNotFound
	}
	if err != nil {
		return gather.ProcessingSummary{}, unavailable("failed to read summary", err)
	}

	var summary gather.ProcessingSummary
	if err := sonic.Unmarshal(data, &summary); err != nil {
		return gather.ProcessingSummary{}, fmt.Errorf("failed to decode summary: %w", err)
	}
	return summary, nil
}
