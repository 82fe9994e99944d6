// Package redisstore implements PartialStore and ResultSink on Redis.
//
// Every mutation of a request runs as one Lua script, so the add-and-check step
// is atomic on the server. The keys of one request share a hash tag; the
// waiting index is global, so Redis Cluster deployments are not supported.
package redisstore

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/bytedance/sonic"
	"github.com/getpup/pupsourcing-gather"
	"github.com/getpup/pupsourcing-gather/store"
	"github.com/redis/go-redis/v9"
)

// DefaultPrefix is the key prefix used when Config.Prefix is empty.
const DefaultPrefix = "gather"

// Config configures the Redis store.
type Config struct {
	// Prefix namespaces every key (default: "gather").
	Prefix string
}

// Store is a Redis implementation of PartialStore.
type Store struct {
	client redis.UniversalClient
	prefix string
	now    func() time.Time
}

// Compile-time check that Store implements PartialStore.
var _ store.PartialStore = (*Store)(nil)

// New creates a new Redis store.
func New(client redis.UniversalClient, cfg Config) *Store {
	if cfg.Prefix == "" {
		cfg.Prefix = DefaultPrefix
	}

	return &Store{
		client: client,
		prefix: cfg.Prefix,
		now:    time.Now,
	}
}

// Summaries returns a ResultSink that shares this store's client and prefix.
// A positive ttl expires each summary and the state of its request together,
// so an expired request is unknown rather than complete without a summary.
func (s *Store) Summaries(ttl time.Duration) *Summaries {
	return &Summaries{store: s, ttl: ttl}
}

func (s *Store) requestKey(id gather.RequestID) string {
	return fmt.Sprintf("%s:req:{%s}", s.prefix, id)
}

func (s *Store) partialsKey(id gather.RequestID) string {
	return fmt.Sprintf("%s:req:{%s}:partials", s.prefix, id)
}

func (s *Store) waitingKey() string {
	return s.prefix + ":waiting"
}

var registerScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then
  return 0
end
redis.call('HSET', KEYS[1],
  'topic', ARGV[2],
  'expected', ARGV[3],
  'received', 0,
  'state', 'waiting',
  'created_at', ARGV[4],
  'completed_at', 0)
redis.call('ZADD', KEYS[2], ARGV[5], ARGV[1])
return 1
`)

// Record result codes returned by recordScript.
const (
	codeUnknown      = -1
	codeInvalidIndex = -2
	codeDuplicate    = 0
	codeAccepted     = 1
	codeLate         = 2
	codeCompleted    = 3
)

var recordScript = redis.NewScript(`
local meta = redis.call('HMGET', KEYS[1], 'expected', 'state', 'topic')
if not meta[1] then
  return {-1}
end
local expected = tonumber(meta[1])
local index = tonumber(ARGV[1])
if index < 0 or index >= expected then
  return {-2}
end
if meta[2] == 'complete' then
  return {2}
end
if redis.call('HSETNX', KEYS[2], ARGV[1], ARGV[2]) == 0 then
  return {0}
end
local received = redis.call('HINCRBY', KEYS[1], 'received', 1)
if received < expected then
  return {1}
end
redis.call('HSET', KEYS[1], 'state', 'complete', 'completed_at', ARGV[3])
redis.call('ZREM', KEYS[3], ARGV[4])
local out = {3, meta[3]}
for i = 0, expected - 1 do
  out[#out + 1] = redis.call('HGET', KEYS[2], tostring(i))
end
return out
`)

var deleteScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
  return 0
end
redis.call('DEL', KEYS[1], KEYS[2])
redis.call('ZREM', KEYS[3], ARGV[1])
return 1
`)

// Register creates a waiting request.
// Returns store.ErrRequestExists if the id is already registered.
func (s *Store) Register(ctx context.Context, req gather.CollectionRequest) error {
	if req.ExpectedPartials < 1 {
		return store.ErrInvalidExpected
	}
	if req.CreatedAt.IsZero() {
		req.CreatedAt = s.now()
	}

	created, err := registerScript.Run(ctx, s.client,
		[]string{s.requestKey(req.ID), s.waitingKey()},
		string(req.ID),
		req.Topic,
		req.ExpectedPartials,
		req.CreatedAt.UnixNano(),
		req.CreatedAt.UnixMilli(),
	).Int()
	if err != nil {
		return unavailable("failed to register request", err)
	}
	if created == 0 {
		return store.ErrRequestExists
	}

	return nil
}

// RecordAndCheck stores a partial and reports whether it completed the request.
func (s *Store) RecordAndCheck(ctx context.Context, partial gather.PartialResult) (gather.RecordResult, error) {
	items := partial.Items
	if items == nil {
		items = []int{}
	}
	encoded, err := sonic.MarshalString(items)
	if err != nil {
		return gather.RecordResult{}, fmt.Errorf("failed to encode items: %w", err)
	}

	reply, err := recordScript.Run(ctx, s.client,
		[]string{s.requestKey(partial.RequestID), s.partialsKey(partial.RequestID), s.waitingKey()},
		partial.CollectorIndex,
		encoded,
		s.now().UnixNano(),
		string(partial.RequestID),
	).Slice()
	if err != nil {
		return gather.RecordResult{}, unavailable("failed to record partial", err)
	}

	return decodeRecordReply(partial.RequestID, reply)
}

// decodeRecordReply turns the reply of recordScript into a RecordResult.
func decodeRecordReply(id gather.RequestID, reply []interface{}) (gather.RecordResult, error) {
	if len(reply) == 0 {
		return gather.RecordResult{}, fmt.Errorf("%w: empty reply", gather.ErrStoreUnavailable)
	}
	code, ok := reply[0].(int64)
	if !ok {
		return gather.RecordResult{}, fmt.Errorf("%w: unexpected reply code %v", gather.ErrStoreUnavailable, reply[0])
	}

	switch code {
	case codeUnknown:
		return gather.RecordResult{}, gather.ErrUnknownRequest
	case codeInvalidIndex:
		return gather.RecordResult{}, gather.ErrInvalidCollectorIndex
	case codeDuplicate:
		return gather.RecordResult{Outcome: gather.OutcomeDuplicate}, nil
	case codeAccepted:
		return gather.RecordResult{Outcome: gather.OutcomeAccepted}, nil
	case codeLate:
		return gather.RecordResult{Outcome: gather.OutcomeLate}, nil
	case codeCompleted:
	default:
		return gather.RecordResult{}, fmt.Errorf("%w: unexpected reply code %d", gather.ErrStoreUnavailable, code)
	}

	if len(reply) < 2 {
		return gather.RecordResult{}, fmt.Errorf("%w: completion reply without topic", gather.ErrStoreUnavailable)
	}
	topic, _ := reply[1].(string)

	partials := make([][]int, 0, len(reply)-2)
	for _, raw := range reply[2:] {
		encoded, ok := raw.(string)
		if !ok {
			return gather.RecordResult{}, fmt.Errorf("%w: unexpected partial %v", gather.ErrStoreUnavailable, raw)
		}
		var items []int
		if err := sonic.UnmarshalString(encoded, &items); err != nil {
			return gather.RecordResult{}, fmt.Errorf("failed to decode items: %w", err)
		}
		partials = append(partials, items)
	}

	return gather.RecordResult{
		Outcome:   gather.OutcomeCompleted,
		Aggregate: store.Aggregate(id, topic, partials),
	}, nil
}

// GetRequest returns a request by id.
// Returns gather.ErrUnknownRequest if the request does not exist.
func (s *Store) GetRequest(ctx context.Context, id gather.RequestID) (gather.CollectionRequest, error) {
	fields, err := s.client.HGetAll(ctx, s.requestKey(id)).Result()
	if err != nil {
		return gather.CollectionRequest{}, unavailable("failed to get request", err)
	}
	if len(fields) == 0 {
		return gather.CollectionRequest{}, gather.ErrUnknownRequest
	}

	return parseRequest(id, fields)
}

// WaitingRequests returns waiting requests created more than olderThan ago, oldest first.
func (s *Store) WaitingRequests(ctx context.Context, olderThan time.Duration) ([]gather.CollectionRequest, error) {
	cutoff := s.now().Add(-olderThan).UnixMilli()

	ids, err := s.client.ZRangeByScore(ctx, s.waitingKey(), &redis.ZRangeBy{
		Min: "-inf",
		Max: "(" + strconv.FormatInt(cutoff, 10),
	}).Result()
	if err != nil {
		return nil, unavailable("failed to query waiting requests", err)
	}

	requests := []gather.CollectionRequest{}
	if len(ids) == 0 {
		return requests, nil
	}

	cmds := make([]*redis.MapStringStringCmd, len(ids))
	_, err = s.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, id := range ids {
			cmds[i] = pipe.HGetAll(ctx, s.requestKey(gather.RequestID(id)))
		}
		return nil
	})
	if err != nil {
		return nil, unavailable("failed to load waiting requests", err)
	}

	for i, cmd := range cmds {
		fields := cmd.Val()
		if len(fields) == 0 {
			continue
		}
		req, err := parseRequest(gather.RequestID(ids[i]), fields)
		if err != nil {
			return nil, err
		}
		if req.State == gather.RequestStateWaiting {
			requests = append(requests, req)
		}
	}

	return requests, nil
}

// DeleteRequest removes a request and its partials.
// Returns gather.ErrUnknownRequest if the request does not exist.
func (s *Store) DeleteRequest(ctx context.Context, id gather.RequestID) error {
	deleted, err := deleteScript.Run(ctx, s.client,
		[]string{s.requestKey(id), s.partialsKey(id), s.waitingKey()},
		string(id),
	).Int()
	if err != nil {
		return unavailable("failed to delete request", err)
	}
	if deleted == 0 {
		return gather.ErrUnknownRequest
	}
	return nil
}

func parseRequest(id gather.RequestID, fields map[string]string) (gather.CollectionRequest, error) {
	expected, err := strconv.Atoi(fields["expected"])
	if err != nil {
		return gather.CollectionRequest{}, fmt.Errorf("failed to parse expected partials of %s: %w", id, err)
	}
	received, err := strconv.Atoi(fields["received"])
	if err != nil {
		return gather.CollectionRequest{}, fmt.Errorf("failed to parse received partials of %s: %w", id, err)
	}
	createdAt, err := strconv.ParseInt(fields["created_at"], 10, 64)
	if err != nil {
		return gather.CollectionRequest{}, fmt.Errorf("failed to parse created_at of %s: %w", id, err)
	}
	completedAt, err := strconv.ParseInt(fields["completed_at"], 10, 64)
	if err != nil {
		return gather.CollectionRequest{}, fmt.Errorf("failed to parse completed_at of %s: %w", id, err)
	}

	req := gather.CollectionRequest{
		ID:               id,
		Topic:            fields["topic"],
		ExpectedPartials: expected,
		ReceivedPartials: received,
		State:            gather.RequestState(fields["state"]),
		CreatedAt:        time.Unix(0, createdAt),
	}
	if completedAt != 0 {
		req.CompletedAt = time.Unix(0, completedAt)
	}
	return req, nil
}

func unavailable(msg string, err error) error {
	return fmt.Errorf("%s: %w: %w", msg, gather.ErrStoreUnavailable, err)
}
