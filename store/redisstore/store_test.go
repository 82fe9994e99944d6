package redisstore

import (
	"testing"
	"time"

	"github.com/getpup/pupsourcing-gather"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_DefaultPrefix(t *testing.T) {
	s := New(nil, Config{})

	assert.Equal(t, DefaultPrefix, s.prefix)
	assert.Equal(t, "gather:req:{req-1}", s.requestKey("req-1"))
	assert.Equal(t, "gather:req:{req-1}:partials", s.partialsKey("req-1"))
	assert.Equal(t, "gather:waiting", s.waitingKey())
}

func TestNew_CustomPrefix(t *testing.T) {
	s := New(nil, Config{Prefix: "tenant-a"})

	assert.Equal(t, "tenant-a:req:{req-1}", s.requestKey("req-1"))
	assert.Equal(t, "tenant-a:summary:{req-1}", s.Summaries(time.Hour).key("req-1"))
}

func TestDecodeRecordReply(t *testing.T) {
	t.Run("simple outcomes", func(t *testing.T) {
		tests := []struct {
			code int64
			want gather.Outcome
		}{
			{codeDuplicate, gather.OutcomeDuplicate},
			{codeAccepted, gather.OutcomeAccepted},
			{codeLate, gather.OutcomeLate},
		}
		for _, tt := range tests {
			res, err := decodeRecordReply("req-1", []interface{}{tt.code})
			require.NoError(t, err)
			assert.Equal(t, tt.want, res.Outcome)
			assert.Nil(t, res.Aggregate)
		}
	})

	t.Run("domain errors", func(t *testing.T) {
		_, err := decodeRecordReply("req-1", []interface{}{int64(codeUnknown)})
		assert.ErrorIs(t, err, gather.ErrUnknownRequest)

		_, err = decodeRecordReply("req-1", []interface{}{int64(codeInvalidIndex)})
		assert.ErrorIs(t, err, gather.ErrInvalidCollectorIndex)
	})

	t.Run("completed carries ordered aggregate", func(t *testing.T) {
		res, err := decodeRecordReply("req-1", []interface{}{int64(codeCompleted), "weather", "[1,2]", "[3]", "[]", "[4,5]"})
		require.NoError(t, err)

		require.True(t, res.JustCompleted())
		assert.Equal(t, gather.RequestID("req-1"), res.Aggregate.RequestID)
		assert.Equal(t, "weather", res.Aggregate.Topic)
		assert.Equal(t, []int{1, 2, 3, 4, 5}, res.Aggregate.Items)
	})

	t.Run("malformed replies", func(t *testing.T) {
		_, err := decodeRecordReply("req-1", nil)
		assert.ErrorIs(t, err, gather.ErrStoreUnavailable)

		_, err = decodeRecordReply("req-1", []interface{}{"x"})
		assert.ErrorIs(t, err, gather.ErrStoreUnavailable)

		_, err = decodeRecordReply("req-1", []interface{}{int64(42)})
		assert.ErrorIs(t, err, gather.ErrStoreUnavailable)

		_, err = decodeRecordReply("req-1", []interface{}{int64(codeCompleted)})
		assert.ErrorIs(t, err, gather.ErrStoreUnavailable)

		_, err = decodeRecordReply("req-1", []interface{}{int64(codeCompleted), "t", "{bad"})
		assert.Error(t, err)
	})
}

func TestParseRequest(t *testing.T) {
	created := time.Unix(0, 1700000000000000000)

	req, err := parseRequest("req-1", map[string]string{
		"topic":        "weather",
		"expected":     "3",
		"received":     "1",
		"state":        "waiting",
		"created_at":   "1700000000000000000",
		"completed_at": "0",
	})
	require.NoError(t, err)

	assert.Equal(t, gather.RequestID("req-1"), req.ID)
	assert.Equal(t, "weather", req.Topic)
	assert.Equal(t, 3, req.ExpectedPartials)
	assert.Equal(t, 1, req.ReceivedPartials)
	assert.Equal(t, gather.RequestStateWaiting, req.State)
	assert.True(t, created.Equal(req.CreatedAt))
	assert.True(t, req.CompletedAt.IsZero())

	_, err = parseRequest("req-1", map[string]string{"expected": "x"})
	assert.Error(t, err)
}
