package gather

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRequestState_Constants(t *testing.T) {
	t.Run("RequestStateWaiting equals waiting", func(t *testing.T) {
		assert.Equal(t, RequestState("waiting"), RequestStateWaiting)
	})

	t.Run("RequestStateComplete equals complete", func(t *testing.T) {
		assert.Equal(t, RequestState("complete"), RequestStateComplete)
	})
}

func TestOutcome_Constants(t *testing.T) {
	assert.Equal(t, Outcome("accepted"), OutcomeAccepted)
	assert.Equal(t, Outcome("duplicate"), OutcomeDuplicate)
	assert.Equal(t, Outcome("late"), OutcomeLate)
	assert.Equal(t, Outcome("completed"), OutcomeCompleted)
}

func TestRecordResult_JustCompleted(t *testing.T) {
	tests := []struct {
		outcome Outcome
		want    bool
	}{
		{OutcomeAccepted, false},
		{OutcomeDuplicate, false},
		{OutcomeLate, false},
		{OutcomeCompleted, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.outcome), func(t *testing.T) {
			assert.Equal(t, tt.want, RecordResult{Outcome: tt.outcome}.JustCompleted())
		})
	}
}

func TestCollectionRequest_ZeroValues(t *testing.T) {
	var req CollectionRequest

	assert.Equal(t, RequestID(""), req.ID)
	assert.Equal(t, RequestState(""), req.State)
	assert.Equal(t, 0, req.ExpectedPartials)
	assert.True(t, req.CreatedAt.IsZero())
	assert.True(t, req.CompletedAt.IsZero())
}

func TestErrors_AreDistinct(t *testing.T) {
	errs := []error{
		ErrInvalidTopic,
		ErrUnknownRequest,
		ErrInvalidCollectorIndex,
		ErrNotReady,
		ErrNotFound,
		ErrStoreUnavailable,
	}

	for i, a := range errs {
		for j, b := range errs {
			if i != j {
				assert.NotErrorIs(t, a, b)
			}
		}
	}
}
