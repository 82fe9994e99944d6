package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRequestsDispatchedTotal_Increment(t *testing.T) {
	before := testutil.ToFloat64(RequestsDispatchedTotal.WithLabelValues("test-g"))
	RequestsDispatchedTotal.WithLabelValues("test-g").Inc()
	after := testutil.ToFloat64(RequestsDispatchedTotal.WithLabelValues("test-g"))

	assert.Equal(t, before+1, after)
}

func TestPartialsTotal_LabelsAreIndependent(t *testing.T) {
	accepted := PartialsTotal.WithLabelValues("test-g-2", "accepted")
	duplicate := PartialsTotal.WithLabelValues("test-g-2", "duplicate")

	beforeDuplicate := testutil.ToFloat64(duplicate)
	accepted.Inc()
	accepted.Inc()

	assert.Equal(t, beforeDuplicate, testutil.ToFloat64(duplicate))
	assert.GreaterOrEqual(t, testutil.ToFloat64(accepted), float64(2))
}

func TestStalledRequests_SetValue(t *testing.T) {
	StalledRequests.WithLabelValues("test-g-3").Set(4)
	value := testutil.ToFloat64(StalledRequests.WithLabelValues("test-g-3"))

	assert.Equal(t, float64(4), value)
}

func TestStageDuration_Observe(t *testing.T) {
	StageDuration.WithLabelValues("test-g-4", "cleanup").Observe(0.01)
	count := testutil.CollectAndCount(StageDuration)

	assert.Greater(t, count, 0)
}

func TestGatherDuration_Observe(t *testing.T) {
	GatherDuration.WithLabelValues("test-g-5").Observe(1.5)
	count := testutil.CollectAndCount(GatherDuration)

	assert.Greater(t, count, 0)
}
