package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestLabelledCollectors(t *testing.T) {
	ChunksTotal.WithLabelValues("success").Add(2)
	ChunksTotal.WithLabelValues("crash").Inc()
	assert.Equal(t, float64(2), testutil.ToFloat64(ChunksTotal.WithLabelValues("success")))
	assert.Equal(t, float64(1), testutil.ToFloat64(ChunksTotal.WithLabelValues("crash")))

	JobDurationSeconds.WithLabelValues("completed").Observe(1.5)
	assert.Equal(t, 1, testutil.CollectAndCount(JobDurationSeconds))
}

func TestGauges(t *testing.T) {
	BusyUnits.Set(3)
	PendingTasks.Set(7)
	assert.Equal(t, float64(3), testutil.ToFloat64(BusyUnits))
	assert.Equal(t, float64(7), testutil.ToFloat64(PendingTasks))
}
