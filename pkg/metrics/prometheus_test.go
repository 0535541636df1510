package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorder(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := New(reg)

	r.RecordObservations("XR", 10)
	r.RecordScores("XR", 8, 3)
	r.RecordSplits("expanding", 5)
	r.RecordCapRows("capped", 2)
	r.RecordError("usecase", "data_shape")
	r.RecordLatency("score", 20*time.Millisecond)

	assert.Equal(t, 10.0, testutil.ToFloat64(r.observations.WithLabelValues("XR")))
	assert.Equal(t, 8.0, testutil.ToFloat64(r.scores.WithLabelValues("XR")))
	assert.Equal(t, 3.0, testutil.ToFloat64(r.missing.WithLabelValues("XR")))
	assert.Equal(t, 5.0, testutil.ToFloat64(r.splits.WithLabelValues("expanding")))
	assert.Equal(t, 2.0, testutil.ToFloat64(r.capRows.WithLabelValues("capped")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.errors.WithLabelValues("usecase", "data_shape")))

	n, err := testutil.GatherAndCount(reg, "macropanel_operation_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
