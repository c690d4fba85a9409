package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrometheusMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewPrometheus(reg).(*promMetrics)

	m.ObserveRequest("STAT", 3*time.Millisecond, "ok")
	m.ObserveRequest("STAT", time.Second, "timeout")
	m.RecordRetransmit("STAT")
	m.RecordRetransmit("STAT")
	m.RecordDropped("malformed")
	m.RecordBytes("read", 1024)
	m.RecordBytes("read", 0)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.requests.WithLabelValues("STAT", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.requests.WithLabelValues("STAT", "timeout")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.retransmits.WithLabelValues("STAT")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.dropped.WithLabelValues("malformed")))
	assert.Equal(t, 1024.0, testutil.ToFloat64(m.bytes.WithLabelValues("read")))

	count, err := testutil.GatherAndCount(reg, "fsp_client_request_duration_milliseconds")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *promMetrics
	m.ObserveRequest("STAT", time.Second, "ok")
	m.RecordRetransmit("STAT")
	m.RecordDropped("mismatch")
	m.RecordBytes("write", 10)
}
