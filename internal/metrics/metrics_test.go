package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestStatusClass(t *testing.T) {
	assert.Equal(t, "2xx", StatusClass(204))
	assert.Equal(t, "5xx", StatusClass(502))
	assert.Equal(t, "unknown", StatusClass(0))
}

func TestRecordIngest(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.RecordIngest("ok", 4)
	m.RecordIngest("ok", 4)
	m.RecordIngest("NoDataForDate", 0)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.IngestTotal.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.IngestTotal.WithLabelValues("NoDataForDate")))
	assert.Equal(t, 8.0, testutil.ToFloat64(m.UpsertedTotal))
}

func TestRecordRequest(t *testing.T) {
	m := NewNop()

	m.RecordRequest("/health", "GET", 200, 10*time.Millisecond)
	m.ObserveProvider(time.Second)
	m.ObserveStore("upsert", time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("/health", "GET", "2xx")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.StoreDuration))
}
