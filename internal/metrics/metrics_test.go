package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"telemetry-courier/internal/transport"
)

func newTestRecorder(t *testing.T) (*Recorder, *prometheus.Registry) {
	t.Helper()
	registry := prometheus.NewRegistry()
	return NewRecorder(registry), registry
}

func TestRecorder_CountsEnqueues(t *testing.T) {
	r, _ := newTestRecorder(t)

	r.EnvelopeEnqueued()
	r.EnvelopeEnqueued()
	assert.Equal(t, float64(2), testutil.ToFloat64(r.enqueued))
}

func TestRecorder_CountsDropsByReason(t *testing.T) {
	r, _ := newTestRecorder(t)

	r.EnvelopeDropped(transport.DropReasonQueueFull)
	r.EnvelopeDropped(transport.DropReasonQueueFull)
	r.EnvelopeDropped(transport.DropReasonNetwork)

	assert.Equal(t, float64(2), testutil.ToFloat64(r.dropped.WithLabelValues("queue_full")))
	assert.Equal(t, float64(1), testutil.ToFloat64(r.dropped.WithLabelValues("network")))
	assert.Equal(t, float64(0), testutil.ToFloat64(r.dropped.WithLabelValues("throttled")))
}

func TestRecorder_BucketsDeliveriesByStatusClass(t *testing.T) {
	r, _ := newTestRecorder(t)

	r.EnvelopeDelivered(102, 10*time.Millisecond)
	r.EnvelopeDelivered(200, 10*time.Millisecond)
	r.EnvelopeDelivered(204, 10*time.Millisecond)
	r.EnvelopeDelivered(429, 10*time.Millisecond)
	r.EnvelopeDelivered(400, 10*time.Millisecond)
	r.EnvelopeDelivered(503, 10*time.Millisecond)

	assert.Equal(t, float64(1), testutil.ToFloat64(r.delivered.WithLabelValues("1xx")))
	assert.Equal(t, float64(2), testutil.ToFloat64(r.delivered.WithLabelValues("2xx")))
	assert.Equal(t, float64(1), testutil.ToFloat64(r.delivered.WithLabelValues("429")))
	assert.Equal(t, float64(1), testutil.ToFloat64(r.delivered.WithLabelValues("4xx")))
	assert.Equal(t, float64(1), testutil.ToFloat64(r.delivered.WithLabelValues("5xx")))
}

func TestRecorder_CountsRateLimits(t *testing.T) {
	r, _ := newTestRecorder(t)

	r.RateLimited("error")
	r.RateLimited("error")
	r.RateLimited("all")

	assert.Equal(t, float64(2), testutil.ToFloat64(r.rateLimited.WithLabelValues("error")))
	assert.Equal(t, float64(1), testutil.ToFloat64(r.rateLimited.WithLabelValues("all")))
}

func TestRecorder_TracksQueueDepth(t *testing.T) {
	r, _ := newTestRecorder(t)

	r.QueueDepth(7)
	assert.Equal(t, float64(7), testutil.ToFloat64(r.queueDepth))
	r.QueueDepth(0)
	assert.Equal(t, float64(0), testutil.ToFloat64(r.queueDepth))
}

func TestStatusLabel(t *testing.T) {
	assert.Equal(t, "1xx", statusLabel(101))
	assert.Equal(t, "2xx", statusLabel(200))
	assert.Equal(t, "3xx", statusLabel(302))
	assert.Equal(t, "429", statusLabel(429))
	assert.Equal(t, "4xx", statusLabel(404))
	assert.Equal(t, "5xx", statusLabel(500))
}
