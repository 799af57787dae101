// Package metrics implements the transport's Observer sink on
// Prometheus. Since delivery outcomes never reach producers, these
// counters are the primary way an operator sees what the courier is
// doing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"telemetry-courier/internal/transport"
)

// Recorder exports transport activity as Prometheus metrics.
type Recorder struct {
	enqueued    prometheus.Counter
	dropped     *prometheus.CounterVec
	delivered   *prometheus.CounterVec
	rateLimited *prometheus.CounterVec
	latency     prometheus.Histogram
	queueDepth  prometheus.Gauge
}

// NewRecorder creates a Recorder and registers its collectors. Pass
// prometheus.DefaultRegisterer for the default registry.
func NewRecorder(reg prometheus.Registerer) *Recorder {
	r := &Recorder{
		enqueued: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "courier_envelopes_enqueued_total",
			Help: "Envelopes accepted into the delivery queue.",
		}),
		dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "courier_envelopes_dropped_total",
			Help: "Envelopes lost, by reason.",
		}, []string{"reason"}),
		delivered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "courier_envelopes_delivered_total",
			Help: "Delivery attempts that received a response, by status code.",
		}, []string{"status"}),
		rateLimited: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "courier_rate_limited_total",
			Help: "Rate-limit windows imposed by the server, by category.",
		}, []string{"category"}),
		latency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "courier_delivery_duration_seconds",
			Help:    "Wall time of one envelope submission.",
			Buckets: prometheus.DefBuckets,
		}),
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "courier_queue_depth",
			Help: "Envelopes currently waiting in the delivery queue.",
		}),
	}

	reg.MustRegister(
		r.enqueued,
		r.dropped,
		r.delivered,
		r.rateLimited,
		r.latency,
		r.queueDepth,
	)
	return r
}

// EnvelopeEnqueued implements transport.Observer.
func (r *Recorder) EnvelopeEnqueued() {
	r.enqueued.Inc()
}

// EnvelopeDropped implements transport.Observer.
func (r *Recorder) EnvelopeDropped(reason string) {
	r.dropped.WithLabelValues(reason).Inc()
}

// EnvelopeDelivered implements transport.Observer.
func (r *Recorder) EnvelopeDelivered(statusCode int, duration time.Duration) {
	r.delivered.WithLabelValues(statusLabel(statusCode)).Inc()
	r.latency.Observe(duration.Seconds())
}

// RateLimited implements transport.Observer.
func (r *Recorder) RateLimited(category string) {
	r.rateLimited.WithLabelValues(category).Inc()
}

// QueueDepth implements transport.Observer.
func (r *Recorder) QueueDepth(depth int) {
	r.queueDepth.Set(float64(depth))
}

func statusLabel(code int) string {
	switch {
	case code < 200:
		return "1xx"
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code == 429:
		return "429"
	case code >= 400 && code < 500:
		return "4xx"
	default:
		return "5xx"
	}
}

// Ensure Recorder implements transport.Observer
var _ transport.Observer = (*Recorder)(nil)
