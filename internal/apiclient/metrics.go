package apiclient

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts remote calls by operation and outcome.
type Metrics struct {
	requests *prometheus.CounterVec
	latency  *prometheus.HistogramVec
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "absencetracker_remote_requests_total",
			Help: "Remote API calls by operation and outcome.",
		}, []string{"op", "outcome"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "absencetracker_remote_request_duration_seconds",
			Help:    "Remote API call latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"op"}),
	}
	if reg != nil {
		reg.MustRegister(m.requests, m.latency)
	}
	return m
}

func (m *Metrics) observe(op string, code int, d time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(op, outcome(code)).Inc()
	m.latency.WithLabelValues(op).Observe(d.Seconds())
}

func outcome(code int) string {
	if code == 0 {
		return "transport_error"
	}
	return strconv.Itoa(code/100) + "xx"
}
