package database

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Attempt outcomes recorded by the metrics
const (
	outcomeSuccess   = "success"
	outcomeTransient = "transient"
	outcomePermanent = "permanent"
)

type metrics struct {
	attemptDuration *prometheus.HistogramVec
	attempts        *prometheus.CounterVec
	retries         prometheus.Counter
}

// newMetrics creates the query collectors on reg. A nil reg leaves them unregistered.
func newMetrics(reg prometheus.Registerer) *metrics {
	f := promauto.With(reg)
	return &metrics{
		attemptDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "costdash",
			Subsystem: "store",
			Name:      "query_attempt_duration_seconds",
			Help:      "Duration of a single query attempt including session acquisition.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"outcome"}),
		attempts: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "costdash",
			Subsystem: "store",
			Name:      "query_attempts_total",
			Help:      "Query attempts by outcome.",
		}, []string{"outcome"}),
		retries: f.NewCounter(prometheus.CounterOpts{
			Namespace: "costdash",
			Subsystem: "store",
			Name:      "query_retries_total",
			Help:      "Query attempts scheduled for retry after a transient failure.",
		}),
	}
}

func (m *metrics) observe(outcome string, since time.Time) {
	m.attemptDuration.WithLabelValues(outcome).Observe(time.Since(since).Seconds())
	m.attempts.WithLabelValues(outcome).Inc()
}
