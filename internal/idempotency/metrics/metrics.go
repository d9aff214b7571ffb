package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus metrics for idempotency claims.
type Metrics struct {
	Claims        *prometheus.CounterVec
	ClaimDuration prometheus.Histogram
}

func New() *Metrics {
	return NewWithRegisterer(prometheus.DefaultRegisterer)
}

func NewWithRegisterer(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Claims: f.NewCounterVec(prometheus.CounterOpts{
			Name: "tollgate_idempotency_claims_total",
			Help: "Idempotency claims, by result (claimed, duplicate, skipped, error)",
		}, []string{"result"}),
		ClaimDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "tollgate_idempotency_claim_duration_seconds",
			Help:    "Time spent creating idempotency records",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

func (m *Metrics) IncClaim(result string) {
	if m == nil {
		return
	}
	m.Claims.WithLabelValues(result).Inc()
}

func (m *Metrics) ObserveClaim(seconds float64) {
	if m == nil {
		return
	}
	m.ClaimDuration.Observe(seconds)
}
