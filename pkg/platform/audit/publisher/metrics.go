package publisher

import (
	audit "tollgate/pkg/platform/audit"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus metrics for security event publishing.
type Metrics struct {
	Emitted      *prometheus.CounterVec
	Published    prometheus.Counter
	Dropped      prometheus.Counter
	SinkFailures prometheus.Counter
	BreakerOpen  prometheus.Gauge
}

func NewMetrics() *Metrics {
	return NewMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

func NewMetricsWithRegisterer(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Emitted: f.NewCounterVec(prometheus.CounterOpts{
			Name: "tollgate_audit_security_emitted_total",
			Help: "Security events accepted into the buffer, by action",
		}, []string{"action"}),
		Published: f.NewCounter(prometheus.CounterOpts{
			Name: "tollgate_audit_security_published_total",
			Help: "Security events written to the primary sink",
		}),
		Dropped: f.NewCounter(prometheus.CounterOpts{
			Name: "tollgate_audit_security_dropped_total",
			Help: "Security events evicted because the buffer was full",
		}),
		SinkFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "tollgate_audit_security_sink_failures_total",
			Help: "Failed batch writes to the primary sink",
		}),
		BreakerOpen: f.NewGauge(prometheus.GaugeOpts{
			Name: "tollgate_audit_security_breaker_open",
			Help: "1 while the primary sink breaker is open",
		}),
	}
}

func (m *Metrics) incEmitted(a audit.Action) {
	if m == nil {
		return
	}
	m.Emitted.WithLabelValues(string(a)).Inc()
}

func (m *Metrics) addPublished(n int) {
	if m == nil {
		return
	}
	m.Published.Add(float64(n))
}

func (m *Metrics) incDropped() {
	if m == nil {
		return
	}
	m.Dropped.Inc()
}

func (m *Metrics) incSinkFailure() {
	if m == nil {
		return
	}
	m.SinkFailures.Inc()
}

func (m *Metrics) setBreakerOpen(open bool) {
	if m == nil {
		return
	}
	if open {
		m.BreakerOpen.Set(1)
		return
	}
	m.BreakerOpen.Set(0)
}
