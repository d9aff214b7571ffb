package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus metrics for auth resolution.
type Metrics struct {
	Resolved       *prometheus.CounterVec
	KeyIPRejected  *prometheus.CounterVec
	SessionLookups *prometheus.CounterVec
}

func New() *Metrics {
	return NewWithRegisterer(prometheus.DefaultRegisterer)
}

func NewWithRegisterer(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Resolved: f.NewCounterVec(prometheus.CounterOpts{
			Name: "tollgate_auth_resolved_total",
			Help: "Requests resolved by the precedence chain, by outcome",
		}, []string{"outcome"}),
		KeyIPRejected: f.NewCounterVec(prometheus.CounterOpts{
			Name: "tollgate_auth_key_ip_rejected_total",
			Help: "Privileged keys presented from an address outside the key allowlist",
		}, []string{"key"}),
		SessionLookups: f.NewCounterVec(prometheus.CounterOpts{
			Name: "tollgate_auth_session_lookups_total",
			Help: "Deferred session lookups, by kind and result",
		}, []string{"kind", "result"}),
	}
}

func (m *Metrics) IncResolved(outcome string) {
	if m == nil {
		return
	}
	m.Resolved.WithLabelValues(outcome).Inc()
}

func (m *Metrics) IncKeyIPRejected(key string) {
	if m == nil {
		return
	}
	m.KeyIPRejected.WithLabelValues(key).Inc()
}

func (m *Metrics) IncSessionLookup(kind, result string) {
	if m == nil {
		return
	}
	m.SessionLookups.WithLabelValues(kind, result).Inc()
}
