package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the tenant registry.
type Metrics struct {
	Registered  prometheus.Gauge
	LookupMiss  prometheus.Counter
	StateDenied *prometheus.CounterVec
}

// New creates a new Metrics instance with all tenant metrics registered.
func New() *Metrics {
	return NewWithRegisterer(prometheus.DefaultRegisterer)
}

// NewWithRegisterer registers the metrics on reg. Tests pass a fresh
// prometheus.NewRegistry() to avoid duplicate registration panics.
func NewWithRegisterer(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Registered: f.NewGauge(prometheus.GaugeOpts{
			Name: "tollgate_tenants_registered",
			Help: "Number of tenants currently registered",
		}),
		LookupMiss: f.NewCounter(prometheus.CounterOpts{
			Name: "tollgate_tenant_lookup_miss_total",
			Help: "Lookups for app ids that are not registered",
		}),
		StateDenied: f.NewCounterVec(prometheus.CounterOpts{
			Name: "tollgate_tenant_state_denied_total",
			Help: "Requests refused because the tenant is not in the ok state",
		}, []string{"state"}),
	}
}

// SetRegistered records the number of registered tenants.
func (m *Metrics) SetRegistered(n int) {
	m.Registered.Set(float64(n))
}

// IncrementLookupMiss records a lookup for an unknown app id.
func (m *Metrics) IncrementLookupMiss() {
	m.LookupMiss.Inc()
}

// IncrementStateDenied records a request refused for tenant state.
func (m *Metrics) IncrementStateDenied(state string) {
	m.StateDenied.WithLabelValues(state).Inc()
}
