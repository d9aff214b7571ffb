// Package metrics exposes the process Prometheus registry.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds process-level collectors that do not belong to a single
// pipeline stage.
type Metrics struct {
	BuildInfo *prometheus.GaugeVec
	Ready     prometheus.Gauge
}

// New registers the Go runtime and process collectors plus the build info
// gauge on reg.
func New(reg *prometheus.Registry, version string) *Metrics {
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)
	m := &Metrics{
		BuildInfo: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "tollgate_build_info",
			Help: "Build information, always 1",
		}, []string{"version"}),
		Ready: factory.NewGauge(prometheus.GaugeOpts{
			Name: "tollgate_ready",
			Help: "1 once tenants are loaded and the server is accepting requests",
		}),
	}
	m.BuildInfo.WithLabelValues(version).Set(1)
	return m
}

// SetReady flips the readiness gauge.
func (m *Metrics) SetReady(ready bool) {
	if m == nil {
		return
	}
	if ready {
		m.Ready.Set(1)
		return
	}
	m.Ready.Set(0)
}

// Handler serves reg in the Prometheus exposition format.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}
