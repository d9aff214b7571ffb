package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Rejections    *prometheus.CounterVec
	Skips         *prometheus.CounterVec
	StoreErrors   *prometheus.CounterVec
	AdmitDuration prometheus.Histogram
	Rules         prometheus.Gauge
}

func New() *Metrics {
	return NewWithRegisterer(prometheus.DefaultRegisterer)
}

func NewWithRegisterer(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Rejections: f.NewCounterVec(prometheus.CounterOpts{
			Name: "tollgate_ratelimit_rejections_total",
			Help: "Requests rejected by a rate limit rule, by zone",
		}, []string{"zone"}),
		Skips: f.NewCounterVec(prometheus.CounterOpts{
			Name: "tollgate_ratelimit_skips_total",
			Help: "Matching rules that did not count a request, by reason",
		}, []string{"reason"}),
		StoreErrors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "tollgate_ratelimit_store_errors_total",
			Help: "Counter store failures that admitted the request, by store kind",
		}, []string{"store"}),
		AdmitDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "tollgate_ratelimit_admit_duration_seconds",
			Help:    "Time spent evaluating rate limit rules for one request",
			Buckets: []float64{.0001, .00025, .0005, .001, .0025, .005, .01, .025, .05, .1},
		}),
		Rules: f.NewGauge(prometheus.GaugeOpts{
			Name: "tollgate_ratelimit_rules",
			Help: "Registered rate limit rules across all tenants",
		}),
	}
}

func (m *Metrics) IncRejection(zone string) {
	if m == nil {
		return
	}
	m.Rejections.WithLabelValues(zone).Inc()
}

func (m *Metrics) IncSkip(reason string) {
	if m == nil {
		return
	}
	m.Skips.WithLabelValues(reason).Inc()
}

func (m *Metrics) IncStoreError(store string) {
	if m == nil {
		return
	}
	m.StoreErrors.WithLabelValues(store).Inc()
}

func (m *Metrics) ObserveAdmit(seconds float64) {
	if m == nil {
		return
	}
	m.AdmitDuration.Observe(seconds)
}

func (m *Metrics) SetRules(n int) {
	if m == nil {
		return
	}
	m.Rules.Set(float64(n))
}
