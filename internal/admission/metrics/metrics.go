package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus metrics for the admission pipeline.
type Metrics struct {
	Requests      *prometheus.CounterVec
	Rejections    *prometheus.CounterVec
	StageDuration *prometheus.HistogramVec
	Panics        prometheus.Counter
}

func New() *Metrics {
	return NewWithRegisterer(prometheus.DefaultRegisterer)
}

func NewWithRegisterer(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Requests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "tollgate_admission_requests_total",
			Help: "Requests leaving the admission pipeline, by result",
		}, []string{"result"}),
		Rejections: f.NewCounterVec(prometheus.CounterOpts{
			Name: "tollgate_admission_rejections_total",
			Help: "Requests rejected by the admission pipeline, by stage and error code",
		}, []string{"stage", "code"}),
		StageDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "tollgate_admission_stage_duration_seconds",
			Help:    "Time spent in each admission stage",
			Buckets: []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5, 1},
		}, []string{"stage"}),
		Panics: f.NewCounter(prometheus.CounterOpts{
			Name: "tollgate_admission_panics_total",
			Help: "Panics recovered while serving requests",
		}),
	}
}

func (m *Metrics) IncAdmitted() {
	if m == nil {
		return
	}
	m.Requests.WithLabelValues("admitted").Inc()
}

func (m *Metrics) IncRejection(stage, code string) {
	if m == nil {
		return
	}
	m.Requests.WithLabelValues("rejected").Inc()
	m.Rejections.WithLabelValues(stage, code).Inc()
}

func (m *Metrics) ObserveStage(stage string, seconds float64) {
	if m == nil {
		return
	}
	m.StageDuration.WithLabelValues(stage).Observe(seconds)
}

func (m *Metrics) IncPanic() {
	if m == nil {
		return
	}
	m.Panics.Inc()
}
