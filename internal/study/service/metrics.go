package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	SubjectSearches *prometheus.CounterVec
	Studies         prometheus.Histogram
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		SubjectSearches: f.NewCounterVec(prometheus.CounterOpts{
			Name: "pseudonym_gateway_study_subject_searches_total",
			Help: "Per-subject study searches by outcome (ok or failed)",
		}, []string{"outcome"}),
		Studies: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "pseudonym_gateway_study_aggregate_size",
			Help:    "Distinct studies returned per aggregation",
			Buckets: []float64{0, 1, 2, 5, 10, 25, 50, 100},
		}),
	}
}

func (m *Metrics) search(ok bool) {
	if m == nil {
		return
	}
	if ok {
		m.SubjectSearches.WithLabelValues("ok").Inc()
		return
	}
	m.SubjectSearches.WithLabelValues("failed").Inc()
}

func (m *Metrics) aggregated(n int) {
	if m == nil {
		return
	}
	m.Studies.Observe(float64(n))
}
