package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics counts how subject lookups were answered.
type Metrics struct {
	Lookups  *prometheus.CounterVec
	Matches  prometheus.Histogram
	Enrolled prometheus.Counter
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Lookups: f.NewCounterVec(prometheus.CounterOpts{
			Name: "pseudonym_gateway_subject_lookups_total",
			Help: "Subject resolutions by lookup path (index or scan)",
		}, []string{"path"}),
		Matches: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "pseudonym_gateway_subject_matches",
			Help:    "Number of subjects matched per resolution",
			Buckets: []float64{0, 1, 2, 5, 10, 50},
		}),
		Enrolled: f.NewCounter(prometheus.CounterOpts{
			Name: "pseudonym_gateway_subjects_enrolled_total",
			Help: "Subjects created with an enrollment pseudonym",
		}),
	}
}

func (m *Metrics) lookup(path string, matches int) {
	if m == nil {
		return
	}
	m.Lookups.WithLabelValues(path).Inc()
	m.Matches.Observe(float64(matches))
}

func (m *Metrics) enrolled() {
	if m == nil {
		return
	}
	m.Enrolled.Inc()
}
