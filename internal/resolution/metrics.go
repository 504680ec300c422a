package resolution

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Resolutions        *prometheus.CounterVec
	Duration           prometheus.Histogram
	PartialAggregation prometheus.Counter
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Resolutions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "pseudonym_gateway_resolutions_total",
			Help: "Resolutions by outcome",
		}, []string{"outcome"}),
		Duration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "pseudonym_gateway_resolution_duration_seconds",
			Help:    "End-to-end resolution latency",
			Buckets: prometheus.DefBuckets,
		}),
		PartialAggregation: f.NewCounter(prometheus.CounterOpts{
			Name: "pseudonym_gateway_partial_aggregation_failures_total",
			Help: "Resolutions where at least one subject's studies could not be fetched",
		}),
	}
}

func (m *Metrics) observe(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.Resolutions.WithLabelValues(outcome).Inc()
	m.Duration.Observe(d.Seconds())
}

func (m *Metrics) partial() {
	if m == nil {
		return
	}
	m.PartialAggregation.Inc()
}
