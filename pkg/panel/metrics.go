package panel

import "github.com/prometheus/client_golang/prometheus"

// Metrics contains the panel-level instrumentation.
type Metrics struct {
	QueriesTotal  *prometheus.CounterVec
	QueryDuration *prometheus.HistogramVec
	InFlight      prometheus.Gauge
}

// NewMetrics creates all panel metrics.
func NewMetrics() *Metrics {
	return &Metrics{
		QueriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "promdash",
				Subsystem: "panel",
				Name:      "queries_total",
				Help:      "Total number of completed panel queries by outcome",
			},
			[]string{"mode", "outcome"},
		),
		QueryDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "promdash",
				Subsystem: "panel",
				Name:      "query_duration_seconds",
				Help:      "Wall time of panel query execution",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"mode"},
		),
		InFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "promdash",
				Subsystem: "panel",
				Name:      "queries_in_flight",
				Help:      "Number of panel queries currently in flight",
			},
		),
	}
}

// Register registers all metrics with the given registerer.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{m.QueriesTotal, m.QueryDuration, m.InFlight} {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}
