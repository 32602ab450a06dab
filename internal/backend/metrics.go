package backend

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics instruments the reference backend.
type Metrics struct {
	Reports       *prometheus.CounterVec // action
	ReportErrors  prometheus.Counter
	Clears        prometheus.Counter
	StreamClients prometheus.Gauge
}

// NewMetrics registers the backend metrics on reg. A nil reg gets a
// private registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	return &Metrics{
		Reports: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "wafwatch_backend_reports_total",
			Help: "Firewall reports recorded, by action.",
		}, []string{"action"}),

		ReportErrors: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "wafwatch_backend_report_errors_total",
			Help: "Reports rejected or not stored.",
		}),

		Clears: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "wafwatch_backend_clears_total",
			Help: "Successful clear requests.",
		}),

		StreamClients: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "wafwatch_backend_stream_clients",
			Help: "Connected notification stream clients.",
		}),
	}
}
