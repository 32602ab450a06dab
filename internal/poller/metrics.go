package poller

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics instruments the controller.
type Metrics struct {
	Fetches       *prometheus.CounterVec   // resource, result
	FetchDuration *prometheus.HistogramVec // resource
	Cycles        prometheus.Counter
	Clears        *prometheus.CounterVec // result
	AutoRefresh   prometheus.Gauge
	PushCoalesced prometheus.Counter
}

// NewMetrics registers the controller metrics on reg. A nil reg gets a
// private registry so callers that do not export metrics need no setup.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	return &Metrics{
		Fetches: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "wafwatch_fetches_total",
			Help: "Backend fetches by resource and result (ok, error, stale).",
		}, []string{"resource", "result"}),

		FetchDuration: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Name:    "wafwatch_fetch_duration_seconds",
			Help:    "Latency of backend fetches.",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}, []string{"resource"}),

		Cycles: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "wafwatch_fetch_cycles_total",
			Help: "Fetch cycles started.",
		}),

		Clears: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "wafwatch_clears_total",
			Help: "Clear requests by result (ok, error, declined).",
		}, []string{"result"}),

		AutoRefresh: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "wafwatch_auto_refresh",
			Help: "1 while auto-refresh is enabled.",
		}),

		PushCoalesced: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "wafwatch_push_coalesced_total",
			Help: "Backend notifications folded into an already pending fetch cycle.",
		}),
	}
}
