package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	// HTTP handler latency per registered route pattern
	BanditHTTPLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "bandit_http_latency_seconds",
		Help:    "Latency of bandit HTTP handlers by route",
		Buckets: []float64{0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
	}, []string{"route"})

	// Requests per route and status class (2xx, 4xx, ...)
	BanditHTTPRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "bandit_http_requests_total",
		Help: "Total number of bandit HTTP requests by route and status class",
	}, []string{"route", "status"})

	BanditHTTPInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "bandit_http_in_flight_requests",
		Help: "Bandit HTTP requests currently being served",
	})
)

// Collectors lists the HTTP collectors so tests can register them on a
// private registry.
func Collectors() []prometheus.Collector {
	return []prometheus.Collector{BanditHTTPLatency, BanditHTTPRequests, BanditHTTPInFlight}
}

func Init() {
	prometheus.MustRegister(Collectors()...)
}
