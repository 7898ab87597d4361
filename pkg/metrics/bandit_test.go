//go:build !integration

package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestCollectors_Register(t *testing.T) {
	reg := prometheus.NewRegistry()
	for _, c := range Collectors() {
		if err := reg.Register(c); err != nil {
			t.Fatalf("register: %v", err)
		}
	}

	BanditHTTPRequests.WithLabelValues("/api/v1/decisions", "2xx").Inc()
	BanditHTTPLatency.WithLabelValues("/api/v1/decisions").Observe(0.01)

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	names := map[string]bool{}
	for _, f := range families {
		names[f.GetName()] = true
	}
	for _, want := range []string{"bandit_http_requests_total", "bandit_http_latency_seconds", "bandit_http_in_flight_requests"} {
		if !names[want] {
			t.Fatalf("%s not gathered, got %v", want, names)
		}
	}
}
