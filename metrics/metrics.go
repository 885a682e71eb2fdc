// Package metrics exports per-endpoint request outcomes to Prometheus.
//
// Collector.Observe has the signature of xgraph.ClientConfig.MetricsHook:
//
//	m := metrics.New(prometheus.DefaultRegisterer)
//	cfg.MetricsHook = m.Observe
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Outcome label values.
const (
	OutcomeSuccess     = "success"
	OutcomeError       = "error"
	OutcomeRateLimited = "rate_limited"
)

// Collector counts API responses by endpoint and outcome.
type Collector struct {
	requests *prometheus.CounterVec
}

// New creates a Collector and registers it with reg. A nil reg skips registration.
func New(reg prometheus.Registerer) *Collector {
	c := &Collector{
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "xgraph_api_requests_total",
				Help: "Total number of X API responses by endpoint and outcome",
			},
			[]string{"endpoint", "outcome"},
		),
	}
	if reg != nil {
		reg.MustRegister(c.requests)
	}
	return c
}

// Observe records one response.
func (c *Collector) Observe(endpoint string, success, rateLimited bool) {
	c.requests.WithLabelValues(endpoint, outcome(success, rateLimited)).Inc()
}

func outcome(success, rateLimited bool) string {
	switch {
	case rateLimited:
		return OutcomeRateLimited
	case success:
		return OutcomeSuccess
	default:
		return OutcomeError
	}
}
