package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(gatewayCallDuration) }

var gatewayCallDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "gateway_call_duration_seconds",
		Help:    "Outbound payment gateway call latency by operation and outcome.",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
	},
	[]string{"op", "outcome"},
)

// outcome: ok|error|timeout
func ObserveGatewayCall(op, outcome string, seconds float64) {
	gatewayCallDuration.WithLabelValues(norm(op), norm(outcome)).Observe(seconds)
}
