package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		paymentVerifyTotal,
		paymentVerifyDuration,
		paymentsRevenueTotal,
		routeSplitMismatchTotal,
		needsReconciliationTotal,
	)
}

var (
	// result: activated|duplicate|fail
	paymentVerifyTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_verify_total",
			Help: "Payment verifications by result and source (client|webhook|reconciler).",
		},
		[]string{"result", "source"},
	)

	paymentVerifyDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "payment_verify_duration_seconds",
			Help:    "Duration of verify-and-activate in seconds.",
			Buckets: []float64{0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
		[]string{"result"},
	)

	paymentsRevenueTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payments_revenue_minor_total",
			Help: "Captured payment value in minor units, by currency and party (total|merchant|platform).",
		},
		[]string{"currency", "party"},
	)

	routeSplitMismatchTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "route_split_mismatch_total",
			Help: "Gateway transfers whose amount or recipient differ from the expected split.",
		},
		[]string{"field"},
	)

	needsReconciliationTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "payment_needs_reconciliation_total",
			Help: "Captured payments whose local activation failed to persist.",
		},
	)
)

func IncVerify(result, source string) {
	paymentVerifyTotal.WithLabelValues(norm(result), norm(source)).Inc()
}

func ObserveVerify(result string, seconds float64) {
	paymentVerifyDuration.WithLabelValues(norm(result)).Observe(seconds)
}

func AddRevenue(currency string, total, merchant, platform int64) {
	c := norm(currency)
	paymentsRevenueTotal.WithLabelValues(c, "total").Add(float64(total))
	if merchant > 0 || platform > 0 {
		paymentsRevenueTotal.WithLabelValues(c, "merchant").Add(float64(merchant))
		paymentsRevenueTotal.WithLabelValues(c, "platform").Add(float64(platform))
	}
}

// field: amount|recipient
func IncSplitMismatch(field string) {
	routeSplitMismatchTotal.WithLabelValues(norm(field)).Inc()
}

func IncNeedsReconciliation() { needsReconciliationTotal.Inc() }
