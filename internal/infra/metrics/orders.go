package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		ordersCreatedTotal,
		ordersRejectedTotal,
		securityEventsTotal,
	)
}

var (
	// kind: platform|routed
	ordersCreatedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orders_created_total",
			Help: "Gateway orders created, by kind.",
		},
		[]string{"kind"},
	)

	ordersRejectedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orders_rejected_total",
			Help: "Order requests rejected before reaching the gateway, by reason.",
		},
		[]string{"reason"},
	)

	// kind: amount_mismatch|cross_tenant|invalid_signature|order_mismatch
	securityEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_security_events_total",
			Help: "Security-relevant rejections by kind and source operation.",
		},
		[]string{"kind", "source"},
	)
)

func IncOrderCreated(routed bool) {
	kind := "platform"
	if routed {
		kind = "routed"
	}
	ordersCreatedTotal.WithLabelValues(kind).Inc()
}

func IncOrderRejected(r string) {
	ordersRejectedTotal.WithLabelValues(reason(r,
		"validation", "plan_not_found", "amount_mismatch", "cross_tenant",
		"merchant_not_onboarded", "rate_limited", "gateway")).Inc()
}

func IncSecurityEvent(kind, source string) {
	securityEventsTotal.WithLabelValues(norm(kind), norm(source)).Inc()
}
