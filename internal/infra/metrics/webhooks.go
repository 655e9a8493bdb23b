package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(webhookEventsTotal, merchantOnboardingTotal)
}

var (
	// outcome: processed|duplicate|ignored|failed|rejected
	webhookEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webhook_events_total",
			Help: "Gateway webhook deliveries by event type and outcome.",
		},
		[]string{"event", "outcome"},
	)

	// result: created|exists|fail
	merchantOnboardingTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "merchant_onboarding_total",
			Help: "Merchant onboarding attempts by result.",
		},
		[]string{"result"},
	)
)

func IncWebhook(event, outcome string) {
	if event == "" {
		event = "unknown"
	}
	webhookEventsTotal.WithLabelValues(norm(event), norm(outcome)).Inc()
}

func IncOnboarding(result string) {
	merchantOnboardingTotal.WithLabelValues(norm(result)).Inc()
}
