package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(reconcilerItemsTotal, reconcilerRunsTotal) }

var (
	// kind: orphan_payment|stale_webhook ; result: fixed|failed
	reconcilerItemsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reconciler_items_total",
			Help: "Items handled by the background reconciler.",
		},
		[]string{"kind", "result"},
	)

	reconcilerRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reconciler_runs_total",
			Help: "Reconciler sweeps, by result (ok|error|skipped).",
		},
		[]string{"result"},
	)
)

func IncReconcilerItem(kind, result string) {
	reconcilerItemsTotal.WithLabelValues(norm(kind), norm(result)).Inc()
}

func IncReconcilerRun(result string) {
	reconcilerRunsTotal.WithLabelValues(norm(result)).Inc()
}
