package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(dbPoolStats, dbUniqueConflictsTotal) }

var (
	dbPoolStats = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "db_pool_stats",
			Help: "Current state of the database connection pool.",
		},
		[]string{"state"}, // 'total', 'idle', 'in_use'
	)

	// Unique-constraint hits are the dedup path for payments and webhook events.
	dbUniqueConflictsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "db_unique_conflicts_total",
			Help: "Inserts skipped because a unique key already existed, by table.",
		},
		[]string{"table"},
	)
)

func SetDBPoolStats(total, idle, inUse int32) {
	dbPoolStats.WithLabelValues("total").Set(float64(total))
	dbPoolStats.WithLabelValues("idle").Set(float64(idle))
	dbPoolStats.WithLabelValues("in_use").Set(float64(inUse))
}

func IncUniqueConflict(table string) {
	dbUniqueConflictsTotal.WithLabelValues(norm(table)).Inc()
}
