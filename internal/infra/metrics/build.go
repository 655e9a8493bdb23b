package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(buildInfo) }

var buildInfo = prometheus.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "gym_payments_build_info",
		Help: "Constant 1, labeled with the running version, commit and gateway provider.",
	},
	[]string{"version", "commit", "gateway"},
)

func SetBuildInfo(version, commit, gateway string) {
	buildInfo.WithLabelValues(version, commit, norm(gateway)).Set(1)
}
