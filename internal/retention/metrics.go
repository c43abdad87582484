package retention

import "github.com/prometheus/client_golang/prometheus"

var (
	prunedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "gradbridge_journal_pruned_events_total",
			Help: "Lifecycle events deleted by retention pruning.",
		},
	)

	pruneErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "gradbridge_journal_prune_errors_total",
			Help: "Retention pruning runs that failed.",
		},
	)
)

func init() {
	prometheus.MustRegister(prunedTotal)
	prometheus.MustRegister(pruneErrorsTotal)
}
