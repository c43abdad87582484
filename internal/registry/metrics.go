package registry

import "github.com/prometheus/client_golang/prometheus"

var (
	slotsGauge = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "gradbridge_registry_slots",
			Help: "Number of occupied named slots per pool.",
		},
		[]string{"pool"},
	)

	releasesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gradbridge_registry_releases_total",
			Help: "Interpreter references released by the registry, per pool.",
		},
		[]string{"pool"},
	)

	liveContexts = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "gradbridge_registry_live_contexts",
			Help: "Autograd contexts registered and not yet unregistered.",
		},
	)

	contextsRegisteredTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "gradbridge_registry_contexts_registered_total",
			Help: "Total number of autograd contexts registered.",
		},
	)

	teardownsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gradbridge_registry_teardowns_total",
			Help: "Teardown calls by phase.",
		},
		[]string{"phase"},
	)
)

// runnerPoolLabel is the releases_total label used for runner holders.
const runnerPoolLabel = "runner"

func init() {
	prometheus.MustRegister(slotsGauge)
	prometheus.MustRegister(releasesTotal)
	prometheus.MustRegister(liveContexts)
	prometheus.MustRegister(contextsRegisteredTotal)
	prometheus.MustRegister(teardownsTotal)

	for _, p := range Pools() {
		slotsGauge.WithLabelValues(p.String())
		releasesTotal.WithLabelValues(p.String())
	}
	releasesTotal.WithLabelValues(runnerPoolLabel)
	teardownsTotal.WithLabelValues(string(PhaseGlobal))
	teardownsTotal.WithLabelValues(string(PhaseModel))
}
