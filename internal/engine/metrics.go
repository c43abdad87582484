package engine

import "github.com/prometheus/client_golang/prometheus"

const (
	directionForward  = "forward"
	directionBackward = "backward"
)

var (
	nodeDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gradbridge_engine_node_duration_seconds",
			Help:    "Time spent inside a runner per node, by direction.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"direction"},
	)

	nodeErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gradbridge_engine_node_errors_total",
			Help: "Nodes that failed, by direction.",
		},
		[]string{"direction"},
	)

	modelsLoaded = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "gradbridge_engine_models_loaded",
			Help: "Number of models currently loaded (0 or 1).",
		},
	)
)

func init() {
	prometheus.MustRegister(nodeDuration)
	prometheus.MustRegister(nodeErrorsTotal)
	prometheus.MustRegister(modelsLoaded)

	for _, d := range []string{directionForward, directionBackward} {
		nodeDuration.WithLabelValues(d)
		nodeErrorsTotal.WithLabelValues(d)
	}
}
