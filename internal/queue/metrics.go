package queue

import "github.com/prometheus/client_golang/prometheus"

var (
	Depth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "queue_depth",
			Help: "Approximate number of ready tasks per kind",
		},
		[]string{"kind"},
	)
	ProcessedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "queue_processed_total",
			Help: "Total tasks processed grouped by status",
		},
		[]string{"kind", "status"},
	)
)

func init() {
	prometheus.MustRegister(Depth, ProcessedTotal)
}
