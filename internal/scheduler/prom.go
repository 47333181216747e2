package scheduler

import "github.com/prometheus/client_golang/prometheus"

var (
	inferencesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "segmentd",
			Subsystem: "scheduler",
			Name:      "inferences_total",
			Help:      "Total completed inference calls",
		},
		[]string{"model"},
	)

	timeoutsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "segmentd",
			Subsystem: "scheduler",
			Name:      "timeouts_total",
			Help:      "Inference calls that exceeded their deadline",
		},
		[]string{"model"},
	)

	failuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "segmentd",
			Subsystem: "scheduler",
			Name:      "failures_total",
			Help:      "Inference calls that failed for non-timeout reasons",
		},
		[]string{"model"},
	)

	batchSizeObserved = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "segmentd",
			Subsystem: "scheduler",
			Name:      "batch_size",
			Help:      "Sizes of batches handed to the device",
			Buckets:   []float64{1, 2, 4, 8, 16, 32},
		},
		[]string{"model"},
	)

	queueDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "segmentd",
			Subsystem: "scheduler",
			Name:      "queue_depth",
			Help:      "Requests waiting in each model's batch queue",
		},
		[]string{"model"},
	)

	deviceMemoryMB = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "segmentd",
			Subsystem: "device",
			Name:      "memory_allocated_mb",
			Help:      "Allocated device memory in MB, sampled per call",
		},
	)
)

func init() {
	prometheus.MustRegister(inferencesTotal, timeoutsTotal, failuresTotal, batchSizeObserved, queueDepth, deviceMemoryMB)
}
