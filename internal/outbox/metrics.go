package outbox

import "github.com/prometheus/client_golang/prometheus"

var (
	deliveredCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "savings_service",
		Subsystem: "outbox",
		Name:      "events_delivered_total",
		Help:      "Number of outbox events successfully published to Kafka.",
	})

	failedCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "savings_service",
		Subsystem: "outbox",
		Name:      "events_failed_total",
		Help:      "Number of outbox events that failed to publish and routed to DLQ.",
	})

	batchDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "savings_service",
		Subsystem: "outbox",
		Name:      "batch_duration_seconds",
		Help:      "Time spent fetching, delivering, and marking outbox batches.",
		Buckets:   prometheus.ExponentialBuckets(0.01, 2, 10),
	})

	dlqCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "savings_service",
		Subsystem: "outbox",
		Name:      "events_dlq_total",
		Help:      "Number of outbox events routed to the dead-letter queue, labeled by topic.",
	}, []string{"topic"})

	writeDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "savings_service",
		Subsystem: "kafka",
		Name:      "write_duration_seconds",
		Help:      "Latency of synchronous Kafka writes, labeled by topic.",
		Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10),
	}, []string{"topic"})

	registryLookups = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "savings_service",
		Subsystem: "schema_registry",
		Name:      "requests_total",
		Help:      "Schema Registry calls by operation and outcome.",
	}, []string{"operation", "outcome"})
)

func init() {
	prometheus.MustRegister(deliveredCounter, failedCounter, batchDuration, dlqCounter, writeDuration, registryLookups)
}
