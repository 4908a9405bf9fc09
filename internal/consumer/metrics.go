package consumer

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	outcomeProcessed    = "processed"
	outcomeHandlerError = "handler_error"
)

var (
	messagesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "savings_service",
		Subsystem: "consumer",
		Name:      "messages_total",
		Help:      "Decoded Kafka messages by topic, event type and handler outcome.",
	}, []string{"topic", "event_type", "outcome"})

	decodeErrorCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "savings_service",
		Subsystem: "consumer",
		Name:      "decode_errors_total",
		Help:      "Records that could not be decoded and were skipped.",
	}, []string{"topic"})

	deliveryLag = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "savings_service",
		Subsystem: "consumer",
		Name:      "delivery_lag_seconds",
		Help:      "Time between the record timestamp and successful handling.",
		Buckets:   prometheus.ExponentialBuckets(0.01, 2, 14),
	}, []string{"topic"})
)

func init() {
	prometheus.MustRegister(messagesTotal, decodeErrorCounter, deliveryLag)
}

func recordProcessed(msg Message) {
	messagesTotal.WithLabelValues(msg.Topic, msg.EventType, outcomeProcessed).Inc()
	if !msg.Timestamp.IsZero() {
		deliveryLag.WithLabelValues(msg.Topic).Observe(time.Since(msg.Timestamp).Seconds())
	}
}

func recordHandlerError(msg Message) {
	messagesTotal.WithLabelValues(msg.Topic, msg.EventType, outcomeHandlerError).Inc()
}

func recordDecodeError(topic string) {
	decodeErrorCounter.WithLabelValues(topic).Inc()
}
