// Package observability holds the Prometheus collectors shared by the ledger and its
// persistence layer.
package observability

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// ErrorClassifier maps an error to a short outcome label.
var ErrorClassifier = func(err error) string {
	if err == nil {
		return "ok"
	}
	return "error"
}

var (
	ledgerOperations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "savings_service",
		Subsystem: "ledger",
		Name:      "operations_total",
		Help:      "Ledger mutations grouped by operation and outcome.",
	}, []string{"operation", "outcome"})

	sideEffectFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "savings_service",
		Subsystem: "side_effect",
		Name:      "failures_total",
		Help:      "Best-effort steps that failed after a ledger commit.",
	}, []string{"step"})

	sideEffectDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "savings_service",
		Subsystem: "side_effect",
		Name:      "duration_seconds",
		Help:      "Time spent in best-effort steps after a ledger commit.",
		Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12),
	}, []string{"step"})

	activityPersistGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "savings_service",
		Subsystem: "persistence",
		Name:      "last_activity_persisted_timestamp_seconds",
		Help:      "Unix timestamp of the most recent activity persisted to Postgres.",
	})
)

func init() {
	prometheus.MustRegister(ledgerOperations, sideEffectFailures, sideEffectDuration, activityPersistGauge)
}

// RecordLedgerOperation counts a ledger mutation attempt.
func RecordLedgerOperation(operation string, err error) {
	ledgerOperations.WithLabelValues(operation, ErrorClassifier(err)).Inc()
}

// RecordSideEffect observes a best-effort step and counts its failure.
func RecordSideEffect(step string, elapsed time.Duration, err error) {
	sideEffectDuration.WithLabelValues(step).Observe(elapsed.Seconds())
	if err != nil {
		sideEffectFailures.WithLabelValues(step).Inc()
	}
}

// SideEffectFailures exposes the failure counter for a step, for tests.
func SideEffectFailures(step string) prometheus.Counter {
	return sideEffectFailures.WithLabelValues(step)
}

// LedgerOperations exposes the operation counter, for tests.
func LedgerOperations(operation, outcome string) prometheus.Counter {
	return ledgerOperations.WithLabelValues(operation, outcome)
}

// RecordActivityPersisted updates the persistence watermark gauge.
func RecordActivityPersisted(ts time.Time) {
	if ts.IsZero() {
		return
	}
	activityPersistGauge.Set(float64(ts.Unix()))
}

// Classify builds an ErrorClassifier from sentinel errors, falling back to "error".
func Classify(labels map[error]string) func(error) string {
	return func(err error) string {
		if err == nil {
			return "ok"
		}
		for target, label := range labels {
			if errors.Is(err, target) {
				return label
			}
		}
		return "error"
	}
}
