package outbox

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
)

// DLQ sweep outcomes.
const (
	dlqRequeued    = "requeued"
	dlqRescheduled = "rescheduled"
	dlqQuarantined = "quarantined"
)

var (
	dlqEntriesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "savings_service",
		Subsystem: "dlq",
		Name:      "entries_total",
		Help:      "DLQ entries handled by a sweep, by topic, event type and outcome.",
	}, []string{"topic", "event_type", "outcome"})

	dlqBacklogGauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "savings_service",
		Subsystem: "dlq",
		Name:      "entries",
		Help:      "Entries currently held in the DLQ, split into pending and quarantined.",
	}, []string{"state"})
)

func init() {
	prometheus.MustRegister(dlqEntriesTotal, dlqBacklogGauge)
}

func recordDLQ(entry dlqEntry, outcome string) {
	dlqEntriesTotal.WithLabelValues(entry.Topic, entry.EventType, outcome).Inc()
}

func updateBacklogGauge(ctx context.Context, pool *pgxpool.Pool) error {
	var pending, quarantined int
	err := pool.QueryRow(ctx, `SELECT
            COUNT(*) FILTER (WHERE quarantined_at IS NULL),
            COUNT(*) FILTER (WHERE quarantined_at IS NOT NULL)
        FROM outbox_dlq`).Scan(&pending, &quarantined)
	if err != nil {
		return err
	}
	dlqBacklogGauge.WithLabelValues("pending").Set(float64(pending))
	dlqBacklogGauge.WithLabelValues("quarantined").Set(float64(quarantined))
	return nil
}
