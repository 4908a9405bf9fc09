package outbox

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DLQWriter parks undeliverable outbox events in outbox_dlq, where the DLQ manager
// picks them up for retry.
type DLQWriter struct {
	pool *pgxpool.Pool
}

// NewDLQWriter initialises a writer backed by the provided connection pool.
func NewDLQWriter(pool *pgxpool.Pool) *DLQWriter {
	return &DLQWriter{pool: pool}
}

// WriteBatch inserts one DLQ row per message in a single round trip, all due for
// immediate retry. The reason is suffixed with each message's topic.
func (w *DLQWriter) WriteBatch(ctx context.Context, messages []Message, reason string) error {
	batch := &pgx.Batch{}
	for _, msg := range messages {
		batch.Queue(`INSERT INTO outbox_dlq
                (user_id, event_id, event_type, topic, payload, reason, aggregate_type, aggregate_id, schema_subject, partition_key, next_retry_at)
            VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10, NOW())`,
			msg.UserID, msg.EventID, msg.EventType, msg.Topic, msg.Payload,
			fmt.Sprintf("%s (topic=%s)", reason, msg.Topic),
			msg.AggregateType, msg.AggregateID, msg.SchemaSubject, msg.PartitionKey)
	}
	return w.pool.SendBatch(ctx, batch).Close()
}
