package consumer

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/PKL-SST-2025/be-tabungin/internal/events"
)

// PersistenceHandler writes consumed events into Postgres for downstream auditing.
type PersistenceHandler struct {
	pool *pgxpool.Pool
}

// NewPersistenceHandler constructs a handler backed by the provided pool.
func NewPersistenceHandler(pool *pgxpool.Pool) *PersistenceHandler {
	return &PersistenceHandler{pool: pool}
}

// Handle stores the event payload in the activity_event_log table. Redelivered records
// are ignored.
func (h *PersistenceHandler) Handle(ctx context.Context, msg Message) error {
	if msg.UserID == "" && msg.EventType == events.EventTypeActivityRecorded {
		var recorded events.ActivityRecorded
		if err := json.Unmarshal(msg.Payload, &recorded); err != nil {
			return fmt.Errorf("decode activity payload: %w", err)
		}
		msg.UserID = recorded.UserID
	}

	_, err := h.pool.Exec(ctx,
		`INSERT INTO activity_event_log (event_type, user_id, schema_id, schema_subject, topic, partition, record_offset, payload, received_at)
         VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
         ON CONFLICT (topic, partition, record_offset) DO NOTHING`,
		msg.EventType,
		msg.UserID,
		msg.SchemaID,
		msg.SchemaSubject,
		msg.Topic,
		msg.Partition,
		msg.Offset,
		msg.Payload,
		msg.Timestamp,
	)
	return err
}
