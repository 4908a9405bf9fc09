// Package postgres implements the ledger stores on top of pgx.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/PKL-SST-2025/be-tabungin/internal/domain"
	"github.com/PKL-SST-2025/be-tabungin/internal/events"
)

// Repository provides Postgres-backed persistence for targets, activities, statistics
// and outbox events. It implements domain.TargetStore, domain.ActivityStore and
// domain.StatisticsStore.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

var (
	_ domain.TargetStore     = (*Repository)(nil)
	_ domain.ActivityStore   = (*Repository)(nil)
	_ domain.StatisticsStore = (*Repository)(nil)
)

// EnsureUser records the account creation time used for daily averages. An existing
// user row is left untouched.
func (r *Repository) EnsureUser(ctx context.Context, userID string, createdAt time.Time) error {
	const stmt = `INSERT INTO users (id, created_at) VALUES ($1, $2) ON CONFLICT (id) DO NOTHING`
	if _, err := r.pool.Exec(ctx, stmt, userID, createdAt); err != nil {
		return domain.StorageError("ensure user", err)
	}
	return nil
}

// withTx runs fn inside a transaction, rolling back when fn fails.
func (r *Repository) withTx(ctx context.Context, fn func(pgx.Tx) error) (err error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback(ctx)
		}
	}()

	if err = fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// wrap classifies err as a storage failure unless it already carries a domain sentinel.
func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	for _, sentinel := range []error{domain.ErrTargetNotFound, domain.ErrAccessDenied, domain.ErrInvalidAmount, domain.ErrStorage} {
		if errors.Is(err, sentinel) {
			return err
		}
	}
	return domain.StorageError(op, err)
}

func (r *Repository) insertOutbox(ctx context.Context, tx pgx.Tx, activity domain.Activity, eventType string, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	meta := eventCatalog[eventType]
	if meta.Topic == "" {
		return fmt.Errorf("unknown event type: %s", eventType)
	}

	partitionKey := meta.PartitionKeyFn(activity)
	dedupeKey := fmt.Sprintf("%s:%s", activity.ID, eventType)

	const stmt = `INSERT INTO outbox (user_id, aggregate_type, aggregate_id, event_type, topic, schema_subject, partition_key, payload, dedupe_key)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`

	_, err = tx.Exec(ctx, stmt,
		activity.UserID,
		"activity",
		activity.ID,
		eventType,
		meta.Topic,
		meta.SchemaSubject,
		partitionKey,
		body,
		dedupeKey,
	)
	return err
}

// EventMetadata describes how to route an outbox event.
type EventMetadata struct {
	Topic          string
	SchemaSubject  string
	PartitionKeyFn func(domain.Activity) string
}

var eventCatalog = map[string]EventMetadata{
	events.EventTypeActivityRecorded: {
		Topic:         "savings_activity_events",
		SchemaSubject: "savings_activity_events-value",
		PartitionKeyFn: func(a domain.Activity) string {
			return a.UserID
		},
	},
}

type rowScanner interface {
	Scan(dest ...any) error
}
