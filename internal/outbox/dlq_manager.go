package outbox

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"
)

const maxRetryDelay = time.Hour

// DLQManager replays dead-lettered activity events into the outbox. Entries that keep
// failing are rescheduled with exponential backoff and quarantined once they exhaust
// maxRetries.
type DLQManager struct {
	pool       *pgxpool.Pool
	maxRetries int
	baseDelay  time.Duration
	logger     logrus.FieldLogger
}

// NewDLQManager constructs a DLQManager with the provided pool and retry configuration.
func NewDLQManager(pool *pgxpool.Pool, maxRetries int, baseDelay time.Duration, logger logrus.FieldLogger) *DLQManager {
	if maxRetries <= 0 {
		maxRetries = 5
	}
	if baseDelay <= 0 {
		baseDelay = time.Minute
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &DLQManager{pool: pool, maxRetries: maxRetries, baseDelay: baseDelay, logger: logger}
}

// dlqEntry is an outbox_dlq row due for a retry.
type dlqEntry struct {
	ID            int64  `db:"dlq_id"`
	UserID        string `db:"user_id"`
	EventType     string `db:"event_type"`
	Topic         string `db:"topic"`
	SchemaSubject string `db:"schema_subject"`
	RetryCount    int    `db:"retry_count"`
}

// RunOnce sweeps up to batchSize due entries and returns how many were moved back to
// the outbox. Per-entry failures are joined into the returned error.
func (m *DLQManager) RunOnce(ctx context.Context, batchSize int) (int, error) {
	rows, err := m.pool.Query(ctx, `SELECT dlq_id, user_id::text AS user_id, event_type, topic, schema_subject, retry_count
        FROM outbox_dlq
        WHERE quarantined_at IS NULL AND (next_retry_at IS NULL OR next_retry_at <= NOW())
        ORDER BY created_at, dlq_id
        LIMIT $1`, batchSize)
	if err != nil {
		return 0, err
	}
	entries, err := pgx.CollectRows(rows, pgx.RowToStructByName[dlqEntry])
	if err != nil {
		return 0, err
	}

	requeued := 0
	var errs []error
	for _, entry := range entries {
		moved, err := m.handleEntry(ctx, entry)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if moved {
			requeued++
		}
	}

	if err := updateBacklogGauge(ctx, m.pool); err != nil {
		m.logger.WithError(err).Debug("dlq backlog gauge not refreshed")
	}
	return requeued, errors.Join(errs...)
}

// handleEntry quarantines, requeues or reschedules one entry inside its own transaction
// and reports whether the event went back to the outbox.
func (m *DLQManager) handleEntry(ctx context.Context, entry dlqEntry) (bool, error) {
	log := m.logger.WithFields(logrus.Fields{
		"dlq_id":      entry.ID,
		"event_type":  entry.EventType,
		"topic":       entry.Topic,
		"user_id":     entry.UserID,
		"retry_count": entry.RetryCount,
	})

	if entry.RetryCount >= m.maxRetries {
		_, err := m.pool.Exec(ctx, `UPDATE outbox_dlq
               SET quarantined_at = NOW(), quarantine_reason = 'retry limit reached'
             WHERE dlq_id = $1 AND quarantined_at IS NULL`, entry.ID)
		if err != nil {
			return false, err
		}
		recordDLQ(entry, dlqQuarantined)
		log.Warn("dlq entry quarantined")
		return false, nil
	}

	requeueErr := m.requeue(ctx, entry)
	if requeueErr == nil {
		recordDLQ(entry, dlqRequeued)
		log.Info("dlq entry requeued")
		return true, nil
	}

	delay := retryBackoff(m.baseDelay, entry.RetryCount+1)
	_, err := m.pool.Exec(ctx, `UPDATE outbox_dlq
           SET retry_count = retry_count + 1,
               last_attempt_at = NOW(),
               next_retry_at = NOW() + $1::interval,
               reason = $2
         WHERE dlq_id = $3`, delay, requeueErr.Error(), entry.ID)
	if err != nil {
		return false, errors.Join(requeueErr, err)
	}
	recordDLQ(entry, dlqRescheduled)
	log.WithError(requeueErr).WithField("retry_in", delay).Info("dlq entry rescheduled")
	return false, nil
}

// requeue copies the entry back into the outbox and deletes it from the DLQ atomically.
func (m *DLQManager) requeue(ctx context.Context, entry dlqEntry) error {
	if entry.SchemaSubject == "" {
		return errors.New("dlq entry has no schema_subject")
	}
	tx, err := m.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `INSERT INTO outbox (user_id, aggregate_type, aggregate_id, event_type, topic, schema_subject, partition_key, payload)
        SELECT user_id, aggregate_type, aggregate_id, event_type, topic, schema_subject, partition_key, payload
          FROM outbox_dlq
         WHERE dlq_id = $1 AND quarantined_at IS NULL`, entry.ID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errors.New("dlq entry vanished before requeue")
	}
	if _, err := tx.Exec(ctx, `DELETE FROM outbox_dlq WHERE dlq_id = $1`, entry.ID); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// retryBackoff doubles base per attempt, capped at maxRetryDelay.
func retryBackoff(base time.Duration, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if attempt > 16 {
		return maxRetryDelay
	}
	return min(base<<(attempt-1), maxRetryDelay)
}
