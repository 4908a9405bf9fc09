package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/PKL-SST-2025/be-tabungin/internal/domain"
	"github.com/PKL-SST-2025/be-tabungin/internal/events"
	"github.com/PKL-SST-2025/be-tabungin/internal/observability"
)

const activityColumns = `id, user_id, savings_target_id, activity_type, title, description, amount, icon, icon_color, created_at`

func scanActivity(row rowScanner) (*domain.Activity, error) {
	var a domain.Activity
	var activityType string
	if err := row.Scan(&a.ID, &a.UserID, &a.SavingsTargetID, &activityType, &a.Title, &a.Description, &a.Amount, &a.Icon, &a.IconColor, &a.CreatedAt); err != nil {
		return nil, err
	}
	a.Type = domain.ActivityType(activityType)
	return &a, nil
}

// AppendActivity persists the activity and its outbox event inside a single transaction.
func (r *Repository) AppendActivity(ctx context.Context, activity domain.Activity) error {
	err := r.withTx(ctx, func(tx pgx.Tx) error {
		const insertActivity = `INSERT INTO activities (` + activityColumns + `)
            VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`

		if _, err := tx.Exec(ctx, insertActivity,
			activity.ID,
			activity.UserID,
			activity.SavingsTargetID,
			string(activity.Type),
			activity.Title,
			activity.Description,
			activity.Amount,
			activity.Icon,
			activity.IconColor,
			activity.CreatedAt,
		); err != nil {
			return err
		}

		return r.insertOutbox(ctx, tx, activity, events.EventTypeActivityRecorded, events.ActivityRecorded{
			ActivityID:      activity.ID,
			UserID:          activity.UserID,
			SavingsTargetID: activity.SavingsTargetID,
			ActivityType:    string(activity.Type),
			Title:           activity.Title,
			Amount:          activity.Amount.StringFixed(domain.MoneyScale),
			OccurredAt:      activity.CreatedAt,
			Version:         events.PayloadVersion,
		})
	})
	if err != nil {
		return wrap("append activity", err)
	}
	observability.RecordActivityPersisted(activity.CreatedAt)
	return nil
}

// ListByUser returns the user's activities newest first using keyset pagination.
func (r *Repository) ListByUser(ctx context.Context, userID string, cursor *domain.Cursor, limit int) ([]domain.Activity, *domain.Cursor, error) {
	args := []interface{}{userID, limit}
	query := `SELECT ` + activityColumns + ` FROM activities WHERE user_id=$1`

	if cursor != nil {
		query += ` AND (created_at, id) < ($3, $4)`
		args = append(args, cursor.CreatedAt, cursor.ID)
	}

	query += ` ORDER BY created_at DESC, id DESC LIMIT $2`

	results, err := r.queryActivities(ctx, query, args...)
	if err != nil {
		return nil, nil, wrap("list activities", err)
	}

	var nextCursor *domain.Cursor
	if limit > 0 && len(results) == limit {
		last := results[len(results)-1]
		nextCursor = &domain.Cursor{CreatedAt: last.CreatedAt, ID: last.ID}
	}
	return results, nextCursor, nil
}

// ListRecent returns the newest activities across every user.
func (r *Repository) ListRecent(ctx context.Context, limit int) ([]domain.Activity, error) {
	const query = `SELECT ` + activityColumns + ` FROM activities ORDER BY created_at DESC, id DESC LIMIT $1`
	results, err := r.queryActivities(ctx, query, limit)
	if err != nil {
		return nil, wrap("list recent activities", err)
	}
	return results, nil
}

// ListDepositsSince returns the user's deposit activities created at or after since.
func (r *Repository) ListDepositsSince(ctx context.Context, userID string, since time.Time) ([]domain.Activity, error) {
	const query = `SELECT ` + activityColumns + ` FROM activities
        WHERE user_id=$1 AND activity_type='deposit' AND created_at >= $2
        ORDER BY created_at ASC`
	results, err := r.queryActivities(ctx, query, userID, since)
	if err != nil {
		return nil, wrap("list deposits", err)
	}
	return results, nil
}

func (r *Repository) queryActivities(ctx context.Context, query string, args ...interface{}) ([]domain.Activity, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.Activity, error) {
		activity, err := scanActivity(row)
		if err != nil {
			return domain.Activity{}, err
		}
		return *activity, nil
	})
}
