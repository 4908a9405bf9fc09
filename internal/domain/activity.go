package domain

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ActivityType tags the kind of event recorded in the activity log.
type ActivityType string

const (
	ActivityDeposit         ActivityType = "deposit"
	ActivityWithdrawal      ActivityType = "withdrawal"
	ActivityTargetCreated   ActivityType = "target_created"
	ActivityTargetCompleted ActivityType = "target_completed"
)

const (
	DefaultActivityLimit = 50
	MaxActivityLimit     = 200
	DefaultRecentLimit   = 20
)

// Activity is an immutable entry in a user's activity trail. Amount is signed:
// withdrawals are negative and non-monetary events carry zero.
type Activity struct {
	ID              string
	UserID          string
	SavingsTargetID *string
	Type            ActivityType
	Title           string
	Description     string
	Amount          decimal.Decimal
	Icon            string
	IconColor       string
	CreatedAt       time.Time
}

// Cursor models the keyset pagination token for activity listings.
type Cursor struct {
	CreatedAt time.Time
	ID        string
}

// ActivityStore is the append-only activity log. Implementations never update or delete rows.
type ActivityStore interface {
	AppendActivity(ctx context.Context, activity Activity) error
	ListByUser(ctx context.Context, userID string, cursor *Cursor, limit int) ([]Activity, *Cursor, error)
	ListRecent(ctx context.Context, limit int) ([]Activity, error)
	ListDepositsSince(ctx context.Context, userID string, since time.Time) ([]Activity, error)
}

// ActivityRecorder builds human readable activity entries for ledger events.
type ActivityRecorder struct {
	store ActivityStore
	clock Clock
}

// NewActivityRecorder constructs an ActivityRecorder.
func NewActivityRecorder(store ActivityStore, clock Clock) *ActivityRecorder {
	if clock == nil {
		clock = SystemClock{}
	}
	return &ActivityRecorder{store: store, clock: clock}
}

// RecordDeposit appends a deposit entry.
func (r *ActivityRecorder) RecordDeposit(ctx context.Context, userID string, targetID *string, targetName string, amount decimal.Decimal) (*Activity, error) {
	title := "Menabung"
	if targetName != "" {
		title = fmt.Sprintf("Menabung untuk %s", targetName)
	}
	return r.append(ctx, Activity{
		UserID:          userID,
		SavingsTargetID: targetID,
		Type:            ActivityDeposit,
		Title:           title,
		Description:     fmt.Sprintf("Setoran sebesar Rp %s", FormatRupiah(amount)),
		Amount:          amount,
		Icon:            "💰",
		IconColor:       "bg-green-500",
	})
}

// RecordWithdrawal appends a withdrawal entry with a negative amount.
func (r *ActivityRecorder) RecordWithdrawal(ctx context.Context, userID string, targetID *string, amount decimal.Decimal) (*Activity, error) {
	return r.append(ctx, Activity{
		UserID:          userID,
		SavingsTargetID: targetID,
		Type:            ActivityWithdrawal,
		Title:           "Penarikan",
		Description:     fmt.Sprintf("Penarikan sebesar Rp %s", FormatRupiah(amount)),
		Amount:          amount.Neg(),
		Icon:            "💸",
		IconColor:       "bg-red-500",
	})
}

// RecordTargetCreated appends a target_created entry.
func (r *ActivityRecorder) RecordTargetCreated(ctx context.Context, userID string, targetID *string, targetName string) (*Activity, error) {
	return r.append(ctx, Activity{
		UserID:          userID,
		SavingsTargetID: targetID,
		Type:            ActivityTargetCreated,
		Title:           "Target baru dibuat",
		Description:     fmt.Sprintf("Target %q berhasil dibuat", targetName),
		Amount:          decimal.Zero,
		Icon:            "🎯",
		IconColor:       "bg-blue-500",
	})
}

// RecordTargetCompleted appends a target_completed entry.
func (r *ActivityRecorder) RecordTargetCompleted(ctx context.Context, userID string, targetID *string, targetName string) (*Activity, error) {
	return r.append(ctx, Activity{
		UserID:          userID,
		SavingsTargetID: targetID,
		Type:            ActivityTargetCompleted,
		Title:           "Target tercapai!",
		Description:     fmt.Sprintf("Selamat! Target %q telah tercapai", targetName),
		Amount:          decimal.Zero,
		Icon:            "🎉",
		IconColor:       "bg-green-500",
	})
}

func (r *ActivityRecorder) append(ctx context.Context, activity Activity) (*Activity, error) {
	activity.ID = uuid.NewString()
	// Postgres keeps microseconds; truncating keeps keyset cursors exact on every store.
	activity.CreatedAt = r.clock.Now().UTC().Truncate(time.Microsecond)
	if err := r.store.AppendActivity(ctx, activity); err != nil {
		return nil, err
	}
	return &activity, nil
}

// ListActivities returns the user's activities newest first.
func (r *ActivityRecorder) ListActivities(ctx context.Context, userID string, cursor *Cursor, limit int) ([]Activity, *Cursor, error) {
	if limit <= 0 {
		limit = DefaultActivityLimit
	}
	if limit > MaxActivityLimit {
		limit = MaxActivityLimit
	}
	return r.store.ListByUser(ctx, userID, cursor, limit)
}

// ListAllRecentActivities returns the newest activities across all users.
func (r *ActivityRecorder) ListAllRecentActivities(ctx context.Context, limit int) ([]Activity, error) {
	if limit <= 0 {
		limit = DefaultRecentLimit
	}
	if limit > MaxActivityLimit {
		limit = MaxActivityLimit
	}
	return r.store.ListRecent(ctx, limit)
}
