package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/PKL-SST-2025/be-tabungin/internal/domain"
)

const targetColumns = `id, user_id, name, target_amount, current_amount, icon, icon_color, target_date, is_completed, created_at, updated_at`

func scanTarget(row rowScanner) (*domain.SavingsTarget, error) {
	var t domain.SavingsTarget
	if err := row.Scan(&t.ID, &t.UserID, &t.Name, &t.TargetAmount, &t.CurrentAmount, &t.Icon, &t.IconColor, &t.TargetDate, &t.IsCompleted, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return nil, err
	}
	return &t, nil
}

// CreateTarget inserts a new savings target.
func (r *Repository) CreateTarget(ctx context.Context, target domain.SavingsTarget) (*domain.SavingsTarget, error) {
	const stmt = `INSERT INTO savings_targets (id, user_id, name, target_amount, current_amount, icon, icon_color, target_date, is_completed, created_at, updated_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
        RETURNING ` + targetColumns

	created, err := scanTarget(r.pool.QueryRow(ctx, stmt,
		target.ID,
		target.UserID,
		target.Name,
		target.TargetAmount,
		target.CurrentAmount,
		target.Icon,
		target.IconColor,
		target.TargetDate,
		target.IsCompleted,
		target.CreatedAt,
		target.UpdatedAt,
	))
	if err != nil {
		return nil, wrap("create target", err)
	}
	return created, nil
}

// GetTarget returns the target when it exists and belongs to userID.
func (r *Repository) GetTarget(ctx context.Context, userID, targetID string) (*domain.SavingsTarget, error) {
	const query = `SELECT ` + targetColumns + ` FROM savings_targets WHERE id=$1 AND user_id=$2`

	target, err := scanTarget(r.pool.QueryRow(ctx, query, targetID, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrTargetNotFound
		}
		return nil, wrap("get target", err)
	}
	return target, nil
}

// ListTargets returns the user's targets newest first.
func (r *Repository) ListTargets(ctx context.Context, userID string) ([]domain.SavingsTarget, error) {
	const query = `SELECT ` + targetColumns + ` FROM savings_targets WHERE user_id=$1 ORDER BY created_at DESC, id DESC`

	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, wrap("list targets", err)
	}
	defer rows.Close()

	results := make([]domain.SavingsTarget, 0)
	for rows.Next() {
		target, err := scanTarget(rows)
		if err != nil {
			return nil, wrap("list targets", err)
		}
		results = append(results, *target)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap("list targets", err)
	}
	return results, nil
}

// ApplyDeposit increments the balance. Completion only ever flips to true here.
func (r *Repository) ApplyDeposit(ctx context.Context, userID, targetID string, amount decimal.Decimal, at time.Time) (*domain.BalanceChange, error) {
	const stmt = `UPDATE savings_targets
        SET current_amount = current_amount + $1,
            is_completed = CASE WHEN current_amount + $1 >= target_amount THEN TRUE ELSE is_completed END,
            updated_at = $2
        WHERE id=$3 AND user_id=$4
        RETURNING ` + targetColumns

	change, err := r.applyBalance(ctx, userID, targetID, amount, at, stmt)
	return change, wrap("apply deposit", err)
}

// ApplyWithdrawal decrements the balance, flooring at zero. The target leaves the
// completed state when the unfloored balance drops below the target amount.
func (r *Repository) ApplyWithdrawal(ctx context.Context, userID, targetID string, amount decimal.Decimal, at time.Time) (*domain.BalanceChange, error) {
	const stmt = `UPDATE savings_targets
        SET current_amount = GREATEST(current_amount - $1, 0),
            is_completed = CASE WHEN current_amount - $1 < target_amount THEN FALSE ELSE is_completed END,
            updated_at = $2
        WHERE id=$3 AND user_id=$4
        RETURNING ` + targetColumns

	change, err := r.applyBalance(ctx, userID, targetID, amount, at, stmt)
	return change, wrap("apply withdrawal", err)
}

func (r *Repository) applyBalance(ctx context.Context, userID, targetID string, amount decimal.Decimal, at time.Time, stmt string) (*domain.BalanceChange, error) {
	if err := domain.ValidateAmount(amount); err != nil {
		return nil, err
	}

	var change *domain.BalanceChange
	err := r.withTx(ctx, func(tx pgx.Tx) error {
		var owner string
		var wasCompleted bool
		err := tx.QueryRow(ctx, `SELECT user_id, is_completed FROM savings_targets WHERE id=$1 FOR UPDATE`, targetID).Scan(&owner, &wasCompleted)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return domain.ErrTargetNotFound
			}
			return err
		}
		if owner != userID {
			return domain.ErrAccessDenied
		}

		target, err := scanTarget(tx.QueryRow(ctx, stmt, amount, at, targetID, userID))
		if err != nil {
			return err
		}
		change = &domain.BalanceChange{Target: *target, WasCompleted: wasCompleted}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return change, nil
}

// UpdateTarget applies a partial update to a target owned by userID.
func (r *Repository) UpdateTarget(ctx context.Context, userID, targetID string, patch domain.TargetPatch, at time.Time) (*domain.SavingsTarget, error) {
	if err := patch.Validate(); err != nil {
		return nil, err
	}

	var updated *domain.SavingsTarget
	err := r.withTx(ctx, func(tx pgx.Tx) error {
		current, err := scanTarget(tx.QueryRow(ctx, `SELECT `+targetColumns+` FROM savings_targets WHERE id=$1 AND user_id=$2 FOR UPDATE`, targetID, userID))
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return domain.ErrTargetNotFound
			}
			return err
		}

		next := domain.PatchOutcome(*current, patch)
		const stmt = `UPDATE savings_targets
            SET name=$1, target_amount=$2, current_amount=$3, icon=$4, icon_color=$5, target_date=$6, is_completed=$7, updated_at=$8
            WHERE id=$9 AND user_id=$10
            RETURNING ` + targetColumns
		updated, err = scanTarget(tx.QueryRow(ctx, stmt,
			next.Name,
			next.TargetAmount,
			next.CurrentAmount,
			next.Icon,
			next.IconColor,
			next.TargetDate,
			next.IsCompleted,
			at,
			targetID,
			userID,
		))
		return err
	})
	if err != nil {
		return nil, wrap("update target", err)
	}
	return updated, nil
}

// DeleteTarget removes the target when owned by userID and reports whether a row was deleted.
func (r *Repository) DeleteTarget(ctx context.Context, userID, targetID string) (bool, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM savings_targets WHERE id=$1 AND user_id=$2`, targetID, userID)
	if err != nil {
		return false, wrap("delete target", err)
	}
	return tag.RowsAffected() > 0, nil
}

// CountCompleted counts the user's completed targets.
func (r *Repository) CountCompleted(ctx context.Context, userID string) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM savings_targets WHERE user_id=$1 AND is_completed`, userID).Scan(&count)
	if err != nil {
		return 0, wrap("count completed", err)
	}
	return count, nil
}
