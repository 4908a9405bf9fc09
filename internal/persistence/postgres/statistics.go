package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/PKL-SST-2025/be-tabungin/internal/domain"
)

const statisticsColumns = `user_id, total_saved, streak_days, daily_average, achievements_count, last_deposit_date, created_at, updated_at`

func scanStatistics(row rowScanner) (*domain.UserStatistics, error) {
	var s domain.UserStatistics
	if err := row.Scan(&s.UserID, &s.TotalSaved, &s.StreakDays, &s.DailyAverage, &s.AchievementsCount, &s.LastDepositDate, &s.CreatedAt, &s.UpdatedAt); err != nil {
		return nil, err
	}
	return &s, nil
}

// GetOrCreateStatistics returns the user's statistics row, inserting the zero row first
// when none exists.
func (r *Repository) GetOrCreateStatistics(ctx context.Context, userID string, at time.Time) (*domain.UserStatistics, error) {
	const insert = `INSERT INTO user_statistics (user_id, created_at, updated_at) VALUES ($1, $2, $2)
        ON CONFLICT (user_id) DO NOTHING`
	if _, err := r.pool.Exec(ctx, insert, userID, at); err != nil {
		return nil, wrap("create statistics", err)
	}

	stats, err := scanStatistics(r.pool.QueryRow(ctx, `SELECT `+statisticsColumns+` FROM user_statistics WHERE user_id=$1`, userID))
	if err != nil {
		return nil, wrap("get statistics", err)
	}
	return stats, nil
}

// RecordDeposit serialises statistics updates per user with a transaction-scoped
// advisory lock, so the first deposit of a user is covered before the row exists.
func (r *Repository) RecordDeposit(ctx context.Context, userID string, update domain.DepositUpdate) (*domain.UserStatistics, error) {
	var result *domain.UserStatistics
	err := r.withTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, "user_statistics:"+userID); err != nil {
			return err
		}

		prev, err := scanStatistics(tx.QueryRow(ctx, `SELECT `+statisticsColumns+` FROM user_statistics WHERE user_id=$1 FOR UPDATE`, userID))
		if err != nil {
			if !errors.Is(err, pgx.ErrNoRows) {
				return err
			}
			prev = nil
		}

		var accountCreated *time.Time
		var created time.Time
		err = tx.QueryRow(ctx, `SELECT created_at FROM users WHERE id=$1`, userID).Scan(&created)
		switch {
		case err == nil:
			accountCreated = &created
		case !errors.Is(err, pgx.ErrNoRows):
			return err
		}

		next := update(prev, accountCreated)
		const upsert = `INSERT INTO user_statistics (` + statisticsColumns + `)
            VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
            ON CONFLICT (user_id) DO UPDATE SET
                total_saved = EXCLUDED.total_saved,
                streak_days = EXCLUDED.streak_days,
                daily_average = EXCLUDED.daily_average,
                last_deposit_date = EXCLUDED.last_deposit_date,
                updated_at = EXCLUDED.updated_at
            RETURNING ` + statisticsColumns
		result, err = scanStatistics(tx.QueryRow(ctx, upsert,
			userID,
			next.TotalSaved,
			next.StreakDays,
			next.DailyAverage,
			next.AchievementsCount,
			next.LastDepositDate,
			next.CreatedAt,
			next.UpdatedAt,
		))
		return err
	})
	if err != nil {
		return nil, wrap("record deposit statistics", err)
	}
	return result, nil
}

// AwardAchievement inserts the achievement unless the user already holds one with the
// same title, bumping achievements_count on insert. It reports whether a row was added.
func (r *Repository) AwardAchievement(ctx context.Context, achievement domain.Achievement) (bool, error) {
	var inserted bool
	err := r.withTx(ctx, func(tx pgx.Tx) error {
		const insert = `INSERT INTO achievements (id, user_id, title, description, icon, icon_color, earned_at)
            VALUES ($1,$2,$3,$4,$5,$6,$7)
            ON CONFLICT (user_id, title) DO NOTHING`
		tag, err := tx.Exec(ctx, insert,
			achievement.ID,
			achievement.UserID,
			achievement.Title,
			achievement.Description,
			achievement.Icon,
			achievement.IconColor,
			achievement.EarnedAt,
		)
		if err != nil {
			return err
		}
		inserted = tag.RowsAffected() > 0
		if !inserted {
			return nil
		}
		_, err = tx.Exec(ctx, `UPDATE user_statistics SET achievements_count = achievements_count + 1, updated_at = $2 WHERE user_id=$1`,
			achievement.UserID, achievement.EarnedAt)
		return err
	})
	if err != nil {
		return false, wrap("award achievement", err)
	}
	return inserted, nil
}

// ListAchievements returns the user's achievements newest first.
func (r *Repository) ListAchievements(ctx context.Context, userID string) ([]domain.Achievement, error) {
	const query = `SELECT id, user_id, title, description, icon, icon_color, earned_at
        FROM achievements WHERE user_id=$1 ORDER BY earned_at DESC, id DESC`

	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, wrap("list achievements", err)
	}
	defer rows.Close()

	results := make([]domain.Achievement, 0)
	for rows.Next() {
		var a domain.Achievement
		if err := rows.Scan(&a.ID, &a.UserID, &a.Title, &a.Description, &a.Icon, &a.IconColor, &a.EarnedAt); err != nil {
			return nil, wrap("list achievements", err)
		}
		results = append(results, a)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap("list achievements", err)
	}
	return results, nil
}
