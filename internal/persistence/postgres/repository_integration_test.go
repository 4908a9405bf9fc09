//go:build integration

package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	postgrescontainer "github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/PKL-SST-2025/be-tabungin/internal/domain"
)

func setupRepository(t *testing.T) (*Repository, *pgxpool.Pool) {
	t.Helper()
	ctx := context.Background()

	pg, err := postgrescontainer.RunContainer(ctx,
		postgrescontainer.WithDatabase("tabungin"),
		postgrescontainer.WithUsername("tabungin"),
		postgrescontainer.WithPassword("tabungin"),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pg.Terminate(ctx) })

	connStr, err := pg.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	require.NoError(t, waitForDatabase(ctx, connStr))
	require.NoError(t, RunMigrations(connStr))

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	return NewRepository(pool), pool
}

func newTarget(userID string, amount int64) domain.SavingsTarget {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return domain.SavingsTarget{
		ID:            uuid.NewString(),
		UserID:        userID,
		Name:          "Laptop",
		TargetAmount:  decimal.NewFromInt(amount),
		CurrentAmount: decimal.Zero,
		Icon:          domain.DefaultTargetIcon,
		IconColor:     domain.DefaultTargetIconColor,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

func TestRepositoryBalanceLifecycle(t *testing.T) {
	ctx := context.Background()
	repo, _ := setupRepository(t)

	userID := uuid.NewString()
	target, err := repo.CreateTarget(ctx, newTarget(userID, 100000))
	require.NoError(t, err)

	change, err := repo.ApplyDeposit(ctx, userID, target.ID, decimal.NewFromInt(40000), time.Now().UTC())
	require.NoError(t, err)
	require.True(t, change.Target.CurrentAmount.Equal(decimal.NewFromInt(40000)))
	require.False(t, change.Target.IsCompleted)

	change, err = repo.ApplyDeposit(ctx, userID, target.ID, decimal.NewFromInt(60000), time.Now().UTC())
	require.NoError(t, err)
	require.True(t, change.Target.IsCompleted)
	require.True(t, change.Completed())

	change, err = repo.ApplyWithdrawal(ctx, userID, target.ID, decimal.NewFromInt(1), time.Now().UTC())
	require.NoError(t, err)
	require.True(t, change.Target.CurrentAmount.Equal(decimal.NewFromInt(99999)))
	require.False(t, change.Target.IsCompleted)

	change, err = repo.ApplyWithdrawal(ctx, userID, target.ID, decimal.NewFromInt(500000), time.Now().UTC())
	require.NoError(t, err)
	require.True(t, change.Target.CurrentAmount.IsZero())

	_, err = repo.ApplyDeposit(ctx, uuid.NewString(), target.ID, decimal.NewFromInt(10), time.Now().UTC())
	require.ErrorIs(t, err, domain.ErrAccessDenied)

	_, err = repo.ApplyDeposit(ctx, userID, uuid.NewString(), decimal.NewFromInt(10), time.Now().UTC())
	require.ErrorIs(t, err, domain.ErrTargetNotFound)
}

func TestRepositoryUpdateAndDeleteAreOwnerScoped(t *testing.T) {
	ctx := context.Background()
	repo, _ := setupRepository(t)

	userID := uuid.NewString()
	target, err := repo.CreateTarget(ctx, newTarget(userID, 1000))
	require.NoError(t, err)

	name := "Motor"
	_, err = repo.UpdateTarget(ctx, uuid.NewString(), target.ID, domain.TargetPatch{Name: &name}, time.Now().UTC())
	require.ErrorIs(t, err, domain.ErrTargetNotFound)

	current := decimal.NewFromInt(1000)
	updated, err := repo.UpdateTarget(ctx, userID, target.ID, domain.TargetPatch{Name: &name, CurrentAmount: &current}, time.Now().UTC())
	require.NoError(t, err)
	require.Equal(t, "Motor", updated.Name)
	require.True(t, updated.IsCompleted)

	count, err := repo.CountCompleted(ctx, userID)
	require.NoError(t, err)
	require.Equal(t, 1, count)

	deleted, err := repo.DeleteTarget(ctx, uuid.NewString(), target.ID)
	require.NoError(t, err)
	require.False(t, deleted)

	deleted, err = repo.DeleteTarget(ctx, userID, target.ID)
	require.NoError(t, err)
	require.True(t, deleted)
}

func TestRepositoryActivitiesWriteOutbox(t *testing.T) {
	ctx := context.Background()
	repo, pool := setupRepository(t)

	userID := uuid.NewString()
	target, err := repo.CreateTarget(ctx, newTarget(userID, 1000))
	require.NoError(t, err)

	recorder := domain.NewActivityRecorder(repo, nil)
	_, err = recorder.RecordDeposit(ctx, userID, &target.ID, target.Name, decimal.NewFromInt(250))
	require.NoError(t, err)
	_, err = recorder.RecordWithdrawal(ctx, userID, &target.ID, decimal.NewFromInt(50))
	require.NoError(t, err)

	var outboxRows int
	require.NoError(t, pool.QueryRow(ctx, `SELECT COUNT(*) FROM outbox WHERE user_id=$1 AND topic='savings_activity_events'`, userID).Scan(&outboxRows))
	require.Equal(t, 2, outboxRows)

	page, next, err := repo.ListByUser(ctx, userID, nil, 1)
	require.NoError(t, err)
	require.Len(t, page, 1)
	require.Equal(t, domain.ActivityWithdrawal, page[0].Type)
	require.True(t, page[0].Amount.Equal(decimal.NewFromInt(-50)))
	require.NotNil(t, next)

	page, _, err = repo.ListByUser(ctx, userID, next, 10)
	require.NoError(t, err)
	require.Len(t, page, 1)
	require.Equal(t, domain.ActivityDeposit, page[0].Type)

	deleted, err := repo.DeleteTarget(ctx, userID, target.ID)
	require.NoError(t, err)
	require.True(t, deleted)

	deposits, err := repo.ListDepositsSince(ctx, userID, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	require.Len(t, deposits, 1)
	require.Nil(t, deposits[0].SavingsTargetID)
}

func TestRepositoryStatisticsAndAchievements(t *testing.T) {
	ctx := context.Background()
	repo, _ := setupRepository(t)

	userID := uuid.NewString()
	require.NoError(t, repo.EnsureUser(ctx, userID, time.Now().Add(-72*time.Hour)))

	stats, err := repo.GetOrCreateStatistics(ctx, userID, time.Now().UTC())
	require.NoError(t, err)
	require.True(t, stats.TotalSaved.IsZero())

	updated, err := repo.RecordDeposit(ctx, userID, func(prev *domain.UserStatistics, created *time.Time) domain.UserStatistics {
		require.NotNil(t, prev)
		require.NotNil(t, created)
		next := *prev
		next.TotalSaved = next.TotalSaved.Add(decimal.NewFromInt(300))
		next.StreakDays = 1
		return next
	})
	require.NoError(t, err)
	require.True(t, updated.TotalSaved.Equal(decimal.NewFromInt(300)))

	achievement := domain.Achievement{
		ID:       uuid.NewString(),
		UserID:   userID,
		Title:    "Target Master",
		Icon:     "🎯",
		EarnedAt: time.Now().UTC(),
	}
	inserted, err := repo.AwardAchievement(ctx, achievement)
	require.NoError(t, err)
	require.True(t, inserted)

	achievement.ID = uuid.NewString()
	inserted, err = repo.AwardAchievement(ctx, achievement)
	require.NoError(t, err)
	require.False(t, inserted)

	stats, err = repo.GetOrCreateStatistics(ctx, userID, time.Now().UTC())
	require.NoError(t, err)
	require.Equal(t, 1, stats.AchievementsCount)

	list, err := repo.ListAchievements(ctx, userID)
	require.NoError(t, err)
	require.Len(t, list, 1)
}

func waitForDatabase(ctx context.Context, connStr string) error {
	deadline := time.Now().Add(30 * time.Second)
	for {
		pool, err := pgxpool.New(ctx, connStr)
		if err == nil {
			err = pool.Ping(ctx)
			pool.Close()
			if err == nil {
				return nil
			}
		}
		if time.Now().After(deadline) {
			return err
		}
		time.Sleep(time.Second)
	}
}
