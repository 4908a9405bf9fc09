package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// UserStatistics is the cached per-user aggregate maintained after each deposit.
type UserStatistics struct {
	UserID            string
	TotalSaved        decimal.Decimal
	StreakDays        int
	DailyAverage      decimal.Decimal
	AchievementsCount int
	LastDepositDate   *time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Achievement is a milestone badge, unique per (user, title).
type Achievement struct {
	ID          string
	UserID      string
	Title       string
	Description string
	Icon        string
	IconColor   string
	EarnedAt    time.Time
}

// DepositUpdate computes the next statistics row from the locked previous one.
// prev is nil when the user has no statistics row yet.
type DepositUpdate func(prev *UserStatistics, accountCreated *time.Time) UserStatistics

// StatisticsStore persists user statistics and achievements.
//
// RecordDeposit must hold a per-user lock while it reads the previous row, applies
// update and writes the result, so concurrent deposits by one user do not race on the
// streak continuity check.
type StatisticsStore interface {
	GetOrCreateStatistics(ctx context.Context, userID string, at time.Time) (*UserStatistics, error)
	RecordDeposit(ctx context.Context, userID string, update DepositUpdate) (*UserStatistics, error)
	AwardAchievement(ctx context.Context, achievement Achievement) (bool, error)
	ListAchievements(ctx context.Context, userID string) ([]Achievement, error)
}

// CompletedTargetCounter reports how many targets a user has completed.
type CompletedTargetCounter interface {
	CountCompleted(ctx context.Context, userID string) (int, error)
}

// AchievementRule awards an achievement when its condition holds.
type AchievementRule struct {
	Title       string
	Description string
	Icon        string
	IconColor   string
	Satisfied   func(stats UserStatistics, completedTargets int) bool
}

var (
	streakThreshold     = 10
	totalSavedThreshold = decimal.NewFromInt(10_000_000)
	completedThreshold  = 3
)

// DefaultAchievementRules are evaluated after every deposit.
var DefaultAchievementRules = []AchievementRule{
	{
		Title:       "Streak 10 Hari!",
		Description: "Konsisten menabung 10 hari berturut-turut",
		Icon:        "🏆",
		IconColor:   "bg-yellow-500",
		Satisfied: func(stats UserStatistics, _ int) bool {
			return stats.StreakDays >= streakThreshold
		},
	},
	{
		Title:       "RP 10M+",
		Description: "Total tabungan yang terkumpul mencapai 10M+",
		Icon:        "💰",
		IconColor:   "bg-green-500",
		Satisfied: func(stats UserStatistics, _ int) bool {
			return stats.TotalSaved.GreaterThanOrEqual(totalSavedThreshold)
		},
	},
	{
		Title:       "Target Master",
		Description: "Berhasil mencapai 3 target tabungan",
		Icon:        "🎯",
		IconColor:   "bg-red-500",
		Satisfied: func(_ UserStatistics, completed int) bool {
			return completed >= completedThreshold
		},
	},
}

// StatisticsEngine derives streaks, averages and achievements.
type StatisticsEngine struct {
	stats      StatisticsStore
	activities ActivityStore
	targets    CompletedTargetCounter
	clock      Clock
	loc        *time.Location
	rules      []AchievementRule
}

// StatisticsOption configures a StatisticsEngine.
type StatisticsOption func(*StatisticsEngine)

// WithLocation overrides the reference zone used to determine calendar days.
func WithLocation(loc *time.Location) StatisticsOption {
	return func(e *StatisticsEngine) {
		if loc != nil {
			e.loc = loc
		}
	}
}

// WithRules replaces the achievement rules.
func WithRules(rules []AchievementRule) StatisticsOption {
	return func(e *StatisticsEngine) {
		e.rules = rules
	}
}

// NewStatisticsEngine constructs a StatisticsEngine.
func NewStatisticsEngine(stats StatisticsStore, activities ActivityStore, targets CompletedTargetCounter, clock Clock, opts ...StatisticsOption) *StatisticsEngine {
	if clock == nil {
		clock = SystemClock{}
	}
	e := &StatisticsEngine{
		stats:      stats,
		activities: activities,
		targets:    targets,
		clock:      clock,
		loc:        ReferenceZone,
		rules:      DefaultAchievementRules,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// RecordDeposit folds a deposit into the cached statistics and then evaluates
// achievements.
func (e *StatisticsEngine) RecordDeposit(ctx context.Context, userID string, amount decimal.Decimal) (*UserStatistics, error) {
	if err := ValidateAmount(amount); err != nil {
		return nil, err
	}
	now := e.clock.Now()
	today := CalendarDay(now, e.loc)

	stats, err := e.stats.RecordDeposit(ctx, userID, func(prev *UserStatistics, accountCreated *time.Time) UserStatistics {
		var created *time.Time
		if accountCreated != nil {
			day := CalendarDay(*accountCreated, e.loc)
			created = &day
		}
		next := UserStatistics{UserID: userID, CreatedAt: now.UTC()}
		if prev != nil {
			next = *prev
		}
		var last *time.Time
		if prev != nil {
			last = prev.LastDepositDate
		}
		next.StreakDays = NextCachedStreak(next.StreakDays, last, today)
		next.TotalSaved = next.TotalSaved.Add(amount)
		next.DailyAverage = DailyAverage(next.TotalSaved, created, today)
		next.LastDepositDate = &today
		next.UpdatedAt = now.UTC()
		return next
	})
	if err != nil {
		return nil, err
	}

	awarded, err := e.EvaluateAchievements(ctx, userID, *stats)
	if err != nil {
		return stats, err
	}
	stats.AchievementsCount += len(awarded)
	return stats, nil
}

// EvaluateAchievements awards every satisfied rule the user does not hold yet and
// returns the newly awarded achievements.
func (e *StatisticsEngine) EvaluateAchievements(ctx context.Context, userID string, stats UserStatistics) ([]Achievement, error) {
	completed, err := e.targets.CountCompleted(ctx, userID)
	if err != nil {
		return nil, err
	}

	var awarded []Achievement
	for _, rule := range e.rules {
		if !rule.Satisfied(stats, completed) {
			continue
		}
		achievement := Achievement{
			ID:          uuid.NewString(),
			UserID:      userID,
			Title:       rule.Title,
			Description: rule.Description,
			Icon:        rule.Icon,
			IconColor:   rule.IconColor,
			EarnedAt:    e.clock.Now().UTC(),
		}
		inserted, err := e.stats.AwardAchievement(ctx, achievement)
		if err != nil {
			return awarded, err
		}
		if inserted {
			awarded = append(awarded, achievement)
		}
	}
	return awarded, nil
}

// GetStatistics returns the cached statistics, creating the zero row on first read.
func (e *StatisticsEngine) GetStatistics(ctx context.Context, userID string) (*UserStatistics, error) {
	return e.stats.GetOrCreateStatistics(ctx, userID, e.clock.Now().UTC())
}

// CachedStreakDays returns the incrementally maintained streak counter. It can diverge
// from ComputeStreakWindow, which rescans the activity log.
func (e *StatisticsEngine) CachedStreakDays(ctx context.Context, userID string) (int, error) {
	stats, err := e.GetStatistics(ctx, userID)
	if err != nil {
		return 0, err
	}
	return stats.StreakDays, nil
}

// ComputeStreakWindow rebuilds the streak from deposit activities over the last
// windowDays calendar days.
func (e *StatisticsEngine) ComputeStreakWindow(ctx context.Context, userID string, windowDays int) (*StreakWindow, error) {
	if windowDays <= 0 {
		windowDays = DefaultStreakWindowDays
	}
	if windowDays > MaxStreakWindowDays {
		windowDays = MaxStreakWindowDays
	}
	now := e.clock.Now()
	today := CalendarDay(now, e.loc)
	since := StartOfDay(today.AddDate(0, 0, -(windowDays-1)), e.loc)

	deposits, err := e.activities.ListDepositsSince(ctx, userID, since)
	if err != nil {
		return nil, err
	}
	window := BuildStreakWindow(deposits, now, e.loc, windowDays)
	return &window, nil
}

// GetAchievements lists the user's achievements newest first.
func (e *StatisticsEngine) GetAchievements(ctx context.Context, userID string) ([]Achievement, error) {
	return e.stats.ListAchievements(ctx, userID)
}
