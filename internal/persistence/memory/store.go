// Package memory provides an in-process implementation of the ledger stores for local
// development and tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/PKL-SST-2025/be-tabungin/internal/domain"
)

// Store keeps targets, activities, statistics and achievements in memory.
type Store struct {
	mu           sync.Mutex
	users        map[string]time.Time
	targets      map[string]domain.SavingsTarget
	activities   []domain.Activity
	statistics   map[string]domain.UserStatistics
	achievements map[string][]domain.Achievement
}

// NewStore constructs an empty Store.
func NewStore() *Store {
	return &Store{
		users:        make(map[string]time.Time),
		targets:      make(map[string]domain.SavingsTarget),
		statistics:   make(map[string]domain.UserStatistics),
		achievements: make(map[string][]domain.Achievement),
	}
}

// EnsureUser records the account creation time used for daily averages. An existing
// user keeps its original creation time.
func (s *Store) EnsureUser(ctx context.Context, userID string, createdAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[userID]; !ok {
		s.users[userID] = createdAt
	}
	return nil
}

// CreateTarget implements domain.TargetStore.
func (s *Store) CreateTarget(ctx context.Context, target domain.SavingsTarget) (*domain.SavingsTarget, error) {
	if err := domain.ValidateAmount(target.TargetAmount); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.targets[target.ID] = target
	out := target
	return &out, nil
}

// GetTarget implements domain.TargetStore.
func (s *Store) GetTarget(ctx context.Context, userID, targetID string) (*domain.SavingsTarget, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	target, ok := s.targets[targetID]
	if !ok || target.UserID != userID {
		return nil, domain.ErrTargetNotFound
	}
	return &target, nil
}

// ListTargets implements domain.TargetStore.
func (s *Store) ListTargets(ctx context.Context, userID string) ([]domain.SavingsTarget, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.SavingsTarget, 0)
	for _, target := range s.targets {
		if target.UserID == userID {
			out = append(out, target)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

// ApplyDeposit implements domain.TargetStore.
func (s *Store) ApplyDeposit(ctx context.Context, userID, targetID string, amount decimal.Decimal, at time.Time) (*domain.BalanceChange, error) {
	return s.applyBalance(userID, targetID, amount, at, domain.DepositOutcome)
}

// ApplyWithdrawal implements domain.TargetStore.
func (s *Store) ApplyWithdrawal(ctx context.Context, userID, targetID string, amount decimal.Decimal, at time.Time) (*domain.BalanceChange, error) {
	return s.applyBalance(userID, targetID, amount, at, domain.WithdrawalOutcome)
}

func (s *Store) applyBalance(userID, targetID string, amount decimal.Decimal, at time.Time, apply func(domain.SavingsTarget, decimal.Decimal) domain.SavingsTarget) (*domain.BalanceChange, error) {
	if err := domain.ValidateAmount(amount); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	target, ok := s.targets[targetID]
	if !ok {
		return nil, domain.ErrTargetNotFound
	}
	if target.UserID != userID {
		return nil, domain.ErrAccessDenied
	}

	next := apply(target, amount)
	next.UpdatedAt = at
	s.targets[targetID] = next
	return &domain.BalanceChange{Target: next, WasCompleted: target.IsCompleted}, nil
}

// UpdateTarget implements domain.TargetStore.
func (s *Store) UpdateTarget(ctx context.Context, userID, targetID string, patch domain.TargetPatch, at time.Time) (*domain.SavingsTarget, error) {
	if err := patch.Validate(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	target, ok := s.targets[targetID]
	if !ok || target.UserID != userID {
		return nil, domain.ErrTargetNotFound
	}
	next := domain.PatchOutcome(target, patch)
	next.UpdatedAt = at
	s.targets[targetID] = next
	return &next, nil
}

// DeleteTarget implements domain.TargetStore. Activities referencing the target are kept.
func (s *Store) DeleteTarget(ctx context.Context, userID, targetID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	target, ok := s.targets[targetID]
	if !ok || target.UserID != userID {
		return false, nil
	}
	delete(s.targets, targetID)
	return true, nil
}

// CountCompleted implements domain.CompletedTargetCounter.
func (s *Store) CountCompleted(ctx context.Context, userID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, target := range s.targets {
		if target.UserID == userID && target.IsCompleted {
			count++
		}
	}
	return count, nil
}

// AppendActivity implements domain.ActivityStore.
func (s *Store) AppendActivity(ctx context.Context, activity domain.Activity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.activities = append(s.activities, activity)
	return nil
}

// ListByUser implements domain.ActivityStore.
func (s *Store) ListByUser(ctx context.Context, userID string, cursor *domain.Cursor, limit int) ([]domain.Activity, *domain.Cursor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	matches := make([]domain.Activity, 0)
	for _, activity := range s.newestFirst() {
		if activity.UserID != userID {
			continue
		}
		if cursor != nil && !before(activity, *cursor) {
			continue
		}
		matches = append(matches, activity)
		if len(matches) == limit {
			break
		}
	}

	var next *domain.Cursor
	if limit > 0 && len(matches) == limit {
		last := matches[len(matches)-1]
		next = &domain.Cursor{CreatedAt: last.CreatedAt, ID: last.ID}
	}
	return matches, next, nil
}

// ListRecent implements domain.ActivityStore.
func (s *Store) ListRecent(ctx context.Context, limit int) ([]domain.Activity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	all := s.newestFirst()
	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

// ListDepositsSince implements domain.ActivityStore.
func (s *Store) ListDepositsSince(ctx context.Context, userID string, since time.Time) ([]domain.Activity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Activity, 0)
	for _, activity := range s.activities {
		if activity.UserID == userID && activity.Type == domain.ActivityDeposit && !activity.CreatedAt.Before(since) {
			out = append(out, activity)
		}
	}
	return out, nil
}

// newestFirst returns a sorted copy of the activity log. Callers hold s.mu.
func (s *Store) newestFirst() []domain.Activity {
	out := make([]domain.Activity, len(s.activities))
	copy(out, s.activities)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

func before(a domain.Activity, c domain.Cursor) bool {
	if a.CreatedAt.Equal(c.CreatedAt) {
		return a.ID < c.ID
	}
	return a.CreatedAt.Before(c.CreatedAt)
}

// GetOrCreateStatistics implements domain.StatisticsStore.
func (s *Store) GetOrCreateStatistics(ctx context.Context, userID string, at time.Time) (*domain.UserStatistics, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stats, ok := s.statistics[userID]
	if !ok {
		stats = domain.UserStatistics{
			UserID:       userID,
			TotalSaved:   decimal.Zero,
			DailyAverage: decimal.Zero,
			CreatedAt:    at,
			UpdatedAt:    at,
		}
		s.statistics[userID] = stats
	}
	return &stats, nil
}

// RecordDeposit implements domain.StatisticsStore. The store mutex serialises updates.
func (s *Store) RecordDeposit(ctx context.Context, userID string, update domain.DepositUpdate) (*domain.UserStatistics, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var prev *domain.UserStatistics
	if stats, ok := s.statistics[userID]; ok {
		prev = &stats
	}
	var created *time.Time
	if ts, ok := s.users[userID]; ok {
		created = &ts
	}

	next := update(prev, created)
	s.statistics[userID] = next
	return &next, nil
}

// AwardAchievement implements domain.StatisticsStore.
func (s *Store) AwardAchievement(ctx context.Context, achievement domain.Achievement) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.achievements[achievement.UserID] {
		if existing.Title == achievement.Title {
			return false, nil
		}
	}
	s.achievements[achievement.UserID] = append(s.achievements[achievement.UserID], achievement)
	if stats, ok := s.statistics[achievement.UserID]; ok {
		stats.AchievementsCount++
		s.statistics[achievement.UserID] = stats
	}
	return true, nil
}

// ListAchievements implements domain.StatisticsStore.
func (s *Store) ListAchievements(ctx context.Context, userID string) ([]domain.Achievement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Achievement, len(s.achievements[userID]))
	copy(out, s.achievements[userID])
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].EarnedAt.After(out[j].EarnedAt)
	})
	return out, nil
}
