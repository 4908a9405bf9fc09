// Package domain defines the savings ledger, the activity trail and the statistics
// derived from them.
package domain

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/PKL-SST-2025/be-tabungin/internal/observability"
)

// Side effect steps run after a ledger mutation commits.
const (
	StepActivity   = "activity"
	StepStatistics = "statistics"
)

// SavingsService orchestrates ledger mutations and their best-effort side effects.
//
// Only the balance update is transactional. Activity recording and statistics updates
// run after commit; their failures are logged and counted but never returned, so the
// caller always observes a committed deposit as successful.
type SavingsService struct {
	targets  TargetStore
	recorder *ActivityRecorder
	stats    *StatisticsEngine
	clock    Clock
	logger   logrus.FieldLogger
}

// ServiceOption configures a SavingsService.
type ServiceOption func(*SavingsService)

// WithLogger overrides the logger used to report swallowed side effect failures.
func WithLogger(logger logrus.FieldLogger) ServiceOption {
	return func(s *SavingsService) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithClock overrides the clock used to stamp ledger mutations.
func WithClock(clock Clock) ServiceOption {
	return func(s *SavingsService) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// NewSavingsService constructs a SavingsService.
func NewSavingsService(targets TargetStore, recorder *ActivityRecorder, stats *StatisticsEngine, opts ...ServiceOption) *SavingsService {
	s := &SavingsService{
		targets:  targets,
		recorder: recorder,
		stats:    stats,
		clock:    SystemClock{},
		logger:   logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateTarget creates a savings target and records a target_created activity.
func (s *SavingsService) CreateTarget(ctx context.Context, input CreateTargetInput) (*SavingsTarget, error) {
	if err := ValidateAmount(input.TargetAmount); err != nil {
		return nil, err
	}

	now := s.clock.Now().UTC()
	target := SavingsTarget{
		ID:            uuid.NewString(),
		UserID:        input.UserID,
		Name:          strings.TrimSpace(input.Name),
		TargetAmount:  input.TargetAmount,
		CurrentAmount: decimal.Zero,
		Icon:          input.Icon,
		IconColor:     input.IconColor,
		TargetDate:    input.TargetDate,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if target.Icon == "" {
		target.Icon = DefaultTargetIcon
	}
	if target.IconColor == "" {
		target.IconColor = DefaultTargetIconColor
	}

	created, err := s.targets.CreateTarget(ctx, target)
	if err != nil {
		observability.RecordLedgerOperation("create", err)
		return nil, err
	}
	observability.RecordLedgerOperation("create", nil)

	sideCtx := context.WithoutCancel(ctx)
	s.bestEffort(StepActivity, created, func() error {
		_, err := s.recorder.RecordTargetCreated(sideCtx, created.UserID, &created.ID, created.Name)
		return err
	})
	return created, nil
}

// Deposit adds amount to the target balance. Validation, lookup and ownership errors are
// returned; side effect failures are not.
func (s *SavingsService) Deposit(ctx context.Context, userID, targetID string, amount decimal.Decimal) (*SavingsTarget, error) {
	if err := ValidateAmount(amount); err != nil {
		observability.RecordLedgerOperation("deposit", err)
		return nil, err
	}

	change, err := s.targets.ApplyDeposit(ctx, userID, targetID, amount, s.clock.Now().UTC())
	observability.RecordLedgerOperation("deposit", err)
	if err != nil {
		return nil, err
	}
	target := change.Target

	sideCtx := context.WithoutCancel(ctx)
	s.bestEffort(StepActivity, &target, func() error {
		if _, err := s.recorder.RecordDeposit(sideCtx, userID, &target.ID, target.Name, amount); err != nil {
			return err
		}
		if change.Completed() {
			_, err := s.recorder.RecordTargetCompleted(sideCtx, userID, &target.ID, target.Name)
			return err
		}
		return nil
	})
	s.bestEffort(StepStatistics, &target, func() error {
		_, err := s.stats.RecordDeposit(sideCtx, userID, amount)
		return err
	})

	return &target, nil
}

// Withdraw removes amount from the target balance, flooring at zero. Withdrawals are
// recorded in the activity log but do not feed the statistics engine.
func (s *SavingsService) Withdraw(ctx context.Context, userID, targetID string, amount decimal.Decimal) (*SavingsTarget, error) {
	if err := ValidateAmount(amount); err != nil {
		observability.RecordLedgerOperation("withdraw", err)
		return nil, err
	}

	change, err := s.targets.ApplyWithdrawal(ctx, userID, targetID, amount, s.clock.Now().UTC())
	observability.RecordLedgerOperation("withdraw", err)
	if err != nil {
		return nil, err
	}
	target := change.Target

	sideCtx := context.WithoutCancel(ctx)
	s.bestEffort(StepActivity, &target, func() error {
		_, err := s.recorder.RecordWithdrawal(sideCtx, userID, &target.ID, amount)
		return err
	})

	return &target, nil
}

// UpdateTarget applies a partial update. Targets owned by other users are reported as
// not found.
func (s *SavingsService) UpdateTarget(ctx context.Context, userID, targetID string, patch TargetPatch) (*SavingsTarget, error) {
	if err := patch.Validate(); err != nil {
		return nil, err
	}
	if patch.Name != nil {
		name := strings.TrimSpace(*patch.Name)
		patch.Name = &name
	}
	target, err := s.targets.UpdateTarget(ctx, userID, targetID, patch, s.clock.Now().UTC())
	observability.RecordLedgerOperation("update", err)
	return target, err
}

// DeleteTarget removes the caller's target and reports whether a row was deleted.
// Deleting another user's target deletes nothing and returns false.
func (s *SavingsService) DeleteTarget(ctx context.Context, userID, targetID string) (bool, error) {
	deleted, err := s.targets.DeleteTarget(ctx, userID, targetID)
	observability.RecordLedgerOperation("delete", err)
	return deleted, err
}

// GetTarget returns one of the caller's targets.
func (s *SavingsService) GetTarget(ctx context.Context, userID, targetID string) (*SavingsTarget, error) {
	return s.targets.GetTarget(ctx, userID, targetID)
}

// ListTargets returns the caller's targets newest first.
func (s *SavingsService) ListTargets(ctx context.Context, userID string) ([]SavingsTarget, error) {
	return s.targets.ListTargets(ctx, userID)
}

// Activities exposes the activity recorder for read paths.
func (s *SavingsService) Activities() *ActivityRecorder {
	return s.recorder
}

// Statistics exposes the statistics engine for read paths.
func (s *SavingsService) Statistics() *StatisticsEngine {
	return s.stats
}

func (s *SavingsService) bestEffort(step string, target *SavingsTarget, fn func() error) {
	start := time.Now()
	err := fn()
	observability.RecordSideEffect(step, time.Since(start), err)
	if err == nil {
		return
	}
	s.logger.WithFields(logrus.Fields{
		"step":      step,
		"user_id":   target.UserID,
		"target_id": target.ID,
		"error":     err.Error(),
	}).Warn("side effect failed after ledger commit")
}
