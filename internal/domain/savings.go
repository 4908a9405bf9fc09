package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

const (
	DefaultTargetIcon      = "💰"
	DefaultTargetIconColor = "bg-blue-500"
)

// SavingsTarget is a named savings goal and its running balance.
type SavingsTarget struct {
	ID            string
	UserID        string
	Name          string
	TargetAmount  decimal.Decimal
	CurrentAmount decimal.Decimal
	Icon          string
	IconColor     string
	TargetDate    *time.Time
	IsCompleted   bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// CreateTargetInput captures the payload for a new savings target.
type CreateTargetInput struct {
	UserID       string
	Name         string
	TargetAmount decimal.Decimal
	Icon         string
	IconColor    string
	TargetDate   *time.Time
}

// TargetPatch lists optional field updates; nil fields are left unchanged.
type TargetPatch struct {
	Name          *string
	TargetAmount  *decimal.Decimal
	CurrentAmount *decimal.Decimal
	Icon          *string
	IconColor     *string
	TargetDate    *time.Time
	IsCompleted   *bool
}

// Validate checks the monetary fields of the patch.
func (p TargetPatch) Validate() error {
	if p.TargetAmount != nil {
		if err := ValidateAmount(*p.TargetAmount); err != nil {
			return err
		}
	}
	if p.CurrentAmount != nil {
		if p.CurrentAmount.IsNegative() {
			return ErrInvalidAmount
		}
		return validateStorable(*p.CurrentAmount)
	}
	return nil
}

// BalanceChange is the committed outcome of a deposit or withdrawal.
type BalanceChange struct {
	Target       SavingsTarget
	WasCompleted bool
}

// Completed reports whether the change moved the target into the completed state.
func (c BalanceChange) Completed() bool {
	return !c.WasCompleted && c.Target.IsCompleted
}

// TargetStore is the ledger store for savings targets.
//
// ApplyDeposit and ApplyWithdrawal run inside a single transaction scoped to the target
// row: existence and ownership are re-checked and the balance is updated relative to the
// stored value, never from a cached read.
type TargetStore interface {
	CreateTarget(ctx context.Context, target SavingsTarget) (*SavingsTarget, error)
	GetTarget(ctx context.Context, userID, targetID string) (*SavingsTarget, error)
	ListTargets(ctx context.Context, userID string) ([]SavingsTarget, error)
	ApplyDeposit(ctx context.Context, userID, targetID string, amount decimal.Decimal, at time.Time) (*BalanceChange, error)
	ApplyWithdrawal(ctx context.Context, userID, targetID string, amount decimal.Decimal, at time.Time) (*BalanceChange, error)
	UpdateTarget(ctx context.Context, userID, targetID string, patch TargetPatch, at time.Time) (*SavingsTarget, error)
	DeleteTarget(ctx context.Context, userID, targetID string) (bool, error)
	CountCompleted(ctx context.Context, userID string) (int, error)
}

// DepositOutcome applies a deposit to t. Completion is one-way: a completed target stays
// completed.
func DepositOutcome(t SavingsTarget, amount decimal.Decimal) SavingsTarget {
	t.CurrentAmount = t.CurrentAmount.Add(amount)
	if t.CurrentAmount.GreaterThanOrEqual(t.TargetAmount) {
		t.IsCompleted = true
	}
	return t
}

// WithdrawalOutcome applies a withdrawal to t, flooring the balance at zero. The target
// leaves the completed state once the balance drops below the target amount.
func WithdrawalOutcome(t SavingsTarget, amount decimal.Decimal) SavingsTarget {
	next := t.CurrentAmount.Sub(amount)
	if next.LessThan(t.TargetAmount) {
		t.IsCompleted = false
	}
	if next.IsNegative() {
		next = decimal.Zero
	}
	t.CurrentAmount = next
	return t
}

// PatchOutcome applies patch to t. An explicit IsCompleted wins; otherwise the flag is
// recomputed whenever either amount changed.
func PatchOutcome(t SavingsTarget, patch TargetPatch) SavingsTarget {
	if patch.Name != nil {
		t.Name = *patch.Name
	}
	if patch.TargetAmount != nil {
		t.TargetAmount = *patch.TargetAmount
	}
	if patch.CurrentAmount != nil {
		t.CurrentAmount = *patch.CurrentAmount
	}
	if patch.Icon != nil {
		t.Icon = *patch.Icon
	}
	if patch.IconColor != nil {
		t.IconColor = *patch.IconColor
	}
	if patch.TargetDate != nil {
		d := *patch.TargetDate
		t.TargetDate = &d
	}
	switch {
	case patch.IsCompleted != nil:
		t.IsCompleted = *patch.IsCompleted
	case patch.TargetAmount != nil || patch.CurrentAmount != nil:
		t.IsCompleted = t.CurrentAmount.GreaterThanOrEqual(t.TargetAmount)
	}
	return t
}

// UserDirectory records when a user was first seen, which anchors the daily average.
type UserDirectory interface {
	EnsureUser(ctx context.Context, userID string, createdAt time.Time) error
}
