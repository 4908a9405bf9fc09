package domain

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestDepositOutcomeCompletesOnce(t *testing.T) {
	target := SavingsTarget{TargetAmount: d("100000"), CurrentAmount: d("0")}

	target = DepositOutcome(target, d("40000"))
	require.False(t, target.IsCompleted)

	target = DepositOutcome(target, d("60000"))
	require.True(t, target.IsCompleted)
	require.True(t, target.CurrentAmount.Equal(d("100000")))

	target.TargetAmount = d("500000")
	target = DepositOutcome(target, d("1"))
	require.True(t, target.IsCompleted, "deposits never clear completion")
}

func TestWithdrawalOutcomeFloorsAtZero(t *testing.T) {
	target := SavingsTarget{TargetAmount: d("100000"), CurrentAmount: d("100000"), IsCompleted: true}

	target = WithdrawalOutcome(target, d("1"))
	require.False(t, target.IsCompleted)
	require.True(t, target.CurrentAmount.Equal(d("99999")))

	target = WithdrawalOutcome(target, d("250000"))
	require.True(t, target.CurrentAmount.IsZero())
	require.False(t, target.IsCompleted)
}

func TestPatchOutcome(t *testing.T) {
	base := SavingsTarget{Name: "Laptop", TargetAmount: d("1000"), CurrentAmount: d("400")}

	name := "Motor"
	next := PatchOutcome(base, TargetPatch{Name: &name})
	require.Equal(t, "Motor", next.Name)
	require.False(t, next.IsCompleted)

	lower := d("400")
	next = PatchOutcome(base, TargetPatch{TargetAmount: &lower})
	require.True(t, next.IsCompleted, "amount change recomputes completion")

	no := false
	next = PatchOutcome(base, TargetPatch{TargetAmount: &lower, IsCompleted: &no})
	require.False(t, next.IsCompleted, "explicit flag wins")

	negative := d("-1")
	require.ErrorIs(t, TargetPatch{CurrentAmount: &negative}.Validate(), ErrInvalidAmount)
	zero := d("0")
	require.ErrorIs(t, TargetPatch{TargetAmount: &zero}.Validate(), ErrInvalidAmount)
	require.NoError(t, TargetPatch{CurrentAmount: &zero}.Validate())

	for _, raw := range []string{"0.001", "1.005", "1e13"} {
		value := d(raw)
		require.ErrorIs(t, TargetPatch{TargetAmount: &value}.Validate(), ErrInvalidAmount, raw)
		require.ErrorIs(t, TargetPatch{CurrentAmount: &value}.Validate(), ErrInvalidAmount, raw)
	}
}
