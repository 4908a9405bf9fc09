package domain

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestFormatRupiah(t *testing.T) {
	cases := map[string]string{
		"500":      "500",
		"999.6":    "1000",
		"40000":    "40K",
		"1500":     "2K",
		"1000000":  "1.0M",
		"12500000": "12.5M",
		"-75000":   "75K",
	}
	for in, want := range cases {
		require.Equal(t, want, FormatRupiah(decimal.RequireFromString(in)), in)
	}
}

func TestParseAmount(t *testing.T) {
	amount, err := ParseAmount(" 40000.50 ")
	require.NoError(t, err)
	require.True(t, amount.Equal(decimal.RequireFromString("40000.5")))

	for _, raw := range []string{"1.50", "0.01", "1.500", "9999999999999.99"} {
		_, err := ParseAmount(raw)
		require.NoError(t, err, raw)
	}

	for _, raw := range []string{"", "0", "-1", "abc", "0.004", "1.005", "1e13", "10000000000000"} {
		_, err := ParseAmount(raw)
		require.ErrorIs(t, err, ErrInvalidAmount, raw)
	}
}
