package service_test

import (
	. "github.com/chasepay/settlement/internal/service"

	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCalculateFreezing(t *testing.T) {
	// 1000 RUB at 95 RUB/USDT, no markup, 2% trader fee.
	params, err := CalculateFreezing(dec("1000"), dec("95"), decimal.Zero, dec("2"))
	require.NoError(t, err)

	assert.Equal(t, "95", params.AdjustedRate.String())
	assert.Equal(t, "10.526315", params.FrozenUsdtAmount.String())
	assert.Equal(t, "0.210526", params.CalculatedCommission.String())
	assert.Equal(t, "10.736841", params.TotalRequired.String())
}

func TestCalculateFreezing_Markup(t *testing.T) {
	// A 5% platform markup lowers the rate the trader converts at,
	// raising the freeze.
	params, err := CalculateFreezing(dec("1000"), dec("100"), dec("5"), decimal.Zero)
	require.NoError(t, err)

	assert.Equal(t, "95", params.AdjustedRate.String())
	assert.Equal(t, "10.526315", params.FrozenUsdtAmount.String())
	assert.True(t, params.CalculatedCommission.IsZero())
	assert.Equal(t, "10.526315", params.TotalRequired.String())
}

func TestCalculateFreezing_Deterministic(t *testing.T) {
	first, err := CalculateFreezing(dec("4999.99"), dec("91.35"), dec("1.5"), dec("2.75"))
	require.NoError(t, err)

	for i := 0; i < 100; i++ {
		again, err := CalculateFreezing(dec("4999.99"), dec("91.35"), dec("1.5"), dec("2.75"))
		require.NoError(t, err)
		assert.True(t, first.TotalRequired.Equal(again.TotalRequired))
		assert.True(t, first.FrozenUsdtAmount.Equal(again.FrozenUsdtAmount))
		assert.True(t, first.CalculatedCommission.Equal(again.CalculatedCommission))
	}
}

func TestCalculateFreezing_TruncatesNotRounds(t *testing.T) {
	// 100/3 = 33.333333... must truncate at 6 decimals, never round up.
	params, err := CalculateFreezing(dec("100"), dec("3"), decimal.Zero, decimal.Zero)
	require.NoError(t, err)
	assert.Equal(t, "33.333333", params.FrozenUsdtAmount.String())
}

func TestCalculateFreezing_Invalid(t *testing.T) {
	cases := []struct {
		name   string
		amount string
		rate   string
		kkk    string
		fee    string
	}{
		{"zero amount", "0", "95", "0", "2"},
		{"negative amount", "-10", "95", "0", "2"},
		{"zero rate", "1000", "0", "0", "2"},
		{"markup at 100", "1000", "95", "100", "2"},
		{"negative fee", "1000", "95", "0", "-1"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := CalculateFreezing(dec(tc.amount), dec(tc.rate), dec(tc.kkk), dec(tc.fee))
			assert.Error(t, err)
		})
	}
}
