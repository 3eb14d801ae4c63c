package service

import (
	"fmt"

	"github.com/chasepay/settlement/internal/domain"
	"github.com/shopspring/decimal"
)

// FreezingParams is the settlement-asset hold computed for one inbound
// deal. TotalRequired is what gets frozen against the trader.
type FreezingParams struct {
	AdjustedRate         decimal.Decimal
	FrozenUsdtAmount     decimal.Decimal
	CalculatedCommission decimal.Decimal
	TotalRequired        decimal.Decimal
	KkkPercent           decimal.Decimal
	FeeInPercent         decimal.Decimal
}

// CalculateFreezing computes the freeze for a fiat amount at a market
// rate with the platform markup (kkk) and the trader's inbound fee.
// Pure and deterministic: all intermediate values are decimal and every
// result is truncated to the settlement asset scale, so identical inputs
// always yield identical outputs.
//
//	adjustedRate = marketRate * (1 - kkk/100)
//	frozen       = amount / adjustedRate
//	commission   = frozen * fee/100
//	total        = frozen + commission
func CalculateFreezing(amount, marketRate, kkkPercent, feeInPercent decimal.Decimal) (FreezingParams, error) {
	if amount.Sign() <= 0 {
		return FreezingParams{}, fmt.Errorf("%w: amount must be positive, got %s", domain.ErrValidation, amount)
	}
	if marketRate.Sign() <= 0 {
		return FreezingParams{}, fmt.Errorf("%w: market rate must be positive, got %s", domain.ErrValidation, marketRate)
	}
	if kkkPercent.Sign() < 0 || kkkPercent.GreaterThanOrEqual(decimal.NewFromInt(100)) {
		return FreezingParams{}, fmt.Errorf("%w: markup percent must be in [0, 100), got %s", domain.ErrValidation, kkkPercent)
	}
	if feeInPercent.Sign() < 0 {
		return FreezingParams{}, fmt.Errorf("%w: trader fee percent must not be negative, got %s", domain.ErrValidation, feeInPercent)
	}

	one := decimal.NewFromInt(1)
	adjustedRate := marketRate.Mul(one.Sub(domain.Percent(kkkPercent)))
	if adjustedRate.Sign() <= 0 {
		return FreezingParams{}, fmt.Errorf("%w: adjusted rate collapsed to %s", domain.ErrValidation, adjustedRate)
	}

	frozen := domain.TruncateSettlement(amount.Div(adjustedRate))
	commission := domain.TruncateSettlement(frozen.Mul(domain.Percent(feeInPercent)))
	total := frozen.Add(commission)

	return FreezingParams{
		AdjustedRate:         adjustedRate,
		FrozenUsdtAmount:     frozen,
		CalculatedCommission: commission,
		TotalRequired:        total,
		KkkPercent:           kkkPercent,
		FeeInPercent:         feeInPercent,
	}, nil
}
