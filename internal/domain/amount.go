package domain

import "github.com/shopspring/decimal"

// SettlementScale is the decimal precision of the settlement asset
// (USDT). Freeze amounts and commissions are truncated, never rounded
// up, so the platform always freezes at most what the formula yields.
const SettlementScale = 6

// FiatScale is the precision used for fiat amounts.
const FiatScale = 2

// TruncateSettlement truncates d to the settlement asset scale.
func TruncateSettlement(d decimal.Decimal) decimal.Decimal {
	return d.Truncate(SettlementScale)
}

// TruncateFiat truncates d to fiat precision.
func TruncateFiat(d decimal.Decimal) decimal.Decimal {
	return d.Truncate(FiatScale)
}

// Percent converts a percent value (e.g. 1.5) into its fractional
// multiplier (0.015).
func Percent(p decimal.Decimal) decimal.Decimal {
	return p.Div(decimal.NewFromInt(100))
}
