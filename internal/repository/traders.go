package repository

import (
	"context"
	"fmt"

	"github.com/chasepay/settlement/internal/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

func (q *Queries) GetTrader(ctx context.Context, id uuid.UUID) (models.Trader, error) {
	var t models.Trader
	err := q.db.QueryRow(ctx, `
		SELECT id, name, email, banned, traffic_enabled,
		       trust_balance, frozen_usdt, fiat_balance, frozen_fiat,
		       min_amount_per_requisite, max_amount_per_requisite,
		       max_simultaneous_payouts, created_at, updated_at
		FROM traders WHERE id = $1`, id,
	).Scan(&t.ID, &t.Name, &t.Email, &t.Banned, &t.TrafficEnabled,
		&t.TrustBalance, &t.FrozenUsdt, &t.FiatBalance, &t.FrozenFiat,
		&t.MinAmountPerRequisite, &t.MaxAmountPerRequisite,
		&t.MaxSimultaneousPayouts, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return models.Trader{}, fmt.Errorf("get trader: %w", mapNoRows(err))
	}
	return t, nil
}

// FreezeTraderSettlement moves amount from the available settlement
// balance into the frozen bucket. The WHERE clause re-verifies balance
// sufficiency at commit time: zero rows means nothing was frozen.
func (q *Queries) FreezeTraderSettlement(ctx context.Context, traderID uuid.UUID, amount decimal.Decimal) (int64, error) {
	tag, err := q.db.Exec(ctx, `
		UPDATE traders
		SET trust_balance = trust_balance - $2,
		    frozen_usdt = frozen_usdt + $2,
		    updated_at = NOW()
		WHERE id = $1 AND trust_balance >= $2`, traderID, amount)
	if err != nil {
		return 0, fmt.Errorf("freeze trader settlement: %w", err)
	}
	return tag.RowsAffected(), nil
}

// ReleaseTraderSettlement returns amount from frozen back to available.
func (q *Queries) ReleaseTraderSettlement(ctx context.Context, traderID uuid.UUID, amount decimal.Decimal) (int64, error) {
	tag, err := q.db.Exec(ctx, `
		UPDATE traders
		SET trust_balance = trust_balance + $2,
		    frozen_usdt = frozen_usdt - $2,
		    updated_at = NOW()
		WHERE id = $1 AND frozen_usdt >= $2`, traderID, amount)
	if err != nil {
		return 0, fmt.Errorf("release trader settlement: %w", err)
	}
	return tag.RowsAffected(), nil
}

// SettleTraderSettlement burns the frozen hold of a completed deal and
// credits the trader's commission profit.
func (q *Queries) SettleTraderSettlement(ctx context.Context, traderID uuid.UUID, frozen, profit decimal.Decimal) (int64, error) {
	tag, err := q.db.Exec(ctx, `
		UPDATE traders
		SET frozen_usdt = frozen_usdt - $2,
		    trust_balance = trust_balance + $3,
		    updated_at = NOW()
		WHERE id = $1 AND frozen_usdt >= $2`, traderID, frozen, profit)
	if err != nil {
		return 0, fmt.Errorf("settle trader settlement: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (q *Queries) FreezeTraderFiat(ctx context.Context, traderID uuid.UUID, amount decimal.Decimal) (int64, error) {
	tag, err := q.db.Exec(ctx, `
		UPDATE traders
		SET fiat_balance = fiat_balance - $2,
		    frozen_fiat = frozen_fiat + $2,
		    updated_at = NOW()
		WHERE id = $1 AND fiat_balance >= $2`, traderID, amount)
	if err != nil {
		return 0, fmt.Errorf("freeze trader fiat: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (q *Queries) ReleaseTraderFiat(ctx context.Context, traderID uuid.UUID, amount decimal.Decimal) (int64, error) {
	tag, err := q.db.Exec(ctx, `
		UPDATE traders
		SET fiat_balance = fiat_balance + $2,
		    frozen_fiat = frozen_fiat - $2,
		    updated_at = NOW()
		WHERE id = $1 AND frozen_fiat >= $2`, traderID, amount)
	if err != nil {
		return 0, fmt.Errorf("release trader fiat: %w", err)
	}
	return tag.RowsAffected(), nil
}

// SettleTraderPayout burns the fiat hold of a completed payout and
// credits the settlement-asset equivalent.
func (q *Queries) SettleTraderPayout(ctx context.Context, traderID uuid.UUID, frozenFiat, creditUsdt decimal.Decimal) (int64, error) {
	tag, err := q.db.Exec(ctx, `
		UPDATE traders
		SET frozen_fiat = frozen_fiat - $2,
		    trust_balance = trust_balance + $3,
		    updated_at = NOW()
		WHERE id = $1 AND frozen_fiat >= $2`, traderID, frozenFiat, creditUsdt)
	if err != nil {
		return 0, fmt.Errorf("settle trader payout: %w", err)
	}
	return tag.RowsAffected(), nil
}
