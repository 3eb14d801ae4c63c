package repository

import (
	"context"
	"fmt"

	"github.com/chasepay/settlement/internal/domain"
	"github.com/chasepay/settlement/internal/models"
	"github.com/chasepay/settlement/internal/service"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ListCandidateRequisites builds the selection pool: live requisites of
// unbanned, traffic-enabled traders whose capture device (if any) is
// online, ordered oldest-served-first. Bank type and the merchant's
// connected-trader set narrow the pool when provided.
func (q *Queries) ListCandidateRequisites(ctx context.Context, arg service.ListCandidateRequisitesParams) ([]models.RequisiteCandidate, error) {
	sql := `
		SELECT r.id, r.trader_id, r.device_id, r.method_type, r.bank_type,
		       r.card_number, r.recipient_name, r.min_amount, r.max_amount,
		       r.daily_limit, r.monthly_limit, r.operation_limit, r.sum_limit,
		       r.is_archived, r.is_active, r.created_at, r.updated_at,
		       t.id, t.name, t.email, t.banned, t.traffic_enabled,
		       t.trust_balance, t.frozen_usdt, t.fiat_balance, t.frozen_fiat,
		       t.min_amount_per_requisite, t.max_amount_per_requisite,
		       t.max_simultaneous_payouts, t.created_at, t.updated_at
		FROM requisites r
		JOIN traders t ON t.id = r.trader_id
		LEFT JOIN devices d ON d.id = r.device_id
		WHERE NOT r.is_archived AND r.is_active
		  AND r.method_type = $1
		  AND NOT t.banned AND t.traffic_enabled
		  AND (r.device_id IS NULL OR (d.is_working AND d.is_online))
		  AND ($2 = '' OR r.bank_type = $2)
		  AND (cardinality($3::uuid[]) = 0 OR r.trader_id = ANY($3))
		ORDER BY r.updated_at ASC`

	traderIDs := arg.TraderIDs
	if traderIDs == nil {
		traderIDs = []uuid.UUID{}
	}
	rows, err := q.db.Query(ctx, sql, arg.MethodType, arg.BankType, traderIDs)
	if err != nil {
		return nil, fmt.Errorf("list candidate requisites: %w", err)
	}
	defer rows.Close()

	var out []models.RequisiteCandidate
	for rows.Next() {
		var c models.RequisiteCandidate
		r := &c.Requisite
		t := &c.Trader
		if err := rows.Scan(
			&r.ID, &r.TraderID, &r.DeviceID, &r.MethodType, &r.BankType,
			&r.CardNumber, &r.RecipientName, &r.MinAmount, &r.MaxAmount,
			&r.DailyLimit, &r.MonthlyLimit, &r.OperationLimit, &r.SumLimit,
			&r.IsArchived, &r.IsActive, &r.CreatedAt, &r.UpdatedAt,
			&t.ID, &t.Name, &t.Email, &t.Banned, &t.TrafficEnabled,
			&t.TrustBalance, &t.FrozenUsdt, &t.FiatBalance, &t.FrozenFiat,
			&t.MinAmountPerRequisite, &t.MaxAmountPerRequisite,
			&t.MaxSimultaneousPayouts, &t.CreatedAt, &t.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan requisite candidate: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// TouchRequisite bumps updatedAt so the oldest-served-first ordering
// rotates reservations across the pool.
func (q *Queries) TouchRequisite(ctx context.Context, id uuid.UUID) error {
	tag, err := q.db.Exec(ctx, `UPDATE requisites SET updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("touch requisite: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("touch requisite: %w", domain.ErrNotFound)
	}
	return nil
}

func (q *Queries) CountRequisiteActiveTransactions(ctx context.Context, requisiteID uuid.UUID) (int64, error) {
	var count int64
	err := q.db.QueryRow(ctx, `
		SELECT COUNT(*) FROM transactions
		WHERE requisite_id = $1 AND type = 'IN'
		  AND status IN ('IN_PROGRESS', 'READY')`, requisiteID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count requisite active transactions: %w", err)
	}
	return count, nil
}

func (q *Queries) SumRequisiteActiveTransactions(ctx context.Context, requisiteID uuid.UUID) (decimal.Decimal, error) {
	var sum decimal.Decimal
	err := q.db.QueryRow(ctx, `
		SELECT COALESCE(SUM(amount), 0) FROM transactions
		WHERE requisite_id = $1 AND type = 'IN'
		  AND status IN ('IN_PROGRESS', 'READY')`, requisiteID,
	).Scan(&sum)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("sum requisite active transactions: %w", err)
	}
	return sum, nil
}

// RequisiteHasActiveAmount guards against two live deals with identical
// amounts on one requisite, which would make bank evidence ambiguous.
func (q *Queries) RequisiteHasActiveAmount(ctx context.Context, requisiteID uuid.UUID, amount decimal.Decimal) (bool, error) {
	var exists bool
	err := q.db.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM transactions
			WHERE requisite_id = $1 AND amount = $2 AND type = 'IN'
			  AND status IN ('CREATED', 'IN_PROGRESS')
		)`, requisiteID, amount,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check requisite active amount: %w", err)
	}
	return exists, nil
}
