package repository

import (
	"context"
	"fmt"

	"github.com/chasepay/settlement/internal/models"
	"github.com/chasepay/settlement/internal/service"
	"github.com/google/uuid"
)

const payoutColumns = `id, merchant_id, trader_id, amount, amount_usdt, total, total_usdt, rate,
	status, bank, is_card, external_ref, cancel_reason, expire_at,
	accepted_at, confirmed_at, created_at, updated_at`

func scanPayout(row rowScanner) (models.Payout, error) {
	var p models.Payout
	err := row.Scan(&p.ID, &p.MerchantID, &p.TraderID, &p.Amount, &p.AmountUsdt, &p.Total, &p.TotalUsdt, &p.Rate,
		&p.Status, &p.Bank, &p.IsCard, &p.ExternalRef, &p.CancelReason, &p.ExpireAt,
		&p.AcceptedAt, &p.ConfirmedAt, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

func (q *Queries) CreatePayout(ctx context.Context, p models.Payout) error {
	_, err := q.db.Exec(ctx, `
		INSERT INTO payouts (`+payoutColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, NOW(), NOW())`,
		p.ID, p.MerchantID, p.TraderID, p.Amount, p.AmountUsdt, p.Total, p.TotalUsdt, p.Rate,
		p.Status, p.Bank, p.IsCard, p.ExternalRef, p.CancelReason, p.ExpireAt,
		p.AcceptedAt, p.ConfirmedAt)
	if err != nil {
		return fmt.Errorf("create payout: %w", err)
	}
	return nil
}

func (q *Queries) GetPayout(ctx context.Context, id uuid.UUID) (models.Payout, error) {
	row := q.db.QueryRow(ctx, `SELECT `+payoutColumns+` FROM payouts WHERE id = $1`, id)
	p, err := scanPayout(row)
	if err != nil {
		return models.Payout{}, fmt.Errorf("get payout: %w", mapNoRows(err))
	}
	return p, nil
}

func (q *Queries) UpdatePayoutStatus(ctx context.Context, arg service.UpdatePayoutStatusParams) (int64, error) {
	from := arg.FromStatuses
	if from == nil {
		from = []string{}
	}
	tag, err := q.db.Exec(ctx, `
		UPDATE payouts
		SET status = $2,
		    cancel_reason = CASE WHEN $3 = '' THEN cancel_reason ELSE $3 END,
		    confirmed_at = COALESCE($4, confirmed_at),
		    updated_at = NOW()
		WHERE id = $1
		  AND (cardinality($5::text[]) = 0 OR status = ANY($5))`,
		arg.ID, arg.Status, arg.CancelReason, arg.ConfirmedAt, from)
	if err != nil {
		return 0, fmt.Errorf("update payout status: %w", err)
	}
	return tag.RowsAffected(), nil
}

// AssignPayout claims a CREATED, unassigned payout for a trader. The
// guard makes concurrent pulls race safely: exactly one wins.
func (q *Queries) AssignPayout(ctx context.Context, arg service.AssignPayoutParams) (int64, error) {
	tag, err := q.db.Exec(ctx, `
		UPDATE payouts
		SET trader_id = $2,
		    status = 'ACTIVE',
		    accepted_at = NOW(),
		    expire_at = $3,
		    updated_at = NOW()
		WHERE id = $1 AND status = 'CREATED' AND trader_id IS NULL`,
		arg.ID, arg.TraderID, arg.ExpireAt)
	if err != nil {
		return 0, fmt.Errorf("assign payout: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (q *Queries) CountTraderActivePayouts(ctx context.Context, traderID uuid.UUID) (int64, error) {
	var count int64
	err := q.db.QueryRow(ctx, `
		SELECT COUNT(*) FROM payouts
		WHERE trader_id = $1 AND status IN ('CREATED', 'ACTIVE', 'CHECKING')`, traderID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count trader active payouts: %w", err)
	}
	return count, nil
}

func (q *Queries) ListUnassignedPayouts(ctx context.Context, limit int32) ([]models.Payout, error) {
	rows, err := q.db.Query(ctx, `
		SELECT `+payoutColumns+` FROM payouts
		WHERE status = 'CREATED' AND trader_id IS NULL AND expire_at > NOW()
		ORDER BY created_at ASC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list unassigned payouts: %w", err)
	}
	defer rows.Close()

	var out []models.Payout
	for rows.Next() {
		p, err := scanPayout(rows)
		if err != nil {
			return nil, fmt.Errorf("scan unassigned payout: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (q *Queries) GetPayoutFilter(ctx context.Context, traderID uuid.UUID) (models.PayoutFilter, error) {
	var f models.PayoutFilter
	err := q.db.QueryRow(ctx, `
		SELECT trader_id, traffic_types, banks
		FROM payout_filters WHERE trader_id = $1`, traderID,
	).Scan(&f.TraderID, &f.TrafficTypes, &f.Banks)
	if err != nil {
		return models.PayoutFilter{}, fmt.Errorf("get payout filter: %w", mapNoRows(err))
	}
	return f, nil
}

func (q *Queries) IsPayoutBlacklisted(ctx context.Context, traderID, merchantID, payoutID uuid.UUID) (bool, error) {
	var exists bool
	err := q.db.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM payout_blacklist
			WHERE trader_id = $1
			  AND (merchant_id = $2 OR payout_id = $3)
		)`, traderID, merchantID, payoutID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check payout blacklist: %w", err)
	}
	return exists, nil
}
