package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/chasepay/settlement/internal/models"
	"github.com/chasepay/settlement/internal/service"
	"github.com/google/uuid"
)

const transactionColumns = `id, merchant_id, method_id, trader_id, requisite_id, order_id, type,
	amount, rate, adjusted_rate, frozen_usdt_amount, calculated_commission,
	status, asset_or_bank, callback_uri, success_uri, fail_uri,
	matched_notification_id, expired_at, accepted_at, created_at, updated_at`

func scanTransaction(row rowScanner) (models.Transaction, error) {
	var t models.Transaction
	err := row.Scan(&t.ID, &t.MerchantID, &t.MethodID, &t.TraderID, &t.RequisiteID, &t.OrderID, &t.Type,
		&t.Amount, &t.Rate, &t.AdjustedRate, &t.FrozenUsdtAmount, &t.CalculatedCommission,
		&t.Status, &t.AssetOrBank, &t.CallbackURI, &t.SuccessURI, &t.FailURI,
		&t.MatchedNotificationID, &t.ExpiredAt, &t.AcceptedAt, &t.CreatedAt, &t.UpdatedAt)
	return t, err
}

func (q *Queries) CreateTransaction(ctx context.Context, tx models.Transaction) error {
	_, err := q.db.Exec(ctx, `
		INSERT INTO transactions (`+transactionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12,
		        $13, $14, $15, $16, $17, $18, $19, $20, NOW(), NOW())`,
		tx.ID, tx.MerchantID, tx.MethodID, tx.TraderID, tx.RequisiteID, tx.OrderID, tx.Type,
		tx.Amount, tx.Rate, tx.AdjustedRate, tx.FrozenUsdtAmount, tx.CalculatedCommission,
		tx.Status, tx.AssetOrBank, tx.CallbackURI, tx.SuccessURI, tx.FailURI,
		tx.MatchedNotificationID, tx.ExpiredAt, tx.AcceptedAt)
	if err != nil {
		return fmt.Errorf("create transaction: %w", err)
	}
	return nil
}

func (q *Queries) GetTransaction(ctx context.Context, id uuid.UUID) (models.Transaction, error) {
	row := q.db.QueryRow(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE id = $1`, id)
	t, err := scanTransaction(row)
	if err != nil {
		return models.Transaction{}, fmt.Errorf("get transaction: %w", mapNoRows(err))
	}
	return t, nil
}

func (q *Queries) GetTransactionByOrderID(ctx context.Context, merchantID uuid.UUID, orderID string) (models.Transaction, error) {
	row := q.db.QueryRow(ctx, `
		SELECT `+transactionColumns+` FROM transactions
		WHERE merchant_id = $1 AND order_id = $2`, merchantID, orderID)
	t, err := scanTransaction(row)
	if err != nil {
		return models.Transaction{}, fmt.Errorf("get transaction by order id: %w", mapNoRows(err))
	}
	return t, nil
}

// UpdateTransactionStatus performs a guarded status write. With
// FromStatuses set, the write only lands while the row is still in one
// of those states, making it a commit-time check-and-set.
func (q *Queries) UpdateTransactionStatus(ctx context.Context, arg service.UpdateTransactionStatusParams) (int64, error) {
	from := arg.FromStatuses
	if from == nil {
		from = []string{}
	}
	tag, err := q.db.Exec(ctx, `
		UPDATE transactions
		SET status = $2,
		    accepted_at = COALESCE($3, accepted_at),
		    updated_at = NOW()
		WHERE id = $1
		  AND (cardinality($4::text[]) = 0 OR status = ANY($4))`,
		arg.ID, arg.Status, arg.AcceptedAt, from)
	if err != nil {
		return 0, fmt.Errorf("update transaction status: %w", err)
	}
	return tag.RowsAffected(), nil
}

// MarkTransactionMatched settles the match in one check-and-set: only an
// IN_PROGRESS transaction can move to READY, so a crashed-and-retried
// tick can never double-settle.
func (q *Queries) MarkTransactionMatched(ctx context.Context, arg service.MarkTransactionMatchedParams) (int64, error) {
	tag, err := q.db.Exec(ctx, `
		UPDATE transactions
		SET status = 'READY',
		    matched_notification_id = $2,
		    accepted_at = $3,
		    updated_at = NOW()
		WHERE id = $1 AND status = 'IN_PROGRESS'`,
		arg.ID, arg.NotificationID, arg.AcceptedAt)
	if err != nil {
		return 0, fmt.Errorf("mark transaction matched: %w", err)
	}
	return tag.RowsAffected(), nil
}

// ListMatchableTransactions returns the trader's live inbound deals with
// their methods' matching tolerances.
func (q *Queries) ListMatchableTransactions(ctx context.Context, traderID uuid.UUID) ([]models.MatchCandidate, error) {
	rows, err := q.db.Query(ctx, `
		SELECT `+prefixColumns("t", transactionColumns)+`, m.tolerance
		FROM transactions t
		JOIN methods m ON m.id = t.method_id
		WHERE t.trader_id = $1 AND t.type = 'IN' AND t.status = 'IN_PROGRESS'
		ORDER BY t.created_at ASC`, traderID)
	if err != nil {
		return nil, fmt.Errorf("list matchable transactions: %w", err)
	}
	defer rows.Close()

	var out []models.MatchCandidate
	for rows.Next() {
		var c models.MatchCandidate
		t := &c.Transaction
		if err := rows.Scan(&t.ID, &t.MerchantID, &t.MethodID, &t.TraderID, &t.RequisiteID, &t.OrderID, &t.Type,
			&t.Amount, &t.Rate, &t.AdjustedRate, &t.FrozenUsdtAmount, &t.CalculatedCommission,
			&t.Status, &t.AssetOrBank, &t.CallbackURI, &t.SuccessURI, &t.FailURI,
			&t.MatchedNotificationID, &t.ExpiredAt, &t.AcceptedAt, &t.CreatedAt, &t.UpdatedAt,
			&c.Tolerance); err != nil {
			return nil, fmt.Errorf("scan match candidate: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (q *Queries) ListExpiredTransactions(ctx context.Context, now time.Time, limit int32) ([]models.Transaction, error) {
	rows, err := q.db.Query(ctx, `
		SELECT `+transactionColumns+` FROM transactions
		WHERE type = 'IN' AND status IN ('CREATED', 'IN_PROGRESS') AND expired_at < $1
		ORDER BY expired_at ASC
		LIMIT $2`, now, limit)
	if err != nil {
		return nil, fmt.Errorf("list expired transactions: %w", err)
	}
	defer rows.Close()

	var out []models.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan expired transaction: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
