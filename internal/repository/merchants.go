package repository

import (
	"context"
	"fmt"

	"github.com/chasepay/settlement/internal/models"
	"github.com/google/uuid"
)

const merchantColumns = `id, name, token, public_key, private_key, wellbit, disabled`

func scanMerchant(row rowScanner) (models.Merchant, error) {
	var m models.Merchant
	err := row.Scan(&m.ID, &m.Name, &m.Token, &m.PublicKey, &m.PrivateKey, &m.Wellbit, &m.Disabled)
	return m, err
}

func (q *Queries) GetMerchant(ctx context.Context, id uuid.UUID) (models.Merchant, error) {
	row := q.db.QueryRow(ctx, `SELECT `+merchantColumns+` FROM merchants WHERE id = $1`, id)
	m, err := scanMerchant(row)
	if err != nil {
		return models.Merchant{}, fmt.Errorf("get merchant: %w", mapNoRows(err))
	}
	return m, nil
}

func (q *Queries) GetMerchantByToken(ctx context.Context, token string) (models.Merchant, error) {
	row := q.db.QueryRow(ctx, `SELECT `+merchantColumns+` FROM merchants WHERE token = $1`, token)
	m, err := scanMerchant(row)
	if err != nil {
		return models.Merchant{}, fmt.Errorf("get merchant by token: %w", mapNoRows(err))
	}
	return m, nil
}

func (q *Queries) GetMethod(ctx context.Context, id uuid.UUID) (models.Method, error) {
	var m models.Method
	err := q.db.QueryRow(ctx, `
		SELECT id, code, type, currency, min_payin, max_payin, min_payout, max_payout, tolerance, enabled
		FROM methods WHERE id = $1`, id,
	).Scan(&m.ID, &m.Code, &m.Type, &m.Currency, &m.MinPayin, &m.MaxPayin, &m.MinPayout, &m.MaxPayout, &m.Tolerance, &m.Enabled)
	if err != nil {
		return models.Method{}, fmt.Errorf("get method: %w", mapNoRows(err))
	}
	return m, nil
}

func (q *Queries) GetMerchantMethod(ctx context.Context, merchantID, methodID uuid.UUID) (models.MerchantMethod, error) {
	var mm models.MerchantMethod
	err := q.db.QueryRow(ctx, `
		SELECT merchant_id, method_id, is_enabled
		FROM merchant_methods WHERE merchant_id = $1 AND method_id = $2`, merchantID, methodID,
	).Scan(&mm.MerchantID, &mm.MethodID, &mm.IsEnabled)
	if err != nil {
		return models.MerchantMethod{}, fmt.Errorf("get merchant method: %w", mapNoRows(err))
	}
	return mm, nil
}

func (q *Queries) GetTraderMerchant(ctx context.Context, traderID, merchantID, methodID uuid.UUID) (models.TraderMerchant, error) {
	var tm models.TraderMerchant
	err := q.db.QueryRow(ctx, `
		SELECT trader_id, merchant_id, method_id, fee_in, fee_out,
		       is_merchant_enabled, is_fee_in_enabled, is_fee_out_enabled
		FROM trader_merchants
		WHERE trader_id = $1 AND merchant_id = $2 AND method_id = $3`, traderID, merchantID, methodID,
	).Scan(&tm.TraderID, &tm.MerchantID, &tm.MethodID, &tm.FeeIn, &tm.FeeOut,
		&tm.IsMerchantEnabled, &tm.IsFeeInEnabled, &tm.IsFeeOutEnabled)
	if err != nil {
		return models.TraderMerchant{}, fmt.Errorf("get trader merchant: %w", mapNoRows(err))
	}
	return tm, nil
}

func (q *Queries) ListMerchantTraderIDs(ctx context.Context, merchantID, methodID uuid.UUID) ([]uuid.UUID, error) {
	rows, err := q.db.Query(ctx, `
		SELECT trader_id FROM trader_merchants
		WHERE merchant_id = $1 AND method_id = $2
		  AND is_merchant_enabled AND is_fee_in_enabled`, merchantID, methodID)
	if err != nil {
		return nil, fmt.Errorf("list merchant trader ids: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan trader id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// HasPayoutRelation reports whether the trader may take outbound work
// for the merchant on any method.
func (q *Queries) HasPayoutRelation(ctx context.Context, traderID, merchantID uuid.UUID) (bool, error) {
	var exists bool
	err := q.db.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM trader_merchants
			WHERE trader_id = $1 AND merchant_id = $2
			  AND is_merchant_enabled AND is_fee_out_enabled
		)`, traderID, merchantID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check payout relation: %w", err)
	}
	return exists, nil
}

func (q *Queries) GetSystemSetting(ctx context.Context, key string) (string, error) {
	var value string
	err := q.db.QueryRow(ctx, `SELECT value FROM system_settings WHERE key = $1`, key).Scan(&value)
	if err != nil {
		return "", fmt.Errorf("get system setting: %w", mapNoRows(err))
	}
	return value, nil
}
