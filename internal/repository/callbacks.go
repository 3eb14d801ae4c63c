package repository

import (
	"context"
	"fmt"

	"github.com/chasepay/settlement/internal/models"
	"github.com/google/uuid"
)

func (q *Queries) AppendCallbackHistory(ctx context.Context, h models.CallbackHistory) error {
	_, err := q.db.Exec(ctx, `
		INSERT INTO callback_history (id, transaction_id, url, payload, response, status_code, error, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())`,
		h.ID, h.TransactionID, h.URL, h.Payload, h.Response, h.StatusCode, h.Error)
	if err != nil {
		return fmt.Errorf("append callback history: %w", err)
	}
	return nil
}

func (q *Queries) ListCallbackHistory(ctx context.Context, transactionID uuid.UUID) ([]models.CallbackHistory, error) {
	rows, err := q.db.Query(ctx, `
		SELECT id, transaction_id, url, payload, response, status_code, error, created_at
		FROM callback_history
		WHERE transaction_id = $1
		ORDER BY created_at ASC`, transactionID)
	if err != nil {
		return nil, fmt.Errorf("list callback history: %w", err)
	}
	defer rows.Close()

	var out []models.CallbackHistory
	for rows.Next() {
		var h models.CallbackHistory
		if err := rows.Scan(&h.ID, &h.TransactionID, &h.URL, &h.Payload, &h.Response, &h.StatusCode, &h.Error, &h.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan callback history: %w", err)
		}
		out = append(out, h)
	}
	return out, rows.Err()
}
