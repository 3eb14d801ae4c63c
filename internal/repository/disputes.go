package repository

import (
	"context"
	"fmt"

	"github.com/chasepay/settlement/internal/models"
	"github.com/chasepay/settlement/internal/service"
	"github.com/google/uuid"
)

const disputeColumns = `id, kind, transaction_id, payout_id, status, reason,
	resolution, resolved_at, created_at, updated_at`

func scanDispute(row rowScanner) (models.Dispute, error) {
	var d models.Dispute
	err := row.Scan(&d.ID, &d.Kind, &d.TransactionID, &d.PayoutID, &d.Status, &d.Reason,
		&d.Resolution, &d.ResolvedAt, &d.CreatedAt, &d.UpdatedAt)
	return d, err
}

func (q *Queries) CreateDispute(ctx context.Context, d models.Dispute) error {
	_, err := q.db.Exec(ctx, `
		INSERT INTO disputes (`+disputeColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW(), NOW())`,
		d.ID, d.Kind, d.TransactionID, d.PayoutID, d.Status, d.Reason,
		d.Resolution, d.ResolvedAt)
	if err != nil {
		return fmt.Errorf("create dispute: %w", err)
	}
	return nil
}

func (q *Queries) GetDispute(ctx context.Context, id uuid.UUID) (models.Dispute, error) {
	row := q.db.QueryRow(ctx, `SELECT `+disputeColumns+` FROM disputes WHERE id = $1`, id)
	d, err := scanDispute(row)
	if err != nil {
		return models.Dispute{}, fmt.Errorf("get dispute: %w", mapNoRows(err))
	}
	return d, nil
}

func (q *Queries) UpdateDisputeStatus(ctx context.Context, arg service.UpdateDisputeStatusParams) (int64, error) {
	from := arg.FromStatuses
	if from == nil {
		from = []string{}
	}
	tag, err := q.db.Exec(ctx, `
		UPDATE disputes
		SET status = $2,
		    resolution = CASE WHEN $3 = '' THEN resolution ELSE $3 END,
		    resolved_at = COALESCE($4, resolved_at),
		    updated_at = NOW()
		WHERE id = $1
		  AND (cardinality($5::text[]) = 0 OR status = ANY($5))`,
		arg.ID, arg.Status, arg.Resolution, arg.ResolvedAt, from)
	if err != nil {
		return 0, fmt.Errorf("update dispute status: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (q *Queries) AppendDisputeMessage(ctx context.Context, m models.DisputeMessage) error {
	_, err := q.db.Exec(ctx, `
		INSERT INTO dispute_messages (id, dispute_id, sender_type, message, created_at)
		VALUES ($1, $2, $3, $4, NOW())`,
		m.ID, m.DisputeID, m.SenderType, m.Message)
	if err != nil {
		return fmt.Errorf("append dispute message: %w", err)
	}
	return nil
}

func (q *Queries) ListDisputeMessages(ctx context.Context, disputeID uuid.UUID) ([]models.DisputeMessage, error) {
	rows, err := q.db.Query(ctx, `
		SELECT id, dispute_id, sender_type, message, created_at
		FROM dispute_messages
		WHERE dispute_id = $1
		ORDER BY created_at ASC`, disputeID)
	if err != nil {
		return nil, fmt.Errorf("list dispute messages: %w", err)
	}
	defer rows.Close()

	var out []models.DisputeMessage
	for rows.Next() {
		var m models.DisputeMessage
		if err := rows.Scan(&m.ID, &m.DisputeID, &m.SenderType, &m.Message, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan dispute message: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
