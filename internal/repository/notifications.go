package repository

import (
	"context"
	"fmt"

	"github.com/chasepay/settlement/internal/models"
	"github.com/google/uuid"
)

func (q *Queries) ListUnprocessedNotifications(ctx context.Context, limit int32) ([]models.NotificationWithDevice, error) {
	rows, err := q.db.Query(ctx, `
		SELECT n.id, n.device_id, n.package_name, n.title, n.message, n.is_processed, n.created_at,
		       d.trader_id
		FROM notifications n
		JOIN devices d ON d.id = n.device_id
		WHERE NOT n.is_processed
		ORDER BY n.created_at ASC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list unprocessed notifications: %w", err)
	}
	defer rows.Close()

	var out []models.NotificationWithDevice
	for rows.Next() {
		var n models.NotificationWithDevice
		if err := rows.Scan(&n.Notification.ID, &n.Notification.DeviceID, &n.Notification.PackageName,
			&n.Notification.Title, &n.Notification.Message, &n.Notification.IsProcessed, &n.Notification.CreatedAt,
			&n.TraderID); err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func (q *Queries) MarkNotificationProcessed(ctx context.Context, id uuid.UUID) (int64, error) {
	tag, err := q.db.Exec(ctx, `
		UPDATE notifications SET is_processed = TRUE WHERE id = $1 AND NOT is_processed`, id)
	if err != nil {
		return 0, fmt.Errorf("mark notification processed: %w", err)
	}
	return tag.RowsAffected(), nil
}
