package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/skinvault/escrow/domain/notification"
)

func (s *Store) CreateNotification(ctx context.Context, n notification.Notification) (notification.Notification, error) {
	n.CreatedAt = time.Now().UTC()
	payload, err := json.Marshal(n.Payload)
	if err != nil {
		return notification.Notification{}, err
	}

	row := s.q(ctx).QueryRowContext(ctx, `
		INSERT INTO notifications (recipient_id, kind, payload, status, created_at)
		VALUES ($1,$2,$3,$4,$5)
		RETURNING id
	`, n.RecipientID, n.Kind, payload, n.Status, n.CreatedAt)
	if err := row.Scan(&n.ID); err != nil {
		return notification.Notification{}, err
	}
	return n, nil
}

// ListPending returns a recipient's undelivered notifications oldest
// first, preserving per-user order on reconnect (spec §4.7).
func (s *Store) ListPending(ctx context.Context, recipientID string) ([]notification.Notification, error) {
	rows, err := s.q(ctx).QueryContext(ctx, `
		SELECT id, recipient_id, kind, payload, status, created_at, delivered_at, read_at
		FROM notifications WHERE recipient_id = $1 AND status = $2 ORDER BY created_at ASC
	`, recipientID, notification.StatusPending)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []notification.Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func (s *Store) MarkDelivered(ctx context.Context, id int64) error {
	_, err := s.q(ctx).ExecContext(ctx, `
		UPDATE notifications SET status = $2, delivered_at = now() WHERE id = $1
	`, id, notification.StatusDelivered)
	return err
}

func (s *Store) MarkRead(ctx context.Context, id int64) error {
	_, err := s.q(ctx).ExecContext(ctx, `
		UPDATE notifications SET status = $2, read_at = now() WHERE id = $1
	`, id, notification.StatusRead)
	return err
}

// DeleteOlderThanRetention sweeps notifications past notification.Retention.
func (s *Store) DeleteOlderThanRetention(ctx context.Context) (int64, error) {
	result, err := s.q(ctx).ExecContext(ctx, `
		DELETE FROM notifications WHERE created_at < now() - ($1 || ' seconds')::interval
	`, int64(notification.Retention.Seconds()))
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func scanNotification(row rowScanner) (notification.Notification, error) {
	var (
		n                      notification.Notification
		payloadRaw             []byte
		deliveredAt, readAt    sql.NullTime
	)
	if err := row.Scan(&n.ID, &n.RecipientID, &n.Kind, &payloadRaw, &n.Status, &n.CreatedAt, &deliveredAt, &readAt); err != nil {
		return notification.Notification{}, err
	}
	if len(payloadRaw) > 0 {
		_ = json.Unmarshal(payloadRaw, &n.Payload)
	}
	n.DeliveredAt = deliveredAt.Time
	n.ReadAt = readAt.Time
	return n, nil
}
