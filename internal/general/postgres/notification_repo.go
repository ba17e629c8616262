package postgres

import (
	"context"

	"motoride/internal/domain/notification"
	"motoride/internal/ports"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// NotificationRepo persists user-visible notifications.
type NotificationRepo struct{}

// NewNotificationRepo constructs a new NotificationRepo.
func NewNotificationRepo() ports.NotificationRepository {
	return &NotificationRepo{}
}

// Create inserts a notification row.
func (repo *NotificationRepo) Create(ctx context.Context, n *notification.Notification) error {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return err
	}

	if n.ID == "" {
		n.ID = uuid.NewString()
	}

	return tx.QueryRow(ctx, `
		INSERT INTO notifications (id, user_id, type, content, is_read, related_id)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at
	`, n.ID, n.UserID, n.Type, n.Content, n.IsRead, n.RelatedID).Scan(&n.CreatedAt)
}

// ListForUser returns a user's most recent notifications.
func (repo *NotificationRepo) ListForUser(ctx context.Context, userID string, unreadOnly bool, limit int) ([]*notification.Notification, error) {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return nil, err
	}

	query := `
		SELECT id, user_id, type, content, is_read, related_id, created_at
		FROM notifications
		WHERE user_id = $1`
	if unreadOnly {
		query += ` AND is_read = FALSE`
	}
	query += `
		ORDER BY created_at DESC
		LIMIT $2`

	rows, err := tx.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*notification.Notification
	for rows.Next() {
		var n notification.Notification
		if err := rows.Scan(&n.ID, &n.UserID, &n.Type, &n.Content, &n.IsRead, &n.RelatedID, &n.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &n)
	}
	return out, rows.Err()
}

// MarkRead flips is_read for a notification owned by the user.
func (repo *NotificationRepo) MarkRead(ctx context.Context, id, userID string) error {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return err
	}

	tag, err := tx.Exec(ctx, `
		UPDATE notifications
		SET is_read = TRUE
		WHERE id = $1 AND user_id = $2
	`, id, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}
