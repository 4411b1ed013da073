package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/kpipulse/api/internal/model"
)

// CreateNotification persists a notification and returns it with its
// generated id and timestamp.
func (s *Store) CreateNotification(ctx context.Context, message string, status model.NotificationStatus) (model.Notification, error) {
	n := model.Notification{
		ID:        uuid.New().String(),
		Message:   message,
		Status:    status,
		CreatedAt: time.Now().UTC(),
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO notifications (id, message, status, is_read, created_at)
		VALUES ($1, $2, $3, FALSE, $4)
	`, n.ID, n.Message, string(n.Status), n.CreatedAt)
	if err != nil {
		return model.Notification{}, fmt.Errorf("insert notification: %w", err)
	}
	return n, nil
}

// ListNotifications returns all notifications, newest first.
func (s *Store) ListNotifications(ctx context.Context) ([]model.Notification, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, message, status, is_read, created_at
		FROM notifications
		ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("query notifications: %w", err)
	}
	defer rows.Close()

	var list []model.Notification
	for rows.Next() {
		var n model.Notification
		var status string
		if err := rows.Scan(&n.ID, &n.Message, &status, &n.IsRead, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		n.Status = model.NotificationStatus(status)
		list = append(list, n)
	}
	return list, rows.Err()
}

// MarkAllNotificationsRead flips the read flag on every unread
// notification in one statement.
func (s *Store) MarkAllNotificationsRead(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `UPDATE notifications SET is_read = TRUE WHERE is_read = FALSE`)
	if err != nil {
		return fmt.Errorf("mark notifications read: %w", err)
	}
	return nil
}
