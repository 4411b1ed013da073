package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/kpipulse/api/internal/model"
)

// NotificationStore persists notifications.
type NotificationStore interface {
	CreateNotification(ctx context.Context, message string, status model.NotificationStatus) (model.Notification, error)
	ListNotifications(ctx context.Context) ([]model.Notification, error)
	MarkAllNotificationsRead(ctx context.Context) error
}

// NotificationPusher pushes a notification over the real-time channel.
type NotificationPusher interface {
	BroadcastNotification(n model.Notification)
}

// NotificationService translates job lifecycle events into persisted,
// pushed notifications. Delivery is best-effort: a persistence failure is
// logged and swallowed so it can never fail the job it describes.
type NotificationService struct {
	store  NotificationStore
	pusher NotificationPusher
	log    *zap.Logger
}

func NewNotificationService(store NotificationStore, pusher NotificationPusher, log *zap.Logger) *NotificationService {
	return &NotificationService{store: store, pusher: pusher, log: log}
}

// Notify persists and pushes one notification. Errors are swallowed by
// design; only the isolated notification log sees them.
func (s *NotificationService) Notify(ctx context.Context, message string, status model.NotificationStatus) {
	n, err := s.store.CreateNotification(ctx, message, status)
	if err != nil {
		s.log.Error("failed to persist notification",
			zap.String("message", message),
			zap.Error(err),
		)
		return
	}

	s.pusher.BroadcastNotification(n)
	s.log.Info("notification created", zap.String("message", n.Message), zap.String("status", string(n.Status)))
}

// List returns all notifications, newest first.
func (s *NotificationService) List(ctx context.Context) ([]model.Notification, error) {
	return s.store.ListNotifications(ctx)
}

// MarkAllRead flips every unread notification's read flag.
func (s *NotificationService) MarkAllRead(ctx context.Context) error {
	return s.store.MarkAllNotificationsRead(ctx)
}
