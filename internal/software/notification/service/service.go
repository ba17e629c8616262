package service

import (
	"context"
	"time"

	"motoride/internal/apperr"
	"motoride/internal/domain/notification"
	"motoride/internal/domain/user"
	"motoride/internal/general/config"
	"motoride/internal/general/logger"
	"motoride/internal/general/rabbitmq"
	"motoride/internal/ports"
)

// notifyService turns lifecycle events into persisted notifications and live
// WebSocket pushes. Persistence is the source of truth; a failed push only
// means the user reads it later.
type notifyService struct {
	logger        *logger.Logger
	cfg           *config.Config
	uow           ports.UnitOfWork
	notifications ports.NotificationRepository
	sessions      ports.SessionPusher
	rabbitmq      *rabbitmq.Client
}

// NewNotifyService creates the notification dispatcher with its dependencies.
func NewNotifyService(
	log *logger.Logger,
	cfg *config.Config,
	uow ports.UnitOfWork,
	notifications ports.NotificationRepository,
	sessions ports.SessionPusher,
	mq *rabbitmq.Client,
) *NotifyService {
	return &NotifyService{inner: &notifyService{
		logger:        log,
		cfg:           cfg,
		uow:           uow,
		notifications: notifications,
		sessions:      sessions,
		rabbitmq:      mq,
	}}
}

// NotifyService is the exported boundary of the dispatcher.
type NotifyService struct {
	inner *notifyService
}

// Run starts all consumers; they stop when ctx is cancelled.
func (s *NotifyService) Run(ctx context.Context) {
	s.inner.runConsumers(ctx)
}

// ListNotifications returns the user's recent notifications.
func (s *NotifyService) ListNotifications(ctx context.Context, userID string, unreadOnly bool, limit int) ([]*notification.Notification, error) {
	if limit < 1 || limit > 100 {
		limit = 50
	}

	var out []*notification.Notification
	err := s.inner.uow.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		out, err = s.inner.notifications.ListForUser(ctx, userID, unreadOnly, limit)
		if err != nil {
			return apperr.Infra(err, "list notifications")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = []*notification.Notification{}
	}
	return out, nil
}

// MarkNotificationRead flips one notification owned by the user.
func (s *NotifyService) MarkNotificationRead(ctx context.Context, id, userID string) error {
	return s.inner.uow.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.inner.notifications.MarkRead(ctx, id, userID); err != nil {
			return apperr.NotFound("notification %s not found", id)
		}
		return nil
	})
}

// deliver persists one notification and then pushes it to the live session.
func (service *notifyService) deliver(ctx context.Context, userID string, role user.Role, kind, content, relatedID string) {
	if userID == "" {
		return
	}

	n, err := notification.New(userID, kind, content, relatedID)
	if err != nil {
		service.logger.Error(ctx, "notification_build_failed", "Invalid notification input", err, map[string]any{
			"user_id": userID,
			"type":    kind,
		})
		return
	}
	err = service.uow.WithinTx(ctx, func(ctx context.Context) error {
		return service.notifications.Create(ctx, n)
	})
	if err != nil {
		service.logger.Error(ctx, "notification_persist_failed", "Failed to store notification", err, map[string]any{
			"user_id": userID,
			"type":    kind,
		})
		return
	}

	payload := map[string]any{
		"id":         n.ID,
		"type":       n.Type,
		"content":    n.Content,
		"related_id": n.RelatedID,
		"created_at": n.CreatedAt,
	}

	pushCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := service.sessions.SendToUser(pushCtx, userID, role, "notification", payload); err != nil {
		// Offline users pick it up from the list endpoint.
		service.logger.Debug(ctx, "notification_push_skipped", "User not connected, stored only",
			map[string]any{"user_id": userID, "type": kind})
		return
	}

	service.logger.Info(ctx, "notification_delivered", "Notification stored and pushed", map[string]any{
		"user_id": userID,
		"type":    kind,
	})
}
