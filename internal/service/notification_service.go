package service

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/tutorhive/matching-api/internal/models"
	"github.com/tutorhive/matching-api/pkg/jobs"
)

type notificationWriter interface {
	Create(ctx context.Context, notification *models.Notification) error
}

type realtimePublisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// NotificationService persists notifications and pushes them to the
// realtime channel. Delivery happens on a background queue so workflow
// transactions never wait on it, and a failed delivery never rolls back
// committed work.
type NotificationService struct {
	repo          notificationWriter
	publisher     realtimePublisher
	queue         *jobs.Queue
	channelPrefix string
	logger        *zap.Logger
}

// NewNotificationService constructs the service and its dispatch queue.
func NewNotificationService(repo notificationWriter, publisher realtimePublisher, channelPrefix string, cfg jobs.QueueConfig, logger *zap.Logger) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if channelPrefix == "" {
		channelPrefix = "notify:user:"
	}
	s := &NotificationService{
		repo:          repo,
		publisher:     publisher,
		channelPrefix: channelPrefix,
		logger:        logger,
	}
	if cfg.Logger == nil {
		cfg.Logger = logger
	}
	s.queue = jobs.NewQueue("notifications", s.handle, cfg)
	return s
}

// Start begins background delivery workers.
func (s *NotificationService) Start(ctx context.Context) {
	s.queue.Start(ctx)
}

// Stop drains the delivery workers.
func (s *NotificationService) Stop() {
	s.queue.Stop()
}

// Dispatch enqueues pending notifications decided inside a committed
// transaction. Enqueue failures are logged and swallowed.
func (s *NotificationService) Dispatch(pending []models.PendingNotification) {
	for _, p := range pending {
		job := jobs.Job{ID: uuid.NewString(), Type: string(p.Kind), Payload: p}
		if err := s.queue.Enqueue(job); err != nil {
			s.logger.Sugar().Errorw("failed to enqueue notification",
				"kind", p.Kind, "user_id", p.UserID, "error", err)
		}
	}
}

func (s *NotificationService) handle(ctx context.Context, job jobs.Job) error {
	pending, ok := job.Payload.(models.PendingNotification)
	if !ok {
		s.logger.Sugar().Errorw("unexpected notification payload", "job_id", job.ID)
		return nil
	}

	notification := &models.Notification{
		UserID: pending.UserID,
		Kind:   pending.Kind,
		Title:  pending.Title,
		Body:   pending.Body,
	}
	if pending.ReferenceID != "" {
		ref := pending.ReferenceID
		notification.ReferenceID = &ref
	}
	if err := s.repo.Create(ctx, notification); err != nil {
		return fmt.Errorf("persist notification: %w", err)
	}

	if s.publisher != nil {
		payload, err := json.Marshal(notification)
		if err != nil {
			return fmt.Errorf("marshal notification: %w", err)
		}
		channel := s.channelPrefix + pending.UserID
		if err := s.publisher.Publish(ctx, channel, payload).Err(); err != nil {
			s.logger.Sugar().Warnw("realtime publish failed",
				"channel", channel, "notification_id", notification.ID, "error", err)
		}
	}
	return nil
}
