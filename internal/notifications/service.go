package notifications

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"talentbridge/marketplace-backend/internal/notifications/websocket"
)

// ContactDirectory resolves a user's delivery addressing.
type ContactDirectory interface {
	Contact(ctx context.Context, userID uuid.UUID) (*Contact, error)
}

// Service fans one lifecycle event out to the in-app feed and the push
// channels. The stored row is the source of truth; channel pushes are
// best-effort and their failures are logged per channel, never returned.
type Service struct {
	db        *gorm.DB
	ws        *websocket.Manager
	email     *EmailChannel
	sms       *SMSChannel
	directory ContactDirectory
	logger    *zap.Logger
}

// NewService wires the notification service. ws, email, sms and directory may
// each be nil to disable the corresponding channel.
func NewService(
	db *gorm.DB,
	ws *websocket.Manager,
	email *EmailChannel,
	sms *SMSChannel,
	directory ContactDirectory,
	logger *zap.Logger,
) (*Service, error) {
	if err := db.AutoMigrate(&Notification{}, &DeliveryLog{}); err != nil {
		return nil, fmt.Errorf("failed to migrate notifications: %w", err)
	}
	return &Service{
		db:        db,
		ws:        ws,
		email:     email,
		sms:       sms,
		directory: directory,
		logger:    logger,
	}, nil
}

// Notify stores the event for the user's in-app feed and pushes it over the
// enabled channels.
func (s *Service) Notify(ctx context.Context, userID uuid.UUID, eventType string, payload map[string]any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode payload: %w", err)
	}

	notification := &Notification{
		ID:        uuid.New(),
		UserID:    userID,
		EventType: eventType,
		Payload:   raw,
		Status:    StatusDelivered,
		CreatedAt: time.Now(),
	}
	if err := s.db.WithContext(ctx).Create(notification).Error; err != nil {
		return fmt.Errorf("failed to store notification: %w", err)
	}
	s.logDelivery(ctx, notification.ID, ChannelInApp, StatusDelivered, nil)

	if s.ws != nil {
		err := s.ws.SendToUser(userID.String(), websocket.Message{
			Type:      websocket.TypeNotification,
			Event:     eventType,
			Data:      payload,
			Timestamp: time.Now(),
		})
		s.logDelivery(ctx, notification.ID, ChannelWebSocket, statusFor(err), err)
	}

	if s.email != nil || s.sms != nil {
		s.pushExternal(ctx, notification, userID, eventType, payload)
	}

	return nil
}

// pushExternal resolves the user's contact details and pushes over email and
// sms.
func (s *Service) pushExternal(ctx context.Context, notification *Notification, userID uuid.UUID, eventType string, payload map[string]any) {
	if s.directory == nil {
		return
	}
	contact, err := s.directory.Contact(ctx, userID)
	if err != nil {
		s.logger.Warn("failed to resolve contact for notification",
			zap.String("user_id", userID.String()), zap.Error(err))
		return
	}

	if s.email != nil && contact.Email != "" {
		err := s.email.Send(ctx, contact.Email, eventType, payload)
		s.logDelivery(ctx, notification.ID, ChannelEmail, statusFor(err), err)
	}
	if s.sms != nil && contact.Phone != "" {
		err := s.sms.Send(ctx, contact.Phone, eventType, payload)
		s.logDelivery(ctx, notification.ID, ChannelSMS, statusFor(err), err)
	}
}

// ListForUser returns the user's feed, newest first.
func (s *Service) ListForUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]Notification, error) {
	var items []Notification
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&items).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	return items, nil
}

// MarkRead stamps a notification as read.
func (s *Service) MarkRead(ctx context.Context, notificationID uuid.UUID) error {
	result := s.db.WithContext(ctx).Model(&Notification{}).
		Where("id = ?", notificationID).
		Update("read_at", time.Now())
	if result.Error != nil {
		return fmt.Errorf("failed to mark notification read: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (s *Service) logDelivery(ctx context.Context, notificationID uuid.UUID, channel, status string, cause error) {
	entry := &DeliveryLog{
		ID:             uuid.New(),
		NotificationID: notificationID,
		Channel:        channel,
		Status:         status,
		Timestamp:      time.Now(),
	}
	if cause != nil {
		entry.Error = cause.Error()
		s.logger.Warn("notification channel delivery failed",
			zap.String("channel", channel),
			zap.String("notification_id", notificationID.String()),
			zap.Error(cause))
	}
	if err := s.db.WithContext(ctx).Create(entry).Error; err != nil {
		s.logger.Warn("failed to write delivery log", zap.Error(err))
	}
}

func statusFor(err error) string {
	if err != nil {
		return StatusFailed
	}
	return StatusSent
}

// Close shuts down the push transport.
func (s *Service) Close() error {
	if s.ws != nil {
		s.ws.Close()
	}
	return nil
}
