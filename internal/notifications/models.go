package notifications

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Delivery channels.
const (
	ChannelEmail     = "EMAIL"
	ChannelSMS       = "SMS"
	ChannelWebSocket = "WEBSOCKET"
	ChannelInApp     = "IN_APP"
)

// Delivery statuses.
const (
	StatusPending   = "PENDING"
	StatusSent      = "SENT"
	StatusDelivered = "DELIVERED"
	StatusFailed    = "FAILED"
)

// Notification is one stored lifecycle event addressed to a user. The in-app
// feed reads these rows; the other channels are best-effort pushes.
type Notification struct {
	ID        uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	UserID    uuid.UUID      `gorm:"type:uuid;not null;index" json:"user_id"`
	EventType string         `gorm:"not null" json:"event_type"`
	Payload   datatypes.JSON `json:"payload"`
	Status    string         `gorm:"not null;default:'PENDING'" json:"status"`
	ReadAt    *time.Time     `json:"read_at,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// DeliveryLog tracks one channel attempt for a notification.
type DeliveryLog struct {
	ID             uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	NotificationID uuid.UUID `gorm:"type:uuid;not null;index" json:"notification_id"`
	Channel        string    `gorm:"not null" json:"channel"`
	Status         string    `gorm:"not null" json:"status"`
	Error          string    `json:"error,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}

// Contact is the resolved delivery addressing for a user. Empty fields
// disable the corresponding channel.
type Contact struct {
	Email string
	Phone string
}
