package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Entry is one append-only audit row. Entries are written on every status
// transition, assessment result and dispute event.
type Entry struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	EntityType string    `gorm:"not null;index" json:"entity_type"`
	EntityID   uuid.UUID `gorm:"type:uuid;not null;index" json:"entity_id"`
	Change     string    `gorm:"not null" json:"change"`
	Actor      uuid.UUID `gorm:"type:uuid" json:"actor"`
	CreatedAt  time.Time `json:"created_at"`
}

func (Entry) TableName() string {
	return "audit_entries"
}

// Service writes audit entries. A failed write is logged and never blocks the
// operation being audited.
type Service struct {
	db     *gorm.DB
	logger *zap.Logger
}

func NewService(db *gorm.DB, logger *zap.Logger) (*Service, error) {
	if err := db.AutoMigrate(&Entry{}); err != nil {
		return nil, fmt.Errorf("failed to migrate audit entries: %w", err)
	}
	return &Service{db: db, logger: logger}, nil
}

// Record appends one audit entry.
func (s *Service) Record(ctx context.Context, entityType string, entityID uuid.UUID, change string, actor uuid.UUID) {
	entry := &Entry{
		ID:         uuid.New(),
		EntityType: entityType,
		EntityID:   entityID,
		Change:     change,
		Actor:      actor,
		CreatedAt:  time.Now(),
	}
	if err := s.db.WithContext(ctx).Create(entry).Error; err != nil {
		s.logger.Error("failed to write audit entry",
			zap.String("entity_type", entityType),
			zap.String("entity_id", entityID.String()),
			zap.String("change", change),
			zap.Error(err))
	}
}

// ListByEntity returns an entity's audit trail in write order.
func (s *Service) ListByEntity(ctx context.Context, entityType string, entityID uuid.UUID) ([]Entry, error) {
	var entries []Entry
	err := s.db.WithContext(ctx).
		Where("entity_type = ? AND entity_id = ?", entityType, entityID).
		Order("created_at ASC").
		Find(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list audit entries: %w", err)
	}
	return entries, nil
}
