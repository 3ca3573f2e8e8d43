package disputes

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"talentbridge/marketplace-backend/internal/assessment"
)

// Repository persists disputes.
type Repository interface {
	Create(ctx context.Context, dispute *Dispute) error
	GetByID(ctx context.Context, id uuid.UUID) (*Dispute, error)
	Update(ctx context.Context, dispute *Dispute) error
	FindActive(ctx context.Context, projectID uuid.UUID, kind assessment.Kind) (*Dispute, error)
	ListByProject(ctx context.Context, projectID uuid.UUID) ([]Dispute, error)
	ListStale(ctx context.Context, before time.Time) ([]Dispute, error)
}

type gormRepository struct {
	db *gorm.DB
}

// NewRepository creates the gorm-backed dispute store and migrates its table.
func NewRepository(db *gorm.DB) (Repository, error) {
	if err := db.AutoMigrate(&Dispute{}); err != nil {
		return nil, fmt.Errorf("failed to migrate disputes: %w", err)
	}
	return &gormRepository{db: db}, nil
}

func (r *gormRepository) Create(ctx context.Context, dispute *Dispute) error {
	return r.db.WithContext(ctx).Create(dispute).Error
}

func (r *gormRepository) GetByID(ctx context.Context, id uuid.UUID) (*Dispute, error) {
	var dispute Dispute
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&dispute).Error; err != nil {
		return nil, err
	}
	return &dispute, nil
}

func (r *gormRepository) Update(ctx context.Context, dispute *Dispute) error {
	return r.db.WithContext(ctx).Save(dispute).Error
}

// FindActive returns the unresolved dispute for a (project, kind), or nil when
// none exists.
func (r *gormRepository) FindActive(ctx context.Context, projectID uuid.UUID, kind assessment.Kind) (*Dispute, error) {
	var dispute Dispute
	err := r.db.WithContext(ctx).
		Where("project_id = ? AND kind = ? AND status <> ?", projectID, kind, StatusResolved).
		First(&dispute).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &dispute, nil
}

func (r *gormRepository) ListByProject(ctx context.Context, projectID uuid.UUID) ([]Dispute, error) {
	var disputes []Dispute
	err := r.db.WithContext(ctx).
		Where("project_id = ?", projectID).
		Order("created_at ASC").
		Find(&disputes).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list disputes: %w", err)
	}
	return disputes, nil
}

// ListStale returns disputes still awaiting review whose last update predates
// the cutoff. Used by the escalation sweeper.
func (r *gormRepository) ListStale(ctx context.Context, before time.Time) ([]Dispute, error) {
	var disputes []Dispute
	err := r.db.WithContext(ctx).
		Where("status IN ? AND updated_at < ?", []Status{StatusSubmitted, StatusUnderReview}, before).
		Find(&disputes).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list stale disputes: %w", err)
	}
	return disputes, nil
}
