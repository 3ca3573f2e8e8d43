package projects

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ProjectRepository persists the project aggregate.
type ProjectRepository interface {
	Create(ctx context.Context, project *Project) error
	GetByID(ctx context.Context, id uuid.UUID) (*Project, error)
	Update(ctx context.Context, project *Project) error
	UpdateDeliverable(ctx context.Context, deliverable *Deliverable) error
	List(ctx context.Context, filter ProjectFilter) ([]*Project, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// StatusHistoryRepository persists the transition log.
type StatusHistoryRepository interface {
	Create(ctx context.Context, history *ProjectStatusHistory) error
	ListByProject(ctx context.Context, projectID uuid.UUID) ([]ProjectStatusHistory, error)
}

type gormProjectRepository struct {
	db *gorm.DB
}

// NewProjectRepository creates the gorm-backed project repository and
// migrates its tables.
func NewProjectRepository(db *gorm.DB) (ProjectRepository, error) {
	if err := db.AutoMigrate(&Project{}, &Deliverable{}); err != nil {
		return nil, fmt.Errorf("failed to migrate projects: %w", err)
	}
	return &gormProjectRepository{db: db}, nil
}

func (r *gormProjectRepository) Create(ctx context.Context, project *Project) error {
	return r.db.WithContext(ctx).Create(project).Error
}

func (r *gormProjectRepository) GetByID(ctx context.Context, id uuid.UUID) (*Project, error) {
	var project Project
	err := r.db.WithContext(ctx).Preload("Deliverables").Where("id = ?", id).First(&project).Error
	if err != nil {
		return nil, err
	}
	return &project, nil
}

func (r *gormProjectRepository) Update(ctx context.Context, project *Project) error {
	return r.db.WithContext(ctx).Save(project).Error
}

func (r *gormProjectRepository) UpdateDeliverable(ctx context.Context, deliverable *Deliverable) error {
	return r.db.WithContext(ctx).Save(deliverable).Error
}

func (r *gormProjectRepository) List(ctx context.Context, filter ProjectFilter) ([]*Project, error) {
	query := r.db.WithContext(ctx).Model(&Project{}).Preload("Deliverables")

	if filter.ClientID != nil {
		query = query.Where("client_id = ?", *filter.ClientID)
	}
	if filter.FreelancerID != nil {
		query = query.Where("freelancer_id = ?", *filter.FreelancerID)
	}
	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}
	if filter.Offset > 0 {
		query = query.Offset(filter.Offset)
	}

	var projects []*Project
	if err := query.Order("created_at DESC").Find(&projects).Error; err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	return projects, nil
}

func (r *gormProjectRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Delete(&Project{}, "id = ?", id).Error
}

type gormStatusHistoryRepository struct {
	db *gorm.DB
}

// NewStatusHistoryRepository creates the gorm-backed transition log.
func NewStatusHistoryRepository(db *gorm.DB) (StatusHistoryRepository, error) {
	if err := db.AutoMigrate(&ProjectStatusHistory{}); err != nil {
		return nil, fmt.Errorf("failed to migrate status history: %w", err)
	}
	return &gormStatusHistoryRepository{db: db}, nil
}

func (r *gormStatusHistoryRepository) Create(ctx context.Context, history *ProjectStatusHistory) error {
	return r.db.WithContext(ctx).Create(history).Error
}

func (r *gormStatusHistoryRepository) ListByProject(ctx context.Context, projectID uuid.UUID) ([]ProjectStatusHistory, error) {
	var entries []ProjectStatusHistory
	err := r.db.WithContext(ctx).
		Where("project_id = ?", projectID).
		Order("changed_at ASC").
		Find(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list status history: %w", err)
	}
	return entries, nil
}
