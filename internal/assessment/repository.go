package assessment

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Repository persists the assessment result append log.
type Repository interface {
	ResultStore
	ListByProject(ctx context.Context, projectID uuid.UUID, kind Kind) ([]ResultRecord, error)
	GetByID(ctx context.Context, id uuid.UUID) (*ResultRecord, error)
}

type gormRepository struct {
	db *gorm.DB
}

// NewRepository creates the gorm-backed result log and migrates its table.
func NewRepository(db *gorm.DB) (Repository, error) {
	if err := db.AutoMigrate(&ResultRecord{}); err != nil {
		return nil, fmt.Errorf("failed to migrate assessment results: %w", err)
	}
	return &gormRepository{db: db}, nil
}

// Append writes the record with the next sequence number for its
// (project, kind) stream. Records are append-only; nothing updates them.
func (r *gormRepository) Append(ctx context.Context, record *ResultRecord) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var maxSeq int64
		err := tx.Model(&ResultRecord{}).
			Where("project_id = ? AND kind = ?", record.ProjectID, record.Kind).
			Select("COALESCE(MAX(sequence), 0)").
			Scan(&maxSeq).Error
		if err != nil {
			return fmt.Errorf("failed to read result sequence: %w", err)
		}

		record.Sequence = int(maxSeq) + 1
		if err := tx.Create(record).Error; err != nil {
			return fmt.Errorf("failed to append result record: %w", err)
		}
		return nil
	})
}

func (r *gormRepository) ListByProject(ctx context.Context, projectID uuid.UUID, kind Kind) ([]ResultRecord, error) {
	var records []ResultRecord
	query := r.db.WithContext(ctx).Where("project_id = ?", projectID)
	if kind != "" {
		query = query.Where("kind = ?", kind)
	}
	if err := query.Order("sequence ASC").Find(&records).Error; err != nil {
		return nil, fmt.Errorf("failed to list result records: %w", err)
	}
	return records, nil
}

func (r *gormRepository) GetByID(ctx context.Context, id uuid.UUID) (*ResultRecord, error) {
	var record ResultRecord
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&record).Error; err != nil {
		return nil, err
	}
	return &record, nil
}
