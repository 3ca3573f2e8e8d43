package disputes

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"talentbridge/marketplace-backend/internal/assessment"
)

// Status tracks a dispute from intake to resolution.
type Status string

const (
	StatusSubmitted   Status = "SUBMITTED"
	StatusUnderReview Status = "UNDER_REVIEW"
	StatusEscalated   Status = "ESCALATED"
	StatusResolved    Status = "RESOLVED"
)

// Resolution is the recorded outcome of a resolved dispute.
type Resolution string

const (
	ResolutionClientFavor     Resolution = "CLIENT_FAVOR"
	ResolutionFreelancerFavor Resolution = "FREELANCER_FAVOR"
	ResolutionMediated        Resolution = "MEDIATED"
	ResolutionNoChange        Resolution = "NO_CHANGE"
)

// Dispute contests one checkpoint result. It references the original result
// and, once re-assessed, the result that supersedes it. Owned by its project.
type Dispute struct {
	ID                 uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	ProjectID          uuid.UUID       `gorm:"type:uuid;not null;index:idx_disputes_project_kind" json:"project_id"`
	Kind               assessment.Kind `gorm:"not null;index:idx_disputes_project_kind" json:"kind"`
	FiledBy            uuid.UUID       `gorm:"type:uuid;not null" json:"filed_by"`
	Reasoning          string          `gorm:"not null" json:"reasoning"`
	References         datatypes.JSON  `json:"references"`
	FileRefs           datatypes.JSON  `json:"file_refs,omitempty"`
	Status             Status          `gorm:"not null;default:'SUBMITTED'" json:"status"`
	OriginalResultID   uuid.UUID       `gorm:"type:uuid;not null" json:"original_result_id"`
	ReassessmentID     *uuid.UUID      `gorm:"type:uuid" json:"reassessment_id,omitempty"`
	Resolution         *Resolution     `json:"resolution,omitempty"`
	ResolutionRecorded *time.Time      `json:"resolution_recorded,omitempty"`
	CreatedAt          time.Time       `json:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at"`
}

// Active reports whether the dispute still blocks a new filing for its
// checkpoint.
func (d *Dispute) Active() bool {
	return d.Status != StatusResolved
}

// EvidenceInput is the dispute intake payload.
type EvidenceInput struct {
	Reasoning  string   `json:"reasoning"`
	References []string `json:"references"`
	FileRefs   []string `json:"file_refs"`
}

// FileDisputeRequest opens a dispute against a checkpoint result.
type FileDisputeRequest struct {
	ProjectID uuid.UUID       `json:"-"`
	Kind      assessment.Kind `json:"kind" binding:"required"`
	FiledBy   uuid.UUID       `json:"filed_by" binding:"required"`
	Evidence  EvidenceInput   `json:"evidence" binding:"required"`
}
