package projects

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"talentbridge/marketplace-backend/pkg/workflows"
)

// Project is the aggregate root: deliverables, assessment results and
// disputes are owned by it and cannot outlive it.
type Project struct {
	ID           uuid.UUID        `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	ClientID     uuid.UUID        `gorm:"type:uuid;not null" json:"client_id"`
	FreelancerID *uuid.UUID       `gorm:"type:uuid" json:"freelancer_id,omitempty"`
	Description  string           `gorm:"not null" json:"description"`
	Budget       float64          `gorm:"not null" json:"budget"`
	Status       workflows.Status `gorm:"not null;default:'DRAFT'" json:"status"`
	Deliverables []Deliverable    `gorm:"constraint:OnDelete:CASCADE" json:"deliverables"`
	CreatedAt    time.Time        `json:"created_at"`
	UpdatedAt    time.Time        `json:"updated_at"`
	DeletedAt    gorm.DeletedAt   `gorm:"index" json:"-"`
}

// DeliverableStatus tracks fulfillment of one deliverable.
type DeliverableStatus string

const (
	DeliverablePending   DeliverableStatus = "PENDING"
	DeliverableSubmitted DeliverableStatus = "SUBMITTED"
	DeliverableApproved  DeliverableStatus = "APPROVED"
)

// Deliverable is one agreed work item, owned exclusively by its project.
type Deliverable struct {
	ID        uuid.UUID         `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	ProjectID uuid.UUID         `gorm:"type:uuid;not null" json:"project_id"`
	Name      string            `gorm:"not null" json:"name"`
	Required  bool              `gorm:"not null" json:"required"`
	Status    DeliverableStatus `gorm:"not null;default:'PENDING'" json:"status"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// ProjectStatusHistory tracks status changes
type ProjectStatusHistory struct {
	ID         uuid.UUID        `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	ProjectID  uuid.UUID        `gorm:"type:uuid;not null" json:"project_id"`
	FromStatus workflows.Status `gorm:"not null" json:"from_status"`
	ToStatus   workflows.Status `gorm:"not null" json:"to_status"`
	ChangedAt  time.Time        `json:"changed_at"`
	ChangedBy  uuid.UUID        `gorm:"type:uuid" json:"changed_by"`
	Project    Project          `gorm:"foreignKey:ProjectID" json:"-"`
}

// ProjectFilter narrows project listings.
type ProjectFilter struct {
	ClientID     *uuid.UUID
	FreelancerID *uuid.UUID
	Status       *workflows.Status
	Limit        int
	Offset       int
}
