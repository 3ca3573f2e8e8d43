package assessment

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Kind identifies the checkpoint an assessment belongs to.
type Kind string

const (
	KindBudget       Kind = "BUDGET"
	KindRequirements Kind = "REQUIREMENTS"
)

// Outcome is the decision derived from an assessment score.
type Outcome string

const (
	OutcomeAligned      Outcome = "ALIGNED"
	OutcomeMisaligned   Outcome = "MISALIGNED"
	OutcomeMet          Outcome = "REQUIREMENTS_MET"
	OutcomePartiallyMet Outcome = "REQUIREMENTS_PARTIALLY_MET"
)

// IssueCategory classifies a requirements gap.
type IssueCategory string

const (
	IssueMissingDeliverable IssueCategory = "missing_deliverable"
	IssueIncompleteWork     IssueCategory = "incomplete_work"
	IssueFormatIssue        IssueCategory = "format_issue"
	IssueScopeDeviation     IssueCategory = "scope_deviation"
)

// IssueSeverity grades a requirements issue.
type IssueSeverity string

const (
	SeverityCritical IssueSeverity = "critical"
	SeverityMajor    IssueSeverity = "major"
	SeverityMinor    IssueSeverity = "minor"
)

// Issue is one categorized gap found in a requirements assessment.
type Issue struct {
	Category    IssueCategory `json:"category"`
	Severity    IssueSeverity `json:"severity"`
	Description string        `json:"description"`
}

// Recommendation is the mandatory guidance attached to a misaligned budget
// assessment.
type Recommendation struct {
	SuggestedMin float64 `json:"suggested_min"`
	SuggestedMax float64 `json:"suggested_max"`
	Reasoning    string  `json:"reasoning"`
}

// DeliverableSpec is the snapshot of one deliverable relevant to a checkpoint.
type DeliverableSpec struct {
	Name     string `json:"name"`
	Required bool   `json:"required"`
}

// Evidence is the dispute payload folded into a re-assessment request. Its
// presence changes the request fingerprint.
type Evidence struct {
	Reasoning  string   `json:"reasoning"`
	References []string `json:"references"`
	FileRefs   []string `json:"file_refs,omitempty"`
}

// Request is the project snapshot sent to the scoring capability for one
// checkpoint.
type Request struct {
	ProjectID    uuid.UUID         `json:"project_id"`
	Kind         Kind              `json:"kind"`
	Description  string            `json:"description"`
	Budget       float64           `json:"budget"`
	Deliverables []DeliverableSpec `json:"deliverables"`
	Submitted    []string          `json:"submitted,omitempty"`
	Evidence     *Evidence         `json:"evidence,omitempty"`

	// Supersedes links a re-assessment to the result it replaces. Causal
	// ordering, not part of the fingerprint.
	Supersedes *uuid.UUID `json:"-"`
}

// Result is one immutable assessment outcome. Re-assessments supersede it by
// reference; it is never mutated.
type Result struct {
	ID             uuid.UUID       `json:"id"`
	ProjectID      uuid.UUID       `json:"project_id"`
	Kind           Kind            `json:"kind"`
	Score          int             `json:"score"`
	Outcome        Outcome         `json:"outcome"`
	Rationale      string          `json:"rationale"`
	Recommendation *Recommendation `json:"recommendation,omitempty"`
	Issues         []Issue         `json:"issues,omitempty"`
	Supersedes     *uuid.UUID      `json:"supersedes,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	Duration       time.Duration   `json:"duration"`
}

// ResultRecord is the persisted append-log row for a Result, keyed by
// (project, kind, sequence).
type ResultRecord struct {
	ID             uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	ProjectID      uuid.UUID      `gorm:"type:uuid;not null;index:idx_results_project_kind" json:"project_id"`
	Kind           Kind           `gorm:"not null;index:idx_results_project_kind" json:"kind"`
	Sequence       int            `gorm:"not null" json:"sequence"`
	Fingerprint    string         `gorm:"not null" json:"fingerprint"`
	Score          int            `gorm:"not null" json:"score"`
	Outcome        Outcome        `gorm:"not null" json:"outcome"`
	Rationale      string         `json:"rationale"`
	Recommendation datatypes.JSON `json:"recommendation,omitempty"`
	Issues         datatypes.JSON `json:"issues,omitempty"`
	SupersedesID   *uuid.UUID     `gorm:"type:uuid" json:"supersedes_id,omitempty"`
	DurationMs     int64          `json:"duration_ms"`
	CreatedAt      time.Time      `json:"created_at"`
}
