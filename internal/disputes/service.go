package disputes

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"talentbridge/marketplace-backend/internal/assessment"
	"talentbridge/marketplace-backend/internal/projects"
	"talentbridge/marketplace-backend/pkg/workflows"
)

// InvalidEvidenceError rejects a dispute at intake. No record is created and
// no re-assessment is issued.
type InvalidEvidenceError struct {
	Reason string
}

func (e *InvalidEvidenceError) Error() string {
	return fmt.Sprintf("invalid evidence: %s", e.Reason)
}

// ErrActiveDispute rejects a second filing while one is still open for the
// same checkpoint.
var ErrActiveDispute = errors.New("an active dispute already exists for this checkpoint")

// Lifecycle is the project state surface the dispute manager drives.
type Lifecycle interface {
	GetProject(ctx context.Context, id uuid.UUID) (*projects.Project, error)
	Transition(ctx context.Context, projectID uuid.UUID, to workflows.Status, actor uuid.UUID) (*projects.Project, error)
	ApplyReassessment(ctx context.Context, projectID uuid.UUID, result *assessment.Result, actor uuid.UUID) (*projects.Project, error)
}

// Evaluator issues assessment evaluations.
type Evaluator interface {
	Evaluate(ctx context.Context, req assessment.Request) (*assessment.Result, error)
}

// ResultLog reads the append-only assessment result history.
type ResultLog interface {
	ListByProject(ctx context.Context, projectID uuid.UUID, kind assessment.Kind) ([]assessment.ResultRecord, error)
}

// FileStore verifies evidence attachments exist and passed scanning.
type FileStore interface {
	Validate(ctx context.Context, fileRefs []string) error
}

// Notifier delivers dispute events to interested parties.
type Notifier interface {
	Notify(ctx context.Context, userID uuid.UUID, eventType string, payload map[string]any) error
}

// Auditor records durable audit entries without blocking.
type Auditor interface {
	Record(ctx context.Context, entityType string, entityID uuid.UUID, change string, actor uuid.UUID)
}

// Mediator receives disputes the re-assessment could not settle.
type Mediator interface {
	Escalate(ctx context.Context, dispute *Dispute) error
}

// Notification event types emitted by the dispute manager.
const (
	EventDisputeFiled     = "DISPUTE_FILED"
	EventDisputeResolved  = "DISPUTE_RESOLVED"
	EventDisputeEscalated = "DISPUTE_ESCALATED"
)

// Service owns evidence intake and re-assessment sequencing. The original
// result is never mutated; the re-assessment supersedes it by reference.
type Service struct {
	repo         Repository
	lifecycle    Lifecycle
	evaluator    Evaluator
	results      ResultLog
	files        FileStore
	notifier     Notifier
	auditor      Auditor
	mediator     Mediator
	stateMachine *workflows.StateMachine
	logger       *zap.Logger
}

// NewService wires the dispute manager. files and mediator may be nil when
// evidence attachments or external mediation are disabled.
func NewService(
	repo Repository,
	lifecycle Lifecycle,
	evaluator Evaluator,
	results ResultLog,
	files FileStore,
	notifier Notifier,
	auditor Auditor,
	mediator Mediator,
	logger *zap.Logger,
) *Service {
	return &Service{
		repo:         repo,
		lifecycle:    lifecycle,
		evaluator:    evaluator,
		results:      results,
		files:        files,
		notifier:     notifier,
		auditor:      auditor,
		mediator:     mediator,
		stateMachine: workflows.NewStateMachine(),
		logger:       logger,
	}
}

// FileDispute validates the evidence, opens the dispute, moves the project to
// DISPUTED and immediately re-evaluates the contested checkpoint with the
// evidence folded into the request. On AssessmentUnavailable the dispute stays
// UNDER_REVIEW for the escalation sweeper and the error is surfaced alongside
// it.
func (s *Service) FileDispute(ctx context.Context, req FileDisputeRequest) (*Dispute, error) {
	if req.Evidence.Reasoning == "" {
		return nil, &InvalidEvidenceError{Reason: "evidence reasoning is required"}
	}
	if len(req.Evidence.References) == 0 {
		return nil, &InvalidEvidenceError{Reason: "at least one requirement reference is required"}
	}
	if len(req.Evidence.FileRefs) > 0 {
		if s.files == nil {
			return nil, &InvalidEvidenceError{Reason: "file attachments are not accepted"}
		}
		if err := s.files.Validate(ctx, req.Evidence.FileRefs); err != nil {
			return nil, &InvalidEvidenceError{Reason: fmt.Sprintf("file references rejected: %v", err)}
		}
	}

	active, err := s.repo.FindActive(ctx, req.ProjectID, req.Kind)
	if err != nil {
		return nil, fmt.Errorf("failed to check active disputes: %w", err)
	}
	if active != nil {
		return nil, ErrActiveDispute
	}

	project, err := s.lifecycle.GetProject(ctx, req.ProjectID)
	if err != nil {
		return nil, err
	}
	if !s.stateMachine.CanTransition(project.Status, workflows.StatusDisputed) {
		return nil, fmt.Errorf("%w: %s -> %s", workflows.ErrInvalidTransition,
			project.Status, workflows.StatusDisputed)
	}

	original, err := s.latestResult(ctx, req.ProjectID, req.Kind)
	if err != nil {
		return nil, err
	}

	references, _ := json.Marshal(req.Evidence.References)
	fileRefs, _ := json.Marshal(req.Evidence.FileRefs)
	dispute := &Dispute{
		ID:               uuid.New(),
		ProjectID:        req.ProjectID,
		Kind:             req.Kind,
		FiledBy:          req.FiledBy,
		Reasoning:        req.Evidence.Reasoning,
		References:       references,
		FileRefs:         fileRefs,
		Status:           StatusSubmitted,
		OriginalResultID: original.ID,
		CreatedAt:        time.Now(),
		UpdatedAt:        time.Now(),
	}
	if err := s.repo.Create(ctx, dispute); err != nil {
		return nil, fmt.Errorf("failed to create dispute: %w", err)
	}
	s.auditor.Record(ctx, "dispute", dispute.ID, "filed", req.FiledBy)

	project, err = s.lifecycle.Transition(ctx, req.ProjectID, workflows.StatusDisputed, req.FiledBy)
	if err != nil {
		return nil, err
	}
	s.notify(ctx, project.ClientID, EventDisputeFiled, map[string]any{
		"dispute_id": dispute.ID.String(),
		"project_id": project.ID.String(),
		"kind":       string(dispute.Kind),
	})

	dispute.Status = StatusUnderReview
	dispute.UpdatedAt = time.Now()
	if err := s.repo.Update(ctx, dispute); err != nil {
		return nil, fmt.Errorf("failed to update dispute: %w", err)
	}

	return dispute, s.reassess(ctx, dispute, project, original)
}

// reassess issues the evidence-augmented evaluation and applies its outcome.
func (s *Service) reassess(ctx context.Context, dispute *Dispute, project *projects.Project, original *assessment.ResultRecord) error {
	req := projects.BuildAssessmentRequest(project, dispute.Kind)
	req.Evidence = &assessment.Evidence{
		Reasoning:  dispute.Reasoning,
		References: decodeStrings(dispute.References),
		FileRefs:   decodeStrings(dispute.FileRefs),
	}
	req.Supersedes = &original.ID

	result, err := s.evaluator.Evaluate(ctx, req)
	if err != nil {
		if errors.Is(err, assessment.ErrAssessmentUnavailable) {
			s.logger.Warn("dispute re-assessment unavailable",
				zap.String("dispute_id", dispute.ID.String()), zap.Error(err))
			s.auditor.Record(ctx, "dispute", dispute.ID, "re-assessment unavailable", dispute.FiledBy)
		}
		return err
	}

	dispute.ReassessmentID = &result.ID
	dispute.UpdatedAt = time.Now()
	s.auditor.Record(ctx, "assessment", result.ID,
		fmt.Sprintf("dispute re-assessment scored %d (%s)", result.Score, result.Outcome), dispute.FiledBy)

	if result.Outcome == original.Outcome {
		return s.escalate(ctx, dispute, project)
	}
	return s.settle(ctx, dispute, project, original, result)
}

// settle applies a changed decision: the project re-enters the requirements
// flow with the new outcome and the dispute is resolved in favor of whoever
// the change benefits. Only the requirements flow has a re-entry edge from
// DISPUTED, and the favor mapping reads requirements outcomes, so any other
// checkpoint kind goes to mediation instead.
func (s *Service) settle(ctx context.Context, dispute *Dispute, project *projects.Project, original *assessment.ResultRecord, result *assessment.Result) error {
	if dispute.Kind != assessment.KindRequirements {
		return s.escalate(ctx, dispute, project)
	}

	if _, err := s.lifecycle.Transition(ctx, project.ID, workflows.StatusRequirementsPending, dispute.FiledBy); err != nil {
		return err
	}
	project, err := s.lifecycle.ApplyReassessment(ctx, project.ID, result, dispute.FiledBy)
	if err != nil {
		return err
	}

	resolution := ResolutionClientFavor
	if result.Outcome == assessment.OutcomeMet {
		resolution = ResolutionFreelancerFavor
	}
	now := time.Now()
	dispute.Status = StatusResolved
	dispute.Resolution = &resolution
	dispute.ResolutionRecorded = &now
	dispute.UpdatedAt = now
	if err := s.repo.Update(ctx, dispute); err != nil {
		return fmt.Errorf("failed to resolve dispute: %w", err)
	}
	s.auditor.Record(ctx, "dispute", dispute.ID,
		fmt.Sprintf("resolved %s", resolution), dispute.FiledBy)

	payload := map[string]any{
		"dispute_id":   dispute.ID.String(),
		"project_id":   project.ID.String(),
		"old_decision": string(original.Outcome),
		"new_decision": string(result.Outcome),
		"resolution":   string(resolution),
	}
	s.notify(ctx, project.ClientID, EventDisputeResolved, payload)
	if project.FreelancerID != nil {
		s.notify(ctx, *project.FreelancerID, EventDisputeResolved, payload)
	}
	return nil
}

// escalate hands an unsettled dispute to mediation. The project stays
// DISPUTED until Resolve records the mediator's outcome.
func (s *Service) escalate(ctx context.Context, dispute *Dispute, project *projects.Project) error {
	dispute.Status = StatusEscalated
	dispute.UpdatedAt = time.Now()
	if err := s.repo.Update(ctx, dispute); err != nil {
		return fmt.Errorf("failed to escalate dispute: %w", err)
	}
	s.auditor.Record(ctx, "dispute", dispute.ID, "escalated to mediation", dispute.FiledBy)

	if s.mediator != nil {
		if err := s.mediator.Escalate(ctx, dispute); err != nil {
			s.logger.Warn("failed to hand dispute to mediation",
				zap.String("dispute_id", dispute.ID.String()), zap.Error(err))
		}
	}

	payload := map[string]any{
		"dispute_id": dispute.ID.String(),
		"project_id": project.ID.String(),
	}
	s.notify(ctx, project.ClientID, EventDisputeEscalated, payload)
	if project.FreelancerID != nil {
		s.notify(ctx, *project.FreelancerID, EventDisputeEscalated, payload)
	}
	return nil
}

// Resolve records mediation's final outcome on an escalated dispute and
// closes the project.
func (s *Service) Resolve(ctx context.Context, disputeID uuid.UUID, resolution Resolution, actor uuid.UUID) (*Dispute, error) {
	dispute, err := s.repo.GetByID(ctx, disputeID)
	if err != nil {
		return nil, err
	}
	if dispute.Status != StatusEscalated {
		return nil, &projects.ValidationError{Reason: "only escalated disputes can be resolved"}
	}
	switch resolution {
	case ResolutionClientFavor, ResolutionFreelancerFavor, ResolutionMediated, ResolutionNoChange:
	default:
		return nil, &projects.ValidationError{Reason: fmt.Sprintf("unknown resolution %q", resolution)}
	}

	project, err := s.lifecycle.Transition(ctx, dispute.ProjectID, workflows.StatusClosed, actor)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	dispute.Status = StatusResolved
	dispute.Resolution = &resolution
	dispute.ResolutionRecorded = &now
	dispute.UpdatedAt = now
	if err := s.repo.Update(ctx, dispute); err != nil {
		return nil, fmt.Errorf("failed to record resolution: %w", err)
	}
	s.auditor.Record(ctx, "dispute", dispute.ID,
		fmt.Sprintf("resolved %s by mediation", resolution), actor)

	payload := map[string]any{
		"dispute_id": dispute.ID.String(),
		"project_id": project.ID.String(),
		"resolution": string(resolution),
	}
	s.notify(ctx, project.ClientID, EventDisputeResolved, payload)
	if project.FreelancerID != nil {
		s.notify(ctx, *project.FreelancerID, EventDisputeResolved, payload)
	}
	return dispute, nil
}

// GetDispute returns one dispute.
func (s *Service) GetDispute(ctx context.Context, id uuid.UUID) (*Dispute, error) {
	return s.repo.GetByID(ctx, id)
}

// ListDisputes returns a project's disputes in filing order.
func (s *Service) ListDisputes(ctx context.Context, projectID uuid.UUID) ([]Dispute, error) {
	return s.repo.ListByProject(ctx, projectID)
}

// latestResult returns the newest result record for a checkpoint; a dispute
// must contest something.
func (s *Service) latestResult(ctx context.Context, projectID uuid.UUID, kind assessment.Kind) (*assessment.ResultRecord, error) {
	records, err := s.results.ListByProject(ctx, projectID, kind)
	if err != nil {
		return nil, fmt.Errorf("failed to load result history: %w", err)
	}
	if len(records) == 0 {
		return nil, &InvalidEvidenceError{Reason: "no assessment result exists for this checkpoint"}
	}
	return &records[len(records)-1], nil
}

func (s *Service) notify(ctx context.Context, userID uuid.UUID, eventType string, payload map[string]any) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Notify(ctx, userID, eventType, payload); err != nil {
		s.logger.Warn("failed to deliver dispute notification",
			zap.String("event", eventType), zap.Error(err))
	}
}

func decodeStrings(raw []byte) []string {
	if len(raw) == 0 {
		return nil
	}
	var out []string
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil
	}
	return out
}
