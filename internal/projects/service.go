package projects

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"talentbridge/marketplace-backend/internal/assessment"
	"talentbridge/marketplace-backend/pkg/workflows"
)

// ValidationError marks malformed input. Caller's fault, never retried.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %s", e.Reason)
}

// Evaluator is the assessment orchestrator surface the lifecycle consumes.
type Evaluator interface {
	Evaluate(ctx context.Context, req assessment.Request) (*assessment.Result, error)
}

// Notifier delivers lifecycle events to interested parties.
type Notifier interface {
	Notify(ctx context.Context, userID uuid.UUID, eventType string, payload map[string]any) error
}

// Auditor records durable audit entries. Implementations must not block the
// transition on write failure.
type Auditor interface {
	Record(ctx context.Context, entityType string, entityID uuid.UUID, change string, actor uuid.UUID)
}

// SearchIndex keeps the browse index in sync with project availability.
type SearchIndex interface {
	IndexProject(ctx context.Context, project *Project) error
	RemoveProject(ctx context.Context, projectID uuid.UUID) error
}

// Notification event types emitted by the lifecycle.
const (
	EventStatusChanged        = "PROJECT_STATUS_CHANGED"
	EventAssessmentCompleted  = "ASSESSMENT_COMPLETED"
	EventManualReviewRequired = "MANUAL_REVIEW_REQUIRED"
)

// Requests

type DeliverableInput struct {
	Name     string `json:"name" binding:"required"`
	Required bool   `json:"required"`
}

type SubmitProjectRequest struct {
	ClientID     uuid.UUID          `json:"client_id" binding:"required"`
	Description  string             `json:"description" binding:"required"`
	Budget       float64            `json:"budget" binding:"required"`
	Deliverables []DeliverableInput `json:"deliverables" binding:"required"`
}

// Service owns the project lifecycle: it validates transitions against the
// state machine, serializes them per project, and triggers checkpoint
// assessments whose decisions are the only way out of a pending state.
type Service struct {
	repo         ProjectRepository
	historyRepo  StatusHistoryRepository
	evaluator    Evaluator
	notifier     Notifier
	auditor      Auditor
	search       SearchIndex
	stateMachine *workflows.StateMachine
	logger       *zap.Logger

	lockMu sync.Mutex
	locks  map[uuid.UUID]*sync.Mutex
}

// NewService wires the lifecycle service. search may be nil when the browse
// index is disabled.
func NewService(
	repo ProjectRepository,
	historyRepo StatusHistoryRepository,
	evaluator Evaluator,
	notifier Notifier,
	auditor Auditor,
	search SearchIndex,
	logger *zap.Logger,
) *Service {
	return &Service{
		repo:         repo,
		historyRepo:  historyRepo,
		evaluator:    evaluator,
		notifier:     notifier,
		auditor:      auditor,
		search:       search,
		stateMachine: workflows.NewStateMachine(),
		logger:       logger,
		locks:        make(map[uuid.UUID]*sync.Mutex),
	}
}

// projectLock returns the single-writer mutex for a project. Two checkpoints
// or two disputes must never race on the same status field.
func (s *Service) projectLock(projectID uuid.UUID) *sync.Mutex {
	s.lockMu.Lock()
	defer s.lockMu.Unlock()

	lock, ok := s.locks[projectID]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[projectID] = lock
	}
	return lock
}

// SubmitProject validates the intake, creates the project and drives it
// through the budget checkpoint. On AssessmentUnavailable the project stays
// in BUDGET_PENDING and the error is surfaced alongside it for the
// manual-review fallback.
func (s *Service) SubmitProject(ctx context.Context, req SubmitProjectRequest) (*Project, error) {
	if req.Description == "" {
		return nil, &ValidationError{Reason: "description is required"}
	}
	if req.Budget <= 0 {
		return nil, &ValidationError{Reason: "budget must be positive"}
	}
	if req.ClientID == uuid.Nil {
		return nil, &ValidationError{Reason: "client_id is required"}
	}
	if len(req.Deliverables) == 0 {
		return nil, &ValidationError{Reason: "at least one deliverable is required"}
	}
	for _, d := range req.Deliverables {
		if d.Name == "" {
			return nil, &ValidationError{Reason: "deliverable name is required"}
		}
	}

	project := &Project{
		ID:          uuid.New(),
		ClientID:    req.ClientID,
		Description: req.Description,
		Budget:      req.Budget,
		Status:      workflows.StatusDraft,
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
	}
	for _, d := range req.Deliverables {
		project.Deliverables = append(project.Deliverables, Deliverable{
			ID:        uuid.New(),
			ProjectID: project.ID,
			Name:      d.Name,
			Required:  d.Required,
			Status:    DeliverablePending,
		})
	}

	if err := s.repo.Create(ctx, project); err != nil {
		return nil, fmt.Errorf("failed to create project: %w", err)
	}
	s.auditor.Record(ctx, "project", project.ID, "created", req.ClientID)

	lock := s.projectLock(project.ID)
	lock.Lock()
	defer lock.Unlock()

	if err := s.transitionLocked(ctx, project, workflows.StatusSubmitted, req.ClientID); err != nil {
		return project, err
	}
	if err := s.transitionLocked(ctx, project, workflows.StatusBudgetPending, req.ClientID); err != nil {
		return project, err
	}

	return project, s.runBudgetCheckpoint(ctx, project)
}

// runBudgetCheckpoint issues exactly one orchestrator evaluation for the
// budget checkpoint and applies its decision.
func (s *Service) runBudgetCheckpoint(ctx context.Context, project *Project) error {
	result, err := s.evaluator.Evaluate(ctx, BuildAssessmentRequest(project, assessment.KindBudget))
	if err != nil {
		return s.reportCheckpointFailure(ctx, project, err)
	}

	s.auditor.Record(ctx, "assessment", result.ID,
		fmt.Sprintf("budget checkpoint scored %d (%s)", result.Score, result.Outcome), project.ClientID)

	target := workflows.StatusBudgetFlagged
	if result.Outcome == assessment.OutcomeAligned {
		target = workflows.StatusAvailable
	}
	if err := s.transitionLocked(ctx, project, target, project.ClientID); err != nil {
		return err
	}

	payload := map[string]any{
		"project_id": project.ID.String(),
		"score":      result.Score,
		"outcome":    string(result.Outcome),
	}
	if result.Recommendation != nil {
		payload["recommendation"] = result.Recommendation
	}
	s.notify(ctx, project.ClientID, EventAssessmentCompleted, payload)

	if target == workflows.StatusAvailable && s.search != nil {
		if err := s.search.IndexProject(ctx, project); err != nil {
			s.logger.Warn("failed to index available project",
				zap.String("project_id", project.ID.String()), zap.Error(err))
		}
	}

	return nil
}

// AcceptProject assigns a freelancer to an available or budget-flagged
// project. Accepting a flagged project is a terminal override.
func (s *Service) AcceptProject(ctx context.Context, projectID, freelancerID uuid.UUID) (*Project, error) {
	if freelancerID == uuid.Nil {
		return nil, &ValidationError{Reason: "freelancer_id is required"}
	}

	lock := s.projectLock(projectID)
	lock.Lock()
	defer lock.Unlock()

	project, err := s.repo.GetByID(ctx, projectID)
	if err != nil {
		return nil, err
	}

	if err := s.transitionLocked(ctx, project, workflows.StatusAssigned, freelancerID); err != nil {
		return nil, err
	}
	project.FreelancerID = &freelancerID
	if err := s.repo.Update(ctx, project); err != nil {
		return nil, fmt.Errorf("failed to assign freelancer: %w", err)
	}

	if s.search != nil {
		if err := s.search.RemoveProject(ctx, projectID); err != nil {
			s.logger.Warn("failed to remove assigned project from index",
				zap.String("project_id", projectID.String()), zap.Error(err))
		}
	}

	return project, nil
}

// StartWork moves an assigned project into progress.
func (s *Service) StartWork(ctx context.Context, projectID, actor uuid.UUID) (*Project, error) {
	lock := s.projectLock(projectID)
	lock.Lock()
	defer lock.Unlock()

	project, err := s.repo.GetByID(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if err := s.transitionLocked(ctx, project, workflows.StatusInProgress, actor); err != nil {
		return nil, err
	}
	return project, nil
}

// SubmitCompletion marks the named deliverables submitted and drives the
// project through the requirements checkpoint.
func (s *Service) SubmitCompletion(ctx context.Context, projectID uuid.UUID, submitted []string, actor uuid.UUID) (*Project, error) {
	if len(submitted) == 0 {
		return nil, &ValidationError{Reason: "at least one submitted deliverable is required"}
	}

	lock := s.projectLock(projectID)
	lock.Lock()
	defer lock.Unlock()

	project, err := s.repo.GetByID(ctx, projectID)
	if err != nil {
		return nil, err
	}

	byName := make(map[string]*Deliverable, len(project.Deliverables))
	for i := range project.Deliverables {
		byName[project.Deliverables[i].Name] = &project.Deliverables[i]
	}
	for _, name := range submitted {
		deliverable, ok := byName[name]
		if !ok {
			return nil, &ValidationError{Reason: fmt.Sprintf("unknown deliverable %q", name)}
		}
		deliverable.Status = DeliverableSubmitted
		if err := s.repo.UpdateDeliverable(ctx, deliverable); err != nil {
			return nil, fmt.Errorf("failed to update deliverable: %w", err)
		}
	}

	if err := s.transitionLocked(ctx, project, workflows.StatusCompleted, actor); err != nil {
		return nil, err
	}
	if err := s.transitionLocked(ctx, project, workflows.StatusRequirementsPending, actor); err != nil {
		return nil, err
	}

	return project, s.runRequirementsCheckpoint(ctx, project, actor)
}

// runRequirementsCheckpoint issues the requirements evaluation and applies
// its decision.
func (s *Service) runRequirementsCheckpoint(ctx context.Context, project *Project, actor uuid.UUID) error {
	result, err := s.evaluator.Evaluate(ctx, BuildAssessmentRequest(project, assessment.KindRequirements))
	if err != nil {
		return s.reportCheckpointFailure(ctx, project, err)
	}

	s.auditor.Record(ctx, "assessment", result.ID,
		fmt.Sprintf("requirements checkpoint scored %d (%s)", result.Score, result.Outcome), actor)

	return s.applyRequirementsOutcomeLocked(ctx, project, result, actor)
}

// ApplyReassessment maps a dispute re-assessment decision onto the lifecycle.
// The project must currently be in REQUIREMENTS_PENDING.
func (s *Service) ApplyReassessment(ctx context.Context, projectID uuid.UUID, result *assessment.Result, actor uuid.UUID) (*Project, error) {
	lock := s.projectLock(projectID)
	lock.Lock()
	defer lock.Unlock()

	project, err := s.repo.GetByID(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if err := s.applyRequirementsOutcomeLocked(ctx, project, result, actor); err != nil {
		return nil, err
	}
	return project, nil
}

// applyRequirementsOutcomeLocked maps a requirements decision onto the
// lifecycle. Callers hold the project lock.
func (s *Service) applyRequirementsOutcomeLocked(ctx context.Context, project *Project, result *assessment.Result, actor uuid.UUID) error {
	target := workflows.StatusPartiallyMet
	if result.Outcome == assessment.OutcomeMet {
		target = workflows.StatusValidated
	}
	if err := s.transitionLocked(ctx, project, target, actor); err != nil {
		return err
	}

	payload := map[string]any{
		"project_id": project.ID.String(),
		"score":      result.Score,
		"outcome":    string(result.Outcome),
	}
	if len(result.Issues) > 0 {
		payload["issues"] = result.Issues
	}
	s.notify(ctx, project.ClientID, EventAssessmentCompleted, payload)
	if project.FreelancerID != nil {
		s.notify(ctx, *project.FreelancerID, EventAssessmentCompleted, payload)
	}
	return nil
}

// ReviewDecision records the client's approval. Approval marks the submitted
// deliverables approved and walks the project to CLOSED; a rejection must
// instead be filed as a dispute with evidence.
func (s *Service) ReviewDecision(ctx context.Context, projectID uuid.UUID, approve bool, actor uuid.UUID) (*Project, error) {
	if !approve {
		return nil, &ValidationError{Reason: "rejections must be filed as a dispute with evidence"}
	}

	lock := s.projectLock(projectID)
	lock.Lock()
	defer lock.Unlock()

	project, err := s.repo.GetByID(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if err := s.transitionLocked(ctx, project, workflows.StatusApproved, actor); err != nil {
		return nil, err
	}
	for i := range project.Deliverables {
		deliverable := &project.Deliverables[i]
		if deliverable.Status != DeliverableSubmitted {
			continue
		}
		deliverable.Status = DeliverableApproved
		if err := s.repo.UpdateDeliverable(ctx, deliverable); err != nil {
			return nil, fmt.Errorf("failed to approve deliverable: %w", err)
		}
	}
	if err := s.transitionLocked(ctx, project, workflows.StatusClosed, actor); err != nil {
		return nil, err
	}
	return project, nil
}

// Transition applies one graph-validated status change. Exposed for the
// dispute manager's sequencing.
func (s *Service) Transition(ctx context.Context, projectID uuid.UUID, to workflows.Status, actor uuid.UUID) (*Project, error) {
	lock := s.projectLock(projectID)
	lock.Lock()
	defer lock.Unlock()

	project, err := s.repo.GetByID(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if err := s.transitionLocked(ctx, project, to, actor); err != nil {
		return nil, err
	}
	return project, nil
}

// GetProject returns one project with its deliverables.
func (s *Service) GetProject(ctx context.Context, id uuid.UUID) (*Project, error) {
	return s.repo.GetByID(ctx, id)
}

// ListProjects returns projects matching the filter.
func (s *Service) ListProjects(ctx context.Context, filter ProjectFilter) ([]*Project, error) {
	return s.repo.List(ctx, filter)
}

// transitionLocked applies one validated transition. Callers hold the
// project lock. The status field is untouched when the edge is rejected.
func (s *Service) transitionLocked(ctx context.Context, project *Project, to workflows.Status, actor uuid.UUID) error {
	from := project.Status
	next, err := s.stateMachine.Transition(from, to)
	if err != nil {
		return err
	}

	project.Status = next
	project.UpdatedAt = time.Now()
	if err := s.repo.Update(ctx, project); err != nil {
		project.Status = from
		return fmt.Errorf("failed to persist transition: %w", err)
	}

	history := &ProjectStatusHistory{
		ProjectID:  project.ID,
		FromStatus: from,
		ToStatus:   to,
		ChangedAt:  time.Now(),
		ChangedBy:  actor,
	}
	if err := s.historyRepo.Create(ctx, history); err != nil {
		s.logger.Warn("failed to record status history",
			zap.String("project_id", project.ID.String()), zap.Error(err))
	}

	s.auditor.Record(ctx, "project", project.ID,
		fmt.Sprintf("status %s -> %s", from, to), actor)

	payload := map[string]any{
		"project_id": project.ID.String(),
		"from":       string(from),
		"to":         string(to),
	}
	s.notify(ctx, project.ClientID, EventStatusChanged, payload)
	if project.FreelancerID != nil {
		s.notify(ctx, *project.FreelancerID, EventStatusChanged, payload)
	}

	return nil
}

// reportCheckpointFailure handles AssessmentUnavailable: the project keeps
// its pending status and the client is pointed at manual review.
func (s *Service) reportCheckpointFailure(ctx context.Context, project *Project, err error) error {
	if errors.Is(err, assessment.ErrAssessmentUnavailable) {
		s.logger.Warn("checkpoint assessment unavailable, manual review required",
			zap.String("project_id", project.ID.String()),
			zap.String("status", string(project.Status)),
			zap.Error(err))
		s.auditor.Record(ctx, "project", project.ID, "assessment unavailable, manual review required", project.ClientID)
		s.notify(ctx, project.ClientID, EventManualReviewRequired, map[string]any{
			"project_id": project.ID.String(),
			"status":     string(project.Status),
		})
	}
	return err
}

func (s *Service) notify(ctx context.Context, userID uuid.UUID, eventType string, payload map[string]any) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Notify(ctx, userID, eventType, payload); err != nil {
		s.logger.Warn("failed to deliver notification",
			zap.String("event", eventType), zap.Error(err))
	}
}

// BuildAssessmentRequest snapshots the fields of a project relevant to a
// checkpoint kind.
func BuildAssessmentRequest(project *Project, kind assessment.Kind) assessment.Request {
	req := assessment.Request{
		ProjectID:   project.ID,
		Kind:        kind,
		Description: project.Description,
		Budget:      project.Budget,
	}
	for _, d := range project.Deliverables {
		req.Deliverables = append(req.Deliverables, assessment.DeliverableSpec{
			Name:     d.Name,
			Required: d.Required,
		})
		if kind == assessment.KindRequirements && d.Status != DeliverablePending {
			req.Submitted = append(req.Submitted, d.Name)
		}
	}
	return req
}
