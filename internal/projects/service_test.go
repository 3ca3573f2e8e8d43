package projects

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"go.uber.org/zap"

	"talentbridge/marketplace-backend/internal/assessment"
	"talentbridge/marketplace-backend/pkg/workflows"
)

// MockProjectRepository is a mock implementation of the ProjectRepository interface
type MockProjectRepository struct {
	mock.Mock
}

func (m *MockProjectRepository) Create(ctx context.Context, project *Project) error {
	args := m.Called(ctx, project)
	return args.Error(0)
}

func (m *MockProjectRepository) GetByID(ctx context.Context, id uuid.UUID) (*Project, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Project), args.Error(1)
}

func (m *MockProjectRepository) Update(ctx context.Context, project *Project) error {
	args := m.Called(ctx, project)
	return args.Error(0)
}

func (m *MockProjectRepository) UpdateDeliverable(ctx context.Context, deliverable *Deliverable) error {
	args := m.Called(ctx, deliverable)
	return args.Error(0)
}

func (m *MockProjectRepository) List(ctx context.Context, filter ProjectFilter) ([]*Project, error) {
	args := m.Called(ctx, filter)
	return args.Get(0).([]*Project), args.Error(1)
}

func (m *MockProjectRepository) Delete(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

// MockStatusHistoryRepository is a mock implementation of the StatusHistoryRepository interface
type MockStatusHistoryRepository struct {
	mock.Mock
}

func (m *MockStatusHistoryRepository) Create(ctx context.Context, history *ProjectStatusHistory) error {
	args := m.Called(ctx, history)
	return args.Error(0)
}

func (m *MockStatusHistoryRepository) ListByProject(ctx context.Context, projectID uuid.UUID) ([]ProjectStatusHistory, error) {
	args := m.Called(ctx, projectID)
	return args.Get(0).([]ProjectStatusHistory), args.Error(1)
}

// MockEvaluator is a mock implementation of the Evaluator interface
type MockEvaluator struct {
	mock.Mock
}

func (m *MockEvaluator) Evaluate(ctx context.Context, req assessment.Request) (*assessment.Result, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*assessment.Result), args.Error(1)
}

type noopAuditor struct{}

func (noopAuditor) Record(ctx context.Context, entityType string, entityID uuid.UUID, change string, actor uuid.UUID) {
}

// recordingNotifier captures emitted events for assertions.
type recordingNotifier struct {
	mu     sync.Mutex
	events []string
}

func (n *recordingNotifier) Notify(ctx context.Context, userID uuid.UUID, eventType string, payload map[string]any) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, eventType)
	return nil
}

func (n *recordingNotifier) has(eventType string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, e := range n.events {
		if e == eventType {
			return true
		}
	}
	return false
}

func newTestService(repo *MockProjectRepository, evaluator *MockEvaluator) (*Service, *recordingNotifier) {
	historyRepo := new(MockStatusHistoryRepository)
	historyRepo.On("Create", mock.Anything, mock.AnythingOfType("*projects.ProjectStatusHistory")).Return(nil).Maybe()

	notifier := &recordingNotifier{}
	return NewService(repo, historyRepo, evaluator, notifier, noopAuditor{}, nil, zap.NewNop()), notifier
}

func submitRequest() SubmitProjectRequest {
	return SubmitProjectRequest{
		ClientID:    uuid.New(),
		Description: "Build a 5-page marketing site",
		Budget:      50,
		Deliverables: []DeliverableInput{
			{Name: "Homepage", Required: true},
			{Name: "Contact form", Required: false},
		},
	}
}

func TestSubmitProjectValidation(t *testing.T) {
	repo := new(MockProjectRepository)
	service, _ := newTestService(repo, new(MockEvaluator))

	cases := []struct {
		name   string
		mutate func(*SubmitProjectRequest)
	}{
		{"empty description", func(r *SubmitProjectRequest) { r.Description = "" }},
		{"zero budget", func(r *SubmitProjectRequest) { r.Budget = 0 }},
		{"negative budget", func(r *SubmitProjectRequest) { r.Budget = -10 }},
		{"no deliverables", func(r *SubmitProjectRequest) { r.Deliverables = nil }},
		{"missing client", func(r *SubmitProjectRequest) { r.ClientID = uuid.Nil }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := submitRequest()
			tc.mutate(&req)

			_, err := service.SubmitProject(context.Background(), req)

			var verr *ValidationError
			assert.True(t, errors.As(err, &verr))
		})
	}

	repo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestSubmitProjectAlignedBecomesAvailable(t *testing.T) {
	repo := new(MockProjectRepository)
	repo.On("Create", mock.Anything, mock.AnythingOfType("*projects.Project")).Return(nil)
	repo.On("Update", mock.Anything, mock.AnythingOfType("*projects.Project")).Return(nil)

	evaluator := new(MockEvaluator)
	evaluator.On("Evaluate", mock.Anything, mock.MatchedBy(func(req assessment.Request) bool {
		return req.Kind == assessment.KindBudget
	})).Return(&assessment.Result{
		ID:        uuid.New(),
		Kind:      assessment.KindBudget,
		Score:     85,
		Outcome:   assessment.OutcomeAligned,
		Rationale: "budget matches scope",
	}, nil).Once()

	service, notifier := newTestService(repo, evaluator)

	project, err := service.SubmitProject(context.Background(), submitRequest())
	assert.NoError(t, err)
	assert.Equal(t, workflows.StatusAvailable, project.Status)
	assert.True(t, notifier.has(EventAssessmentCompleted))

	evaluator.AssertExpectations(t)
}

func TestSubmitProjectMisalignedIsFlagged(t *testing.T) {
	repo := new(MockProjectRepository)
	repo.On("Create", mock.Anything, mock.AnythingOfType("*projects.Project")).Return(nil)
	repo.On("Update", mock.Anything, mock.AnythingOfType("*projects.Project")).Return(nil)

	evaluator := new(MockEvaluator)
	evaluator.On("Evaluate", mock.Anything, mock.Anything).Return(&assessment.Result{
		ID:        uuid.New(),
		Kind:      assessment.KindBudget,
		Score:     40,
		Outcome:   assessment.OutcomeMisaligned,
		Rationale: "budget far below market",
		Recommendation: &assessment.Recommendation{
			SuggestedMin: 800,
			SuggestedMax: 1500,
			Reasoning:    "custom design effort",
		},
	}, nil).Once()

	service, _ := newTestService(repo, evaluator)

	project, err := service.SubmitProject(context.Background(), submitRequest())
	assert.NoError(t, err)
	assert.Equal(t, workflows.StatusBudgetFlagged, project.Status,
		"misaligned projects must not become available")
}

func TestSubmitProjectAssessmentUnavailableKeepsPendingState(t *testing.T) {
	repo := new(MockProjectRepository)
	repo.On("Create", mock.Anything, mock.AnythingOfType("*projects.Project")).Return(nil)
	repo.On("Update", mock.Anything, mock.AnythingOfType("*projects.Project")).Return(nil)

	evaluator := new(MockEvaluator)
	evaluator.On("Evaluate", mock.Anything, mock.Anything).
		Return(nil, assessment.ErrAssessmentUnavailable).Once()

	service, notifier := newTestService(repo, evaluator)

	project, err := service.SubmitProject(context.Background(), submitRequest())
	assert.True(t, errors.Is(err, assessment.ErrAssessmentUnavailable))
	assert.Equal(t, workflows.StatusBudgetPending, project.Status,
		"project must stay in its pre-checkpoint state")
	assert.True(t, notifier.has(EventManualReviewRequired))
}

func TestAcceptProject(t *testing.T) {
	projectID := uuid.New()
	freelancerID := uuid.New()

	project := &Project{
		ID:       projectID,
		ClientID: uuid.New(),
		Status:   workflows.StatusBudgetFlagged,
	}

	repo := new(MockProjectRepository)
	repo.On("GetByID", mock.Anything, projectID).Return(project, nil)
	repo.On("Update", mock.Anything, project).Return(nil)

	service, _ := newTestService(repo, new(MockEvaluator))

	got, err := service.AcceptProject(context.Background(), projectID, freelancerID)
	assert.NoError(t, err)
	assert.Equal(t, workflows.StatusAssigned, got.Status)
	assert.NotNil(t, got.FreelancerID)
	assert.Equal(t, freelancerID, *got.FreelancerID)
}

func TestAcceptProjectRejectsInvalidTransition(t *testing.T) {
	projectID := uuid.New()
	project := &Project{ID: projectID, ClientID: uuid.New(), Status: workflows.StatusDraft}

	repo := new(MockProjectRepository)
	repo.On("GetByID", mock.Anything, projectID).Return(project, nil)

	service, _ := newTestService(repo, new(MockEvaluator))

	_, err := service.AcceptProject(context.Background(), projectID, uuid.New())
	assert.True(t, errors.Is(err, workflows.ErrInvalidTransition))
	assert.Equal(t, workflows.StatusDraft, project.Status, "status must be left unchanged")
	repo.AssertNotCalled(t, "Update", mock.Anything, mock.Anything)
}

func inProgressProject() *Project {
	freelancerID := uuid.New()
	projectID := uuid.New()
	return &Project{
		ID:           projectID,
		ClientID:     uuid.New(),
		FreelancerID: &freelancerID,
		Description:  "Build a 5-page marketing site",
		Budget:       50,
		Status:       workflows.StatusInProgress,
		Deliverables: []Deliverable{
			{ID: uuid.New(), ProjectID: projectID, Name: "Homepage", Required: true, Status: DeliverablePending},
			{ID: uuid.New(), ProjectID: projectID, Name: "Contact form", Required: false, Status: DeliverablePending},
		},
	}
}

func TestSubmitCompletionRequirementsMet(t *testing.T) {
	project := inProgressProject()

	repo := new(MockProjectRepository)
	repo.On("GetByID", mock.Anything, project.ID).Return(project, nil)
	repo.On("Update", mock.Anything, project).Return(nil)
	repo.On("UpdateDeliverable", mock.Anything, mock.AnythingOfType("*projects.Deliverable")).Return(nil)

	evaluator := new(MockEvaluator)
	evaluator.On("Evaluate", mock.Anything, mock.MatchedBy(func(req assessment.Request) bool {
		return req.Kind == assessment.KindRequirements && len(req.Submitted) == 2
	})).Return(&assessment.Result{
		ID:        uuid.New(),
		Kind:      assessment.KindRequirements,
		Score:     90,
		Outcome:   assessment.OutcomeMet,
		Rationale: "all deliverables present",
	}, nil).Once()

	service, _ := newTestService(repo, evaluator)

	got, err := service.SubmitCompletion(context.Background(), project.ID,
		[]string{"Homepage", "Contact form"}, *project.FreelancerID)
	assert.NoError(t, err)
	assert.Equal(t, workflows.StatusValidated, got.Status)

	evaluator.AssertExpectations(t)
}

func TestSubmitCompletionPartiallyMet(t *testing.T) {
	project := inProgressProject()

	repo := new(MockProjectRepository)
	repo.On("GetByID", mock.Anything, project.ID).Return(project, nil)
	repo.On("Update", mock.Anything, project).Return(nil)
	repo.On("UpdateDeliverable", mock.Anything, mock.AnythingOfType("*projects.Deliverable")).Return(nil)

	evaluator := new(MockEvaluator)
	evaluator.On("Evaluate", mock.Anything, mock.Anything).Return(&assessment.Result{
		ID:        uuid.New(),
		Kind:      assessment.KindRequirements,
		Score:     60,
		Outcome:   assessment.OutcomePartiallyMet,
		Rationale: "contact form missing",
		Issues: []assessment.Issue{
			{Category: assessment.IssueMissingDeliverable, Severity: assessment.SeverityMajor, Description: "contact form absent"},
		},
	}, nil).Once()

	service, _ := newTestService(repo, evaluator)

	got, err := service.SubmitCompletion(context.Background(), project.ID,
		[]string{"Homepage"}, *project.FreelancerID)
	assert.NoError(t, err)
	assert.Equal(t, workflows.StatusPartiallyMet, got.Status)
}

func TestSubmitCompletionRejectsUnknownDeliverable(t *testing.T) {
	project := inProgressProject()

	repo := new(MockProjectRepository)
	repo.On("GetByID", mock.Anything, project.ID).Return(project, nil)

	service, _ := newTestService(repo, new(MockEvaluator))

	_, err := service.SubmitCompletion(context.Background(), project.ID,
		[]string{"Mobile app"}, *project.FreelancerID)

	var verr *ValidationError
	assert.True(t, errors.As(err, &verr))
	assert.Equal(t, workflows.StatusInProgress, project.Status)
}

func TestReviewDecisionApprovalCloses(t *testing.T) {
	projectID := uuid.New()
	project := &Project{ID: projectID, ClientID: uuid.New(), Status: workflows.StatusValidated}

	repo := new(MockProjectRepository)
	repo.On("GetByID", mock.Anything, projectID).Return(project, nil)
	repo.On("Update", mock.Anything, project).Return(nil)

	service, _ := newTestService(repo, new(MockEvaluator))

	got, err := service.ReviewDecision(context.Background(), projectID, true, project.ClientID)
	assert.NoError(t, err)
	assert.Equal(t, workflows.StatusClosed, got.Status)
}

func TestReviewDecisionApprovesSubmittedDeliverables(t *testing.T) {
	projectID := uuid.New()
	project := &Project{
		ID:       projectID,
		ClientID: uuid.New(),
		Status:   workflows.StatusValidated,
		Deliverables: []Deliverable{
			{Name: "Homepage", Required: true, Status: DeliverableSubmitted},
			{Name: "Contact form", Required: false, Status: DeliverablePending},
		},
	}

	repo := new(MockProjectRepository)
	repo.On("GetByID", mock.Anything, projectID).Return(project, nil)
	repo.On("Update", mock.Anything, project).Return(nil)
	repo.On("UpdateDeliverable", mock.Anything, mock.AnythingOfType("*projects.Deliverable")).Return(nil).Once()

	service, _ := newTestService(repo, new(MockEvaluator))

	got, err := service.ReviewDecision(context.Background(), projectID, true, project.ClientID)
	assert.NoError(t, err)
	assert.Equal(t, workflows.StatusClosed, got.Status)
	assert.Equal(t, DeliverableApproved, got.Deliverables[0].Status)
	assert.Equal(t, DeliverablePending, got.Deliverables[1].Status, "unsubmitted work stays pending")

	repo.AssertExpectations(t)
}

func TestReviewDecisionRejectionRequiresDispute(t *testing.T) {
	service, _ := newTestService(new(MockProjectRepository), new(MockEvaluator))

	_, err := service.ReviewDecision(context.Background(), uuid.New(), false, uuid.New())

	var verr *ValidationError
	assert.True(t, errors.As(err, &verr))
}

func TestBuildAssessmentRequestSnapshotsSubmittedWork(t *testing.T) {
	project := inProgressProject()
	project.Deliverables[0].Status = DeliverableSubmitted

	req := BuildAssessmentRequest(project, assessment.KindRequirements)
	assert.Equal(t, assessment.KindRequirements, req.Kind)
	assert.Len(t, req.Deliverables, 2)
	assert.Equal(t, []string{"Homepage"}, req.Submitted)

	budgetReq := BuildAssessmentRequest(project, assessment.KindBudget)
	assert.Empty(t, budgetReq.Submitted, "budget snapshots ignore submission state")
}
