package disputes

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"go.uber.org/zap"
)

func TestSweepEscalatesStaleDisputes(t *testing.T) {
	repo := new(MockRepository)
	mediator := new(MockMediator)
	sweeper := NewSweeper(repo, mediator, noopAuditor{}, zap.NewNop())

	stale := []Dispute{
		{ID: uuid.New(), ProjectID: uuid.New(), Status: StatusUnderReview},
		{ID: uuid.New(), ProjectID: uuid.New(), Status: StatusSubmitted},
	}

	repo.On("ListStale", mock.Anything, mock.AnythingOfType("time.Time")).Return(stale, nil)
	repo.On("Update", mock.Anything, mock.AnythingOfType("*disputes.Dispute")).Return(nil).Twice()
	mediator.On("Escalate", mock.Anything, mock.AnythingOfType("*disputes.Dispute")).Return(nil).Twice()

	sweeper.sweep()

	repo.AssertExpectations(t)
	mediator.AssertExpectations(t)
}

func TestSweepLeavesFreshDisputesAlone(t *testing.T) {
	repo := new(MockRepository)
	mediator := new(MockMediator)
	sweeper := NewSweeper(repo, mediator, noopAuditor{}, zap.NewNop())

	repo.On("ListStale", mock.Anything, mock.AnythingOfType("time.Time")).Return([]Dispute{}, nil)

	sweeper.sweep()

	repo.AssertNotCalled(t, "Update", mock.Anything, mock.Anything)
	mediator.AssertNotCalled(t, "Escalate", mock.Anything, mock.Anything)
}

func TestSweepUpdatedDisputesAreEscalated(t *testing.T) {
	repo := new(MockRepository)
	mediator := new(MockMediator)
	sweeper := NewSweeper(repo, mediator, noopAuditor{}, zap.NewNop())

	stale := []Dispute{{ID: uuid.New(), ProjectID: uuid.New(), Status: StatusUnderReview}}

	var escalated *Dispute
	repo.On("ListStale", mock.Anything, mock.AnythingOfType("time.Time")).Return(stale, nil)
	repo.On("Update", mock.Anything, mock.AnythingOfType("*disputes.Dispute")).
		Run(func(args mock.Arguments) {
			escalated = args.Get(1).(*Dispute)
		}).Return(nil)
	mediator.On("Escalate", mock.Anything, mock.AnythingOfType("*disputes.Dispute")).Return(nil)

	sweeper.sweep()

	assert.NotNil(t, escalated)
	assert.Equal(t, StatusEscalated, escalated.Status)
}
