package workflows

import (
	"errors"
	"fmt"
)

// Status is a project lifecycle status.
type Status string

const (
	StatusDraft               Status = "DRAFT"
	StatusSubmitted           Status = "SUBMITTED"
	StatusBudgetPending       Status = "BUDGET_PENDING"
	StatusAvailable           Status = "AVAILABLE"
	StatusBudgetFlagged       Status = "BUDGET_FLAGGED"
	StatusAssigned            Status = "ASSIGNED"
	StatusInProgress          Status = "IN_PROGRESS"
	StatusCompleted           Status = "COMPLETED"
	StatusRequirementsPending Status = "REQUIREMENTS_PENDING"
	StatusValidated           Status = "VALIDATED"
	StatusPartiallyMet        Status = "PARTIALLY_MET"
	StatusApproved            Status = "APPROVED"
	StatusDisputed            Status = "DISPUTED"
	StatusClosed              Status = "CLOSED"
)

// ErrInvalidTransition is returned when a status transition is not in the graph.
var ErrInvalidTransition = errors.New("invalid status transition")

// StateMachine enforces project status transitions
type StateMachine struct {
	allowedTransitions map[Status][]Status
}

// NewStateMachine creates a new state machine with allowed transitions
func NewStateMachine() *StateMachine {
	return &StateMachine{
		allowedTransitions: map[Status][]Status{
			StatusDraft:         {StatusSubmitted},
			StatusSubmitted:     {StatusBudgetPending},
			StatusBudgetPending: {StatusAvailable, StatusBudgetFlagged},
			StatusAvailable:     {StatusAssigned},
			// Accepting a flagged project is a terminal override; no re-analysis.
			StatusBudgetFlagged:       {StatusAssigned},
			StatusAssigned:            {StatusInProgress},
			StatusInProgress:          {StatusCompleted},
			StatusCompleted:           {StatusRequirementsPending},
			StatusRequirementsPending: {StatusValidated, StatusPartiallyMet},
			StatusValidated:           {StatusApproved, StatusDisputed},
			StatusPartiallyMet:        {StatusApproved, StatusDisputed},
			StatusApproved:            {StatusClosed},
			// A dispute re-assessment re-enters REQUIREMENTS_PENDING; escalated
			// disputes resolve straight to CLOSED.
			StatusDisputed: {StatusRequirementsPending, StatusClosed},
			StatusClosed:   {},
		},
	}
}

// CanTransition checks if a status transition is allowed
func (sm *StateMachine) CanTransition(from, to Status) bool {
	allowed, exists := sm.allowedTransitions[from]
	if !exists {
		return false
	}
	for _, allowedTo := range allowed {
		if allowedTo == to {
			return true
		}
	}
	return false
}

// Transition validates the edge and returns the target status. On an edge
// outside the graph it returns ErrInvalidTransition and the original status.
func (sm *StateMachine) Transition(from, to Status) (Status, error) {
	if !sm.CanTransition(from, to) {
		return from, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	return to, nil
}

// GetAllowedTransitions returns the allowed next statuses for a given status
func (sm *StateMachine) GetAllowedTransitions(from Status) []Status {
	allowed, exists := sm.allowedTransitions[from]
	if !exists {
		return []Status{}
	}
	return allowed
}

// IsTerminal reports whether a status has no outgoing transitions.
func (sm *StateMachine) IsTerminal(status Status) bool {
	return len(sm.allowedTransitions[status]) == 0
}
