package assessment

import (
	"context"
	"errors"
	"fmt"
)

// Client invokes the external scoring capability for a single request. It
// performs no retries; retry policy lives in the Orchestrator.
type Client interface {
	Assess(ctx context.Context, req Request) (*Result, error)
}

// FailureKind classifies a client failure.
type FailureKind string

const (
	// FailureTimeout means the external call exceeded its deadline.
	FailureTimeout FailureKind = "TIMEOUT"
	// FailureUnavailable means the external capability was unreachable.
	FailureUnavailable FailureKind = "UNAVAILABLE"
	// FailureMalformed means the capability answered but the payload failed
	// schema or range validation. Never retried.
	FailureMalformed FailureKind = "MALFORMED"
)

// ClientError is a typed failure from the assessment client.
type ClientError struct {
	Kind FailureKind
	Err  error
}

func (e *ClientError) Error() string {
	return fmt.Sprintf("assessment client %s: %v", e.Kind, e.Err)
}

func (e *ClientError) Unwrap() error { return e.Err }

// Retryable reports whether the failure is transient.
func (e *ClientError) Retryable() bool {
	return e.Kind == FailureTimeout || e.Kind == FailureUnavailable
}

// NewTimeoutError wraps err as a timeout failure.
func NewTimeoutError(err error) *ClientError {
	return &ClientError{Kind: FailureTimeout, Err: err}
}

// NewUnavailableError wraps err as an unreachable-capability failure.
func NewUnavailableError(err error) *ClientError {
	return &ClientError{Kind: FailureUnavailable, Err: err}
}

// NewMalformedError wraps err as a contract-violation failure.
func NewMalformedError(err error) *ClientError {
	return &ClientError{Kind: FailureMalformed, Err: err}
}

// ErrAssessmentUnavailable is surfaced to callers when retries are exhausted,
// the breaker is open, or an in-flight evaluation was cancelled. It is a
// reported, non-fatal condition: the caller keeps its pre-checkpoint state and
// falls back to manual review. It is never conflated with a negative score.
var ErrAssessmentUnavailable = errors.New("assessment unavailable")

// validateContract checks a raw result against the scoring contract before it
// may reach the cache or the decision mapping.
func validateContract(req Request, res *Result) error {
	if res == nil {
		return errors.New("nil result")
	}
	if res.Score < 0 || res.Score > 100 {
		return fmt.Errorf("score %d outside [0,100]", res.Score)
	}
	if res.Rationale == "" {
		return errors.New("missing rationale")
	}
	if res.Kind != req.Kind {
		return fmt.Errorf("kind mismatch: requested %s, got %s", req.Kind, res.Kind)
	}
	return nil
}
