package assessment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

const (
	budgetAlignedThreshold   = 70
	requirementsMetThreshold = 80

	maxRetries  = 3
	backoffBase = time.Second
	backoffCap  = 4 * time.Second
)

// ResultStore appends results to the per-(project, kind) log. Implemented by
// the gorm repository; mocked in tests.
type ResultStore interface {
	Append(ctx context.Context, record *ResultRecord) error
}

// Orchestrator turns one checkpoint trigger into exactly one externally
// visible decision: cache fast path, per-fingerprint in-flight coalescing,
// breaker-guarded client calls with bounded retries, contract validation and
// the fixed threshold mapping.
type Orchestrator struct {
	client  Client
	cache   *Cache
	breaker *Breaker
	store   ResultStore
	logger  *zap.Logger

	mu       sync.Mutex
	inflight map[string]*inflightCall
	closed   bool
	wg       sync.WaitGroup

	// sleep is swapped out in tests to avoid real backoff waits.
	sleep func(ctx context.Context, d time.Duration) error
}

type inflightCall struct {
	done   chan struct{}
	result *Result
	err    error
}

// NewOrchestrator wires the process-wide assessment orchestrator.
func NewOrchestrator(client Client, cache *Cache, breaker *Breaker, store ResultStore, logger *zap.Logger) *Orchestrator {
	return &Orchestrator{
		client:   client,
		cache:    cache,
		breaker:  breaker,
		store:    store,
		logger:   logger,
		inflight: make(map[string]*inflightCall),
		sleep:    sleepContext,
	}
}

// Evaluate resolves one assessment request to a decision. Identical
// fingerprints within the TTL return the cached result without an external
// call; a duplicate request while one is outstanding attaches to the
// in-flight result instead of issuing a second call.
func (o *Orchestrator) Evaluate(ctx context.Context, req Request) (*Result, error) {
	fingerprint := req.Fingerprint()

	if cached, ok := o.cache.Get(fingerprint); ok {
		o.logger.Debug("assessment cache hit",
			zap.String("project_id", req.ProjectID.String()),
			zap.String("kind", string(req.Kind)))
		return cached, nil
	}

	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return nil, fmt.Errorf("%w: orchestrator shut down", ErrAssessmentUnavailable)
	}
	if call, ok := o.inflight[fingerprint]; ok {
		o.mu.Unlock()
		select {
		case <-call.done:
			return call.result, call.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	call := &inflightCall{done: make(chan struct{})}
	o.inflight[fingerprint] = call
	o.wg.Add(1)
	o.mu.Unlock()

	call.result, call.err = o.execute(ctx, req, fingerprint)

	o.mu.Lock()
	delete(o.inflight, fingerprint)
	o.mu.Unlock()
	close(call.done)
	o.wg.Done()

	return call.result, call.err
}

// execute runs the breaker-guarded retry loop and post-processes a success.
func (o *Orchestrator) execute(ctx context.Context, req Request, fingerprint string) (*Result, error) {
	started := time.Now()

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			if err := o.sleep(ctx, backoffDelay(attempt)); err != nil {
				return nil, fmt.Errorf("%w: evaluation cancelled", ErrAssessmentUnavailable)
			}
		}

		if err := o.breaker.Allow(); err != nil {
			// Breaker open: skip straight to the manual-review fallback.
			o.logger.Warn("assessment short-circuited by open breaker",
				zap.String("project_id", req.ProjectID.String()),
				zap.String("kind", string(req.Kind)))
			return nil, fmt.Errorf("%w: circuit open", ErrAssessmentUnavailable)
		}

		res, err := o.client.Assess(ctx, req)
		if err == nil {
			if verr := validateContract(req, res); verr != nil {
				err = NewMalformedError(verr)
			}
		}

		if err != nil {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("%w: evaluation cancelled", ErrAssessmentUnavailable)
			}

			o.breaker.RecordFailure()
			lastErr = err

			var cerr *ClientError
			if errors.As(err, &cerr) && !cerr.Retryable() {
				// Malformed payloads never reach the cache or decision
				// mapping, and are not retried.
				o.logger.Error("assessment result rejected as malformed",
					zap.String("project_id", req.ProjectID.String()),
					zap.String("kind", string(req.Kind)),
					zap.Error(err))
				return nil, fmt.Errorf("%w: %v", ErrAssessmentUnavailable, err)
			}

			o.logger.Warn("assessment attempt failed",
				zap.String("project_id", req.ProjectID.String()),
				zap.Int("attempt", attempt+1),
				zap.Error(err))
			continue
		}

		o.breaker.RecordSuccess()

		if derr := o.applyDecision(req, res); derr != nil {
			o.breaker.RecordFailure()
			o.logger.Error("assessment decision rejected",
				zap.String("project_id", req.ProjectID.String()),
				zap.Error(derr))
			return nil, fmt.Errorf("%w: %v", ErrAssessmentUnavailable, derr)
		}

		res.ID = uuid.New()
		res.ProjectID = req.ProjectID
		res.Supersedes = req.Supersedes
		res.CreatedAt = time.Now()
		res.Duration = time.Since(started)

		stored := o.cache.SetIfAbsent(fingerprint, res)
		o.persist(ctx, req, stored, fingerprint)

		return stored, nil
	}

	o.logger.Error("assessment retries exhausted",
		zap.String("project_id", req.ProjectID.String()),
		zap.String("kind", string(req.Kind)),
		zap.Error(lastErr))
	return nil, fmt.Errorf("%w: retries exhausted: %v", ErrAssessmentUnavailable, lastErr)
}

// applyDecision maps the score onto an outcome with the fixed thresholds and
// enforces the outcome's mandatory payload.
func (o *Orchestrator) applyDecision(req Request, res *Result) error {
	switch req.Kind {
	case KindBudget:
		if res.Score > budgetAlignedThreshold {
			res.Outcome = OutcomeAligned
			res.Recommendation = nil
			return nil
		}
		res.Outcome = OutcomeMisaligned
		if res.Recommendation == nil || res.Recommendation.Reasoning == "" {
			return errors.New("misaligned budget assessment lacks a recommendation")
		}
		return nil
	case KindRequirements:
		if res.Score > requirementsMetThreshold {
			res.Outcome = OutcomeMet
			res.Issues = nil
			return nil
		}
		res.Outcome = OutcomePartiallyMet
		if len(res.Issues) == 0 {
			return errors.New("partially met assessment lacks categorized issues")
		}
		return nil
	default:
		return fmt.Errorf("unknown checkpoint kind %q", req.Kind)
	}
}

// persist appends the result to the durable log. The log write is reported on
// failure but never blocks the decision from being delivered.
func (o *Orchestrator) persist(ctx context.Context, req Request, res *Result, fingerprint string) {
	if o.store == nil {
		return
	}

	record := &ResultRecord{
		ID:           res.ID,
		ProjectID:    res.ProjectID,
		Kind:         res.Kind,
		Fingerprint:  fingerprint,
		Score:        res.Score,
		Outcome:      res.Outcome,
		Rationale:    res.Rationale,
		SupersedesID: res.Supersedes,
		DurationMs:   res.Duration.Milliseconds(),
		CreatedAt:    res.CreatedAt,
	}
	if res.Recommendation != nil {
		if data, err := json.Marshal(res.Recommendation); err == nil {
			record.Recommendation = datatypes.JSON(data)
		}
	}
	if len(res.Issues) > 0 {
		if data, err := json.Marshal(res.Issues); err == nil {
			record.Issues = datatypes.JSON(data)
		}
	}

	if err := o.store.Append(ctx, record); err != nil {
		o.logger.Error("failed to append assessment result",
			zap.String("project_id", res.ProjectID.String()),
			zap.Error(err))
	}
}

// Close drains in-flight evaluations. New evaluations are rejected
// immediately; the call returns when everything in flight has settled or the
// context expires.
func (o *Orchestrator) Close(ctx context.Context) error {
	o.mu.Lock()
	o.closed = true
	o.mu.Unlock()

	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func backoffDelay(attempt int) time.Duration {
	d := backoffBase << (attempt - 1)
	if d > backoffCap {
		d = backoffCap
	}
	return d
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
