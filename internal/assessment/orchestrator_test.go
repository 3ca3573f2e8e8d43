package assessment

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"go.uber.org/zap"
)

// stubClient returns canned results and counts external calls.
type stubClient struct {
	mu    sync.Mutex
	calls int
	fn    func(ctx context.Context, req Request) (*Result, error)
}

func (c *stubClient) Assess(ctx context.Context, req Request) (*Result, error) {
	c.mu.Lock()
	c.calls++
	fn := c.fn
	c.mu.Unlock()
	return fn(ctx, req)
}

func (c *stubClient) callCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

// MockResultStore is a mock implementation of the ResultStore interface
type MockResultStore struct {
	mock.Mock
}

func (m *MockResultStore) Append(ctx context.Context, record *ResultRecord) error {
	args := m.Called(ctx, record)
	return args.Error(0)
}

func newTestOrchestrator(t *testing.T, client Client) (*Orchestrator, *MockResultStore) {
	t.Helper()

	cache := NewCache(time.Hour)
	t.Cleanup(cache.Stop)

	store := new(MockResultStore)
	store.On("Append", mock.Anything, mock.AnythingOfType("*assessment.ResultRecord")).Return(nil).Maybe()

	o := NewOrchestrator(client, cache, NewBreaker(), store, zap.NewNop())
	o.sleep = func(ctx context.Context, d time.Duration) error { return nil }

	return o, store
}

func budgetRequest() Request {
	return Request{
		ProjectID:   uuid.New(),
		Kind:        KindBudget,
		Description: "Build a 5-page marketing site",
		Budget:      50,
		Deliverables: []DeliverableSpec{
			{Name: "Homepage", Required: true},
		},
	}
}

func requirementsRequest() Request {
	req := budgetRequest()
	req.Kind = KindRequirements
	req.Submitted = []string{"Homepage"}
	return req
}

func TestEvaluateBudgetAlignedAndCached(t *testing.T) {
	client := &stubClient{fn: func(ctx context.Context, req Request) (*Result, error) {
		return &Result{Kind: KindBudget, Score: 85, Rationale: "budget fits typical rates"}, nil
	}}
	o, _ := newTestOrchestrator(t, client)

	req := budgetRequest()
	res, err := o.Evaluate(context.Background(), req)
	assert.NoError(t, err)
	assert.Equal(t, OutcomeAligned, res.Outcome)
	assert.Equal(t, 85, res.Score)

	// Identical fingerprint within the TTL: cached result, no second call.
	again, err := o.Evaluate(context.Background(), req)
	assert.NoError(t, err)
	assert.Same(t, res, again)
	assert.Equal(t, 1, client.callCount())
}

func TestEvaluateBudgetMisalignedCarriesRecommendation(t *testing.T) {
	client := &stubClient{fn: func(ctx context.Context, req Request) (*Result, error) {
		return &Result{
			Kind:      KindBudget,
			Score:     40,
			Rationale: "budget far below market",
			Recommendation: &Recommendation{
				SuggestedMin: 800,
				SuggestedMax: 1500,
				Reasoning:    "5 pages of custom design and copy",
			},
		}, nil
	}}
	o, _ := newTestOrchestrator(t, client)

	res, err := o.Evaluate(context.Background(), budgetRequest())
	assert.NoError(t, err)
	assert.Equal(t, OutcomeMisaligned, res.Outcome)
	assert.NotNil(t, res.Recommendation)
	assert.NotEmpty(t, res.Recommendation.Reasoning)
}

func TestEvaluateMisalignedWithoutRecommendationRejected(t *testing.T) {
	client := &stubClient{fn: func(ctx context.Context, req Request) (*Result, error) {
		return &Result{Kind: KindBudget, Score: 40, Rationale: "too low"}, nil
	}}
	o, _ := newTestOrchestrator(t, client)

	_, err := o.Evaluate(context.Background(), budgetRequest())
	assert.True(t, errors.Is(err, ErrAssessmentUnavailable))
	assert.Equal(t, 1, client.callCount(), "decision violations are not retried")
	assert.Equal(t, 0, o.cache.Size(), "invalid results never reach the cache")
}

func TestEvaluateRequirementsThresholds(t *testing.T) {
	score := 90
	client := &stubClient{fn: func(ctx context.Context, req Request) (*Result, error) {
		return &Result{
			Kind:      KindRequirements,
			Score:     score,
			Rationale: "reviewed against deliverables",
			Issues: []Issue{
				{Category: IssueIncompleteWork, Severity: SeverityMajor, Description: "contact form not wired"},
			},
		}, nil
	}}
	o, _ := newTestOrchestrator(t, client)

	res, err := o.Evaluate(context.Background(), requirementsRequest())
	assert.NoError(t, err)
	assert.Equal(t, OutcomeMet, res.Outcome)
	assert.Empty(t, res.Issues, "met outcomes carry no issue list")

	// Score at the boundary maps to partially met with issues retained.
	score = 80
	req := requirementsRequest()
	req.Description = "Build a 6-page marketing site"
	res, err = o.Evaluate(context.Background(), req)
	assert.NoError(t, err)
	assert.Equal(t, OutcomePartiallyMet, res.Outcome)
	assert.NotEmpty(t, res.Issues)
}

func TestEvaluateScoreOutOfRangeIsMalformed(t *testing.T) {
	client := &stubClient{fn: func(ctx context.Context, req Request) (*Result, error) {
		return &Result{Kind: KindBudget, Score: 150, Rationale: "oops"}, nil
	}}
	o, _ := newTestOrchestrator(t, client)

	_, err := o.Evaluate(context.Background(), budgetRequest())
	assert.True(t, errors.Is(err, ErrAssessmentUnavailable))
	assert.Equal(t, 1, client.callCount(), "malformed results are never retried")
	assert.Equal(t, 0, o.cache.Size())
}

func TestEvaluateRetriesTransientFailuresWithBackoff(t *testing.T) {
	attempts := 0
	client := &stubClient{fn: func(ctx context.Context, req Request) (*Result, error) {
		attempts++
		if attempts <= 2 {
			return nil, NewUnavailableError(errors.New("connection refused"))
		}
		return &Result{Kind: KindBudget, Score: 85, Rationale: "fits"}, nil
	}}
	o, _ := newTestOrchestrator(t, client)

	var delays []time.Duration
	o.sleep = func(ctx context.Context, d time.Duration) error {
		delays = append(delays, d)
		return nil
	}

	res, err := o.Evaluate(context.Background(), budgetRequest())
	assert.NoError(t, err)
	assert.Equal(t, OutcomeAligned, res.Outcome)
	assert.Equal(t, 3, client.callCount())
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, delays)
}

func TestEvaluateExhaustionSurfacesUnavailable(t *testing.T) {
	client := &stubClient{fn: func(ctx context.Context, req Request) (*Result, error) {
		return nil, NewTimeoutError(errors.New("deadline exceeded"))
	}}
	o, _ := newTestOrchestrator(t, client)

	var delays []time.Duration
	o.sleep = func(ctx context.Context, d time.Duration) error {
		delays = append(delays, d)
		return nil
	}

	_, err := o.Evaluate(context.Background(), budgetRequest())
	assert.True(t, errors.Is(err, ErrAssessmentUnavailable))
	assert.Equal(t, 4, client.callCount(), "initial attempt plus three retries")
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}, delays)
}

func TestEvaluateOpenBreakerSkipsClient(t *testing.T) {
	client := &stubClient{fn: func(ctx context.Context, req Request) (*Result, error) {
		return &Result{Kind: KindBudget, Score: 85, Rationale: "fits"}, nil
	}}
	o, _ := newTestOrchestrator(t, client)

	for i := 0; i < 5; i++ {
		o.breaker.RecordFailure()
	}

	_, err := o.Evaluate(context.Background(), budgetRequest())
	assert.True(t, errors.Is(err, ErrAssessmentUnavailable))
	assert.Equal(t, 0, client.callCount(), "open breaker must not invoke the client")
}

func TestEvaluateFlappingOutageOpensBreaker(t *testing.T) {
	healthy := false
	client := &stubClient{fn: func(ctx context.Context, req Request) (*Result, error) {
		if healthy {
			return &Result{Kind: KindBudget, Score: 85, Rationale: "fits"}, nil
		}
		return nil, NewMalformedError(errors.New("unparseable response"))
	}}
	o, _ := newTestOrchestrator(t, client)

	// Four malformed failures, one good response in between, then a fifth
	// failure. The success must not erase the windowed failure count.
	for i := 0; i < 4; i++ {
		_, err := o.Evaluate(context.Background(), budgetRequest())
		assert.True(t, errors.Is(err, ErrAssessmentUnavailable))
	}
	healthy = true
	_, err := o.Evaluate(context.Background(), budgetRequest())
	assert.NoError(t, err)

	healthy = false
	_, err = o.Evaluate(context.Background(), budgetRequest())
	assert.True(t, errors.Is(err, ErrAssessmentUnavailable))
	assert.Equal(t, BreakerOpen, o.breaker.State())

	calls := client.callCount()
	_, err = o.Evaluate(context.Background(), budgetRequest())
	assert.True(t, errors.Is(err, ErrAssessmentUnavailable))
	assert.Equal(t, calls, client.callCount(), "open breaker must not invoke the client")
}

func TestEvaluateCoalescesDuplicateInFlightRequests(t *testing.T) {
	release := make(chan struct{})
	client := &stubClient{fn: func(ctx context.Context, req Request) (*Result, error) {
		<-release
		return &Result{Kind: KindBudget, Score: 85, Rationale: "fits"}, nil
	}}
	o, _ := newTestOrchestrator(t, client)

	req := budgetRequest()

	type outcome struct {
		res *Result
		err error
	}
	results := make(chan outcome, 2)

	for i := 0; i < 2; i++ {
		go func() {
			res, err := o.Evaluate(context.Background(), req)
			results <- outcome{res, err}
		}()
	}

	// Let both goroutines reach the orchestrator before releasing the call.
	time.Sleep(50 * time.Millisecond)
	close(release)

	first := <-results
	second := <-results
	assert.NoError(t, first.err)
	assert.NoError(t, second.err)
	assert.Same(t, first.res, second.res, "waiters must attach to the in-flight result")
	assert.Equal(t, 1, client.callCount(), "duplicate fingerprints must not duplicate work")
}

func TestEvaluateAppendsResultRecord(t *testing.T) {
	client := &stubClient{fn: func(ctx context.Context, req Request) (*Result, error) {
		return &Result{Kind: KindRequirements, Score: 90, Rationale: "all there"}, nil
	}}

	cache := NewCache(time.Hour)
	t.Cleanup(cache.Stop)

	store := new(MockResultStore)
	store.On("Append", mock.Anything, mock.MatchedBy(func(r *ResultRecord) bool {
		return r.Outcome == OutcomeMet && r.Score == 90
	})).Return(nil).Once()

	o := NewOrchestrator(client, cache, NewBreaker(), store, zap.NewNop())

	_, err := o.Evaluate(context.Background(), requirementsRequest())
	assert.NoError(t, err)
	store.AssertExpectations(t)
}

func TestCloseRejectsNewEvaluations(t *testing.T) {
	client := &stubClient{fn: func(ctx context.Context, req Request) (*Result, error) {
		return &Result{Kind: KindBudget, Score: 85, Rationale: "fits"}, nil
	}}
	o, _ := newTestOrchestrator(t, client)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, o.Close(ctx))

	_, err := o.Evaluate(context.Background(), budgetRequest())
	assert.True(t, errors.Is(err, ErrAssessmentUnavailable))
	assert.Equal(t, 0, client.callCount())
}
