package gemini

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"talentbridge/marketplace-backend/internal/assessment"
)

type stubGenerator struct {
	response string
	err      error
	prompts  []string
}

func (s *stubGenerator) GenerateContent(ctx context.Context, prompt string) (string, error) {
	s.prompts = append(s.prompts, prompt)
	if s.err != nil {
		return "", s.err
	}
	return s.response, nil
}

func budgetRequest() assessment.Request {
	return assessment.Request{
		ProjectID:   uuid.New(),
		Kind:        assessment.KindBudget,
		Description: "Build a 5-page marketing site",
		Budget:      50,
		Deliverables: []assessment.DeliverableSpec{
			{Name: "Homepage", Required: true},
		},
	}
}

func TestAssessParsesScoredResponse(t *testing.T) {
	gen := &stubGenerator{response: `{"score": 85, "rationale": "budget fits the scope"}`}
	scorer := NewScorer(gen, zap.NewNop())

	result, err := scorer.Assess(context.Background(), budgetRequest())
	assert.NoError(t, err)
	assert.Equal(t, 85, result.Score)
	assert.Equal(t, "budget fits the scope", result.Rationale)
	assert.Equal(t, assessment.KindBudget, result.Kind)
}

func TestAssessStripsCodeFences(t *testing.T) {
	gen := &stubGenerator{response: "```json\n{\"score\": \"62\", \"rationale\": \"tight but workable\", \"recommendation\": {\"suggested_min\": 400, \"suggested_max\": 900, \"reasoning\": \"market rates\"}}\n```"}
	scorer := NewScorer(gen, zap.NewNop())

	result, err := scorer.Assess(context.Background(), budgetRequest())
	assert.NoError(t, err)
	assert.Equal(t, 62, result.Score, "string-encoded scores are coerced")
	assert.NotNil(t, result.Recommendation)
	assert.Equal(t, 400.0, result.Recommendation.SuggestedMin)
}

func TestAssessClassifiesTimeout(t *testing.T) {
	gen := &stubGenerator{err: context.DeadlineExceeded}
	scorer := NewScorer(gen, zap.NewNop())

	_, err := scorer.Assess(context.Background(), budgetRequest())

	var cerr *assessment.ClientError
	assert.True(t, errors.As(err, &cerr))
	assert.Equal(t, assessment.FailureTimeout, cerr.Kind)
	assert.True(t, cerr.Retryable())
}

func TestAssessClassifiesUnavailable(t *testing.T) {
	gen := &stubGenerator{err: errors.New("connection refused")}
	scorer := NewScorer(gen, zap.NewNop())

	_, err := scorer.Assess(context.Background(), budgetRequest())

	var cerr *assessment.ClientError
	assert.True(t, errors.As(err, &cerr))
	assert.Equal(t, assessment.FailureUnavailable, cerr.Kind)
}

func TestAssessClassifiesUnparseableResponse(t *testing.T) {
	cases := []struct {
		name     string
		response string
	}{
		{"not json", "the budget looks fine to me"},
		{"missing score", `{"rationale": "no number given"}`},
		{"non-numeric score", `{"score": "high", "rationale": "vague"}`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			gen := &stubGenerator{response: tc.response}
			scorer := NewScorer(gen, zap.NewNop())

			_, err := scorer.Assess(context.Background(), budgetRequest())

			var cerr *assessment.ClientError
			assert.True(t, errors.As(err, &cerr))
			assert.Equal(t, assessment.FailureMalformed, cerr.Kind)
			assert.False(t, cerr.Retryable())
		})
	}
}

func TestBuildPromptEmbedsSnapshotPerKind(t *testing.T) {
	req := budgetRequest()
	gen := &stubGenerator{response: `{"score": 90, "rationale": "ok"}`}
	scorer := NewScorer(gen, zap.NewNop())

	_, err := scorer.Assess(context.Background(), req)
	assert.NoError(t, err)
	assert.Len(t, gen.prompts, 1)
	assert.Contains(t, gen.prompts[0], req.ProjectID.String())
	assert.Contains(t, gen.prompts[0], "Build a 5-page marketing site")
	assert.NotContains(t, gen.prompts[0], "{{REQUEST_JSON}}")
}
