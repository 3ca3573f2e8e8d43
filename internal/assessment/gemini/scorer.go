package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	_ "embed"

	"go.uber.org/zap"

	"talentbridge/marketplace-backend/internal/assessment"
)

type contentGenerator interface {
	GenerateContent(ctx context.Context, prompt string) (string, error)
}

//go:embed prompt_budget.md
var budgetPromptTemplate string

//go:embed prompt_requirements.md
var requirementsPromptTemplate string

// Scorer is the Gemini-backed assessment client. It issues one call per
// request and classifies failures; retries belong to the orchestrator.
type Scorer struct {
	generator contentGenerator
	logger    *zap.Logger
}

// NewScorer creates a scorer on top of a content generator.
func NewScorer(generator contentGenerator, logger *zap.Logger) *Scorer {
	return &Scorer{generator: generator, logger: logger}
}

// Assess sends the request snapshot to the model and parses the scored
// response into a typed result.
func (s *Scorer) Assess(ctx context.Context, req assessment.Request) (*assessment.Result, error) {
	prompt, err := buildPrompt(req)
	if err != nil {
		return nil, assessment.NewMalformedError(err)
	}

	s.logger.Debug("assessment request",
		zap.String("project_id", req.ProjectID.String()),
		zap.String("kind", string(req.Kind)),
		zap.Int("prompt_length", len(prompt)))

	raw, err := s.generator.GenerateContent(ctx, prompt)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, assessment.NewTimeoutError(err)
		}
		return nil, assessment.NewUnavailableError(err)
	}

	result, err := parseResponse(req.Kind, raw)
	if err != nil {
		return nil, assessment.NewMalformedError(err)
	}

	s.logger.Debug("assessment response",
		zap.String("project_id", req.ProjectID.String()),
		zap.String("kind", string(req.Kind)),
		zap.Int("score", result.Score))

	return result, nil
}

func buildPrompt(req assessment.Request) (string, error) {
	snapshot, err := json.MarshalIndent(req, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal request snapshot: %w", err)
	}

	var template string
	switch req.Kind {
	case assessment.KindBudget:
		template = budgetPromptTemplate
	case assessment.KindRequirements:
		template = requirementsPromptTemplate
	default:
		return "", fmt.Errorf("unknown checkpoint kind %q", req.Kind)
	}

	return strings.ReplaceAll(template, "{{REQUEST_JSON}}", string(snapshot)), nil
}

type rawResponse struct {
	Score          any                        `json:"score"`
	Rationale      string                     `json:"rationale"`
	Recommendation *assessment.Recommendation `json:"recommendation"`
	Issues         []assessment.Issue         `json:"issues"`
}

func parseResponse(kind assessment.Kind, raw string) (*assessment.Result, error) {
	cleaned := extractJSON(raw)

	var data rawResponse
	if err := json.Unmarshal([]byte(cleaned), &data); err != nil {
		return nil, fmt.Errorf("parse gemini response: %w", err)
	}

	score := coerceScore(data.Score)
	if score < 0 {
		return nil, errors.New("gemini response missing numeric score")
	}

	return &assessment.Result{
		Kind:           kind,
		Score:          score,
		Rationale:      strings.TrimSpace(data.Rationale),
		Recommendation: data.Recommendation,
		Issues:         data.Issues,
	}, nil
}

func extractJSON(raw string) string {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "```") {
		raw = strings.TrimPrefix(raw, "```json")
		raw = strings.TrimPrefix(raw, "```")
		raw = strings.TrimSpace(raw)
		if idx := strings.LastIndex(raw, "```"); idx != -1 {
			raw = raw[:idx]
		}
	}
	raw = strings.Trim(raw, "`")
	return strings.TrimSpace(raw)
}

// coerceScore accepts the numeric and string encodings models emit. Returns
// -1 when no usable number is present; range checking is the contract
// validator's job.
func coerceScore(v any) int {
	switch val := v.(type) {
	case float64:
		if math.IsNaN(val) {
			return -1
		}
		return int(math.Round(val))
	case string:
		trimmed := strings.TrimSpace(val)
		if trimmed == "" {
			return -1
		}
		f, err := strconv.ParseFloat(trimmed, 64)
		if err != nil {
			return -1
		}
		return int(math.Round(f))
	default:
		return -1
	}
}
