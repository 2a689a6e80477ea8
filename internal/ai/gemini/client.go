// Package gemini is an AI provider backed by the Google GenAI SDK.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/spigell/cv-matcher/internal/failure"
	"go.uber.org/zap"
	"google.golang.org/genai"
)

const (
	providerName = "gemini"
	defaultModel = "gemini-2.5-flash"

	quotaRetryAfter = time.Minute
)

type contentModels interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// Generator sends prompts through the genai Models API.
type Generator struct {
	models contentModels
	model  string
	logger *zap.Logger
}

// NewGenerator creates a Generator configured for the Gemini API backend.
func NewGenerator(ctx context.Context, apiKey, model string, logger *zap.Logger) (*Generator, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, errors.New("gemini api key is required")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}

	return newGenerator(client.Models, model, logger), nil
}

func newGenerator(models contentModels, model string, logger *zap.Logger) *Generator {
	if model = strings.TrimSpace(model); model == "" {
		model = defaultModel
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Generator{models: models, model: model, logger: logger}
}

func (g *Generator) Provider() string { return providerName }

func (g *Generator) Model() string {
	if g == nil {
		return ""
	}
	return g.model
}

// GenerateContent returns the first text part of the first candidate.
func (g *Generator) GenerateContent(ctx context.Context, prompt string) (string, error) {
	resp, err := g.models.GenerateContent(ctx, g.model, genai.Text(prompt), nil)
	if err != nil {
		return "", g.classify(err)
	}

	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0] == nil || resp.Candidates[0].Content == nil {
		return "", failure.AIService(failure.ReasonInvalidFormat, "gemini returned no candidates", nil)
	}

	parts := resp.Candidates[0].Content.Parts
	if len(parts) == 0 || parts[0] == nil || strings.TrimSpace(parts[0].Text) == "" {
		return "", failure.AIService(failure.ReasonInvalidFormat, "gemini returned empty text", nil)
	}

	return parts[0].Text, nil
}

func (g *Generator) classify(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return failure.AIService(failure.ReasonTimeout, "gemini did not answer in time", err)
	}

	code, status, ok := apiErrorCode(err)
	if !ok {
		return failure.AIService(failure.ReasonUnknown, "generate content", err)
	}

	if code == http.StatusTooManyRequests {
		g.logger.Warn("gemini quota exhausted", zap.String("status", status))
		return failure.RateLimited(quotaRetryAfter, "gemini returned 429")
	}

	g.logger.Warn("gemini api error", zap.Int("code", code), zap.String("status", status))
	return failure.AIService(failure.ReasonUnknown, "gemini api error", err)
}

func apiErrorCode(err error) (int, string, bool) {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code, apiErr.Status, true
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
		return apiErrPtr.Code, apiErrPtr.Status, true
	}
	return 0, "", false
}
