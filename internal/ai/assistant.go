package ai

import (
	"context"
	"time"

	"github.com/spigell/cv-matcher/internal/admission"
)

// MatchResult is the structured assessment returned for one CV and job description.
type MatchResult struct {
	Score           int      `json:"score"`
	Strengths       []string `json:"strengths"`
	Weaknesses      []string `json:"weaknesses"`
	Recommendations []string `json:"recommendations"`
}

// Generator sends a prompt to a model and returns its raw text reply.
// Implementations return classified failures.
type Generator interface {
	GenerateContent(ctx context.Context, prompt string) (string, error)
	Provider() string
	Model() string
}

// Admitter decides whether a call to the model may happen now.
type Admitter interface {
	TryAdmit(now time.Time) admission.Decision
}
