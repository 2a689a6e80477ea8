package ai

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	_ "embed"

	"github.com/spigell/cv-matcher/internal/failure"
	"github.com/spigell/cv-matcher/internal/logger"
	"github.com/spigell/cv-matcher/internal/utils"
	"go.uber.org/zap"
)

//go:embed prompt.md
var promptTemplate string

const (
	DefaultTimeout      = 60 * time.Second
	defaultMaxLogLength = 200
)

// Analyzer is the admission-gated call to the model plus validation of its reply.
type Analyzer struct {
	generator Generator
	admitter  Admitter
	clock     func() time.Time
	timeout   time.Duration
	maxLogLen int
	logger    *zap.Logger
}

type Option func(*Analyzer)

func WithClock(clock func() time.Time) Option {
	return func(a *Analyzer) {
		if clock != nil {
			a.clock = clock
		}
	}
}

// WithTimeout bounds each model call. Non-positive values keep the default.
func WithTimeout(timeout time.Duration) Option {
	return func(a *Analyzer) {
		if timeout > 0 {
			a.timeout = timeout
		}
	}
}

func WithMaxLogLength(n int) Option {
	return func(a *Analyzer) {
		if n > 0 {
			a.maxLogLen = n
		}
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(a *Analyzer) {
		a.logger = l
	}
}

func NewAnalyzer(generator Generator, admitter Admitter, opts ...Option) *Analyzer {
	a := &Analyzer{
		generator: generator,
		admitter:  admitter,
		clock:     time.Now,
		timeout:   DefaultTimeout,
		maxLogLen: defaultMaxLogLength,
	}
	for _, opt := range opts {
		opt(a)
	}

	a.logger = logger.WithCommonFields(a.logger, generator.Provider(), generator.Model())
	return a
}

// Analyze asks the model to compare the cleaned CV with the cleaned job description.
func (a *Analyzer) Analyze(ctx context.Context, cleanedCV, cleanedJD string) (*MatchResult, error) {
	decision := a.admitter.TryAdmit(a.clock())
	if !decision.Admitted {
		return nil, failure.RateLimited(decision.RetryAfter, "ai request quota exhausted")
	}

	prompt := buildPrompt(cleanedCV, cleanedJD)

	a.logger.Debug("generate content request",
		zap.Int("prompt_length", utf8.RuneCountInString(prompt)),
		zap.String("prompt_preview", utils.TruncateForLog(prompt, a.maxLogLen)),
	)

	callCtx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	raw, err := a.generator.GenerateContent(callCtx, prompt)
	if err != nil {
		if ctx.Err() == nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			return nil, failure.AIService(failure.ReasonTimeout, "model call exceeded "+a.timeout.String(), err)
		}
		return nil, failure.Classify(err)
	}

	a.logger.Debug("generate content response",
		zap.Int("response_length", utf8.RuneCountInString(raw)),
		zap.String("response_preview", utils.TruncateForLog(raw, a.maxLogLen)),
	)

	result, err := ParseReply(raw)
	if err != nil {
		a.logger.Warn("model reply rejected",
			zap.Error(err),
			zap.String("raw_reply", utils.TruncateForLog(raw, a.maxLogLen)),
		)
		return nil, err
	}

	a.logger.Info("analysis completed", zap.Int("score", result.Score))

	return result, nil
}

func buildPrompt(cleanedCV, cleanedJD string) string {
	template := promptTemplate
	if strings.TrimSpace(template) == "" {
		template = "Job description:\n{{JOB_DESCRIPTION}}\n\nCV:\n{{CV}}\n\nJSON Response:"
	}
	return strings.NewReplacer(
		"{{JOB_DESCRIPTION}}", cleanedJD,
		"{{CV}}", cleanedCV,
	).Replace(template)
}
