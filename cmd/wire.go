package cmd

import (
	"context"
	"fmt"

	"github.com/spigell/cv-matcher/internal/admission"
	"github.com/spigell/cv-matcher/internal/ai"
	"github.com/spigell/cv-matcher/internal/ai/endpoint"
	"github.com/spigell/cv-matcher/internal/ai/gemini"
	"github.com/spigell/cv-matcher/internal/config"
	"github.com/spigell/cv-matcher/internal/extraction"
	"github.com/spigell/cv-matcher/internal/logger"
	"github.com/spigell/cv-matcher/internal/pipeline"
	"github.com/spigell/cv-matcher/internal/secrets"
	"github.com/spigell/cv-matcher/internal/skills"
	"github.com/spigell/cv-matcher/internal/storage"

	"go.uber.org/zap"
)

// matcher is the fully wired match pipeline together with the admission gate it shares.
type matcher struct {
	pipeline  *pipeline.Pipeline
	admission *admission.Controller
}

func buildMatcher(ctx context.Context, cfg *config.Config, log *zap.Logger) (*matcher, error) {
	controller := admission.New(
		admission.Limits{PerMinute: cfg.RateLimit.PerMinute, PerHour: cfg.RateLimit.PerHour},
		admission.WithLogger(log.Named("admission")),
	)

	files, err := storage.New(cfg.Storage.Root, log.Named("storage"))
	if err != nil {
		return nil, fmt.Errorf("preparing storage: %w", err)
	}

	generator, err := newGenerator(ctx, cfg.AI, log)
	if err != nil {
		return nil, fmt.Errorf("building ai generator: %w", err)
	}

	analyzer := ai.NewAnalyzer(generator, controller,
		ai.WithClock(controller.Now),
		ai.WithTimeout(cfg.AI.Timeout),
		ai.WithMaxLogLength(cfg.AI.MaxLogLength),
		ai.WithLogger(log.Named("ai")),
	)

	p := pipeline.New(pipeline.Deps{
		Storage:   files,
		Extractor: extraction.New(extraction.NewPDFDecoder(), cfg.Extraction.MaxPages, log.Named("extraction")),
		Skills:    skills.NewExtractor(skills.NewProseNLP(), log.Named("skills")),
		Analyzer:  analyzer,
		Logger:    log.Named("pipeline"),
	}, pipeline.Limits{
		MinTextLength: cfg.Matching.MinTextLength,
		MaxTextLength: cfg.Matching.MaxTextLength,
	})

	return &matcher{pipeline: p, admission: controller}, nil
}

func newGenerator(ctx context.Context, cfg config.AIConfig, log *zap.Logger) (ai.Generator, error) {
	genLogger := logger.WithCommonFields(log, cfg.Provider, cfg.Model)

	switch cfg.Provider {
	case config.ProviderGemini:
		apiKey, err := secrets.Load(secrets.Source{
			Name:  "gemini api key",
			File:  cfg.TokenFile,
			Value: cfg.Token,
			Env:   "GEMINI_API_KEY",
		})
		if err != nil {
			return nil, err
		}

		generator, err := gemini.NewGenerator(ctx, apiKey, cfg.Model, genLogger)
		if err != nil {
			return nil, err
		}
		return generator, nil

	case config.ProviderEndpoint, "":
		token, err := secrets.Load(secrets.Source{
			Name:  "ai api token",
			File:  cfg.TokenFile,
			Value: cfg.Token,
			Env:   "AI_API_TOKEN",
		})
		if err != nil {
			return nil, fmt.Errorf("%w (set AI_API_TOKEN_FILE or the 'ai.token-file' key in the configuration file)", err)
		}

		client, err := endpoint.New(cfg.Endpoint, token, cfg.Model, genLogger)
		if err != nil {
			return nil, err
		}
		if cfg.UserAgent != "" {
			client.UserAgent = cfg.UserAgent
		}
		return client, nil

	default:
		return nil, fmt.Errorf("unsupported ai provider: %s", cfg.Provider)
	}
}
