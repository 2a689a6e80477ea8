// Package pipeline runs one CV/vacancy match from upload to result.
package pipeline

import (
	"context"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/spigell/cv-matcher/internal/ai"
	"github.com/spigell/cv-matcher/internal/failure"
	"github.com/spigell/cv-matcher/internal/logger"
	"github.com/spigell/cv-matcher/internal/skills"
	"github.com/spigell/cv-matcher/internal/storage"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	PDFMimeType = "application/pdf"

	CVFileName      = "cv.pdf"
	VacancyFileName = "vacancy.pdf"

	DefaultMinTextLength = 50
	DefaultMaxTextLength = 50000
)

// Upload is a document received from a client.
type Upload struct {
	Name     string
	MimeType string
	Data     []byte
}

// Outcome is the successful result of a match.
type Outcome struct {
	RequestID string            `json:"request_id"`
	Result    *ai.MatchResult   `json:"result"`
	Skills    skills.Comparison `json:"skills"`
}

type Limits struct {
	MinTextLength int
	MaxTextLength int
}

type Storage interface {
	Store(ctx context.Context, data []byte, name, mimeType, requestID string) (*storage.Document, error)
	Cleanup(doc *storage.Document)
	// Release drops whatever is left of the request's storage once every document is cleaned up.
	Release(requestID string)
}

type TextExtractor interface {
	ExtractText(ctx context.Context, doc *storage.Document) (string, error)
}

type SkillExtractor interface {
	Extract(text string) skills.Set
}

type Analyzer interface {
	Analyze(ctx context.Context, cleanedCV, cleanedJD string) (*ai.MatchResult, error)
}

// Deps are the collaborators of a Pipeline.
type Deps struct {
	Storage   Storage
	Extractor TextExtractor
	Skills    SkillExtractor
	Analyzer  Analyzer
	Logger    *zap.Logger
	// NewID defaults to random UUIDs.
	NewID func() string
}

type Pipeline struct {
	deps   Deps
	limits Limits
	logger *zap.Logger
}

func New(deps Deps, limits Limits) *Pipeline {
	if limits.MinTextLength <= 0 {
		limits.MinTextLength = DefaultMinTextLength
	}
	if limits.MaxTextLength <= 0 {
		limits.MaxTextLength = DefaultMaxTextLength
	}
	if deps.NewID == nil {
		deps.NewID = uuid.NewString
	}

	return &Pipeline{
		deps:   deps,
		limits: limits,
		logger: logger.WithFields(deps.Logger),
	}
}

// Run matches cv against vacancy. Every stored document is cleaned up before
// Run returns, whatever the outcome. Returned errors are always *failure.Error.
func (p *Pipeline) Run(ctx context.Context, cv, vacancy Upload) (*Outcome, error) {
	req := newRequest(p.deps.NewID())
	log := logger.WithRequest(p.logger, req.ID)
	defer p.cleanup(req, log)

	outcome, err := p.run(ctx, req, log, cv, vacancy)
	if err != nil {
		classified := failure.Classify(err)
		p.step(req, log, StateFailed)
		log.Warn("match failed", zap.Error(classified), zap.String("code", classified.Code()))
		return nil, classified
	}

	p.step(req, log, StateCompleted)
	return outcome, nil
}

func (p *Pipeline) run(ctx context.Context, req *Request, log *zap.Logger, cv, vacancy Upload) (*Outcome, error) {
	if err := validateUpload("cv", cv); err != nil {
		return nil, err
	}
	if err := validateUpload("vacancy", vacancy); err != nil {
		return nil, err
	}

	if err := p.step(req, log, StateUploading); err != nil {
		return nil, err
	}
	log.Debug("uploads received",
		zap.String("cv_name", cv.Name),
		zap.Int("cv_size", len(cv.Data)),
		zap.String("vacancy_name", vacancy.Name),
		zap.Int("vacancy_size", len(vacancy.Data)),
	)
	docs, err := p.upload(ctx, req, cv, vacancy)
	if err != nil {
		return nil, err
	}

	if err := p.step(req, log, StateExtracting); err != nil {
		return nil, err
	}
	texts, err := p.extract(ctx, docs)
	if err != nil {
		return nil, err
	}
	cvText, jdText := texts[0], texts[1]

	if err := p.validateText("cv", cvText); err != nil {
		return nil, err
	}
	if err := p.validateText("vacancy", jdText); err != nil {
		return nil, err
	}

	comparison := p.compareSkills(cvText, jdText)
	log.Info("skills compared",
		zap.Int("matched", len(comparison.Matched)),
		zap.Int("missing", len(comparison.Missing)),
	)

	if err := p.step(req, log, StateAnalyzing); err != nil {
		return nil, err
	}
	result, err := p.deps.Analyzer.Analyze(ctx, skills.Clean(cvText), skills.Clean(jdText))
	if err != nil {
		return nil, err
	}

	return &Outcome{RequestID: req.ID, Result: result, Skills: comparison}, nil
}

func (p *Pipeline) upload(ctx context.Context, req *Request, cv, vacancy Upload) ([2]*storage.Document, error) {
	var docs [2]*storage.Document

	g, gctx := errgroup.WithContext(ctx)
	for i, item := range []struct {
		name   string
		upload Upload
	}{
		{name: CVFileName, upload: cv},
		{name: VacancyFileName, upload: vacancy},
	} {
		g.Go(func() error {
			doc, err := p.deps.Storage.Store(gctx, item.upload.Data, item.name, item.upload.MimeType, req.ID)
			if err != nil {
				return err
			}
			req.track(doc)
			docs[i] = doc
			return nil
		})
	}

	return docs, g.Wait()
}

func (p *Pipeline) extract(ctx context.Context, docs [2]*storage.Document) ([2]string, error) {
	var texts [2]string

	g, gctx := errgroup.WithContext(ctx)
	for i, doc := range docs {
		g.Go(func() error {
			text, err := p.deps.Extractor.ExtractText(gctx, doc)
			if err != nil {
				return err
			}
			texts[i] = text
			return nil
		})
	}

	return texts, g.Wait()
}

func (p *Pipeline) compareSkills(cvText, jdText string) skills.Comparison {
	if p.deps.Skills == nil {
		return skills.Compare(skills.Set{}, skills.Set{})
	}
	return skills.Compare(p.deps.Skills.Extract(cvText), p.deps.Skills.Extract(jdText))
}

// cleanup releases every tracked document. It does not depend on the caller's context.
func (p *Pipeline) cleanup(req *Request, log *zap.Logger) {
	p.step(req, log, StateCleaningUp)

	docs := req.release()
	for _, doc := range docs {
		p.deps.Storage.Cleanup(doc)
	}
	p.deps.Storage.Release(req.ID)
	req.settle()

	log.Debug("match request released", zap.Int("documents", len(docs)), zap.Stringer("state", req.State()))
}

func (p *Pipeline) step(req *Request, log *zap.Logger, to State) error {
	if err := req.advance(to); err != nil {
		log.Error("match step", zap.Error(err))
		return failure.Internal(err)
	}
	log.Info("match step", zap.Stringer("state", to))
	return nil
}

func validateUpload(field string, u Upload) error {
	if len(u.Data) == 0 {
		return failure.Validationf("%s file is missing", field)
	}
	if u.MimeType != PDFMimeType {
		return failure.Validationf("%s must be %s, got %q", field, PDFMimeType, u.MimeType)
	}
	return nil
}

func (p *Pipeline) validateText(field, text string) error {
	n := utf8.RuneCountInString(text)
	if n < p.limits.MinTextLength {
		return failure.Validationf("%s text is too short: %d characters, minimum is %d", field, n, p.limits.MinTextLength)
	}
	if n > p.limits.MaxTextLength {
		return failure.Validationf("%s text is too long: %d characters, maximum is %d", field, n, p.limits.MaxTextLength)
	}
	return nil
}
