// Package extraction turns a stored PDF into plain text.
package extraction

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spigell/cv-matcher/internal/failure"
	"github.com/spigell/cv-matcher/internal/storage"
	"go.uber.org/zap"
)

const DefaultMaxPages = 50

// ErrTooManyPages may be returned by a Decoder that checks the page count
// before decoding any content.
var ErrTooManyPages = errors.New("too many pages")

// Decoder opens a PDF file for page-wise text access.
type Decoder interface {
	Decode(path string, maxPages int) (Document, error)
}

// Document is an opened PDF. Pages are numbered from 1.
type Document interface {
	PageCount() int
	PageText(n int) (string, error)
	Close() error
}

type Extractor struct {
	decoder  Decoder
	maxPages int
	logger   *zap.Logger
}

func New(decoder Decoder, maxPages int, logger *zap.Logger) *Extractor {
	if maxPages <= 0 {
		maxPages = DefaultMaxPages
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Extractor{decoder: decoder, maxPages: maxPages, logger: logger}
}

// ExtractText returns the text of every page joined with newlines.
// Nothing is returned on partial failure.
func (e *Extractor) ExtractText(ctx context.Context, doc *storage.Document) (text string, err error) {
	if doc == nil {
		return "", failure.Extraction(failure.ReasonNotFound, "no document", nil)
	}

	if _, statErr := os.Stat(doc.Path); statErr != nil {
		if errors.Is(statErr, os.ErrNotExist) {
			return "", failure.Extraction(failure.ReasonNotFound, doc.Name, statErr)
		}
		return "", failure.Extraction(failure.ReasonDecodeFailure, doc.Name, statErr)
	}

	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("pdf decoder panicked", zap.String("name", doc.Name), zap.Any("panic", r))
			text = ""
			err = &failure.Error{
				Kind:        failure.KindExtraction,
				Reason:      failure.ReasonDecodeFailure,
				Message:     doc.Name,
				ServerFault: true,
				Err:         fmt.Errorf("decoder panic: %v", r),
			}
		}
	}()

	pdf, err := e.decoder.Decode(doc.Path, e.maxPages)
	if err != nil {
		if errors.Is(err, ErrTooManyPages) {
			return "", failure.Extraction(failure.ReasonPageLimitExceeded, doc.Name, err)
		}
		return "", failure.Extraction(failure.ReasonDecodeFailure, doc.Name, err)
	}
	defer pdf.Close()

	pages := pdf.PageCount()
	if pages > e.maxPages {
		return "", failure.Extraction(
			failure.ReasonPageLimitExceeded,
			fmt.Sprintf("%s has %d pages, limit is %d", doc.Name, pages, e.maxPages),
			nil,
		)
	}

	parts := make([]string, 0, pages)
	for n := 1; n <= pages; n++ {
		if err := ctx.Err(); err != nil {
			return "", failure.Extraction(failure.ReasonDecodeFailure, doc.Name, err)
		}

		page, err := pdf.PageText(n)
		if err != nil {
			return "", failure.Extraction(failure.ReasonDecodeFailure, fmt.Sprintf("%s page %d", doc.Name, n), err)
		}
		parts = append(parts, page)
	}

	text = strings.TrimSpace(strings.Join(parts, "\n"))

	e.logger.Debug("text extracted",
		zap.String("request_id", doc.RequestID),
		zap.String("name", doc.Name),
		zap.Int("pages", pages),
		zap.Int("length", len(text)),
	)

	return text, nil
}
