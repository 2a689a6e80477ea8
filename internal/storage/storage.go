// Package storage keeps uploaded documents on disk for the lifetime of one request.
package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spigell/cv-matcher/internal/failure"
	"go.uber.org/zap"
)

const (
	dirMode  = 0o700
	fileMode = 0o600
)

// Document is a stored upload. It is referenced by later stages and removed by Cleanup.
type Document struct {
	Path      string
	Name      string
	Size      int64
	MimeType  string
	RequestID string
}

// Lifecycle stores documents under <root>/<request id>/ and removes them again.
type Lifecycle struct {
	root      string
	logger    *zap.Logger
	writeFile func(name string, data []byte, perm os.FileMode) error
}

func New(root string, logger *zap.Logger) (*Lifecycle, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	root = strings.TrimSpace(root)
	if root == "" {
		return nil, errors.New("storage root is required")
	}

	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolving storage root %q: %w", root, err)
	}

	if err := os.MkdirAll(abs, dirMode); err != nil {
		return nil, fmt.Errorf("creating storage root %q: %w", abs, err)
	}

	return &Lifecycle{root: abs, logger: logger, writeFile: os.WriteFile}, nil
}

// Root returns the absolute storage root.
func (l *Lifecycle) Root() string {
	return l.root
}

// Store writes data as <root>/<requestID>/<name>.
func (l *Lifecycle) Store(ctx context.Context, data []byte, name, mimeType, requestID string) (*Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, failure.Storage("request cancelled before storing "+name, err)
	}

	dir, err := l.within(requestID)
	if err != nil {
		return nil, err
	}

	if name == "" || name != filepath.Base(name) || name == "." || name == ".." {
		return nil, failure.Storage(fmt.Sprintf("invalid document name %q", name), nil)
	}

	path := filepath.Join(dir, name)
	if err := l.contains(path); err != nil {
		return nil, err
	}

	if err := os.MkdirAll(dir, dirMode); err != nil {
		return nil, failure.Storage("creating request directory", err)
	}

	if err := l.writeFile(path, data, fileMode); err != nil {
		// A failed write may leave a truncated file that no Document will ever point at.
		l.remove(path, requestID)
		l.removeDir(dir, requestID)
		return nil, failure.Storage("writing "+name, err)
	}

	l.logger.Debug("document stored",
		zap.String("request_id", requestID),
		zap.String("name", name),
		zap.Int("size", len(data)),
	)

	return &Document{
		Path:      path,
		Name:      name,
		Size:      int64(len(data)),
		MimeType:  mimeType,
		RequestID: requestID,
	}, nil
}

// Cleanup removes the document and, once empty, its request directory.
// It never fails: problems are logged and swallowed.
func (l *Lifecycle) Cleanup(doc *Document) {
	if doc == nil {
		return
	}

	l.remove(doc.Path, doc.RequestID)

	dir := filepath.Dir(doc.Path)
	if l.contains(dir) != nil {
		return
	}
	l.removeDir(dir, doc.RequestID)
}

// Release removes the request directory if nothing is left in it. It covers
// directories created by stores that failed before returning a Document.
func (l *Lifecycle) Release(requestID string) {
	dir, err := l.within(requestID)
	if err != nil {
		return
	}
	l.removeDir(dir, requestID)
}

func (l *Lifecycle) remove(path, requestID string) {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		l.logger.Warn("removing stored document",
			zap.String("request_id", requestID),
			zap.String("path", path),
			zap.Error(err),
		)
	}
}

// removeDir fails while a sibling document is still present; the last cleanup removes the directory.
func (l *Lifecycle) removeDir(dir, requestID string) {
	if err := os.Remove(dir); err == nil {
		l.logger.Debug("request directory removed", zap.String("request_id", requestID))
	}
}

func (l *Lifecycle) within(requestID string) (string, error) {
	if strings.TrimSpace(requestID) == "" {
		return "", failure.Storage("request id is required", nil)
	}
	if requestID != filepath.Base(requestID) || requestID == "." || requestID == ".." {
		return "", failure.Storage(fmt.Sprintf("invalid request id %q", requestID), nil)
	}

	dir := filepath.Join(l.root, requestID)
	if err := l.contains(dir); err != nil {
		return "", err
	}
	return dir, nil
}

// contains rejects paths that do not resolve strictly below root.
func (l *Lifecycle) contains(path string) error {
	rel, err := filepath.Rel(l.root, filepath.Clean(path))
	if err != nil {
		return failure.Storage("resolving path", err)
	}
	if rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) || filepath.IsAbs(rel) {
		return failure.Storage(fmt.Sprintf("path %q escapes storage root", path), nil)
	}
	return nil
}
