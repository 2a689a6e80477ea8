package extraction

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/spigell/cv-matcher/internal/failure"
	"github.com/spigell/cv-matcher/internal/storage"
	"go.uber.org/zap"
)

type fakeDocument struct {
	pages   []string
	failOn  int
	panicOn int
	closed  bool
	read    []int
}

func (d *fakeDocument) PageCount() int { return len(d.pages) }

func (d *fakeDocument) PageText(n int) (string, error) {
	d.read = append(d.read, n)
	if n == d.panicOn {
		panic("corrupt xref")
	}
	if n == d.failOn {
		return "", errors.New("bad content stream")
	}
	return d.pages[n-1], nil
}

func (d *fakeDocument) Close() error {
	d.closed = true
	return nil
}

type fakeDecoder struct {
	doc *fakeDocument
	err error
}

func (f *fakeDecoder) Decode(string, int) (Document, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.doc, nil
}

func storedFile(t *testing.T) *storage.Document {
	t.Helper()

	path := filepath.Join(t.TempDir(), "cv.pdf")
	if err := os.WriteFile(path, []byte("%PDF-1.4"), 0o600); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}
	return &storage.Document{Path: path, Name: "cv.pdf", RequestID: "req"}
}

func reasonOf(t *testing.T, err error) *failure.Error {
	t.Helper()

	var classified *failure.Error
	if !errors.As(err, &classified) {
		t.Fatalf("expected classified error, got %v", err)
	}
	if classified.Kind != failure.KindExtraction {
		t.Fatalf("expected extraction kind, got %s", classified.Kind)
	}
	return classified
}

func TestExtractTextJoinsPagesInOrder(t *testing.T) {
	t.Parallel()

	doc := &fakeDocument{pages: []string{"Senior Go engineer", "Kubernetes", " Postgres "}}
	e := New(&fakeDecoder{doc: doc}, 0, zap.NewNop())

	text, err := e.ExtractText(context.Background(), storedFile(t))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if want := "Senior Go engineer\nKubernetes\n Postgres"; text != want {
		t.Fatalf("expected %q, got %q", want, text)
	}
	if len(doc.read) != 3 || doc.read[0] != 1 || doc.read[2] != 3 {
		t.Fatalf("expected pages read 1..3 in order, got %v", doc.read)
	}
	if !doc.closed {
		t.Fatalf("expected document closed")
	}
}

func TestExtractTextNotFound(t *testing.T) {
	t.Parallel()

	e := New(&fakeDecoder{doc: &fakeDocument{}}, 0, nil)

	_, err := e.ExtractText(context.Background(), &storage.Document{Path: filepath.Join(t.TempDir(), "missing.pdf"), Name: "missing.pdf"})
	if got := reasonOf(t, err); got.Reason != failure.ReasonNotFound {
		t.Fatalf("expected not found, got %s", got.Reason)
	}

	_, err = e.ExtractText(context.Background(), nil)
	if got := reasonOf(t, err); got.Reason != failure.ReasonNotFound {
		t.Fatalf("expected not found for nil document, got %s", got.Reason)
	}
}

func TestExtractTextPageLimit(t *testing.T) {
	t.Parallel()

	doc := &fakeDocument{pages: []string{"a", "b", "c"}}
	e := New(&fakeDecoder{doc: doc}, 2, nil)

	_, err := e.ExtractText(context.Background(), storedFile(t))
	got := reasonOf(t, err)
	if got.Reason != failure.ReasonPageLimitExceeded {
		t.Fatalf("expected page limit exceeded, got %s", got.Reason)
	}
	if !got.ClientFault() {
		t.Fatalf("page limit is a client fault")
	}
	if len(doc.read) != 0 {
		t.Fatalf("expected no pages read, got %v", doc.read)
	}
}

func TestExtractTextDecoderReportsPageLimit(t *testing.T) {
	t.Parallel()

	e := New(&fakeDecoder{err: ErrTooManyPages}, 2, nil)

	_, err := e.ExtractText(context.Background(), storedFile(t))
	if got := reasonOf(t, err); got.Reason != failure.ReasonPageLimitExceeded {
		t.Fatalf("expected page limit exceeded, got %s", got.Reason)
	}
}

func TestExtractTextDecodeFailures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		decoder     *fakeDecoder
		serverFault bool
	}{
		{name: "decode error", decoder: &fakeDecoder{err: errors.New("not a pdf")}},
		{name: "page error", decoder: &fakeDecoder{doc: &fakeDocument{pages: []string{"a", "b"}, failOn: 2}}},
		{name: "decoder panic", decoder: &fakeDecoder{doc: &fakeDocument{pages: []string{"a"}, panicOn: 1}}, serverFault: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			e := New(tt.decoder, 0, zap.NewNop())
			text, err := e.ExtractText(context.Background(), storedFile(t))
			if text != "" {
				t.Fatalf("expected no partial text, got %q", text)
			}

			got := reasonOf(t, err)
			if got.Reason != failure.ReasonDecodeFailure {
				t.Fatalf("expected decode failure, got %s", got.Reason)
			}
			if got.ServerFault != tt.serverFault {
				t.Fatalf("expected server fault %v, got %v", tt.serverFault, got.ServerFault)
			}
		})
	}
}

func TestExtractTextCancelled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	e := New(&fakeDecoder{doc: &fakeDocument{pages: []string{"a"}}}, 0, nil)
	if _, err := e.ExtractText(ctx, storedFile(t)); err == nil {
		t.Fatalf("expected error for cancelled context")
	}
}

func TestPDFDecoderRejectsGarbage(t *testing.T) {
	t.Parallel()

	e := New(NewPDFDecoder(), 0, nil)

	_, err := e.ExtractText(context.Background(), storedFile(t))
	if got := reasonOf(t, err); got.Reason != failure.ReasonDecodeFailure {
		t.Fatalf("expected decode failure, got %s", got.Reason)
	}
}
