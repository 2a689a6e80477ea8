package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/spigell/cv-matcher/internal/ai"
	"github.com/spigell/cv-matcher/internal/config"
	"github.com/spigell/cv-matcher/internal/pipeline"
	"github.com/spigell/cv-matcher/internal/skills"
	"go.uber.org/zap"
)

func TestValidatePDFPath(t *testing.T) {
	dir := t.TempDir()
	pdf := filepath.Join(dir, "cv.PDF")
	txt := filepath.Join(dir, "cv.txt")
	for _, f := range []string{pdf, txt} {
		if err := os.WriteFile(f, []byte("%PDF"), 0o600); err != nil {
			t.Fatalf("write %s: %v", f, err)
		}
	}

	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{name: "existing pdf", input: " " + pdf + " "},
		{name: "empty", input: "  ", wantErr: true},
		{name: "wrong extension", input: txt, wantErr: true},
		{name: "missing", input: filepath.Join(dir, "absent.pdf"), wantErr: true},
		{name: "directory", input: filepath.Join(dir, "folder.pdf"), wantErr: true},
	}
	if err := os.Mkdir(filepath.Join(dir, "folder.pdf"), 0o700); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validatePDFPath(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("expected error=%v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestReadUploadDetectsPDF(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vacancy.pdf")
	if err := os.WriteFile(path, []byte("%PDF-1.7"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	upload, err := readUpload(path)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if upload.MimeType != pipeline.PDFMimeType {
		t.Fatalf("unexpected mime type: %q", upload.MimeType)
	}
	if upload.Name != "vacancy.pdf" || string(upload.Data) != "%PDF-1.7" {
		t.Fatalf("unexpected upload: %+v", upload)
	}
}

func TestNewGenerator(t *testing.T) {
	t.Setenv("AI_API_TOKEN", "")

	gen, err := newGenerator(context.Background(), config.AIConfig{
		Provider:  config.ProviderEndpoint,
		Endpoint:  "https://llm.example.com/v1/generate",
		Token:     "token",
		Model:     "custom",
		UserAgent: "tests",
	}, zap.NewNop())
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if gen.Provider() != config.ProviderEndpoint || gen.Model() != "custom" {
		t.Fatalf("unexpected generator: %s/%s", gen.Provider(), gen.Model())
	}

	if _, err := newGenerator(context.Background(), config.AIConfig{
		Provider: config.ProviderEndpoint,
		Endpoint: "https://llm.example.com/v1/generate",
	}, zap.NewNop()); err == nil {
		t.Fatal("expected error without a token")
	}

	if _, err := newGenerator(context.Background(), config.AIConfig{Provider: "openai"}, zap.NewNop()); err == nil {
		t.Fatal("expected error for unsupported provider")
	}
}

func TestPrintOutcome(t *testing.T) {
	var buf bytes.Buffer
	outcome := &pipeline.Outcome{
		RequestID: "req-1",
		Result:    &ai.MatchResult{Score: 70, Strengths: []string{}, Weaknesses: []string{}, Recommendations: []string{}},
		Skills:    skills.Compare(skills.NewSet("go"), skills.NewSet("go", "kubernetes")),
	}

	if err := printOutcome(&buf, outcome); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	var decoded map[string]any
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("output is not json: %v", err)
	}
	if decoded["request_id"] != "req-1" {
		t.Fatalf("unexpected output: %s", buf.String())
	}
}
