package endpoint

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/spigell/cv-matcher/internal/failure"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

const okBody = `{"candidates":[{"content":{"role":"model","parts":[{"text":"{\"score\": 80}"}]}}]}`

func newClient(t *testing.T, handler http.HandlerFunc) (*Client, *observer.ObservedLogs) {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	core, observed := observer.New(zapcore.DebugLevel)
	c, err := New(srv.URL+"/v1/generate", "secret-token", "test-model", zap.New(core))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return c, observed
}

func classified(t *testing.T, err error) *failure.Error {
	t.Helper()

	var got *failure.Error
	if !errors.As(err, &got) {
		t.Fatalf("expected classified error, got %v", err)
	}
	return got
}

func TestGenerateContentRequestShape(t *testing.T) {
	t.Parallel()

	var (
		auth    string
		path    string
		payload generateRequest
	)
	c, observed := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		path = r.URL.Path
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Errorf("decoding payload: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(okBody))
	})

	text, err := c.GenerateContent(context.Background(), "compare these")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if text != `{"score": 80}` {
		t.Fatalf("unexpected text: %q", text)
	}
	if auth != "Bearer secret-token" {
		t.Fatalf("unexpected authorization header: %q", auth)
	}
	if path != "/v1/generate" {
		t.Fatalf("unexpected path: %q", path)
	}
	if len(payload.Contents) != 1 || payload.Contents[0].Role != "user" || payload.Contents[0].Parts[0].Text != "compare these" {
		t.Fatalf("unexpected payload: %+v", payload)
	}

	for _, entry := range observed.All() {
		for _, v := range entry.ContextMap() {
			if s, ok := v.(string); ok && strings.Contains(s, "secret-token") {
				t.Fatalf("token leaked into log entry %q", entry.Message)
			}
		}
	}
}

func TestGenerateContentStatusMapping(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		status     int
		header     string
		body       string
		kind       failure.Kind
		reason     failure.Reason
		retryAfter time.Duration
	}{
		{name: "429 with header", status: http.StatusTooManyRequests, header: "7", kind: failure.KindRateLimited, retryAfter: 7 * time.Second},
		{name: "429 without header", status: http.StatusTooManyRequests, kind: failure.KindRateLimited, retryAfter: time.Minute},
		{name: "500", status: http.StatusInternalServerError, body: "upstream exploded", kind: failure.KindAIService, reason: failure.ReasonUnknown},
		{name: "401", status: http.StatusUnauthorized, kind: failure.KindAIService, reason: failure.ReasonUnknown},
		{name: "no candidates", status: http.StatusOK, body: `{"candidates":[]}`, kind: failure.KindAIService, reason: failure.ReasonInvalidFormat},
		{name: "no parts", status: http.StatusOK, body: `{"candidates":[{"content":{"parts":[]}}]}`, kind: failure.KindAIService, reason: failure.ReasonInvalidFormat},
		{name: "empty text", status: http.StatusOK, body: `{"candidates":[{"content":{"parts":[{"text":"  "}]}}]}`, kind: failure.KindAIService, reason: failure.ReasonInvalidFormat},
		{name: "html body", status: http.StatusOK, body: `<html>oops</html>`, kind: failure.KindAIService, reason: failure.ReasonInvalidFormat},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			c, _ := newClient(t, func(w http.ResponseWriter, _ *http.Request) {
				if tt.header != "" {
					w.Header().Set("Retry-After", tt.header)
				}
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			})

			_, err := c.GenerateContent(context.Background(), "prompt")
			got := classified(t, err)
			if got.Kind != tt.kind || got.Reason != tt.reason {
				t.Fatalf("expected %s/%s, got %s/%s", tt.kind, tt.reason, got.Kind, got.Reason)
			}
			if got.RetryAfter != tt.retryAfter {
				t.Fatalf("expected retry after %s, got %s", tt.retryAfter, got.RetryAfter)
			}
		})
	}
}

func TestGenerateContentDeadline(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	c, _ := newClient(t, func(w http.ResponseWriter, _ *http.Request) {
		<-release
		w.Write([]byte(okBody))
	})
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := c.GenerateContent(ctx, "prompt")
	if got := classified(t, err); got.Reason != failure.ReasonTimeout {
		t.Fatalf("expected timeout, got %v", got)
	}
}

func TestNewValidates(t *testing.T) {
	t.Parallel()

	if _, err := New("", "token", "", nil); err == nil {
		t.Fatalf("expected error for missing endpoint")
	}
	if _, err := New("http://localhost", " ", "", nil); err == nil {
		t.Fatalf("expected error for missing token")
	}
}
