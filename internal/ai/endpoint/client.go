// Package endpoint talks to a generateContent-style AI HTTP endpoint.
package endpoint

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/spigell/cv-matcher/internal/failure"
	"github.com/spigell/cv-matcher/internal/utils"
	"go.uber.org/zap"
)

const (
	providerName = "endpoint"
	contentType  = "application/json"
	userAgent    = "spigell/cv-matcher"

	defaultUpstreamRetryAfter = time.Minute
	maxResponseBytes          = 4 << 20
	errorBodyLogLength        = 300
)

type part struct {
	Text string `json:"text"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type generateRequest struct {
	Contents []content `json:"contents"`
}

type generateResponse struct {
	Candidates []struct {
		Content *content `json:"content"`
	} `json:"candidates"`
}

// Client posts prompts to a single configured URL with bearer authentication.
type Client struct {
	endpoint   string
	token      string
	model      string
	logger     *zap.Logger
	HTTPClient *http.Client
	UserAgent  string
}

func New(endpoint, token, model string, logger *zap.Logger) (*Client, error) {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return nil, errors.New("ai endpoint is required")
	}
	if strings.TrimSpace(token) == "" {
		return nil, errors.New("ai token is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Client{
		endpoint: endpoint,
		token:    strings.TrimSpace(token),
		model:    model,
		logger:   logger,
		// The analyzer bounds each call with its own deadline.
		HTTPClient: &http.Client{},
		UserAgent:  userAgent,
	}, nil
}

func (c *Client) Provider() string { return providerName }

func (c *Client) Model() string { return c.model }

// GenerateContent sends prompt as a single user turn and returns the first text part of the reply.
func (c *Client) GenerateContent(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(generateRequest{
		Contents: []content{{Role: "user", Parts: []part{{Text: prompt}}}},
	})
	if err != nil {
		return "", failure.Internal(fmt.Errorf("encoding request: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", failure.AIService(failure.ReasonUnknown, "building request", err)
	}
	c.setHeaders(req)

	resp, err := c.request(req)
	if err != nil {
		if isTimeout(err) {
			return "", failure.AIService(failure.ReasonTimeout, "ai endpoint did not answer in time", err)
		}
		return "", failure.AIService(failure.ReasonUnknown, "calling ai endpoint", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		if isTimeout(err) {
			return "", failure.AIService(failure.ReasonTimeout, "reading ai endpoint response", err)
		}
		return "", failure.AIService(failure.ReasonUnknown, "reading ai endpoint response", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		wait := retryAfter(resp.Header.Get("Retry-After"))
		c.logger.Warn("ai endpoint rate limited the request", zap.Duration("retry_after", wait))
		return "", failure.RateLimited(wait, "ai endpoint returned 429")
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.logger.Warn("ai endpoint returned bad status",
			zap.Int("status", resp.StatusCode),
			zap.String("body", utils.TruncateForLog(string(data), errorBodyLogLength)),
		)
		return "", failure.AIService(failure.ReasonUnknown, "bad status: "+resp.Status, nil)
	}

	return c.firstText(data)
}

func (c *Client) firstText(data []byte) (string, error) {
	var response generateResponse
	if err := json.Unmarshal(data, &response); err != nil {
		c.logger.Warn("ai endpoint returned non-JSON body",
			zap.String("body", utils.TruncateForLog(string(data), errorBodyLogLength)),
		)
		return "", failure.AIService(failure.ReasonInvalidFormat, "response is not JSON", err)
	}

	if len(response.Candidates) == 0 || response.Candidates[0].Content == nil || len(response.Candidates[0].Content.Parts) == 0 {
		c.logger.Warn("ai endpoint response has no candidate text",
			zap.String("body", utils.TruncateForLog(string(data), errorBodyLogLength)),
		)
		return "", failure.AIService(failure.ReasonInvalidFormat, "candidates[0].content.parts[0].text is missing", nil)
	}

	text := response.Candidates[0].Content.Parts[0].Text
	if strings.TrimSpace(text) == "" {
		return "", failure.AIService(failure.ReasonInvalidFormat, "candidate text is empty", nil)
	}

	return text, nil
}

func (c *Client) request(req *http.Request) (*http.Response, error) {
	c.logger.Debug("make request", zap.String("url", req.URL.Redacted()))
	return c.HTTPClient.Do(req)
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", contentType)
	req.Header.Set("User-Agent", c.UserAgent)
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// retryAfter reads a Retry-After header given in seconds or as an HTTP date.
func retryAfter(header string) time.Duration {
	header = strings.TrimSpace(header)
	if header == "" {
		return defaultUpstreamRetryAfter
	}
	if secs, err := strconv.Atoi(header); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(header); err == nil {
		if d := time.Until(at); d > 0 {
			return d
		}
	}
	return defaultUpstreamRetryAfter
}
