// Package failure holds the closed set of error kinds a match request can end with.
package failure

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Kind is the top-level classification of a failure.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindStorage
	KindExtraction
	KindRateLimited
	KindAIService
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindStorage:
		return "storage"
	case KindExtraction:
		return "extraction"
	case KindRateLimited:
		return "rate_limited"
	case KindAIService:
		return "ai_service"
	default:
		return "internal"
	}
}

// Reason narrows Extraction and AIService failures.
type Reason string

const (
	ReasonNone              Reason = ""
	ReasonNotFound          Reason = "not_found"
	ReasonPageLimitExceeded Reason = "page_limit_exceeded"
	ReasonDecodeFailure     Reason = "decode_failure"
	ReasonInvalidFormat     Reason = "invalid_format"
	ReasonMalformedPayload  Reason = "malformed_payload"
	ReasonTimeout           Reason = "timeout"
	ReasonUnknown           Reason = "unknown"
)

// Error is a classified failure. Once built it is passed upward unchanged.
type Error struct {
	Kind    Kind
	Reason  Reason
	Message string
	// RetryAfter is set for KindRateLimited only.
	RetryAfter time.Duration
	// ServerFault marks extraction failures caused by the decoder itself rather than the input.
	ServerFault bool
	Err         error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.String())
	if e.Reason != ReasonNone {
		b.WriteString("/")
		b.WriteString(string(e.Reason))
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Retryable reports whether the caller may try the same request again later.
func (e *Error) Retryable() bool {
	switch {
	case e.Kind == KindRateLimited:
		return true
	case e.Kind == KindAIService && e.Reason == ReasonTimeout:
		return true
	default:
		return false
	}
}

// ClientFault reports whether the failure was caused by the caller's input.
func (e *Error) ClientFault() bool {
	switch e.Kind {
	case KindValidation, KindRateLimited:
		return true
	case KindExtraction:
		if e.ServerFault {
			return false
		}
		return e.Reason == ReasonPageLimitExceeded || e.Reason == ReasonDecodeFailure
	default:
		return false
	}
}

// RetryAfterMs returns the retry hint in whole milliseconds, rounded up.
func (e *Error) RetryAfterMs() int64 {
	if e.RetryAfter <= 0 {
		return 0
	}
	return int64((e.RetryAfter + time.Millisecond - 1) / time.Millisecond)
}

// Code returns a stable machine readable code for API responses.
func (e *Error) Code() string {
	switch e.Kind {
	case KindValidation:
		return "VALIDATION_ERROR"
	case KindStorage:
		return "FILE_SERVICE_ERROR"
	case KindExtraction:
		return "PDF_PROCESSING_ERROR"
	case KindRateLimited:
		return "RATE_LIMIT_ERROR"
	case KindAIService:
		return "AI_SERVICE_ERROR"
	default:
		return "INTERNAL_ERROR"
	}
}

// HTTPStatus maps the failure onto a response status code.
func (e *Error) HTTPStatus() int {
	switch e.Kind {
	case KindValidation:
		return http.StatusBadRequest
	case KindRateLimited:
		return http.StatusTooManyRequests
	case KindExtraction:
		if e.ClientFault() {
			return http.StatusUnprocessableEntity
		}
		return http.StatusInternalServerError
	case KindAIService:
		if e.Reason == ReasonTimeout {
			return http.StatusGatewayTimeout
		}
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func Validationf(format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

func Storage(message string, err error) *Error {
	return &Error{Kind: KindStorage, Message: message, Err: err}
}

func Extraction(reason Reason, message string, err error) *Error {
	return &Error{Kind: KindExtraction, Reason: reason, Message: message, Err: err}
}

func RateLimited(retryAfter time.Duration, message string) *Error {
	return &Error{Kind: KindRateLimited, RetryAfter: retryAfter, Message: message}
}

func AIService(reason Reason, message string, err error) *Error {
	return &Error{Kind: KindAIService, Reason: reason, Message: message, Err: err}
}

func Internal(err error) *Error {
	return &Error{Kind: KindInternal, Message: "internal failure", Err: err}
}

// Classify returns the classified error carried by err, wrapping anything
// unknown as an internal failure. A nil err yields nil.
func Classify(err error) *Error {
	if err == nil {
		return nil
	}

	var classified *Error
	if errors.As(err, &classified) {
		return classified
	}

	return Internal(err)
}

// IsKind reports whether err carries a classified failure of the given kind.
func IsKind(err error, kind Kind) bool {
	var classified *Error
	if !errors.As(err, &classified) {
		return false
	}
	return classified.Kind == kind
}
