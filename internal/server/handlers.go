package server

import (
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spigell/cv-matcher/internal/admission"
	"github.com/spigell/cv-matcher/internal/ai"
	"github.com/spigell/cv-matcher/internal/failure"
	"github.com/spigell/cv-matcher/internal/pipeline"
	"github.com/spigell/cv-matcher/internal/utils"
	"go.uber.org/zap"
)

// multipart parts above this size are spooled to temporary files by net/http.
const multipartMemory = 8 << 20

var validate = validator.New(validator.WithRequiredStructEnabled())

type uploadPart struct {
	Filename string `validate:"max=255"`
	Size     int64  `validate:"gt=0"`
}

type matchResponse struct {
	RequestID     string          `json:"request_id"`
	Result        *ai.MatchResult `json:"result"`
	MatchedSkills []string        `json:"matched_skills"`
	MissingSkills []string        `json:"missing_skills"`
}

type errorDetail struct {
	Code         string `json:"code"`
	Kind         string `json:"kind"`
	Reason       string `json:"reason,omitempty"`
	Message      string `json:"message"`
	RetryAfterMs int64  `json:"retry_after_ms,omitempty"`
}

type errorResponse struct {
	Error errorDetail `json:"error"`
}

type windowView struct {
	Limit      int   `json:"limit"`
	Count      int   `json:"count"`
	Remaining  int   `json:"remaining"`
	ResetsInMs int64 `json:"resets_in_ms"`
}

type quotaResponse struct {
	Minute windowView `json:"minute"`
	Hour   windowView `json:"hour"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": s.opts.Version,
	})
}

func (s *Server) handleQuota(w http.ResponseWriter, _ *http.Request) {
	if s.quota == nil {
		respondJSON(w, http.StatusOK, quotaResponse{})
		return
	}

	status := s.quota.Status(s.quota.Now())
	respondJSON(w, http.StatusOK, quotaResponse{
		Minute: newWindowView(status.Minute),
		Hour:   newWindowView(status.Hour),
	})
}

func newWindowView(w admission.WindowStatus) windowView {
	return windowView{
		Limit:      w.Limit,
		Count:      w.Count,
		Remaining:  w.Remaining,
		ResetsInMs: w.ResetsIn.Milliseconds(),
	}
}

func (s *Server) handleMatch(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxUploadBytes)

	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.respondFailure(w, failure.Validationf("upload exceeds %d bytes", tooLarge.Limit))
			return
		}
		s.respondFailure(w, failure.Validationf("expected a multipart form with %s and %s files", FieldCV, FieldVacancy))
		return
	}
	defer r.MultipartForm.RemoveAll()

	cv, err := readUpload(r, FieldCV)
	if err != nil {
		s.respondFailure(w, err)
		return
	}
	vacancy, err := readUpload(r, FieldVacancy)
	if err != nil {
		s.respondFailure(w, err)
		return
	}

	outcome, err := s.matcher.Run(r.Context(), cv, vacancy)
	if err != nil {
		s.respondFailure(w, err)
		return
	}

	respondJSON(w, http.StatusOK, matchResponse{
		RequestID:     outcome.RequestID,
		Result:        outcome.Result,
		MatchedSkills: nonNil(outcome.Skills.Matched),
		MissingSkills: nonNil(outcome.Skills.Missing),
	})
}

func readUpload(r *http.Request, field string) (pipeline.Upload, error) {
	file, header, err := r.FormFile(field)
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			return pipeline.Upload{}, failure.Validationf("%s file is missing", field)
		}
		return pipeline.Upload{}, failure.Validationf("reading %s: %v", field, err)
	}
	defer file.Close()

	if err := validateUpload(field, uploadPart{Filename: header.Filename, Size: header.Size}); err != nil {
		return pipeline.Upload{}, err
	}

	data, err := io.ReadAll(file)
	if err != nil {
		return pipeline.Upload{}, failure.Validationf("reading %s: %v", field, err)
	}

	return pipeline.Upload{
		Name:     header.Filename,
		MimeType: mediaType(header.Header.Get("Content-Type")),
		Data:     data,
	}, nil
}

func validateUpload(field string, part uploadPart) error {
	err := validate.Struct(part)
	if err == nil {
		return nil
	}

	var invalid validator.ValidationErrors
	if errors.As(err, &invalid) && len(invalid) > 0 {
		switch invalid[0].Field() {
		case "Size":
			return failure.Validationf("%s file is empty", field)
		case "Filename":
			return failure.Validationf("%s file name is longer than %s characters", field, invalid[0].Param())
		}
	}
	return failure.Validationf("%s upload is invalid: %v", field, err)
}

func mediaType(contentType string) string {
	contentType = strings.TrimSpace(contentType)
	if parsed, _, err := mime.ParseMediaType(contentType); err == nil {
		return parsed
	}
	return contentType
}

func nonNil(items []string) []string {
	if items == nil {
		return []string{}
	}
	return items
}

func (s *Server) respondFailure(w http.ResponseWriter, err error) {
	classified := failure.Classify(err)
	status := classified.HTTPStatus()

	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", zap.Error(classified), zap.Int("status", status))
	}

	message := classified.Message
	if message == "" {
		message = http.StatusText(status)
	}

	if ms := classified.RetryAfterMs(); ms > 0 {
		w.Header().Set("Retry-After", strconv.FormatInt(utils.CeilSeconds(ms), 10))
	}

	respondJSON(w, status, errorResponse{Error: errorDetail{
		Code:         classified.Code(),
		Kind:         classified.Kind.String(),
		Reason:       string(classified.Reason),
		Message:      message,
		RetryAfterMs: classified.RetryAfterMs(),
	}})
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	response, err := json.Marshal(payload)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(response)
}
