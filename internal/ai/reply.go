package ai

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/spigell/cv-matcher/internal/failure"
)

const (
	minScore = 0
	maxScore = 100
)

type replyShape struct {
	Score           json.RawMessage `json:"score"`
	Strengths       json.RawMessage `json:"strengths"`
	Weaknesses      json.RawMessage `json:"weaknesses"`
	Recommendations json.RawMessage `json:"recommendations"`
}

// ParseReply validates the model's text reply and normalizes it into a MatchResult.
func ParseReply(raw string) (*MatchResult, error) {
	cleaned := stripFence(raw)
	if cleaned == "" {
		return nil, failure.AIService(failure.ReasonMalformedPayload, "empty reply", nil)
	}

	var shape replyShape
	if err := json.Unmarshal([]byte(cleaned), &shape); err != nil {
		return nil, failure.AIService(failure.ReasonMalformedPayload, "reply is not a JSON object", err)
	}

	score, err := decodeScore(shape.Score)
	if err != nil {
		return nil, err
	}

	result := &MatchResult{Score: clampScore(score)}
	for _, field := range []struct {
		name string
		raw  json.RawMessage
		dst  *[]string
	}{
		{name: "strengths", raw: shape.Strengths, dst: &result.Strengths},
		{name: "weaknesses", raw: shape.Weaknesses, dst: &result.Weaknesses},
		{name: "recommendations", raw: shape.Recommendations, dst: &result.Recommendations},
	} {
		list, err := decodeList(field.name, field.raw)
		if err != nil {
			return nil, err
		}
		*field.dst = list
	}

	return result, nil
}

// stripFence removes a leading ``` marker (with an optional language tag on the
// same line) and a trailing ``` marker.
func stripFence(raw string) string {
	raw = strings.TrimSpace(raw)
	if !strings.HasPrefix(raw, "```") {
		return raw
	}

	raw = strings.TrimPrefix(raw, "```")
	if idx := strings.IndexByte(raw, '\n'); idx != -1 {
		tag := strings.TrimSpace(raw[:idx])
		if tag == "" || isLanguageTag(tag) {
			raw = raw[idx+1:]
		}
	} else {
		raw = strings.TrimPrefix(raw, "json")
	}

	raw = strings.TrimSpace(raw)
	raw = strings.TrimSuffix(raw, "```")
	return strings.TrimSpace(raw)
}

func isLanguageTag(tag string) bool {
	for _, r := range tag {
		if !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z') {
			return false
		}
	}
	return true
}

func isNull(raw json.RawMessage) bool {
	return len(raw) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

func decodeScore(raw json.RawMessage) (float64, error) {
	if isNull(raw) {
		return 0, failure.AIService(failure.ReasonMalformedPayload, "score is missing", nil)
	}

	raw = bytes.TrimSpace(raw)
	if raw[0] == '"' {
		return 0, failure.AIService(failure.ReasonMalformedPayload, "score is not a number", nil)
	}

	var number json.Number
	if err := json.Unmarshal(raw, &number); err != nil {
		return 0, failure.AIService(failure.ReasonMalformedPayload, "score is not a number", err)
	}

	// Numbers beyond float64 come back as ±Inf and are clamped like any other out-of-range score.
	score, err := strconv.ParseFloat(number.String(), 64)
	if err != nil && !errors.Is(err, strconv.ErrRange) {
		return 0, failure.AIService(failure.ReasonMalformedPayload, "score is not a number", err)
	}
	return score, nil
}

func decodeList(name string, raw json.RawMessage) ([]string, error) {
	if isNull(raw) {
		return nil, failure.AIService(failure.ReasonMalformedPayload, name+" is missing", nil)
	}

	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, failure.AIService(failure.ReasonMalformedPayload, fmt.Sprintf("%s is not an array of strings", name), err)
	}

	list := make([]string, len(items))
	for i, item := range items {
		// null would otherwise decode into an empty string.
		item = bytes.TrimSpace(item)
		if len(item) == 0 || item[0] != '"' {
			return nil, failure.AIService(failure.ReasonMalformedPayload, fmt.Sprintf("%s[%d] is not a string", name, i), nil)
		}
		if err := json.Unmarshal(item, &list[i]); err != nil {
			return nil, failure.AIService(failure.ReasonMalformedPayload, fmt.Sprintf("%s[%d] is not a string", name, i), err)
		}
		list[i] = strings.TrimSpace(list[i])
	}
	return list, nil
}

func clampScore(score float64) int {
	rounded := math.Round(score)
	switch {
	case rounded < minScore:
		return minScore
	case rounded > maxScore:
		return maxScore
	default:
		return int(rounded)
	}
}
