// Package skills derives an informational skill set from document text.
package skills

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"go.uber.org/zap"
)

var (
	capitalized = regexp.MustCompile(`\b[A-Z][a-zA-Z0-9.-]+\b`)
	nonWord     = regexp.MustCompile(`[^\w\s]`)
	whitespace  = regexp.MustCompile(`\s+`)
)

// Set is a set of normalized lowercase skills.
type Set map[string]struct{}

func NewSet(items ...string) Set {
	s := make(Set, len(items))
	for _, item := range items {
		s.add(item)
	}
	return s
}

func (s Set) add(item string) {
	item = strings.ToLower(strings.TrimSpace(item))
	if item == "" {
		return
	}
	s[item] = struct{}{}
}

func (s Set) Has(item string) bool {
	_, ok := s[item]
	return ok
}

// Slice returns the members sorted.
func (s Set) Slice() []string {
	out := make([]string, 0, len(s))
	for item := range s {
		out = append(out, item)
	}
	sort.Strings(out)
	return out
}

// Comparison is the overlap between a CV and a job description.
type Comparison struct {
	Matched []string `json:"matched_skills"`
	Missing []string `json:"missing_skills"`
}

// Compare returns skills present in both sets and job skills absent from the CV.
func Compare(cv, job Set) Comparison {
	result := Comparison{Matched: []string{}, Missing: []string{}}
	for _, skill := range job.Slice() {
		if cv.Has(skill) {
			result.Matched = append(result.Matched, skill)
			continue
		}
		result.Missing = append(result.Missing, skill)
	}
	return result
}

// Clean lowercases text, replaces punctuation with spaces and collapses whitespace.
func Clean(text string) string {
	text = strings.ToLower(text)
	text = nonWord.ReplaceAllString(text, " ")
	text = whitespace.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}

type Extractor struct {
	nlp    NLP
	logger *zap.Logger
}

func NewExtractor(nlp NLP, logger *zap.Logger) *Extractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Extractor{nlp: nlp, logger: logger}
}

// Extract returns the union of nouns and capitalized words found in text.
// It never fails: any problem yields an empty set.
func (e *Extractor) Extract(text string) (set Set) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Debug("skill extraction degraded", zap.Error(fmt.Errorf("panic: %v", r)))
			set = Set{}
		}
	}()

	set, err := e.extract(text)
	if err != nil {
		e.logger.Debug("skill extraction degraded", zap.Error(err))
		return Set{}
	}
	return set
}

func (e *Extractor) extract(text string) (Set, error) {
	if e.nlp == nil {
		return nil, fmt.Errorf("nlp backend is not configured")
	}

	words, err := e.nlp.Tokenize(text)
	if err != nil {
		return nil, fmt.Errorf("tokenize: %w", err)
	}
	processed := strings.Join(e.nlp.RemoveStopwords(words), " ")

	nouns, err := e.nlp.ExtractNouns(processed)
	if err != nil {
		return nil, fmt.Errorf("extract nouns: %w", err)
	}

	set := NewSet(nouns...)
	for _, word := range capitalized.FindAllString(processed, -1) {
		set.add(word)
	}
	return set, nil
}
