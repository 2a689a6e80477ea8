package skills

import (
	"strings"

	"github.com/bbalet/stopwords"
	"github.com/jdkato/prose/v2"
)

// NLP is the tokenizer/stopword/part-of-speech boundary used by Extractor.
type NLP interface {
	Tokenize(text string) ([]string, error)
	RemoveStopwords(words []string) []string
	ExtractNouns(text string) ([]string, error)
}

// ProseNLP tags text with prose and filters English stopwords.
type ProseNLP struct {
	language string
}

func NewProseNLP() *ProseNLP {
	return &ProseNLP{language: "en"}
}

func (p *ProseNLP) Tokenize(text string) ([]string, error) {
	doc, err := prose.NewDocument(text,
		prose.WithTagging(false),
		prose.WithExtraction(false),
		prose.WithSegmentation(false),
	)
	if err != nil {
		return nil, err
	}

	tokens := doc.Tokens()
	words := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		words = append(words, tok.Text)
	}
	return words, nil
}

// RemoveStopwords keeps the original casing of every word that survives.
func (p *ProseNLP) RemoveStopwords(words []string) []string {
	kept := make([]string, 0, len(words))
	for _, w := range words {
		if strings.TrimSpace(stopwords.CleanString(w, p.language, false)) == "" {
			continue
		}
		kept = append(kept, w)
	}
	return kept
}

func (p *ProseNLP) ExtractNouns(text string) ([]string, error) {
	doc, err := prose.NewDocument(text,
		prose.WithExtraction(false),
		prose.WithSegmentation(false),
	)
	if err != nil {
		return nil, err
	}

	var nouns []string
	for _, tok := range doc.Tokens() {
		if strings.HasPrefix(tok.Tag, "NN") {
			nouns = append(nouns, tok.Text)
		}
	}
	return nouns, nil
}
