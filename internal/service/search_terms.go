package service

import (
	"strings"
	"unicode"

	"github.com/timmy/carousel/internal/domain"
	"github.com/timmy/carousel/internal/prompts"
	"github.com/timmy/carousel/internal/source"
)

const (
	maxSearchKeywords = 5
	minKeywordRunes   = 3
)

var stopWords = func() map[string]struct{} {
	m := make(map[string]struct{}, len(prompts.StopWords))
	for _, w := range prompts.StopWords {
		m[w] = struct{}{}
	}
	return m
}()

// extractKeywords returns the lowercased content words of text in order of
// first appearance, without stop words or duplicates.
func extractKeywords(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '\''
	})

	seen := make(map[string]struct{}, len(fields))
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.Trim(f, "'")
		if runeCount(f) < minKeywordRunes {
			continue
		}
		if _, stop := stopWords[f]; stop {
			continue
		}
		if _, dup := seen[f]; dup {
			continue
		}
		seen[f] = struct{}{}
		out = append(out, f)
	}
	return out
}

// buildQuery turns a slide into a source query: the topic goes first, then
// the leading content words of the slide.
func buildQuery(slide domain.Slide, hint, topic string, limit int) source.Query {
	keywords := extractKeywords(slide.PlainText())

	terms := make([]string, 0, maxSearchKeywords+1)
	topic = strings.TrimSpace(strings.ToLower(topic))
	if topic != "" {
		terms = append(terms, topic)
	}
	for _, k := range keywords {
		if len(terms) >= maxSearchKeywords+1 {
			break
		}
		if k == topic {
			continue
		}
		terms = append(terms, k)
	}

	return source.Query{
		Hint:     hint,
		Terms:    strings.Join(terms, " "),
		Keywords: keywords,
		Limit:    limit,
	}
}

func runeCount(s string) int {
	return len([]rune(s))
}

func containsDigit(s string) bool {
	for _, r := range s {
		if unicode.IsDigit(r) {
			return true
		}
	}
	return false
}
