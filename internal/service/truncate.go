package service

import (
	"strings"
	"unicode"
)

// Ellipsis is appended to truncated text.
const Ellipsis = "…"

// Truncate shortens text to at most limit runes, cutting at the last whole
// word boundary and appending Ellipsis. Text that already fits is returned
// unchanged. A first word longer than the limit yields the bare marker.
func Truncate(text string, limit int) string {
	if limit <= 0 {
		return ""
	}
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}

	keep := limit - 1
	cut := keep
	if !unicode.IsSpace(runes[keep]) {
		// walk back to the start of the word that straddles the limit
		for cut > 0 && !unicode.IsSpace(runes[cut-1]) {
			cut--
		}
	}

	head := strings.TrimRightFunc(string(runes[:cut]), func(r rune) bool {
		return unicode.IsSpace(r) || strings.ContainsRune(",;:-–", r)
	})
	if head == "" {
		return Ellipsis
	}
	return head + Ellipsis
}
