package domain

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

// SlideRole represents the position-derived role of a slide in a carousel.
// Values include SlideRoleHook, SlideRoleBody, and SlideRoleCTA.
type SlideRole string

const (
	SlideRoleHook SlideRole = "hook"
	SlideRoleBody SlideRole = "body"
	SlideRoleCTA  SlideRole = "cta"
)

// Valid reports whether r is one of the known roles.
func (r SlideRole) Valid() bool {
	switch r {
	case SlideRoleHook, SlideRoleBody, SlideRoleCTA:
		return true
	}
	return false
}

var htmlTagPattern = regexp.MustCompile(`<[^>]+>`)

// Slide is one unit of carousel text produced by the upstream rewriter.
// Slides are read-only inside this module.
type Slide struct {
	Index int       `json:"index" binding:"required,min=1"`
	Role  SlideRole `json:"role"`
	Text  string    `json:"text"`
}

// PlainText returns the slide text with markup tags removed.
func (s Slide) PlainText() string {
	return strings.TrimSpace(htmlTagPattern.ReplaceAllString(s.Text, ""))
}

// CharCount returns the number of characters (runes) in the plain slide text.
func (s Slide) CharCount() int {
	return utf8.RuneCountInString(s.PlainText())
}

// WithText returns a copy of the slide carrying new text.
// Used by repair loops, the original slide is left untouched.
func (s Slide) WithText(text string) Slide {
	s.Text = text
	return s
}

// AssignRoles fills in missing roles by position: first slide hook,
// last slide cta, everything in between body.
// Parameters:
//   - slides: ordered slides, indices must be 1..n.
// Returns:
//   - []Slide: a new slice with roles set.
//   - error: non-nil if indices are not contiguous or a role is unknown.
func AssignRoles(slides []Slide) ([]Slide, error) {
	out := make([]Slide, len(slides))
	n := len(slides)
	for i, s := range slides {
		if s.Index != i+1 {
			return nil, fmt.Errorf("%w: slide at position %d has index %d, want %d", ErrInvalidSlides, i, s.Index, i+1)
		}
		if s.Role == "" {
			switch {
			case i == 0:
				s.Role = SlideRoleHook
			case i == n-1:
				s.Role = SlideRoleCTA
			default:
				s.Role = SlideRoleBody
			}
		}
		if !s.Role.Valid() {
			return nil, fmt.Errorf("%w: slide %d has unknown role %q", ErrInvalidSlides, s.Index, s.Role)
		}
		out[i] = s
	}
	return out, nil
}
