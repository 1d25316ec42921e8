package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAssignRoles(t *testing.T) {
	in := []Slide{
		{Index: 1, Text: "first"},
		{Index: 2, Text: "middle"},
		{Index: 3, Role: SlideRoleBody, Text: "explicit body at the end"},
	}

	out, err := AssignRoles(in)
	require.NoError(t, err)
	assert.Equal(t, SlideRoleHook, out[0].Role)
	assert.Equal(t, SlideRoleBody, out[1].Role)
	assert.Equal(t, SlideRoleBody, out[2].Role, "explicit roles are kept")
	assert.Empty(t, in[0].Role, "input is not modified")

	single, err := AssignRoles([]Slide{{Index: 1, Text: "only"}})
	require.NoError(t, err)
	assert.Equal(t, SlideRoleHook, single[0].Role)
}

func TestAssignRoles_Rejects(t *testing.T) {
	_, err := AssignRoles([]Slide{{Index: 2}})
	assert.ErrorIs(t, err, ErrInvalidSlides)

	_, err = AssignRoles([]Slide{{Index: 1, Role: "outro"}})
	assert.ErrorIs(t, err, ErrInvalidSlides)
}

func TestSlide_PlainText(t *testing.T) {
	s := Slide{Text: "  <b>Bold</b> claim, <i>really</i>  "}
	assert.Equal(t, "Bold claim, really", s.PlainText())
	assert.Equal(t, 18, s.CharCount())

	u := Slide{Text: "héllo"}
	assert.Equal(t, 5, u.CharCount())
}

func TestVisualStrategy(t *testing.T) {
	txt := TextOnly(1, RationaleHookPolicy)
	assert.False(t, txt.NeedsAsset())

	news := VisualStrategy{SlideIndex: 2, VisualType: VisualFetchedImage, ContentTypeHint: HintNews}
	assert.True(t, news.NeedsAsset())
	assert.True(t, news.SameTarget(VisualStrategy{SlideIndex: 2, VisualType: VisualFetchedImage, ContentTypeHint: HintNews, Rationale: "other"}))
	assert.False(t, news.SameTarget(VisualStrategy{VisualType: VisualFetchedImage, ContentTypeHint: HintScene}))
}

func TestCacheEntry_IsStale(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	e := CacheEntry{DownloadedAt: now.Add(-48 * time.Hour)}

	assert.True(t, e.IsStale(now, 24*time.Hour))
	assert.False(t, e.IsStale(now, 72*time.Hour))
	assert.False(t, e.IsStale(now, 0))
}

func TestValidationResult(t *testing.T) {
	r := &ValidationResult{Slides: map[int][]Issue{
		3: {{SlideIndex: 3, Severity: SeverityError, Code: "b"}},
		1: {{SlideIndex: 1, Severity: SeverityWarning, Code: "w"}, {SlideIndex: 1, Severity: SeverityError, Code: "a"}},
		2: nil,
	}}

	assert.False(t, r.Accepted())
	assert.Equal(t, 2, r.CountBySeverity(SeverityError))
	assert.Equal(t, []int{1, 2, 3}, r.SlideIndexes())
	errs := r.Errors()
	require.Len(t, errs, 2)
	assert.Equal(t, "a", errs[0].Code)
	assert.Equal(t, "b", errs[1].Code)

	assert.True(t, (&ValidationResult{Slides: map[int][]Issue{1: nil}}).Accepted())
}
