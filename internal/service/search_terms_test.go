package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/timmy/carousel/internal/domain"
)

func TestExtractKeywords(t *testing.T) {
	got := extractKeywords("The <b>president</b>'s new tariffs: the president said it's FINAL, ok?")
	assert.Equal(t, []string{"president", "new", "tariffs", "said", "final"}, got)
}

func TestBuildQuery(t *testing.T) {
	slide := domain.Slide{Index: 2, Text: "When the stock market crashed, everyone panicked about their savings and retirement plans"}

	q := buildQuery(slide, domain.HintNews, "Finance", 4)
	assert.Equal(t, domain.HintNews, q.Hint)
	assert.Equal(t, 4, q.Limit)
	assert.Equal(t, "finance stock market crashed everyone panicked", q.Terms)
	assert.Contains(t, q.Keywords, "retirement")

	q = buildQuery(slide, domain.HintNews, "", 0)
	assert.Equal(t, "stock market crashed everyone panicked savings", q.Terms)
}
