package service

import (
	"context"
	"net/http"
	"testing"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/timmy/carousel/internal/domain"
)

func slidesOf(texts ...string) []domain.Slide {
	slides := make([]domain.Slide, len(texts))
	for i, t := range texts {
		slides[i] = domain.Slide{Index: i + 1, Text: t}
	}
	out, err := domain.AssignRoles(slides)
	if err != nil {
		panic(err)
	}
	return out
}

func TestHeuristicLabeler(t *testing.T) {
	tests := []struct {
		name  string
		text  string
		topic string
		hint  string
	}{
		{name: "percentage", text: "Inflation hit 8.5% last year", hint: domain.HintInfographic},
		{name: "currency", text: "Rent now costs $2,400 a month", hint: domain.HintInfographic},
		{name: "magnitude", text: "The video got 3 million views overnight", hint: domain.HintInfographic},
		{name: "data word with digits", text: "Growth slowed in 2023 for the third time", hint: domain.HintInfographic},
		{name: "news entity", text: "The president announced new tariffs", hint: domain.HintNews},
		{name: "fictional work", text: "Like that episode where Michael ruins the party", hint: domain.HintScene},
		{name: "emotional tone", text: "Me when the alarm rings on Monday, ugh", hint: domain.HintMeme},
		{name: "numbers beat news", text: "The president's approval fell to 38%", hint: domain.HintInfographic},
		{name: "news beats scene", text: "The minister quoted a movie in parliament", hint: domain.HintNews},
		{name: "scene beats meme", text: "I love this anime so much", hint: domain.HintScene},
		{name: "topic contributes", text: "Here is what happened next", topic: "election", hint: domain.HintNews},
		{name: "no signal", text: "Stay consistent and keep going", hint: ""},
		{name: "substring is not a word", text: "The warden walked in", hint: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			label, err := HeuristicLabeler{}.Label(context.Background(), domain.Slide{Index: 2, Text: tt.text}, tt.topic)
			require.NoError(t, err)
			assert.Equal(t, tt.hint, label.Hint, "rationale: %s", label.Rationale)
		})
	}
}

func TestClassify_HookAndCTAAreTextOnly(t *testing.T) {
	c := NewClassifier(nil, nil, nil)
	slides := slidesOf(
		"Prices rose 40% this year",
		"The president announced new tariffs",
		"Unemployment is at 12%",
	)

	got := c.Classify(context.Background(), slides, "")
	require.Len(t, got, 3)

	assert.Equal(t, domain.VisualTextOnly, got[1].VisualType)
	assert.True(t, got[1].Skip)
	assert.Equal(t, domain.RationaleHookPolicy, got[1].Rationale)

	assert.Equal(t, domain.VisualFetchedImage, got[2].VisualType)
	assert.Equal(t, domain.HintNews, got[2].ContentTypeHint)

	assert.Equal(t, domain.VisualTextOnly, got[3].VisualType)
	assert.Equal(t, domain.RationaleCTAPolicy, got[3].Rationale)
}

func TestClassify_SingleSlide(t *testing.T) {
	c := NewClassifier(nil, nil, nil)
	got := c.Classify(context.Background(), slidesOf("Inflation hit 9%"), "")
	require.Len(t, got, 1)
	assert.Equal(t, domain.VisualTextOnly, got[1].VisualType)
}

func TestClassify_EveryStrategyType(t *testing.T) {
	c := NewClassifier(nil, nil, nil)
	slides := slidesOf(
		"hook",
		"Inflation hit 8.5% last year",
		"The president announced new tariffs",
		"That movie ending still haunts me",
		"Me when the alarm rings on Monday, ugh",
		"Stay consistent and keep going",
		"cta",
	)

	got := c.Classify(context.Background(), slides, "")
	require.Len(t, got, len(slides))

	assert.Equal(t, domain.VisualInfographic, got[2].VisualType)
	assert.Equal(t, domain.HintInfographic, got[2].ContentTypeHint)
	assert.Equal(t, domain.VisualFetchedImage, got[3].VisualType)
	assert.Equal(t, domain.HintNews, got[3].ContentTypeHint)
	assert.Equal(t, domain.VisualFetchedImage, got[4].VisualType)
	assert.Equal(t, domain.HintScene, got[4].ContentTypeHint)
	assert.Equal(t, domain.VisualCachedTemplate, got[5].VisualType)
	assert.Equal(t, domain.HintMeme, got[5].ContentTypeHint)

	assert.Equal(t, domain.VisualCachedTemplate, got[6].VisualType)
	assert.Equal(t, domain.HintMeme, got[6].ContentTypeHint)
	assert.Equal(t, domain.RationaleClassificationFailed, got[6].Rationale)
}

type panicLabeler struct{}

func (panicLabeler) Label(context.Context, domain.Slide, string) (Label, error) {
	panic("labeler exploded")
}

func TestClassify_RecoversFromPanics(t *testing.T) {
	slides := slidesOf("hook", "The president announced new tariffs", "cta")

	t.Run("external labeler panic falls back to heuristic", func(t *testing.T) {
		c := NewClassifier(panicLabeler{}, nil, nil)
		got := c.Classify(context.Background(), slides, "")
		assert.Equal(t, domain.HintNews, got[2].ContentTypeHint)
	})

	t.Run("heuristic panic degrades to meme template", func(t *testing.T) {
		c := NewClassifier(nil, nil, nil)
		c.heuristic = panicLabeler{}
		got := c.Classify(context.Background(), slides, "")
		assert.Equal(t, domain.VisualCachedTemplate, got[2].VisualType)
		assert.Equal(t, domain.HintMeme, got[2].ContentTypeHint)
		assert.Equal(t, domain.RationaleClassificationFailed, got[2].Rationale)
	})
}

func newMockedLabeler(t *testing.T, responder httpmock.Responder) *LLMLabeler {
	t.Helper()
	l := NewLLMLabeler(&LLMLabelerConfig{Model: "test-model", APIKey: "k", BaseURL: "https://llm.test/v1"})
	httpmock.ActivateNonDefault(l.Client().GetClient())
	t.Cleanup(httpmock.DeactivateAndReset)
	httpmock.RegisterResponder(http.MethodPost, "https://llm.test/v1/chat/completions", responder)
	return l
}

func answer(content string) httpmock.Responder {
	return httpmock.NewJsonResponderOrPanic(200, map[string]interface{}{
		"choices": []map[string]interface{}{
			{"message": map[string]string{"content": content}},
		},
	})
}

func TestClassify_ExternalLabeler(t *testing.T) {
	slides := slidesOf("hook", "Me when the alarm rings on Monday, ugh", "cta")

	tests := []struct {
		name      string
		responder httpmock.Responder
		hint      string
		vt        domain.VisualType
	}{
		{name: "label wins over heuristic", responder: answer(" Scene.\n"), hint: domain.HintScene, vt: domain.VisualFetchedImage},
		{name: "none uses heuristic", responder: answer("none"), hint: domain.HintMeme, vt: domain.VisualCachedTemplate},
		{name: "unknown label uses heuristic", responder: answer("banana"), hint: domain.HintMeme, vt: domain.VisualCachedTemplate},
		{name: "http error uses heuristic", responder: httpmock.NewStringResponder(500, `{"error":{"message":"down"}}`), hint: domain.HintMeme, vt: domain.VisualCachedTemplate},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := newMockedLabeler(t, tt.responder)
			c := NewClassifier(l, nil, nil)
			got := c.Classify(context.Background(), slides, "mornings")
			assert.Equal(t, tt.hint, got[2].ContentTypeHint)
			assert.Equal(t, tt.vt, got[2].VisualType)
			assert.Equal(t, 1, httpmock.GetTotalCallCount())
		})
	}
}

func TestParseLabel(t *testing.T) {
	label, err := parseLabel("INFOGRAPHIC")
	require.NoError(t, err)
	assert.Equal(t, domain.HintInfographic, label.Hint)

	label, err = parseLabel("none")
	require.NoError(t, err)
	assert.Empty(t, label.Hint)

	_, err = parseLabel("I think it is a meme")
	assert.ErrorIs(t, err, errUnrecognizedLabel)
}
