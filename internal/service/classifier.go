package service

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode"

	"github.com/timmy/carousel/internal/domain"
	"github.com/timmy/carousel/internal/logger"
	"github.com/timmy/carousel/internal/metrics"
	"github.com/timmy/carousel/internal/prompts"
)

// Label is a content category proposed for one slide.
// An empty Hint means the labeler found no signal.
type Label struct {
	Hint      string
	Rationale string
}

// Labeler proposes a content category for an interior slide.
type Labeler interface {
	Label(ctx context.Context, slide domain.Slide, topic string) (Label, error)
}

var (
	percentPattern   = regexp.MustCompile(`\d+(?:[.,]\d+)?\s?%`)
	currencyPattern  = regexp.MustCompile(`[$€£¥]\s?\d|\d\s?(?:usd|eur|idr|rp)\b|\brp\s?\d`)
	magnitudePattern = regexp.MustCompile(`\b\d+(?:[.,]\d+)?\s?(?:k|m|bn|x|million|billion|trillion|juta|miliar)\b`)
	ratioPattern     = regexp.MustCompile(`\b\d+\s(?:out of|in|of every)\s\d+\b`)
)

// HeuristicLabeler labels slides by keyword and pattern signals. Categories
// are checked in fixed priority order infographic, news, scene, meme; the
// first category with any signal wins.
type HeuristicLabeler struct{}

// Label implements Labeler. It never returns an error.
func (HeuristicLabeler) Label(_ context.Context, slide domain.Slide, topic string) (Label, error) {
	text := strings.ToLower(slide.PlainText())
	if t := strings.TrimSpace(topic); t != "" {
		text += " \n " + strings.ToLower(t)
	}

	if sig, ok := numericSignal(text); ok {
		return Label{Hint: domain.HintInfographic, Rationale: "numeric_content: " + sig}, nil
	}
	if kw, ok := firstTerm(text, prompts.NewsWords); ok {
		return Label{Hint: domain.HintNews, Rationale: "news_entity: " + kw}, nil
	}
	if kw, ok := firstTerm(text, prompts.SceneWords); ok {
		return Label{Hint: domain.HintScene, Rationale: "fictional_reference: " + kw}, nil
	}
	if kw, ok := firstTerm(text, prompts.EmotionWords); ok {
		return Label{Hint: domain.HintMeme, Rationale: "emotional_tone: " + kw}, nil
	}
	return Label{}, nil
}

func numericSignal(text string) (string, bool) {
	for _, p := range []*regexp.Regexp{percentPattern, currencyPattern, magnitudePattern, ratioPattern} {
		if m := p.FindString(text); m != "" {
			return strings.TrimSpace(m), true
		}
	}
	if containsDigit(text) {
		if kw, ok := firstTerm(text, prompts.DataWords); ok {
			return kw, true
		}
	}
	return "", false
}

// firstTerm returns the first term of terms found in text on word boundaries.
func firstTerm(text string, terms []string) (string, bool) {
	for _, term := range terms {
		if containsTerm(text, term) {
			return term, true
		}
	}
	return "", false
}

func containsTerm(text, term string) bool {
	for from := 0; from <= len(text)-len(term); {
		i := strings.Index(text[from:], term)
		if i < 0 {
			return false
		}
		start := from + i
		end := start + len(term)
		if boundaryBefore(text, start) && boundaryAfter(text, end) {
			return true
		}
		from = start + 1
	}
	return false
}

func boundaryBefore(text string, i int) bool {
	if i == 0 {
		return true
	}
	r := []rune(text[:i])
	return !isWordRune(r[len(r)-1])
}

func boundaryAfter(text string, i int) bool {
	if i >= len(text) {
		return true
	}
	for _, r := range text[i:] {
		return !isWordRune(r)
	}
	return true
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}

// ClassifierConfig holds configuration for the strategy classifier.
type ClassifierConfig struct {
	// LLMTimeout bounds one external labeler call.
	LLMTimeout time.Duration
}

// Classifier decides per slide whether a visual is needed and which kind.
type Classifier struct {
	heuristic  Labeler
	llm        Labeler
	llmTimeout time.Duration
	metrics    *metrics.PipelineMetrics
}

// NewClassifier creates a classifier.
// Parameters:
//   - llm: optional external labeler consulted before the heuristic; may be nil.
//   - m: metrics sink; may be nil.
//   - cfg: classifier configuration; may be nil.
//
// Returns:
//   - *Classifier: ready classifier.
func NewClassifier(llm Labeler, m *metrics.PipelineMetrics, cfg *ClassifierConfig) *Classifier {
	c := &Classifier{
		heuristic:  HeuristicLabeler{},
		llm:        llm,
		llmTimeout: 10 * time.Second,
		metrics:    m,
	}
	if cfg != nil && cfg.LLMTimeout > 0 {
		c.llmTimeout = cfg.LLMTimeout
	}
	return c
}

// Classify returns exactly one strategy per slide, keyed by slide index.
// The first and last slides are always TEXT_ONLY. Classify never fails:
// labeler errors and panics degrade to a meme template.
func (c *Classifier) Classify(ctx context.Context, slides []domain.Slide, topic string) map[int]domain.VisualStrategy {
	ctx = logger.SetComponent(ctx, "classifier")
	out := make(map[int]domain.VisualStrategy, len(slides))
	for pos, s := range slides {
		var st domain.VisualStrategy
		switch {
		case pos == 0 || s.Role == domain.SlideRoleHook:
			st = domain.TextOnly(s.Index, domain.RationaleHookPolicy)
		case pos == len(slides)-1 || s.Role == domain.SlideRoleCTA:
			st = domain.TextOnly(s.Index, domain.RationaleCTAPolicy)
		default:
			st = c.classifySlide(ctx, s, topic)
		}
		out[s.Index] = st
		c.metrics.RecordStrategy(string(st.VisualType), st.ContentTypeHint)
	}
	return out
}

func (c *Classifier) classifySlide(ctx context.Context, s domain.Slide, topic string) domain.VisualStrategy {
	if c.llm != nil {
		lctx, cancel := context.WithTimeout(ctx, c.llmTimeout)
		label, err := safeLabel(lctx, c.llm, s, topic)
		cancel()
		switch {
		case err != nil:
			logger.CtxWarn(ctx, "External labeler failed for slide %d, using heuristic: %v", s.Index, err)
		case label.Hint != "":
			return strategyFor(s.Index, label)
		}
	}

	label, err := safeLabel(ctx, c.heuristic, s, topic)
	if err != nil {
		logger.CtxError(ctx, "Heuristic labeler failed for slide %d: %v", s.Index, err)
	}
	if err != nil || label.Hint == "" {
		return domain.VisualStrategy{
			SlideIndex:      s.Index,
			VisualType:      domain.VisualCachedTemplate,
			ContentTypeHint: domain.HintMeme,
			Rationale:       domain.RationaleClassificationFailed,
		}
	}
	return strategyFor(s.Index, label)
}

// safeLabel calls l and converts a panic into an error.
func safeLabel(ctx context.Context, l Labeler, s domain.Slide, topic string) (label Label, err error) {
	defer func() {
		if r := recover(); r != nil {
			label = Label{}
			err = fmt.Errorf("labeler panic: %v", r)
		}
	}()
	return l.Label(ctx, s, topic)
}

func strategyFor(index int, label Label) domain.VisualStrategy {
	st := domain.VisualStrategy{
		SlideIndex:      index,
		ContentTypeHint: label.Hint,
		Rationale:       label.Rationale,
	}
	switch label.Hint {
	case domain.HintInfographic:
		st.VisualType = domain.VisualInfographic
	case domain.HintNews, domain.HintScene:
		st.VisualType = domain.VisualFetchedImage
	default:
		st.VisualType = domain.VisualCachedTemplate
		st.ContentTypeHint = domain.HintMeme
	}
	return st
}
