package service

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"strings"
	"unicode"

	"github.com/timmy/carousel/internal/domain"
	"github.com/timmy/carousel/internal/logger"
	"github.com/timmy/carousel/internal/metrics"
)

// Issue codes reported by the validator.
const (
	CodeTextTooLong      = "text_too_long"
	CodeEmptyText        = "empty_text"
	CodeFormulaicPhrase  = "formulaic_phrase"
	CodeExclamationRun   = "exclamation_run"
	CodeExclamationCount = "exclamation_count"
	CodeAllCapsSpan      = "all_caps_span"
	CodeAllCapsWord      = "all_caps_word"
	CodeVisualCramped    = "visual_cramped"
	CodeTextTooThin      = "text_too_thin"
	CodeHookTooShort     = "hook_too_short"
)

const (
	maxExclamations = 3
	capsSpanWords   = 3
	capsWordLetters = 5
)

// issueWeight is the score penalty of one issue.
type issueWeight struct {
	naturalness float64
	structural  float64
}

var issueWeights = map[string]issueWeight{
	CodeTextTooLong:      {structural: 20},
	CodeEmptyText:        {structural: 25},
	CodeFormulaicPhrase:  {naturalness: 10},
	CodeExclamationRun:   {naturalness: 6},
	CodeExclamationCount: {naturalness: 4},
	CodeAllCapsSpan:      {naturalness: 6},
	CodeAllCapsWord:      {naturalness: 2},
	CodeVisualCramped:    {structural: 8},
	CodeTextTooThin:      {structural: 4},
	CodeHookTooShort:     {structural: 2},
}

var exclamationRun = regexp.MustCompile(`!{2,}`)

// ValidatorConfig holds per-role limits and the phrase deny-list.
type ValidatorConfig struct {
	HookLimit    int
	BodyLimit    int
	CTALimit     int
	DenyList     []string
	CrampedRatio float64
	ThinText     int
	HookMin      int
}

func (c *ValidatorConfig) applyDefaults() {
	if c.HookLimit <= 0 {
		c.HookLimit = 150
	}
	if c.BodyLimit <= 0 {
		c.BodyLimit = 350
	}
	if c.CTALimit <= 0 {
		c.CTALimit = 180
	}
	if c.CrampedRatio <= 0 || c.CrampedRatio > 1 {
		c.CrampedRatio = 0.9
	}
	if c.ThinText <= 0 {
		c.ThinText = 20
	}
	if c.HookMin <= 0 {
		c.HookMin = 30
	}
}

// Validator scores a finished slide set and gates acceptance.
type Validator struct {
	cfg     ValidatorConfig
	deny    []string
	metrics *metrics.PipelineMetrics
}

// NewValidator creates a validator. Deny-list phrases match case-insensitively
// on word boundaries.
func NewValidator(cfg ValidatorConfig, m *metrics.PipelineMetrics) *Validator {
	cfg.applyDefaults()
	deny := make([]string, 0, len(cfg.DenyList))
	for _, p := range cfg.DenyList {
		if p = normalizeText(strings.TrimSpace(p)); p != "" {
			deny = append(deny, p)
		}
	}
	return &Validator{cfg: cfg, deny: deny, metrics: m}
}

// Limit returns the maximum rune count for a role.
func (v *Validator) Limit(role domain.SlideRole) int {
	switch role {
	case domain.SlideRoleHook:
		return v.cfg.HookLimit
	case domain.SlideRoleCTA:
		return v.cfg.CTALimit
	default:
		return v.cfg.BodyLimit
	}
}

// Validate checks every slide and computes the scores.
// Parameters:
//   - ctx: carries the request logger.
//   - slides: slides with roles assigned.
//   - assets: resolved assets by slide index; nil means no slide has a visual.
//
// Returns:
//   - *domain.ValidationResult: issues for every slide (possibly empty) and scores.
func (v *Validator) Validate(ctx context.Context, slides []domain.Slide, assets map[int]domain.ResolvedAsset) *domain.ValidationResult {
	res := &domain.ValidationResult{
		Slides:      make(map[int][]domain.Issue, len(slides)),
		Naturalness: 100,
		Structural:  100,
	}

	for _, s := range slides {
		var asset *domain.ResolvedAsset
		if a, ok := assets[s.Index]; ok && a.HasAsset() {
			asset = &a
		}
		issues := v.ValidateSlide(s, asset)
		res.Slides[s.Index] = issues
		for _, is := range issues {
			w := issueWeights[is.Code]
			res.Naturalness -= w.naturalness
			res.Structural -= w.structural
			v.metrics.RecordIssue(string(is.Severity), is.Code)
		}
	}
	res.Naturalness = math.Max(0, res.Naturalness)
	res.Structural = math.Max(0, res.Structural)

	accepted := res.Accepted()
	v.metrics.RecordValidation(accepted)
	logger.CtxInfo(ctx, "Validation finished: accepted=%t, errors=%d, warnings=%d, info=%d, naturalness=%.0f, structural=%.0f",
		accepted,
		res.CountBySeverity(domain.SeverityError),
		res.CountBySeverity(domain.SeverityWarning),
		res.CountBySeverity(domain.SeverityInfo),
		res.Naturalness, res.Structural)
	return res
}

// ValidateSlide runs every per-slide check. asset is nil when the slide has
// no visual.
func (v *Validator) ValidateSlide(s domain.Slide, asset *domain.ResolvedAsset) []domain.Issue {
	issues := make([]domain.Issue, 0)
	add := func(sev domain.Severity, code, format string, args ...interface{}) {
		issues = append(issues, domain.Issue{
			SlideIndex: s.Index,
			Severity:   sev,
			Code:       code,
			Message:    fmt.Sprintf(format, args...),
		})
	}

	text := s.PlainText()
	n := s.CharCount()
	limit := v.Limit(s.Role)

	if n == 0 {
		add(domain.SeverityError, CodeEmptyText, "slide has no text")
		return issues
	}
	if n > limit {
		add(domain.SeverityError, CodeTextTooLong, "%d characters exceeds the %s limit of %d", n, s.Role, limit)
	}

	lower := normalizeText(text)
	for _, phrase := range v.deny {
		if containsTerm(lower, phrase) {
			add(domain.SeverityWarning, CodeFormulaicPhrase, "formulaic phrase %q", phrase)
		}
	}

	if runs := exclamationRun.FindAllString(text, -1); len(runs) > 0 {
		add(domain.SeverityWarning, CodeExclamationRun, "repeated exclamation marks %q", runs[0])
	}
	if c := strings.Count(text, "!"); c > maxExclamations {
		add(domain.SeverityInfo, CodeExclamationCount, "%d exclamation marks", c)
	}

	for _, span := range capsSpans(text) {
		if len(span) >= capsSpanWords {
			add(domain.SeverityWarning, CodeAllCapsSpan, "%d consecutive ALL-CAPS words: %q", len(span), strings.Join(span, " "))
			continue
		}
		for _, w := range span {
			if letterCount(w) >= capsWordLetters {
				add(domain.SeverityInfo, CodeAllCapsWord, "ALL-CAPS word %q", w)
			}
		}
	}

	if asset != nil && n <= limit {
		cramped := int(math.Ceil(float64(limit) * v.cfg.CrampedRatio))
		if n >= cramped {
			add(domain.SeverityWarning, CodeVisualCramped, "%d characters next to a visual, keep under %d", n, cramped)
		}
	}
	if asset != nil && s.Role == domain.SlideRoleBody && n < v.cfg.ThinText {
		add(domain.SeverityInfo, CodeTextTooThin, "only %d characters to support the visual", n)
	}
	if s.Role == domain.SlideRoleHook && n < v.cfg.HookMin {
		add(domain.SeverityInfo, CodeHookTooShort, "hook has only %d characters", n)
	}

	return issues
}

// capsSpans groups consecutive ALL-CAPS words. A word qualifies when it has
// at least two letters and none of them is lowercase.
func capsSpans(text string) [][]string {
	var spans [][]string
	var cur []string
	for _, f := range strings.Fields(text) {
		w := strings.TrimFunc(f, func(r rune) bool { return !unicode.IsLetter(r) && !unicode.IsDigit(r) })
		if isCapsWord(w) {
			cur = append(cur, w)
			continue
		}
		if len(cur) > 0 {
			spans = append(spans, cur)
			cur = nil
		}
	}
	if len(cur) > 0 {
		spans = append(spans, cur)
	}
	return spans
}

func isCapsWord(w string) bool {
	letters := 0
	for _, r := range w {
		if unicode.IsLetter(r) {
			if !unicode.IsUpper(r) {
				return false
			}
			letters++
		}
	}
	return letters >= 2
}

func letterCount(w string) int {
	n := 0
	for _, r := range w {
		if unicode.IsLetter(r) {
			n++
		}
	}
	return n
}

// normalizeText lowercases text and folds typographic apostrophes.
func normalizeText(s string) string {
	return strings.ToLower(strings.NewReplacer("’", "'", "‘", "'").Replace(s))
}
