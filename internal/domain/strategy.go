package domain

// VisualType is the tagged variant describing what kind of visual a slide gets.
type VisualType string

const (
	VisualTextOnly       VisualType = "TEXT_ONLY"
	VisualCachedTemplate VisualType = "CACHED_TEMPLATE"
	VisualFetchedImage   VisualType = "FETCHED_IMAGE"
	VisualInfographic    VisualType = "INFOGRAPHIC"
)

// Content type hints used to pick a source priority list and a template category.
const (
	HintMeme        = "meme"
	HintNews        = "news"
	HintScene       = "scene"
	HintInfographic = "infographic"
)

// KnownHints lists every template category the cache store pre-warms.
var KnownHints = []string{HintMeme, HintNews, HintScene, HintInfographic}

// Rationale values with special meaning.
const (
	RationaleHookPolicy           = "hook_text_only_policy"
	RationaleCTAPolicy            = "cta_text_only_policy"
	RationaleClassificationFailed = "classification_failed"
)

// VisualStrategy is the per-slide decision of whether and what kind of image to use.
// Computed fresh on every pass and never persisted.
type VisualStrategy struct {
	SlideIndex      int        `json:"slide_index"`
	VisualType      VisualType `json:"visual_type"`
	Skip            bool       `json:"skip"`
	ContentTypeHint string     `json:"content_type_hint,omitempty"`
	Rationale       string     `json:"rationale"`
}

// NeedsAsset reports whether the strategy requires a resolved asset.
func (v VisualStrategy) NeedsAsset() bool {
	return !v.Skip && v.VisualType != VisualTextOnly
}

// SameTarget reports whether two strategies would resolve the same kind of asset.
func (v VisualStrategy) SameTarget(o VisualStrategy) bool {
	return v.VisualType == o.VisualType && v.ContentTypeHint == o.ContentTypeHint && v.Skip == o.Skip
}

// TextOnly builds a TEXT_ONLY strategy for a slide.
func TextOnly(index int, rationale string) VisualStrategy {
	return VisualStrategy{
		SlideIndex: index,
		VisualType: VisualTextOnly,
		Skip:       true,
		Rationale:  rationale,
	}
}
