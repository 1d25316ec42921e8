package domain

import "time"

// CandidateStatus records what happened to one asset candidate.
type CandidateStatus string

const (
	CandidateFetched CandidateStatus = "fetched"
	CandidateFailed  CandidateStatus = "failed"
	CandidateInvalid CandidateStatus = "invalid"
	CandidateCached  CandidateStatus = "cached"
	CandidateStale   CandidateStatus = "stale"
	CandidateSkipped CandidateStatus = "skipped"
)

// AssetCandidate is one attempt at producing an asset for a slide.
type AssetCandidate struct {
	Source       string          `json:"source"`
	URL          string          `json:"url,omitempty"`
	TemplateKey  string          `json:"template_key,omitempty"`
	Status       CandidateStatus `json:"status"`
	Size         int64           `json:"size,omitempty"`
	DimensionsOK bool            `json:"dimensions_ok"`
	Attempt      int             `json:"attempt,omitempty"`
	Error        string          `json:"error,omitempty"`
}

// EntryKind distinguishes static templates from dynamically fetched images.
type EntryKind string

const (
	EntryKindTemplate EntryKind = "template"
	EntryKindFetched  EntryKind = "fetched"
)

// EntryStatus is the validation status of a cached file.
type EntryStatus string

const (
	EntryStatusValid   EntryStatus = "valid"
	EntryStatusInvalid EntryStatus = "invalid"
)

// CacheEntry is a committed, validated asset in the cache store.
// Only entries whose file has been fully written and validated are ever recorded.
type CacheEntry struct {
	Key          string      `gorm:"type:text;primaryKey" json:"key"`
	Kind         EntryKind   `gorm:"type:text;index:idx_cache_entries_kind" json:"kind"`
	Hint         string      `gorm:"type:text;index:idx_cache_entries_hint" json:"hint,omitempty"`
	Path         string      `gorm:"type:text;not null" json:"path"`
	SourceURL    string      `gorm:"type:text" json:"source_url,omitempty"`
	DownloadedAt time.Time   `gorm:"index:idx_cache_entries_downloaded" json:"downloaded_at"`
	Size         int64       `json:"size"`
	Format       string      `gorm:"type:text" json:"format,omitempty"`
	Width        int         `json:"width"`
	Height       int         `json:"height"`
	Status       EntryStatus `gorm:"type:text;default:valid" json:"status"`
}

// TableName returns the database table name for CacheEntry.
func (CacheEntry) TableName() string {
	return "cache_entries"
}

// IsStale reports whether the entry is older than maxAge at now.
// A non-positive maxAge disables staleness.
func (e CacheEntry) IsStale(now time.Time, maxAge time.Duration) bool {
	if maxAge <= 0 {
		return false
	}
	return now.Sub(e.DownloadedAt) > maxAge
}

// ResolvedAsset is the outcome of resolving one slide's visual strategy.
// Path is empty when the slide has no asset (TEXT_ONLY).
type ResolvedAsset struct {
	SlideIndex int              `json:"slide_index"`
	VisualType VisualType       `json:"visual_type"`
	Hint       string           `json:"hint,omitempty"`
	Path       string           `json:"path,omitempty"`
	Key        string           `json:"key,omitempty"`
	Source     string           `json:"source,omitempty"`
	SourceURL  string           `json:"source_url,omitempty"`
	FromCache  bool             `json:"from_cache"`
	Stale      bool             `json:"stale"`
	Floor      bool             `json:"floor"`
	Uncached   bool             `json:"uncached"`
	Candidates []AssetCandidate `json:"candidates,omitempty"`
}

// HasAsset reports whether a local file path was produced.
func (r ResolvedAsset) HasAsset() bool {
	return r.Path != ""
}

// NoAsset builds the result for a slide that needs no visual.
func NoAsset(index int) ResolvedAsset {
	return ResolvedAsset{SlideIndex: index, VisualType: VisualTextOnly}
}
