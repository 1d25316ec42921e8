package source

import (
	"context"
	"sort"
)

// Query describes what a slide needs from a source.
type Query struct {
	Hint     string   // content type hint: meme, news, scene, infographic
	Terms    string   // free-text search terms
	Keywords []string // lowercased content words used for tag matching
	Limit    int      // maximum number of candidates, 0 means source default
}

// Source locates and downloads candidate images for a query.
type Source interface {
	// Name returns the registry name used in per-hint priority lists.
	Name() string

	// Locate returns candidate URLs in preference order.
	// Parameters:
	//   - ctx: context for cancellation and deadlines.
	//   - q: query built from the slide.
	// Returns:
	//   - []string: candidate URLs, never empty on success.
	//   - error: domain.ErrNoCandidates when nothing matched, *domain.FetchError on transport failure.
	Locate(ctx context.Context, q Query) ([]string, error)

	// Download fetches the raw bytes of one located candidate.
	Download(ctx context.Context, url string) ([]byte, error)
}

// Registry maps source names to instances.
type Registry struct {
	sources map[string]Source
}

// NewRegistry creates a registry from sources; nil entries are skipped.
func NewRegistry(sources ...Source) *Registry {
	r := &Registry{sources: make(map[string]Source)}
	for _, s := range sources {
		if s != nil {
			r.sources[s.Name()] = s
		}
	}
	return r
}

// Get returns the source registered under name.
func (r *Registry) Get(name string) (Source, bool) {
	s, ok := r.sources[name]
	return s, ok
}

// Names returns the registered source names in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.sources))
	for n := range r.sources {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
