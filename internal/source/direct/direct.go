// Package direct serves fixed per-hint URL lists from configuration.
package direct

import (
	"context"
	"hash/fnv"

	"github.com/timmy/carousel/internal/domain"
	"github.com/timmy/carousel/internal/source"
)

const Name = "direct"

// Source implements source.Source over configured URLs.
type Source struct {
	fetcher *source.HTTPFetcher
	urls    map[string][]string
}

// New creates a direct source.
func New(urls map[string][]string, fetcher *source.HTTPFetcher) *Source {
	return &Source{fetcher: fetcher, urls: urls}
}

// Name returns the registry name.
func (s *Source) Name() string { return Name }

// Locate returns the configured URLs of q.Hint, rotated by a stable hash of
// the terms so different slides start at different entries.
func (s *Source) Locate(ctx context.Context, q source.Query) ([]string, error) {
	list := s.urls[q.Hint]
	if len(list) == 0 {
		return nil, domain.ErrNoCandidates
	}

	h := fnv.New32a()
	_, _ = h.Write([]byte(q.Terms))
	start := int(h.Sum32() % uint32(len(list)))

	out := make([]string, 0, len(list))
	for i := range list {
		out = append(out, list[(start+i)%len(list)])
	}
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

// Download fetches a configured URL.
func (s *Source) Download(ctx context.Context, url string) ([]byte, error) {
	return s.fetcher.Fetch(ctx, Name, url)
}
