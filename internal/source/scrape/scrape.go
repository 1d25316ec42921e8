// Package scrape locates images by parsing an image search results page.
package scrape

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/timmy/carousel/internal/domain"
	"github.com/timmy/carousel/internal/source"
	"golang.org/x/net/html"
)

const (
	Name            = "scrape"
	defaultBaseURL  = "https://www.bing.com/images/search"
	defaultMaxLinks = 8
)

// Source implements source.Source over an HTML image search page.
type Source struct {
	fetcher *source.HTTPFetcher
	baseURL string
}

// New creates a scraping source. An empty baseURL uses Bing image search.
func New(baseURL string, fetcher *source.HTTPFetcher) *Source {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Source{fetcher: fetcher, baseURL: baseURL}
}

// Name returns the registry name.
func (s *Source) Name() string { return Name }

// Locate fetches the results page for q.Terms and extracts full-size image URLs.
func (s *Source) Locate(ctx context.Context, q source.Query) ([]string, error) {
	terms := strings.TrimSpace(q.Terms)
	if terms == "" {
		return nil, domain.ErrNoCandidates
	}
	limit := q.Limit
	if limit <= 0 {
		limit = defaultMaxLinks
	}

	pageURL := fmt.Sprintf("%s?q=%s&form=HDRSC2&first=1", s.baseURL, url.QueryEscape(terms))
	resp, err := s.fetcher.Client().R().
		SetContext(ctx).
		SetHeader("Accept", "text/html").
		Get(pageURL)
	if err != nil {
		return nil, &domain.FetchError{Source: Name, URL: pageURL, Err: err}
	}
	if resp.StatusCode() < 200 || resp.StatusCode() >= 300 {
		return nil, &domain.FetchError{Source: Name, URL: pageURL, StatusCode: resp.StatusCode()}
	}

	urls, err := ExtractImageURLs(resp.Body(), limit)
	if err != nil {
		return nil, &domain.FetchError{Source: Name, URL: pageURL, Err: err}
	}
	if len(urls) == 0 {
		return nil, domain.ErrNoCandidates
	}
	return urls, nil
}

// Download fetches a located image.
func (s *Source) Download(ctx context.Context, u string) ([]byte, error) {
	return s.fetcher.Fetch(ctx, Name, u)
}

// ExtractImageURLs walks an HTML document and collects absolute image URLs.
// Result anchors carrying an "m" JSON attribute with "murl" win over plain
// <img> tags; inline data URIs and duplicates are skipped.
func ExtractImageURLs(doc []byte, limit int) ([]string, error) {
	root, err := html.Parse(bytes.NewReader(doc))
	if err != nil {
		return nil, fmt.Errorf("failed to parse html: %w", err)
	}

	var primary, fallback []string
	seen := make(map[string]bool)
	add := func(dst *[]string, u string) {
		u = strings.TrimSpace(u)
		if !strings.HasPrefix(u, "http://") && !strings.HasPrefix(u, "https://") {
			return
		}
		if seen[u] {
			return
		}
		seen[u] = true
		*dst = append(*dst, u)
	}

	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "a":
				if m := attr(n, "m"); m != "" {
					var meta struct {
						MURL string `json:"murl"`
					}
					if json.Unmarshal([]byte(m), &meta) == nil {
						add(&primary, meta.MURL)
					}
				}
			case "img":
				src := attr(n, "data-src")
				if src == "" {
					src = attr(n, "src")
				}
				add(&fallback, src)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)

	out := append(primary, fallback...)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}
