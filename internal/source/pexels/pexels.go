// Package pexels locates stock photos through the Pexels search API.
package pexels

import (
	"context"
	"fmt"
	"strings"

	"github.com/timmy/carousel/internal/domain"
	"github.com/timmy/carousel/internal/source"
)

const (
	Name           = "pexels"
	defaultBaseURL = "https://api.pexels.com/v1"
	defaultPerPage = 5
)

// Config holds Pexels API settings.
type Config struct {
	APIKey  string
	BaseURL string
	PerPage int
}

// Source implements source.Source for Pexels.
type Source struct {
	fetcher *source.HTTPFetcher
	apiKey  string
	baseURL string
	perPage int
}

// New creates a Pexels source sharing fetcher's HTTP client.
func New(cfg Config, fetcher *source.HTTPFetcher) (*Source, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("pexels api key is required")
	}
	baseURL := strings.TrimSuffix(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	perPage := cfg.PerPage
	if perPage <= 0 {
		perPage = defaultPerPage
	}
	return &Source{fetcher: fetcher, apiKey: cfg.APIKey, baseURL: baseURL, perPage: perPage}, nil
}

// Name returns the registry name.
func (s *Source) Name() string { return Name }

type searchResponse struct {
	Photos []struct {
		ID     int64 `json:"id"`
		Width  int   `json:"width"`
		Height int   `json:"height"`
		Src    struct {
			Large2x string `json:"large2x"`
			Large   string `json:"large"`
		} `json:"src"`
	} `json:"photos"`
	Error string `json:"error,omitempty"`
}

// Locate searches Pexels and returns large photo URLs.
func (s *Source) Locate(ctx context.Context, q source.Query) ([]string, error) {
	if strings.TrimSpace(q.Terms) == "" {
		return nil, domain.ErrNoCandidates
	}
	perPage := s.perPage
	if q.Limit > 0 && q.Limit < perPage {
		perPage = q.Limit
	}

	var result searchResponse
	endpoint := s.baseURL + "/search"
	resp, err := s.fetcher.Client().R().
		SetContext(ctx).
		SetHeader("Authorization", s.apiKey).
		SetHeader("Accept", "application/json").
		SetQueryParams(map[string]string{
			"query":       q.Terms,
			"per_page":    fmt.Sprint(perPage),
			"orientation": "square",
		}).
		SetResult(&result).
		Get(endpoint)
	if err != nil {
		return nil, &domain.FetchError{Source: Name, URL: endpoint, Err: err}
	}
	if resp.StatusCode() < 200 || resp.StatusCode() >= 300 {
		return nil, &domain.FetchError{Source: Name, URL: endpoint, StatusCode: resp.StatusCode()}
	}

	urls := make([]string, 0, len(result.Photos))
	for _, p := range result.Photos {
		u := p.Src.Large2x
		if u == "" {
			u = p.Src.Large
		}
		if u != "" {
			urls = append(urls, u)
		}
	}
	if len(urls) == 0 {
		return nil, domain.ErrNoCandidates
	}
	return urls, nil
}

// Download fetches a located photo.
func (s *Source) Download(ctx context.Context, url string) ([]byte, error) {
	return s.fetcher.Fetch(ctx, Name, url)
}
