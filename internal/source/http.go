package source

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/timmy/carousel/internal/domain"
)

// HTTPConfig configures the shared HTTP fetcher.
type HTTPConfig struct {
	Timeout   time.Duration
	UserAgent string
	MaxBytes  int64
}

// HTTPFetcher downloads images over HTTP. It is shared by every networked
// source and by the cache store for pre-warm and refresh.
type HTTPFetcher struct {
	client   *resty.Client
	maxBytes int64
}

// NewHTTPFetcher creates a fetcher backed by a resty client.
func NewHTTPFetcher(cfg HTTPConfig) *HTTPFetcher {
	client := resty.New()
	if cfg.Timeout > 0 {
		client.SetTimeout(cfg.Timeout)
	}
	if cfg.UserAgent != "" {
		client.SetHeader("User-Agent", cfg.UserAgent)
	}
	client.SetHeader("Accept", "image/*,*/*;q=0.8")
	client.SetRedirectPolicy(resty.FlexibleRedirectPolicy(5))

	return &HTTPFetcher{client: client, maxBytes: cfg.MaxBytes}
}

// Client exposes the underlying resty client so API sources share its transport.
func (f *HTTPFetcher) Client() *resty.Client {
	return f.client
}

// Download fetches url and returns its body.
func (f *HTTPFetcher) Download(ctx context.Context, url string) ([]byte, error) {
	return f.Fetch(ctx, "http", url)
}

// Fetch downloads url on behalf of a named source.
// The body is read up to MaxBytes and abandoned beyond it.
// Returns a *domain.FetchError for transport failures, timeouts, oversized
// bodies and non-2xx statuses.
func (f *HTTPFetcher) Fetch(ctx context.Context, sourceName, url string) ([]byte, error) {
	req := f.client.R().SetContext(ctx)
	if f.maxBytes > 0 {
		req.SetResponseBodyLimit(int(f.maxBytes))
	}
	resp, err := req.Get(url)
	if err != nil {
		if errors.Is(err, resty.ErrResponseBodyTooLarge) {
			return nil, &domain.FetchError{
				Source: sourceName,
				URL:    url,
				Err:    fmt.Errorf("%w: limit %d bytes", err, f.maxBytes),
			}
		}
		if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
			return nil, &domain.FetchError{Source: sourceName, URL: url, Err: ctxErr}
		}
		return nil, &domain.FetchError{Source: sourceName, URL: url, Err: err}
	}

	if resp.StatusCode() < 200 || resp.StatusCode() >= 300 {
		return nil, &domain.FetchError{Source: sourceName, URL: url, StatusCode: resp.StatusCode()}
	}

	return resp.Body(), nil
}
