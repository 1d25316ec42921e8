package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotWarmed is returned by template lookups before the first successful pre-warm.
	ErrNotWarmed = errors.New("cache store has not been pre-warmed")

	// ErrNoAsset means the template floor had nothing to offer. Given a successful
	// pre-warm this is unreachable and indicates a configuration defect.
	ErrNoAsset = errors.New("no asset available")

	// ErrNoCandidates is returned by a source that found nothing for a query.
	ErrNoCandidates = errors.New("no candidates found")

	// ErrInvalidSlides is returned for slide sets with broken indices or roles.
	ErrInvalidSlides = errors.New("invalid slides")
)

// FetchError is a network failure, non-2xx response, or timeout while
// downloading or locating an asset. It never surfaces past the resolver.
type FetchError struct {
	Source     string
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s from %s: HTTP %d", e.URL, e.Source, e.StatusCode)
	}
	return fmt.Sprintf("fetch %s from %s: %v", e.URL, e.Source, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// ValidationError is an asset that failed size, signature or dimension checks.
type ValidationError struct {
	Reason string
	Width  int
	Height int
	Size   int64
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid asset: %s", e.Reason)
}

// CacheError is a local disk failure while persisting an asset.
type CacheError struct {
	Op  string
	Key string
	Err error
}

func (e *CacheError) Error() string {
	return fmt.Sprintf("cache %s %s: %v", e.Op, e.Key, e.Err)
}

func (e *CacheError) Unwrap() error { return e.Err }

// IsValidationError reports whether err wraps a *ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsCacheError reports whether err wraps a *CacheError.
func IsCacheError(err error) bool {
	var ce *CacheError
	return errors.As(err, &ce)
}
