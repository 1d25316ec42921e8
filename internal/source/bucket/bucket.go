// Package bucket serves curated assets from an S3-compatible bucket laid out
// as <prefix>/<hint>/<tagged_name>.<ext>.
package bucket

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/timmy/carousel/internal/domain"
	"github.com/timmy/carousel/internal/source"
	"github.com/timmy/carousel/internal/storage"
)

const (
	Name            = "bucket"
	listLimit       = 500
	defaultMaxBytes = 20 << 20
)

// Source implements source.Source over object storage.
type Source struct {
	store    storage.ObjectStorage
	prefix   string
	maxBytes int64
}

// New creates a bucket source.
func New(store storage.ObjectStorage, prefix string) *Source {
	return &Source{store: store, prefix: strings.Trim(prefix, "/"), maxBytes: defaultMaxBytes}
}

// Name returns the registry name.
func (s *Source) Name() string { return Name }

func (s *Source) hintPrefix(hint string) string {
	if s.prefix == "" {
		return hint + "/"
	}
	return s.prefix + "/" + hint + "/"
}

// Locate lists objects under the hint folder and ranks them by key tags.
// The returned URLs are object keys.
func (s *Source) Locate(ctx context.Context, q source.Query) ([]string, error) {
	prefix := s.hintPrefix(q.Hint)
	objects, err := s.store.List(ctx, prefix, listLimit)
	if err != nil {
		return nil, &domain.FetchError{Source: Name, URL: prefix, Err: err}
	}

	ids := make([]string, 0, len(objects))
	tags := make(map[string][]string, len(objects))
	for _, obj := range objects {
		if obj.Size == 0 || strings.HasSuffix(obj.Key, "/") {
			continue
		}
		switch strings.ToLower(path.Ext(obj.Key)) {
		case ".jpg", ".jpeg", ".png", ".gif", ".webp":
		default:
			continue
		}
		ids = append(ids, obj.Key)
		tags[obj.Key] = source.NameTokens(strings.TrimPrefix(obj.Key, prefix))
	}
	if len(ids) == 0 {
		return nil, domain.ErrNoCandidates
	}

	out := source.RankByTags(ids, tags, q.Keywords)
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

// Download reads one object.
func (s *Source) Download(ctx context.Context, key string) ([]byte, error) {
	rc, err := s.store.Download(ctx, key)
	if err != nil {
		return nil, &domain.FetchError{Source: Name, URL: key, Err: err}
	}
	defer rc.Close()

	data, err := io.ReadAll(io.LimitReader(rc, s.maxBytes+1))
	if err != nil {
		return nil, &domain.FetchError{Source: Name, URL: key, Err: err}
	}
	if int64(len(data)) > s.maxBytes {
		return nil, &domain.FetchError{Source: Name, URL: key, Err: fmt.Errorf("object exceeds %d bytes", s.maxBytes)}
	}
	return data, nil
}
