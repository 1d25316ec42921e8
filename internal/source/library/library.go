// Package library serves images from a local curated directory.
// Folder names are content hints and file names carry tags, e.g.
// <root>/meme/drake_choice.jpg.
package library

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/timmy/carousel/internal/domain"
	"github.com/timmy/carousel/internal/source"
)

const Name = "library"

type item struct {
	path string
	hint string
	tags []string
}

// Source implements source.Source over a directory tree.
type Source struct {
	root string

	once    sync.Once
	loadErr error
	byHint  map[string][]item
}

// New creates a library source rooted at root. The tree is scanned lazily on first use.
func New(root string) *Source {
	return &Source{root: root}
}

// Name returns the registry name.
func (s *Source) Name() string { return Name }

// Locate returns local file paths under q.Hint ranked by tag overlap with q.Keywords.
func (s *Source) Locate(ctx context.Context, q source.Query) ([]string, error) {
	s.once.Do(func() { s.loadErr = s.load() })
	if s.loadErr != nil {
		return nil, s.loadErr
	}

	items := s.byHint[q.Hint]
	if len(items) == 0 {
		return nil, domain.ErrNoCandidates
	}

	ids := make([]string, len(items))
	tags := make(map[string][]string, len(items))
	for i, it := range items {
		ids[i] = it.path
		tags[it.path] = it.tags
	}
	out := source.RankByTags(ids, tags, q.Keywords)
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

// Download reads a library file. Paths outside the library root are refused.
func (s *Source) Download(ctx context.Context, path string) ([]byte, error) {
	rel, err := filepath.Rel(s.root, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return nil, &domain.FetchError{Source: Name, URL: path, Err: fmt.Errorf("outside library root")}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &domain.FetchError{Source: Name, URL: path, Err: err}
	}
	return data, nil
}

// load walks the library and indexes image files by their top-level folder.
func (s *Source) load() error {
	if _, err := os.Stat(s.root); err != nil {
		return fmt.Errorf("library path %s: %w", s.root, err)
	}

	s.byHint = make(map[string][]item)
	err := filepath.Walk(s.root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		name := info.Name()
		if info.IsDir() {
			if path != s.root && strings.HasPrefix(name, ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasPrefix(name, ".") {
			return nil
		}
		switch strings.ToLower(filepath.Ext(name)) {
		case ".jpg", ".jpeg", ".png", ".gif", ".webp":
		default:
			return nil
		}

		rel, _ := filepath.Rel(s.root, path)
		parts := strings.Split(rel, string(os.PathSeparator))
		if len(parts) < 2 {
			return nil // files directly in the root have no hint
		}
		hint := strings.ToLower(parts[0])

		var tags []string
		for _, p := range parts[1:] {
			tags = append(tags, source.NameTokens(p)...)
		}
		s.byHint[hint] = append(s.byHint[hint], item{path: path, hint: hint, tags: tags})
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to walk library: %w", err)
	}

	for h := range s.byHint {
		items := s.byHint[h]
		sort.Slice(items, func(i, j int) bool { return items[i].path < items[j].path })
	}
	return nil
}
