package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/timmy/carousel/internal/domain"
)

// Manifest persists the key -> entry mapping of committed assets.
// Implementations: FileManifest (default) and repository.ManifestRepository.
type Manifest interface {
	Load(ctx context.Context) ([]domain.CacheEntry, error)
	Put(ctx context.Context, entry domain.CacheEntry) error
	Delete(ctx context.Context, keys ...string) error
}

const manifestVersion = 1

type manifestFile struct {
	Version int                 `json:"version"`
	Entries []domain.CacheEntry `json:"entries"`
}

// FileManifest stores the manifest as a JSON document that is rewritten
// atomically (temp file + rename) on every change.
type FileManifest struct {
	path    string
	mu      sync.Mutex
	entries map[string]domain.CacheEntry
}

// NewFileManifest creates a manifest backed by the JSON file at path.
func NewFileManifest(path string) *FileManifest {
	return &FileManifest{path: path, entries: make(map[string]domain.CacheEntry)}
}

// Load reads the manifest file. A missing file is an empty manifest.
func (m *FileManifest) Load(ctx context.Context) ([]domain.CacheEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	data, err := os.ReadFile(m.path)
	if errors.Is(err, os.ErrNotExist) {
		m.entries = make(map[string]domain.CacheEntry)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}

	var f manifestFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to decode manifest %s: %w", m.path, err)
	}
	if f.Version != manifestVersion {
		return nil, fmt.Errorf("unsupported manifest version %d", f.Version)
	}

	m.entries = make(map[string]domain.CacheEntry, len(f.Entries))
	for _, e := range f.Entries {
		m.entries[e.Key] = e
	}
	return f.Entries, nil
}

// Put records or replaces an entry.
func (m *FileManifest) Put(ctx context.Context, entry domain.CacheEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	prev, had := m.entries[entry.Key]
	m.entries[entry.Key] = entry
	if err := m.flush(); err != nil {
		if had {
			m.entries[entry.Key] = prev
		} else {
			delete(m.entries, entry.Key)
		}
		return err
	}
	return nil
}

// Delete removes entries. Unknown keys are ignored.
func (m *FileManifest) Delete(ctx context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := make(map[string]domain.CacheEntry)
	for _, k := range keys {
		if e, ok := m.entries[k]; ok {
			removed[k] = e
			delete(m.entries, k)
		}
	}
	if len(removed) == 0 {
		return nil
	}
	if err := m.flush(); err != nil {
		for k, e := range removed {
			m.entries[k] = e
		}
		return err
	}
	return nil
}

// flush must be called with mu held.
func (m *FileManifest) flush() error {
	entries := make([]domain.CacheEntry, 0, len(m.entries))
	for _, e := range m.entries {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Key < entries[j].Key })

	data, err := json.MarshalIndent(manifestFile{Version: manifestVersion, Entries: entries}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode manifest: %w", err)
	}
	return writeFileAtomic(m.path, data)
}

// writeFileAtomic writes data next to path and renames it into place.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	f, err := os.CreateTemp(dir, "."+filepath.Base(path)+"-*")
	if err != nil {
		return err
	}
	tmp := f.Name()
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}
