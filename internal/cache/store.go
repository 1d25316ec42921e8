// Package cache implements the local asset store: committed image files,
// their manifest, and the pre-warmed template floor.
package cache

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/timmy/carousel/internal/catalog"
	"github.com/timmy/carousel/internal/domain"
	"github.com/timmy/carousel/internal/imaging"
	"github.com/timmy/carousel/internal/logger"
	"github.com/timmy/carousel/internal/metrics"
	"golang.org/x/sync/singleflight"
)

const (
	assetsDir    = "assets"
	templatesDir = "templates"
	tmpDir       = "tmp"
	manifestName = "manifest.json"
)

// Downloader fetches raw bytes for a URL. Used for pre-warm and stale refresh.
type Downloader interface {
	Download(ctx context.Context, url string) ([]byte, error)
}

// Options configures a Store.
type Options struct {
	Dir               string
	MaxAge            time.Duration
	MinWidth          int
	MinHeight         int
	PlaceholderWidth  int
	PlaceholderHeight int
	PrewarmTimeout    time.Duration
	RefreshTimeout    time.Duration
	PrewarmWorkers    int
	SpillDir          string
	Now               func() time.Time
}

func (o *Options) applyDefaults() {
	if o.MinWidth == 0 {
		o.MinWidth = imaging.DefaultMinWidth
	}
	if o.MinHeight == 0 {
		o.MinHeight = imaging.DefaultMinHeight
	}
	if o.PlaceholderWidth < o.MinWidth {
		o.PlaceholderWidth = 1080
	}
	if o.PlaceholderHeight < o.MinHeight {
		o.PlaceholderHeight = 1080
	}
	if o.PrewarmTimeout <= 0 {
		o.PrewarmTimeout = 2 * time.Minute
	}
	if o.RefreshTimeout <= 0 {
		o.RefreshTimeout = 30 * time.Second
	}
	if o.PrewarmWorkers <= 0 {
		o.PrewarmWorkers = 4
	}
	if o.SpillDir == "" {
		o.SpillDir = os.TempDir()
	}
	if o.Now == nil {
		o.Now = time.Now
	}
}

// Deps are the collaborators of a Store. Manifest defaults to a FileManifest
// inside Dir; Fetcher and Metrics may be nil.
type Deps struct {
	Manifest Manifest
	Catalog  *catalog.Catalog
	Fetcher  Downloader
	Metrics  *metrics.PipelineMetrics
}

// Hit is a cache entry together with its absolute file path.
type Hit struct {
	Entry domain.CacheEntry
	Path  string
	Stale bool
}

// CommitRequest describes bytes to be persisted under a key.
type CommitRequest struct {
	Key       string
	Kind      domain.EntryKind
	Hint      string
	SourceURL string
	Data      []byte
}

// Store is the on-disk asset cache. Readers use an RWMutex-guarded in-memory
// index; every mutation (file rename + manifest write) is serialized by writeMu.
type Store struct {
	opts     Options
	manifest Manifest
	catalog  *catalog.Catalog
	fetcher  Downloader
	metrics  *metrics.PipelineMetrics

	mu    sync.RWMutex
	index map[string]domain.CacheEntry

	writeMu sync.Mutex
	warmMu  sync.Mutex
	warmed  atomic.Bool

	group     singleflight.Group
	bgCtx     context.Context
	bgCancel  context.CancelFunc
	closeMu   sync.RWMutex
	closed    bool
	refreshWG sync.WaitGroup
}

// Open creates the directory layout, removes leftover temp files and loads
// the manifest into memory.
// Parameters:
//   - ctx: context for the manifest load.
//   - opts: store options; Dir is required.
//   - deps: collaborators; Catalog is required.
//
// Returns:
//   - *Store: ready store; templates are unavailable until PreWarm succeeds.
//   - error: non-nil if the layout cannot be created or the manifest is unreadable.
func Open(ctx context.Context, opts Options, deps Deps) (*Store, error) {
	if opts.Dir == "" {
		return nil, fmt.Errorf("cache dir is required")
	}
	if deps.Catalog == nil {
		return nil, fmt.Errorf("template catalog is required")
	}
	opts.applyDefaults()

	for _, d := range []string{assetsDir, templatesDir, tmpDir} {
		if err := os.MkdirAll(filepath.Join(opts.Dir, d), 0o755); err != nil {
			return nil, &domain.CacheError{Op: "mkdir", Key: d, Err: err}
		}
	}
	if err := cleanTmp(filepath.Join(opts.Dir, tmpDir)); err != nil {
		return nil, &domain.CacheError{Op: "clean", Key: tmpDir, Err: err}
	}

	manifest := deps.Manifest
	if manifest == nil {
		manifest = NewFileManifest(filepath.Join(opts.Dir, manifestName))
	}
	entries, err := manifest.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load manifest: %w", err)
	}

	bgCtx, cancel := context.WithCancel(context.Background())
	s := &Store{
		opts:     opts,
		manifest: manifest,
		catalog:  deps.Catalog,
		fetcher:  deps.Fetcher,
		metrics:  deps.Metrics,
		index:    make(map[string]domain.CacheEntry, len(entries)),
		bgCtx:    bgCtx,
		bgCancel: cancel,
	}
	for _, e := range entries {
		if e.Status == domain.EntryStatusValid {
			s.index[e.Key] = e
		}
	}
	s.publishCounts()

	logger.CtxInfo(ctx, "Cache store opened: dir=%s, entries=%d", opts.Dir, len(s.index))
	return s, nil
}

func cleanTmp(dir string) error {
	items, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	for _, it := range items {
		if err := os.RemoveAll(filepath.Join(dir, it.Name())); err != nil {
			return err
		}
	}
	return nil
}

// URLKey returns the cache key of a fetched asset: md5 hex of its URL.
func URLKey(url string) string {
	sum := md5.Sum([]byte(url))
	return hex.EncodeToString(sum[:])
}

var unsafeKeyChars = regexp.MustCompile(`[^a-zA-Z0-9_-]+`)

func relPath(kind domain.EntryKind, key, ext string) string {
	if kind == domain.EntryKindTemplate {
		return filepath.Join(templatesDir, unsafeKeyChars.ReplaceAllString(key, "_")+ext)
	}
	prefix := "00"
	if len(key) >= 2 {
		prefix = key[:2]
	}
	return filepath.Join(assetsDir, prefix, key+ext)
}

// Path returns the absolute path of an entry's file.
func (s *Store) Path(e domain.CacheEntry) string {
	return filepath.Join(s.opts.Dir, e.Path)
}

func (s *Store) get(key string) (domain.CacheEntry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.index[key]
	return e, ok
}

// Lookup returns the committed entry for a fetched URL. A stale entry is still
// returned, and one asynchronous refresh is scheduled for it.
func (s *Store) Lookup(ctx context.Context, url string) (Hit, bool) {
	key := URLKey(url)
	e, ok := s.get(key)
	if ok {
		if _, err := os.Stat(s.Path(e)); err != nil {
			logger.CtxWarn(ctx, "Cached file missing, dropping entry: key=%s, err=%v", key, err)
			s.forget(ctx, key)
			ok = false
		}
	}
	if !ok {
		s.metrics.RecordCacheLookup(metrics.LookupMiss)
		return Hit{}, false
	}

	hit := Hit{Entry: e, Path: s.Path(e)}
	if e.IsStale(s.opts.Now(), s.opts.MaxAge) {
		hit.Stale = true
		s.metrics.RecordCacheLookup(metrics.LookupStale)
		s.scheduleRefresh(e)
		return hit, true
	}
	s.metrics.RecordCacheLookup(metrics.LookupHit)
	return hit, true
}

// Commit validates data and persists it under req.Key. The file is written to
// tmp/, fsynced, re-validated from disk and atomically renamed into place
// before the manifest records it.
// Returns a *domain.ValidationError for bad image bytes, a *domain.CacheError
// for disk failures, or ctx.Err() if cancelled before the rename.
func (s *Store) Commit(ctx context.Context, req CommitRequest) (domain.CacheEntry, error) {
	info, err := imaging.Inspect(req.Data, s.opts.MinWidth, s.opts.MinHeight)
	if err != nil {
		return domain.CacheEntry{}, err
	}

	tmp, err := s.writeTemp(req.Key, info.Extension(), req.Data)
	if err != nil {
		return domain.CacheEntry{}, err
	}
	if _, err := imaging.InspectFile(tmp, s.opts.MinWidth, s.opts.MinHeight); err != nil {
		os.Remove(tmp)
		return domain.CacheEntry{}, &domain.CacheError{Op: "verify", Key: req.Key, Err: err}
	}
	if err := ctx.Err(); err != nil {
		os.Remove(tmp)
		return domain.CacheEntry{}, err
	}

	entry := domain.CacheEntry{
		Key:          req.Key,
		Kind:         req.Kind,
		Hint:         req.Hint,
		Path:         relPath(req.Kind, req.Key, info.Extension()),
		SourceURL:    req.SourceURL,
		DownloadedAt: s.opts.Now().UTC(),
		Size:         info.Size,
		Format:       info.Format,
		Width:        info.Width,
		Height:       info.Height,
		Status:       domain.EntryStatusValid,
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	final := s.Path(entry)
	if err := os.MkdirAll(filepath.Dir(final), 0o755); err != nil {
		os.Remove(tmp)
		return domain.CacheEntry{}, &domain.CacheError{Op: "mkdir", Key: req.Key, Err: err}
	}
	// a file already at final belongs to the committed entry and must
	// survive a failed manifest write
	backup, err := preserve(final, tmp+".prev")
	if err != nil {
		os.Remove(tmp)
		return domain.CacheEntry{}, &domain.CacheError{Op: "backup", Key: req.Key, Err: err}
	}
	restore := func() {
		if backup == "" {
			os.Remove(final)
			return
		}
		if err := os.Rename(backup, final); err != nil {
			logger.CtxError(ctx, "Failed to restore previous file: key=%s, err=%v", req.Key, err)
		}
	}

	if err := os.Rename(tmp, final); err != nil {
		os.Remove(tmp)
		if backup != "" {
			os.Remove(backup)
		}
		return domain.CacheEntry{}, &domain.CacheError{Op: "rename", Key: req.Key, Err: err}
	}

	// the rename is the commit point, the manifest write must not be cancelled
	if err := s.manifest.Put(context.WithoutCancel(ctx), entry); err != nil {
		restore()
		return domain.CacheEntry{}, &domain.CacheError{Op: "manifest", Key: req.Key, Err: err}
	}
	if backup != "" {
		os.Remove(backup)
	}

	s.mu.Lock()
	prev, had := s.index[entry.Key]
	s.index[entry.Key] = entry
	s.mu.Unlock()
	if had && prev.Path != entry.Path {
		os.Remove(s.Path(prev))
	}
	s.publishCounts()

	return entry, nil
}

// preserve keeps a second name for the file at path so it can be put back
// after path is replaced. It returns "" when path does not exist.
func preserve(path, backup string) (string, error) {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", nil
		}
		return "", err
	}
	if err := os.Link(path, backup); err == nil {
		return backup, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(backup, data, 0o644); err != nil {
		os.Remove(backup)
		return "", err
	}
	return backup, nil
}

func (s *Store) writeTemp(key, ext string, data []byte) (string, error) {
	f, err := os.CreateTemp(filepath.Join(s.opts.Dir, tmpDir), unsafeKeyChars.ReplaceAllString(key, "_")+"-*"+ext)
	if err != nil {
		return "", &domain.CacheError{Op: "create", Key: key, Err: err}
	}
	name := f.Name()
	fail := func(op string, err error) (string, error) {
		f.Close()
		os.Remove(name)
		return "", &domain.CacheError{Op: op, Key: key, Err: err}
	}
	if _, err := f.Write(data); err != nil {
		return fail("write", err)
	}
	if err := f.Sync(); err != nil {
		return fail("fsync", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(name)
		return "", &domain.CacheError{Op: "close", Key: key, Err: err}
	}
	return name, nil
}

// Spill writes bytes to a throwaway file outside the store. Used when a
// fetched asset cannot be committed; the file is never recorded.
func (s *Store) Spill(data []byte) (string, error) {
	info, err := imaging.Inspect(data, s.opts.MinWidth, s.opts.MinHeight)
	if err != nil {
		return "", err
	}
	f, err := os.CreateTemp(s.opts.SpillDir, "carousel-spill-*"+info.Extension())
	if err != nil {
		return "", fmt.Errorf("failed to create spill file: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", fmt.Errorf("failed to write spill file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", fmt.Errorf("failed to close spill file: %w", err)
	}
	return f.Name(), nil
}

// forget drops an entry whose file disappeared.
func (s *Store) forget(ctx context.Context, key string) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	// a commit may have replaced the file while this caller waited
	if e, ok := s.get(key); ok {
		if _, err := os.Stat(s.Path(e)); err == nil {
			return
		}
	}

	s.mu.Lock()
	delete(s.index, key)
	s.mu.Unlock()
	if err := s.manifest.Delete(context.WithoutCancel(ctx), key); err != nil {
		logger.CtxWarn(ctx, "Failed to drop manifest entry: key=%s, err=%v", key, err)
	}
	s.publishCounts()
}

// Entries returns a snapshot of all committed entries ordered by key.
func (s *Store) Entries() []domain.CacheEntry {
	s.mu.RLock()
	out := make([]domain.CacheEntry, 0, len(s.index))
	for _, e := range s.index {
		out = append(out, e)
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// Prune deletes fetched entries downloaded more than olderThan ago.
// Templates are never pruned.
func (s *Store) Prune(ctx context.Context, olderThan time.Duration) (int, error) {
	if olderThan <= 0 {
		return 0, fmt.Errorf("prune age must be positive, got %s", olderThan)
	}
	cutoff := s.opts.Now().Add(-olderThan)

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	var victims []domain.CacheEntry
	s.mu.RLock()
	for _, e := range s.index {
		if e.Kind == domain.EntryKindFetched && e.DownloadedAt.Before(cutoff) {
			victims = append(victims, e)
		}
	}
	s.mu.RUnlock()
	if len(victims) == 0 {
		return 0, nil
	}

	keys := make([]string, len(victims))
	for i, e := range victims {
		keys[i] = e.Key
	}
	if err := s.manifest.Delete(ctx, keys...); err != nil {
		return 0, &domain.CacheError{Op: "prune", Key: fmt.Sprintf("%d entries", len(keys)), Err: err}
	}

	s.mu.Lock()
	for _, k := range keys {
		delete(s.index, k)
	}
	s.mu.Unlock()

	for _, e := range victims {
		if err := os.Remove(s.Path(e)); err != nil && !errors.Is(err, os.ErrNotExist) {
			logger.CtxWarn(ctx, "Failed to remove pruned file: key=%s, err=%v", e.Key, err)
		}
	}
	s.publishCounts()

	logger.With(logger.Fields{logger.FieldComponent: "cache"}).WithCount(len(keys)).
		Info(ctx, "Pruned fetched entries older than %s", olderThan)
	return len(keys), nil
}

func (s *Store) publishCounts() {
	if s.metrics == nil {
		return
	}
	counts := map[domain.EntryKind]int{domain.EntryKindTemplate: 0, domain.EntryKindFetched: 0}
	s.mu.RLock()
	for _, e := range s.index {
		counts[e.Kind]++
	}
	s.mu.RUnlock()
	for k, n := range counts {
		s.metrics.SetCacheEntries(string(k), n)
	}
}

// scheduleRefresh re-downloads a stale fetched entry in the background.
// Concurrent refreshes of the same key collapse into one.
func (s *Store) scheduleRefresh(e domain.CacheEntry) {
	if s.fetcher == nil || e.SourceURL == "" {
		return
	}

	s.closeMu.RLock()
	defer s.closeMu.RUnlock()
	if s.closed {
		return
	}
	s.refreshWG.Add(1)

	go func() {
		defer s.refreshWG.Done()
		_, _, _ = s.group.Do(e.Key, func() (interface{}, error) {
			return nil, s.refresh(e)
		})
	}()
}

func (s *Store) refresh(e domain.CacheEntry) error {
	ctx, cancel := context.WithTimeout(s.bgCtx, s.opts.RefreshTimeout)
	defer cancel()
	ctx = logger.WithFields(ctx, logger.Fields{
		logger.FieldComponent: "cache",
		logger.FieldCacheKey:  e.Key,
	})

	// another refresh may have landed while this one was queued
	if cur, ok := s.get(e.Key); ok && !cur.IsStale(s.opts.Now(), s.opts.MaxAge) {
		return nil
	}

	data, err := s.fetcher.Download(ctx, e.SourceURL)
	if err != nil {
		logger.CtxWarn(ctx, "Stale refresh failed, keeping old entry: %v", err)
		return err
	}
	if _, err := s.Commit(ctx, CommitRequest{
		Key:       e.Key,
		Kind:      e.Kind,
		Hint:      e.Hint,
		SourceURL: e.SourceURL,
		Data:      data,
	}); err != nil {
		logger.CtxWarn(ctx, "Stale refresh rejected, keeping old entry: %v", err)
		return err
	}
	logger.CtxDebug(ctx, "Refreshed stale entry")
	return nil
}

// Close stops background refreshes and waits for in-flight ones.
func (s *Store) Close() error {
	s.closeMu.Lock()
	if s.closed {
		s.closeMu.Unlock()
		return nil
	}
	s.closed = true
	s.closeMu.Unlock()

	s.bgCancel()
	s.refreshWG.Wait()
	return nil
}
