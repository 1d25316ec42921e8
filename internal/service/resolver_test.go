package service

import (
	"context"
	"errors"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/timmy/carousel/internal/cache"
	"github.com/timmy/carousel/internal/catalog"
	"github.com/timmy/carousel/internal/domain"
	"github.com/timmy/carousel/internal/source"
	"github.com/timmy/carousel/internal/testutil"
)

type fakeSource struct {
	name      string
	urls      []string
	locateErr error
	delay     time.Duration

	mu        sync.Mutex
	data      map[string][]byte
	errs      map[string][]error
	downloads map[string]int
	locates   int

	inFlight    atomic.Int32
	maxInFlight atomic.Int32
}

func newFakeSource(name string, urls ...string) *fakeSource {
	return &fakeSource{
		name:      name,
		urls:      urls,
		data:      make(map[string][]byte),
		errs:      make(map[string][]error),
		downloads: make(map[string]int),
	}
}

func (f *fakeSource) serve(url string, data []byte) *fakeSource {
	f.data[url] = data
	return f
}

func (f *fakeSource) failFirst(url string, errs ...error) *fakeSource {
	f.errs[url] = append(f.errs[url], errs...)
	return f
}

func (f *fakeSource) downloadCount(url string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.downloads[url]
}

func (f *fakeSource) Name() string { return f.name }

func (f *fakeSource) Locate(ctx context.Context, q source.Query) ([]string, error) {
	f.mu.Lock()
	f.locates++
	f.mu.Unlock()
	if f.locateErr != nil {
		return nil, f.locateErr
	}
	if len(f.urls) == 0 {
		return nil, domain.ErrNoCandidates
	}
	return f.urls, nil
}

func (f *fakeSource) Download(ctx context.Context, url string) ([]byte, error) {
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		m := f.maxInFlight.Load()
		if n <= m || f.maxInFlight.CompareAndSwap(m, n) {
			break
		}
	}

	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.downloads[url]++
	if queue := f.errs[url]; len(queue) > 0 {
		f.errs[url] = queue[1:]
		return nil, queue[0]
	}
	data, ok := f.data[url]
	if !ok {
		return nil, &domain.FetchError{Source: f.name, URL: url, StatusCode: 404}
	}
	return data, nil
}

func unavailable(url string) error {
	return &domain.FetchError{Source: "test", URL: url, StatusCode: 503}
}

func openTestStore(t *testing.T, warm bool) *cache.Store {
	t.Helper()
	cat, err := catalog.Default()
	require.NoError(t, err)

	s, err := cache.Open(context.Background(), cache.Options{
		Dir:               t.TempDir(),
		MaxAge:            24 * time.Hour,
		PlaceholderWidth:  300,
		PlaceholderHeight: 300,
		SpillDir:          t.TempDir(),
	}, cache.Deps{Catalog: cat})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	if warm {
		_, err = s.PreWarm(context.Background())
		require.NoError(t, err)
	}
	return s
}

func testResolverConfig(priority map[string][]string) ResolverConfig {
	return ResolverConfig{
		Priority:       priority,
		Workers:        2,
		Attempts:       3,
		BackoffBase:    time.Millisecond,
		AttemptTimeout: time.Second,
		TotalBudget:    10 * time.Second,
		NegativeTTL:    time.Minute,
	}
}

func newsStrategy(index int) domain.VisualStrategy {
	return domain.VisualStrategy{SlideIndex: index, VisualType: domain.VisualFetchedImage, ContentTypeHint: domain.HintNews}
}

func newsSlide(index int) domain.Slide {
	return domain.Slide{Index: index, Role: domain.SlideRoleBody, Text: "The president announced new tariffs today"}
}

func TestResolve_TextOnlyNeedsNothing(t *testing.T) {
	src := newFakeSource("pexels", "https://img.test/a.jpg")
	r := NewResolver(testResolverConfig(map[string][]string{domain.HintNews: {"pexels"}}),
		source.NewRegistry(src), openTestStore(t, true), nil)

	got, err := r.Resolve(context.Background(), newsSlide(1), domain.TextOnly(1, domain.RationaleHookPolicy), "")
	require.NoError(t, err)
	assert.False(t, got.HasAsset())
	assert.Empty(t, got.Candidates)
	assert.Equal(t, 0, src.locates)
}

func TestResolve_FetchesThenServesFromCache(t *testing.T) {
	url := "https://img.test/a.jpg"
	src := newFakeSource("pexels", url).serve(url, testutil.JPEG(t, 400, 300))
	store := openTestStore(t, true)
	r := NewResolver(testResolverConfig(map[string][]string{domain.HintNews: {"pexels"}}),
		source.NewRegistry(src), store, nil)

	got, err := r.Resolve(context.Background(), newsSlide(2), newsStrategy(2), "")
	require.NoError(t, err)
	assert.Equal(t, "pexels", got.Source)
	assert.Equal(t, url, got.SourceURL)
	assert.Equal(t, cache.URLKey(url), got.Key)
	assert.False(t, got.FromCache)
	assert.False(t, got.Floor)
	assert.FileExists(t, got.Path)
	require.NotEmpty(t, got.Candidates)
	last := got.Candidates[len(got.Candidates)-1]
	assert.Equal(t, domain.CandidateFetched, last.Status)
	assert.True(t, last.DimensionsOK)

	again, err := r.Resolve(context.Background(), newsSlide(2), newsStrategy(2), "")
	require.NoError(t, err)
	assert.True(t, again.FromCache)
	assert.Equal(t, got.Path, again.Path)
	assert.Equal(t, 1, src.downloadCount(url))
}

func TestResolve_RetriesTransientFailures(t *testing.T) {
	url := "https://img.test/flaky.jpg"
	src := newFakeSource("pexels", url).
		serve(url, testutil.JPEG(t, 400, 300)).
		failFirst(url, unavailable(url), unavailable(url))
	r := NewResolver(testResolverConfig(map[string][]string{domain.HintNews: {"pexels"}}),
		source.NewRegistry(src), openTestStore(t, true), nil)

	got, err := r.Resolve(context.Background(), newsSlide(2), newsStrategy(2), "")
	require.NoError(t, err)
	assert.False(t, got.Floor)
	assert.Equal(t, 3, src.downloadCount(url))

	require.Len(t, got.Candidates, 3)
	assert.Equal(t, domain.CandidateFailed, got.Candidates[0].Status)
	assert.Equal(t, 1, got.Candidates[0].Attempt)
	assert.Equal(t, domain.CandidateFailed, got.Candidates[1].Status)
	assert.Equal(t, domain.CandidateFetched, got.Candidates[2].Status)
	assert.Equal(t, 3, got.Candidates[2].Attempt)
}

func TestResolve_PrefersUntriedCandidates(t *testing.T) {
	flaky, good := "https://img.test/flaky.jpg", "https://img.test/good.jpg"
	src := newFakeSource("pexels", flaky, good).
		failFirst(flaky, unavailable(flaky)).
		serve(good, testutil.PNG(t, 300, 300))
	r := NewResolver(testResolverConfig(map[string][]string{domain.HintNews: {"pexels"}}),
		source.NewRegistry(src), openTestStore(t, true), nil)

	got, err := r.Resolve(context.Background(), newsSlide(2), newsStrategy(2), "")
	require.NoError(t, err)
	assert.Equal(t, good, got.SourceURL)
	assert.Equal(t, 1, src.downloadCount(flaky))
}

func TestResolve_FallsBackToNextSource(t *testing.T) {
	broken := newFakeSource("pexels", "https://img.test/gone.jpg")
	empty := newFakeSource("scrape")
	good := newFakeSource("bucket", "curated/news/a.png").serve("curated/news/a.png", testutil.PNG(t, 300, 300))
	r := NewResolver(testResolverConfig(map[string][]string{domain.HintNews: {"pexels", "scrape", "bucket"}}),
		source.NewRegistry(broken, empty, good), openTestStore(t, true), nil)

	got, err := r.Resolve(context.Background(), newsSlide(2), newsStrategy(2), "")
	require.NoError(t, err)
	assert.Equal(t, "bucket", got.Source)
	assert.False(t, got.Floor)
	// a 404 is not retried
	assert.Equal(t, 1, broken.downloadCount("https://img.test/gone.jpg"))
	assert.Equal(t, 1, empty.locates)
}

func TestResolve_InvalidImageCountsAsFailure(t *testing.T) {
	bad, tiny, ok := "https://img.test/bad", "https://img.test/tiny.png", "https://img.test/ok.png"
	src := newFakeSource("pexels", bad, tiny, ok).
		serve(bad, []byte("<html>not an image</html>")).
		serve(tiny, testutil.PNG(t, 50, 50)).
		serve(ok, testutil.PNG(t, 300, 300))
	r := NewResolver(testResolverConfig(map[string][]string{domain.HintNews: {"pexels"}}),
		source.NewRegistry(src), openTestStore(t, true), nil)

	got, err := r.Resolve(context.Background(), newsSlide(2), newsStrategy(2), "")
	require.NoError(t, err)
	assert.Equal(t, ok, got.SourceURL)
	require.Len(t, got.Candidates, 3)
	assert.Equal(t, domain.CandidateInvalid, got.Candidates[0].Status)
	assert.Equal(t, domain.CandidateInvalid, got.Candidates[1].Status)
	assert.Equal(t, domain.CandidateFetched, got.Candidates[2].Status)
}

func TestResolve_AllSourcesFailUsesTemplateFloor(t *testing.T) {
	a := newFakeSource("pexels", "https://img.test/a.jpg").
		failFirst("https://img.test/a.jpg", unavailable("a"), unavailable("a"), unavailable("a"))
	b := newFakeSource("scrape")
	b.locateErr = &domain.FetchError{Source: "scrape", URL: "search", StatusCode: 500}
	r := NewResolver(testResolverConfig(map[string][]string{domain.HintNews: {"pexels", "scrape", "ghost"}}),
		source.NewRegistry(a, b), openTestStore(t, true), nil)

	start := time.Now()
	got, err := r.Resolve(context.Background(), newsSlide(2), newsStrategy(2), "")
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)

	assert.True(t, got.Floor)
	assert.True(t, got.FromCache)
	assert.Equal(t, TemplateSource, got.Source)
	assert.FileExists(t, got.Path)
	assert.Contains(t, got.Key, "news")

	assert.Equal(t, 3, a.downloadCount("https://img.test/a.jpg"))
	assert.Equal(t, 3, b.locates)

	last := got.Candidates[len(got.Candidates)-1]
	assert.Equal(t, TemplateSource, last.Source)
	assert.Equal(t, got.Key, last.TemplateKey)

	var skipped bool
	for _, c := range got.Candidates {
		if c.Source == "ghost" {
			skipped = c.Status == domain.CandidateSkipped
		}
	}
	assert.True(t, skipped, "unconfigured source is recorded as skipped")
}

func TestResolve_NegativeCacheRemembersBrokenURLs(t *testing.T) {
	url := "https://img.test/broken.jpg"
	src := newFakeSource("pexels", url)
	r := NewResolver(testResolverConfig(map[string][]string{domain.HintNews: {"pexels"}}),
		source.NewRegistry(src), openTestStore(t, true), nil)

	for i := 0; i < 3; i++ {
		got, err := r.Resolve(context.Background(), newsSlide(2), newsStrategy(2), "")
		require.NoError(t, err)
		assert.True(t, got.Floor)
	}
	assert.Equal(t, 1, src.downloadCount(url))
}

type failingCommitStore struct {
	*cache.Store
}

func (s failingCommitStore) Commit(ctx context.Context, req cache.CommitRequest) (domain.CacheEntry, error) {
	return domain.CacheEntry{}, &domain.CacheError{Op: "rename", Key: req.Key, Err: os.ErrPermission}
}

func TestResolve_CacheFailureServesUncachedCopy(t *testing.T) {
	url := "https://img.test/a.png"
	src := newFakeSource("pexels", url).serve(url, testutil.PNG(t, 300, 300))
	store := openTestStore(t, true)
	r := NewResolver(testResolverConfig(map[string][]string{domain.HintNews: {"pexels"}}),
		source.NewRegistry(src), failingCommitStore{store}, nil)

	got, err := r.Resolve(context.Background(), newsSlide(2), newsStrategy(2), "")
	require.NoError(t, err)
	assert.True(t, got.Uncached)
	assert.False(t, got.Floor)
	assert.FileExists(t, got.Path)
	_, found := store.Lookup(context.Background(), url)
	assert.False(t, found)
}

func TestResolve_BudgetExhaustedGoesToFloor(t *testing.T) {
	src := newFakeSource("pexels", "https://img.test/slow.jpg").serve("https://img.test/slow.jpg", testutil.PNG(t, 300, 300))
	src.delay = 5 * time.Second
	cfg := testResolverConfig(map[string][]string{domain.HintNews: {"pexels"}})
	cfg.TotalBudget = 50 * time.Millisecond
	cfg.AttemptTimeout = 5 * time.Second
	r := NewResolver(cfg, source.NewRegistry(src), openTestStore(t, true), nil)

	start := time.Now()
	got, err := r.Resolve(context.Background(), newsSlide(2), newsStrategy(2), "")
	require.NoError(t, err)
	assert.Less(t, time.Since(start), time.Second)
	assert.True(t, got.Floor)
}

func TestResolve_NotWarmedSurfacesError(t *testing.T) {
	r := NewResolver(testResolverConfig(map[string][]string{domain.HintNews: {}}),
		source.NewRegistry(), openTestStore(t, false), nil)

	_, err := r.Resolve(context.Background(), newsSlide(2), newsStrategy(2), "")
	assert.ErrorIs(t, err, domain.ErrNotWarmed)
}

func TestResolve_RateLimitSpacesRequests(t *testing.T) {
	urls := []string{"https://img.test/1.png", "https://img.test/2.png", "https://img.test/3.png"}
	src := newFakeSource("pexels", urls...)
	for _, u := range urls[:2] {
		src.failFirst(u, &domain.FetchError{Source: "pexels", URL: u, StatusCode: 410})
	}
	src.serve(urls[2], testutil.PNG(t, 300, 300))

	cfg := testResolverConfig(map[string][]string{domain.HintNews: {"pexels"}})
	cfg.MinInterval = 40 * time.Millisecond
	r := NewResolver(cfg, source.NewRegistry(src), openTestStore(t, true), nil)

	start := time.Now()
	got, err := r.Resolve(context.Background(), newsSlide(2), newsStrategy(2), "")
	require.NoError(t, err)
	assert.Equal(t, urls[2], got.SourceURL)
	// locate plus three downloads: three waits of MinInterval after the first token
	assert.GreaterOrEqual(t, time.Since(start), 100*time.Millisecond)
}

func TestResolveCarousel_CompleteMapWithBoundedWorkers(t *testing.T) {
	news := newFakeSource("pexels")
	for i := 0; i < 6; i++ {
		news.urls = append(news.urls, "https://img.test/n"+string(rune('a'+i))+".png")
	}
	for _, u := range news.urls {
		news.serve(u, testutil.PNG(t, 300, 300))
	}
	news.delay = 20 * time.Millisecond

	cfg := testResolverConfig(map[string][]string{
		domain.HintNews:        {"pexels"},
		domain.HintInfographic: {"pexels"},
		domain.HintMeme:        {"library"},
	})
	cfg.Workers = 2
	r := NewResolver(cfg, source.NewRegistry(news), openTestStore(t, true), nil)

	slides := slidesOf(
		"hook",
		"The president announced new tariffs",
		"Inflation hit 8.5% last year",
		"The minister resigned this morning",
		"Me when the alarm rings, ugh",
		"The senate voted on the new budget",
		"cta",
	)
	strategies := NewClassifier(nil, nil, nil).Classify(context.Background(), slides, "")

	got, err := r.ResolveCarousel(context.Background(), slides, strategies, "")
	require.NoError(t, err)
	require.Len(t, got, len(slides))

	for _, s := range slides {
		a, ok := got[s.Index]
		require.True(t, ok, "slide %d missing", s.Index)
		assert.Equal(t, s.Index, a.SlideIndex)
		if strategies[s.Index].NeedsAsset() {
			assert.True(t, a.HasAsset(), "slide %d", s.Index)
			assert.FileExists(t, a.Path)
		} else {
			assert.False(t, a.HasAsset(), "slide %d", s.Index)
		}
	}
	assert.False(t, got[2].Floor)
	assert.True(t, got[5].Floor, "library is not registered so memes use templates")
	assert.LessOrEqual(t, news.maxInFlight.Load(), int32(2))
}

func TestResolveCarousel_CancellationCommitsNothing(t *testing.T) {
	src := newFakeSource("pexels", "https://img.test/slow.png").serve("https://img.test/slow.png", testutil.PNG(t, 300, 300))
	src.delay = 5 * time.Second
	store := openTestStore(t, true)
	r := NewResolver(testResolverConfig(map[string][]string{domain.HintNews: {"pexels"}}),
		source.NewRegistry(src), store, nil)

	slides := []domain.Slide{
		{Index: 1, Role: domain.SlideRoleHook, Text: "hook"},
		newsSlide(2),
		newsSlide(3),
		{Index: 4, Role: domain.SlideRoleCTA, Text: "cta"},
	}
	strategies := map[int]domain.VisualStrategy{
		1: domain.TextOnly(1, domain.RationaleHookPolicy),
		2: newsStrategy(2),
		3: newsStrategy(3),
		4: domain.TextOnly(4, domain.RationaleCTAPolicy),
	}

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(30*time.Millisecond, cancel)

	start := time.Now()
	got, err := r.ResolveCarousel(ctx, slides, strategies, "")
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Nil(t, got)
	assert.Less(t, time.Since(start), time.Second)

	for _, e := range store.Entries() {
		assert.Equal(t, domain.EntryKindTemplate, e.Kind, "no fetched entry may be committed")
	}
}

func TestResolveCarousel_MissingStrategy(t *testing.T) {
	r := NewResolver(testResolverConfig(nil), nil, openTestStore(t, true), nil)
	_, err := r.ResolveCarousel(context.Background(), slidesOf("a", "b"), map[int]domain.VisualStrategy{}, "")
	assert.Error(t, err)
}
