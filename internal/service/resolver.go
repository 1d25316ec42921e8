package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/timmy/carousel/internal/cache"
	"github.com/timmy/carousel/internal/domain"
	"github.com/timmy/carousel/internal/logger"
	"github.com/timmy/carousel/internal/metrics"
	"github.com/timmy/carousel/internal/source"
	"golang.org/x/time/rate"
)

// TemplateSource is the source name reported for template floor results.
const TemplateSource = "template"

// AssetStore is the part of the cache store the resolver depends on.
type AssetStore interface {
	Lookup(ctx context.Context, url string) (cache.Hit, bool)
	Commit(ctx context.Context, req cache.CommitRequest) (domain.CacheEntry, error)
	Spill(data []byte) (string, error)
	Template(hint, text string) (cache.Hit, error)
	Path(e domain.CacheEntry) string
}

// ResolverConfig holds configuration for the asset resolver.
type ResolverConfig struct {
	// Priority maps a content hint to the ordered source names tried for it.
	Priority       map[string][]string
	Workers        int
	Attempts       int
	BackoffBase    time.Duration
	AttemptTimeout time.Duration
	MinInterval    time.Duration
	TotalBudget    time.Duration
	NegativeTTL    time.Duration
	MaxCandidates  int
}

func (c *ResolverConfig) applyDefaults() {
	if c.Workers <= 0 {
		c.Workers = 4
	}
	if c.Attempts <= 0 {
		c.Attempts = 3
	}
	if c.BackoffBase <= 0 {
		c.BackoffBase = 500 * time.Millisecond
	}
	if c.AttemptTimeout <= 0 {
		c.AttemptTimeout = 8 * time.Second
	}
	if c.MinInterval < 0 {
		c.MinInterval = 0
	}
	if c.TotalBudget <= 0 {
		c.TotalBudget = 45 * time.Second
	}
	if c.NegativeTTL <= 0 {
		c.NegativeTTL = 10 * time.Minute
	}
	if c.MaxCandidates <= 0 {
		c.MaxCandidates = 5
	}
}

// Resolver turns visual strategies into validated local files. Sources are
// tried in priority order with bounded retries; when every source fails the
// pre-warmed template of the category is returned.
type Resolver struct {
	cfg      ResolverConfig
	sources  *source.Registry
	store    AssetStore
	metrics  *metrics.PipelineMetrics
	negative *gocache.Cache

	limMu    sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewResolver creates a resolver.
// Parameters:
//   - cfg: retry, pacing and pool configuration; zero values take defaults.
//   - sources: registry of configured sources; names missing from it are skipped.
//   - store: cache store used for lookups, commits and the template floor.
//   - m: metrics sink; may be nil.
//
// Returns:
//   - *Resolver: ready resolver.
func NewResolver(cfg ResolverConfig, sources *source.Registry, store AssetStore, m *metrics.PipelineMetrics) *Resolver {
	cfg.applyDefaults()
	if sources == nil {
		sources = source.NewRegistry()
	}
	return &Resolver{
		cfg:      cfg,
		sources:  sources,
		store:    store,
		metrics:  m,
		negative: gocache.New(cfg.NegativeTTL, 2*cfg.NegativeTTL),
		limiters: make(map[string]*rate.Limiter),
	}
}

func (r *Resolver) limiter(name string) *rate.Limiter {
	r.limMu.Lock()
	defer r.limMu.Unlock()
	l, ok := r.limiters[name]
	if !ok {
		if r.cfg.MinInterval > 0 {
			l = rate.NewLimiter(rate.Every(r.cfg.MinInterval), 1)
		} else {
			l = rate.NewLimiter(rate.Inf, 1)
		}
		r.limiters[name] = l
	}
	return l
}

// Sources returns the source names tried for a hint.
func (r *Resolver) Sources(hint string) []string {
	return r.cfg.Priority[hint]
}

// Resolve resolves one slide with its own total budget.
// Returns an empty asset for TEXT_ONLY strategies, ctx.Err() when the
// caller cancels, and a wrapped domain.ErrNoAsset or domain.ErrNotWarmed
// when even the template floor is unavailable.
func (r *Resolver) Resolve(ctx context.Context, slide domain.Slide, st domain.VisualStrategy, topic string) (domain.ResolvedAsset, error) {
	budgetCtx, cancel := context.WithTimeout(ctx, r.cfg.TotalBudget)
	defer cancel()
	return r.resolve(ctx, budgetCtx, slide, st, topic)
}

// resolve runs the source chain under budgetCtx. parent distinguishes caller
// cancellation from an exhausted budget.
func (r *Resolver) resolve(parent, budgetCtx context.Context, slide domain.Slide, st domain.VisualStrategy, topic string) (domain.ResolvedAsset, error) {
	if !st.NeedsAsset() {
		return domain.NoAsset(slide.Index), nil
	}
	ctx := logger.SetSlide(budgetCtx, slide.Index, st.ContentTypeHint)

	res := domain.ResolvedAsset{
		SlideIndex: slide.Index,
		VisualType: st.VisualType,
		Hint:       st.ContentTypeHint,
	}
	q := buildQuery(slide, st.ContentTypeHint, topic, r.cfg.MaxCandidates)

	for _, name := range r.cfg.Priority[st.ContentTypeHint] {
		if budgetCtx.Err() != nil {
			break
		}
		src, ok := r.sources.Get(name)
		if !ok {
			res.Candidates = append(res.Candidates, domain.AssetCandidate{
				Source: name,
				Status: domain.CandidateSkipped,
				Error:  "source not configured",
			})
			r.metrics.RecordFetchAttempt(name, metrics.OutcomeSkipped, 0)
			continue
		}

		if r.trySource(logger.SetSource(ctx, name), src, q, &res) {
			return res, nil
		}
	}

	if err := parent.Err(); err != nil {
		return domain.ResolvedAsset{}, err
	}
	if budgetCtx.Err() != nil {
		logger.CtxWarn(ctx, "Resolution budget exhausted, using template floor")
	}
	return r.floor(ctx, slide, st, res)
}

// sourceRun is the per-source state carried across attempts.
type sourceRun struct {
	src  source.Source
	urls []string
	// done holds URLs that must not be tried again at this source.
	done map[string]struct{}
	// transient holds URLs that failed in a retryable way.
	transient map[string]struct{}
}

// trySource runs up to cfg.Attempts attempts against one source.
// Returns true when res has been filled with an asset. URLs that kept
// failing transiently are added to the negative cache once the source is
// exhausted.
func (r *Resolver) trySource(ctx context.Context, src source.Source, q source.Query, res *domain.ResolvedAsset) bool {
	run := &sourceRun{
		src:       src,
		done:      make(map[string]struct{}),
		transient: make(map[string]struct{}),
	}
	defer func() {
		if ctx.Err() != nil {
			return
		}
		for u := range run.transient {
			r.negative.SetDefault(u, struct{}{})
		}
	}()

	for attempt := 1; attempt <= r.cfg.Attempts; attempt++ {
		if attempt > 1 {
			backoff := r.cfg.BackoffBase << (attempt - 2)
			if !sleepCtx(ctx, backoff) {
				return false
			}
		}

		start := time.Now()
		actx, cancel := context.WithTimeout(ctx, r.cfg.AttemptTimeout)
		outcome := r.attempt(actx, run, q, attempt, res)
		cancel()
		r.metrics.RecordFetchAttempt(src.Name(), outcome, time.Since(start))

		switch outcome {
		case metrics.OutcomeSuccess:
			delete(run.transient, res.SourceURL)
			return true
		case metrics.OutcomeSkipped:
			// nothing left to try at this source
			return false
		}
	}
	logger.CtxDebug(ctx, "Source %s exhausted after %d attempts", src.Name(), r.cfg.Attempts)
	return false
}

// attempt locates candidates (once per source) and tries the next candidate
// URL that has not failed permanently and is not in the negative cache.
func (r *Resolver) attempt(ctx context.Context, run *sourceRun, q source.Query, attempt int, res *domain.ResolvedAsset) string {
	name := run.src.Name()
	fail := func(url string, status domain.CandidateStatus, err error) {
		res.Candidates = append(res.Candidates, domain.AssetCandidate{
			Source:  name,
			URL:     url,
			Status:  status,
			Attempt: attempt,
			Error:   err.Error(),
		})
		logger.With(logger.Fields{"url": url}).WithAttempt(attempt).WithStatus(string(status)).
			Debug(ctx, "Candidate rejected: %v", err)
	}

	if run.urls == nil {
		if err := r.limiter(name).Wait(ctx); err != nil {
			fail("", domain.CandidateFailed, err)
			return metrics.OutcomeFailure
		}
		located, err := run.src.Locate(ctx, q)
		if errors.Is(err, domain.ErrNoCandidates) {
			fail("", domain.CandidateSkipped, err)
			return metrics.OutcomeSkipped
		}
		if err != nil {
			fail("", domain.CandidateFailed, err)
			return metrics.OutcomeFailure
		}
		run.urls = located
	}

	url := r.nextCandidate(run)
	if url == "" {
		return metrics.OutcomeSkipped
	}

	if hit, ok := r.store.Lookup(ctx, url); ok {
		res.Path = hit.Path
		res.Key = hit.Entry.Key
		res.Source = name
		res.SourceURL = url
		res.FromCache = true
		res.Stale = hit.Stale
		status := domain.CandidateCached
		if hit.Stale {
			status = domain.CandidateStale
		}
		res.Candidates = append(res.Candidates, domain.AssetCandidate{
			Source:       name,
			URL:          url,
			Status:       status,
			Size:         hit.Entry.Size,
			DimensionsOK: true,
			Attempt:      attempt,
		})
		return metrics.OutcomeSuccess
	}

	if err := r.limiter(name).Wait(ctx); err != nil {
		fail(url, domain.CandidateFailed, err)
		return metrics.OutcomeFailure
	}
	data, err := run.src.Download(ctx, url)
	if err != nil {
		if permanentFailure(err) {
			run.done[url] = struct{}{}
			delete(run.transient, url)
			r.negative.SetDefault(url, struct{}{})
		} else {
			run.transient[url] = struct{}{}
		}
		fail(url, domain.CandidateFailed, err)
		return metrics.OutcomeFailure
	}

	entry, err := r.store.Commit(ctx, cache.CommitRequest{
		Key:       cache.URLKey(url),
		Kind:      domain.EntryKindFetched,
		Hint:      q.Hint,
		SourceURL: url,
		Data:      data,
	})
	var cacheErr *domain.CacheError
	switch {
	case err == nil:
		res.Path = r.store.Path(entry)
		res.Key = entry.Key
	case domain.IsValidationError(err):
		run.done[url] = struct{}{}
		delete(run.transient, url)
		r.negative.SetDefault(url, struct{}{})
		res.Candidates = append(res.Candidates, domain.AssetCandidate{
			Source:  name,
			URL:     url,
			Status:  domain.CandidateInvalid,
			Size:    int64(len(data)),
			Attempt: attempt,
			Error:   err.Error(),
		})
		return metrics.OutcomeInvalid
	case errors.As(err, &cacheErr):
		logger.CtxWarn(ctx, "Cache write failed, serving uncached copy: %v", err)
		path, spillErr := r.store.Spill(data)
		if spillErr != nil {
			run.transient[url] = struct{}{}
			fail(url, domain.CandidateFailed, fmt.Errorf("%v; spill: %w", err, spillErr))
			return metrics.OutcomeFailure
		}
		res.Path = path
		res.Uncached = true
	default:
		run.transient[url] = struct{}{}
		fail(url, domain.CandidateFailed, err)
		return metrics.OutcomeFailure
	}

	res.Source = name
	res.SourceURL = url
	res.Candidates = append(res.Candidates, domain.AssetCandidate{
		Source:       name,
		URL:          url,
		Status:       domain.CandidateFetched,
		Size:         int64(len(data)),
		DimensionsOK: true,
		Attempt:      attempt,
	})
	logger.With(logger.Fields{logger.FieldCacheKey: res.Key}).WithAttempt(attempt).WithSize(int64(len(data))).
		Info(ctx, "Asset fetched")
	return metrics.OutcomeSuccess
}

// nextCandidate prefers URLs not tried yet and falls back to retrying one
// that failed transiently.
func (r *Resolver) nextCandidate(run *sourceRun) string {
	retry := ""
	for _, u := range run.urls {
		if _, done := run.done[u]; done {
			continue
		}
		if _, failed := run.transient[u]; failed {
			if retry == "" {
				retry = u
			}
			continue
		}
		if _, bad := r.negative.Get(u); bad {
			run.done[u] = struct{}{}
			continue
		}
		return u
	}
	return retry
}

// permanentFailure reports whether retrying a download cannot help:
// a 4xx response other than 408 and 429.
func permanentFailure(err error) bool {
	var fe *domain.FetchError
	if !errors.As(err, &fe) {
		return false
	}
	code := fe.StatusCode
	return code >= 400 && code < 500 && code != http.StatusRequestTimeout && code != http.StatusTooManyRequests
}

// floor returns the pre-warmed template of the strategy's category.
func (r *Resolver) floor(ctx context.Context, slide domain.Slide, st domain.VisualStrategy, res domain.ResolvedAsset) (domain.ResolvedAsset, error) {
	hit, err := r.store.Template(st.ContentTypeHint, slide.PlainText())
	if err != nil {
		logger.CtxError(ctx, "Template floor unavailable: %v", err)
		return domain.ResolvedAsset{}, fmt.Errorf("slide %d: %w", slide.Index, err)
	}
	r.metrics.RecordFloor(st.ContentTypeHint)

	res.Path = hit.Path
	res.Key = hit.Entry.Key
	res.Source = TemplateSource
	res.SourceURL = hit.Entry.SourceURL
	res.FromCache = true
	res.Floor = true
	res.Candidates = append(res.Candidates, domain.AssetCandidate{
		Source:       TemplateSource,
		TemplateKey:  hit.Entry.Key,
		Status:       domain.CandidateCached,
		Size:         hit.Entry.Size,
		DimensionsOK: true,
	})
	logger.With(logger.Fields{logger.FieldCacheKey: hit.Entry.Key}).Info(ctx, "Using template floor")
	return res, nil
}

// sleepCtx waits for d or until ctx is done. Returns false on ctx done.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
