package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/timmy/carousel/internal/domain"
	"github.com/timmy/carousel/internal/logger"
)

// ResolveStats holds statistics for one carousel resolution.
type ResolveStats struct {
	TotalSlides int64
	Resolved    int64
	TextOnly    int64
	FromCache   int64
	Floors      int64
	Failed      int64
	StartTime   time.Time
	EndTime     time.Time
}

type resolveJob struct {
	slide    domain.Slide
	strategy domain.VisualStrategy
}

type resolveResult struct {
	index int
	asset domain.ResolvedAsset
	err   error
}

// ResolveCarousel resolves every slide on a bounded worker pool. Jobs are
// dispatched in slide-index order and the returned map is complete: one
// entry per slide, TEXT_ONLY slides included with an empty path.
// Parameters:
//   - ctx: cancellation aborts outstanding fetches and returns ctx.Err().
//   - slides: ordered slides.
//   - strategies: one strategy per slide index.
//   - topic: optional topic hint used to build search terms.
//
// Returns:
//   - map[int]domain.ResolvedAsset: result per slide index.
//   - error: ctx.Err() on cancellation, or the first floor failure by slide index.
func (r *Resolver) ResolveCarousel(
	ctx context.Context,
	slides []domain.Slide,
	strategies map[int]domain.VisualStrategy,
	topic string,
) (map[int]domain.ResolvedAsset, error) {
	ctx = logger.SetComponent(ctx, "resolver")
	stats := &ResolveStats{StartTime: time.Now(), TotalSlides: int64(len(slides))}

	budgetCtx, cancel := context.WithTimeout(ctx, r.cfg.TotalBudget)
	defer cancel()

	out := make(map[int]domain.ResolvedAsset, len(slides))
	var jobs []resolveJob
	for _, s := range slides {
		st, ok := strategies[s.Index]
		if !ok {
			return nil, fmt.Errorf("slide %d has no strategy", s.Index)
		}
		if !st.NeedsAsset() {
			out[s.Index] = domain.NoAsset(s.Index)
			stats.TextOnly++
			continue
		}
		jobs = append(jobs, resolveJob{slide: s, strategy: st})
	}
	sort.Slice(jobs, func(i, j int) bool { return jobs[i].slide.Index < jobs[j].slide.Index })

	workers := r.cfg.Workers
	if workers > len(jobs) {
		workers = len(jobs)
	}

	// Create work channel and results channel
	jobsChan := make(chan resolveJob)
	resultsChan := make(chan resolveResult, len(jobs))

	// Start workers
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.worker(ctx, budgetCtx, jobsChan, resultsChan, topic)
		}()
	}

	// Start result collector
	errs := make(map[int]error)
	done := make(chan struct{})
	go func() {
		for res := range resultsChan {
			if res.err != nil {
				errs[res.index] = res.err
				atomic.AddInt64(&stats.Failed, 1)
				continue
			}
			out[res.index] = res.asset
			atomic.AddInt64(&stats.Resolved, 1)
			if res.asset.FromCache {
				atomic.AddInt64(&stats.FromCache, 1)
			}
			if res.asset.Floor {
				atomic.AddInt64(&stats.Floors, 1)
			}
		}
		close(done)
	}()

	// Dispatch in slide order
dispatch:
	for _, j := range jobs {
		select {
		case jobsChan <- j:
		case <-ctx.Done():
			break dispatch
		}
	}

	close(jobsChan)
	wg.Wait()
	close(resultsChan)
	<-done

	stats.EndTime = time.Now()
	elapsed := stats.EndTime.Sub(stats.StartTime)
	r.metrics.ObserveResolve(elapsed)

	if err := ctx.Err(); err != nil {
		logger.CtxWarn(ctx, "Carousel resolution cancelled after %s: %v", elapsed, err)
		return nil, err
	}
	if len(errs) > 0 {
		idx := make([]int, 0, len(errs))
		for i := range errs {
			idx = append(idx, i)
		}
		sort.Ints(idx)
		return nil, errs[idx[0]]
	}

	logger.With(logger.Fields{
		"text_only":  stats.TextOnly,
		"from_cache": stats.FromCache,
		"floors":     stats.Floors,
	}).WithCount(int(stats.TotalSlides)).WithDuration(elapsed).Info(ctx, "Carousel resolved")

	return out, nil
}

func (r *Resolver) worker(ctx, budgetCtx context.Context, jobs <-chan resolveJob, results chan<- resolveResult, topic string) {
	for j := range jobs {
		if err := ctx.Err(); err != nil {
			results <- resolveResult{index: j.slide.Index, err: err}
			continue
		}
		asset, err := r.resolve(ctx, budgetCtx, j.slide, j.strategy, topic)
		results <- resolveResult{index: j.slide.Index, asset: asset, err: err}
	}
}
