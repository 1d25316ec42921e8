package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/timmy/carousel/internal/catalog"
	"github.com/timmy/carousel/internal/domain"
	"github.com/timmy/carousel/internal/imaging"
	"github.com/timmy/carousel/internal/logger"
	"golang.org/x/sync/errgroup"
)

// Pre-warm outcomes per template.
const (
	warmValid       = "valid"
	warmFetched     = "fetched"
	warmGenerated   = "generated"
	warmPlaceholder = "placeholder"
	warmKept        = "kept"
)

// PrewarmReport summarizes one pre-warm pass.
type PrewarmReport struct {
	Checked      int            `json:"checked"`
	Valid        int            `json:"valid"`
	Fetched      int            `json:"fetched"`
	Generated    int            `json:"generated"`
	Placeholders int            `json:"placeholders"`
	Kept         int            `json:"kept"`
	Categories   map[string]int `json:"categories"`
	Duration     time.Duration  `json:"duration"`
}

func (r *PrewarmReport) add(outcome string) {
	r.Checked++
	switch outcome {
	case warmValid:
		r.Valid++
	case warmFetched:
		r.Fetched++
	case warmGenerated:
		r.Generated++
	case warmPlaceholder:
		r.Placeholders++
	case warmKept:
		r.Kept++
	}
}

// Warmed reports whether a pre-warm pass has completed successfully.
func (s *Store) Warmed() bool {
	return s.warmed.Load()
}

// PreWarm makes sure every catalog template has a valid file on disk.
// Existing files are re-validated; missing, corrupt or stale downloaded ones
// are re-fetched, keeping the old file when the fetch fails,
// and a generated placeholder card is written when a fetch fails, so every
// category ends up with at least one usable entry. Safe to call repeatedly.
// Parameters:
//   - ctx: cancels outstanding downloads.
//
// Returns:
//   - PrewarmReport: per-outcome counts.
//   - error: ctx.Err() on cancellation, or a *domain.CacheError when the disk
//     cannot hold even a placeholder.
func (s *Store) PreWarm(ctx context.Context) (PrewarmReport, error) {
	s.warmMu.Lock()
	defer s.warmMu.Unlock()

	start := time.Now()
	ctx = logger.SetComponent(ctx, "prewarm")

	report := PrewarmReport{Categories: make(map[string]int)}
	var reportMu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.PrewarmWorkers)
	for _, t := range s.catalog.All() {
		t := t
		g.Go(func() error {
			outcome, err := s.warmTemplate(gctx, t)
			if err != nil {
				return fmt.Errorf("template %s: %w", t.Name, err)
			}
			reportMu.Lock()
			report.add(outcome)
			report.Categories[t.Hint]++
			reportMu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return report, err
	}
	if err := ctx.Err(); err != nil {
		return report, err
	}

	for _, hint := range s.catalog.Hints() {
		if report.Categories[hint] == 0 {
			return report, fmt.Errorf("category %s: %w", hint, domain.ErrNoAsset)
		}
	}

	s.warmed.Store(true)
	report.Duration = time.Since(start)

	logger.With(logger.Fields{
		"fetched":      report.Fetched,
		"placeholders": report.Placeholders,
		"generated":    report.Generated,
	}).WithCount(report.Checked).WithDuration(report.Duration).
		Info(ctx, "Pre-warm complete")
	return report, nil
}

func (s *Store) warmTemplate(ctx context.Context, t catalog.Template) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	ctx = logger.WithFields(ctx, logger.Fields{logger.FieldCacheKey: t.Name, logger.FieldHint: t.Hint})

	existing, have := s.get(t.Name)
	if have {
		if _, err := imaging.InspectFile(s.Path(existing), s.opts.MinWidth, s.opts.MinHeight); err != nil {
			logger.CtxWarn(ctx, "Template file failed re-validation: %v", err)
			have = false
		}
	}
	// a placeholder standing in for a downloadable template gets another fetch
	// attempt, and so does a downloaded one past max age
	upgradable := have && !t.Generated() &&
		(existing.SourceURL == "" || existing.IsStale(s.opts.Now(), s.opts.MaxAge))
	if have && !upgradable {
		return warmValid, nil
	}

	if !t.Generated() && s.fetcher != nil {
		data, err := s.download(ctx, t.URL)
		if err == nil {
			_, err = s.Commit(ctx, CommitRequest{
				Key:       t.Name,
				Kind:      domain.EntryKindTemplate,
				Hint:      t.Hint,
				SourceURL: t.URL,
				Data:      data,
			})
		}
		switch {
		case err == nil:
			return warmFetched, nil
		case ctx.Err() != nil:
			return "", ctx.Err()
		case domain.IsCacheError(err):
			return "", err
		}
		logger.CtxWarn(ctx, "Template fetch failed: %v", err)
	}

	if upgradable {
		return warmKept, nil
	}

	data, err := imaging.Placeholder(s.opts.PlaceholderWidth, s.opts.PlaceholderHeight, t.Hint+"/"+t.Name)
	if err != nil {
		return "", err
	}
	if _, err := s.Commit(ctx, CommitRequest{
		Key:  t.Name,
		Kind: domain.EntryKindTemplate,
		Hint: t.Hint,
		Data: data,
	}); err != nil {
		return "", err
	}
	if t.Generated() {
		return warmGenerated, nil
	}
	return warmPlaceholder, nil
}

func (s *Store) download(ctx context.Context, url string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opts.PrewarmTimeout)
	defer cancel()
	return s.fetcher.Download(ctx, url)
}

// Template returns the pre-warmed template of a category that best matches
// text. Unknown hints fall back to the meme category.
// Returns domain.ErrNotWarmed before the first successful PreWarm and
// domain.ErrNoAsset when the category has no committed template.
func (s *Store) Template(hint, text string) (Hit, error) {
	if !s.warmed.Load() {
		return Hit{}, domain.ErrNotWarmed
	}

	templates := s.catalog.ByHint(hint)
	if len(templates) == 0 {
		templates = s.catalog.ByHint(domain.HintMeme)
	}

	s.mu.RLock()
	ready := make([]catalog.Template, 0, len(templates))
	for _, t := range templates {
		if e, ok := s.index[t.Name]; ok && e.Status == domain.EntryStatusValid {
			ready = append(ready, t)
		}
	}
	s.mu.RUnlock()

	t, ok := catalog.Pick(ready, text)
	if !ok {
		return Hit{}, fmt.Errorf("category %s: %w", hint, domain.ErrNoAsset)
	}
	e, ok := s.get(t.Name)
	if !ok {
		return Hit{}, fmt.Errorf("template %s vanished: %w", t.Name, domain.ErrNoAsset)
	}
	return Hit{Entry: e, Path: s.Path(e)}, nil
}
