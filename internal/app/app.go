// Package app wires configuration into a ready carousel pipeline. It is shared
// by the HTTP server and the command line tool.
package app

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/timmy/carousel/internal/cache"
	"github.com/timmy/carousel/internal/catalog"
	"github.com/timmy/carousel/internal/config"
	"github.com/timmy/carousel/internal/logger"
	"github.com/timmy/carousel/internal/metrics"
	"github.com/timmy/carousel/internal/repository"
	"github.com/timmy/carousel/internal/service"
	"github.com/timmy/carousel/internal/source"
	"github.com/timmy/carousel/internal/source/bucket"
	"github.com/timmy/carousel/internal/source/direct"
	"github.com/timmy/carousel/internal/source/library"
	"github.com/timmy/carousel/internal/source/pexels"
	"github.com/timmy/carousel/internal/source/scrape"
	"github.com/timmy/carousel/internal/storage"
	"gorm.io/gorm"
)

// App holds every long-lived component of the pipeline.
type App struct {
	Config   *config.Config
	Registry *prometheus.Registry
	Metrics  *metrics.PipelineMetrics
	Store    *cache.Store
	Sources  *source.Registry
	Carousel *service.CarouselService

	db *gorm.DB
}

// New builds the pipeline from cfg. The cache store is opened but not
// pre-warmed; callers decide when to warm it.
// Parameters:
//   - ctx: context for opening the manifest.
//   - cfg: loaded configuration.
//
// Returns:
//   - *App: wired components; Close releases them.
//   - error: non-nil if the catalog, manifest or store cannot be opened.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	a := &App{Config: cfg, Registry: prometheus.NewRegistry()}
	a.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m, err := metrics.NewPipelineMetrics(a.Registry)
	if err != nil {
		return nil, fmt.Errorf("failed to register metrics: %w", err)
	}
	a.Metrics = m

	cat, err := loadCatalog(cfg.Catalog.Path)
	if err != nil {
		return nil, err
	}

	manifest, err := a.openManifest(cfg)
	if err != nil {
		return nil, err
	}

	fetcher := source.NewHTTPFetcher(source.HTTPConfig{
		Timeout:   cfg.Resolver.AttemptTimeout,
		UserAgent: cfg.Sources.Scrape.UserAgent,
		MaxBytes:  cfg.Cache.MaxBytes,
	})

	store, err := cache.Open(ctx, cache.Options{
		Dir:               cfg.Cache.Dir,
		MaxAge:            cfg.Cache.MaxAge,
		MinWidth:          cfg.Cache.MinWidth,
		MinHeight:         cfg.Cache.MinHeight,
		PlaceholderWidth:  cfg.Cache.PlaceholderWidth,
		PlaceholderHeight: cfg.Cache.PlaceholderHeight,
		PrewarmTimeout:    cfg.Cache.PrewarmTimeout,
		RefreshTimeout:    cfg.Cache.RefreshTimeout,
		SpillDir:          filepath.Join(cfg.Cache.Dir, "spill"),
	}, cache.Deps{
		Manifest: manifest,
		Catalog:  cat,
		Fetcher:  fetcher,
		Metrics:  m,
	})
	if err != nil {
		a.closeDB()
		return nil, fmt.Errorf("failed to open cache store: %w", err)
	}
	a.Store = store

	a.Sources = buildSources(ctx, cfg, fetcher)
	logger.With(logger.Fields{"sources": a.Sources.Names()}).Info(ctx, "Asset sources configured")

	a.Carousel = service.NewCarouselService(
		buildClassifier(ctx, cfg, m),
		service.NewResolver(service.ResolverConfig{
			Priority:       cfg.Sources.Priority,
			Workers:        cfg.Resolver.Workers,
			Attempts:       cfg.Resolver.Attempts,
			BackoffBase:    cfg.Resolver.BackoffBase,
			AttemptTimeout: cfg.Resolver.AttemptTimeout,
			MinInterval:    cfg.Resolver.MinInterval,
			TotalBudget:    cfg.Resolver.TotalBudget,
			NegativeTTL:    cfg.Resolver.NegativeTTL,
			MaxCandidates:  cfg.Resolver.MaxCandidates,
		}, a.Sources, store, m),
		service.NewValidator(service.ValidatorConfig{
			HookLimit:    cfg.Validator.Limits.Hook,
			BodyLimit:    cfg.Validator.Limits.Body,
			CTALimit:     cfg.Validator.Limits.CTA,
			DenyList:     cfg.Validator.DenyList,
			CrampedRatio: cfg.Validator.CrampedRatio,
			ThinText:     cfg.Validator.ThinText,
			HookMin:      cfg.Validator.HookMin,
		}, m),
		&service.CarouselConfig{Repair: true},
	)
	return a, nil
}

func loadCatalog(path string) (*catalog.Catalog, error) {
	if path == "" {
		return catalog.Default()
	}
	cat, err := catalog.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load template catalog: %w", err)
	}
	return cat, nil
}

// openManifest returns nil for the file manifest so the store uses its default.
func (a *App) openManifest(cfg *config.Config) (cache.Manifest, error) {
	if cfg.Cache.Manifest != "db" {
		return nil, nil
	}
	db, err := repository.InitDB(&cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize manifest database: %w", err)
	}
	a.db = db
	return repository.NewManifestRepository(db), nil
}

func buildSources(ctx context.Context, cfg *config.Config, fetcher *source.HTTPFetcher) *source.Registry {
	var list []source.Source

	sc := cfg.Sources
	if sc.Pexels.Enabled {
		p, err := pexels.New(pexels.Config{
			APIKey:  sc.Pexels.APIKey,
			BaseURL: sc.Pexels.BaseURL,
			PerPage: sc.Pexels.PerPage,
		}, fetcher)
		if err != nil {
			logger.CtxWarn(ctx, "Pexels source disabled: %v", err)
		} else {
			list = append(list, p)
		}
	}
	if sc.Scrape.Enabled {
		list = append(list, scrape.New(sc.Scrape.BaseURL, fetcher))
	}
	if sc.Direct.Enabled {
		list = append(list, direct.New(sc.Direct.URLs, fetcher))
	}
	if sc.Library.Enabled {
		list = append(list, library.New(sc.Library.Path))
	}
	if sc.Bucket.Enabled {
		objects, err := storage.NewStorage(&cfg.Storage)
		if err != nil {
			logger.CtxWarn(ctx, "Bucket source disabled: %v", err)
		} else {
			list = append(list, bucket.New(objects, sc.Bucket.Prefix))
		}
	}

	return source.NewRegistry(list...)
}

func buildClassifier(ctx context.Context, cfg *config.Config, m *metrics.PipelineMetrics) *service.Classifier {
	llmCfg := cfg.Classifier.LLM
	if !llmCfg.Usable() {
		if llmCfg.Enabled {
			logger.CtxWarn(ctx, "LLM labeler enabled but not configured, using heuristics only")
		}
		return service.NewClassifier(nil, m, nil)
	}

	logger.With(logger.Fields{"model": llmCfg.Model}).Info(ctx, "LLM labeler enabled")
	labeler := service.NewLLMLabeler(&service.LLMLabelerConfig{
		Model:   llmCfg.Model,
		APIKey:  llmCfg.APIKey,
		BaseURL: llmCfg.BaseURL,
		Timeout: llmCfg.Timeout,
	})
	return service.NewClassifier(labeler, m, &service.ClassifierConfig{LLMTimeout: llmCfg.Timeout})
}

func (a *App) closeDB() error {
	if a.db == nil {
		return nil
	}
	sqlDB, err := a.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Close stops background refreshes and closes the manifest database.
func (a *App) Close() error {
	var errs []error
	if a.Store != nil {
		errs = append(errs, a.Store.Close())
	}
	errs = append(errs, a.closeDB())
	return errors.Join(errs...)
}
