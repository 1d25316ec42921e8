package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/timmy/carousel/internal/api"
	"github.com/timmy/carousel/internal/app"
	"github.com/timmy/carousel/internal/config"
	"github.com/timmy/carousel/internal/logger"
)

func main() {
	// Load configuration
	// Support CONFIG_PATH environment variable for production deployments
	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		logger.Fatal("Failed to load config: %v", err)
	}

	appLogger := logger.NewFromEnv(&logger.EnvConfig{
		Level:       cfg.Log.Level,
		Format:      cfg.Log.Format,
		ServiceName: "carousel-api",
		Environment: cfg.Log.Environment,
		LogFile:     cfg.Log.File,
		LogFileOnly: cfg.Log.FileOnly,
		MaxSize:     100,
		MaxBackups:  5,
		MaxAge:      14,
		Compress:    true,
	})
	logger.SetDefaultLogger(appLogger)
	defer logger.Sync()

	ctx := context.Background()
	pipeline, err := app.New(ctx, cfg)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to initialize pipeline")
	}
	defer pipeline.Close()

	// Startup blocks on pre-warm so every category has a template floor
	// before the first request.
	report, err := pipeline.Store.PreWarm(ctx)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to pre-warm template cache")
	}
	appLogger.WithFields(logger.Fields{
		"fetched":      report.Fetched,
		"placeholders": report.Placeholders,
		"generated":    report.Generated,
	}).Info("Template cache ready")

	router := api.SetupRouter(api.Deps{
		Carousel: pipeline.Carousel,
		Cache:    pipeline.Store,
		Gatherer: pipeline.Registry,
		Logger:   appLogger,
		PruneAge: cfg.Cache.MaxAge,
	}, cfg.Server)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Start server in goroutine
	go func() {
		appLogger.WithFields(logger.Fields{
			"port": cfg.Server.Port,
			"mode": cfg.Server.Mode,
		}).Info("Starting API server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLogger.WithError(err).Fatal("Failed to start server")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down server...")

	// Graceful shutdown covers one full resolution budget
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Resolver.TotalBudget+5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLogger.WithError(err).Error("Server forced to shutdown")
	}

	appLogger.Info("Server exited")
}
