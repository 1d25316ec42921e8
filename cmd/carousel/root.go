package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"github.com/timmy/carousel/internal/app"
	"github.com/timmy/carousel/internal/config"
	"github.com/timmy/carousel/internal/logger"
)

// cli carries state shared by every subcommand.
type cli struct {
	configPath string
	logLevel   string

	cfg      *config.Config
	pipeline *app.App
}

// RootCommand creates and returns the root command
func RootCommand() *cobra.Command {
	c := &cli{}

	rootCmd := &cobra.Command{
		Use:           "carousel",
		Short:         "Carousel visual asset pipeline",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&c.configPath, "config", "c", "", "Path to config file (default ./configs/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&c.logLevel, "log-level", "", "Override log level: debug, info, warn, error")

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		return c.initialize()
	}
	rootCmd.PersistentPostRunE = func(cmd *cobra.Command, args []string) error {
		if c.pipeline == nil {
			return nil
		}
		return c.pipeline.Close()
	}

	rootCmd.AddCommand(
		prewarmCommand(c),
		processCommand(c),
		validateCommand(c),
		truncateCommand(c),
		cacheCommand(c),
	)
	return rootCmd
}

// initialize loads configuration and sets up logging before any subcommand runs.
func (c *cli) initialize() error {
	cfg, err := config.Load(c.configPath)
	if err != nil {
		return err
	}
	if c.logLevel != "" {
		cfg.Log.Level = c.logLevel
	}
	c.cfg = cfg

	logger.SetDefaultLogger(logger.NewFromEnv(&logger.EnvConfig{
		Level:       cfg.Log.Level,
		Format:      cfg.Log.Format,
		ServiceName: "carousel-cli",
		Environment: cfg.Log.Environment,
		LogFile:     cfg.Log.File,
		LogFileOnly: cfg.Log.FileOnly,
		MaxSize:     50,
		MaxBackups:  3,
		MaxAge:      7,
	}))
	return nil
}

// open builds the pipeline on first use; warm additionally pre-warms the store.
func (c *cli) open(ctx context.Context, warm bool) (*app.App, error) {
	if c.pipeline == nil {
		p, err := app.New(ctx, c.cfg)
		if err != nil {
			return nil, err
		}
		c.pipeline = p
	}
	if warm && !c.pipeline.Store.Warmed() {
		if _, err := c.pipeline.Store.PreWarm(ctx); err != nil {
			return nil, fmt.Errorf("failed to pre-warm template cache: %w", err)
		}
	}
	return c.pipeline, nil
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}
