package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/timmy/carousel/internal/domain"
	"github.com/timmy/carousel/internal/service"
)

func prewarmCommand(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "prewarm",
		Short: "Download or generate every catalog template",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := c.open(cmd.Context(), false)
			if err != nil {
				return err
			}
			report, err := p.Store.PreWarm(cmd.Context())
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), report)
		},
	}
}

func processCommand(c *cli) *cobra.Command {
	var (
		file       string
		topic      string
		skipRepair bool
	)

	cmd := &cobra.Command{
		Use:   "process",
		Short: "Classify, resolve and validate a carousel",
		Long: `Process reads a carousel as JSON, either {"slides": [...], "topic": "..."}
or a bare array of slides, and prints strategies, assets and validation.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := readRequest(cmd.InOrStdin(), file)
			if err != nil {
				return err
			}
			if topic != "" {
				req.Topic = topic
			}
			if skipRepair {
				req.SkipRepair = true
			}

			p, err := c.open(cmd.Context(), true)
			if err != nil {
				return err
			}
			res, err := p.Carousel.Process(cmd.Context(), req)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), res)
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "-", "Carousel JSON file, - for stdin")
	cmd.Flags().StringVar(&topic, "topic", "", "Carousel topic, overrides the file")
	cmd.Flags().BoolVar(&skipRepair, "skip-repair", false, "Do not truncate and revalidate rejected carousels")
	return cmd
}

func validateCommand(c *cli) *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate slide text without resolving assets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := readRequest(cmd.InOrStdin(), file)
			if err != nil {
				return err
			}
			res, err := newValidator(c).Validate(cmd.Context(), req.Slides)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), map[string]interface{}{
				"accepted":   res.Accepted(),
				"validation": res,
			})
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "-", "Carousel JSON file, - for stdin")
	return cmd
}

func truncateCommand(c *cli) *cobra.Command {
	var (
		limit int
		role  string
	)

	cmd := &cobra.Command{
		Use:   "truncate [text...]",
		Short: "Shorten text to a limit at a word boundary",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if limit <= 0 {
				r := domain.SlideRole(role)
				if !r.Valid() {
					return fmt.Errorf("either --limit or a valid --role is required")
				}
				limit = newValidator(c).Validator().Limit(r)
			}
			fmt.Fprintln(cmd.OutOrStdout(), service.Truncate(strings.Join(args, " "), limit))
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "l", 0, "Maximum characters")
	cmd.Flags().StringVarP(&role, "role", "r", "", "Use the configured limit of a role: hook, body, cta")
	return cmd
}

func cacheCommand(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect and maintain the asset cache",
	}

	var kind string
	ls := &cobra.Command{
		Use:   "ls",
		Short: "List committed cache entries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := c.open(cmd.Context(), false)
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			for _, e := range p.Store.Entries() {
				if kind != "" && string(e.Kind) != kind {
					continue
				}
				fmt.Fprintf(w, "%-9s %-12s %5dx%-5d %8d  %s  %s\n",
					e.Kind, e.Hint, e.Width, e.Height, e.Size,
					e.DownloadedAt.Format(time.RFC3339), e.Key)
			}
			return nil
		},
	}
	ls.Flags().StringVar(&kind, "kind", "", "Only list entries of this kind: template, fetched")

	var olderThan time.Duration
	prune := &cobra.Command{
		Use:   "prune",
		Short: "Delete fetched entries older than a duration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := c.open(cmd.Context(), false)
			if err != nil {
				return err
			}
			age := olderThan
			if age == 0 {
				age = c.cfg.Cache.MaxAge
			}
			removed, err := p.Store.Prune(cmd.Context(), age)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed %d entries older than %s\n", removed, age)
			return nil
		},
	}
	prune.Flags().DurationVar(&olderThan, "older-than", 0, "Age threshold (default cache.max_age)")

	cmd.AddCommand(ls, prune)
	return cmd
}

// newValidator builds a carousel service that only validates.
func newValidator(c *cli) *service.CarouselService {
	v := c.cfg.Validator
	return service.NewCarouselService(nil, nil, service.NewValidator(service.ValidatorConfig{
		HookLimit:    v.Limits.Hook,
		BodyLimit:    v.Limits.Body,
		CTALimit:     v.Limits.CTA,
		DenyList:     v.DenyList,
		CrampedRatio: v.CrampedRatio,
		ThinText:     v.ThinText,
		HookMin:      v.HookMin,
	}, nil), nil)
}

// readRequest decodes a carousel request from path, or from stdin for "-".
func readRequest(stdin io.Reader, path string) (*service.CarouselRequest, error) {
	var data []byte
	var err error
	if path == "" || path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read carousel: %w", err)
	}

	var req service.CarouselRequest
	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, "[") {
		err = json.Unmarshal(data, &req.Slides)
	} else {
		err = json.Unmarshal(data, &req)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to decode carousel: %w", err)
	}
	if len(req.Slides) == 0 {
		return nil, errors.New("carousel has no slides")
	}
	return &req, nil
}
