package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/timmy/carousel/internal/domain"
	"github.com/timmy/carousel/internal/logger"
)

// CarouselRequest is one carousel to classify, resolve and validate.
type CarouselRequest struct {
	Slides     []domain.Slide `json:"slides" binding:"required,min=1,dive"`
	Topic      string         `json:"topic"`
	SkipRepair bool           `json:"skip_repair"`
}

// CarouselResult is the outcome of one processing run.
type CarouselResult struct {
	ID             string                        `json:"id"`
	Slides         []domain.Slide                `json:"slides"`
	Strategies     map[int]domain.VisualStrategy `json:"strategies"`
	Assets         map[int]domain.ResolvedAsset  `json:"assets"`
	Validation     *domain.ValidationResult      `json:"validation"`
	Accepted       bool                          `json:"accepted"`
	Repaired       bool                          `json:"repaired"`
	RepairedSlides []int                         `json:"repaired_slides,omitempty"`
	Duration       time.Duration                 `json:"duration"`
}

// CarouselConfig holds configuration for the carousel service.
type CarouselConfig struct {
	// Repair enables the single truncate-and-revalidate pass on rejection.
	Repair bool
}

// CarouselService runs classifier, resolver and validator for one carousel.
type CarouselService struct {
	classifier *Classifier
	resolver   *Resolver
	validator  *Validator
	repair     bool
}

// NewCarouselService creates a new carousel service.
func NewCarouselService(classifier *Classifier, resolver *Resolver, validator *Validator, cfg *CarouselConfig) *CarouselService {
	s := &CarouselService{
		classifier: classifier,
		resolver:   resolver,
		validator:  validator,
		repair:     true,
	}
	if cfg != nil {
		s.repair = cfg.Repair
	}
	return s
}

// Validator returns the validator used by the service.
func (s *CarouselService) Validator() *Validator {
	return s.validator
}

// Process classifies every slide, resolves the assets it needs and validates
// the result. A rejected carousel gets at most one repair pass: ERROR slides
// are truncated to their role limit, the set is reclassified, slides whose
// strategy changed are resolved again, and everything is revalidated.
// Parameters:
//   - ctx: cancellation aborts resolution.
//   - req: slides and optional topic.
//
// Returns:
//   - *CarouselResult: strategies, assets and validation of the final slide set.
//   - error: invalid input, ctx.Err(), or a template floor failure.
func (s *CarouselService) Process(ctx context.Context, req *CarouselRequest) (*CarouselResult, error) {
	start := time.Now()
	id := uuid.New().String()
	ctx = logger.SetCarouselID(ctx, id)

	slides, err := domain.AssignRoles(req.Slides)
	if err != nil {
		return nil, err
	}

	logger.With(logger.Fields{"topic": req.Topic}).WithCount(len(slides)).Info(ctx, "Processing carousel")

	strategies := s.classifier.Classify(ctx, slides, req.Topic)
	assets, err := s.resolver.ResolveCarousel(ctx, slides, strategies, req.Topic)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve assets: %w", err)
	}
	validation := s.validator.Validate(ctx, slides, assets)

	result := &CarouselResult{
		ID:         id,
		Slides:     slides,
		Strategies: strategies,
		Assets:     assets,
		Validation: validation,
		Accepted:   validation.Accepted(),
	}

	if !result.Accepted && s.repair && !req.SkipRepair {
		if err := s.repairOnce(ctx, req.Topic, result); err != nil {
			return nil, err
		}
	}

	result.Duration = time.Since(start)
	logger.With(logger.Fields{
		"accepted": result.Accepted,
		"repaired": result.Repaired,
	}).WithDuration(result.Duration).Info(ctx, "Carousel processed")
	return result, nil
}

func (s *CarouselService) repairOnce(ctx context.Context, topic string, result *CarouselResult) error {
	slides := make([]domain.Slide, len(result.Slides))
	copy(slides, result.Slides)

	var changed []int
	for i, sl := range slides {
		for _, is := range result.Validation.Slides[sl.Index] {
			if is.Code != CodeTextTooLong {
				continue
			}
			slides[i] = sl.WithText(Truncate(sl.PlainText(), s.validator.Limit(sl.Role)))
			changed = append(changed, sl.Index)
			break
		}
	}
	if len(changed) == 0 {
		logger.CtxInfo(ctx, "Carousel rejected with no repairable slides")
		return nil
	}

	strategies := s.classifier.Classify(ctx, slides, topic)
	var redo []domain.Slide
	for _, sl := range slides {
		if !strategies[sl.Index].SameTarget(result.Strategies[sl.Index]) {
			redo = append(redo, sl)
		}
	}

	assets := make(map[int]domain.ResolvedAsset, len(result.Assets))
	for k, v := range result.Assets {
		assets[k] = v
	}
	if len(redo) > 0 {
		fresh, err := s.resolver.ResolveCarousel(ctx, redo, strategies, topic)
		if err != nil {
			return fmt.Errorf("failed to resolve repaired slides: %w", err)
		}
		for k, v := range fresh {
			assets[k] = v
		}
	}

	validation := s.validator.Validate(ctx, slides, assets)

	sort.Ints(changed)
	result.Slides = slides
	result.Strategies = strategies
	result.Assets = assets
	result.Validation = validation
	result.Accepted = validation.Accepted()
	result.Repaired = true
	result.RepairedSlides = changed

	logger.With(logger.Fields{
		"truncated":   changed,
		"re_resolved": len(redo),
		"accepted":    result.Accepted,
	}).Info(ctx, "Repair pass finished")
	return nil
}

// Validate validates slides without resolving assets.
func (s *CarouselService) Validate(ctx context.Context, slides []domain.Slide) (*domain.ValidationResult, error) {
	assigned, err := domain.AssignRoles(slides)
	if err != nil {
		return nil, err
	}
	return s.validator.Validate(ctx, assigned, nil), nil
}
