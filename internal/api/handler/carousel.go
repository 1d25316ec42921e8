package handler

import (
	"context"
	"errors"
	"net/http"
	"unicode/utf8"

	"github.com/gin-gonic/gin"
	"github.com/timmy/carousel/internal/domain"
	"github.com/timmy/carousel/internal/logger"
	"github.com/timmy/carousel/internal/service"
)

// CarouselHandler exposes classification, resolution and validation.
type CarouselHandler struct {
	carousel *service.CarouselService
}

// NewCarouselHandler creates a new carousel handler.
// Parameters:
//   - carousel: carousel service instance.
// Returns:
//   - *CarouselHandler: initialized handler.
func NewCarouselHandler(carousel *service.CarouselService) *CarouselHandler {
	return &CarouselHandler{carousel: carousel}
}

// ValidateRequest is the body of POST /api/v1/carousels/validate.
type ValidateRequest struct {
	Slides []domain.Slide `json:"slides" binding:"required,min=1,dive"`
}

// ValidateResponse reports the validation of a slide set.
type ValidateResponse struct {
	Accepted   bool                     `json:"accepted"`
	Validation *domain.ValidationResult `json:"validation"`
}

// TruncateRequest is the body of POST /api/v1/text/truncate.
// Limit wins over Role when both are set.
type TruncateRequest struct {
	Text  string           `json:"text"`
	Limit int              `json:"limit" binding:"min=0"`
	Role  domain.SlideRole `json:"role"`
}

// TruncateResponse carries the truncated text.
type TruncateResponse struct {
	Text      string `json:"text"`
	Truncated bool   `json:"truncated"`
	Length    int    `json:"length"`
	Limit     int    `json:"limit"`
}

// Process handles POST /api/v1/carousels/process.
// Rejected carousels are still a 200; the body carries accepted=false.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *CarouselHandler) Process(c *gin.Context) {
	var req service.CarouselRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}

	ctx := c.Request.Context()
	result, err := h.carousel.Process(ctx, &req)
	if err != nil {
		status := statusFor(err)
		if status >= http.StatusInternalServerError {
			logger.CtxError(ctx, "Carousel processing failed: %v", err)
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, result)
}

// Validate handles POST /api/v1/carousels/validate.
func (h *CarouselHandler) Validate(c *gin.Context) {
	var req ValidateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}

	res, err := h.carousel.Validate(c.Request.Context(), req.Slides)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, ValidateResponse{Accepted: res.Accepted(), Validation: res})
}

// Truncate handles POST /api/v1/text/truncate.
func (h *CarouselHandler) Truncate(c *gin.Context) {
	var req TruncateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}

	limit := req.Limit
	if limit == 0 {
		if !req.Role.Valid() {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Either a positive limit or a valid role is required"})
			return
		}
		limit = h.carousel.Validator().Limit(req.Role)
	}

	out := service.Truncate(req.Text, limit)
	c.JSON(http.StatusOK, TruncateResponse{
		Text:      out,
		Truncated: out != req.Text,
		Length:    utf8.RuneCountInString(out),
		Limit:     limit,
	})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidSlides):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNotWarmed):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
