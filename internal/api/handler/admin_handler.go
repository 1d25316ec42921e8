package handler

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/timmy/carousel/internal/cache"
	"github.com/timmy/carousel/internal/domain"
	"github.com/timmy/carousel/internal/logger"
)

// CacheAdmin is the part of the cache store the admin endpoints drive.
type CacheAdmin interface {
	Entries() []domain.CacheEntry
	Warmed() bool
	PreWarm(ctx context.Context) (cache.PrewarmReport, error)
	Prune(ctx context.Context, olderThan time.Duration) (int, error)
}

// AdminHandler handles cache administration.
type AdminHandler struct {
	store    CacheAdmin
	pruneAge time.Duration

	// Pre-warm job state
	mu            sync.RWMutex
	isRunning     bool
	lastReport    *cache.PrewarmReport
	lastRunTime   time.Time
	lastRunStatus string
}

// NewAdminHandler creates a new admin handler.
// Parameters:
//   - store: cache store to inspect and maintain.
//   - pruneAge: default age for prune requests without older_than.
// Returns:
//   - *AdminHandler: initialized handler.
func NewAdminHandler(store CacheAdmin, pruneAge time.Duration) *AdminHandler {
	return &AdminHandler{store: store, pruneAge: pruneAge}
}

// CacheListResponse lists committed cache entries.
type CacheListResponse struct {
	Warmed        bool                 `json:"warmed"`
	Total         int                  `json:"total"`
	ByKind        map[string]int       `json:"by_kind"`
	Entries       []domain.CacheEntry  `json:"entries"`
	LastRunTime   string               `json:"last_prewarm_time,omitempty"`
	LastRunStatus string               `json:"last_prewarm_status,omitempty"`
	LastReport    *cache.PrewarmReport `json:"last_prewarm,omitempty"`
}

// PrewarmResponse represents the pre-warm API response.
type PrewarmResponse struct {
	Message string               `json:"message"`
	Report  *cache.PrewarmReport `json:"report,omitempty"`
}

// ListCache handles GET /api/v1/admin/cache. Optional kind and hint
// query parameters filter the entries.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *AdminHandler) ListCache(c *gin.Context) {
	kind := c.Query("kind")
	hint := c.Query("hint")

	resp := CacheListResponse{
		Warmed:  h.store.Warmed(),
		ByKind:  make(map[string]int),
		Entries: []domain.CacheEntry{},
	}
	for _, e := range h.store.Entries() {
		resp.ByKind[string(e.Kind)]++
		if kind != "" && string(e.Kind) != kind {
			continue
		}
		if hint != "" && e.Hint != hint {
			continue
		}
		resp.Entries = append(resp.Entries, e)
	}
	resp.Total = len(resp.Entries)

	h.mu.RLock()
	if !h.lastRunTime.IsZero() {
		resp.LastRunTime = h.lastRunTime.Format(time.RFC3339)
	}
	resp.LastRunStatus = h.lastRunStatus
	resp.LastReport = h.lastReport
	h.mu.RUnlock()

	c.JSON(http.StatusOK, resp)
}

// TriggerPrewarm handles POST /api/v1/admin/cache/prewarm.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *AdminHandler) TriggerPrewarm(c *gin.Context) {
	ctx := c.Request.Context()

	h.mu.Lock()
	if h.isRunning {
		h.mu.Unlock()
		logger.CtxWarn(ctx, "Pre-warm request rejected: already running, client_ip=%s", c.ClientIP())
		c.JSON(http.StatusConflict, gin.H{"error": "Pre-warm is already running"})
		return
	}
	h.isRunning = true
	h.mu.Unlock()

	// keep request fields but survive client disconnects
	report, err := h.store.PreWarm(context.WithoutCancel(ctx))

	h.mu.Lock()
	h.isRunning = false
	h.lastRunTime = time.Now()
	if err != nil {
		h.lastRunStatus = "failed: " + err.Error()
	} else {
		h.lastRunStatus = "success"
		h.lastReport = &report
	}
	h.mu.Unlock()

	if err != nil {
		logger.CtxError(ctx, "Pre-warm failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, PrewarmResponse{
		Message: "Pre-warm completed successfully",
		Report:  &report,
	})
}

// Prune handles POST /api/v1/admin/cache/prune?older_than=720h.
func (h *AdminHandler) Prune(c *gin.Context) {
	ctx := c.Request.Context()

	age := h.pruneAge
	if raw := c.Query("older_than"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid older_than: " + err.Error()})
			return
		}
		age = d
	}
	if age <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "older_than must be positive"})
		return
	}

	removed, err := h.store.Prune(ctx, age)
	if err != nil {
		logger.CtxError(ctx, "Cache prune failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	logger.With(logger.Fields{logger.FieldCount: removed}).Info(ctx, "Cache pruned: older_than=%s", age)
	c.JSON(http.StatusOK, gin.H{"removed": removed, "older_than": age.String()})
}
