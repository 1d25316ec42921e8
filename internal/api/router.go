package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/timmy/carousel/internal/api/handler"
	"github.com/timmy/carousel/internal/api/middleware"
	"github.com/timmy/carousel/internal/config"
	"github.com/timmy/carousel/internal/logger"
	"github.com/timmy/carousel/internal/service"
)

// Deps are the components served by the router.
type Deps struct {
	Carousel *service.CarouselService
	Cache    handler.CacheAdmin
	Gatherer prometheus.Gatherer
	Logger   *logger.Logger
	// PruneAge is the default age for cache prune requests.
	PruneAge time.Duration
}

// SetupRouter configures the Gin router with all routes
func SetupRouter(deps Deps, cfg config.ServerConfig) *gin.Engine {
	// Set Gin mode
	switch cfg.Mode {
	case "release":
		gin.SetMode(gin.ReleaseMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.DebugMode)
	}

	r := gin.New()

	// Add middleware
	r.Use(gin.Recovery())
	r.Use(middleware.LoggerMiddleware(deps.Logger))
	r.Use(middleware.CORS(middleware.CORSConfig{
		AllowedOrigins:  cfg.CORS.AllowedOrigins,
		AllowAllOrigins: cfg.CORS.AllowAllOrigins,
	}))

	// Create handlers
	healthHandler := handler.NewHealthHandler(deps.Cache.Warmed)
	carouselHandler := handler.NewCarouselHandler(deps.Carousel)
	adminHandler := handler.NewAdminHandler(deps.Cache, deps.PruneAge)

	// Health check
	r.GET("/health", healthHandler.Health)
	r.GET("/ready", healthHandler.Ready)

	if deps.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{})))
	}

	// API v1 routes
	v1 := r.Group("/api/v1")
	{
		// Carousels
		v1.POST("/carousels/process", carouselHandler.Process)
		v1.POST("/carousels/validate", carouselHandler.Validate)

		// Text
		v1.POST("/text/truncate", carouselHandler.Truncate)

		// Cache administration
		admin := v1.Group("/admin")
		admin.GET("/cache", adminHandler.ListCache)
		admin.POST("/cache/prewarm", adminHandler.TriggerPrewarm)
		admin.POST("/cache/prune", adminHandler.Prune)
	}

	return r
}
