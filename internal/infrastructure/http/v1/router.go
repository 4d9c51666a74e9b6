// Package v1 provides HTTP API version 1.
package v1

import (
	"github.com/gin-gonic/gin"

	"fieldsettings/internal/domain/drafts"
	"fieldsettings/internal/domain/fieldsettings"
	"fieldsettings/internal/infrastructure/cache"
	"fieldsettings/internal/infrastructure/http/v1/handlers"
	"fieldsettings/internal/infrastructure/http/v1/middleware"
	"fieldsettings/pkg/logger"
)

// RouterConfig holds router dependencies.
type RouterConfig struct {
	// Logger for request logging
	Logger *logger.Logger

	// JWTValidator for token validation
	JWTValidator middleware.JWTValidator

	// Backends returns the settings store of one institute
	Backends drafts.BackendFactory

	// Drafts owns the editing sessions
	Drafts *drafts.Manager

	// Cache serves non-forced loads; optional
	Cache *cache.SnapshotCache

	// History lists saved versions; optional
	History handlers.HistoryReader

	// DB backs the readiness probe
	DB handlers.Pinger

	// Idempotency replays repeated saves; optional
	Idempotency *cache.IdempotencyStore

	// Development enables gin debug mode
	Development bool
}

// NewRouter creates and configures the Gin router.
func NewRouter(cfg RouterConfig) *gin.Engine {
	if cfg.Development {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.Default()
	}

	router := gin.New()

	// Global middleware (order matters!)
	router.Use(middleware.Recovery())
	router.Use(middleware.Trace())
	router.Use(middleware.Logger(cfg.Logger))
	router.Use(middleware.ErrorHandler())

	// Health endpoints (no auth)
	if cfg.DB != nil {
		var draftCount func() int
		if cfg.Drafts != nil {
			draftCount = cfg.Drafts.Len
		}
		healthHandler := handlers.NewHealthHandler(cfg.DB, cfg.Cache, draftCount)
		health := router.Group("/health")
		{
			health.GET("/live", healthHandler.Live)
			health.GET("/ready", healthHandler.Ready)
		}
	}

	v1 := router.Group("/api/v1")
	v1.Use(middleware.Auth(cfg.JWTValidator)) // 1. Validate JWT
	v1.Use(middleware.Institute())            // 2. Resolve institute
	if cfg.Idempotency != nil {
		v1.Use(middleware.Idempotency(cfg.Idempotency))
	}

	base := handlers.NewBaseHandler()
	registerSettingsRoutes(v1, base, cfg)
	registerDraftRoutes(v1, base, cfg)

	return router
}

// snapshotCache keeps a nil cache a nil interface.
func snapshotCache(c *cache.SnapshotCache) fieldsettings.SnapshotCache {
	if c == nil {
		return nil
	}
	return c
}

// registerSettingsRoutes registers whole-snapshot endpoints.
func registerSettingsRoutes(rg *gin.RouterGroup, base *handlers.BaseHandler, cfg RouterConfig) {
	h := handlers.NewSettingsHandler(base, cfg.Backends, snapshotCache(cfg.Cache), cfg.History)

	settings := rg.Group("/settings")
	{
		settings.GET("", h.Get)
		settings.GET("/columns/:location", h.Columns)
		settings.GET("/history", middleware.RequireFieldAdmin(), h.History)
		settings.PUT("", middleware.RequireFieldAdmin(), h.Put)
	}
}

// registerDraftRoutes registers editing sessions and their mutations.
// Every draft endpoint requires the field admin role.
func registerDraftRoutes(rg *gin.RouterGroup, base *handlers.BaseHandler, cfg RouterConfig) {
	if cfg.Drafts == nil {
		return
	}
	h := handlers.NewDraftHandler(base, cfg.Drafts)

	d := rg.Group("/drafts")
	d.Use(middleware.RequireFieldAdmin())
	{
		d.POST("", h.Open)
		d.GET("/:id", h.Get)
		d.DELETE("/:id", h.Discard)
		d.POST("/:id/reload", h.Reload)
		d.POST("/:id/save", h.Save)
		d.GET("/:id/columns/:location", h.Columns)

		d.POST("/:id/system-fields/:key/rename", h.RenameSystemField)
		d.POST("/:id/system-fields/:key/toggle", h.ToggleSystemField)

		d.POST("/:id/custom-fields", h.AddCustomField)
		d.POST("/:id/fields/:fieldId/rename", h.RenameField)
		d.POST("/:id/fields/:fieldId/type", h.ChangeType)
		d.POST("/:id/fields/:fieldId/required", h.ToggleRequired)
		d.POST("/:id/fields/:fieldId/visibility", h.ToggleVisibility)
		d.DELETE("/:id/fields/:fieldId", h.RemoveField)

		d.POST("/:id/fields/:fieldId/options", h.AddOption)
		d.PUT("/:id/fields/:fieldId/options/:index", h.EditOption)
		d.DELETE("/:id/fields/:fieldId/options/:index", h.RemoveOption)

		d.POST("/:id/groups", h.CreateGroup)
		d.POST("/:id/groups/:groupId/fields", h.AddFieldToGroup)
		d.POST("/:id/groups/:groupId/rename", h.RenameGroup)
		d.DELETE("/:id/groups/:groupId", h.RemoveGroup)
		d.DELETE("/:id/groups/:groupId/fields/:fieldId", h.RemoveFieldFromGroup)

		d.POST("/:id/reorder", h.Reorder)
	}
}
