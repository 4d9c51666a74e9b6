// Package handlers provides HTTP request handlers.
package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"fieldsettings/internal/infrastructure/cache"
	"fieldsettings/internal/infrastructure/storage/postgres"
)

// Pinger is the database dependency of the readiness probe.
type Pinger interface {
	Ping(ctx context.Context) error
	Stats() postgres.PoolStats
}

// HealthHandler provides health check endpoints.
type HealthHandler struct {
	db     Pinger
	cache  *cache.SnapshotCache
	drafts func() int
}

// NewHealthHandler creates a new health handler. cache and drafts may be nil.
func NewHealthHandler(db Pinger, snapshots *cache.SnapshotCache, drafts func() int) *HealthHandler {
	return &HealthHandler{db: db, cache: snapshots, drafts: drafts}
}

// Live handles liveness probe (is the process alive?).
// GET /health/live
func (h *HealthHandler) Live(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
	})
}

// Ready handles readiness probe (is the service ready to accept traffic?).
// GET /health/ready
func (h *HealthHandler) Ready(c *gin.Context) {
	if err := h.db.Ping(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "error",
			"checks": map[string]string{
				"database": "unhealthy: " + err.Error(),
			},
		})
		return
	}

	body := gin.H{
		"status": "ok",
		"checks": map[string]string{
			"database": "healthy",
		},
		"database": h.db.Stats(),
	}
	if h.cache != nil {
		body["snapshotCache"] = h.cache.Stats()
	}
	if h.drafts != nil {
		body["drafts"] = h.drafts()
	}
	c.JSON(http.StatusOK, body)
}
