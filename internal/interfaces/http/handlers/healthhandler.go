package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/vetiver-inc/vetiver/internal/shared/logger"
)

// HealthHandler serves the liveness endpoint with dependency probes.
type HealthHandler struct {
	db     *gorm.DB
	cache  cachePinger
	logger logger.Interface
}

// NewHealthHandler creates a new health handler. cache may be nil when
// the pending-usage cache is disabled.
func NewHealthHandler(db *gorm.DB, cache cachePinger, log logger.Interface) *HealthHandler {
	return &HealthHandler{
		db:     db,
		cache:  cache,
		logger: log,
	}
}

// Healthz handles GET /healthz
func (h *HealthHandler) Healthz(c *gin.Context) {
	ctx := c.Request.Context()
	healthy := true

	dbStatus := "up"
	if sqlDB, err := h.db.DB(); err != nil {
		dbStatus = "down"
		healthy = false
	} else if err := sqlDB.PingContext(ctx); err != nil {
		dbStatus = "down"
		healthy = false
	}

	// Cache loss degrades the write-behind path to direct DB writes, so it
	// never fails the probe.
	cacheStatus := "disabled"
	if h.cache != nil {
		cacheStatus = "up"
		if err := h.cache.Ping(ctx); err != nil {
			cacheStatus = "down"
		}
	}

	status := http.StatusOK
	state := "healthy"
	if !healthy {
		status = http.StatusServiceUnavailable
		state = "unhealthy"
		h.logger.Warnw("health check failed", "database", dbStatus, "cache", cacheStatus)
	}

	c.JSON(status, gin.H{
		"status":   state,
		"database": dbStatus,
		"cache":    cacheStatus,
	})
}
