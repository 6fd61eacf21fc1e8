// Package handler provides the gin handlers of the reporting API.
package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// readinessTimeout bounds the store ping of a readiness probe.
const readinessTimeout = 2 * time.Second

// Pinger checks store connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthReporter reports broker connectivity.
type HealthReporter interface {
	IsHealthy() bool
}

// HealthHandler handles health check endpoints.
type HealthHandler struct {
	store     Pinger
	publisher HealthReporter
}

// NewHealthHandler creates a new HealthHandler instance. publisher may be nil
// when events are not published.
func NewHealthHandler(store Pinger, publisher HealthReporter) *HealthHandler {
	return &HealthHandler{
		store:     store,
		publisher: publisher,
	}
}

// LivenessProbe checks if the application is running.
func (h *HealthHandler) LivenessProbe(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "UP",
		"time":   time.Now(),
	})
}

// ReadinessProbe checks if the application is ready to serve traffic.
func (h *HealthHandler) ReadinessProbe(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), readinessTimeout)
	defer cancel()

	if err := h.store.Ping(ctx); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":   "DOWN",
			"database": "unhealthy",
			"error":    err.Error(),
			"time":     time.Now(),
		})
		return
	}

	body := gin.H{
		"status":   "UP",
		"database": "healthy",
		"time":     time.Now(),
	}

	if h.publisher != nil {
		if !h.publisher.IsHealthy() {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":   "DOWN",
				"rabbitmq": "unhealthy",
				"time":     time.Now(),
			})
			return
		}
		body["rabbitmq"] = "healthy"
	}

	c.JSON(http.StatusOK, body)
}
