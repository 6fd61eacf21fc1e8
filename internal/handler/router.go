package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/ad-tracker/viral-video-detector/internal/middleware"
)

// NewRouter wires the reporting API. When apiKeys is empty /api/v1 is open.
func NewRouter(videos *VideoHandler, health *HealthHandler, apiKeys []string, logger *zap.Logger) *gin.Engine {
	if logger == nil {
		logger = zap.NewNop()
	}

	r := gin.New()
	r.Use(gin.Recovery(), middleware.RequestLogger(logger))

	r.GET("/health/live", health.LivenessProbe)
	r.GET("/health/ready", health.ReadinessProbe)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api/v1")
	if len(apiKeys) > 0 {
		api.Use(middleware.NewAPIKeyAuth(apiKeys, logger).Handler())
	}
	api.GET("/videos", videos.ListAll)
	api.GET("/videos/viral", videos.ListViral)
	api.GET("/videos/:id", videos.Get)
	api.GET("/stats", videos.Stats)

	return r
}
