package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"eventgate/pkg/health"
)

// RegisterSystemRoutes mounts /health and /metrics. Degraded still answers 200.
func RegisterSystemRoutes(router *gin.Engine, checks *health.CheckerRegistry) {
	router.GET("/health", func(c *gin.Context) {
		h := checks.Check(c.Request.Context())
		status := http.StatusOK
		if h.Status == health.StatusUnhealthy {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, h)
	})

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
}
