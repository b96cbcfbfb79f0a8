package http

import (
	"net/http"

	"livesession/internal/core/domain"
	"livesession/internal/infrastructure/monitoring"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type HealthHandler struct {
	checker  *monitoring.HealthChecker
	state    func() domain.ConnectionState
	gatherer prometheus.Gatherer
}

// NewHealthHandler serves health, readiness and metrics. A nil gatherer
// disables /metrics.
func NewHealthHandler(checker *monitoring.HealthChecker, state func() domain.ConnectionState, gatherer prometheus.Gatherer) *HealthHandler {
	return &HealthHandler{checker: checker, state: state, gatherer: gatherer}
}

func (h *HealthHandler) SetupRoutes(router *gin.Engine) {
	router.GET("/health", h.Health)
	router.GET("/ready", h.Ready)
	if h.gatherer != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{})))
	}
}

func (h *HealthHandler) Health(c *gin.Context) {
	status := h.checker.CheckAll(c.Request.Context())
	code := http.StatusOK
	if status.Status != monitoring.StatusHealthy {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, gin.H{
		"status":    status.Status,
		"timestamp": status.Timestamp,
		"checks":    status.Checks,
		"session":   h.state(),
	})
}

func (h *HealthHandler) Ready(c *gin.Context) {
	if !h.checker.IsReady(c.Request.Context(), h.state) {
		c.JSON(http.StatusServiceUnavailable, gin.H{"ready": false, "session": h.state()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ready": true, "session": h.state()})
}
