package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/andalan-id/service-center-api/internal/service"
	"github.com/andalan-id/service-center-api/pkg/response"
)

// MetricsHandler exposes Prometheus scrape output and a JSON snapshot.
type MetricsHandler struct {
	metrics *service.MetricsService
}

// NewMetricsHandler creates a new handler.
func NewMetricsHandler(metrics *service.MetricsService) *MetricsHandler {
	return &MetricsHandler{metrics: metrics}
}

// Prometheus serves the scrape endpoint.
func (h *MetricsHandler) Prometheus(c *gin.Context) {
	h.metrics.Handler().ServeHTTP(c.Writer, c.Request)
}

// Snapshot godoc
// @Summary Metrics snapshot
// @Description Aggregated lifecycle counters for dashboards
// @Tags Metrics
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /metrics/snapshot [get]
func (h *MetricsHandler) Snapshot(c *gin.Context) {
	response.JSON(c, http.StatusOK, h.metrics.Snapshot(), nil)
}
