package handler

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/andalan-id/service-center-api/internal/service"
	"github.com/andalan-id/service-center-api/pkg/response"
)

// ExportHandler serves downloadable work-order reports.
type ExportHandler struct {
	exports *service.ExportService
}

// NewExportHandler creates a new handler.
func NewExportHandler(exports *service.ExportService) *ExportHandler {
	return &ExportHandler{exports: exports}
}

// WorkOrder godoc
// @Summary Export work order report
// @Description Render the work item's assignment chain with SLA outcomes as CSV or PDF
// @Tags Exports
// @Produce octet-stream
// @Param id path string true "Work item ID"
// @Param format query string false "csv or pdf" default(csv)
// @Success 200 {file} binary
// @Failure 403 {object} response.Envelope
// @Router /exports/work-orders/{id} [get]
func (h *ExportHandler) WorkOrder(c *gin.Context) {
	format := service.ExportFormat(c.DefaultQuery("format", "csv"))
	content, contentType, err := h.exports.WorkOrderReport(c.Request.Context(), currentClaims(c), c.Param("id"), format)
	if err != nil {
		response.Error(c, err)
		return
	}
	filename := fmt.Sprintf("work-order-%s.%s", c.Param("id"), format)
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, contentType, content)
}
