package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/andalan-id/service-center-api/internal/dto"
	"github.com/andalan-id/service-center-api/internal/models"
	"github.com/andalan-id/service-center-api/internal/service"
	appErrors "github.com/andalan-id/service-center-api/pkg/errors"
	"github.com/andalan-id/service-center-api/pkg/response"
)

// WorkItemHandler wires work item endpoints to the services.
type WorkItemHandler struct {
	workItems *service.WorkItemService
	workflow  *service.WorkflowService
	activity  *service.ActivityService
}

// NewWorkItemHandler creates a new handler.
func NewWorkItemHandler(workItems *service.WorkItemService, workflow *service.WorkflowService, activity *service.ActivityService) *WorkItemHandler {
	return &WorkItemHandler{workItems: workItems, workflow: workflow, activity: activity}
}

// Create godoc
// @Summary Create work item
// @Description Create a work item and open its resolution SLA ticket
// @Tags WorkItems
// @Accept json
// @Produce json
// @Param payload body dto.CreateWorkItemRequest true "Work item payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /work-items [post]
func (h *WorkItemHandler) Create(c *gin.Context) {
	var req dto.CreateWorkItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid work item payload"))
		return
	}
	item, err := h.workItems.Create(c.Request.Context(), currentClaims(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, item)
}

// List godoc
// @Summary List work items
// @Description List work items with filters and pagination
// @Tags WorkItems
// @Produce json
// @Param status query string false "Status filter"
// @Param category_id query string false "Category filter"
// @Param search query string false "Title search"
// @Param page query int false "Page"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /work-items [get]
func (h *WorkItemHandler) List(c *gin.Context) {
	filter := models.WorkItemFilter{
		CategoryID: c.Query("category_id"),
		ParentID:   c.Query("parent_id"),
		Search:     c.Query("search"),
	}
	if status := c.Query("status"); status != "" {
		filter.Status = []models.WorkItemStatus{models.WorkItemStatus(status)}
	}
	filter.Page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	filter.PageSize, _ = strconv.Atoi(c.DefaultQuery("page_size", "50"))

	items, total, err := h.workItems.List(c.Request.Context(), currentClaims(c), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	pagination := &models.Pagination{
		Page:       filter.Page,
		PageSize:   filter.PageSize,
		TotalCount: total,
	}
	response.JSON(c, http.StatusOK, items, pagination)
}

// Get godoc
// @Summary Get work item
// @Tags WorkItems
// @Produce json
// @Param id path string true "Work item ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /work-items/{id} [get]
func (h *WorkItemHandler) Get(c *gin.Context) {
	item, err := h.workItems.Get(c.Request.Context(), currentClaims(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, item, nil)
}

// Update godoc
// @Summary Update work item
// @Description Update descriptive fields of a non-terminal work item
// @Tags WorkItems
// @Accept json
// @Produce json
// @Param id path string true "Work item ID"
// @Param payload body dto.UpdateWorkItemRequest true "Update payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /work-items/{id} [put]
func (h *WorkItemHandler) Update(c *gin.Context) {
	var req dto.UpdateWorkItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid work item payload"))
		return
	}
	item, err := h.workItems.Update(c.Request.Context(), currentClaims(c), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, item, nil)
}

// Complete godoc
// @Summary Complete work item
// @Description Mark a work item completed and cancel its open SLA tickets
// @Tags WorkItems
// @Produce json
// @Param id path string true "Work item ID"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /work-items/{id}/complete [post]
func (h *WorkItemHandler) Complete(c *gin.Context) {
	item, err := h.workItems.Complete(c.Request.Context(), currentClaims(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, item, nil)
}

// Cancel godoc
// @Summary Cancel work item
// @Description Mark a work item cancelled and cancel its open SLA tickets
// @Tags WorkItems
// @Produce json
// @Param id path string true "Work item ID"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /work-items/{id}/cancel [post]
func (h *WorkItemHandler) Cancel(c *gin.Context) {
	item, err := h.workItems.Cancel(c.Request.Context(), currentClaims(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, item, nil)
}

// Delete godoc
// @Summary Delete work item
// @Description Soft delete a terminal work item
// @Tags WorkItems
// @Produce json
// @Param id path string true "Work item ID"
// @Success 204 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /work-items/{id} [delete]
func (h *WorkItemHandler) Delete(c *gin.Context) {
	if err := h.workItems.Delete(c.Request.Context(), currentClaims(c), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// History godoc
// @Summary Assignment history
// @Description Chain of custody: assignments ordered by assigned_at with handoff records
// @Tags WorkItems
// @Produce json
// @Param id path string true "Work item ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /work-items/{id}/history [get]
func (h *WorkItemHandler) History(c *gin.Context) {
	entries, err := h.workflow.History(c.Request.Context(), currentClaims(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, entries, nil)
}

// Activity godoc
// @Summary Work item activity timeline
// @Tags WorkItems
// @Produce json
// @Param id path string true "Work item ID"
// @Success 200 {object} response.Envelope
// @Router /work-items/{id}/activity [get]
func (h *WorkItemHandler) Activity(c *gin.Context) {
	subject := models.SubjectRef{Kind: models.SubjectKindWorkItem, ID: c.Param("id")}
	entries, err := h.activity.Timeline(c.Request.Context(), currentClaims(c), models.ActivityFilter{Subject: &subject})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, entries, nil)
}
