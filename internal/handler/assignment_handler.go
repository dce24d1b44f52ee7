package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/andalan-id/service-center-api/internal/dto"
	"github.com/andalan-id/service-center-api/internal/models"
	"github.com/andalan-id/service-center-api/internal/service"
	appErrors "github.com/andalan-id/service-center-api/pkg/errors"
	"github.com/andalan-id/service-center-api/pkg/response"
)

// AssignmentHandler wires assignment lifecycle endpoints to the workflow
// facade. One endpoint per state machine event keeps the transition rules
// visible in the route table.
type AssignmentHandler struct {
	workflow *service.WorkflowService
}

// NewAssignmentHandler creates a new handler.
func NewAssignmentHandler(workflow *service.WorkflowService) *AssignmentHandler {
	return &AssignmentHandler{workflow: workflow}
}

// Create godoc
// @Summary Assign work item
// @Description Claim the work item's single active assignment slot for a worker
// @Tags Assignments
// @Accept json
// @Produce json
// @Param payload body dto.CreateAssignmentRequest true "Assignment payload"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope "CONFLICTING_ASSIGNMENT"
// @Router /assignments [post]
func (h *AssignmentHandler) Create(c *gin.Context) {
	var req dto.CreateAssignmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid assignment payload"))
		return
	}
	assignment, err := h.workflow.CreateAssignment(c.Request.Context(), currentClaims(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, assignment)
}

// Get godoc
// @Summary Get assignment
// @Tags Assignments
// @Produce json
// @Param id path string true "Assignment ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /assignments/{id} [get]
func (h *AssignmentHandler) Get(c *gin.Context) {
	assignment, err := h.workflow.GetAssignment(c.Request.Context(), currentClaims(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, assignment, nil)
}

// Accept godoc
// @Summary Accept assignment
// @Description Worker acknowledges the assignment; stops the response SLA clock
// @Tags Assignments
// @Produce json
// @Param id path string true "Assignment ID"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope "INVALID_TRANSITION"
// @Router /assignments/{id}/accept [post]
func (h *AssignmentHandler) Accept(c *gin.Context) {
	h.transition(c, models.AssignmentEventAccept, service.TransitionPayload{})
}

// Start godoc
// @Summary Start assignment
// @Description Worker begins work; marks the work item in progress
// @Tags Assignments
// @Produce json
// @Param id path string true "Assignment ID"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope "INVALID_TRANSITION"
// @Router /assignments/{id}/start [post]
func (h *AssignmentHandler) Start(c *gin.Context) {
	h.transition(c, models.AssignmentEventStart, service.TransitionPayload{})
}

// Submit godoc
// @Summary Submit assignment
// @Description Worker submits finished work with mandatory notes
// @Tags Assignments
// @Accept json
// @Produce json
// @Param id path string true "Assignment ID"
// @Param payload body dto.SubmitAssignmentRequest true "Submission notes"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /assignments/{id}/submit [post]
func (h *AssignmentHandler) Submit(c *gin.Context) {
	var req dto.SubmitAssignmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "submission notes required"))
		return
	}
	h.transition(c, models.AssignmentEventSubmit, service.TransitionPayload{Notes: req.Notes})
}

// Approve godoc
// @Summary Approve submission
// @Description Reviewer approves submitted work; cancels remaining SLA tickets
// @Tags Assignments
// @Accept json
// @Produce json
// @Param id path string true "Assignment ID"
// @Param payload body dto.ReviewAssignmentRequest false "Optional feedback"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /assignments/{id}/approve [post]
func (h *AssignmentHandler) Approve(c *gin.Context) {
	var req dto.ReviewAssignmentRequest
	_ = c.ShouldBindJSON(&req)
	h.transition(c, models.AssignmentEventApprove, service.TransitionPayload{Feedback: req.Feedback})
}

// Reject godoc
// @Summary Reject submission
// @Description Reviewer rejects submitted work with mandatory feedback
// @Tags Assignments
// @Accept json
// @Produce json
// @Param id path string true "Assignment ID"
// @Param payload body dto.ReviewAssignmentRequest true "Rejection feedback"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /assignments/{id}/reject [post]
func (h *AssignmentHandler) Reject(c *gin.Context) {
	var req dto.ReviewAssignmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "rejection feedback required"))
		return
	}
	h.transition(c, models.AssignmentEventReject, service.TransitionPayload{Feedback: req.Feedback})
}

// Handoff godoc
// @Summary Hand off assignment
// @Description Retire the assignment as returned and spawn a new one for the receiving worker
// @Tags Assignments
// @Accept json
// @Produce json
// @Param id path string true "Assignment ID"
// @Param payload body dto.HandoffRequest true "Handoff payload"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope "INVALID_HANDOFF_STATE"
// @Router /assignments/{id}/handoff [post]
func (h *AssignmentHandler) Handoff(c *gin.Context) {
	var req dto.HandoffRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid handoff payload"))
		return
	}
	successor, err := h.workflow.Handoff(c.Request.Context(), currentClaims(c), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, successor)
}

func (h *AssignmentHandler) transition(c *gin.Context, event models.AssignmentEvent, payload service.TransitionPayload) {
	assignment, err := h.workflow.TransitionAssignment(c.Request.Context(), currentClaims(c), c.Param("id"), event, payload)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, assignment, nil)
}
