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

// TicketHandler wires SLA ticket endpoints to the ticket engine.
type TicketHandler struct {
	sla *service.SlaService
}

// NewTicketHandler creates a new handler.
func NewTicketHandler(sla *service.SlaService) *TicketHandler {
	return &TicketHandler{sla: sla}
}

// Open godoc
// @Summary Open SLA ticket
// @Description Attach a time-boxed obligation to a work item, assignment, or enquiry
// @Tags Tickets
// @Accept json
// @Produce json
// @Param payload body dto.OpenTicketRequest true "Ticket payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /sla-tickets [post]
func (h *TicketHandler) Open(c *gin.Context) {
	var req dto.OpenTicketRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid ticket payload"))
		return
	}
	ticket, err := h.sla.Open(c.Request.Context(), currentClaims(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, ticket)
}

// Get godoc
// @Summary Get SLA ticket
// @Tags Tickets
// @Produce json
// @Param id path string true "Ticket ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /sla-tickets/{id} [get]
func (h *TicketHandler) Get(c *gin.Context) {
	ticket, err := h.sla.Get(c.Request.Context(), currentClaims(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, ticket, nil)
}

// List godoc
// @Summary List SLA tickets
// @Tags Tickets
// @Produce json
// @Param subject_kind query string false "Subject kind"
// @Param subject_id query string false "Subject ID"
// @Param status query string false "Status filter"
// @Param page query int false "Page"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /sla-tickets [get]
func (h *TicketHandler) List(c *gin.Context) {
	filter := models.TicketFilter{}
	if kind, id := c.Query("subject_kind"), c.Query("subject_id"); kind != "" && id != "" {
		filter.Subject = &models.SubjectRef{Kind: models.SubjectKind(kind), ID: id}
	}
	if status := c.Query("status"); status != "" {
		filter.Status = []models.TicketStatus{models.TicketStatus(status)}
	}
	filter.Page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	filter.PageSize, _ = strconv.Atoi(c.DefaultQuery("page_size", "50"))

	tickets, err := h.sla.List(c.Request.Context(), currentClaims(c), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, tickets, nil)
}

// Acknowledge godoc
// @Summary Acknowledge SLA ticket
// @Description Stamp first response on an active ticket; idempotent
// @Tags Tickets
// @Produce json
// @Param id path string true "Ticket ID"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /sla-tickets/{id}/acknowledge [post]
func (h *TicketHandler) Acknowledge(c *gin.Context) {
	ticket, err := h.sla.Acknowledge(c.Request.Context(), currentClaims(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, ticket, nil)
}

// Resolve godoc
// @Summary Resolve SLA ticket
// @Description Close the ticket as met or cancelled; resolving a terminal ticket returns its stored state
// @Tags Tickets
// @Accept json
// @Produce json
// @Param id path string true "Ticket ID"
// @Param payload body dto.ResolveTicketRequest true "Outcome"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /sla-tickets/{id}/resolve [post]
func (h *TicketHandler) Resolve(c *gin.Context) {
	var req dto.ResolveTicketRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid resolve payload"))
		return
	}
	ticket, err := h.sla.Resolve(c.Request.Context(), currentClaims(c), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, ticket, nil)
}

// Sweep godoc
// @Summary Run breach sweep
// @Description Flip overdue active tickets to breached; safe to run concurrently
// @Tags Tickets
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /sla-tickets/sweep [post]
func (h *TicketHandler) Sweep(c *gin.Context) {
	count, err := h.sla.SweepBreaches(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"breached": count}, nil)
}
