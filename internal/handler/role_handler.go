package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/andalan-id/service-center-api/internal/dto"
	"github.com/andalan-id/service-center-api/internal/service"
	appErrors "github.com/andalan-id/service-center-api/pkg/errors"
	"github.com/andalan-id/service-center-api/pkg/response"
)

// RoleHandler wires role administration endpoints.
type RoleHandler struct {
	roles *service.RoleService
}

// NewRoleHandler creates a new handler.
func NewRoleHandler(roles *service.RoleService) *RoleHandler {
	return &RoleHandler{roles: roles}
}

// CreateRole godoc
// @Summary Create role
// @Tags Roles
// @Accept json
// @Produce json
// @Param payload body dto.CreateRoleRequest true "Role payload"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /roles [post]
func (h *RoleHandler) CreateRole(c *gin.Context) {
	var req dto.CreateRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid role payload"))
		return
	}
	role, err := h.roles.CreateRole(c.Request.Context(), currentClaims(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, role)
}

// ListRoles godoc
// @Summary List roles
// @Tags Roles
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /roles [get]
func (h *RoleHandler) ListRoles(c *gin.Context) {
	roles, err := h.roles.ListRoles(c.Request.Context(), currentClaims(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, roles, nil)
}

// CreatePermission godoc
// @Summary Create permission
// @Tags Roles
// @Accept json
// @Produce json
// @Param payload body dto.CreatePermissionRequest true "Permission payload"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /permissions [post]
func (h *RoleHandler) CreatePermission(c *gin.Context) {
	var req dto.CreatePermissionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid permission payload"))
		return
	}
	permission, err := h.roles.CreatePermission(c.Request.Context(), currentClaims(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, permission)
}

// ListPermissions godoc
// @Summary List permissions
// @Tags Roles
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /permissions [get]
func (h *RoleHandler) ListPermissions(c *gin.Context) {
	permissions, err := h.roles.ListPermissions(c.Request.Context(), currentClaims(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, permissions, nil)
}

// AttachPermission godoc
// @Summary Attach permission to role
// @Tags Roles
// @Accept json
// @Produce json
// @Param payload body dto.GrantRequest true "Role and permission IDs"
// @Success 204 {object} response.Envelope
// @Router /roles/permissions [post]
func (h *RoleHandler) AttachPermission(c *gin.Context) {
	var req dto.GrantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid grant payload"))
		return
	}
	if err := h.roles.AttachPermission(c.Request.Context(), currentClaims(c), req.RoleID, req.PermissionID); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// DetachPermission godoc
// @Summary Detach permission from role
// @Tags Roles
// @Accept json
// @Produce json
// @Param payload body dto.GrantRequest true "Role and permission IDs"
// @Success 204 {object} response.Envelope
// @Router /roles/permissions [delete]
func (h *RoleHandler) DetachPermission(c *gin.Context) {
	var req dto.GrantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid grant payload"))
		return
	}
	if err := h.roles.DetachPermission(c.Request.Context(), currentClaims(c), req.RoleID, req.PermissionID); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// AssignRole godoc
// @Summary Assign role to user
// @Tags Roles
// @Accept json
// @Produce json
// @Param payload body dto.GrantRequest true "User and role IDs"
// @Success 204 {object} response.Envelope
// @Router /roles/assign [post]
func (h *RoleHandler) AssignRole(c *gin.Context) {
	var req dto.GrantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid grant payload"))
		return
	}
	if err := h.roles.AssignRole(c.Request.Context(), currentClaims(c), req); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// RevokeRole godoc
// @Summary Revoke role from user
// @Tags Roles
// @Accept json
// @Produce json
// @Param payload body dto.GrantRequest true "User and role IDs"
// @Success 204 {object} response.Envelope
// @Router /roles/revoke [post]
func (h *RoleHandler) RevokeRole(c *gin.Context) {
	var req dto.GrantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid grant payload"))
		return
	}
	if err := h.roles.RevokeRole(c.Request.Context(), currentClaims(c), req); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
