package service

import (
	"context"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/andalan-id/service-center-api/internal/dto"
	"github.com/andalan-id/service-center-api/internal/models"
	appErrors "github.com/andalan-id/service-center-api/pkg/errors"
)

type roleStore interface {
	CreateRole(ctx context.Context, role *models.Role) error
	CreatePermission(ctx context.Context, permission *models.Permission) error
	AttachPermission(ctx context.Context, roleID, permissionID string) error
	DetachPermission(ctx context.Context, roleID, permissionID string) error
	AssignRole(ctx context.Context, userID, roleID string) error
	RevokeRole(ctx context.Context, userID, roleID string) error
	ListRoles(ctx context.Context, guard string) ([]models.Role, error)
	ListPermissions(ctx context.Context, guard string) ([]models.Permission, error)
}

type grantsInvalidator interface {
	Invalidate(ctx context.Context, userID, guard string)
}

// RoleService administers roles and permissions. Every grant change
// invalidates the affected user's cached grants snapshot so permission
// checks see the change on the next request.
type RoleService struct {
	roles       roleStore
	cache       grantsInvalidator
	permissions *PermissionService
	validator   *validator.Validate
	guard       string
	logger      *zap.Logger
}

// NewRoleService constructs the service. cache may be nil.
func NewRoleService(roles roleStore, cache grantsInvalidator, permissions *PermissionService, guard string, logger *zap.Logger) *RoleService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RoleService{
		roles:       roles,
		cache:       cache,
		permissions: permissions,
		validator:   validator.New(),
		guard:       guard,
		logger:      logger,
	}
}

func (s *RoleService) authorize(ctx context.Context, actor *models.JWTClaims) error {
	if actor == nil {
		return appErrors.ErrUnauthorized
	}
	allowed, err := s.permissions.Check(ctx, actor.UserID, AbilityManageRoles, nil)
	if err != nil {
		return err
	}
	if !allowed {
		return appErrors.Clone(appErrors.ErrForbidden, "not allowed to manage roles")
	}
	return nil
}

// CreateRole registers a new role in the service's guard.
func (s *RoleService) CreateRole(ctx context.Context, actor *models.JWTClaims, req dto.CreateRoleRequest) (*models.Role, error) {
	if err := s.authorize(ctx, actor); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid role payload")
	}
	role := &models.Role{Name: req.Name, Guard: s.guard}
	if err := s.roles.CreateRole(ctx, role); err != nil {
		return nil, err
	}
	return role, nil
}

// CreatePermission registers a new permission in the service's guard.
func (s *RoleService) CreatePermission(ctx context.Context, actor *models.JWTClaims, req dto.CreatePermissionRequest) (*models.Permission, error) {
	if err := s.authorize(ctx, actor); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid permission payload")
	}
	permission := &models.Permission{Name: req.Name, Guard: s.guard}
	if err := s.roles.CreatePermission(ctx, permission); err != nil {
		return nil, err
	}
	return permission, nil
}

// AttachPermission links a permission to a role.
func (s *RoleService) AttachPermission(ctx context.Context, actor *models.JWTClaims, roleID, permissionID string) error {
	if err := s.authorize(ctx, actor); err != nil {
		return err
	}
	return s.roles.AttachPermission(ctx, roleID, permissionID)
}

// DetachPermission unlinks a permission from a role.
func (s *RoleService) DetachPermission(ctx context.Context, actor *models.JWTClaims, roleID, permissionID string) error {
	if err := s.authorize(ctx, actor); err != nil {
		return err
	}
	return s.roles.DetachPermission(ctx, roleID, permissionID)
}

// AssignRole grants a role to a user and drops their cached grants.
func (s *RoleService) AssignRole(ctx context.Context, actor *models.JWTClaims, req dto.GrantRequest) error {
	if err := s.authorize(ctx, actor); err != nil {
		return err
	}
	if err := s.validator.Struct(req); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid grant payload")
	}
	if err := s.roles.AssignRole(ctx, req.UserID, req.RoleID); err != nil {
		return err
	}
	s.invalidate(ctx, req.UserID)
	return nil
}

// RevokeRole removes a role from a user and drops their cached grants.
func (s *RoleService) RevokeRole(ctx context.Context, actor *models.JWTClaims, req dto.GrantRequest) error {
	if err := s.authorize(ctx, actor); err != nil {
		return err
	}
	if err := s.validator.Struct(req); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid grant payload")
	}
	if err := s.roles.RevokeRole(ctx, req.UserID, req.RoleID); err != nil {
		return err
	}
	s.invalidate(ctx, req.UserID)
	return nil
}

// ListRoles returns the guard's roles.
func (s *RoleService) ListRoles(ctx context.Context, actor *models.JWTClaims) ([]models.Role, error) {
	if err := s.authorize(ctx, actor); err != nil {
		return nil, err
	}
	return s.roles.ListRoles(ctx, s.guard)
}

// ListPermissions returns the guard's permissions.
func (s *RoleService) ListPermissions(ctx context.Context, actor *models.JWTClaims) ([]models.Permission, error) {
	if err := s.authorize(ctx, actor); err != nil {
		return nil, err
	}
	return s.roles.ListPermissions(ctx, s.guard)
}

func (s *RoleService) invalidate(ctx context.Context, userID string) {
	if s.cache == nil {
		return
	}
	s.cache.Invalidate(ctx, userID, s.guard)
}
