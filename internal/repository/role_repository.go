package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/andalan-id/service-center-api/internal/models"
	appErrors "github.com/andalan-id/service-center-api/pkg/errors"
)

// RoleRepository manages roles, permissions, and the flattened grants
// snapshot consumed by the permission resolver.
type RoleRepository struct {
	db *sqlx.DB
}

// NewRoleRepository constructs the repository.
func NewRoleRepository(db *sqlx.DB) *RoleRepository {
	return &RoleRepository{db: db}
}

// GrantsForUser flattens a principal's roles and role-derived permissions
// within one guard scope.
func (r *RoleRepository) GrantsForUser(ctx context.Context, userID, guard string) (*models.Grants, error) {
	const rolesQuery = `SELECT r.name FROM roles r
	JOIN user_roles ur ON ur.role_id = r.id
	WHERE ur.user_id = $1 AND r.guard = $2 ORDER BY r.name`
	var roles []string
	if err := r.db.SelectContext(ctx, &roles, rolesQuery, userID, guard); err != nil {
		return nil, translateDBError(fmt.Errorf("load roles for %s: %w", userID, err), "")
	}

	const permissionsQuery = `SELECT DISTINCT p.name FROM permissions p
	JOIN role_permissions rp ON rp.permission_id = p.id
	JOIN user_roles ur ON ur.role_id = rp.role_id
	WHERE ur.user_id = $1 AND p.guard = $2 ORDER BY p.name`
	var permissions []string
	if err := r.db.SelectContext(ctx, &permissions, permissionsQuery, userID, guard); err != nil {
		return nil, translateDBError(fmt.Errorf("load permissions for %s: %w", userID, err), "")
	}

	return &models.Grants{
		UserID:      userID,
		Guard:       guard,
		Roles:       roles,
		Permissions: permissions,
	}, nil
}

// CreateRole inserts a role; names are unique per guard.
func (r *RoleRepository) CreateRole(ctx context.Context, role *models.Role) error {
	if role.ID == "" {
		role.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	role.CreatedAt = now
	role.UpdatedAt = now
	const query = `INSERT INTO roles (id, name, guard, created_at, updated_at)
	VALUES (:id, :name, :guard, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, r.db, query, role); err != nil {
		if isUniqueViolation(err, "") {
			return appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("role %q already exists for guard %q", role.Name, role.Guard))
		}
		return translateDBError(fmt.Errorf("create role: %w", err), "")
	}
	return nil
}

// CreatePermission inserts a permission; names are unique per guard.
func (r *RoleRepository) CreatePermission(ctx context.Context, permission *models.Permission) error {
	if permission.ID == "" {
		permission.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	permission.CreatedAt = now
	permission.UpdatedAt = now
	const query = `INSERT INTO permissions (id, name, guard, created_at, updated_at)
	VALUES (:id, :name, :guard, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, r.db, query, permission); err != nil {
		if isUniqueViolation(err, "") {
			return appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("permission %q already exists for guard %q", permission.Name, permission.Guard))
		}
		return translateDBError(fmt.Errorf("create permission: %w", err), "")
	}
	return nil
}

// AttachPermission links a permission to a role.
func (r *RoleRepository) AttachPermission(ctx context.Context, roleID, permissionID string) error {
	const query = `INSERT INTO role_permissions (role_id, permission_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`
	if _, err := r.db.ExecContext(ctx, query, roleID, permissionID); err != nil {
		return translateDBError(fmt.Errorf("attach permission: %w", err), "")
	}
	return nil
}

// DetachPermission unlinks a permission from a role.
func (r *RoleRepository) DetachPermission(ctx context.Context, roleID, permissionID string) error {
	const query = `DELETE FROM role_permissions WHERE role_id = $1 AND permission_id = $2`
	if _, err := r.db.ExecContext(ctx, query, roleID, permissionID); err != nil {
		return translateDBError(fmt.Errorf("detach permission: %w", err), "")
	}
	return nil
}

// AssignRole grants a role to a user.
func (r *RoleRepository) AssignRole(ctx context.Context, userID, roleID string) error {
	const query = `INSERT INTO user_roles (user_id, role_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`
	if _, err := r.db.ExecContext(ctx, query, userID, roleID); err != nil {
		return translateDBError(fmt.Errorf("assign role: %w", err), "")
	}
	return nil
}

// RevokeRole removes a role from a user.
func (r *RoleRepository) RevokeRole(ctx context.Context, userID, roleID string) error {
	const query = `DELETE FROM user_roles WHERE user_id = $1 AND role_id = $2`
	if _, err := r.db.ExecContext(ctx, query, userID, roleID); err != nil {
		return translateDBError(fmt.Errorf("revoke role: %w", err), "")
	}
	return nil
}

// ListRoles returns every role for a guard.
func (r *RoleRepository) ListRoles(ctx context.Context, guard string) ([]models.Role, error) {
	const query = `SELECT id, name, guard, created_at, updated_at FROM roles WHERE guard = $1 ORDER BY name`
	var roles []models.Role
	if err := r.db.SelectContext(ctx, &roles, query, guard); err != nil {
		return nil, translateDBError(fmt.Errorf("list roles: %w", err), "")
	}
	return roles, nil
}

// ListPermissions returns every permission for a guard.
func (r *RoleRepository) ListPermissions(ctx context.Context, guard string) ([]models.Permission, error) {
	const query = `SELECT id, name, guard, created_at, updated_at FROM permissions WHERE guard = $1 ORDER BY name`
	var permissions []models.Permission
	if err := r.db.SelectContext(ctx, &permissions, query, guard); err != nil {
		return nil, translateDBError(fmt.Errorf("list permissions: %w", err), "")
	}
	return permissions, nil
}
