package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/andalan-id/service-center-api/internal/dto"
	"github.com/andalan-id/service-center-api/internal/models"
	appErrors "github.com/andalan-id/service-center-api/pkg/errors"
)

const testRoleID = "6ba7b810-9dad-41d1-80b4-00c04fd430c8"

type stubRoleStore struct {
	roles       []*models.Role
	permissions []*models.Permission
	attached    [][2]string
	detached    [][2]string
	assigned    [][2]string
	revoked     [][2]string
}

func (s *stubRoleStore) CreateRole(_ context.Context, role *models.Role) error {
	role.ID = testRoleID
	s.roles = append(s.roles, role)
	return nil
}

func (s *stubRoleStore) CreatePermission(_ context.Context, permission *models.Permission) error {
	permission.ID = "perm-1"
	s.permissions = append(s.permissions, permission)
	return nil
}

func (s *stubRoleStore) AttachPermission(_ context.Context, roleID, permissionID string) error {
	s.attached = append(s.attached, [2]string{roleID, permissionID})
	return nil
}

func (s *stubRoleStore) DetachPermission(_ context.Context, roleID, permissionID string) error {
	s.detached = append(s.detached, [2]string{roleID, permissionID})
	return nil
}

func (s *stubRoleStore) AssignRole(_ context.Context, userID, roleID string) error {
	s.assigned = append(s.assigned, [2]string{userID, roleID})
	return nil
}

func (s *stubRoleStore) RevokeRole(_ context.Context, userID, roleID string) error {
	s.revoked = append(s.revoked, [2]string{userID, roleID})
	return nil
}

func (s *stubRoleStore) ListRoles(_ context.Context, guard string) ([]models.Role, error) {
	out := make([]models.Role, 0, len(s.roles))
	for _, r := range s.roles {
		if r.Guard == guard {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (s *stubRoleStore) ListPermissions(_ context.Context, guard string) ([]models.Permission, error) {
	out := make([]models.Permission, 0, len(s.permissions))
	for _, p := range s.permissions {
		if p.Guard == guard {
			out = append(out, *p)
		}
	}
	return out, nil
}

type recordingInvalidator struct {
	invalidated []string
}

func (r *recordingInvalidator) Invalidate(_ context.Context, userID, _ string) {
	r.invalidated = append(r.invalidated, userID)
}

func newRoleFixture(t *testing.T) (*RoleService, *stubRoleStore, *recordingInvalidator) {
	t.Helper()
	grants := map[string]*models.Grants{
		testAdminID: {
			UserID:      testAdminID,
			Roles:       []string{"manager"},
			Permissions: []string{models.PermissionManageRoles},
		},
		testWorkerID: {
			UserID:      testWorkerID,
			Roles:       []string{"technician"},
			Permissions: []string{models.PermissionReceiveAssignments},
		},
	}
	store := &stubRoleStore{}
	cache := &recordingInvalidator{}
	permissions := NewPermissionService(&stubGrantsLoader{grants: grants}, "api", zap.NewNop())
	return NewRoleService(store, cache, permissions, "api", zap.NewNop()), store, cache
}

func TestCreateRoleScopedToGuard(t *testing.T) {
	svc, store, _ := newRoleFixture(t)
	admin := &models.JWTClaims{UserID: testAdminID}

	role, err := svc.CreateRole(context.Background(), admin, dto.CreateRoleRequest{Name: "dispatcher"})
	require.NoError(t, err)
	require.Equal(t, "dispatcher", role.Name)
	require.Equal(t, "api", role.Guard)
	require.Len(t, store.roles, 1)

	_, err = svc.CreateRole(context.Background(), admin, dto.CreateRoleRequest{Name: "x"})
	require.True(t, appErrors.Is(err, appErrors.ErrValidation))
}

func TestRoleAdministrationRequiresManageRoles(t *testing.T) {
	svc, store, _ := newRoleFixture(t)
	worker := &models.JWTClaims{UserID: testWorkerID}

	_, err := svc.CreateRole(context.Background(), worker, dto.CreateRoleRequest{Name: "dispatcher"})
	require.True(t, appErrors.Is(err, appErrors.ErrForbidden))

	_, err = svc.ListRoles(context.Background(), nil)
	require.True(t, appErrors.Is(err, appErrors.ErrUnauthorized))

	require.Empty(t, store.roles)
}

func TestAssignRoleInvalidatesGrantsCache(t *testing.T) {
	svc, store, cache := newRoleFixture(t)
	admin := &models.JWTClaims{UserID: testAdminID}
	req := dto.GrantRequest{RoleID: testRoleID, UserID: testWorkerID}

	require.NoError(t, svc.AssignRole(context.Background(), admin, req))
	require.Equal(t, [][2]string{{testWorkerID, testRoleID}}, store.assigned)
	require.Equal(t, []string{testWorkerID}, cache.invalidated)

	require.NoError(t, svc.RevokeRole(context.Background(), admin, req))
	require.Equal(t, [][2]string{{testWorkerID, testRoleID}}, store.revoked)
	require.Equal(t, []string{testWorkerID, testWorkerID}, cache.invalidated)
}

func TestAssignRoleValidatesRoleID(t *testing.T) {
	svc, store, cache := newRoleFixture(t)
	admin := &models.JWTClaims{UserID: testAdminID}

	err := svc.AssignRole(context.Background(), admin, dto.GrantRequest{RoleID: "not-a-uuid", UserID: testWorkerID})
	require.True(t, appErrors.Is(err, appErrors.ErrValidation))
	require.Empty(t, store.assigned)
	require.Empty(t, cache.invalidated)
}

func TestAttachDetachPermission(t *testing.T) {
	svc, store, _ := newRoleFixture(t)
	admin := &models.JWTClaims{UserID: testAdminID}

	perm, err := svc.CreatePermission(context.Background(), admin, dto.CreatePermissionRequest{Name: "close-books"})
	require.NoError(t, err)

	require.NoError(t, svc.AttachPermission(context.Background(), admin, testRoleID, perm.ID))
	require.Equal(t, [][2]string{{testRoleID, perm.ID}}, store.attached)

	require.NoError(t, svc.DetachPermission(context.Background(), admin, testRoleID, perm.ID))
	require.Equal(t, [][2]string{{testRoleID, perm.ID}}, store.detached)
}

func TestListRolesFiltersByGuard(t *testing.T) {
	svc, store, _ := newRoleFixture(t)
	admin := &models.JWTClaims{UserID: testAdminID}

	store.roles = []*models.Role{
		{ID: "r-1", Name: "dispatcher", Guard: "api"},
		{ID: "r-2", Name: "portal-user", Guard: "portal"},
	}

	roles, err := svc.ListRoles(context.Background(), admin)
	require.NoError(t, err)
	require.Len(t, roles, 1)
	require.Equal(t, "dispatcher", roles[0].Name)
}
