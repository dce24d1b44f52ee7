package models

import "time"

// RoleSuperAdmin is the distinguished role that bypasses every ability
// check, including unregistered abilities.
const RoleSuperAdmin = "super-admin"

// Well-known permission names (unique per guard).
const (
	PermissionManageWorkItems    = "manage-work-items"
	PermissionViewWorkItems      = "view-work-items"
	PermissionReceiveAssignments = "receive-assignments"
	PermissionManageTickets      = "manage-sla-tickets"
	PermissionManageRoles        = "manage-roles"
	PermissionExportReports      = "export-reports"
)

// Role aggregates permissions under a guard scope.
type Role struct {
	ID        string    `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	Guard     string    `db:"guard" json:"guard"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Permission is an atomic ability name, unique per guard.
type Permission struct {
	ID        string    `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	Guard     string    `db:"guard" json:"guard"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Grants is the flattened authorization snapshot for one principal within
// one guard, loaded per request so the resolver carries no process-wide
// mutable state.
type Grants struct {
	UserID      string   `json:"user_id"`
	Guard       string   `json:"guard"`
	Roles       []string `json:"roles"`
	Permissions []string `json:"permissions"`
}

// HasRole reports role membership by name.
func (g *Grants) HasRole(name string) bool {
	if g == nil {
		return false
	}
	for _, r := range g.Roles {
		if r == name {
			return true
		}
	}
	return false
}

// HasPermission reports direct or role-derived permission membership.
func (g *Grants) HasPermission(name string) bool {
	if g == nil {
		return false
	}
	for _, p := range g.Permissions {
		if p == name {
			return true
		}
	}
	return false
}
