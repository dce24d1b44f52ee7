package dto

import "github.com/andalan-id/service-center-api/internal/models"

// CreateWorkItemRequest creates a new unit of trackable work.
type CreateWorkItemRequest struct {
	Title         string   `json:"title" validate:"required,min=3"`
	CategoryID    *string  `json:"category_id,omitempty"`
	EstimateCents int64    `json:"estimate_cents" validate:"gte=0"`
	Billable      bool     `json:"billable"`
	Tags          []string `json:"tags"`
	ParentID      *string  `json:"parent_id,omitempty"`
}

// UpdateWorkItemRequest updates descriptive fields only; status moves
// through lifecycle operations.
type UpdateWorkItemRequest struct {
	Title         string   `json:"title" validate:"required,min=3"`
	CategoryID    *string  `json:"category_id,omitempty"`
	EstimateCents int64    `json:"estimate_cents" validate:"gte=0"`
	Billable      bool     `json:"billable"`
	Tags          []string `json:"tags"`
	ParentID      *string  `json:"parent_id,omitempty"`
}

// CreateAssignmentRequest assigns a work item to a worker.
type CreateAssignmentRequest struct {
	WorkItemID string `json:"work_item_id" validate:"required,uuid4"`
	UserID     string `json:"user_id" validate:"required,uuid4"`
}

// SubmitAssignmentRequest carries the worker's completion notes.
type SubmitAssignmentRequest struct {
	Notes string `json:"notes" validate:"required,min=3"`
}

// ReviewAssignmentRequest carries reviewer feedback for reject; feedback
// is optional on approve.
type ReviewAssignmentRequest struct {
	Feedback string `json:"feedback"`
}

// HandoffRequest transfers an in-flight assignment to another worker.
type HandoffRequest struct {
	ToUserID string `json:"to_user_id" validate:"required,uuid4"`
	Reason   string `json:"reason" validate:"required,min=3"`
}

// OpenTicketRequest attaches a time-boxed obligation to a subject.
type OpenTicketRequest struct {
	SubjectKind      models.SubjectKind `json:"subject_kind" validate:"required"`
	SubjectID        string             `json:"subject_id" validate:"required"`
	Kind             models.TicketKind  `json:"kind" validate:"required,oneof=response resolution"`
	TimeLimitMinutes int                `json:"time_limit_minutes" validate:"required,gt=0"`
	UserID           *string            `json:"user_id,omitempty"`
	ContactID        *string            `json:"contact_id,omitempty"`
}

// ResolveTicketRequest closes a ticket with an explicit outcome.
type ResolveTicketRequest struct {
	Outcome models.TicketStatus `json:"outcome" validate:"required,oneof=met cancelled"`
}

// CreateRoleRequest creates a role within a guard.
type CreateRoleRequest struct {
	Name string `json:"name" validate:"required,min=2"`
}

// CreatePermissionRequest creates a permission within a guard.
type CreatePermissionRequest struct {
	Name string `json:"name" validate:"required,min=2"`
}

// GrantRequest links roles to users or permissions to roles.
type GrantRequest struct {
	RoleID       string `json:"role_id" validate:"required,uuid4"`
	PermissionID string `json:"permission_id,omitempty"`
	UserID       string `json:"user_id,omitempty"`
}
