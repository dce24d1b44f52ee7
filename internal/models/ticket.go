package models

import "time"

// SubjectKind tags the entity type behind a polymorphic reference.
type SubjectKind string

const (
	SubjectKindWorkItem   SubjectKind = "work_item"
	SubjectKindAssignment SubjectKind = "assignment"
	SubjectKindEnquiry    SubjectKind = "enquiry"
	SubjectKindUser       SubjectKind = "user"
)

// SubjectRef points at any trackable entity by kind and opaque id, so the
// SLA engine and activity log never need per-type foreign keys.
type SubjectRef struct {
	Kind SubjectKind `json:"kind"`
	ID   string      `json:"id"`
}

// Subject is implemented by entities that can carry tickets and activity.
type Subject interface {
	SubjectRef() SubjectRef
}

// TicketKind distinguishes the obligation a ticket tracks.
type TicketKind string

const (
	TicketKindResponse   TicketKind = "response"
	TicketKindResolution TicketKind = "resolution"
)

// TicketStatus enumerates SLA ticket states.
type TicketStatus string

const (
	TicketStatusActive    TicketStatus = "active"
	TicketStatusMet       TicketStatus = "met"
	TicketStatusBreached  TicketStatus = "breached"
	TicketStatusCancelled TicketStatus = "cancelled"
)

// Terminal reports whether the ticket status is final.
func (s TicketStatus) Terminal() bool {
	switch s {
	case TicketStatusMet, TicketStatusBreached, TicketStatusCancelled:
		return true
	}
	return false
}

// SlaTicket is a time-boxed obligation attached to a subject. due_at is
// computed once at creation and never recomputed, even when category
// defaults change afterwards.
type SlaTicket struct {
	ID               string       `db:"id" json:"id"`
	SubjectKind      SubjectKind  `db:"subject_kind" json:"subject_kind"`
	SubjectID        string       `db:"subject_id" json:"subject_id"`
	Kind             TicketKind   `db:"kind" json:"kind"`
	TimeLimitMinutes int          `db:"time_limit_minutes" json:"time_limit_minutes"`
	DueAt            time.Time    `db:"due_at" json:"due_at"`
	Status           TicketStatus `db:"status" json:"status"`
	AcknowledgedAt   *time.Time   `db:"acknowledged_at" json:"acknowledged_at,omitempty"`
	ResolvedAt       *time.Time   `db:"resolved_at" json:"resolved_at,omitempty"`
	UserID           *string      `db:"user_id" json:"user_id,omitempty"`
	ContactID        *string      `db:"contact_id" json:"contact_id,omitempty"`
	CreatedAt        time.Time    `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time    `db:"updated_at" json:"updated_at"`
}

// Subject returns the ticket's polymorphic parent reference.
func (t *SlaTicket) Subject() SubjectRef {
	return SubjectRef{Kind: t.SubjectKind, ID: t.SubjectID}
}

// TicketFilter constrains listing queries.
type TicketFilter struct {
	Subject  *SubjectRef
	Status   []TicketStatus
	Kind     TicketKind
	DueAfter *time.Time
	Page     int
	PageSize int
}
