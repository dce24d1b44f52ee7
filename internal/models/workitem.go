package models

import (
	"time"

	"github.com/lib/pq"
)

// WorkItemStatus enumerates lifecycle states for a unit of trackable work.
type WorkItemStatus string

const (
	WorkItemStatusOpen       WorkItemStatus = "open"
	WorkItemStatusInProgress WorkItemStatus = "in_progress"
	WorkItemStatusOnHold     WorkItemStatus = "on_hold"
	WorkItemStatusCompleted  WorkItemStatus = "completed"
	WorkItemStatusCancelled  WorkItemStatus = "cancelled"
)

// Terminal reports whether the status admits no further transitions.
func (s WorkItemStatus) Terminal() bool {
	return s == WorkItemStatusCompleted || s == WorkItemStatusCancelled
}

// Valid reports whether the status belongs to the fixed enum.
func (s WorkItemStatus) Valid() bool {
	switch s {
	case WorkItemStatusOpen, WorkItemStatusInProgress, WorkItemStatusOnHold,
		WorkItemStatusCompleted, WorkItemStatusCancelled:
		return true
	}
	return false
}

// WorkItem generalises tasks, job cards, and projects. completed_at is set
// iff the status is terminal. Rows are soft-deleted for audit retention.
type WorkItem struct {
	ID            string         `db:"id" json:"id"`
	Title         string         `db:"title" json:"title"`
	CategoryID    *string        `db:"category_id" json:"category_id,omitempty"`
	EstimateCents int64          `db:"estimate_cents" json:"estimate_cents"`
	Billable      bool           `db:"billable" json:"billable"`
	Tags          pq.StringArray `db:"tags" json:"tags"`
	Status        WorkItemStatus `db:"status" json:"status"`
	ParentID      *string        `db:"parent_id" json:"parent_id,omitempty"`
	StartedAt     *time.Time     `db:"started_at" json:"started_at,omitempty"`
	CompletedAt   *time.Time     `db:"completed_at" json:"completed_at,omitempty"`
	CreatedAt     time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time      `db:"updated_at" json:"updated_at"`
	DeletedAt     *time.Time     `db:"deleted_at" json:"-"`
}

// SubjectRef implements the polymorphic subject contract.
func (w *WorkItem) SubjectRef() SubjectRef {
	return SubjectRef{Kind: SubjectKindWorkItem, ID: w.ID}
}

// WorkItemCategory carries per-category SLA limits consulted when an
// assignment opens its response ticket. Changing these never recomputes
// due dates on existing tickets.
type WorkItemCategory struct {
	ID                   string    `db:"id" json:"id"`
	Name                 string    `db:"name" json:"name"`
	ResponseSLAMinutes   int       `db:"response_sla_minutes" json:"response_sla_minutes"`
	ResolutionSLAMinutes int       `db:"resolution_sla_minutes" json:"resolution_sla_minutes"`
	CreatedAt            time.Time `db:"created_at" json:"created_at"`
	UpdatedAt            time.Time `db:"updated_at" json:"updated_at"`
}

// WorkItemFilter constrains listing queries.
type WorkItemFilter struct {
	Status     []WorkItemStatus
	CategoryID string
	ParentID   string
	Billable   *bool
	Search     string
	Page       int
	PageSize   int
}
