package models

import "time"

// Activity action labels recorded by the lifecycle engines.
const (
	ActivityAssignmentCreated   = "assignment.created"
	ActivityAssignmentAccepted  = "assignment.accepted"
	ActivityAssignmentStarted   = "assignment.started"
	ActivityAssignmentSubmitted = "assignment.submitted"
	ActivityAssignmentApproved  = "assignment.approved"
	ActivityAssignmentRejected  = "assignment.rejected"
	ActivityAssignmentHandedOff = "assignment.handed_off"
	ActivityTicketOpened        = "ticket.opened"
	ActivityTicketAcknowledged  = "ticket.acknowledged"
	ActivityTicketResolved      = "ticket.resolved"
	ActivityTicketBreached      = "ticket.breached"
	ActivityTicketCancelled     = "ticket.cancelled"
	ActivityWorkItemCreated     = "work_item.created"
	ActivityWorkItemCompleted   = "work_item.completed"
	ActivityWorkItemCancelled   = "work_item.cancelled"
	ActivityUserLogin           = "user.login"
)

// Activity is an append-only audit record. ActorID is nil for system
// actions such as the breach sweep. Rows are never updated or deleted.
type Activity struct {
	ID          string      `db:"id" json:"id"`
	ActorID     *string     `db:"actor_id" json:"actor_id,omitempty"`
	SubjectKind SubjectKind `db:"subject_kind" json:"subject_kind"`
	SubjectID   string      `db:"subject_id" json:"subject_id"`
	Action      string      `db:"action" json:"action"`
	Properties  []byte      `db:"properties" json:"properties,omitempty"`
	Note        *string     `db:"note" json:"note,omitempty"`
	CreatedAt   time.Time   `db:"created_at" json:"created_at"`
}

// ActivityFilter constrains timeline queries.
type ActivityFilter struct {
	Subject *SubjectRef
	ActorID string
	Action  string
	Limit   int
	Offset  int
}
