package models

import "time"

// AssignmentStatus enumerates the assignment lifecycle states.
type AssignmentStatus string

const (
	AssignmentStatusAssigned   AssignmentStatus = "assigned"
	AssignmentStatusAccepted   AssignmentStatus = "accepted"
	AssignmentStatusInProgress AssignmentStatus = "in_progress"
	AssignmentStatusSubmitted  AssignmentStatus = "submitted"
	AssignmentStatusApproved   AssignmentStatus = "approved"
	AssignmentStatusRejected   AssignmentStatus = "rejected"
	AssignmentStatusReturned   AssignmentStatus = "returned"
)

// ActiveAssignmentStatuses is the set counted against the
// one-active-assignment-per-work-item invariant.
var ActiveAssignmentStatuses = []AssignmentStatus{
	AssignmentStatusAssigned,
	AssignmentStatusAccepted,
	AssignmentStatusInProgress,
	AssignmentStatusSubmitted,
}

// Active reports whether the status occupies the work item's single active slot.
func (s AssignmentStatus) Active() bool {
	switch s {
	case AssignmentStatusAssigned, AssignmentStatusAccepted,
		AssignmentStatusInProgress, AssignmentStatusSubmitted:
		return true
	}
	return false
}

// Terminal reports whether the status admits no further transitions.
func (s AssignmentStatus) Terminal() bool {
	switch s {
	case AssignmentStatusApproved, AssignmentStatusRejected, AssignmentStatusReturned:
		return true
	}
	return false
}

// AssignmentEvent names a lifecycle transition request.
type AssignmentEvent string

const (
	AssignmentEventAccept  AssignmentEvent = "accept"
	AssignmentEventStart   AssignmentEvent = "start"
	AssignmentEventSubmit  AssignmentEvent = "submit"
	AssignmentEventApprove AssignmentEvent = "approve"
	AssignmentEventReject  AssignmentEvent = "reject"
)

// assignmentTransitions is the authoritative transition table. Handoff is
// not listed: it retires the assignment to returned through its own path.
var assignmentTransitions = map[AssignmentStatus]map[AssignmentEvent]AssignmentStatus{
	AssignmentStatusAssigned: {
		AssignmentEventAccept: AssignmentStatusAccepted,
	},
	AssignmentStatusAccepted: {
		AssignmentEventStart: AssignmentStatusInProgress,
	},
	AssignmentStatusInProgress: {
		AssignmentEventSubmit: AssignmentStatusSubmitted,
	},
	AssignmentStatusSubmitted: {
		AssignmentEventApprove: AssignmentStatusApproved,
		AssignmentEventReject:  AssignmentStatusRejected,
	},
}

// NextAssignmentStatus resolves the transition table for (from, event).
func NextAssignmentStatus(from AssignmentStatus, event AssignmentEvent) (AssignmentStatus, bool) {
	events, ok := assignmentTransitions[from]
	if !ok {
		return "", false
	}
	to, ok := events[event]
	return to, ok
}

// WorkerEvent reports whether the event must be initiated by the
// assignment's own worker (as opposed to a reviewer).
func (e AssignmentEvent) WorkerEvent() bool {
	switch e {
	case AssignmentEventAccept, AssignmentEventStart, AssignmentEventSubmit:
		return true
	}
	return false
}

// Assignment is a worker's claim on a work item for one lifecycle pass.
// Rows are soft-deleted, never hard-deleted.
type Assignment struct {
	ID            string           `db:"id" json:"id"`
	WorkItemID    string           `db:"work_item_id" json:"work_item_id"`
	UserID        string           `db:"user_id" json:"user_id"`
	AssignedBy    string           `db:"assigned_by" json:"assigned_by"`
	Status        AssignmentStatus `db:"status" json:"status"`
	UserNotes     *string          `db:"user_notes" json:"user_notes,omitempty"`
	AdminFeedback *string          `db:"admin_feedback" json:"admin_feedback,omitempty"`
	AssignedAt    time.Time        `db:"assigned_at" json:"assigned_at"`
	AcceptedAt    *time.Time       `db:"accepted_at" json:"accepted_at,omitempty"`
	StartedAt     *time.Time       `db:"started_at" json:"started_at,omitempty"`
	SubmittedAt   *time.Time       `db:"submitted_at" json:"submitted_at,omitempty"`
	ApprovedAt    *time.Time       `db:"approved_at" json:"approved_at,omitempty"`
	RejectedAt    *time.Time       `db:"rejected_at" json:"rejected_at,omitempty"`
	ReturnedAt    *time.Time       `db:"returned_at" json:"returned_at,omitempty"`
	CreatedAt     time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time        `db:"updated_at" json:"updated_at"`
	DeletedAt     *time.Time       `db:"deleted_at" json:"-"`
}

// SubjectRef implements the polymorphic subject contract.
func (a *Assignment) SubjectRef() SubjectRef {
	return SubjectRef{Kind: SubjectKindAssignment, ID: a.ID}
}

// Handoff records the transfer of an in-flight assignment to another
// worker. NewAssignmentID links to the assignment spawned for the receiver.
type Handoff struct {
	ID              string    `db:"id" json:"id"`
	AssignmentID    string    `db:"assignment_id" json:"assignment_id"`
	FromUserID      string    `db:"from_user_id" json:"from_user_id"`
	ToUserID        string    `db:"to_user_id" json:"to_user_id"`
	NewAssignmentID string    `db:"new_assignment_id" json:"new_assignment_id"`
	Reason          string    `db:"reason" json:"reason"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
}

// AssignmentHistoryEntry pairs an assignment with the handoff that retired
// it, if any. The chain of custody for a work item is the ordered list of
// these entries.
type AssignmentHistoryEntry struct {
	Assignment Assignment `json:"assignment"`
	Handoff    *Handoff   `json:"handoff,omitempty"`
}
