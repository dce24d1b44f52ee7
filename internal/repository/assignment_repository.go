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

// uniqueActiveConstraint is a partial unique index over work_item_id where
// status is in the active set. It backstops the row-lock check so two
// concurrent assigns on the same work item can never both commit.
const uniqueActiveConstraint = "assignments_one_active_per_work_item"

const assignmentColumns = `id, work_item_id, user_id, assigned_by, status, user_notes, admin_feedback,
	assigned_at, accepted_at, started_at, submitted_at, approved_at, rejected_at, returned_at,
	created_at, updated_at, deleted_at`

// AssignmentRepository persists assignments and handoffs. Mutating methods
// accept an optional sqlx.ExtContext so the workflow facade can run them
// inside one transaction.
type AssignmentRepository struct {
	db *sqlx.DB
}

// NewAssignmentRepository constructs the repository.
func NewAssignmentRepository(db *sqlx.DB) *AssignmentRepository {
	return &AssignmentRepository{db: db}
}

func (r *AssignmentRepository) target(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// Create inserts a new assignment. A unique violation on the active-slot
// index surfaces as ConflictingAssignment.
func (r *AssignmentRepository) Create(ctx context.Context, exec sqlx.ExtContext, assignment *models.Assignment) error {
	if assignment.ID == "" {
		assignment.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if assignment.AssignedAt.IsZero() {
		assignment.AssignedAt = now
	}
	if assignment.Status == "" {
		assignment.Status = models.AssignmentStatusAssigned
	}
	assignment.CreatedAt = now
	assignment.UpdatedAt = now

	const query = `INSERT INTO assignments
	(id, work_item_id, user_id, assigned_by, status, user_notes, admin_feedback, assigned_at, created_at, updated_at)
	VALUES (:id, :work_item_id, :user_id, :assigned_by, :status, :user_notes, :admin_feedback, :assigned_at, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, r.target(exec), query, assignment); err != nil {
		if isUniqueViolation(err, uniqueActiveConstraint) {
			return appErrors.Wrap(err, appErrors.ErrConflictingAssignment.Code, appErrors.ErrConflictingAssignment.Status, appErrors.ErrConflictingAssignment.Message)
		}
		return translateDBError(fmt.Errorf("create assignment: %w", err), "")
	}
	return nil
}

// GetByID fetches an assignment by identifier.
func (r *AssignmentRepository) GetByID(ctx context.Context, id string) (*models.Assignment, error) {
	query := `SELECT ` + assignmentColumns + ` FROM assignments WHERE id = $1 AND deleted_at IS NULL`
	var assignment models.Assignment
	if err := r.db.GetContext(ctx, &assignment, query, id); err != nil {
		return nil, translateDBError(err, "assignment not found")
	}
	return &assignment, nil
}

// GetByIDForUpdate locks the assignment row for the duration of the
// enclosing transaction.
func (r *AssignmentRepository) GetByIDForUpdate(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Assignment, error) {
	query := `SELECT ` + assignmentColumns + ` FROM assignments WHERE id = $1 AND deleted_at IS NULL FOR UPDATE`
	var assignment models.Assignment
	if err := sqlx.GetContext(ctx, r.target(exec), &assignment, query, id); err != nil {
		return nil, translateDBError(err, "assignment not found")
	}
	return &assignment, nil
}

// FindActiveByWorkItem returns the single active assignment for a work
// item, or nil when none exists.
func (r *AssignmentRepository) FindActiveByWorkItem(ctx context.Context, exec sqlx.ExtContext, workItemID string) (*models.Assignment, error) {
	query := `SELECT ` + assignmentColumns + ` FROM assignments
	WHERE work_item_id = $1 AND status IN ('assigned', 'accepted', 'in_progress', 'submitted') AND deleted_at IS NULL`
	var assignment models.Assignment
	if err := sqlx.GetContext(ctx, r.target(exec), &assignment, query, workItemID); err != nil {
		translated := translateDBError(err, "")
		if appErr := appErrors.FromError(translated); appErr.Code == appErrors.ErrNotFound.Code {
			return nil, nil
		}
		return nil, translated
	}
	return &assignment, nil
}

// TransitionParams carries the column updates one transition writes. The
// update is conditional on FromStatus so a racing writer loses cleanly.
type TransitionParams struct {
	ID            string
	FromStatus    models.AssignmentStatus
	ToStatus      models.AssignmentStatus
	StageColumn   string
	StageAt       time.Time
	UserNotes     *string
	AdminFeedback *string
}

// stageColumns whitelists the timestamp column a transition may set.
var stageColumns = map[string]struct{}{
	"accepted_at":  {},
	"started_at":   {},
	"submitted_at": {},
	"approved_at":  {},
	"rejected_at":  {},
	"returned_at":  {},
}

// Transition applies a status change with its stage timestamp. Zero rows
// affected means the assignment moved concurrently; callers treat that as
// an invalid transition against fresh state.
func (r *AssignmentRepository) Transition(ctx context.Context, exec sqlx.ExtContext, params TransitionParams) error {
	if _, ok := stageColumns[params.StageColumn]; !ok {
		return appErrors.Clone(appErrors.ErrInternal, fmt.Sprintf("unknown stage column %q", params.StageColumn))
	}
	query := fmt.Sprintf(`UPDATE assignments
	SET status = $1, %s = $2, updated_at = $2,
	    user_notes = COALESCE($3, user_notes),
	    admin_feedback = COALESCE($4, admin_feedback)
	WHERE id = $5 AND status = $6 AND deleted_at IS NULL`, params.StageColumn)

	result, err := r.target(exec).ExecContext(ctx, query,
		params.ToStatus, params.StageAt, params.UserNotes, params.AdminFeedback, params.ID, params.FromStatus)
	if err != nil {
		return translateDBError(fmt.Errorf("transition assignment %s: %w", params.ID, err), "")
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("transition assignment %s: %w", params.ID, err)
	}
	if affected == 0 {
		return appErrors.Clone(appErrors.ErrInvalidTransition, "assignment state changed concurrently")
	}
	return nil
}

// CreateHandoff inserts the handoff record linking the retired assignment
// to its successor.
func (r *AssignmentRepository) CreateHandoff(ctx context.Context, exec sqlx.ExtContext, handoff *models.Handoff) error {
	if handoff.ID == "" {
		handoff.ID = uuid.NewString()
	}
	if handoff.CreatedAt.IsZero() {
		handoff.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO handoffs (id, assignment_id, from_user_id, to_user_id, new_assignment_id, reason, created_at)
	VALUES (:id, :assignment_id, :from_user_id, :to_user_id, :new_assignment_id, :reason, :created_at)`
	if _, err := sqlx.NamedExecContext(ctx, r.target(exec), query, handoff); err != nil {
		return translateDBError(fmt.Errorf("create handoff: %w", err), "")
	}
	return nil
}

// ListByWorkItem returns every assignment for a work item ordered by
// assignment time, the spine of the chain-of-custody walk.
func (r *AssignmentRepository) ListByWorkItem(ctx context.Context, workItemID string) ([]models.Assignment, error) {
	query := `SELECT ` + assignmentColumns + ` FROM assignments
	WHERE work_item_id = $1 AND deleted_at IS NULL ORDER BY assigned_at ASC`
	var assignments []models.Assignment
	if err := r.db.SelectContext(ctx, &assignments, query, workItemID); err != nil {
		return nil, translateDBError(fmt.Errorf("list assignments: %w", err), "")
	}
	return assignments, nil
}

// ListHandoffsByAssignmentIDs returns handoffs keyed by the assignment
// they retired.
func (r *AssignmentRepository) ListHandoffsByAssignmentIDs(ctx context.Context, ids []string) (map[string]models.Handoff, error) {
	if len(ids) == 0 {
		return map[string]models.Handoff{}, nil
	}
	query, args, err := sqlx.In(`SELECT id, assignment_id, from_user_id, to_user_id, new_assignment_id, reason, created_at
	FROM handoffs WHERE assignment_id IN (?) ORDER BY created_at ASC`, ids)
	if err != nil {
		return nil, fmt.Errorf("list handoffs: %w", err)
	}
	query = r.db.Rebind(query)
	var handoffs []models.Handoff
	if err := r.db.SelectContext(ctx, &handoffs, query, args...); err != nil {
		return nil, translateDBError(fmt.Errorf("list handoffs: %w", err), "")
	}
	result := make(map[string]models.Handoff, len(handoffs))
	for _, h := range handoffs {
		result[h.AssignmentID] = h
	}
	return result, nil
}

// ListByUser returns a worker's assignments, newest first.
func (r *AssignmentRepository) ListByUser(ctx context.Context, userID string, statuses []models.AssignmentStatus) ([]models.Assignment, error) {
	query := `SELECT ` + assignmentColumns + ` FROM assignments WHERE user_id = ? AND deleted_at IS NULL`
	args := []interface{}{userID}
	if len(statuses) > 0 {
		query += ` AND status IN (?)`
		var err error
		query, args, err = sqlx.In(query, userID, statuses)
		if err != nil {
			return nil, fmt.Errorf("list user assignments: %w", err)
		}
	}
	query += ` ORDER BY assigned_at DESC`
	query = r.db.Rebind(query)
	var assignments []models.Assignment
	if err := r.db.SelectContext(ctx, &assignments, query, args...); err != nil {
		return nil, translateDBError(fmt.Errorf("list user assignments: %w", err), "")
	}
	return assignments, nil
}

// SoftDelete marks an assignment deleted while retaining the row for audit.
func (r *AssignmentRepository) SoftDelete(ctx context.Context, exec sqlx.ExtContext, id string, at time.Time) error {
	const query = `UPDATE assignments SET deleted_at = $1, updated_at = $1 WHERE id = $2 AND deleted_at IS NULL`
	result, err := r.target(exec).ExecContext(ctx, query, at, id)
	if err != nil {
		return translateDBError(fmt.Errorf("soft delete assignment: %w", err), "")
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return appErrors.Clone(appErrors.ErrNotFound, "assignment not found")
	}
	return nil
}
