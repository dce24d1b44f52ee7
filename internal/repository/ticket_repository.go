package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/andalan-id/service-center-api/internal/models"
)

const ticketColumns = `id, subject_kind, subject_id, kind, time_limit_minutes, due_at, status,
	acknowledged_at, resolved_at, user_id, contact_id, created_at, updated_at`

// TicketRepository persists SLA tickets. All status mutations are
// conditional on the row still being active, so a resolution racing the
// breach sweep leaves the ticket in whichever terminal state committed
// first and the loser's write affects zero rows.
type TicketRepository struct {
	db *sqlx.DB
}

// NewTicketRepository constructs the repository.
func NewTicketRepository(db *sqlx.DB) *TicketRepository {
	return &TicketRepository{db: db}
}

func (r *TicketRepository) target(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// Create inserts a new ticket. due_at must already be computed by the
// caller; it is immutable from then on.
func (r *TicketRepository) Create(ctx context.Context, exec sqlx.ExtContext, ticket *models.SlaTicket) error {
	if ticket.ID == "" {
		ticket.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if ticket.CreatedAt.IsZero() {
		ticket.CreatedAt = now
	}
	ticket.UpdatedAt = now
	if ticket.Status == "" {
		ticket.Status = models.TicketStatusActive
	}
	const query = `INSERT INTO sla_tickets
	(id, subject_kind, subject_id, kind, time_limit_minutes, due_at, status, user_id, contact_id, created_at, updated_at)
	VALUES (:id, :subject_kind, :subject_id, :kind, :time_limit_minutes, :due_at, :status, :user_id, :contact_id, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, r.target(exec), query, ticket); err != nil {
		return translateDBError(fmt.Errorf("create sla ticket: %w", err), "")
	}
	return nil
}

// GetByID fetches a ticket by identifier.
func (r *TicketRepository) GetByID(ctx context.Context, id string) (*models.SlaTicket, error) {
	query := `SELECT ` + ticketColumns + ` FROM sla_tickets WHERE id = $1`
	var ticket models.SlaTicket
	if err := r.db.GetContext(ctx, &ticket, query, id); err != nil {
		return nil, translateDBError(err, "sla ticket not found")
	}
	return &ticket, nil
}

// Acknowledge stamps acknowledged_at once; the ticket stays active.
func (r *TicketRepository) Acknowledge(ctx context.Context, exec sqlx.ExtContext, id string, at time.Time) error {
	const query = `UPDATE sla_tickets SET acknowledged_at = $1, updated_at = $1
	WHERE id = $2 AND status = 'active' AND acknowledged_at IS NULL`
	if _, err := r.target(exec).ExecContext(ctx, query, at, id); err != nil {
		return translateDBError(fmt.Errorf("acknowledge sla ticket: %w", err), "")
	}
	return nil
}

// AcknowledgeBySubject stamps acknowledged_at on the subject's active
// response tickets that have not been acknowledged yet.
func (r *TicketRepository) AcknowledgeBySubject(ctx context.Context, exec sqlx.ExtContext, subject models.SubjectRef, at time.Time) error {
	const query = `UPDATE sla_tickets SET acknowledged_at = $1, updated_at = $1
	WHERE subject_kind = $2 AND subject_id = $3 AND status = 'active' AND acknowledged_at IS NULL`
	if _, err := r.target(exec).ExecContext(ctx, query, at, subject.Kind, subject.ID); err != nil {
		return translateDBError(fmt.Errorf("acknowledge sla tickets by subject: %w", err), "")
	}
	return nil
}

// Resolve transitions an active ticket to a terminal outcome. It reports
// false when the ticket was already terminal (the compare-and-swap lost),
// which callers treat as an idempotent no-op.
func (r *TicketRepository) Resolve(ctx context.Context, exec sqlx.ExtContext, id string, outcome models.TicketStatus, at time.Time) (bool, error) {
	const query = `UPDATE sla_tickets SET status = $1, resolved_at = $2, updated_at = $2
	WHERE id = $3 AND status = 'active'`
	result, err := r.target(exec).ExecContext(ctx, query, outcome, at, id)
	if err != nil {
		return false, translateDBError(fmt.Errorf("resolve sla ticket: %w", err), "")
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("resolve sla ticket: %w", err)
	}
	return affected > 0, nil
}

// SweepBreached flips every overdue active ticket to breached in one
// conditional update and returns the affected tickets. The WHERE clause on
// status makes the sweep safe against concurrent resolutions and
// idempotent across back-to-back runs.
func (r *TicketRepository) SweepBreached(ctx context.Context, now time.Time, limit int) ([]models.SlaTicket, error) {
	if limit <= 0 {
		limit = 500
	}
	query := `UPDATE sla_tickets SET status = 'breached', updated_at = $1
	WHERE id IN (
		SELECT id FROM sla_tickets WHERE status = 'active' AND due_at < $1
		ORDER BY due_at ASC LIMIT $2
	) AND status = 'active'
	RETURNING ` + ticketColumns
	var breached []models.SlaTicket
	if err := r.db.SelectContext(ctx, &breached, query, now, limit); err != nil {
		return nil, translateDBError(fmt.Errorf("sweep breached tickets: %w", err), "")
	}
	return breached, nil
}

// CancelActiveBySubject cancels every still-active ticket attached to the
// subject, returning the ids it touched. Runs inside the same transaction
// as the parent's terminal transition to prevent orphaned active tickets.
func (r *TicketRepository) CancelActiveBySubject(ctx context.Context, exec sqlx.ExtContext, subject models.SubjectRef, at time.Time) ([]string, error) {
	const query = `UPDATE sla_tickets SET status = 'cancelled', resolved_at = $1, updated_at = $1
	WHERE subject_kind = $2 AND subject_id = $3 AND status = 'active'
	RETURNING id`
	rows, err := r.target(exec).QueryxContext(ctx, query, at, subject.Kind, subject.ID)
	if err != nil {
		return nil, translateDBError(fmt.Errorf("cancel tickets for %s/%s: %w", subject.Kind, subject.ID, err), "")
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("cancel tickets: scan id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("cancel tickets: %w", err)
	}
	return ids, nil
}

// List returns tickets matching the filter, most urgent first.
func (r *TicketRepository) List(ctx context.Context, filter models.TicketFilter) ([]models.SlaTicket, error) {
	builder := strings.Builder{}
	builder.WriteString(`SELECT ` + ticketColumns + ` FROM sla_tickets`)
	args := make([]interface{}, 0, 6)
	conditions := make([]string, 0, 4)

	if filter.Subject != nil {
		args = append(args, filter.Subject.Kind)
		conditions = append(conditions, fmt.Sprintf("subject_kind = $%d", len(args)))
		args = append(args, filter.Subject.ID)
		conditions = append(conditions, fmt.Sprintf("subject_id = $%d", len(args)))
	}
	if len(filter.Status) > 0 {
		placeholders := make([]string, len(filter.Status))
		for i, status := range filter.Status {
			args = append(args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		conditions = append(conditions, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ",")))
	}
	if filter.Kind != "" {
		args = append(args, filter.Kind)
		conditions = append(conditions, fmt.Sprintf("kind = $%d", len(args)))
	}
	if filter.DueAfter != nil {
		args = append(args, *filter.DueAfter)
		conditions = append(conditions, fmt.Sprintf("due_at > $%d", len(args)))
	}
	if len(conditions) > 0 {
		builder.WriteString(" WHERE ")
		builder.WriteString(strings.Join(conditions, " AND "))
	}
	builder.WriteString(" ORDER BY due_at ASC")

	pageSize := filter.PageSize
	if pageSize <= 0 || pageSize > 200 {
		pageSize = 50
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	builder.WriteString(fmt.Sprintf(" LIMIT %d OFFSET %d", pageSize, (page-1)*pageSize))

	var tickets []models.SlaTicket
	if err := r.db.SelectContext(ctx, &tickets, builder.String(), args...); err != nil {
		return nil, translateDBError(fmt.Errorf("list sla tickets: %w", err), "")
	}
	return tickets, nil
}

// CountActiveOverdue reports how many active tickets are already past due,
// exported as a gauge by the metrics service.
func (r *TicketRepository) CountActiveOverdue(ctx context.Context, now time.Time) (int, error) {
	const query = `SELECT COUNT(*) FROM sla_tickets WHERE status = 'active' AND due_at < $1`
	var count int
	if err := r.db.GetContext(ctx, &count, query, now); err != nil {
		return 0, translateDBError(fmt.Errorf("count overdue tickets: %w", err), "")
	}
	return count, nil
}
