package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/andalan-id/service-center-api/internal/models"
	appErrors "github.com/andalan-id/service-center-api/pkg/errors"
)

const workItemColumns = `id, title, category_id, estimate_cents, billable, tags, status, parent_id,
	started_at, completed_at, created_at, updated_at, deleted_at`

// WorkItemRepository persists work items and their categories.
type WorkItemRepository struct {
	db *sqlx.DB
}

// NewWorkItemRepository constructs the repository.
func NewWorkItemRepository(db *sqlx.DB) *WorkItemRepository {
	return &WorkItemRepository{db: db}
}

func (r *WorkItemRepository) target(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// Create inserts a new work item.
func (r *WorkItemRepository) Create(ctx context.Context, exec sqlx.ExtContext, item *models.WorkItem) error {
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	if item.Status == "" {
		item.Status = models.WorkItemStatusOpen
	}
	now := time.Now().UTC()
	item.CreatedAt = now
	item.UpdatedAt = now
	if item.Tags == nil {
		item.Tags = []string{}
	}
	const query = `INSERT INTO work_items
	(id, title, category_id, estimate_cents, billable, tags, status, parent_id, started_at, created_at, updated_at)
	VALUES (:id, :title, :category_id, :estimate_cents, :billable, :tags, :status, :parent_id, :started_at, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, r.target(exec), query, item); err != nil {
		return translateDBError(fmt.Errorf("create work item: %w", err), "")
	}
	return nil
}

// GetByID fetches a work item by identifier.
func (r *WorkItemRepository) GetByID(ctx context.Context, id string) (*models.WorkItem, error) {
	query := `SELECT ` + workItemColumns + ` FROM work_items WHERE id = $1 AND deleted_at IS NULL`
	var item models.WorkItem
	if err := r.db.GetContext(ctx, &item, query, id); err != nil {
		return nil, translateDBError(err, "work item not found")
	}
	return &item, nil
}

// GetByIDForUpdate locks the work item row. Concurrent assign calls on the
// same work item serialise here before the active-slot check.
func (r *WorkItemRepository) GetByIDForUpdate(ctx context.Context, exec sqlx.ExtContext, id string) (*models.WorkItem, error) {
	query := `SELECT ` + workItemColumns + ` FROM work_items WHERE id = $1 AND deleted_at IS NULL FOR UPDATE`
	var item models.WorkItem
	if err := sqlx.GetContext(ctx, r.target(exec), &item, query, id); err != nil {
		return nil, translateDBError(err, "work item not found")
	}
	return &item, nil
}

// Update persists mutable descriptive fields.
func (r *WorkItemRepository) Update(ctx context.Context, exec sqlx.ExtContext, item *models.WorkItem) error {
	item.UpdatedAt = time.Now().UTC()
	const query = `UPDATE work_items
	SET title = :title, category_id = :category_id, estimate_cents = :estimate_cents,
	    billable = :billable, tags = :tags, parent_id = :parent_id, updated_at = :updated_at
	WHERE id = :id AND deleted_at IS NULL`
	result, err := sqlx.NamedExecContext(ctx, r.target(exec), query, item)
	if err != nil {
		return translateDBError(fmt.Errorf("update work item: %w", err), "")
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return appErrors.Clone(appErrors.ErrNotFound, "work item not found")
	}
	return nil
}

// SetStatus transitions the work item status, maintaining the invariant
// that completed_at is set iff the status is terminal.
func (r *WorkItemRepository) SetStatus(ctx context.Context, exec sqlx.ExtContext, id string, status models.WorkItemStatus, at time.Time) error {
	var query string
	if status.Terminal() {
		query = `UPDATE work_items SET status = $1, completed_at = $2, updated_at = $2 WHERE id = $3 AND deleted_at IS NULL`
	} else {
		query = `UPDATE work_items SET status = $1, completed_at = NULL, updated_at = $2 WHERE id = $3 AND deleted_at IS NULL`
	}
	result, err := r.target(exec).ExecContext(ctx, query, status, at, id)
	if err != nil {
		return translateDBError(fmt.Errorf("set work item status: %w", err), "")
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return appErrors.Clone(appErrors.ErrNotFound, "work item not found")
	}
	return nil
}

// MarkStarted stamps started_at once, on the first accepted assignment.
func (r *WorkItemRepository) MarkStarted(ctx context.Context, exec sqlx.ExtContext, id string, at time.Time) error {
	const query = `UPDATE work_items SET started_at = $1, status = 'in_progress', updated_at = $1
	WHERE id = $2 AND started_at IS NULL AND deleted_at IS NULL`
	if _, err := r.target(exec).ExecContext(ctx, query, at, id); err != nil {
		return translateDBError(fmt.Errorf("mark work item started: %w", err), "")
	}
	return nil
}

// SoftDelete marks the row deleted while retaining it for audit.
func (r *WorkItemRepository) SoftDelete(ctx context.Context, exec sqlx.ExtContext, id string, at time.Time) error {
	const query = `UPDATE work_items SET deleted_at = $1, updated_at = $1 WHERE id = $2 AND deleted_at IS NULL`
	result, err := r.target(exec).ExecContext(ctx, query, at, id)
	if err != nil {
		return translateDBError(fmt.Errorf("soft delete work item: %w", err), "")
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return appErrors.Clone(appErrors.ErrNotFound, "work item not found")
	}
	return nil
}

// List returns work items matching the filter, newest first.
func (r *WorkItemRepository) List(ctx context.Context, filter models.WorkItemFilter) ([]models.WorkItem, int, error) {
	args := make([]interface{}, 0, 6)
	conditions := []string{"deleted_at IS NULL"}

	if len(filter.Status) > 0 {
		placeholders := make([]string, len(filter.Status))
		for i, status := range filter.Status {
			args = append(args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		conditions = append(conditions, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ",")))
	}
	if filter.CategoryID != "" {
		args = append(args, filter.CategoryID)
		conditions = append(conditions, fmt.Sprintf("category_id = $%d", len(args)))
	}
	if filter.ParentID != "" {
		args = append(args, filter.ParentID)
		conditions = append(conditions, fmt.Sprintf("parent_id = $%d", len(args)))
	}
	if filter.Billable != nil {
		args = append(args, *filter.Billable)
		conditions = append(conditions, fmt.Sprintf("billable = $%d", len(args)))
	}
	if filter.Search != "" {
		args = append(args, "%"+filter.Search+"%")
		conditions = append(conditions, fmt.Sprintf("title ILIKE $%d", len(args)))
	}
	where := " WHERE " + strings.Join(conditions, " AND ")

	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM work_items`+where, args...); err != nil {
		return nil, 0, translateDBError(fmt.Errorf("count work items: %w", err), "")
	}

	builder := strings.Builder{}
	builder.WriteString(`SELECT ` + workItemColumns + ` FROM work_items`)
	builder.WriteString(where)
	builder.WriteString(" ORDER BY created_at DESC")

	pageSize := filter.PageSize
	if pageSize <= 0 || pageSize > 200 {
		pageSize = 50
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	builder.WriteString(fmt.Sprintf(" LIMIT %d OFFSET %d", pageSize, (page-1)*pageSize))

	var items []models.WorkItem
	if err := r.db.SelectContext(ctx, &items, builder.String(), args...); err != nil {
		return nil, 0, translateDBError(fmt.Errorf("list work items: %w", err), "")
	}
	return items, total, nil
}

// GetCategory returns the SLA configuration for a category.
func (r *WorkItemRepository) GetCategory(ctx context.Context, id string) (*models.WorkItemCategory, error) {
	const query = `SELECT id, name, response_sla_minutes, resolution_sla_minutes, created_at, updated_at
	FROM work_item_categories WHERE id = $1`
	var category models.WorkItemCategory
	if err := r.db.GetContext(ctx, &category, query, id); err != nil {
		return nil, translateDBError(err, "work item category not found")
	}
	return &category, nil
}
