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

// ActivityRepository is the append-only audit trail. There is no update or
// delete path on purpose.
type ActivityRepository struct {
	db *sqlx.DB
}

// NewActivityRepository constructs the repository.
func NewActivityRepository(db *sqlx.DB) *ActivityRepository {
	return &ActivityRepository{db: db}
}

func (r *ActivityRepository) target(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// Append records one activity entry, inside the caller's transaction when
// one is supplied.
func (r *ActivityRepository) Append(ctx context.Context, exec sqlx.ExtContext, activity *models.Activity) error {
	if activity.ID == "" {
		activity.ID = uuid.NewString()
	}
	if activity.CreatedAt.IsZero() {
		activity.CreatedAt = time.Now().UTC()
	}
	if len(activity.Properties) == 0 {
		activity.Properties = []byte("{}")
	}
	const query = `INSERT INTO activities (id, actor_id, subject_kind, subject_id, action, properties, note, created_at)
	VALUES (:id, :actor_id, :subject_kind, :subject_id, :action, :properties, :note, :created_at)`
	if _, err := sqlx.NamedExecContext(ctx, r.target(exec), query, activity); err != nil {
		return translateDBError(fmt.Errorf("append activity: %w", err), "")
	}
	return nil
}

// List returns activity entries matching the filter, newest first.
func (r *ActivityRepository) List(ctx context.Context, filter models.ActivityFilter) ([]models.Activity, error) {
	builder := strings.Builder{}
	builder.WriteString(`SELECT id, actor_id, subject_kind, subject_id, action, properties, note, created_at FROM activities`)
	args := make([]interface{}, 0, 4)
	conditions := make([]string, 0, 3)

	if filter.Subject != nil {
		args = append(args, filter.Subject.Kind)
		conditions = append(conditions, fmt.Sprintf("subject_kind = $%d", len(args)))
		args = append(args, filter.Subject.ID)
		conditions = append(conditions, fmt.Sprintf("subject_id = $%d", len(args)))
	}
	if filter.ActorID != "" {
		args = append(args, filter.ActorID)
		conditions = append(conditions, fmt.Sprintf("actor_id = $%d", len(args)))
	}
	if filter.Action != "" {
		args = append(args, filter.Action)
		conditions = append(conditions, fmt.Sprintf("action = $%d", len(args)))
	}
	if len(conditions) > 0 {
		builder.WriteString(" WHERE ")
		builder.WriteString(strings.Join(conditions, " AND "))
	}
	builder.WriteString(" ORDER BY created_at DESC")

	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	builder.WriteString(fmt.Sprintf(" LIMIT %d OFFSET %d", limit, offset))

	var activities []models.Activity
	if err := r.db.SelectContext(ctx, &activities, builder.String(), args...); err != nil {
		return nil, translateDBError(fmt.Errorf("list activities: %w", err), "")
	}
	return activities, nil
}
