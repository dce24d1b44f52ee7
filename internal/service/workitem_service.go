package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/andalan-id/service-center-api/internal/dto"
	"github.com/andalan-id/service-center-api/internal/models"
	"github.com/andalan-id/service-center-api/pkg/config"
	appErrors "github.com/andalan-id/service-center-api/pkg/errors"
)

type workItemStore interface {
	Create(ctx context.Context, exec sqlx.ExtContext, item *models.WorkItem) error
	GetByID(ctx context.Context, id string) (*models.WorkItem, error)
	GetByIDForUpdate(ctx context.Context, exec sqlx.ExtContext, id string) (*models.WorkItem, error)
	Update(ctx context.Context, exec sqlx.ExtContext, item *models.WorkItem) error
	SetStatus(ctx context.Context, exec sqlx.ExtContext, id string, status models.WorkItemStatus, at time.Time) error
	SoftDelete(ctx context.Context, exec sqlx.ExtContext, id string, at time.Time) error
	List(ctx context.Context, filter models.WorkItemFilter) ([]models.WorkItem, int, error)
	GetCategory(ctx context.Context, id string) (*models.WorkItemCategory, error)
}

type workItemAssignmentStore interface {
	FindActiveByWorkItem(ctx context.Context, exec sqlx.ExtContext, workItemID string) (*models.Assignment, error)
}

type workItemTicketStore interface {
	Create(ctx context.Context, exec sqlx.ExtContext, ticket *models.SlaTicket) error
	CancelActiveBySubject(ctx context.Context, exec sqlx.ExtContext, subject models.SubjectRef, at time.Time) ([]string, error)
}

// WorkItemService owns work-item CRUD and the two terminal operations.
// Creating a work item opens its resolution SLA ticket; finishing one
// cancels whatever tickets are still running against it.
type WorkItemService struct {
	tx          txProvider
	workItems   workItemStore
	assignments workItemAssignmentStore
	tickets     workItemTicketStore
	activities  activityAppender
	permissions *PermissionService
	validator   *validator.Validate
	sla         config.SLAConfig
	logger      *zap.Logger
	now         func() time.Time
}

// NewWorkItemService constructs the service.
func NewWorkItemService(
	tx txProvider,
	workItems workItemStore,
	assignments workItemAssignmentStore,
	tickets workItemTicketStore,
	activities activityAppender,
	permissions *PermissionService,
	sla config.SLAConfig,
	logger *zap.Logger,
) *WorkItemService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WorkItemService{
		tx:          tx,
		workItems:   workItems,
		assignments: assignments,
		tickets:     tickets,
		activities:  activities,
		permissions: permissions,
		validator:   validator.New(),
		sla:         sla,
		logger:      logger,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Create opens a work item and its resolution SLA ticket atomically. The
// resolution limit comes from the category when set, otherwise the
// configured default.
func (s *WorkItemService) Create(ctx context.Context, actor *models.JWTClaims, req dto.CreateWorkItemRequest) (*models.WorkItem, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid work item payload")
	}
	allowed, err := s.permissions.Check(ctx, actor.UserID, AbilityCreateWorkItem, nil)
	if err != nil {
		return nil, err
	}
	if !allowed {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "not allowed to create work items")
	}

	resolutionLimit := s.sla.DefaultResolutionMinutes
	if req.CategoryID != nil {
		category, catErr := s.workItems.GetCategory(ctx, *req.CategoryID)
		if catErr != nil {
			return nil, catErr
		}
		if category.ResolutionSLAMinutes > 0 {
			resolutionLimit = category.ResolutionSLAMinutes
		}
	}

	now := s.now()
	item := &models.WorkItem{
		Title:         req.Title,
		CategoryID:    req.CategoryID,
		ParentID:      req.ParentID,
		EstimateCents: req.EstimateCents,
		Billable:      req.Billable,
		Tags:          pq.StringArray(req.Tags),
		Status:        models.WorkItemStatusOpen,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	tx, err := s.tx.BeginTxx(ctx, nil)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrTransient.Code, appErrors.ErrTransient.Status, "failed to begin transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = s.workItems.Create(ctx, tx, item); err != nil {
		return nil, err
	}

	ticket := &models.SlaTicket{
		SubjectKind:      models.SubjectKindWorkItem,
		SubjectID:        item.ID,
		Kind:             models.TicketKindResolution,
		TimeLimitMinutes: resolutionLimit,
		DueAt:            now.Add(time.Duration(resolutionLimit) * time.Minute),
		Status:           models.TicketStatusActive,
		CreatedAt:        now,
	}
	if err = s.tickets.Create(ctx, tx, ticket); err != nil {
		return nil, err
	}

	if err = s.appendActivity(ctx, tx, &actor.UserID, item.SubjectRef(), models.ActivityWorkItemCreated, map[string]interface{}{
		"title":     item.Title,
		"ticket_id": ticket.ID,
	}); err != nil {
		return nil, err
	}

	if err = tx.Commit(); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrTransient.Code, appErrors.ErrTransient.Status, "failed to commit work item")
	}
	return item, nil
}

// Get returns a work item after a view check.
func (s *WorkItemService) Get(ctx context.Context, actor *models.JWTClaims, id string) (*models.WorkItem, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	item, err := s.workItems.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	resolver, err := s.permissions.ResolverFor(ctx, actor.UserID)
	if err != nil {
		return nil, err
	}
	if !resolver.Can(AbilityView, item) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "not allowed to view this work item")
	}
	return item, nil
}

// List returns work items matching the filter plus a total count.
func (s *WorkItemService) List(ctx context.Context, actor *models.JWTClaims, filter models.WorkItemFilter) ([]models.WorkItem, int, error) {
	if actor == nil {
		return nil, 0, appErrors.ErrUnauthorized
	}
	resolver, err := s.permissions.ResolverFor(ctx, actor.UserID)
	if err != nil {
		return nil, 0, err
	}
	if !resolver.Can(AbilityView, nil) {
		return nil, 0, appErrors.Clone(appErrors.ErrForbidden, "not allowed to list work items")
	}
	return s.workItems.List(ctx, filter)
}

// Update edits the mutable fields of a non-terminal work item.
func (s *WorkItemService) Update(ctx context.Context, actor *models.JWTClaims, id string, req dto.UpdateWorkItemRequest) (*models.WorkItem, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid work item payload")
	}
	allowed, err := s.permissions.Check(ctx, actor.UserID, AbilityCreateWorkItem, nil)
	if err != nil {
		return nil, err
	}
	if !allowed {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "not allowed to edit work items")
	}

	tx, err := s.tx.BeginTxx(ctx, nil)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrTransient.Code, appErrors.ErrTransient.Status, "failed to begin transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	item, err := s.workItems.GetByIDForUpdate(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if item.Status.Terminal() {
		err = appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("work item is %s and cannot be edited", item.Status))
		return nil, err
	}

	item.Title = req.Title
	item.CategoryID = req.CategoryID
	item.ParentID = req.ParentID
	item.EstimateCents = req.EstimateCents
	item.Billable = req.Billable
	item.Tags = pq.StringArray(req.Tags)
	item.UpdatedAt = s.now()

	if err = s.workItems.Update(ctx, tx, item); err != nil {
		return nil, err
	}
	if err = tx.Commit(); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrTransient.Code, appErrors.ErrTransient.Status, "failed to commit work item update")
	}
	return item, nil
}

// Complete moves a work item to completed. The slot must be free: an
// in-flight assignment has to reach a terminal state first.
func (s *WorkItemService) Complete(ctx context.Context, actor *models.JWTClaims, id string) (*models.WorkItem, error) {
	return s.finish(ctx, actor, id, models.WorkItemStatusCompleted, models.ActivityWorkItemCompleted)
}

// Cancel moves a work item to cancelled under the same rules as Complete.
func (s *WorkItemService) Cancel(ctx context.Context, actor *models.JWTClaims, id string) (*models.WorkItem, error) {
	return s.finish(ctx, actor, id, models.WorkItemStatusCancelled, models.ActivityWorkItemCancelled)
}

func (s *WorkItemService) finish(ctx context.Context, actor *models.JWTClaims, id string, status models.WorkItemStatus, action string) (*models.WorkItem, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	resolver, err := s.permissions.ResolverFor(ctx, actor.UserID)
	if err != nil {
		return nil, err
	}

	tx, err := s.tx.BeginTxx(ctx, nil)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrTransient.Code, appErrors.ErrTransient.Status, "failed to begin transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	item, err := s.workItems.GetByIDForUpdate(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if !resolver.Can(AbilityCompleteWorkItem, item) {
		err = appErrors.Clone(appErrors.ErrForbidden, "not allowed to close work items")
		return nil, err
	}
	if item.Status.Terminal() {
		err = appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("work item is already %s", item.Status))
		return nil, err
	}

	active, err := s.assignments.FindActiveByWorkItem(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if active != nil {
		err = appErrors.Clone(appErrors.ErrConflict,
			fmt.Sprintf("work item has active assignment %s; resolve it first", active.ID))
		return nil, err
	}

	now := s.now()
	if err = s.workItems.SetStatus(ctx, tx, id, status, now); err != nil {
		return nil, err
	}

	cancelled, err := s.tickets.CancelActiveBySubject(ctx, tx, item.SubjectRef(), now)
	if err != nil {
		return nil, err
	}

	props := map[string]interface{}{"status": status}
	if len(cancelled) > 0 {
		props["cancelled_ticket_ids"] = cancelled
	}
	if err = s.appendActivity(ctx, tx, &actor.UserID, item.SubjectRef(), action, props); err != nil {
		return nil, err
	}

	if err = tx.Commit(); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrTransient.Code, appErrors.ErrTransient.Status, "failed to commit work item status")
	}

	item.Status = status
	item.UpdatedAt = now
	item.CompletedAt = &now
	return item, nil
}

// Delete soft-deletes a work item that is already terminal.
func (s *WorkItemService) Delete(ctx context.Context, actor *models.JWTClaims, id string) error {
	if actor == nil {
		return appErrors.ErrUnauthorized
	}
	item, err := s.workItems.GetByID(ctx, id)
	if err != nil {
		return err
	}
	allowed, err := s.permissions.Check(ctx, actor.UserID, AbilityCompleteWorkItem, item)
	if err != nil {
		return err
	}
	if !allowed {
		return appErrors.Clone(appErrors.ErrForbidden, "not allowed to delete work items")
	}
	if !item.Status.Terminal() {
		return appErrors.Clone(appErrors.ErrValidation, "only completed or cancelled work items can be deleted")
	}
	return s.workItems.SoftDelete(ctx, nil, id, s.now())
}

func (s *WorkItemService) appendActivity(ctx context.Context, exec sqlx.ExtContext, actorID *string, subject models.SubjectRef, action string, props map[string]interface{}) error {
	payload, err := json.Marshal(props)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to encode activity properties")
	}
	return s.activities.Append(ctx, exec, &models.Activity{
		ActorID:     actorID,
		SubjectKind: subject.Kind,
		SubjectID:   subject.ID,
		Action:      action,
		Properties:  payload,
	})
}
