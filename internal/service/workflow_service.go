package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/andalan-id/service-center-api/internal/dto"
	"github.com/andalan-id/service-center-api/internal/models"
	"github.com/andalan-id/service-center-api/internal/repository"
	"github.com/andalan-id/service-center-api/pkg/config"
	appErrors "github.com/andalan-id/service-center-api/pkg/errors"
	"github.com/andalan-id/service-center-api/pkg/jobs"
)

// Event types published to the in-process queue after commits.
const (
	EventAssignmentCreated   = "assignment.created"
	EventAssignmentFinished  = "assignment.finished"
	EventAssignmentHandedOff = "assignment.handed_off"
)

type txProvider interface {
	BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error)
}

type workflowWorkItemStore interface {
	GetByID(ctx context.Context, id string) (*models.WorkItem, error)
	GetByIDForUpdate(ctx context.Context, exec sqlx.ExtContext, id string) (*models.WorkItem, error)
	GetCategory(ctx context.Context, id string) (*models.WorkItemCategory, error)
	MarkStarted(ctx context.Context, exec sqlx.ExtContext, id string, at time.Time) error
}

type workflowAssignmentStore interface {
	Create(ctx context.Context, exec sqlx.ExtContext, assignment *models.Assignment) error
	GetByID(ctx context.Context, id string) (*models.Assignment, error)
	GetByIDForUpdate(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Assignment, error)
	FindActiveByWorkItem(ctx context.Context, exec sqlx.ExtContext, workItemID string) (*models.Assignment, error)
	Transition(ctx context.Context, exec sqlx.ExtContext, params repository.TransitionParams) error
	CreateHandoff(ctx context.Context, exec sqlx.ExtContext, handoff *models.Handoff) error
	ListByWorkItem(ctx context.Context, workItemID string) ([]models.Assignment, error)
	ListHandoffsByAssignmentIDs(ctx context.Context, ids []string) (map[string]models.Handoff, error)
}

type workflowTicketStore interface {
	Create(ctx context.Context, exec sqlx.ExtContext, ticket *models.SlaTicket) error
	AcknowledgeBySubject(ctx context.Context, exec sqlx.ExtContext, subject models.SubjectRef, at time.Time) error
	CancelActiveBySubject(ctx context.Context, exec sqlx.ExtContext, subject models.SubjectRef, at time.Time) ([]string, error)
}

type activityAppender interface {
	Append(ctx context.Context, exec sqlx.ExtContext, activity *models.Activity) error
}

type eventSink interface {
	Enqueue(job jobs.Job) error
}

// WorkflowService is the work-item facade. Every public operation is one
// atomic unit: permission check, state mutation, side-effect records,
// commit. A failure at any step rolls the whole operation back, so no
// activity row ever records an uncommitted transition.
type WorkflowService struct {
	tx          txProvider
	workItems   workflowWorkItemStore
	assignments workflowAssignmentStore
	tickets     workflowTicketStore
	activities  activityAppender
	permissions *PermissionService
	validator   *validator.Validate
	sla         config.SLAConfig
	metrics     *MetricsService
	events      eventSink
	logger      *zap.Logger
	now         func() time.Time
}

// WorkflowServiceOption configures optional collaborators.
type WorkflowServiceOption func(*WorkflowService)

// WithWorkflowMetrics attaches domain instrumentation.
func WithWorkflowMetrics(metrics *MetricsService) WorkflowServiceOption {
	return func(s *WorkflowService) { s.metrics = metrics }
}

// WithWorkflowEvents attaches the post-commit event queue.
func WithWorkflowEvents(events eventSink) WorkflowServiceOption {
	return func(s *WorkflowService) { s.events = events }
}

// WithWorkflowClock overrides the time source.
func WithWorkflowClock(now func() time.Time) WorkflowServiceOption {
	return func(s *WorkflowService) {
		if now != nil {
			s.now = now
		}
	}
}

// NewWorkflowService constructs the facade.
func NewWorkflowService(
	tx txProvider,
	workItems workflowWorkItemStore,
	assignments workflowAssignmentStore,
	tickets workflowTicketStore,
	activities activityAppender,
	permissions *PermissionService,
	sla config.SLAConfig,
	logger *zap.Logger,
	opts ...WorkflowServiceOption,
) *WorkflowService {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &WorkflowService{
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
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// CheckPermission answers an ability query for the external request layer.
func (s *WorkflowService) CheckPermission(ctx context.Context, userID, ability string, subject models.Subject) (bool, error) {
	return s.permissions.Check(ctx, userID, ability, subject)
}

// CreateAssignment claims the work item's single active slot for a worker
// and opens the response SLA ticket in the same transaction. The work item
// row is locked first so two concurrent assigns serialise; the partial
// unique index backstops the check.
func (s *WorkflowService) CreateAssignment(ctx context.Context, actor *models.JWTClaims, req dto.CreateAssignmentRequest) (*models.Assignment, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid assignment payload")
	}

	resolver, err := s.permissions.ResolverFor(ctx, actor.UserID)
	if err != nil {
		return nil, err
	}

	responseLimit := s.sla.DefaultResponseMinutes
	item, err := s.workItems.GetByID(ctx, req.WorkItemID)
	if err != nil {
		return nil, err
	}
	if item.CategoryID != nil {
		category, err := s.workItems.GetCategory(ctx, *item.CategoryID)
		if err == nil && category.ResponseSLAMinutes > 0 {
			responseLimit = category.ResponseSLAMinutes
		}
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

	item, err = s.workItems.GetByIDForUpdate(ctx, tx, req.WorkItemID)
	if err != nil {
		return nil, err
	}
	if !resolver.Can(AbilityAssign, item) {
		err = appErrors.Clone(appErrors.ErrForbidden, "not allowed to assign this work item")
		return nil, err
	}
	if item.Status.Terminal() {
		err = appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("work item is %s and cannot be assigned", item.Status))
		return nil, err
	}

	active, err := s.assignments.FindActiveByWorkItem(ctx, tx, item.ID)
	if err != nil {
		return nil, err
	}
	if active != nil {
		err = appErrors.Clone(appErrors.ErrConflictingAssignment,
			fmt.Sprintf("work item already has active assignment %s in status %s", active.ID, active.Status))
		return nil, err
	}

	now := s.now()
	assignment := &models.Assignment{
		WorkItemID: item.ID,
		UserID:     req.UserID,
		AssignedBy: actor.UserID,
		Status:     models.AssignmentStatusAssigned,
		AssignedAt: now,
	}
	if err = s.assignments.Create(ctx, tx, assignment); err != nil {
		return nil, err
	}

	ticket := &models.SlaTicket{
		SubjectKind:      models.SubjectKindAssignment,
		SubjectID:        assignment.ID,
		Kind:             models.TicketKindResponse,
		TimeLimitMinutes: responseLimit,
		DueAt:            now.Add(time.Duration(responseLimit) * time.Minute),
		Status:           models.TicketStatusActive,
		UserID:           &req.UserID,
		CreatedAt:        now,
	}
	if err = s.tickets.Create(ctx, tx, ticket); err != nil {
		return nil, err
	}

	if err = s.appendActivity(ctx, tx, &actor.UserID, assignment.SubjectRef(), models.ActivityAssignmentCreated, map[string]interface{}{
		"work_item_id": item.ID,
		"user_id":      req.UserID,
		"assigned_by":  actor.UserID,
		"ticket_id":    ticket.ID,
	}, nil); err != nil {
		return nil, err
	}

	if err = tx.Commit(); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrTransient.Code, appErrors.ErrTransient.Status, "failed to commit assignment")
	}

	if s.metrics != nil {
		s.metrics.IncAssignmentTransition("assign")
		s.metrics.IncTicketOpened(string(models.TicketKindResponse))
	}
	s.publish(EventAssignmentCreated, assignment.ID, map[string]interface{}{
		"work_item_id": item.ID,
		"user_id":      req.UserID,
	})
	return assignment, nil
}

// eventStage maps a transition event to the stage timestamp it writes and
// the activity label it records.
var eventStage = map[models.AssignmentEvent]struct {
	column string
	action string
}{
	models.AssignmentEventAccept:  {"accepted_at", models.ActivityAssignmentAccepted},
	models.AssignmentEventStart:   {"started_at", models.ActivityAssignmentStarted},
	models.AssignmentEventSubmit:  {"submitted_at", models.ActivityAssignmentSubmitted},
	models.AssignmentEventApprove: {"approved_at", models.ActivityAssignmentApproved},
	models.AssignmentEventReject:  {"rejected_at", models.ActivityAssignmentRejected},
}

// TransitionPayload carries the optional fields a transition may require.
type TransitionPayload struct {
	Notes    string
	Feedback string
}

// TransitionAssignment drives one step of the assignment state machine.
// Worker events require the assignment's own worker; reviewer events
// require the manage-work-items ability. Terminal outcomes cascade-cancel
// the assignment's still-active tickets inside the same transaction.
func (s *WorkflowService) TransitionAssignment(ctx context.Context, actor *models.JWTClaims, assignmentID string, event models.AssignmentEvent, payload TransitionPayload) (*models.Assignment, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	stage, ok := eventStage[event]
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown assignment event %q", event))
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

	assignment, err := s.assignments.GetByIDForUpdate(ctx, tx, assignmentID)
	if err != nil {
		return nil, err
	}

	to, ok := models.NextAssignmentStatus(assignment.Status, event)
	if !ok {
		err = appErrors.Clone(appErrors.ErrInvalidTransition,
			fmt.Sprintf("cannot apply event %q to assignment in status %q", event, assignment.Status))
		return nil, err
	}

	if !resolver.Can(string(event), assignment) {
		err = appErrors.Clone(appErrors.ErrForbidden, fmt.Sprintf("not allowed to %s this assignment", event))
		return nil, err
	}

	var notes, feedback *string
	switch event {
	case models.AssignmentEventSubmit:
		if payload.Notes == "" {
			err = appErrors.Clone(appErrors.ErrValidation, "submission requires user notes")
			return nil, err
		}
		notes = &payload.Notes
	case models.AssignmentEventReject:
		if payload.Feedback == "" {
			err = appErrors.Clone(appErrors.ErrValidation, "rejection requires admin feedback")
			return nil, err
		}
		feedback = &payload.Feedback
	case models.AssignmentEventApprove:
		if payload.Feedback != "" {
			feedback = &payload.Feedback
		}
	}

	now := s.now()
	if err = s.assignments.Transition(ctx, tx, repository.TransitionParams{
		ID:            assignment.ID,
		FromStatus:    assignment.Status,
		ToStatus:      to,
		StageColumn:   stage.column,
		StageAt:       now,
		UserNotes:     notes,
		AdminFeedback: feedback,
	}); err != nil {
		return nil, err
	}

	switch event {
	case models.AssignmentEventAccept:
		// Accepting counts as the first response on the SLA clock.
		if err = s.tickets.AcknowledgeBySubject(ctx, tx, assignment.SubjectRef(), now); err != nil {
			return nil, err
		}
	case models.AssignmentEventStart:
		if err = s.workItems.MarkStarted(ctx, tx, assignment.WorkItemID, now); err != nil {
			return nil, err
		}
	}

	var cancelled []string
	if to.Terminal() {
		cancelled, err = s.tickets.CancelActiveBySubject(ctx, tx, assignment.SubjectRef(), now)
		if err != nil {
			return nil, err
		}
	}

	props := map[string]interface{}{
		"from": assignment.Status,
		"to":   to,
	}
	if len(cancelled) > 0 {
		props["cancelled_ticket_ids"] = cancelled
	}
	var note *string
	if payload.Notes != "" {
		note = &payload.Notes
	} else if payload.Feedback != "" {
		note = &payload.Feedback
	}
	if err = s.appendActivity(ctx, tx, &actor.UserID, assignment.SubjectRef(), stage.action, props, note); err != nil {
		return nil, err
	}

	if err = tx.Commit(); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrTransient.Code, appErrors.ErrTransient.Status, "failed to commit transition")
	}

	if s.metrics != nil {
		s.metrics.IncAssignmentTransition(string(event))
	}
	if to.Terminal() {
		s.publish(EventAssignmentFinished, assignment.ID, map[string]interface{}{
			"work_item_id": assignment.WorkItemID,
			"status":       to,
		})
	}

	updated := *assignment
	updated.Status = to
	updated.UpdatedAt = now
	if notes != nil {
		updated.UserNotes = notes
	}
	if feedback != nil {
		updated.AdminFeedback = feedback
	}
	switch event {
	case models.AssignmentEventAccept:
		updated.AcceptedAt = &now
	case models.AssignmentEventStart:
		updated.StartedAt = &now
	case models.AssignmentEventSubmit:
		updated.SubmittedAt = &now
	case models.AssignmentEventApprove:
		updated.ApprovedAt = &now
	case models.AssignmentEventReject:
		updated.RejectedAt = &now
	}
	return &updated, nil
}

// Handoff atomically retires an in-flight assignment as returned, records
// the handoff, and spawns a fresh assignment for the receiving worker with
// its own response ticket. The old assignment turning terminal in the same
// transaction preserves the single-active-assignment invariant.
func (s *WorkflowService) Handoff(ctx context.Context, actor *models.JWTClaims, assignmentID string, req dto.HandoffRequest) (*models.Assignment, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid handoff payload")
	}

	resolver, err := s.permissions.ResolverFor(ctx, actor.UserID)
	if err != nil {
		return nil, err
	}
	receiverResolver, err := s.permissions.ResolverFor(ctx, req.ToUserID)
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

	assignment, err := s.assignments.GetByIDForUpdate(ctx, tx, assignmentID)
	if err != nil {
		return nil, err
	}

	if assignment.Status != models.AssignmentStatusAccepted && assignment.Status != models.AssignmentStatusInProgress {
		err = appErrors.Clone(appErrors.ErrInvalidHandoffState,
			fmt.Sprintf("assignment in status %q cannot be handed off", assignment.Status))
		return nil, err
	}
	if !resolver.Can(AbilityHandoff, assignment) {
		err = appErrors.Clone(appErrors.ErrForbidden, "only the assignment's worker may hand it off")
		return nil, err
	}
	if !receiverResolver.Can(AbilityReceive, assignment) {
		err = appErrors.Clone(appErrors.ErrForbidden, "receiving worker cannot accept assignments")
		return nil, err
	}

	responseLimit := s.sla.DefaultResponseMinutes
	if item, itemErr := s.workItems.GetByID(ctx, assignment.WorkItemID); itemErr == nil && item.CategoryID != nil {
		if category, catErr := s.workItems.GetCategory(ctx, *item.CategoryID); catErr == nil && category.ResponseSLAMinutes > 0 {
			responseLimit = category.ResponseSLAMinutes
		}
	}

	now := s.now()
	if err = s.assignments.Transition(ctx, tx, repository.TransitionParams{
		ID:          assignment.ID,
		FromStatus:  assignment.Status,
		ToStatus:    models.AssignmentStatusReturned,
		StageColumn: "returned_at",
		StageAt:     now,
	}); err != nil {
		return nil, err
	}

	successor := &models.Assignment{
		WorkItemID: assignment.WorkItemID,
		UserID:     req.ToUserID,
		AssignedBy: assignment.UserID,
		Status:     models.AssignmentStatusAssigned,
		AssignedAt: now,
	}
	if err = s.assignments.Create(ctx, tx, successor); err != nil {
		return nil, err
	}

	handoff := &models.Handoff{
		AssignmentID:    assignment.ID,
		FromUserID:      assignment.UserID,
		ToUserID:        req.ToUserID,
		NewAssignmentID: successor.ID,
		Reason:          req.Reason,
		CreatedAt:       now,
	}
	if err = s.assignments.CreateHandoff(ctx, tx, handoff); err != nil {
		return nil, err
	}

	if _, err = s.tickets.CancelActiveBySubject(ctx, tx, assignment.SubjectRef(), now); err != nil {
		return nil, err
	}

	ticket := &models.SlaTicket{
		SubjectKind:      models.SubjectKindAssignment,
		SubjectID:        successor.ID,
		Kind:             models.TicketKindResponse,
		TimeLimitMinutes: responseLimit,
		DueAt:            now.Add(time.Duration(responseLimit) * time.Minute),
		Status:           models.TicketStatusActive,
		UserID:           &req.ToUserID,
		CreatedAt:        now,
	}
	if err = s.tickets.Create(ctx, tx, ticket); err != nil {
		return nil, err
	}

	if err = s.appendActivity(ctx, tx, &actor.UserID, assignment.SubjectRef(), models.ActivityAssignmentHandedOff, map[string]interface{}{
		"from_user_id":      assignment.UserID,
		"to_user_id":        req.ToUserID,
		"new_assignment_id": successor.ID,
		"handoff_id":        handoff.ID,
		"reason":            req.Reason,
	}, nil); err != nil {
		return nil, err
	}

	if err = tx.Commit(); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrTransient.Code, appErrors.ErrTransient.Status, "failed to commit handoff")
	}

	if s.metrics != nil {
		s.metrics.IncHandoff()
		s.metrics.IncTicketOpened(string(models.TicketKindResponse))
	}
	s.publish(EventAssignmentHandedOff, assignment.ID, map[string]interface{}{
		"to_user_id":        req.ToUserID,
		"new_assignment_id": successor.ID,
	})
	return successor, nil
}

// History reconstructs the chain of custody for a work item: assignments
// ordered by assigned_at, each paired with the handoff that retired it.
func (s *WorkflowService) History(ctx context.Context, actor *models.JWTClaims, workItemID string) ([]models.AssignmentHistoryEntry, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	resolver, err := s.permissions.ResolverFor(ctx, actor.UserID)
	if err != nil {
		return nil, err
	}
	item, err := s.workItems.GetByID(ctx, workItemID)
	if err != nil {
		return nil, err
	}
	if !resolver.Can(AbilityView, item) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "not allowed to view this work item")
	}

	assignments, err := s.assignments.ListByWorkItem(ctx, workItemID)
	if err != nil {
		return nil, err
	}
	ids := make([]string, len(assignments))
	for i, a := range assignments {
		ids[i] = a.ID
	}
	handoffs, err := s.assignments.ListHandoffsByAssignmentIDs(ctx, ids)
	if err != nil {
		return nil, err
	}

	entries := make([]models.AssignmentHistoryEntry, len(assignments))
	for i, a := range assignments {
		entries[i] = models.AssignmentHistoryEntry{Assignment: a}
		if h, ok := handoffs[a.ID]; ok {
			handoff := h
			entries[i].Handoff = &handoff
		}
	}
	return entries, nil
}

// GetAssignment returns one assignment after a view permission check.
func (s *WorkflowService) GetAssignment(ctx context.Context, actor *models.JWTClaims, id string) (*models.Assignment, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	assignment, err := s.assignments.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	resolver, err := s.permissions.ResolverFor(ctx, actor.UserID)
	if err != nil {
		return nil, err
	}
	if !resolver.Can(AbilityView, assignment) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "not allowed to view this assignment")
	}
	return assignment, nil
}

func (s *WorkflowService) appendActivity(ctx context.Context, exec sqlx.ExtContext, actorID *string, subject models.SubjectRef, action string, props map[string]interface{}, note *string) error {
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
		Note:        note,
	})
}

func (s *WorkflowService) publish(eventType, subjectID string, payload map[string]interface{}) {
	if s.events == nil {
		return
	}
	if err := s.events.Enqueue(jobs.Job{ID: subjectID, Type: eventType, Payload: payload}); err != nil {
		s.logger.Warn("failed to publish workflow event", zap.String("type", eventType), zap.Error(err))
	}
}
