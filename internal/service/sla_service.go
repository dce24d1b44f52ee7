package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/andalan-id/service-center-api/internal/dto"
	"github.com/andalan-id/service-center-api/internal/models"
	appErrors "github.com/andalan-id/service-center-api/pkg/errors"
	"github.com/andalan-id/service-center-api/pkg/jobs"
)

// Event types published on ticket lifecycle changes.
const (
	EventTicketOpened   = "ticket.opened"
	EventTicketResolved = "ticket.resolved"
	EventTicketBreached = "ticket.breached"
)

type slaTicketStore interface {
	Create(ctx context.Context, exec sqlx.ExtContext, ticket *models.SlaTicket) error
	GetByID(ctx context.Context, id string) (*models.SlaTicket, error)
	Acknowledge(ctx context.Context, exec sqlx.ExtContext, id string, at time.Time) error
	Resolve(ctx context.Context, exec sqlx.ExtContext, id string, outcome models.TicketStatus, at time.Time) (bool, error)
	SweepBreached(ctx context.Context, now time.Time, limit int) ([]models.SlaTicket, error)
	List(ctx context.Context, filter models.TicketFilter) ([]models.SlaTicket, error)
	CountActiveOverdue(ctx context.Context, now time.Time) (int, error)
}

type slaWorkItemLookup interface {
	GetByID(ctx context.Context, id string) (*models.WorkItem, error)
}

type slaAssignmentLookup interface {
	GetByID(ctx context.Context, id string) (*models.Assignment, error)
}

// SlaService owns the ticket lifecycle: opening against a subject,
// acknowledging the first response, resolving to a terminal outcome, and
// the periodic breach sweep.
type SlaService struct {
	tx          txProvider
	tickets     slaTicketStore
	workItems   slaWorkItemLookup
	assignments slaAssignmentLookup
	activities  activityAppender
	permissions *PermissionService
	validator   *validator.Validate
	metrics     *MetricsService
	events      eventSink
	logger      *zap.Logger
	now         func() time.Time
	sweepBatch  int
}

// SlaServiceOption configures optional collaborators.
type SlaServiceOption func(*SlaService)

// WithSlaMetrics attaches domain instrumentation.
func WithSlaMetrics(metrics *MetricsService) SlaServiceOption {
	return func(s *SlaService) { s.metrics = metrics }
}

// WithSlaEvents attaches the post-commit event queue.
func WithSlaEvents(events eventSink) SlaServiceOption {
	return func(s *SlaService) { s.events = events }
}

// WithSlaSweepBatch caps how many tickets one sweep pass may breach.
func WithSlaSweepBatch(n int) SlaServiceOption {
	return func(s *SlaService) { s.sweepBatch = n }
}

// WithSlaClock overrides the time source.
func WithSlaClock(now func() time.Time) SlaServiceOption {
	return func(s *SlaService) {
		if now != nil {
			s.now = now
		}
	}
}

// NewSlaService constructs the ticket engine.
func NewSlaService(
	tx txProvider,
	tickets slaTicketStore,
	workItems slaWorkItemLookup,
	assignments slaAssignmentLookup,
	activities activityAppender,
	permissions *PermissionService,
	logger *zap.Logger,
	opts ...SlaServiceOption,
) *SlaService {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &SlaService{
		tx:          tx,
		tickets:     tickets,
		workItems:   workItems,
		assignments: assignments,
		activities:  activities,
		permissions: permissions,
		validator:   validator.New(),
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

// Open creates an active ticket against a subject. due_at is computed once
// from the time limit and never changes afterwards.
func (s *SlaService) Open(ctx context.Context, actor *models.JWTClaims, req dto.OpenTicketRequest) (*models.SlaTicket, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid ticket payload")
	}

	allowed, err := s.permissions.Check(ctx, actor.UserID, AbilityOpenTicket, nil)
	if err != nil {
		return nil, err
	}
	if !allowed {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "not allowed to open sla tickets")
	}

	subject := models.SubjectRef{Kind: models.SubjectKind(req.SubjectKind), ID: req.SubjectID}
	if err := s.verifySubject(ctx, subject); err != nil {
		return nil, err
	}

	now := s.now()
	ticket := &models.SlaTicket{
		SubjectKind:      subject.Kind,
		SubjectID:        subject.ID,
		Kind:             models.TicketKind(req.Kind),
		TimeLimitMinutes: req.TimeLimitMinutes,
		DueAt:            now.Add(time.Duration(req.TimeLimitMinutes) * time.Minute),
		Status:           models.TicketStatusActive,
		UserID:           req.UserID,
		ContactID:        req.ContactID,
		CreatedAt:        now,
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

	if err = s.tickets.Create(ctx, tx, ticket); err != nil {
		return nil, err
	}
	if err = s.appendTicketActivity(ctx, tx, &actor.UserID, ticket, models.ActivityTicketOpened, map[string]interface{}{
		"kind":               ticket.Kind,
		"time_limit_minutes": ticket.TimeLimitMinutes,
		"due_at":             ticket.DueAt,
	}); err != nil {
		return nil, err
	}
	if err = tx.Commit(); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrTransient.Code, appErrors.ErrTransient.Status, "failed to commit ticket")
	}

	if s.metrics != nil {
		s.metrics.IncTicketOpened(string(ticket.Kind))
	}
	s.publish(EventTicketOpened, ticket.ID, map[string]interface{}{
		"subject_kind": ticket.SubjectKind,
		"subject_id":   ticket.SubjectID,
		"due_at":       ticket.DueAt,
	})
	return ticket, nil
}

// Acknowledge stamps the first-response time on an active ticket. Repeat
// calls are no-ops; the ticket stays active either way.
func (s *SlaService) Acknowledge(ctx context.Context, actor *models.JWTClaims, id string) (*models.SlaTicket, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	allowed, err := s.permissions.Check(ctx, actor.UserID, AbilityAcknowledgeTicket, nil)
	if err != nil {
		return nil, err
	}
	if !allowed {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "not allowed to acknowledge sla tickets")
	}

	ticket, err := s.tickets.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if ticket.Status.Terminal() {
		return nil, appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("ticket is already %s", ticket.Status))
	}
	if ticket.AcknowledgedAt != nil {
		return ticket, nil
	}

	now := s.now()
	tx, err := s.tx.BeginTxx(ctx, nil)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrTransient.Code, appErrors.ErrTransient.Status, "failed to begin transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = s.tickets.Acknowledge(ctx, tx, id, now); err != nil {
		return nil, err
	}
	if err = s.appendTicketActivity(ctx, tx, &actor.UserID, ticket, models.ActivityTicketAcknowledged, nil); err != nil {
		return nil, err
	}
	if err = tx.Commit(); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrTransient.Code, appErrors.ErrTransient.Status, "failed to commit acknowledgement")
	}

	ticket.AcknowledgedAt = &now
	return ticket, nil
}

// Resolve moves an active ticket to met or cancelled. Resolving an already
// terminal ticket is idempotent: the stored outcome is returned unchanged
// and no second activity row is written.
func (s *SlaService) Resolve(ctx context.Context, actor *models.JWTClaims, id string, req dto.ResolveTicketRequest) (*models.SlaTicket, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid resolve payload")
	}
	allowed, err := s.permissions.Check(ctx, actor.UserID, AbilityResolveTicket, nil)
	if err != nil {
		return nil, err
	}
	if !allowed {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "not allowed to resolve sla tickets")
	}

	ticket, err := s.tickets.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	outcome := models.TicketStatus(req.Outcome)

	now := s.now()
	tx, err := s.tx.BeginTxx(ctx, nil)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrTransient.Code, appErrors.ErrTransient.Status, "failed to begin transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	swapped, err := s.tickets.Resolve(ctx, tx, id, outcome, now)
	if err != nil {
		return nil, err
	}
	if !swapped {
		// Lost the compare-and-swap: the ticket already reached a terminal
		// state (possibly breached by the sweeper a moment ago). Surface
		// the stored state instead of an error.
		_ = tx.Rollback()
		return s.tickets.GetByID(ctx, id)
	}

	action := models.ActivityTicketResolved
	if outcome == models.TicketStatusCancelled {
		action = models.ActivityTicketCancelled
	}
	if err = s.appendTicketActivity(ctx, tx, &actor.UserID, ticket, action, map[string]interface{}{
		"outcome": outcome,
	}); err != nil {
		return nil, err
	}
	if err = tx.Commit(); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrTransient.Code, appErrors.ErrTransient.Status, "failed to commit resolution")
	}

	if s.metrics != nil {
		s.metrics.IncTicketResolved(string(outcome))
	}
	s.publish(EventTicketResolved, id, map[string]interface{}{"outcome": outcome})

	ticket.Status = outcome
	ticket.ResolvedAt = &now
	ticket.UpdatedAt = now
	return ticket, nil
}

// SweepBreaches flips overdue active tickets to breached and records the
// side effects per ticket. A failed side effect is logged and counted but
// never undoes the breach, so the sweep stays safe to rerun.
func (s *SlaService) SweepBreaches(ctx context.Context) (int, error) {
	now := s.now()
	breached, err := s.tickets.SweepBreached(ctx, now, s.sweepBatch)
	if err != nil {
		return 0, err
	}
	var failures int
	for i := range breached {
		ticket := &breached[i]
		if err := s.appendTicketActivity(ctx, nil, nil, ticket, models.ActivityTicketBreached, map[string]interface{}{
			"due_at": ticket.DueAt,
		}); err != nil {
			failures++
			s.logger.Warn("failed to record breach activity",
				zap.String("ticket_id", ticket.ID), zap.Error(err))
			continue
		}
		s.publish(EventTicketBreached, ticket.ID, map[string]interface{}{
			"subject_kind": ticket.SubjectKind,
			"subject_id":   ticket.SubjectID,
		})
	}
	if s.metrics != nil {
		s.metrics.ObserveSweep(len(breached))
	}
	if len(breached) > 0 {
		s.logger.Info("sla breach sweep completed",
			zap.Int("breached", len(breached)), zap.Int("failures", failures))
	}
	return len(breached), nil
}

// Get returns one ticket after a permission check.
func (s *SlaService) Get(ctx context.Context, actor *models.JWTClaims, id string) (*models.SlaTicket, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	allowed, err := s.permissions.Check(ctx, actor.UserID, AbilityOpenTicket, nil)
	if err != nil {
		return nil, err
	}
	if !allowed {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "not allowed to view sla tickets")
	}
	return s.tickets.GetByID(ctx, id)
}

// List returns tickets matching the filter.
func (s *SlaService) List(ctx context.Context, actor *models.JWTClaims, filter models.TicketFilter) ([]models.SlaTicket, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	allowed, err := s.permissions.Check(ctx, actor.UserID, AbilityOpenTicket, nil)
	if err != nil {
		return nil, err
	}
	if !allowed {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "not allowed to view sla tickets")
	}
	return s.tickets.List(ctx, filter)
}

// OverdueCount reports how many active tickets are past due right now.
// The sweeper exports it as a gauge.
func (s *SlaService) OverdueCount(ctx context.Context) (int, error) {
	return s.tickets.CountActiveOverdue(ctx, s.now())
}

func (s *SlaService) verifySubject(ctx context.Context, subject models.SubjectRef) error {
	switch subject.Kind {
	case models.SubjectKindWorkItem:
		_, err := s.workItems.GetByID(ctx, subject.ID)
		return err
	case models.SubjectKindAssignment:
		_, err := s.assignments.GetByID(ctx, subject.ID)
		return err
	case models.SubjectKindEnquiry:
		// Enquiries live in an upstream system; the reference is stored
		// as-is.
		return nil
	default:
		return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown subject kind %q", subject.Kind))
	}
}

func (s *SlaService) appendTicketActivity(ctx context.Context, exec sqlx.ExtContext, actorID *string, ticket *models.SlaTicket, action string, props map[string]interface{}) error {
	if props == nil {
		props = map[string]interface{}{}
	}
	props["ticket_id"] = ticket.ID
	payload, err := json.Marshal(props)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to encode activity properties")
	}
	return s.activities.Append(ctx, exec, &models.Activity{
		ActorID:     actorID,
		SubjectKind: ticket.SubjectKind,
		SubjectID:   ticket.SubjectID,
		Action:      action,
		Properties:  payload,
	})
}

func (s *SlaService) publish(eventType, subjectID string, payload map[string]interface{}) {
	if s.events == nil {
		return
	}
	if err := s.events.Enqueue(jobs.Job{ID: subjectID, Type: eventType, Payload: payload}); err != nil {
		s.logger.Warn("failed to publish sla event", zap.String("type", eventType), zap.Error(err))
	}
}
