package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/andalan-id/service-center-api/internal/dto"
	"github.com/andalan-id/service-center-api/internal/models"
	"github.com/andalan-id/service-center-api/internal/repository"
	"github.com/andalan-id/service-center-api/pkg/config"
	appErrors "github.com/andalan-id/service-center-api/pkg/errors"
	"github.com/andalan-id/service-center-api/pkg/jobs"
)

// Valid uuid4 literals; the assignment DTOs validate id formats.
const (
	testWorkItemID = "7c9e6679-7425-40de-944b-e07fc1f90ae7"
	testWorkerID   = "3b241101-e2bb-4255-8caf-4136c566a962"
	testReceiverID = "9f86d081-884c-4d63-a1b1-0ca96ce1a9ab"
	testAdminID    = "550e8400-e29b-41d4-a716-446655440000"
)

var testNow = time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

type stubWorkItemStore struct {
	item      *models.WorkItem
	category  *models.WorkItemCategory
	startedAt []string
}

func (s *stubWorkItemStore) GetByID(_ context.Context, id string) (*models.WorkItem, error) {
	if s.item == nil || s.item.ID != id {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "work item not found")
	}
	copied := *s.item
	return &copied, nil
}

func (s *stubWorkItemStore) GetByIDForUpdate(ctx context.Context, _ sqlx.ExtContext, id string) (*models.WorkItem, error) {
	return s.GetByID(ctx, id)
}

func (s *stubWorkItemStore) GetCategory(_ context.Context, id string) (*models.WorkItemCategory, error) {
	if s.category == nil || s.category.ID != id {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "category not found")
	}
	copied := *s.category
	return &copied, nil
}

func (s *stubWorkItemStore) MarkStarted(_ context.Context, _ sqlx.ExtContext, id string, _ time.Time) error {
	s.startedAt = append(s.startedAt, id)
	return nil
}

type stubAssignmentStore struct {
	byID        map[string]*models.Assignment
	active      *models.Assignment
	created     []*models.Assignment
	transitions []repository.TransitionParams
	handoffs    []*models.Handoff
	listed      []models.Assignment
	pastHandoff map[string]models.Handoff
}

func (s *stubAssignmentStore) Create(_ context.Context, _ sqlx.ExtContext, assignment *models.Assignment) error {
	if assignment.ID == "" {
		assignment.ID = fmt.Sprintf("as-new-%d", len(s.created)+1)
	}
	s.created = append(s.created, assignment)
	return nil
}

func (s *stubAssignmentStore) GetByID(_ context.Context, id string) (*models.Assignment, error) {
	assignment, ok := s.byID[id]
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "assignment not found")
	}
	copied := *assignment
	return &copied, nil
}

func (s *stubAssignmentStore) GetByIDForUpdate(ctx context.Context, _ sqlx.ExtContext, id string) (*models.Assignment, error) {
	return s.GetByID(ctx, id)
}

func (s *stubAssignmentStore) FindActiveByWorkItem(_ context.Context, _ sqlx.ExtContext, _ string) (*models.Assignment, error) {
	return s.active, nil
}

func (s *stubAssignmentStore) Transition(_ context.Context, _ sqlx.ExtContext, params repository.TransitionParams) error {
	s.transitions = append(s.transitions, params)
	return nil
}

func (s *stubAssignmentStore) CreateHandoff(_ context.Context, _ sqlx.ExtContext, handoff *models.Handoff) error {
	if handoff.ID == "" {
		handoff.ID = fmt.Sprintf("ho-%d", len(s.handoffs)+1)
	}
	s.handoffs = append(s.handoffs, handoff)
	return nil
}

func (s *stubAssignmentStore) ListByWorkItem(_ context.Context, _ string) ([]models.Assignment, error) {
	return s.listed, nil
}

func (s *stubAssignmentStore) ListHandoffsByAssignmentIDs(_ context.Context, _ []string) (map[string]models.Handoff, error) {
	if s.pastHandoff == nil {
		return map[string]models.Handoff{}, nil
	}
	return s.pastHandoff, nil
}

type stubTicketStore struct {
	created      []*models.SlaTicket
	acknowledged []models.SubjectRef
	cancelled    []models.SubjectRef
	cancelledIDs []string
}

func (s *stubTicketStore) Create(_ context.Context, _ sqlx.ExtContext, ticket *models.SlaTicket) error {
	if ticket.ID == "" {
		ticket.ID = fmt.Sprintf("tk-%d", len(s.created)+1)
	}
	s.created = append(s.created, ticket)
	return nil
}

func (s *stubTicketStore) AcknowledgeBySubject(_ context.Context, _ sqlx.ExtContext, subject models.SubjectRef, _ time.Time) error {
	s.acknowledged = append(s.acknowledged, subject)
	return nil
}

func (s *stubTicketStore) CancelActiveBySubject(_ context.Context, _ sqlx.ExtContext, subject models.SubjectRef, _ time.Time) ([]string, error) {
	s.cancelled = append(s.cancelled, subject)
	return s.cancelledIDs, nil
}

type stubActivityLog struct {
	entries []*models.Activity
	err     error
}

func (s *stubActivityLog) Append(_ context.Context, _ sqlx.ExtContext, activity *models.Activity) error {
	if s.err != nil {
		return s.err
	}
	s.entries = append(s.entries, activity)
	return nil
}

type recordingSink struct {
	published []jobs.Job
}

func (s *recordingSink) Enqueue(job jobs.Job) error {
	s.published = append(s.published, job)
	return nil
}

type workflowFixture struct {
	svc         *WorkflowService
	mock        sqlmock.Sqlmock
	items       *stubWorkItemStore
	assignments *stubAssignmentStore
	tickets     *stubTicketStore
	activities  *stubActivityLog
	events      *recordingSink
	closeFn     func()
}

func newWorkflowFixture(t *testing.T, grants map[string]*models.Grants) *workflowFixture {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)

	f := &workflowFixture{
		mock:        mock,
		items:       &stubWorkItemStore{},
		assignments: &stubAssignmentStore{byID: map[string]*models.Assignment{}},
		tickets:     &stubTicketStore{},
		activities:  &stubActivityLog{},
		events:      &recordingSink{},
		closeFn:     func() { db.Close() },
	}
	permissions := NewPermissionService(&stubGrantsLoader{grants: grants}, "api", zap.NewNop())
	f.svc = NewWorkflowService(
		sqlx.NewDb(db, "sqlmock"),
		f.items,
		f.assignments,
		f.tickets,
		f.activities,
		permissions,
		config.SLAConfig{DefaultResponseMinutes: 30, DefaultResolutionMinutes: 240},
		zap.NewNop(),
		WithWorkflowEvents(f.events),
		WithWorkflowClock(func() time.Time { return testNow }),
	)
	return f
}

func lifecycleGrants() map[string]*models.Grants {
	return map[string]*models.Grants{
		testAdminID:    reviewerGrants(testAdminID),
		testWorkerID:   workerGrants(testWorkerID),
		testReceiverID: workerGrants(testReceiverID),
	}
}

func TestCreateAssignment(t *testing.T) {
	f := newWorkflowFixture(t, lifecycleGrants())
	defer f.closeFn()
	categoryID := "cat-1"
	f.items.item = &models.WorkItem{ID: testWorkItemID, Status: models.WorkItemStatusOpen, CategoryID: &categoryID}
	f.items.category = &models.WorkItemCategory{ID: categoryID, ResponseSLAMinutes: 45}

	f.mock.ExpectBegin()
	f.mock.ExpectCommit()

	assignment, err := f.svc.CreateAssignment(context.Background(), &models.JWTClaims{UserID: testAdminID}, dto.CreateAssignmentRequest{
		WorkItemID: testWorkItemID,
		UserID:     testWorkerID,
	})
	require.NoError(t, err)
	require.Equal(t, models.AssignmentStatusAssigned, assignment.Status)
	require.Equal(t, testWorkerID, assignment.UserID)
	require.Equal(t, testAdminID, assignment.AssignedBy)

	// The response ticket is opened in the same transaction with the
	// category limit, due exactly one limit from the clock.
	require.Len(t, f.tickets.created, 1)
	ticket := f.tickets.created[0]
	require.Equal(t, models.SubjectKindAssignment, ticket.SubjectKind)
	require.Equal(t, assignment.ID, ticket.SubjectID)
	require.Equal(t, models.TicketKindResponse, ticket.Kind)
	require.Equal(t, 45, ticket.TimeLimitMinutes)
	require.Equal(t, testNow.Add(45*time.Minute), ticket.DueAt)

	require.Len(t, f.activities.entries, 1)
	require.Equal(t, models.ActivityAssignmentCreated, f.activities.entries[0].Action)

	require.Len(t, f.events.published, 1)
	require.Equal(t, EventAssignmentCreated, f.events.published[0].Type)
	require.NoError(t, f.mock.ExpectationsWereMet())
}

func TestCreateAssignmentFallsBackToDefaultResponseLimit(t *testing.T) {
	f := newWorkflowFixture(t, lifecycleGrants())
	defer f.closeFn()
	f.items.item = &models.WorkItem{ID: testWorkItemID, Status: models.WorkItemStatusOpen}

	f.mock.ExpectBegin()
	f.mock.ExpectCommit()

	_, err := f.svc.CreateAssignment(context.Background(), &models.JWTClaims{UserID: testAdminID}, dto.CreateAssignmentRequest{
		WorkItemID: testWorkItemID,
		UserID:     testWorkerID,
	})
	require.NoError(t, err)
	require.Len(t, f.tickets.created, 1)
	require.Equal(t, 30, f.tickets.created[0].TimeLimitMinutes)
	require.NoError(t, f.mock.ExpectationsWereMet())
}

func TestCreateAssignmentActiveSlotTaken(t *testing.T) {
	f := newWorkflowFixture(t, lifecycleGrants())
	defer f.closeFn()
	f.items.item = &models.WorkItem{ID: testWorkItemID, Status: models.WorkItemStatusInProgress}
	f.assignments.active = &models.Assignment{ID: "as-live", WorkItemID: testWorkItemID, Status: models.AssignmentStatusInProgress}

	f.mock.ExpectBegin()
	f.mock.ExpectRollback()

	_, err := f.svc.CreateAssignment(context.Background(), &models.JWTClaims{UserID: testAdminID}, dto.CreateAssignmentRequest{
		WorkItemID: testWorkItemID,
		UserID:     testWorkerID,
	})
	require.Error(t, err)
	require.True(t, appErrors.Is(err, appErrors.ErrConflictingAssignment))
	require.Contains(t, err.Error(), "as-live")
	require.Empty(t, f.assignments.created)
	require.Empty(t, f.tickets.created)
	require.Empty(t, f.activities.entries)
	require.NoError(t, f.mock.ExpectationsWereMet())
}

func TestCreateAssignmentForbidden(t *testing.T) {
	f := newWorkflowFixture(t, lifecycleGrants())
	defer f.closeFn()
	f.items.item = &models.WorkItem{ID: testWorkItemID, Status: models.WorkItemStatusOpen}

	f.mock.ExpectBegin()
	f.mock.ExpectRollback()

	// Workers cannot hand out assignments.
	_, err := f.svc.CreateAssignment(context.Background(), &models.JWTClaims{UserID: testWorkerID}, dto.CreateAssignmentRequest{
		WorkItemID: testWorkItemID,
		UserID:     testReceiverID,
	})
	require.Error(t, err)
	require.True(t, appErrors.Is(err, appErrors.ErrForbidden))
	require.NoError(t, f.mock.ExpectationsWereMet())
}

func TestCreateAssignmentTerminalWorkItem(t *testing.T) {
	f := newWorkflowFixture(t, lifecycleGrants())
	defer f.closeFn()
	f.items.item = &models.WorkItem{ID: testWorkItemID, Status: models.WorkItemStatusCompleted}

	f.mock.ExpectBegin()
	f.mock.ExpectRollback()

	_, err := f.svc.CreateAssignment(context.Background(), &models.JWTClaims{UserID: testAdminID}, dto.CreateAssignmentRequest{
		WorkItemID: testWorkItemID,
		UserID:     testWorkerID,
	})
	require.Error(t, err)
	require.True(t, appErrors.Is(err, appErrors.ErrValidation))
	require.NoError(t, f.mock.ExpectationsWereMet())
}

func TestTransitionAcceptAcknowledgesResponseTicket(t *testing.T) {
	f := newWorkflowFixture(t, lifecycleGrants())
	defer f.closeFn()
	f.assignments.byID["as-1"] = &models.Assignment{
		ID: "as-1", WorkItemID: testWorkItemID, UserID: testWorkerID,
		Status: models.AssignmentStatusAssigned,
	}

	f.mock.ExpectBegin()
	f.mock.ExpectCommit()

	updated, err := f.svc.TransitionAssignment(context.Background(), &models.JWTClaims{UserID: testWorkerID}, "as-1", models.AssignmentEventAccept, TransitionPayload{})
	require.NoError(t, err)
	require.Equal(t, models.AssignmentStatusAccepted, updated.Status)
	require.NotNil(t, updated.AcceptedAt)
	require.Equal(t, testNow, *updated.AcceptedAt)

	require.Len(t, f.assignments.transitions, 1)
	require.Equal(t, "accepted_at", f.assignments.transitions[0].StageColumn)
	require.Equal(t, []models.SubjectRef{{Kind: models.SubjectKindAssignment, ID: "as-1"}}, f.tickets.acknowledged)
	require.Empty(t, f.tickets.cancelled)
	require.Empty(t, f.events.published)
	require.NoError(t, f.mock.ExpectationsWereMet())
}

func TestTransitionStartMarksWorkItemStarted(t *testing.T) {
	f := newWorkflowFixture(t, lifecycleGrants())
	defer f.closeFn()
	f.assignments.byID["as-1"] = &models.Assignment{
		ID: "as-1", WorkItemID: testWorkItemID, UserID: testWorkerID,
		Status: models.AssignmentStatusAccepted,
	}

	f.mock.ExpectBegin()
	f.mock.ExpectCommit()

	updated, err := f.svc.TransitionAssignment(context.Background(), &models.JWTClaims{UserID: testWorkerID}, "as-1", models.AssignmentEventStart, TransitionPayload{})
	require.NoError(t, err)
	require.Equal(t, models.AssignmentStatusInProgress, updated.Status)
	require.Equal(t, []string{testWorkItemID}, f.items.startedAt)
	require.NoError(t, f.mock.ExpectationsWereMet())
}

func TestTransitionSubmitRequiresNotes(t *testing.T) {
	f := newWorkflowFixture(t, lifecycleGrants())
	defer f.closeFn()
	f.assignments.byID["as-1"] = &models.Assignment{
		ID: "as-1", WorkItemID: testWorkItemID, UserID: testWorkerID,
		Status: models.AssignmentStatusInProgress,
	}

	f.mock.ExpectBegin()
	f.mock.ExpectRollback()

	_, err := f.svc.TransitionAssignment(context.Background(), &models.JWTClaims{UserID: testWorkerID}, "as-1", models.AssignmentEventSubmit, TransitionPayload{})
	require.Error(t, err)
	require.True(t, appErrors.Is(err, appErrors.ErrValidation))
	require.Empty(t, f.assignments.transitions)
	require.NoError(t, f.mock.ExpectationsWereMet())
}

func TestTransitionRejectRequiresFeedback(t *testing.T) {
	f := newWorkflowFixture(t, lifecycleGrants())
	defer f.closeFn()
	f.assignments.byID["as-1"] = &models.Assignment{
		ID: "as-1", WorkItemID: testWorkItemID, UserID: testWorkerID,
		Status: models.AssignmentStatusSubmitted,
	}

	f.mock.ExpectBegin()
	f.mock.ExpectRollback()

	_, err := f.svc.TransitionAssignment(context.Background(), &models.JWTClaims{UserID: testAdminID}, "as-1", models.AssignmentEventReject, TransitionPayload{})
	require.Error(t, err)
	require.True(t, appErrors.Is(err, appErrors.ErrValidation))
	require.Empty(t, f.assignments.transitions)
	require.NoError(t, f.mock.ExpectationsWereMet())
}

func TestTransitionInvalidFromState(t *testing.T) {
	f := newWorkflowFixture(t, lifecycleGrants())
	defer f.closeFn()
	f.assignments.byID["as-1"] = &models.Assignment{
		ID: "as-1", WorkItemID: testWorkItemID, UserID: testWorkerID,
		Status: models.AssignmentStatusAssigned,
	}

	f.mock.ExpectBegin()
	f.mock.ExpectRollback()

	_, err := f.svc.TransitionAssignment(context.Background(), &models.JWTClaims{UserID: testWorkerID}, "as-1", models.AssignmentEventSubmit, TransitionPayload{Notes: "done"})
	require.Error(t, err)
	require.True(t, appErrors.Is(err, appErrors.ErrInvalidTransition))
	require.NoError(t, f.mock.ExpectationsWereMet())
}

func TestTransitionWorkerCannotTouchForeignAssignment(t *testing.T) {
	f := newWorkflowFixture(t, lifecycleGrants())
	defer f.closeFn()
	f.assignments.byID["as-1"] = &models.Assignment{
		ID: "as-1", WorkItemID: testWorkItemID, UserID: testWorkerID,
		Status: models.AssignmentStatusAssigned,
	}

	f.mock.ExpectBegin()
	f.mock.ExpectRollback()

	_, err := f.svc.TransitionAssignment(context.Background(), &models.JWTClaims{UserID: testReceiverID}, "as-1", models.AssignmentEventAccept, TransitionPayload{})
	require.Error(t, err)
	require.True(t, appErrors.Is(err, appErrors.ErrForbidden))
	require.Empty(t, f.assignments.transitions)
	require.NoError(t, f.mock.ExpectationsWereMet())
}

func TestTransitionApproveCancelsTicketsAndPublishes(t *testing.T) {
	f := newWorkflowFixture(t, lifecycleGrants())
	defer f.closeFn()
	f.assignments.byID["as-1"] = &models.Assignment{
		ID: "as-1", WorkItemID: testWorkItemID, UserID: testWorkerID,
		Status: models.AssignmentStatusSubmitted,
	}
	f.tickets.cancelledIDs = []string{"tk-1", "tk-2"}

	f.mock.ExpectBegin()
	f.mock.ExpectCommit()

	updated, err := f.svc.TransitionAssignment(context.Background(), &models.JWTClaims{UserID: testAdminID}, "as-1", models.AssignmentEventApprove, TransitionPayload{Feedback: "good work"})
	require.NoError(t, err)
	require.Equal(t, models.AssignmentStatusApproved, updated.Status)
	require.NotNil(t, updated.ApprovedAt)
	require.NotNil(t, updated.AdminFeedback)

	require.Len(t, f.assignments.transitions, 1)
	require.Equal(t, models.AssignmentStatusApproved, f.assignments.transitions[0].ToStatus)
	require.Equal(t, "approved_at", f.assignments.transitions[0].StageColumn)

	require.Equal(t, []models.SubjectRef{{Kind: models.SubjectKindAssignment, ID: "as-1"}}, f.tickets.cancelled)

	require.Len(t, f.activities.entries, 1)
	require.Equal(t, models.ActivityAssignmentApproved, f.activities.entries[0].Action)

	require.Len(t, f.events.published, 1)
	require.Equal(t, EventAssignmentFinished, f.events.published[0].Type)
	require.NoError(t, f.mock.ExpectationsWereMet())
}

func TestTransitionRollsBackWhenActivityFails(t *testing.T) {
	f := newWorkflowFixture(t, lifecycleGrants())
	defer f.closeFn()
	f.assignments.byID["as-1"] = &models.Assignment{
		ID: "as-1", WorkItemID: testWorkItemID, UserID: testWorkerID,
		Status: models.AssignmentStatusSubmitted,
	}
	f.activities.err = appErrors.Clone(appErrors.ErrInternal, "activity log unavailable")

	f.mock.ExpectBegin()
	f.mock.ExpectRollback()

	_, err := f.svc.TransitionAssignment(context.Background(), &models.JWTClaims{UserID: testAdminID}, "as-1", models.AssignmentEventApprove, TransitionPayload{})
	require.Error(t, err)
	require.Empty(t, f.events.published)
	require.NoError(t, f.mock.ExpectationsWereMet())
}

func TestHandoff(t *testing.T) {
	f := newWorkflowFixture(t, lifecycleGrants())
	defer f.closeFn()
	f.items.item = &models.WorkItem{ID: testWorkItemID, Status: models.WorkItemStatusInProgress}
	f.assignments.byID["as-1"] = &models.Assignment{
		ID: "as-1", WorkItemID: testWorkItemID, UserID: testWorkerID,
		Status: models.AssignmentStatusInProgress,
	}
	f.tickets.cancelledIDs = []string{"tk-old"}

	f.mock.ExpectBegin()
	f.mock.ExpectCommit()

	successor, err := f.svc.Handoff(context.Background(), &models.JWTClaims{UserID: testWorkerID}, "as-1", dto.HandoffRequest{
		ToUserID: testReceiverID,
		Reason:   "end of shift",
	})
	require.NoError(t, err)
	require.Equal(t, models.AssignmentStatusAssigned, successor.Status)
	require.Equal(t, testReceiverID, successor.UserID)
	require.Equal(t, testWorkerID, successor.AssignedBy)
	require.Equal(t, testWorkItemID, successor.WorkItemID)

	// Old assignment retires to returned before the successor is created.
	require.Len(t, f.assignments.transitions, 1)
	require.Equal(t, models.AssignmentStatusReturned, f.assignments.transitions[0].ToStatus)
	require.Equal(t, "returned_at", f.assignments.transitions[0].StageColumn)

	require.Len(t, f.assignments.handoffs, 1)
	handoff := f.assignments.handoffs[0]
	require.Equal(t, "as-1", handoff.AssignmentID)
	require.Equal(t, successor.ID, handoff.NewAssignmentID)
	require.Equal(t, testWorkerID, handoff.FromUserID)
	require.Equal(t, testReceiverID, handoff.ToUserID)

	// Old tickets are cancelled and a fresh response ticket opens against
	// the successor.
	require.Equal(t, []models.SubjectRef{{Kind: models.SubjectKindAssignment, ID: "as-1"}}, f.tickets.cancelled)
	require.Len(t, f.tickets.created, 1)
	require.Equal(t, successor.ID, f.tickets.created[0].SubjectID)
	require.Equal(t, models.TicketKindResponse, f.tickets.created[0].Kind)

	require.Len(t, f.activities.entries, 1)
	require.Equal(t, models.ActivityAssignmentHandedOff, f.activities.entries[0].Action)
	require.Len(t, f.events.published, 1)
	require.Equal(t, EventAssignmentHandedOff, f.events.published[0].Type)
	require.NoError(t, f.mock.ExpectationsWereMet())
}

func TestHandoffRequiresInFlightAssignment(t *testing.T) {
	f := newWorkflowFixture(t, lifecycleGrants())
	defer f.closeFn()

	for _, status := range []models.AssignmentStatus{
		models.AssignmentStatusAssigned,
		models.AssignmentStatusSubmitted,
		models.AssignmentStatusApproved,
		models.AssignmentStatusReturned,
	} {
		f.assignments.byID["as-1"] = &models.Assignment{
			ID: "as-1", WorkItemID: testWorkItemID, UserID: testWorkerID, Status: status,
		}
		f.mock.ExpectBegin()
		f.mock.ExpectRollback()

		_, err := f.svc.Handoff(context.Background(), &models.JWTClaims{UserID: testWorkerID}, "as-1", dto.HandoffRequest{
			ToUserID: testReceiverID,
			Reason:   "end of shift",
		})
		require.Error(t, err, "status %s", status)
		require.True(t, appErrors.Is(err, appErrors.ErrInvalidHandoffState), "status %s", status)
	}
	require.Empty(t, f.assignments.transitions)
	require.NoError(t, f.mock.ExpectationsWereMet())
}

func TestHandoffReceiverMustHoldReceivePermission(t *testing.T) {
	grants := lifecycleGrants()
	grants[testReceiverID] = &models.Grants{UserID: testReceiverID, Guard: "api", Roles: []string{"clerk"}}
	f := newWorkflowFixture(t, grants)
	defer f.closeFn()
	f.assignments.byID["as-1"] = &models.Assignment{
		ID: "as-1", WorkItemID: testWorkItemID, UserID: testWorkerID,
		Status: models.AssignmentStatusAccepted,
	}

	f.mock.ExpectBegin()
	f.mock.ExpectRollback()

	_, err := f.svc.Handoff(context.Background(), &models.JWTClaims{UserID: testWorkerID}, "as-1", dto.HandoffRequest{
		ToUserID: testReceiverID,
		Reason:   "end of shift",
	})
	require.Error(t, err)
	require.True(t, appErrors.Is(err, appErrors.ErrForbidden))
	require.Empty(t, f.assignments.created)
	require.NoError(t, f.mock.ExpectationsWereMet())
}

func TestHistoryPairsAssignmentsWithHandoffs(t *testing.T) {
	f := newWorkflowFixture(t, lifecycleGrants())
	defer f.closeFn()
	f.items.item = &models.WorkItem{ID: testWorkItemID, Status: models.WorkItemStatusInProgress}
	f.assignments.listed = []models.Assignment{
		{ID: "as-1", WorkItemID: testWorkItemID, UserID: testWorkerID, Status: models.AssignmentStatusReturned},
		{ID: "as-2", WorkItemID: testWorkItemID, UserID: testReceiverID, Status: models.AssignmentStatusInProgress},
	}
	f.assignments.pastHandoff = map[string]models.Handoff{
		"as-1": {ID: "ho-1", AssignmentID: "as-1", FromUserID: testWorkerID, ToUserID: testReceiverID, NewAssignmentID: "as-2"},
	}

	entries, err := f.svc.History(context.Background(), &models.JWTClaims{UserID: testAdminID}, testWorkItemID)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.NotNil(t, entries[0].Handoff)
	require.Equal(t, "as-2", entries[0].Handoff.NewAssignmentID)
	require.Nil(t, entries[1].Handoff)
}

func TestCreateAssignmentRequiresActor(t *testing.T) {
	f := newWorkflowFixture(t, lifecycleGrants())
	defer f.closeFn()

	_, err := f.svc.CreateAssignment(context.Background(), nil, dto.CreateAssignmentRequest{
		WorkItemID: testWorkItemID,
		UserID:     testWorkerID,
	})
	require.Error(t, err)
	require.True(t, appErrors.Is(err, appErrors.ErrUnauthorized))
}
