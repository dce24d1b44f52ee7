package service

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/andalan-id/service-center-api/internal/dto"
	"github.com/andalan-id/service-center-api/internal/models"
	appErrors "github.com/andalan-id/service-center-api/pkg/errors"
)

const testDispatcherID = "f47ac10b-58cc-4372-a567-0e02b2c3d479"

func dispatcherGrants(userID string) *models.Grants {
	return &models.Grants{
		UserID:      userID,
		Guard:       "api",
		Roles:       []string{"dispatcher"},
		Permissions: []string{models.PermissionManageTickets},
	}
}

type stubSlaTicketStore struct {
	byID           map[string]*models.SlaTicket
	created        []*models.SlaTicket
	acknowledged   []string
	resolved       []string
	resolveSwapped bool
	breached       []models.SlaTicket
	sweepLimit     int
	overdue        int
	listed         []models.SlaTicket
}

func (s *stubSlaTicketStore) Create(_ context.Context, _ sqlx.ExtContext, ticket *models.SlaTicket) error {
	if ticket.ID == "" {
		ticket.ID = "tk-new"
	}
	s.created = append(s.created, ticket)
	return nil
}

func (s *stubSlaTicketStore) GetByID(_ context.Context, id string) (*models.SlaTicket, error) {
	ticket, ok := s.byID[id]
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "sla ticket not found")
	}
	copied := *ticket
	return &copied, nil
}

func (s *stubSlaTicketStore) Acknowledge(_ context.Context, _ sqlx.ExtContext, id string, _ time.Time) error {
	s.acknowledged = append(s.acknowledged, id)
	return nil
}

func (s *stubSlaTicketStore) Resolve(_ context.Context, _ sqlx.ExtContext, id string, _ models.TicketStatus, _ time.Time) (bool, error) {
	s.resolved = append(s.resolved, id)
	return s.resolveSwapped, nil
}

func (s *stubSlaTicketStore) SweepBreached(_ context.Context, _ time.Time, limit int) ([]models.SlaTicket, error) {
	s.sweepLimit = limit
	return s.breached, nil
}

func (s *stubSlaTicketStore) List(_ context.Context, _ models.TicketFilter) ([]models.SlaTicket, error) {
	return s.listed, nil
}

func (s *stubSlaTicketStore) CountActiveOverdue(_ context.Context, _ time.Time) (int, error) {
	return s.overdue, nil
}

type slaFixture struct {
	svc        *SlaService
	mock       sqlmock.Sqlmock
	tickets    *stubSlaTicketStore
	items      *stubWorkItemStore
	lookups    *stubAssignmentStore
	activities *stubActivityLog
	events     *recordingSink
	closeFn    func()
}

func newSlaFixture(t *testing.T, grants map[string]*models.Grants) *slaFixture {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)

	f := &slaFixture{
		mock:       mock,
		tickets:    &stubSlaTicketStore{byID: map[string]*models.SlaTicket{}},
		items:      &stubWorkItemStore{},
		lookups:    &stubAssignmentStore{byID: map[string]*models.Assignment{}},
		activities: &stubActivityLog{},
		events:     &recordingSink{},
		closeFn:    func() { db.Close() },
	}
	permissions := NewPermissionService(&stubGrantsLoader{grants: grants}, "api", zap.NewNop())
	f.svc = NewSlaService(
		sqlx.NewDb(db, "sqlmock"),
		f.tickets,
		f.items,
		f.lookups,
		f.activities,
		permissions,
		zap.NewNop(),
		WithSlaEvents(f.events),
		WithSlaClock(func() time.Time { return testNow }),
		WithSlaSweepBatch(100),
	)
	return f
}

func slaGrants() map[string]*models.Grants {
	return map[string]*models.Grants{
		testDispatcherID: dispatcherGrants(testDispatcherID),
		testWorkerID:     workerGrants(testWorkerID),
	}
}

func TestSlaOpen(t *testing.T) {
	f := newSlaFixture(t, slaGrants())
	defer f.closeFn()
	f.items.item = &models.WorkItem{ID: testWorkItemID, Status: models.WorkItemStatusOpen}

	f.mock.ExpectBegin()
	f.mock.ExpectCommit()

	ticket, err := f.svc.Open(context.Background(), &models.JWTClaims{UserID: testDispatcherID}, dto.OpenTicketRequest{
		SubjectKind:      models.SubjectKindWorkItem,
		SubjectID:        testWorkItemID,
		Kind:             models.TicketKindResolution,
		TimeLimitMinutes: 240,
	})
	require.NoError(t, err)
	require.Equal(t, models.TicketStatusActive, ticket.Status)
	require.Equal(t, testNow.Add(240*time.Minute), ticket.DueAt)
	require.Equal(t, 240, ticket.TimeLimitMinutes)

	require.Len(t, f.activities.entries, 1)
	require.Equal(t, models.ActivityTicketOpened, f.activities.entries[0].Action)
	require.Len(t, f.events.published, 1)
	require.Equal(t, EventTicketOpened, f.events.published[0].Type)
	require.NoError(t, f.mock.ExpectationsWereMet())
}

func TestSlaOpenVerifiesSubjectExists(t *testing.T) {
	f := newSlaFixture(t, slaGrants())
	defer f.closeFn()

	_, err := f.svc.Open(context.Background(), &models.JWTClaims{UserID: testDispatcherID}, dto.OpenTicketRequest{
		SubjectKind:      models.SubjectKindWorkItem,
		SubjectID:        "missing",
		Kind:             models.TicketKindResolution,
		TimeLimitMinutes: 60,
	})
	require.Error(t, err)
	require.True(t, appErrors.Is(err, appErrors.ErrNotFound))
	require.Empty(t, f.tickets.created)
}

func TestSlaOpenEnquiryReferenceStoredAsIs(t *testing.T) {
	f := newSlaFixture(t, slaGrants())
	defer f.closeFn()

	f.mock.ExpectBegin()
	f.mock.ExpectCommit()

	// Enquiries live upstream, so no local existence check runs.
	ticket, err := f.svc.Open(context.Background(), &models.JWTClaims{UserID: testDispatcherID}, dto.OpenTicketRequest{
		SubjectKind:      models.SubjectKindEnquiry,
		SubjectID:        "crm-4711",
		Kind:             models.TicketKindResponse,
		TimeLimitMinutes: 15,
	})
	require.NoError(t, err)
	require.Equal(t, "crm-4711", ticket.SubjectID)
	require.NoError(t, f.mock.ExpectationsWereMet())
}

func TestSlaOpenRejectsUnknownSubjectKind(t *testing.T) {
	f := newSlaFixture(t, slaGrants())
	defer f.closeFn()

	_, err := f.svc.Open(context.Background(), &models.JWTClaims{UserID: testDispatcherID}, dto.OpenTicketRequest{
		SubjectKind:      "customer",
		SubjectID:        "c-1",
		Kind:             models.TicketKindResponse,
		TimeLimitMinutes: 15,
	})
	require.Error(t, err)
	require.True(t, appErrors.Is(err, appErrors.ErrValidation))
	require.Empty(t, f.tickets.created)
}

func TestSlaOpenForbiddenWithoutManagePermission(t *testing.T) {
	f := newSlaFixture(t, slaGrants())
	defer f.closeFn()

	_, err := f.svc.Open(context.Background(), &models.JWTClaims{UserID: testWorkerID}, dto.OpenTicketRequest{
		SubjectKind:      models.SubjectKindEnquiry,
		SubjectID:        "crm-4711",
		Kind:             models.TicketKindResponse,
		TimeLimitMinutes: 15,
	})
	require.Error(t, err)
	require.True(t, appErrors.Is(err, appErrors.ErrForbidden))
}

func TestSlaAcknowledge(t *testing.T) {
	f := newSlaFixture(t, slaGrants())
	defer f.closeFn()
	f.tickets.byID["tk-1"] = &models.SlaTicket{
		ID: "tk-1", SubjectKind: models.SubjectKindAssignment, SubjectID: "as-1",
		Status: models.TicketStatusActive,
	}

	f.mock.ExpectBegin()
	f.mock.ExpectCommit()

	ticket, err := f.svc.Acknowledge(context.Background(), &models.JWTClaims{UserID: testDispatcherID}, "tk-1")
	require.NoError(t, err)
	require.NotNil(t, ticket.AcknowledgedAt)
	require.Equal(t, testNow, *ticket.AcknowledgedAt)
	require.Equal(t, []string{"tk-1"}, f.tickets.acknowledged)
	require.NoError(t, f.mock.ExpectationsWereMet())
}

func TestSlaAcknowledgeIsIdempotent(t *testing.T) {
	f := newSlaFixture(t, slaGrants())
	defer f.closeFn()
	acked := testNow.Add(-time.Hour)
	f.tickets.byID["tk-1"] = &models.SlaTicket{
		ID: "tk-1", Status: models.TicketStatusActive, AcknowledgedAt: &acked,
	}

	ticket, err := f.svc.Acknowledge(context.Background(), &models.JWTClaims{UserID: testDispatcherID}, "tk-1")
	require.NoError(t, err)
	require.Equal(t, acked, *ticket.AcknowledgedAt)
	require.Empty(t, f.tickets.acknowledged)
	require.NoError(t, f.mock.ExpectationsWereMet())
}

func TestSlaAcknowledgeTerminalTicket(t *testing.T) {
	f := newSlaFixture(t, slaGrants())
	defer f.closeFn()
	f.tickets.byID["tk-1"] = &models.SlaTicket{ID: "tk-1", Status: models.TicketStatusBreached}

	_, err := f.svc.Acknowledge(context.Background(), &models.JWTClaims{UserID: testDispatcherID}, "tk-1")
	require.Error(t, err)
	require.True(t, appErrors.Is(err, appErrors.ErrConflict))
}

func TestSlaResolve(t *testing.T) {
	f := newSlaFixture(t, slaGrants())
	defer f.closeFn()
	f.tickets.byID["tk-1"] = &models.SlaTicket{
		ID: "tk-1", SubjectKind: models.SubjectKindAssignment, SubjectID: "as-1",
		Status: models.TicketStatusActive,
	}
	f.tickets.resolveSwapped = true

	f.mock.ExpectBegin()
	f.mock.ExpectCommit()

	ticket, err := f.svc.Resolve(context.Background(), &models.JWTClaims{UserID: testDispatcherID}, "tk-1", dto.ResolveTicketRequest{
		Outcome: models.TicketStatusMet,
	})
	require.NoError(t, err)
	require.Equal(t, models.TicketStatusMet, ticket.Status)
	require.NotNil(t, ticket.ResolvedAt)

	require.Len(t, f.activities.entries, 1)
	require.Equal(t, models.ActivityTicketResolved, f.activities.entries[0].Action)
	require.Len(t, f.events.published, 1)
	require.Equal(t, EventTicketResolved, f.events.published[0].Type)
	require.NoError(t, f.mock.ExpectationsWereMet())
}

func TestSlaResolveIdempotentWhenAlreadyTerminal(t *testing.T) {
	f := newSlaFixture(t, slaGrants())
	defer f.closeFn()
	resolvedAt := testNow.Add(-time.Minute)
	f.tickets.byID["tk-1"] = &models.SlaTicket{
		ID: "tk-1", Status: models.TicketStatusBreached, ResolvedAt: &resolvedAt,
	}
	f.tickets.resolveSwapped = false

	f.mock.ExpectBegin()
	f.mock.ExpectRollback()

	// The sweeper breached the ticket first: the stored outcome wins and
	// no duplicate activity or event is produced.
	ticket, err := f.svc.Resolve(context.Background(), &models.JWTClaims{UserID: testDispatcherID}, "tk-1", dto.ResolveTicketRequest{
		Outcome: models.TicketStatusMet,
	})
	require.NoError(t, err)
	require.Equal(t, models.TicketStatusBreached, ticket.Status)
	require.Empty(t, f.activities.entries)
	require.Empty(t, f.events.published)
	require.NoError(t, f.mock.ExpectationsWereMet())
}

func TestSlaResolveCancelledOutcome(t *testing.T) {
	f := newSlaFixture(t, slaGrants())
	defer f.closeFn()
	f.tickets.byID["tk-1"] = &models.SlaTicket{ID: "tk-1", Status: models.TicketStatusActive}
	f.tickets.resolveSwapped = true

	f.mock.ExpectBegin()
	f.mock.ExpectCommit()

	ticket, err := f.svc.Resolve(context.Background(), &models.JWTClaims{UserID: testDispatcherID}, "tk-1", dto.ResolveTicketRequest{
		Outcome: models.TicketStatusCancelled,
	})
	require.NoError(t, err)
	require.Equal(t, models.TicketStatusCancelled, ticket.Status)
	require.Len(t, f.activities.entries, 1)
	require.Equal(t, models.ActivityTicketCancelled, f.activities.entries[0].Action)
	require.NoError(t, f.mock.ExpectationsWereMet())
}

func TestSweepBreaches(t *testing.T) {
	f := newSlaFixture(t, slaGrants())
	defer f.closeFn()
	f.tickets.breached = []models.SlaTicket{
		{ID: "tk-1", SubjectKind: models.SubjectKindAssignment, SubjectID: "as-1", Status: models.TicketStatusBreached},
		{ID: "tk-2", SubjectKind: models.SubjectKindWorkItem, SubjectID: "wi-1", Status: models.TicketStatusBreached},
	}

	count, err := f.svc.SweepBreaches(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, count)
	require.Equal(t, 100, f.tickets.sweepLimit)

	require.Len(t, f.activities.entries, 2)
	for _, entry := range f.activities.entries {
		require.Equal(t, models.ActivityTicketBreached, entry.Action)
		require.Nil(t, entry.ActorID)
	}
	require.Len(t, f.events.published, 2)
	require.Equal(t, EventTicketBreached, f.events.published[0].Type)
}

func TestSweepBreachesContinuesPastSideEffectFailures(t *testing.T) {
	f := newSlaFixture(t, slaGrants())
	defer f.closeFn()
	f.tickets.breached = []models.SlaTicket{
		{ID: "tk-1", Status: models.TicketStatusBreached},
		{ID: "tk-2", Status: models.TicketStatusBreached},
	}
	f.activities.err = appErrors.Clone(appErrors.ErrInternal, "activity log unavailable")

	// The breach itself already committed in the repository; side-effect
	// failures never report an error for the sweep.
	count, err := f.svc.SweepBreaches(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, count)
	require.Empty(t, f.events.published)
}

func TestSlaListAndGetRequirePermission(t *testing.T) {
	f := newSlaFixture(t, slaGrants())
	defer f.closeFn()
	f.tickets.byID["tk-1"] = &models.SlaTicket{ID: "tk-1", Status: models.TicketStatusActive}
	f.tickets.listed = []models.SlaTicket{{ID: "tk-1"}}

	_, err := f.svc.Get(context.Background(), &models.JWTClaims{UserID: testWorkerID}, "tk-1")
	require.True(t, appErrors.Is(err, appErrors.ErrForbidden))

	_, err = f.svc.List(context.Background(), &models.JWTClaims{UserID: testWorkerID}, models.TicketFilter{})
	require.True(t, appErrors.Is(err, appErrors.ErrForbidden))

	tickets, err := f.svc.List(context.Background(), &models.JWTClaims{UserID: testDispatcherID}, models.TicketFilter{})
	require.NoError(t, err)
	require.Len(t, tickets, 1)
}
