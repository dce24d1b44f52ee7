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
	"github.com/andalan-id/service-center-api/pkg/config"
	appErrors "github.com/andalan-id/service-center-api/pkg/errors"
)

type stubItemStore struct {
	stubWorkItemStore
	created    []*models.WorkItem
	updated    []*models.WorkItem
	statusSets []models.WorkItemStatus
	deleted    []string
	listed     []models.WorkItem
	total      int
}

func (s *stubItemStore) Create(_ context.Context, _ sqlx.ExtContext, item *models.WorkItem) error {
	if item.ID == "" {
		item.ID = "wi-new"
	}
	s.created = append(s.created, item)
	return nil
}

func (s *stubItemStore) Update(_ context.Context, _ sqlx.ExtContext, item *models.WorkItem) error {
	s.updated = append(s.updated, item)
	return nil
}

func (s *stubItemStore) SetStatus(_ context.Context, _ sqlx.ExtContext, _ string, status models.WorkItemStatus, _ time.Time) error {
	s.statusSets = append(s.statusSets, status)
	return nil
}

func (s *stubItemStore) SoftDelete(_ context.Context, _ sqlx.ExtContext, id string, _ time.Time) error {
	s.deleted = append(s.deleted, id)
	return nil
}

func (s *stubItemStore) List(_ context.Context, _ models.WorkItemFilter) ([]models.WorkItem, int, error) {
	return s.listed, s.total, nil
}

type workItemFixture struct {
	svc         *WorkItemService
	mock        sqlmock.Sqlmock
	items       *stubItemStore
	assignments *stubAssignmentStore
	tickets     *stubTicketStore
	activities  *stubActivityLog
	closeFn     func()
}

func newWorkItemFixture(t *testing.T, grants map[string]*models.Grants) *workItemFixture {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)

	f := &workItemFixture{
		mock:        mock,
		items:       &stubItemStore{},
		assignments: &stubAssignmentStore{byID: map[string]*models.Assignment{}},
		tickets:     &stubTicketStore{},
		activities:  &stubActivityLog{},
		closeFn:     func() { db.Close() },
	}
	permissions := NewPermissionService(&stubGrantsLoader{grants: grants}, "api", zap.NewNop())
	f.svc = NewWorkItemService(
		sqlx.NewDb(db, "sqlmock"),
		f.items,
		f.assignments,
		f.tickets,
		f.activities,
		permissions,
		config.SLAConfig{DefaultResponseMinutes: 30, DefaultResolutionMinutes: 240},
		zap.NewNop(),
	)
	return f
}

func TestWorkItemCreateOpensResolutionTicket(t *testing.T) {
	f := newWorkItemFixture(t, lifecycleGrants())
	defer f.closeFn()
	categoryID := "cat-1"
	f.items.category = &models.WorkItemCategory{ID: categoryID, ResolutionSLAMinutes: 480}

	f.mock.ExpectBegin()
	f.mock.ExpectCommit()

	item, err := f.svc.Create(context.Background(), &models.JWTClaims{UserID: testAdminID}, dto.CreateWorkItemRequest{
		Title:      "Replace compressor",
		CategoryID: &categoryID,
		Billable:   true,
		Tags:       []string{"hvac"},
	})
	require.NoError(t, err)
	require.Equal(t, models.WorkItemStatusOpen, item.Status)

	require.Len(t, f.tickets.created, 1)
	ticket := f.tickets.created[0]
	require.Equal(t, models.SubjectKindWorkItem, ticket.SubjectKind)
	require.Equal(t, item.ID, ticket.SubjectID)
	require.Equal(t, models.TicketKindResolution, ticket.Kind)
	require.Equal(t, 480, ticket.TimeLimitMinutes)

	require.Len(t, f.activities.entries, 1)
	require.Equal(t, models.ActivityWorkItemCreated, f.activities.entries[0].Action)
	require.NoError(t, f.mock.ExpectationsWereMet())
}

func TestWorkItemCreateUsesDefaultResolutionLimit(t *testing.T) {
	f := newWorkItemFixture(t, lifecycleGrants())
	defer f.closeFn()

	f.mock.ExpectBegin()
	f.mock.ExpectCommit()

	_, err := f.svc.Create(context.Background(), &models.JWTClaims{UserID: testAdminID}, dto.CreateWorkItemRequest{
		Title: "Replace compressor",
	})
	require.NoError(t, err)
	require.Len(t, f.tickets.created, 1)
	require.Equal(t, 240, f.tickets.created[0].TimeLimitMinutes)
	require.NoError(t, f.mock.ExpectationsWereMet())
}

func TestWorkItemCreateForbiddenForWorkers(t *testing.T) {
	f := newWorkItemFixture(t, lifecycleGrants())
	defer f.closeFn()

	_, err := f.svc.Create(context.Background(), &models.JWTClaims{UserID: testWorkerID}, dto.CreateWorkItemRequest{
		Title: "Replace compressor",
	})
	require.Error(t, err)
	require.True(t, appErrors.Is(err, appErrors.ErrForbidden))
	require.Empty(t, f.items.created)
}

func TestWorkItemUpdateRejectsTerminalItem(t *testing.T) {
	f := newWorkItemFixture(t, lifecycleGrants())
	defer f.closeFn()
	f.items.item = &models.WorkItem{ID: testWorkItemID, Title: "old", Status: models.WorkItemStatusCompleted}

	f.mock.ExpectBegin()
	f.mock.ExpectRollback()

	_, err := f.svc.Update(context.Background(), &models.JWTClaims{UserID: testAdminID}, testWorkItemID, dto.UpdateWorkItemRequest{
		Title: "new title",
	})
	require.Error(t, err)
	require.True(t, appErrors.Is(err, appErrors.ErrValidation))
	require.Empty(t, f.items.updated)
	require.NoError(t, f.mock.ExpectationsWereMet())
}

func TestWorkItemCompleteCancelsOpenTickets(t *testing.T) {
	f := newWorkItemFixture(t, lifecycleGrants())
	defer f.closeFn()
	f.items.item = &models.WorkItem{ID: testWorkItemID, Status: models.WorkItemStatusInProgress}
	f.tickets.cancelledIDs = []string{"tk-1"}

	f.mock.ExpectBegin()
	f.mock.ExpectCommit()

	item, err := f.svc.Complete(context.Background(), &models.JWTClaims{UserID: testAdminID}, testWorkItemID)
	require.NoError(t, err)
	require.Equal(t, models.WorkItemStatusCompleted, item.Status)
	require.NotNil(t, item.CompletedAt)

	require.Equal(t, []models.WorkItemStatus{models.WorkItemStatusCompleted}, f.items.statusSets)
	require.Equal(t, []models.SubjectRef{{Kind: models.SubjectKindWorkItem, ID: testWorkItemID}}, f.tickets.cancelled)
	require.Len(t, f.activities.entries, 1)
	require.Equal(t, models.ActivityWorkItemCompleted, f.activities.entries[0].Action)
	require.NoError(t, f.mock.ExpectationsWereMet())
}

func TestWorkItemCompleteBlockedByActiveAssignment(t *testing.T) {
	f := newWorkItemFixture(t, lifecycleGrants())
	defer f.closeFn()
	f.items.item = &models.WorkItem{ID: testWorkItemID, Status: models.WorkItemStatusInProgress}
	f.assignments.active = &models.Assignment{ID: "as-live", Status: models.AssignmentStatusInProgress}

	f.mock.ExpectBegin()
	f.mock.ExpectRollback()

	_, err := f.svc.Complete(context.Background(), &models.JWTClaims{UserID: testAdminID}, testWorkItemID)
	require.Error(t, err)
	require.True(t, appErrors.Is(err, appErrors.ErrConflict))
	require.Contains(t, err.Error(), "as-live")
	require.Empty(t, f.items.statusSets)
	require.NoError(t, f.mock.ExpectationsWereMet())
}

func TestWorkItemCancelAlreadyTerminal(t *testing.T) {
	f := newWorkItemFixture(t, lifecycleGrants())
	defer f.closeFn()
	f.items.item = &models.WorkItem{ID: testWorkItemID, Status: models.WorkItemStatusCancelled}

	f.mock.ExpectBegin()
	f.mock.ExpectRollback()

	_, err := f.svc.Cancel(context.Background(), &models.JWTClaims{UserID: testAdminID}, testWorkItemID)
	require.Error(t, err)
	require.True(t, appErrors.Is(err, appErrors.ErrConflict))
	require.NoError(t, f.mock.ExpectationsWereMet())
}

func TestWorkItemDeleteRequiresTerminalState(t *testing.T) {
	f := newWorkItemFixture(t, lifecycleGrants())
	defer f.closeFn()
	f.items.item = &models.WorkItem{ID: testWorkItemID, Status: models.WorkItemStatusOpen}

	err := f.svc.Delete(context.Background(), &models.JWTClaims{UserID: testAdminID}, testWorkItemID)
	require.Error(t, err)
	require.True(t, appErrors.Is(err, appErrors.ErrValidation))
	require.Empty(t, f.items.deleted)

	f.items.item.Status = models.WorkItemStatusCompleted
	err = f.svc.Delete(context.Background(), &models.JWTClaims{UserID: testAdminID}, testWorkItemID)
	require.NoError(t, err)
	require.Equal(t, []string{testWorkItemID}, f.items.deleted)
}

func TestWorkItemListRequiresViewPermission(t *testing.T) {
	grants := lifecycleGrants()
	grants["outsider"] = &models.Grants{UserID: "outsider", Guard: "api"}
	f := newWorkItemFixture(t, grants)
	defer f.closeFn()
	f.items.listed = []models.WorkItem{{ID: testWorkItemID}}
	f.items.total = 1

	_, _, err := f.svc.List(context.Background(), &models.JWTClaims{UserID: "outsider"}, models.WorkItemFilter{})
	require.Error(t, err)
	require.True(t, appErrors.Is(err, appErrors.ErrForbidden))

	items, total, err := f.svc.List(context.Background(), &models.JWTClaims{UserID: testAdminID}, models.WorkItemFilter{})
	require.NoError(t, err)
	require.Equal(t, 1, total)
	require.Len(t, items, 1)
}
