package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/andalan-id/service-center-api/internal/models"
	appErrors "github.com/andalan-id/service-center-api/pkg/errors"
	"github.com/andalan-id/service-center-api/pkg/export"
)

type exportTicketStore interface {
	List(ctx context.Context, filter models.TicketFilter) ([]models.SlaTicket, error)
}

// ExportFormat selects the report encoding.
type ExportFormat string

const (
	ExportFormatCSV ExportFormat = "csv"
	ExportFormatPDF ExportFormat = "pdf"
)

// ExportService renders downloadable work-order reports: the work item,
// its chain of custody, and SLA outcomes.
type ExportService struct {
	workItems   workflowWorkItemStore
	assignments workflowAssignmentStore
	tickets     exportTicketStore
	permissions *PermissionService
	csv         *export.CSVExporter
	pdf         *export.PDFExporter
	logger      *zap.Logger
}

// NewExportService constructs the service.
func NewExportService(
	workItems workflowWorkItemStore,
	assignments workflowAssignmentStore,
	tickets exportTicketStore,
	permissions *PermissionService,
	logger *zap.Logger,
) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExportService{
		workItems:   workItems,
		assignments: assignments,
		tickets:     tickets,
		permissions: permissions,
		csv:         export.NewCSVExporter(),
		pdf:         export.NewPDFExporter(),
		logger:      logger,
	}
}

// WorkOrderReport renders one work item's assignment chain with per-row
// SLA outcomes in the requested format. Returns content bytes and the
// MIME type.
func (s *ExportService) WorkOrderReport(ctx context.Context, actor *models.JWTClaims, workItemID string, format ExportFormat) ([]byte, string, error) {
	if actor == nil {
		return nil, "", appErrors.ErrUnauthorized
	}
	allowed, err := s.permissions.Check(ctx, actor.UserID, AbilityExportReports, nil)
	if err != nil {
		return nil, "", err
	}
	if !allowed {
		return nil, "", appErrors.Clone(appErrors.ErrForbidden, "not allowed to export reports")
	}

	item, err := s.workItems.GetByID(ctx, workItemID)
	if err != nil {
		return nil, "", err
	}
	assignments, err := s.assignments.ListByWorkItem(ctx, workItemID)
	if err != nil {
		return nil, "", err
	}

	dataset := export.Dataset{
		Headers: []string{"assignment_id", "worker", "status", "assigned_at", "finished_at", "sla_outcomes"},
	}
	for _, a := range assignments {
		subject := a.SubjectRef()
		tickets, err := s.tickets.List(ctx, models.TicketFilter{Subject: &subject})
		if err != nil {
			return nil, "", err
		}
		dataset.Rows = append(dataset.Rows, map[string]string{
			"assignment_id": a.ID,
			"worker":        a.UserID,
			"status":        string(a.Status),
			"assigned_at":   a.AssignedAt.Format(time.RFC3339),
			"finished_at":   formatStageEnd(&a),
			"sla_outcomes":  summariseTickets(tickets),
		})
	}

	switch format {
	case ExportFormatCSV:
		content, err := s.csv.Render(dataset)
		if err != nil {
			return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render csv report")
		}
		return content, "text/csv", nil
	case ExportFormatPDF:
		title := fmt.Sprintf("Work Order %s - %s", item.ID, item.Title)
		content, err := s.pdf.Render(dataset, title)
		if err != nil {
			return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render pdf report")
		}
		return content, "application/pdf", nil
	default:
		return nil, "", appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported export format %q", format))
	}
}

func formatStageEnd(a *models.Assignment) string {
	switch {
	case a.ApprovedAt != nil:
		return a.ApprovedAt.Format(time.RFC3339)
	case a.RejectedAt != nil:
		return a.RejectedAt.Format(time.RFC3339)
	case a.ReturnedAt != nil:
		return a.ReturnedAt.Format(time.RFC3339)
	}
	return ""
}

func summariseTickets(tickets []models.SlaTicket) string {
	if len(tickets) == 0 {
		return ""
	}
	parts := make([]string, 0, len(tickets))
	for _, t := range tickets {
		parts = append(parts, fmt.Sprintf("%s:%s", t.Kind, t.Status))
	}
	return strings.Join(parts, "; ")
}
