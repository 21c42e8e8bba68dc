package service

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/schoolworks/maintenance-desk/internal/auth"
	"github.com/schoolworks/maintenance-desk/internal/domain"
	"github.com/schoolworks/maintenance-desk/internal/repository"
	apperrors "github.com/schoolworks/maintenance-desk/pkg/util"
)

const analyticsPageSize = 500

// Summary aggregates the ticket table for the admin dashboard.
type Summary struct {
	Total                  int                           `json:"total"`
	ByStatus               map[domain.TicketStatus]int   `json:"by_status"`
	ByPriority             map[domain.TicketPriority]int `json:"by_priority"`
	ByCategory             map[string]int                `json:"by_category"`
	Overdue                int                           `json:"overdue"`
	AverageResolutionHours float64                       `json:"average_resolution_hours"`
}

// WorkloadRow is one assignee's share of the tickets.
type WorkloadRow struct {
	AssigneeID             string  `json:"assignee_id"`
	AssigneeName           string  `json:"assignee_name"`
	New                    int     `json:"new"`
	InProgress             int     `json:"in_progress"`
	Paused                 int     `json:"paused"`
	Completed              int     `json:"completed"`
	AverageResolutionHours float64 `json:"average_resolution_hours"`
}

// AnalyticsService computes reporting views.
type AnalyticsService struct {
	tickets repository.TicketRepository
	roles   *RoleService
	catalog *CatalogService
	clock   Clock
}

// NewAnalyticsService constructs the service.
func NewAnalyticsService(tickets repository.TicketRepository, roles *RoleService, catalog *CatalogService, clock Clock) *AnalyticsService {
	return &AnalyticsService{tickets: tickets, roles: roles, catalog: catalog, clock: clock}
}

// Summary counts tickets by status, priority and category.
func (s *AnalyticsService) Summary(ctx context.Context, actor *domain.Actor) (*Summary, error) {
	if actor == nil || !auth.IsPrivileged(actor.Role) {
		return nil, apperrors.NewForbidden("supervisor or admin role required")
	}
	tickets, err := s.all(ctx)
	if err != nil {
		return nil, err
	}

	categoryNames := map[string]string{}
	if s.catalog != nil {
		if list, err := s.catalog.ListCategories(ctx); err == nil {
			for _, c := range list {
				categoryNames[c.ID] = c.Name
			}
		}
	}

	now := s.clock.now()
	out := &Summary{
		Total:      len(tickets),
		ByStatus:   map[domain.TicketStatus]int{},
		ByPriority: map[domain.TicketPriority]int{},
		ByCategory: map[string]int{},
	}
	var resolved resolution
	for i := range tickets {
		t := &tickets[i]
		out.ByStatus[t.Status]++
		out.ByPriority[t.Priority]++
		category := "Uncategorised"
		if t.CategoryID != nil {
			if name, ok := categoryNames[*t.CategoryID]; ok {
				category = name
			} else {
				category = *t.CategoryID
			}
		}
		out.ByCategory[category]++
		if t.IsOverdue(now) {
			out.Overdue++
		}
		resolved.add(t)
	}
	out.AverageResolutionHours = resolved.average()
	return out, nil
}

// Workload breaks tickets down per assignee, ordered by name. Unassigned
// tickets are reported under an empty id.
func (s *AnalyticsService) Workload(ctx context.Context, actor *domain.Actor) ([]WorkloadRow, error) {
	if actor == nil || !auth.IsPrivileged(actor.Role) {
		return nil, apperrors.NewForbidden("supervisor or admin role required")
	}
	tickets, err := s.all(ctx)
	if err != nil {
		return nil, err
	}

	rows := map[string]*WorkloadRow{}
	times := map[string]*resolution{}
	for i := range tickets {
		t := &tickets[i]
		id := derefString(t.AssigneeID)
		row, ok := rows[id]
		if !ok {
			name := "Unassigned"
			if id != "" && s.roles != nil {
				name = s.roles.StaffName(ctx, id)
			}
			row = &WorkloadRow{AssigneeID: id, AssigneeName: name}
			rows[id] = row
			times[id] = &resolution{}
		}
		switch t.Status {
		case domain.TicketStatusNew:
			row.New++
		case domain.TicketStatusInProgress:
			row.InProgress++
		case domain.TicketStatusPaused:
			row.Paused++
		case domain.TicketStatusCompleted:
			row.Completed++
		}
		times[id].add(t)
	}

	out := make([]WorkloadRow, 0, len(rows))
	for id, row := range rows {
		row.AverageResolutionHours = times[id].average()
		out = append(out, *row)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].AssigneeName == out[j].AssigneeName {
			return out[i].AssigneeID < out[j].AssigneeID
		}
		return out[i].AssigneeName < out[j].AssigneeName
	})
	return out, nil
}

// WorkloadXLSX renders the workload table as a spreadsheet.
func (s *AnalyticsService) WorkloadXLSX(ctx context.Context, actor *domain.Actor) ([]byte, error) {
	rows, err := s.Workload(ctx, actor)
	if err != nil {
		return nil, err
	}

	const sheet = "Workload"
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return nil, apperrors.NewInternalError(err)
	}

	headers := []string{"Assignee", "New", "In progress", "Paused", "Completed", "Avg resolution (h)"}
	for col, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(col+1, 1)
		if err := f.SetCellValue(sheet, cell, h); err != nil {
			return nil, apperrors.NewInternalError(err)
		}
	}
	if bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}}); err == nil {
		_ = f.SetCellStyle(sheet, "A1", "F1", bold)
	}
	_ = f.SetColWidth(sheet, "A", "A", 32)

	for i, r := range rows {
		values := []any{r.AssigneeName, r.New, r.InProgress, r.Paused, r.Completed, r.AverageResolutionHours}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, i+2)
			if err := f.SetCellValue(sheet, cell, v); err != nil {
				return nil, apperrors.NewInternalError(err)
			}
		}
	}

	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		return nil, apperrors.NewInternalError(fmt.Errorf("write workload sheet: %w", err))
	}
	return buf.Bytes(), nil
}

// all pages through every live ticket.
func (s *AnalyticsService) all(ctx context.Context) ([]domain.Ticket, error) {
	var out []domain.Ticket
	for offset := 0; ; offset += analyticsPageSize {
		page, err := s.tickets.List(ctx, repository.TicketFilter{Limit: analyticsPageSize, Offset: offset})
		if err != nil {
			return nil, apperrors.NewTransientIO("list tickets", err)
		}
		out = append(out, page...)
		if len(page) < analyticsPageSize {
			return out, nil
		}
	}
}

type resolution struct {
	total time.Duration
	count int
}

func (r *resolution) add(t *domain.Ticket) {
	if t.Status != domain.TicketStatusCompleted || t.CompletedAt == nil {
		return
	}
	r.total += t.CompletedAt.Sub(t.CreatedAt)
	r.count++
}

func (r *resolution) average() float64 {
	if r.count == 0 {
		return 0
	}
	hours := r.total.Hours() / float64(r.count)
	return float64(int(hours*10+0.5)) / 10
}
