package handlers

import (
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/schoolworks/maintenance-desk/internal/api/dto"
	"github.com/schoolworks/maintenance-desk/internal/auth"
	"github.com/schoolworks/maintenance-desk/internal/domain"
	"github.com/schoolworks/maintenance-desk/internal/lifecycle"
	"github.com/schoolworks/maintenance-desk/internal/service"
	apperrors "github.com/schoolworks/maintenance-desk/pkg/util"
)

const maxPageSize = 200

func principal(c *fiber.Ctx) (*domain.Actor, error) {
	actor, ok := auth.PrincipalFromContext(c)
	if !ok || actor == nil {
		return nil, apperrors.NewUnauthorized("authentication required")
	}
	return actor, nil
}

func ticketSummary(t *domain.Ticket, now time.Time) dto.TicketSummary {
	return dto.TicketSummary{
		ID:           t.ID,
		TicketNumber: t.TicketNumber,
		Subject:      t.Subject,
		Status:       t.Status,
		Priority:     t.Priority,
		LocationID:   t.LocationID,
		CategoryID:   t.CategoryID,
		AssigneeID:   t.AssigneeID,
		Requester:    t.Requester,
		Source:       t.Source,
		DueDate:      t.DueDate,
		Overdue:      t.IsOverdue(now),
		Revision:     t.Revision,
		CreatedAt:    t.CreatedAt,
		UpdatedAt:    t.UpdatedAt,
	}
}

func ticketResponse(t *domain.Ticket, now time.Time) dto.TicketResponse {
	out := dto.TicketResponse{
		TicketSummary: ticketSummary(t, now),
		Description:   t.Description,
		CompletedAt:   t.CompletedAt,
		PausedAt:      t.PausedAt,
		Reopen: dto.ReopenResponse{
			Requested:   t.Reopen.Requested,
			RequestedAt: t.Reopen.RequestedAt,
			RequestedBy: t.Reopen.RequestedBy,
			RejectedAt:  t.Reopen.RejectedAt,
			ReopenedAt:  t.Reopen.ReopenedAt,
		},
		CanReopen: lifecycle.CanRequestReopen(t),
	}
	if t.Pause != nil {
		out.Pause = &dto.PauseResponse{
			Reason:            t.Pause.Reason,
			ReasonCode:        t.Pause.ReasonCode,
			Category:          t.Pause.Category,
			EstimatedDuration: t.Pause.EstimatedDuration,
			NotifySupervisor:  t.Pause.NotifySupervisor,
		}
	}
	return out
}

func ticketDetail(d *service.TicketDetail, now time.Time) dto.TicketDetailResponse {
	out := dto.TicketDetailResponse{
		TicketResponse: ticketResponse(d.Ticket, now),
		Comments:       make([]dto.CommentResponse, 0, len(d.Comments)),
		History:        make([]dto.HistoryResponse, 0, len(d.History)),
		Attachments:    make([]dto.AttachmentResponse, 0, len(d.Attachments)),
	}
	out.CategoryName = d.CategoryName
	out.LocationName = d.LocationName
	for i := range d.Comments {
		out.Comments = append(out.Comments, commentResponse(&d.Comments[i]))
	}
	for _, h := range d.History {
		out.History = append(out.History, dto.HistoryResponse{
			ID:         h.ID,
			ActorID:    h.ActorID,
			ChangeType: h.ChangeType,
			OldValue:   h.OldValue,
			NewValue:   h.NewValue,
			CreatedAt:  h.CreatedAt,
		})
	}
	for i := range d.Attachments {
		out.Attachments = append(out.Attachments, attachmentResponse(&d.Attachments[i]))
	}
	return out
}

func commentResponse(c *domain.TicketComment) dto.CommentResponse {
	return dto.CommentResponse{
		ID:         c.ID,
		AuthorID:   c.AuthorID,
		AuthorName: c.AuthorName,
		Body:       c.Body,
		System:     c.System,
		CreatedAt:  c.CreatedAt,
	}
}

func attachmentResponse(a *domain.Attachment) dto.AttachmentResponse {
	return dto.AttachmentResponse{
		ID:         a.ID,
		StorageKey: a.StorageKey,
		FileName:   a.FileName,
		MimeType:   a.MimeType,
		SizeBytes:  a.SizeBytes,
		Source:     a.Source,
		CreatedAt:  a.CreatedAt,
	}
}

func mutationResponse(r *service.MutationResult, now time.Time) dto.MutationResponse {
	notified := r.Notified
	if notified == nil {
		notified = []domain.RecipientRole{}
	}
	return dto.MutationResponse{
		Ticket:   ticketResponse(r.Ticket, now),
		Changed:  r.Changed,
		Notified: notified,
	}
}

func staffResponse(r *domain.RoleRecord) dto.StaffResponse {
	return dto.StaffResponse{
		ID:          r.ID,
		Email:       r.Email,
		Name:        r.Name,
		Role:        r.Role,
		Permissions: r.Permissions,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
}

func parseTicketFilter(c *fiber.Ctx) (service.TicketListFilter, error) {
	filter := service.TicketListFilter{}
	if assignee := c.Query("assignee_id"); assignee != "" {
		filter.AssigneeID = &assignee
	}
	if category := c.Query("category_id"); category != "" {
		filter.CategoryID = &category
	}
	if location := c.Query("location_id"); location != "" {
		filter.LocationID = &location
	}
	if statuses := c.Query("status"); statuses != "" {
		for _, part := range strings.Split(statuses, ",") {
			status := domain.TicketStatus(strings.TrimSpace(part))
			if !status.Valid() {
				return filter, apperrors.NewValidationError("invalid status filter", map[string]any{"status": part})
			}
			filter.Statuses = append(filter.Statuses, status)
		}
	}
	if priorities := c.Query("priority"); priorities != "" {
		for _, part := range strings.Split(priorities, ",") {
			priority := domain.TicketPriority(strings.TrimSpace(part))
			if !priority.Valid() {
				return filter, apperrors.NewValidationError("invalid priority filter", map[string]any{"priority": part})
			}
			filter.Priorities = append(filter.Priorities, priority)
		}
	}
	if search := strings.TrimSpace(c.Query("search")); search != "" {
		filter.SearchTerm = &search
	}
	filter.CreatedFrom = parseTime(c.Query("created_from"))
	filter.CreatedTo = parseTime(c.Query("created_to"))

	page := parseInt(c.Query("page"), 1)
	pageSize := parseInt(c.Query("page_size"), 50)
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	filter.Offset = (page - 1) * pageSize
	filter.Limit = pageSize
	return filter, nil
}

func parseTime(value string) *time.Time {
	if value == "" {
		return nil
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return &t
	}
	if t, err := time.Parse("2006-01-02", value); err == nil {
		return &t
	}
	return nil
}

func parseInt(value string, fallback int) int {
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}
