package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/schoolworks/maintenance-desk/internal/api/dto"
	"github.com/schoolworks/maintenance-desk/internal/lifecycle"
	"github.com/schoolworks/maintenance-desk/internal/service"
	apperrors "github.com/schoolworks/maintenance-desk/pkg/util"
)

// TicketsHandler serves the signed-in dashboard.
type TicketsHandler struct {
	tickets   *service.TicketService
	mutations *service.MutationService
	now       func() time.Time
}

// NewTicketsHandler constructs handler. A nil clock uses time.Now.
func NewTicketsHandler(tickets *service.TicketService, mutations *service.MutationService, clock func() time.Time) *TicketsHandler {
	if clock == nil {
		clock = time.Now
	}
	return &TicketsHandler{tickets: tickets, mutations: mutations, now: clock}
}

// CreateTicket POST /api/tickets.
func (h *TicketsHandler) CreateTicket(c *fiber.Ctx) error {
	actor, err := principal(c)
	if err != nil {
		return err
	}
	var req dto.CreateTicketRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	ticket, err := h.tickets.CreateFromDashboard(c.UserContext(), actor, service.TicketCreateInput{
		Subject:        req.Subject,
		Description:    req.Description,
		LocationID:     req.LocationID,
		CategoryID:     req.CategoryID,
		Priority:       req.Priority,
		RequesterName:  req.RequesterName,
		RequesterEmail: req.RequesterEmail,
		DueDate:        req.DueDate,
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": ticketResponse(ticket, h.now())})
}

// ListTickets GET /api/tickets.
func (h *TicketsHandler) ListTickets(c *fiber.Ctx) error {
	actor, err := principal(c)
	if err != nil {
		return err
	}
	filter, err := parseTicketFilter(c)
	if err != nil {
		return err
	}
	tickets, err := h.tickets.List(c.UserContext(), actor, filter)
	if err != nil {
		return err
	}
	now := h.now()
	items := make([]dto.TicketSummary, 0, len(tickets))
	for i := range tickets {
		items = append(items, ticketSummary(&tickets[i], now))
	}
	return c.JSON(fiber.Map{"data": items})
}

// GetTicket GET /api/tickets/:id.
func (h *TicketsHandler) GetTicket(c *fiber.Ctx) error {
	actor, err := principal(c)
	if err != nil {
		return err
	}
	detail, err := h.tickets.Detail(c.UserContext(), actor, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketDetail(detail, h.now())})
}

// UpdateTicket PATCH /api/tickets/:id.
func (h *TicketsHandler) UpdateTicket(c *fiber.Ctx) error {
	actor, err := principal(c)
	if err != nil {
		return err
	}
	var req dto.UpdateTicketRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	ticket, err := h.tickets.UpdateFields(c.UserContext(), actor, c.Params("id"), service.TicketUpdateInput{
		Subject:     req.Subject,
		Description: req.Description,
		Priority:    req.Priority,
		LocationID:  req.LocationID,
		CategoryID:  req.CategoryID,
		DueDate:     req.DueDate,
	}, req.ExpectedRevision)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketResponse(ticket, h.now()), "message": "ticket updated"})
}

// AddComment POST /api/tickets/:id/comments.
func (h *TicketsHandler) AddComment(c *fiber.Ctx) error {
	actor, err := principal(c)
	if err != nil {
		return err
	}
	var req dto.CreateCommentRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if strings.TrimSpace(req.Body) == "" {
		return apperrors.NewValidationError("body required", nil)
	}
	comment, err := h.tickets.AddComment(c.UserContext(), actor, c.Params("id"), req.Body)
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": commentResponse(comment)})
}

// AddAttachment POST /api/tickets/:id/attachments.
func (h *TicketsHandler) AddAttachment(c *fiber.Ctx) error {
	actor, err := principal(c)
	if err != nil {
		return err
	}
	var req dto.AttachmentRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	attachment, err := h.tickets.AddAttachment(c.UserContext(), actor, c.Params("id"), service.AttachmentInput{
		StorageKey: req.StorageKey,
		FileName:   req.FileName,
		MimeType:   req.MimeType,
		SizeBytes:  req.SizeBytes,
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": attachmentResponse(attachment)})
}

// Transition POST /api/tickets/:id/transitions.
func (h *TicketsHandler) Transition(c *fiber.Ctx) error {
	actor, err := principal(c)
	if err != nil {
		return err
	}
	var req dto.TransitionRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	event, ok := lifecycle.ParseEvent(req.Event)
	if !ok {
		return apperrors.NewValidationError("unknown event", map[string]any{"event": req.Event})
	}
	result, err := h.mutations.ApplyTransition(c.UserContext(), c.Params("id"), event, service.TransitionPayload{
		Reason:            req.Payload.Reason,
		ReasonCode:        req.Payload.ReasonCode,
		Category:          req.Payload.Category,
		EstimatedDuration: req.Payload.EstimatedDuration,
		NotifySupervisor:  req.Payload.NotifySupervisor,
		TargetStatus:      req.Payload.TargetStatus,
		Comment:           req.Payload.Comment,
	}, actor, req.ExpectedRevision)
	if err != nil {
		return err
	}
	message := "ticket updated"
	if !result.Changed {
		message = "no change"
	}
	return c.JSON(fiber.Map{"data": mutationResponse(result, h.now()), "message": message})
}

// Assign PUT /api/tickets/:id/assignee.
func (h *TicketsHandler) Assign(c *fiber.Ctx) error {
	actor, err := principal(c)
	if err != nil {
		return err
	}
	var req dto.AssignRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	result, err := h.mutations.Assign(c.UserContext(), c.Params("id"), req.AssigneeID, actor, req.ExpectedRevision)
	if err != nil {
		return err
	}
	message := "assignee updated"
	if !result.Changed {
		message = "no change"
	}
	return c.JSON(fiber.Map{"data": mutationResponse(result, h.now()), "message": message})
}
