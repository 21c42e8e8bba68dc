package handlers

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/schoolworks/maintenance-desk/internal/api/dto"
	"github.com/schoolworks/maintenance-desk/internal/domain"
	"github.com/schoolworks/maintenance-desk/internal/ingest"
	"github.com/schoolworks/maintenance-desk/internal/service"
	apperrors "github.com/schoolworks/maintenance-desk/pkg/util"
)

const rawEmailContentType = "message/rfc822"

// PublicHandler serves the unauthenticated entry points. Both answer with
// the {success, ticketId} envelope rather than the dashboard error body.
type PublicHandler struct {
	tickets *service.TicketService
	logger  *zap.Logger
}

// NewPublicHandler constructs handler.
func NewPublicHandler(tickets *service.TicketService, logger *zap.Logger) *PublicHandler {
	return &PublicHandler{tickets: tickets, logger: logger}
}

// SubmitForm POST /ticket.
func (h *PublicHandler) SubmitForm(c *fiber.Ctx) error {
	var req dto.PublicTicketRequest
	if err := c.BodyParser(&req); err != nil {
		return h.fail(c, apperrors.NewValidationError("invalid payload", nil))
	}
	ticket, err := h.tickets.CreatePublic(c.UserContext(), service.TicketCreateInput{
		Subject:        req.Subject,
		Description:    req.Description,
		LocationID:     optional(req.Location),
		CategoryID:     optional(req.Category),
		Priority:       domain.TicketPriority(strings.ToLower(strings.TrimSpace(req.Priority))),
		RequesterName:  req.RequesterName,
		RequesterEmail: req.RequesterEmail,
	})
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(dto.PublicResponse{Success: true, TicketID: ticket.ID})
}

// IngestEmail POST /createTicketFromEmail. Accepts the relay's JSON fields or
// a raw RFC 5322 message.
func (h *PublicHandler) IngestEmail(c *fiber.Ctx) error {
	var (
		ticket *domain.Ticket
		err    error
	)
	if strings.HasPrefix(strings.ToLower(c.Get(fiber.HeaderContentType)), rawEmailContentType) {
		ticket, err = h.tickets.CreateFromRawEmail(c.UserContext(), c.Body())
	} else {
		var req dto.EmailTicketRequest
		if perr := c.BodyParser(&req); perr != nil {
			return h.fail(c, apperrors.NewValidationError("invalid payload", nil))
		}
		description := req.Description
		if strings.TrimSpace(description) == "" {
			description = req.Body
		}
		attachments := make([]ingest.AttachmentMeta, 0, len(req.Attachments))
		for _, a := range req.Attachments {
			if a.FileName == "" {
				continue
			}
			attachments = append(attachments, ingest.AttachmentMeta{FileName: a.FileName, MimeType: a.MimeType, SizeBytes: a.SizeBytes})
		}
		ticket, err = h.tickets.CreateFromEmail(c.UserContext(), service.EmailTicketInput{
			Subject:     req.Subject,
			Description: description,
			FromName:    req.FromName,
			FromAddress: req.FromEmail,
			Priority:    domain.TicketPriority(strings.ToLower(strings.TrimSpace(req.Priority))),
			LocationID:  optional(req.Location),
			CategoryID:  optional(req.Category),
			Attachments: attachments,
		})
	}
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(dto.PublicResponse{
		Success:  true,
		TicketID: ticket.ID,
		Message:  "Ticket " + ticket.TicketNumber + " created from email",
	})
}

// Preflight answers OPTIONS for browsers that send no CORS request headers.
func (h *PublicHandler) Preflight(c *fiber.Ctx) error {
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *PublicHandler) fail(c *fiber.Ctx, err error) error {
	domainErr := apperrors.ToDomainError(err)
	status := domainErr.HTTPStatus
	if status >= fiber.StatusInternalServerError {
		h.logger.Error("public ticket submission failed", zap.String("path", c.Path()), zap.Error(err))
		status = fiber.StatusInternalServerError
	}
	return c.Status(status).JSON(dto.PublicResponse{Success: false, Error: domainErr.Message})
}

func optional(v string) *string {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	return &v
}
