package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/schoolworks/maintenance-desk/internal/api/dto"
	"github.com/schoolworks/maintenance-desk/internal/domain"
	"github.com/schoolworks/maintenance-desk/internal/service"
	apperrors "github.com/schoolworks/maintenance-desk/pkg/util"
)

// NotificationsHandler serves the role feeds.
type NotificationsHandler struct {
	notifications *service.NotificationService
}

// NewNotificationsHandler constructs handler.
func NewNotificationsHandler(notifications *service.NotificationService) *NotificationsHandler {
	return &NotificationsHandler{notifications: notifications}
}

// List GET /api/notifications?role=&unread=. Supervisors default to their own
// feed; admins see every role unless one is named.
func (h *NotificationsHandler) List(c *fiber.Ctx) error {
	actor, err := principal(c)
	if err != nil {
		return err
	}
	filter := service.ListFilter{
		UnreadOnly: c.QueryBool("unread", false),
		Limit:      parseInt(c.Query("limit"), 50),
	}
	if filter.Limit > maxPageSize {
		filter.Limit = maxPageSize
	}
	switch raw := c.Query("role"); {
	case raw != "":
		role := domain.RecipientRole(raw)
		switch role {
		case domain.RecipientSupervisor, domain.RecipientEstateManager, domain.RecipientFinance:
		default:
			return apperrors.NewValidationError("unknown role", map[string]any{"role": raw})
		}
		filter.Role = &role
	case actor.Role == domain.RoleSupervisor:
		role := domain.RecipientSupervisor
		filter.Role = &role
	}

	items, err := h.notifications.List(c.UserContext(), actor, filter)
	if err != nil {
		return err
	}
	out := make([]dto.NotificationResponse, 0, len(items))
	for _, n := range items {
		out = append(out, dto.NotificationResponse{
			ID:         n.ID,
			TicketID:   n.TicketID,
			TargetRole: n.TargetRole,
			Message:    n.Message,
			Read:       n.Read,
			CreatedAt:  n.CreatedAt,
		})
	}
	return c.JSON(fiber.Map{"data": out})
}

// MarkRead POST /api/notifications/:id/read.
func (h *NotificationsHandler) MarkRead(c *fiber.Ctx) error {
	actor, err := principal(c)
	if err != nil {
		return err
	}
	if err := h.notifications.MarkRead(c.UserContext(), actor, c.Params("id")); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"message": "notification marked as read"})
}
