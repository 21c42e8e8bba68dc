package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/schoolworks/maintenance-desk/internal/api/dto"
	"github.com/schoolworks/maintenance-desk/internal/auth"
	"github.com/schoolworks/maintenance-desk/internal/service"
	apperrors "github.com/schoolworks/maintenance-desk/pkg/util"
)

// StaffHandler exposes the signed-in user and role administration.
type StaffHandler struct {
	roles *service.RoleService
}

// NewStaffHandler constructs handler.
func NewStaffHandler(roles *service.RoleService) *StaffHandler {
	return &StaffHandler{roles: roles}
}

// Me handles GET /api/me.
func (h *StaffHandler) Me(c *fiber.Ctx) error {
	actor, err := principal(c)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.MeResponse{
		ID:         actor.ID,
		Email:      actor.Email,
		Name:       actor.DisplayName(),
		Role:       actor.Role,
		Privileged: auth.IsPrivileged(actor.Role),
		FullAdmin:  auth.IsFullAdmin(actor.Role),
	}})
}

// ListStaff handles GET /api/staff.
func (h *StaffHandler) ListStaff(c *fiber.Ctx) error {
	actor, err := principal(c)
	if err != nil {
		return err
	}
	page := parseInt(c.Query("page"), 1)
	pageSize := parseInt(c.Query("page_size"), 100)
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	records, err := h.roles.ListStaff(c.UserContext(), actor, pageSize, (page-1)*pageSize)
	if err != nil {
		return err
	}
	items := make([]dto.StaffResponse, 0, len(records))
	for i := range records {
		items = append(items, staffResponse(&records[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// SetRole handles PUT /api/staff/:id.
func (h *StaffHandler) SetRole(c *fiber.Ctx) error {
	actor, err := principal(c)
	if err != nil {
		return err
	}
	var req dto.SetRoleRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	record, err := h.roles.SetRole(c.UserContext(), actor, service.SetRoleInput{
		UserID:      c.Params("id"),
		Email:       req.Email,
		Name:        req.Name,
		Role:        req.Role,
		Permissions: req.Permissions,
	})
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": staffResponse(record), "message": "role updated"})
}
