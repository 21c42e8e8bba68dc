package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/schoolworks/maintenance-desk/internal/api/dto"
	"github.com/schoolworks/maintenance-desk/internal/service"
	apperrors "github.com/schoolworks/maintenance-desk/pkg/util"
)

// ReferenceHandler serves categories and locations.
type ReferenceHandler struct {
	catalog *service.CatalogService
}

// NewReferenceHandler constructs handler.
func NewReferenceHandler(catalog *service.CatalogService) *ReferenceHandler {
	return &ReferenceHandler{catalog: catalog}
}

// ListCategories GET /api/categories.
func (h *ReferenceHandler) ListCategories(c *fiber.Ctx) error {
	categories, err := h.catalog.ListCategories(c.UserContext())
	if err != nil {
		return err
	}
	items := make([]dto.ReferenceResponse, 0, len(categories))
	for _, cat := range categories {
		items = append(items, dto.ReferenceResponse{ID: cat.ID, Name: cat.Name, Description: cat.Description, CreatedAt: cat.CreatedAt})
	}
	return c.JSON(fiber.Map{"data": items})
}

// CreateCategory POST /api/categories.
func (h *ReferenceHandler) CreateCategory(c *fiber.Ctx) error {
	actor, err := principal(c)
	if err != nil {
		return err
	}
	var req dto.ReferenceRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	cat, err := h.catalog.CreateCategory(c.UserContext(), actor, req.Name, req.Description)
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": dto.ReferenceResponse{
		ID: cat.ID, Name: cat.Name, Description: cat.Description, CreatedAt: cat.CreatedAt,
	}})
}

// ListLocations GET /api/locations.
func (h *ReferenceHandler) ListLocations(c *fiber.Ctx) error {
	locations, err := h.catalog.ListLocations(c.UserContext())
	if err != nil {
		return err
	}
	items := make([]dto.ReferenceResponse, 0, len(locations))
	for _, loc := range locations {
		items = append(items, dto.ReferenceResponse{ID: loc.ID, Name: loc.Name, Description: loc.Description, CreatedAt: loc.CreatedAt})
	}
	return c.JSON(fiber.Map{"data": items})
}

// CreateLocation POST /api/locations.
func (h *ReferenceHandler) CreateLocation(c *fiber.Ctx) error {
	actor, err := principal(c)
	if err != nil {
		return err
	}
	var req dto.ReferenceRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	loc, err := h.catalog.CreateLocation(c.UserContext(), actor, req.Name, req.Description)
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": dto.ReferenceResponse{
		ID: loc.ID, Name: loc.Name, Description: loc.Description, CreatedAt: loc.CreatedAt,
	}})
}
