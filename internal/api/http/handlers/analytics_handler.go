package handlers

import (
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/schoolworks/maintenance-desk/internal/service"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// AnalyticsHandler serves the reporting views.
type AnalyticsHandler struct {
	analytics *service.AnalyticsService
}

// NewAnalyticsHandler constructs handler.
func NewAnalyticsHandler(analytics *service.AnalyticsService) *AnalyticsHandler {
	return &AnalyticsHandler{analytics: analytics}
}

// Summary GET /api/analytics/summary.
func (h *AnalyticsHandler) Summary(c *fiber.Ctx) error {
	actor, err := principal(c)
	if err != nil {
		return err
	}
	summary, err := h.analytics.Summary(c.UserContext(), actor)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": summary})
}

// Workload GET /api/analytics/workload.
func (h *AnalyticsHandler) Workload(c *fiber.Ctx) error {
	actor, err := principal(c)
	if err != nil {
		return err
	}
	rows, err := h.analytics.Workload(c.UserContext(), actor)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": rows})
}

// WorkloadXLSX GET /api/analytics/workload.xlsx.
func (h *AnalyticsHandler) WorkloadXLSX(c *fiber.Ctx) error {
	actor, err := principal(c)
	if err != nil {
		return err
	}
	data, err := h.analytics.WorkloadXLSX(c.UserContext(), actor)
	if err != nil {
		return err
	}
	c.Set(fiber.HeaderContentType, xlsxContentType)
	c.Set(fiber.HeaderContentDisposition, fmt.Sprintf(`attachment; filename="workload-%s.xlsx"`, time.Now().Format("20060102")))
	return c.Send(data)
}
