package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/schoolworks/maintenance-desk/internal/api/http/handlers"
	"github.com/schoolworks/maintenance-desk/internal/auth"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health           *handlers.HealthHandler
	Public           *handlers.PublicHandler
	Tickets          *handlers.TicketsHandler
	Staff            *handlers.StaffHandler
	Reference        *handlers.ReferenceHandler
	Notifications    *handlers.NotificationsHandler
	Analytics        *handlers.AnalyticsHandler
	Live             *handlers.LiveHandler
	AuthMiddleware   *auth.AuthMiddleware
	MetricsRegistry  *prometheus.Registry
	CORSAllowOrigins string
	IngestKeyHash    string
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)
	if cfg.MetricsRegistry != nil {
		app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(cfg.MetricsRegistry, promhttp.HandlerOpts{})))
	}

	app.Post("/ticket", cfg.Public.SubmitForm)
	corsHandler := CORS(cfg.CORSAllowOrigins)
	app.Options("/createTicketFromEmail", corsHandler, cfg.Public.Preflight)
	app.Post("/createTicketFromEmail", corsHandler, auth.RequireIngestKey(cfg.IngestKeyHash), cfg.Public.IngestEmail)

	api := app.Group("/api", cfg.AuthMiddleware.Handle, auth.RequireAuthenticated())
	api.Get("/me", cfg.Staff.Me)

	api.Get("/tickets", cfg.Tickets.ListTickets)
	api.Post("/tickets", cfg.Tickets.CreateTicket)
	api.Get("/tickets/:id", cfg.Tickets.GetTicket)
	api.Patch("/tickets/:id", cfg.Tickets.UpdateTicket)
	api.Post("/tickets/:id/comments", cfg.Tickets.AddComment)
	api.Post("/tickets/:id/attachments", cfg.Tickets.AddAttachment)
	api.Post("/tickets/:id/transitions", cfg.Tickets.Transition)
	api.Put("/tickets/:id/assignee", auth.RequirePrivileged(), cfg.Tickets.Assign)
	api.Get("/tickets/:id/live", cfg.Live.Stream)

	api.Get("/staff", auth.RequirePrivileged(), cfg.Staff.ListStaff)
	api.Put("/staff/:id", auth.RequireFullAdmin(), cfg.Staff.SetRole)

	api.Get("/categories", cfg.Reference.ListCategories)
	api.Post("/categories", auth.RequireFullAdmin(), cfg.Reference.CreateCategory)
	api.Get("/locations", cfg.Reference.ListLocations)
	api.Post("/locations", auth.RequireFullAdmin(), cfg.Reference.CreateLocation)

	notifications := api.Group("/notifications", auth.RequirePrivileged())
	notifications.Get("", cfg.Notifications.List)
	notifications.Post("/:id/read", cfg.Notifications.MarkRead)

	analytics := api.Group("/analytics", auth.RequirePrivileged())
	analytics.Get("/summary", cfg.Analytics.Summary)
	analytics.Get("/workload", cfg.Analytics.Workload)
	analytics.Get("/workload.xlsx", cfg.Analytics.WorkloadXLSX)
}
