package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"

	"github.com/ticketsla/sla-engine/internal/api/http/handlers"
	"github.com/ticketsla/sla-engine/internal/auth"
	"github.com/ticketsla/sla-engine/internal/domain"
	"github.com/ticketsla/sla-engine/internal/observability"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Tickets        *handlers.TicketsHandler
	Agents         *handlers.AgentsHandler
	SLA            *handlers.SLAHandler
	AuthMiddleware *auth.AuthMiddleware
	Metrics        *observability.Metrics
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	if cfg.Health != nil {
		app.Get("/health/live", cfg.Health.Live)
		app.Get("/health/ready", cfg.Health.Ready)
	}
	if cfg.Metrics != nil {
		app.Get("/metrics", adaptor.HTTPHandler(cfg.Metrics.Handler()))
	}

	authn := []fiber.Handler{cfg.AuthMiddleware.Handle, auth.RequireAnyRole()}
	staff := auth.RequireStaffRole()

	tickets := app.Group("/tickets", authn...)
	tickets.Post("/", cfg.Tickets.CreateTicket)
	tickets.Get("/", cfg.Tickets.ListTickets)
	tickets.Post("/bulk", staff, cfg.Tickets.BulkOperation)
	tickets.Get("/:id", cfg.Tickets.GetTicket)
	tickets.Patch("/:id", staff, cfg.Tickets.UpdateTicket)
	tickets.Get("/:id/history", cfg.Tickets.ListHistory)
	tickets.Get("/:id/comments", cfg.Tickets.ListComments)
	tickets.Post("/:id/comments", cfg.Tickets.AddComment)
	tickets.Post("/:id/assign", staff, cfg.Tickets.AssignTicket)
	tickets.Post("/:id/close", cfg.Tickets.CloseTicket)

	if cfg.Agents != nil {
		agents := app.Group("/agents", authn...)
		agents.Get("/workload", auth.RequireStaffRole(domain.StaffRoleTeamLead, domain.StaffRoleAdmin), cfg.Agents.Workload)
	}

	if cfg.SLA != nil {
		internal := app.Group("/internal/sla", append(authn, auth.RequireStaffRole(domain.StaffRoleAdmin))...)
		internal.Post("/sweep", cfg.SLA.RunSweep)
		internal.Post("/tickets/:id/evaluate", cfg.SLA.EvaluateTicket)
	}
}
