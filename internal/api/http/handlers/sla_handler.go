package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/ticketsla/sla-engine/internal/service"
)

// SLAHandler lets operators trigger a sweep on demand.
type SLAHandler struct {
	sweep   *service.SweepService
	tickets *service.TicketService
}

// NewSLAHandler constructs handler.
func NewSLAHandler(sweep *service.SweepService, tickets *service.TicketService) *SLAHandler {
	return &SLAHandler{sweep: sweep, tickets: tickets}
}

// RunSweep POST /internal/sla/sweep.
func (h *SLAHandler) RunSweep(c *fiber.Ctx) error {
	result, err := h.sweep.RunSLACheck(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": result})
}

// EvaluateTicket POST /internal/sla/tickets/:id/evaluate re-checks a single ticket.
func (h *SLAHandler) EvaluateTicket(c *fiber.Ctx) error {
	outcome, err := h.tickets.EvaluateTicket(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": fiber.Map{
		"transitioned": outcome.Transitioned,
		"breached":     outcome.Breached,
		"escalated":    outcome.Escalated,
	}})
}
