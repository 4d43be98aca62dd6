package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/ticketsla/sla-engine/internal/api/dto"
	"github.com/ticketsla/sla-engine/internal/service"
)

// AgentsHandler exposes the balancer's view of the support floor.
type AgentsHandler struct {
	balancer *service.AssignmentService
}

// NewAgentsHandler constructs handler.
func NewAgentsHandler(balancer *service.AssignmentService) *AgentsHandler {
	return &AgentsHandler{balancer: balancer}
}

// Workload GET /agents/workload.
func (h *AgentsHandler) Workload(c *fiber.Ctx) error {
	workloads, err := h.balancer.Workloads(c.UserContext())
	if err != nil {
		return err
	}
	items := make([]dto.AgentWorkloadResponse, 0, len(workloads))
	for _, w := range workloads {
		items = append(items, dto.AgentWorkloadResponse{AgentID: w.AgentID, ActiveCount: w.ActiveCount})
	}
	return c.JSON(fiber.Map{"data": items})
}
