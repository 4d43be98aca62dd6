package service

import (
	"context"
	"sort"

	"github.com/ticketsla/sla-engine/internal/domain"
	"github.com/ticketsla/sla-engine/internal/observability"
	"github.com/ticketsla/sla-engine/internal/repository"
	apperrors "github.com/ticketsla/sla-engine/pkg/util/errorutil"
)

// AssignmentService is the workload balancer. It reads agents and their active
// ticket counts from the store on every call and keeps no state between calls.
type AssignmentService struct {
	tickets repository.TicketRepository
	agents  repository.AgentRepository
	roles   []domain.StaffRole
	metrics *observability.Metrics
}

// AssignmentDependencies bundles repositories.
type AssignmentDependencies struct {
	TicketRepo repository.TicketRepository
	AgentRepo  repository.AgentRepository
	// AgentRoles are the roles eligible for assignment; defaults to domain.DefaultAgentRoles.
	AgentRoles []domain.StaffRole
	Metrics    *observability.Metrics
}

// NewAssignmentService creates the service.
func NewAssignmentService(deps AssignmentDependencies) *AssignmentService {
	roles := deps.AgentRoles
	if len(roles) == 0 {
		roles = domain.DefaultAgentRoles
	}
	return &AssignmentService{
		tickets: deps.TicketRepo,
		agents:  deps.AgentRepo,
		roles:   roles,
		metrics: deps.Metrics,
	}
}

// SelectAgent returns the eligible agent with the fewest OPEN/IN_PROGRESS tickets.
// Ties go to the lowest agent id. When nobody is eligible it returns a NoEligibleAgent error.
func (s *AssignmentService) SelectAgent(ctx context.Context) (string, error) {
	workloads, err := s.Workloads(ctx)
	if err != nil {
		s.metrics.Assignment("auto", "error")
		return "", err
	}
	chosen, ok := PickLeastLoaded(workloads)
	if !ok {
		s.metrics.Assignment("auto", "no_agent")
		return "", apperrors.NewNoEligibleAgent(map[string]any{"roles": s.roles})
	}
	s.metrics.Assignment("auto", "selected")
	return chosen, nil
}

// Workloads snapshots every eligible agent with its active ticket count, ordered by agent id.
func (s *AssignmentService) Workloads(ctx context.Context) ([]domain.AgentWorkload, error) {
	agents, err := s.agents.ListActiveByRoles(ctx, s.roles)
	if err != nil {
		return nil, apperrors.NewDependencyFailure("agent directory", err)
	}
	if len(agents) == 0 {
		return nil, nil
	}

	ids := make([]string, 0, len(agents))
	for _, agent := range agents {
		ids = append(ids, agent.ID)
	}
	counts, err := s.tickets.CountActiveByAssignee(ctx, ids)
	if err != nil {
		return nil, apperrors.NewDependencyFailure("ticket store", err)
	}

	workloads := make([]domain.AgentWorkload, 0, len(ids))
	for _, id := range ids {
		workloads = append(workloads, domain.AgentWorkload{AgentID: id, ActiveCount: counts[id]})
	}
	return workloads, nil
}

// ValidateAssignee checks that agentID names an active agent holding an eligible role.
func (s *AssignmentService) ValidateAssignee(ctx context.Context, agentID string) (*domain.Agent, error) {
	agent, err := s.agents.GetByID(ctx, agentID)
	if err != nil {
		return nil, apperrors.FromStore(err, "agent", map[string]any{"agent_id": agentID})
	}
	if !agent.Active {
		return nil, apperrors.NewConflict("agent inactive", map[string]any{"agent_id": agentID})
	}
	if !s.eligibleRole(agent.Role) {
		return nil, apperrors.NewConflict("agent role cannot receive tickets", map[string]any{
			"agent_id": agentID,
			"role":     agent.Role,
		})
	}
	return agent, nil
}

func (s *AssignmentService) eligibleRole(role domain.StaffRole) bool {
	for _, candidate := range s.roles {
		if candidate == role {
			return true
		}
	}
	return false
}

// PickLeastLoaded chooses the agent with the strictly smallest active count,
// breaking ties by agent id ascending. It reports false for an empty snapshot.
func PickLeastLoaded(workloads []domain.AgentWorkload) (string, bool) {
	if len(workloads) == 0 {
		return "", false
	}
	sorted := append([]domain.AgentWorkload(nil), workloads...)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].ActiveCount != sorted[j].ActiveCount {
			return sorted[i].ActiveCount < sorted[j].ActiveCount
		}
		return sorted[i].AgentID < sorted[j].AgentID
	})
	return sorted[0].AgentID, true
}
