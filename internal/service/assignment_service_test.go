package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ticketsla/sla-engine/internal/domain"
	"github.com/ticketsla/sla-engine/internal/testutil"
	apperrors "github.com/ticketsla/sla-engine/pkg/util/errorutil"
)

func seedActive(store *testutil.MemoryStore, agentID string, n int) {
	for i := 0; i < n; i++ {
		id := agentID
		store.PutTicket(domain.Ticket{
			RequesterID: "u1",
			Title:       "load",
			Status:      domain.TicketStatusInProgress,
			Priority:    domain.TicketPriorityLow,
			AssigneeID:  &id,
		})
	}
}

func TestSelectAgentPicksLeastLoaded(t *testing.T) {
	store := testutil.NewMemoryStore()
	for _, id := range []string{"A", "B", "C"} {
		store.PutAgent(agent(id, domain.StaffRoleAgent))
	}
	seedActive(store, "A", 2)
	seedActive(store, "C", 1)
	// Closed tickets do not count toward workload.
	b := "B"
	store.PutTicket(domain.Ticket{RequesterID: "u1", Title: "done", Status: domain.TicketStatusClosed, Priority: domain.TicketPriorityLow, AssigneeID: &b})

	balancer := NewAssignmentService(AssignmentDependencies{TicketRepo: store.Tickets(), AgentRepo: store.Agents()})
	chosen, err := balancer.SelectAgent(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "B", chosen)
}

func TestWorkloadsSnapshot(t *testing.T) {
	store := testutil.NewMemoryStore()
	store.PutAgent(agent("b", domain.StaffRoleTeamLead))
	store.PutAgent(agent("a", domain.StaffRoleAgent))
	store.PutAgent(agent("root", domain.StaffRoleAdmin))
	seedActive(store, "b", 3)

	balancer := NewAssignmentService(AssignmentDependencies{TicketRepo: store.Tickets(), AgentRepo: store.Agents()})
	workloads, err := balancer.Workloads(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []domain.AgentWorkload{
		{AgentID: "a", ActiveCount: 0},
		{AgentID: "b", ActiveCount: 3},
	}, workloads)
}

func TestSelectAgentHonoursConfiguredRoles(t *testing.T) {
	store := testutil.NewMemoryStore()
	store.PutAgent(agent("lead", domain.StaffRoleTeamLead))
	store.PutAgent(agent("agent", domain.StaffRoleAgent))
	seedActive(store, "agent", 3)

	balancer := NewAssignmentService(AssignmentDependencies{
		TicketRepo: store.Tickets(),
		AgentRepo:  store.Agents(),
		AgentRoles: []domain.StaffRole{domain.StaffRoleAgent},
	})
	chosen, err := balancer.SelectAgent(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "agent", chosen)
}

func TestSelectAgentNoEligibleAgent(t *testing.T) {
	store := testutil.NewMemoryStore()
	off := agent("off", domain.StaffRoleAgent)
	off.Active = false
	store.PutAgent(off)

	balancer := NewAssignmentService(AssignmentDependencies{TicketRepo: store.Tickets(), AgentRepo: store.Agents()})
	_, err := balancer.SelectAgent(context.Background())
	assert.True(t, apperrors.HasCode(err, apperrors.CodeNoEligibleAgent))
}

type failingAgents struct{}

func (failingAgents) GetByID(context.Context, string) (*domain.Agent, error) {
	return nil, errors.New("connection refused")
}

func (failingAgents) ListActiveByRoles(context.Context, []domain.StaffRole) ([]domain.Agent, error) {
	return nil, errors.New("connection refused")
}

func TestSelectAgentDirectoryFailureIsRetryable(t *testing.T) {
	store := testutil.NewMemoryStore()
	balancer := NewAssignmentService(AssignmentDependencies{TicketRepo: store.Tickets(), AgentRepo: failingAgents{}})
	_, err := balancer.SelectAgent(context.Background())
	assert.True(t, apperrors.IsRetryable(err))
}

func TestPickLeastLoaded(t *testing.T) {
	tests := []struct {
		name      string
		workloads []domain.AgentWorkload
		want      string
		ok        bool
	}{
		{name: "empty", ok: false},
		{
			name:      "strict minimum",
			workloads: []domain.AgentWorkload{{AgentID: "A", ActiveCount: 2}, {AgentID: "B", ActiveCount: 0}, {AgentID: "C", ActiveCount: 1}},
			want:      "B",
			ok:        true,
		},
		{
			name:      "tie broken by id",
			workloads: []domain.AgentWorkload{{AgentID: "z", ActiveCount: 1}, {AgentID: "m", ActiveCount: 1}, {AgentID: "q", ActiveCount: 4}},
			want:      "m",
			ok:        true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := PickLeastLoaded(tt.workloads)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}
