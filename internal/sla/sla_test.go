package sla

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ticketsla/sla-engine/internal/domain"
)

func intPtr(v int) *int { return &v }

func TestDefaultPolicyTable(t *testing.T) {
	table := DefaultPolicyTable()
	cases := map[domain.TicketPriority]Policy{
		domain.TicketPriorityLow:      {480, 2880},
		domain.TicketPriorityMedium:   {240, 1440},
		domain.TicketPriorityHigh:     {120, 480},
		domain.TicketPriorityCritical: {30, 240},
	}
	for priority, want := range cases {
		assert.Equal(t, want, table.PolicyFor(priority), priority)
	}
}

func TestParsePolicyYAMLOverridesOnlyListedPriorities(t *testing.T) {
	table, err := ParsePolicyYAML([]byte(`
priorities:
  critical:
    response_minutes: 15
    resolve_minutes: 120
`))
	require.NoError(t, err)
	assert.Equal(t, Policy{15, 120}, table.PolicyFor(domain.TicketPriorityCritical))
	assert.Equal(t, Policy{480, 2880}, table.PolicyFor(domain.TicketPriorityLow))
	assert.Equal(t, Policy{30, 240}, DefaultPolicyTable().PolicyFor(domain.TicketPriorityCritical))
}

func TestParsePolicyYAMLErrors(t *testing.T) {
	_, err := ParsePolicyYAML([]byte("priorities:\n  urgent: {response_minutes: 1, resolve_minutes: 2}\n"))
	assert.Error(t, err)

	_, err = ParsePolicyYAML([]byte("priorities:\n  low: {response_minutes: 0, resolve_minutes: 2}\n"))
	assert.Error(t, err)

	_, err = ParsePolicyYAML([]byte("priorities: ["))
	assert.Error(t, err)
}

func TestLoadPolicyTable(t *testing.T) {
	table, err := LoadPolicyTable("")
	require.NoError(t, err)
	assert.Equal(t, DefaultPolicyTable(), table)

	path := filepath.Join(t.TempDir(), "sla.yaml")
	require.NoError(t, os.WriteFile(path, []byte("priorities:\n  HIGH: {response_minutes: 60, resolve_minutes: 240}\n"), 0o644))
	table, err = LoadPolicyTable(path)
	require.NoError(t, err)
	assert.Equal(t, Policy{60, 240}, table.PolicyFor(domain.TicketPriorityHigh))

	_, err = LoadPolicyTable(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestEvaluateResponseBreachBoundary(t *testing.T) {
	created := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	ticket := &domain.Ticket{
		CreatedAt:          created,
		SLAResponseMinutes: intPtr(30),
		SLAResolveMinutes:  intPtr(240),
	}

	assert.False(t, Evaluate(ticket, created.Add(29*time.Minute)).Breached())
	assert.False(t, Evaluate(ticket, created.Add(30*time.Minute)).Breached())

	eval := Evaluate(ticket, created.Add(31*time.Minute))
	assert.True(t, eval.Breached())
	assert.True(t, eval.ResponseBreached)
	assert.False(t, eval.ResolveBreached)
	assert.Equal(t, 31, eval.ElapsedMinutes)
}

func TestEvaluateMilestonesSuppressBreach(t *testing.T) {
	created := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	responded := created.Add(10 * time.Minute)
	ticket := &domain.Ticket{
		CreatedAt:          created,
		SLAResponseMinutes: intPtr(480),
		SLAResolveMinutes:  intPtr(2880),
		FirstResponseAt:    &responded,
	}

	eval := Evaluate(ticket, created.Add(500*time.Minute))
	assert.False(t, eval.ResponseBreached)
	assert.False(t, eval.ResolveBreached)

	eval = Evaluate(ticket, created.Add(2881*time.Minute))
	assert.True(t, eval.ResolveBreached)

	resolved := created.Add(100 * time.Minute)
	ticket.ResolvedAt = &resolved
	assert.False(t, Evaluate(ticket, created.Add(3000*time.Minute)).Breached())
}

func TestEvaluateWithoutBudgets(t *testing.T) {
	created := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	ticket := &domain.Ticket{CreatedAt: created}
	assert.False(t, Evaluate(ticket, created.Add(100*24*time.Hour)).Breached())
	assert.Equal(t, 0, Evaluate(ticket, created.Add(-time.Hour)).ElapsedMinutes)
}

func TestNextPriority(t *testing.T) {
	next, ok := NextPriority(domain.TicketPriorityLow)
	assert.True(t, ok)
	assert.Equal(t, domain.TicketPriorityMedium, next)

	next, ok = NextPriority(domain.TicketPriorityMedium)
	assert.True(t, ok)
	assert.Equal(t, domain.TicketPriorityHigh, next)

	next, ok = NextPriority(domain.TicketPriorityHigh)
	assert.True(t, ok)
	assert.Equal(t, domain.TicketPriorityCritical, next)

	next, ok = NextPriority(domain.TicketPriorityCritical)
	assert.False(t, ok)
	assert.Equal(t, domain.TicketPriorityCritical, next)

	_, ok = NextPriority("UNKNOWN")
	assert.False(t, ok)
}

func TestSeverityFor(t *testing.T) {
	assert.Equal(t, SeverityCritical, SeverityFor(domain.TicketPriorityCritical))
	assert.Equal(t, SeverityMajor, SeverityFor(domain.TicketPriorityHigh))
	assert.Equal(t, SeverityWarning, SeverityFor(domain.TicketPriorityMedium))
	assert.Equal(t, SeverityInfo, SeverityFor(domain.TicketPriorityLow))
}
