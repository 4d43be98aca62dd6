package sla

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ticketsla/sla-engine/internal/domain"
)

// Policy holds the response and resolve budgets for one priority, in minutes.
type Policy struct {
	ResponseMinutes int `yaml:"response_minutes"`
	ResolveMinutes  int `yaml:"resolve_minutes"`
}

// PolicyTable maps every priority to its Policy. It is fixed once built.
type PolicyTable struct {
	entries map[domain.TicketPriority]Policy
}

// DefaultPolicyTable returns the reference SLA budgets.
func DefaultPolicyTable() PolicyTable {
	return PolicyTable{entries: map[domain.TicketPriority]Policy{
		domain.TicketPriorityLow:      {ResponseMinutes: 480, ResolveMinutes: 2880},
		domain.TicketPriorityMedium:   {ResponseMinutes: 240, ResolveMinutes: 1440},
		domain.TicketPriorityHigh:     {ResponseMinutes: 120, ResolveMinutes: 480},
		domain.TicketPriorityCritical: {ResponseMinutes: 30, ResolveMinutes: 240},
	}}
}

// PolicyFor returns the budgets for priority p. Unknown priorities get the MEDIUM budgets.
func (t PolicyTable) PolicyFor(p domain.TicketPriority) Policy {
	if policy, ok := t.entries[p]; ok {
		return policy
	}
	return t.entries[domain.TicketPriorityMedium]
}

type policyFile struct {
	Priorities map[string]Policy `yaml:"priorities"`
}

// ParsePolicyYAML overlays the default table with the priorities present in data.
//
//	priorities:
//	  critical: {response_minutes: 15, resolve_minutes: 120}
func ParsePolicyYAML(data []byte) (PolicyTable, error) {
	table := DefaultPolicyTable()
	if len(bytes.TrimSpace(data)) == 0 {
		return table, nil
	}
	var file policyFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return PolicyTable{}, fmt.Errorf("sla: decode policy: %w", err)
	}
	for key, policy := range file.Priorities {
		priority := domain.TicketPriority(strings.ToUpper(strings.TrimSpace(key)))
		if !priority.Valid() {
			return PolicyTable{}, fmt.Errorf("sla: unknown priority %q", key)
		}
		if policy.ResponseMinutes <= 0 || policy.ResolveMinutes <= 0 {
			return PolicyTable{}, fmt.Errorf("sla: %s budgets must be positive", priority)
		}
		table.entries[priority] = policy
	}
	return table, nil
}

// LoadPolicyTable reads a YAML policy file. An empty path yields the default table.
func LoadPolicyTable(path string) (PolicyTable, error) {
	if strings.TrimSpace(path) == "" {
		return DefaultPolicyTable(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return PolicyTable{}, fmt.Errorf("sla: read %s: %w", path, err)
	}
	return ParsePolicyYAML(data)
}
