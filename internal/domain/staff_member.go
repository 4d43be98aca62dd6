package domain

import (
	"strings"
	"time"
)

// StaffRole enumerates internal operator roles.
type StaffRole string

const (
	StaffRoleAgent    StaffRole = "AGENT"
	StaffRoleTeamLead StaffRole = "TEAM_LEAD"
	StaffRoleAdmin    StaffRole = "ADMIN"
)

// DefaultAgentRoles are the roles allowed to receive ticket assignments.
var DefaultAgentRoles = []StaffRole{StaffRoleAgent, StaffRoleTeamLead}

// ParseStaffRoles converts configured role names, upper-casing them. Empty entries are dropped.
func ParseStaffRoles(raw []string) []StaffRole {
	roles := make([]StaffRole, 0, len(raw))
	for _, r := range raw {
		if r = strings.ToUpper(strings.TrimSpace(r)); r != "" {
			roles = append(roles, StaffRole(r))
		}
	}
	return roles
}

// Agent models a support staff member as seen by the assignment balancer.
type Agent struct {
	ID        string
	Name      string
	Email     string
	Role      StaffRole
	Active    bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// AgentWorkload pairs an agent with the number of OPEN/IN_PROGRESS tickets assigned to them.
type AgentWorkload struct {
	AgentID     string
	ActiveCount int
}
