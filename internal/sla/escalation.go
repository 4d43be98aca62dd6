package sla

import "github.com/ticketsla/sla-engine/internal/domain"

// Severity labels escalation alerts.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityMajor    Severity = "major"
	SeverityCritical Severity = "critical"
)

// NextPriority returns the priority one level above p. The second value is false
// when p is already CRITICAL (or unknown) and nothing should change.
func NextPriority(p domain.TicketPriority) (domain.TicketPriority, bool) {
	rank := p.Rank()
	if rank < 0 || rank >= len(domain.Priorities)-1 {
		return p, false
	}
	return domain.Priorities[rank+1], true
}

// SeverityFor maps a ticket priority to the alert severity.
func SeverityFor(p domain.TicketPriority) Severity {
	switch p {
	case domain.TicketPriorityCritical:
		return SeverityCritical
	case domain.TicketPriorityHigh:
		return SeverityMajor
	case domain.TicketPriorityMedium:
		return SeverityWarning
	default:
		return SeverityInfo
	}
}
