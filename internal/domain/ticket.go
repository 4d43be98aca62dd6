package domain

import "time"

// TicketStatus enumerates lifecycle states for tickets.
type TicketStatus string

const (
	TicketStatusOpen       TicketStatus = "OPEN"
	TicketStatusInProgress TicketStatus = "IN_PROGRESS"
	TicketStatusResolved   TicketStatus = "RESOLVED"
	TicketStatusClosed     TicketStatus = "CLOSED"
)

// ActiveStatuses are the statuses that count toward agent workload and SLA sweeps.
var ActiveStatuses = []TicketStatus{TicketStatusOpen, TicketStatusInProgress}

// Valid reports whether s is a known status.
func (s TicketStatus) Valid() bool {
	switch s {
	case TicketStatusOpen, TicketStatusInProgress, TicketStatusResolved, TicketStatusClosed:
		return true
	}
	return false
}

// TicketPriority enumerates SLA urgency.
type TicketPriority string

const (
	TicketPriorityLow      TicketPriority = "LOW"
	TicketPriorityMedium   TicketPriority = "MEDIUM"
	TicketPriorityHigh     TicketPriority = "HIGH"
	TicketPriorityCritical TicketPriority = "CRITICAL"
)

// Priorities lists every priority from lowest to highest.
var Priorities = []TicketPriority{
	TicketPriorityLow,
	TicketPriorityMedium,
	TicketPriorityHigh,
	TicketPriorityCritical,
}

// Rank returns the ordinal of p (LOW=0 ... CRITICAL=3), or -1 when unknown.
func (p TicketPriority) Rank() int {
	for i, candidate := range Priorities {
		if candidate == p {
			return i
		}
	}
	return -1
}

// Valid reports whether p is a known priority.
func (p TicketPriority) Valid() bool {
	return p.Rank() >= 0
}

// Ticket is the aggregate for support requests.
type Ticket struct {
	ID                 string
	ExternalKey        *string
	RequesterID        string
	AssigneeID         *string
	Title              string
	Description        string
	Status             TicketStatus
	Priority           TicketPriority
	Tags               []string
	SLAResponseMinutes *int
	SLAResolveMinutes  *int
	SLABreach          bool
	FirstResponseAt    *time.Time
	ResolvedAt         *time.Time
	ClosedAt           *time.Time
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// MergeTags appends extra to existing, dropping blanks and duplicates while keeping order.
func MergeTags(existing []string, extra ...string) []string {
	seen := make(map[string]struct{}, len(existing)+len(extra))
	result := make([]string, 0, len(existing)+len(extra))
	for _, group := range [][]string{existing, extra} {
		for _, tag := range group {
			if tag == "" {
				continue
			}
			if _, dup := seen[tag]; dup {
				continue
			}
			seen[tag] = struct{}{}
			result = append(result, tag)
		}
	}
	return result
}

// IsActive reports whether tickets in status s still run against their SLA.
func (s TicketStatus) IsActive() bool {
	return s == TicketStatusOpen || s == TicketStatusInProgress
}
