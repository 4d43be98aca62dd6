package sla

import (
	"time"

	"github.com/ticketsla/sla-engine/internal/domain"
)

// Evaluation is the outcome of checking one ticket against its SLA budgets.
type Evaluation struct {
	ElapsedMinutes   int
	ResponseBreached bool
	ResolveBreached  bool
}

// Breached reports whether either budget is exceeded.
func (e Evaluation) Breached() bool {
	return e.ResponseBreached || e.ResolveBreached
}

// Evaluate checks ticket against its stamped budgets as of now. Elapsed time is
// counted in whole minutes since creation; a budget is breached only when elapsed
// strictly exceeds it and the matching milestone has not happened.
func Evaluate(ticket *domain.Ticket, now time.Time) Evaluation {
	elapsed := int(now.Sub(ticket.CreatedAt) / time.Minute)
	if elapsed < 0 {
		elapsed = 0
	}
	return Evaluation{
		ElapsedMinutes: elapsed,
		ResponseBreached: ticket.FirstResponseAt == nil &&
			ticket.SLAResponseMinutes != nil &&
			elapsed > *ticket.SLAResponseMinutes,
		ResolveBreached: ticket.ResolvedAt == nil &&
			ticket.SLAResolveMinutes != nil &&
			elapsed > *ticket.SLAResolveMinutes,
	}
}
