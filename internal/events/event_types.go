package events

import (
	"time"

	"github.com/ticketsla/sla-engine/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventTicketCreated         EventType = "ticket_created"
	EventTicketStatusChanged   EventType = "ticket_status_changed"
	EventTicketPriorityChanged EventType = "ticket_priority_changed"
	EventTicketAssigned        EventType = "ticket_assigned"
	EventTicketCommentAdded    EventType = "ticket_comment_added"
	EventTicketSLABreached     EventType = "ticket_sla_breached"
	EventTicketSLARecovered    EventType = "ticket_sla_recovered"
)

// Actor encapsulates actor metadata for an event.
type Actor struct {
	Type    domain.SubjectType `json:"type"`
	UserID  *string            `json:"user_id,omitempty"`
	StaffID *string            `json:"staff_id,omitempty"`
}

// ID returns whichever identifier the actor carries.
func (a Actor) ID() *string {
	if a.StaffID != nil {
		return a.StaffID
	}
	return a.UserID
}

// UserActor builds an end-user actor.
func UserActor(userID string) Actor {
	return Actor{Type: domain.SubjectTypeUser, UserID: &userID}
}

// StaffActor builds a staff actor.
func StaffActor(staffID string) Actor {
	return Actor{Type: domain.SubjectTypeStaff, StaffID: &staffID}
}

// SystemActor is used for balancer, evaluator and sweep driven changes.
func SystemActor() Actor {
	return Actor{Type: domain.SubjectTypeSystem}
}

// Event represents a domain event emitted by services.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	TicketID  string      `json:"ticket_id"`
	Actor     Actor       `json:"actor"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// TicketCreatedPayload payload.
type TicketCreatedPayload struct {
	Priority           domain.TicketPriority `json:"priority"`
	Title              string                `json:"title"`
	SLAResponseMinutes int                   `json:"sla_response_minutes"`
	SLAResolveMinutes  int                   `json:"sla_resolve_minutes"`
}

// TicketStatusChangedPayload payload.
type TicketStatusChangedPayload struct {
	OldStatus domain.TicketStatus `json:"old_status"`
	NewStatus domain.TicketStatus `json:"new_status"`
}

// TicketPriorityChangedPayload payload.
type TicketPriorityChangedPayload struct {
	OldPriority domain.TicketPriority `json:"old_priority"`
	NewPriority domain.TicketPriority `json:"new_priority"`
}

// TicketAssignedPayload payload.
type TicketAssignedPayload struct {
	AssigneeStaffID *string `json:"assignee_staff_id,omitempty"`
	Automatic       bool    `json:"automatic"`
}

// TicketCommentAddedPayload payload.
type TicketCommentAddedPayload struct {
	CommentID      string                   `json:"comment_id"`
	AuthorType     domain.MessageAuthorType `json:"author_type"`
	AuthorID       *string                  `json:"author_id,omitempty"`
	IsInternal     bool                     `json:"is_internal"`
	FirstResponse  bool                     `json:"first_response"`
	ContentPreview string                   `json:"content_preview"`
}

// TicketSLABreachedPayload is emitted once per transition into breach.
type TicketSLABreachedPayload struct {
	OldPriority      domain.TicketPriority `json:"old_priority"`
	NewPriority      domain.TicketPriority `json:"new_priority"`
	Escalated        bool                  `json:"escalated"`
	Severity         string                `json:"severity"`
	ResponseBreached bool                  `json:"response_breached"`
	ResolveBreached  bool                  `json:"resolve_breached"`
	ElapsedMinutes   int                   `json:"elapsed_minutes"`
}

// TicketSLARecoveredPayload is emitted when a breach flag clears.
type TicketSLARecoveredPayload struct {
	Priority domain.TicketPriority `json:"priority"`
}
