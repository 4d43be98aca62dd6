package dto

import (
	"time"

	"github.com/ticketsla/sla-engine/internal/domain"
)

// CreateTicketRequest payload. RequesterID may only be set by staff filing on behalf of a user.
type CreateTicketRequest struct {
	RequesterID *string               `json:"requester_id"`
	Title       string                `json:"title" validate:"required,max=200"`
	Description string                `json:"description" validate:"max=10000"`
	Priority    domain.TicketPriority `json:"priority" validate:"omitempty,ticket_priority"`
	Tags        []string              `json:"tags" validate:"max=20,dive,max=50"`
}

// UpdateTicketRequest is a partial update; absent fields are left alone.
type UpdateTicketRequest struct {
	Title       *string                `json:"title" validate:"omitempty,max=200"`
	Description *string                `json:"description" validate:"omitempty,max=10000"`
	Status      *domain.TicketStatus   `json:"status" validate:"omitempty,ticket_status"`
	Priority    *domain.TicketPriority `json:"priority" validate:"omitempty,ticket_priority"`
	Tags        *[]string              `json:"tags"`
	AddTags     []string               `json:"add_tags" validate:"max=20,dive,max=50"`
}

// CreateCommentRequest payload.
type CreateCommentRequest struct {
	Content    string `json:"content" validate:"required,max=10000"`
	IsInternal bool   `json:"is_internal"`
}

// AssignTicketRequest payload.
type AssignTicketRequest struct {
	AgentID string `json:"agent_id" validate:"required"`
}

// BulkRequest payload.
type BulkRequest struct {
	TicketIDs []string              `json:"ticket_ids" validate:"required,min=1,max=500,dive,required"`
	Operation string                `json:"operation" validate:"required,bulk_operation"`
	AgentID   string                `json:"agent_id"`
	Priority  domain.TicketPriority `json:"priority" validate:"omitempty,ticket_priority"`
	Tags      []string              `json:"tags" validate:"max=20,dive,max=50"`
}

// TicketListQuery captures query filters for GET /tickets.
type TicketListQuery struct {
	Statuses    []domain.TicketStatus   `json:"status" validate:"dive,ticket_status"`
	Priorities  []domain.TicketPriority `json:"priority" validate:"dive,ticket_priority"`
	AssigneeID  *string                 `json:"assignee_id"`
	SLABreach   *bool                   `json:"sla_breach"`
	CreatedFrom *time.Time              `json:"created_from"`
	CreatedTo   *time.Time              `json:"created_to"`
	Page        int                     `json:"page" validate:"min=1"`
	PageSize    int                     `json:"page_size" validate:"min=1,max=100"`
}

// TicketResponse is the full ticket representation.
type TicketResponse struct {
	ID                 string                `json:"id"`
	ExternalKey        *string               `json:"external_key"`
	RequesterID        string                `json:"requester_id"`
	AssigneeID         *string               `json:"assignee_id"`
	Title              string                `json:"title"`
	Description        string                `json:"description"`
	Status             domain.TicketStatus   `json:"status"`
	Priority           domain.TicketPriority `json:"priority"`
	Tags               []string              `json:"tags"`
	SLAResponseMinutes *int                  `json:"sla_response_minutes"`
	SLAResolveMinutes  *int                  `json:"sla_resolve_minutes"`
	SLABreach          bool                  `json:"sla_breach"`
	FirstResponseAt    *time.Time            `json:"first_response_at"`
	ResolvedAt         *time.Time            `json:"resolved_at"`
	ClosedAt           *time.Time            `json:"closed_at"`
	CreatedAt          time.Time             `json:"created_at"`
	UpdatedAt          time.Time             `json:"updated_at"`
}

// TicketListResponse wraps one page of tickets.
type TicketListResponse struct {
	Items    []TicketResponse `json:"items"`
	Total    int              `json:"total"`
	Page     int              `json:"page"`
	PageSize int              `json:"page_size"`
}

// CommentResponse represents a thread comment.
type CommentResponse struct {
	ID         string                   `json:"id"`
	TicketID   string                   `json:"ticket_id"`
	AuthorType domain.MessageAuthorType `json:"author_type"`
	AuthorID   *string                  `json:"author_id"`
	Content    string                   `json:"content"`
	IsInternal bool                     `json:"is_internal"`
	CreatedAt  time.Time                `json:"created_at"`
}

// TicketHistoryResponse represents an audit entry.
type TicketHistoryResponse struct {
	ID            string                   `json:"id"`
	ChangeType    domain.TicketChangeType  `json:"change_type"`
	ChangedByType domain.MessageAuthorType `json:"changed_by_type"`
	ChangedByID   *string                  `json:"changed_by_id"`
	OldValue      map[string]any           `json:"old_value"`
	NewValue      map[string]any           `json:"new_value"`
	CreatedAt     time.Time                `json:"created_at"`
}

// BulkResponse tallies a bulk operation.
type BulkResponse struct {
	Success int               `json:"success"`
	Failed  int               `json:"failed"`
	Errors  map[string]string `json:"errors"`
}

// AgentWorkloadResponse is one row of the balancer's workload snapshot.
type AgentWorkloadResponse struct {
	AgentID     string `json:"agent_id"`
	ActiveCount int    `json:"active_count"`
}

// NewTicketResponse maps a domain ticket.
func NewTicketResponse(ticket *domain.Ticket) TicketResponse {
	tags := ticket.Tags
	if tags == nil {
		tags = []string{}
	}
	return TicketResponse{
		ID:                 ticket.ID,
		ExternalKey:        ticket.ExternalKey,
		RequesterID:        ticket.RequesterID,
		AssigneeID:         ticket.AssigneeID,
		Title:              ticket.Title,
		Description:        ticket.Description,
		Status:             ticket.Status,
		Priority:           ticket.Priority,
		Tags:               tags,
		SLAResponseMinutes: ticket.SLAResponseMinutes,
		SLAResolveMinutes:  ticket.SLAResolveMinutes,
		SLABreach:          ticket.SLABreach,
		FirstResponseAt:    ticket.FirstResponseAt,
		ResolvedAt:         ticket.ResolvedAt,
		ClosedAt:           ticket.ClosedAt,
		CreatedAt:          ticket.CreatedAt,
		UpdatedAt:          ticket.UpdatedAt,
	}
}

// NewCommentResponse maps a domain comment.
func NewCommentResponse(comment *domain.TicketComment) CommentResponse {
	return CommentResponse{
		ID:         comment.ID,
		TicketID:   comment.TicketID,
		AuthorType: comment.AuthorType,
		AuthorID:   comment.AuthorID,
		Content:    comment.Content,
		IsInternal: comment.IsInternal,
		CreatedAt:  comment.CreatedAt,
	}
}

// NewHistoryResponses maps audit entries.
func NewHistoryResponses(entries []domain.TicketHistory) []TicketHistoryResponse {
	resp := make([]TicketHistoryResponse, 0, len(entries))
	for _, entry := range entries {
		resp = append(resp, TicketHistoryResponse{
			ID:            entry.ID,
			ChangeType:    entry.ChangeType,
			ChangedByType: entry.ChangedByType,
			ChangedByID:   entry.ChangedByID,
			OldValue:      entry.OldValue,
			NewValue:      entry.NewValue,
			CreatedAt:     entry.CreatedAt,
		})
	}
	return resp
}
