package service

import (
	"context"
	"strings"

	"github.com/ticketsla/sla-engine/internal/domain"
	"github.com/ticketsla/sla-engine/internal/events"
	apperrors "github.com/ticketsla/sla-engine/pkg/util/errorutil"
)

// BulkOperationKind names the operation applied to every ticket in a bulk request.
type BulkOperationKind string

const (
	BulkAssign         BulkOperationKind = "assign"
	BulkClose          BulkOperationKind = "close"
	BulkUpdatePriority BulkOperationKind = "update_priority"
	BulkAddTag         BulkOperationKind = "add_tag"
)

// BulkRequest applies one operation to a set of tickets.
type BulkRequest struct {
	TicketIDs []string
	Operation BulkOperationKind
	AgentID   string
	Priority  domain.TicketPriority
	Tags      []string
}

// BulkResult tallies per-ticket outcomes. Errors maps failed ids to a message.
type BulkResult struct {
	Success int               `json:"success"`
	Failed  int               `json:"failed"`
	Errors  map[string]string `json:"errors,omitempty"`
}

// BulkOperation applies req to each distinct ticket id independently. A failure on
// one id is counted and never stops the rest. Malformed requests fail before any
// ticket is touched.
func (s *TicketService) BulkOperation(ctx context.Context, actor events.Actor, req BulkRequest) (*BulkResult, error) {
	ids := dedupeIDs(req.TicketIDs)
	if len(ids) == 0 {
		return nil, apperrors.NewValidationError("ticket_ids is required", map[string]any{"field": "ticket_ids"})
	}
	if err := s.validateBulk(ctx, &req); err != nil {
		return nil, err
	}

	result := &BulkResult{Errors: map[string]string{}}
	for _, id := range ids {
		if err := s.applyBulk(ctx, actor, req, id); err != nil {
			result.Failed++
			result.Errors[id] = err.Error()
			s.metrics.BulkItem(string(req.Operation), "failed")
			continue
		}
		result.Success++
		s.metrics.BulkItem(string(req.Operation), "success")
	}
	return result, nil
}

func (s *TicketService) validateBulk(ctx context.Context, req *BulkRequest) error {
	switch req.Operation {
	case BulkAssign:
		req.AgentID = strings.TrimSpace(req.AgentID)
		if req.AgentID == "" {
			return apperrors.NewValidationError("agent_id is required for assign", map[string]any{"field": "agent_id"})
		}
		if s.balancer != nil {
			if _, err := s.balancer.ValidateAssignee(ctx, req.AgentID); err != nil {
				return err
			}
		}
	case BulkClose:
	case BulkUpdatePriority:
		if !req.Priority.Valid() {
			return apperrors.NewValidationError("valid priority is required for update_priority", map[string]any{"priority": req.Priority})
		}
	case BulkAddTag:
		req.Tags = domain.MergeTags(nil, trimAll(req.Tags)...)
		if len(req.Tags) == 0 {
			return apperrors.NewValidationError("tags are required for add_tag", map[string]any{"field": "tags"})
		}
	default:
		return apperrors.NewValidationError("unknown bulk operation", map[string]any{"operation": req.Operation})
	}
	return nil
}

func (s *TicketService) applyBulk(ctx context.Context, actor events.Actor, req BulkRequest, id string) error {
	var err error
	switch req.Operation {
	case BulkAssign:
		_, err = s.assign(ctx, actor, id, req.AgentID)
	case BulkClose:
		_, err = s.CloseTicket(ctx, actor, id)
	case BulkUpdatePriority:
		priority := req.Priority
		_, err = s.UpdateTicket(ctx, actor, id, TicketPatch{Priority: &priority})
	case BulkAddTag:
		_, err = s.UpdateTicket(ctx, actor, id, TicketPatch{AddTags: req.Tags})
	}
	return err
}

func dedupeIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func trimAll(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		out = append(out, strings.TrimSpace(v))
	}
	return out
}
