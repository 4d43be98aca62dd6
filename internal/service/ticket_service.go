package service

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ticketsla/sla-engine/internal/clock"
	"github.com/ticketsla/sla-engine/internal/domain"
	"github.com/ticketsla/sla-engine/internal/events"
	"github.com/ticketsla/sla-engine/internal/notify"
	"github.com/ticketsla/sla-engine/internal/observability"
	"github.com/ticketsla/sla-engine/internal/repository"
	"github.com/ticketsla/sla-engine/internal/sla"
	apperrors "github.com/ticketsla/sla-engine/pkg/util/errorutil"
)

// SentimentQueue accepts comments for asynchronous sentiment analysis.
type SentimentQueue interface {
	Enqueue(req notify.SentimentRequest) bool
}

// TicketService is the single entry point for ticket mutations. Every mutation
// re-runs SLA evaluation before returning.
type TicketService struct {
	tickets    repository.TicketRepository
	comments   repository.CommentRepository
	history    repository.TicketHistoryRepository
	balancer   *AssignmentService
	policies   sla.PolicyTable
	clock      clock.Clock
	dispatcher events.Dispatcher
	sentiment  SentimentQueue
	logger     *zap.Logger
	metrics    *observability.Metrics

	restampOnPriorityChange bool
}

// TicketDependencies bundles collaborators for the ticket service.
type TicketDependencies struct {
	TicketRepo  repository.TicketRepository
	CommentRepo repository.CommentRepository
	HistoryRepo repository.TicketHistoryRepository
	Balancer    *AssignmentService
	Policies    sla.PolicyTable
	Clock       clock.Clock
	Dispatcher  events.Dispatcher
	Sentiment   SentimentQueue
	Logger      *zap.Logger
	Metrics     *observability.Metrics

	// RestampOnPriorityChange recomputes SLA budgets whenever priority changes.
	// Off by default: budgets are stamped once at creation.
	RestampOnPriorityChange bool
}

// TicketCreateInput describes ticket creation payload.
type TicketCreateInput struct {
	RequesterID string
	Title       string
	Description string
	Priority    domain.TicketPriority
	Tags        []string
}

// TicketPatch lists the fields an update may change. Nil fields are left alone.
type TicketPatch struct {
	Title       *string
	Description *string
	Status      *domain.TicketStatus
	Priority    *domain.TicketPriority
	// Tags replaces the tag set; AddTags merges into it.
	Tags    *[]string
	AddTags []string

	assigneeID *string
}

// TicketListFilter describes ticket listing filters.
type TicketListFilter struct {
	RequesterID *string
	AssigneeID  *string
	Statuses    []domain.TicketStatus
	Priorities  []domain.TicketPriority
	SLABreach   *bool
	CreatedFrom *time.Time
	CreatedTo   *time.Time
	Limit       int
	Offset      int
}

// EvaluationOutcome reports what one SLA evaluation changed.
type EvaluationOutcome struct {
	Transitioned bool
	Breached     bool
	Escalated    bool
}

// NewTicketService constructs the service.
func NewTicketService(deps TicketDependencies) *TicketService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clk := deps.Clock
	if clk == nil {
		clk = clock.System{}
	}
	return &TicketService{
		tickets:                 deps.TicketRepo,
		comments:                deps.CommentRepo,
		history:                 deps.HistoryRepo,
		balancer:                deps.Balancer,
		policies:                deps.Policies,
		clock:                   clk,
		dispatcher:              deps.Dispatcher,
		sentiment:               deps.Sentiment,
		logger:                  logger,
		metrics:                 deps.Metrics,
		restampOnPriorityChange: deps.RestampOnPriorityChange,
	}
}

// CreateTicket stamps SLA budgets for the requested priority, persists the ticket
// and auto-assigns it. Assignment failures are logged and leave the ticket unassigned.
func (s *TicketService) CreateTicket(ctx context.Context, actor events.Actor, input TicketCreateInput) (*domain.Ticket, error) {
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return nil, apperrors.NewValidationError("title is required", map[string]any{"field": "title"})
	}
	priority := input.Priority
	if priority == "" {
		priority = domain.TicketPriorityMedium
	}
	if !priority.Valid() {
		return nil, apperrors.NewValidationError("unknown priority", map[string]any{"priority": priority})
	}
	requesterID := strings.TrimSpace(input.RequesterID)
	if requesterID == "" && actor.ID() != nil {
		requesterID = *actor.ID()
	}
	if requesterID == "" {
		return nil, apperrors.NewValidationError("requester is required", map[string]any{"field": "requester_id"})
	}

	key := generateTicketKey()
	ticket := &domain.Ticket{
		ExternalKey: &key,
		RequesterID: requesterID,
		Title:       title,
		Description: strings.TrimSpace(input.Description),
		Status:      domain.TicketStatusOpen,
		Priority:    priority,
		Tags:        domain.MergeTags(nil, input.Tags...),
		CreatedAt:   s.clock.Now(),
	}
	s.stampSLA(ticket)

	if err := s.tickets.Create(ctx, ticket); err != nil {
		return nil, apperrors.FromStore(err, "ticket", nil)
	}
	s.metrics.TicketCreated(string(ticket.Priority))
	s.publishEvent(ctx, events.Event{
		Type:     events.EventTicketCreated,
		TicketID: ticket.ID,
		Actor:    actor,
		Payload: events.TicketCreatedPayload{
			Priority:           ticket.Priority,
			Title:              ticket.Title,
			SLAResponseMinutes: *ticket.SLAResponseMinutes,
			SLAResolveMinutes:  *ticket.SLAResolveMinutes,
		},
	})

	return s.autoAssign(ctx, ticket), nil
}

func (s *TicketService) autoAssign(ctx context.Context, ticket *domain.Ticket) *domain.Ticket {
	if s.balancer == nil {
		return ticket
	}
	agentID, err := s.balancer.SelectAgent(ctx)
	if err != nil {
		s.logger.Warn("auto-assignment skipped",
			zap.String("ticket_id", ticket.ID),
			zap.Error(err))
		return ticket
	}
	working := *ticket
	assigned, err := s.applyPatch(ctx, events.SystemActor(), &working, TicketPatch{assigneeID: &agentID})
	if err != nil {
		s.logger.Warn("auto-assignment failed",
			zap.String("ticket_id", ticket.ID),
			zap.String("agent_id", agentID),
			zap.Error(err))
		return ticket
	}
	return assigned
}

// GetTicket loads a ticket.
func (s *TicketService) GetTicket(ctx context.Context, id string) (*domain.Ticket, error) {
	return s.load(ctx, id)
}

// ListTickets returns one page of tickets plus the total matching count.
func (s *TicketService) ListTickets(ctx context.Context, filter TicketListFilter) ([]domain.Ticket, int, error) {
	repoFilter := repository.TicketFilter{
		RequesterID: filter.RequesterID,
		AssigneeID:  filter.AssigneeID,
		Statuses:    filter.Statuses,
		Priorities:  filter.Priorities,
		SLABreach:   filter.SLABreach,
		CreatedFrom: filter.CreatedFrom,
		CreatedTo:   filter.CreatedTo,
		Limit:       filter.Limit,
		Offset:      filter.Offset,
	}
	tickets, err := s.tickets.ListWithFilter(ctx, repoFilter)
	if err != nil {
		return nil, 0, apperrors.NewDependencyFailure("ticket store", err)
	}
	total, err := s.tickets.Count(ctx, repoFilter)
	if err != nil {
		return nil, 0, apperrors.NewDependencyFailure("ticket store", err)
	}
	return tickets, total, nil
}

// UpdateTicket applies patch and re-evaluates the SLA.
func (s *TicketService) UpdateTicket(ctx context.Context, actor events.Actor, id string, patch TicketPatch) (*domain.Ticket, error) {
	if err := patch.validate(); err != nil {
		return nil, err
	}
	ticket, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.applyPatch(ctx, actor, ticket, patch)
}

// AssignTicket assigns agentID explicitly and moves the ticket to IN_PROGRESS.
func (s *TicketService) AssignTicket(ctx context.Context, actor events.Actor, id, agentID string) (*domain.Ticket, error) {
	if s.balancer != nil {
		if _, err := s.balancer.ValidateAssignee(ctx, agentID); err != nil {
			return nil, err
		}
	}
	return s.assign(ctx, actor, id, agentID)
}

func (s *TicketService) assign(ctx context.Context, actor events.Actor, id, agentID string) (*domain.Ticket, error) {
	ticket, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	status := domain.TicketStatusInProgress
	return s.applyPatch(ctx, actor, ticket, TicketPatch{assigneeID: &agentID, Status: &status})
}

// CloseTicket forces status CLOSED.
func (s *TicketService) CloseTicket(ctx context.Context, actor events.Actor, id string) (*domain.Ticket, error) {
	status := domain.TicketStatusClosed
	return s.UpdateTicket(ctx, actor, id, TicketPatch{Status: &status})
}

// AddComment records a comment. The first public, non-system comment stamps the
// ticket's first response. Public comments are queued for sentiment analysis.
func (s *TicketService) AddComment(ctx context.Context, actor events.Actor, ticketID, content string, isInternal bool) (*domain.TicketComment, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, apperrors.NewValidationError("content is required", map[string]any{"field": "content"})
	}
	ticket, err := s.load(ctx, ticketID)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	comment := &domain.TicketComment{
		TicketID:   ticket.ID,
		AuthorType: actor.Type.AuthorType(),
		AuthorID:   actor.ID(),
		Content:    content,
		IsInternal: isInternal,
		CreatedAt:  now,
	}
	if err := s.comments.Create(ctx, comment); err != nil {
		return nil, apperrors.FromStore(err, "ticket", map[string]any{"ticket_id": ticketID})
	}

	firstResponse := false
	if comment.CountsAsResponse() && ticket.FirstResponseAt == nil {
		stamped, err := s.tickets.MarkFirstResponse(ctx, ticket.ID, now)
		if err != nil {
			return nil, apperrors.NewDependencyFailure("ticket store", err)
		}
		if stamped {
			firstResponse = true
			ticket.FirstResponseAt = &now
		}
	}

	s.publishEvent(ctx, events.Event{
		Type:     events.EventTicketCommentAdded,
		TicketID: ticket.ID,
		Actor:    actor,
		Payload: events.TicketCommentAddedPayload{
			CommentID:      comment.ID,
			AuthorType:     comment.AuthorType,
			AuthorID:       comment.AuthorID,
			IsInternal:     comment.IsInternal,
			FirstResponse:  firstResponse,
			ContentPreview: stringPreview(comment.Content, 120),
		},
	})

	if !isInternal && s.sentiment != nil {
		s.sentiment.Enqueue(notify.SentimentRequest{CommentID: comment.ID, TicketID: ticket.ID})
	}

	if _, _, err := s.evaluate(ctx, ticket); err != nil {
		return nil, err
	}
	return comment, nil
}

// ListComments returns a ticket's thread oldest first. Internal notes are
// dropped unless includeInternal is set.
func (s *TicketService) ListComments(ctx context.Context, ticketID string, includeInternal bool) ([]domain.TicketComment, error) {
	if _, err := s.load(ctx, ticketID); err != nil {
		return nil, err
	}
	comments, err := s.comments.ListByTicket(ctx, ticketID)
	if err != nil {
		return nil, apperrors.NewDependencyFailure("ticket store", err)
	}
	if includeInternal {
		return comments, nil
	}
	visible := make([]domain.TicketComment, 0, len(comments))
	for _, comment := range comments {
		if !comment.IsInternal {
			visible = append(visible, comment)
		}
	}
	return visible, nil
}

// ListHistory returns audit entries for a ticket.
func (s *TicketService) ListHistory(ctx context.Context, ticketID string, limit, offset int) ([]domain.TicketHistory, error) {
	if _, err := s.load(ctx, ticketID); err != nil {
		return nil, err
	}
	if s.history == nil {
		return []domain.TicketHistory{}, nil
	}
	entries, err := s.history.ListByTicket(ctx, ticketID, limit, offset)
	if err != nil {
		return nil, apperrors.NewDependencyFailure("ticket store", err)
	}
	return entries, nil
}

// EvaluateTicket re-checks one ticket's SLA. A missing ticket is a no-op.
func (s *TicketService) EvaluateTicket(ctx context.Context, id string) (EvaluationOutcome, error) {
	ticket, err := s.load(ctx, id)
	if err != nil {
		if apperrors.IsNotFound(err) {
			return EvaluationOutcome{}, nil
		}
		return EvaluationOutcome{}, err
	}
	_, outcome, err := s.evaluate(ctx, ticket)
	return outcome, err
}

func (s *TicketService) applyPatch(ctx context.Context, actor events.Actor, ticket *domain.Ticket, patch TicketPatch) (*domain.Ticket, error) {
	oldStatus := ticket.Status
	oldPriority := ticket.Priority
	oldAssignee := ticket.AssigneeID
	oldTags := append([]string(nil), ticket.Tags...)

	if patch.Title != nil {
		ticket.Title = strings.TrimSpace(*patch.Title)
	}
	if patch.Description != nil {
		ticket.Description = strings.TrimSpace(*patch.Description)
	}
	if patch.Status != nil {
		ticket.Status = *patch.Status
	}
	if patch.Priority != nil {
		ticket.Priority = *patch.Priority
	}
	if patch.Tags != nil {
		ticket.Tags = domain.MergeTags(nil, (*patch.Tags)...)
	}
	if len(patch.AddTags) > 0 {
		ticket.Tags = domain.MergeTags(ticket.Tags, patch.AddTags...)
	}
	if patch.assigneeID != nil {
		ticket.AssigneeID = patch.assigneeID
	}

	now := s.clock.Now()
	if ticket.Status == domain.TicketStatusResolved && ticket.ResolvedAt == nil {
		ticket.ResolvedAt = &now
	}
	if ticket.Status == domain.TicketStatusClosed && ticket.ClosedAt == nil {
		ticket.ClosedAt = &now
	}
	if s.restampOnPriorityChange && ticket.Priority != oldPriority {
		s.stampSLA(ticket)
	}

	if err := s.tickets.Update(ctx, ticket); err != nil {
		return nil, apperrors.FromStore(err, "ticket", map[string]any{"ticket_id": ticket.ID})
	}

	if ticket.Status != oldStatus {
		s.recordHistory(ctx, actor, ticket.ID, domain.ChangeTypeStatus,
			map[string]any{"status": oldStatus}, map[string]any{"status": ticket.Status})
		s.publishEvent(ctx, events.Event{
			Type:     events.EventTicketStatusChanged,
			TicketID: ticket.ID,
			Actor:    actor,
			Payload:  events.TicketStatusChangedPayload{OldStatus: oldStatus, NewStatus: ticket.Status},
		})
	}
	if ticket.Priority != oldPriority {
		s.recordHistory(ctx, actor, ticket.ID, domain.ChangeTypePriority,
			map[string]any{"priority": oldPriority}, map[string]any{"priority": ticket.Priority})
		s.publishEvent(ctx, events.Event{
			Type:     events.EventTicketPriorityChanged,
			TicketID: ticket.ID,
			Actor:    actor,
			Payload:  events.TicketPriorityChangedPayload{OldPriority: oldPriority, NewPriority: ticket.Priority},
		})
	}
	if !sameString(oldAssignee, ticket.AssigneeID) {
		s.recordHistory(ctx, actor, ticket.ID, domain.ChangeTypeAssignee,
			map[string]any{"assignee_staff_id": oldAssignee}, map[string]any{"assignee_staff_id": ticket.AssigneeID})
		s.publishEvent(ctx, events.Event{
			Type:     events.EventTicketAssigned,
			TicketID: ticket.ID,
			Actor:    actor,
			Payload: events.TicketAssignedPayload{
				AssigneeStaffID: ticket.AssigneeID,
				Automatic:       actor.Type == domain.SubjectTypeSystem,
			},
		})
	}
	if !sameTags(oldTags, ticket.Tags) {
		s.recordHistory(ctx, actor, ticket.ID, domain.ChangeTypeTags,
			map[string]any{"tags": oldTags}, map[string]any{"tags": ticket.Tags})
	}

	updated, _, err := s.evaluate(ctx, ticket)
	return updated, err
}

// evaluate persists a breach-flag transition and escalates when this call is the
// one that moved the ticket into breach. Concurrent evaluators race on the
// conditional write; the loser sees transitioned=false and does nothing.
func (s *TicketService) evaluate(ctx context.Context, ticket *domain.Ticket) (*domain.Ticket, EvaluationOutcome, error) {
	result := sla.Evaluate(ticket, s.clock.Now())
	breached := result.Breached()
	outcome := EvaluationOutcome{Breached: breached}
	if breached == ticket.SLABreach {
		return ticket, outcome, nil
	}

	transitioned, err := s.tickets.SetSLABreach(ctx, ticket.ID, breached)
	if err != nil {
		return nil, outcome, apperrors.NewDependencyFailure("ticket store", err)
	}
	ticket.SLABreach = breached
	if !transitioned {
		return ticket, outcome, nil
	}
	outcome.Transitioned = true

	s.metrics.SLATransition(breached, string(ticket.Priority))
	s.recordHistory(ctx, events.SystemActor(), ticket.ID, domain.ChangeTypeSLABreach,
		map[string]any{"sla_breach": !breached}, map[string]any{"sla_breach": breached})

	if !breached {
		s.publishEvent(ctx, events.Event{
			Type:     events.EventTicketSLARecovered,
			TicketID: ticket.ID,
			Actor:    events.SystemActor(),
			Payload:  events.TicketSLARecoveredPayload{Priority: ticket.Priority},
		})
		return ticket, outcome, nil
	}

	oldPriority := ticket.Priority
	escalated, raised, escErr := s.escalate(ctx, ticket)
	if escalated != nil {
		ticket = escalated
	}
	outcome.Escalated = raised
	payload := events.TicketSLABreachedPayload{
		OldPriority:      oldPriority,
		NewPriority:      ticket.Priority,
		Escalated:        raised,
		Severity:         string(sla.SeverityFor(ticket.Priority)),
		ResponseBreached: result.ResponseBreached,
		ResolveBreached:  result.ResolveBreached,
		ElapsedMinutes:   result.ElapsedMinutes,
	}
	s.publishEvent(ctx, events.Event{
		Type:     events.EventTicketSLABreached,
		TicketID: ticket.ID,
		Actor:    events.SystemActor(),
		Payload:  payload,
	})
	if escErr != nil {
		return nil, outcome, escErr
	}
	return ticket, outcome, nil
}

// escalate raises priority one level through a full update. It reloads the
// ticket first so fields written since the caller's read are not overwritten.
// At the ceiling, or when priority already moved, the ticket is returned unchanged.
func (s *TicketService) escalate(ctx context.Context, ticket *domain.Ticket) (*domain.Ticket, bool, error) {
	next, ok := sla.NextPriority(ticket.Priority)
	if !ok {
		return ticket, false, nil
	}
	fresh, err := s.load(ctx, ticket.ID)
	if err != nil {
		return nil, false, err
	}
	if fresh.Priority != ticket.Priority {
		return fresh, false, nil
	}
	escalated, err := s.applyPatch(ctx, events.SystemActor(), fresh, TicketPatch{Priority: &next})
	if err != nil {
		s.logger.Error("sla escalation failed",
			zap.String("ticket_id", ticket.ID),
			zap.String("priority", string(ticket.Priority)),
			zap.Error(err))
		return nil, false, err
	}
	s.metrics.Escalation(string(ticket.Priority), string(next))
	return escalated, true, nil
}

func (s *TicketService) stampSLA(ticket *domain.Ticket) {
	policy := s.policies.PolicyFor(ticket.Priority)
	response := policy.ResponseMinutes
	resolve := policy.ResolveMinutes
	ticket.SLAResponseMinutes = &response
	ticket.SLAResolveMinutes = &resolve
}

func (s *TicketService) load(ctx context.Context, id string) (*domain.Ticket, error) {
	ticket, err := s.tickets.GetByID(ctx, id)
	if err != nil {
		return nil, apperrors.FromStore(err, "ticket", map[string]any{"ticket_id": id})
	}
	return ticket, nil
}

func (s *TicketService) recordHistory(ctx context.Context, actor events.Actor, ticketID string, change domain.TicketChangeType, oldValue, newValue map[string]any) {
	if s.history == nil {
		return
	}
	entry := &domain.TicketHistory{
		TicketID:      ticketID,
		ChangedByType: actor.Type.AuthorType(),
		ChangedByID:   actor.ID(),
		ChangeType:    change,
		OldValue:      oldValue,
		NewValue:      newValue,
	}
	if err := s.history.Create(ctx, entry); err != nil {
		s.metrics.SideEffectFailure("history")
		s.logger.Warn("history write failed",
			zap.String("ticket_id", ticketID),
			zap.String("change_type", string(change)),
			zap.Error(err))
	}
}

func (s *TicketService) publishEvent(ctx context.Context, event events.Event) {
	if s.dispatcher == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = s.clock.Now()
	}
	_ = s.dispatcher.Publish(ctx, event)
}

func (p TicketPatch) validate() error {
	if p.Title != nil && strings.TrimSpace(*p.Title) == "" {
		return apperrors.NewValidationError("title cannot be empty", map[string]any{"field": "title"})
	}
	if p.Status != nil && !p.Status.Valid() {
		return apperrors.NewValidationError("unknown status", map[string]any{"status": *p.Status})
	}
	if p.Priority != nil && !p.Priority.Valid() {
		return apperrors.NewValidationError("unknown priority", map[string]any{"priority": *p.Priority})
	}
	return nil
}

func generateTicketKey() string {
	return "TCK-" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
}

// stringPreview cuts body to at most max runes, never splitting a multi-byte character.
func stringPreview(body string, max int) string {
	body = strings.TrimSpace(body)
	runes := []rune(body)
	if len(runes) <= max {
		return body
	}
	if max <= 3 {
		return string(runes[:max])
	}
	return string(runes[:max-3]) + "..."
}

func sameString(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func sameTags(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
