// Package testutil provides in-memory fakes of the repositories for service and handler tests.
package testutil

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/ticketsla/sla-engine/internal/domain"
	"github.com/ticketsla/sla-engine/internal/repository"
)

// MemoryStore implements every repository interface over maps guarded by one mutex.
// It mirrors the conditional-write semantics of the Postgres repositories.
type MemoryStore struct {
	mu       sync.Mutex
	tickets  map[string]domain.Ticket
	comments map[string]domain.TicketComment
	agents   map[string]domain.Agent
	history  []domain.TicketHistory

	// FailTicketUpdate, when set, is returned by Update for the matching ticket id.
	FailTicketUpdate map[string]error
	// FailGet, when set, is returned by GetByID for the matching ticket id.
	FailGet map[string]error
	// FailList, when set, is returned by ListWithFilter.
	FailList error
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tickets:          make(map[string]domain.Ticket),
		comments:         make(map[string]domain.TicketComment),
		agents:           make(map[string]domain.Agent),
		FailTicketUpdate: make(map[string]error),
		FailGet:          make(map[string]error),
	}
}

// Tickets returns the store as a TicketRepository.
func (s *MemoryStore) Tickets() repository.TicketRepository { return ticketStore{s} }

// Comments returns the store as a CommentRepository.
func (s *MemoryStore) Comments() repository.CommentRepository { return commentStore{s} }

// Agents returns the store as an AgentRepository.
func (s *MemoryStore) Agents() repository.AgentRepository { return agentStore{s} }

// History returns the store as a TicketHistoryRepository.
func (s *MemoryStore) History() repository.TicketHistoryRepository { return historyStore{s} }

// PutAgent inserts or replaces an agent.
func (s *MemoryStore) PutAgent(agent domain.Agent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.agents[agent.ID] = agent
}

// PutTicket inserts or replaces a ticket verbatim, including SLA fields.
func (s *MemoryStore) PutTicket(ticket domain.Ticket) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ticket.ID == "" {
		ticket.ID = uuid.NewString()
	}
	s.tickets[ticket.ID] = cloneTicket(ticket)
}

// Ticket returns a copy of the stored ticket.
func (s *MemoryStore) Ticket(id string) (domain.Ticket, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tickets[id]
	return cloneTicket(t), ok
}

// HistoryEntries returns every recorded history entry in insertion order.
func (s *MemoryStore) HistoryEntries() []domain.TicketHistory {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.TicketHistory(nil), s.history...)
}

type ticketStore struct{ s *MemoryStore }

func (r ticketStore) Create(_ context.Context, ticket *domain.Ticket) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if ticket.ExternalKey != nil {
		for _, existing := range r.s.tickets {
			if existing.ExternalKey != nil && *existing.ExternalKey == *ticket.ExternalKey {
				return errors.New("duplicate key value violates unique constraint")
			}
		}
	}
	ticket.ID = uuid.NewString()
	if ticket.CreatedAt.IsZero() {
		ticket.CreatedAt = time.Now().UTC()
	}
	ticket.UpdatedAt = ticket.CreatedAt
	if ticket.Tags == nil {
		ticket.Tags = []string{}
	}
	r.s.tickets[ticket.ID] = cloneTicket(*ticket)
	return nil
}

func (r ticketStore) Update(_ context.Context, ticket *domain.Ticket) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.FailTicketUpdate[ticket.ID]; err != nil {
		return err
	}
	stored, ok := r.s.tickets[ticket.ID]
	if !ok {
		return pgx.ErrNoRows
	}
	stored.AssigneeID = cloneString(ticket.AssigneeID)
	stored.Title = ticket.Title
	stored.Description = ticket.Description
	stored.Status = ticket.Status
	stored.Priority = ticket.Priority
	stored.Tags = append([]string{}, ticket.Tags...)
	stored.SLAResponseMinutes = cloneInt(ticket.SLAResponseMinutes)
	stored.SLAResolveMinutes = cloneInt(ticket.SLAResolveMinutes)
	if stored.ResolvedAt == nil {
		stored.ResolvedAt = cloneTime(ticket.ResolvedAt)
	}
	if stored.ClosedAt == nil {
		stored.ClosedAt = cloneTime(ticket.ClosedAt)
	}
	stored.UpdatedAt = time.Now().UTC()
	r.s.tickets[ticket.ID] = stored

	ticket.SLABreach = stored.SLABreach
	ticket.FirstResponseAt = cloneTime(stored.FirstResponseAt)
	ticket.ResolvedAt = cloneTime(stored.ResolvedAt)
	ticket.ClosedAt = cloneTime(stored.ClosedAt)
	ticket.UpdatedAt = stored.UpdatedAt
	return nil
}

func (r ticketStore) GetByID(_ context.Context, id string) (*domain.Ticket, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.FailGet[id]; err != nil {
		return nil, err
	}
	t, ok := r.s.tickets[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	out := cloneTicket(t)
	return &out, nil
}

func (r ticketStore) ListWithFilter(_ context.Context, filter repository.TicketFilter) ([]domain.Ticket, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.FailList != nil {
		return nil, r.s.FailList
	}
	matched := r.s.filterLocked(filter)
	if filter.OldestFirst {
		sort.Slice(matched, func(i, j int) bool {
			if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
				return matched[i].CreatedAt.Before(matched[j].CreatedAt)
			}
			return matched[i].ID < matched[j].ID
		})
	} else {
		sort.Slice(matched, func(i, j int) bool {
			if !matched[i].UpdatedAt.Equal(matched[j].UpdatedAt) {
				return matched[i].UpdatedAt.After(matched[j].UpdatedAt)
			}
			return matched[i].ID < matched[j].ID
		})
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	if offset >= len(matched) {
		return nil, nil
	}
	end := offset + limit
	if end > len(matched) {
		end = len(matched)
	}
	return matched[offset:end], nil
}

func (r ticketStore) Count(_ context.Context, filter repository.TicketFilter) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return len(r.s.filterLocked(filter)), nil
}

func (r ticketStore) SetSLABreach(_ context.Context, id string, breached bool) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	t, ok := r.s.tickets[id]
	if !ok || t.SLABreach == breached {
		return false, nil
	}
	t.SLABreach = breached
	t.UpdatedAt = time.Now().UTC()
	r.s.tickets[id] = t
	return true, nil
}

func (r ticketStore) MarkFirstResponse(_ context.Context, id string, at time.Time) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	t, ok := r.s.tickets[id]
	if !ok || t.FirstResponseAt != nil {
		return false, nil
	}
	t.FirstResponseAt = &at
	t.UpdatedAt = time.Now().UTC()
	r.s.tickets[id] = t
	return true, nil
}

func (r ticketStore) CountActiveByAssignee(_ context.Context, agentIDs []string) (map[string]int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	wanted := make(map[string]struct{}, len(agentIDs))
	for _, id := range agentIDs {
		wanted[id] = struct{}{}
	}
	counts := make(map[string]int, len(agentIDs))
	for _, t := range r.s.tickets {
		if t.AssigneeID == nil || !t.Status.IsActive() {
			continue
		}
		if _, ok := wanted[*t.AssigneeID]; ok {
			counts[*t.AssigneeID]++
		}
	}
	return counts, nil
}

func (s *MemoryStore) filterLocked(filter repository.TicketFilter) []domain.Ticket {
	var out []domain.Ticket
	for _, t := range s.tickets {
		if filter.RequesterID != nil && t.RequesterID != *filter.RequesterID {
			continue
		}
		if filter.AssigneeID != nil && (t.AssigneeID == nil || *t.AssigneeID != *filter.AssigneeID) {
			continue
		}
		if len(filter.Statuses) > 0 && !containsStatus(filter.Statuses, t.Status) {
			continue
		}
		if len(filter.Priorities) > 0 && !containsPriority(filter.Priorities, t.Priority) {
			continue
		}
		if filter.SLABreach != nil && t.SLABreach != *filter.SLABreach {
			continue
		}
		if filter.CreatedFrom != nil && t.CreatedAt.Before(*filter.CreatedFrom) {
			continue
		}
		if filter.CreatedTo != nil && t.CreatedAt.After(*filter.CreatedTo) {
			continue
		}
		if filter.After != nil && !pastCursor(t, filter.After) {
			continue
		}
		out = append(out, cloneTicket(t))
	}
	return out
}

func pastCursor(t domain.Ticket, cursor *repository.TicketCursor) bool {
	if !t.CreatedAt.Equal(cursor.CreatedAt) {
		return t.CreatedAt.After(cursor.CreatedAt)
	}
	return t.ID > cursor.ID
}

type commentStore struct{ s *MemoryStore }

func (r commentStore) Create(_ context.Context, comment *domain.TicketComment) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.tickets[comment.TicketID]; !ok {
		return errors.New("insert or update on table \"ticket_comments\" violates foreign key constraint")
	}
	comment.ID = uuid.NewString()
	if comment.CreatedAt.IsZero() {
		comment.CreatedAt = time.Now().UTC()
	}
	r.s.comments[comment.ID] = *comment
	return nil
}

func (r commentStore) ListByTicket(_ context.Context, ticketID string) ([]domain.TicketComment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []domain.TicketComment
	for _, c := range r.s.comments {
		if c.TicketID == ticketID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

type agentStore struct{ s *MemoryStore }

func (r agentStore) GetByID(_ context.Context, id string) (*domain.Agent, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	a, ok := r.s.agents[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return &a, nil
}

func (r agentStore) ListActiveByRoles(_ context.Context, roles []domain.StaffRole) ([]domain.Agent, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []domain.Agent
	for _, a := range r.s.agents {
		if !a.Active {
			continue
		}
		for _, role := range roles {
			if a.Role == role {
				out = append(out, a)
				break
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

type historyStore struct{ s *MemoryStore }

func (r historyStore) Create(_ context.Context, history *domain.TicketHistory) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	history.ID = uuid.NewString()
	history.CreatedAt = time.Now().UTC()
	r.s.history = append(r.s.history, *history)
	return nil
}

func (r historyStore) ListByTicket(_ context.Context, ticketID string, limit, offset int) ([]domain.TicketHistory, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	var out []domain.TicketHistory
	for _, h := range r.s.history {
		if h.TicketID == ticketID {
			out = append(out, h)
		}
	}
	if offset >= len(out) {
		return nil, nil
	}
	end := offset + limit
	if end > len(out) {
		end = len(out)
	}
	return out[offset:end], nil
}

func containsStatus(list []domain.TicketStatus, s domain.TicketStatus) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func containsPriority(list []domain.TicketPriority, p domain.TicketPriority) bool {
	for _, v := range list {
		if v == p {
			return true
		}
	}
	return false
}

func cloneTicket(t domain.Ticket) domain.Ticket {
	t.AssigneeID = cloneString(t.AssigneeID)
	t.ExternalKey = cloneString(t.ExternalKey)
	t.Tags = append([]string{}, t.Tags...)
	t.SLAResponseMinutes = cloneInt(t.SLAResponseMinutes)
	t.SLAResolveMinutes = cloneInt(t.SLAResolveMinutes)
	t.FirstResponseAt = cloneTime(t.FirstResponseAt)
	t.ResolvedAt = cloneTime(t.ResolvedAt)
	t.ClosedAt = cloneTime(t.ClosedAt)
	return t
}

func cloneString(v *string) *string {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func cloneInt(v *int) *int {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func cloneTime(v *time.Time) *time.Time {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}
