package repository

import (
	"context"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ticketsla/sla-engine/internal/domain"
)

// TicketFilter captures ticket search parameters.
type TicketFilter struct {
	RequesterID *string
	AssigneeID  *string
	Statuses    []domain.TicketStatus
	Priorities  []domain.TicketPriority
	SLABreach   *bool
	CreatedFrom *time.Time
	CreatedTo   *time.Time
	// OldestFirst orders by created_at, id ascending (stable for paging sweeps);
	// otherwise most recently updated first.
	OldestFirst bool
	// After resumes an OldestFirst scan strictly past the cursor. Unlike Offset it does
	// not drift when earlier rows leave the result set mid-scan.
	After  *TicketCursor
	Limit  int
	Offset int
}

// TicketCursor is a keyset position in (created_at, id) order.
type TicketCursor struct {
	CreatedAt time.Time
	ID        string
}

// CursorAfter returns the keyset position of ticket.
func CursorAfter(ticket domain.Ticket) *TicketCursor {
	return &TicketCursor{CreatedAt: ticket.CreatedAt, ID: ticket.ID}
}

// TicketRepository encapsulates ticket persistence.
//
// Update never writes sla_breach or first_response_at; those change only through
// the conditional writes SetSLABreach and MarkFirstResponse. resolved_at and
// closed_at are latches: once set, Update keeps the stored value.
type TicketRepository interface {
	Create(ctx context.Context, ticket *domain.Ticket) error
	Update(ctx context.Context, ticket *domain.Ticket) error
	GetByID(ctx context.Context, id string) (*domain.Ticket, error)
	ListWithFilter(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error)
	Count(ctx context.Context, filter TicketFilter) (int, error)
	// SetSLABreach flips the breach flag only if it differs; true means this call made the transition.
	SetSLABreach(ctx context.Context, id string, breached bool) (bool, error)
	// MarkFirstResponse stamps first_response_at only if unset; true means this call stamped it.
	MarkFirstResponse(ctx context.Context, id string, at time.Time) (bool, error)
	// CountActiveByAssignee counts OPEN/IN_PROGRESS tickets per agent id.
	CountActiveByAssignee(ctx context.Context, agentIDs []string) (map[string]int, error)
}

type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// isUUID reports whether id can name a row keyed by a UUID column. Anything else
// cannot exist, so callers answer "no rows" without a round trip.
func isUUID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

// unmatchable reports whether the filter names an assignee that cannot exist.
func (f TicketFilter) unmatchable() bool {
	return f.AssigneeID != nil && !isUUID(*f.AssigneeID)
}

const ticketColumns = `id, external_key, requester_id, assigned_agent_id, title, description, status, priority, tags,
        sla_response_minutes, sla_resolve_minutes, sla_breach, first_response_at, resolved_at, closed_at,
        created_at, updated_at`

type ticketRepository struct {
	db querier
}

// NewTicketRepository instantiates repository.
func NewTicketRepository(pool *pgxpool.Pool) TicketRepository {
	return &ticketRepository{db: pool}
}

func (r *ticketRepository) Create(ctx context.Context, ticket *domain.Ticket) error {
	const query = `
        INSERT INTO tickets (external_key, requester_id, assigned_agent_id, title, description, status, priority, tags,
            sla_response_minutes, sla_resolve_minutes, created_at, updated_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$11)
        RETURNING id, created_at, updated_at`
	return r.db.QueryRow(ctx, query,
		ticket.ExternalKey,
		ticket.RequesterID,
		ticket.AssigneeID,
		ticket.Title,
		ticket.Description,
		ticket.Status,
		ticket.Priority,
		nonNilTags(ticket.Tags),
		ticket.SLAResponseMinutes,
		ticket.SLAResolveMinutes,
		ticket.CreatedAt,
	).Scan(&ticket.ID, &ticket.CreatedAt, &ticket.UpdatedAt)
}

func (r *ticketRepository) Update(ctx context.Context, ticket *domain.Ticket) error {
	if !isUUID(ticket.ID) {
		return pgx.ErrNoRows
	}
	const query = `
        UPDATE tickets SET assigned_agent_id=$1, title=$2, description=$3, status=$4, priority=$5, tags=$6,
            sla_response_minutes=$7, sla_resolve_minutes=$8,
            resolved_at=COALESCE(resolved_at, $9), closed_at=COALESCE(closed_at, $10), updated_at=NOW()
        WHERE id=$11
        RETURNING sla_breach, first_response_at, resolved_at, closed_at, updated_at`
	return r.db.QueryRow(ctx, query,
		ticket.AssigneeID,
		ticket.Title,
		ticket.Description,
		ticket.Status,
		ticket.Priority,
		nonNilTags(ticket.Tags),
		ticket.SLAResponseMinutes,
		ticket.SLAResolveMinutes,
		ticket.ResolvedAt,
		ticket.ClosedAt,
		ticket.ID,
	).Scan(&ticket.SLABreach, &ticket.FirstResponseAt, &ticket.ResolvedAt, &ticket.ClosedAt, &ticket.UpdatedAt)
}

func (r *ticketRepository) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	if !isUUID(id) {
		return nil, pgx.ErrNoRows
	}
	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE id=$1`
	var ticket domain.Ticket
	if err := scanTicket(r.db.QueryRow(ctx, query, id), &ticket); err != nil {
		return nil, err
	}
	return &ticket, nil
}

func (r *ticketRepository) ListWithFilter(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error) {
	if filter.unmatchable() {
		return nil, nil
	}
	builder := applyTicketFilter(psql.Select(ticketColumns).From("tickets"), filter)
	if filter.OldestFirst {
		builder = builder.OrderBy("created_at ASC", "id ASC")
	} else {
		builder = builder.OrderBy("updated_at DESC", "id ASC")
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	builder = builder.Limit(uint64(limit)).Offset(uint64(offset))

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTickets(rows)
}

func (r *ticketRepository) Count(ctx context.Context, filter TicketFilter) (int, error) {
	if filter.unmatchable() {
		return 0, nil
	}
	query, args, err := applyTicketFilter(psql.Select("COUNT(*)").From("tickets"), filter).ToSql()
	if err != nil {
		return 0, err
	}
	var count int
	if err := r.db.QueryRow(ctx, query, args...).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

func (r *ticketRepository) SetSLABreach(ctx context.Context, id string, breached bool) (bool, error) {
	if !isUUID(id) {
		return false, nil
	}
	const query = `
        UPDATE tickets SET sla_breach=$2, updated_at=NOW()
        WHERE id=$1 AND sla_breach IS DISTINCT FROM $2`
	cmd, err := r.db.Exec(ctx, query, id, breached)
	if err != nil {
		return false, err
	}
	return cmd.RowsAffected() == 1, nil
}

func (r *ticketRepository) MarkFirstResponse(ctx context.Context, id string, at time.Time) (bool, error) {
	if !isUUID(id) {
		return false, nil
	}
	const query = `
        UPDATE tickets SET first_response_at=$2, updated_at=NOW()
        WHERE id=$1 AND first_response_at IS NULL`
	cmd, err := r.db.Exec(ctx, query, id, at)
	if err != nil {
		return false, err
	}
	return cmd.RowsAffected() == 1, nil
}

func (r *ticketRepository) CountActiveByAssignee(ctx context.Context, agentIDs []string) (map[string]int, error) {
	counts := make(map[string]int, len(agentIDs))
	ids := make([]string, 0, len(agentIDs))
	for _, id := range agentIDs {
		if isUUID(id) {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return counts, nil
	}
	query, args, err := psql.Select("assigned_agent_id", "COUNT(*)").
		From("tickets").
		Where(sq.Eq{"status": domain.ActiveStatuses, "assigned_agent_id": ids}).
		GroupBy("assigned_agent_id").
		ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			agentID string
			count   int
		)
		if err := rows.Scan(&agentID, &count); err != nil {
			return nil, err
		}
		counts[agentID] = count
	}
	return counts, rows.Err()
}

func applyTicketFilter(builder sq.SelectBuilder, filter TicketFilter) sq.SelectBuilder {
	if filter.RequesterID != nil {
		builder = builder.Where(sq.Eq{"requester_id": *filter.RequesterID})
	}
	if filter.AssigneeID != nil {
		builder = builder.Where(sq.Eq{"assigned_agent_id": *filter.AssigneeID})
	}
	if len(filter.Statuses) > 0 {
		builder = builder.Where(sq.Eq{"status": filter.Statuses})
	}
	if len(filter.Priorities) > 0 {
		builder = builder.Where(sq.Eq{"priority": filter.Priorities})
	}
	if filter.SLABreach != nil {
		builder = builder.Where(sq.Eq{"sla_breach": *filter.SLABreach})
	}
	if filter.CreatedFrom != nil {
		builder = builder.Where(sq.GtOrEq{"created_at": *filter.CreatedFrom})
	}
	if filter.CreatedTo != nil {
		builder = builder.Where(sq.LtOrEq{"created_at": *filter.CreatedTo})
	}
	if filter.After != nil {
		builder = builder.Where(sq.Expr("(created_at, id) > (?, ?)", filter.After.CreatedAt, filter.After.ID))
	}
	return builder
}

func scanTicket(row pgx.Row, ticket *domain.Ticket) error {
	return row.Scan(
		&ticket.ID,
		&ticket.ExternalKey,
		&ticket.RequesterID,
		&ticket.AssigneeID,
		&ticket.Title,
		&ticket.Description,
		&ticket.Status,
		&ticket.Priority,
		&ticket.Tags,
		&ticket.SLAResponseMinutes,
		&ticket.SLAResolveMinutes,
		&ticket.SLABreach,
		&ticket.FirstResponseAt,
		&ticket.ResolvedAt,
		&ticket.ClosedAt,
		&ticket.CreatedAt,
		&ticket.UpdatedAt,
	)
}

func scanTickets(rows pgx.Rows) ([]domain.Ticket, error) {
	var result []domain.Ticket
	for rows.Next() {
		var ticket domain.Ticket
		if err := scanTicket(rows, &ticket); err != nil {
			return nil, err
		}
		result = append(result, ticket)
	}
	return result, rows.Err()
}

func nonNilTags(tags []string) []string {
	if tags == nil {
		return []string{}
	}
	return tags
}
