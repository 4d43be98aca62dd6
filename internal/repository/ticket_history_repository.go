package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ticketsla/sla-engine/internal/domain"
)

// TicketHistoryRepository is the append-only audit trail. Entries are never updated.
type TicketHistoryRepository interface {
	Create(ctx context.Context, history *domain.TicketHistory) error
	// ListByTicket pages entries oldest first; limit <= 0 means 50.
	ListByTicket(ctx context.Context, ticketID string, limit, offset int) ([]domain.TicketHistory, error)
}

type ticketHistoryRepository struct {
	db querier
}

// NewTicketHistoryRepository builds repository.
func NewTicketHistoryRepository(pool *pgxpool.Pool) TicketHistoryRepository {
	return &ticketHistoryRepository{db: pool}
}

const historyColumns = `id, ticket_id, changed_by_type, changed_by_id, change_type, old_value, new_value, created_at`

func (r *ticketHistoryRepository) Create(ctx context.Context, history *domain.TicketHistory) error {
	query, args, err := psql.Insert("ticket_history").
		Columns("ticket_id", "changed_by_type", "changed_by_id", "change_type", "old_value", "new_value").
		Values(history.TicketID, history.ChangedByType, history.ChangedByID, history.ChangeType, history.OldValue, history.NewValue).
		Suffix("RETURNING id, created_at").
		ToSql()
	if err != nil {
		return err
	}
	return r.db.QueryRow(ctx, query, args...).Scan(&history.ID, &history.CreatedAt)
}

func (r *ticketHistoryRepository) ListByTicket(ctx context.Context, ticketID string, limit, offset int) ([]domain.TicketHistory, error) {
	if !isUUID(ticketID) {
		return nil, nil
	}
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	query, args, err := psql.Select(historyColumns).
		From("ticket_history").
		Where("ticket_id = ?", ticketID).
		OrderBy("created_at ASC", "id ASC").
		Limit(uint64(limit)).
		Offset(uint64(offset)).
		ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, scanHistory)
}

func scanHistory(row pgx.CollectableRow) (domain.TicketHistory, error) {
	var h domain.TicketHistory
	err := row.Scan(
		&h.ID,
		&h.TicketID,
		&h.ChangedByType,
		&h.ChangedByID,
		&h.ChangeType,
		&h.OldValue,
		&h.NewValue,
		&h.CreatedAt,
	)
	return h, err
}
