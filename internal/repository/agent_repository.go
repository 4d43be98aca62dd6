package repository

import (
	"context"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ticketsla/sla-engine/internal/domain"
)

// AgentRepository reads staff members eligible for ticket work.
type AgentRepository interface {
	GetByID(ctx context.Context, id string) (*domain.Agent, error)
	// ListActiveByRoles returns active agents holding any of roles, ordered by id.
	ListActiveByRoles(ctx context.Context, roles []domain.StaffRole) ([]domain.Agent, error)
}

type agentRepository struct {
	db querier
}

// NewAgentRepository instantiates the repository.
func NewAgentRepository(pool *pgxpool.Pool) AgentRepository {
	return &agentRepository{db: pool}
}

const agentColumns = `id, name, email, role, active_flag, created_at, updated_at`

func (r *agentRepository) GetByID(ctx context.Context, id string) (*domain.Agent, error) {
	if !isUUID(id) {
		return nil, pgx.ErrNoRows
	}
	query := `SELECT ` + agentColumns + ` FROM staff_members WHERE id=$1`
	var agent domain.Agent
	if err := scanAgent(r.db.QueryRow(ctx, query, id), &agent); err != nil {
		return nil, err
	}
	return &agent, nil
}

func (r *agentRepository) ListActiveByRoles(ctx context.Context, roles []domain.StaffRole) ([]domain.Agent, error) {
	if len(roles) == 0 {
		return nil, nil
	}
	query, args, err := psql.Select(agentColumns).
		From("staff_members").
		Where(sq.Eq{"active_flag": true, "role": roles}).
		OrderBy("id ASC").
		ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Agent
	for rows.Next() {
		var agent domain.Agent
		if err := scanAgent(rows, &agent); err != nil {
			return nil, err
		}
		result = append(result, agent)
	}
	return result, rows.Err()
}

func scanAgent(row pgx.Row, agent *domain.Agent) error {
	return row.Scan(
		&agent.ID,
		&agent.Name,
		&agent.Email,
		&agent.Role,
		&agent.Active,
		&agent.CreatedAt,
		&agent.UpdatedAt,
	)
}
