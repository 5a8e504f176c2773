package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/whatsdesk/whatsdesk/internal/domain"
)

// ErrEmailTaken is returned when an agent email is already registered.
var ErrEmailTaken = errors.New("email already registered")

// AgentRepository manages agent persistence and department memberships.
type AgentRepository interface {
	Create(ctx context.Context, agent *domain.Agent) error
	GetByID(ctx context.Context, id string) (*domain.Agent, error)
	GetByEmail(ctx context.Context, email string) (*domain.Agent, error)
	List(ctx context.Context) ([]domain.Agent, error)
	SetDepartments(ctx context.Context, agentID string, departmentIDs []string) error
}

type agentRepository struct {
	pool *pgxpool.Pool
}

// NewAgentRepository builds the repository.
func NewAgentRepository(pool *pgxpool.Pool) AgentRepository {
	return &agentRepository{pool: pool}
}

func (r *agentRepository) Create(ctx context.Context, agent *domain.Agent) error {
	const query = `
        INSERT INTO agents (name, email, active)
        VALUES ($1,$2,$3)
        RETURNING id, created_at, updated_at`
	err := r.pool.QueryRow(ctx, query,
		agent.Name,
		agent.Email,
		agent.Active,
	).Scan(&agent.ID, &agent.CreatedAt, &agent.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return ErrEmailTaken
		}
		return err
	}
	return nil
}

func (r *agentRepository) GetByID(ctx context.Context, id string) (*domain.Agent, error) {
	return r.fetchSingle(ctx, "a.id=$1", id)
}

func (r *agentRepository) GetByEmail(ctx context.Context, email string) (*domain.Agent, error) {
	return r.fetchSingle(ctx, "a.email=$1", email)
}

func (r *agentRepository) fetchSingle(ctx context.Context, where string, arg any) (*domain.Agent, error) {
	query := `
        SELECT a.id, a.name, a.email, a.active,
               COALESCE(ARRAY_AGG(ad.department_id::text) FILTER (WHERE ad.department_id IS NOT NULL), '{}'),
               a.created_at, a.updated_at
        FROM agents a
        LEFT JOIN agent_departments ad ON ad.agent_id = a.id
        WHERE ` + where + `
        GROUP BY a.id`
	var agent domain.Agent
	if err := r.pool.QueryRow(ctx, query, arg).Scan(
		&agent.ID,
		&agent.Name,
		&agent.Email,
		&agent.Active,
		&agent.DepartmentIDs,
		&agent.CreatedAt,
		&agent.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &agent, nil
}

func (r *agentRepository) List(ctx context.Context) ([]domain.Agent, error) {
	const query = `
        SELECT a.id, a.name, a.email, a.active,
               COALESCE(ARRAY_AGG(ad.department_id::text) FILTER (WHERE ad.department_id IS NOT NULL), '{}'),
               a.created_at, a.updated_at
        FROM agents a
        LEFT JOIN agent_departments ad ON ad.agent_id = a.id
        GROUP BY a.id
        ORDER BY a.name ASC`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Agent
	for rows.Next() {
		var agent domain.Agent
		if err := rows.Scan(
			&agent.ID,
			&agent.Name,
			&agent.Email,
			&agent.Active,
			&agent.DepartmentIDs,
			&agent.CreatedAt,
			&agent.UpdatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, agent)
	}
	return result, rows.Err()
}

// SetDepartments replaces the agent's membership set.
func (r *agentRepository) SetDepartments(ctx context.Context, agentID string, departmentIDs []string) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, `DELETE FROM agent_departments WHERE agent_id=$1`, agentID); err != nil {
		return err
	}
	for _, departmentID := range departmentIDs {
		if _, err := tx.Exec(ctx,
			`INSERT INTO agent_departments (agent_id, department_id) VALUES ($1,$2)`,
			agentID, departmentID,
		); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}
