package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/whatsdesk/whatsdesk/internal/domain"
)

// AssignmentRepository reads the handoff audit trail. Rows are written only
// inside the ticket repository's ownership transactions.
type AssignmentRepository interface {
	ListByTicket(ctx context.Context, ticketID string) ([]domain.Assignment, error)
	GetOpenByTicket(ctx context.Context, ticketID string) (*domain.Assignment, error)
}

type assignmentRepository struct {
	pool *pgxpool.Pool
}

// NewAssignmentRepository builds repository.
func NewAssignmentRepository(pool *pgxpool.Pool) AssignmentRepository {
	return &assignmentRepository{pool: pool}
}

func (r *assignmentRepository) ListByTicket(ctx context.Context, ticketID string) ([]domain.Assignment, error) {
	const query = `
        SELECT id, ticket_id, agent_id, status, claimed_at, closed_at
        FROM assignments WHERE ticket_id=$1 ORDER BY claimed_at ASC`
	rows, err := r.pool.Query(ctx, query, ticketID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Assignment
	for rows.Next() {
		var assignment domain.Assignment
		if err := rows.Scan(
			&assignment.ID,
			&assignment.TicketID,
			&assignment.AgentID,
			&assignment.Status,
			&assignment.ClaimedAt,
			&assignment.ClosedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, assignment)
	}
	return result, rows.Err()
}

func (r *assignmentRepository) GetOpenByTicket(ctx context.Context, ticketID string) (*domain.Assignment, error) {
	const query = `
        SELECT id, ticket_id, agent_id, status, claimed_at, closed_at
        FROM assignments WHERE ticket_id=$1 AND status='ACTIVE'`
	var assignment domain.Assignment
	if err := r.pool.QueryRow(ctx, query, ticketID).Scan(
		&assignment.ID,
		&assignment.TicketID,
		&assignment.AgentID,
		&assignment.Status,
		&assignment.ClaimedAt,
		&assignment.ClosedAt,
	); err != nil {
		return nil, err
	}
	return &assignment, nil
}
