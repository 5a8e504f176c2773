package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/whatsdesk/whatsdesk/internal/domain"
)

// ErrOpenTicketExists is returned by Create when the conversation already has
// a queued or active ticket (partial unique index violation).
var ErrOpenTicketExists = errors.New("conversation already has an open ticket")

// ErrNoMatch is returned by the conditional ownership writes when the ticket
// state did not satisfy the guard; callers re-read to classify the conflict.
var ErrNoMatch = errors.New("conditional update matched no row")

const uniqueViolation = "23505"

// TicketFilter captures dashboard search parameters.
type TicketFilter struct {
	ConversationID *string
	DepartmentID   *string
	AgentID        *string
	Statuses       []domain.TicketStatus
	SubjectTerm    *string
	CreatedFrom    *time.Time
	CreatedTo      *time.Time
	Limit          int
	Offset         int
}

// AgentTicketCounts is the per-agent stats row.
type AgentTicketCounts struct {
	Total  int
	Active int
}

// TicketRepository encapsulates ticket persistence. Claim, Transfer, Release
// and Close are single conditional writes: each transaction mutates the
// ticket row only when the guard on (status, agent_id) holds and maintains
// the assignment audit rows in the same commit.
type TicketRepository interface {
	Create(ctx context.Context, ticket *domain.Ticket) error
	GetByID(ctx context.Context, id string) (*domain.Ticket, error)
	GetOpenByConversation(ctx context.Context, conversationID string) (*domain.Ticket, error)
	ListWithFilter(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error)
	ListQueued(ctx context.Context, departmentID string) ([]domain.Ticket, error)
	CountForAgent(ctx context.Context, agentID string) (AgentTicketCounts, error)

	Claim(ctx context.Context, ticketID, agentID string) (*domain.Ticket, error)
	Transfer(ctx context.Context, ticketID, fromAgentID string, toAgentID *string, departmentID string) (*domain.Ticket, error)
	Release(ctx context.Context, ticketID, agentID string) (*domain.Ticket, error)
	Close(ctx context.Context, ticketID, agentID, subject string) (*domain.Ticket, error)
}

type ticketRepository struct {
	pool *pgxpool.Pool
}

// NewTicketRepository instantiates repository.
func NewTicketRepository(pool *pgxpool.Pool) TicketRepository {
	return &ticketRepository{pool: pool}
}

const ticketColumns = `id, conversation_id, department_id, agent_id, status, priority, subject, created_at, updated_at, closed_at`

func (r *ticketRepository) Create(ctx context.Context, ticket *domain.Ticket) error {
	const query = `
        INSERT INTO tickets (conversation_id, department_id, agent_id, status, priority)
        VALUES ($1,$2,$3,$4,$5)
        RETURNING id, created_at, updated_at`
	err := r.pool.QueryRow(ctx, query,
		ticket.ConversationID,
		ticket.DepartmentID,
		ticket.AgentID,
		ticket.Status,
		ticket.Priority,
	).Scan(&ticket.ID, &ticket.CreatedAt, &ticket.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return ErrOpenTicketExists
		}
		return err
	}
	return nil
}

func (r *ticketRepository) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	query := fmt.Sprintf(`SELECT %s FROM tickets WHERE id=$1`, ticketColumns)
	return scanTicketRow(r.pool.QueryRow(ctx, query, id))
}

func (r *ticketRepository) GetOpenByConversation(ctx context.Context, conversationID string) (*domain.Ticket, error) {
	query := fmt.Sprintf(`SELECT %s FROM tickets WHERE conversation_id=$1 AND status IN ('QUEUED','ACTIVE')`, ticketColumns)
	return scanTicketRow(r.pool.QueryRow(ctx, query, conversationID))
}

// Claim grants ownership only when the ticket is queued or active without an
// owner; anything else leaves the row untouched and reports ErrNoMatch.
func (r *ticketRepository) Claim(ctx context.Context, ticketID, agentID string) (*domain.Ticket, error) {
	return r.inTx(ctx, func(tx pgx.Tx) (*domain.Ticket, error) {
		query := fmt.Sprintf(`
            UPDATE tickets SET agent_id=$2, status='ACTIVE', updated_at=NOW()
            WHERE id=$1 AND (status='QUEUED' OR (status='ACTIVE' AND agent_id IS NULL))
            RETURNING %s`, ticketColumns)
		ticket, err := scanTicketRow(tx.QueryRow(ctx, query, ticketID, agentID))
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, ErrNoMatch
			}
			return nil, err
		}
		if err := openAssignment(ctx, tx, ticketID, agentID); err != nil {
			return nil, err
		}
		return ticket, nil
	})
}

// Transfer hands ownership to another agent, or back to the queue when
// toAgentID is nil. The guard requires fromAgentID to be the current owner.
func (r *ticketRepository) Transfer(ctx context.Context, ticketID, fromAgentID string, toAgentID *string, departmentID string) (*domain.Ticket, error) {
	return r.inTx(ctx, func(tx pgx.Tx) (*domain.Ticket, error) {
		var (
			ticket *domain.Ticket
			err    error
		)
		if toAgentID != nil {
			query := fmt.Sprintf(`
                UPDATE tickets SET agent_id=$3, department_id=$4, status='ACTIVE', updated_at=NOW()
                WHERE id=$1 AND status='ACTIVE' AND agent_id=$2
                RETURNING %s`, ticketColumns)
			ticket, err = scanTicketRow(tx.QueryRow(ctx, query, ticketID, fromAgentID, *toAgentID, departmentID))
		} else {
			query := fmt.Sprintf(`
                UPDATE tickets SET agent_id=NULL, department_id=$3, status='QUEUED', updated_at=NOW()
                WHERE id=$1 AND status='ACTIVE' AND agent_id=$2
                RETURNING %s`, ticketColumns)
			ticket, err = scanTicketRow(tx.QueryRow(ctx, query, ticketID, fromAgentID, departmentID))
		}
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, ErrNoMatch
			}
			return nil, err
		}
		if err := closeAssignment(ctx, tx, ticketID, fromAgentID, domain.AssignmentStatusTransferred); err != nil {
			return nil, err
		}
		if toAgentID != nil {
			if err := openAssignment(ctx, tx, ticketID, *toAgentID); err != nil {
				return nil, err
			}
		}
		return ticket, nil
	})
}

// Release returns an owned ticket to its department queue.
func (r *ticketRepository) Release(ctx context.Context, ticketID, agentID string) (*domain.Ticket, error) {
	return r.inTx(ctx, func(tx pgx.Tx) (*domain.Ticket, error) {
		query := fmt.Sprintf(`
            UPDATE tickets SET agent_id=NULL, status='QUEUED', updated_at=NOW()
            WHERE id=$1 AND status='ACTIVE' AND agent_id=$2
            RETURNING %s`, ticketColumns)
		ticket, err := scanTicketRow(tx.QueryRow(ctx, query, ticketID, agentID))
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, ErrNoMatch
			}
			return nil, err
		}
		if err := closeAssignment(ctx, tx, ticketID, agentID, domain.AssignmentStatusReleased); err != nil {
			return nil, err
		}
		return ticket, nil
	})
}

// Close terminates the episode; the subject is recorded on the ticket row.
func (r *ticketRepository) Close(ctx context.Context, ticketID, agentID, subject string) (*domain.Ticket, error) {
	return r.inTx(ctx, func(tx pgx.Tx) (*domain.Ticket, error) {
		query := fmt.Sprintf(`
            UPDATE tickets SET status='CLOSED', subject=$3, closed_at=NOW(), updated_at=NOW()
            WHERE id=$1 AND status='ACTIVE' AND agent_id=$2
            RETURNING %s`, ticketColumns)
		ticket, err := scanTicketRow(tx.QueryRow(ctx, query, ticketID, agentID, subject))
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, ErrNoMatch
			}
			return nil, err
		}
		if err := closeAssignment(ctx, tx, ticketID, agentID, domain.AssignmentStatusClosed); err != nil {
			return nil, err
		}
		return ticket, nil
	})
}

func (r *ticketRepository) ListWithFilter(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error) {
	base := fmt.Sprintf(`SELECT %s FROM tickets`, ticketColumns)
	clauses := []string{"1=1"}
	args := []any{}

	if filter.ConversationID != nil {
		args = append(args, *filter.ConversationID)
		clauses = append(clauses, fmt.Sprintf("conversation_id=$%d", len(args)))
	}
	if filter.DepartmentID != nil {
		args = append(args, *filter.DepartmentID)
		clauses = append(clauses, fmt.Sprintf("department_id=$%d", len(args)))
	}
	if filter.AgentID != nil {
		args = append(args, *filter.AgentID)
		clauses = append(clauses, fmt.Sprintf("agent_id=$%d", len(args)))
	}
	if len(filter.Statuses) > 0 {
		placeholders := make([]string, len(filter.Statuses))
		for i, status := range filter.Statuses {
			args = append(args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		clauses = append(clauses, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ",")))
	}
	if filter.CreatedFrom != nil {
		args = append(args, *filter.CreatedFrom)
		clauses = append(clauses, fmt.Sprintf("created_at >= $%d", len(args)))
	}
	if filter.CreatedTo != nil {
		args = append(args, *filter.CreatedTo)
		clauses = append(clauses, fmt.Sprintf("created_at <= $%d", len(args)))
	}
	if filter.SubjectTerm != nil && strings.TrimSpace(*filter.SubjectTerm) != "" {
		search := "%" + strings.ToLower(strings.TrimSpace(*filter.SubjectTerm)) + "%"
		args = append(args, search)
		clauses = append(clauses, fmt.Sprintf("LOWER(COALESCE(subject,'')) LIKE $%d", len(args)))
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	query := fmt.Sprintf(`%s WHERE %s ORDER BY updated_at DESC LIMIT %d OFFSET %d`,
		base, strings.Join(clauses, " AND "), limit, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTickets(rows)
}

// ListQueued is the derived department queue: queued tickets ordered by
// priority rank, then arrival. There is no separate queue structure; the
// ticket rows are the source of truth.
func (r *ticketRepository) ListQueued(ctx context.Context, departmentID string) ([]domain.Ticket, error) {
	query := fmt.Sprintf(`
        SELECT %s FROM tickets
        WHERE department_id=$1 AND status='QUEUED'
        ORDER BY CASE priority
            WHEN 'URGENT' THEN 0
            WHEN 'HIGH' THEN 1
            WHEN 'NORMAL' THEN 2
            WHEN 'LOW' THEN 3
            ELSE 4 END, created_at ASC`, ticketColumns)
	rows, err := r.pool.Query(ctx, query, departmentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTickets(rows)
}

func (r *ticketRepository) CountForAgent(ctx context.Context, agentID string) (AgentTicketCounts, error) {
	const query = `
        SELECT COUNT(*) FILTER (WHERE TRUE), COUNT(*) FILTER (WHERE status='ACTIVE')
        FROM tickets WHERE agent_id=$1
           OR id IN (SELECT ticket_id FROM assignments WHERE agent_id=$1)`
	var counts AgentTicketCounts
	if err := r.pool.QueryRow(ctx, query, agentID).Scan(&counts.Total, &counts.Active); err != nil {
		return AgentTicketCounts{}, err
	}
	return counts, nil
}

func (r *ticketRepository) inTx(ctx context.Context, fn func(pgx.Tx) (*domain.Ticket, error)) (*domain.Ticket, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	ticket, err := fn(tx)
	if err != nil {
		_ = tx.Rollback(ctx)
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return ticket, nil
}

func openAssignment(ctx context.Context, tx pgx.Tx, ticketID, agentID string) error {
	const query = `
        INSERT INTO assignments (ticket_id, agent_id, status)
        VALUES ($1,$2,'ACTIVE')`
	_, err := tx.Exec(ctx, query, ticketID, agentID)
	return err
}

func closeAssignment(ctx context.Context, tx pgx.Tx, ticketID, agentID string, status domain.AssignmentStatus) error {
	const query = `
        UPDATE assignments SET status=$3, closed_at=NOW()
        WHERE ticket_id=$1 AND agent_id=$2 AND status='ACTIVE'`
	_, err := tx.Exec(ctx, query, ticketID, agentID, status)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTicketRow(row rowScanner) (*domain.Ticket, error) {
	var ticket domain.Ticket
	if err := row.Scan(
		&ticket.ID,
		&ticket.ConversationID,
		&ticket.DepartmentID,
		&ticket.AgentID,
		&ticket.Status,
		&ticket.Priority,
		&ticket.Subject,
		&ticket.CreatedAt,
		&ticket.UpdatedAt,
		&ticket.ClosedAt,
	); err != nil {
		return nil, err
	}
	return &ticket, nil
}

func scanTickets(rows pgx.Rows) ([]domain.Ticket, error) {
	var result []domain.Ticket
	for rows.Next() {
		ticket, err := scanTicketRow(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *ticket)
	}
	return result, rows.Err()
}
