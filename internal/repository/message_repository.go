package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/whatsdesk/whatsdesk/internal/domain"
)

// ErrDuplicateMessage is returned when a provider message id was already
// persisted; the unique index is the backstop behind the redis dedup cache.
var ErrDuplicateMessage = errors.New("provider message already persisted")

// MessageRepository manages the append-only conversation log.
type MessageRepository interface {
	Create(ctx context.Context, msg *domain.Message) error
	ListByConversation(ctx context.Context, conversationID string, limit, offset int) ([]domain.Message, error)
	ListByTicket(ctx context.Context, ticketID string) ([]domain.Message, error)
}

type messageRepository struct {
	pool *pgxpool.Pool
}

// NewMessageRepository builds repository.
func NewMessageRepository(pool *pgxpool.Pool) MessageRepository {
	return &messageRepository{pool: pool}
}

const messageColumns = `id, conversation_id, ticket_id, agent_id, direction, body, media_url, media_type, provider_message_id, created_at`

func (r *messageRepository) Create(ctx context.Context, msg *domain.Message) error {
	const query = `
        INSERT INTO messages (conversation_id, ticket_id, agent_id, direction, body, media_url, media_type, provider_message_id)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
        RETURNING id, created_at`
	err := r.pool.QueryRow(ctx, query,
		msg.ConversationID,
		msg.TicketID,
		msg.AgentID,
		msg.Direction,
		msg.Body,
		msg.MediaURL,
		msg.MediaType,
		msg.ProviderMessageID,
	).Scan(&msg.ID, &msg.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return ErrDuplicateMessage
		}
		return err
	}
	return nil
}

func (r *messageRepository) ListByConversation(ctx context.Context, conversationID string, limit, offset int) ([]domain.Message, error) {
	if limit <= 0 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	query := `SELECT ` + messageColumns + ` FROM messages WHERE conversation_id=$1 ORDER BY created_at ASC LIMIT $2 OFFSET $3`
	rows, err := r.pool.Query(ctx, query, conversationID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanMessages(rows)
}

func (r *messageRepository) ListByTicket(ctx context.Context, ticketID string) ([]domain.Message, error) {
	query := `SELECT ` + messageColumns + ` FROM messages WHERE ticket_id=$1 ORDER BY created_at ASC`
	rows, err := r.pool.Query(ctx, query, ticketID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanMessages(rows)
}

func scanMessages(rows pgx.Rows) ([]domain.Message, error) {
	var result []domain.Message
	for rows.Next() {
		var msg domain.Message
		if err := rows.Scan(
			&msg.ID,
			&msg.ConversationID,
			&msg.TicketID,
			&msg.AgentID,
			&msg.Direction,
			&msg.Body,
			&msg.MediaURL,
			&msg.MediaType,
			&msg.ProviderMessageID,
			&msg.CreatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, msg)
	}
	return result, rows.Err()
}
