package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/whatsdesk/whatsdesk/internal/domain"
)

// ErrConversationExists is returned when another writer created the
// conversation for this address first.
var ErrConversationExists = errors.New("conversation already exists for address")

// ConversationRepository maps external chat identities to conversations.
type ConversationRepository interface {
	Create(ctx context.Context, conversation *domain.Conversation) error
	GetByID(ctx context.Context, id string) (*domain.Conversation, error)
	GetByAddress(ctx context.Context, address string) (*domain.Conversation, error)
	List(ctx context.Context, limit, offset int) ([]domain.Conversation, error)
	BumpActivity(ctx context.Context, id string, at time.Time, unreadDelta int) error
	ResetUnread(ctx context.Context, id string) error
}

type conversationRepository struct {
	pool *pgxpool.Pool
}

// NewConversationRepository builds the repository.
func NewConversationRepository(pool *pgxpool.Pool) ConversationRepository {
	return &conversationRepository{pool: pool}
}

const conversationColumns = `id, customer_id, address, display_name, unread_count, last_activity_at, created_at`

func (r *conversationRepository) Create(ctx context.Context, conversation *domain.Conversation) error {
	const query = `
        INSERT INTO conversations (customer_id, address, display_name)
        VALUES ($1,$2,$3)
        RETURNING id, unread_count, last_activity_at, created_at`
	err := r.pool.QueryRow(ctx, query,
		conversation.CustomerID,
		conversation.Address,
		conversation.DisplayName,
	).Scan(&conversation.ID, &conversation.UnreadCount, &conversation.LastActivityAt, &conversation.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return ErrConversationExists
		}
		return err
	}
	return nil
}

func (r *conversationRepository) GetByID(ctx context.Context, id string) (*domain.Conversation, error) {
	return r.fetchSingle(ctx, `SELECT `+conversationColumns+` FROM conversations WHERE id=$1`, id)
}

func (r *conversationRepository) GetByAddress(ctx context.Context, address string) (*domain.Conversation, error) {
	return r.fetchSingle(ctx, `SELECT `+conversationColumns+` FROM conversations WHERE address=$1`, address)
}

func (r *conversationRepository) fetchSingle(ctx context.Context, query string, arg any) (*domain.Conversation, error) {
	var conversation domain.Conversation
	if err := r.pool.QueryRow(ctx, query, arg).Scan(
		&conversation.ID,
		&conversation.CustomerID,
		&conversation.Address,
		&conversation.DisplayName,
		&conversation.UnreadCount,
		&conversation.LastActivityAt,
		&conversation.CreatedAt,
	); err != nil {
		return nil, err
	}
	return &conversation, nil
}

func (r *conversationRepository) List(ctx context.Context, limit, offset int) ([]domain.Conversation, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	query := `SELECT ` + conversationColumns + ` FROM conversations ORDER BY last_activity_at DESC LIMIT $1 OFFSET $2`
	rows, err := r.pool.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Conversation
	for rows.Next() {
		var conversation domain.Conversation
		if err := rows.Scan(
			&conversation.ID,
			&conversation.CustomerID,
			&conversation.Address,
			&conversation.DisplayName,
			&conversation.UnreadCount,
			&conversation.LastActivityAt,
			&conversation.CreatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, conversation)
	}
	return result, rows.Err()
}

// BumpActivity advances the last-activity marker and adjusts the unread
// counter (outbound sends pass a zero delta).
func (r *conversationRepository) BumpActivity(ctx context.Context, id string, at time.Time, unreadDelta int) error {
	const query = `
        UPDATE conversations
        SET last_activity_at = GREATEST(last_activity_at, $2), unread_count = unread_count + $3
        WHERE id=$1`
	cmd, err := r.pool.Exec(ctx, query, id, at, unreadDelta)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *conversationRepository) ResetUnread(ctx context.Context, id string) error {
	const query = `UPDATE conversations SET unread_count = 0 WHERE id=$1`
	cmd, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}
