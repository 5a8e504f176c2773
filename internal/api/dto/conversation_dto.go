package dto

import (
	"time"

	"github.com/whatsdesk/whatsdesk/internal/domain"
)

// ConversationSummary response.
type ConversationSummary struct {
	ID             string    `json:"id"`
	CustomerID     string    `json:"customer_id"`
	Address        string    `json:"address"`
	DisplayName    string    `json:"display_name,omitempty"`
	UnreadCount    int       `json:"unread_count"`
	LastActivityAt time.Time `json:"last_activity_at"`
	CreatedAt      time.Time `json:"created_at"`
}

// MessageResponse is one conversation log entry.
type MessageResponse struct {
	ID                string                  `json:"id"`
	ConversationID    string                  `json:"conversation_id"`
	TicketID          *string                 `json:"ticket_id,omitempty"`
	AgentID           *string                 `json:"agent_id,omitempty"`
	Direction         domain.MessageDirection `json:"direction"`
	Body              string                  `json:"body"`
	MediaURL          *string                 `json:"media_url,omitempty"`
	MediaType         *string                 `json:"media_type,omitempty"`
	ProviderMessageID *string                 `json:"provider_message_id,omitempty"`
	CreatedAt         time.Time               `json:"created_at"`
}

// SendMessageRequest payload for POST /conversations/:id/messages.
type SendMessageRequest struct {
	Body           string  `json:"body"`
	MediaURL       *string `json:"media_url,omitempty"`
	MediaType      *string `json:"media_type,omitempty"`
	MediaSizeBytes int64   `json:"media_size_bytes,omitempty"`
}
