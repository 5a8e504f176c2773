package domain

import "time"

// MessageDirection indicates message flow relative to the shared channel.
type MessageDirection string

const (
	DirectionInbound  MessageDirection = "INBOUND"
	DirectionOutbound MessageDirection = "OUTBOUND"
)

// Message is one entry in a conversation's append-only log. TicketID is nil
// for messages that arrived while no ticket was open yet (system notices,
// pre-queue contacts); rows are never mutated after creation.
type Message struct {
	ID                string
	ConversationID    string
	TicketID          *string
	AgentID           *string
	Direction         MessageDirection
	Body              string
	MediaURL          *string
	MediaType         *string
	ProviderMessageID *string
	CreatedAt         time.Time
}
