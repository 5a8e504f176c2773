package events

import (
	"time"

	"github.com/whatsdesk/whatsdesk/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventTicketCreated       EventType = "ticket_created"
	EventTicketClaimed       EventType = "ticket_claimed"
	EventTicketTransferred   EventType = "ticket_transferred"
	EventTicketReleased      EventType = "ticket_released"
	EventTicketClosed        EventType = "ticket_closed"
	EventMessageAdded        EventType = "message_added"
	EventChannelStateChanged EventType = "channel_state_changed"
)

// Event represents a domain event emitted by services.
type Event struct {
	ID             string      `json:"id"`
	Type           EventType   `json:"type"`
	ConversationID string      `json:"conversation_id,omitempty"`
	TicketID       string      `json:"ticket_id,omitempty"`
	AgentID        *string     `json:"agent_id,omitempty"`
	Timestamp      time.Time   `json:"timestamp"`
	Payload        interface{} `json:"payload"`
}

// TicketCreatedPayload payload.
type TicketCreatedPayload struct {
	DepartmentID string                `json:"department_id"`
	Priority     domain.TicketPriority `json:"priority"`
}

// TicketClaimedPayload payload.
type TicketClaimedPayload struct {
	AgentID string `json:"agent_id"`
}

// TicketTransferredPayload payload.
type TicketTransferredPayload struct {
	FromAgentID  string  `json:"from_agent_id"`
	ToAgentID    *string `json:"to_agent_id,omitempty"`
	DepartmentID string  `json:"department_id"`
	Requeued     bool    `json:"requeued"`
}

// TicketReleasedPayload payload.
type TicketReleasedPayload struct {
	AgentID      string `json:"agent_id"`
	DepartmentID string `json:"department_id"`
}

// TicketClosedPayload payload.
type TicketClosedPayload struct {
	AgentID string `json:"agent_id"`
	Subject string `json:"subject"`
}

// MessageAddedPayload payload.
type MessageAddedPayload struct {
	MessageID   string                  `json:"message_id"`
	Direction   domain.MessageDirection `json:"direction"`
	BodyPreview string                  `json:"body_preview"`
	MediaURL    *string                 `json:"media_url,omitempty"`
}

// ChannelStateChangedPayload payload. QRCode is set only while the session
// awaits handshake.
type ChannelStateChangedPayload struct {
	State  string `json:"state"`
	QRCode string `json:"qr_code,omitempty"`
}
