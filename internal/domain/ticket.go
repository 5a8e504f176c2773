package domain

import "time"

// TicketStatus enumerates lifecycle states for tickets.
type TicketStatus string

const (
	TicketStatusQueued TicketStatus = "QUEUED"
	TicketStatusActive TicketStatus = "ACTIVE"
	TicketStatusClosed TicketStatus = "CLOSED"
)

// TicketPriority enumerates queue urgency; Rank orders the department queue.
type TicketPriority string

const (
	TicketPriorityUrgent TicketPriority = "URGENT"
	TicketPriorityHigh   TicketPriority = "HIGH"
	TicketPriorityNormal TicketPriority = "NORMAL"
	TicketPriorityLow    TicketPriority = "LOW"
)

// Rank returns the queue ordering key; lower sorts first.
func (p TicketPriority) Rank() int {
	switch p {
	case TicketPriorityUrgent:
		return 0
	case TicketPriorityHigh:
		return 1
	case TicketPriorityNormal:
		return 2
	case TicketPriorityLow:
		return 3
	default:
		return 4
	}
}

// Ticket is a bounded service episode for one conversation.
// Invariant: at most one ticket per conversation is open
// (status QUEUED or ACTIVE) at any time.
type Ticket struct {
	ID             string
	ConversationID string
	DepartmentID   string
	AgentID        *string
	Status         TicketStatus
	Priority       TicketPriority
	Subject        *string
	CreatedAt      time.Time
	UpdatedAt      time.Time
	ClosedAt       *time.Time
}

// Open reports whether the ticket still binds its conversation.
func (t *Ticket) Open() bool {
	return t.Status == TicketStatusQueued || t.Status == TicketStatusActive
}
