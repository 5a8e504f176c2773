package domain

import "time"

// AssignmentStatus tracks whether an ownership window is still open.
type AssignmentStatus string

const (
	AssignmentStatusActive      AssignmentStatus = "ACTIVE"
	AssignmentStatusTransferred AssignmentStatus = "TRANSFERRED"
	AssignmentStatusReleased    AssignmentStatus = "RELEASED"
	AssignmentStatusClosed      AssignmentStatus = "CLOSED"
)

// Assignment is the audit record for one agent's ownership window over a
// ticket. Handoffs close the current row and open a new one, so the rows
// answer "who owned this conversation, when" independent of ticket subject.
type Assignment struct {
	ID        string
	TicketID  string
	AgentID   string
	Status    AssignmentStatus
	ClaimedAt time.Time
	ClosedAt  *time.Time
}
