package dto

import (
	"time"

	"github.com/whatsdesk/whatsdesk/internal/domain"
)

// OpenTicketRequest payload.
type OpenTicketRequest struct {
	ConversationID string                `json:"conversation_id"`
	DepartmentID   string                `json:"department_id"`
	Priority       domain.TicketPriority `json:"priority,omitempty"`
}

// TransferTicketRequest payload. A nil ToAgentID requeues the ticket in the
// target (or current) department.
type TransferTicketRequest struct {
	ToAgentID    *string `json:"to_agent_id,omitempty"`
	DepartmentID *string `json:"department_id,omitempty"`
}

// CloseTicketRequest payload.
type CloseTicketRequest struct {
	Subject string `json:"subject"`
}

// TicketSummary response.
type TicketSummary struct {
	ID             string                `json:"id"`
	ConversationID string                `json:"conversation_id"`
	DepartmentID   string                `json:"department_id"`
	AgentID        *string               `json:"agent_id,omitempty"`
	Status         domain.TicketStatus   `json:"status"`
	Priority       domain.TicketPriority `json:"priority"`
	Subject        *string               `json:"subject,omitempty"`
	CreatedAt      time.Time             `json:"created_at"`
	UpdatedAt      time.Time             `json:"updated_at"`
	ClosedAt       *time.Time            `json:"closed_at,omitempty"`
}

// TicketDetailResponse adds the handoff trail to the summary.
type TicketDetailResponse struct {
	TicketSummary
	Assignments []AssignmentResponse `json:"assignments"`
}

// AssignmentResponse is one handoff audit entry.
type AssignmentResponse struct {
	ID        string                  `json:"id"`
	TicketID  string                  `json:"ticket_id"`
	AgentID   string                  `json:"agent_id"`
	Status    domain.AssignmentStatus `json:"status"`
	ClaimedAt time.Time               `json:"claimed_at"`
	ClosedAt  *time.Time              `json:"closed_at,omitempty"`
}
