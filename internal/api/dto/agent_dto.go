package dto

import "time"

// CreateAgentRequest payload.
type CreateAgentRequest struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// SetDepartmentsRequest replaces an agent's memberships.
type SetDepartmentsRequest struct {
	DepartmentIDs []string `json:"department_ids"`
}

// AgentResponse response.
type AgentResponse struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	Email         string    `json:"email"`
	Active        bool      `json:"active"`
	DepartmentIDs []string  `json:"department_ids"`
	CreatedAt     time.Time `json:"created_at"`
}

// AgentStatsResponse reports per-agent ticket counts.
type AgentStatsResponse struct {
	AgentID       string `json:"agent_id"`
	TotalTickets  int    `json:"total_tickets"`
	ActiveTickets int    `json:"active_tickets"`
}

// SocketTokenResponse carries a freshly minted websocket token.
type SocketTokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}
