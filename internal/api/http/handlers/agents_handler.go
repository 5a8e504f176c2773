package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/whatsdesk/whatsdesk/internal/api/dto"
	"github.com/whatsdesk/whatsdesk/internal/api/ws"
	"github.com/whatsdesk/whatsdesk/internal/auth"
	"github.com/whatsdesk/whatsdesk/internal/config"
	"github.com/whatsdesk/whatsdesk/internal/domain"
	"github.com/whatsdesk/whatsdesk/internal/service"
	apperrors "github.com/whatsdesk/whatsdesk/pkg/util"
)

// AgentsHandler manages the agent roster and socket token minting.
type AgentsHandler struct {
	agents  *service.AgentService
	tickets *service.TicketService
	pushCfg config.PushConfig
}

// NewAgentsHandler constructs handler.
func NewAgentsHandler(agents *service.AgentService, tickets *service.TicketService, pushCfg config.PushConfig) *AgentsHandler {
	return &AgentsHandler{agents: agents, tickets: tickets, pushCfg: pushCfg}
}

// Create POST /agents.
func (h *AgentsHandler) Create(c *fiber.Ctx) error {
	var req dto.CreateAgentRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	agent, err := h.agents.CreateAgent(c.UserContext(), req.Name, req.Email)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": agentResponse(agent)})
}

// List GET /agents.
func (h *AgentsHandler) List(c *fiber.Ctx) error {
	agents, err := h.agents.ListAgents(c.UserContext())
	if err != nil {
		return err
	}
	items := make([]dto.AgentResponse, 0, len(agents))
	for i := range agents {
		items = append(items, agentResponse(&agents[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// Get GET /agents/:id.
func (h *AgentsHandler) Get(c *fiber.Ctx) error {
	agent, err := h.agents.GetAgent(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": agentResponse(agent)})
}

// SetDepartments PUT /agents/:id/departments.
func (h *AgentsHandler) SetDepartments(c *fiber.Ctx) error {
	var req dto.SetDepartmentsRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	agent, err := h.agents.SetDepartments(c.UserContext(), c.Params("id"), req.DepartmentIDs)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": agentResponse(agent)})
}

// Stats GET /agents/:id/stats.
func (h *AgentsHandler) Stats(c *fiber.Ctx) error {
	agent, err := h.agents.GetAgent(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	counts, err := h.tickets.AgentStats(c.UserContext(), agent.ID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.AgentStatsResponse{
		AgentID:       agent.ID,
		TotalTickets:  counts.Total,
		ActiveTickets: counts.Active,
	}})
}

// SocketToken POST /session/socket-token. Converts the trusted header
// identity into a short-lived token usable on the websocket upgrade.
func (h *AgentsHandler) SocketToken(c *fiber.Ctx) error {
	agentID, err := auth.AgentID(c)
	if err != nil {
		return err
	}
	if _, err := h.agents.GetAgent(c.UserContext(), agentID); err != nil {
		return err
	}
	ttl := h.pushCfg.SocketTokenTTL()
	token, err := ws.IssueSocketToken(h.pushCfg.SocketTokenSecret, agentID, ttl)
	if err != nil {
		return apperrors.NewInternalError(err)
	}
	return c.JSON(fiber.Map{"data": dto.SocketTokenResponse{
		Token:     token,
		ExpiresAt: time.Now().Add(ttl),
	}})
}

func agentResponse(agent *domain.Agent) dto.AgentResponse {
	return dto.AgentResponse{
		ID:            agent.ID,
		Name:          agent.Name,
		Email:         agent.Email,
		Active:        agent.Active,
		DepartmentIDs: agent.DepartmentIDs,
		CreatedAt:     agent.CreatedAt,
	}
}
