package handlers

import (
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/whatsdesk/whatsdesk/internal/api/dto"
	"github.com/whatsdesk/whatsdesk/internal/auth"
	"github.com/whatsdesk/whatsdesk/internal/domain"
	"github.com/whatsdesk/whatsdesk/internal/service"
	apperrors "github.com/whatsdesk/whatsdesk/pkg/util"
)

// TicketsHandler manages the ticket lifecycle endpoints.
type TicketsHandler struct {
	tickets     *service.TicketService
	assignments *service.AssignmentService
}

// NewTicketsHandler constructs handler.
func NewTicketsHandler(tickets *service.TicketService, assignments *service.AssignmentService) *TicketsHandler {
	return &TicketsHandler{tickets: tickets, assignments: assignments}
}

// Open POST /tickets.
func (h *TicketsHandler) Open(c *fiber.Ctx) error {
	if _, err := auth.AgentID(c); err != nil {
		return err
	}
	var req dto.OpenTicketRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if req.ConversationID == "" || req.DepartmentID == "" {
		return apperrors.NewValidationError("conversation_id and department_id required", nil)
	}

	ticket, err := h.tickets.Open(c.UserContext(), req.ConversationID, req.DepartmentID, req.Priority)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": ticketSummary(ticket)})
}

// List GET /tickets.
func (h *TicketsHandler) List(c *fiber.Ctx) error {
	tickets, err := h.tickets.ListTickets(c.UserContext(), parseTicketQuery(c))
	if err != nil {
		return err
	}
	items := make([]dto.TicketSummary, 0, len(tickets))
	for i := range tickets {
		items = append(items, ticketSummary(&tickets[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// Get GET /tickets/:id.
func (h *TicketsHandler) Get(c *fiber.Ctx) error {
	ticket, err := h.tickets.GetTicket(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	assignments, err := h.tickets.ListAssignments(c.UserContext(), ticket.ID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketDetail(ticket, assignments)})
}

// Claim POST /tickets/:id/claim.
func (h *TicketsHandler) Claim(c *fiber.Ctx) error {
	agentID, err := auth.AgentID(c)
	if err != nil {
		return err
	}
	ticket, err := h.assignments.Claim(c.UserContext(), c.Params("id"), agentID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketSummary(ticket)})
}

// Transfer POST /tickets/:id/transfer.
func (h *TicketsHandler) Transfer(c *fiber.Ctx) error {
	agentID, err := auth.AgentID(c)
	if err != nil {
		return err
	}
	var req dto.TransferTicketRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	ticket, err := h.assignments.Transfer(c.UserContext(), c.Params("id"), agentID, req.ToAgentID, req.DepartmentID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketSummary(ticket)})
}

// Release POST /tickets/:id/release.
func (h *TicketsHandler) Release(c *fiber.Ctx) error {
	agentID, err := auth.AgentID(c)
	if err != nil {
		return err
	}
	ticket, err := h.assignments.Release(c.UserContext(), c.Params("id"), agentID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketSummary(ticket)})
}

// Close POST /tickets/:id/close.
func (h *TicketsHandler) Close(c *fiber.Ctx) error {
	agentID, err := auth.AgentID(c)
	if err != nil {
		return err
	}
	var req dto.CloseTicketRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	ticket, err := h.tickets.Close(c.UserContext(), c.Params("id"), agentID, req.Subject)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketSummary(ticket)})
}

func parseTicketQuery(c *fiber.Ctx) service.TicketListFilter {
	filter := service.TicketListFilter{}
	if departmentID := c.Query("department_id"); departmentID != "" {
		filter.DepartmentID = &departmentID
	}
	if agentID := c.Query("agent_id"); agentID != "" {
		filter.AgentID = &agentID
	}
	if statusStr := c.Query("status"); statusStr != "" {
		for _, part := range strings.Split(statusStr, ",") {
			filter.Statuses = append(filter.Statuses, domain.TicketStatus(strings.ToUpper(strings.TrimSpace(part))))
		}
	}
	if term := c.Query("subject"); term != "" {
		filter.SubjectTerm = &term
	}
	if from := parseTime(c.Query("created_from")); from != nil {
		filter.CreatedFrom = from
	}
	if to := parseTime(c.Query("created_to")); to != nil {
		filter.CreatedTo = to
	}
	filter.Limit, filter.Offset = parsePage(c)
	return filter
}

func parsePage(c *fiber.Ctx) (limit, offset int) {
	page := parseInt(c.Query("page"), 1)
	pageSize := parseInt(c.Query("page_size"), 50)
	return pageSize, (page - 1) * pageSize
}

func parseTime(val string) *time.Time {
	if val == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, val)
	if err != nil {
		return nil
	}
	return &t
}

func parseInt(val string, def int) int {
	if val == "" {
		return def
	}
	parsed, err := strconv.Atoi(val)
	if err != nil || parsed <= 0 {
		return def
	}
	return parsed
}

func ticketSummary(ticket *domain.Ticket) dto.TicketSummary {
	return dto.TicketSummary{
		ID:             ticket.ID,
		ConversationID: ticket.ConversationID,
		DepartmentID:   ticket.DepartmentID,
		AgentID:        ticket.AgentID,
		Status:         ticket.Status,
		Priority:       ticket.Priority,
		Subject:        ticket.Subject,
		CreatedAt:      ticket.CreatedAt,
		UpdatedAt:      ticket.UpdatedAt,
		ClosedAt:       ticket.ClosedAt,
	}
}

func ticketDetail(ticket *domain.Ticket, assignments []domain.Assignment) dto.TicketDetailResponse {
	items := make([]dto.AssignmentResponse, 0, len(assignments))
	for _, assignment := range assignments {
		items = append(items, dto.AssignmentResponse{
			ID:        assignment.ID,
			TicketID:  assignment.TicketID,
			AgentID:   assignment.AgentID,
			Status:    assignment.Status,
			ClaimedAt: assignment.ClaimedAt,
			ClosedAt:  assignment.ClosedAt,
		})
	}
	return dto.TicketDetailResponse{
		TicketSummary: ticketSummary(ticket),
		Assignments:   items,
	}
}
