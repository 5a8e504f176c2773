package handlers

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/whatsdesk/whatsdesk/internal/api/dto"
	"github.com/whatsdesk/whatsdesk/internal/auth"
	"github.com/whatsdesk/whatsdesk/internal/channel"
	"github.com/whatsdesk/whatsdesk/internal/domain"
	"github.com/whatsdesk/whatsdesk/internal/service"
	apperrors "github.com/whatsdesk/whatsdesk/pkg/util"
)

// DepartmentsHandler serves departments, their queues, and channel status.
type DepartmentsHandler struct {
	queues  *service.QueueService
	session *channel.Session
}

// NewDepartmentsHandler constructs handler.
func NewDepartmentsHandler(queues *service.QueueService, session *channel.Session) *DepartmentsHandler {
	return &DepartmentsHandler{queues: queues, session: session}
}

// Create POST /departments.
func (h *DepartmentsHandler) Create(c *fiber.Ctx) error {
	if _, err := auth.AgentID(c); err != nil {
		return err
	}
	var req dto.CreateDepartmentRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	dept, err := h.queues.CreateDepartment(c.UserContext(), req.Name, req.Description)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": departmentResponse(dept)})
}

// List GET /departments.
func (h *DepartmentsHandler) List(c *fiber.Ctx) error {
	departments, err := h.queues.ListDepartments(c.UserContext())
	if err != nil {
		return err
	}
	items := make([]dto.DepartmentResponse, 0, len(departments))
	for i := range departments {
		items = append(items, departmentResponse(&departments[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// Queue GET /departments/:id/queue returns queued tickets in claim order.
func (h *DepartmentsHandler) Queue(c *fiber.Ctx) error {
	tickets, err := h.queues.Peek(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	items := make([]dto.TicketSummary, 0, len(tickets))
	for i := range tickets {
		items = append(items, ticketSummary(&tickets[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// Tickets GET /departments/:id/tickets supports dashboard status filters.
func (h *DepartmentsHandler) Tickets(c *fiber.Ctx) error {
	var statuses []domain.TicketStatus
	if statusStr := c.Query("status"); statusStr != "" {
		for _, part := range strings.Split(statusStr, ",") {
			statuses = append(statuses, domain.TicketStatus(strings.ToUpper(strings.TrimSpace(part))))
		}
	}
	tickets, err := h.queues.ListByDepartment(c.UserContext(), c.Params("id"), statuses)
	if err != nil {
		return err
	}
	items := make([]dto.TicketSummary, 0, len(tickets))
	for i := range tickets {
		items = append(items, ticketSummary(&tickets[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// ChannelStatus GET /channel/status.
func (h *DepartmentsHandler) ChannelStatus(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"data": dto.ChannelStatusResponse{
		State: string(h.session.State()),
	}})
}

func departmentResponse(dept *domain.Department) dto.DepartmentResponse {
	return dto.DepartmentResponse{
		ID:          dept.ID,
		Name:        dept.Name,
		Description: dept.Description,
		IsActive:    dept.IsActive,
		CreatedAt:   dept.CreatedAt,
	}
}
