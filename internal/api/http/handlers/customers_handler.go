package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/whatsdesk/whatsdesk/internal/api/dto"
	"github.com/whatsdesk/whatsdesk/internal/auth"
	"github.com/whatsdesk/whatsdesk/internal/domain"
	"github.com/whatsdesk/whatsdesk/internal/service"
	apperrors "github.com/whatsdesk/whatsdesk/pkg/util"
)

// CustomersHandler manages the customer directory.
type CustomersHandler struct {
	directory *service.DirectoryService
}

// NewCustomersHandler constructs handler.
func NewCustomersHandler(directory *service.DirectoryService) *CustomersHandler {
	return &CustomersHandler{directory: directory}
}

// Create POST /customers.
func (h *CustomersHandler) Create(c *fiber.Ctx) error {
	if _, err := auth.AgentID(c); err != nil {
		return err
	}
	var req dto.CustomerRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	customer, err := h.directory.CreateCustomer(c.UserContext(), service.CustomerInput{
		Name:    req.Name,
		Address: req.Address,
		Company: req.Company,
	})
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": customerResponse(customer)})
}

// List GET /customers.
func (h *CustomersHandler) List(c *fiber.Ctx) error {
	limit, offset := parsePage(c)
	customers, err := h.directory.ListCustomers(c.UserContext(), limit, offset)
	if err != nil {
		return err
	}
	items := make([]dto.CustomerResponse, 0, len(customers))
	for i := range customers {
		items = append(items, customerResponse(&customers[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// Update PUT /customers/:id.
func (h *CustomersHandler) Update(c *fiber.Ctx) error {
	if _, err := auth.AgentID(c); err != nil {
		return err
	}
	var req dto.CustomerRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	customer, err := h.directory.UpdateCustomer(c.UserContext(), c.Params("id"), service.CustomerInput{
		Name:    req.Name,
		Address: req.Address,
		Company: req.Company,
	})
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": customerResponse(customer)})
}

// Remove DELETE /customers/:id.
func (h *CustomersHandler) Remove(c *fiber.Ctx) error {
	if _, err := auth.AgentID(c); err != nil {
		return err
	}
	if err := h.directory.RemoveCustomer(c.UserContext(), c.Params("id")); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func customerResponse(customer *domain.Customer) dto.CustomerResponse {
	return dto.CustomerResponse{
		ID:        customer.ID,
		Name:      customer.Name,
		Address:   customer.Address,
		Company:   customer.Company,
		CreatedAt: customer.CreatedAt,
		UpdatedAt: customer.UpdatedAt,
	}
}
