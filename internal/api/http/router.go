package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/whatsdesk/whatsdesk/internal/api/http/handlers"
	"github.com/whatsdesk/whatsdesk/internal/api/ws"
	"github.com/whatsdesk/whatsdesk/internal/config"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health        *handlers.HealthHandler
	Conversations *handlers.ConversationsHandler
	Tickets       *handlers.TicketsHandler
	Customers     *handlers.CustomersHandler
	Agents        *handlers.AgentsHandler
	Departments   *handlers.DepartmentsHandler
	Hub           *ws.Hub
	Push          config.PushConfig
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)

	conversations := app.Group("/conversations")
	conversations.Get("/", cfg.Conversations.List)
	conversations.Get("/:id", cfg.Conversations.Get)
	conversations.Get("/:id/messages", cfg.Conversations.ListMessages)
	conversations.Post("/:id/messages", cfg.Conversations.SendMessage)
	conversations.Post("/:id/read", cfg.Conversations.MarkRead)

	tickets := app.Group("/tickets")
	tickets.Post("/", cfg.Tickets.Open)
	tickets.Get("/", cfg.Tickets.List)
	tickets.Get("/:id", cfg.Tickets.Get)
	tickets.Post("/:id/claim", cfg.Tickets.Claim)
	tickets.Post("/:id/transfer", cfg.Tickets.Transfer)
	tickets.Post("/:id/release", cfg.Tickets.Release)
	tickets.Post("/:id/close", cfg.Tickets.Close)

	customers := app.Group("/customers")
	customers.Post("/", cfg.Customers.Create)
	customers.Get("/", cfg.Customers.List)
	customers.Put("/:id", cfg.Customers.Update)
	customers.Delete("/:id", cfg.Customers.Remove)

	agents := app.Group("/agents")
	agents.Post("/", cfg.Agents.Create)
	agents.Get("/", cfg.Agents.List)
	agents.Get("/:id", cfg.Agents.Get)
	agents.Put("/:id/departments", cfg.Agents.SetDepartments)
	agents.Get("/:id/stats", cfg.Agents.Stats)

	departments := app.Group("/departments")
	departments.Post("/", cfg.Departments.Create)
	departments.Get("/", cfg.Departments.List)
	departments.Get("/:id/queue", cfg.Departments.Queue)
	departments.Get("/:id/tickets", cfg.Departments.Tickets)

	app.Get("/channel/status", cfg.Departments.ChannelStatus)

	app.Post("/session/socket-token", cfg.Agents.SocketToken)
	app.Get("/session/socket",
		ws.UpgradeMiddleware(cfg.Push.SocketTokenSecret),
		cfg.Hub.Handler(cfg.Push.AllowedOrigins),
	)
}
