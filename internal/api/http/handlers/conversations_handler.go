package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/whatsdesk/whatsdesk/internal/api/dto"
	"github.com/whatsdesk/whatsdesk/internal/auth"
	"github.com/whatsdesk/whatsdesk/internal/channel"
	"github.com/whatsdesk/whatsdesk/internal/domain"
	"github.com/whatsdesk/whatsdesk/internal/service"
	apperrors "github.com/whatsdesk/whatsdesk/pkg/util"
)

// ConversationsHandler serves the conversation log and outbound sending.
type ConversationsHandler struct {
	directory *service.DirectoryService
	tickets   *service.TicketService
	session   *channel.Session
}

// NewConversationsHandler constructs handler.
func NewConversationsHandler(directory *service.DirectoryService, tickets *service.TicketService, session *channel.Session) *ConversationsHandler {
	return &ConversationsHandler{directory: directory, tickets: tickets, session: session}
}

// List GET /conversations.
func (h *ConversationsHandler) List(c *fiber.Ctx) error {
	limit, offset := parsePage(c)
	conversations, err := h.directory.ListConversations(c.UserContext(), limit, offset)
	if err != nil {
		return err
	}
	items := make([]dto.ConversationSummary, 0, len(conversations))
	for i := range conversations {
		items = append(items, conversationSummary(&conversations[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// Get GET /conversations/:id.
func (h *ConversationsHandler) Get(c *fiber.Ctx) error {
	conversation, err := h.directory.GetConversation(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": conversationSummary(conversation)})
}

// ListMessages GET /conversations/:id/messages.
func (h *ConversationsHandler) ListMessages(c *fiber.Ctx) error {
	if _, err := h.directory.GetConversation(c.UserContext(), c.Params("id")); err != nil {
		return err
	}
	limit, offset := parsePage(c)
	messages, err := h.tickets.ListMessages(c.UserContext(), c.Params("id"), limit, offset)
	if err != nil {
		return err
	}
	items := make([]dto.MessageResponse, 0, len(messages))
	for i := range messages {
		items = append(items, messageResponse(&messages[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// SendMessage POST /conversations/:id/messages.
func (h *ConversationsHandler) SendMessage(c *fiber.Ctx) error {
	agentID, err := auth.AgentID(c)
	if err != nil {
		return err
	}
	var req dto.SendMessageRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}

	msg, err := h.session.Send(c.UserContext(), channel.SendRequest{
		ConversationID: c.Params("id"),
		AgentID:        agentID,
		Body:           req.Body,
		MediaURL:       req.MediaURL,
		MediaType:      req.MediaType,
		MediaSizeBytes: req.MediaSizeBytes,
	})
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": messageResponse(msg)})
}

// MarkRead POST /conversations/:id/read.
func (h *ConversationsHandler) MarkRead(c *fiber.Ctx) error {
	if _, err := auth.AgentID(c); err != nil {
		return err
	}
	if err := h.directory.MarkConversationRead(c.UserContext(), c.Params("id")); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func conversationSummary(conversation *domain.Conversation) dto.ConversationSummary {
	return dto.ConversationSummary{
		ID:             conversation.ID,
		CustomerID:     conversation.CustomerID,
		Address:        conversation.Address,
		DisplayName:    conversation.DisplayName,
		UnreadCount:    conversation.UnreadCount,
		LastActivityAt: conversation.LastActivityAt,
		CreatedAt:      conversation.CreatedAt,
	}
}

func messageResponse(msg *domain.Message) dto.MessageResponse {
	return dto.MessageResponse{
		ID:                msg.ID,
		ConversationID:    msg.ConversationID,
		TicketID:          msg.TicketID,
		AgentID:           msg.AgentID,
		Direction:         msg.Direction,
		Body:              msg.Body,
		MediaURL:          msg.MediaURL,
		MediaType:         msg.MediaType,
		ProviderMessageID: msg.ProviderMessageID,
		CreatedAt:         msg.CreatedAt,
	}
}
