package auth

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	apperrors "github.com/whatsdesk/whatsdesk/pkg/util"
)

const agentIDLocal = "agent_id"

// IdentityMiddleware trusts the gateway-verified X-Agent-ID header.
// Authentication itself lives in the identity collaborator in front of this
// service; endpoints that require an agent use AgentID to enforce presence.
func IdentityMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if agentID := strings.TrimSpace(c.Get("X-Agent-ID")); agentID != "" {
			c.Locals(agentIDLocal, agentID)
		}
		return c.Next()
	}
}

// AgentID extracts the acting agent from the request, or fails UNAUTHORIZED.
func AgentID(c *fiber.Ctx) (string, error) {
	agentID, _ := c.Locals(agentIDLocal).(string)
	if agentID == "" {
		return "", apperrors.NewUnauthorized("agent identity required")
	}
	return agentID, nil
}
