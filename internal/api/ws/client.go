package ws

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
)

// Client is one agent's websocket session.
type Client struct {
	hub     *Hub
	conn    *websocket.Conn
	agentID string
	send    chan []byte
}

// UpgradeMiddleware gates the websocket route: the request must be an
// upgrade and must carry a valid socket token in the query string.
func UpgradeMiddleware(secret string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !websocket.IsWebSocketUpgrade(c) {
			return fiber.ErrUpgradeRequired
		}
		agentID, err := ParseSocketToken(secret, c.Query("token"))
		if err != nil {
			return fiber.ErrUnauthorized
		}
		c.Locals("agent_id", agentID)
		return c.Next()
	}
}

// Handler upgrades the connection and pumps messages until either side
// closes. Origins are enforced by the websocket config.
func (h *Hub) Handler(allowedOrigins []string) fiber.Handler {
	cfg := websocket.Config{}
	if len(allowedOrigins) > 0 && allowedOrigins[0] != "*" {
		cfg.Origins = allowedOrigins
	}
	return websocket.New(func(conn *websocket.Conn) {
		agentID, _ := conn.Locals("agent_id").(string)
		client := &Client{
			hub:     h,
			conn:    conn,
			agentID: agentID,
			send:    make(chan []byte, h.clientBuffer),
		}
		h.register <- client
		go client.writePump()
		client.readPump()
	}, cfg)
}

// readPump drains the connection; agents only send pongs.
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
