package ws

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"github.com/whatsdesk/whatsdesk/internal/observability"
)

const broadcastBufferSize = 256

// PushMessage is the envelope written to agent sockets. Payloads carry ids
// only; clients refresh details over the HTTP surface.
type PushMessage struct {
	Kind    string      `json:"kind"`
	Payload interface{} `json:"payload,omitempty"`
}

// Hub fans push messages out to every connected agent session. Delivery is
// best-effort: a client whose buffer is full skips the message rather than
// stalling the hub, and clients reconcile through a full refresh.
type Hub struct {
	clients    map[*Client]struct{}
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client

	clientBuffer int
	metrics      *observability.Metrics
	logger       *zap.Logger
}

// NewHub creates the hub; Run must be started before clients attach.
func NewHub(clientBuffer int, metrics *observability.Metrics, logger *zap.Logger) *Hub {
	if clientBuffer <= 0 {
		clientBuffer = 64
	}
	return &Hub{
		clients:      make(map[*Client]struct{}),
		broadcast:    make(chan []byte, broadcastBufferSize),
		register:     make(chan *Client),
		unregister:   make(chan *Client),
		clientBuffer: clientBuffer,
		metrics:      metrics,
		logger:       logger,
	}
}

// Run drives registration and fan-out until the context is canceled.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			for client := range h.clients {
				close(client.send)
				delete(h.clients, client)
			}
			return

		case client := <-h.register:
			h.clients[client] = struct{}{}
			h.logger.Info("agent socket connected",
				zap.String("agent_id", client.agentID),
				zap.Int("total", len(h.clients)),
			)

		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			h.logger.Info("agent socket disconnected",
				zap.String("agent_id", client.agentID),
				zap.Int("total", len(h.clients)),
			)

		case message := <-h.broadcast:
			delivered := 0
			for client := range h.clients {
				select {
				case client.send <- message:
					delivered++
				default:
					// Slow client; it reconciles on its next refresh.
				}
			}
			h.metrics.RecordPush(pushKind(message), delivered)
		}
	}
}

// Push queues a message for all connected agents. Non-blocking: when the
// broadcast buffer is full the message is dropped.
func (h *Hub) Push(msg PushMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("push marshal failed", zap.String("kind", msg.Kind), zap.Error(err))
		return
	}
	select {
	case h.broadcast <- data:
	default:
		h.logger.Warn("push buffer full, message dropped", zap.String("kind", msg.Kind))
	}
}

func pushKind(data []byte) string {
	var msg struct {
		Kind string `json:"kind"`
	}
	if err := json.Unmarshal(data, &msg); err != nil {
		return "unknown"
	}
	return msg.Kind
}
