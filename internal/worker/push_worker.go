package worker

import (
	"context"

	"go.uber.org/zap"

	"github.com/whatsdesk/whatsdesk/internal/api/ws"
	"github.com/whatsdesk/whatsdesk/internal/channel"
	"github.com/whatsdesk/whatsdesk/internal/domain"
	"github.com/whatsdesk/whatsdesk/internal/events"
)

// Push kinds seen by agent dashboards.
const (
	PushTicketCreated     = "ticket_created"
	PushTicketClaimed     = "ticket_claimed"
	PushTicketTransferred = "ticket_transferred"
	PushTicketReleased    = "ticket_released"
	PushTicketClosed      = "ticket_closed"
	PushInboundMessage    = "inbound_message"
	PushOutboundMessage   = "outbound_message"
	PushHandshakeRequired = "handshake_required"
	PushChannelReady      = "channel_ready"
	PushChannelDisconnect = "channel_disconnected"
)

// PushWorker bridges domain events to the agent push channel and to the
// optional external mirror. Registered once at boot.
type PushWorker struct {
	hub      *ws.Hub
	external events.ExternalPublisher
	logger   *zap.Logger
}

// NewPushWorker creates the worker.
func NewPushWorker(hub *ws.Hub, external events.ExternalPublisher, logger *zap.Logger) *PushWorker {
	return &PushWorker{hub: hub, external: external, logger: logger}
}

// Register subscribes the worker to every event type it forwards.
func (w *PushWorker) Register(dispatcher events.Dispatcher) {
	for _, eventType := range []events.EventType{
		events.EventTicketCreated,
		events.EventTicketClaimed,
		events.EventTicketTransferred,
		events.EventTicketReleased,
		events.EventTicketClosed,
		events.EventMessageAdded,
		events.EventChannelStateChanged,
	} {
		dispatcher.Subscribe(eventType, w.handle)
	}
}

func (w *PushWorker) handle(ctx context.Context, event events.Event) error {
	w.hub.Push(ws.PushMessage{Kind: pushKindFor(event), Payload: pushPayloadFor(event)})

	if w.external != nil {
		if err := w.external.Publish(ctx, event); err != nil {
			// Mirror failures never affect the in-process path.
			w.logger.Warn("external event publish failed",
				zap.String("event_type", string(event.Type)),
				zap.Error(err),
			)
		}
	}
	return nil
}

func pushKindFor(event events.Event) string {
	switch event.Type {
	case events.EventTicketCreated:
		return PushTicketCreated
	case events.EventTicketClaimed:
		return PushTicketClaimed
	case events.EventTicketTransferred:
		return PushTicketTransferred
	case events.EventTicketReleased:
		return PushTicketReleased
	case events.EventTicketClosed:
		return PushTicketClosed
	case events.EventMessageAdded:
		if payload, ok := event.Payload.(events.MessageAddedPayload); ok && payload.Direction == domain.DirectionOutbound {
			return PushOutboundMessage
		}
		return PushInboundMessage
	case events.EventChannelStateChanged:
		if payload, ok := event.Payload.(events.ChannelStateChangedPayload); ok {
			switch payload.State {
			case string(channel.StateAwaitingHandshake):
				return PushHandshakeRequired
			case string(channel.StateConnected):
				return PushChannelReady
			}
		}
		return PushChannelDisconnect
	}
	return string(event.Type)
}

// pushPayloadFor trims the push body to identifiers plus the handful of
// fields dashboards act on immediately. Everything else is fetched on
// demand; channel_ready doubles as the full-refresh signal after a gap.
func pushPayloadFor(event events.Event) map[string]any {
	payload := map[string]any{}
	if event.ConversationID != "" {
		payload["conversation_id"] = event.ConversationID
	}
	if event.TicketID != "" {
		payload["ticket_id"] = event.TicketID
	}
	if event.AgentID != nil {
		payload["agent_id"] = *event.AgentID
	}
	if p, ok := event.Payload.(events.ChannelStateChangedPayload); ok {
		payload["state"] = p.State
		if p.QRCode != "" {
			payload["qr_code"] = p.QRCode
		}
	}
	if p, ok := event.Payload.(events.MessageAddedPayload); ok {
		payload["message_id"] = p.MessageID
		payload["body_preview"] = p.BodyPreview
	}
	return payload
}
