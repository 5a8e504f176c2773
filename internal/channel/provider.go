package channel

import (
	"context"
	"time"
)

// State enumerates the shared session's lifecycle.
type State string

const (
	StateDisconnected      State = "disconnected"
	StateAwaitingHandshake State = "awaiting_handshake"
	StateConnected         State = "connected"
)

// EventKind enumerates provider event types.
type EventKind string

const (
	EventQR           EventKind = "qr"
	EventReady        EventKind = "ready"
	EventDisconnected EventKind = "disconnected"
	EventMessage      EventKind = "message"
)

// InboundMessage is the typed form of a provider message event. Everything
// downstream of the session consumes this struct, never raw provider
// payloads.
type InboundMessage struct {
	ProviderMessageID string
	FromAddress       string
	SenderName        string
	Body              string
	MediaURL          *string
	MediaType         *string
	Timestamp         time.Time
}

// OutboundMessage is the typed send request handed to the provider.
type OutboundMessage struct {
	ToAddress      string
	Body           string
	MediaURL       *string
	MediaType      *string
	MediaSizeBytes int64
}

// ProviderEvent is one entry in the provider's ordered event stream.
type ProviderEvent struct {
	Kind    EventKind
	QRCode  string
	Message *InboundMessage
}

// Provider abstracts the concrete messaging integration so the session can
// be exercised against a fake in tests. Events() yields a single ordered
// stream; the channel closes when the provider shuts down.
type Provider interface {
	Connect(ctx context.Context) error
	Disconnect() error
	Send(ctx context.Context, msg OutboundMessage) (providerMessageID string, err error)
	Events() <-chan ProviderEvent
}
