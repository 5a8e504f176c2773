package channel

import (
	"context"
	"errors"
)

// ErrNoProvider is returned by the no-op provider's send path.
var ErrNoProvider = errors.New("no channel provider configured")

// noopProvider stands in when no concrete integration is wired. The session
// stays disconnected and every send fails, which surfaces to agents as
// CHANNEL_UNAVAILABLE rather than a crash.
type noopProvider struct {
	events chan ProviderEvent
}

// NewNoopProvider builds the stand-in provider.
func NewNoopProvider() Provider {
	return &noopProvider{events: make(chan ProviderEvent)}
}

func (p *noopProvider) Connect(context.Context) error { return nil }

func (p *noopProvider) Disconnect() error {
	close(p.events)
	return nil
}

func (p *noopProvider) Send(context.Context, OutboundMessage) (string, error) {
	return "", ErrNoProvider
}

func (p *noopProvider) Events() <-chan ProviderEvent { return p.events }
