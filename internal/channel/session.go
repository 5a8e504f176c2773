package channel

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/whatsdesk/whatsdesk/internal/config"
	"github.com/whatsdesk/whatsdesk/internal/domain"
	"github.com/whatsdesk/whatsdesk/internal/events"
	"github.com/whatsdesk/whatsdesk/internal/repository"
	apperrors "github.com/whatsdesk/whatsdesk/pkg/util"
)

// Session is the process-wide owner of the shared external messaging
// connection. All outbound traffic funnels through Send, serialized onto the
// single provider link; inbound provider events are consumed by one run loop
// and fanned out to the inbound pipeline.
type Session struct {
	provider      Provider
	cfg           config.ChannelConfig
	conversations repository.ConversationRepository
	tickets       repository.TicketRepository
	messages      repository.MessageRepository
	inbound       *Inbound
	dispatcher    events.Dispatcher
	logger        *zap.Logger

	mu    sync.RWMutex
	state State

	sendMu sync.Mutex

	cancel  context.CancelFunc
	done    chan struct{}
	started bool
}

// SessionDependencies bundles session collaborators.
type SessionDependencies struct {
	Provider         Provider
	Config           config.ChannelConfig
	ConversationRepo repository.ConversationRepository
	TicketRepo       repository.TicketRepository
	MessageRepo      repository.MessageRepository
	Inbound          *Inbound
	Dispatcher       events.Dispatcher
	Logger           *zap.Logger
}

// SendRequest describes an agent-initiated outbound message.
type SendRequest struct {
	ConversationID string
	AgentID        string
	Body           string
	MediaURL       *string
	MediaType      *string
	MediaSizeBytes int64
}

// NewSession creates the session in the disconnected state.
func NewSession(deps SessionDependencies) *Session {
	return &Session{
		provider:      deps.Provider,
		cfg:           deps.Config,
		conversations: deps.ConversationRepo,
		tickets:       deps.TicketRepo,
		messages:      deps.MessageRepo,
		inbound:       deps.Inbound,
		dispatcher:    deps.Dispatcher,
		logger:        deps.Logger,
		state:         StateDisconnected,
	}
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Start connects the provider and begins consuming its event stream. Calling
// Start on a running session is an error; the session is a singleton.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return errors.New("channel session already started")
	}
	s.started = true
	s.mu.Unlock()

	if err := s.provider.Connect(ctx); err != nil {
		s.mu.Lock()
		s.started = false
		s.mu.Unlock()
		return err
	}

	runCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})
	go s.run(runCtx)
	return nil
}

// Stop disconnects the provider and waits for the run loop to drain.
func (s *Session) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	s.mu.Unlock()

	s.cancel()
	_ = s.provider.Disconnect()
	<-s.done
	s.setState(StateDisconnected, "")
}

func (s *Session) run(ctx context.Context) {
	defer close(s.done)
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-s.provider.Events():
			if !ok {
				s.setState(StateDisconnected, "")
				return
			}
			s.handleEvent(ctx, ev)
		}
	}
}

func (s *Session) handleEvent(ctx context.Context, ev ProviderEvent) {
	switch ev.Kind {
	case EventQR:
		s.setState(StateAwaitingHandshake, ev.QRCode)
	case EventReady:
		s.setState(StateConnected, "")
	case EventDisconnected:
		s.setState(StateDisconnected, "")
	case EventMessage:
		if ev.Message == nil {
			return
		}
		s.inbound.Enqueue(ctx, *ev.Message)
	default:
		s.logger.Warn("unknown provider event", zap.String("kind", string(ev.Kind)))
	}
}

// setState transitions the lifecycle and broadcasts the change. The QR code
// rides along only for the awaiting-handshake state.
func (s *Session) setState(next State, qrCode string) {
	s.mu.Lock()
	prev := s.state
	s.state = next
	s.mu.Unlock()

	if prev == next && qrCode == "" {
		return
	}
	s.logger.Info("channel state changed",
		zap.String("from", string(prev)),
		zap.String("to", string(next)),
	)
	s.publish(events.Event{
		Type: events.EventChannelStateChanged,
		Payload: events.ChannelStateChangedPayload{
			State:  string(next),
			QRCode: qrCode,
		},
	})
}

// Send delivers an agent's outbound message through the shared link and
// appends it to the conversation log. Calls are serialized; the provider
// round trip is bounded by the configured send timeout.
func (s *Session) Send(ctx context.Context, req SendRequest) (*domain.Message, error) {
	if strings.TrimSpace(req.Body) == "" && req.MediaURL == nil {
		return nil, apperrors.NewValidationError("message body or media required", nil)
	}
	if req.MediaURL != nil && req.MediaSizeBytes > s.cfg.MaxMediaBytes {
		return nil, apperrors.NewPayloadTooLarge(req.MediaSizeBytes, s.cfg.MaxMediaBytes)
	}
	if s.State() != StateConnected {
		return nil, apperrors.NewChannelUnavailable("channel session is not connected")
	}

	conversation, err := s.conversations.GetByID(ctx, req.ConversationID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("conversation", map[string]any{"conversation_id": req.ConversationID})
		}
		return nil, apperrors.MapError(err)
	}

	var ticketID *string
	if ticket, err := s.tickets.GetOpenByConversation(ctx, req.ConversationID); err == nil {
		ticketID = &ticket.ID
	} else if !errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.MapError(err)
	}

	s.sendMu.Lock()
	sendCtx, cancel := context.WithTimeout(ctx, s.cfg.SendTimeout())
	providerID, err := s.provider.Send(sendCtx, OutboundMessage{
		ToAddress:      conversation.Address,
		Body:           req.Body,
		MediaURL:       req.MediaURL,
		MediaType:      req.MediaType,
		MediaSizeBytes: req.MediaSizeBytes,
	})
	cancel()
	s.sendMu.Unlock()
	if err != nil {
		s.logger.Warn("provider send failed",
			zap.String("conversation_id", req.ConversationID),
			zap.Error(err),
		)
		return nil, apperrors.NewChannelUnavailable("message delivery failed")
	}

	msg := &domain.Message{
		ConversationID: conversation.ID,
		TicketID:       ticketID,
		AgentID:        &req.AgentID,
		Direction:      domain.DirectionOutbound,
		Body:           req.Body,
		MediaURL:       req.MediaURL,
		MediaType:      req.MediaType,
	}
	if providerID != "" {
		msg.ProviderMessageID = &providerID
	}
	if err := s.messages.Create(ctx, msg); err != nil {
		// Delivery already happened; a persistence failure must surface loudly.
		s.logger.Error("outbound message persisted delivery mismatch",
			zap.String("conversation_id", conversation.ID),
			zap.Error(err),
		)
		return nil, apperrors.MapError(err)
	}
	_ = s.conversations.BumpActivity(ctx, conversation.ID, msg.CreatedAt, 0)

	event := events.Event{
		Type:           events.EventMessageAdded,
		ConversationID: conversation.ID,
		AgentID:        &req.AgentID,
		Payload: events.MessageAddedPayload{
			MessageID:   msg.ID,
			Direction:   domain.DirectionOutbound,
			BodyPreview: preview(req.Body),
			MediaURL:    req.MediaURL,
		},
	}
	if ticketID != nil {
		event.TicketID = *ticketID
	}
	s.publish(event)
	return msg, nil
}

func (s *Session) publish(event events.Event) {
	if s.dispatcher == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	_ = s.dispatcher.Publish(context.Background(), event)
}

func preview(body string) string {
	const max = 80
	if len(body) <= max {
		return body
	}
	return body[:max]
}
