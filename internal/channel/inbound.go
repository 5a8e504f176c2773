package channel

import (
	"context"
	"errors"
	"hash/fnv"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/whatsdesk/whatsdesk/internal/domain"
	"github.com/whatsdesk/whatsdesk/internal/events"
	"github.com/whatsdesk/whatsdesk/internal/repository"
	"github.com/whatsdesk/whatsdesk/internal/service"
)

// Inbound processes provider messages on a fixed worker pool. Messages are
// routed to a worker by hashing the sender address, so messages of one
// conversation are always handled in arrival order while distinct
// conversations proceed in parallel.
type Inbound struct {
	directory  *service.DirectoryService
	tickets    *service.TicketService
	messages   repository.MessageRepository
	dedup      repository.DedupRepository
	dispatcher events.Dispatcher
	logger     *zap.Logger

	defaultDepartmentID string
	dedupTTL            time.Duration
	queues              []chan InboundMessage
	wg                  sync.WaitGroup
}

// InboundDependencies bundles pipeline collaborators.
type InboundDependencies struct {
	Directory           *service.DirectoryService
	Tickets             *service.TicketService
	MessageRepo         repository.MessageRepository
	DedupRepo           repository.DedupRepository
	Dispatcher          events.Dispatcher
	Logger              *zap.Logger
	DefaultDepartmentID string
	Workers             int
	DedupTTL            time.Duration
}

// NewInbound creates the pipeline; Start must be called before Enqueue.
func NewInbound(deps InboundDependencies) *Inbound {
	workers := deps.Workers
	if workers <= 0 {
		workers = 4
	}
	queues := make([]chan InboundMessage, workers)
	for i := range queues {
		queues[i] = make(chan InboundMessage, 128)
	}
	return &Inbound{
		directory:           deps.Directory,
		tickets:             deps.Tickets,
		messages:            deps.MessageRepo,
		dedup:               deps.DedupRepo,
		dispatcher:          deps.Dispatcher,
		logger:              deps.Logger,
		defaultDepartmentID: deps.DefaultDepartmentID,
		dedupTTL:            deps.DedupTTL,
		queues:              queues,
	}
}

// Start launches the worker pool.
func (p *Inbound) Start(ctx context.Context) {
	for _, queue := range p.queues {
		p.wg.Add(1)
		go func(queue chan InboundMessage) {
			defer p.wg.Done()
			for msg := range queue {
				p.process(ctx, msg)
			}
		}(queue)
	}
}

// Stop drains the queues and waits for in-flight messages.
func (p *Inbound) Stop() {
	for _, queue := range p.queues {
		close(queue)
	}
	p.wg.Wait()
}

// Enqueue routes the message to its conversation's worker.
func (p *Inbound) Enqueue(ctx context.Context, msg InboundMessage) {
	h := fnv.New32a()
	_, _ = h.Write([]byte(service.NormalizeAddress(msg.FromAddress)))
	queue := p.queues[int(h.Sum32())%len(p.queues)]
	select {
	case queue <- msg:
	case <-ctx.Done():
	}
}

func (p *Inbound) process(ctx context.Context, msg InboundMessage) {
	if p.dedup != nil && msg.ProviderMessageID != "" {
		dup, err := p.dedup.IsDuplicate(ctx, msg.ProviderMessageID)
		if err != nil {
			// Cache miss path; the messages unique index still rejects replays.
			p.logger.Warn("dedup check failed", zap.Error(err))
		} else if dup {
			return
		}
	}

	conversation, err := p.directory.ResolveOrCreateConversation(ctx, msg.FromAddress, msg.SenderName)
	if err != nil {
		p.logger.Error("inbound resolve failed",
			zap.String("from_address", msg.FromAddress),
			zap.Error(err),
		)
		return
	}

	ticket, err := p.tickets.OpenOrReuse(ctx, conversation.ID, p.defaultDepartmentID)
	if err != nil {
		p.logger.Error("inbound ticket open failed",
			zap.String("conversation_id", conversation.ID),
			zap.Error(err),
		)
		return
	}

	record := &domain.Message{
		ConversationID: conversation.ID,
		TicketID:       &ticket.ID,
		Direction:      domain.DirectionInbound,
		Body:           msg.Body,
		MediaURL:       msg.MediaURL,
		MediaType:      msg.MediaType,
	}
	if msg.ProviderMessageID != "" {
		record.ProviderMessageID = &msg.ProviderMessageID
	}
	if err := p.messages.Create(ctx, record); err != nil {
		if errors.Is(err, repository.ErrDuplicateMessage) {
			return
		}
		p.logger.Error("inbound message persist failed",
			zap.String("conversation_id", conversation.ID),
			zap.Error(err),
		)
		return
	}

	at := msg.Timestamp
	if at.IsZero() {
		at = record.CreatedAt
	}
	if err := p.directory.TouchConversation(ctx, conversation.ID, at, true); err != nil {
		p.logger.Warn("activity bump failed", zap.String("conversation_id", conversation.ID), zap.Error(err))
	}
	if p.dedup != nil && msg.ProviderMessageID != "" {
		if err := p.dedup.MarkProcessed(ctx, msg.ProviderMessageID, p.dedupTTL); err != nil {
			p.logger.Warn("dedup mark failed", zap.Error(err))
		}
	}

	p.publish(ctx, events.Event{
		Type:           events.EventMessageAdded,
		ConversationID: conversation.ID,
		TicketID:       ticket.ID,
		Payload: events.MessageAddedPayload{
			MessageID:   record.ID,
			Direction:   domain.DirectionInbound,
			BodyPreview: preview(msg.Body),
			MediaURL:    msg.MediaURL,
		},
	})
}

func (p *Inbound) publish(ctx context.Context, event events.Event) {
	if p.dispatcher == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	_ = p.dispatcher.Publish(ctx, event)
}
