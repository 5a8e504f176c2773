package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/whatsdesk/whatsdesk/internal/domain"
	"github.com/whatsdesk/whatsdesk/internal/events"
	"github.com/whatsdesk/whatsdesk/internal/repository"
	apperrors "github.com/whatsdesk/whatsdesk/pkg/util"
)

// TicketService drives the ticket lifecycle: queued → active → closed.
type TicketService struct {
	tickets       repository.TicketRepository
	assignments   repository.AssignmentRepository
	messages      repository.MessageRepository
	conversations repository.ConversationRepository
	departments   repository.DepartmentRepository
	dispatcher    events.Dispatcher
	logger        *zap.Logger
}

// TicketDependencies bundles repositories for ticket service.
type TicketDependencies struct {
	TicketRepo       repository.TicketRepository
	AssignmentRepo   repository.AssignmentRepository
	MessageRepo      repository.MessageRepository
	ConversationRepo repository.ConversationRepository
	DepartmentRepo   repository.DepartmentRepository
	Dispatcher       events.Dispatcher
	Logger           *zap.Logger
}

// TicketListFilter describes dashboard listing filters.
type TicketListFilter struct {
	DepartmentID *string
	AgentID      *string
	Statuses     []domain.TicketStatus
	SubjectTerm  *string
	CreatedFrom  *time.Time
	CreatedTo    *time.Time
	Limit        int
	Offset       int
}

// NewTicketService constructs the service.
func NewTicketService(deps TicketDependencies) *TicketService {
	return &TicketService{
		tickets:       deps.TicketRepo,
		assignments:   deps.AssignmentRepo,
		messages:      deps.MessageRepo,
		conversations: deps.ConversationRepo,
		departments:   deps.DepartmentRepo,
		dispatcher:    deps.Dispatcher,
		logger:        deps.Logger,
	}
}

// Open creates a queued ticket for the conversation. The one-open-ticket
// invariant is enforced by the store; a concurrent or pre-existing open
// ticket surfaces as AlreadyOpen and callers must reuse that ticket.
func (s *TicketService) Open(ctx context.Context, conversationID, departmentID string, priority domain.TicketPriority) (*domain.Ticket, error) {
	if _, err := s.conversations.GetByID(ctx, conversationID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("conversation", map[string]any{"conversation_id": conversationID})
		}
		return nil, apperrors.MapError(err)
	}
	dept, err := s.departments.GetByID(ctx, departmentID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("department", map[string]any{"department_id": departmentID})
		}
		return nil, apperrors.MapError(err)
	}
	if !dept.IsActive {
		return nil, apperrors.NewConflict("department inactive", map[string]any{"department_id": dept.ID})
	}

	if priority == "" {
		priority = domain.TicketPriorityNormal
	}
	ticket := &domain.Ticket{
		ConversationID: conversationID,
		DepartmentID:   dept.ID,
		Status:         domain.TicketStatusQueued,
		Priority:       priority,
	}
	if err := s.tickets.Create(ctx, ticket); err != nil {
		if errors.Is(err, repository.ErrOpenTicketExists) {
			return nil, apperrors.NewAlreadyOpen(conversationID)
		}
		return nil, apperrors.MapError(err)
	}

	_ = s.conversations.BumpActivity(ctx, conversationID, ticket.CreatedAt, 0)
	s.publish(ctx, events.Event{
		Type:           events.EventTicketCreated,
		ConversationID: conversationID,
		TicketID:       ticket.ID,
		Payload: events.TicketCreatedPayload{
			DepartmentID: dept.ID,
			Priority:     ticket.Priority,
		},
	})
	s.logger.Info("ticket opened",
		zap.String("ticket_id", ticket.ID),
		zap.String("conversation_id", conversationID),
		zap.String("department_id", dept.ID),
	)
	return ticket, nil
}

// OpenOrReuse returns the conversation's open ticket, creating a queued one
// when none exists. Used by the inbound pipeline, which must tolerate racing
// against agent-initiated opens.
func (s *TicketService) OpenOrReuse(ctx context.Context, conversationID, departmentID string) (*domain.Ticket, error) {
	existing, err := s.tickets.GetOpenByConversation(ctx, conversationID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.MapError(err)
	}

	ticket, err := s.Open(ctx, conversationID, departmentID, domain.TicketPriorityNormal)
	if err == nil {
		return ticket, nil
	}
	if apperrors.IsCode(err, "ALREADY_OPEN") {
		existing, getErr := s.tickets.GetOpenByConversation(ctx, conversationID)
		if getErr != nil {
			return nil, apperrors.MapError(getErr)
		}
		return existing, nil
	}
	return nil, err
}

// Close terminates the episode. The caller must own the ticket and supply a
// non-empty subject; closed is terminal.
func (s *TicketService) Close(ctx context.Context, ticketID, agentID, subject string) (*domain.Ticket, error) {
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return nil, apperrors.NewValidationError("subject required to close a ticket", map[string]any{"ticket_id": ticketID})
	}

	ticket, err := s.tickets.Close(ctx, ticketID, agentID, subject)
	if err != nil {
		if errors.Is(err, repository.ErrNoMatch) {
			return nil, s.classifyCloseFailure(ctx, ticketID, agentID)
		}
		return nil, apperrors.MapError(err)
	}

	if ticket.ClosedAt != nil {
		_ = s.conversations.BumpActivity(ctx, ticket.ConversationID, *ticket.ClosedAt, 0)
	}
	s.publish(ctx, events.Event{
		Type:           events.EventTicketClosed,
		ConversationID: ticket.ConversationID,
		TicketID:       ticket.ID,
		AgentID:        &agentID,
		Payload: events.TicketClosedPayload{
			AgentID: agentID,
			Subject: subject,
		},
	})
	s.logger.Info("ticket closed",
		zap.String("ticket_id", ticket.ID),
		zap.String("agent_id", agentID),
		zap.String("subject", subject),
	)
	return ticket, nil
}

func (s *TicketService) classifyCloseFailure(ctx context.Context, ticketID, agentID string) error {
	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apperrors.NewNotFound("ticket", map[string]any{"ticket_id": ticketID})
		}
		return apperrors.MapError(err)
	}
	if ticket.Status == domain.TicketStatusClosed {
		return apperrors.NewConflict("ticket already closed", map[string]any{"ticket_id": ticketID})
	}
	return apperrors.NewNotOwner(ticketID, agentID)
}

// GetTicket fetches one ticket.
func (s *TicketService) GetTicket(ctx context.Context, ticketID string) (*domain.Ticket, error) {
	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("ticket", map[string]any{"ticket_id": ticketID})
		}
		return nil, apperrors.MapError(err)
	}
	return ticket, nil
}

// ListTickets returns tickets matching the dashboard filter.
func (s *TicketService) ListTickets(ctx context.Context, filter TicketListFilter) ([]domain.Ticket, error) {
	tickets, err := s.tickets.ListWithFilter(ctx, repository.TicketFilter{
		DepartmentID: filter.DepartmentID,
		AgentID:      filter.AgentID,
		Statuses:     filter.Statuses,
		SubjectTerm:  filter.SubjectTerm,
		CreatedFrom:  filter.CreatedFrom,
		CreatedTo:    filter.CreatedTo,
		Limit:        filter.Limit,
		Offset:       filter.Offset,
	})
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return tickets, nil
}

// ListMessages returns a conversation's message log in arrival order.
func (s *TicketService) ListMessages(ctx context.Context, conversationID string, limit, offset int) ([]domain.Message, error) {
	messages, err := s.messages.ListByConversation(ctx, conversationID, limit, offset)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return messages, nil
}

// ListAssignments returns the handoff audit trail for a ticket.
func (s *TicketService) ListAssignments(ctx context.Context, ticketID string) ([]domain.Assignment, error) {
	assignments, err := s.assignments.ListByTicket(ctx, ticketID)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return assignments, nil
}

// AgentStats reports per-agent ticket counts.
func (s *TicketService) AgentStats(ctx context.Context, agentID string) (repository.AgentTicketCounts, error) {
	counts, err := s.tickets.CountForAgent(ctx, agentID)
	if err != nil {
		return repository.AgentTicketCounts{}, apperrors.MapError(err)
	}
	return counts, nil
}

func (s *TicketService) publish(ctx context.Context, event events.Event) {
	if s.dispatcher == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	_ = s.dispatcher.Publish(ctx, event)
}
