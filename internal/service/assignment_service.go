package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/whatsdesk/whatsdesk/internal/domain"
	"github.com/whatsdesk/whatsdesk/internal/events"
	"github.com/whatsdesk/whatsdesk/internal/repository"
	apperrors "github.com/whatsdesk/whatsdesk/pkg/util"
)

// AssignmentService owns the exclusive-ownership invariant: every mutation of
// a ticket's (status, agent) pair goes through the repository's conditional
// writes; a failed guard is classified by re-reading, never retried blindly.
type AssignmentService struct {
	tickets     repository.TicketRepository
	agents      repository.AgentRepository
	departments repository.DepartmentRepository
	dispatcher  events.Dispatcher
	logger      *zap.Logger
}

// AssignmentDependencies bundles repositories.
type AssignmentDependencies struct {
	TicketRepo     repository.TicketRepository
	AgentRepo      repository.AgentRepository
	DepartmentRepo repository.DepartmentRepository
	Dispatcher     events.Dispatcher
	Logger         *zap.Logger
}

// NewAssignmentService creates the service.
func NewAssignmentService(deps AssignmentDependencies) *AssignmentService {
	return &AssignmentService{
		tickets:     deps.TicketRepo,
		agents:      deps.AgentRepo,
		departments: deps.DepartmentRepo,
		dispatcher:  deps.Dispatcher,
		logger:      deps.Logger,
	}
}

// Claim grants the agent exclusive ownership of a queued (or active but
// ownerless) ticket. Racing claims resolve to exactly one winner; the losers
// get AlreadyAssigned.
func (s *AssignmentService) Claim(ctx context.Context, ticketID, agentID string) (*domain.Ticket, error) {
	agent, err := s.getActiveAgent(ctx, agentID)
	if err != nil {
		return nil, err
	}

	ticket, err := s.tickets.Claim(ctx, ticketID, agent.ID)
	if err != nil {
		if errors.Is(err, repository.ErrNoMatch) {
			return nil, s.classifyClaimFailure(ctx, ticketID)
		}
		return nil, apperrors.MapError(err)
	}

	s.publish(ctx, events.Event{
		Type:           events.EventTicketClaimed,
		ConversationID: ticket.ConversationID,
		TicketID:       ticket.ID,
		AgentID:        &agent.ID,
		Payload:        events.TicketClaimedPayload{AgentID: agent.ID},
	})
	s.logger.Info("ticket claimed",
		zap.String("ticket_id", ticket.ID),
		zap.String("agent_id", agent.ID),
	)
	return ticket, nil
}

// Transfer hands the ticket to another agent, or back to a department queue
// when toAgentID is nil. fromAgentID must be the current owner.
func (s *AssignmentService) Transfer(ctx context.Context, ticketID, fromAgentID string, toAgentID, targetDepartmentID *string) (*domain.Ticket, error) {
	current, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("ticket", map[string]any{"ticket_id": ticketID})
		}
		return nil, apperrors.MapError(err)
	}

	departmentID := current.DepartmentID
	if targetDepartmentID != nil {
		dept, err := s.departments.GetByID(ctx, *targetDepartmentID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, apperrors.NewInvalidTarget("target department not found", map[string]any{"department_id": *targetDepartmentID})
			}
			return nil, apperrors.MapError(err)
		}
		if !dept.IsActive {
			return nil, apperrors.NewInvalidTarget("target department inactive", map[string]any{"department_id": dept.ID})
		}
		departmentID = dept.ID
	}

	if toAgentID != nil {
		target, err := s.getActiveAgent(ctx, *toAgentID)
		if err != nil {
			return nil, err
		}
		if !target.MemberOf(departmentID) {
			return nil, apperrors.NewInvalidTarget("target agent is not a member of the department", map[string]any{
				"agent_id":      target.ID,
				"department_id": departmentID,
			})
		}
	}

	ticket, err := s.tickets.Transfer(ctx, ticketID, fromAgentID, toAgentID, departmentID)
	if err != nil {
		if errors.Is(err, repository.ErrNoMatch) {
			return nil, s.classifyOwnershipFailure(ctx, ticketID, fromAgentID)
		}
		return nil, apperrors.MapError(err)
	}

	s.publish(ctx, events.Event{
		Type:           events.EventTicketTransferred,
		ConversationID: ticket.ConversationID,
		TicketID:       ticket.ID,
		AgentID:        toAgentID,
		Payload: events.TicketTransferredPayload{
			FromAgentID:  fromAgentID,
			ToAgentID:    toAgentID,
			DepartmentID: ticket.DepartmentID,
			Requeued:     toAgentID == nil,
		},
	})
	return ticket, nil
}

// Release returns an owned ticket to its department queue.
func (s *AssignmentService) Release(ctx context.Context, ticketID, agentID string) (*domain.Ticket, error) {
	ticket, err := s.tickets.Release(ctx, ticketID, agentID)
	if err != nil {
		if errors.Is(err, repository.ErrNoMatch) {
			return nil, s.classifyOwnershipFailure(ctx, ticketID, agentID)
		}
		return nil, apperrors.MapError(err)
	}

	s.publish(ctx, events.Event{
		Type:           events.EventTicketReleased,
		ConversationID: ticket.ConversationID,
		TicketID:       ticket.ID,
		Payload: events.TicketReleasedPayload{
			AgentID:      agentID,
			DepartmentID: ticket.DepartmentID,
		},
	})
	return ticket, nil
}

// classifyClaimFailure turns a failed claim guard into the caller-facing
// rejection. The ticket is re-read once; the state observed decides.
func (s *AssignmentService) classifyClaimFailure(ctx context.Context, ticketID string) error {
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
	details := map[string]any{}
	if ticket.AgentID != nil {
		details["owner_agent_id"] = *ticket.AgentID
	}
	return apperrors.NewAlreadyAssigned(ticketID, details)
}

func (s *AssignmentService) classifyOwnershipFailure(ctx context.Context, ticketID, agentID string) error {
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

func (s *AssignmentService) getActiveAgent(ctx context.Context, agentID string) (*domain.Agent, error) {
	agent, err := s.agents.GetByID(ctx, agentID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("agent", map[string]any{"agent_id": agentID})
		}
		return nil, apperrors.MapError(err)
	}
	if !agent.Active {
		return nil, apperrors.NewConflict("agent inactive", map[string]any{"agent_id": agentID})
	}
	return agent, nil
}

func (s *AssignmentService) publish(ctx context.Context, event events.Event) {
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
