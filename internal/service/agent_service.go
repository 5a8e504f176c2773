package service

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/whatsdesk/whatsdesk/internal/domain"
	"github.com/whatsdesk/whatsdesk/internal/repository"
	apperrors "github.com/whatsdesk/whatsdesk/pkg/util"
)

// AgentService manages the agent roster and department memberships.
type AgentService struct {
	agents      repository.AgentRepository
	departments repository.DepartmentRepository
	logger      *zap.Logger
}

// AgentDependencies bundles repositories.
type AgentDependencies struct {
	AgentRepo      repository.AgentRepository
	DepartmentRepo repository.DepartmentRepository
	Logger         *zap.Logger
}

// NewAgentService creates the service.
func NewAgentService(deps AgentDependencies) *AgentService {
	return &AgentService{
		agents:      deps.AgentRepo,
		departments: deps.DepartmentRepo,
		logger:      deps.Logger,
	}
}

// CreateAgent registers an agent. Credentials are handled by the external
// identity collaborator; only the roster record lives here.
func (s *AgentService) CreateAgent(ctx context.Context, name, email string) (*domain.Agent, error) {
	name = strings.TrimSpace(name)
	email = strings.ToLower(strings.TrimSpace(email))
	if name == "" || email == "" {
		return nil, apperrors.NewValidationError("name and email required", nil)
	}
	agent := &domain.Agent{Name: name, Email: email, Active: true, DepartmentIDs: []string{}}
	if err := s.agents.Create(ctx, agent); err != nil {
		if errors.Is(err, repository.ErrEmailTaken) {
			return nil, apperrors.NewConflict("email already registered", map[string]any{"email": email})
		}
		return nil, apperrors.MapError(err)
	}
	s.logger.Info("agent created", zap.String("agent_id", agent.ID), zap.String("email", email))
	return agent, nil
}

// SetDepartments replaces the agent's department memberships.
func (s *AgentService) SetDepartments(ctx context.Context, agentID string, departmentIDs []string) (*domain.Agent, error) {
	if _, err := s.agents.GetByID(ctx, agentID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("agent", map[string]any{"agent_id": agentID})
		}
		return nil, apperrors.MapError(err)
	}
	for _, departmentID := range departmentIDs {
		if _, err := s.departments.GetByID(ctx, departmentID); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, apperrors.NewNotFound("department", map[string]any{"department_id": departmentID})
			}
			return nil, apperrors.MapError(err)
		}
	}
	if err := s.agents.SetDepartments(ctx, agentID, departmentIDs); err != nil {
		return nil, apperrors.MapError(err)
	}
	return s.GetAgent(ctx, agentID)
}

// GetAgent fetches one agent with memberships.
func (s *AgentService) GetAgent(ctx context.Context, agentID string) (*domain.Agent, error) {
	agent, err := s.agents.GetByID(ctx, agentID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("agent", map[string]any{"agent_id": agentID})
		}
		return nil, apperrors.MapError(err)
	}
	return agent, nil
}

// ListAgents returns the roster.
func (s *AgentService) ListAgents(ctx context.Context) ([]domain.Agent, error) {
	agents, err := s.agents.List(ctx)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return agents, nil
}
