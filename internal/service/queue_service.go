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

// QueueService exposes the derived department queues and department
// administration.
type QueueService struct {
	tickets     repository.TicketRepository
	departments repository.DepartmentRepository
	logger      *zap.Logger
}

// QueueDependencies bundles repositories.
type QueueDependencies struct {
	TicketRepo     repository.TicketRepository
	DepartmentRepo repository.DepartmentRepository
	Logger         *zap.Logger
}

// NewQueueService creates the service.
func NewQueueService(deps QueueDependencies) *QueueService {
	return &QueueService{
		tickets:     deps.TicketRepo,
		departments: deps.DepartmentRepo,
		logger:      deps.Logger,
	}
}

// Peek returns the department's queued tickets in claim order: priority rank
// ascending, then arrival time. The ordering is computed from ticket rows, so
// the queue can never diverge from the source of truth.
func (s *QueueService) Peek(ctx context.Context, departmentID string) ([]domain.Ticket, error) {
	if _, err := s.getDepartment(ctx, departmentID); err != nil {
		return nil, err
	}
	tickets, err := s.tickets.ListQueued(ctx, departmentID)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return tickets, nil
}

// ListByDepartment supports dashboards: department tickets filtered by status.
func (s *QueueService) ListByDepartment(ctx context.Context, departmentID string, statuses []domain.TicketStatus) ([]domain.Ticket, error) {
	if _, err := s.getDepartment(ctx, departmentID); err != nil {
		return nil, err
	}
	tickets, err := s.tickets.ListWithFilter(ctx, repository.TicketFilter{
		DepartmentID: &departmentID,
		Statuses:     statuses,
		Limit:        200,
	})
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return tickets, nil
}

// ListDepartments returns active departments.
func (s *QueueService) ListDepartments(ctx context.Context) ([]domain.Department, error) {
	departments, err := s.departments.ListActive(ctx)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return departments, nil
}

// CreateDepartment registers a routing target.
func (s *QueueService) CreateDepartment(ctx context.Context, name, description string) (*domain.Department, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apperrors.NewValidationError("department name required", nil)
	}
	dept := &domain.Department{Name: name, Description: description, IsActive: true}
	if err := s.departments.Create(ctx, dept); err != nil {
		return nil, apperrors.MapError(err)
	}
	return dept, nil
}

// Seed creates the configured departments when absent. Invoked once on boot.
func (s *QueueService) Seed(ctx context.Context, names []string) error {
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		_, err := s.departments.GetByName(ctx, name)
		if err == nil {
			continue
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return apperrors.MapError(err)
		}
		dept := &domain.Department{Name: name, IsActive: true}
		if err := s.departments.Create(ctx, dept); err != nil {
			return apperrors.MapError(err)
		}
		s.logger.Info("department seeded", zap.String("name", name))
	}
	return nil
}

func (s *QueueService) getDepartment(ctx context.Context, departmentID string) (*domain.Department, error) {
	dept, err := s.departments.GetByID(ctx, departmentID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("department", map[string]any{"department_id": departmentID})
		}
		return nil, apperrors.MapError(err)
	}
	return dept, nil
}
