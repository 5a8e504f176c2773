package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/whatsdesk/whatsdesk/internal/domain"
	"github.com/whatsdesk/whatsdesk/internal/repository"
	apperrors "github.com/whatsdesk/whatsdesk/pkg/util"
)

// DirectoryService resolves external identities to customers and
// conversations.
type DirectoryService struct {
	customers     repository.CustomerRepository
	conversations repository.ConversationRepository
	logger        *zap.Logger
}

// DirectoryDependencies bundles repositories.
type DirectoryDependencies struct {
	CustomerRepo     repository.CustomerRepository
	ConversationRepo repository.ConversationRepository
	Logger           *zap.Logger
}

// NewDirectoryService creates the service.
func NewDirectoryService(deps DirectoryDependencies) *DirectoryService {
	return &DirectoryService{
		customers:     deps.CustomerRepo,
		conversations: deps.ConversationRepo,
		logger:        deps.Logger,
	}
}

// NormalizeAddress canonicalizes a phone-like external address. Formatting is
// stripped; an explicit international prefix ("+" or "00") is honored as-is;
// bare 10/11 digit numbers are treated as national and get the country code
// prepended. The function is total and idempotent.
func NormalizeAddress(raw string) string {
	trimmed := strings.TrimSpace(raw)
	international := strings.HasPrefix(trimmed, "+")

	var digits strings.Builder
	for _, ch := range trimmed {
		if ch >= '0' && ch <= '9' {
			digits.WriteRune(ch)
		}
	}
	addr := digits.String()

	if strings.HasPrefix(addr, "00") {
		addr = addr[2:]
		international = true
	}
	if international {
		return addr
	}
	// National numbers are area code (2) + subscriber (8 or 9) digits.
	if len(addr) == 10 || len(addr) == 11 {
		return "55" + addr
	}
	return addr
}

// ResolveOrCreateConversation finds the conversation for an external address,
// creating the customer and conversation records on first contact.
// Re-resolving the same address always yields the same conversation id.
func (s *DirectoryService) ResolveOrCreateConversation(ctx context.Context, externalAddress, displayName string) (*domain.Conversation, error) {
	address := NormalizeAddress(externalAddress)
	if address == "" {
		return nil, apperrors.NewValidationError("external address required", nil)
	}

	conversation, err := s.conversations.GetByAddress(ctx, address)
	if err == nil {
		return conversation, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.MapError(err)
	}

	customer, err := s.customers.GetByAddress(ctx, address)
	if errors.Is(err, pgx.ErrNoRows) {
		name := strings.TrimSpace(displayName)
		if name == "" {
			name = address
		}
		customer = &domain.Customer{Name: name, Address: address}
		if err := s.customers.Create(ctx, customer); err != nil {
			if errors.Is(err, repository.ErrAddressTaken) {
				// Lost a concurrent first-contact race; the winner's row serves.
				customer, err = s.customers.GetByAddress(ctx, address)
				if err != nil {
					return nil, apperrors.MapError(err)
				}
			} else {
				return nil, apperrors.MapError(err)
			}
		}
	} else if err != nil {
		return nil, apperrors.MapError(err)
	}

	conversation = &domain.Conversation{
		CustomerID:  customer.ID,
		Address:     address,
		DisplayName: strings.TrimSpace(displayName),
	}
	if err := s.conversations.Create(ctx, conversation); err != nil {
		if errors.Is(err, repository.ErrConversationExists) {
			existing, getErr := s.conversations.GetByAddress(ctx, address)
			if getErr != nil {
				return nil, apperrors.MapError(getErr)
			}
			return existing, nil
		}
		return nil, apperrors.MapError(err)
	}

	s.logger.Info("conversation created",
		zap.String("conversation_id", conversation.ID),
		zap.String("address", address),
	)
	return conversation, nil
}

// ListConversations returns conversations ordered by recent activity.
func (s *DirectoryService) ListConversations(ctx context.Context, limit, offset int) ([]domain.Conversation, error) {
	conversations, err := s.conversations.List(ctx, limit, offset)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return conversations, nil
}

// GetConversation fetches one conversation.
func (s *DirectoryService) GetConversation(ctx context.Context, id string) (*domain.Conversation, error) {
	conversation, err := s.conversations.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("conversation", map[string]any{"conversation_id": id})
		}
		return nil, apperrors.MapError(err)
	}
	return conversation, nil
}

// MarkConversationRead zeroes the unread counter.
func (s *DirectoryService) MarkConversationRead(ctx context.Context, id string) error {
	if err := s.conversations.ResetUnread(ctx, id); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apperrors.NewNotFound("conversation", map[string]any{"conversation_id": id})
		}
		return apperrors.MapError(err)
	}
	return nil
}

// CustomerInput describes customer create/update payloads.
type CustomerInput struct {
	Name    string
	Address string
	Company *string
}

// CreateCustomer registers a customer manually.
func (s *DirectoryService) CreateCustomer(ctx context.Context, input CustomerInput) (*domain.Customer, error) {
	if strings.TrimSpace(input.Name) == "" {
		return nil, apperrors.NewValidationError("name required", nil)
	}
	address := NormalizeAddress(input.Address)
	if address == "" {
		return nil, apperrors.NewValidationError("address required", nil)
	}
	customer := &domain.Customer{
		Name:    strings.TrimSpace(input.Name),
		Address: address,
		Company: input.Company,
	}
	if err := s.customers.Create(ctx, customer); err != nil {
		if errors.Is(err, repository.ErrAddressTaken) {
			return nil, apperrors.NewConflict("address already registered", map[string]any{"address": address})
		}
		return nil, apperrors.MapError(err)
	}
	return customer, nil
}

// UpdateCustomer edits a customer; address changes re-normalize and are
// rejected when they would collide with a different customer.
func (s *DirectoryService) UpdateCustomer(ctx context.Context, id string, input CustomerInput) (*domain.Customer, error) {
	customer, err := s.customers.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("customer", map[string]any{"customer_id": id})
		}
		return nil, apperrors.MapError(err)
	}
	if strings.TrimSpace(input.Name) != "" {
		customer.Name = strings.TrimSpace(input.Name)
	}
	if strings.TrimSpace(input.Address) != "" {
		customer.Address = NormalizeAddress(input.Address)
	}
	if input.Company != nil {
		customer.Company = input.Company
	}
	if err := s.customers.Update(ctx, customer); err != nil {
		if errors.Is(err, repository.ErrAddressTaken) {
			return nil, apperrors.NewConflict("address already registered", map[string]any{"address": customer.Address})
		}
		return nil, apperrors.MapError(err)
	}
	return customer, nil
}

// RemoveCustomer soft-removes a customer from listings.
func (s *DirectoryService) RemoveCustomer(ctx context.Context, id string) error {
	if err := s.customers.SoftRemove(ctx, id); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apperrors.NewNotFound("customer", map[string]any{"customer_id": id})
		}
		return apperrors.MapError(err)
	}
	return nil
}

// ListCustomers returns non-removed customers.
func (s *DirectoryService) ListCustomers(ctx context.Context, limit, offset int) ([]domain.Customer, error) {
	customers, err := s.customers.List(ctx, limit, offset)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return customers, nil
}

// TouchConversation advances last-activity; inbound traffic also increments
// the unread counter.
func (s *DirectoryService) TouchConversation(ctx context.Context, id string, at time.Time, inbound bool) error {
	delta := 0
	if inbound {
		delta = 1
	}
	return apperrors.MapError(s.conversations.BumpActivity(ctx, id, at, delta))
}
