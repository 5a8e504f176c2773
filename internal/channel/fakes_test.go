package channel

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/whatsdesk/whatsdesk/internal/domain"
	"github.com/whatsdesk/whatsdesk/internal/events"
	"github.com/whatsdesk/whatsdesk/internal/repository"
)

// fakeProvider is a scripted provider: tests feed events through Emit and
// observe sends.
type fakeProvider struct {
	mu        sync.Mutex
	events    chan ProviderEvent
	sent      []OutboundMessage
	sendErr   error
	sendDelay time.Duration
	nextID    int
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{events: make(chan ProviderEvent, 16)}
}

func (p *fakeProvider) Connect(context.Context) error { return nil }

func (p *fakeProvider) Disconnect() error {
	close(p.events)
	return nil
}

func (p *fakeProvider) Send(ctx context.Context, msg OutboundMessage) (string, error) {
	if p.sendDelay > 0 {
		select {
		case <-time.After(p.sendDelay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.sendErr != nil {
		return "", p.sendErr
	}
	p.sent = append(p.sent, msg)
	p.nextID++
	return fmt.Sprintf("prov-%03d", p.nextID), nil
}

func (p *fakeProvider) Events() <-chan ProviderEvent { return p.events }

func (p *fakeProvider) Emit(ev ProviderEvent) { p.events <- ev }

func (p *fakeProvider) sentCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.sent)
}

// recorder captures dispatched events.
type recorder struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recorder) Publish(_ context.Context, event events.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *recorder) Subscribe(events.EventType, events.EventHandler) {}

func (r *recorder) byType(eventType events.EventType) []events.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []events.Event
	for _, event := range r.events {
		if event.Type == eventType {
			out = append(out, event)
		}
	}
	return out
}

func (r *recorder) waitFor(eventType events.EventType, count int, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if len(r.byType(eventType)) >= count {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return false
}

// --- minimal repositories ---

type fakeStore struct {
	mu            sync.Mutex
	seq           int
	customers     map[string]*domain.Customer
	conversations map[string]*domain.Conversation
	departments   map[string]*domain.Department
	tickets       map[string]*domain.Ticket
	messages      []domain.Message
	processed     map[string]bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		customers:     make(map[string]*domain.Customer),
		conversations: make(map[string]*domain.Conversation),
		departments:   make(map[string]*domain.Department),
		tickets:       make(map[string]*domain.Ticket),
		processed:     make(map[string]bool),
	}
}

func (s *fakeStore) nextID(prefix string) string {
	s.seq++
	return fmt.Sprintf("%s-%04d", prefix, s.seq)
}

func (s *fakeStore) addDepartment(name string) *domain.Department {
	s.mu.Lock()
	defer s.mu.Unlock()
	dept := &domain.Department{ID: s.nextID("dep"), Name: name, IsActive: true, CreatedAt: time.Now()}
	s.departments[dept.ID] = dept
	return dept
}

func (s *fakeStore) addConversation(address string) *domain.Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	conversation := &domain.Conversation{
		ID:             s.nextID("conv"),
		CustomerID:     s.nextID("cus"),
		Address:        address,
		LastActivityAt: time.Now(),
		CreatedAt:      time.Now(),
	}
	s.conversations[conversation.ID] = conversation
	return conversation
}

func (s *fakeStore) messageCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.messages)
}

func (s *fakeStore) lastMessage() domain.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.messages[len(s.messages)-1]
}

type fakeCustomerRepo struct{ store *fakeStore }

func (r *fakeCustomerRepo) Create(_ context.Context, customer *domain.Customer) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	for _, existing := range r.store.customers {
		if existing.Address == customer.Address {
			return repository.ErrAddressTaken
		}
	}
	customer.ID = r.store.nextID("cus")
	clone := *customer
	r.store.customers[customer.ID] = &clone
	return nil
}

func (r *fakeCustomerRepo) Update(context.Context, *domain.Customer) error { return nil }

func (r *fakeCustomerRepo) GetByID(_ context.Context, id string) (*domain.Customer, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if customer, ok := r.store.customers[id]; ok {
		clone := *customer
		return &clone, nil
	}
	return nil, pgx.ErrNoRows
}

func (r *fakeCustomerRepo) GetByAddress(_ context.Context, address string) (*domain.Customer, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	for _, customer := range r.store.customers {
		if customer.Address == address {
			clone := *customer
			return &clone, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (r *fakeCustomerRepo) List(context.Context, int, int) ([]domain.Customer, error) {
	return nil, nil
}

func (r *fakeCustomerRepo) SoftRemove(context.Context, string) error { return nil }

type fakeConversationRepo struct{ store *fakeStore }

func (r *fakeConversationRepo) Create(_ context.Context, conversation *domain.Conversation) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	for _, existing := range r.store.conversations {
		if existing.Address == conversation.Address {
			return repository.ErrConversationExists
		}
	}
	conversation.ID = r.store.nextID("conv")
	conversation.CreatedAt = time.Now()
	conversation.LastActivityAt = conversation.CreatedAt
	clone := *conversation
	r.store.conversations[conversation.ID] = &clone
	return nil
}

func (r *fakeConversationRepo) GetByID(_ context.Context, id string) (*domain.Conversation, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if conversation, ok := r.store.conversations[id]; ok {
		clone := *conversation
		return &clone, nil
	}
	return nil, pgx.ErrNoRows
}

func (r *fakeConversationRepo) GetByAddress(_ context.Context, address string) (*domain.Conversation, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	for _, conversation := range r.store.conversations {
		if conversation.Address == address {
			clone := *conversation
			return &clone, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (r *fakeConversationRepo) List(context.Context, int, int) ([]domain.Conversation, error) {
	return nil, nil
}

func (r *fakeConversationRepo) BumpActivity(_ context.Context, id string, at time.Time, unreadDelta int) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	conversation, ok := r.store.conversations[id]
	if !ok {
		return pgx.ErrNoRows
	}
	if at.After(conversation.LastActivityAt) {
		conversation.LastActivityAt = at
	}
	conversation.UnreadCount += unreadDelta
	return nil
}

func (r *fakeConversationRepo) ResetUnread(_ context.Context, id string) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if conversation, ok := r.store.conversations[id]; ok {
		conversation.UnreadCount = 0
		return nil
	}
	return pgx.ErrNoRows
}

type fakeDepartmentRepo struct{ store *fakeStore }

func (r *fakeDepartmentRepo) Create(_ context.Context, dept *domain.Department) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	dept.ID = r.store.nextID("dep")
	clone := *dept
	r.store.departments[dept.ID] = &clone
	return nil
}

func (r *fakeDepartmentRepo) Update(context.Context, *domain.Department) error { return nil }

func (r *fakeDepartmentRepo) GetByID(_ context.Context, id string) (*domain.Department, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if dept, ok := r.store.departments[id]; ok {
		clone := *dept
		return &clone, nil
	}
	return nil, pgx.ErrNoRows
}

func (r *fakeDepartmentRepo) GetByName(context.Context, string) (*domain.Department, error) {
	return nil, pgx.ErrNoRows
}

func (r *fakeDepartmentRepo) ListActive(context.Context) ([]domain.Department, error) {
	return nil, nil
}

type fakeTicketRepo struct{ store *fakeStore }

func (r *fakeTicketRepo) Create(_ context.Context, ticket *domain.Ticket) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	for _, existing := range r.store.tickets {
		if existing.ConversationID == ticket.ConversationID && existing.Open() {
			return repository.ErrOpenTicketExists
		}
	}
	ticket.ID = r.store.nextID("tkt")
	ticket.CreatedAt = time.Now()
	ticket.UpdatedAt = ticket.CreatedAt
	clone := *ticket
	r.store.tickets[ticket.ID] = &clone
	return nil
}

func (r *fakeTicketRepo) GetByID(_ context.Context, id string) (*domain.Ticket, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if ticket, ok := r.store.tickets[id]; ok {
		clone := *ticket
		return &clone, nil
	}
	return nil, pgx.ErrNoRows
}

func (r *fakeTicketRepo) GetOpenByConversation(_ context.Context, conversationID string) (*domain.Ticket, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	for _, ticket := range r.store.tickets {
		if ticket.ConversationID == conversationID && ticket.Open() {
			clone := *ticket
			return &clone, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (r *fakeTicketRepo) ListWithFilter(context.Context, repository.TicketFilter) ([]domain.Ticket, error) {
	return nil, nil
}

func (r *fakeTicketRepo) ListQueued(context.Context, string) ([]domain.Ticket, error) {
	return nil, nil
}

func (r *fakeTicketRepo) CountForAgent(context.Context, string) (repository.AgentTicketCounts, error) {
	return repository.AgentTicketCounts{}, nil
}

func (r *fakeTicketRepo) Claim(context.Context, string, string) (*domain.Ticket, error) {
	return nil, repository.ErrNoMatch
}

func (r *fakeTicketRepo) Transfer(context.Context, string, string, *string, string) (*domain.Ticket, error) {
	return nil, repository.ErrNoMatch
}

func (r *fakeTicketRepo) Release(context.Context, string, string) (*domain.Ticket, error) {
	return nil, repository.ErrNoMatch
}

func (r *fakeTicketRepo) Close(context.Context, string, string, string) (*domain.Ticket, error) {
	return nil, repository.ErrNoMatch
}

type fakeAssignmentRepo struct{}

func (r *fakeAssignmentRepo) ListByTicket(context.Context, string) ([]domain.Assignment, error) {
	return nil, nil
}

func (r *fakeAssignmentRepo) GetOpenByTicket(context.Context, string) (*domain.Assignment, error) {
	return nil, pgx.ErrNoRows
}

type fakeMessageRepo struct{ store *fakeStore }

func (r *fakeMessageRepo) Create(_ context.Context, msg *domain.Message) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if msg.ProviderMessageID != nil {
		for _, existing := range r.store.messages {
			if existing.ProviderMessageID != nil && *existing.ProviderMessageID == *msg.ProviderMessageID {
				return repository.ErrDuplicateMessage
			}
		}
	}
	msg.ID = r.store.nextID("msg")
	msg.CreatedAt = time.Now()
	r.store.messages = append(r.store.messages, *msg)
	return nil
}

func (r *fakeMessageRepo) ListByConversation(_ context.Context, conversationID string, _, _ int) ([]domain.Message, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	var out []domain.Message
	for _, msg := range r.store.messages {
		if msg.ConversationID == conversationID {
			out = append(out, msg)
		}
	}
	return out, nil
}

func (r *fakeMessageRepo) ListByTicket(context.Context, string) ([]domain.Message, error) {
	return nil, nil
}

type fakeDedupRepo struct{ store *fakeStore }

func (r *fakeDedupRepo) IsDuplicate(_ context.Context, providerMessageID string) (bool, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	return r.store.processed[providerMessageID], nil
}

func (r *fakeDedupRepo) MarkProcessed(_ context.Context, providerMessageID string, _ time.Duration) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	r.store.processed[providerMessageID] = true
	return nil
}
