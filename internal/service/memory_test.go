package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/whatsdesk/whatsdesk/internal/domain"
	"github.com/whatsdesk/whatsdesk/internal/events"
	"github.com/whatsdesk/whatsdesk/internal/repository"
)

// memDB is a mutex-guarded in-memory store backing the fake repositories.
// The conditional writes hold the lock for the whole check-and-set, matching
// the atomicity the SQL layer provides, so racing service calls resolve the
// same way they would against the real store.
type memDB struct {
	mu            sync.Mutex
	seq           int
	customers     map[string]*domain.Customer
	conversations map[string]*domain.Conversation
	departments   map[string]*domain.Department
	agents        map[string]*domain.Agent
	tickets       map[string]*domain.Ticket
	assignments   []domain.Assignment
	messages      []domain.Message
}

func newMemDB() *memDB {
	return &memDB{
		customers:     make(map[string]*domain.Customer),
		conversations: make(map[string]*domain.Conversation),
		departments:   make(map[string]*domain.Department),
		agents:        make(map[string]*domain.Agent),
		tickets:       make(map[string]*domain.Ticket),
	}
}

func (db *memDB) nextID(prefix string) string {
	db.seq++
	return fmt.Sprintf("%s-%04d", prefix, db.seq)
}

// eventRecorder captures published events for assertions.
type eventRecorder struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *eventRecorder) Publish(_ context.Context, event events.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *eventRecorder) Subscribe(events.EventType, events.EventHandler) {}

func (r *eventRecorder) byType(eventType events.EventType) []events.Event {
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

// --- customers ---

type memCustomerRepo struct{ db *memDB }

func (r *memCustomerRepo) Create(_ context.Context, customer *domain.Customer) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, existing := range r.db.customers {
		if existing.Address == customer.Address {
			return repository.ErrAddressTaken
		}
	}
	customer.ID = r.db.nextID("cus")
	customer.CreatedAt = time.Now()
	customer.UpdatedAt = customer.CreatedAt
	clone := *customer
	r.db.customers[customer.ID] = &clone
	return nil
}

func (r *memCustomerRepo) Update(_ context.Context, customer *domain.Customer) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	existing, ok := r.db.customers[customer.ID]
	if !ok {
		return pgx.ErrNoRows
	}
	for id, other := range r.db.customers {
		if id != customer.ID && other.Address == customer.Address {
			return repository.ErrAddressTaken
		}
	}
	customer.UpdatedAt = time.Now()
	clone := *customer
	clone.CreatedAt = existing.CreatedAt
	r.db.customers[customer.ID] = &clone
	return nil
}

func (r *memCustomerRepo) GetByID(_ context.Context, id string) (*domain.Customer, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if customer, ok := r.db.customers[id]; ok {
		clone := *customer
		return &clone, nil
	}
	return nil, pgx.ErrNoRows
}

func (r *memCustomerRepo) GetByAddress(_ context.Context, address string) (*domain.Customer, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, customer := range r.db.customers {
		if customer.Address == address {
			clone := *customer
			return &clone, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (r *memCustomerRepo) List(_ context.Context, limit, _ int) ([]domain.Customer, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var out []domain.Customer
	for _, customer := range r.db.customers {
		if !customer.Removed {
			out = append(out, *customer)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *memCustomerRepo) SoftRemove(_ context.Context, id string) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	customer, ok := r.db.customers[id]
	if !ok {
		return pgx.ErrNoRows
	}
	customer.Removed = true
	return nil
}

// --- conversations ---

type memConversationRepo struct{ db *memDB }

func (r *memConversationRepo) Create(_ context.Context, conversation *domain.Conversation) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, existing := range r.db.conversations {
		if existing.Address == conversation.Address {
			return repository.ErrConversationExists
		}
	}
	conversation.ID = r.db.nextID("conv")
	conversation.CreatedAt = time.Now()
	conversation.LastActivityAt = conversation.CreatedAt
	clone := *conversation
	r.db.conversations[conversation.ID] = &clone
	return nil
}

func (r *memConversationRepo) GetByID(_ context.Context, id string) (*domain.Conversation, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if conversation, ok := r.db.conversations[id]; ok {
		clone := *conversation
		return &clone, nil
	}
	return nil, pgx.ErrNoRows
}

func (r *memConversationRepo) GetByAddress(_ context.Context, address string) (*domain.Conversation, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, conversation := range r.db.conversations {
		if conversation.Address == address {
			clone := *conversation
			return &clone, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (r *memConversationRepo) List(_ context.Context, limit, _ int) ([]domain.Conversation, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var out []domain.Conversation
	for _, conversation := range r.db.conversations {
		out = append(out, *conversation)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastActivityAt.After(out[j].LastActivityAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *memConversationRepo) BumpActivity(_ context.Context, id string, at time.Time, unreadDelta int) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	conversation, ok := r.db.conversations[id]
	if !ok {
		return pgx.ErrNoRows
	}
	if at.After(conversation.LastActivityAt) {
		conversation.LastActivityAt = at
	}
	conversation.UnreadCount += unreadDelta
	return nil
}

func (r *memConversationRepo) ResetUnread(_ context.Context, id string) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	conversation, ok := r.db.conversations[id]
	if !ok {
		return pgx.ErrNoRows
	}
	conversation.UnreadCount = 0
	return nil
}

// --- departments ---

type memDepartmentRepo struct{ db *memDB }

func (r *memDepartmentRepo) Create(_ context.Context, dept *domain.Department) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	dept.ID = r.db.nextID("dep")
	dept.CreatedAt = time.Now()
	clone := *dept
	r.db.departments[dept.ID] = &clone
	return nil
}

func (r *memDepartmentRepo) Update(_ context.Context, dept *domain.Department) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if _, ok := r.db.departments[dept.ID]; !ok {
		return pgx.ErrNoRows
	}
	clone := *dept
	r.db.departments[dept.ID] = &clone
	return nil
}

func (r *memDepartmentRepo) GetByID(_ context.Context, id string) (*domain.Department, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if dept, ok := r.db.departments[id]; ok {
		clone := *dept
		return &clone, nil
	}
	return nil, pgx.ErrNoRows
}

func (r *memDepartmentRepo) GetByName(_ context.Context, name string) (*domain.Department, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, dept := range r.db.departments {
		if dept.Name == name {
			clone := *dept
			return &clone, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (r *memDepartmentRepo) ListActive(_ context.Context) ([]domain.Department, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var out []domain.Department
	for _, dept := range r.db.departments {
		if dept.IsActive {
			out = append(out, *dept)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// --- agents ---

type memAgentRepo struct{ db *memDB }

func (r *memAgentRepo) Create(_ context.Context, agent *domain.Agent) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, existing := range r.db.agents {
		if existing.Email == agent.Email {
			return repository.ErrEmailTaken
		}
	}
	agent.ID = r.db.nextID("agt")
	agent.CreatedAt = time.Now()
	clone := *agent
	clone.DepartmentIDs = append([]string{}, agent.DepartmentIDs...)
	r.db.agents[agent.ID] = &clone
	return nil
}

func (r *memAgentRepo) GetByID(_ context.Context, id string) (*domain.Agent, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if agent, ok := r.db.agents[id]; ok {
		clone := *agent
		clone.DepartmentIDs = append([]string{}, agent.DepartmentIDs...)
		return &clone, nil
	}
	return nil, pgx.ErrNoRows
}

func (r *memAgentRepo) GetByEmail(_ context.Context, email string) (*domain.Agent, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, agent := range r.db.agents {
		if agent.Email == email {
			clone := *agent
			return &clone, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (r *memAgentRepo) List(_ context.Context) ([]domain.Agent, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var out []domain.Agent
	for _, agent := range r.db.agents {
		out = append(out, *agent)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *memAgentRepo) SetDepartments(_ context.Context, agentID string, departmentIDs []string) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	agent, ok := r.db.agents[agentID]
	if !ok {
		return pgx.ErrNoRows
	}
	agent.DepartmentIDs = append([]string{}, departmentIDs...)
	return nil
}

// --- tickets ---

type memTicketRepo struct{ db *memDB }

func (r *memTicketRepo) Create(_ context.Context, ticket *domain.Ticket) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, existing := range r.db.tickets {
		if existing.ConversationID == ticket.ConversationID && existing.Open() {
			return repository.ErrOpenTicketExists
		}
	}
	ticket.ID = r.db.nextID("tkt")
	ticket.CreatedAt = time.Now()
	ticket.UpdatedAt = ticket.CreatedAt
	clone := *ticket
	r.db.tickets[ticket.ID] = &clone
	return nil
}

func (r *memTicketRepo) GetByID(_ context.Context, id string) (*domain.Ticket, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if ticket, ok := r.db.tickets[id]; ok {
		clone := *ticket
		return &clone, nil
	}
	return nil, pgx.ErrNoRows
}

func (r *memTicketRepo) GetOpenByConversation(_ context.Context, conversationID string) (*domain.Ticket, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, ticket := range r.db.tickets {
		if ticket.ConversationID == conversationID && ticket.Open() {
			clone := *ticket
			return &clone, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (r *memTicketRepo) ListWithFilter(_ context.Context, filter repository.TicketFilter) ([]domain.Ticket, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var out []domain.Ticket
	for _, ticket := range r.db.tickets {
		if filter.ConversationID != nil && ticket.ConversationID != *filter.ConversationID {
			continue
		}
		if filter.DepartmentID != nil && ticket.DepartmentID != *filter.DepartmentID {
			continue
		}
		if filter.AgentID != nil && (ticket.AgentID == nil || *ticket.AgentID != *filter.AgentID) {
			continue
		}
		if len(filter.Statuses) > 0 && !containsStatus(filter.Statuses, ticket.Status) {
			continue
		}
		if filter.SubjectTerm != nil && (ticket.Subject == nil ||
			!strings.Contains(strings.ToLower(*ticket.Subject), strings.ToLower(*filter.SubjectTerm))) {
			continue
		}
		out = append(out, *ticket)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out, nil
}

func (r *memTicketRepo) ListQueued(_ context.Context, departmentID string) ([]domain.Ticket, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var out []domain.Ticket
	for _, ticket := range r.db.tickets {
		if ticket.DepartmentID == departmentID && ticket.Status == domain.TicketStatusQueued {
			out = append(out, *ticket)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority.Rank() != out[j].Priority.Rank() {
			return out[i].Priority.Rank() < out[j].Priority.Rank()
		}
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (r *memTicketRepo) CountForAgent(_ context.Context, agentID string) (repository.AgentTicketCounts, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	seen := map[string]bool{}
	for _, assignment := range r.db.assignments {
		if assignment.AgentID == agentID {
			seen[assignment.TicketID] = true
		}
	}
	counts := repository.AgentTicketCounts{}
	for id, ticket := range r.db.tickets {
		owned := ticket.AgentID != nil && *ticket.AgentID == agentID
		if owned || seen[id] {
			counts.Total++
			if ticket.Status == domain.TicketStatusActive {
				counts.Active++
			}
		}
	}
	return counts, nil
}

func (r *memTicketRepo) Claim(_ context.Context, ticketID, agentID string) (*domain.Ticket, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	ticket, ok := r.db.tickets[ticketID]
	if !ok {
		return nil, repository.ErrNoMatch
	}
	claimable := ticket.Status == domain.TicketStatusQueued ||
		(ticket.Status == domain.TicketStatusActive && ticket.AgentID == nil)
	if !claimable {
		return nil, repository.ErrNoMatch
	}
	owner := agentID
	ticket.AgentID = &owner
	ticket.Status = domain.TicketStatusActive
	ticket.UpdatedAt = time.Now()
	r.openAssignmentLocked(ticketID, agentID)
	clone := *ticket
	return &clone, nil
}

func (r *memTicketRepo) Transfer(_ context.Context, ticketID, fromAgentID string, toAgentID *string, departmentID string) (*domain.Ticket, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	ticket, ok := r.db.tickets[ticketID]
	if !ok || ticket.Status != domain.TicketStatusActive || ticket.AgentID == nil || *ticket.AgentID != fromAgentID {
		return nil, repository.ErrNoMatch
	}
	r.closeAssignmentLocked(ticketID, fromAgentID, domain.AssignmentStatusTransferred)
	ticket.DepartmentID = departmentID
	ticket.UpdatedAt = time.Now()
	if toAgentID != nil {
		owner := *toAgentID
		ticket.AgentID = &owner
		r.openAssignmentLocked(ticketID, owner)
	} else {
		ticket.AgentID = nil
		ticket.Status = domain.TicketStatusQueued
	}
	clone := *ticket
	return &clone, nil
}

func (r *memTicketRepo) Release(_ context.Context, ticketID, agentID string) (*domain.Ticket, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	ticket, ok := r.db.tickets[ticketID]
	if !ok || ticket.Status != domain.TicketStatusActive || ticket.AgentID == nil || *ticket.AgentID != agentID {
		return nil, repository.ErrNoMatch
	}
	r.closeAssignmentLocked(ticketID, agentID, domain.AssignmentStatusReleased)
	ticket.AgentID = nil
	ticket.Status = domain.TicketStatusQueued
	ticket.UpdatedAt = time.Now()
	clone := *ticket
	return &clone, nil
}

func (r *memTicketRepo) Close(_ context.Context, ticketID, agentID, subject string) (*domain.Ticket, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	ticket, ok := r.db.tickets[ticketID]
	if !ok || ticket.Status != domain.TicketStatusActive || ticket.AgentID == nil || *ticket.AgentID != agentID {
		return nil, repository.ErrNoMatch
	}
	r.closeAssignmentLocked(ticketID, agentID, domain.AssignmentStatusClosed)
	now := time.Now()
	ticket.Status = domain.TicketStatusClosed
	ticket.Subject = &subject
	ticket.ClosedAt = &now
	ticket.UpdatedAt = now
	clone := *ticket
	return &clone, nil
}

func (r *memTicketRepo) openAssignmentLocked(ticketID, agentID string) {
	r.db.assignments = append(r.db.assignments, domain.Assignment{
		ID:        r.db.nextID("asg"),
		TicketID:  ticketID,
		AgentID:   agentID,
		Status:    domain.AssignmentStatusActive,
		ClaimedAt: time.Now(),
	})
}

func (r *memTicketRepo) closeAssignmentLocked(ticketID, agentID string, status domain.AssignmentStatus) {
	now := time.Now()
	for i := range r.db.assignments {
		assignment := &r.db.assignments[i]
		if assignment.TicketID == ticketID && assignment.AgentID == agentID && assignment.Status == domain.AssignmentStatusActive {
			assignment.Status = status
			assignment.ClosedAt = &now
		}
	}
}

// --- assignments ---

type memAssignmentRepo struct{ db *memDB }

func (r *memAssignmentRepo) ListByTicket(_ context.Context, ticketID string) ([]domain.Assignment, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var out []domain.Assignment
	for _, assignment := range r.db.assignments {
		if assignment.TicketID == ticketID {
			out = append(out, assignment)
		}
	}
	return out, nil
}

func (r *memAssignmentRepo) GetOpenByTicket(_ context.Context, ticketID string) (*domain.Assignment, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, assignment := range r.db.assignments {
		if assignment.TicketID == ticketID && assignment.Status == domain.AssignmentStatusActive {
			clone := assignment
			return &clone, nil
		}
	}
	return nil, pgx.ErrNoRows
}

// --- messages ---

type memMessageRepo struct{ db *memDB }

func (r *memMessageRepo) Create(_ context.Context, msg *domain.Message) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if msg.ProviderMessageID != nil {
		for _, existing := range r.db.messages {
			if existing.ProviderMessageID != nil && *existing.ProviderMessageID == *msg.ProviderMessageID {
				return repository.ErrDuplicateMessage
			}
		}
	}
	msg.ID = r.db.nextID("msg")
	msg.CreatedAt = time.Now()
	r.db.messages = append(r.db.messages, *msg)
	return nil
}

func (r *memMessageRepo) ListByConversation(_ context.Context, conversationID string, limit, _ int) ([]domain.Message, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var out []domain.Message
	for _, msg := range r.db.messages {
		if msg.ConversationID == conversationID {
			out = append(out, msg)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *memMessageRepo) ListByTicket(_ context.Context, ticketID string) ([]domain.Message, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var out []domain.Message
	for _, msg := range r.db.messages {
		if msg.TicketID != nil && *msg.TicketID == ticketID {
			out = append(out, msg)
		}
	}
	return out, nil
}

func containsStatus(statuses []domain.TicketStatus, status domain.TicketStatus) bool {
	for _, s := range statuses {
		if s == status {
			return true
		}
	}
	return false
}

// --- environment ---

type testEnv struct {
	db          *memDB
	recorder    *eventRecorder
	directory   *DirectoryService
	tickets     *TicketService
	assignments *AssignmentService
	queues      *QueueService
	agents      *AgentService
}

func newTestEnv() *testEnv {
	db := newMemDB()
	recorder := &eventRecorder{}
	logger := zap.NewNop()

	customerRepo := &memCustomerRepo{db: db}
	conversationRepo := &memConversationRepo{db: db}
	departmentRepo := &memDepartmentRepo{db: db}
	agentRepo := &memAgentRepo{db: db}
	ticketRepo := &memTicketRepo{db: db}
	assignmentRepo := &memAssignmentRepo{db: db}
	messageRepo := &memMessageRepo{db: db}

	return &testEnv{
		db:       db,
		recorder: recorder,
		directory: NewDirectoryService(DirectoryDependencies{
			CustomerRepo:     customerRepo,
			ConversationRepo: conversationRepo,
			Logger:           logger,
		}),
		tickets: NewTicketService(TicketDependencies{
			TicketRepo:       ticketRepo,
			AssignmentRepo:   assignmentRepo,
			MessageRepo:      messageRepo,
			ConversationRepo: conversationRepo,
			DepartmentRepo:   departmentRepo,
			Dispatcher:       recorder,
			Logger:           logger,
		}),
		assignments: NewAssignmentService(AssignmentDependencies{
			TicketRepo:     ticketRepo,
			AgentRepo:      agentRepo,
			DepartmentRepo: departmentRepo,
			Dispatcher:     recorder,
			Logger:         logger,
		}),
		queues: NewQueueService(QueueDependencies{
			TicketRepo:     ticketRepo,
			DepartmentRepo: departmentRepo,
			Logger:         logger,
		}),
		agents: NewAgentService(AgentDependencies{
			AgentRepo:      agentRepo,
			DepartmentRepo: departmentRepo,
			Logger:         logger,
		}),
	}
}

func (env *testEnv) addDepartment(name string) *domain.Department {
	dept, err := env.queues.CreateDepartment(context.Background(), name, "")
	if err != nil {
		panic(err)
	}
	return dept
}

func (env *testEnv) addAgent(name string, departmentIDs ...string) *domain.Agent {
	email := strings.ToLower(strings.ReplaceAll(name, " ", ".")) + "@example.com"
	agent, err := env.agents.CreateAgent(context.Background(), name, email)
	if err != nil {
		panic(err)
	}
	if len(departmentIDs) > 0 {
		agent, err = env.agents.SetDepartments(context.Background(), agent.ID, departmentIDs)
		if err != nil {
			panic(err)
		}
	}
	return agent
}

func (env *testEnv) addConversation(address string) *domain.Conversation {
	conversation, err := env.directory.ResolveOrCreateConversation(context.Background(), address, "")
	if err != nil {
		panic(err)
	}
	return conversation
}
