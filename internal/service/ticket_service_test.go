package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/whatsdesk/whatsdesk/internal/domain"
	"github.com/whatsdesk/whatsdesk/internal/events"
	apperrors "github.com/whatsdesk/whatsdesk/pkg/util"
)

func TestOpenSecondTicketRejected(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	dept := env.addDepartment("Support")
	conversation := env.addConversation("5511912345678")

	first, err := env.tickets.Open(ctx, conversation.ID, dept.ID, domain.TicketPriorityNormal)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusQueued, first.Status)

	_, err = env.tickets.Open(ctx, conversation.ID, dept.ID, domain.TicketPriorityHigh)
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, "ALREADY_OPEN"))

	// After closing, a fresh episode can start.
	agent := env.addAgent("Agent", dept.ID)
	_, err = env.assignments.Claim(ctx, first.ID, agent.ID)
	require.NoError(t, err)
	_, err = env.tickets.Close(ctx, first.ID, agent.ID, "initial question answered")
	require.NoError(t, err)

	second, err := env.tickets.Open(ctx, conversation.ID, dept.ID, domain.TicketPriorityNormal)
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)
}

func TestOpenDefaultsPriorityToNormal(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	dept := env.addDepartment("Support")
	conversation := env.addConversation("5511912345678")

	ticket, err := env.tickets.Open(ctx, conversation.ID, dept.ID, "")
	require.NoError(t, err)
	assert.Equal(t, domain.TicketPriorityNormal, ticket.Priority)
}

func TestOpenOrReuseReturnsExistingEpisode(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	dept := env.addDepartment("Support")
	conversation := env.addConversation("5511912345678")

	first, err := env.tickets.OpenOrReuse(ctx, conversation.ID, dept.ID)
	require.NoError(t, err)
	second, err := env.tickets.OpenOrReuse(ctx, conversation.ID, dept.ID)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
}

func TestCloseRequiresSubject(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	dept := env.addDepartment("Support")
	agent := env.addAgent("Agent", dept.ID)
	conversation := env.addConversation("5511912345678")
	ticket, err := env.tickets.Open(ctx, conversation.ID, dept.ID, domain.TicketPriorityNormal)
	require.NoError(t, err)
	_, err = env.assignments.Claim(ctx, ticket.ID, agent.ID)
	require.NoError(t, err)

	_, err = env.tickets.Close(ctx, ticket.ID, agent.ID, "   ")
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, "VALIDATION_FAILED"))

	// Still open and owned after the rejected close.
	got, err := env.tickets.GetTicket(ctx, ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusActive, got.Status)
}

func TestCloseIsTerminal(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	dept := env.addDepartment("Support")
	agent := env.addAgent("Agent", dept.ID)
	conversation := env.addConversation("5511912345678")
	ticket, err := env.tickets.Open(ctx, conversation.ID, dept.ID, domain.TicketPriorityNormal)
	require.NoError(t, err)
	_, err = env.assignments.Claim(ctx, ticket.ID, agent.ID)
	require.NoError(t, err)

	closed, err := env.tickets.Close(ctx, ticket.ID, agent.ID, "done")
	require.NoError(t, err)
	require.NotNil(t, closed.ClosedAt)
	require.NotNil(t, closed.Subject)
	assert.Equal(t, "done", *closed.Subject)

	_, err = env.tickets.Close(ctx, ticket.ID, agent.ID, "again")
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, "CONFLICT"))

	_, err = env.assignments.Release(ctx, ticket.ID, agent.ID)
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, "CONFLICT"))
}

func TestCloseByNonOwnerRejected(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	dept := env.addDepartment("Support")
	owner := env.addAgent("Owner", dept.ID)
	intruder := env.addAgent("Intruder", dept.ID)
	conversation := env.addConversation("5511912345678")
	ticket, err := env.tickets.Open(ctx, conversation.ID, dept.ID, domain.TicketPriorityNormal)
	require.NoError(t, err)
	_, err = env.assignments.Claim(ctx, ticket.ID, owner.ID)
	require.NoError(t, err)

	_, err = env.tickets.Close(ctx, ticket.ID, intruder.ID, "not mine")
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, "NOT_OWNER"))
}

// TestTicketLifecycleEndToEnd walks the whole flow: contact arrives, ticket
// queues, agent claims, transfers across departments, the receiving agent
// closes, and the next contact opens a fresh episode.
func TestTicketLifecycleEndToEnd(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	support := env.addDepartment("Support")
	billing := env.addDepartment("Billing")
	alice := env.addAgent("Alice", support.ID)
	bruno := env.addAgent("Bruno", billing.ID)

	conversation := env.addConversation("+55 11 91234-5678")

	ticket, err := env.tickets.OpenOrReuse(ctx, conversation.ID, support.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusQueued, ticket.Status)

	claimed, err := env.assignments.Claim(ctx, ticket.ID, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusActive, claimed.Status)

	// Wrong department: requeue into billing, then billing agent picks it up.
	requeued, err := env.assignments.Transfer(ctx, ticket.ID, alice.ID, nil, &billing.ID)
	require.NoError(t, err)
	assert.Equal(t, billing.ID, requeued.DepartmentID)

	claimed, err = env.assignments.Claim(ctx, ticket.ID, bruno.ID)
	require.NoError(t, err)
	require.NotNil(t, claimed.AgentID)
	assert.Equal(t, bruno.ID, *claimed.AgentID)

	closed, err := env.tickets.Close(ctx, ticket.ID, bruno.ID, "invoice reissued")
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusClosed, closed.Status)

	// Next contact starts a new episode in the same conversation.
	next, err := env.tickets.OpenOrReuse(ctx, conversation.ID, support.ID)
	require.NoError(t, err)
	assert.NotEqual(t, ticket.ID, next.ID)
	assert.Equal(t, domain.TicketStatusQueued, next.Status)

	assignments, err := env.tickets.ListAssignments(ctx, ticket.ID)
	require.NoError(t, err)
	require.Len(t, assignments, 2)
	assert.Equal(t, alice.ID, assignments[0].AgentID)
	assert.Equal(t, domain.AssignmentStatusTransferred, assignments[0].Status)
	assert.Equal(t, bruno.ID, assignments[1].AgentID)
	assert.Equal(t, domain.AssignmentStatusClosed, assignments[1].Status)

	created := env.recorder.byType(events.EventTicketCreated)
	assert.Len(t, created, 2)
	closedEvents := env.recorder.byType(events.EventTicketClosed)
	assert.Len(t, closedEvents, 1)
}

func TestAgentStatsCountHandledTickets(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	dept := env.addDepartment("Support")
	agent := env.addAgent("Agent", dept.ID)

	for _, address := range []string{"5511911111111", "5511922222222"} {
		conversation := env.addConversation(address)
		ticket, err := env.tickets.Open(ctx, conversation.ID, dept.ID, domain.TicketPriorityNormal)
		require.NoError(t, err)
		_, err = env.assignments.Claim(ctx, ticket.ID, agent.ID)
		require.NoError(t, err)
	}

	counts, err := env.tickets.AgentStats(ctx, agent.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, counts.Total)
	assert.Equal(t, 2, counts.Active)
}
