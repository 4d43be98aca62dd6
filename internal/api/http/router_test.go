package http

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ticketsla/sla-engine/internal/api/dto"
	"github.com/ticketsla/sla-engine/internal/api/http/handlers"
	"github.com/ticketsla/sla-engine/internal/auth"
	"github.com/ticketsla/sla-engine/internal/clock"
	"github.com/ticketsla/sla-engine/internal/domain"
	"github.com/ticketsla/sla-engine/internal/events"
	"github.com/ticketsla/sla-engine/internal/observability"
	"github.com/ticketsla/sla-engine/internal/service"
	"github.com/ticketsla/sla-engine/internal/sla"
	"github.com/ticketsla/sla-engine/internal/testutil"
)

type testServer struct {
	app    *fiber.App
	store  *testutil.MemoryStore
	clock  *clock.Manual
	tokens *auth.TokenManager
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	store := testutil.NewMemoryStore()
	store.PutAgent(domain.Agent{ID: "agent-1", Name: "Ada", Email: "ada@example.com", Role: domain.StaffRoleAgent, Active: true})
	clk := clock.NewManual(time.Date(2024, 5, 6, 8, 0, 0, 0, time.UTC))
	metrics := observability.NewMetrics()

	balancer := service.NewAssignmentService(service.AssignmentDependencies{
		TicketRepo: store.Tickets(),
		AgentRepo:  store.Agents(),
		Metrics:    metrics,
	})
	tickets := service.NewTicketService(service.TicketDependencies{
		TicketRepo:  store.Tickets(),
		CommentRepo: store.Comments(),
		HistoryRepo: store.History(),
		Balancer:    balancer,
		Policies:    sla.DefaultPolicyTable(),
		Clock:       clk,
		Dispatcher:  events.NewInMemoryDispatcher(nil),
		Metrics:     metrics,
	})
	sweep := service.NewSweepService(service.SweepDependencies{
		TicketRepo:    store.Tickets(),
		TicketService: tickets,
		Metrics:       metrics,
	})
	tokens := auth.NewTokenManager("test-secret", "ticket-sla", 60)

	app := fiber.New()
	RegisterMiddlewares(app, zap.NewNop(), metrics, time.Second)
	RegisterRoutes(app, RouteConfig{
		Tickets:        handlers.NewTicketsHandler(tickets, dto.NewValidator()),
		Agents:         handlers.NewAgentsHandler(balancer),
		SLA:            handlers.NewSLAHandler(sweep, tickets),
		AuthMiddleware: auth.NewAuthMiddleware(tokens),
		Metrics:        metrics,
	})
	return &testServer{app: app, store: store, clock: clk, tokens: tokens}
}

func (s *testServer) userToken(t *testing.T, id string) string {
	t.Helper()
	token, _, err := s.tokens.GenerateToken(id, domain.SubjectTypeUser, nil)
	require.NoError(t, err)
	return token
}

func (s *testServer) staffToken(t *testing.T, id string, role domain.StaffRole) string {
	t.Helper()
	token, _, err := s.tokens.GenerateToken(id, domain.SubjectTypeStaff, &role)
	require.NoError(t, err)
	return token
}

func (s *testServer) do(t *testing.T, method, path, token string, body any) (int, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	if token != "" {
		req.Header.Set(fiber.HeaderAuthorization, "Bearer "+token)
	}
	resp, err := s.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	var decoded map[string]any
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(raw) > 0 && raw[0] == '{' {
		require.NoError(t, json.Unmarshal(raw, &decoded))
	}
	return resp.StatusCode, decoded
}

func data(t *testing.T, body map[string]any) map[string]any {
	t.Helper()
	out, ok := body["data"].(map[string]any)
	require.True(t, ok, "response has no data object: %v", body)
	return out
}

func errorCode(body map[string]any) string {
	errObj, _ := body["error"].(map[string]any)
	code, _ := errObj["code"].(string)
	return code
}

func TestCreateTicketAutoAssignsAndScopesVisibility(t *testing.T) {
	s := newTestServer(t)
	alice := s.userToken(t, "alice")

	status, body := s.do(t, fiber.MethodPost, "/tickets", alice, map[string]any{
		"title":    "Cannot log in",
		"priority": "HIGH",
		"tags":     []string{"auth", "auth"},
	})
	require.Equal(t, fiber.StatusCreated, status)
	ticket := data(t, body)
	assert.Equal(t, "alice", ticket["requester_id"])
	assert.Equal(t, "agent-1", ticket["assignee_id"])
	assert.Equal(t, "OPEN", ticket["status"])
	assert.EqualValues(t, 120, ticket["sla_response_minutes"])
	assert.EqualValues(t, 480, ticket["sla_resolve_minutes"])
	assert.Equal(t, []any{"auth"}, ticket["tags"])
	id := ticket["id"].(string)

	status, _ = s.do(t, fiber.MethodGet, "/tickets/"+id, alice, nil)
	assert.Equal(t, fiber.StatusOK, status)

	status, body = s.do(t, fiber.MethodGet, "/tickets/"+id, s.userToken(t, "mallory"), nil)
	assert.Equal(t, fiber.StatusNotFound, status)
	assert.Equal(t, "NOT_FOUND", errorCode(body))

	status, _ = s.do(t, fiber.MethodGet, "/tickets/"+id, s.staffToken(t, "s-1", domain.StaffRoleAgent), nil)
	assert.Equal(t, fiber.StatusOK, status)
}

func TestAuthenticationAndRoleGuards(t *testing.T) {
	s := newTestServer(t)

	status, body := s.do(t, fiber.MethodGet, "/tickets", "", nil)
	assert.Equal(t, fiber.StatusUnauthorized, status)
	assert.Equal(t, "UNAUTHORIZED", errorCode(body))

	user := s.userToken(t, "alice")
	status, body = s.do(t, fiber.MethodPost, "/tickets/bulk", user, map[string]any{"ticket_ids": []string{"x"}, "operation": "close"})
	assert.Equal(t, fiber.StatusForbidden, status)
	assert.Equal(t, "FORBIDDEN", errorCode(body))

	status, _ = s.do(t, fiber.MethodPost, "/internal/sla/sweep", s.staffToken(t, "s-1", domain.StaffRoleAgent), nil)
	assert.Equal(t, fiber.StatusForbidden, status)

	status, _ = s.do(t, fiber.MethodGet, "/agents/workload", s.staffToken(t, "s-1", domain.StaffRoleAgent), nil)
	assert.Equal(t, fiber.StatusForbidden, status)
}

func TestCreateTicketValidation(t *testing.T) {
	s := newTestServer(t)
	status, body := s.do(t, fiber.MethodPost, "/tickets", s.userToken(t, "alice"), map[string]any{
		"priority": "URGENT",
	})
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Equal(t, "VALIDATION_FAILED", errorCode(body))
	details := body["error"].(map[string]any)["details"].(map[string]any)
	assert.Equal(t, "required", details["title"])
	assert.Equal(t, "ticket_priority", details["priority"])

	status, _ = s.do(t, fiber.MethodPost, "/tickets", s.userToken(t, "alice"), map[string]any{
		"title":        "on behalf",
		"requester_id": "bob",
	})
	assert.Equal(t, fiber.StatusForbidden, status)
}

func TestStaffPatchAndHistory(t *testing.T) {
	s := newTestServer(t)
	_, body := s.do(t, fiber.MethodPost, "/tickets", s.userToken(t, "alice"), map[string]any{"title": "Slow VPN", "priority": "LOW"})
	id := data(t, body)["id"].(string)
	lead := s.staffToken(t, "lead-1", domain.StaffRoleTeamLead)

	status, _ := s.do(t, fiber.MethodPatch, "/tickets/"+id, s.userToken(t, "alice"), map[string]any{"priority": "CRITICAL"})
	assert.Equal(t, fiber.StatusForbidden, status)

	status, body = s.do(t, fiber.MethodPatch, "/tickets/"+id, lead, map[string]any{"priority": "HIGH", "add_tags": []string{"vpn"}})
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "HIGH", data(t, body)["priority"])
	assert.Equal(t, []any{"vpn"}, data(t, body)["tags"])

	status, body = s.do(t, fiber.MethodGet, "/tickets/"+id+"/history", lead, nil)
	require.Equal(t, fiber.StatusOK, status)
	entries := body["data"].([]any)
	var changeTypes []string
	for _, e := range entries {
		changeTypes = append(changeTypes, e.(map[string]any)["change_type"].(string))
	}
	assert.Contains(t, changeTypes, "PRIORITY_CHANGE")
	assert.Contains(t, changeTypes, "TAGS_CHANGE")
	assert.Contains(t, changeTypes, "ASSIGNEE_CHANGE")
}

func TestCommentsRespectVisibility(t *testing.T) {
	s := newTestServer(t)
	alice := s.userToken(t, "alice")
	agent := s.staffToken(t, "agent-1", domain.StaffRoleAgent)
	_, body := s.do(t, fiber.MethodPost, "/tickets", alice, map[string]any{"title": "Refund"})
	id := data(t, body)["id"].(string)

	status, _ := s.do(t, fiber.MethodPost, "/tickets/"+id+"/comments", alice, map[string]any{"content": "hello", "is_internal": true})
	assert.Equal(t, fiber.StatusForbidden, status)

	status, body = s.do(t, fiber.MethodPost, "/tickets/"+id+"/comments", agent, map[string]any{"content": "looking", "is_internal": false})
	require.Equal(t, fiber.StatusCreated, status)
	assert.Equal(t, "STAFF", data(t, body)["author_type"])

	s.clock.Advance(time.Minute)
	status, _ = s.do(t, fiber.MethodPost, "/tickets/"+id+"/comments", agent, map[string]any{"content": "vip", "is_internal": true})
	require.Equal(t, fiber.StatusCreated, status)

	_, body = s.do(t, fiber.MethodGet, "/tickets/"+id+"/comments", alice, nil)
	assert.Len(t, body["data"].([]any), 1)
	_, body = s.do(t, fiber.MethodGet, "/tickets/"+id+"/comments", agent, nil)
	assert.Len(t, body["data"].([]any), 2)

	stored, ok := s.store.Ticket(id)
	require.True(t, ok)
	assert.NotNil(t, stored.FirstResponseAt)
}

func TestListTicketsScopesUsers(t *testing.T) {
	s := newTestServer(t)
	alice := s.userToken(t, "alice")
	s.do(t, fiber.MethodPost, "/tickets", alice, map[string]any{"title": "one"})
	s.do(t, fiber.MethodPost, "/tickets", s.userToken(t, "bob"), map[string]any{"title": "two", "priority": "CRITICAL"})

	status, body := s.do(t, fiber.MethodGet, "/tickets", alice, nil)
	require.Equal(t, fiber.StatusOK, status)
	assert.EqualValues(t, 1, data(t, body)["total"])

	staff := s.staffToken(t, "s-1", domain.StaffRoleAgent)
	_, body = s.do(t, fiber.MethodGet, "/tickets?priority=critical&page_size=5", staff, nil)
	page := data(t, body)
	assert.EqualValues(t, 1, page["total"])
	assert.EqualValues(t, 5, page["page_size"])

	status, body = s.do(t, fiber.MethodGet, "/tickets?status=PAUSED", staff, nil)
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Equal(t, "VALIDATION_FAILED", errorCode(body))

	status, _ = s.do(t, fiber.MethodGet, "/tickets?created_from=yesterday", staff, nil)
	assert.Equal(t, fiber.StatusBadRequest, status)
}

func TestBulkAssignThroughHTTP(t *testing.T) {
	s := newTestServer(t)
	alice := s.userToken(t, "alice")
	_, body := s.do(t, fiber.MethodPost, "/tickets", alice, map[string]any{"title": "a"})
	id := data(t, body)["id"].(string)

	staff := s.staffToken(t, "s-1", domain.StaffRoleTeamLead)
	status, body := s.do(t, fiber.MethodPost, "/tickets/bulk", staff, map[string]any{
		"ticket_ids": []string{id, "missing", id},
		"operation":  "close",
	})
	require.Equal(t, fiber.StatusOK, status)
	result := data(t, body)
	assert.EqualValues(t, 1, result["success"])
	assert.EqualValues(t, 1, result["failed"])
	assert.Contains(t, result["errors"].(map[string]any), "missing")

	status, body = s.do(t, fiber.MethodPost, "/tickets/bulk", staff, map[string]any{
		"ticket_ids": []string{id},
		"operation":  "reopen",
	})
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Equal(t, "VALIDATION_FAILED", errorCode(body))
}

func TestAssignRejectsUnknownAgent(t *testing.T) {
	s := newTestServer(t)
	_, body := s.do(t, fiber.MethodPost, "/tickets", s.userToken(t, "alice"), map[string]any{"title": "a"})
	id := data(t, body)["id"].(string)

	status, body := s.do(t, fiber.MethodPost, "/tickets/"+id+"/assign", s.staffToken(t, "s-1", domain.StaffRoleAgent), map[string]any{"agent_id": "ghost"})
	assert.Equal(t, fiber.StatusNotFound, status)
	assert.Equal(t, "NOT_FOUND", errorCode(body))
}

func TestAdminSweepAndWorkload(t *testing.T) {
	s := newTestServer(t)
	s.do(t, fiber.MethodPost, "/tickets", s.userToken(t, "alice"), map[string]any{"title": "db down", "priority": "CRITICAL"})
	s.clock.Advance(31 * time.Minute)

	admin := s.staffToken(t, "root", domain.StaffRoleAdmin)
	status, body := s.do(t, fiber.MethodPost, "/internal/sla/sweep", admin, nil)
	require.Equal(t, fiber.StatusOK, status)
	result := data(t, body)
	assert.EqualValues(t, 1, result["scanned"])
	assert.EqualValues(t, 1, result["breached"])
	assert.EqualValues(t, 0, result["escalated"])

	status, body = s.do(t, fiber.MethodGet, "/agents/workload", admin, nil)
	require.Equal(t, fiber.StatusOK, status)
	rows := body["data"].([]any)
	require.Len(t, rows, 1)
	assert.Equal(t, "agent-1", rows[0].(map[string]any)["agent_id"])
	assert.EqualValues(t, 1, rows[0].(map[string]any)["active_count"])
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(fiber.MethodGet, "/metrics", nil)
	resp, err := s.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "go_goroutines")
}

func TestStoreOutageIsRetryable(t *testing.T) {
	s := newTestServer(t)
	s.store.FailList = errors.New("connection reset by peer")

	req := httptest.NewRequest(fiber.MethodGet, "/tickets", nil)
	req.Header.Set(fiber.HeaderAuthorization, "Bearer "+s.staffToken(t, "s-1", domain.StaffRoleAgent))
	resp, err := s.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, fiber.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, retryAfterSeconds, resp.Header.Get(fiber.HeaderRetryAfter))
	assert.NotEmpty(t, resp.Header.Get(fiber.HeaderXRequestID))
}
