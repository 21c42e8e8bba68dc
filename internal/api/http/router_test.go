package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/schoolworks/maintenance-desk/internal/api/http/handlers"
	"github.com/schoolworks/maintenance-desk/internal/auth"
	"github.com/schoolworks/maintenance-desk/internal/domain"
	"github.com/schoolworks/maintenance-desk/internal/duedate"
	"github.com/schoolworks/maintenance-desk/internal/events"
	"github.com/schoolworks/maintenance-desk/internal/mailer"
	"github.com/schoolworks/maintenance-desk/internal/observability"
	"github.com/schoolworks/maintenance-desk/internal/persistence"
	"github.com/schoolworks/maintenance-desk/internal/repository/memory"
	"github.com/schoolworks/maintenance-desk/internal/service"
	"github.com/schoolworks/maintenance-desk/internal/ticketnumber"
)

const ingestKey = "relay-secret"

type nopQueue struct{}

func (nopQueue) Enqueue(context.Context, mailer.Job) error { return nil }

type testServer struct {
	app    *fiber.App
	tokens *auth.TokenManager
	store  *memory.Store
}

func newTestServer(t *testing.T, ingestHash string) *testServer {
	t.Helper()
	logger := zap.NewNop()
	store := memory.NewStore()
	dispatcher := events.NewInMemoryDispatcher(logger)
	metrics := observability.NewMetrics()

	roles := service.NewRoleService(service.RoleDependencies{RoleRepo: store.Roles(), Logger: logger})
	catalog := service.NewCatalogService(store.Catalog())
	notifications := service.NewNotificationService(service.NotificationDependencies{
		NotificationRepo: store.Notifications(),
		TicketRepo:       store.Tickets(),
		Catalog:          catalog,
		Dispatcher:       dispatcher,
		Queue:            nopQueue{},
		Renderer:         mailer.NewRenderer("http://localhost", time.UTC),
		Metrics:          metrics,
		Logger:           logger,
	})
	notifications.RegisterHandlers()
	tickets := service.NewTicketService(service.TicketDependencies{
		TicketRepo:        store.Tickets(),
		CommentRepo:       store.Comments(),
		HistoryRepo:       store.History(),
		AttachmentRepo:    store.Attachments(),
		Catalog:           catalog,
		Numbers:           ticketnumber.NewGenerator(store.Counters(), ticketnumber.SystemClock(time.UTC)),
		DueDates:          duedate.New("", time.UTC),
		InstitutionDomain: "school.org",
		Dispatcher:        dispatcher,
		Logger:            logger,
	})
	mutations := service.NewMutationService(service.MutationDependencies{
		TicketRepo: store.Tickets(),
		RoleRepo:   store.Roles(),
		Notifier:   notifications,
		Dispatcher: dispatcher,
		Metrics:    metrics,
		Logger:     logger,
	})
	analytics := service.NewAnalyticsService(store.Tickets(), roles, catalog, nil)
	tokens := auth.NewTokenManager("test-secret", 30)

	app := fiber.New()
	RegisterMiddlewares(app, logger, metrics, 5*time.Second)
	RegisterRoutes(app, RouteConfig{
		Health:           handlers.NewHealthHandler("maintenance-desk", "test", &persistence.Postgres{}, &persistence.Redis{}),
		Public:           handlers.NewPublicHandler(tickets, logger),
		Tickets:          handlers.NewTicketsHandler(tickets, mutations, nil),
		Staff:            handlers.NewStaffHandler(roles),
		Reference:        handlers.NewReferenceHandler(catalog),
		Notifications:    handlers.NewNotificationsHandler(notifications),
		Analytics:        handlers.NewAnalyticsHandler(analytics),
		Live:             handlers.NewLiveHandler(context.Background(), tickets, events.NewMemoryBroadcaster(), logger),
		AuthMiddleware:   auth.NewAuthMiddleware(tokens, roles),
		MetricsRegistry:  metrics.Registry(),
		CORSAllowOrigins: "*",
		IngestKeyHash:    ingestHash,
	})

	ctx := context.Background()
	require.NoError(t, store.Roles().SetRole(ctx, &domain.RoleRecord{ID: "u-admin", Email: "ada@school.org", Name: "Ada Admin", Role: domain.RoleAdmin}))
	require.NoError(t, store.Roles().SetRole(ctx, &domain.RoleRecord{ID: "u-super", Email: "sue@school.org", Name: "Sue Supervisor", Role: domain.RoleSupervisor}))
	require.NoError(t, store.Roles().SetRole(ctx, &domain.RoleRecord{ID: "u-tech", Email: "terry@school.org", Name: "Terry Tech", Role: domain.RoleStaff}))
	return &testServer{app: app, tokens: tokens, store: store}
}

func (s *testServer) token(t *testing.T, id, email string) string {
	t.Helper()
	token, _, err := s.tokens.GenerateToken(domain.Identity{ID: id, Email: email})
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
	if body != nil {
		req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	}
	if token != "" {
		req.Header.Set(fiber.HeaderAuthorization, "Bearer "+token)
	}
	resp, err := s.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	out := map[string]any{}
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(raw) > 0 && strings.HasPrefix(resp.Header.Get(fiber.HeaderContentType), fiber.MIMEApplicationJSON) {
		require.NoError(t, json.Unmarshal(raw, &out))
	}
	return resp.StatusCode, out
}

func errorCode(body map[string]any) string {
	e, _ := body["error"].(map[string]any)
	code, _ := e["code"].(string)
	return code
}

func data(body map[string]any) map[string]any {
	d, _ := body["data"].(map[string]any)
	return d
}

func TestPublicFormEnvelope(t *testing.T) {
	s := newTestServer(t, "")

	status, body := s.do(t, fiber.MethodPost, "/ticket", "", map[string]any{
		"subject":        "Leaking tap in staff room",
		"description":    "Dripping since Monday",
		"priority":       "High",
		"requesterName":  "Pat Parent",
		"requesterEmail": "pat@school.org",
	})
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, true, body["success"])
	assert.NotEmpty(t, body["ticketId"])

	status, body = s.do(t, fiber.MethodPost, "/ticket", "", map[string]any{
		"subject":        "Leaking tap",
		"description":    "Dripping",
		"requesterName":  "Pat",
		"requesterEmail": "pat@gmail.com",
	})
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Equal(t, false, body["success"])
	assert.NotEmpty(t, body["error"])
}

func TestCreateTicketFromEmail(t *testing.T) {
	s := newTestServer(t, "")

	status, body := s.do(t, fiber.MethodPost, "/createTicketFromEmail", "", map[string]any{
		"subject":   "Projector bulb",
		"body":      "Room 4 projector is dead",
		"fromName":  "Jo Teacher",
		"fromEmail": "jo@school.org",
	})
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, true, body["success"])
	assert.Regexp(t, `^TK-[0-9A-Z]+$`, body["ticketId"])
	assert.Contains(t, body["message"], "created from email")

	ticket, err := s.store.Tickets().GetByID(context.Background(), body["ticketId"].(string))
	require.NoError(t, err)
	assert.Equal(t, domain.SourceEmail, ticket.Source)
	history, err := s.store.History().ListByTicket(context.Background(), ticket.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, domain.ChangeTypeCreated, history[0].ChangeType)

	status, body = s.do(t, fiber.MethodPost, "/createTicketFromEmail", "", map[string]any{"subject": "no sender"})
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Equal(t, false, body["success"])
}

func TestCreateTicketFromRawEmail(t *testing.T) {
	s := newTestServer(t, "")
	raw := "From: Jo Teacher <jo@school.org>\r\n" +
		"To: maintenance@school.org\r\n" +
		"Subject: Window latch\r\n" +
		"Content-Type: text/plain; charset=utf-8\r\n" +
		"\r\n" +
		"The latch in room 9 is broken.\r\n"
	req := httptest.NewRequest(fiber.MethodPost, "/createTicketFromEmail", strings.NewReader(raw))
	req.Header.Set(fiber.HeaderContentType, "message/rfc822")
	resp, err := s.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	ticket, err := s.store.Tickets().GetByID(context.Background(), body["ticketId"].(string))
	require.NoError(t, err)
	assert.Equal(t, "Window latch", ticket.Subject)
	assert.Equal(t, "jo@school.org", ticket.Requester.Email)
}

func TestEmailEndpointPreflightAndIngestKey(t *testing.T) {
	hash, err := auth.HashIngestKey(ingestKey, 4)
	require.NoError(t, err)
	s := newTestServer(t, hash)

	req := httptest.NewRequest(fiber.MethodOptions, "/createTicketFromEmail", nil)
	req.Header.Set(fiber.HeaderOrigin, "https://mail.school.org")
	req.Header.Set(fiber.HeaderAccessControlRequestMethod, fiber.MethodPost)
	resp, err := s.app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusNoContent, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get(fiber.HeaderAccessControlAllowOrigin))

	payload := map[string]any{"subject": "Heating", "body": "Cold", "fromEmail": "jo@school.org"}
	status, body := s.do(t, fiber.MethodPost, "/createTicketFromEmail", "", payload)
	assert.Equal(t, fiber.StatusUnauthorized, status)
	assert.Equal(t, "UNAUTHORIZED", errorCode(body))

	raw, _ := json.Marshal(payload)
	req = httptest.NewRequest(fiber.MethodPost, "/createTicketFromEmail", bytes.NewReader(raw))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	req.Header.Set("X-Ingest-Key", ingestKey)
	resp, err = s.app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func TestAPIRequiresToken(t *testing.T) {
	s := newTestServer(t, "")

	status, body := s.do(t, fiber.MethodGet, "/api/tickets", "", nil)
	assert.Equal(t, fiber.StatusUnauthorized, status)
	assert.Equal(t, "UNAUTHORIZED", errorCode(body))

	status, _ = s.do(t, fiber.MethodGet, "/api/tickets", "not-a-jwt", nil)
	assert.Equal(t, fiber.StatusUnauthorized, status)
}

func TestMeResolvesRoleFromRecords(t *testing.T) {
	s := newTestServer(t, "")

	status, body := s.do(t, fiber.MethodGet, "/api/me", s.token(t, "u-super", "sue@school.org"), nil)
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "supervisor", data(body)["role"])
	assert.Equal(t, true, data(body)["privileged"])
	assert.Equal(t, false, data(body)["full_admin"])

	status, body = s.do(t, fiber.MethodGet, "/api/me", s.token(t, "u-new", "new@school.org"), nil)
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "staff", data(body)["role"])
}

func TestTicketLifecycleOverHTTP(t *testing.T) {
	s := newTestServer(t, "")
	staff := s.token(t, "u-tech", "terry@school.org")
	admin := s.token(t, "u-admin", "ada@school.org")
	supervisor := s.token(t, "u-super", "sue@school.org")

	status, body := s.do(t, fiber.MethodPost, "/api/tickets", staff, map[string]any{
		"subject":  "Broken chair in hall",
		"priority": "low",
	})
	require.Equal(t, fiber.StatusCreated, status)
	id := data(body)["id"].(string)
	assert.Equal(t, "new", data(body)["status"])
	assert.Regexp(t, `^SMC-\d{8}-\d{3}$`, data(body)["ticket_number"])

	status, body = s.do(t, fiber.MethodPut, "/api/tickets/"+id+"/assignee", staff, map[string]any{"assignee_id": "u-tech"})
	assert.Equal(t, fiber.StatusForbidden, status)
	assert.Equal(t, "FORBIDDEN", errorCode(body))

	status, body = s.do(t, fiber.MethodPut, "/api/tickets/"+id+"/assignee", admin, map[string]any{"assignee_id": "u-tech"})
	require.Equal(t, fiber.StatusOK, status)
	ticket := data(body)["ticket"].(map[string]any)
	assert.Equal(t, "in-progress", ticket["status"])
	revision := ticket["revision"].(float64)

	status, body = s.do(t, fiber.MethodPost, "/api/tickets/"+id+"/transitions", staff, map[string]any{
		"event": "paused",
	})
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Equal(t, "VALIDATION_FAILED", errorCode(body))

	status, body = s.do(t, fiber.MethodPost, "/api/tickets/"+id+"/transitions", staff, map[string]any{
		"event":             "paused",
		"payload":           map[string]any{"reason": "Waiting for parts", "notify_supervisor": true},
		"expected_revision": revision - 1,
	})
	assert.Equal(t, fiber.StatusConflict, status)
	assert.Equal(t, "CONFLICT", errorCode(body))

	status, body = s.do(t, fiber.MethodPost, "/api/tickets/"+id+"/transitions", staff, map[string]any{
		"event":             "paused",
		"payload":           map[string]any{"reason": "Waiting for parts", "notify_supervisor": true},
		"expected_revision": revision,
	})
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, true, data(body)["changed"])
	assert.Equal(t, []any{"supervisor"}, data(body)["notified"])
	assert.Equal(t, "paused", data(body)["ticket"].(map[string]any)["status"])

	status, body = s.do(t, fiber.MethodPost, "/api/tickets/"+id+"/transitions", staff, map[string]any{"event": "completed"})
	assert.Equal(t, fiber.StatusConflict, status)

	status, body = s.do(t, fiber.MethodPost, "/api/tickets/"+id+"/transitions", staff, map[string]any{"event": "teleported"})
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Equal(t, "VALIDATION_FAILED", errorCode(body))

	status, body = s.do(t, fiber.MethodGet, "/api/notifications", supervisor, nil)
	require.Equal(t, fiber.StatusOK, status)
	feed := body["data"].([]any)
	require.Len(t, feed, 1)
	notificationID := feed[0].(map[string]any)["id"].(string)

	status, _ = s.do(t, fiber.MethodGet, "/api/notifications", staff, nil)
	assert.Equal(t, fiber.StatusForbidden, status)

	status, _ = s.do(t, fiber.MethodPost, "/api/notifications/"+notificationID+"/read", supervisor, nil)
	assert.Equal(t, fiber.StatusOK, status)
	status, body = s.do(t, fiber.MethodGet, "/api/notifications?unread=true", supervisor, nil)
	require.Equal(t, fiber.StatusOK, status)
	assert.Empty(t, body["data"])

	status, body = s.do(t, fiber.MethodGet, "/api/tickets/"+id, staff, nil)
	require.Equal(t, fiber.StatusOK, status)
	detail := data(body)
	assert.Len(t, detail["comments"], 2)
	assert.Len(t, detail["history"], 3)
	assert.Equal(t, "Waiting for parts", detail["pause"].(map[string]any)["reason"])
}

func TestTicketEditsAndThread(t *testing.T) {
	s := newTestServer(t, "")
	staff := s.token(t, "u-tech", "terry@school.org")

	_, body := s.do(t, fiber.MethodPost, "/api/tickets", staff, map[string]any{"subject": "Flickering light"})
	id := data(body)["id"].(string)

	status, body := s.do(t, fiber.MethodPatch, "/api/tickets/"+id, staff, map[string]any{"priority": "high"})
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "high", data(body)["priority"])
	assert.Equal(t, "ticket updated", body["message"])

	status, body = s.do(t, fiber.MethodPost, "/api/tickets/"+id+"/comments", staff, map[string]any{"body": "Checked the fuse"})
	require.Equal(t, fiber.StatusCreated, status)
	assert.Equal(t, false, data(body)["system"])

	status, _ = s.do(t, fiber.MethodPost, "/api/tickets/"+id+"/comments", staff, map[string]any{"body": "  "})
	assert.Equal(t, fiber.StatusBadRequest, status)

	status, body = s.do(t, fiber.MethodPost, "/api/tickets/"+id+"/attachments", staff, map[string]any{
		"storage_key": "uploads/light.jpg", "file_name": "light.jpg", "mime_type": "image/jpeg", "size_bytes": 2048,
	})
	require.Equal(t, fiber.StatusCreated, status)
	assert.Equal(t, "upload", data(body)["source"])

	status, body = s.do(t, fiber.MethodGet, "/api/tickets?priority=high", staff, nil)
	require.Equal(t, fiber.StatusOK, status)
	assert.Len(t, body["data"], 1)

	status, body = s.do(t, fiber.MethodGet, "/api/tickets?status=bogus", staff, nil)
	assert.Equal(t, fiber.StatusBadRequest, status)

	status, body = s.do(t, fiber.MethodGet, "/api/tickets/missing", staff, nil)
	assert.Equal(t, fiber.StatusNotFound, status)
	assert.Equal(t, "NOT_FOUND", errorCode(body))
}

func TestAdministrationRoutes(t *testing.T) {
	s := newTestServer(t, "")
	admin := s.token(t, "u-admin", "ada@school.org")
	supervisor := s.token(t, "u-super", "sue@school.org")

	status, _ := s.do(t, fiber.MethodPost, "/api/categories", supervisor, map[string]any{"name": "Plumbing"})
	assert.Equal(t, fiber.StatusForbidden, status)
	status, body := s.do(t, fiber.MethodPost, "/api/categories", admin, map[string]any{"name": "Plumbing"})
	require.Equal(t, fiber.StatusCreated, status)
	assert.Equal(t, "Plumbing", data(body)["name"])
	status, body = s.do(t, fiber.MethodGet, "/api/categories", supervisor, nil)
	require.Equal(t, fiber.StatusOK, status)
	assert.Len(t, body["data"], 1)

	status, _ = s.do(t, fiber.MethodPost, "/api/locations", admin, map[string]any{"name": "Main hall"})
	assert.Equal(t, fiber.StatusCreated, status)

	status, _ = s.do(t, fiber.MethodPut, "/api/staff/u-tech", supervisor, map[string]any{"role": "supervisor"})
	assert.Equal(t, fiber.StatusForbidden, status)
	status, body = s.do(t, fiber.MethodPut, "/api/staff/u-tech", admin, map[string]any{"role": "supervisor"})
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "supervisor", data(body)["role"])
	assert.Equal(t, "Terry Tech", data(body)["name"])

	status, body = s.do(t, fiber.MethodGet, "/api/staff", supervisor, nil)
	require.Equal(t, fiber.StatusOK, status)
	assert.Len(t, body["data"], 3)
}

func TestAnalyticsRoutes(t *testing.T) {
	s := newTestServer(t, "")
	staff := s.token(t, "u-tech", "terry@school.org")
	admin := s.token(t, "u-admin", "ada@school.org")
	s.do(t, fiber.MethodPost, "/api/tickets", staff, map[string]any{"subject": "Blocked drain"})

	status, _ := s.do(t, fiber.MethodGet, "/api/analytics/summary", staff, nil)
	assert.Equal(t, fiber.StatusForbidden, status)

	status, body := s.do(t, fiber.MethodGet, "/api/analytics/summary", admin, nil)
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, float64(1), data(body)["total"])

	req := httptest.NewRequest(fiber.MethodGet, "/api/analytics/workload.xlsx", nil)
	req.Header.Set(fiber.HeaderAuthorization, "Bearer "+admin)
	resp, err := s.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", resp.Header.Get(fiber.HeaderContentType))
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(raw, []byte("PK")))
}

func TestOperationalRoutes(t *testing.T) {
	s := newTestServer(t, "")

	status, body := s.do(t, fiber.MethodGet, "/health/ready", "", nil)
	require.Equal(t, fiber.StatusOK, status)
	deps := body["dependencies"].(map[string]any)
	assert.Equal(t, "memory", deps["postgres"])
	assert.Equal(t, "disabled", deps["redis"])

	status, body = s.do(t, fiber.MethodGet, "/no-such-route", "", nil)
	assert.Equal(t, fiber.StatusNotFound, status)
	assert.Equal(t, "NOT_FOUND", errorCode(body))

	s.do(t, fiber.MethodGet, "/health/live", "", nil)
	req := httptest.NewRequest(fiber.MethodGet, "/metrics", nil)
	resp, err := s.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "maintenance_http_requests_total")
}
