package http

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/spec-kit/support-iq/internal/api/http/handlers"
	"github.com/spec-kit/support-iq/internal/auth"
	"github.com/spec-kit/support-iq/internal/config"
	"github.com/spec-kit/support-iq/internal/domain"
	"github.com/spec-kit/support-iq/internal/events"
	"github.com/spec-kit/support-iq/internal/feedback"
	"github.com/spec-kit/support-iq/internal/observability"
	"github.com/spec-kit/support-iq/internal/repository"
	"github.com/spec-kit/support-iq/internal/repository/memory"
	"github.com/spec-kit/support-iq/internal/service"
	apperrors "github.com/spec-kit/support-iq/pkg/util/errorutil"
	"github.com/spec-kit/support-iq/pkg/util/retry"
)

type fakePipeline struct {
	tickets map[string]*domain.Ticket
}

func (f *fakePipeline) Submit(_ context.Context, in service.SubmitInput) (*domain.Ticket, error) {
	if strings.TrimSpace(in.Body) == "" {
		return nil, apperrors.NewValidationError("body required", nil)
	}
	ticket := &domain.Ticket{ID: "t-1", ExternalKey: "SIQ-00000001", CustomerID: in.CustomerID, Tier: in.Tier, Body: in.Body, State: domain.TicketStateReceived}
	f.tickets[ticket.ID] = ticket
	return ticket, nil
}

func (f *fakePipeline) Get(_ context.Context, id string) (*domain.AuditTrail, error) {
	ticket, ok := f.tickets[id]
	if !ok {
		return nil, apperrors.NewNotFound("ticket", map[string]any{"id": id})
	}
	return &domain.AuditTrail{
		Ticket: *ticket,
		Drafts: []domain.ResolutionDraft{{ID: "d-1", Attempt: 1, Text: "reset the SSO session"}},
		Verdicts: []domain.CriticVerdict{{ID: "v-1", DraftID: "d-1", Attempt: 1, Verdict: domain.VerdictAccept}},
	}, nil
}

func (f *fakePipeline) Cancel(ctx context.Context, id string) (*domain.Ticket, error) {
	ticket, ok := f.tickets[id]
	if !ok {
		return nil, apperrors.NewNotFound("ticket", nil)
	}
	if ticket.State.Terminal() {
		return nil, apperrors.NewConflict("ticket already finished", nil)
	}
	ticket.State = domain.TicketStateCancelled
	return ticket, nil
}

func (f *fakePipeline) List(_ context.Context, filter repository.TicketFilter) ([]domain.Ticket, int, error) {
	out := make([]domain.Ticket, 0, len(f.tickets))
	for _, t := range f.tickets {
		out = append(out, *t)
	}
	return out, len(out), nil
}

type fakeSignals struct {
	seen map[string]bool
}

func (f *fakeSignals) IngestFeedback(_ context.Context, ticketID string, judgment domain.Judgment, channel string) (*domain.FeedbackSignal, bool, error) {
	if !judgment.Valid() {
		return nil, false, apperrors.NewValidationError("unknown judgment", nil)
	}
	key := ticketID + channel
	if f.seen[key] {
		return nil, false, nil
	}
	f.seen[key] = true
	return &domain.FeedbackSignal{ID: "f-1", TicketID: ticketID, Judgment: judgment, Channel: channel}, true, nil
}

func (f *fakeSignals) RecordDeployment(_ context.Context, in service.DeploymentInput) (*domain.DeploymentEvent, error) {
	return &domain.DeploymentEvent{ID: "dep-1", Service: in.Service, DeployedAt: time.Now()}, nil
}

type fakeOps struct{}

func (fakeOps) ListAlerts(context.Context, time.Time, int) ([]domain.GhostTicketAlert, error) {
	return []domain.GhostTicketAlert{{ID: "a-1", Component: "sso", ObservedCount: 12}}, nil
}

func (fakeOps) Threshold() domain.Threshold {
	return domain.Threshold{Version: 1, Value: 0.6}
}

func (fakeOps) RunFeedbackCycle(context.Context) (feedback.CycleResult, error) {
	prev := domain.Threshold{Version: 1, Value: 0.6}
	return feedback.CycleResult{Previous: prev, Current: prev}, nil
}

type fakeAnalytics struct{}

func (fakeAnalytics) WeeklyReport(context.Context) (*service.WeeklyReport, error) {
	return &service.WeeklyReport{TotalTickets: 3}, nil
}

func (fakeAnalytics) KnowledgeGaps(context.Context, time.Duration, int) ([]service.KBGap, error) {
	return nil, nil
}

type staticClients map[string]domain.APIClient

func (s staticClients) Client(id string) (domain.APIClient, bool) {
	c, ok := s[id]
	return c, ok
}

func testAuthConfig(t *testing.T) config.AuthConfig {
	t.Helper()
	hash, err := auth.HashSecret("s3cret", 4)
	if err != nil {
		t.Fatal(err)
	}
	return config.AuthConfig{
		JWTSecret:             "test-secret",
		AccessTokenTTLMinutes: 5,
		Clients:               []config.ClientCredential{{ID: "collector", Role: "ingest", SecretHash: hash}},
	}
}

type testServer struct {
	app      *fiber.App
	metrics  *observability.Metrics
	store    *repository.Store
	ingest   string
	operator string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	tokens := auth.NewTokenManager("test-secret", 5)
	clients := staticClients{
		"collector": {ID: "collector", Role: domain.ClientRoleIngest},
		"ops":       {ID: "ops", Role: domain.ClientRoleOperator},
	}
	ingest, _, err := tokens.GenerateToken("collector", domain.ClientRoleIngest)
	if err != nil {
		t.Fatal(err)
	}
	operator, _, err := tokens.GenerateToken("ops", domain.ClientRoleOperator)
	if err != nil {
		t.Fatal(err)
	}

	metrics := observability.NewMetrics()
	store := memory.NewStore()
	kb := service.NewKnowledgeService(store, service.NewAnalyticsService(store, nil), events.NewInMemoryDispatcher(), retry.Policy{MaxTries: 1}, nil)
	app := fiber.New()
	RegisterMiddlewares(app, zap.NewNop(), metrics, time.Second)
	RegisterRoutes(app, RouteConfig{
		Health:         handlers.NewHealthHandler("support-iq", "test", nil, nil, metrics),
		Auth:           handlers.NewAuthHandler(service.NewAuthService(testAuthConfig(t))),
		Tickets:        handlers.NewTicketsHandler(&fakePipeline{tickets: map[string]*domain.Ticket{}}),
		Signals:        handlers.NewSignalsHandler(&fakeSignals{seen: map[string]bool{}}),
		Operations:     handlers.NewOperationsHandler(fakeOps{}, fakeAnalytics{}),
		Knowledge:      handlers.NewKnowledgeHandler(kb),
		AuthMiddleware: auth.NewAuthMiddleware(tokens, clients),
	})
	return &testServer{app: app, metrics: metrics, store: store, ingest: ingest, operator: operator}
}

func (s *testServer) do(t *testing.T, method, path, body, token string) (int, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := s.app.Test(req, -1)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	payload := map[string]any{}
	raw, _ := io.ReadAll(resp.Body)
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &payload); err != nil {
			t.Fatalf("decode %s: %v", raw, err)
		}
	}
	return resp.StatusCode, payload
}

func errorCode(payload map[string]any) string {
	errBody, _ := payload["error"].(map[string]any)
	code, _ := errBody["code"].(string)
	return code
}

func TestSubmitAndFetchTicket(t *testing.T) {
	srv := newTestServer(t)

	status, payload := srv.do(t, http.MethodPost, "/v1/tickets",
		`{"customer_id":"c-1","tier":"gold","body":"SSO login loops back to the portal"}`, "")
	if status != http.StatusAccepted {
		t.Fatalf("submit status = %d (%v)", status, payload)
	}
	data := payload["data"].(map[string]any)
	if data["id"] != "t-1" || data["state"] != string(domain.TicketStateReceived) {
		t.Fatalf("submit data = %v", data)
	}

	status, payload = srv.do(t, http.MethodGet, "/v1/tickets/t-1", "", "")
	if status != http.StatusOK {
		t.Fatalf("get status = %d", status)
	}
	detail := payload["data"].(map[string]any)
	if detail["accepted_draft_id"] != "d-1" {
		t.Fatalf("accepted_draft_id = %v", detail["accepted_draft_id"])
	}

	status, _ = srv.do(t, http.MethodPost, "/v1/tickets/t-1/cancel", "", "")
	if status != http.StatusOK {
		t.Fatalf("cancel status = %d", status)
	}
	status, payload = srv.do(t, http.MethodPost, "/v1/tickets/t-1/cancel", "", "")
	if status != http.StatusConflict || errorCode(payload) != "CONFLICT" {
		t.Fatalf("second cancel = %d %v", status, payload)
	}
}

func TestSubmitValidation(t *testing.T) {
	srv := newTestServer(t)
	status, payload := srv.do(t, http.MethodPost, "/v1/tickets", `{"customer_id":"c-1","body":"  "}`, "")
	if status != http.StatusBadRequest || errorCode(payload) != "VALIDATION_FAILED" {
		t.Fatalf("status = %d %v", status, payload)
	}
	status, _ = srv.do(t, http.MethodPost, "/v1/tickets", `{not json`, "")
	if status != http.StatusBadRequest {
		t.Fatalf("malformed body status = %d", status)
	}
}

func TestUnknownTicketAndRoute(t *testing.T) {
	srv := newTestServer(t)
	status, payload := srv.do(t, http.MethodGet, "/v1/tickets/missing", "", "")
	if status != http.StatusNotFound || errorCode(payload) != "NOT_FOUND" {
		t.Fatalf("status = %d %v", status, payload)
	}
	status, payload = srv.do(t, http.MethodGet, "/nowhere", "", "")
	if status != http.StatusNotFound || errorCode(payload) != "NOT_FOUND" {
		t.Fatalf("unknown route = %d %v", status, payload)
	}
}

func TestFeedbackRequiresIngestRole(t *testing.T) {
	srv := newTestServer(t)
	body := `{"ticket_id":"t-1","judgment":"positive","channel":"csat"}`

	status, payload := srv.do(t, http.MethodPost, "/v1/feedback", body, "")
	if status != http.StatusUnauthorized || errorCode(payload) != "UNAUTHORIZED" {
		t.Fatalf("anonymous = %d %v", status, payload)
	}
	status, _ = srv.do(t, http.MethodPost, "/v1/feedback", body, srv.ingest)
	if status != http.StatusCreated {
		t.Fatalf("first signal = %d", status)
	}
	status, payload = srv.do(t, http.MethodPost, "/v1/feedback", body, srv.ingest)
	if status != http.StatusOK || payload["data"].(map[string]any)["duplicate"] != true {
		t.Fatalf("duplicate = %d %v", status, payload)
	}
	status, _ = srv.do(t, http.MethodPost, "/v1/deployments", `{"service":"sso"}`, srv.operator)
	if status != http.StatusCreated {
		t.Fatalf("operator deployment = %d", status)
	}
}

func TestOperatorEndpoints(t *testing.T) {
	srv := newTestServer(t)

	status, payload := srv.do(t, http.MethodGet, "/v1/alerts", "", srv.ingest)
	if status != http.StatusForbidden || errorCode(payload) != "FORBIDDEN" {
		t.Fatalf("ingest on alerts = %d %v", status, payload)
	}
	status, payload = srv.do(t, http.MethodGet, "/v1/alerts", "", srv.operator)
	if status != http.StatusOK {
		t.Fatalf("alerts = %d", status)
	}
	if alerts := payload["data"].([]any); len(alerts) != 1 {
		t.Fatalf("alerts = %v", alerts)
	}
	status, payload = srv.do(t, http.MethodGet, "/v1/threshold", "", srv.operator)
	if status != http.StatusOK || payload["data"].(map[string]any)["value"] != 0.6 {
		t.Fatalf("threshold = %d %v", status, payload)
	}
	for _, path := range []string{"/v1/tickets", "/v1/analytics/weekly", "/v1/analytics/kb-gaps"} {
		if status, _ := srv.do(t, http.MethodGet, path, "", srv.operator); status != http.StatusOK {
			t.Fatalf("%s = %d", path, status)
		}
	}
	if status, _ := srv.do(t, http.MethodPost, "/v1/threshold/cycle", "", srv.operator); status != http.StatusOK {
		t.Fatalf("cycle = %d", status)
	}
}

func TestKnowledgeBaseWritePath(t *testing.T) {
	srv := newTestServer(t)
	ctx := context.Background()
	article := `{"title":"Export timeouts","content":"Split the export by month and retry.","component":"Reports"}`

	status, payload := srv.do(t, http.MethodPost, "/v1/kb/articles", article, srv.ingest)
	if status != http.StatusForbidden || errorCode(payload) != "FORBIDDEN" {
		t.Fatalf("ingest on kb = %d %v", status, payload)
	}
	status, payload = srv.do(t, http.MethodPost, "/v1/kb/articles", article, srv.operator)
	if status != http.StatusCreated {
		t.Fatalf("save article = %d %v", status, payload)
	}
	saved := payload["data"].(map[string]any)
	if saved["component"] != "reports" || saved["draft"] != false || !strings.HasPrefix(saved["id"].(string), "kb-") {
		t.Fatalf("saved article = %v", saved)
	}
	status, payload = srv.do(t, http.MethodPost, "/v1/kb/articles", `{"title":"empty"}`, srv.operator)
	if status != http.StatusBadRequest || errorCode(payload) != "VALIDATION_FAILED" {
		t.Fatalf("article without content = %d %v", status, payload)
	}

	status, payload = srv.do(t, http.MethodPost, "/v1/customers", `{"customer_id":"c-1","company_name":"Acme","tier":"Gold","sla_hours":8}`, srv.operator)
	if status != http.StatusCreated || payload["data"].(map[string]any)["tier"] != "gold" {
		t.Fatalf("save profile = %d %v", status, payload)
	}
	profile, err := srv.store.Knowledge.GetProfile(ctx, "c-1")
	if err != nil || profile.SLAHours != 8 || profile.Tier != domain.TierGold {
		t.Fatalf("stored profile = %+v err=%v", profile, err)
	}
	status, _ = srv.do(t, http.MethodPost, "/v1/customers", `{"customer_id":"c-2"}`, srv.operator)
	if status != http.StatusBadRequest {
		t.Fatalf("profile without tier = %d", status)
	}
}

func TestKnowledgeGapDraftApproval(t *testing.T) {
	srv := newTestServer(t)
	ctx := context.Background()
	for i := 0; i < 4; i++ {
		ticket := domain.Ticket{
			ID: "exp-" + string(rune('a'+i)), CustomerID: "c", Component: "exports",
			Body: "CSV exports time out for large workspaces", State: domain.TicketStateEscalated,
			CreatedAt: time.Now().Add(-time.Hour),
		}
		if err := srv.store.Tickets.Create(ctx, &ticket); err != nil {
			t.Fatal(err)
		}
	}

	status, payload := srv.do(t, http.MethodPost, "/v1/kb/drafts", `{"days":7,"min_tickets":3}`, srv.operator)
	if status != http.StatusOK {
		t.Fatalf("draft gaps = %d %v", status, payload)
	}
	drafts := payload["data"].([]any)
	if len(drafts) != 1 {
		t.Fatalf("drafts = %v", drafts)
	}
	draft := drafts[0].(map[string]any)
	if draft["id"] != "kb-gap-exports" || draft["draft"] != true || !strings.Contains(draft["content"].(string), "CSV exports time out") {
		t.Fatalf("draft = %v", draft)
	}

	found, err := srv.store.Knowledge.SearchArticles(ctx, "CSV exports time out", 5)
	if err != nil || len(found) != 0 {
		t.Fatalf("unapproved draft must stay out of retrieval: %v %v", found, err)
	}

	status, payload = srv.do(t, http.MethodPost, "/v1/kb/articles/kb-gap-exports/approve", "", srv.operator)
	if status != http.StatusOK || payload["data"].(map[string]any)["draft"] != false {
		t.Fatalf("approve = %d %v", status, payload)
	}
	found, err = srv.store.Knowledge.SearchArticles(ctx, "CSV exports time out", 5)
	if err != nil || len(found) != 1 || found[0].Record.ID != "kb-gap-exports" {
		t.Fatalf("approved article should be retrievable: %v %v", found, err)
	}

	status, payload = srv.do(t, http.MethodPost, "/v1/kb/drafts", `{"days":7,"min_tickets":3}`, srv.operator)
	if status != http.StatusOK || len(payload["data"].([]any)) != 0 {
		t.Fatalf("covered component should not be drafted again = %d %v", status, payload)
	}
	status, payload = srv.do(t, http.MethodPost, "/v1/kb/articles/missing/approve", "", srv.operator)
	if status != http.StatusNotFound || errorCode(payload) != "NOT_FOUND" {
		t.Fatalf("approve missing = %d %v", status, payload)
	}
}

func TestTokenIssuance(t *testing.T) {
	srv := newTestServer(t)
	status, payload := srv.do(t, http.MethodPost, "/auth/token", `{"client_id":"collector","client_secret":"s3cret"}`, "")
	if status != http.StatusOK {
		t.Fatalf("token = %d %v", status, payload)
	}
	data := payload["data"].(map[string]any)
	if data["access_token"] == "" || data["role"] != string(domain.ClientRoleIngest) {
		t.Fatalf("token data = %v", data)
	}
	status, _ = srv.do(t, http.MethodPost, "/auth/token", `{"client_id":"collector","client_secret":"nope"}`, "")
	if status != http.StatusUnauthorized {
		t.Fatalf("bad secret = %d", status)
	}
}

func TestHealthAndMetrics(t *testing.T) {
	srv := newTestServer(t)
	if status, _ := srv.do(t, http.MethodGet, "/health/live", "", ""); status != http.StatusOK {
		t.Fatalf("live = %d", status)
	}
	if status, _ := srv.do(t, http.MethodGet, "/health/ready", "", ""); status != http.StatusOK {
		t.Fatalf("ready = %d", status)
	}
	if len(srv.metrics.Snapshot().Requests) == 0 {
		t.Fatal("requests not recorded")
	}
	if status, _ := srv.do(t, http.MethodGet, "/metrics", "", ""); status != http.StatusOK {
		t.Fatalf("metrics = %d", status)
	}
}
