package router

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wolfman30/hmpv-lab-platform/internal/auth"
	"github.com/wolfman30/hmpv-lab-platform/internal/http/handlers"
	httpmiddleware "github.com/wolfman30/hmpv-lab-platform/internal/http/middleware"
	"github.com/wolfman30/hmpv-lab-platform/internal/labtests"
	"github.com/wolfman30/hmpv-lab-platform/internal/observability/metrics"
	"github.com/wolfman30/hmpv-lab-platform/internal/storage"
	"github.com/wolfman30/hmpv-lab-platform/pkg/logging"
)

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()

	logger := logging.Default()
	reg := prometheus.NewRegistry()
	m := metrics.NewLabMetrics(reg)

	store := labtests.NewStore(labtests.NewAdapter(storage.NewMemoryBackend()), labtests.WithMetrics(m))
	if err := store.Open(context.Background()); err != nil {
		t.Fatalf("open store: %v", err)
	}
	provider := auth.NewProvider(
		auth.DemoCredentials("", "", ""),
		auth.NewSessionStore(storage.NewMemoryBackend(), ""),
		auth.NewIssuer("router-test-secret", time.Hour),
		auth.WithMetrics(m),
	)
	limiter := httpmiddleware.NewRateLimiter(100, 100)
	t.Cleanup(limiter.Stop)

	cfg := &Config{
		Logger:             logger,
		Metrics:            m,
		Lab:                handlers.NewLabHandler(store, nil, logger),
		Auth:               handlers.NewAuthHandler(provider, logger),
		Admin:              handlers.NewAdminHandler(store, nil, reg, logger),
		Verifier:           provider,
		MetricsHandler:     promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		CORSAllowedOrigins: []string{"http://localhost:3000"},
		AuthRateLimiter:    limiter,
	}
	return New(cfg)
}

func do(t *testing.T, h http.Handler, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func login(t *testing.T, h http.Handler, email string) string {
	t.Helper()
	rr := do(t, h, http.MethodPost, "/auth/login", "", map[string]string{"email": email, "password": "password"})
	if rr.Code != http.StatusOK {
		t.Fatalf("login %s: status %d: %s", email, rr.Code, rr.Body.String())
	}
	var resp handlers.SessionResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode login: %v", err)
	}
	return resp.Token
}

func TestRouterHealthEndpoint(t *testing.T) {
	router := newTestRouter(t)

	rr := do(t, router, http.MethodGet, "/health", "", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rr.Code)
	}
	var resp map[string]any
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode health response: %v", err)
	}
	if resp["status"] != "ok" {
		t.Errorf("expected status 'ok', got %v", resp["status"])
	}
	if rr.Header().Get("X-Request-ID") == "" {
		t.Errorf("expected X-Request-ID header")
	}
}

func TestRouterPublicEndpoints(t *testing.T) {
	router := newTestRouter(t)

	for _, path := range []string{"/tests", "/track/HMPV-1002", "/metrics"} {
		rr := do(t, router, http.MethodGet, path, "", nil)
		if rr.Code != http.StatusOK {
			t.Errorf("%s: expected 200, got %d", path, rr.Code)
		}
	}
}

func TestRouterRequiresSession(t *testing.T) {
	router := newTestRouter(t)

	for _, path := range []string{"/appointments", "/reports", "/auth/session", "/admin/dashboard"} {
		rr := do(t, router, http.MethodGet, path, "", nil)
		if rr.Code != http.StatusUnauthorized {
			t.Errorf("%s: expected 401, got %d", path, rr.Code)
		}
	}
}

func TestRouterAdminRequiresRole(t *testing.T) {
	router := newTestRouter(t)
	token := login(t, router, "patient@test.com")

	rr := do(t, router, http.MethodGet, "/admin/appointments", token, nil)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rr.Code)
	}
}

func TestRouterBookingLifecycle(t *testing.T) {
	router := newTestRouter(t)
	patient := login(t, router, "patient@test.com")
	admin := login(t, router, "admin@test.com")

	rr := do(t, router, http.MethodPost, "/appointments", patient, map[string]string{
		"testId":   "test-1",
		"dateTime": "2025-06-10T09:00:00Z",
		"address":  "1 Main St",
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("book: expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	var appt handlers.AppointmentView
	if err := json.NewDecoder(rr.Body).Decode(&appt); err != nil {
		t.Fatalf("decode: %v", err)
	}

	for _, status := range []string{"sample_collected", "processing"} {
		rr = do(t, router, http.MethodPatch, "/admin/appointments/"+appt.ID+"/status", admin, map[string]string{"status": status})
		if rr.Code != http.StatusOK {
			t.Fatalf("status %s: expected 200, got %d: %s", status, rr.Code, rr.Body.String())
		}
	}

	rr = do(t, router, http.MethodPost, "/admin/appointments/"+appt.ID+"/report", admin, map[string]string{
		"resultSummary": "Negative for HMPV",
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("report: expected 201, got %d: %s", rr.Code, rr.Body.String())
	}

	rr = do(t, router, http.MethodGet, "/track/"+appt.TrackingID, "", nil)
	var tracked handlers.TrackResponse
	if err := json.NewDecoder(rr.Body).Decode(&tracked); err != nil {
		t.Fatalf("decode track: %v", err)
	}
	if tracked.Appointment.Status != labtests.StatusCompleted {
		t.Fatalf("expected completed, got %s", tracked.Appointment.Status)
	}
	for _, step := range tracked.Timeline {
		if !step.Completed {
			t.Fatalf("expected every step completed, got %+v", tracked.Timeline)
		}
	}

	rr = do(t, router, http.MethodGet, "/reports", patient, nil)
	var reports struct {
		Reports []labtests.Report `json:"reports"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&reports); err != nil {
		t.Fatalf("decode reports: %v", err)
	}
	if len(reports.Reports) != 2 {
		t.Fatalf("expected seeded + new report, got %d", len(reports.Reports))
	}
}

func TestRouterLogoutRevokesToken(t *testing.T) {
	router := newTestRouter(t)
	token := login(t, router, "patient@test.com")

	if rr := do(t, router, http.MethodPost, "/auth/logout", token, nil); rr.Code != http.StatusNoContent {
		t.Fatalf("logout: expected 204, got %d", rr.Code)
	}
	if rr := do(t, router, http.MethodGet, "/appointments", token, nil); rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 after logout, got %d", rr.Code)
	}
}

func TestRouterCORSPreflight(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodOptions, "/appointments", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
		t.Fatalf("unexpected allow origin %q", got)
	}
}
