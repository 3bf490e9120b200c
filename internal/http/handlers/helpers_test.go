package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/hmpv-lab-platform/internal/auth"
	"github.com/wolfman30/hmpv-lab-platform/internal/http/middleware"
	"github.com/wolfman30/hmpv-lab-platform/internal/labtests"
	"github.com/wolfman30/hmpv-lab-platform/internal/reportfiles"
	"github.com/wolfman30/hmpv-lab-platform/internal/storage"
)

var testNow = time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)

func newLabStore(t *testing.T, opts ...labtests.Option) *labtests.Store {
	t.Helper()
	base := []labtests.Option{labtests.WithClock(func() time.Time { return testNow })}
	store := labtests.NewStore(labtests.NewAdapter(storage.NewMemoryBackend()), append(base, opts...)...)
	if err := store.Open(context.Background()); err != nil {
		t.Fatalf("open store: %v", err)
	}
	return store
}

func patientClaims() *auth.Claims {
	c := &auth.Claims{Name: "Test Patient", Email: "patient@test.com", Role: auth.RolePatient, SessionID: "sess-p"}
	c.Subject = "patient-123"
	return c
}

func adminClaims() *auth.Claims {
	c := &auth.Claims{Name: "Admin User", Email: "admin@test.com", Role: auth.RoleAdmin, SessionID: "sess-a"}
	c.Subject = "admin-123"
	return c
}

func otherPatientClaims() *auth.Claims {
	c := &auth.Claims{Name: "Someone Else", Email: "else@test.com", Role: auth.RolePatient, SessionID: "sess-x"}
	c.Subject = "patient-999"
	return c
}

func newRequest(method, target string, body any) *http.Request {
	var r io.Reader
	if body != nil {
		raw, _ := json.Marshal(body)
		r = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, target, r)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req
}

func withClaims(req *http.Request, claims *auth.Claims) *http.Request {
	return req.WithContext(middleware.WithClaims(req.Context(), claims))
}

func withURLParams(req *http.Request, kv ...string) *http.Request {
	rctx := chi.NewRouteContext()
	for i := 0; i+1 < len(kv); i += 2 {
		rctx.URLParams.Add(kv[i], kv[i+1])
	}
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, dst any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), dst); err != nil {
		t.Fatalf("decode body %q: %v", rec.Body.String(), err)
	}
}

// memoryFiles is an in-memory ReportFiles.
type memoryFiles struct {
	mu      sync.Mutex
	objects map[string][]byte
	types   map[string]string
	enabled bool
}

func newMemoryFiles() *memoryFiles {
	return &memoryFiles{objects: map[string][]byte{}, types: map[string]string{}, enabled: true}
}

func (m *memoryFiles) Enabled() bool { return m.enabled }

func (m *memoryFiles) Put(_ context.Context, appointmentID, filename, contentType string, data []byte) (*reportfiles.File, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := "reports/" + appointmentID + "/" + filename
	url := "s3://test-bucket/" + key
	m.objects[url] = append([]byte(nil), data...)
	m.types[url] = contentType
	return &reportfiles.File{Key: key, URL: url, ContentType: contentType, Size: int64(len(data))}, nil
}

func (m *memoryFiles) Open(_ context.Context, fileURL string) (io.ReadCloser, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[fileURL]
	if !ok {
		return nil, "", reportfiles.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), m.types[fileURL], nil
}

func (m *memoryFiles) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.objects)
}
