package httpapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/lightseekorg/smg/pkg/types"
)

type fakeService struct {
	ready    bool
	snapshot types.FleetStatus
}

func (f *fakeService) Snapshot() types.FleetStatus { return f.snapshot }
func (f *fakeService) Ready() bool                 { return f.ready }

func TestHealthz(t *testing.T) {
	mux := NewMux(&fakeService{})
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("healthz status = %d, want 200", rec.Code)
	}
	if got := rec.Body.String(); got != "ok" {
		t.Fatalf("healthz body = %q, want ok", got)
	}
}

func TestReadyzReflectsReadiness(t *testing.T) {
	svc := &fakeService{}
	mux := NewMux(svc)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("readyz before ready: status = %d, want 503", rec.Code)
	}

	svc.ready = true
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("readyz when ready: status = %d, want 200", rec.Code)
	}
}

func TestStatusReturnsSnapshot(t *testing.T) {
	svc := &fakeService{snapshot: types.FleetStatus{
		Backend: types.BackendSglang,
		ModelID: "llama-8b",
		State:   "ready",
		Workers: []types.WorkerStatus{
			{URL: "grpc://127.0.0.1:31000", Port: 31000, PID: 1234, State: "healthy"},
		},
	}}
	mux := NewMux(svc)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("content type = %q", ct)
	}
	var got types.FleetStatus
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.ModelID != "llama-8b" || got.State != "ready" || len(got.Workers) != 1 {
		t.Fatalf("unexpected snapshot: %+v", got)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	mux := NewMux(&fakeService{})

	// Prime the middleware so at least one series exists.
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("metrics status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "smg_http_requests_total") {
		t.Fatalf("metrics output missing smg_http_requests_total")
	}
}

func TestSecurityHeaders(t *testing.T) {
	mux := NewMux(&fakeService{})
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if got := rec.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Fatalf("X-Content-Type-Options = %q, want nosniff", got)
	}
}
