package edge

import (
	"context"
	"encoding/hex"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/wisbric/mcpgateway/internal/crypto"
	"github.com/wisbric/mcpgateway/internal/quota"
	"github.com/wisbric/mcpgateway/internal/rpc"
	"github.com/wisbric/mcpgateway/internal/store"
	"github.com/wisbric/mcpgateway/internal/usagelog"
	"github.com/wisbric/mcpgateway/pkg/adapter"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestHandler(t *testing.T, s store.Store) *Handler {
	t.Helper()
	sealer, err := crypto.NewSealer(hex.EncodeToString(make([]byte, 32)))
	if err != nil {
		t.Fatalf("NewSealer() error: %v", err)
	}
	w := usagelog.NewWriter(s, testLogger())
	w.Start(context.Background())
	t.Cleanup(w.Close)

	dispatcher := &rpc.Dispatcher{
		Store:         s,
		Sealer:        sealer,
		Gate:          quota.NewGate(s),
		Registry:      adapter.NewRegistry(),
		UsageLog:      w,
		Logger:        testLogger(),
		ServerName:    "test-gateway",
		ServerVersion: "0.0.0-test",
	}

	return &Handler{
		Store:          s,
		Dispatcher:     dispatcher,
		Logger:         testLogger(),
		MaxBodyBytes:   1 << 20,
		RequestTimeout: 5 * time.Second,
		ServerName:     "test-gateway",
		ServerVersion:  "0.0.0-test",
	}
}

func router(h *Handler) http.Handler {
	r := chi.NewRouter()
	h.Mount(r)
	return r
}

func TestProbeActiveEndpoint(t *testing.T) {
	m := store.NewMemoryStore()
	m.SeedCredential(store.Credential{ID: "cred-1", Service: "postgres"})
	m.SeedEndpoint(store.Endpoint{ID: "ep-1", CredentialID: "cred-1", Service: "postgres", Active: true})
	h := newTestHandler(t, m)

	req := httptest.NewRequest(http.MethodGet, "/gateway/ep-1", nil)
	rec := httptest.NewRecorder()
	router(h).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body=%s", rec.Code, rec.Body)
	}
	if !strings.Contains(rec.Body.String(), `"status":"active"`) {
		t.Errorf("body = %s, want status active", rec.Body.String())
	}
}

func TestProbeMissingEndpoint(t *testing.T) {
	h := newTestHandler(t, store.NewMemoryStore())

	req := httptest.NewRequest(http.MethodGet, "/gateway/missing", nil)
	rec := httptest.NewRecorder()
	router(h).ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestProbeInactiveEndpoint(t *testing.T) {
	m := store.NewMemoryStore()
	m.SeedCredential(store.Credential{ID: "cred-1", Service: "postgres"})
	m.SeedEndpoint(store.Endpoint{ID: "ep-1", CredentialID: "cred-1", Service: "postgres", Active: false})
	h := newTestHandler(t, m)

	req := httptest.NewRequest(http.MethodGet, "/gateway/ep-1", nil)
	rec := httptest.NewRecorder()
	router(h).ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Errorf("status = %d, want 403", rec.Code)
	}
}

func TestGatewayMethodNotAllowed(t *testing.T) {
	h := newTestHandler(t, store.NewMemoryStore())

	req := httptest.NewRequest(http.MethodPut, "/gateway/ep-1", nil)
	rec := httptest.NewRecorder()
	router(h).ServeHTTP(rec, req)

	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", rec.Code)
	}
}

func TestHandleRPCNotification(t *testing.T) {
	h := newTestHandler(t, store.NewMemoryStore())

	req := httptest.NewRequest(http.MethodPost, "/gateway/ep-1", strings.NewReader(`{"jsonrpc":"2.0","method":"notifications/initialized"}`))
	rec := httptest.NewRecorder()
	router(h).ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Errorf("status = %d, want 204", rec.Code)
	}
	if rec.Body.Len() != 0 {
		t.Errorf("body = %q, want empty", rec.Body.String())
	}
}

func TestHandleRPCPing(t *testing.T) {
	h := newTestHandler(t, store.NewMemoryStore())

	req := httptest.NewRequest(http.MethodPost, "/gateway/ep-1", strings.NewReader(`{"jsonrpc":"2.0","id":1,"method":"ping"}`))
	rec := httptest.NewRecorder()
	router(h).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"result":{}`) {
		t.Errorf("body = %s, want empty result object", rec.Body.String())
	}
}
