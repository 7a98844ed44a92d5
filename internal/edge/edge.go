// Package edge implements the gateway's domain-facing HTTP routes (§4.7):
// the health probe and the JSON-RPC entry point at /gateway/{endpoint_id}.
// The ambient server (internal/httpserver) owns everything else.
package edge

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/wisbric/mcpgateway/internal/httpserver"
	"github.com/wisbric/mcpgateway/internal/rpc"
	"github.com/wisbric/mcpgateway/internal/store"
	"github.com/wisbric/mcpgateway/internal/telemetry"
)

// Handler mounts the two gateway routes described by §4.7.
type Handler struct {
	Store      store.Store
	Dispatcher *rpc.Dispatcher
	Logger     *slog.Logger

	MaxBodyBytes   int64
	RequestTimeout time.Duration

	ServerName    string
	ServerVersion string
}

// Mount registers GET and POST on /gateway/{endpoint_id}. Any other method
// on that path gets chi's default 405 automatically, since no other method
// is registered for the pattern.
func (h *Handler) Mount(router chi.Router) {
	router.Get("/gateway/{endpoint_id}", h.probe)
	router.Post("/gateway/{endpoint_id}", h.handleRPC)
}

// probe implements the GET /gateway/{endpoint_id} health check (§4.7).
func (h *Handler) probe(w http.ResponseWriter, r *http.Request) {
	endpointID := chi.URLParam(r, "endpoint_id")

	resolved, err := h.Store.ResolveEndpoint(r.Context(), endpointID)
	if errors.Is(err, store.ErrNotFound) {
		httpserver.RespondError(w, http.StatusNotFound, "not_found", "endpoint not found")
		return
	}
	if err != nil {
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to resolve endpoint")
		return
	}
	if !resolved.Endpoint.Active {
		httpserver.RespondError(w, http.StatusForbidden, "inactive", "endpoint is inactive")
		return
	}

	httpserver.Respond(w, http.StatusOK, map[string]any{
		"name":     h.ServerName,
		"version":  h.ServerVersion,
		"status":   "active",
		"service":  resolved.Endpoint.Service,
		"endpoint": resolved.Endpoint.ID,
	})
}

// handleRPC implements POST /gateway/{endpoint_id}, the JSON-RPC entry point
// (§4.7). It owns the body-size limit and the overall request deadline
// around the dispatcher (§5).
func (h *Handler) handleRPC(w http.ResponseWriter, r *http.Request) {
	endpointID := chi.URLParam(r, "endpoint_id")

	ctx, cancel := context.WithTimeout(r.Context(), h.RequestTimeout)
	defer cancel()

	r.Body = http.MaxBytesReader(w, r.Body, h.MaxBodyBytes)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			httpserver.RespondError(w, http.StatusRequestEntityTooLarge, "request_too_large", "request body exceeds the maximum allowed size")
			return
		}
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "failed to read request body")
		return
	}

	respBody, isNotification, errCode := h.Dispatcher.HandleRaw(ctx, endpointID, body)
	if errCode != 0 {
		telemetry.RPCErrorsTotal.WithLabelValues(rpcCodeLabel(errCode)).Inc()
	}

	if isNotification {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(respBody)
}

func rpcCodeLabel(code int) string {
	switch code {
	case rpc.CodeParseError:
		return "parse_error"
	case rpc.CodeInvalidRequest:
		return "invalid_request"
	case rpc.CodeMethodNotFound:
		return "method_not_found"
	case rpc.CodeInvalidParams:
		return "invalid_params"
	case rpc.CodeNotFound:
		return "not_found"
	case rpc.CodeInactive:
		return "inactive"
	case rpc.CodeQuotaExceeded:
		return "quota_exceeded"
	case rpc.CodeServerFault:
		return "server_fault"
	default:
		return "unknown"
	}
}
