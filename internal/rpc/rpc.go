// Package rpc implements the MCP JSON-RPC 2.0 dispatcher (§4.6): parsing,
// method routing, the tools/call pipeline, and the error-code reservations
// of §4.6/§7.
package rpc

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/wisbric/mcpgateway/internal/crypto"
	"github.com/wisbric/mcpgateway/internal/httpserver"
	"github.com/wisbric/mcpgateway/internal/quota"
	"github.com/wisbric/mcpgateway/internal/store"
	"github.com/wisbric/mcpgateway/internal/telemetry"
	"github.com/wisbric/mcpgateway/internal/usagelog"
	"github.com/wisbric/mcpgateway/pkg/adapter"
)

// Error code reservations (§4.6).
const (
	CodeParseError      = -32700
	CodeInvalidRequest  = -32600
	CodeMethodNotFound  = -32601
	CodeInvalidParams   = -32602
	CodeNotFound        = -32001
	CodeInactive        = -32002
	CodeQuotaExceeded   = -32003
	CodeServerFault     = -32000
)

// ProtocolVersion is echoed by the initialize handshake (§4.6).
const ProtocolVersion = "2025-03-26"

// Request is an inbound MCP JSON-RPC 2.0 envelope (§6).
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      any             `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// Response is an outbound MCP JSON-RPC 2.0 envelope (§6). Exactly one of
// Result/Error is set.
type Response struct {
	JSONRPC string    `json:"jsonrpc"`
	ID      any       `json:"id"`
	Result  any       `json:"result,omitempty"`
	Error   *RPCError `json:"error,omitempty"`
}

// RPCError is the {code, message} shape of §6.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func errorResponse(id any, code int, message string) *Response {
	return &Response{JSONRPC: "2.0", ID: id, Error: &RPCError{Code: code, Message: message}}
}

func resultResponse(id any, result any) *Response {
	return &Response{JSONRPC: "2.0", ID: id, Result: result}
}

// Dispatcher wires the metadata store (C3), the crypto envelope (C1), the
// quota gate (C5), and the adapter registry (C4) into the method-routing
// pipeline described by §4.6.
type Dispatcher struct {
	Store    store.Store
	Sealer   *crypto.Sealer
	Gate     *quota.Gate
	Registry *adapter.Registry
	UsageLog *usagelog.Writer
	Logger   *slog.Logger

	ServerName    string
	ServerVersion string
}

// HandleRaw parses body and dispatches it. It returns the bytes to write as
// the HTTP response body, whether the call was a notification (in which
// case the edge must reply 204 with no body), and the RPC-level error code
// recorded for metrics (0 when there was none).
func (d *Dispatcher) HandleRaw(ctx context.Context, endpointID string, body []byte) (respBody []byte, isNotification bool, errCode int) {
	var req Request
	if err := json.Unmarshal(body, &req); err != nil {
		resp := errorResponse(nil, CodeParseError, "parse error: "+err.Error())
		return d.encode(resp), false, CodeParseError
	}

	if req.JSONRPC != "2.0" {
		resp := errorResponse(req.ID, CodeInvalidRequest, `invalid envelope: "jsonrpc" must be "2.0"`)
		return d.encode(resp), false, CodeInvalidRequest
	}

	if req.Method == "notifications/initialized" {
		return nil, true, 0
	}

	resp := d.dispatch(ctx, endpointID, req)
	code := 0
	if resp.Error != nil {
		code = resp.Error.Code
	}
	return d.encode(resp), false, code
}

func (d *Dispatcher) encode(resp *Response) []byte {
	b, err := json.Marshal(resp)
	if err != nil {
		// Marshaling our own response struct should never fail; fall back
		// to a minimal hand-built envelope rather than panic.
		return []byte(fmt.Sprintf(`{"jsonrpc":"2.0","id":null,"error":{"code":%d,"message":"internal encoding error"}}`, CodeServerFault))
	}
	return b
}

func (d *Dispatcher) dispatch(ctx context.Context, endpointID string, req Request) *Response {
	switch req.Method {
	case "initialize":
		return resultResponse(req.ID, map[string]any{
			"protocolVersion": ProtocolVersion,
			"capabilities":    map[string]any{"tools": map[string]any{}},
			"serverInfo":      map[string]any{"name": d.ServerName, "version": d.ServerVersion},
		})

	case "ping":
		return resultResponse(req.ID, map[string]any{})

	case "tools/list":
		return d.handleToolsList(ctx, endpointID, req)

	case "tools/call":
		return d.handleToolsCall(ctx, endpointID, req)

	default:
		return errorResponse(req.ID, CodeMethodNotFound, fmt.Sprintf("unknown method %q", req.Method))
	}
}

func (d *Dispatcher) handleToolsList(ctx context.Context, endpointID string, req Request) *Response {
	resolved, err := d.Store.ResolveEndpoint(ctx, endpointID)
	if err != nil {
		return endpointLookupError(req.ID, err)
	}
	if !resolved.Endpoint.Active {
		return errorResponse(req.ID, CodeInactive, "endpoint is inactive")
	}

	a, err := d.Registry.Get(resolved.Endpoint.Service)
	if err != nil {
		return errorResponse(req.ID, CodeServerFault, err.Error())
	}

	tools := filterAllowedTools(a.Tools(), resolved.Endpoint.AllowedTools)
	return resultResponse(req.ID, map[string]any{"tools": tools})
}

func filterAllowedTools(tools []adapter.ToolDef, allowList []string) []adapter.ToolDef {
	if len(allowList) == 0 {
		return tools
	}
	allowed := make(map[string]bool, len(allowList))
	for _, name := range allowList {
		allowed[name] = true
	}
	out := make([]adapter.ToolDef, 0, len(tools))
	for _, t := range tools {
		if allowed[t.Name] {
			out = append(out, t)
		}
	}
	return out
}

type toolsCallParams struct {
	Name      string         `json:"name" validate:"required"`
	Arguments map[string]any `json:"arguments"`
}

// handleToolsCall runs the 9-step pipeline of §4.6.
func (d *Dispatcher) handleToolsCall(ctx context.Context, endpointID string, req Request) *Response {
	// Step 1: validate params.name present.
	var params toolsCallParams
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return errorResponse(req.ID, CodeInvalidParams, "invalid params: "+err.Error())
		}
	}
	params.Name = strings.TrimSpace(params.Name)
	if errs := httpserver.Validate(params); len(errs) > 0 {
		return errorResponse(req.ID, CodeInvalidParams, `"params.name" is required`)
	}

	resolved, err := d.Store.ResolveEndpoint(ctx, endpointID)
	if err != nil {
		return endpointLookupError(req.ID, err)
	}
	if !resolved.Endpoint.Active {
		return errorResponse(req.ID, CodeInactive, "endpoint is inactive")
	}

	// Step 2: look up adapter for endpoint service.
	svc, err := d.Registry.Get(resolved.Endpoint.Service)
	if err != nil {
		return errorResponse(req.ID, CodeServerFault, err.Error())
	}

	// Step 3: tool name must be in the adapter's set.
	if !toolInSet(svc.Tools(), params.Name) {
		return errorResponse(req.ID, CodeMethodNotFound, fmt.Sprintf("unknown tool %q", params.Name))
	}

	// Step 4: tool name must be in the endpoint's allow-list, when set.
	if len(resolved.Endpoint.AllowedTools) > 0 && !stringInList(resolved.Endpoint.AllowedTools, params.Name) {
		return errorResponse(req.ID, CodeMethodNotFound, fmt.Sprintf("tool %q is not enabled for this endpoint", params.Name))
	}

	// Step 5: unseal credential config.
	config, err := d.unsealConfig(resolved.Credential.Config)
	if err != nil {
		return errorResponse(req.ID, CodeServerFault, "failed to decrypt credentials; re-add credentials")
	}

	// Step 6: enforce daily quota.
	sub, err := d.Store.LookupSubscription(ctx, resolved.OrganizationID)
	plan := store.PlanFree
	if err == nil {
		plan = sub.Plan
	} else if !errors.Is(err, store.ErrNotFound) {
		return errorResponse(req.ID, CodeServerFault, "failed to evaluate quota")
	}
	if err := d.Gate.CheckDaily(ctx, resolved.OrganizationID, plan); err != nil {
		telemetry.QuotaDeniedTotal.WithLabelValues("daily_cap").Inc()
		return errorResponse(req.ID, CodeQuotaExceeded, err.Error())
	}

	// Step 7: invoke the adapter, measuring wall-clock duration.
	start := time.Now()
	result, err := svc.Handle(ctx, params.Name, params.Arguments, config)
	duration := time.Since(start)

	status := "success"
	if err != nil || result.IsError() {
		status = "error"
	}
	telemetry.ToolCallDuration.WithLabelValues(resolved.Endpoint.Service, params.Name, status).Observe(duration.Seconds())
	telemetry.ToolCallsTotal.WithLabelValues(resolved.Endpoint.Service, params.Name, status).Inc()

	if err != nil {
		return errorResponse(req.ID, CodeServerFault, "adapter error: "+err.Error())
	}

	// Step 8: fire-and-forget usage log + endpoint touch.
	d.logUsage(resolved, params, result, duration, status)

	// Step 9: translate the adapter result into an MCP-shaped success reply.
	return resultResponse(req.ID, toolCallResult(result))
}

func (d *Dispatcher) unsealConfig(config store.CredentialConfig) (adapter.Config, error) {
	out := make(adapter.Config, len(config))
	for k, v := range config {
		// The gateway has no per-field encrypted flag available here
		// without the service's field schema; values that are not valid
		// envelopes pass through unchanged (§4.2's backward-compatibility
		// rule), and only values shaped like an envelope are decrypted.
		if looksSealed(v) {
			plain, err := d.Sealer.Decrypt(v)
			if err != nil {
				return nil, err
			}
			out[k] = plain
		} else {
			out[k] = v
		}
	}
	return out, nil
}

// looksSealed reports whether v has the "salt:iv:ciphertext:tag" shape
// (four non-empty hex fields) produced by crypto.Sealer.Encrypt.
func looksSealed(v string) bool {
	parts := strings.Split(v, ":")
	if len(parts) != 4 {
		return false
	}
	for _, p := range parts {
		if p == "" {
			return false
		}
		if _, err := hex.DecodeString(p); err != nil {
			return false
		}
	}
	return true
}

func (d *Dispatcher) logUsage(resolved store.ResolvedEndpoint, params toolsCallParams, result adapter.Result, duration time.Duration, status string) {
	record := store.UsageRecord{
		OrganizationID: resolved.OrganizationID,
		CredentialID:   resolved.Credential.ID,
		Service:        resolved.Endpoint.Service,
		Tool:           params.Name,
		RequestArgs:    redactArgs(params.Arguments),
		Status:         store.UsageStatus(status),
		DurationMS:     duration.Milliseconds(),
		CreatedAt:      time.Now().UTC(),
	}
	if result.IsError() {
		record.Error = result.Err
	}
	d.UsageLog.Submit(record)
	d.UsageLog.TouchEndpoint(resolved.Endpoint.ID)
}

// redactArgs drops values for keys that look like secrets before they are
// persisted to the usage log (§3: "request_args (redacted)").
func redactArgs(args map[string]any) map[string]any {
	if args == nil {
		return nil
	}
	out := make(map[string]any, len(args))
	for k, v := range args {
		lower := strings.ToLower(k)
		if strings.Contains(lower, "password") || strings.Contains(lower, "secret") || strings.Contains(lower, "token") || strings.Contains(lower, "key") {
			out[k] = "[redacted]"
			continue
		}
		out[k] = v
	}
	return out
}

func toolCallResult(result adapter.Result) map[string]any {
	var payload any = result.Ok
	if result.IsError() {
		payload = map[string]string{"error": result.Err}
	}

	text, err := json.Marshal(payload)
	if err != nil {
		text = []byte(fmt.Sprintf(`{"error":%q}`, err.Error()))
	}

	out := map[string]any{
		"content": []map[string]any{
			{"type": "text", "text": string(text)},
		},
	}
	if result.IsError() {
		out["isError"] = true
	}
	return out
}

func toolInSet(tools []adapter.ToolDef, name string) bool {
	for _, t := range tools {
		if t.Name == name {
			return true
		}
	}
	return false
}

func stringInList(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func endpointLookupError(id any, err error) *Response {
	if errors.Is(err, store.ErrNotFound) {
		return errorResponse(id, CodeNotFound, "endpoint not found")
	}
	return errorResponse(id, CodeServerFault, "failed to resolve endpoint")
}
