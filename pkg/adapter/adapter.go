// Package adapter implements the service-specific tool adapters of §4.4:
// one per supported upstream (PostgreSQL, MySQL, MSSQL, Supabase, Stripe,
// Mixpanel), each exposing a fixed, read-only tool set behind a common
// capability interface. Adapters never raise across the Handle boundary —
// failures are returned as a Result with Err set, per §4.4.4.
package adapter

import (
	"context"
	"fmt"
)

// ToolDef is the {name, description, input_schema} tuple advertised by
// tools/list (§4.6).
type ToolDef struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"inputSchema"`
}

// Result is an adapter's outcome for one tool call: either Ok carries the
// JSON-serializable payload, or Err carries a message. Never both.
type Result struct {
	Ok  any
	Err string
}

// IsError reports whether the call failed at the adapter level (as opposed
// to the two exceptions in §4.4.4 — decrypt failure and unknown service —
// which surface as RPC errors instead of a Result).
func (r Result) IsError() bool {
	return r.Err != ""
}

// Config is the decrypted credential field map handed to an adapter by the
// dispatcher after C1 unsealing. Adapters must never echo any portion of it
// back in an error message (§7).
type Config map[string]string

// Adapter is the capability set every service implementation exposes
// (§4.4, §9): a static tool list plus a single dispatch method. Registries
// are constructed once at process start and never mutated afterward.
type Adapter interface {
	// Service returns the service kind this adapter handles, e.g. "postgres".
	Service() string

	// Tools returns this adapter's fixed tool definitions.
	Tools() []ToolDef

	// Handle runs one tool call against the given decrypted credential
	// config. It never returns a Go error for upstream/validation failures
	// — those become Result.Err (§4.4.4). A non-nil error return is
	// reserved for context cancellation.
	Handle(ctx context.Context, tool string, args map[string]any, config Config) (Result, error)
}

// Registry maps service kind to its Adapter, built once at startup (§9).
type Registry struct {
	adapters map[string]Adapter
}

// NewRegistry constructs an empty registry.
func NewRegistry() *Registry {
	return &Registry{adapters: map[string]Adapter{}}
}

// Register adds an adapter, keyed by its own Service().
func (r *Registry) Register(a Adapter) {
	r.adapters[a.Service()] = a
}

// Get returns the adapter for the given service kind, or an error if none
// is registered (the dispatcher maps this to RPC code -32000, §4.6 step 2).
func (r *Registry) Get(service string) (Adapter, error) {
	a, ok := r.adapters[service]
	if !ok {
		return nil, fmt.Errorf("unknown service %q", service)
	}
	return a, nil
}
