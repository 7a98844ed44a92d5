// Package store defines the gateway's narrow view of the metadata store
// (§4.1, §6): endpoints, credentials, organizations, subscriptions, usage
// logs, and the per-credential trial counter. The gateway consumes this
// schema; it does not own or migrate it in production (§1).
package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by lookups that find nothing.
var ErrNotFound = errors.New("not found")

// ErrConflict is returned by IncrementTrialCounter when expectedCurrent no
// longer matches the stored value (§4.1 op 4, the compare-and-swap).
var ErrConflict = errors.New("trial counter conflict")

// SubscriptionStatus mirrors §3's Subscription.status enum.
type SubscriptionStatus string

const (
	SubscriptionActive    SubscriptionStatus = "active"
	SubscriptionCanceled  SubscriptionStatus = "canceled"
	SubscriptionPastDue   SubscriptionStatus = "past_due"
	SubscriptionTrialing  SubscriptionStatus = "trialing"
	SubscriptionIncomplete SubscriptionStatus = "incomplete"
)

// Plan mirrors §3's Organization.plan enum.
type Plan string

const (
	PlanFree      Plan = "free"
	PlanStarter   Plan = "starter"
	PlanPro       Plan = "pro"
	PlanTeam      Plan = "team"
	PlanLifetime  Plan = "lifetime"
)

// FieldSpec describes one entry in a service's field schema (§9).
type FieldSpec struct {
	Key       string
	Type      string // one of: text, password, url, checkbox
	Required  bool
	Encrypted bool
}

// CredentialConfig is the field-name → value map described in §3. Values for
// fields the field schema marks Encrypted are sealed ciphertext as read from
// the store; unsealing is the caller's job (C1), not the store's.
type CredentialConfig map[string]string

// Credential is the §3 Credential entity, scoped to what the gateway reads.
type Credential struct {
	ID             string
	OrganizationID string
	Service        string
	DisplayName    string
	Config         CredentialConfig
	TrialQueriesUsed int
}

// Endpoint is the §3 Endpoint entity.
type Endpoint struct {
	ID             string
	CredentialID   string
	OrganizationID string
	Service        string
	Active         bool
	AllowedTools   []string // nil/empty means "no restriction"
	RateLimitPerMinute int
}

// ResolvedEndpoint is the atomic result of ResolveEndpoint (§4.1 op 1): the
// endpoint and its bound credential, read together so a torn read can never
// observe a stale pairing.
type ResolvedEndpoint struct {
	Endpoint       Endpoint
	Credential     Credential
	OrganizationID string
}

// Subscription is the gateway's read-only view of §3's Subscription entity.
type Subscription struct {
	Plan             Plan
	Status           SubscriptionStatus
	ExternalSubID    string
}

// IsActivePaid reports whether the organization has a non-trial billing
// relationship, per §4.5's trial-gate bypass rule.
func (s Subscription) IsActivePaid() bool {
	return s.Status == SubscriptionActive || s.Status == SubscriptionPastDue
}

// UsageStatus mirrors §3's Usage Log status enum.
type UsageStatus string

const (
	UsageSuccess UsageStatus = "success"
	UsageError   UsageStatus = "error"
)

// UsageRecord is one append-only §3 Usage Log entry.
type UsageRecord struct {
	OrganizationID string
	CredentialID   string
	Service        string
	Tool           string
	RequestArgs    map[string]any // redacted before being passed in
	Status         UsageStatus
	Error          string
	DurationMS     int64
	CreatedAt      time.Time
}

// Store is the gateway's entire view of the metadata store (§4.1). All reads
// run with privileges that bypass tenant row filters — ResolveEndpoint is
// the only authorization boundary the gateway has, so implementations must
// fail closed on any ambiguity.
type Store interface {
	// ResolveEndpoint returns the endpoint and its bound credential
	// atomically. ErrNotFound covers both "no such endpoint" and "endpoint
	// exists but is not paired with an active credential".
	ResolveEndpoint(ctx context.Context, endpointID string) (ResolvedEndpoint, error)

	// LookupSubscription returns the organization's plan and billing status.
	LookupSubscription(ctx context.Context, organizationID string) (Subscription, error)

	// CountRequestsSince counts usage-log entries for the organization with
	// CreatedAt >= since.
	CountRequestsSince(ctx context.Context, organizationID string, since time.Time) (int, error)

	// IncrementTrialCounter performs the CAS described in §4.1 op 4 and §5:
	// it only succeeds if the stored trial_queries_used equals
	// expectedCurrent, in which case it becomes expectedCurrent+1. Returns
	// the new value on success, or ErrConflict if the stored value had
	// already moved.
	IncrementTrialCounter(ctx context.Context, credentialID string, expectedCurrent int) (int, error)

	// AppendUsage is fire-and-forget: implementations must not block the
	// caller's reply on this write succeeding (§4.1 op 5, §5).
	AppendUsage(ctx context.Context, record UsageRecord) error

	// TouchEndpoint is fire-and-forget (§4.1 op 6).
	TouchEndpoint(ctx context.Context, endpointID string, now time.Time) error
}
