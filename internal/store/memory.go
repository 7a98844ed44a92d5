package store

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-memory Store used by dispatcher, edge, quota, and
// usage-log tests so they don't need a live Postgres instance. It mirrors
// PostgresStore's compare-and-swap contract exactly — tests exercising the
// trial-race property rely on that.
type MemoryStore struct {
	mu            sync.Mutex
	endpoints     map[string]Endpoint
	credentials   map[string]Credential
	subscriptions map[string]Subscription
	usage         []UsageRecord
}

// NewMemoryStore returns an empty store; use the Seed* helpers to populate it.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		endpoints:     map[string]Endpoint{},
		credentials:   map[string]Credential{},
		subscriptions: map[string]Subscription{},
	}
}

func (m *MemoryStore) SeedEndpoint(e Endpoint) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.endpoints[e.ID] = e
}

func (m *MemoryStore) SeedCredential(c Credential) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.credentials[c.ID] = c
}

func (m *MemoryStore) SeedSubscription(organizationID string, sub Subscription) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subscriptions[organizationID] = sub
}

func (m *MemoryStore) UsageLog() []UsageRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]UsageRecord, len(m.usage))
	copy(out, m.usage)
	return out
}

func (m *MemoryStore) ResolveEndpoint(ctx context.Context, endpointID string) (ResolvedEndpoint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ep, ok := m.endpoints[endpointID]
	if !ok {
		return ResolvedEndpoint{}, ErrNotFound
	}
	cred, ok := m.credentials[ep.CredentialID]
	if !ok {
		return ResolvedEndpoint{}, ErrNotFound
	}

	config := make(CredentialConfig, len(cred.Config))
	for k, v := range cred.Config {
		config[k] = v
	}
	cred.Config = config

	return ResolvedEndpoint{
		Endpoint:       ep,
		Credential:     cred,
		OrganizationID: ep.OrganizationID,
	}, nil
}

func (m *MemoryStore) LookupSubscription(ctx context.Context, organizationID string) (Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sub, ok := m.subscriptions[organizationID]
	if !ok {
		return Subscription{}, ErrNotFound
	}
	return sub, nil
}

func (m *MemoryStore) CountRequestsSince(ctx context.Context, organizationID string, since time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	count := 0
	for _, rec := range m.usage {
		if rec.OrganizationID == organizationID && !rec.CreatedAt.Before(since) {
			count++
		}
	}
	return count, nil
}

func (m *MemoryStore) IncrementTrialCounter(ctx context.Context, credentialID string, expectedCurrent int) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cred, ok := m.credentials[credentialID]
	if !ok {
		return 0, ErrNotFound
	}
	if cred.TrialQueriesUsed != expectedCurrent {
		return 0, ErrConflict
	}
	cred.TrialQueriesUsed = expectedCurrent + 1
	m.credentials[credentialID] = cred
	return cred.TrialQueriesUsed, nil
}

func (m *MemoryStore) AppendUsage(ctx context.Context, record UsageRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}
	m.usage = append(m.usage, record)
	return nil
}

func (m *MemoryStore) TouchEndpoint(ctx context.Context, endpointID string, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	ep, ok := m.endpoints[endpointID]
	if !ok {
		return ErrNotFound
	}
	_ = ep
	return nil
}
