package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore implements Store against the metadata schema described in
// §6, using an elevated connection pool that bypasses the tenant row-level
// security the dashboard's own connections are subject to.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore wraps an existing pool. The pool's lifecycle belongs to
// the caller (internal/platform.NewPostgresPool).
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) ResolveEndpoint(ctx context.Context, endpointID string) (ResolvedEndpoint, error) {
	const q = `
		SELECT
			e.id, e.credential_id, e.organization_id, e.active, e.allowed_tools,
			c.id, c.organization_id, c.service, c.display_name, c.config, c.trial_queries_used
		FROM mcp_endpoints e
		JOIN credentials c ON c.id = e.credential_id
		WHERE e.id = $1`

	var (
		endpointOrgID string
		allowedTools  []string
		credConfigRaw []byte
	)
	var res ResolvedEndpoint

	row := s.pool.QueryRow(ctx, q, endpointID)
	err := row.Scan(
		&res.Endpoint.ID, &res.Endpoint.CredentialID, &endpointOrgID, &res.Endpoint.Active, &allowedTools,
		&res.Credential.ID, &res.Credential.OrganizationID, &res.Credential.Service,
		&res.Credential.DisplayName, &credConfigRaw, &res.Credential.TrialQueriesUsed,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return ResolvedEndpoint{}, ErrNotFound
	}
	if err != nil {
		return ResolvedEndpoint{}, fmt.Errorf("resolving endpoint: %w", err)
	}

	var config CredentialConfig
	if err := json.Unmarshal(credConfigRaw, &config); err != nil {
		return ResolvedEndpoint{}, fmt.Errorf("decoding credential config: %w", err)
	}

	res.Endpoint.OrganizationID = endpointOrgID
	res.Endpoint.Service = res.Credential.Service
	res.Endpoint.AllowedTools = allowedTools
	res.Credential.Config = config
	res.OrganizationID = endpointOrgID

	return res, nil
}

func (s *PostgresStore) LookupSubscription(ctx context.Context, organizationID string) (Subscription, error) {
	const q = `
		SELECT plan, status, COALESCE(external_sub_id, '')
		FROM subscriptions
		WHERE organization_id = $1`

	var sub Subscription
	row := s.pool.QueryRow(ctx, q, organizationID)
	err := row.Scan(&sub.Plan, &sub.Status, &sub.ExternalSubID)
	if errors.Is(err, pgx.ErrNoRows) {
		return Subscription{}, ErrNotFound
	}
	if err != nil {
		return Subscription{}, fmt.Errorf("looking up subscription: %w", err)
	}
	return sub, nil
}

func (s *PostgresStore) CountRequestsSince(ctx context.Context, organizationID string, since time.Time) (int, error) {
	const q = `
		SELECT COUNT(*)
		FROM usage_logs
		WHERE organization_id = $1 AND created_at >= $2`

	var count int
	if err := s.pool.QueryRow(ctx, q, organizationID, since).Scan(&count); err != nil {
		return 0, fmt.Errorf("counting usage since %s: %w", since, err)
	}
	return count, nil
}

// IncrementTrialCounter is the compare-and-swap from §4.1 op 4 / §5: it
// never reads then writes on a separate round trip. The predicate lives in
// the WHERE clause, so two concurrent callers racing on the same
// expectedCurrent can only ever have one of them affect a row.
func (s *PostgresStore) IncrementTrialCounter(ctx context.Context, credentialID string, expectedCurrent int) (int, error) {
	const q = `
		UPDATE credentials
		SET trial_queries_used = trial_queries_used + 1
		WHERE id = $1 AND trial_queries_used = $2`

	tag, err := s.pool.Exec(ctx, q, credentialID, expectedCurrent)
	if err != nil {
		return 0, fmt.Errorf("incrementing trial counter: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return 0, ErrConflict
	}
	return expectedCurrent + 1, nil
}

func (s *PostgresStore) AppendUsage(ctx context.Context, record UsageRecord) error {
	const q = `
		INSERT INTO usage_logs
			(organization_id, credential_id, service, tool, request_args, status, error, duration_ms, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	argsJSON, err := json.Marshal(record.RequestArgs)
	if err != nil {
		return fmt.Errorf("encoding request args: %w", err)
	}

	createdAt := record.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	_, err = s.pool.Exec(ctx, q,
		record.OrganizationID, record.CredentialID, record.Service, record.Tool,
		argsJSON, record.Status, record.Error, record.DurationMS, createdAt,
	)
	if err != nil {
		return fmt.Errorf("appending usage log: %w", err)
	}
	return nil
}

func (s *PostgresStore) TouchEndpoint(ctx context.Context, endpointID string, now time.Time) error {
	const q = `UPDATE mcp_endpoints SET last_accessed_at = $2 WHERE id = $1`

	if _, err := s.pool.Exec(ctx, q, endpointID, now); err != nil {
		return fmt.Errorf("touching endpoint %s: %w", endpointID, err)
	}
	return nil
}
