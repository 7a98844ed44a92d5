// Package quota implements the two admission gates of §4.5: the
// organization's plan-derived daily cap, and the per-credential trial
// ceiling for organizations without an active paid subscription.
package quota

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/wisbric/mcpgateway/internal/store"
)

// TrialLimit is the single named constant for the per-credential trial
// ceiling (§4.5). Changing it only affects new test-connection calls; it is
// not persisted anywhere.
const TrialLimit = 10

// dailyLimits maps plan to its per-day request ceiling (§4.5). A plan absent
// from this map (there is none today) would deny by default rather than
// silently allow unlimited traffic — see Gate.CheckDaily.
var dailyLimits = map[store.Plan]int{
	store.PlanFree:     100,
	store.PlanStarter:  10_000,
	store.PlanLifetime: 10_000,
	store.PlanPro:      100_000,
	// store.PlanTeam is intentionally absent: team is unlimited and
	// short-circuits in CheckDaily before the map is consulted.
}

// ErrDailyCapExceeded is returned by CheckDaily when the organization has
// reached its plan's daily request ceiling.
var ErrDailyCapExceeded = errors.New("daily_cap")

// ErrTrialLimitReached is returned by CheckTrial when the per-credential
// trial ceiling has been reached (after the permitted single retry).
var ErrTrialLimitReached = errors.New("limit_reached")

// Gate evaluates both admission gates against a Store.
type Gate struct {
	store store.Store
	now   func() time.Time
}

// NewGate constructs a Gate. now defaults to time.Now; tests may override it
// via WithClock.
func NewGate(s store.Store) *Gate {
	return &Gate{store: s, now: time.Now}
}

// WithClock overrides the gate's clock, for deterministic daily-boundary tests.
func (g *Gate) WithClock(now func() time.Time) *Gate {
	g.now = now
	return g
}

// CheckDaily enforces the organization daily cap (§4.5 gate 1). Team plans
// are unlimited and short-circuit without touching the store.
func (g *Gate) CheckDaily(ctx context.Context, organizationID string, plan store.Plan) error {
	if plan == store.PlanTeam {
		return nil
	}

	limit, ok := dailyLimits[plan]
	if !ok {
		return fmt.Errorf("%w: unrecognized plan %q", ErrDailyCapExceeded, plan)
	}

	midnight := startOfDay(g.now())
	count, err := g.store.CountRequestsSince(ctx, organizationID, midnight)
	if err != nil {
		return fmt.Errorf("checking daily usage: %w", err)
	}
	if count >= limit {
		return ErrDailyCapExceeded
	}
	return nil
}

// CheckTrial enforces the per-credential trial cap (§4.5 gate 2). It is only
// invoked by the test-connection path, never by production tools/call
// traffic (§4.5). Callers must have already confirmed the organization has
// no active paid subscription.
//
// It increments via the store's compare-and-swap, retrying once on a
// conflict (a second writer moved the counter between the caller's read of
// currentUsed and this call). A second conflict, or currentUsed already at
// or above TrialLimit, denies with ErrTrialLimitReached.
func (g *Gate) CheckTrial(ctx context.Context, credentialID string, currentUsed int) error {
	expected := currentUsed
	for attempt := 0; attempt < 2; attempt++ {
		if expected >= TrialLimit {
			return ErrTrialLimitReached
		}

		_, err := g.store.IncrementTrialCounter(ctx, credentialID, expected)
		if err == nil {
			return nil
		}
		if !errors.Is(err, store.ErrConflict) {
			return fmt.Errorf("incrementing trial counter: %w", err)
		}

		// One other writer moved the counter by exactly one between our
		// read and our CAS; retry once against that value.
		expected++
	}
	return ErrTrialLimitReached
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
