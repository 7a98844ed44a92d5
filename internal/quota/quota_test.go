package quota

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/wisbric/mcpgateway/internal/store"
)

func TestCheckDailyPlanLimits(t *testing.T) {
	tests := []struct {
		name      string
		plan      store.Plan
		priorLogs int
		wantErr   error
	}{
		{"free under limit", store.PlanFree, 99, nil},
		{"free at limit", store.PlanFree, 100, ErrDailyCapExceeded},
		{"starter under limit", store.PlanStarter, 9_999, nil},
		{"pro at limit", store.PlanPro, 100_000, ErrDailyCapExceeded},
		{"team always allowed", store.PlanTeam, 1_000_000, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := store.NewMemoryStore()
			now := time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC)
			midnight := time.Date(2026, 7, 30, 0, 0, 0, 0, time.UTC)
			for i := 0; i < tt.priorLogs; i++ {
				_ = m.AppendUsage(context.Background(), store.UsageRecord{
					OrganizationID: "org-1",
					Status:         store.UsageSuccess,
					CreatedAt:      midnight.Add(time.Minute),
				})
			}

			g := NewGate(m).WithClock(func() time.Time { return now })
			err := g.CheckDaily(context.Background(), "org-1", tt.plan)
			if !errors.Is(err, tt.wantErr) && err != tt.wantErr {
				t.Errorf("CheckDaily() = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestCheckTrialAllowsUntilLimit(t *testing.T) {
	m := store.NewMemoryStore()
	m.SeedCredential(store.Credential{ID: "cred-1", TrialQueriesUsed: 8})
	g := NewGate(m)

	if err := g.CheckTrial(context.Background(), "cred-1", 8); err != nil {
		t.Fatalf("CheckTrial() error: %v", err)
	}
	if err := g.CheckTrial(context.Background(), "cred-1", 9); err != nil {
		t.Fatalf("CheckTrial() error: %v", err)
	}
	if err := g.CheckTrial(context.Background(), "cred-1", 10); err != ErrTrialLimitReached {
		t.Errorf("CheckTrial() at limit = %v, want ErrTrialLimitReached", err)
	}
}

func TestCheckTrialConcurrentRaceAllowsExactlyOne(t *testing.T) {
	// §8 "Trial CAS": N concurrent callers, K trial queries remain (K<N) —
	// exactly K succeed.
	m := store.NewMemoryStore()
	m.SeedCredential(store.Credential{ID: "cred-1", TrialQueriesUsed: 9})
	g := NewGate(m)

	const n = 10
	var wg sync.WaitGroup
	results := make(chan error, n)

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- g.CheckTrial(context.Background(), "cred-1", 9)
		}()
	}
	wg.Wait()
	close(results)

	successes := 0
	for err := range results {
		if err == nil {
			successes++
		}
	}
	if successes != 1 {
		t.Errorf("concurrent CheckTrial successes = %d, want 1", successes)
	}
}
