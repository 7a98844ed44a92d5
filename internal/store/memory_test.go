package store

import (
	"context"
	"sync"
	"testing"
)

func TestMemoryStoreResolveEndpoint(t *testing.T) {
	m := NewMemoryStore()
	m.SeedCredential(Credential{ID: "cred-1", OrganizationID: "org-1", Service: "postgres", Config: CredentialConfig{"host": "db"}})
	m.SeedEndpoint(Endpoint{ID: "ep-1", CredentialID: "cred-1", OrganizationID: "org-1", Service: "postgres", Active: true})

	ctx := context.Background()

	resolved, err := m.ResolveEndpoint(ctx, "ep-1")
	if err != nil {
		t.Fatalf("ResolveEndpoint() error: %v", err)
	}
	if resolved.Credential.Config["host"] != "db" {
		t.Errorf("resolved credential config missing expected field")
	}

	if _, err := m.ResolveEndpoint(ctx, "does-not-exist"); err != ErrNotFound {
		t.Errorf("ResolveEndpoint() unknown id error = %v, want ErrNotFound", err)
	}
}

func TestMemoryStoreIncrementTrialCounterCAS(t *testing.T) {
	m := NewMemoryStore()
	m.SeedCredential(Credential{ID: "cred-1", TrialQueriesUsed: 9})

	ctx := context.Background()

	if _, err := m.IncrementTrialCounter(ctx, "cred-1", 5); err != ErrConflict {
		t.Errorf("IncrementTrialCounter() with stale expected = %v, want ErrConflict", err)
	}

	newVal, err := m.IncrementTrialCounter(ctx, "cred-1", 9)
	if err != nil {
		t.Fatalf("IncrementTrialCounter() error: %v", err)
	}
	if newVal != 10 {
		t.Errorf("IncrementTrialCounter() = %d, want 10", newVal)
	}
}

func TestMemoryStoreIncrementTrialCounterConcurrentRace(t *testing.T) {
	// N concurrent callers all believing the counter is at 9 (LIMIT 10):
	// the CAS must let exactly one through.
	m := NewMemoryStore()
	m.SeedCredential(Credential{ID: "cred-1", TrialQueriesUsed: 9})

	const n = 20
	var wg sync.WaitGroup
	successes := make(chan int, n)

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := m.IncrementTrialCounter(context.Background(), "cred-1", 9); err == nil {
				successes <- 1
			}
		}()
	}
	wg.Wait()
	close(successes)

	count := 0
	for range successes {
		count++
	}
	if count != 1 {
		t.Errorf("concurrent CAS increments succeeded = %d, want exactly 1", count)
	}

	final := m.credentials["cred-1"].TrialQueriesUsed
	if final != 10 {
		t.Errorf("final trial counter = %d, want 10", final)
	}
}

func TestMemoryStoreAppendAndCountUsage(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := m.AppendUsage(ctx, UsageRecord{OrganizationID: "org-1", Status: UsageSuccess}); err != nil {
			t.Fatalf("AppendUsage() error: %v", err)
		}
	}

	count, err := m.CountRequestsSince(ctx, "org-1", m.usage[0].CreatedAt)
	if err != nil {
		t.Fatalf("CountRequestsSince() error: %v", err)
	}
	if count != 3 {
		t.Errorf("CountRequestsSince() = %d, want 3", count)
	}
}
