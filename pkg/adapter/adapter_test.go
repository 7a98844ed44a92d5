package adapter

import (
	"context"
	"testing"
)

type stubAdapter struct {
	service string
}

func (s *stubAdapter) Service() string  { return s.service }
func (s *stubAdapter) Tools() []ToolDef { return nil }
func (s *stubAdapter) Handle(ctx context.Context, tool string, args map[string]any, config Config) (Result, error) {
	return Result{}, nil
}

func TestRegistryGet(t *testing.T) {
	r := NewRegistry()
	r.Register(&stubAdapter{service: "postgres"})

	a, err := r.Get("postgres")
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if a.Service() != "postgres" {
		t.Errorf("Get() returned adapter for %q, want postgres", a.Service())
	}

	if _, err := r.Get("nonexistent"); err == nil {
		t.Errorf("Get() for unregistered service = nil error, want error")
	}
}

func TestResultIsError(t *testing.T) {
	if (Result{Ok: "fine"}).IsError() {
		t.Errorf("IsError() on success result = true, want false")
	}
	if !(Result{Err: "boom"}).IsError() {
		t.Errorf("IsError() on error result = false, want true")
	}
}
