package usagelog

import (
	"context"
	"log/slog"
	"io"
	"testing"
	"time"

	"github.com/wisbric/mcpgateway/internal/store"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestWriterSubmitAndDrainOnClose(t *testing.T) {
	m := store.NewMemoryStore()
	w := NewWriter(m, testLogger())
	w.Start(context.Background())

	w.Submit(store.UsageRecord{OrganizationID: "org-1", Status: store.UsageSuccess})
	w.Submit(store.UsageRecord{OrganizationID: "org-1", Status: store.UsageSuccess})

	w.Close()

	logged := m.UsageLog()
	if len(logged) != 2 {
		t.Fatalf("usage log has %d entries after Close(), want 2", len(logged))
	}
}

func TestWriterDropsOnFullQueue(t *testing.T) {
	m := store.NewMemoryStore()
	w := NewWriter(m, testLogger())
	// Deliberately do not Start() the drain loop, so the channel fills up.

	for i := 0; i < bufferSize+10; i++ {
		w.Submit(store.UsageRecord{OrganizationID: "org-1", Status: store.UsageSuccess})
	}

	if len(w.usage) != bufferSize {
		t.Errorf("queue length = %d, want full at %d", len(w.usage), bufferSize)
	}
}

func TestWriterTouchEndpoint(t *testing.T) {
	m := store.NewMemoryStore()
	m.SeedEndpoint(store.Endpoint{ID: "ep-1"})
	w := NewWriter(m, testLogger())
	w.Start(context.Background())

	w.TouchEndpoint("ep-1")
	w.Close()

	// No assertion beyond "did not panic/deadlock" — TouchEndpoint is
	// advisory telemetry (§5), not something callers block on.
	time.Sleep(time.Millisecond)
}
