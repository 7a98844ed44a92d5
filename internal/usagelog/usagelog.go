// Package usagelog implements the fire-and-forget submission discipline for
// AppendUsage and TouchEndpoint (§4.1 ops 5/6, §5, §9): a bounded work queue
// that never blocks the gateway's reply to the client and drains cleanly on
// shutdown.
package usagelog

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/wisbric/mcpgateway/internal/store"
	"github.com/wisbric/mcpgateway/internal/telemetry"
)

const (
	bufferSize    = 256
	flushInterval = 2 * time.Second
	flushBatch    = 32
)

type touchEntry struct {
	endpointID string
	at         time.Time
}

// Writer owns the bounded channel and the background goroutine that drains
// it into the metadata store. AppendUsage/TouchEndpoint are "advisory
// telemetry, not authoritative state" (§5) — entries may be reordered or
// dropped under shutdown, and a full queue drops the newest entry rather
// than blocking the caller.
type Writer struct {
	store  store.Store
	logger *slog.Logger

	usage  chan store.UsageRecord
	touch  chan touchEntry
	done   chan struct{}
	wg     sync.WaitGroup
}

// NewWriter constructs a Writer. Call Start to begin draining and Close to
// drain the remainder and stop.
func NewWriter(s store.Store, logger *slog.Logger) *Writer {
	return &Writer{
		store:  s,
		logger: logger,
		usage:  make(chan store.UsageRecord, bufferSize),
		touch:  make(chan touchEntry, bufferSize),
		done:   make(chan struct{}),
	}
}

// Start launches the background drain loop.
func (w *Writer) Start(ctx context.Context) {
	w.wg.Add(1)
	go w.run(ctx)
}

// Submit enqueues a usage record without blocking. If the queue is full the
// entry is dropped and counted in telemetry.UsageLogDroppedTotal.
func (w *Writer) Submit(record store.UsageRecord) {
	select {
	case w.usage <- record:
	default:
		telemetry.UsageLogDroppedTotal.Inc()
		w.logger.Warn("usage log queue full, dropping entry",
			"organization_id", record.OrganizationID, "tool", record.Tool)
	}
}

// TouchEndpoint enqueues a last-accessed-at update without blocking.
func (w *Writer) TouchEndpoint(endpointID string) {
	select {
	case w.touch <- touchEntry{endpointID: endpointID, at: time.Now().UTC()}:
	default:
		telemetry.UsageLogDroppedTotal.Inc()
		w.logger.Warn("usage log queue full, dropping endpoint touch", "endpoint_id", endpointID)
	}
}

// Close stops accepting new work conceptually (callers must stop calling
// Submit/TouchEndpoint themselves) and blocks until the drain loop has
// flushed up to flushBatch queued entries per channel and exited. Entries
// beyond that are not written.
func (w *Writer) Close() {
	close(w.done)
	w.wg.Wait()
}

func (w *Writer) run(ctx context.Context) {
	defer w.wg.Done()

	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	for {
		select {
		case record := <-w.usage:
			w.writeUsage(ctx, record)

		case entry := <-w.touch:
			w.writeTouch(ctx, entry)

		case <-ticker.C:
			// Periodic wakeup in case both channels are idle; nothing to
			// do beyond letting the loop re-check w.done.

		case <-w.done:
			w.drain(ctx)
			return
		}
	}
}

// drain flushes whatever is left in both channels, bounded by flushBatch per
// channel so a pathological backlog can't hang shutdown indefinitely.
func (w *Writer) drain(ctx context.Context) {
	for i := 0; i < flushBatch; i++ {
		select {
		case record := <-w.usage:
			w.writeUsage(ctx, record)
		default:
			i = flushBatch
		}
	}
	for i := 0; i < flushBatch; i++ {
		select {
		case entry := <-w.touch:
			w.writeTouch(ctx, entry)
		default:
			i = flushBatch
		}
	}
}

// writeUsage and writeTouch deliberately use a fresh background context
// rather than the drain loop's ctx: during shutdown ctx is already
// cancelled, and the whole point of draining is to still flush what's
// queued.
func (w *Writer) writeUsage(_ context.Context, record store.UsageRecord) {
	writeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := w.store.AppendUsage(writeCtx, record); err != nil {
		w.logger.Warn("failed to append usage log", "error", err)
	}
}

func (w *Writer) writeTouch(_ context.Context, entry touchEntry) {
	writeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := w.store.TouchEndpoint(writeCtx, entry.endpointID, entry.at); err != nil {
		w.logger.Warn("failed to touch endpoint", "error", err)
	}
}
