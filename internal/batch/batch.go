// internal/batch/batch.go
package batch

/*
 * Record batching for the track endpoint.
 *
 * All queue state is owned by the main loop: Add, EnterBackground and
 * EnterForeground post work to it, and send completions post back to it.
 * Sends run on their own goroutine so a slow network never stalls the loop.
 *
 * A flush happens when the queue length is a multiple of the batch size or
 * when the flush interval elapsed since the last flush attempt. Records
 * without a type are dropped before sending. A failed send puts its records
 * back at the head of the queue; the queue never exceeds maxStored and the
 * oldest records go first when it would.
 */

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/solatis/schemainspector/internal/loop"
	"github.com/solatis/schemainspector/internal/metrics"
	"github.com/solatis/schemainspector/internal/storage"
	"github.com/solatis/schemainspector/internal/transport"
	"github.com/solatis/schemainspector/internal/types"
)

// StorageKey holds the persisted queue between EnterBackground and
// EnterForeground.
const StorageKey = "avo_inspector_batch_key"

// Config configures a Batcher. Loop and Sender are required.
type Config struct {
	Loop          *loop.Loop
	Sender        transport.Sender
	Store         storage.Storage
	BatchSize     int
	FlushInterval time.Duration
	MaxStored     int
	Now           func() time.Time
	Logger        *slog.Logger
	Metrics       *metrics.Metrics
}

// Batcher queues records and sends them in batches.
type Batcher struct {
	cfg Config

	// Loop-owned.
	records   []transport.Body
	lastFlush time.Time

	sends  sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a batcher. Zero sizes and intervals take the package defaults.
func New(cfg Config) *Batcher {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = types.DefaultBatchSize
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = types.DefaultBatchFlushInterval
	}
	if cfg.MaxStored <= 0 {
		cfg.MaxStored = types.MaxStoredEvents
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Batcher{
		cfg:       cfg,
		lastFlush: cfg.Now(),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Add queues a record and flushes when a trigger is met.
func (b *Batcher) Add(body transport.Body) {
	b.post(func() {
		b.records = append(b.records, body)
		b.trim()
		b.checkFlush()
	})
}

// Flush sends everything queued now, regardless of triggers.
func (b *Batcher) Flush() {
	b.post(func() { b.flush(false) })
}

// EnterBackground trims the queue and persists it. The in-memory queue is
// kept; EnterForeground merges the two by message ID.
func (b *Batcher) EnterBackground() {
	b.post(func() {
		if len(b.records) == 0 {
			return
		}
		b.trim()
		data, err := json.Marshal(b.records)
		if err != nil {
			b.cfg.Logger.Warn("failed to encode batch queue", "error", err)
			return
		}
		if b.cfg.Store == nil {
			return
		}
		if err := b.cfg.Store.SetItem(b.ctx, StorageKey, string(data)); err != nil {
			b.cfg.Logger.Warn("failed to persist batch queue", "error", err)
		}
	})
}

// EnterForeground restores the persisted queue, sends it and clears the
// persisted copy once the send completes.
func (b *Batcher) EnterForeground() {
	b.post(func() {
		restored := b.restore()
		if len(restored) > 0 {
			b.records = merge(restored, b.records)
			b.trim()
		}
		b.flush(true)
	})
}

// Pending reports the number of queued records. Runs on the loop and
// blocks until it answers.
func (b *Batcher) Pending(ctx context.Context) (int, error) {
	result := make(chan int, 1)
	if err := b.cfg.Loop.Post(func() { result <- len(b.records) }); err != nil {
		return 0, err
	}
	select {
	case n := <-result:
		return n, nil
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

// Drain flushes the queue and waits until in-flight sends and their
// completions have run. Must not be called from the loop.
func (b *Batcher) Drain(ctx context.Context) error {
	b.Flush()
	if err := b.cfg.Loop.Flush(ctx); err != nil {
		return err
	}
	done := make(chan struct{})
	go func() {
		b.sends.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	return b.cfg.Loop.Flush(ctx)
}

// Close cancels in-flight sends. Queued records are not sent; call Drain or
// EnterBackground first to keep them.
func (b *Batcher) Close() {
	b.cancel()
	b.sends.Wait()
}

func (b *Batcher) post(task func()) {
	if err := b.cfg.Loop.Post(task); err != nil {
		b.cfg.Logger.Warn("batch operation dropped", "error", err)
	}
}

func (b *Batcher) checkFlush() {
	n := len(b.records)
	if n%b.cfg.BatchSize == 0 || b.cfg.Now().Sub(b.lastFlush) >= b.cfg.FlushInterval {
		b.flush(false)
	}
}

// flush runs on the loop.
func (b *Batcher) flush(clearPersisted bool) {
	b.records = filter(b.records)
	if len(b.records) == 0 {
		if clearPersisted {
			b.clearPersisted()
		}
		return
	}

	b.lastFlush = b.cfg.Now()
	sending := b.records
	b.records = nil

	b.sends.Add(1)
	go func() {
		defer b.sends.Done()
		err := b.cfg.Sender.SendBatch(b.ctx, sending)
		if err != nil {
			b.cfg.Logger.Warn("batch send failed, will retry", "records", len(sending), "error", err)
		}
		if perr := b.cfg.Loop.Post(func() { b.complete(sending, err, clearPersisted) }); perr != nil {
			if err != nil {
				b.cfg.Logger.Warn("dropping unsent records, loop closed", "records", len(sending))
				b.cfg.Metrics.BatchDropped(len(sending))
			}
		}
	}()
}

// complete runs on the loop after a send.
func (b *Batcher) complete(sent []transport.Body, err error, clearPersisted bool) {
	if clearPersisted {
		b.clearPersisted()
	}
	if err != nil {
		b.records = append(sent, b.records...)
		b.trim()
	}
}

// trim drops the oldest records beyond MaxStored.
func (b *Batcher) trim() {
	if extra := len(b.records) - b.cfg.MaxStored; extra > 0 {
		b.records = append([]transport.Body(nil), b.records[extra:]...)
		b.cfg.Metrics.BatchDropped(extra)
		b.cfg.Logger.Debug("dropped oldest records over the stored cap", "dropped", extra)
	}
}

func (b *Batcher) restore() []transport.Body {
	if b.cfg.Store == nil {
		return nil
	}
	raw, ok, err := b.cfg.Store.GetItem(b.ctx, StorageKey)
	if err != nil {
		b.cfg.Logger.Warn("failed to read persisted batch queue", "error", err)
		return nil
	}
	if !ok || raw == "" {
		return nil
	}

	var items []json.RawMessage
	if err := json.Unmarshal([]byte(raw), &items); err != nil {
		b.cfg.Logger.Warn("discarding malformed persisted batch queue", "error", err)
		return nil
	}
	restored := make([]transport.Body, 0, len(items))
	for _, item := range items {
		var body transport.Body
		if err := json.Unmarshal(item, &body); err != nil {
			continue
		}
		restored = append(restored, body)
	}
	return restored
}

func (b *Batcher) clearPersisted() {
	if b.cfg.Store == nil {
		return
	}
	if err := b.cfg.Store.RemoveItem(b.ctx, StorageKey); err != nil {
		b.cfg.Logger.Warn("failed to clear persisted batch queue", "error", err)
	}
}

// filter drops records without a type.
func filter(records []transport.Body) []transport.Body {
	out := records[:0]
	for _, r := range records {
		if r.Type != "" {
			out = append(out, r)
		}
	}
	return out
}

// merge returns restored followed by the records of current not already in
// restored, matched by message ID.
func merge(restored, current []transport.Body) []transport.Body {
	seen := make(map[string]struct{}, len(restored))
	for _, r := range restored {
		if r.MessageID != "" {
			seen[r.MessageID] = struct{}{}
		}
	}
	out := append([]transport.Body(nil), restored...)
	for _, r := range current {
		if _, dup := seen[r.MessageID]; dup && r.MessageID != "" {
			continue
		}
		out = append(out, r)
	}
	return out
}
