// Path: internal/buffer/buffer.go
package buffer

import (
	"context"
	"fmt"
	"log"
	"slices"
	"sync"
	"time"

	"esp-hub/internal/config"
	"esp-hub/internal/domain"
)

// DeviceStore persists a flushed batch of per-device documents in one
// durable transaction. This allows for mocking in tests.
type DeviceStore interface {
	SaveBatch(ctx context.Context, docs []domain.DeviceDocument) error
}

// Buffer absorbs high-frequency telemetry and flushes it to durable
// storage in bounded batches: either when the record count reaches the
// batch size, or on a periodic timer. Every mutation is mirrored to disk
// so unflushed records survive a crash. At most one flush is in flight
// at a time; appends that land during a flush simply wait for the next
// batch and are never lost or duplicated.
type Buffer struct {
	store        DeviceStore
	mirror       *Mirror
	batchSize    int
	historyLimit int
	interval     time.Duration

	mu       sync.Mutex
	records  []domain.TelemetryRecord
	flushing bool
	seq      uint64

	inflight sync.WaitGroup
	stopOnce sync.Once
	stopChan chan struct{}
}

// New creates a buffer from the given configuration, falling back to the
// documented defaults for any unset value.
func New(cfg config.BufferConfig, store DeviceStore) *Buffer {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = 10
	}
	if cfg.FlushIntervalSeconds <= 0 {
		cfg.FlushIntervalSeconds = 300
	}
	if cfg.MirrorPath == "" {
		cfg.MirrorPath = "sensor_data_buffer.json"
	}
	return &Buffer{
		store:        store,
		mirror:       NewMirror(cfg.MirrorPath),
		batchSize:    cfg.BatchSize,
		historyLimit: cfg.HistoryLimit,
		interval:     cfg.FlushInterval(),
		stopChan:     make(chan struct{}),
	}
}

// Recover loads any unflushed records left behind by a previous run.
// Called once at startup, before Run.
func (b *Buffer) Recover() error {
	records, err := b.mirror.Load()
	if err != nil {
		return fmt.Errorf("cannot read buffer mirror: %w", err)
	}

	b.mu.Lock()
	b.records = records
	b.mu.Unlock()

	if len(records) > 0 {
		log.Printf("Recovered %d unflushed telemetry records from mirror", len(records))
	}
	return nil
}

// Append adds a timestamped record and rewrites the mirror. The append
// that reaches the batch size captures the batch length under the lock
// and triggers exactly one asynchronous flush for those records; later
// appends accumulate for the next batch.
func (b *Buffer) Append(deviceID string, data map[string]any) {
	rec := domain.TelemetryRecord{
		DeviceID:  deviceID,
		Data:      data,
		Timestamp: time.Now().UTC(),
	}

	b.mu.Lock()
	b.records = append(b.records, rec)
	b.seq++
	seq := b.seq
	snapshot := slices.Clone(b.records)
	n := 0
	if len(b.records) >= b.batchSize && !b.flushing {
		b.flushing = true
		n = len(b.records)
	}
	b.mu.Unlock()

	if err := b.mirror.Write(seq, snapshot); err != nil {
		log.Printf("Failed to persist buffer mirror: %v", err)
	}

	if n > 0 {
		b.inflight.Add(1)
		go func() {
			defer b.inflight.Done()
			b.flush(context.Background(), n)
		}()
	}
}

// Flush persists all currently buffered records, unless the buffer is
// empty or a flush is already in flight. Used by the periodic timer and
// the shutdown drain.
func (b *Buffer) Flush(ctx context.Context) error {
	b.mu.Lock()
	if b.flushing || len(b.records) == 0 {
		b.mu.Unlock()
		return nil
	}
	b.flushing = true
	n := len(b.records)
	b.mu.Unlock()

	return b.flush(ctx, n)
}

// flush persists the first n buffered records. The caller must have set
// the flushing flag; flush clears it on either outcome. On failure the
// records stay in the buffer, eligible for the next trigger.
func (b *Buffer) flush(ctx context.Context, n int) error {
	b.mu.Lock()
	batch := slices.Clone(b.records[:n])
	b.mu.Unlock()

	docs := b.collapse(batch)
	if err := b.store.SaveBatch(ctx, docs); err != nil {
		b.mu.Lock()
		b.flushing = false
		b.mu.Unlock()
		log.Printf("Flush of %d records failed, will retry on next trigger: %v", n, err)
		return err
	}

	b.mu.Lock()
	b.records = slices.Clone(b.records[n:])
	b.flushing = false
	b.seq++
	seq := b.seq
	snapshot := slices.Clone(b.records)
	b.mu.Unlock()

	if err := b.mirror.Write(seq, snapshot); err != nil {
		log.Printf("Failed to persist buffer mirror after flush: %v", err)
	}
	log.Printf("Flushed batch of %d telemetry records for %d devices", n, len(docs))
	return nil
}

// collapse groups a batch by device id into durable documents: current is
// the latest payload, history the last historyLimit readings in
// chronological order.
func (b *Buffer) collapse(batch []domain.TelemetryRecord) []domain.DeviceDocument {
	byDevice := make(map[string][]domain.TelemetryRecord)
	var order []string
	for _, rec := range batch {
		if _, seen := byDevice[rec.DeviceID]; !seen {
			order = append(order, rec.DeviceID)
		}
		byDevice[rec.DeviceID] = append(byDevice[rec.DeviceID], rec)
	}

	docs := make([]domain.DeviceDocument, 0, len(order))
	for _, deviceID := range order {
		recs := byDevice[deviceID]
		start := 0
		if len(recs) > b.historyLimit {
			start = len(recs) - b.historyLimit
		}
		history := make([]domain.HistoryEntry, 0, len(recs)-start)
		for _, rec := range recs[start:] {
			history = append(history, domain.HistoryEntry{Data: rec.Data, Timestamp: rec.Timestamp})
		}
		latest := recs[len(recs)-1]
		docs = append(docs, domain.DeviceDocument{
			ID:        deviceID,
			Current:   latest.Data,
			History:   history,
			UpdatedAt: latest.Timestamp,
		})
	}
	return docs
}

// Len returns the number of buffered records.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.records)
}

// Run drives the periodic flush until the context is cancelled or Close
// is called. Blocking; meant to be run as the service's background loop.
func (b *Buffer) Run(ctx context.Context) {
	log.Printf("Telemetry buffer running: batch size %d, flush every %s", b.batchSize, b.interval)
	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			b.Flush(ctx)
		case <-b.stopChan:
			log.Println("Telemetry buffer loop stopped.")
			return
		case <-ctx.Done():
			log.Println("Telemetry buffer context cancelled.")
			return
		}
	}
}

// Close stops the periodic loop, waits for any in-flight size-triggered
// flush, and drains whatever is left with a final flush.
func (b *Buffer) Close(ctx context.Context) error {
	b.stopOnce.Do(func() { close(b.stopChan) })
	b.inflight.Wait()
	return b.Flush(ctx)
}
