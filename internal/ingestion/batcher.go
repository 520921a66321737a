package ingestion

import (
	"sync"
	"time"

	"github.com/karthik14478/clawwatch/internal/database/models"

	"github.com/pterm/pterm"
)

// EventStore is the slice of the storage collaborator the accumulator
// needs: one idempotent batch upsert.
type EventStore interface {
	UpsertBatch(events []*models.AgentEvent) error
}

// BatchAccumulator buffers deduplicated records and flushes them as
// bounded batches. A failed flush keeps the batch intact: the exact
// same contents are retried, never split, and the storage-side
// fingerprint upsert absorbs any overlap with a flush that half
// succeeded.
type BatchAccumulator struct {
	store    EventStore
	logger   *pterm.Logger
	maxSize  int
	holdTime time.Duration

	mu         sync.Mutex
	records    []*models.AgentEvent
	firstOffer time.Time
	retrying   bool

	flushed       int64
	flushFailures int64
}

// BatchStats exposes flush counters for the status API.
type BatchStats struct {
	Pending       int   `json:"pending"`
	Retrying      bool  `json:"retrying"`
	Flushed       int64 `json:"flushed"`
	FlushFailures int64 `json:"flush_failures"`
}

// NewBatchAccumulator creates a new batch accumulator
func NewBatchAccumulator(store EventStore, logger *pterm.Logger, maxSize int, holdTime time.Duration) *BatchAccumulator {
	if maxSize <= 0 {
		maxSize = 500
	}
	if holdTime <= 0 {
		holdTime = 2 * time.Second
	}
	return &BatchAccumulator{
		store:    store,
		logger:   logger,
		maxSize:  maxSize,
		holdTime: holdTime,
	}
}

// Offer appends a deduplicated record to the current batch.
func (b *BatchAccumulator) Offer(event *models.AgentEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.records) == 0 {
		b.firstOffer = time.Now()
	}
	b.records = append(b.records, event)
}

// Full reports whether the batch reached its size bound.
func (b *BatchAccumulator) Full() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.records) >= b.maxSize
}

// Due reports whether the hold time elapsed for a non-empty batch.
func (b *BatchAccumulator) Due(now time.Time) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.records) > 0 && now.Sub(b.firstOffer) >= b.holdTime
}

// Pending returns the number of buffered records.
func (b *BatchAccumulator) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.records)
}

// Retrying reports whether the last flush failed and its batch is
// still waiting to be retried. While true, callers should stop feeding
// new records so memory stays bounded.
func (b *BatchAccumulator) Retrying() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.retrying
}

// Flush sends the whole current batch to storage as one logical
// operation. On success the buffer clears; on failure it is retained
// unchanged for the next attempt.
func (b *BatchAccumulator) Flush() error {
	b.mu.Lock()
	batch := b.records
	b.mu.Unlock()

	if len(batch) == 0 {
		return nil
	}

	start := time.Now()
	if err := b.store.UpsertBatch(batch); err != nil {
		b.mu.Lock()
		b.retrying = true
		b.flushFailures++
		b.mu.Unlock()

		b.logger.WithCaller().Error("Batch flush failed, will retry same batch",
			b.logger.Args("count", len(batch), "error", err))
		return err
	}

	b.mu.Lock()
	// Offers cannot interleave here: the ingest loop is the only
	// writer and it is blocked on this flush.
	b.records = nil
	b.retrying = false
	b.flushed += int64(len(batch))
	b.mu.Unlock()

	b.logger.Debug("Batch flushed",
		b.logger.Args("count", len(batch), "duration_ms", time.Since(start).Milliseconds()))
	return nil
}

// Stats returns a snapshot of the accumulator counters.
func (b *BatchAccumulator) Stats() BatchStats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return BatchStats{
		Pending:       len(b.records),
		Retrying:      b.retrying,
		Flushed:       b.flushed,
		FlushFailures: b.flushFailures,
	}
}
