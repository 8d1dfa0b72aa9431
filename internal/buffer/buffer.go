// Package buffer batches inbound records before they are written to the
// store.
package buffer

import (
	"context"
	"fmt"
	"sync"

	"github.com/franz/bibcluster/internal/model"
	"github.com/franz/bibcluster/internal/util"
)

// DefaultSize is the number of distinct records held before an automatic flush.
const DefaultSize = 500

// Writer persists a batch of records. *store.Store satisfies it.
type Writer interface {
	UpsertRecords(ctx context.Context, records []*model.Record, keepStatus func(source string) bool) error
}

// Config holds buffer configuration
type Config struct {
	Size int
	// KeepStatus reports sources whose frbr_status survives re-ingest.
	KeepStatus func(source string) bool
	// OnFlush runs after every successful flush with the persisted batch.
	OnFlush func(ctx context.Context, records []*model.Record) error
}

// Buffer collects records keyed by source_id. A later record with the same
// source_id replaces the pending one.
type Buffer struct {
	mu      sync.Mutex
	writer  Writer
	cfg     Config
	order   []string
	pending map[string]*model.Record
	flushed int
}

// New creates a buffer writing to w.
func New(w Writer, cfg Config) *Buffer {
	if cfg.Size <= 0 {
		cfg.Size = DefaultSize
	}
	return &Buffer{
		writer:  w,
		cfg:     cfg,
		pending: make(map[string]*model.Record),
	}
}

// Add queues a record and flushes when the buffer is full. It reports whether
// a flush happened.
func (b *Buffer) Add(ctx context.Context, r *model.Record) (bool, error) {
	b.mu.Lock()
	if _, ok := b.pending[r.SourceID]; !ok {
		b.order = append(b.order, r.SourceID)
	}
	b.pending[r.SourceID] = r
	full := len(b.order) >= b.cfg.Size
	b.mu.Unlock()

	if !full {
		return false, nil
	}
	return true, b.Flush(ctx)
}

// Len returns the number of distinct pending records.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.order)
}

// Flushed returns the number of records written so far.
func (b *Buffer) Flushed() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.flushed
}

// Flush writes all pending records in one batch. If the write fails the batch
// stays pending so the caller can retry. Once the write succeeds the batch is
// cleared, even when OnFlush then fails.
func (b *Buffer) Flush(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.order) == 0 {
		return nil
	}

	batch := make([]*model.Record, 0, len(b.order))
	for _, key := range b.order {
		batch = append(batch, b.pending[key])
	}

	if err := b.writer.UpsertRecords(ctx, batch, b.cfg.KeepStatus); err != nil {
		return fmt.Errorf("failed to flush %d records: %w", len(batch), err)
	}

	util.DebugLog("Flushed %d records", len(batch))
	b.flushed += len(batch)
	b.order = b.order[:0]
	b.pending = make(map[string]*model.Record)

	// The batch is committed; a failing hook does not make it pending again
	if b.cfg.OnFlush != nil {
		if err := b.cfg.OnFlush(ctx, batch); err != nil {
			return fmt.Errorf("post-flush hook failed: %w", err)
		}
	}
	return nil
}
