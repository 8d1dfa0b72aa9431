package queue

import (
	"context"
	"errors"
	"io"
	"sync/atomic"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/franz/bibcluster/internal/buffer"
	"github.com/franz/bibcluster/internal/util"
)

// DefaultFlushInterval is how long the consumer waits for a message before
// flushing a partial batch.
const DefaultFlushInterval = 5 * time.Second

// Stats are the consumer counters exposed on /metrics.
type Stats struct {
	Received  int64 `json:"received"`
	Invalid   int64 `json:"invalid"`
	Persisted int64 `json:"persisted"`
	Committed int64 `json:"committed"`
	Flushes   int64 `json:"flushes"`
}

// Consumer reads record payloads, buffers them and commits offsets only once
// the records they carried are persisted.
type Consumer struct {
	reader        MessageReader
	validator     *Validator
	buffer        *buffer.Buffer
	flushInterval time.Duration

	// messages fetched but not yet committed, in fetch order
	uncommitted []kafka.Message

	received  atomic.Int64
	invalid   atomic.Int64
	committed atomic.Int64
	flushes   atomic.Int64
}

// NewConsumer creates a consumer. flushInterval <= 0 uses DefaultFlushInterval.
func NewConsumer(reader MessageReader, validator *Validator, buf *buffer.Buffer, flushInterval time.Duration) *Consumer {
	if flushInterval <= 0 {
		flushInterval = DefaultFlushInterval
	}
	return &Consumer{
		reader:        reader,
		validator:     validator,
		buffer:        buf,
		flushInterval: flushInterval,
	}
}

// Stats returns a snapshot of the counters.
func (c *Consumer) Stats() Stats {
	return Stats{
		Received:  c.received.Load(),
		Invalid:   c.invalid.Load(),
		Persisted: int64(c.buffer.Flushed()),
		Committed: c.committed.Load(),
		Flushes:   c.flushes.Load(),
	}
}

// Run consumes until ctx is canceled or the reader is closed. Pending records
// are flushed and their offsets committed before it returns. Invalid payloads
// are logged and committed with the batch they arrived in.
func (c *Consumer) Run(ctx context.Context) error {
	for {
		fetchCtx, cancel := context.WithTimeout(ctx, c.flushInterval)
		msg, err := c.reader.FetchMessage(fetchCtx)
		cancel()

		if err != nil {
			switch {
			case ctx.Err() != nil:
				return c.drain(context.WithoutCancel(ctx), nil)
			case errors.Is(err, context.DeadlineExceeded):
				if err := c.flush(ctx); err != nil {
					return err
				}
				continue
			case errors.Is(err, io.EOF):
				return c.drain(ctx, nil)
			default:
				return c.drain(context.WithoutCancel(ctx), err)
			}
		}

		if err := c.handle(ctx, msg); err != nil {
			return err
		}
	}
}

func (c *Consumer) handle(ctx context.Context, msg kafka.Message) error {
	c.received.Add(1)
	c.uncommitted = append(c.uncommitted, msg)

	rec, err := c.validator.Decode(msg.Value)
	if err != nil {
		c.invalid.Add(1)
		util.WarnLog("Skipping invalid payload at partition %d offset %d: %v", msg.Partition, msg.Offset, err)
		return nil
	}

	flushed, err := c.buffer.Add(ctx, rec)
	if err != nil {
		return err
	}
	if flushed {
		return c.commit(ctx)
	}
	return nil
}

// flush persists the buffered records and commits every message fetched so far.
func (c *Consumer) flush(ctx context.Context) error {
	if len(c.uncommitted) == 0 {
		return nil
	}
	if err := c.buffer.Flush(ctx); err != nil {
		return err
	}
	return c.commit(ctx)
}

func (c *Consumer) commit(ctx context.Context) error {
	if len(c.uncommitted) == 0 {
		return nil
	}
	c.flushes.Add(1)
	if err := c.reader.CommitMessages(ctx, c.uncommitted...); err != nil {
		return err
	}
	util.DebugLog("Committed %d messages", len(c.uncommitted))
	c.committed.Add(int64(len(c.uncommitted)))
	c.uncommitted = c.uncommitted[:0]
	return nil
}

// drain flushes what is pending and returns cause, or the flush error when
// there is no cause.
func (c *Consumer) drain(ctx context.Context, cause error) error {
	if err := c.flush(ctx); err != nil {
		if cause != nil {
			return errors.Join(cause, err)
		}
		return err
	}
	return cause
}
