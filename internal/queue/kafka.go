// Package queue moves normalized record payloads over Kafka and validates
// them at the ingestion boundary.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/franz/bibcluster/internal/model"
)

// MessageReader abstracts kafka.Reader.
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// MessageWriter abstracts kafka.Writer.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaConfig holds broker settings shared by readers and producers.
type KafkaConfig struct {
	Brokers []string
	Topic   string
	GroupID string
}

// NewReader creates a consumer-group reader. Offsets are committed
// explicitly by the Consumer.
func NewReader(cfg KafkaConfig) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.Brokers,
		Topic:    cfg.Topic,
		GroupID:  cfg.GroupID,
		MinBytes: 1,
		MaxBytes: 10e6,
	})
}

// Producer publishes record payloads keyed by source_id.
type Producer struct {
	writer MessageWriter
}

// NewProducer creates a Kafka producer for the given brokers and topic.
func NewProducer(cfg KafkaConfig) *Producer {
	return &Producer{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(cfg.Brokers...),
			Topic:                  cfg.Topic,
			Balancer:               &kafka.Hash{},
			AllowAutoTopicCreation: false,
		},
	}
}

// NewProducerWithWriter builds a producer using a custom writer (tests).
func NewProducerWithWriter(writer MessageWriter) *Producer {
	return &Producer{writer: writer}
}

// Close shuts down the underlying writer.
func (p *Producer) Close() error {
	return p.writer.Close()
}

// Publish writes records as one batch. Records with the same source_id land
// on the same partition so re-ingests stay ordered.
func (p *Producer) Publish(ctx context.Context, records ...*model.Record) error {
	if len(records) == 0 {
		return nil
	}
	now := time.Now().UTC()
	msgs := make([]kafka.Message, 0, len(records))
	for _, r := range records {
		payload, err := json.Marshal(model.PayloadOf(r))
		if err != nil {
			return fmt.Errorf("failed to encode record %s: %w", r.SourceID, err)
		}
		msgs = append(msgs, kafka.Message{
			Key:   []byte(r.SourceID),
			Value: payload,
			Time:  now,
		})
	}
	if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("failed to publish %d records: %w", len(msgs), err)
	}
	return nil
}
