package queue

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/segmentio/kafka-go"

	"github.com/franz/bibcluster/internal/model"
)

type recordingMessageWriter struct {
	msgs []kafka.Message
	err  error
}

func (w *recordingMessageWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *recordingMessageWriter) Close() error { return nil }

func TestProducer_Publish(t *testing.T) {
	writer := &recordingMessageWriter{}
	p := NewProducerWithWriter(writer)

	records := []*model.Record{
		{SourceID: "a", Source: "hathitrust", Title: "Walden",
			Identifiers: []model.Identifier{{Value: "1", Authority: "isbn"}}},
		{SourceID: "b", Source: "gutenberg", Title: "Emma"},
	}
	if err := p.Publish(context.Background(), records...); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	if len(writer.msgs) != 2 {
		t.Fatalf("messages = %d, want 2", len(writer.msgs))
	}
	if string(writer.msgs[0].Key) != "a" {
		t.Errorf("key = %q, want a", writer.msgs[0].Key)
	}

	var payload model.Payload
	if err := json.Unmarshal(writer.msgs[0].Value, &payload); err != nil {
		t.Fatalf("failed to decode message: %v", err)
	}
	if payload.Title != "Walden" || len(payload.Identifiers) != 1 || payload.Identifiers[0] != "1|isbn" {
		t.Errorf("unexpected payload %+v", payload)
	}

	// Published payloads pass the ingestion schema.
	v, _ := NewValidator()
	for _, m := range writer.msgs {
		if _, err := v.Decode(m.Value); err != nil {
			t.Errorf("published payload rejected: %v", err)
		}
	}
}

func TestProducer_PublishError(t *testing.T) {
	writer := &recordingMessageWriter{err: errors.New("broker down")}
	p := NewProducerWithWriter(writer)
	err := p.Publish(context.Background(), &model.Record{SourceID: "a", Source: "s"})
	if err == nil {
		t.Fatal("expected error")
	}
}

func TestProducer_PublishNothing(t *testing.T) {
	writer := &recordingMessageWriter{err: errors.New("should not be called")}
	if err := NewProducerWithWriter(writer).Publish(context.Background()); err != nil {
		t.Fatalf("Publish with no records failed: %v", err)
	}
}
