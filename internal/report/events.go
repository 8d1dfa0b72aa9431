package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// EventType represents the type of event
type EventType string

const (
	EventIngest  EventType = "ingest"
	EventCluster EventType = "cluster"
	EventFailure EventType = "failure"
	EventStale   EventType = "stale"
	EventIndex   EventType = "index"
	EventCleanup EventType = "cleanup"
	EventError   EventType = "error"
)

// EventLevel represents the severity level
type EventLevel string

const (
	LevelDebug   EventLevel = "debug"
	LevelInfo    EventLevel = "info"
	LevelWarning EventLevel = "warning"
	LevelError   EventLevel = "error"
)

// levelPriority maps event levels to numeric priorities for comparison
var levelPriority = map[EventLevel]int{
	LevelDebug:   0,
	LevelInfo:    1,
	LevelWarning: 2,
	LevelError:   3,
}

// Event represents a single event of a run
type Event struct {
	Timestamp  time.Time         `json:"ts"`
	Level      EventLevel        `json:"level"`
	Event      EventType         `json:"event"`
	RecordUUID string            `json:"record_uuid,omitempty"`
	SourceID   string            `json:"source_id,omitempty"`
	WorkUUID   string            `json:"work_uuid,omitempty"`
	Kind       string            `json:"kind,omitempty"`
	Action     string            `json:"action,omitempty"`
	Count      int               `json:"count,omitempty"`
	Duration   int64             `json:"duration_ms,omitempty"` // in milliseconds
	Error      string            `json:"error,omitempty"`
	Extra      map[string]string `json:"extra,omitempty"`
}

// EventLogger writes events to a JSONL file
type EventLogger struct {
	file     *os.File
	encoder  *json.Encoder
	mu       sync.Mutex
	path     string
	minLevel EventLevel
}

// NewEventLogger creates a new event logger with a minimum log level
// minLevel determines which events are written (e.g., LevelInfo skips LevelDebug)
func NewEventLogger(outputDir string, minLevel EventLevel) (*EventLogger, error) {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	timestamp := time.Now().Format("20060102-150405")
	path := filepath.Join(outputDir, fmt.Sprintf("events-%s.jsonl", timestamp))

	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create event log: %w", err)
	}

	return &EventLogger{
		file:     file,
		encoder:  json.NewEncoder(file),
		path:     path,
		minLevel: minLevel,
	}, nil
}

// Log writes an event to the JSONL file
func (l *EventLogger) Log(event *Event) error {
	if l == nil || l.file == nil {
		return nil // Silently ignore if logger not initialized
	}

	if levelPriority[event.Level] < levelPriority[l.minLevel] {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	if err := l.encoder.Encode(event); err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}
	return nil
}

// LogIngest logs a persisted batch of inbound records
func (l *EventLogger) LogIngest(action string, count int, err error) error {
	level := LevelInfo
	errMsg := ""
	if err != nil {
		level = LevelError
		errMsg = err.Error()
	}
	return l.Log(&Event{
		Level:  level,
		Event:  EventIngest,
		Action: action,
		Count:  count,
		Error:  errMsg,
	})
}

// LogCluster logs a record folded into a work
func (l *EventLogger) LogCluster(recordUUID, sourceID, workUUID string, matched, editions int, duration time.Duration) error {
	return l.Log(&Event{
		Level:      LevelInfo,
		Event:      EventCluster,
		RecordUUID: recordUUID,
		SourceID:   sourceID,
		WorkUUID:   workUUID,
		Count:      matched,
		Duration:   duration.Milliseconds(),
		Extra: map[string]string{
			"editions": fmt.Sprintf("%d", editions),
		},
	})
}

// LogFailure logs a record that could not be clustered. kind is one of the
// util.Kind* names.
func (l *EventLogger) LogFailure(recordUUID, sourceID, kind string, markedClustered bool, err error) error {
	return l.Log(&Event{
		Level:      LevelWarning,
		Event:      EventFailure,
		RecordUUID: recordUUID,
		SourceID:   sourceID,
		Kind:       kind,
		Error:      err.Error(),
		Extra: map[string]string{
			"marked_clustered": fmt.Sprintf("%t", markedClustered),
		},
	})
}

// LogStale logs works superseded by a merge
func (l *EventLogger) LogStale(workUUIDs []string) error {
	if len(workUUIDs) == 0 {
		return nil
	}
	var err error
	for _, id := range workUUIDs {
		if e := l.Log(&Event{Level: LevelInfo, Event: EventStale, WorkUUID: id, Action: "delete"}); e != nil {
			err = e
		}
	}
	return err
}

// LogIndex logs a search index call
func (l *EventLogger) LogIndex(action string, count int, err error) error {
	level := LevelDebug
	errMsg := ""
	if err != nil {
		level = LevelError
		errMsg = err.Error()
	}
	return l.Log(&Event{
		Level:  level,
		Event:  EventIndex,
		Action: action,
		Count:  count,
		Error:  errMsg,
	})
}

// LogCleanup logs an agent cleanup change
func (l *EventLogger) LogCleanup(workUUID string, before, after int) error {
	return l.Log(&Event{
		Level:    LevelInfo,
		Event:    EventCleanup,
		WorkUUID: workUUID,
		Extra: map[string]string{
			"agents_before": fmt.Sprintf("%d", before),
			"agents_after":  fmt.Sprintf("%d", after),
		},
	})
}

// LogError logs an error event
func (l *EventLogger) LogError(event EventType, recordUUID string, err error) error {
	return l.Log(&Event{
		Level:      LevelError,
		Event:      event,
		RecordUUID: recordUUID,
		Error:      err.Error(),
	})
}

// Close closes the event log file
func (l *EventLogger) Close() error {
	if l == nil || l.file == nil {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	return l.file.Close()
}

// Path returns the path to the event log file
func (l *EventLogger) Path() string {
	if l == nil {
		return ""
	}
	return l.path
}

// NullLogger returns a no-op event logger
func NullLogger() *EventLogger {
	return nil
}
