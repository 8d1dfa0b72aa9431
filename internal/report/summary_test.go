package report

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/franz/bibcluster/internal/store"
)

func TestGenerateRunReport(t *testing.T) {
	db, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()
	ctx := context.Background()

	report, err := GenerateRunReport(ctx, db)
	if err != nil {
		t.Fatalf("GenerateRunReport failed: %v", err)
	}
	if report.Run != nil {
		t.Error("Expected no run on an empty database")
	}

	id, err := db.StartRun(ctx, "complete", `{"limit":0}`)
	if err != nil {
		t.Fatal(err)
	}
	run := &store.ClusterRun{
		ID:        id,
		Status:    store.RunCompleted,
		Attempted: 3,
		Clustered: 2,
		Failures:  map[string]int{"invalid_title": 1},
	}
	if err := db.FinishRun(ctx, run); err != nil {
		t.Fatal(err)
	}

	report, err = GenerateRunReport(ctx, db)
	if err != nil {
		t.Fatalf("GenerateRunReport failed: %v", err)
	}
	if report.Run == nil || report.Run.Attempted != 3 {
		t.Fatalf("Expected the finished run, got %+v", report.Run)
	}
	if report.GeneratedAt.IsZero() {
		t.Error("Expected GeneratedAt to be set")
	}
}

func TestFailuresSorted(t *testing.T) {
	report := &RunReport{Run: &store.ClusterRun{Failures: map[string]int{
		"invalid_title":        2,
		"match_size_exceeded":  5,
		"persistence_conflict": 2,
	}}}

	got := report.Failures()
	want := []string{"match_size_exceeded", "invalid_title", "persistence_conflict"}
	if len(got) != len(want) {
		t.Fatalf("Expected %d rows, got %d", len(want), len(got))
	}
	for i, kind := range want {
		if got[i].Kind != kind {
			t.Errorf("row %d = %s, want %s", i, got[i].Kind, kind)
		}
	}
}

func TestWriteMarkdownReport(t *testing.T) {
	outputPath := filepath.Join(t.TempDir(), "reports", "run.md")

	started := time.Now().Add(-2 * time.Minute)
	report := &RunReport{
		GeneratedAt: time.Now(),
		Run: &store.ClusterRun{
			ID:             7,
			ProcessType:    "daily",
			Status:         store.RunCompleted,
			Attempted:      12500,
			Clustered:      12480,
			WorksIndexed:   9000,
			WorksRetracted: 14,
			Failures:       map[string]int{"match_size_exceeded": 20},
			StartedAt:      started,
			FinishedAt:     started.Add(90 * time.Second),
		},
		Records:      &store.RecordCounts{Total: 20000, Clustered: 19000, Pending: 1000},
		Graph:        &store.GraphCounts{Works: 9000, Editions: 11000, Items: 15000},
		DatabasePath: "/data/bcl.db",
		EventLogPath: "/data/events.jsonl",
	}

	if err := WriteMarkdownReport(report, outputPath); err != nil {
		t.Fatalf("WriteMarkdownReport failed: %v", err)
	}

	content, err := os.ReadFile(outputPath)
	if err != nil {
		t.Fatalf("Failed to read report: %v", err)
	}
	md := string(content)

	for _, want := range []string{
		"# Bibliographic Clustering - Run Report",
		"| Run | #7 (daily) |",
		"| Records Attempted | 12,500 |",
		"| match_size_exceeded | 20 |",
		"| Duration | 1m30s |",
		"`/data/bcl.db`",
		"## Work Graph",
	} {
		if !strings.Contains(md, want) {
			t.Errorf("Report missing %q", want)
		}
	}
}

func TestRenderMarkdown_NoRun(t *testing.T) {
	md := RenderMarkdown(&RunReport{GeneratedAt: time.Now()})
	if !strings.Contains(md, "No clustering run recorded yet") {
		t.Error("Expected the empty-run notice")
	}
}
