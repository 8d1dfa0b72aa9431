package report

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/franz/bibcluster/internal/store"
)

// RunReport describes the latest clustering run and the state of the store.
type RunReport struct {
	GeneratedAt time.Time

	Run     *store.ClusterRun // nil when no run has been recorded
	Records *store.RecordCounts
	Graph   *store.GraphCounts

	DatabasePath string
	EventLogPath string
}

// FailureCount is one row of the failure table.
type FailureCount struct {
	Kind  string
	Count int
}

// GenerateRunReport gathers the latest run and table counts from db.
func GenerateRunReport(ctx context.Context, db *store.Store) (*RunReport, error) {
	run, err := db.GetLatestRun(ctx)
	if err != nil {
		return nil, err
	}
	records, err := db.CountRecords(ctx)
	if err != nil {
		return nil, err
	}
	graph, err := db.CountGraph(ctx)
	if err != nil {
		return nil, err
	}

	return &RunReport{
		GeneratedAt: time.Now(),
		Run:         run,
		Records:     records,
		Graph:       graph,
	}, nil
}

// Failures returns the run's failure counts, most frequent first.
func (r *RunReport) Failures() []FailureCount {
	if r.Run == nil {
		return nil
	}
	out := make([]FailureCount, 0, len(r.Run.Failures))
	for kind, n := range r.Run.Failures {
		out = append(out, FailureCount{Kind: kind, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Kind < out[j].Kind
	})
	return out
}

// RenderMarkdown renders the report as Markdown.
func RenderMarkdown(report *RunReport) string {
	var md strings.Builder

	md.WriteString("# Bibliographic Clustering - Run Report\n\n")
	md.WriteString(fmt.Sprintf("**Generated:** %s\n\n", report.GeneratedAt.Format("2006-01-02 15:04:05")))
	if report.DatabasePath != "" {
		md.WriteString(fmt.Sprintf("**Database:** `%s`\n\n", report.DatabasePath))
	}
	if report.EventLogPath != "" {
		md.WriteString(fmt.Sprintf("**Event Log:** `%s`\n\n", report.EventLogPath))
	}
	md.WriteString("---\n\n")

	if run := report.Run; run != nil {
		md.WriteString("## Latest Run\n\n")
		md.WriteString("| Metric | Value |\n")
		md.WriteString("|--------|-------|\n")
		md.WriteString(fmt.Sprintf("| Run | #%d (%s) |\n", run.ID, run.ProcessType))
		md.WriteString(fmt.Sprintf("| Status | %s |\n", run.Status))
		if !run.StartedAt.IsZero() {
			md.WriteString(fmt.Sprintf("| Started | %s |\n", humanize.Time(run.StartedAt)))
		}
		if !run.FinishedAt.IsZero() && !run.StartedAt.IsZero() {
			md.WriteString(fmt.Sprintf("| Duration | %s |\n", run.FinishedAt.Sub(run.StartedAt).Round(time.Second)))
		}
		md.WriteString(fmt.Sprintf("| Records Attempted | %s |\n", humanize.Comma(int64(run.Attempted))))
		md.WriteString(fmt.Sprintf("| Records Clustered | %s |\n", humanize.Comma(int64(run.Clustered))))
		md.WriteString(fmt.Sprintf("| Works Indexed | %s |\n", humanize.Comma(int64(run.WorksIndexed))))
		md.WriteString(fmt.Sprintf("| Works Retracted | %s |\n", humanize.Comma(int64(run.WorksRetracted))))
		if run.Params != "" {
			md.WriteString(fmt.Sprintf("| Parameters | `%s` |\n", run.Params))
		}
		if run.Error != "" {
			md.WriteString(fmt.Sprintf("| Error | %s |\n", run.Error))
		}
		md.WriteString("\n")

		if failures := report.Failures(); len(failures) > 0 {
			md.WriteString("## Failures\n\n")
			md.WriteString("| Kind | Count |\n")
			md.WriteString("|------|-------|\n")
			for _, f := range failures {
				md.WriteString(fmt.Sprintf("| %s | %s |\n", f.Kind, humanize.Comma(int64(f.Count))))
			}
			md.WriteString("\n")
		}
	} else {
		md.WriteString("*No clustering run recorded yet.*\n\n")
	}

	if r := report.Records; r != nil {
		md.WriteString("## Records\n\n")
		md.WriteString("| Metric | Value |\n")
		md.WriteString("|--------|-------|\n")
		md.WriteString(fmt.Sprintf("| Total | %s |\n", humanize.Comma(int64(r.Total))))
		md.WriteString(fmt.Sprintf("| Clustered | %s |\n", humanize.Comma(int64(r.Clustered))))
		md.WriteString(fmt.Sprintf("| Pending | %s |\n", humanize.Comma(int64(r.Pending))))
		md.WriteString("\n")
	}

	if g := report.Graph; g != nil {
		md.WriteString("## Work Graph\n\n")
		md.WriteString("| Table | Rows |\n")
		md.WriteString("|-------|------|\n")
		md.WriteString(fmt.Sprintf("| Works | %s |\n", humanize.Comma(int64(g.Works))))
		md.WriteString(fmt.Sprintf("| Editions | %s |\n", humanize.Comma(int64(g.Editions))))
		md.WriteString(fmt.Sprintf("| Items | %s |\n", humanize.Comma(int64(g.Items))))
		md.WriteString(fmt.Sprintf("| Identifiers | %s |\n", humanize.Comma(int64(g.Identifiers))))
		md.WriteString(fmt.Sprintf("| Links | %s |\n", humanize.Comma(int64(g.Links))))
		md.WriteString("\n")
	}

	return md.String()
}

// WriteMarkdownReport writes the report as Markdown
func WriteMarkdownReport(report *RunReport, outputPath string) error {
	if err := os.MkdirAll(filepath.Dir(outputPath), 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	if err := os.WriteFile(outputPath, []byte(RenderMarkdown(report)), 0644); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}
