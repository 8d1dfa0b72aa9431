package main

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/franz/bibcluster/internal/report"
	"github.com/franz/bibcluster/internal/util"
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Generate a Markdown report of the latest clustering run",
	Long: `Generate a summary report in Markdown format.

The report includes:
- The latest run's parameters, counters and duration
- Failures by kind
- Record totals (clustered / pending)
- Row counts of the work graph

The report is saved to <artifacts>/reports/<timestamp>/summary.md`,
	RunE: runReport,
}

func init() {
	rootCmd.AddCommand(reportCmd)

	reportCmd.Flags().String("out", "", "Output directory for report (default: <artifacts>/reports/<timestamp>)")
	reportCmd.Flags().String("event-log", "", "Event log to reference in the report (optional)")
	reportCmd.Flags().Bool("stdout", false, "Print the report instead of writing a file")
}

func runReport(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	dbPath := viper.GetString("db")

	db, err := openStore(false)
	if err != nil {
		return err
	}
	defer db.Close()

	util.DebugLog("Analyzing %s", dbPath)
	summary, err := report.GenerateRunReport(ctx, db)
	if err != nil {
		return fmt.Errorf("failed to generate report: %w", err)
	}
	summary.DatabasePath = dbPath
	summary.EventLogPath, _ = cmd.Flags().GetString("event-log")

	if toStdout, _ := cmd.Flags().GetBool("stdout"); toStdout {
		fmt.Fprint(cmd.OutOrStdout(), report.RenderMarkdown(summary))
		return nil
	}

	outputDir, _ := cmd.Flags().GetString("out")
	if outputDir == "" {
		timestamp := time.Now().Format("20060102-150405")
		outputDir = filepath.Join(GetConfigString("artifacts", "artifacts"), "reports", timestamp)
	}
	outputPath := filepath.Join(outputDir, "summary.md")

	if err := report.WriteMarkdownReport(summary, outputPath); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}

	util.SuccessLog("Report saved to: %s", outputPath)
	if summary.Run != nil {
		util.InfoLog("  Run %d (%s): %d of %d records clustered",
			summary.Run.ID, summary.Run.Status, summary.Run.Clustered, summary.Run.Attempted)
	}
	if summary.Records != nil && summary.Records.Pending > 0 {
		util.WarnLog("  Pending records: %d", summary.Records.Pending)
	}
	return nil
}
