package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/franz/bibcluster/internal/buffer"
	"github.com/franz/bibcluster/internal/model"
	"github.com/franz/bibcluster/internal/queue"
	"github.com/franz/bibcluster/internal/util"
)

var importCmd = &cobra.Command{
	Use:   "import <file.jsonl>",
	Short: "Import record payloads from a JSONL file",
	Long: `Import normalized record payloads, one JSON object per line.

Each line is validated against the record schema and written through the
record buffer. Re-importing a source_id overwrites the stored record and
makes it eligible for clustering again.

Use --complete when the records need no further enrichment so that they can
be clustered right away.`,
	Args: cobra.ExactArgs(1),
	RunE: runImport,
}

func init() {
	rootCmd.AddCommand(importCmd)

	importCmd.Flags().Bool("complete", false, "Mark imported records as ready for clustering")
	importCmd.Flags().Int("batch-size", 0, "Records per database transaction (default ingest.batch_size)")
}

func runImport(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	complete, _ := cmd.Flags().GetBool("complete")
	batchSize, _ := cmd.Flags().GetInt("batch-size")
	if batchSize <= 0 {
		batchSize = GetConfigInt("ingest.batch_size", buffer.DefaultSize)
	}

	f, err := os.Open(args[0])
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", args[0], err)
	}
	defer f.Close()

	db, err := openStore(true)
	if err != nil {
		return err
	}
	defer db.Close()

	rules, err := loadRules()
	if err != nil {
		return err
	}
	validator, err := queue.NewValidator()
	if err != nil {
		return err
	}

	cfg := buffer.Config{
		Size:       batchSize,
		KeepStatus: rules.IsIdentifierSource,
	}
	if complete {
		cfg.OnFlush = func(ctx context.Context, records []*model.Record) error {
			ids := make([]string, len(records))
			for i, r := range records {
				ids[i] = r.SourceID
			}
			return db.SetFRBRStatus(ctx, ids, model.FRBRComplete)
		}
	}
	buf := buffer.New(db, cfg)

	util.InfoLog("Importing %s", args[0])
	stats, err := queue.ReadLines(ctx, f, validator, func(r *model.Record) error {
		_, err := buf.Add(ctx, r)
		return err
	})
	if err != nil {
		return err
	}
	if err := buf.Flush(ctx); err != nil {
		return err
	}

	logger := newEventLogger()
	defer logger.Close()
	_ = logger.LogIngest("import", buf.Flushed(), nil)

	util.SuccessLog("Imported %d records (%d lines, %d invalid)", buf.Flushed(), stats.Lines, stats.Invalid)
	return nil
}
