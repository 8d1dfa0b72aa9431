package main

import (
	"github.com/spf13/cobra"

	"github.com/franz/bibcluster/internal/cluster"
	"github.com/franz/bibcluster/internal/util"
)

var cleanupCmd = &cobra.Command{
	Use:   "cleanup-agents",
	Short: "Merge near-duplicate authors and contributors of stored works",
	Long: `Walk every stored work and merge authors and contributors whose
normalized names are similar under the looser cleanup threshold
(aggregate.cleanup_similarity in the rules file). Changed works are written
back and re-projected into the search index.

Use --dry-run to count the works that would change.`,
	RunE: runCleanup,
}

func init() {
	rootCmd.AddCommand(cleanupCmd)

	cleanupCmd.Flags().Bool("dry-run", false, "Report changes without writing them")
}

func runCleanup(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	dryRun, _ := cmd.Flags().GetBool("dry-run")

	db, err := openStore(false)
	if err != nil {
		return err
	}
	defer db.Close()

	rules, err := loadRules()
	if err != nil {
		return err
	}

	idx, closeIndex, err := openIndex(ctx)
	if err != nil {
		return err
	}
	defer closeIndex()

	logger := newEventLogger()
	defer logger.Close()

	o := cluster.New(&cluster.Config{Store: db, Index: idx, Rules: rules, Logger: logger})
	res, err := o.CleanupAgents(ctx, dryRun)
	if err != nil {
		return err
	}

	if dryRun {
		util.InfoLog("Dry run: %d of %d works would change", res.Changed, res.Scanned)
		return nil
	}
	util.SuccessLog("Cleaned agents of %d of %d works (%d re-indexed)", res.Changed, res.Scanned, res.Indexed)
	return nil
}
