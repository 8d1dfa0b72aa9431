package main

import (
	"sort"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/franz/bibcluster/internal/cluster"
	"github.com/franz/bibcluster/internal/langdetect"
	"github.com/franz/bibcluster/internal/util"
)

var clusterCmd = &cobra.Command{
	Use:   "cluster",
	Short: "Cluster pending records into works and update the search index",
	Long: `Cluster records that are enriched but not yet clustered.

Each record is expanded through shared identifiers into its cluster, the
cluster is consolidated into a work with editions and items, merged with
the works already stored and finally projected into the search index.

Process types select the records:
  daily     records modified in the last 24 hours
  weekly    records modified in the last 7 days
  complete  every pending record
  custom    records modified since --ingest-period

Use --record-id to cluster a single record by uuid.`,
	RunE: runCluster,
}

func init() {
	rootCmd.AddCommand(clusterCmd)

	clusterCmd.Flags().StringP("process-type", "p", cluster.ProcessComplete, "daily, weekly, complete or custom")
	clusterCmd.Flags().String("ingest-period", "", "Start of the custom period (YYYY-MM-DD or RFC 3339)")
	clusterCmd.Flags().String("record-id", "", "Cluster only the record with this uuid")
	clusterCmd.Flags().String("source", "", "Cluster only records from this source")
	clusterCmd.Flags().Int("limit", 0, "Stop after this many records (0 = no limit)")
	clusterCmd.Flags().Int("batch-size", cluster.DefaultBatchSize, "Works per search index update")
	clusterCmd.Flags().Bool("detect-language", true, "Detect title language when a work has none")
	viper.BindPFlag("cluster.batch_size", clusterCmd.Flags().Lookup("batch-size"))
}

func runCluster(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	processType, _ := cmd.Flags().GetString("process-type")
	periodFlag, _ := cmd.Flags().GetString("ingest-period")
	recordUUID, _ := cmd.Flags().GetString("record-id")
	source, _ := cmd.Flags().GetString("source")
	limit, _ := cmd.Flags().GetInt("limit")
	detect, _ := cmd.Flags().GetBool("detect-language")

	period, err := cluster.ParseIngestPeriod(periodFlag)
	if err != nil {
		return err
	}
	params, err := cluster.NewParams(processType, period, time.Now())
	if err != nil {
		return err
	}
	params.RecordUUID = recordUUID
	params.Source = source
	params.Limit = limit

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

	cfg := &cluster.Config{
		Store:        db,
		Index:        idx,
		Rules:        rules,
		Logger:       logger,
		BatchSize:    GetConfigInt("cluster.batch_size", cluster.DefaultBatchSize),
		ShowProgress: true,
	}
	if detect {
		cfg.Detector = langdetect.New()
	}

	util.InfoLog("=== Clustering (%s) ===", processType)
	res, err := cluster.New(cfg).Cluster(ctx, params)
	if res != nil {
		printClusterResult(res)
	}
	if err != nil {
		return err
	}
	if logger.Path() != "" {
		util.InfoLog("Event log: %s", logger.Path())
	}
	return nil
}

func printClusterResult(res *cluster.Result) {
	util.InfoLog("")
	util.InfoLog("Run %d:", res.RunID)
	util.InfoLog("  Records attempted: %d", res.Attempted)
	util.InfoLog("  Records clustered: %d", res.Clustered)
	util.InfoLog("  Works indexed:     %d", res.WorksIndexed)
	util.InfoLog("  Works retracted:   %d", res.WorksRetracted)

	if len(res.Failures) == 0 {
		return
	}
	kinds := make([]string, 0, len(res.Failures))
	for k := range res.Failures {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	for _, k := range kinds {
		util.WarnLog("  %s: %d", k, res.Failures[k])
	}
}
