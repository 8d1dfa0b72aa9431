package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/franz/bibcluster/internal/model"
	"github.com/franz/bibcluster/internal/queue"
	"github.com/franz/bibcluster/internal/util"
)

var publishCmd = &cobra.Command{
	Use:   "publish <file.jsonl>",
	Short: "Publish record payloads from a JSONL file to Kafka",
	Long: `Validate record payloads from a JSONL file and publish them to the
configured Kafka topic, keyed by source_id. Invalid lines are skipped.`,
	Args: cobra.ExactArgs(1),
	RunE: runPublish,
}

func init() {
	rootCmd.AddCommand(publishCmd)

	publishCmd.Flags().Int("batch-size", 100, "Messages per produce call")
}

func runPublish(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	batchSize, _ := cmd.Flags().GetInt("batch-size")
	if batchSize <= 0 {
		batchSize = 100
	}

	f, err := os.Open(args[0])
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", args[0], err)
	}
	defer f.Close()

	validator, err := queue.NewValidator()
	if err != nil {
		return err
	}

	producer := queue.NewProducer(queue.KafkaConfig{
		Brokers: viper.GetStringSlice("kafka.brokers"),
		Topic:   viper.GetString("kafka.topic"),
	})
	defer producer.Close()

	var batch []*model.Record
	published := 0
	send := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := producer.Publish(ctx, batch...); err != nil {
			return err
		}
		published += len(batch)
		batch = batch[:0]
		return nil
	}

	stats, err := queue.ReadLines(ctx, f, validator, func(r *model.Record) error {
		batch = append(batch, r)
		if len(batch) >= batchSize {
			return send()
		}
		return nil
	})
	if err != nil {
		return err
	}
	if err := send(); err != nil {
		return err
	}

	util.SuccessLog("Published %d records to %s (%d invalid lines skipped)",
		published, viper.GetString("kafka.topic"), stats.Invalid)
	return nil
}
