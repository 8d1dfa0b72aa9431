package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/sourcegraph/conc/pool"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/franz/bibcluster/internal/buffer"
	"github.com/franz/bibcluster/internal/queue"
	"github.com/franz/bibcluster/internal/store"
	"github.com/franz/bibcluster/internal/util"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Consume record payloads from Kafka into the record store",
	Long: `Consume record payloads from the configured Kafka topic.

Payloads are validated, buffered and written in batches. Offsets are committed
only after the batch carrying them is persisted, so a crash replays at most
one batch. Invalid payloads are logged and skipped.

With --listen, a small HTTP server exposes /healthz and /metrics.`,
	RunE: runIngest,
}

func init() {
	rootCmd.AddCommand(ingestCmd)

	ingestCmd.Flags().Int("batch-size", buffer.DefaultSize, "Records per database transaction")
	ingestCmd.Flags().Duration("flush-interval", queue.DefaultFlushInterval, "Flush a partial batch after this idle time")
	ingestCmd.Flags().String("listen", "", "Address of the health/metrics server (e.g. :8080)")
	viper.BindPFlag("ingest.batch_size", ingestCmd.Flags().Lookup("batch-size"))
	viper.BindPFlag("ingest.flush_interval", ingestCmd.Flags().Lookup("flush-interval"))
	viper.BindPFlag("ingest.listen", ingestCmd.Flags().Lookup("listen"))
}

func runIngest(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

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

	kafkaCfg := queue.KafkaConfig{
		Brokers: viper.GetStringSlice("kafka.brokers"),
		Topic:   viper.GetString("kafka.topic"),
		GroupID: viper.GetString("kafka.group"),
	}
	reader := queue.NewReader(kafkaCfg)
	defer reader.Close()

	buf := buffer.New(db, buffer.Config{
		Size:       GetConfigInt("ingest.batch_size", buffer.DefaultSize),
		KeepStatus: rules.IsIdentifierSource,
	})
	consumer := queue.NewConsumer(reader, validator, buf, viper.GetDuration("ingest.flush_interval"))

	logger := newEventLogger()
	defer logger.Close()

	util.InfoLog("Consuming %s from %v (group %s)", kafkaCfg.Topic, kafkaCfg.Brokers, kafkaCfg.GroupID)

	p := pool.New().WithContext(ctx).WithCancelOnError()
	p.Go(func(ctx context.Context) error {
		err := consumer.Run(ctx)
		stats := consumer.Stats()
		_ = logger.LogIngest("kafka", int(stats.Persisted), err)
		if err != nil {
			return err
		}
		// Stop the HTTP server once the stream ends.
		return context.Canceled
	})
	if addr := viper.GetString("ingest.listen"); addr != "" {
		srv := newIngestServer(db, consumer)
		p.Go(func(ctx context.Context) error {
			return serve(ctx, srv, addr)
		})
	}

	err = p.Wait()
	stats := consumer.Stats()
	util.InfoLog("Received %d payloads: %d persisted, %d invalid, %d committed",
		stats.Received, stats.Persisted, stats.Invalid, stats.Committed)
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func newIngestServer(db *store.Store, consumer *queue.Consumer) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.GET("/healthz", func(c echo.Context) error {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
		defer cancel()
		if err := db.DB().PingContext(ctx); err != nil {
			return c.JSON(http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
		}
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	e.GET("/metrics", func(c echo.Context) error {
		return c.JSON(http.StatusOK, consumer.Stats())
	})
	return e
}

func serve(ctx context.Context, e *echo.Echo, addr string) error {
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := e.Shutdown(shutdownCtx); err != nil {
			util.ErrorLog("HTTP server shutdown failed: %v", err)
		}
	}()

	util.InfoLog("Health server listening on %s", addr)
	if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
