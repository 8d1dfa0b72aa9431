package main

import (
	"context"
	"os"
	"syscall"

	"github.com/charmbracelet/fang"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/franz/bibcluster/internal/util"
)

var (
	// Version is set at build time
	Version = "dev"

	cfgFile string

	rootCmd = &cobra.Command{
		Use:   "bcl",
		Short: "Bibliographic clustering - group catalog records into works",
		Long: `bcl (bibliographic cluster) ingests normalized catalog records from many
sources, clusters records that describe the same intellectual work and keeps
a Work/Edition/Item graph and its search index in step.`,
		Version:           Version,
		SilenceUsage:      true,
		PersistentPreRunE: setup,
	}
)

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "config file (default is ./bcl.yaml)")
	pf.String("db", "bcl-state.db", "state database file")
	pf.String("artifacts", "artifacts", "directory for event logs and reports")
	pf.String("rules", "", "clustering rules file (YAML, defaults built in)")
	pf.String("index", "redis", "search index backend: redis, memory or none")
	pf.String("redis-addr", "localhost:6379", "redis address of the search index")
	pf.String("redis-password", "", "redis password")
	pf.Int("redis-db", 0, "redis database number")
	pf.String("redis-prefix", "bcl:", "key prefix of indexed documents")
	pf.StringSlice("kafka-brokers", []string{"localhost:9092"}, "kafka bootstrap brokers")
	pf.String("kafka-topic", "records", "kafka topic carrying record payloads")
	pf.String("kafka-group", "bcl-ingest", "kafka consumer group")
	pf.String("log-format", "auto", "log format: auto, console or json")
	pf.BoolP("verbose", "v", false, "verbose output")
	pf.BoolP("quiet", "q", false, "quiet output (errors only)")

	// Bind flags to viper
	bind := map[string]string{
		"db":             "db",
		"artifacts":      "artifacts",
		"rules":          "rules",
		"index":          "index",
		"redis.addr":     "redis-addr",
		"redis.password": "redis-password",
		"redis.db":       "redis-db",
		"redis.prefix":   "redis-prefix",
		"kafka.brokers":  "kafka-brokers",
		"kafka.topic":    "kafka-topic",
		"kafka.group":    "kafka-group",
		"log_format":     "log-format",
		"verbose":        "verbose",
		"quiet":          "quiet",
	}
	for key, flag := range bind {
		viper.BindPFlag(key, pf.Lookup(flag))
	}
}

func initConfig() {
	if cfgFile != "" {
		// Use config file from the flag
		viper.SetConfigFile(cfgFile)
	} else {
		// Search for config in common locations
		viper.AddConfigPath(".")
		viper.AddConfigPath("./configs")
		viper.AddConfigPath("$HOME/.bcl")
		viper.SetConfigName("bcl")
		viper.SetConfigType("yaml")
	}

	// Read in environment variables that match, e.g. BCL_REDIS_ADDR
	viper.SetEnvPrefix("BCL")
	viper.SetEnvKeyReplacer(envKeyReplacer)
	viper.AutomaticEnv()

	// If a config file is found, read it in
	if err := viper.ReadInConfig(); err == nil && !viper.GetBool("quiet") {
		util.InfoLog("Using config file: %s", viper.ConfigFileUsed())
	}
}

// setup loads .env and configures logging before any subcommand runs.
func setup(cmd *cobra.Command, args []string) error {
	// Load .env file if present (ignore errors)
	_ = godotenv.Load()

	util.SetOutput(os.Stderr, viper.GetString("log_format"))
	util.SetVerbose(viper.GetBool("verbose"))
	util.SetQuiet(viper.GetBool("quiet"))
	return nil
}

func main() {
	if err := fang.Execute(
		context.Background(),
		rootCmd,
		fang.WithVersion(Version),
		fang.WithNotifySignal(os.Interrupt, syscall.SIGTERM),
	); err != nil {
		os.Exit(1)
	}
}
