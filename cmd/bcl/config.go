package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/franz/bibcluster/internal/config"
	"github.com/franz/bibcluster/internal/index"
	"github.com/franz/bibcluster/internal/report"
	"github.com/franz/bibcluster/internal/store"
	"github.com/franz/bibcluster/internal/util"
)

var envKeyReplacer = strings.NewReplacer(".", "_", "-", "_")

// GetConfigString retrieves a string config value with proper precedence:
// 1. Command-line flag (if set)
// 2. Environment variable (BCL_*)
// 3. Config file
// 4. Default value
func GetConfigString(key string, defaultValue string) string {
	val := viper.GetString(key)
	if val == "" {
		return defaultValue
	}
	return val
}

// GetConfigInt retrieves an int config value with proper precedence
func GetConfigInt(key string, defaultValue int) int {
	val := viper.GetInt(key)
	if val == 0 {
		return defaultValue
	}
	return val
}

func openStore(fastWrites bool) (*store.Store, error) {
	dbPath := viper.GetString("db")
	util.DebugLog("Opening database: %s", dbPath)
	db, err := store.OpenWithOptions(dbPath, &store.OpenOptions{FastWrites: fastWrites})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return db, nil
}

func loadRules() (*config.Rules, error) {
	path := viper.GetString("rules")
	if path == "" {
		return config.DefaultRules(), nil
	}
	rules, err := config.LoadRules(path)
	if err != nil {
		return nil, err
	}
	util.InfoLog("Using clustering rules: %s", path)
	return rules, nil
}

// openIndex returns the configured projector and a close function. A nil
// projector means indexing is disabled.
func openIndex(ctx context.Context) (index.Projector, func(), error) {
	switch backend := GetConfigString("index", "redis"); backend {
	case "none":
		util.WarnLog("Search index disabled; works will not be projected")
		return nil, func() {}, nil
	case "memory":
		return index.NewMemoryProjector(), func() {}, nil
	case "redis":
		p := index.NewRedisProjector(index.RedisOptions{
			Addr:     viper.GetString("redis.addr"),
			Password: viper.GetString("redis.password"),
			DB:       viper.GetInt("redis.db"),
			Prefix:   viper.GetString("redis.prefix"),
		})
		if err := p.Ping(ctx); err != nil {
			// Indexing failures are counted per run; the store stays authoritative.
			util.WarnLog("Search index at %s unreachable: %v", viper.GetString("redis.addr"), err)
		}
		return p, func() { p.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("%w: unknown index backend %q", util.ErrInvalidConfig, backend)
	}
}

func newEventLogger() *report.EventLogger {
	level := report.LevelInfo
	if viper.GetBool("quiet") {
		level = report.LevelWarning
	} else if viper.GetBool("verbose") {
		level = report.LevelDebug
	}

	logger, err := report.NewEventLogger(GetConfigString("artifacts", "artifacts"), level)
	if err != nil {
		util.WarnLog("Failed to create event logger: %v", err)
		return report.NullLogger()
	}
	util.DebugLog("Event log: %s", logger.Path())
	return logger
}
