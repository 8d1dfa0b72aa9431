package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/segmentio/kafka-go"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/franz/bibcluster/internal/config"
	"github.com/franz/bibcluster/internal/index"
	"github.com/franz/bibcluster/internal/store"
	"github.com/franz/bibcluster/internal/util"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Run diagnostic checks on the environment and configuration",
	Long: `Run diagnostic checks to ensure bcl can operate correctly.

This command checks:
- SQLite version compatibility
- Database accessibility and integrity
- Clustering rules file
- Artifacts directory permissions and disk space
- Search index backend reachability
- Kafka brokers (with --kafka)

Use this command to troubleshoot issues before running bcl operations.`,
	RunE: runDoctor,
}

func init() {
	rootCmd.AddCommand(doctorCmd)

	doctorCmd.Flags().Bool("kafka", false, "Also check that the Kafka brokers are reachable")
}

type checkResult struct {
	name    string
	message string
	error   bool
	warning bool
}

func runDoctor(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	checkKafka, _ := cmd.Flags().GetBool("kafka")

	util.InfoLog("=== BCL Doctor - System Diagnostics ===")
	util.InfoLog("")

	artifacts := GetConfigString("artifacts", "artifacts")
	results := []checkResult{
		checkSQLite(),
		checkDatabase(ctx, viper.GetString("db")),
		checkRules(viper.GetString("rules")),
		checkArtifactsDirectory(artifacts),
		checkDiskSpace(artifacts, "artifacts"),
		checkIndex(ctx),
	}
	if checkKafka {
		results = append(results, checkBrokers(ctx, viper.GetStringSlice("kafka.brokers"))...)
	}

	// Print results
	util.InfoLog("")
	util.InfoLog("=== Diagnostic Results ===")
	util.InfoLog("")

	hasErrors := false
	hasWarnings := false

	for _, r := range results {
		symbol := "✓"
		if r.error {
			symbol = "✗"
			hasErrors = true
		} else if r.warning {
			symbol = "⚠"
			hasWarnings = true
		}

		line := fmt.Sprintf("[%s] %s", symbol, r.name)
		if r.message != "" {
			line += fmt.Sprintf(": %s", r.message)
		}

		if r.error {
			util.ErrorLog("%s", line)
		} else if r.warning {
			util.WarnLog("%s", line)
		} else {
			util.SuccessLog("%s", line)
		}
	}

	// Summary
	util.InfoLog("")
	if hasErrors {
		util.ErrorLog("Some critical checks failed. Please resolve errors before running bcl.")
		return fmt.Errorf("system diagnostics failed")
	} else if hasWarnings {
		util.WarnLog("Some checks produced warnings. Review them before proceeding.")
	} else {
		util.SuccessLog("All checks passed! System is ready for bcl operations.")
	}

	return nil
}

// checkSQLite verifies SQLite version
func checkSQLite() checkResult {
	version := store.SQLiteVersion()
	if version == "" {
		return checkResult{
			name:    "SQLite",
			error:   true,
			message: "unable to determine version",
		}
	}

	return checkResult{
		name:    "SQLite",
		message: fmt.Sprintf("version %s (built-in)", version),
	}
}

// checkDatabase verifies database file accessibility
func checkDatabase(ctx context.Context, dbPath string) checkResult {
	if dbPath == "" {
		return checkResult{
			name:    "Database",
			warning: true,
			message: "no database path specified (use --db flag or config)",
		}
	}

	info, err := os.Stat(dbPath)
	if err != nil {
		if os.IsNotExist(err) {
			return checkResult{
				name:    "Database",
				message: fmt.Sprintf("%s (will be created on first run)", dbPath),
			}
		}
		return checkResult{
			name:    "Database",
			error:   true,
			message: fmt.Sprintf("cannot access %s: %v", dbPath, err),
		}
	}

	if !info.Mode().IsRegular() {
		return checkResult{
			name:    "Database",
			error:   true,
			message: fmt.Sprintf("%s is not a regular file", dbPath),
		}
	}

	db, err := store.Open(dbPath)
	if err != nil {
		return checkResult{
			name:    "Database",
			error:   true,
			message: fmt.Sprintf("cannot open %s: %v", dbPath, err),
		}
	}
	defer db.Close()

	if err := db.CheckIntegrity(); err != nil {
		return checkResult{
			name:    "Database",
			error:   true,
			message: fmt.Sprintf("integrity check failed: %v", err),
		}
	}

	records, err := db.CountRecords(ctx)
	if err != nil {
		return checkResult{
			name:    "Database",
			error:   true,
			message: fmt.Sprintf("cannot count records: %v", err),
		}
	}
	graph, err := db.CountGraph(ctx)
	if err != nil {
		return checkResult{
			name:    "Database",
			error:   true,
			message: fmt.Sprintf("cannot count works: %v", err),
		}
	}

	return checkResult{
		name: "Database",
		message: fmt.Sprintf("%s (%s, %s records, %s pending, %s works)", dbPath,
			humanize.Bytes(uint64(info.Size())), humanize.Comma(int64(records.Total)),
			humanize.Comma(int64(records.Pending)), humanize.Comma(int64(graph.Works))),
	}
}

// checkRules verifies the clustering rules file parses and validates
func checkRules(path string) checkResult {
	if path == "" {
		return checkResult{
			name:    "Rules",
			message: "built-in defaults",
		}
	}

	rules, err := config.LoadRules(path)
	if err != nil {
		return checkResult{
			name:    "Rules",
			error:   true,
			message: err.Error(),
		}
	}
	return checkResult{
		name: "Rules",
		message: fmt.Sprintf("%s (max distance %d, cluster cap %d)", path,
			rules.Match.MaxDistance, rules.Match.MaxClusterSize),
	}
}

// checkArtifactsDirectory verifies the artifacts directory is writable
func checkArtifactsDirectory(path string) checkResult {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			if err := os.MkdirAll(path, 0755); err != nil {
				return checkResult{
					name:    "Artifacts directory",
					error:   true,
					message: fmt.Sprintf("cannot create %s: %v", path, err),
				}
			}
			return checkResult{
				name:    "Artifacts directory",
				message: fmt.Sprintf("%s (created)", path),
			}
		}
		return checkResult{
			name:    "Artifacts directory",
			error:   true,
			message: fmt.Sprintf("cannot access %s: %v", path, err),
		}
	}

	if !info.IsDir() {
		return checkResult{
			name:    "Artifacts directory",
			error:   true,
			message: fmt.Sprintf("%s is not a directory", path),
		}
	}

	testFile := filepath.Join(path, ".bcl_write_test")
	f, err := os.Create(testFile)
	if err != nil {
		return checkResult{
			name:    "Artifacts directory",
			error:   true,
			message: fmt.Sprintf("cannot write to %s: %v", path, err),
		}
	}
	f.Close()
	os.Remove(testFile)

	return checkResult{
		name:    "Artifacts directory",
		message: fmt.Sprintf("%s (writable)", path),
	}
}

// checkDiskSpace verifies available disk space
func checkDiskSpace(path string, label string) checkResult {
	var stat syscall.Statfs_t
	if err := syscall.Statfs(path, &stat); err != nil {
		return checkResult{
			name:    fmt.Sprintf("Disk space (%s)", label),
			warning: true,
			message: fmt.Sprintf("cannot determine disk space: %v", err),
		}
	}

	availBytes := stat.Bavail * uint64(stat.Bsize)
	totalBytes := stat.Blocks * uint64(stat.Bsize)
	usedBytes := totalBytes - (stat.Bfree * uint64(stat.Bsize))
	usedPercent := float64(usedBytes) / float64(totalBytes) * 100

	// Warn if less than 1GB available or >90% used
	warning := false
	warningMsg := ""
	if availBytes < 1<<30 {
		warning = true
		warningMsg = " (low space!)"
	} else if usedPercent > 90 {
		warning = true
		warningMsg = " (>90% used)"
	}

	return checkResult{
		name:    fmt.Sprintf("Disk space (%s)", label),
		warning: warning,
		message: fmt.Sprintf("%s available%s", humanize.IBytes(availBytes), warningMsg),
	}
}

// checkIndex pings the configured search index backend
func checkIndex(ctx context.Context) checkResult {
	idx, closeIndex, err := openIndex(ctx)
	if err != nil {
		return checkResult{
			name:    "Search index",
			error:   true,
			message: err.Error(),
		}
	}
	defer closeIndex()

	backend := GetConfigString("index", "redis")
	if idx == nil {
		return checkResult{
			name:    "Search index",
			warning: true,
			message: "disabled (index: none)",
		}
	}

	pinger, ok := idx.(index.Pinger)
	if !ok {
		return checkResult{
			name:    "Search index",
			message: backend,
		}
	}

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := pinger.Ping(ctx); err != nil {
		return checkResult{
			name:    "Search index",
			error:   true,
			message: fmt.Sprintf("%s at %s unreachable: %v", backend, viper.GetString("redis.addr"), err),
		}
	}
	return checkResult{
		name:    "Search index",
		message: fmt.Sprintf("%s at %s", backend, viper.GetString("redis.addr")),
	}
}

// checkBrokers dials every Kafka broker
func checkBrokers(ctx context.Context, brokers []string) []checkResult {
	if len(brokers) == 0 {
		return []checkResult{{
			name:    "Kafka",
			warning: true,
			message: "no brokers configured",
		}}
	}

	results := make([]checkResult, 0, len(brokers))
	for _, addr := range brokers {
		name := fmt.Sprintf("Kafka broker %s", addr)
		dialCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		conn, err := kafka.DialContext(dialCtx, "tcp", addr)
		cancel()
		if err != nil {
			results = append(results, checkResult{name: name, error: true, message: err.Error()})
			continue
		}
		controller, err := conn.Controller()
		conn.Close()
		if err != nil {
			results = append(results, checkResult{name: name, warning: true, message: fmt.Sprintf("connected, no controller: %v", err)})
			continue
		}
		results = append(results, checkResult{
			name:    name,
			message: fmt.Sprintf("reachable (controller %s)", net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port))),
		})
	}
	return results
}
