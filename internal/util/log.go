package util

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

var (
	logMu  sync.RWMutex
	logger = newLogger(os.Stderr, "auto")
)

func newLogger(w io.Writer, format string) zerolog.Logger {
	var out io.Writer = w
	switch strings.ToLower(format) {
	case "json":
	case "console":
		out = zerolog.ConsoleWriter{Out: w, TimeFormat: "15:04:05"}
	default:
		if f, ok := w.(*os.File); ok && IsTerminal(f.Fd()) {
			out = zerolog.ConsoleWriter{Out: w, TimeFormat: "15:04:05"}
		}
	}
	return zerolog.New(out).Level(zerolog.InfoLevel).With().Timestamp().Logger()
}

// SetOutput replaces the log sink. format is "json", "console" or "auto".
func SetOutput(w io.Writer, format string) {
	logMu.Lock()
	defer logMu.Unlock()
	level := logger.GetLevel()
	logger = newLogger(w, format).Level(level)
}

// Logger returns the process logger for structured fields.
func Logger() zerolog.Logger {
	logMu.RLock()
	defer logMu.RUnlock()
	return logger
}

func setLevel(level zerolog.Level) {
	logMu.Lock()
	defer logMu.Unlock()
	logger = logger.Level(level)
}

// SetVerbose enables verbose (debug) logging
func SetVerbose(verbose bool) {
	if verbose {
		setLevel(zerolog.DebugLevel)
	}
}

// SetQuiet enables quiet mode (errors only)
func SetQuiet(quiet bool) {
	if quiet {
		setLevel(zerolog.ErrorLevel)
	}
}

// DebugLog logs debug messages
func DebugLog(format string, args ...interface{}) {
	l := Logger()
	l.Debug().Msg(fmt.Sprintf(format, args...))
}

// InfoLog logs informational messages
func InfoLog(format string, args ...interface{}) {
	l := Logger()
	l.Info().Msg(fmt.Sprintf(format, args...))
}

// WarnLog logs warning messages
func WarnLog(format string, args ...interface{}) {
	l := Logger()
	l.Warn().Msg(fmt.Sprintf(format, args...))
}

// ErrorLog logs error messages
func ErrorLog(format string, args ...interface{}) {
	l := Logger()
	l.Error().Msg(fmt.Sprintf(format, args...))
}

// SuccessLog logs success messages (shown unless quiet)
func SuccessLog(format string, args ...interface{}) {
	l := Logger()
	l.Info().Bool("ok", true).Msg(fmt.Sprintf(format, args...))
}

// IsQuiet reports whether only errors are logged
func IsQuiet() bool {
	return Logger().GetLevel() >= zerolog.ErrorLevel
}
