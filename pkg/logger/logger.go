package logger

import (
	"errors"
	"log/slog"
	"os"
	"strings"
	"sync"
)

// Config controls logger initialization.
// Level accepts debug/info/warn/error, Environment selects the output
// format (prod = JSON, anything else = text), WithSource toggles
// source locations on log records.
type Config struct {
	Level       string
	Environment string
	WithSource  bool
}

var (
	global *slog.Logger
	once   sync.Once
)

func levelFromString(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, errors.New("invalid log level: " + level)
	}
}

// New creates a new slog.Logger from cfg without touching the global instance.
func New(cfg Config) (*slog.Logger, error) {
	lvl, err := levelFromString(cfg.Level)
	if err != nil {
		return nil, err
	}

	handlerOpts := &slog.HandlerOptions{Level: lvl, AddSource: cfg.WithSource}
	var handler slog.Handler
	if strings.ToLower(cfg.Environment) == "prod" {
		handler = slog.NewJSONHandler(os.Stdout, handlerOpts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, handlerOpts)
	}

	return slog.New(handler), nil
}

// Init initializes the global logger; repeated calls return the first instance.
func Init(cfg Config) (*slog.Logger, error) {
	var initErr error
	once.Do(func() {
		global, initErr = New(cfg)
	})
	return global, initErr
}

// L returns the initialized global logger, panicking if Init was never called.
func L() *slog.Logger {
	if global == nil {
		panic("logger.Init must be called before logger.L")
	}
	return global
}

// LogPipelineStage records a structured pipeline event.
// stage: resolve/summarize/deliver/sweep
// action: start/success/error
// taskID: processing task ID ("" for sweep-level events)
// durationMs: elapsed time in milliseconds
// errorCode: optional error code; when set the event logs at ERROR level
func LogPipelineStage(logger *slog.Logger, stage, action, taskID string, durationMs int64, errorCode string) {
	attrs := []slog.Attr{
		slog.String("stage", stage),
		slog.String("action", action),
		slog.String("task_id", taskID),
		slog.Int64("duration_ms", durationMs),
	}

	if errorCode != "" {
		attrs = append(attrs, slog.String("error_code", errorCode))
		logger.LogAttrs(nil, slog.LevelError, "Pipeline stage error", attrs...)
	} else {
		logger.LogAttrs(nil, slog.LevelInfo, "Pipeline stage event", attrs...)
	}
}
