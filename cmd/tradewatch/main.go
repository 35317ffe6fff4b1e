// Package main is the entry point for the Polymarket trade watcher.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/polyinsider/tradewatch/internal/config"
)

// overrides holds the command-line flags that win over the environment.
type overrides struct {
	pollSeconds int
	statePath   string
	logLevel    string
}

func main() {
	var flags overrides

	run := runCommand(&flags)
	root := &cobra.Command{
		Use:          "tradewatch",
		Short:        "Watch Polymarket wallets and post their trades to Telegram",
		SilenceUsage: true,
		// run is the default verb
		RunE: run.RunE,
	}

	pf := root.PersistentFlags()
	pf.IntVar(&flags.pollSeconds, "poll", 0, "poll period in seconds (overrides POLL_SECONDS)")
	pf.StringVar(&flags.statePath, "state", "", "cursor state path (overrides STATE_PATH)")
	pf.StringVar(&flags.logLevel, "log-level", "", "DEBUG, INFO, WARN or ERROR (overrides LOG_LEVEL)")

	root.AddCommand(run, pingCommand(&flags), cursorsCommand(&flags))

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig reads the environment, applies flag overrides, installs the
// logger and runs validate.
func loadConfig(flags *overrides, validate func(*config.Config) error) (*config.Config, error) {
	cfg := config.LoadUnvalidated()
	if flags.pollSeconds > 0 {
		cfg.PollInterval = time.Duration(flags.pollSeconds) * time.Second
	}
	if flags.statePath != "" {
		cfg.StatePath = flags.statePath
	}
	if flags.logLevel != "" {
		cfg.LogLevel = flags.logLevel
	}

	slog.SetDefault(setupLogger(cfg.LogLevel))

	if validate != nil {
		if err := validate(cfg); err != nil {
			slog.Error("failed to load configuration", "error", err)
			return nil, fmt.Errorf("config validation failed: %w", err)
		}
	}
	return cfg, nil
}

// setupLogger creates a structured logger with the specified level.
// Format: 2025-01-04 14:32:01 [INFO]  message key=value
func setupLogger(levelStr string) *slog.Logger {
	var level slog.Level
	switch strings.ToUpper(levelStr) {
	case "DEBUG":
		level = slog.LevelDebug
	case "INFO":
		level = slog.LevelInfo
	case "WARN", "WARNING":
		level = slog.LevelWarn
	case "ERROR":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				if t, ok := a.Value.Any().(time.Time); ok {
					a.Value = slog.StringValue(t.Format("2006-01-02 15:04:05"))
				}
			}
			return a
		},
	}

	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}
