// package main is the entry point for the issue-relay tool
package main

import (
	"log/slog"
	"os"

	"github.com/alan/issue-relay/cmd/run"
	"github.com/alan/issue-relay/cmd/status"
	"github.com/alan/issue-relay/internal/config"
	"github.com/spf13/cobra"
)

func main() {
	var configFile string
	var logLevel string
	var logFormat string

	rootCmd := &cobra.Command{
		Use:   "issue-relay",
		Short: "Relay a GitHub issue and its comments to a Discord webhook",
		Long: `issue-relay polls a single GitHub issue and forwards the issue and each
new comment to a Discord webhook, keeping a local checkpoint so nothing is
announced twice across scheduled runs.`,
		PersistentPreRun: func(_ *cobra.Command, _ []string) {
			setupLogger(logLevel, logFormat)
		},
	}

	// Add global flags
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Optional YAML settings file; environment variables take precedence")
	rootCmd.PersistentFlags().StringVarP(&logLevel, "log-level", "l", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVarP(&logFormat, "log-format", "f", "text", "Log format (text, json)")

	rootCmd.AddCommand(run.NewRunCmd(&configFile, config.LoadSettings))
	rootCmd.AddCommand(status.NewStatusCmd(&configFile, config.LoadSettings))

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setupLogger(level, format string) {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})
	} else {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})
	}

	slog.SetDefault(slog.New(handler))
}
