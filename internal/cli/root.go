// Package cli provides the command-line interface for sidecoach.
package cli

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/avrelja/sidecoach/internal/config"
)

var (
	// Version is set at build time.
	Version = "0.1.0"

	configPath string
	logLevel   string

	cfg        config.Config
	logCleanup func() error
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "sidecoach",
	Short: "Real-time conversation copilot",
	Long: `Sidecoach listens to a live conversation, transcribes it, spots the
questions directed at you, and streams grounded answer suggestions to a
terminal view and to WebSocket viewers.

Sessions are recorded locally; "sidecoach debrief" turns a finished session
into a Markdown review report.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "version" || cmd.Name() == "help" {
			return nil
		}

		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
		if logLevel != "" {
			cfg.LogLevel = config.ParseLogLevel(logLevel)
		}

		logger, cleanup := config.SetupLogger(cfg.LogFile, cfg.LogLevel)
		slog.SetDefault(logger)
		logCleanup = cleanup
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logCleanup != nil {
			_ = logCleanup()
		}
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to YAML config file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
}
