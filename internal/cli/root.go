package cli

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/me/coloop/internal/config"
	"github.com/me/coloop/internal/logging"
)

var (
	flagConfig    string
	flagDebug     bool
	flagLogLevel  string
	flagLogFormat string

	logger *slog.Logger
)

// NewRootCmd creates the root cobra command for the coloop CLI.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "coloop",
		Short: "coloop runs generator-based scripts on a cooperative step scheduler",
		Long: `coloop runs a JavaScript file whose generator threads are resumed one
step at a time by a cooperative scheduler, and journals every step.`,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if flagDebug {
				flagLogLevel = "debug"
			}
			logger = logging.NewLoggerWithWriter(logging.ParseLevel(flagLogLevel), flagLogFormat, cmd.ErrOrStderr())
		},
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVar(&flagConfig, "config", "", "YAML runner config file")
	root.PersistentFlags().BoolVar(&flagDebug, "debug", false, "Enable debug logging")
	root.PersistentFlags().StringVar(&flagLogLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&flagLogFormat, "log-format", "auto", "Log format (text, json, auto)")

	root.AddCommand(
		newRunCmd(),
		newHistoryCmd(),
	)

	return root
}

// loadConfig reads --config over the defaults, then applies the logging
// flags the user set explicitly.
func loadConfig(cmd *cobra.Command) (config.RunnerConfig, error) {
	cfg := config.DefaultRunnerConfig()
	if flagConfig != "" {
		var err error
		if cfg, err = config.Load(flagConfig); err != nil {
			return cfg, err
		}
	}
	flags := cmd.Flags()
	if flags.Changed("log-level") || flagDebug {
		cfg.LogLevel = flagLogLevel
	}
	if flags.Changed("log-format") {
		cfg.LogFormat = flagLogFormat
	}
	if !flags.Changed("log-level") && !flags.Changed("log-format") && !flagDebug {
		// The config file may name a different level or format.
		logger = logging.NewLoggerWithWriter(logging.ParseLevel(cfg.LogLevel), cfg.LogFormat, cmd.ErrOrStderr())
	}
	return cfg, nil
}
