package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/copyleftdev/blackopt/internal/config"
	"github.com/copyleftdev/blackopt/internal/logging"
	"github.com/copyleftdev/blackopt/internal/runs"
)

var (
	configPath string
	logLevel   string

	cfg    *config.Config
	logger *logging.Logger
)

var rootCmd = &cobra.Command{
	Use:   "blackopt",
	Short: "Black-box parameter search over an external evaluator",
	Long: `blackopt tunes the numeric arguments of an external program that prints
its score, using a genetic algorithm, a particle swarm or a hybrid of both.

Without a subcommand it starts the interactive menu.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}
		if logLevel != "" {
			if _, err := logging.ParseLevel(logLevel); err != nil {
				return err
			}
			cfg.Logging.Level = logLevel
		}

		logger, err = logging.NewLogger(&cfg.Logging)
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	RunE: runMenu,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "YAML file overlaid on the environment configuration")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error)")
}

func newService(opts ...runs.Option) *runs.Service {
	return runs.NewService(cfg, logger.WithField("service", "blackopt"), opts...)
}
