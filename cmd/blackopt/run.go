package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/copyleftdev/blackopt/internal/optimization"
	"github.com/copyleftdev/blackopt/internal/report"
	"github.com/copyleftdev/blackopt/internal/runs"
)

var (
	strategyName  string
	evaluatorCmd  string
	example       string
	directionName string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a single optimization",
	Long: `Runs one optimization without prompts and prints the record that is
appended to the report. Interrupting the run keeps the best result so far.`,
	Args: cobra.NoArgs,
	RunE: runOptimization,
}

func init() {
	runCmd.Flags().StringVar(&strategyName, "strategy", "ga", "Strategy: ga, pso or hybrid")
	runCmd.Flags().StringVar(&evaluatorCmd, "evaluator", "", "Evaluator command line (required)")
	runCmd.Flags().StringVar(&example, "example", "", "Initial vector, e.g. \"low 1 2.5\" (required)")
	runCmd.Flags().StringVar(&directionName, "direction", "max", "Direction: max or min")

	_ = runCmd.MarkFlagRequired("evaluator")
	_ = runCmd.MarkFlagRequired("example")
	rootCmd.AddCommand(runCmd)
}

func runOptimization(cmd *cobra.Command, args []string) error {
	strategy, err := runs.ParseStrategy(strategyName)
	if err != nil {
		return err
	}
	direction, err := optimization.ParseDirection(directionName)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	out, err := newService().Run(ctx, runs.Request{
		Strategy:  strategy,
		Command:   evaluatorCmd,
		Example:   example,
		Direction: direction,
	})
	if err != nil {
		return fmt.Errorf("run failed: %w", err)
	}

	return report.Write(cmd.OutOrStdout(), out.Record)
}
