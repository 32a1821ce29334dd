package main

import (
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/copyleftdev/blackopt/internal/console"
)

var menuCmd = &cobra.Command{
	Use:   "menu",
	Short: "Start the interactive menu",
	Args:  cobra.NoArgs,
	RunE:  runMenu,
}

func init() {
	rootCmd.AddCommand(menuCmd)
}

func runMenu(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	return console.New(cmd.InOrStdin(), cmd.OutOrStdout(), newService()).Loop(ctx)
}
