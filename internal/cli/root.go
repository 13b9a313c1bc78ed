package cli

import (
	"github.com/spf13/cobra"
)

// New builds the command tree.
func New() *cobra.Command {
	root := &cobra.Command{
		Use:   "futuresbot",
		Short: "Futures order engine: executes validated trades and supervises their positions",
		Long: `futuresbot turns validated trade ideas into Binance USD-M futures orders
and keeps the resulting positions protected.

Configuration is read from the environment (and a .env file when present).`,
		SilenceUsage: true,
	}

	root.AddCommand(
		newRunCmd(),
		newExecuteCmd(),
		newTradesCmd(),
		newReportCmd(),
	)
	return root
}

// Execute runs the root command.
func Execute() error {
	return New().Execute()
}
