package cli

import (
	"github.com/spf13/cobra"

	"futuresMegaBot/internal/app"
	"futuresMegaBot/internal/metrics"
)

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Supervise open positions until interrupted",
		Long: `Run reconciles exchange positions with stored trades, keeps a stop on
every position, moves stops to breakeven, records order outcomes and
cancels orphaned orders. It stops on SIGINT or SIGTERM.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			e, err := loadEnv()
			if err != nil {
				return err
			}
			defer e.close()

			eng, err := e.buildEngine(ctx)
			if err != nil {
				e.logger.Error(ctx, err, "Failed to initialize engine")
				return err
			}

			svc, err := app.NewTradingService(e.cfg, e.logger, eng.client, eng.reconciler, eng.processor, metrics.Handler(eng.registry))
			if err != nil {
				e.logger.Error(ctx, err, "Failed to initialize trading service")
				return err
			}
			if err := svc.Start(ctx); err != nil {
				e.logger.Error(ctx, err, "Trading service exited with error")
				return err
			}
			e.logger.Info(ctx, "Application finished gracefully.")
			return nil
		},
	}
}
