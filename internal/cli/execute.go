package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"futuresMegaBot/internal/app"
	"futuresMegaBot/internal/domain"
)

func newExecuteCmd() *cobra.Command {
	var (
		file      string
		modifyTP1 bool
	)
	cmd := &cobra.Command{
		Use:   "execute",
		Short: "Execute a validated trade from a YAML file",
		Long: `Execute sizes the trade, places the market entry and then the stop,
take-profit and trailing orders. Use -f - to read the trade from stdin.

Example:
  futuresbot execute -f trade.yaml --modify-tp1`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			trade, err := readTradeFile(file)
			if err != nil {
				return err
			}

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

			rec, execErr := eng.executor.ExecuteTrade(ctx, trade, app.ExecuteOptions{ModifyTP1: modifyTP1})
			if rec != nil {
				printRecord(cmd.OutOrStdout(), rec)
			}
			return execErr
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "path to the trade file (required)")
	cmd.Flags().BoolVar(&modifyTP1, "modify-tp1", false, "replace tp1 with the 1:1 target from the current price")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func printRecord(w io.Writer, rec *domain.TradeRecord) {
	fmt.Fprintf(w, "trade %d %s %s: %s\n", rec.ID, rec.Symbol, rec.Side, rec.Status)
	fmt.Fprintf(w, "  quantity %g at %dx\n", rec.Quantity, rec.Leverage)
	for _, ref := range rec.OrderRefs() {
		fmt.Fprintf(w, "  %-9s %s\n", ref.Role, ref.OrderID)
	}
}
