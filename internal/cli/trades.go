package cli

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"futuresMegaBot/internal/domain"
	"futuresMegaBot/internal/report"
)

// tradeLister is the part of the store the trades command reads.
type tradeLister interface {
	AllTrades(ctx context.Context) ([]*domain.TradeRecord, error)
	OpenTrades(ctx context.Context) ([]*domain.TradeRecord, error)
}

func newTradesCmd() *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "trades",
		Short: "List stored trade records",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := loadEnv()
			if err != nil {
				return err
			}
			defer e.close()
			return listTrades(cmd.Context(), cmd.OutOrStdout(), e.store, all)
		},
	}
	cmd.Flags().BoolVarP(&all, "all", "a", false, "include closed trades")
	return cmd
}

func listTrades(ctx context.Context, w io.Writer, store tradeLister, all bool) error {
	load := store.OpenTrades
	if all {
		load = store.AllTrades
	}
	trades, err := load(ctx)
	if err != nil {
		return fmt.Errorf("load trades: %w", err)
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSYMBOL\tSIDE\tSTATUS\tQTY\tLEV\tENTRY\tSTOP\tTPS\tCREATED")
	for _, t := range trades {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%g\t%d\t%g\t%g\t%d\t%s\n",
			t.ID, t.Symbol, t.Side, t.Status, t.Quantity, t.Leverage,
			t.EntryPrice, t.StopPrice, t.TakeProfitCount(), t.CreatedAt.UTC().Format(time.DateTime))
	}
	return tw.Flush()
}

func newReportCmd() *cobra.Command {
	var csvPath string
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Summarize realized PnL and fees of closed trades",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := loadEnv()
			if err != nil {
				return err
			}
			defer e.close()

			results, err := report.Collect(cmd.Context(), e.store)
			if err != nil {
				return err
			}
			if csvPath != "" {
				if err := report.WriteCSVFile(csvPath, results); err != nil {
					return fmt.Errorf("write csv: %w", err)
				}
			}
			return report.Write(cmd.OutOrStdout(), report.Analyze(results))
		},
	}
	cmd.Flags().StringVar(&csvPath, "csv", "", "also write per-trade results to this CSV file")
	return cmd
}
