package report

import (
	"context"
	"fmt"
	"io"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/shopspring/decimal"

	"futuresMegaBot/internal/domain"
)

// Source is the part of the trade store a report reads.
type Source interface {
	AllTrades(ctx context.Context) ([]*domain.TradeRecord, error)
	ExecutionsByTrade(ctx context.Context, tradeID int64) ([]*domain.OrderExecution, error)
}

// TradeResult is the realized outcome of one closed trade.
type TradeResult struct {
	TradeID    int64
	Symbol     string
	Side       domain.Side
	PNL        float64
	Fees       float64
	Executions int
	ClosedAt   time.Time
}

// Net is the realized PnL after fees.
func (r TradeResult) Net() float64 {
	return decimal.NewFromFloat(r.PNL).Sub(decimal.NewFromFloat(r.Fees)).InexactFloat64()
}

// Summary holds performance figures over closed trades
type Summary struct {
	Trades []TradeResult

	TotalTrades   int
	WinningTrades int
	LosingTrades  int
	WinRate       float64
	GrossPNL      float64
	TotalFees     float64
	NetPNL        float64
	AverageWin    float64
	AverageLoss   float64
	ProfitFactor  float64
	Expectancy    float64

	MaxConsecutiveWins   int
	MaxConsecutiveLosses int
	MaxDrawdown          float64 // Largest peak-to-trough drop of cumulative net PnL
	MonthlyNet           map[string]float64
}

// Collect loads the realized result of every closed trade.
func Collect(ctx context.Context, src Source) ([]TradeResult, error) {
	trades, err := src.AllTrades(ctx)
	if err != nil {
		return nil, fmt.Errorf("load trades: %w", err)
	}

	results := make([]TradeResult, 0, len(trades))
	for _, t := range trades {
		if t.Status != domain.TradeStatusClosed {
			continue
		}
		execs, err := src.ExecutionsByTrade(ctx, t.ID)
		if err != nil {
			return nil, fmt.Errorf("load executions of trade %d: %w", t.ID, err)
		}

		pnl, fees := decimal.Zero, decimal.Zero
		closedAt := t.UpdatedAt
		for _, e := range execs {
			pnl = pnl.Add(decimal.NewFromFloat(e.PNL))
			fees = fees.Add(decimal.NewFromFloat(e.Fee))
			if e.UpdateTime.After(closedAt) {
				closedAt = e.UpdateTime
			}
		}
		results = append(results, TradeResult{
			TradeID:    t.ID,
			Symbol:     t.Symbol,
			Side:       t.Side,
			PNL:        pnl.InexactFloat64(),
			Fees:       fees.InexactFloat64(),
			Executions: len(execs),
			ClosedAt:   closedAt,
		})
	}
	return results, nil
}

// Analyze computes the summary of results, ordered by close time.
func Analyze(results []TradeResult) *Summary {
	s := &Summary{
		Trades:     append([]TradeResult(nil), results...),
		MonthlyNet: make(map[string]float64),
	}
	if len(results) == 0 {
		return s
	}

	sort.SliceStable(s.Trades, func(i, j int) bool {
		return s.Trades[i].ClosedAt.Before(s.Trades[j].ClosedAt)
	})

	var (
		cumulative, peak       float64
		consecutiveWins        int
		consecutiveLosses      int
		totalWins, totalLosses float64
	)
	for _, r := range s.Trades {
		net := r.Net()
		s.TotalTrades++
		s.GrossPNL += r.PNL
		s.TotalFees += r.Fees

		if net > 0 {
			s.WinningTrades++
			totalWins += net
			consecutiveWins++
			consecutiveLosses = 0
		} else {
			s.LosingTrades++
			totalLosses += net
			consecutiveLosses++
			consecutiveWins = 0
		}
		s.MaxConsecutiveWins = max(s.MaxConsecutiveWins, consecutiveWins)
		s.MaxConsecutiveLosses = max(s.MaxConsecutiveLosses, consecutiveLosses)

		cumulative += net
		if cumulative > peak {
			peak = cumulative
		}
		s.MaxDrawdown = max(s.MaxDrawdown, peak-cumulative)

		s.MonthlyNet[r.ClosedAt.Format("2006-01")] += net
	}

	s.NetPNL = cumulative
	s.WinRate = float64(s.WinningTrades) / float64(s.TotalTrades)
	if s.WinningTrades > 0 {
		s.AverageWin = totalWins / float64(s.WinningTrades)
	}
	if s.LosingTrades > 0 {
		s.AverageLoss = totalLosses / float64(s.LosingTrades)
	}
	if totalLosses != 0 {
		s.ProfitFactor = totalWins / -totalLosses
	}
	s.Expectancy = s.WinRate*s.AverageWin + (1-s.WinRate)*s.AverageLoss
	return s
}

// MonthlyReturn is the net PnL realized in one calendar month.
type MonthlyReturn struct {
	Month time.Time
	Net   float64
}

// Monthly returns the monthly net PnL in chronological order.
func (s *Summary) Monthly() []MonthlyReturn {
	out := make([]MonthlyReturn, 0, len(s.MonthlyNet))
	for month, net := range s.MonthlyNet {
		date, _ := time.Parse("2006-01", month)
		out = append(out, MonthlyReturn{Month: date, Net: net})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Month.Before(out[j].Month) })
	return out
}

// Write renders the summary as aligned text.
func Write(w io.Writer, s *Summary) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)

	fmt.Fprintln(tw, "TRADE\tSYMBOL\tSIDE\tCLOSED\tPNL\tFEES\tNET")
	for _, r := range s.Trades {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%.4f\t%.4f\t%.4f\n",
			r.TradeID, r.Symbol, r.Side, r.ClosedAt.UTC().Format(time.DateTime), r.PNL, r.Fees, r.Net())
	}
	fmt.Fprintln(tw)

	fmt.Fprintf(tw, "Trades\t%d (%d won, %d lost)\n", s.TotalTrades, s.WinningTrades, s.LosingTrades)
	fmt.Fprintf(tw, "Win rate\t%.2f%%\n", s.WinRate*100)
	fmt.Fprintf(tw, "Gross PnL\t%.4f\n", s.GrossPNL)
	fmt.Fprintf(tw, "Fees\t%.4f\n", s.TotalFees)
	fmt.Fprintf(tw, "Net PnL\t%.4f\n", s.NetPNL)
	fmt.Fprintf(tw, "Profit factor\t%.2f\n", s.ProfitFactor)
	fmt.Fprintf(tw, "Max drawdown\t%.4f\n", s.MaxDrawdown)
	for _, m := range s.Monthly() {
		fmt.Fprintf(tw, "%s\t%.4f\n", m.Month.Format("2006-01"), m.Net)
	}
	return tw.Flush()
}
