package report

import (
	"encoding/csv"
	"io"
	"os"
	"strconv"
	"time"
)

// WriteCSV writes one row per trade result.
func WriteCSV(w io.Writer, results []TradeResult) error {
	writer := csv.NewWriter(w)

	if err := writer.Write([]string{"trade_id", "symbol", "side", "closed_at", "executions", "pnl", "fees", "net"}); err != nil {
		return err
	}
	for _, r := range results {
		err := writer.Write([]string{
			strconv.FormatInt(r.TradeID, 10),
			r.Symbol,
			string(r.Side),
			r.ClosedAt.UTC().Format(time.RFC3339),
			strconv.Itoa(r.Executions),
			strconv.FormatFloat(r.PNL, 'f', -1, 64),
			strconv.FormatFloat(r.Fees, 'f', -1, 64),
			strconv.FormatFloat(r.Net(), 'f', -1, 64),
		})
		if err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// WriteCSVFile writes the results to filename, replacing it.
func WriteCSVFile(filename string, results []TradeResult) error {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	if err := WriteCSV(file, results); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}
