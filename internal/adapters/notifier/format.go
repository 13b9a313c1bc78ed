package notifier

import (
	"fmt"
	"strconv"
	"strings"

	"futuresMegaBot/internal/domain"
)

var kindTitles = map[domain.AlertKind]string{
	domain.AlertTradeExecuted:   "TRADE EXECUTED",
	domain.AlertTradeFailed:     "TRADE FAILED",
	domain.AlertBreakevenMoved:  "STOP MOVED TO BREAKEVEN",
	domain.AlertBreakevenFailed: "BREAKEVEN MOVE FAILED",
	domain.AlertStopRepaired:    "STOP LOSS RECREATED",
	domain.AlertStopRepairFail:  "STOP LOSS RECREATE FAILED",
	domain.AlertOrphanCancelled: "ORPHAN ORDER CANCELLED",
	domain.AlertTradeClosed:     "TRADE CLOSED",
	domain.AlertLiquidationRisk: "STOP BEYOND LIQUIDATION",
	domain.AlertProcessingError: "PROCESSING ERROR",
}

// FormatAlert renders an alert as a short plain-text message.
func FormatAlert(a domain.Alert) string {
	var sb strings.Builder

	title, ok := kindTitles[a.Kind]
	if !ok {
		title = string(a.Kind)
	}
	if a.Warning {
		sb.WriteString("⚠️ ")
	}
	fmt.Fprintf(&sb, "%s\n%s %s\n", title, a.Symbol, a.Side)

	if a.Entry > 0 {
		fmt.Fprintf(&sb, "Entry: %s\n", price(a.Entry))
	}
	if a.Stop > 0 {
		fmt.Fprintf(&sb, "Stop: %s\n", price(a.Stop))
	}
	for i, tp := range a.TakeProfits {
		if tp > 0 {
			fmt.Fprintf(&sb, "TP%d: %s\n", i+1, price(tp))
		}
	}
	if a.Validation.Message != "" {
		fmt.Fprintf(&sb, "Validation: %s\n", a.Validation.Message)
	}
	if a.Description != "" {
		sb.WriteString(a.Description)
		sb.WriteString("\n")
	}
	if a.Error != "" {
		fmt.Fprintf(&sb, "Error: %s\n", a.Error)
	}
	return strings.TrimRight(sb.String(), "\n")
}

func price(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
