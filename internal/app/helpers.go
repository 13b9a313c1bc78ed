package app

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"futuresMegaBot/internal/domain"
	"futuresMegaBot/internal/ports"
)

// clientOrderID tags an order with its trade and role.
func clientOrderID(tradeID int64, role domain.OrderRole) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return fmt.Sprintf("t%d-%s-%s", tradeID, strings.ToLower(string(role)), suffix)
}

// closeRequest builds a reduce-only order against the position on side.
func closeRequest(symbol string, side domain.Side, typ domain.OrderType, qty float64) domain.OrderRequest {
	return domain.OrderRequest{
		Symbol:       symbol,
		Side:         side.CloseOrderSide(),
		PositionSide: side.PositionSide(),
		Type:         typ,
		Quantity:     qty,
		ReduceOnly:   true,
	}
}

// positionAlert builds an alert for a live position, preferring the
// prices of its trade when one matched.
func positionAlert(kind domain.AlertKind, pos *domain.Position, trade *domain.TradeRecord, stop float64) domain.Alert {
	var a domain.Alert
	if trade != nil {
		a = domain.AlertFromTrade(kind, &trade.Trade)
	} else {
		a = domain.Alert{
			Kind:       kind,
			Symbol:     pos.Symbol,
			Side:       pos.Side,
			Entry:      pos.EntryPrice,
			Validation: domain.Validation{IsValid: true},
		}
	}
	if stop > 0 {
		a.Stop = stop
	}
	return a
}

// notify delivers alert and logs a failed delivery. Alerts never fail the
// operation that raised them.
func notify(ctx context.Context, n ports.Notifier, logger ports.Logger, alert domain.Alert) {
	if err := n.Notify(ctx, alert); err != nil {
		logger.Error(ctx, err, "Failed to deliver alert", map[string]interface{}{
			"kind":   alert.Kind,
			"symbol": alert.Symbol,
		})
	}
}

func errText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

func formatPrice(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func formatQty(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
