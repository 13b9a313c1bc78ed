package domain

import "strings"

// OrderSide represents the side of an order (BUY or SELL).
type OrderSide string

const (
	Buy  OrderSide = "BUY"
	Sell OrderSide = "SELL"
)

// Side is the direction of a trade or position.
type Side string

const (
	Long  Side = "LONG"
	Short Side = "SHORT"
)

// PositionSide is the hedge-mode position bucket an order belongs to.
type PositionSide string

const (
	PositionSideLong  PositionSide = "LONG"
	PositionSideShort PositionSide = "SHORT"
	PositionSideBoth  PositionSide = "BOTH" // One-way mode
)

// IsValid reports whether s is LONG or SHORT.
func (s Side) IsValid() bool {
	return s == Long || s == Short
}

// EntryOrderSide is the order side that opens a position on s.
func (s Side) EntryOrderSide() OrderSide {
	if s == Short {
		return Sell
	}
	return Buy
}

// CloseOrderSide is the order side that reduces a position on s.
func (s Side) CloseOrderSide() OrderSide {
	if s == Short {
		return Buy
	}
	return Sell
}

// PositionSide maps a trade side onto its hedge-mode bucket.
func (s Side) PositionSide() PositionSide {
	if s == Short {
		return PositionSideShort
	}
	return PositionSideLong
}

// ParseSide accepts LONG/SHORT as well as BUY/SELL.
func ParseSide(v string) (Side, bool) {
	switch strings.ToUpper(strings.TrimSpace(v)) {
	case "LONG", "BUY":
		return Long, true
	case "SHORT", "SELL":
		return Short, true
	}
	return "", false
}

// NormalizeSymbol strips separators and upper-cases a symbol so that
// "btc-usdt", "BTC/USDT" and "BTCUSDT" compare equal.
func NormalizeSymbol(symbol string) string {
	r := strings.NewReplacer("-", "", "/", "", "_", "", " ", "")
	return strings.ToUpper(r.Replace(symbol))
}

// PositionKey is the key used to track one side of one symbol.
func PositionKey(symbol string, side Side) string {
	return NormalizeSymbol(symbol) + "_" + string(side)
}

// IsProfitSide reports whether price lies at or beyond entry in the
// favourable direction for side.
func IsProfitSide(side Side, entry, price float64) bool {
	if side == Short {
		return price <= entry
	}
	return price >= entry
}
