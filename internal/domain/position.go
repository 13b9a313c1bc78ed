package domain

import "math"

// Position is an exchange-reported position snapshot.
type Position struct {
	Symbol           string  // Trading symbol (e.g., "ETHUSDT")
	Side             Side    // LONG or SHORT
	PositionAmt      float64 // Signed amount (negative for shorts in one-way mode)
	EntryPrice       float64 // Average entry price
	MarkPrice        float64 // Current mark price
	UnrealizedPnL    float64
	LiquidationPrice float64 // 0 when the exchange reports none
	Leverage         int
	PositionID       string // Empty when the exchange does not expose position ids
}

// Quantity returns the absolute position size.
func (p *Position) Quantity() float64 {
	return math.Abs(p.PositionAmt)
}

// IsOpen reports whether the position carries any size.
func (p *Position) IsOpen() bool {
	return p.PositionAmt != 0
}

// Key returns the monitoring key for the position.
func (p *Position) Key() string {
	return PositionKey(p.Symbol, p.Side)
}

// StopBeyondLiquidation reports whether a stop at stopPrice would only
// trigger after the position has already been liquidated.
func (p *Position) StopBeyondLiquidation(stopPrice float64) bool {
	if p.LiquidationPrice <= 0 || stopPrice <= 0 {
		return false
	}
	if p.Side == Short {
		return stopPrice >= p.LiquidationPrice
	}
	return stopPrice <= p.LiquidationPrice
}
