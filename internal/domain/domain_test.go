package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTradeRecord_Transition(t *testing.T) {
	tests := []struct {
		from, to TradeStatus
		ok       bool
	}{
		{TradeStatusPendingEntry, TradeStatusOpen, true},
		{TradeStatusPendingEntry, TradeStatusClosed, true},
		{TradeStatusPendingEntry, TradeStatusBreakeven, false},
		{TradeStatusOpen, TradeStatusBreakeven, true},
		{TradeStatusOpen, TradeStatusClosed, true},
		{TradeStatusOpen, TradeStatusPendingEntry, false},
		{TradeStatusBreakeven, TradeStatusClosed, true},
		{TradeStatusBreakeven, TradeStatusBreakeven, false},
		{TradeStatusBreakeven, TradeStatusOpen, false},
		{TradeStatusClosed, TradeStatusOpen, false},
		{TradeStatusClosed, TradeStatusClosed, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			rec := &TradeRecord{Status: tt.from}
			err := rec.Transition(tt.to)
			if tt.ok {
				require.NoError(t, err)
				assert.Equal(t, tt.to, rec.Status)
				return
			}
			assert.ErrorIs(t, err, ErrInvalidTransition)
			assert.Equal(t, tt.from, rec.Status)
		})
	}
}

func TestTradeRecord_IsOpen(t *testing.T) {
	assert.False(t, (&TradeRecord{Status: TradeStatusPendingEntry}).IsOpen())
	assert.True(t, (&TradeRecord{Status: TradeStatusOpen}).IsOpen())
	assert.True(t, (&TradeRecord{Status: TradeStatusBreakeven}).IsOpen())
	assert.False(t, (&TradeRecord{Status: TradeStatusClosed}).IsOpen())
}

func TestTrade_Validate(t *testing.T) {
	valid := Trade{Symbol: "BTCUSDT", Side: Long, StopPrice: 90, TakeProfits: [MaxTakeProfits]float64{110, 120}}
	require.NoError(t, valid.Validate())
	assert.Equal(t, 2, valid.TakeProfitCount())

	tests := []struct {
		name   string
		modify func(*Trade)
	}{
		{name: "no symbol", modify: func(tr *Trade) { tr.Symbol = "" }},
		{name: "bad side", modify: func(tr *Trade) { tr.Side = "UP" }},
		{name: "no stop", modify: func(tr *Trade) { tr.StopPrice = 0 }},
		{name: "no tp1", modify: func(tr *Trade) { tr.TakeProfits = [MaxTakeProfits]float64{} }},
		{name: "gap in take profits", modify: func(tr *Trade) { tr.TakeProfits[1] = 0; tr.TakeProfits[2] = 130 }},
		{name: "long take profits not ascending", modify: func(tr *Trade) { tr.TakeProfits[1] = 105 }},
		{name: "short take profits not descending", modify: func(tr *Trade) { tr.Side = Short }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := valid
			tt.modify(&tr)
			assert.Error(t, tr.Validate())
		})
	}
}

func TestTradeRecord_OrderRefs(t *testing.T) {
	rec := &TradeRecord{
		EntryOrderID:    StringPtr("1"),
		StopOrderID:     StringPtr(""),
		TrailingOrderID: StringPtr("9"),
	}
	rec.TakeProfitOrderIDs[1] = StringPtr("3")

	assert.Equal(t, []OrderRef{
		{Role: RoleEntry, OrderID: "1"},
		{Role: "TP2", OrderID: "3"},
		{Role: RoleTrailing, OrderID: "9"},
	}, rec.OrderRefs())
}

func TestSideHelpers(t *testing.T) {
	side, ok := ParseSide(" buy ")
	assert.True(t, ok)
	assert.Equal(t, Long, side)
	side, ok = ParseSide("Short")
	assert.True(t, ok)
	assert.Equal(t, Short, side)
	_, ok = ParseSide("flat")
	assert.False(t, ok)

	assert.Equal(t, Buy, Long.EntryOrderSide())
	assert.Equal(t, Sell, Long.CloseOrderSide())
	assert.Equal(t, Buy, Short.CloseOrderSide())
	assert.Equal(t, PositionSideShort, Short.PositionSide())
}

func TestPositionKey(t *testing.T) {
	assert.Equal(t, "BTCUSDT_LONG", PositionKey("btc-usdt", Long))
	assert.Equal(t, PositionKey("BTC/USDT", Short), PositionKey("BTCUSDT", Short))
	assert.Equal(t, "ETHUSDT_SHORT", (&Position{Symbol: "ethusdt", Side: Short}).Key())
}

func TestPosition_StopBeyondLiquidation(t *testing.T) {
	long := &Position{Side: Long, LiquidationPrice: 80}
	assert.True(t, long.StopBeyondLiquidation(79))
	assert.True(t, long.StopBeyondLiquidation(80))
	assert.False(t, long.StopBeyondLiquidation(90))

	short := &Position{Side: Short, LiquidationPrice: 120}
	assert.True(t, short.StopBeyondLiquidation(121))
	assert.False(t, short.StopBeyondLiquidation(110))

	assert.False(t, (&Position{Side: Long}).StopBeyondLiquidation(50))
}

func TestOrderStatus(t *testing.T) {
	assert.True(t, OrderStatusNew.IsOpen())
	assert.True(t, OrderStatusPartiallyFilled.IsOpen())
	assert.False(t, OrderStatusFilled.IsOpen())
	assert.True(t, OrderStatusFilled.IsTerminal())
	assert.True(t, OrderStatusCanceled.IsTerminal())
	assert.False(t, OrderStatusPartiallyFilled.IsTerminal())
	assert.True(t, OrderTypeStopMarket.IsStop())
	assert.False(t, OrderTypeTakeProfitMarket.IsStop())
}
