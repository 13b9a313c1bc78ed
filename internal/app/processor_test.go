package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"futuresMegaBot/internal/domain"
	"futuresMegaBot/internal/ports"
)

type processorFixture struct {
	exchange  *mockExchange
	store     *mockStore
	notifier  *mockNotifier
	evaluator *mockEvaluator
	proc      *Processor
}

func newProcessorFixture(t *testing.T) *processorFixture {
	t.Helper()
	f := &processorFixture{
		exchange:  newMockExchange(),
		store:     newMockStore(),
		notifier:  &mockNotifier{},
		evaluator: &mockEvaluator{},
	}
	proc, err := NewProcessor(ProcessorConfig{
		Exchange:         f.exchange,
		Store:            f.store,
		Notifier:         f.notifier,
		Breakeven:        f.evaluator,
		Logger:           &mockLogger{},
		MarketFeeRate:    0.0005,
		LimitFeeRate:     0.0002,
		OrderIDMinDigits: 8,
	})
	require.NoError(t, err)
	f.proc = proc
	return f
}

func openTrade(f *processorFixture, symbol string) *domain.TradeRecord {
	rec := &domain.TradeRecord{
		Trade: domain.Trade{
			Symbol: symbol, Side: domain.Long, EntryPrice: 100, StopPrice: 90,
			TakeProfits: [domain.MaxTakeProfits]float64{110, 120},
		},
		Quantity:        1,
		Leverage:        10,
		Status:          domain.TradeStatusOpen,
		EntryOrderID:    domain.StringPtr("200000001"),
		StopOrderID:     domain.StringPtr("200000002"),
		TrailingOrderID: domain.StringPtr("200000005"),
	}
	rec.TakeProfitOrderIDs[0] = domain.StringPtr("200000003")
	rec.TakeProfitOrderIDs[1] = domain.StringPtr("200000004")
	return f.store.put(rec)
}

func filled(id string, typ domain.OrderType, qty, price float64) *domain.OrderStatusReport {
	return &domain.OrderStatusReport{
		OrderID: id, Type: typ, Status: domain.OrderStatusFilled,
		ExecutedQty: qty, AvgPrice: price, UpdateTime: time.Now(),
	}
}

func monitoredFor(symbol string) map[string]*MonitoredPosition {
	mp := newMonitoredPosition(longPosition(symbol, 1, 100))
	return map[string]*MonitoredPosition{mp.Key: mp}
}

func TestProcessTrades_StopFillClosesTrade(t *testing.T) {
	f := newProcessorFixture(t)
	trade := openTrade(f, "BTCUSDT")
	f.exchange.orderStatus["200000001"] = filled("200000001", domain.OrderTypeMarket, 1, 100)
	f.exchange.orderStatus["200000002"] = filled("200000002", domain.OrderTypeStopMarket, 1, 90)

	require.NoError(t, f.proc.ProcessTrades(context.Background(), monitoredFor("BTCUSDT")))

	assert.Equal(t, domain.TradeStatusClosed, f.store.trade(trade.ID).Status)
	require.Len(t, f.store.executions, 2)

	entry := f.store.executions[0]
	assert.Equal(t, domain.RoleEntry, entry.Role)
	assert.Zero(t, entry.PNL)
	assert.InDelta(t, 1*100*10*0.0005, entry.Fee, 1e-9)

	stop := f.store.executions[1]
	assert.Equal(t, domain.RoleStop, stop.Role)
	assert.InDelta(t, -100.0, stop.PNL, 1e-9) // (90-100) * 1 * 10
	assert.InDelta(t, 1*90*10*0.0005, stop.Fee, 1e-9)

	assert.Equal(t, 1, f.notifier.count(domain.AlertTradeClosed))
	assert.Empty(t, f.evaluator.prices)
}

func TestProcessTrades_TrailingFillClosesTrade(t *testing.T) {
	f := newProcessorFixture(t)
	trade := openTrade(f, "BTCUSDT")
	f.exchange.orderStatus["200000005"] = filled("200000005", domain.OrderTypeTrailingStopMarket, 0.1, 125)

	require.NoError(t, f.proc.ProcessTrades(context.Background(), monitoredFor("BTCUSDT")))
	assert.Equal(t, domain.TradeStatusClosed, f.store.trade(trade.ID).Status)
}

func TestProcessTrades_SkipsOpenAndRecordedOrders(t *testing.T) {
	f := newProcessorFixture(t)
	trade := openTrade(f, "BTCUSDT")
	require.NoError(t, f.store.AppendExecution(context.Background(), &domain.OrderExecution{
		TradeID: trade.ID, OrderID: "200000001", Role: domain.RoleEntry, Status: domain.OrderStatusFilled, AvgPrice: 100, ExecutedQty: 1,
	}))
	f.exchange.orderStatus["200000002"] = &domain.OrderStatusReport{OrderID: "200000002", Status: domain.OrderStatusPartiallyFilled}

	require.NoError(t, f.proc.ProcessTrades(context.Background(), monitoredFor("BTCUSDT")))

	assert.NotContains(t, f.exchange.statusCalls, "200000001")
	assert.Contains(t, f.exchange.statusCalls, "200000002")
	assert.Len(t, f.store.executions, 1)
	assert.Equal(t, domain.TradeStatusOpen, f.store.trade(trade.ID).Status)
}

func TestProcessTrades_CancelledStopDoesNotClose(t *testing.T) {
	f := newProcessorFixture(t)
	trade := openTrade(f, "BTCUSDT")
	f.exchange.orderStatus["200000002"] = &domain.OrderStatusReport{OrderID: "200000002", Type: domain.OrderTypeStopMarket, Status: domain.OrderStatusCanceled}

	require.NoError(t, f.proc.ProcessTrades(context.Background(), monitoredFor("BTCUSDT")))

	assert.Equal(t, domain.TradeStatusOpen, f.store.trade(trade.ID).Status)
	require.Len(t, f.store.executions, 1)
	assert.Equal(t, domain.OrderStatusCanceled, f.store.executions[0].Status)
}

func TestProcessTrades_IgnoresPlaceholderOrderIDs(t *testing.T) {
	f := newProcessorFixture(t)
	rec := &domain.TradeRecord{
		Trade:        domain.Trade{Symbol: "BTCUSDT", Side: domain.Long, StopPrice: 90},
		Status:       domain.TradeStatusOpen,
		EntryOrderID: domain.StringPtr("pending"),
		StopOrderID:  domain.StringPtr("1234"),
	}
	f.store.put(rec)

	require.NoError(t, f.proc.ProcessTrades(context.Background(), monitoredFor("BTCUSDT")))
	assert.Empty(t, f.exchange.statusCalls)
}

func TestProcessTrades_TP1FillTriggersBreakeven(t *testing.T) {
	f := newProcessorFixture(t)
	openTrade(f, "BTCUSDT")
	f.exchange.price = 112
	f.exchange.orderStatus["200000003"] = filled("200000003", domain.OrderTypeTakeProfitMarket, 0.5, 110)

	require.NoError(t, f.proc.ProcessTrades(context.Background(), monitoredFor("BTCUSDT")))

	assert.Equal(t, []float64{112}, f.evaluator.prices)
	require.Len(t, f.store.executions, 1)
	assert.InDelta(t, 50.0, f.store.executions[0].PNL, 1e-9) // (110-100) * 0.5 * 10

	// Already recorded: no second evaluation.
	require.NoError(t, f.proc.ProcessTrades(context.Background(), monitoredFor("BTCUSDT")))
	assert.Len(t, f.evaluator.prices, 1)
}

func TestProcessTrades_OrphanTradeCleanup(t *testing.T) {
	f := newProcessorFixture(t)
	orphan := openTrade(f, "ETHUSDT")
	kept := openTrade(f, "BTCUSDT")
	f.exchange.cancelErr["200000003"] = &ports.APIError{Code: -2011, Message: "Unknown order sent.", Kind: ports.ErrOrderCancelFailed}

	require.NoError(t, f.proc.ProcessTrades(context.Background(), monitoredFor("BTCUSDT")))

	assert.Equal(t, domain.TradeStatusClosed, f.store.trade(orphan.ID).Status)
	assert.Equal(t, domain.TradeStatusOpen, f.store.trade(kept.ID).Status)
	// Entry is never cancelled; the failing TP1 cancel does not block the rest.
	assert.ElementsMatch(t, []string{"200000002", "200000004", "200000005"}, f.exchange.cancelled)
	assert.Equal(t, 1, f.notifier.count(domain.AlertTradeClosed))
}

func TestProcessTrades_NoOrphanCleanupWithoutMonitoring(t *testing.T) {
	f := newProcessorFixture(t)
	trade := openTrade(f, "ETHUSDT")

	require.NoError(t, f.proc.ProcessTrades(context.Background(), map[string]*MonitoredPosition{}))

	assert.Equal(t, domain.TradeStatusOpen, f.store.trade(trade.ID).Status)
	assert.Empty(t, f.exchange.cancelled)
	assert.NotEmpty(t, f.exchange.statusCalls)
}

func pendingTrade(f *processorFixture, symbol string, entryID *string, created time.Time) *domain.TradeRecord {
	return f.store.put(&domain.TradeRecord{
		Trade:        domain.Trade{Symbol: symbol, Side: domain.Long, StopPrice: 90, TakeProfits: [domain.MaxTakeProfits]float64{110}},
		Quantity:     1,
		Leverage:     10,
		Status:       domain.TradeStatusPendingEntry,
		EntryOrderID: entryID,
		CreatedAt:    created,
	})
}

func TestProcessTrades_ClosesPendingTradeWithoutPosition(t *testing.T) {
	f := newProcessorFixture(t)
	stale := pendingTrade(f, "ETHUSDT", domain.StringPtr("200000001"), time.Now().Add(-time.Hour))

	require.NoError(t, f.proc.ProcessTrades(context.Background(), monitoredFor("BTCUSDT")))

	assert.Equal(t, domain.TradeStatusClosed, f.store.trade(stale.ID).Status)
	assert.Empty(t, f.exchange.cancelled)
	assert.Empty(t, f.exchange.statusCalls)
	assert.Equal(t, 1, f.notifier.count(domain.AlertTradeClosed))
}

func TestProcessTrades_KeepsPendingTrades(t *testing.T) {
	old := time.Now().Add(-time.Hour)
	tests := []struct {
		name      string
		symbol    string
		entryID   *string
		created   time.Time
		monitored map[string]*MonitoredPosition
	}{
		{name: "entry not placed", symbol: "ETHUSDT", created: old, monitored: monitoredFor("BTCUSDT")},
		{name: "placeholder entry id", symbol: "ETHUSDT", entryID: domain.StringPtr("1"), created: old, monitored: monitoredFor("BTCUSDT")},
		{name: "position still live", symbol: "BTCUSDT", entryID: domain.StringPtr("200000001"), created: old, monitored: monitoredFor("BTCUSDT")},
		{name: "within grace", symbol: "ETHUSDT", entryID: domain.StringPtr("200000001"), created: time.Now(), monitored: monitoredFor("BTCUSDT")},
		{name: "no monitoring", symbol: "ETHUSDT", entryID: domain.StringPtr("200000001"), created: old, monitored: nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newProcessorFixture(t)
			rec := pendingTrade(f, tt.symbol, tt.entryID, tt.created)

			require.NoError(t, f.proc.ProcessTrades(context.Background(), tt.monitored))

			assert.Equal(t, domain.TradeStatusPendingEntry, f.store.trade(rec.ID).Status)
			assert.Empty(t, f.exchange.statusCalls)
		})
	}
}

func TestProcessTrades_PartialFillWaitsForFinalStatus(t *testing.T) {
	f := newProcessorFixture(t)
	trade := openTrade(f, "BTCUSDT")
	partial := filled("200000002", domain.OrderTypeStopMarket, 0.4, 90)
	partial.Status = domain.OrderStatusPartiallyFilled
	f.exchange.orderStatus["200000002"] = partial

	require.NoError(t, f.proc.ProcessTrades(context.Background(), monitoredFor("BTCUSDT")))
	has, err := f.store.HasExecution(context.Background(), "200000002")
	require.NoError(t, err)
	assert.False(t, has)
	assert.Equal(t, domain.TradeStatusOpen, f.store.trade(trade.ID).Status)

	f.exchange.orderStatus["200000002"] = filled("200000002", domain.OrderTypeStopMarket, 1, 90)
	require.NoError(t, f.proc.ProcessTrades(context.Background(), monitoredFor("BTCUSDT")))

	execs, err := f.store.ExecutionsByTrade(context.Background(), trade.ID)
	require.NoError(t, err)
	require.Len(t, execs, 1)
	assert.Equal(t, 1.0, execs[0].ExecutedQty)
	assert.Equal(t, domain.TradeStatusClosed, f.store.trade(trade.ID).Status)
}

func TestProcessTrades_PerTradeErrorsAreNotified(t *testing.T) {
	f := newProcessorFixture(t)
	openTrade(f, "BTCUSDT")
	openTrade(f, "ETHUSDT")
	f.exchange.orderStatusErr = errors.New("status unavailable")

	monitored := monitoredFor("BTCUSDT")
	for k, v := range monitoredFor("ETHUSDT") {
		monitored[k] = v
	}
	require.NoError(t, f.proc.ProcessTrades(context.Background(), monitored))
	assert.Equal(t, 2, f.notifier.count(domain.AlertProcessingError))
}

func TestProcessTrades_StoreErrorAborts(t *testing.T) {
	f := newProcessorFixture(t)
	f.store.openErr = ports.ErrQueryFailed
	assert.ErrorIs(t, f.proc.ProcessTrades(context.Background(), nil), ports.ErrQueryFailed)
}

func TestLooksLikeOrderID(t *testing.T) {
	f := newProcessorFixture(t)
	assert.True(t, f.proc.looksLikeOrderID("12345678"))
	assert.True(t, f.proc.looksLikeOrderID("1735093217395421184"))
	assert.False(t, f.proc.looksLikeOrderID("1234567"))
	assert.False(t, f.proc.looksLikeOrderID("12345678a"))
	assert.False(t, f.proc.looksLikeOrderID(""))
}
