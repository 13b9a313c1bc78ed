package app

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"futuresMegaBot/internal/domain"
	"futuresMegaBot/internal/metrics"
	"futuresMegaBot/internal/ports"
)

// TickHandler receives price ticks for monitored positions.
type TickHandler interface {
	OnPrice(ctx context.Context, mp *MonitoredPosition, price float64)
}

// ReconcilerConfig holds the reconciler's collaborators.
type ReconcilerConfig struct {
	Exchange      ports.ExchangeGateway
	Store         ports.TradeStore
	Notifier      ports.Notifier
	Streams       ports.PriceStreamFactory // Optional; nil disables streaming
	Ticks         TickHandler              // Optional
	Logger        ports.Logger
	Metrics       *metrics.Metrics
	StopOrderType domain.OrderType
}

// Reconciler keeps the set of monitored positions in line with the
// exchange. It owns the monitored map; other components read it through
// Snapshot and Get.
type Reconciler struct {
	exchange ports.ExchangeGateway
	store    ports.TradeStore
	notifier ports.Notifier
	streams  ports.PriceStreamFactory
	ticks    TickHandler
	logger   ports.Logger
	metrics  *metrics.Metrics
	stopType domain.OrderType

	mu        sync.RWMutex
	positions map[string]*MonitoredPosition
	orders    *OrderMonitor
}

// NewReconciler creates a reconciler.
func NewReconciler(cfg ReconcilerConfig) (*Reconciler, error) {
	if cfg.Exchange == nil || cfg.Store == nil || cfg.Notifier == nil || cfg.Logger == nil {
		return nil, fmt.Errorf("missing required dependencies for Reconciler: %w", ports.ErrConfigurationError)
	}
	if cfg.StopOrderType == "" {
		cfg.StopOrderType = domain.OrderTypeStopMarket
	}
	if !cfg.StopOrderType.IsStop() {
		return nil, fmt.Errorf("stop order type %s is not a stop type: %w", cfg.StopOrderType, ports.ErrConfigurationError)
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.New(nil)
	}
	return &Reconciler{
		exchange:  cfg.Exchange,
		store:     cfg.Store,
		notifier:  cfg.Notifier,
		streams:   cfg.Streams,
		ticks:     cfg.Ticks,
		logger:    cfg.Logger,
		metrics:   cfg.Metrics,
		stopType:  cfg.StopOrderType,
		positions: make(map[string]*MonitoredPosition),
		orders:    NewOrderMonitor(nil),
	}, nil
}

// UpdatePositions runs one reconciliation cycle. Fetch errors abort the
// cycle; per-position failures are notified and skipped. Streams attached
// during the cycle live until ctx is done or the position goes away.
func (r *Reconciler) UpdatePositions(ctx context.Context) error {
	op := "UpdatePositions"
	start := time.Now()
	defer func() { r.metrics.ReconcileDuration.Observe(time.Since(start).Seconds()) }()

	positions, err := r.exchange.GetPositions(ctx, "")
	if err != nil {
		return fmt.Errorf("%s: fetch positions: %w", op, err)
	}
	orders, err := r.exchange.GetOpenOrders(ctx)
	if err != nil {
		return fmt.Errorf("%s: fetch open orders: %w", op, err)
	}
	trades, err := r.store.AllTrades(ctx)
	if err != nil {
		return fmt.Errorf("%s: load trades: %w", op, err)
	}
	monitor := NewOrderMonitor(orders)

	live := make(map[string]*domain.Position, len(positions))
	for _, p := range positions {
		if p != nil && p.IsOpen() {
			live[p.Key()] = p
		}
	}

	// Removals happen before any create or update.
	r.mu.Lock()
	r.orders = monitor
	for key, mp := range r.positions {
		if _, ok := live[key]; ok {
			continue
		}
		mp.disconnect()
		delete(r.positions, key)
		r.logger.Info(ctx, op+": position closed, stopped monitoring", map[string]interface{}{"key": key})
	}
	r.mu.Unlock()

	keys := make([]string, 0, len(live))
	for k := range live {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, key := range keys {
		r.upsert(ctx, live[key], monitor, trades)
	}

	r.metrics.MonitoredPositions.Set(float64(r.Len()))
	r.CancelOrphanedOrders(ctx)
	return nil
}

func (r *Reconciler) upsert(ctx context.Context, pos *domain.Position, monitor *OrderMonitor, trades []*domain.TradeRecord) {
	op := "upsert"
	key := pos.Key()

	r.mu.Lock()
	mp, exists := r.positions[key]
	if !exists {
		mp = newMonitoredPosition(pos)
		r.positions[key] = mp
	}
	r.mu.Unlock()

	stop := monitor.StopOrder(key)
	trade := matchTrade(trades, pos)

	mp.mu.Lock()
	mp.position = *pos
	mp.entryPrice = pos.EntryPrice
	if pos.Leverage > 0 {
		mp.leverage = pos.Leverage
	}
	if trade != nil {
		mp.tradeID = trade.ID
	}
	if mp.initialStopPrice == 0 {
		switch {
		case trade != nil && trade.StopPrice > 0:
			mp.initialStopPrice = trade.StopPrice
		case stop != nil:
			mp.initialStopPrice = stop.StopPrice
		}
	}
	adjusting := mp.adjusting
	if !adjusting {
		if stop != nil {
			o := *stop
			mp.stopOrder = &o
			mp.targetStopPrice = stop.StopPrice
		} else {
			mp.stopOrder = nil
		}
	}
	if mp.targetStopPrice == 0 {
		mp.targetStopPrice = mp.initialStopPrice
	}
	needStream := mp.stream == nil || !mp.stream.Alive()
	mp.mu.Unlock()

	if !exists {
		r.logger.Info(ctx, op+": monitoring new position", map[string]interface{}{
			"key": key, "amount": pos.PositionAmt, "entry": pos.EntryPrice, "tradeID": mp.TradeID(),
		})
	}
	if needStream {
		r.attachStream(ctx, mp, pos.Symbol)
	}

	if adjusting {
		return
	}
	if stop == nil {
		r.repairStop(ctx, mp, pos, trade)
		return
	}
	r.checkLiquidation(ctx, pos, stop, trade)
}

// matchTrade picks the trade backing pos: a trade carrying the position's
// id wins, otherwise the most recent unclosed trade on the same symbol and
// side.
func matchTrade(trades []*domain.TradeRecord, pos *domain.Position) *domain.TradeRecord {
	symbol := domain.NormalizeSymbol(pos.Symbol)
	var best *domain.TradeRecord
	for _, t := range trades {
		if t.Status == domain.TradeStatusClosed {
			continue
		}
		if domain.NormalizeSymbol(t.Symbol) != symbol || t.Side != pos.Side {
			continue
		}
		if pos.PositionID != "" && t.PositionID != nil && *t.PositionID == pos.PositionID {
			return t
		}
		if best == nil || t.ID > best.ID {
			best = t
		}
	}
	return best
}

func (r *Reconciler) attachStream(ctx context.Context, mp *MonitoredPosition, symbol string) {
	if r.streams == nil {
		return
	}
	stream := r.streams(symbol, func(price float64) {
		r.handleTick(ctx, mp, price)
	})
	if err := stream.Start(ctx); err != nil {
		r.logger.Error(ctx, err, "attachStream: failed to start price stream", map[string]interface{}{"key": mp.Key})
		return
	}

	mp.mu.Lock()
	old := mp.stream
	mp.stream = stream
	mp.mu.Unlock()
	if old != nil {
		old.Close()
		r.metrics.StreamReconnects.WithLabelValues(symbol).Inc()
	}
	r.logger.Debug(ctx, "attachStream: price stream attached", map[string]interface{}{"key": mp.Key})
}

func (r *Reconciler) handleTick(ctx context.Context, mp *MonitoredPosition, price float64) {
	mp.setLastPrice(price)
	if r.ticks != nil {
		r.ticks.OnPrice(ctx, mp, price)
	}
}

// repairStop recreates a missing protective stop at the last intended price.
func (r *Reconciler) repairStop(ctx context.Context, mp *MonitoredPosition, pos *domain.Position, trade *domain.TradeRecord) {
	op := "repairStop"
	mp.mu.Lock()
	target := mp.targetStopPrice
	tradeID := mp.tradeID
	mp.mu.Unlock()

	fields := map[string]interface{}{"key": mp.Key, "stopPrice": target, "quantity": pos.Quantity(), "tradeID": tradeID}
	if target <= 0 {
		r.logger.Warn(ctx, op+": position has no stop and no known stop price", fields)
		return
	}

	req := closeRequest(pos.Symbol, pos.Side, r.stopType, pos.Quantity())
	req.StopPrice = target
	req.PositionID = pos.PositionID
	req.ClientOrderID = clientOrderID(tradeID, domain.RoleStop)

	resp, err := r.exchange.PlaceOrder(ctx, req)
	r.metrics.OrdersPlaced.WithLabelValues(string(req.Type), metrics.Result(err)).Inc()
	r.metrics.StopRepairs.WithLabelValues(metrics.Result(err)).Inc()
	if err != nil {
		r.logger.Error(ctx, err, op+": failed to recreate stop order", fields)
		alert := positionAlert(domain.AlertStopRepairFail, pos, trade, target)
		alert.Error = err.Error()
		alert.Warning = true
		notify(ctx, r.notifier, r.logger, alert)
		return
	}

	mp.mu.Lock()
	mp.stopOrder = &domain.Order{
		ID:           resp.OrderID,
		Symbol:       pos.Symbol,
		Side:         req.Side,
		PositionSide: req.PositionSide,
		Type:         req.Type,
		StopPrice:    target,
		Quantity:     req.Quantity,
		Status:       domain.OrderStatusNew,
		ReduceOnly:   true,
	}
	mp.mu.Unlock()
	fields["orderID"] = resp.OrderID
	r.logger.Info(ctx, op+": stop order recreated", fields)
	notify(ctx, r.notifier, r.logger, positionAlert(domain.AlertStopRepaired, pos, trade, target))

	if trade == nil {
		return
	}
	trade.StopOrderID = domain.StringPtr(resp.OrderID)
	if err := r.store.UpdateOrderIDs(ctx, trade); err != nil {
		r.logger.Error(ctx, err, op+": failed to record repaired stop order id", fields)
	}
	if trade.Status == domain.TradeStatusPendingEntry && trade.EntryOrderID != nil {
		if err := trade.Transition(domain.TradeStatusOpen); err == nil {
			if err := r.store.UpdateStatus(ctx, trade.ID, trade.Status); err != nil {
				r.logger.Error(ctx, err, op+": failed to mark trade open", fields)
			}
		}
	}
}

func (r *Reconciler) checkLiquidation(ctx context.Context, pos *domain.Position, stop *domain.Order, trade *domain.TradeRecord) {
	if !pos.StopBeyondLiquidation(stop.StopPrice) {
		return
	}
	r.metrics.LiquidationAlerts.Inc()
	r.logger.Warn(ctx, "checkLiquidation: stop triggers after liquidation", map[string]interface{}{
		"key":              pos.Key(),
		"stopPrice":        stop.StopPrice,
		"liquidationPrice": pos.LiquidationPrice,
	})
	alert := positionAlert(domain.AlertLiquidationRisk, pos, trade, stop.StopPrice)
	alert.Warning = true
	alert.Error = fmt.Sprintf("stop %s is beyond liquidation price %s",
		formatPrice(stop.StopPrice), formatPrice(pos.LiquidationPrice))
	notify(ctx, r.notifier, r.logger, alert)
}

// CancelOrphanedOrders cancels open orders whose position is neither
// monitored nor live on the exchange. The exchange is asked again before
// each cancel so a position opened since the cycle began is left alone.
func (r *Reconciler) CancelOrphanedOrders(ctx context.Context) {
	op := "CancelOrphanedOrders"
	r.mu.RLock()
	orders := r.orders.All()
	r.mu.RUnlock()
	sort.Slice(orders, func(i, j int) bool { return orders[i].ID < orders[j].ID })

	fresh := make(map[string][]*domain.Position)
	for _, o := range orders {
		side := o.ClosesSide()
		key := domain.PositionKey(o.Symbol, side)
		if r.Get(key) != nil {
			continue
		}
		fields := map[string]interface{}{"key": key, "orderID": o.ID, "type": o.Type}

		positions, ok := fresh[o.Symbol]
		if !ok {
			var err error
			positions, err = r.exchange.GetPositions(ctx, o.Symbol)
			if err != nil {
				r.logger.Error(ctx, err, op+": failed to re-check position", fields)
				alert := orderAlert(domain.AlertProcessingError, o)
				alert.Error = err.Error()
				notify(ctx, r.notifier, r.logger, alert)
				continue
			}
			fresh[o.Symbol] = positions
		}
		if hasLivePosition(positions, side) {
			r.logger.Debug(ctx, op+": position appeared since the cycle began, keeping order", fields)
			continue
		}

		if err := r.exchange.CancelOrder(ctx, o.Symbol, o.ID); err != nil && !errors.Is(err, ports.ErrOrderNotFound) {
			r.logger.Error(ctx, err, op+": failed to cancel orphaned order", fields)
			alert := orderAlert(domain.AlertProcessingError, o)
			alert.Error = err.Error()
			alert.Warning = true
			notify(ctx, r.notifier, r.logger, alert)
			continue
		}
		r.metrics.OrphanCancels.Inc()
		r.logger.Info(ctx, op+": cancelled orphaned order", fields)
		notify(ctx, r.notifier, r.logger, orderAlert(domain.AlertOrphanCancelled, o))
	}
}

func hasLivePosition(positions []*domain.Position, side domain.Side) bool {
	for _, p := range positions {
		if p != nil && p.IsOpen() && p.Side == side {
			return true
		}
	}
	return false
}

func orderAlert(kind domain.AlertKind, o *domain.Order) domain.Alert {
	return domain.Alert{
		Kind:        kind,
		Symbol:      o.Symbol,
		Side:        o.ClosesSide(),
		Stop:        o.StopPrice,
		Description: fmt.Sprintf("order %s (%s, qty %s)", o.ID, o.Type, formatQty(o.Quantity)),
		Validation:  domain.Validation{IsValid: true},
	}
}

// Snapshot returns the monitored positions keyed by SYMBOL_SIDE. The map
// is a copy; the entries are shared.
func (r *Reconciler) Snapshot() map[string]*MonitoredPosition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]*MonitoredPosition, len(r.positions))
	for k, v := range r.positions {
		out[k] = v
	}
	return out
}

// Get returns the monitored position for key, or nil.
func (r *Reconciler) Get(key string) *MonitoredPosition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.positions[key]
}

// Len returns the number of monitored positions.
func (r *Reconciler) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.positions)
}

// Close disconnects every price stream and forgets all positions.
func (r *Reconciler) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for key, mp := range r.positions {
		mp.disconnect()
		delete(r.positions, key)
	}
	r.metrics.MonitoredPositions.Set(0)
}
