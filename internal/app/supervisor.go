package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jpillora/backoff"

	"futuresMegaBot/internal/domain"
	"futuresMegaBot/internal/metrics"
	"futuresMegaBot/internal/ports"
	"futuresMegaBot/internal/risk"
)

// SupervisorConfig holds the stop supervisor's collaborators and fee rates.
type SupervisorConfig struct {
	Exchange      ports.ExchangeGateway
	Store         ports.TradeStore
	Notifier      ports.Notifier
	Logger        ports.Logger
	Metrics       *metrics.Metrics
	MarketFeeRate float64
	LimitFeeRate  float64
	// StoreRetryDelay is the first pause between trade reloads after a
	// stop was moved; it doubles on each retry.
	StoreRetryDelay time.Duration
}

const tradeLoadAttempts = 3

// Supervisor moves protective stops to the fee-adjusted breakeven once a
// position has earned a 1:1 reward.
type Supervisor struct {
	exchange ports.ExchangeGateway
	store    ports.TradeStore
	notifier ports.Notifier
	logger   ports.Logger
	metrics  *metrics.Metrics
	mktFee   float64
	limFee   float64
	retry    time.Duration
}

// NewSupervisor creates a stop supervisor.
func NewSupervisor(cfg SupervisorConfig) (*Supervisor, error) {
	if cfg.Exchange == nil || cfg.Store == nil || cfg.Notifier == nil || cfg.Logger == nil {
		return nil, fmt.Errorf("missing required dependencies for Supervisor: %w", ports.ErrConfigurationError)
	}
	if cfg.MarketFeeRate < 0 || cfg.LimitFeeRate < 0 {
		return nil, fmt.Errorf("fee rates must not be negative: %w", ports.ErrConfigurationError)
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.New(nil)
	}
	if cfg.StoreRetryDelay <= 0 {
		cfg.StoreRetryDelay = 100 * time.Millisecond
	}
	return &Supervisor{
		exchange: cfg.Exchange,
		store:    cfg.Store,
		notifier: cfg.Notifier,
		logger:   cfg.Logger,
		metrics:  cfg.Metrics,
		mktFee:   cfg.MarketFeeRate,
		limFee:   cfg.LimitFeeRate,
		retry:    cfg.StoreRetryDelay,
	}, nil
}

// OnPrice implements TickHandler.
func (s *Supervisor) OnPrice(ctx context.Context, mp *MonitoredPosition, price float64) {
	if _, err := s.Evaluate(ctx, mp, price); err != nil {
		s.logger.Debug(ctx, "OnPrice: breakeven move failed", map[string]interface{}{"key": mp.Key, "error": err.Error()})
	}
}

func (s *Supervisor) decide(st PositionState, price float64) risk.BreakevenDecision {
	if st.StopOrder == nil {
		return risk.BreakevenDecision{Reason: "no live stop"}
	}
	qty := st.Position.Quantity()
	if qty == 0 {
		qty = st.StopOrder.Quantity
	}
	return risk.EvaluateBreakeven(risk.BreakevenInput{
		Side:          st.Position.Side,
		Entry:         st.EntryPrice,
		Stop:          st.StopOrder.StopPrice,
		Price:         price,
		Quantity:      qty,
		MarketFeeRate: s.mktFee,
		LimitFeeRate:  s.limFee,
	})
}

// Evaluate moves the stop of mp to breakeven when price warrants it. It
// reports whether a replacement order was placed.
func (s *Supervisor) Evaluate(ctx context.Context, mp *MonitoredPosition, price float64) (bool, error) {
	op := "Evaluate"
	if d := s.decide(mp.Snapshot(), price); !d.Move {
		return false, nil
	}
	if !mp.beginAdjust() {
		return false, nil
	}
	defer mp.endAdjust()

	// Re-read under the in-flight flag: a concurrent tick may have moved it.
	st := mp.Snapshot()
	d := s.decide(st, price)
	if !d.Move {
		return false, nil
	}

	old := *st.StopOrder
	qty := old.Quantity
	if qty == 0 {
		qty = st.Position.Quantity()
	}
	req := closeRequest(st.Position.Symbol, st.Position.Side, old.Type, qty)
	req.StopPrice = d.NewStop
	req.PositionID = st.Position.PositionID
	req.ClientOrderID = clientOrderID(st.TradeID, domain.RoleStop)

	fields := map[string]interface{}{
		"key":       mp.Key,
		"price":     price,
		"entry":     st.EntryPrice,
		"oldStop":   old.StopPrice,
		"newStop":   d.NewStop,
		"quantity":  qty,
		"oldOrder":  old.ID,
		"tradeID":   st.TradeID,
		"orderType": old.Type,
	}

	var trade *domain.TradeRecord
	if st.TradeID > 0 {
		t, err := s.store.GetTrade(ctx, st.TradeID)
		if err != nil {
			s.logger.Warn(ctx, op+": failed to load trade", map[string]interface{}{"tradeID": st.TradeID, "error": err.Error()})
		} else {
			trade = t
		}
	}

	// Optimistic: a failed replace is repaired at the new target by the
	// next reconciliation cycle.
	mp.mu.Lock()
	if mp.stopOrder != nil {
		mp.stopOrder.StopPrice = d.NewStop
	}
	mp.targetStopPrice = d.NewStop
	mp.mu.Unlock()

	s.logger.Info(ctx, op+": moving stop to breakeven", fields)
	resp, err := s.exchange.CancelReplaceOrder(ctx, req, old.ID)
	s.metrics.OrdersPlaced.WithLabelValues(string(req.Type), metrics.Result(err)).Inc()
	s.metrics.BreakevenMoves.WithLabelValues(metrics.Result(err)).Inc()
	if err != nil {
		s.logger.Error(ctx, err, op+": failed to replace stop order", fields)
		alert := positionAlert(domain.AlertBreakevenFailed, &st.Position, trade, d.NewStop)
		alert.Error = fmt.Sprintf("replace stop %s at %s (qty %s): %v",
			old.ID, formatPrice(d.NewStop), formatQty(qty), err)
		alert.Warning = true
		notify(ctx, s.notifier, s.logger, alert)
		return false, fmt.Errorf("%s: %w", op, err)
	}

	mp.mu.Lock()
	if mp.stopOrder != nil {
		mp.stopOrder.ID = resp.OrderID
	}
	mp.mu.Unlock()

	fields["newOrder"] = resp.OrderID
	s.logger.Info(ctx, op+": stop moved to breakeven", fields)
	alert := positionAlert(domain.AlertBreakevenMoved, &st.Position, trade, d.NewStop)
	alert.Description = fmt.Sprintf("stop %s -> %s at price %s",
		formatPrice(old.StopPrice), formatPrice(d.NewStop), formatPrice(price))
	notify(ctx, s.notifier, s.logger, alert)

	if trade == nil && st.TradeID > 0 {
		t, err := s.loadTrade(ctx, st.TradeID)
		if err != nil {
			// The processor keeps polling the cancelled stop until this is fixed by hand.
			s.logger.Error(ctx, err, op+": new stop order id not recorded", fields)
		}
		trade = t
	}
	if trade != nil {
		s.recordMove(ctx, trade, resp.OrderID)
	}
	return true, nil
}

// loadTrade reads a trade, retrying transient store errors with backoff.
func (s *Supervisor) loadTrade(ctx context.Context, id int64) (*domain.TradeRecord, error) {
	b := &backoff.Backoff{Min: s.retry, Max: 10 * s.retry, Factor: 2}
	var lastErr error
	for attempt := 0; attempt < tradeLoadAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(b.Duration()):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
		t, err := s.store.GetTrade(ctx, id)
		if err == nil {
			return t, nil
		}
		lastErr = err
		if errors.Is(err, ports.ErrNotFound) {
			break
		}
	}
	return nil, lastErr
}

func (s *Supervisor) recordMove(ctx context.Context, trade *domain.TradeRecord, stopOrderID string) {
	op := "recordMove"
	fields := map[string]interface{}{"tradeID": trade.ID, "stopOrderID": stopOrderID}
	trade.StopOrderID = domain.StringPtr(stopOrderID)
	if err := s.store.UpdateOrderIDs(ctx, trade); err != nil {
		s.logger.Error(ctx, err, op+": failed to record new stop order id", fields)
	}
	if err := trade.Transition(domain.TradeStatusBreakeven); err != nil {
		s.logger.Warn(ctx, op+": trade status not updated", map[string]interface{}{"tradeID": trade.ID, "error": err.Error()})
		return
	}
	if err := s.store.UpdateStatus(ctx, trade.ID, trade.Status); err != nil {
		s.logger.Error(ctx, err, op+": failed to mark trade breakeven", fields)
	}
}
