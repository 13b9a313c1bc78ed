package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"futuresMegaBot/internal/domain"
	"futuresMegaBot/internal/metrics"
	"futuresMegaBot/internal/ports"
	"futuresMegaBot/internal/risk"
)

const (
	leverageStep = 2
	// trailingRetryFactor scales the exchange's maximum trailing distance
	// on the single retry after a distance rejection.
	trailingRetryFactor = 0.95
)

// LeverageCalculator picks the leverage for a new trade.
type LeverageCalculator interface {
	CalculateOptimalLeverage(ctx context.Context, symbol string, entry, stop float64, side domain.Side) (int, error)
}

// ExecutorConfig holds the executor's collaborators and sizing settings.
type ExecutorConfig struct {
	Exchange          ports.ExchangeGateway
	Store             ports.TradeStore
	Notifier          ports.Notifier
	Sizer             LeverageCalculator
	Logger            ports.Logger
	Metrics           *metrics.Metrics
	MarginPerTrade    float64
	VolumeMarginBonus float64
	TrailingRate      float64 // Percent
	StopOrderType     domain.OrderType
	SettleDelay       time.Duration
}

// ExecuteOptions tweaks a single execution.
type ExecuteOptions struct {
	// ModifyTP1 replaces tp1 with the 1:1 risk/reward target computed from
	// the current price and the stop.
	ModifyTP1 bool
}

// Executor turns a validated trade into exchange orders.
type Executor struct {
	exchange ports.ExchangeGateway
	store    ports.TradeStore
	notifier ports.Notifier
	sizer    LeverageCalculator
	logger   ports.Logger
	metrics  *metrics.Metrics
	cfg      ExecutorConfig
}

// NewExecutor creates an order executor.
func NewExecutor(cfg ExecutorConfig) (*Executor, error) {
	if cfg.Exchange == nil || cfg.Store == nil || cfg.Notifier == nil || cfg.Sizer == nil || cfg.Logger == nil {
		return nil, fmt.Errorf("missing required dependencies for Executor: %w", ports.ErrConfigurationError)
	}
	if cfg.MarginPerTrade <= 0 {
		return nil, fmt.Errorf("margin per trade must be positive: %w", ports.ErrConfigurationError)
	}
	if cfg.TrailingRate <= 0 {
		return nil, fmt.Errorf("trailing rate must be positive: %w", ports.ErrConfigurationError)
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
	return &Executor{
		exchange: cfg.Exchange,
		store:    cfg.Store,
		notifier: cfg.Notifier,
		sizer:    cfg.Sizer,
		logger:   cfg.Logger,
		metrics:  cfg.Metrics,
		cfg:      cfg,
	}, nil
}

// ExecuteTrade validates trade against the market, sizes it, and places the
// entry, stop, take-profit and trailing orders. The returned record carries
// every order id that was placed, even when a later child order failed.
func (e *Executor) ExecuteTrade(ctx context.Context, trade domain.Trade, opts ExecuteOptions) (*domain.TradeRecord, error) {
	op := "ExecuteTrade"
	trade.Symbol = domain.NormalizeSymbol(trade.Symbol)
	fields := map[string]interface{}{"symbol": trade.Symbol, "side": trade.Side, "stop": trade.StopPrice}

	price, err := e.precheck(ctx, &trade)
	if err != nil {
		e.logger.Warn(ctx, op+": trade rejected", map[string]interface{}{"symbol": trade.Symbol, "error": err.Error()})
		e.notifyFailure(ctx, &trade, nil, err)
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	fields["price"] = price

	if opts.ModifyTP1 {
		prev := trade.TakeProfits[0]
		trade.TakeProfits[0] = risk.OneToOneTarget(price, trade.StopPrice)
		e.logger.Info(ctx, op+": tp1 adjusted to 1:1", map[string]interface{}{"symbol": trade.Symbol, "from": prev, "to": trade.TakeProfits[0]})
		if err := trade.Validate(); err != nil {
			err = fmt.Errorf("1:1 tp1 %s breaks the take-profit ladder: %w: %w", formatPrice(trade.TakeProfits[0]), ports.ErrInvalidRequest, err)
			e.logger.Warn(ctx, op+": trade rejected", map[string]interface{}{"symbol": trade.Symbol, "error": err.Error()})
			e.notifyFailure(ctx, &trade, nil, err)
			return nil, fmt.Errorf("%s: %w", op, err)
		}
	}

	leverage, err := e.sizer.CalculateOptimalLeverage(ctx, trade.Symbol, price, trade.StopPrice, trade.Side)
	if err != nil {
		e.notifyFailure(ctx, &trade, nil, err)
		return nil, fmt.Errorf("%s: leverage: %w", op, err)
	}
	margin := risk.MarginFor(e.cfg.MarginPerTrade, e.cfg.VolumeMarginBonus, trade.VolumeAddsMargin)
	qty := risk.QuantityFor(margin, leverage, price)
	if qty <= 0 {
		err := fmt.Errorf("margin %s at leverage %d buys nothing at %s: %w",
			formatQty(margin), leverage, formatPrice(price), ports.ErrInvalidRequest)
		e.notifyFailure(ctx, &trade, nil, err)
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	rec := &domain.TradeRecord{
		Trade:    trade,
		Quantity: qty,
		Leverage: leverage,
		Status:   domain.TradeStatusPendingEntry,
	}
	id, err := e.store.CreateTrade(ctx, rec)
	if err != nil {
		e.notifyFailure(ctx, &trade, nil, err)
		return nil, fmt.Errorf("%s: save trade: %w", op, err)
	}
	rec.ID = id
	fields["tradeID"] = id
	fields["leverage"] = leverage
	fields["quantity"] = qty
	e.logger.Info(ctx, op+": trade recorded, placing entry", fields)

	entry, err := e.placeEntry(ctx, rec, price, margin)
	if err != nil {
		e.logger.Error(ctx, err, op+": entry failed", fields)
		e.closeRecord(ctx, rec)
		e.notifyFailure(ctx, &trade, rec, err)
		return rec, fmt.Errorf("%s: entry: %w", op, err)
	}
	rec.EntryOrderID = domain.StringPtr(entry.OrderID)
	if err := e.store.UpdateOrderIDs(ctx, rec); err != nil {
		e.logger.Error(ctx, err, op+": failed to record entry order id", fields)
	}

	positionID := e.confirmPosition(ctx, rec, entry)

	if err := e.placeStop(ctx, rec, positionID); err != nil {
		e.logger.Error(ctx, err, op+": POSITION OPEN WITHOUT STOP", fields)
		e.notifyFailure(ctx, &trade, rec, fmt.Errorf("position open without stop: %w", err))
		return rec, fmt.Errorf("%s: stop: %w", op, err)
	}

	childErr := e.placeTargets(ctx, rec, positionID)
	if err := e.store.UpdateOrderIDs(ctx, rec); err != nil {
		e.logger.Error(ctx, err, op+": failed to record order ids", fields)
	}
	if childErr != nil {
		e.notifyFailure(ctx, &trade, rec, childErr)
		return rec, fmt.Errorf("%s: %w", op, childErr)
	}

	e.logger.Info(ctx, op+": trade executed", map[string]interface{}{
		"tradeID": rec.ID, "symbol": rec.Symbol, "quantity": rec.Quantity, "leverage": rec.Leverage,
	})
	alert := domain.AlertFromTrade(domain.AlertTradeExecuted, &rec.Trade)
	alert.Description = executedDescription(rec)
	notify(ctx, e.notifier, e.logger, alert)
	return rec, nil
}

// precheck rejects trades that cannot be entered right now and returns
// the current price.
func (e *Executor) precheck(ctx context.Context, trade *domain.Trade) (float64, error) {
	if err := trade.Validate(); err != nil {
		return 0, fmt.Errorf("%w: %w", ports.ErrInvalidRequest, err)
	}
	positions, err := e.exchange.GetPositions(ctx, trade.Symbol)
	if err != nil {
		return 0, fmt.Errorf("check existing position: %w", err)
	}
	if hasLivePosition(positions, trade.Side) {
		return 0, fmt.Errorf("%s %s position already open: %w", trade.Symbol, trade.Side, ports.ErrInvalidRequest)
	}
	price, err := e.exchange.GetPrice(ctx, trade.Symbol)
	if err != nil {
		return 0, fmt.Errorf("get price: %w", err)
	}
	if price <= 0 {
		return 0, fmt.Errorf("no price for %s: %w", trade.Symbol, ports.ErrInvalidRequest)
	}
	if (trade.Side == domain.Long && trade.StopPrice >= price) || (trade.Side == domain.Short && trade.StopPrice <= price) {
		return 0, fmt.Errorf("stop %s is on the wrong side of price %s for %s: %w",
			formatPrice(trade.StopPrice), formatPrice(price), trade.Side, ports.ErrInvalidRequest)
	}
	return price, nil
}

type entryState int

const (
	stateSizing entryState = iota
	statePlacing
	stateAdjustLeverage
	stateSuccess
	stateFailed
)

// placeEntry places the market entry. A position value rejection steps
// leverage down and re-sizes; leverage strictly decreases on every retry
// and a rejection at leverage 1 fails, so the loop always ends.
func (e *Executor) placeEntry(ctx context.Context, rec *domain.TradeRecord, price, margin float64) (*ports.OrderResponse, error) {
	op := "placeEntry"
	var (
		resp    *ports.OrderResponse
		lastErr error
	)
	state := statePlacing
	for {
		switch state {
		case stateSizing:
			rec.Quantity = risk.QuantityFor(margin, rec.Leverage, price)
			if rec.Quantity <= 0 {
				lastErr = fmt.Errorf("quantity is zero at leverage %d: %w", rec.Leverage, ports.ErrInvalidRequest)
				state = stateFailed
				continue
			}
			if err := e.store.UpdateLeverage(ctx, rec.ID, rec.Leverage); err != nil {
				e.logger.Error(ctx, err, op+": failed to persist leverage", map[string]interface{}{"tradeID": rec.ID})
			}
			if err := e.store.UpdateQuantity(ctx, rec.ID, rec.Quantity); err != nil {
				e.logger.Error(ctx, err, op+": failed to persist quantity", map[string]interface{}{"tradeID": rec.ID})
			}
			state = statePlacing

		case statePlacing:
			if err := e.exchange.SetLeverage(ctx, rec.Symbol, rec.Leverage, rec.Side.PositionSide()); err != nil {
				lastErr = fmt.Errorf("set leverage %d: %w", rec.Leverage, err)
				state = stateFailed
				continue
			}
			req := domain.OrderRequest{
				Symbol:        rec.Symbol,
				Side:          rec.Side.EntryOrderSide(),
				PositionSide:  rec.Side.PositionSide(),
				Type:          domain.OrderTypeMarket,
				Quantity:      rec.Quantity,
				ClientOrderID: clientOrderID(rec.ID, domain.RoleEntry),
			}
			resp, lastErr = e.place(ctx, rec.ID, domain.RoleEntry, req)
			switch {
			case lastErr == nil:
				state = stateSuccess
			case ClassifyOrderError(lastErr).Class == ErrorClassPositionValueLimit && rec.Leverage > 1:
				state = stateAdjustLeverage
			default:
				state = stateFailed
			}

		case stateAdjustLeverage:
			next := rec.Leverage - leverageStep
			if next < 1 {
				next = 1
			}
			e.logger.Warn(ctx, op+": position value limit, lowering leverage", map[string]interface{}{
				"tradeID": rec.ID, "from": rec.Leverage, "to": next, "error": lastErr.Error(),
			})
			e.metrics.LeverageRetries.Inc()
			rec.Leverage = next
			state = stateSizing

		case stateSuccess:
			return resp, nil

		case stateFailed:
			return nil, lastErr
		}
	}
}

// confirmPosition waits for the entry to settle, adopts the exchange's
// position size when it differs, and returns the position id to bind
// child orders to.
func (e *Executor) confirmPosition(ctx context.Context, rec *domain.TradeRecord, entry *ports.OrderResponse) string {
	op := "confirmPosition"
	positionID := entry.PositionID

	if e.cfg.SettleDelay > 0 {
		select {
		case <-time.After(e.cfg.SettleDelay):
		case <-ctx.Done():
			return positionID
		}
	}

	positions, err := e.exchange.GetPositions(ctx, rec.Symbol)
	if err != nil {
		e.logger.Warn(ctx, op+": could not re-read position, keeping computed quantity", map[string]interface{}{
			"tradeID": rec.ID, "error": err.Error(),
		})
	}
	for _, p := range positions {
		if p == nil || !p.IsOpen() || p.Side != rec.Side {
			continue
		}
		if q := p.Quantity(); q != rec.Quantity {
			e.logger.Info(ctx, op+": adopting exchange position size", map[string]interface{}{
				"tradeID": rec.ID, "computed": rec.Quantity, "exchange": q,
			})
			rec.Quantity = q
			if err := e.store.UpdateQuantity(ctx, rec.ID, q); err != nil {
				e.logger.Error(ctx, err, op+": failed to persist quantity", map[string]interface{}{"tradeID": rec.ID})
			}
		}
		if p.PositionID != "" {
			positionID = p.PositionID
		}
		break
	}

	if positionID != "" {
		rec.PositionID = domain.StringPtr(positionID)
		if err := e.store.UpdatePositionID(ctx, rec.ID, positionID); err != nil {
			e.logger.Error(ctx, err, op+": failed to persist position id", map[string]interface{}{"tradeID": rec.ID})
		}
	}
	return positionID
}

func (e *Executor) placeStop(ctx context.Context, rec *domain.TradeRecord, positionID string) error {
	req := closeRequest(rec.Symbol, rec.Side, e.cfg.StopOrderType, rec.Quantity)
	req.StopPrice = rec.StopPrice
	req.PositionID = positionID
	req.ClientOrderID = clientOrderID(rec.ID, domain.RoleStop)

	resp, err := e.place(ctx, rec.ID, domain.RoleStop, req)
	if err != nil {
		return err
	}
	rec.StopOrderID = domain.StringPtr(resp.OrderID)
	if err := e.store.UpdateOrderIDs(ctx, rec); err != nil {
		e.logger.Error(ctx, err, "placeStop: failed to record stop order id", map[string]interface{}{"tradeID": rec.ID})
	}
	if err := rec.Transition(domain.TradeStatusOpen); err != nil {
		return err
	}
	if err := e.store.UpdateStatus(ctx, rec.ID, rec.Status); err != nil {
		e.logger.Error(ctx, err, "placeStop: failed to mark trade open", map[string]interface{}{"tradeID": rec.ID})
	}
	return nil
}

// placeTargets places the take-profit ladder and the trailing stop for the
// remainder. Failures are collected so one rejected level does not leave
// the rest unplaced.
func (e *Executor) placeTargets(ctx context.Context, rec *domain.TradeRecord, positionID string) error {
	n := rec.TakeProfitCount()
	levels, trailingQty := risk.SplitTakeProfits(rec.Quantity, n)

	var errs []error
	for i, qty := range levels {
		if qty <= 0 {
			e.logger.Warn(ctx, "placeTargets: take profit rounds to zero, skipped", map[string]interface{}{
				"tradeID": rec.ID, "level": i + 1,
			})
			continue
		}
		role := domain.TakeProfitRole(i)
		req := closeRequest(rec.Symbol, rec.Side, domain.OrderTypeTakeProfitMarket, qty)
		req.StopPrice = rec.TakeProfits[i]
		req.PositionID = positionID
		req.ClientOrderID = clientOrderID(rec.ID, role)

		resp, err := e.place(ctx, rec.ID, role, req)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", role, err))
			continue
		}
		rec.TakeProfitOrderIDs[i] = domain.StringPtr(resp.OrderID)
	}

	if trailingQty > 0 {
		activation := rec.EntryPrice
		if n > 0 {
			activation = rec.TakeProfits[n-1]
		}
		if err := e.placeTrailing(ctx, rec, trailingQty, activation, positionID); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", domain.RoleTrailing, err))
		}
	}
	return errors.Join(errs...)
}

// placeTrailing places the trailing stop. When the exchange rejects the
// distance as too wide it is retried once at 95% of the stated maximum.
func (e *Executor) placeTrailing(ctx context.Context, rec *domain.TradeRecord, qty, activation float64, positionID string) error {
	req := closeRequest(rec.Symbol, rec.Side, domain.OrderTypeTrailingStopMarket, qty)
	req.ActivationPrice = activation
	req.PriceRate = e.cfg.TrailingRate
	req.PositionID = positionID
	req.ClientOrderID = clientOrderID(rec.ID, domain.RoleTrailing)

	resp, err := e.place(ctx, rec.ID, domain.RoleTrailing, req)
	if err != nil {
		info := ClassifyOrderError(err)
		if info.Class != ErrorClassTrailingDistance || info.MaxDistance <= 0 {
			return err
		}
		req.PriceRate = info.MaxDistance * trailingRetryFactor
		req.ClientOrderID = clientOrderID(rec.ID, domain.RoleTrailing)
		e.logger.Warn(ctx, "placeTrailing: distance too wide, retrying", map[string]interface{}{
			"tradeID": rec.ID, "maxDistance": info.MaxDistance, "rate": req.PriceRate,
		})
		resp, err = e.place(ctx, rec.ID, domain.RoleTrailing, req)
		if err != nil {
			return err
		}
	}
	rec.TrailingOrderID = domain.StringPtr(resp.OrderID)
	return nil
}

// place sends one order and appends the outcome to the trade's order log.
func (e *Executor) place(ctx context.Context, tradeID int64, role domain.OrderRole, req domain.OrderRequest) (*ports.OrderResponse, error) {
	resp, err := e.exchange.PlaceOrder(ctx, req)
	e.metrics.OrdersPlaced.WithLabelValues(string(req.Type), metrics.Result(err)).Inc()

	entry := &domain.OrderLogEntry{
		TradeID:   tradeID,
		Role:      role,
		Error:     errText(err),
		CreatedAt: time.Now().UTC(),
	}
	if b, jerr := json.Marshal(req); jerr == nil {
		entry.Request = string(b)
	}
	if resp != nil {
		entry.Response = resp.Raw
	}
	if lerr := e.store.AppendOrderLog(ctx, entry); lerr != nil {
		e.logger.Error(ctx, lerr, "place: failed to append order log", map[string]interface{}{"tradeID": tradeID, "role": role})
	}

	if err != nil {
		e.logger.Error(ctx, err, "place: order rejected", map[string]interface{}{
			"tradeID": tradeID, "role": role, "type": req.Type, "quantity": req.Quantity, "stopPrice": req.StopPrice,
		})
		return nil, err
	}
	return resp, nil
}

func (e *Executor) closeRecord(ctx context.Context, rec *domain.TradeRecord) {
	if err := rec.Transition(domain.TradeStatusClosed); err != nil {
		return
	}
	if err := e.store.UpdateStatus(ctx, rec.ID, rec.Status); err != nil {
		e.logger.Error(ctx, err, "closeRecord: failed to close trade", map[string]interface{}{"tradeID": rec.ID})
	}
}

func (e *Executor) notifyFailure(ctx context.Context, trade *domain.Trade, rec *domain.TradeRecord, err error) {
	alert := domain.AlertFromTrade(domain.AlertTradeFailed, trade)
	alert.Error = err.Error()
	alert.Warning = true
	alert.Validation = domain.Validation{IsValid: false, Message: err.Error()}
	if rec != nil {
		alert.Description = executedDescription(rec)
	} else {
		alert.Description = trade.Description
	}
	notify(ctx, e.notifier, e.logger, alert)
}

func executedDescription(rec *domain.TradeRecord) string {
	d := fmt.Sprintf("trade %d: qty %s at %dx", rec.ID, formatQty(rec.Quantity), rec.Leverage)
	if rec.Description != "" {
		d += "\n" + rec.Description
	}
	return d
}
