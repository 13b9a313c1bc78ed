package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"futuresMegaBot/internal/domain"
	"futuresMegaBot/internal/metrics"
	"futuresMegaBot/internal/ports"
	"futuresMegaBot/internal/risk"
)

// BreakevenEvaluator re-runs the breakeven decision for a position.
type BreakevenEvaluator interface {
	Evaluate(ctx context.Context, mp *MonitoredPosition, price float64) (bool, error)
}

// ProcessorConfig holds the trade processor's collaborators and settings.
type ProcessorConfig struct {
	Exchange         ports.ExchangeGateway
	Store            ports.TradeStore
	Notifier         ports.Notifier
	Breakeven        BreakevenEvaluator
	Logger           ports.Logger
	Metrics          *metrics.Metrics
	MarketFeeRate    float64
	LimitFeeRate     float64
	OrderIDMinDigits int
	OrderStatusRPS   float64 // Zero disables pacing
	// PendingGrace is how long a trade may sit in PENDING_ENTRY with no
	// position before it is closed as an orphan.
	PendingGrace time.Duration
}

// Binance futures order ids are 8 to 19 digits long; shorter values are
// placeholders written before an order was placed.
const defaultOrderIDMinDigits = 8

const defaultPendingGrace = 5 * time.Minute

// Processor records order outcomes of open trades and closes trades that
// are finished.
type Processor struct {
	exchange  ports.ExchangeGateway
	store     ports.TradeStore
	notifier  ports.Notifier
	breakeven BreakevenEvaluator
	logger    ports.Logger
	metrics   *metrics.Metrics
	limiter   *rate.Limiter
	cfg       ProcessorConfig
}

// NewProcessor creates a trade processor.
func NewProcessor(cfg ProcessorConfig) (*Processor, error) {
	if cfg.Exchange == nil || cfg.Store == nil || cfg.Notifier == nil || cfg.Breakeven == nil || cfg.Logger == nil {
		return nil, fmt.Errorf("missing required dependencies for Processor: %w", ports.ErrConfigurationError)
	}
	if cfg.OrderIDMinDigits <= 0 {
		cfg.OrderIDMinDigits = defaultOrderIDMinDigits
	}
	if cfg.PendingGrace <= 0 {
		cfg.PendingGrace = defaultPendingGrace
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.New(nil)
	}
	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.OrderStatusRPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.OrderStatusRPS), 1)
	}
	return &Processor{
		exchange:  cfg.Exchange,
		store:     cfg.Store,
		notifier:  cfg.Notifier,
		breakeven: cfg.Breakeven,
		logger:    cfg.Logger,
		metrics:   cfg.Metrics,
		limiter:   limiter,
		cfg:       cfg,
	}, nil
}

// ProcessTrades runs one pass over the unclosed trades. monitored is the
// reconciler's current snapshot; while it is non-empty, trades with no
// monitored position are treated as orphans and closed. A PENDING_ENTRY
// trade is only closed once its entry was placed and PendingGrace has
// passed. Per-trade failures are notified and do not stop the pass.
func (p *Processor) ProcessTrades(ctx context.Context, monitored map[string]*MonitoredPosition) error {
	op := "ProcessTrades"
	trades, err := p.store.OpenTrades(ctx)
	if err != nil {
		return fmt.Errorf("%s: load open trades: %w", op, err)
	}

	for _, t := range trades {
		if err := ctx.Err(); err != nil {
			return err
		}
		var err error
		switch {
		case t.IsOpen():
			err = p.processTrade(ctx, t, monitored)
		case p.stalePending(t, monitored):
			err = p.closeOrphanTrade(ctx, t)
		default:
			continue
		}
		if err != nil {
			p.logger.Error(ctx, err, op+": failed to process trade", map[string]interface{}{"tradeID": t.ID, "symbol": t.Symbol})
			alert := domain.AlertFromTrade(domain.AlertProcessingError, &t.Trade)
			alert.Error = err.Error()
			alert.Description = fmt.Sprintf("trade %d", t.ID)
			notify(ctx, p.notifier, p.logger, alert)
		}
	}
	return nil
}

func (p *Processor) processTrade(ctx context.Context, t *domain.TradeRecord, monitored map[string]*MonitoredPosition) error {
	mp := monitored[domain.PositionKey(t.Symbol, t.Side)]
	if len(monitored) > 0 && mp == nil {
		return p.closeOrphanTrade(ctx, t)
	}

	entryPrice, err := p.entryFill(ctx, t)
	if err != nil {
		return err
	}

	tp1Filled := false
	for _, ref := range t.OrderRefs() {
		if !p.looksLikeOrderID(ref.OrderID) {
			continue
		}
		done, err := p.store.HasExecution(ctx, ref.OrderID)
		if err != nil {
			return fmt.Errorf("check execution %s: %w", ref.OrderID, err)
		}
		if done {
			continue
		}
		if err := p.limiter.Wait(ctx); err != nil {
			return err
		}
		p.metrics.OrderStatusRequests.Inc()
		report, err := p.exchange.GetOrderStatus(ctx, t.Symbol, ref.OrderID)
		if err != nil {
			return fmt.Errorf("status of %s order %s: %w", ref.Role, ref.OrderID, err)
		}
		// One execution per order, written at its final status, so a partial
		// fill is recorded later with its full executed quantity.
		if !report.Status.IsTerminal() {
			if report.Status == domain.OrderStatusPartiallyFilled {
				p.logger.Debug(ctx, "processTrade: order partially filled", map[string]interface{}{
					"tradeID": t.ID, "role": ref.Role, "orderID": ref.OrderID, "executedQty": report.ExecutedQty,
				})
			}
			continue
		}

		exec := p.execution(t, ref, report, entryPrice)
		if err := p.store.AppendExecution(ctx, exec); err != nil && !errors.Is(err, ports.ErrDuplicateEntry) {
			return fmt.Errorf("record execution %s: %w", ref.OrderID, err)
		}
		p.logger.Info(ctx, "processTrade: order finished", map[string]interface{}{
			"tradeID": t.ID, "role": ref.Role, "orderID": ref.OrderID, "status": report.Status,
			"executedQty": report.ExecutedQty, "avgPrice": report.AvgPrice, "pnl": exec.PNL, "fee": exec.Fee,
		})
		if ref.Role == domain.RoleEntry && report.AvgPrice > 0 {
			entryPrice = report.AvgPrice
		}

		if report.Status != domain.OrderStatusFilled || !t.IsOpen() {
			continue
		}
		switch ref.Role {
		case domain.RoleStop, domain.RoleTrailing:
			if err := p.closeTrade(ctx, t, string(ref.Role), exec); err != nil {
				return err
			}
		case domain.TakeProfitRole(0):
			tp1Filled = true
		}
	}

	if tp1Filled && mp != nil && t.IsOpen() {
		price, err := p.exchange.GetPrice(ctx, t.Symbol)
		if err != nil {
			return fmt.Errorf("price for breakeven after tp1: %w", err)
		}
		if _, err := p.breakeven.Evaluate(ctx, mp, price); err != nil {
			return fmt.Errorf("breakeven after tp1: %w", err)
		}
	}
	return nil
}

// entryFill returns the recorded average entry fill, falling back to the
// trade's planned entry.
func (p *Processor) entryFill(ctx context.Context, t *domain.TradeRecord) (float64, error) {
	execs, err := p.store.ExecutionsByTrade(ctx, t.ID)
	if err != nil {
		return 0, fmt.Errorf("load executions: %w", err)
	}
	for _, e := range execs {
		if e.Role == domain.RoleEntry && e.AvgPrice > 0 {
			return e.AvgPrice, nil
		}
	}
	return t.EntryPrice, nil
}

func (p *Processor) execution(t *domain.TradeRecord, ref domain.OrderRef, r *domain.OrderStatusReport, entryPrice float64) *domain.OrderExecution {
	typ := r.Type
	if typ == "" {
		typ = defaultTypeFor(ref.Role)
	}
	exec := &domain.OrderExecution{
		TradeID:     t.ID,
		OrderID:     ref.OrderID,
		Role:        ref.Role,
		Type:        typ,
		Status:      r.Status,
		ExecutedQty: r.ExecutedQty,
		AvgPrice:    r.AvgPrice,
		CreateTime:  r.CreateTime,
		UpdateTime:  r.UpdateTime,
	}
	if r.ExecutedQty <= 0 || r.AvgPrice <= 0 {
		return exec
	}
	feeRate := risk.FeeRateFor(typ, p.cfg.MarketFeeRate, p.cfg.LimitFeeRate)
	exec.Fee = risk.Fee(r.ExecutedQty, r.AvgPrice, t.Leverage, feeRate)
	if ref.Role != domain.RoleEntry && entryPrice > 0 {
		exec.PNL = risk.PnL(t.Side, entryPrice, r.AvgPrice, r.ExecutedQty, t.Leverage)
	}
	return exec
}

func defaultTypeFor(role domain.OrderRole) domain.OrderType {
	switch role {
	case domain.RoleEntry:
		return domain.OrderTypeMarket
	case domain.RoleStop:
		return domain.OrderTypeStopMarket
	case domain.RoleTrailing:
		return domain.OrderTypeTrailingStopMarket
	}
	return domain.OrderTypeTakeProfitMarket
}

func (p *Processor) closeTrade(ctx context.Context, t *domain.TradeRecord, reason string, exec *domain.OrderExecution) error {
	if err := t.Transition(domain.TradeStatusClosed); err != nil {
		return err
	}
	if err := p.store.UpdateStatus(ctx, t.ID, t.Status); err != nil {
		return fmt.Errorf("close trade: %w", err)
	}
	p.metrics.TradesClosed.WithLabelValues(reason).Inc()
	p.logger.Info(ctx, "closeTrade: trade closed", map[string]interface{}{"tradeID": t.ID, "reason": reason})

	alert := domain.AlertFromTrade(domain.AlertTradeClosed, &t.Trade)
	alert.Description = fmt.Sprintf("trade %d closed by %s", t.ID, reason)
	if exec != nil {
		alert.Description += fmt.Sprintf(" at %s, pnl %s", formatPrice(exec.AvgPrice), formatPrice(exec.PNL))
	}
	notify(ctx, p.notifier, p.logger, alert)
	return nil
}

// closeOrphanTrade cancels whatever is left of a trade whose position is
// gone and marks it closed.
func (p *Processor) closeOrphanTrade(ctx context.Context, t *domain.TradeRecord) error {
	op := "closeOrphanTrade"
	for _, ref := range t.OrderRefs() {
		if ref.Role == domain.RoleEntry || !p.looksLikeOrderID(ref.OrderID) {
			continue
		}
		err := p.exchange.CancelOrder(ctx, t.Symbol, ref.OrderID)
		if err == nil {
			p.logger.Info(ctx, op+": cancelled order", map[string]interface{}{"tradeID": t.ID, "role": ref.Role, "orderID": ref.OrderID})
			continue
		}
		// Filled or already cancelled orders are expected here.
		p.logger.Debug(ctx, op+": order not cancelled", map[string]interface{}{
			"tradeID": t.ID, "role": ref.Role, "orderID": ref.OrderID, "error": err.Error(),
		})
	}
	return p.closeTrade(ctx, t, "orphan", nil)
}

// stalePending reports whether t entered the market but never got a stop
// and its position has since gone.
func (p *Processor) stalePending(t *domain.TradeRecord, monitored map[string]*MonitoredPosition) bool {
	if t.Status != domain.TradeStatusPendingEntry || t.EntryOrderID == nil || !p.looksLikeOrderID(*t.EntryOrderID) {
		return false
	}
	if len(monitored) == 0 || monitored[domain.PositionKey(t.Symbol, t.Side)] != nil {
		return false
	}
	return time.Since(t.CreatedAt) >= p.cfg.PendingGrace
}

func (p *Processor) looksLikeOrderID(id string) bool {
	if len(id) < p.cfg.OrderIDMinDigits {
		return false
	}
	for _, r := range id {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
