package ports

import (
	"context"

	"futuresMegaBot/internal/domain"
)

// TradeStore defines the durable record of trades, their order ids and
// per-order execution details.
type TradeStore interface {
	// CreateTrade saves a new trade record and returns its assigned ID.
	CreateTrade(ctx context.Context, rec *domain.TradeRecord) (int64, error)
	// GetTrade retrieves a trade by ID. Returns ErrNotFound when missing.
	GetTrade(ctx context.Context, id int64) (*domain.TradeRecord, error)
	// AllTrades retrieves every trade, ordered by ID ascending.
	AllTrades(ctx context.Context) ([]*domain.TradeRecord, error)
	// OpenTrades retrieves trades that are not CLOSED.
	OpenTrades(ctx context.Context) ([]*domain.TradeRecord, error)

	UpdateStatus(ctx context.Context, id int64, status domain.TradeStatus) error
	UpdateLeverage(ctx context.Context, id int64, leverage int) error
	UpdateQuantity(ctx context.Context, id int64, quantity float64) error
	UpdatePositionID(ctx context.Context, id int64, positionID string) error
	// UpdateOrderIDs persists every order id field of rec.
	UpdateOrderIDs(ctx context.Context, rec *domain.TradeRecord) error

	// AppendExecution stores the terminal state of one order.
	AppendExecution(ctx context.Context, exec *domain.OrderExecution) error
	// HasExecution reports whether an execution was already stored for orderID.
	HasExecution(ctx context.Context, orderID string) (bool, error)
	// ExecutionsByTrade returns the stored executions of a trade.
	ExecutionsByTrade(ctx context.Context, tradeID int64) ([]*domain.OrderExecution, error)
	// AppendOrderLog stores a raw order response line.
	AppendOrderLog(ctx context.Context, entry *domain.OrderLogEntry) error
}
