package ports

import (
	"context"
	"time"

	"futuresMegaBot/internal/domain"
)

// OrderResponse represents the essential details returned after placing an order.
type OrderResponse struct {
	OrderID       string    // Exchange's order ID
	Symbol        string    // Symbol for the order
	ClientOrderID string    // User-defined order ID
	PositionID    string    // Empty when the exchange does not report position ids
	AvgPrice      float64   // Average filled price
	OrigQuantity  float64   // Original quantity requested
	ExecutedQty   float64   // Quantity filled
	Status        string    // Order status (e.g., NEW, FILLED, CANCELED)
	Type          string    // Order type (e.g., MARKET, STOP_MARKET)
	Side          string    // Order side (BUY, SELL)
	Raw           string    // Raw response body, kept for the order log
	Timestamp     time.Time // Time the order response was generated
}

// ExchangeGateway is the subset of the futures REST API the engine consumes.
// Application rejections are returned as *APIError.
type ExchangeGateway interface {
	// GetPositions returns open positions. An empty symbol means all symbols.
	GetPositions(ctx context.Context, symbol string) ([]*domain.Position, error)

	// GetOpenOrders returns every NEW or PARTIALLY_FILLED order on the account.
	GetOpenOrders(ctx context.Context) ([]*domain.Order, error)

	// PlaceOrder places a single order.
	PlaceOrder(ctx context.Context, req domain.OrderRequest) (*OrderResponse, error)

	// CancelOrder cancels an existing open order by its ID.
	CancelOrder(ctx context.Context, symbol, orderID string) error

	// CancelReplaceOrder cancels cancelOrderID and places req in its place.
	CancelReplaceOrder(ctx context.Context, req domain.OrderRequest, cancelOrderID string) (*OrderResponse, error)

	// SetLeverage sets the leverage of a symbol for the given position side.
	SetLeverage(ctx context.Context, symbol string, leverage int, positionSide domain.PositionSide) error

	// GetOrderStatus returns the execution state of one order.
	GetOrderStatus(ctx context.Context, symbol, orderID string) (*domain.OrderStatusReport, error)

	// GetMaxLeverage returns the maximum leverage allowed for long and short positions.
	GetMaxLeverage(ctx context.Context, symbol string) (long, short int, err error)

	// GetPrice retrieves the last traded price for a symbol.
	GetPrice(ctx context.Context, symbol string) (float64, error)

	// Ping checks the connectivity to the exchange API.
	Ping(ctx context.Context) error

	// SetServerTime synchronizes the client's time with the server's time.
	SetServerTime(ctx context.Context) error
}
