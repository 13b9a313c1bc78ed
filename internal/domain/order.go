package domain

import "time"

// OrderType is the exchange order type.
type OrderType string

const (
	OrderTypeMarket             OrderType = "MARKET"
	OrderTypeLimit              OrderType = "LIMIT"
	OrderTypeStop               OrderType = "STOP"
	OrderTypeStopMarket         OrderType = "STOP_MARKET"
	OrderTypeTakeProfit         OrderType = "TAKE_PROFIT"
	OrderTypeTakeProfitMarket   OrderType = "TAKE_PROFIT_MARKET"
	OrderTypeTrailingStopMarket OrderType = "TRAILING_STOP_MARKET"
)

// IsStop reports whether t is a protective stop type.
func (t OrderType) IsStop() bool {
	return t == OrderTypeStop || t == OrderTypeStopMarket
}

// IsMarketExecution reports whether the order executes as a taker
// (market-priced) order once triggered.
func (t OrderType) IsMarketExecution() bool {
	switch t {
	case OrderTypeMarket, OrderTypeStopMarket, OrderTypeTakeProfitMarket, OrderTypeTrailingStopMarket:
		return true
	}
	return false
}

// OrderStatus is the lifecycle state reported by the exchange.
type OrderStatus string

const (
	OrderStatusNew             OrderStatus = "NEW"
	OrderStatusPartiallyFilled OrderStatus = "PARTIALLY_FILLED"
	OrderStatusFilled          OrderStatus = "FILLED"
	OrderStatusCanceled        OrderStatus = "CANCELED"
	OrderStatusRejected        OrderStatus = "REJECTED"
	OrderStatusExpired         OrderStatus = "EXPIRED"
)

// IsOpen reports whether the order can still execute.
func (s OrderStatus) IsOpen() bool {
	return s == OrderStatusNew || s == OrderStatusPartiallyFilled
}

// IsTerminal reports whether the order has reached a final state.
func (s OrderStatus) IsTerminal() bool {
	switch s {
	case OrderStatusFilled, OrderStatusCanceled, OrderStatusRejected, OrderStatusExpired:
		return true
	}
	return false
}

// Order is a snapshot of an exchange order.
type Order struct {
	ID              string
	ClientOrderID   string
	Symbol          string
	Side            OrderSide
	PositionSide    PositionSide
	Type            OrderType
	Price           float64
	StopPrice       float64
	ActivationPrice float64 // Trailing stops only
	PriceRate       float64 // Trailing distance as a fraction of price
	Quantity        float64
	ExecutedQty     float64
	AvgPrice        float64
	Status          OrderStatus
	ReduceOnly      bool
	CreateTime      time.Time
	UpdateTime      time.Time
}

// ClosesSide returns the position side this order reduces. For one-way
// mode orders the closing side is inferred from the order side.
func (o *Order) ClosesSide() Side {
	switch o.PositionSide {
	case PositionSideLong:
		return Long
	case PositionSideShort:
		return Short
	}
	if o.Side == Buy {
		return Short
	}
	return Long
}

// OrderRequest describes an order to be placed.
type OrderRequest struct {
	Symbol          string
	Side            OrderSide
	PositionSide    PositionSide
	Type            OrderType
	Price           float64
	StopPrice       float64
	ActivationPrice float64
	PriceRate       float64
	Quantity        float64
	ClientOrderID   string
	ReduceOnly      bool
	PositionID      string // Binds the order to a position instance when the exchange supports it
}

// OrderStatusReport is the execution state of a single order.
type OrderStatusReport struct {
	OrderID     string
	Symbol      string
	Type        OrderType
	Status      OrderStatus
	ExecutedQty float64
	AvgPrice    float64
	CreateTime  time.Time
	UpdateTime  time.Time
}
