package domain

import "time"

// OrderExecution is the persisted outcome of a trade's order once it
// reached a terminal state.
type OrderExecution struct {
	ID          int64
	TradeID     int64
	OrderID     string
	Role        OrderRole
	Type        OrderType
	Status      OrderStatus
	ExecutedQty float64
	AvgPrice    float64
	PNL         float64
	Fee         float64
	CreateTime  time.Time
	UpdateTime  time.Time
}

// OrderLogEntry is a raw order response kept for audit.
type OrderLogEntry struct {
	TradeID   int64
	Role      OrderRole
	Request   string
	Response  string
	Error     string
	CreatedAt time.Time
}
