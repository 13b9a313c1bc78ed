package domain

import (
	"errors"
	"fmt"
	"time"
)

// MaxTakeProfits is the number of take-profit levels a trade can carry.
const MaxTakeProfits = 6

// ErrInvalidTransition is returned when a trade status change is not allowed.
var ErrInvalidTransition = errors.New("invalid trade status transition")

// Trade is a validated trade idea submitted for execution.
type Trade struct {
	Symbol           string
	Side             Side
	EntryPrice       float64
	StopPrice        float64
	TakeProfits      [MaxTakeProfits]float64 // 0 = unset
	VolumeRequired   bool
	VolumeAddsMargin bool
	Description      string
}

// TakeProfitCount returns the number of leading take-profit levels that are set.
func (t *Trade) TakeProfitCount() int {
	n := 0
	for _, tp := range t.TakeProfits {
		if tp <= 0 {
			break
		}
		n++
	}
	return n
}

// Validate checks the static shape of a trade. Market-dependent checks
// (stop versus current price, existing positions) happen at execution.
func (t *Trade) Validate() error {
	if t.Symbol == "" {
		return errors.New("symbol is required")
	}
	if !t.Side.IsValid() {
		return fmt.Errorf("side must be LONG or SHORT, got %q", t.Side)
	}
	if t.StopPrice <= 0 {
		return errors.New("stop price must be positive")
	}
	if t.TakeProfits[0] <= 0 {
		return errors.New("tp1 is required")
	}
	n := t.TakeProfitCount()
	for i := n; i < MaxTakeProfits; i++ {
		if t.TakeProfits[i] > 0 {
			return fmt.Errorf("tp%d is set but tp%d is not", i+1, n+1)
		}
	}
	for i := 1; i < n; i++ {
		prev, cur := t.TakeProfits[i-1], t.TakeProfits[i]
		if (t.Side == Long && cur <= prev) || (t.Side == Short && cur >= prev) {
			return fmt.Errorf("tp%d must be further from entry than tp%d", i+1, i)
		}
	}
	return nil
}

// TradeStatus is the lifecycle state of a trade record.
type TradeStatus string

const (
	TradeStatusPendingEntry TradeStatus = "PENDING_ENTRY"
	TradeStatusOpen         TradeStatus = "OPEN"
	TradeStatusBreakeven    TradeStatus = "BREAKEVEN" // Open, stop already moved to breakeven
	TradeStatusClosed       TradeStatus = "CLOSED"
)

var allowedTransitions = map[TradeStatus][]TradeStatus{
	TradeStatusPendingEntry: {TradeStatusOpen, TradeStatusClosed},
	TradeStatusOpen:         {TradeStatusBreakeven, TradeStatusClosed},
	TradeStatusBreakeven:    {TradeStatusClosed},
}

// CanTransition reports whether s may move to next.
func (s TradeStatus) CanTransition(next TradeStatus) bool {
	for _, allowed := range allowedTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// OrderRole names the part an order plays in a trade.
type OrderRole string

const (
	RoleEntry    OrderRole = "ENTRY"
	RoleStop     OrderRole = "STOP"
	RoleTrailing OrderRole = "TRAILING"
)

// TakeProfitRole returns the role for take-profit level i (0-based).
func TakeProfitRole(i int) OrderRole {
	return OrderRole(fmt.Sprintf("TP%d", i+1))
}

// TradeRecord is a trade that has been (or is being) executed.
type TradeRecord struct {
	Trade
	ID                 int64
	Quantity           float64
	Leverage           int
	Status             TradeStatus
	EntryOrderID       *string
	StopOrderID        *string
	TakeProfitOrderIDs [MaxTakeProfits]*string
	TrailingOrderID    *string
	PositionID         *string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// IsOpen reports whether the trade still has exposure on the exchange.
func (r *TradeRecord) IsOpen() bool {
	return r.Status == TradeStatusOpen || r.Status == TradeStatusBreakeven
}

// Transition moves the record to next, enforcing the lifecycle.
func (r *TradeRecord) Transition(next TradeStatus) error {
	if !r.Status.CanTransition(next) {
		return fmt.Errorf("trade %d: %s -> %s: %w", r.ID, r.Status, next, ErrInvalidTransition)
	}
	r.Status = next
	return nil
}

// OrderRef pairs an order id with its role in the trade.
type OrderRef struct {
	Role    OrderRole
	OrderID string
}

// OrderRefs lists every known order id of the trade.
func (r *TradeRecord) OrderRefs() []OrderRef {
	refs := make([]OrderRef, 0, MaxTakeProfits+3)
	add := func(role OrderRole, id *string) {
		if id != nil && *id != "" {
			refs = append(refs, OrderRef{Role: role, OrderID: *id})
		}
	}
	add(RoleEntry, r.EntryOrderID)
	add(RoleStop, r.StopOrderID)
	for i, id := range r.TakeProfitOrderIDs {
		add(TakeProfitRole(i), id)
	}
	add(RoleTrailing, r.TrailingOrderID)
	return refs
}

// StringPtr returns a pointer to s.
func StringPtr(s string) *string {
	return &s
}
