package app

import (
	"sync"

	"futuresMegaBot/internal/domain"
	"futuresMegaBot/internal/ports"
)

// MonitoredPosition is the reconciler's view of one live position.
// All fields are guarded by mu; use Snapshot for a consistent read.
type MonitoredPosition struct {
	Key string

	mu               sync.Mutex
	position         domain.Position
	tradeID          int64 // 0 when no trade matched
	stopOrder        *domain.Order
	initialStopPrice float64
	targetStopPrice  float64
	entryPrice       float64
	leverage         int
	lastPrice        float64
	stream           ports.PriceStream
	adjusting        bool // a stop replace is in flight
}

// PositionState is a point-in-time copy of a MonitoredPosition.
type PositionState struct {
	Key              string
	Position         domain.Position
	TradeID          int64
	StopOrder        *domain.Order
	InitialStopPrice float64
	TargetStopPrice  float64
	EntryPrice       float64
	Leverage         int
	LastPrice        float64
}

func newMonitoredPosition(pos *domain.Position) *MonitoredPosition {
	return &MonitoredPosition{
		Key:        pos.Key(),
		position:   *pos,
		entryPrice: pos.EntryPrice,
		leverage:   pos.Leverage,
	}
}

// Snapshot returns a copy of the current state.
func (m *MonitoredPosition) Snapshot() PositionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	st := PositionState{
		Key:              m.Key,
		Position:         m.position,
		TradeID:          m.tradeID,
		InitialStopPrice: m.initialStopPrice,
		TargetStopPrice:  m.targetStopPrice,
		EntryPrice:       m.entryPrice,
		Leverage:         m.leverage,
		LastPrice:        m.lastPrice,
	}
	if m.stopOrder != nil {
		o := *m.stopOrder
		st.StopOrder = &o
	}
	return st
}

// TradeID returns the matched trade id, 0 when none matched.
func (m *MonitoredPosition) TradeID() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tradeID
}

func (m *MonitoredPosition) setLastPrice(price float64) {
	m.mu.Lock()
	m.lastPrice = price
	m.mu.Unlock()
}

// beginAdjust marks a stop replace as in flight. It returns false when one
// already is.
func (m *MonitoredPosition) beginAdjust() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.adjusting {
		return false
	}
	m.adjusting = true
	return true
}

func (m *MonitoredPosition) endAdjust() {
	m.mu.Lock()
	m.adjusting = false
	m.mu.Unlock()
}

func (m *MonitoredPosition) disconnect() {
	m.mu.Lock()
	s := m.stream
	m.stream = nil
	m.mu.Unlock()
	if s != nil {
		s.Close()
	}
}
