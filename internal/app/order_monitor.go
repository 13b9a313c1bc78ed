package app

import (
	"futuresMegaBot/internal/domain"
)

// OrderMonitor indexes the open orders of one reconciliation cycle by
// position key. It is rebuilt from scratch every cycle.
type OrderMonitor struct {
	byKey map[string][]*domain.Order
}

// NewOrderMonitor indexes the NEW and PARTIALLY_FILLED orders in orders.
func NewOrderMonitor(orders []*domain.Order) *OrderMonitor {
	m := &OrderMonitor{byKey: make(map[string][]*domain.Order)}
	for _, o := range orders {
		if o == nil || !o.Status.IsOpen() {
			continue
		}
		key := domain.PositionKey(o.Symbol, o.ClosesSide())
		m.byKey[key] = append(m.byKey[key], o)
	}
	return m
}

// Orders returns every open order that reduces the position at key.
func (m *OrderMonitor) Orders(key string) []*domain.Order {
	return m.byKey[key]
}

// StopOrder returns the live stop-type order for key, if any.
func (m *OrderMonitor) StopOrder(key string) *domain.Order {
	for _, o := range m.byKey[key] {
		if o.Type.IsStop() {
			return o
		}
	}
	return nil
}

// Keys lists the position keys that have open orders.
func (m *OrderMonitor) Keys() []string {
	keys := make([]string, 0, len(m.byKey))
	for k := range m.byKey {
		keys = append(keys, k)
	}
	return keys
}

// All returns every indexed order.
func (m *OrderMonitor) All() []*domain.Order {
	var all []*domain.Order
	for _, orders := range m.byKey {
		all = append(all, orders...)
	}
	return all
}
