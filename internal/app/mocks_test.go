package app

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"futuresMegaBot/internal/domain"
	"futuresMegaBot/internal/ports"
)

// Mock implementations
type mockLogger struct {
	mu        sync.Mutex
	debugMsgs []string
	infoMsgs  []string
	warnMsgs  []string
	errorMsgs []string
}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.debugMsgs = append(m.debugMsgs, msg)
}

func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.infoMsgs = append(m.infoMsgs, msg)
}

func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.warnMsgs = append(m.warnMsgs, msg)
}

func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errorMsgs = append(m.errorMsgs, msg)
}

type replaceCall struct {
	req      domain.OrderRequest
	cancelID string
}

type mockExchange struct {
	mu sync.Mutex

	positions         []*domain.Position
	positionsBySymbol map[string][]*domain.Position // Overrides symbol-scoped lookups
	positionsErr      error
	openOrders        []*domain.Order
	openOrdersErr     error
	price             float64
	priceErr          error
	orderStatus       map[string]*domain.OrderStatusReport
	orderStatusErr    error
	placeFn           func(req domain.OrderRequest) (*ports.OrderResponse, error)
	cancelErr         map[string]error
	replaceErr        error
	leverageErr       error
	serverTimeErr     error
	pingErr           error

	nextID         int64
	positionCalls  int
	statusCalls    []string
	placed         []domain.OrderRequest
	cancelled      []string
	replaced       []replaceCall
	leverages      []int
	positionsCalls []string
}

func newMockExchange() *mockExchange {
	return &mockExchange{
		price:       100,
		orderStatus: make(map[string]*domain.OrderStatusReport),
		cancelErr:   make(map[string]error),
		nextID:      100000000,
	}
}

func (m *mockExchange) newOrderID() string {
	m.nextID++
	return fmt.Sprintf("%d", m.nextID)
}

func (m *mockExchange) GetPositions(ctx context.Context, symbol string) ([]*domain.Position, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.positionCalls++
	m.positionsCalls = append(m.positionsCalls, symbol)
	if m.positionsErr != nil {
		return nil, m.positionsErr
	}
	if symbol == "" {
		return m.positions, nil
	}
	if ps, ok := m.positionsBySymbol[symbol]; ok {
		return ps, nil
	}
	var out []*domain.Position
	for _, p := range m.positions {
		if p.Symbol == symbol {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *mockExchange) GetOpenOrders(ctx context.Context) ([]*domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.openOrders, m.openOrdersErr
}

func (m *mockExchange) PlaceOrder(ctx context.Context, req domain.OrderRequest) (*ports.OrderResponse, error) {
	m.mu.Lock()
	m.placed = append(m.placed, req)
	fn := m.placeFn
	id := m.newOrderID()
	m.mu.Unlock()
	if fn != nil {
		resp, err := fn(req)
		if resp != nil || err != nil {
			return resp, err
		}
	}
	return &ports.OrderResponse{
		OrderID:      id,
		Symbol:       req.Symbol,
		OrigQuantity: req.Quantity,
		Status:       string(domain.OrderStatusNew),
		Type:         string(req.Type),
		Side:         string(req.Side),
		Raw:          fmt.Sprintf(`{"orderId":%s}`, id),
		Timestamp:    time.Now(),
	}, nil
}

func (m *mockExchange) CancelOrder(ctx context.Context, symbol, orderID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.cancelErr[orderID]; err != nil {
		return err
	}
	m.cancelled = append(m.cancelled, orderID)
	return nil
}

func (m *mockExchange) CancelReplaceOrder(ctx context.Context, req domain.OrderRequest, cancelOrderID string) (*ports.OrderResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.replaced = append(m.replaced, replaceCall{req: req, cancelID: cancelOrderID})
	if m.replaceErr != nil {
		return nil, m.replaceErr
	}
	return &ports.OrderResponse{OrderID: m.newOrderID(), Symbol: req.Symbol, Type: string(req.Type)}, nil
}

func (m *mockExchange) SetLeverage(ctx context.Context, symbol string, leverage int, positionSide domain.PositionSide) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.leverages = append(m.leverages, leverage)
	return m.leverageErr
}

func (m *mockExchange) GetOrderStatus(ctx context.Context, symbol, orderID string) (*domain.OrderStatusReport, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statusCalls = append(m.statusCalls, orderID)
	if m.orderStatusErr != nil {
		return nil, m.orderStatusErr
	}
	r, ok := m.orderStatus[orderID]
	if !ok {
		return &domain.OrderStatusReport{OrderID: orderID, Symbol: symbol, Status: domain.OrderStatusNew}, nil
	}
	return r, nil
}

func (m *mockExchange) GetMaxLeverage(ctx context.Context, symbol string) (int, int, error) {
	return 125, 125, nil
}

func (m *mockExchange) GetPrice(ctx context.Context, symbol string) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.price, m.priceErr
}

func (m *mockExchange) Ping(ctx context.Context) error {
	return m.pingErr
}

func (m *mockExchange) SetServerTime(ctx context.Context) error {
	return m.serverTimeErr
}

func (m *mockExchange) placedOfType(t domain.OrderType) []domain.OrderRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.OrderRequest
	for _, r := range m.placed {
		if r.Type == t {
			out = append(out, r)
		}
	}
	return out
}

func (m *mockExchange) replaceCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.replaced)
}

// mockStore is an in-memory TradeStore.
type mockStore struct {
	mu         sync.Mutex
	nextID     int64
	trades     map[int64]*domain.TradeRecord
	executions []*domain.OrderExecution
	orderLogs  []*domain.OrderLogEntry
	createErr  error
	openErr    error
	// getFailures makes that many GetTrade calls fail before succeeding.
	getFailures int
	getCalls    int
}

func newMockStore() *mockStore {
	return &mockStore{trades: make(map[int64]*domain.TradeRecord)}
}

func (m *mockStore) put(rec *domain.TradeRecord) *domain.TradeRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rec.ID == 0 {
		m.nextID++
		rec.ID = m.nextID
	} else if rec.ID > m.nextID {
		m.nextID = rec.ID
	}
	if rec.Status == "" {
		rec.Status = domain.TradeStatusPendingEntry
	}
	cp := *rec
	m.trades[rec.ID] = &cp
	return rec
}

func (m *mockStore) trade(id int64) *domain.TradeRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.trades[id]
	if !ok {
		return nil
	}
	cp := *t
	return &cp
}

func (m *mockStore) CreateTrade(ctx context.Context, rec *domain.TradeRecord) (int64, error) {
	if m.createErr != nil {
		return 0, m.createErr
	}
	cp := *rec
	cp.ID = 0
	return m.put(&cp).ID, nil
}

func (m *mockStore) GetTrade(ctx context.Context, id int64) (*domain.TradeRecord, error) {
	m.mu.Lock()
	m.getCalls++
	fail := m.getCalls <= m.getFailures
	m.mu.Unlock()
	if fail {
		return nil, ports.ErrQueryFailed
	}
	t := m.trade(id)
	if t == nil {
		return nil, ports.ErrNotFound
	}
	return t, nil
}

func (m *mockStore) list(filter func(*domain.TradeRecord) bool) []*domain.TradeRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.TradeRecord
	for _, t := range m.trades {
		if filter(t) {
			cp := *t
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (m *mockStore) AllTrades(ctx context.Context) ([]*domain.TradeRecord, error) {
	return m.list(func(*domain.TradeRecord) bool { return true }), nil
}

func (m *mockStore) OpenTrades(ctx context.Context) ([]*domain.TradeRecord, error) {
	if m.openErr != nil {
		return nil, m.openErr
	}
	return m.list(func(t *domain.TradeRecord) bool { return t.Status != domain.TradeStatusClosed }), nil
}

func (m *mockStore) update(id int64, fn func(*domain.TradeRecord)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.trades[id]
	if !ok {
		return ports.ErrNotFound
	}
	fn(t)
	return nil
}

func (m *mockStore) UpdateStatus(ctx context.Context, id int64, status domain.TradeStatus) error {
	return m.update(id, func(t *domain.TradeRecord) { t.Status = status })
}

func (m *mockStore) UpdateLeverage(ctx context.Context, id int64, leverage int) error {
	return m.update(id, func(t *domain.TradeRecord) { t.Leverage = leverage })
}

func (m *mockStore) UpdateQuantity(ctx context.Context, id int64, quantity float64) error {
	return m.update(id, func(t *domain.TradeRecord) { t.Quantity = quantity })
}

func (m *mockStore) UpdatePositionID(ctx context.Context, id int64, positionID string) error {
	return m.update(id, func(t *domain.TradeRecord) { t.PositionID = domain.StringPtr(positionID) })
}

func (m *mockStore) UpdateOrderIDs(ctx context.Context, rec *domain.TradeRecord) error {
	return m.update(rec.ID, func(t *domain.TradeRecord) {
		t.EntryOrderID = rec.EntryOrderID
		t.StopOrderID = rec.StopOrderID
		t.TakeProfitOrderIDs = rec.TakeProfitOrderIDs
		t.TrailingOrderID = rec.TrailingOrderID
	})
}

func (m *mockStore) AppendExecution(ctx context.Context, exec *domain.OrderExecution) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.executions {
		if e.OrderID == exec.OrderID {
			return ports.ErrDuplicateEntry
		}
	}
	cp := *exec
	m.executions = append(m.executions, &cp)
	return nil
}

func (m *mockStore) HasExecution(ctx context.Context, orderID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.executions {
		if e.OrderID == orderID {
			return true, nil
		}
	}
	return false, nil
}

func (m *mockStore) ExecutionsByTrade(ctx context.Context, tradeID int64) ([]*domain.OrderExecution, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.OrderExecution
	for _, e := range m.executions {
		if e.TradeID == tradeID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *mockStore) AppendOrderLog(ctx context.Context, entry *domain.OrderLogEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orderLogs = append(m.orderLogs, entry)
	return nil
}

type mockNotifier struct {
	mu     sync.Mutex
	alerts []domain.Alert
}

func (m *mockNotifier) Notify(ctx context.Context, alert domain.Alert) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.alerts = append(m.alerts, alert)
	return nil
}

func (m *mockNotifier) kinds() []domain.AlertKind {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.AlertKind, 0, len(m.alerts))
	for _, a := range m.alerts {
		out = append(out, a.Kind)
	}
	return out
}

func (m *mockNotifier) count(kind domain.AlertKind) int {
	n := 0
	for _, k := range m.kinds() {
		if k == kind {
			n++
		}
	}
	return n
}

type mockStream struct {
	mu      sync.Mutex
	symbol  string
	handler ports.PriceHandler
	started bool
	closed  bool
	dead    bool
}

func (m *mockStream) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.started = true
	return nil
}

func (m *mockStream) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
}

func (m *mockStream) Alive() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.started && !m.closed && !m.dead
}

func (m *mockStream) isClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

type streamRecorder struct {
	mu      sync.Mutex
	streams []*mockStream
}

func (r *streamRecorder) factory(symbol string, handler ports.PriceHandler) ports.PriceStream {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := &mockStream{symbol: symbol, handler: handler}
	r.streams = append(r.streams, s)
	return s
}

func (r *streamRecorder) all() []*mockStream {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*mockStream(nil), r.streams...)
}

type mockSizer struct {
	leverage int
	err      error
	calls    int
}

func (m *mockSizer) CalculateOptimalLeverage(ctx context.Context, symbol string, entry, stop float64, side domain.Side) (int, error) {
	m.calls++
	return m.leverage, m.err
}

type tickRecorder struct {
	mu     sync.Mutex
	prices []float64
}

func (t *tickRecorder) OnPrice(ctx context.Context, mp *MonitoredPosition, price float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.prices = append(t.prices, price)
}

type mockEvaluator struct {
	mu     sync.Mutex
	prices []float64
	err    error
}

func (m *mockEvaluator) Evaluate(ctx context.Context, mp *MonitoredPosition, price float64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prices = append(m.prices, price)
	return m.err == nil, m.err
}

func longPosition(symbol string, amt, entry float64) *domain.Position {
	return &domain.Position{
		Symbol:      symbol,
		Side:        domain.Long,
		PositionAmt: amt,
		EntryPrice:  entry,
		MarkPrice:   entry,
		Leverage:    10,
	}
}

func stopOrder(id, symbol string, side domain.Side, stopPrice, qty float64) *domain.Order {
	return &domain.Order{
		ID:           id,
		Symbol:       symbol,
		Side:         side.CloseOrderSide(),
		PositionSide: side.PositionSide(),
		Type:         domain.OrderTypeStopMarket,
		StopPrice:    stopPrice,
		Quantity:     qty,
		Status:       domain.OrderStatusNew,
		ReduceOnly:   true,
	}
}
