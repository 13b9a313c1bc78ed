package app

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"futuresMegaBot/config"
	"futuresMegaBot/internal/domain"
	"futuresMegaBot/internal/ports"
)

type serviceDeps struct {
	exchange   *mockExchange
	store      *mockStore
	reconciler *Reconciler
	processor  *Processor
}

func newServiceDeps(t *testing.T) *serviceDeps {
	t.Helper()
	d := &serviceDeps{exchange: newMockExchange(), store: newMockStore()}
	notifier := &mockNotifier{}
	rec, err := NewReconciler(ReconcilerConfig{
		Exchange: d.exchange, Store: d.store, Notifier: notifier, Logger: &mockLogger{},
	})
	require.NoError(t, err)
	proc, err := NewProcessor(ProcessorConfig{
		Exchange: d.exchange, Store: d.store, Notifier: notifier, Breakeven: &mockEvaluator{}, Logger: &mockLogger{},
	})
	require.NoError(t, err)
	d.reconciler = rec
	d.processor = proc
	return d
}

func TestNewTradingService(t *testing.T) {
	d := newServiceDeps(t)
	valid := &config.Config{PositionInterval: time.Second, OrderInterval: time.Second}

	tests := []struct {
		name       string
		cfg        *config.Config
		logger     ports.Logger
		reconciler *Reconciler
		wantErr    bool
	}{
		{name: "valid configuration", cfg: valid, logger: &mockLogger{}, reconciler: d.reconciler},
		{name: "nil config", cfg: nil, logger: &mockLogger{}, reconciler: d.reconciler, wantErr: true},
		{name: "nil logger", cfg: valid, logger: nil, reconciler: d.reconciler, wantErr: true},
		{name: "nil reconciler", cfg: valid, logger: &mockLogger{}, reconciler: nil, wantErr: true},
		{
			name:       "zero position interval",
			cfg:        &config.Config{OrderInterval: time.Second},
			logger:     &mockLogger{},
			reconciler: d.reconciler,
			wantErr:    true,
		},
		{
			name:       "negative order interval",
			cfg:        &config.Config{PositionInterval: time.Second, OrderInterval: -time.Second},
			logger:     &mockLogger{},
			reconciler: d.reconciler,
			wantErr:    true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, err := NewTradingService(tt.cfg, tt.logger, d.exchange, tt.reconciler, d.processor, nil)
			if tt.wantErr {
				assert.Error(t, err)
				assert.Nil(t, svc)
				return
			}
			assert.NoError(t, err)
			assert.NotNil(t, svc)
		})
	}
}

func TestTradingService_StartFailsOnClockSync(t *testing.T) {
	d := newServiceDeps(t)
	d.exchange.serverTimeErr = errors.New("clock unavailable")
	svc, err := NewTradingService(&config.Config{PositionInterval: time.Second, OrderInterval: time.Second},
		&mockLogger{}, d.exchange, d.reconciler, d.processor, nil)
	require.NoError(t, err)

	err = svc.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "clock unavailable")
	assert.Zero(t, d.exchange.positionCalls)
}

func TestTradingService_StartFailsOnPing(t *testing.T) {
	d := newServiceDeps(t)
	d.exchange.pingErr = ports.ErrExchangeUnavailable
	svc, err := NewTradingService(&config.Config{PositionInterval: time.Second, OrderInterval: time.Second},
		&mockLogger{}, d.exchange, d.reconciler, d.processor, nil)
	require.NoError(t, err)

	assert.ErrorIs(t, svc.Start(context.Background()), ports.ErrExchangeUnavailable)
}

func TestTradingService_RunsJobsUntilCancelled(t *testing.T) {
	d := newServiceDeps(t)
	d.exchange.positions = []*domain.Position{longPosition("BTCUSDT", 1, 100)}
	d.exchange.openOrders = []*domain.Order{stopOrder("100000002", "BTCUSDT", domain.Long, 90, 1)}

	cfg := &config.Config{
		PositionInterval: 10 * time.Millisecond,
		OrderInterval:    10 * time.Millisecond,
		MetricsAddr:      "127.0.0.1:0",
	}
	svc, err := NewTradingService(cfg, &mockLogger{}, d.exchange, d.reconciler, d.processor, http.NotFoundHandler())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- svc.Start(ctx) }()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("service did not stop after context cancellation")
	}

	d.exchange.mu.Lock()
	calls := d.exchange.positionCalls
	d.exchange.mu.Unlock()
	// Initial cycle plus at least one ticker cycle.
	assert.GreaterOrEqual(t, calls, 2)
	// Shutdown releases every monitored position.
	assert.Zero(t, d.reconciler.Len())
}
