package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"futuresMegaBot/config"
	"futuresMegaBot/internal/ports"
)

const shutdownTimeout = 5 * time.Second

// TradingService runs the engine's periodic jobs: position reconciliation
// and trade processing, each on its own ticker.
type TradingService struct {
	cfg        *config.Config
	logger     ports.Logger
	exchange   ports.ExchangeGateway
	reconciler *Reconciler
	processor  *Processor
	metrics    http.Handler // Optional
}

// NewTradingService creates a new application service instance.
func NewTradingService(
	cfg *config.Config,
	logger ports.Logger,
	exchange ports.ExchangeGateway,
	reconciler *Reconciler,
	processor *Processor,
	metricsHandler http.Handler,
) (*TradingService, error) {

	// Validate dependencies
	if cfg == nil || logger == nil || exchange == nil || reconciler == nil || processor == nil {
		return nil, fmt.Errorf("missing required dependencies for TradingService")
	}
	if cfg.PositionInterval <= 0 {
		return nil, fmt.Errorf("configuration PositionInterval must be positive")
	}
	if cfg.OrderInterval <= 0 {
		return nil, fmt.Errorf("configuration OrderInterval must be positive")
	}

	return &TradingService{
		cfg:        cfg,
		logger:     logger,
		exchange:   exchange,
		reconciler: reconciler,
		processor:  processor,
		metrics:    metricsHandler,
	}, nil
}

// Start runs the service until ctx is cancelled or a shutdown signal
// arrives.
func (s *TradingService) Start(ctx context.Context) error {
	s.logger.Info(ctx, "Starting Trading Service...")

	// Create a context that can be canceled by signals
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Handle graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case sig := <-sigCh:
			s.logger.Info(ctx, "Received shutdown signal", map[string]interface{}{"signal": sig.String()})
			cancel()
		case <-ctx.Done():
		}
	}()

	// --- Initialization Steps ---
	// 1. Set server time (important for signed API calls)
	if err := s.exchange.SetServerTime(ctx); err != nil {
		s.logger.Error(ctx, err, "Failed to synchronize server time")
		return fmt.Errorf("failed to set server time: %w", err)
	}
	s.logger.Info(ctx, "Server time synchronized")

	// 2. Connectivity
	if err := s.exchange.Ping(ctx); err != nil {
		s.logger.Error(ctx, err, "Exchange ping failed")
		return fmt.Errorf("failed to reach exchange: %w", err)
	}

	// 3. First reconciliation so streams are attached before the tickers fire.
	if err := s.reconciler.UpdatePositions(ctx); err != nil {
		s.logger.Error(ctx, err, "Initial position reconciliation failed")
	}
	s.logger.Info(ctx, "Initial state synchronized", map[string]interface{}{"monitoredPositions": s.reconciler.Len()})
	defer s.reconciler.Close()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return s.runEvery(gctx, "reconcile", s.cfg.PositionInterval, s.reconciler.UpdatePositions)
	})
	g.Go(func() error {
		return s.runEvery(gctx, "processTrades", s.cfg.OrderInterval, func(ctx context.Context) error {
			return s.processor.ProcessTrades(ctx, s.reconciler.Snapshot())
		})
	})
	if s.metrics != nil && s.cfg.MetricsAddr != "" {
		g.Go(func() error { return s.serveMetrics(gctx) })
	}

	err := g.Wait()
	s.logger.Info(ctx, "Trading Service stopped.")
	return err
}

// runEvery invokes job every interval until ctx is done. Job errors are
// logged; the next tick tries again.
func (s *TradingService) runEvery(ctx context.Context, name string, interval time.Duration, job func(context.Context) error) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	s.logger.Info(ctx, "Job started", map[string]interface{}{"job": name, "interval": interval.String()})
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := job(ctx); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				s.logger.Error(ctx, err, "Job cycle failed", map[string]interface{}{"job": name})
			}
		}
	}
}

func (s *TradingService) serveMetrics(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", s.metrics)
	srv := &http.Server{
		Addr:              s.cfg.MetricsAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info(ctx, "Metrics server listening", map[string]interface{}{"addr": s.cfg.MetricsAddr})
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("metrics server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
