package cli

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"futuresMegaBot/config"
	"futuresMegaBot/internal/adapters/binanceclient"
	"futuresMegaBot/internal/adapters/logger"
	"futuresMegaBot/internal/adapters/notifier"
	"futuresMegaBot/internal/adapters/sqlite"
	"futuresMegaBot/internal/app"
	"futuresMegaBot/internal/metrics"
	"futuresMegaBot/internal/ports"
	"futuresMegaBot/internal/risk"
)

// env is what every command needs: configuration, logging and the store.
type env struct {
	cfg    *config.Config
	logger *logger.Logger
	store  *sqlite.Repository
}

func loadEnv() (*env, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	appLogger := logger.New(cfg.LogLevel)
	appLogger.Info(context.Background(), "Logger initialized", map[string]interface{}{"level": cfg.LogLevel.String()})

	repo, err := sqlite.NewRepository(sqlite.Config{
		DBPath: cfg.DBPath,
		Logger: appLogger,
	})
	if err != nil {
		appLogger.Error(context.Background(), err, "Failed to initialize database repository")
		return nil, fmt.Errorf("failed to initialize database repository: %w", err)
	}
	return &env{cfg: cfg, logger: appLogger, store: repo}, nil
}

func (e *env) close() {
	if err := e.store.Close(); err != nil {
		e.logger.Error(context.Background(), err, "Error closing database repository")
	}
}

// engine holds the exchange-facing components.
type engine struct {
	client     *binanceclient.Client
	notifier   ports.Notifier
	registry   *prometheus.Registry
	metrics    *metrics.Metrics
	executor   *app.Executor
	supervisor *app.Supervisor
	reconciler *app.Reconciler
	processor  *app.Processor
}

func (e *env) buildEngine(ctx context.Context) (*engine, error) {
	cfg := e.cfg

	client, err := binanceclient.New(binanceclient.Config{
		APIKey:     cfg.APIKey,
		SecretKey:  cfg.SecretKey,
		UseTestnet: cfg.IsTestnet,
		Logger:     e.logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Binance client: %w", err)
	}
	if err := client.SetServerTime(ctx); err != nil {
		return nil, fmt.Errorf("failed to set server time: %w", err)
	}
	if err := client.DetectPositionMode(ctx); err != nil {
		return nil, fmt.Errorf("failed to read position mode: %w", err)
	}

	alerts := notifier.Multi{notifier.NewLog(e.logger)}
	if cfg.TelegramBotToken != "" {
		tg, err := notifier.NewTelegram(notifier.TelegramConfig{
			Token:  cfg.TelegramBotToken,
			ChatID: cfg.TelegramChatID,
			Logger: e.logger,
		})
		if err != nil {
			return nil, err
		}
		alerts = append(alerts, tg)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(registry)

	sizer, err := risk.NewSizer(risk.SizerConfig{
		MaxRiskPerTrade: cfg.MaxRiskPerTrade,
		MaxLeverage:     cfg.MaxLeverage,
		Logger:          e.logger,
	}, client)
	if err != nil {
		return nil, err
	}

	executor, err := app.NewExecutor(app.ExecutorConfig{
		Exchange:          client,
		Store:             e.store,
		Notifier:          alerts,
		Sizer:             sizer,
		Logger:            e.logger,
		Metrics:           m,
		MarginPerTrade:    cfg.MarginPerTrade,
		VolumeMarginBonus: cfg.VolumeMarginBonus,
		TrailingRate:      cfg.TrailingRate,
		StopOrderType:     cfg.StopOrderType,
		SettleDelay:       cfg.SettleDelay,
	})
	if err != nil {
		return nil, err
	}

	supervisor, err := app.NewSupervisor(app.SupervisorConfig{
		Exchange:      client,
		Store:         e.store,
		Notifier:      alerts,
		Logger:        e.logger,
		Metrics:       m,
		MarketFeeRate: cfg.MarketFeeRate,
		LimitFeeRate:  cfg.LimitFeeRate,
	})
	if err != nil {
		return nil, err
	}

	streams := binanceclient.NewStreamFactory(binanceclient.StreamConfig{
		UseTestnet:           cfg.IsTestnet,
		PingInterval:         cfg.StreamPingInterval,
		ReconnectDelay:       cfg.ReconnectDelay,
		MaxReconnectAttempts: cfg.MaxReconnectAttempts,
		Logger:               e.logger,
		OnReconnect: func(symbol string) {
			m.StreamReconnects.WithLabelValues(symbol).Inc()
		},
	})

	reconciler, err := app.NewReconciler(app.ReconcilerConfig{
		Exchange:      client,
		Store:         e.store,
		Notifier:      alerts,
		Streams:       streams,
		Ticks:         supervisor,
		Logger:        e.logger,
		Metrics:       m,
		StopOrderType: cfg.StopOrderType,
	})
	if err != nil {
		return nil, err
	}

	processor, err := app.NewProcessor(app.ProcessorConfig{
		Exchange:         client,
		Store:            e.store,
		Notifier:         alerts,
		Breakeven:        supervisor,
		Logger:           e.logger,
		Metrics:          m,
		MarketFeeRate:    cfg.MarketFeeRate,
		LimitFeeRate:     cfg.LimitFeeRate,
		OrderIDMinDigits: cfg.OrderIDMinDigits,
		OrderStatusRPS:   cfg.OrderStatusRPS,
	})
	if err != nil {
		return nil, err
	}

	return &engine{
		client:     client,
		notifier:   alerts,
		registry:   registry,
		metrics:    m,
		executor:   executor,
		supervisor: supervisor,
		reconciler: reconciler,
		processor:  processor,
	}, nil
}
