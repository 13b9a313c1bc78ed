package binanceclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"futuresMegaBot/internal/ports"

	"github.com/adshao/go-binance/v2/futures"
	"github.com/gorilla/websocket"
	"github.com/jpillora/backoff"
)

const (
	wsBaseURLProduction = "wss://fstream.binance.com/ws"
	wsBaseURLTestnet    = "wss://stream.binancefuture.com/ws"

	// maxMissedPongs is the number of consecutive ping windows without a pong
	// after which the connection is treated as dead.
	maxMissedPongs = 2
	writeTimeout   = 10 * time.Second
)

// StreamConfig holds configuration shared by every price stream.
type StreamConfig struct {
	BaseURL              string // Overrides the production/testnet URL when set
	UseTestnet           bool
	PingInterval         time.Duration
	ReconnectDelay       time.Duration
	MaxReconnectAttempts int
	Dialer               *websocket.Dialer // Optional
	Logger               ports.Logger
	OnReconnect          func(symbol string) // Optional, called before each reconnect attempt
}

func (cfg StreamConfig) withDefaults() StreamConfig {
	if cfg.BaseURL == "" {
		cfg.BaseURL = wsBaseURLProduction
		if cfg.UseTestnet {
			cfg.BaseURL = wsBaseURLTestnet
		}
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = 30 * time.Second
	}
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = 5 * time.Second
	}
	if cfg.MaxReconnectAttempts <= 0 {
		cfg.MaxReconnectAttempts = 10
	}
	if cfg.Dialer == nil {
		cfg.Dialer = websocket.DefaultDialer
	}
	return cfg
}

// PriceStream streams aggregated trade prices for one symbol and owns its
// reconnect and heartbeat state.
type PriceStream struct {
	cfg     StreamConfig
	symbol  string
	handler ports.PriceHandler

	mu        sync.Mutex
	conn      *websocket.Conn
	started   bool
	alive     atomic.Bool
	missed    atomic.Int32
	closed    chan struct{}
	closeOnce sync.Once
}

// NewPriceStream creates a stream for symbol. It does not connect until Start.
func NewPriceStream(cfg StreamConfig, symbol string, handler ports.PriceHandler) *PriceStream {
	return &PriceStream{
		cfg:     cfg.withDefaults(),
		symbol:  symbol,
		handler: handler,
		closed:  make(chan struct{}),
	}
}

// NewStreamFactory returns a ports.PriceStreamFactory building streams from cfg.
func NewStreamFactory(cfg StreamConfig) ports.PriceStreamFactory {
	return func(symbol string, handler ports.PriceHandler) ports.PriceStream {
		return NewPriceStream(cfg, symbol, handler)
	}
}

func (s *PriceStream) url() string {
	return fmt.Sprintf("%s/%s@aggTrade", strings.TrimRight(s.cfg.BaseURL, "/"), strings.ToLower(s.symbol))
}

// Start launches the connection loop in the background.
func (s *PriceStream) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	select {
	case <-s.closed:
		return ports.ErrStreamClosed
	default:
	}
	if s.started {
		return nil
	}
	s.started = true
	s.alive.Store(true)
	go s.run(ctx)
	return nil
}

// Alive reports whether the stream is connected or still reconnecting.
func (s *PriceStream) Alive() bool {
	return s.alive.Load()
}

// Close disconnects the stream and stops reconnecting.
func (s *PriceStream) Close() {
	s.closeOnce.Do(func() {
		close(s.closed)
		s.alive.Store(false)
		s.mu.Lock()
		if s.conn != nil {
			s.conn.Close()
		}
		s.mu.Unlock()
	})
}

func (s *PriceStream) stopped(ctx context.Context) bool {
	select {
	case <-s.closed:
		return true
	case <-ctx.Done():
		return true
	default:
		return false
	}
}

func (s *PriceStream) run(ctx context.Context) {
	op := "PriceStream"
	fields := map[string]interface{}{"symbol": s.symbol}
	defer s.alive.Store(false)

	b := &backoff.Backoff{Min: s.cfg.ReconnectDelay, Max: s.cfg.ReconnectDelay, Factor: 1}
	for {
		connected, err := s.connectAndRead(ctx)
		if s.stopped(ctx) {
			s.cfg.Logger.Info(ctx, op+": stopped", fields)
			return
		}
		if connected {
			b.Reset()
		}
		if int(b.Attempt()) >= s.cfg.MaxReconnectAttempts {
			s.cfg.Logger.Error(ctx, err, op+": max reconnection attempts exceeded, giving up", map[string]interface{}{
				"symbol": s.symbol, "maxAttempts": s.cfg.MaxReconnectAttempts,
			})
			return
		}
		delay := b.Duration()
		s.cfg.Logger.Warn(ctx, op+": connection lost, reconnecting", map[string]interface{}{
			"symbol": s.symbol, "attempt": int(b.Attempt()), "delay": delay.String(), "error": fmt.Sprint(err),
		})
		if s.cfg.OnReconnect != nil {
			s.cfg.OnReconnect(s.symbol)
		}
		select {
		case <-time.After(delay):
		case <-s.closed:
			return
		case <-ctx.Done():
			return
		}
	}
}

// connectAndRead dials, then reads until the connection drops. connected
// reports whether the dial succeeded.
func (s *PriceStream) connectAndRead(ctx context.Context) (connected bool, err error) {
	conn, _, err := s.cfg.Dialer.DialContext(ctx, s.url(), nil)
	if err != nil {
		return false, fmt.Errorf("dial %s: %w: %w", s.url(), ports.ErrConnectionFailed, err)
	}

	s.mu.Lock()
	select {
	case <-s.closed:
		s.mu.Unlock()
		conn.Close()
		return true, ports.ErrStreamClosed
	default:
	}
	s.conn = conn
	s.mu.Unlock()
	defer conn.Close()

	s.cfg.Logger.Info(ctx, "PriceStream: connected", map[string]interface{}{"symbol": s.symbol, "url": s.url()})

	s.missed.Store(0)
	conn.SetPongHandler(func(string) error {
		s.missed.Store(0)
		return nil
	})

	done := make(chan struct{})
	defer close(done)
	go s.heartbeat(ctx, conn, done)

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return true, err
		}
		price, err := parseAggTradePrice(msg)
		if err != nil {
			s.cfg.Logger.Debug(ctx, "PriceStream: skipping message", map[string]interface{}{"symbol": s.symbol, "error": err.Error()})
			continue
		}
		s.handler(price)
	}
}

// heartbeat pings every interval and force-closes conn after maxMissedPongs
// windows without a pong.
func (s *PriceStream) heartbeat(ctx context.Context, conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(s.cfg.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			conn.Close()
			return
		case <-ticker.C:
			if s.missed.Load() >= maxMissedPongs {
				s.cfg.Logger.Warn(ctx, "PriceStream: heartbeat lost, forcing reconnect", map[string]interface{}{"symbol": s.symbol})
				conn.Close()
				return
			}
			s.missed.Add(1)
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout)); err != nil {
				conn.Close()
				return
			}
		}
	}
}

func parseAggTradePrice(msg []byte) (float64, error) {
	var event futures.WsAggTradeEvent
	if err := json.Unmarshal(msg, &event); err != nil {
		return 0, err
	}
	if event.Price == "" {
		return 0, errors.New("message carries no price")
	}
	return strconv.ParseFloat(event.Price, 64)
}
