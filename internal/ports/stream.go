package ports

import "context"

// PriceHandler receives last-trade prices from a stream.
type PriceHandler func(price float64)

// PriceStream is a single streaming connection for one symbol.
type PriceStream interface {
	// Start connects and keeps the connection alive until ctx is done,
	// Close is called, or reconnect attempts are exhausted.
	Start(ctx context.Context) error
	// Close disconnects the stream. Safe to call more than once.
	Close()
	// Alive reports whether the stream is connected or still reconnecting.
	Alive() bool
}

// PriceStreamFactory creates a stream for symbol delivering prices to handler.
type PriceStreamFactory func(symbol string, handler PriceHandler) PriceStream
