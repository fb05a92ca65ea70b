package pricing

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Stream configuration defaults.
const (
	DefaultStreamEndpoint = "wss://fstream.binance.com/ws"
	DefaultStaleAfter     = 30 * time.Second
	reconnectDelay        = 5 * time.Second
)

// StreamSource serves prices from a Binance mark-price websocket stream,
// falling back to a REST source when the cached tick is stale or the
// stream has not produced a price for the requested symbol yet.
type StreamSource struct {
	endpoint   string
	symbol     string
	fallback   Source
	staleAfter time.Duration
	logger     *log.Logger

	mu        sync.RWMutex
	lastPrice float64
	updatedAt time.Time
}

// StreamOptions configures a StreamSource.
type StreamOptions struct {
	Endpoint   string // websocket base, default wss://fstream.binance.com/ws
	Symbol     string
	Fallback   Source // REST source used when the cache is stale
	StaleAfter time.Duration
	Logger     *log.Logger
}

// NewStreamSource creates a stream-backed price source. Run must be
// started for the cache to fill; until then Price delegates to the
// fallback source.
func NewStreamSource(opts StreamOptions) *StreamSource {
	endpoint := opts.Endpoint
	if endpoint == "" {
		endpoint = DefaultStreamEndpoint
	}
	staleAfter := opts.StaleAfter
	if staleAfter == 0 {
		staleAfter = DefaultStaleAfter
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &StreamSource{
		endpoint:   endpoint,
		symbol:     strings.ToUpper(opts.Symbol),
		fallback:   opts.Fallback,
		staleAfter: staleAfter,
		logger:     logger,
	}
}

// markPriceEvent is the @markPrice stream payload.
type markPriceEvent struct {
	Symbol string `json:"s"`
	Price  string `json:"p"`
}

// Run consumes the mark-price stream until ctx is cancelled, reconnecting
// with a delay after any read or dial failure.
func (s *StreamSource) Run(ctx context.Context) error {
	streamURL := fmt.Sprintf("%s/%s@markPrice", s.endpoint, strings.ToLower(s.symbol))

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		conn, _, err := websocket.DefaultDialer.DialContext(ctx, streamURL, nil)
		if err != nil {
			s.logger.Printf("[pricing] websocket dial error: %v", err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(reconnectDelay):
			}
			continue
		}

		s.readLoop(ctx, conn)
		conn.Close()

		s.logger.Printf("[pricing] websocket disconnected, reconnecting in %v...", reconnectDelay)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(reconnectDelay):
		}
	}
}

// readLoop reads events until the connection fails or ctx is cancelled.
func (s *StreamSource) readLoop(ctx context.Context, conn *websocket.Conn) {
	// Unblock ReadMessage on cancellation.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				s.logger.Printf("[pricing] websocket read error: %v", err)
			}
			return
		}

		var event markPriceEvent
		if err := json.Unmarshal(message, &event); err != nil {
			continue
		}

		price, err := strconv.ParseFloat(event.Price, 64)
		if err != nil || price <= 0 {
			continue
		}

		s.mu.Lock()
		s.lastPrice = price
		s.updatedAt = time.Now()
		s.mu.Unlock()
	}
}

// Price returns the cached stream price when fresh, otherwise the
// fallback source's quote.
func (s *StreamSource) Price(ctx context.Context, symbol string) (float64, error) {
	if strings.EqualFold(symbol, s.symbol) {
		s.mu.RLock()
		price, updatedAt := s.lastPrice, s.updatedAt
		s.mu.RUnlock()

		if price > 0 && time.Since(updatedAt) < s.staleAfter {
			return price, nil
		}
	}

	if s.fallback == nil {
		return 0, ErrUnavailable
	}
	return s.fallback.Price(ctx, symbol)
}

var _ Source = (*StreamSource)(nil)
