package pricing

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// Default configuration values.
const (
	DefaultEndpoint   = "https://fapi.binance.com"
	DefaultTimeout    = 10 * time.Second
	DefaultMaxRetries = 2
	DefaultRetryDelay = 500 * time.Millisecond
)

// BinanceClient fetches futures ticker prices over the Binance REST API.
type BinanceClient struct {
	endpoint   string
	client     *http.Client
	maxRetries int
	retryDelay time.Duration
}

// ClientOption configures BinanceClient.
type ClientOption func(*BinanceClient)

// WithTimeout sets the HTTP client timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *BinanceClient) {
		c.client.Timeout = d
	}
}

// WithMaxRetries sets maximum retry attempts.
func WithMaxRetries(n int) ClientOption {
	return func(c *BinanceClient) {
		c.maxRetries = n
	}
}

// WithRetryDelay sets the delay between retries.
func WithRetryDelay(d time.Duration) ClientOption {
	return func(c *BinanceClient) {
		c.retryDelay = d
	}
}

// WithHTTPClient sets a custom http.Client.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *BinanceClient) {
		c.client = client
	}
}

// NewBinanceClient creates a Binance futures price client.
func NewBinanceClient(endpoint string, opts ...ClientOption) *BinanceClient {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	c := &BinanceClient{
		endpoint:   endpoint,
		client:     &http.Client{Timeout: DefaultTimeout},
		maxRetries: DefaultMaxRetries,
		retryDelay: DefaultRetryDelay,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// tickerResponse is the /fapi/v1/ticker/price payload.
type tickerResponse struct {
	Symbol string `json:"symbol"`
	Price  string `json:"price"`
}

// Price fetches the latest ticker price for symbol. Retries transient
// failures with a fixed delay; all failures map to ErrUnavailable.
func (c *BinanceClient) Price(ctx context.Context, symbol string) (float64, error) {
	var lastErr error

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return 0, fmt.Errorf("%w: %v", ErrUnavailable, ctx.Err())
			case <-time.After(c.retryDelay):
			}
		}

		price, err := c.fetch(ctx, symbol)
		if err == nil {
			return price, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			break
		}
	}

	return 0, fmt.Errorf("%w: %v", ErrUnavailable, lastErr)
}

func (c *BinanceClient) fetch(ctx context.Context, symbol string) (float64, error) {
	u := fmt.Sprintf("%s/fapi/v1/ticker/price?%s", c.endpoint,
		url.Values{"symbol": {symbol}}.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return 0, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("fetch ticker: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return 0, fmt.Errorf("ticker status %d: %s", resp.StatusCode, string(body))
	}

	var ticker tickerResponse
	if err := json.NewDecoder(resp.Body).Decode(&ticker); err != nil {
		return 0, fmt.Errorf("decode ticker: %w", err)
	}

	price, err := strconv.ParseFloat(ticker.Price, 64)
	if err != nil {
		return 0, fmt.Errorf("parse ticker price %q: %w", ticker.Price, err)
	}
	if price <= 0 {
		return 0, fmt.Errorf("non-positive ticker price %v", price)
	}

	return price, nil
}

var _ Source = (*BinanceClient)(nil)
