// Package stub provides a scripted price source for tests.
package stub

import (
	"context"
	"sync"
)

// Source replays a fixed sequence of prices, cycling when exhausted.
// A set error takes precedence over the script until cleared.
type Source struct {
	mu     sync.Mutex
	prices []float64
	idx    int
	err    error
	calls  int
}

// NewSource creates a stub source cycling through the given prices.
func NewSource(prices ...float64) *Source {
	return &Source{prices: prices}
}

// Price returns the next scripted price, or the configured error.
func (s *Source) Price(_ context.Context, _ string) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls++
	if s.err != nil {
		return 0, s.err
	}
	if len(s.prices) == 0 {
		return 0, context.Canceled
	}

	price := s.prices[s.idx%len(s.prices)]
	s.idx++
	return price, nil
}

// SetErr makes subsequent Price calls fail with err until cleared with nil.
func (s *Source) SetErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

// SetPrices replaces the script and rewinds it.
func (s *Source) SetPrices(prices ...float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prices = prices
	s.idx = 0
}

// Calls returns how many times Price has been invoked.
func (s *Source) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}
