package engine

import (
	"context"
	"time"

	"paper-trading-lab/internal/domain"
	"paper-trading-lab/internal/observability"
	"paper-trading-lab/internal/signal"
)

// Control loop parameters.
const (
	// maxOpenPositions caps concurrent open positions per session.
	maxOpenPositions = 2

	// executionProbability throttles how often a generated signal is
	// actually executed as a trade.
	executionProbability = 0.3

	// priceTimeout bounds a single price fetch.
	priceTimeout = 10 * time.Second

	defaultTickInterval = 15 * time.Second

	// stopGrace is how long Stop waits for the loop to drain.
	stopGrace = 5 * time.Second
)

// run drives the session until the context is cancelled or a terminal
// condition is reached. The first tick happens immediately.
func (s *Session) run(ctx context.Context, interval time.Duration, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if terminal := s.tick(ctx); terminal {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// tick runs one control loop iteration: fetch the price, settle triggered
// exits, then maybe open a new position from a fresh signal. A price fetch
// failure skips the tick; the loop keeps running.
func (s *Session) tick(ctx context.Context) (terminal bool) {
	start := time.Now()
	defer func() {
		observability.RecordTick(time.Since(start).Seconds())
	}()

	price, err := s.fetchPrice(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return false
		}
		observability.RecordPriceFetchError()
		s.setLastErr(err)
		s.logger.Printf("[session %s] price fetch failed: %v", s.id, err)
		return false
	}

	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.lastPrice = price
	s.lastErr = ""

	s.checkExitsLocked(price, now)

	if reason := s.terminalReasonLocked(); reason != "" {
		s.finishLocked(price, reason, now)
		return true
	}

	if len(s.open) < maxOpenPositions {
		sig := s.gen.Generate(signal.History{LongCount: s.longCount, ShortCount: s.shortCount}, price)
		s.signals = append(s.signals, sig)
		if sig.Direction == domain.DirectionLong {
			s.longCount++
		} else {
			s.shortCount++
		}
		observability.RecordSignal(string(sig.Direction))

		if s.rnd.Float64() < executionProbability {
			if _, err := s.openLocked(sig.Direction, price, now); err != nil {
				s.logger.Printf("[session %s] signal %s not executed: %v", s.id, sig.ID, err)
			}
		}
	}

	return false
}

// terminalReasonLocked reports why the session must end, or "" to keep
// running. Caller holds s.mu.
func (s *Session) terminalReasonLocked() string {
	switch {
	case s.balance <= 0:
		return "balance_depleted"
	case s.currentROE >= s.cfg.TargetROE:
		return "target_reached"
	case len(s.closed) >= s.cfg.MaxTrades:
		return "max_trades"
	default:
		return ""
	}
}

// finishLocked ends the session from inside the loop: remaining positions
// are settled at the last price and the session transitions to stopped.
// Caller holds s.mu.
func (s *Session) finishLocked(price float64, reason string, now time.Time) {
	s.forceCloseAllLocked(price, domain.ExitReasonSessionEnded, now)
	s.status = domain.SessionStopped

	// Release the loop handles so a later Start does not overwrite a live
	// cancel func, leaking its registration on the parent context.
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.done = nil

	observability.RecordSessionStopped(reason)

	s.logger.Printf("[session %s] finished (%s): balance=%.2f roe=%.2f%% trades=%d win_rate=%.2f",
		s.id, reason, s.balance, s.currentROE, len(s.closed), s.winRateLocked())
}
