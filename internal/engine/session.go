// Package engine runs paper-trading sessions: it opens and closes simulated
// leveraged positions against live prices, adapting risk parameters to the
// session's realized performance.
package engine

import (
	"context"
	"fmt"
	"log"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"

	"paper-trading-lab/internal/domain"
	"paper-trading-lab/internal/observability"
	"paper-trading-lab/internal/pricing"
	"paper-trading-lab/internal/risk"
	"paper-trading-lab/internal/signal"
	"paper-trading-lab/internal/storage"
)

// journalTimeout bounds background persistence writes.
const journalTimeout = 5 * time.Second

// SessionOptions configures a new Session.
type SessionOptions struct {
	// ID identifies the session. Generated when empty.
	ID string

	// Config must be normalized and valid.
	Config domain.SessionConfig

	// Prices supplies mark prices for the configured symbol. Required.
	Prices pricing.Source

	// Journal and Equity are optional audit sinks. Writes happen in the
	// background and never block trading.
	Journal storage.TradeJournal
	Equity  storage.EquityPointStore

	// Rand drives signal generation and execution throttling. A nil value
	// gets a time-seeded source; tests inject a deterministic one.
	Rand *rand.Rand

	Logger *log.Logger
}

// Session is one independent paper-trading run. All state is guarded by a
// single mutex; price fetches happen outside the lock so slow upstreams
// never stall concurrent readers.
type Session struct {
	mu sync.Mutex

	id  string
	cfg domain.SessionConfig

	status  domain.SessionStatus
	balance float64
	// currentROE and maxROE are percentages relative to the initial balance.
	currentROE float64
	maxROE     float64

	open    []*domain.Position
	closed  []*domain.Position
	counter int

	signals    []domain.Signal
	longCount  int
	shortCount int

	lastErr   string
	lastPrice float64

	gen     *signal.Generator
	rnd     *rand.Rand
	prices  pricing.Source
	journal storage.TradeJournal
	equity  storage.EquityPointStore
	logger  *log.Logger

	cancel context.CancelFunc
	done   chan struct{}
}

// NewSession creates a stopped session from the given options.
func NewSession(opts SessionOptions) (*Session, error) {
	if opts.Prices == nil {
		return nil, fmt.Errorf("pricing source is required")
	}

	cfg := opts.Config
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	id := opts.ID
	if id == "" {
		id = uuid.NewString()[:8]
	}

	rnd := opts.Rand
	if rnd == nil {
		rnd = rand.New(rand.NewSource(time.Now().UnixNano()))
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}

	return &Session{
		id:      id,
		cfg:     cfg,
		status:  domain.SessionStopped,
		balance: cfg.InitialBalance,
		gen:     signal.NewGenerator(rnd),
		rnd:     rnd,
		prices:  opts.Prices,
		journal: opts.Journal,
		equity:  opts.Equity,
		logger:  logger,
	}, nil
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.id
}

// Config returns the session configuration.
func (s *Session) Config() domain.SessionConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg
}

// Start launches the control loop. A positive maxTrades overrides the
// configured per-session trade cap; a non-positive interval uses the default.
func (s *Session) Start(ctx context.Context, maxTrades int, interval time.Duration) error {
	if interval <= 0 {
		interval = defaultTickInterval
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status == domain.SessionRunning {
		return ErrAlreadyRunning
	}
	if s.balance <= 0 {
		return ErrInsufficientBalance
	}
	if maxTrades > 0 {
		s.cfg.MaxTrades = maxTrades
	}

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	s.cancel = cancel
	s.done = done
	s.status = domain.SessionRunning
	s.lastErr = ""
	observability.RecordSessionStarted()

	s.logger.Printf("[session %s] started: symbol=%s leverage=%dx balance=%.2f target_roe=%.1f%% max_trades=%d",
		s.id, s.cfg.Symbol, s.cfg.Leverage, s.balance, s.cfg.TargetROE, s.cfg.MaxTrades)

	go s.run(runCtx, interval, done)
	return nil
}

// Stop cancels the control loop, waits for it to drain, and force-closes
// any remaining open positions at the latest known price. Stop is
// idempotent: stopping a stopped session is a no-op.
func (s *Session) Stop(ctx context.Context) error {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	hasOpen := len(s.open) > 0
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		select {
		case <-done:
		case <-time.After(stopGrace):
			s.logger.Printf("[session %s] control loop did not drain within %s", s.id, stopGrace)
		}
	}

	// Best-effort exit price for the forced close. The cached loop price
	// covers a failed fetch; the entry price covers a session that never
	// saw a price at all.
	var price float64
	if hasOpen {
		if p, err := s.fetchPrice(ctx); err == nil {
			price = p
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if price <= 0 {
		price = s.lastPrice
	}
	s.forceCloseAllLocked(price, domain.ExitReasonManualClose, time.Now())

	if s.status == domain.SessionRunning {
		s.status = domain.SessionStopped
		observability.RecordSessionStopped("manual")
		s.logger.Printf("[session %s] stopped: balance=%.2f roe=%.2f%% trades=%d",
			s.id, s.balance, s.currentROE, len(s.closed))
	}
	return nil
}

// OpenPosition opens a manual trade in the given direction at the current
// market price. Manual trades share the automated sizing and risk path.
func (s *Session) OpenPosition(ctx context.Context, direction domain.Direction) (domain.Position, error) {
	if !direction.Valid() {
		return domain.Position{}, domain.ErrInvalidDirection
	}

	price, err := s.fetchPrice(ctx)
	if err != nil {
		return domain.Position{}, err
	}

	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.lastPrice = price
	pos, err := s.openLocked(direction, price, now)
	if err != nil {
		return domain.Position{}, err
	}
	return *pos, nil
}

// openLocked places a position at the given price. Caller holds s.mu.
func (s *Session) openLocked(direction domain.Direction, price float64, now time.Time) (*domain.Position, error) {
	if len(s.open) >= maxOpenPositions {
		return nil, ErrPositionCapReached
	}
	if s.balance <= 0 {
		return nil, ErrInsufficientBalance
	}

	riskPct, rewardPct := risk.ComputeRiskReward(risk.PolicyInput{
		BaseRiskPct:      s.cfg.BaseRiskPct,
		BaseRewardPct:    s.cfg.BaseRewardPct,
		AdjustmentFactor: s.cfg.AdjustmentFactor,
		TargetROE:        s.cfg.TargetROE,
		CurrentROE:       s.currentROE,
		MaxTrades:        s.cfg.MaxTrades,
		ClosedTrades:     len(s.closed),
		WinRate:          s.winRateLocked(),
	})

	stopLoss, takeProfit := risk.ProtectiveLevels(direction, price, riskPct, rewardPct, s.cfg.Leverage)

	quantity, err := risk.PositionSize(s.balance, riskPct, price, stopLoss)
	if err != nil {
		return nil, err
	}

	s.counter++
	pos := &domain.Position{
		ID:         fmt.Sprintf("PT_%s_%04d", s.cfg.Symbol, s.counter),
		Symbol:     s.cfg.Symbol,
		Direction:  direction,
		EntryPrice: price,
		Quantity:   quantity,
		Leverage:   s.cfg.Leverage,
		RiskPct:    riskPct,
		RewardPct:  rewardPct,
		StopLoss:   stopLoss,
		TakeProfit: takeProfit,
		OpenedAt:   now,
		Status:     domain.PositionOpen,
	}
	s.open = append(s.open, pos)

	s.recordJournal(domain.NewPositionRecord(s.id, domain.JournalEventOpen, pos, now))
	observability.RecordPositionOpened(string(direction))

	s.logger.Printf("[session %s] opened %s %s: entry=%.6f qty=%.8f sl=%.6f tp=%.6f risk=%.2f%% reward=%.2f%%",
		s.id, pos.ID, direction, price, quantity, stopLoss, takeProfit, riskPct, rewardPct)

	return pos, nil
}

// checkExitsLocked closes every open position whose stop-loss or
// take-profit is triggered by the given price. Caller holds s.mu.
func (s *Session) checkExitsLocked(price float64, now time.Time) {
	// closeLocked mutates s.open, so iterate a snapshot.
	open := make([]*domain.Position, len(s.open))
	copy(open, s.open)

	for _, pos := range open {
		switch pos.Direction {
		case domain.DirectionLong:
			if price <= pos.StopLoss {
				s.closeLocked(pos, price, domain.ExitReasonStopLoss, now)
			} else if price >= pos.TakeProfit {
				s.closeLocked(pos, price, domain.ExitReasonTakeProfit, now)
			}
		case domain.DirectionShort:
			if price >= pos.StopLoss {
				s.closeLocked(pos, price, domain.ExitReasonStopLoss, now)
			} else if price <= pos.TakeProfit {
				s.closeLocked(pos, price, domain.ExitReasonTakeProfit, now)
			}
		}
	}
}

// closeLocked settles a position at exitPrice, realizes the leveraged
// return into the balance, and moves the position to the closed list.
// Caller holds s.mu.
func (s *Session) closeLocked(pos *domain.Position, exitPrice float64, reason string, now time.Time) {
	priceChangePct := (exitPrice - pos.EntryPrice) / pos.EntryPrice * 100
	if pos.Direction == domain.DirectionShort {
		priceChangePct = -priceChangePct
	}
	returnPct := priceChangePct * float64(pos.Leverage)

	s.balance *= 1 + returnPct/100
	s.currentROE = (s.balance - s.cfg.InitialBalance) / s.cfg.InitialBalance * 100
	if s.currentROE > s.maxROE {
		s.maxROE = s.currentROE
	}

	ep, rp, closedAt := exitPrice, returnPct, now
	pos.ExitPrice = &ep
	pos.ReturnPct = &rp
	pos.ClosedAt = &closedAt
	pos.ExitReason = reason
	if returnPct > 0 {
		pos.Status = domain.PositionClosedWin
	} else {
		pos.Status = domain.PositionClosedLoss
	}

	for i, p := range s.open {
		if p.ID == pos.ID {
			s.open = append(s.open[:i], s.open[i+1:]...)
			break
		}
	}
	s.closed = append(s.closed, pos)

	s.recordJournal(domain.NewPositionRecord(s.id, domain.JournalEventClose, pos, now))
	s.recordEquity(&domain.EquityPoint{
		SessionID:   s.id,
		TimestampMs: now.UnixMilli(),
		Balance:     s.balance,
		ROE:         s.currentROE,
		Drawdown:    s.drawdownLocked(),
	})

	outcome := "loss"
	if pos.Status == domain.PositionClosedWin {
		outcome = "win"
	}
	observability.RecordPositionClosed(outcome)

	s.logger.Printf("[session %s] closed %s: exit=%.6f return=%.2f%% reason=%q balance=%.2f roe=%.2f%%",
		s.id, pos.ID, exitPrice, returnPct, reason, s.balance, s.currentROE)
}

// forceCloseAllLocked closes every open position at the given price,
// falling back to each position's entry price when no price is known.
// Caller holds s.mu.
func (s *Session) forceCloseAllLocked(price float64, reason string, now time.Time) {
	open := make([]*domain.Position, len(s.open))
	copy(open, s.open)

	for _, pos := range open {
		exitPrice := price
		if exitPrice <= 0 {
			exitPrice = pos.EntryPrice
		}
		s.closeLocked(pos, exitPrice, reason, now)
	}
}

// ForceRebalance resets the signal history counters to an even split,
// preserving the total.
func (s *Session) ForceRebalance() domain.SignalBalance {
	s.mu.Lock()
	defer s.mu.Unlock()

	total := s.longCount + s.shortCount
	s.longCount = total / 2
	s.shortCount = total - s.longCount

	s.logger.Printf("[session %s] signal history rebalanced: long=%d short=%d", s.id, s.longCount, s.shortCount)
	return s.signalBalanceLocked()
}

// Signals returns the most recent signals (up to limit) and the current
// balance statistics.
func (s *Session) Signals(limit int) ([]domain.Signal, domain.SignalBalance) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := len(s.signals)
	if limit > 0 && n > limit {
		n = limit
	}
	recent := make([]domain.Signal, n)
	copy(recent, s.signals[len(s.signals)-n:])

	return recent, s.signalBalanceLocked()
}

// Positions returns value copies of the open and closed position lists.
// Closed positions are ordered newest first.
func (s *Session) Positions() (open, closed []domain.Position) {
	s.mu.Lock()
	defer s.mu.Unlock()

	open = make([]domain.Position, len(s.open))
	for i, p := range s.open {
		open[i] = *p
	}
	closed = make([]domain.Position, len(s.closed))
	for i, p := range s.closed {
		closed[len(s.closed)-1-i] = *p
	}
	return open, closed
}

// Price returns the current market price for the session's symbol.
func (s *Session) Price(ctx context.Context) (float64, error) {
	price, err := s.fetchPrice(ctx)
	if err != nil {
		return 0, err
	}

	s.mu.Lock()
	s.lastPrice = price
	s.mu.Unlock()
	return price, nil
}

// Snapshot builds a full read-only summary of the session.
func (s *Session) Snapshot() domain.SessionSummary {
	s.mu.Lock()
	defer s.mu.Unlock()

	wins, losses := 0, 0
	var grossWin, grossLoss float64
	for _, p := range s.closed {
		if p.ReturnPct == nil {
			continue
		}
		if *p.ReturnPct > 0 {
			wins++
			grossWin += *p.ReturnPct
		} else {
			losses++
			grossLoss += -*p.ReturnPct
		}
	}

	var avgWin, avgLoss, profitFactor float64
	if wins > 0 {
		avgWin = grossWin / float64(wins)
	}
	if losses > 0 {
		avgLoss = grossLoss / float64(losses)
	}
	// Profit factor is the ratio of average win to average loss magnitude,
	// not of gross totals.
	if avgLoss != 0 {
		profitFactor = avgWin / avgLoss
	}

	var winRate float64
	if total := wins + losses; total > 0 {
		winRate = float64(wins) / float64(total)
	}

	progress := 0.0
	if s.cfg.TargetROE > 0 {
		progress = math.Min(100, math.Max(0, s.currentROE/s.cfg.TargetROE*100))
	}

	remaining := s.cfg.MaxTrades - len(s.closed)
	if remaining < 0 {
		remaining = 0
	}

	return domain.SessionSummary{
		SessionID:      s.id,
		Symbol:         s.cfg.Symbol,
		Status:         s.status,
		IsRunning:      s.status == domain.SessionRunning,
		Leverage:       s.cfg.Leverage,
		InitialBalance: s.cfg.InitialBalance,
		CurrentBalance: s.balance,
		CurrentROE:     s.currentROE,
		MaxROE:         s.maxROE,
		Drawdown:       s.drawdownLocked(),
		TargetROE:      s.cfg.TargetROE,
		TargetAchieved: s.currentROE >= s.cfg.TargetROE,
		ProgressPct:    progress,
		TotalTrades:    len(s.closed),
		WinningTrades:  wins,
		LosingTrades:   losses,
		WinRate:        winRate,
		OpenTrades:     len(s.open),
		LastError:      s.lastErr,
		SignalBalance:  s.signalBalanceLocked(),
		Performance: domain.PerformanceMetrics{
			AvgWinPct:       avgWin,
			AvgLossPct:      avgLoss,
			ProfitFactor:    profitFactor,
			TradesRemaining: remaining,
		},
	}
}

// SuggestTuning derives parameter suggestions from the session's realized
// performance.
func (s *Session) SuggestTuning() domain.TuningReport {
	summary := s.Snapshot()
	cfg := s.Config()

	return domain.TuningReport{
		Performance: summary,
		Suggestions: risk.SuggestTuning(risk.TuningInput{
			CurrentROE:       summary.CurrentROE,
			Drawdown:         summary.Drawdown,
			WinRate:          summary.WinRate,
			ProgressPct:      summary.ProgressPct,
			TotalTrades:      summary.TotalTrades,
			BaseRiskPct:      cfg.BaseRiskPct,
			BaseRewardPct:    cfg.BaseRewardPct,
			AdjustmentFactor: cfg.AdjustmentFactor,
		}),
		Parameters: domain.TuningParameters{
			BaseRiskPct:      cfg.BaseRiskPct,
			BaseRewardPct:    cfg.BaseRewardPct,
			AdjustmentFactor: cfg.AdjustmentFactor,
			Leverage:         cfg.Leverage,
		},
	}
}

// fetchPrice queries the price source with a bounded timeout. Never called
// while holding s.mu.
func (s *Session) fetchPrice(ctx context.Context) (float64, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, priceTimeout)
	defer cancel()
	return s.prices.Price(fetchCtx, s.cfg.Symbol)
}

// winRateLocked returns the realized win rate, or the neutral rate when
// there is not enough closed-trade data. Caller holds s.mu.
func (s *Session) winRateLocked() float64 {
	if len(s.closed) < risk.MinClosedForAdjustment {
		return risk.NeutralWinRate
	}
	wins := 0
	for _, p := range s.closed {
		if p.Status == domain.PositionClosedWin {
			wins++
		}
	}
	return float64(wins) / float64(len(s.closed))
}

// drawdownLocked computes the retracement from the ROE high-water mark.
// Sessions that never went positive have no drawdown. Caller holds s.mu.
func (s *Session) drawdownLocked() float64 {
	if s.maxROE <= 0 {
		return 0
	}
	return math.Max(0, (s.maxROE-s.currentROE)/(100+s.maxROE)*100)
}

// signalBalanceLocked summarizes the signal history. Caller holds s.mu.
func (s *Session) signalBalanceLocked() domain.SignalBalance {
	b := domain.SignalBalance{
		LongCount:    s.longCount,
		ShortCount:   s.shortCount,
		TotalSignals: s.longCount + s.shortCount,
	}
	if b.TotalSignals > 0 {
		b.LongRatio = float64(b.LongCount) / float64(b.TotalSignals)
		b.ShortRatio = float64(b.ShortCount) / float64(b.TotalSignals)
	}
	b.IsBalanced = signal.Balanced(signal.History{LongCount: s.longCount, ShortCount: s.shortCount})
	return b
}

func (s *Session) setLastErr(err error) {
	s.mu.Lock()
	s.lastErr = err.Error()
	s.mu.Unlock()
}

// recordJournal persists a journal entry in the background. Persistence
// failures are logged and counted but never fail the trade.
func (s *Session) recordJournal(rec *domain.PositionRecord) {
	if s.journal == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), journalTimeout)
		defer cancel()
		if err := s.journal.Record(ctx, rec); err != nil {
			observability.RecordJournalError("trade_journal")
			s.logger.Printf("[session %s] journal write failed for %s %s: %v", s.id, rec.PositionID, rec.Event, err)
		}
	}()
}

// recordEquity persists an equity curve point in the background.
func (s *Session) recordEquity(p *domain.EquityPoint) {
	if s.equity == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), journalTimeout)
		defer cancel()
		if err := s.equity.Insert(ctx, p); err != nil {
			observability.RecordJournalError("equity_points")
			s.logger.Printf("[session %s] equity point write failed: %v", s.id, err)
		}
	}()
}
