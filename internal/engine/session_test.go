package engine

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"sync"
	"testing"
	"time"

	"paper-trading-lab/internal/domain"
	"paper-trading-lab/internal/pricing/stub"
)

func testConfig() domain.SessionConfig {
	return domain.SessionConfig{
		Symbol:         "EPICUSDT",
		Leverage:       10,
		InitialBalance: 1000,
	}
}

func newTestSession(t *testing.T, prices *stub.Source) *Session {
	t.Helper()

	sess, err := NewSession(SessionOptions{
		Config: testConfig(),
		Prices: prices,
		Rand:   rand.New(rand.NewSource(1)),
	})
	if err != nil {
		t.Fatalf("NewSession failed: %v", err)
	}
	return sess
}

func TestNewSession_AppliesDefaults(t *testing.T) {
	sess, err := NewSession(SessionOptions{
		Config: domain.SessionConfig{},
		Prices: stub.NewSource(100),
	})
	if err != nil {
		t.Fatalf("NewSession failed: %v", err)
	}

	cfg := sess.Config()
	if cfg.Symbol != domain.DefaultSymbol {
		t.Errorf("Expected default symbol %s, got %s", domain.DefaultSymbol, cfg.Symbol)
	}
	if cfg.MaxTrades != domain.DefaultMaxTrades {
		t.Errorf("Expected default max trades %d, got %d", domain.DefaultMaxTrades, cfg.MaxTrades)
	}
	if sess.ID() == "" {
		t.Error("Expected generated session ID")
	}
}

func TestNewSession_RequiresPriceSource(t *testing.T) {
	_, err := NewSession(SessionOptions{Config: testConfig()})
	if err == nil {
		t.Fatal("Expected error for missing price source")
	}
}

func TestOpenPosition_SharesRiskPath(t *testing.T) {
	prices := stub.NewSource(100)
	sess := newTestSession(t, prices)

	pos, err := sess.OpenPosition(context.Background(), domain.DirectionLong)
	if err != nil {
		t.Fatalf("OpenPosition failed: %v", err)
	}

	if pos.ID != "PT_EPICUSDT_0001" {
		t.Errorf("Expected position ID PT_EPICUSDT_0001, got %s", pos.ID)
	}
	if pos.EntryPrice != 100 {
		t.Errorf("Expected entry 100, got %v", pos.EntryPrice)
	}
	// Base risk 5% at 10x: stop 0.5% below entry, reward 15%: 1.5% above.
	if math.Abs(pos.StopLoss-99.5) > 1e-9 {
		t.Errorf("Expected stop loss 99.5, got %v", pos.StopLoss)
	}
	if math.Abs(pos.TakeProfit-101.5) > 1e-9 {
		t.Errorf("Expected take profit 101.5, got %v", pos.TakeProfit)
	}
	if pos.Quantity != 9.5 {
		t.Errorf("Expected quantity 9.5, got %v", pos.Quantity)
	}
	if pos.Status != domain.PositionOpen {
		t.Errorf("Expected OPEN status, got %s", pos.Status)
	}
}

func TestOpenPosition_InvalidDirection(t *testing.T) {
	sess := newTestSession(t, stub.NewSource(100))

	_, err := sess.OpenPosition(context.Background(), domain.Direction("SIDEWAYS"))
	if !errors.Is(err, domain.ErrInvalidDirection) {
		t.Errorf("Expected ErrInvalidDirection, got %v", err)
	}
}

func TestOpenPosition_CapAtTwo(t *testing.T) {
	sess := newTestSession(t, stub.NewSource(100))
	ctx := context.Background()

	if _, err := sess.OpenPosition(ctx, domain.DirectionLong); err != nil {
		t.Fatalf("First open failed: %v", err)
	}
	if _, err := sess.OpenPosition(ctx, domain.DirectionShort); err != nil {
		t.Fatalf("Second open failed: %v", err)
	}

	_, err := sess.OpenPosition(ctx, domain.DirectionLong)
	if !errors.Is(err, ErrPositionCapReached) {
		t.Errorf("Expected ErrPositionCapReached, got %v", err)
	}

	open, _ := sess.Positions()
	if len(open) != 2 {
		t.Errorf("Expected 2 open positions, got %d", len(open))
	}
}

func TestOpenPosition_InsufficientBalance(t *testing.T) {
	sess := newTestSession(t, stub.NewSource(100))

	sess.mu.Lock()
	sess.balance = 0
	sess.mu.Unlock()

	_, err := sess.OpenPosition(context.Background(), domain.DirectionLong)
	if !errors.Is(err, ErrInsufficientBalance) {
		t.Errorf("Expected ErrInsufficientBalance, got %v", err)
	}
}

func TestCheckExits_LongTakeProfitDoublesBalance(t *testing.T) {
	sess := newTestSession(t, stub.NewSource(100))
	ctx := context.Background()

	if _, err := sess.OpenPosition(ctx, domain.DirectionLong); err != nil {
		t.Fatalf("OpenPosition failed: %v", err)
	}

	// A 10% price move at 10x leverage returns +100%.
	now := time.Now()
	sess.mu.Lock()
	sess.checkExitsLocked(110, now)
	sess.mu.Unlock()

	open, closed := sess.Positions()
	if len(open) != 0 || len(closed) != 1 {
		t.Fatalf("Expected 0 open / 1 closed, got %d / %d", len(open), len(closed))
	}

	pos := closed[0]
	if pos.Status != domain.PositionClosedWin {
		t.Errorf("Expected CLOSED_WIN, got %s", pos.Status)
	}
	if pos.ExitReason != domain.ExitReasonTakeProfit {
		t.Errorf("Expected %q, got %q", domain.ExitReasonTakeProfit, pos.ExitReason)
	}
	if pos.ReturnPct == nil || math.Abs(*pos.ReturnPct-100) > 1e-9 {
		t.Errorf("Expected return 100%%, got %v", pos.ReturnPct)
	}
	if pos.ExitPrice == nil || *pos.ExitPrice != 110 {
		t.Errorf("Expected exit price 110, got %v", pos.ExitPrice)
	}
	if pos.ClosedAt == nil {
		t.Error("Expected ClosedAt to be set")
	}

	summary := sess.Snapshot()
	if math.Abs(summary.CurrentBalance-2000) > 1e-9 {
		t.Errorf("Expected balance 2000, got %v", summary.CurrentBalance)
	}
	if math.Abs(summary.CurrentROE-100) > 1e-9 {
		t.Errorf("Expected ROE 100, got %v", summary.CurrentROE)
	}
	if !summary.TargetAchieved {
		t.Error("Expected target achieved at 100% ROE")
	}
}

func TestCheckExits_ShortStopLoss(t *testing.T) {
	sess := newTestSession(t, stub.NewSource(100))
	ctx := context.Background()

	if _, err := sess.OpenPosition(ctx, domain.DirectionShort); err != nil {
		t.Fatalf("OpenPosition failed: %v", err)
	}

	// SHORT at 100 with 5% risk at 10x stops out at 100.5: a -0.5% move
	// against the position, -5% levered.
	sess.mu.Lock()
	sess.checkExitsLocked(100.5, time.Now())
	sess.mu.Unlock()

	_, closed := sess.Positions()
	if len(closed) != 1 {
		t.Fatalf("Expected 1 closed position, got %d", len(closed))
	}

	pos := closed[0]
	if pos.Status != domain.PositionClosedLoss {
		t.Errorf("Expected CLOSED_LOSS, got %s", pos.Status)
	}
	if pos.ExitReason != domain.ExitReasonStopLoss {
		t.Errorf("Expected %q, got %q", domain.ExitReasonStopLoss, pos.ExitReason)
	}
	if pos.ReturnPct == nil || math.Abs(*pos.ReturnPct+5) > 1e-9 {
		t.Errorf("Expected return -5%%, got %v", pos.ReturnPct)
	}

	summary := sess.Snapshot()
	if math.Abs(summary.CurrentBalance-950) > 1e-9 {
		t.Errorf("Expected balance 950, got %v", summary.CurrentBalance)
	}
	// The ROE high-water mark never went positive, so no drawdown is
	// reported even though the session is underwater.
	if summary.Drawdown != 0 {
		t.Errorf("Expected zero drawdown without a positive ROE peak, got %v", summary.Drawdown)
	}
}

func TestDrawdown_MeasuredFromROEPeak(t *testing.T) {
	sess := newTestSession(t, stub.NewSource(100))

	sess.mu.Lock()
	sess.maxROE = 50
	sess.currentROE = 20
	dd := sess.drawdownLocked()
	sess.mu.Unlock()

	// (50 - 20) / (100 + 50) * 100 = 20
	if math.Abs(dd-20) > 1e-9 {
		t.Errorf("Expected drawdown 20, got %v", dd)
	}
}

func TestCheckExits_PriceBetweenLevelsKeepsPositionOpen(t *testing.T) {
	sess := newTestSession(t, stub.NewSource(100))
	ctx := context.Background()

	if _, err := sess.OpenPosition(ctx, domain.DirectionLong); err != nil {
		t.Fatalf("OpenPosition failed: %v", err)
	}

	sess.mu.Lock()
	sess.checkExitsLocked(100.2, time.Now())
	sess.mu.Unlock()

	open, closed := sess.Positions()
	if len(open) != 1 || len(closed) != 0 {
		t.Errorf("Expected position to stay open, got %d open / %d closed", len(open), len(closed))
	}
}

func TestStop_ForceClosesOpenPositions(t *testing.T) {
	prices := stub.NewSource(100)
	sess := newTestSession(t, prices)
	ctx := context.Background()

	if _, err := sess.OpenPosition(ctx, domain.DirectionLong); err != nil {
		t.Fatalf("OpenPosition failed: %v", err)
	}
	if _, err := sess.OpenPosition(ctx, domain.DirectionShort); err != nil {
		t.Fatalf("OpenPosition failed: %v", err)
	}

	if err := sess.Stop(ctx); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	open, closed := sess.Positions()
	if len(open) != 0 {
		t.Errorf("Expected no open positions after stop, got %d", len(open))
	}
	if len(closed) != 2 {
		t.Fatalf("Expected 2 closed positions, got %d", len(closed))
	}
	for _, pos := range closed {
		if pos.ExitReason != domain.ExitReasonManualClose {
			t.Errorf("Expected %q, got %q", domain.ExitReasonManualClose, pos.ExitReason)
		}
	}

	// Stopping again is a no-op.
	if err := sess.Stop(ctx); err != nil {
		t.Fatalf("Second stop failed: %v", err)
	}
	if _, closed := sess.Positions(); len(closed) != 2 {
		t.Errorf("Second stop must not close anything else")
	}
}

func TestStop_FallsBackToEntryPriceWhenSourceFails(t *testing.T) {
	prices := stub.NewSource(100)
	sess := newTestSession(t, prices)
	ctx := context.Background()

	if _, err := sess.OpenPosition(ctx, domain.DirectionLong); err != nil {
		t.Fatalf("OpenPosition failed: %v", err)
	}

	prices.SetErr(errors.New("exchange down"))
	// Drop the cached price so only the entry price remains.
	sess.mu.Lock()
	sess.lastPrice = 0
	sess.mu.Unlock()

	if err := sess.Stop(ctx); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	_, closed := sess.Positions()
	if len(closed) != 1 {
		t.Fatalf("Expected 1 closed position, got %d", len(closed))
	}
	if closed[0].ExitPrice == nil || *closed[0].ExitPrice != 100 {
		t.Errorf("Expected close at entry price 100, got %v", closed[0].ExitPrice)
	}
	if closed[0].ReturnPct == nil || *closed[0].ReturnPct != 0 {
		t.Errorf("Expected flat return, got %v", closed[0].ReturnPct)
	}
}

func TestStartStop_Lifecycle(t *testing.T) {
	sess := newTestSession(t, stub.NewSource(100, 100.1, 99.9))
	ctx := context.Background()

	if err := sess.Start(ctx, 0, time.Hour); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := sess.Start(ctx, 0, time.Hour); !errors.Is(err, ErrAlreadyRunning) {
		t.Errorf("Expected ErrAlreadyRunning, got %v", err)
	}

	if !sess.Snapshot().IsRunning {
		t.Error("Expected session to report running")
	}

	if err := sess.Stop(ctx); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if sess.Snapshot().IsRunning {
		t.Error("Expected session to report stopped")
	}

	// A stopped session can be started again.
	if err := sess.Start(ctx, 0, time.Hour); err != nil {
		t.Fatalf("Restart failed: %v", err)
	}
	if err := sess.Stop(ctx); err != nil {
		t.Fatalf("Stop after restart failed: %v", err)
	}
}

func TestTick_PriceFailureSkipsAndRecordsError(t *testing.T) {
	prices := stub.NewSource(100)
	sess := newTestSession(t, prices)

	prices.SetErr(errors.New("exchange down"))
	if terminal := sess.tick(context.Background()); terminal {
		t.Fatal("Price failure must not terminate the session")
	}

	summary := sess.Snapshot()
	if summary.LastError == "" {
		t.Error("Expected last error to be recorded")
	}

	// A successful tick clears the error.
	prices.SetErr(nil)
	sess.tick(context.Background())
	if got := sess.Snapshot().LastError; got != "" {
		t.Errorf("Expected last error cleared, got %q", got)
	}
}

func TestTick_TerminatesAtMaxTrades(t *testing.T) {
	prices := stub.NewSource(100)
	sess := newTestSession(t, prices)
	sess.cfg.MaxTrades = 1
	ctx := context.Background()

	if _, err := sess.OpenPosition(ctx, domain.DirectionLong); err != nil {
		t.Fatalf("OpenPosition failed: %v", err)
	}

	// Take-profit trigger closes the only allowed trade; the next tick
	// observes the terminal state.
	prices.SetPrices(101.5)
	if terminal := sess.tick(ctx); !terminal {
		t.Fatal("Expected terminal tick after max trades")
	}

	summary := sess.Snapshot()
	if summary.IsRunning {
		t.Error("Expected session stopped after terminal tick")
	}
	if summary.TotalTrades != 1 {
		t.Errorf("Expected 1 closed trade, got %d", summary.TotalTrades)
	}
}

func TestTick_GeneratesSignalsWhenBelowCap(t *testing.T) {
	sess := newTestSession(t, stub.NewSource(100))

	for i := 0; i < 20; i++ {
		sess.tick(context.Background())
	}

	// The constant price keeps executed positions open, so signal
	// generation pauses once the cap is hit.
	signals, balance := sess.Signals(10)
	if balance.TotalSignals == 0 || balance.TotalSignals > 20 {
		t.Errorf("Expected between 1 and 20 signals, got %d", balance.TotalSignals)
	}
	if len(signals) > 10 {
		t.Errorf("Expected at most 10 recent signals, got %d", len(signals))
	}

	open, _ := sess.Positions()
	if len(open) > maxOpenPositions {
		t.Errorf("Open positions %d exceed cap %d", len(open), maxOpenPositions)
	}
}

func TestForceRebalance_EvensCounts(t *testing.T) {
	sess := newTestSession(t, stub.NewSource(100))

	sess.mu.Lock()
	sess.longCount = 7
	sess.shortCount = 3
	sess.mu.Unlock()

	balance := sess.ForceRebalance()
	if balance.LongCount != 5 || balance.ShortCount != 5 {
		t.Errorf("Expected 5/5 after rebalance, got %d/%d", balance.LongCount, balance.ShortCount)
	}
	if balance.TotalSignals != 10 {
		t.Errorf("Rebalance must preserve the total, got %d", balance.TotalSignals)
	}
	if !balance.IsBalanced {
		t.Error("Expected balanced history after rebalance")
	}
}

func TestConcurrentOpens_NeverExceedCap(t *testing.T) {
	sess := newTestSession(t, stub.NewSource(100))
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		direction := domain.DirectionLong
		if i%2 == 1 {
			direction = domain.DirectionShort
		}
		wg.Add(1)
		go func(d domain.Direction) {
			defer wg.Done()
			_, err := sess.OpenPosition(ctx, d)
			if err != nil && !errors.Is(err, ErrPositionCapReached) {
				t.Errorf("Unexpected open error: %v", err)
			}
		}(direction)
	}
	wg.Wait()

	open, _ := sess.Positions()
	if len(open) != maxOpenPositions {
		t.Errorf("Expected exactly %d open positions, got %d", maxOpenPositions, len(open))
	}
}

func TestSnapshot_PerformanceMetrics(t *testing.T) {
	sess := newTestSession(t, stub.NewSource(100))
	ctx := context.Background()

	// Win +100%.
	if _, err := sess.OpenPosition(ctx, domain.DirectionLong); err != nil {
		t.Fatalf("OpenPosition failed: %v", err)
	}
	sess.mu.Lock()
	sess.checkExitsLocked(110, time.Now())
	sess.mu.Unlock()

	// Loss: LONG stopped out.
	if _, err := sess.OpenPosition(ctx, domain.DirectionLong); err != nil {
		t.Fatalf("OpenPosition failed: %v", err)
	}
	sess.mu.Lock()
	pos := sess.open[0]
	sess.closeLocked(pos, pos.StopLoss, domain.ExitReasonStopLoss, time.Now())
	sess.mu.Unlock()

	summary := sess.Snapshot()
	if summary.WinningTrades != 1 || summary.LosingTrades != 1 {
		t.Fatalf("Expected 1 win / 1 loss, got %d / %d", summary.WinningTrades, summary.LosingTrades)
	}
	if summary.WinRate != 0.5 {
		t.Errorf("Expected win rate 0.5, got %v", summary.WinRate)
	}
	if summary.Performance.AvgWinPct <= 0 {
		t.Errorf("Expected positive avg win, got %v", summary.Performance.AvgWinPct)
	}
	if summary.Performance.AvgLossPct <= 0 {
		t.Errorf("Expected positive avg loss magnitude, got %v", summary.Performance.AvgLossPct)
	}
	if summary.Performance.ProfitFactor <= 1 {
		t.Errorf("Expected profit factor above 1, got %v", summary.Performance.ProfitFactor)
	}
	if summary.Performance.TradesRemaining != domain.DefaultMaxTrades-2 {
		t.Errorf("Expected %d trades remaining, got %d", domain.DefaultMaxTrades-2, summary.Performance.TradesRemaining)
	}
}

func TestSnapshot_ProfitFactorUsesAverageReturns(t *testing.T) {
	sess := newTestSession(t, stub.NewSource(100))

	ret := func(v float64) *float64 { return &v }
	sess.mu.Lock()
	sess.closed = []*domain.Position{
		{ID: "a", Status: domain.PositionClosedWin, ReturnPct: ret(10)},
		{ID: "b", Status: domain.PositionClosedWin, ReturnPct: ret(10)},
		{ID: "c", Status: domain.PositionClosedLoss, ReturnPct: ret(-5)},
	}
	sess.mu.Unlock()

	summary := sess.Snapshot()

	// avg win 10 over avg loss 5 is 2; a gross-total ratio would give 4.
	if math.Abs(summary.Performance.ProfitFactor-2) > 1e-9 {
		t.Errorf("Expected profit factor 2, got %v", summary.Performance.ProfitFactor)
	}
}

func TestFinish_ReleasesLoopHandles(t *testing.T) {
	sess := newTestSession(t, stub.NewSource(100))

	runCtx, cancel := context.WithCancel(context.Background())
	sess.mu.Lock()
	sess.cancel = cancel
	sess.done = make(chan struct{})
	sess.status = domain.SessionRunning
	sess.currentROE = sess.cfg.TargetROE
	sess.mu.Unlock()

	if terminal := sess.tick(context.Background()); !terminal {
		t.Fatal("Expected terminal tick at target ROE")
	}

	select {
	case <-runCtx.Done():
	default:
		t.Error("Expected run context cancelled after terminal finish")
	}

	sess.mu.Lock()
	if sess.cancel != nil || sess.done != nil {
		t.Error("Expected loop handles released after terminal finish")
	}
	sess.mu.Unlock()

	// A finished session can be started again cleanly.
	if err := sess.Start(context.Background(), 0, time.Hour); err != nil {
		t.Fatalf("Restart failed: %v", err)
	}
	if err := sess.Stop(context.Background()); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
}

func TestSuggestTuning_FreshSessionFlagsLowWinRate(t *testing.T) {
	sess := newTestSession(t, stub.NewSource(100))

	report := sess.SuggestTuning()

	// No closed trades reads as a 0 win rate: reward 15 * 1.5 = 22.5.
	want := "Increase reward target to 22.5% to compensate for low win rate"
	if len(report.Suggestions) != 1 || report.Suggestions[0] != want {
		t.Errorf("Expected suggestion %q, got %v", want, report.Suggestions)
	}
	if report.Parameters.BaseRiskPct != domain.DefaultBaseRiskPct {
		t.Errorf("Expected base risk %v, got %v", domain.DefaultBaseRiskPct, report.Parameters.BaseRiskPct)
	}
	if report.Parameters.Leverage != 10 {
		t.Errorf("Expected leverage 10, got %d", report.Parameters.Leverage)
	}
	if report.Performance.SessionID != sess.ID() {
		t.Errorf("Expected embedded summary for %s, got %s", sess.ID(), report.Performance.SessionID)
	}
}
