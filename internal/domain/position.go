package domain

import "time"

// PositionStatus is the lifecycle state of a position.
// The only transitions are Open -> ClosedWin and Open -> ClosedLoss.
type PositionStatus string

const (
	PositionOpen       PositionStatus = "OPEN"
	PositionClosedWin  PositionStatus = "CLOSED_WIN"
	PositionClosedLoss PositionStatus = "CLOSED_LOSS"
)

// Exit reason codes recorded when a position is closed.
const (
	ExitReasonStopLoss     = "Stop Loss Hit"
	ExitReasonTakeProfit   = "Take Profit Hit"
	ExitReasonSessionEnded = "Session Ended"
	ExitReasonManualClose  = "Manual Close"
)

// Position is one simulated leveraged order. Stop-loss and take-profit
// straddle the entry price: for LONG, stopLoss < entry < takeProfit;
// for SHORT, takeProfit < entry < stopLoss. Exit fields are set together
// at close time and never mutated afterwards.
type Position struct {
	ID         string         `json:"id"`
	Symbol     string         `json:"symbol"`
	Direction  Direction      `json:"direction"`
	EntryPrice float64        `json:"entry_price"`
	Quantity   float64        `json:"quantity"`
	Leverage   int            `json:"leverage"`
	RiskPct    float64        `json:"risk_pct"`
	RewardPct  float64        `json:"reward_pct"`
	StopLoss   float64        `json:"stop_loss"`
	TakeProfit float64        `json:"take_profit"`
	OpenedAt   time.Time      `json:"opened_at"`
	Status     PositionStatus `json:"status"`

	ExitPrice  *float64   `json:"exit_price,omitempty"`
	ClosedAt   *time.Time `json:"closed_at,omitempty"`
	ReturnPct  *float64   `json:"return_pct,omitempty"`
	ExitReason string     `json:"exit_reason,omitempty"`
}

// Closed reports whether the position has reached a terminal state.
func (p *Position) Closed() bool {
	return p.Status == PositionClosedWin || p.Status == PositionClosedLoss
}

// Journal event types for PositionRecord.
const (
	JournalEventOpen  = "OPEN"
	JournalEventClose = "CLOSE"
)

// PositionRecord is one append-only audit entry for a position event.
// A position produces exactly one OPEN record and at most one CLOSE record.
type PositionRecord struct {
	SessionID  string         `json:"session_id"`
	PositionID string         `json:"position_id"`
	Event      string         `json:"event"`
	Direction  Direction      `json:"direction"`
	EntryPrice float64        `json:"entry_price"`
	Quantity   float64        `json:"quantity"`
	Leverage   int            `json:"leverage"`
	RiskPct    float64        `json:"risk_pct"`
	RewardPct  float64        `json:"reward_pct"`
	StopLoss   float64        `json:"stop_loss"`
	TakeProfit float64        `json:"take_profit"`
	Status     PositionStatus `json:"status"`
	ExitPrice  *float64       `json:"exit_price,omitempty"`
	ReturnPct  *float64       `json:"return_pct,omitempty"`
	ExitReason string         `json:"exit_reason,omitempty"`
	RecordedAt time.Time      `json:"recorded_at"`
}

// NewPositionRecord snapshots a position into a journal record.
func NewPositionRecord(sessionID, event string, p *Position, at time.Time) *PositionRecord {
	rec := &PositionRecord{
		SessionID:  sessionID,
		PositionID: p.ID,
		Event:      event,
		Direction:  p.Direction,
		EntryPrice: p.EntryPrice,
		Quantity:   p.Quantity,
		Leverage:   p.Leverage,
		RiskPct:    p.RiskPct,
		RewardPct:  p.RewardPct,
		StopLoss:   p.StopLoss,
		TakeProfit: p.TakeProfit,
		Status:     p.Status,
		ExitReason: p.ExitReason,
		RecordedAt: at,
	}
	if p.ExitPrice != nil {
		v := *p.ExitPrice
		rec.ExitPrice = &v
	}
	if p.ReturnPct != nil {
		v := *p.ReturnPct
		rec.ReturnPct = &v
	}
	return rec
}
