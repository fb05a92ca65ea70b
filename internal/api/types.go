package api

import (
	"paper-trading-lab/internal/domain"
)

// CreateSessionRequest is the body of POST /api/sessions. Zero fields take
// the service defaults.
type CreateSessionRequest struct {
	Symbol           string  `json:"symbol"`
	Leverage         int     `json:"leverage"`
	BaseRiskPct      float64 `json:"base_risk_pct"`
	BaseRewardPct    float64 `json:"base_reward_pct"`
	TargetROE        float64 `json:"target_roe"`
	InitialBalance   float64 `json:"initial_balance"`
	MaxTrades        int     `json:"max_trades"`
	AdjustmentFactor float64 `json:"adjustment_factor"`
}

// Config converts the request into a session config.
func (r CreateSessionRequest) Config() domain.SessionConfig {
	return domain.SessionConfig{
		Symbol:           r.Symbol,
		Leverage:         r.Leverage,
		BaseRiskPct:      r.BaseRiskPct,
		BaseRewardPct:    r.BaseRewardPct,
		TargetROE:        r.TargetROE,
		InitialBalance:   r.InitialBalance,
		MaxTrades:        r.MaxTrades,
		AdjustmentFactor: r.AdjustmentFactor,
	}
}

// StartSessionRequest is the optional body of POST /api/sessions/{id}/start.
type StartSessionRequest struct {
	// MaxTrades overrides the session's trade cap for this run.
	MaxTrades int `json:"max_trades"`
	// IntervalSeconds overrides the control loop tick interval.
	IntervalSeconds int `json:"interval_seconds"`
}

// OpenTradeRequest is the body of POST /api/sessions/{id}/trades.
type OpenTradeRequest struct {
	Direction string `json:"direction"`
}

// TradesResponse lists a session's positions.
type TradesResponse struct {
	Open   []domain.Position `json:"open"`
	Closed []domain.Position `json:"closed"`
}

// SignalsResponse lists a session's recent signals with balance stats.
type SignalsResponse struct {
	Signals []domain.Signal      `json:"signals"`
	Balance domain.SignalBalance `json:"balance"`
}

// PriceResponse is the body of GET /api/sessions/{id}/price.
type PriceResponse struct {
	Symbol string  `json:"symbol"`
	Price  float64 `json:"price"`
}

// StatusResponse acknowledges a state-changing request.
type StatusResponse struct {
	Status    string `json:"status"`
	SessionID string `json:"session_id"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error string `json:"error"`
}
