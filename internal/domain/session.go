package domain

import (
	"errors"
	"strings"
)

// SessionStatus is the run state of a session's control loop.
type SessionStatus string

const (
	SessionStopped SessionStatus = "STOPPED"
	SessionRunning SessionStatus = "RUNNING"
)

// Default session configuration, matching the live defaults the service
// was tuned with.
const (
	DefaultSymbol           = "EPICUSDT"
	DefaultLeverage         = 10
	DefaultBaseRiskPct      = 5
	DefaultBaseRewardPct    = 15
	DefaultTargetROE        = 100
	DefaultInitialBalance   = 1000
	DefaultMaxTrades        = 50
	DefaultAdjustmentFactor = 1.5
)

// SessionConfig is the immutable configuration of a trading session.
type SessionConfig struct {
	Symbol           string  `json:"symbol"`
	Leverage         int     `json:"leverage"`
	BaseRiskPct      float64 `json:"base_risk_pct"`
	BaseRewardPct    float64 `json:"base_reward_pct"`
	TargetROE        float64 `json:"target_roe"`
	InitialBalance   float64 `json:"initial_balance"`
	MaxTrades        int     `json:"max_trades"`
	AdjustmentFactor float64 `json:"adjustment_factor"`
}

// DefaultSessionConfig returns a config populated with the service defaults.
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		Symbol:           DefaultSymbol,
		Leverage:         DefaultLeverage,
		BaseRiskPct:      DefaultBaseRiskPct,
		BaseRewardPct:    DefaultBaseRewardPct,
		TargetROE:        DefaultTargetROE,
		InitialBalance:   DefaultInitialBalance,
		MaxTrades:        DefaultMaxTrades,
		AdjustmentFactor: DefaultAdjustmentFactor,
	}
}

// Validation errors for session configuration.
var (
	ErrInvalidLeverage = errors.New("leverage must be >= 1")
	ErrInvalidBalance  = errors.New("initial balance must be > 0")
)

// Normalize uppercases the symbol and fills zero fields with defaults.
func (c *SessionConfig) Normalize() {
	def := DefaultSessionConfig()
	c.Symbol = strings.ToUpper(strings.TrimSpace(c.Symbol))
	if c.Symbol == "" {
		c.Symbol = def.Symbol
	}
	if c.Leverage == 0 {
		c.Leverage = def.Leverage
	}
	if c.BaseRiskPct == 0 {
		c.BaseRiskPct = def.BaseRiskPct
	}
	if c.BaseRewardPct == 0 {
		c.BaseRewardPct = def.BaseRewardPct
	}
	if c.TargetROE == 0 {
		c.TargetROE = def.TargetROE
	}
	if c.InitialBalance == 0 {
		c.InitialBalance = def.InitialBalance
	}
	if c.MaxTrades == 0 {
		c.MaxTrades = def.MaxTrades
	}
	if c.AdjustmentFactor == 0 {
		c.AdjustmentFactor = def.AdjustmentFactor
	}
}

// Validate checks the config after normalization.
func (c *SessionConfig) Validate() error {
	if c.Leverage < 1 {
		return ErrInvalidLeverage
	}
	if c.InitialBalance <= 0 {
		return ErrInvalidBalance
	}
	return nil
}
