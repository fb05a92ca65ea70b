package domain

// SignalBalance reports the long/short distribution of a session's
// signal history.
type SignalBalance struct {
	LongCount    int     `json:"long_count"`
	ShortCount   int     `json:"short_count"`
	TotalSignals int     `json:"total_signals"`
	LongRatio    float64 `json:"long_ratio"`
	ShortRatio   float64 `json:"short_ratio"`
	IsBalanced   bool    `json:"is_balanced"`
}

// PerformanceMetrics aggregates realized returns over closed positions.
type PerformanceMetrics struct {
	AvgWinPct       float64 `json:"avg_win_pct"`
	AvgLossPct      float64 `json:"avg_loss_pct"`
	ProfitFactor    float64 `json:"profit_factor"`
	TradesRemaining int     `json:"trades_remaining"`
}

// SessionSummary is a read-only snapshot of a session.
type SessionSummary struct {
	SessionID      string             `json:"session_id"`
	Symbol         string             `json:"symbol"`
	Status         SessionStatus      `json:"status"`
	IsRunning      bool               `json:"is_running"`
	Leverage       int                `json:"leverage"`
	InitialBalance float64            `json:"initial_balance"`
	CurrentBalance float64            `json:"current_balance"`
	CurrentROE     float64            `json:"current_roe"`
	MaxROE         float64            `json:"max_roe"`
	Drawdown       float64            `json:"drawdown"`
	TargetROE      float64            `json:"target_roe"`
	TargetAchieved bool               `json:"target_achieved"`
	ProgressPct    float64            `json:"progress_pct"`
	TotalTrades    int                `json:"total_trades"`
	WinningTrades  int                `json:"winning_trades"`
	LosingTrades   int                `json:"losing_trades"`
	WinRate        float64            `json:"win_rate"`
	OpenTrades     int                `json:"open_trades"`
	LastError      string             `json:"last_error,omitempty"`
	SignalBalance  SignalBalance      `json:"signal_balance"`
	Performance    PerformanceMetrics `json:"performance_metrics"`
}

// TuningParameters are the base risk settings a session trades with.
type TuningParameters struct {
	BaseRiskPct      float64 `json:"base_risk_pct"`
	BaseRewardPct    float64 `json:"base_reward_pct"`
	AdjustmentFactor float64 `json:"adjustment_factor"`
	Leverage         int     `json:"leverage"`
}

// TuningReport pairs performance-derived parameter suggestions with the
// settings the session currently trades with.
type TuningReport struct {
	Performance SessionSummary   `json:"current_performance"`
	Suggestions []string         `json:"optimization_suggestions"`
	Parameters  TuningParameters `json:"parameters"`
}

// EquityPoint is one sample of a session's equity curve, recorded at
// every position close.
type EquityPoint struct {
	SessionID   string  `json:"session_id"`
	TimestampMs int64   `json:"timestamp_ms"`
	Balance     float64 `json:"balance"`
	ROE         float64 `json:"roe"`
	Drawdown    float64 `json:"drawdown"`
}
