// Package risk computes adaptive risk/reward parameters and position sizes
// for simulated leveraged trades.
package risk

import "math"

// Policy bounds and tuning constants.
const (
	// MinClosedForAdjustment is the closed-trade count below which the
	// win-rate adjustment is skipped and base values are used.
	MinClosedForAdjustment = 3

	// NeutralWinRate is assumed when there is not enough closed-trade data.
	NeutralWinRate = 0.5

	minRiskPct   = 2
	maxRiskPct   = 15
	minRewardPct = 8
	maxRewardPct = 50

	// winRateRiskCap bounds the risk increase driven by a weak win rate,
	// before the urgency adjustment.
	winRateRiskCap = 12
)

// PolicyInput carries the session state the policy adapts to.
type PolicyInput struct {
	BaseRiskPct      float64
	BaseRewardPct    float64
	AdjustmentFactor float64
	TargetROE        float64
	CurrentROE       float64
	MaxTrades        int
	ClosedTrades     int
	WinRate          float64 // realized win rate of closed positions, in [0,1]
}

// ComputeRiskReward derives the risk and reward percentages for the next
// position. Reward scales up faster than risk when performance is weak,
// both scale down when performing well, and an urgency multiplier pushes
// harder as the session runs out of trades to reach its target ROE.
// Outputs always satisfy riskPct in [2,15], rewardPct in [8,50] and
// rewardPct >= 1.5*riskPct.
func ComputeRiskReward(in PolicyInput) (riskPct, rewardPct float64) {
	riskPct = in.BaseRiskPct
	rewardPct = in.BaseRewardPct

	if in.ClosedTrades >= MinClosedForAdjustment {
		if in.WinRate < 0.5 {
			// Weak performance: widen the reward target aggressively,
			// the risk budget only slightly.
			deficit := (0.5 - in.WinRate) * 100
			multiplier := 1 + deficit*in.AdjustmentFactor/100
			rewardPct = in.BaseRewardPct * multiplier
			riskPct = math.Min(in.BaseRiskPct*(1+deficit/300), winRateRiskCap)
		} else {
			// Strong performance: de-risk, floored at 70% of base.
			surplus := (in.WinRate - 0.5) * 100
			reduction := math.Max(0.7, 1-surplus*0.01)
			rewardPct = in.BaseRewardPct * reduction
			riskPct = in.BaseRiskPct * reduction
		}
	}

	// Urgency: remaining target ROE spread over the trades left.
	remaining := math.Max(0, in.TargetROE-in.CurrentROE)
	tradesLeft := in.MaxTrades - in.ClosedTrades
	if tradesLeft < 1 {
		tradesLeft = 1
	}
	neededPerTrade := remaining / float64(tradesLeft)
	if neededPerTrade > 2 {
		rewardPct *= math.Min(2.5, neededPerTrade/2)
		riskPct = math.Min(riskPct*1.2, maxRiskPct)
	}

	riskPct = clamp(riskPct, minRiskPct, maxRiskPct)
	rewardPct = clamp(rewardPct, minRewardPct, maxRewardPct)

	// Positive expectancy skew.
	if rewardPct < riskPct*1.5 {
		rewardPct = riskPct * 2
	}

	return round2(riskPct), round2(rewardPct)
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(v, hi))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
