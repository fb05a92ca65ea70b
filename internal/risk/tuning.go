package risk

import (
	"fmt"
	"math"
)

// TuningInput carries the realized performance a tuning pass reacts to.
type TuningInput struct {
	CurrentROE  float64
	Drawdown    float64
	WinRate     float64 // realized win rate of closed positions, in [0,1]
	ProgressPct float64
	TotalTrades int

	BaseRiskPct      float64
	BaseRewardPct    float64
	AdjustmentFactor float64
}

// SuggestTuning derives parameter suggestions from realized performance.
// At most one of the state-based rules fires, worst condition first; the
// slow-progress hint is independent. A healthy session gets no suggestions.
func SuggestTuning(in TuningInput) []string {
	var suggestions []string

	switch {
	case in.CurrentROE < 0:
		newRisk := math.Max(minRiskPct, in.BaseRiskPct*0.8)
		newReward := math.Min(40, in.BaseRewardPct*1.3)
		suggestions = append(suggestions,
			fmt.Sprintf("Reduce risk to %.1f%% and increase reward to %.1f%%", newRisk, newReward))
	case in.Drawdown > 20:
		newAdjustment := math.Min(2.5, in.AdjustmentFactor*1.2)
		suggestions = append(suggestions,
			fmt.Sprintf("Increase adjustment factor to %.1f for better drawdown recovery", newAdjustment))
	case in.WinRate < 0.3:
		newReward := math.Min(maxRewardPct, in.BaseRewardPct*1.5)
		suggestions = append(suggestions,
			fmt.Sprintf("Increase reward target to %.1f%% to compensate for low win rate", newReward))
	}

	if in.ProgressPct < 50 && in.TotalTrades > 20 {
		suggestions = append(suggestions, "Consider increasing leverage or position sizing for faster progress")
	}

	return suggestions
}
