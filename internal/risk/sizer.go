package risk

import (
	"errors"
	"math"

	"paper-trading-lab/internal/domain"
)

// Sizing errors. Both abort trade placement without mutating the session.
var (
	ErrInvalidStopDistance = errors.New("invalid stop distance: stop-loss equals entry price")
	ErrInvalidQuantity     = errors.New("invalid quantity: computed size is not positive")
)

// SafetyFactor reserves margin against slippage when sizing a position.
const SafetyFactor = 0.95

// PositionSize converts a risk percentage, entry price and stop-loss level
// into a position quantity. The quantity is chosen so that a stop-out
// loses riskPct of the balance, scaled by SafetyFactor.
func PositionSize(balance, riskPct, entryPrice, stopLoss float64) (float64, error) {
	priceDiff := math.Abs(entryPrice - stopLoss)
	if priceDiff == 0 {
		return 0, ErrInvalidStopDistance
	}

	riskAmount := balance * riskPct / 100
	stopLossPct := priceDiff / entryPrice
	positionValue := riskAmount / stopLossPct
	quantity := positionValue / entryPrice * SafetyFactor

	quantity = round8(quantity)
	if quantity <= 0 {
		return 0, ErrInvalidQuantity
	}
	return quantity, nil
}

// ProtectiveLevels computes the stop-loss and take-profit prices around an
// entry. Distances are the risk/reward percentages deleveraged, so the
// leveraged return at a trigger equals the configured percentage. Levels
// straddle the entry price according to direction.
func ProtectiveLevels(direction domain.Direction, entryPrice, riskPct, rewardPct float64, leverage int) (stopLoss, takeProfit float64) {
	stopDistance := riskPct / 100 / float64(leverage)
	rewardDistance := rewardPct / 100 / float64(leverage)

	if direction == domain.DirectionLong {
		stopLoss = entryPrice * (1 - stopDistance)
		takeProfit = entryPrice * (1 + rewardDistance)
	} else {
		stopLoss = entryPrice * (1 + stopDistance)
		takeProfit = entryPrice * (1 - rewardDistance)
	}
	return stopLoss, takeProfit
}

func round8(v float64) float64 {
	return math.Round(v*1e8) / 1e8
}
