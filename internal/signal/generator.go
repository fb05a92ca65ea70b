// Package signal generates directional trade signals that self-balance
// between LONG and SHORT over time.
package signal

import (
	"math/rand"
	"time"

	"github.com/google/uuid"

	"paper-trading-lab/internal/domain"
)

// Balancing thresholds.
const (
	// bootstrapSignals is the history size below which direction is
	// chosen uniformly at random.
	bootstrapSignals = 10
	// imbalanceLimit is the ratio above which the under-represented
	// side is forced.
	imbalanceLimit = 0.60
)

// History carries the prior long/short counts the generator balances against.
type History struct {
	LongCount  int
	ShortCount int
}

// Total returns the number of signals issued so far.
func (h History) Total() int {
	return h.LongCount + h.ShortCount
}

// Generator produces balanced directional signals. The randomness source
// is injectable so tests can run deterministic sequences.
type Generator struct {
	rnd *rand.Rand
}

// NewGenerator creates a Generator. A nil rnd gets a time-seeded source.
func NewGenerator(rnd *rand.Rand) *Generator {
	if rnd == nil {
		rnd = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Generator{rnd: rnd}
}

// Generate chooses the next direction from the observed history and
// returns a new immutable signal taken at refPrice. The caller owns the
// history counters and must update them with the returned direction.
func (g *Generator) Generate(h History, refPrice float64) domain.Signal {
	total := h.Total()

	var longRatio, shortRatio float64
	if total > 0 {
		longRatio = float64(h.LongCount) / float64(total)
		shortRatio = float64(h.ShortCount) / float64(total)
	}

	var direction domain.Direction
	var confidence float64

	switch {
	case total < bootstrapSignals:
		// Not enough history to bias.
		if g.rnd.Intn(2) == 0 {
			direction = domain.DirectionLong
		} else {
			direction = domain.DirectionShort
		}
		confidence = 0.5

	case longRatio > imbalanceLimit:
		direction = domain.DirectionShort
		confidence = longRatio

	case shortRatio > imbalanceLimit:
		direction = domain.DirectionLong
		confidence = shortRatio

	default:
		// Weighted draw favoring the under-represented side.
		longWeight := 1 - longRatio
		shortWeight := 1 - shortRatio
		totalWeight := longWeight + shortWeight

		if g.rnd.Float64() < longWeight/totalWeight {
			direction = domain.DirectionLong
			confidence = longWeight / totalWeight
		} else {
			direction = domain.DirectionShort
			confidence = shortWeight / totalWeight
		}
	}

	return domain.Signal{
		ID:         uuid.NewString(),
		Direction:  direction,
		Price:      refPrice,
		Confidence: confidence,
		LongRatio:  longRatio,
		ShortRatio: shortRatio,
		CreatedAt:  time.Now(),
	}
}

// Balanced reports whether the history satisfies the balance property
// |long - short| <= max(2, 0.1 * total).
func Balanced(h History) bool {
	total := h.Total()
	if total == 0 {
		return true
	}
	diff := h.LongCount - h.ShortCount
	if diff < 0 {
		diff = -diff
	}
	limit := float64(total) * 0.1
	if limit < 2 {
		limit = 2
	}
	return float64(diff) <= limit
}
