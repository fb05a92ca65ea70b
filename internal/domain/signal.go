package domain

import "time"

// Signal is one directional trade recommendation. Signals are immutable
// once created: they are appended to the session's history and never
// mutated or deleted.
type Signal struct {
	ID         string    `json:"id"`
	Direction  Direction `json:"direction"`
	Price      float64   `json:"price"`
	Confidence float64   `json:"confidence"` // informational, in [0,1]
	LongRatio  float64   `json:"long_ratio"` // observed at generation time
	ShortRatio float64   `json:"short_ratio"`
	CreatedAt  time.Time `json:"created_at"`
}
