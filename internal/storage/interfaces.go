// Package storage defines the persistence interfaces of the trading engine.
// All stores are append-only audit sinks: failures are transient from the
// engine's perspective and never block trading.
package storage

import (
	"context"

	"paper-trading-lab/internal/domain"
)

// TradeJournal records every position open and close event.
type TradeJournal interface {
	// Record appends one journal entry. Returns ErrDuplicateKey when the
	// (session_id, position_id, event) key already exists.
	Record(ctx context.Context, rec *domain.PositionRecord) error

	// BySession retrieves all entries for a session, ordered by
	// recorded_at ascending.
	BySession(ctx context.Context, sessionID string) ([]*domain.PositionRecord, error)
}

// EquityPointStore records the equity curve of a session, one point per
// position close.
type EquityPointStore interface {
	Insert(ctx context.Context, p *domain.EquityPoint) error

	// BySession retrieves all points for a session, ordered by
	// timestamp_ms ascending.
	BySession(ctx context.Context, sessionID string) ([]*domain.EquityPoint, error)
}
