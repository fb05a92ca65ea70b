package clickhouse

import (
	"context"
	"fmt"

	"paper-trading-lab/internal/domain"
	"paper-trading-lab/internal/storage"
)

// EquityPointStore implements storage.EquityPointStore using ClickHouse.
type EquityPointStore struct {
	conn *Conn
}

// NewEquityPointStore creates a new EquityPointStore.
func NewEquityPointStore(conn *Conn) *EquityPointStore {
	return &EquityPointStore{conn: conn}
}

// Compile-time interface check.
var _ storage.EquityPointStore = (*EquityPointStore)(nil)

// Insert adds one equity point.
func (s *EquityPointStore) Insert(ctx context.Context, p *domain.EquityPoint) error {
	if p == nil || p.SessionID == "" {
		return storage.ErrInvalidInput
	}
	return s.InsertBulk(ctx, []*domain.EquityPoint{p})
}

// InsertBulk adds multiple points in one batch.
func (s *EquityPointStore) InsertBulk(ctx context.Context, points []*domain.EquityPoint) error {
	if len(points) == 0 {
		return nil
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO equity_points (
			session_id, timestamp_ms, balance, roe, drawdown
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, p := range points {
		if p == nil || p.SessionID == "" {
			return storage.ErrInvalidInput
		}
		err = batch.Append(
			p.SessionID, uint64(p.TimestampMs),
			p.Balance, p.ROE, p.Drawdown,
		)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}

	return nil
}

// BySession retrieves all points for a session, ordered by timestamp ASC.
func (s *EquityPointStore) BySession(ctx context.Context, sessionID string) ([]*domain.EquityPoint, error) {
	query := `
		SELECT session_id, timestamp_ms, balance, roe, drawdown
		FROM equity_points
		WHERE session_id = ?
		ORDER BY timestamp_ms ASC
	`

	rows, err := s.conn.Query(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query equity points by session: %w", err)
	}
	defer rows.Close()

	var points []*domain.EquityPoint
	for rows.Next() {
		var p domain.EquityPoint
		var timestampMs uint64

		err := rows.Scan(&p.SessionID, &timestampMs, &p.Balance, &p.ROE, &p.Drawdown)
		if err != nil {
			return nil, fmt.Errorf("scan equity point row: %w", err)
		}

		p.TimestampMs = int64(timestampMs)
		points = append(points, &p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate equity point rows: %w", err)
	}

	return points, nil
}
