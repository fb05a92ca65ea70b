package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"paper-trading-lab/internal/domain"
	"paper-trading-lab/internal/storage"
)

// TradeJournal implements storage.TradeJournal using PostgreSQL.
type TradeJournal struct {
	pool *Pool
}

// NewTradeJournal creates a new TradeJournal.
func NewTradeJournal(pool *Pool) *TradeJournal {
	return &TradeJournal{pool: pool}
}

// Compile-time interface check.
var _ storage.TradeJournal = (*TradeJournal)(nil)

// Record appends a journal entry. Returns ErrDuplicateKey when the
// (session_id, position_id, event) key already exists.
func (j *TradeJournal) Record(ctx context.Context, rec *domain.PositionRecord) error {
	if rec == nil || rec.SessionID == "" || rec.PositionID == "" || rec.Event == "" {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO trade_journal (
			session_id, position_id, event, direction,
			entry_price, quantity, leverage, risk_pct, reward_pct,
			stop_loss, take_profit, status,
			exit_price, return_pct, exit_reason, recorded_at
		) VALUES (
			$1, $2, $3, $4,
			$5, $6, $7, $8, $9,
			$10, $11, $12,
			$13, $14, $15, $16
		)
	`

	_, err := j.pool.Exec(ctx, query,
		rec.SessionID, rec.PositionID, rec.Event, string(rec.Direction),
		rec.EntryPrice, rec.Quantity, rec.Leverage, rec.RiskPct, rec.RewardPct,
		rec.StopLoss, rec.TakeProfit, string(rec.Status),
		rec.ExitPrice, rec.ReturnPct, rec.ExitReason, rec.RecordedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert journal entry: %w", err)
	}
	return nil
}

// BySession retrieves all entries for a session, ordered by recorded_at ASC.
func (j *TradeJournal) BySession(ctx context.Context, sessionID string) ([]*domain.PositionRecord, error) {
	query := `
		SELECT
			session_id, position_id, event, direction,
			entry_price, quantity, leverage, risk_pct, reward_pct,
			stop_loss, take_profit, status,
			exit_price, return_pct, exit_reason, recorded_at
		FROM trade_journal
		WHERE session_id = $1
		ORDER BY recorded_at ASC, position_id ASC
	`

	rows, err := j.pool.Query(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("get journal entries by session: %w", err)
	}
	defer rows.Close()

	return scanPositionRecords(rows)
}

// scanPositionRecords scans multiple rows into a slice of PositionRecord.
func scanPositionRecords(rows pgx.Rows) ([]*domain.PositionRecord, error) {
	var records []*domain.PositionRecord

	for rows.Next() {
		var rec domain.PositionRecord
		var direction, status string

		err := rows.Scan(
			&rec.SessionID, &rec.PositionID, &rec.Event, &direction,
			&rec.EntryPrice, &rec.Quantity, &rec.Leverage, &rec.RiskPct, &rec.RewardPct,
			&rec.StopLoss, &rec.TakeProfit, &status,
			&rec.ExitPrice, &rec.ReturnPct, &rec.ExitReason, &rec.RecordedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan journal row: %w", err)
		}

		rec.Direction = domain.Direction(direction)
		rec.Status = domain.PositionStatus(status)
		records = append(records, &rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate journal rows: %w", err)
	}

	return records, nil
}
