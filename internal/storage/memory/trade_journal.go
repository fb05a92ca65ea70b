package memory

import (
	"context"
	"sort"
	"sync"

	"paper-trading-lab/internal/domain"
	"paper-trading-lab/internal/storage"
)

// TradeJournal is an in-memory implementation of storage.TradeJournal.
type TradeJournal struct {
	mu   sync.RWMutex
	data map[journalKey]*domain.PositionRecord
}

type journalKey struct {
	sessionID  string
	positionID string
	event      string
}

// NewTradeJournal creates a new in-memory trade journal.
func NewTradeJournal() *TradeJournal {
	return &TradeJournal{
		data: make(map[journalKey]*domain.PositionRecord),
	}
}

// Record appends an entry. Returns ErrDuplicateKey if the
// (session_id, position_id, event) key exists.
func (j *TradeJournal) Record(_ context.Context, rec *domain.PositionRecord) error {
	if rec == nil || rec.SessionID == "" || rec.PositionID == "" || rec.Event == "" {
		return storage.ErrInvalidInput
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	key := journalKey{rec.SessionID, rec.PositionID, rec.Event}
	if _, exists := j.data[key]; exists {
		return storage.ErrDuplicateKey
	}

	copy := *rec
	j.data[key] = &copy
	return nil
}

// BySession retrieves all entries for a session, ordered by recorded_at ASC.
func (j *TradeJournal) BySession(_ context.Context, sessionID string) ([]*domain.PositionRecord, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()

	var result []*domain.PositionRecord
	for key, rec := range j.data {
		if key.sessionID == sessionID {
			copy := *rec
			result = append(result, &copy)
		}
	}

	sort.Slice(result, func(i, k int) bool {
		if result[i].RecordedAt.Equal(result[k].RecordedAt) {
			return result[i].PositionID < result[k].PositionID
		}
		return result[i].RecordedAt.Before(result[k].RecordedAt)
	})

	return result, nil
}

var _ storage.TradeJournal = (*TradeJournal)(nil)
