package memory

import (
	"context"
	"sort"
	"sync"

	"paper-trading-lab/internal/domain"
	"paper-trading-lab/internal/storage"
)

// EquityPointStore is an in-memory implementation of storage.EquityPointStore.
// Points carry no natural unique key (two closes can land in the same
// millisecond), so inserts are plain appends.
type EquityPointStore struct {
	mu   sync.RWMutex
	data map[string][]*domain.EquityPoint // keyed by session_id
}

// NewEquityPointStore creates a new in-memory equity point store.
func NewEquityPointStore() *EquityPointStore {
	return &EquityPointStore{
		data: make(map[string][]*domain.EquityPoint),
	}
}

// Insert appends an equity point.
func (s *EquityPointStore) Insert(_ context.Context, p *domain.EquityPoint) error {
	if p == nil || p.SessionID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	copy := *p
	s.data[p.SessionID] = append(s.data[p.SessionID], &copy)
	return nil
}

// BySession retrieves all points for a session, ordered by timestamp ASC.
func (s *EquityPointStore) BySession(_ context.Context, sessionID string) ([]*domain.EquityPoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	points := s.data[sessionID]
	result := make([]*domain.EquityPoint, 0, len(points))
	for _, p := range points {
		copy := *p
		result = append(result, &copy)
	}

	sort.Slice(result, func(i, k int) bool {
		return result[i].TimestampMs < result[k].TimestampMs
	})

	return result, nil
}

var _ storage.EquityPointStore = (*EquityPointStore)(nil)
