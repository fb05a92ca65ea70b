package engine

import (
	"context"
	"log"
	"math/rand"
	"sort"
	"sync"

	"paper-trading-lab/internal/domain"
	"paper-trading-lab/internal/pricing"
	"paper-trading-lab/internal/storage"
)

// RegistryOptions holds the shared dependencies every session is wired with.
type RegistryOptions struct {
	Prices  pricing.Source
	Journal storage.TradeJournal
	Equity  storage.EquityPointStore
	Rand    *rand.Rand
	Logger  *log.Logger
}

// Registry owns the live sessions of the service and hands out the shared
// dependencies when creating new ones.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	opts     RegistryOptions
	logger   *log.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(opts RegistryOptions) *Registry {
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &Registry{
		sessions: make(map[string]*Session),
		opts:     opts,
		logger:   logger,
	}
}

// Create registers a new stopped session from the given config. The config
// is normalized and validated; zero fields take defaults.
func (r *Registry) Create(cfg domain.SessionConfig) (*Session, error) {
	sess, err := NewSession(SessionOptions{
		Config:  cfg,
		Prices:  r.opts.Prices,
		Journal: r.opts.Journal,
		Equity:  r.opts.Equity,
		Rand:    r.opts.Rand,
		Logger:  r.logger,
	})
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.sessions[sess.ID()] = sess
	r.mu.Unlock()

	r.logger.Printf("[registry] created session %s (%s)", sess.ID(), sess.Config().Symbol)
	return sess, nil
}

// Get returns the session with the given ID.
func (r *Registry) Get(id string) (*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sess, ok := r.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return sess, nil
}

// List returns all sessions ordered by ID.
func (r *Registry) List() []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Session, 0, len(r.sessions))
	for _, sess := range r.sessions {
		out = append(out, sess)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

// Delete stops a session and removes it from the registry.
func (r *Registry) Delete(ctx context.Context, id string) error {
	sess, err := r.Get(id)
	if err != nil {
		return err
	}
	if err := sess.Stop(ctx); err != nil {
		return err
	}

	r.mu.Lock()
	delete(r.sessions, id)
	r.mu.Unlock()

	r.logger.Printf("[registry] deleted session %s", id)
	return nil
}

// StopAll stops every registered session. Used during shutdown so open
// positions are settled before the process exits.
func (r *Registry) StopAll(ctx context.Context) {
	for _, sess := range r.List() {
		if err := sess.Stop(ctx); err != nil {
			r.logger.Printf("[registry] stop session %s: %v", sess.ID(), err)
		}
	}
}
