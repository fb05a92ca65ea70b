// Package api exposes the session engine over HTTP with JSON bodies.
package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"paper-trading-lab/internal/domain"
	"paper-trading-lab/internal/engine"
	"paper-trading-lab/internal/observability"
	"paper-trading-lab/internal/pricing"
	"paper-trading-lab/internal/risk"
)

// Options configures the HTTP server.
type Options struct {
	Registry *engine.Registry

	// TickInterval is the default control loop interval for started
	// sessions. Zero keeps the engine default.
	TickInterval time.Duration

	Logger *log.Logger
}

// Server routes HTTP requests to the session registry.
type Server struct {
	registry     *engine.Registry
	tickInterval time.Duration
	logger       *log.Logger
}

// NewServer creates a Server from options.
func NewServer(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &Server{
		registry:     opts.Registry,
		tickInterval: opts.TickInterval,
		logger:       logger,
	}
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("GET /metrics", observability.Handler())

	mux.HandleFunc("POST /api/sessions", s.handleCreateSession)
	mux.HandleFunc("GET /api/sessions", s.handleListSessions)
	mux.HandleFunc("DELETE /api/sessions/{id}", s.handleDeleteSession)

	mux.HandleFunc("POST /api/sessions/{id}/start", s.handleStartSession)
	mux.HandleFunc("POST /api/sessions/{id}/stop", s.handleStopSession)
	mux.HandleFunc("POST /api/sessions/{id}/trades", s.handleOpenTrade)
	mux.HandleFunc("POST /api/sessions/{id}/rebalance", s.handleRebalance)
	mux.HandleFunc("POST /api/sessions/{id}/optimize", s.handleOptimize)

	mux.HandleFunc("GET /api/sessions/{id}/summary", s.handleSummary)
	mux.HandleFunc("GET /api/sessions/{id}/trades", s.handleListTrades)
	mux.HandleFunc("GET /api/sessions/{id}/signals", s.handleListSignals)
	mux.HandleFunc("GET /api/sessions/{id}/price", s.handlePrice)

	return mux
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

// writeJSON serializes v with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError maps engine and domain errors onto HTTP status codes.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError

	switch {
	case errors.Is(err, engine.ErrSessionNotFound):
		status = http.StatusNotFound
	case errors.Is(err, engine.ErrAlreadyRunning):
		status = http.StatusConflict
	case errors.Is(err, domain.ErrInvalidDirection),
		errors.Is(err, domain.ErrInvalidLeverage),
		errors.Is(err, domain.ErrInvalidBalance),
		errors.Is(err, engine.ErrPositionCapReached),
		errors.Is(err, engine.ErrInsufficientBalance),
		errors.Is(err, risk.ErrInvalidStopDistance),
		errors.Is(err, risk.ErrInvalidQuantity),
		errors.Is(err, errBadRequestBody):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, pricing.ErrUnavailable):
		status = http.StatusBadGateway
	}

	if status == http.StatusInternalServerError {
		s.logger.Printf("[api] %s %s: %v", r.Method, r.URL.Path, err)
	}
	writeJSON(w, status, ErrorResponse{Error: err.Error()})
}

// errBadRequestBody wraps JSON decoding failures so they map to 422.
var errBadRequestBody = errors.New("invalid request body")
