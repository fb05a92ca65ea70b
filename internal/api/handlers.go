package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"paper-trading-lab/internal/domain"
)

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req CreateSessionRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	sess, err := s.registry.Create(req.Config())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, sess.Snapshot())
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	sessions := s.registry.List()
	summaries := make([]domain.SessionSummary, len(sessions))
	for i, sess := range sessions {
		summaries[i] = sess.Snapshot()
	}
	writeJSON(w, http.StatusOK, summaries)
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.registry.Delete(r.Context(), id); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, StatusResponse{Status: "deleted", SessionID: id})
}

func (s *Server) handleStartSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.registry.Get(r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	var req StartSessionRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	interval := s.tickInterval
	if req.IntervalSeconds > 0 {
		interval = time.Duration(req.IntervalSeconds) * time.Second
	}

	// The loop must outlive this request, so it is not bound to r.Context().
	if err := sess.Start(context.Background(), req.MaxTrades, interval); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, StatusResponse{Status: "started", SessionID: sess.ID()})
}

func (s *Server) handleStopSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.registry.Get(r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := sess.Stop(r.Context()); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, StatusResponse{Status: "stopped", SessionID: sess.ID()})
}

func (s *Server) handleOpenTrade(w http.ResponseWriter, r *http.Request) {
	sess, err := s.registry.Get(r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	var req OpenTradeRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	direction, err := domain.ParseDirection(req.Direction)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	pos, err := sess.OpenPosition(r.Context(), direction)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, pos)
}

func (s *Server) handleRebalance(w http.ResponseWriter, r *http.Request) {
	sess, err := s.registry.Get(r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sess.ForceRebalance())
}

func (s *Server) handleOptimize(w http.ResponseWriter, r *http.Request) {
	sess, err := s.registry.Get(r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sess.SuggestTuning())
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	sess, err := s.registry.Get(r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sess.Snapshot())
}

func (s *Server) handleListTrades(w http.ResponseWriter, r *http.Request) {
	sess, err := s.registry.Get(r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	open, closed := sess.Positions()
	writeJSON(w, http.StatusOK, TradesResponse{Open: open, Closed: closed})
}

// recentSignalLimit caps the signals returned by the API.
const recentSignalLimit = 10

func (s *Server) handleListSignals(w http.ResponseWriter, r *http.Request) {
	sess, err := s.registry.Get(r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	signals, balance := sess.Signals(recentSignalLimit)
	writeJSON(w, http.StatusOK, SignalsResponse{Signals: signals, Balance: balance})
}

func (s *Server) handlePrice(w http.ResponseWriter, r *http.Request) {
	sess, err := s.registry.Get(r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	price, err := sess.Price(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, PriceResponse{Symbol: sess.Config().Symbol, Price: price})
}

// decodeBody parses an optional JSON body. An empty body leaves v untouched;
// malformed JSON maps to a validation error.
func decodeBody(r *http.Request, v any) error {
	err := json.NewDecoder(r.Body).Decode(v)
	if err == nil || err == io.EOF {
		return nil
	}
	return fmt.Errorf("%w: %v", errBadRequestBody, err)
}
