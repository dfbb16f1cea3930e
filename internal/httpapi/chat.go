package httpapi

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/orakle-ai/orakle/internal/events"
)

// chatRequest is the body of POST /framework/chat. UseTTS is accepted for
// protocol compatibility; audio segments only appear on stream events when a
// synthesis backend is wired in.
type chatRequest struct {
	Message string `json:"message"`
	UseTTS  bool   `json:"use_tts"`
}

// handleChat runs one chat turn and streams its events as newline-delimited
// JSON. The connection stays open until the turn finishes; a client
// disconnect aborts the turn.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Message == "" {
		writeError(w, http.StatusBadRequest, "message must not be empty")
		return
	}

	runner := s.opts.Runner()
	if runner == nil {
		writeError(w, http.StatusServiceUnavailable, "no language model is configured")
		return
	}

	w.Header().Set("Content-Type", "application/x-ndjson; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	rc := http.NewResponseController(w)

	mux := events.NewMux()
	go runner.Run(r.Context(), req.Message, mux)

	enc := json.NewEncoder(w)
	for {
		select {
		case ev, ok := <-mux.Events():
			if !ok {
				return
			}
			if err := enc.Encode(ev); err != nil {
				s.abortTurn(mux)
				return
			}
			if err := rc.Flush(); err != nil {
				s.abortTurn(mux)
				return
			}
		case <-r.Context().Done():
			s.abortTurn(mux)
			return
		}
	}
}

// abortTurn cancels the turn's event stream and drains it so the mux delivery
// goroutine can exit. The runner itself stops via the request context.
func (s *Server) abortTurn(mux *events.Mux) {
	mux.Abort()
	for range mux.Events() {
	}
	slog.Debug("chat turn aborted by client")
}
