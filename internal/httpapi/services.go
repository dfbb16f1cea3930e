package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/coder/websocket"

	"github.com/orakle-ai/orakle/internal/supervise"
)

// handleServiceStates reports the current state of every supervised service.
func (s *Server) handleServiceStates(w http.ResponseWriter, _ *http.Request) {
	if s.opts.Supervisor == nil {
		writeError(w, http.StatusServiceUnavailable, "no supervised services are configured")
		return
	}
	writeJSON(w, http.StatusOK, s.opts.Supervisor.States())
}

// handleServiceEvents upgrades to a websocket and pushes one JSON frame per
// lifecycle update: state transitions plus startup progress lines parsed from
// the service's stdout. The current state of every service is sent first so a
// late subscriber starts from a complete picture.
func (s *Server) handleServiceEvents(w http.ResponseWriter, r *http.Request) {
	if s.opts.Supervisor == nil {
		writeError(w, http.StatusServiceUnavailable, "no supervised services are configured")
		return
	}

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		slog.Debug("websocket accept failed", "error", err)
		return
	}
	defer conn.CloseNow()

	// Subscribe before the snapshot so no transition falls in the gap.
	updates, cancel := s.opts.Supervisor.Subscribe()
	defer cancel()

	// CloseRead pumps the client side so pings are answered and returns a
	// context that ends when the client goes away.
	ctx := conn.CloseRead(r.Context())

	for name, state := range s.opts.Supervisor.States() {
		if err := writeUpdate(ctx, conn, supervise.Update{Service: name, State: state}); err != nil {
			return
		}
	}

	for {
		select {
		case <-ctx.Done():
			conn.Close(websocket.StatusNormalClosure, "")
			return
		case u, ok := <-updates:
			if !ok {
				conn.Close(websocket.StatusGoingAway, "supervisor stopped")
				return
			}
			if err := writeUpdate(ctx, conn, u); err != nil {
				return
			}
		}
	}
}

func writeUpdate(ctx context.Context, conn *websocket.Conn, u supervise.Update) error {
	data, err := json.Marshal(u)
	if err != nil {
		return err
	}
	return conn.Write(ctx, websocket.MessageText, data)
}

// handleServiceStart launches all configured services and waits for them to
// become healthy.
func (s *Server) handleServiceStart(w http.ResponseWriter, r *http.Request) {
	if s.opts.Supervisor == nil {
		writeError(w, http.StatusServiceUnavailable, "no supervised services are configured")
		return
	}
	if err := s.opts.Supervisor.StartAll(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, okBody{OK: true})
}

// stopRequest is the optional body of /services/stop.
type stopRequest struct {
	Force bool `json:"force"`
}

// handleServiceStop terminates all running services. With {"force": true} the
// processes are killed instead of being asked to exit.
func (s *Server) handleServiceStop(w http.ResponseWriter, r *http.Request) {
	if s.opts.Supervisor == nil {
		writeError(w, http.StatusServiceUnavailable, "no supervised services are configured")
		return
	}

	var req stopRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	if err := s.opts.Supervisor.StopAll(r.Context(), req.Force); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, okBody{OK: true})
}

// handleServiceRestart stops and relaunches all services, then gives the
// caller's hook a chance to reset tripped circuit breakers.
func (s *Server) handleServiceRestart(w http.ResponseWriter, r *http.Request) {
	if s.opts.Supervisor == nil {
		writeError(w, http.StatusServiceUnavailable, "no supervised services are configured")
		return
	}
	if err := s.opts.Supervisor.RestartAll(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if s.opts.OnServicesRestart != nil {
		s.opts.OnServicesRestart()
	}
	writeJSON(w, http.StatusOK, okBody{OK: true})
}
