// Package httpapi is the HTTP façade over the middleware: the ndjson chat
// stream, the configuration surface, provider and skill probes, and the
// supervised-service control endpoints.
//
// All non-streaming responses are JSON. Failures use a fixed envelope
// {"ok": false, "message": "..."} so clients never have to parse free-form
// error bodies.
package httpapi

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/orakle-ai/orakle/internal/config"
	"github.com/orakle-ai/orakle/internal/events"
	"github.com/orakle-ai/orakle/internal/health"
	"github.com/orakle-ai/orakle/internal/observe"
	"github.com/orakle-ai/orakle/internal/registry"
	"github.com/orakle-ai/orakle/internal/supervise"
	"github.com/orakle-ai/orakle/pkg/bridge"
	"github.com/orakle-ai/orakle/pkg/provider/llm"
)

// ChatRunner executes one chat turn, publishing every event to mux and
// closing it when the turn is done. Implemented by turn.Runner.
type ChatRunner interface {
	Run(ctx context.Context, message string, mux *events.Mux)
}

// Options wires the server's collaborators. Runner is a getter because the
// underlying provider stack is rebuilt when the configuration changes; it may
// return nil while no language model is configured. Bridge and Supervisor may
// be nil when the corresponding subprocess is not configured.
type Options struct {
	Store      *config.Store
	Runner     func() ChatRunner
	Registry   *registry.Registry
	Bridge     bridge.Bridge
	Supervisor *supervise.Supervisor
	Health     *health.Handler
	Metrics    *observe.Metrics

	// BuildLLM constructs a throwaway provider for the /test-llm probe.
	BuildLLM func(config.ProviderEntry) (llm.Provider, error)

	// OnServicesRestart runs after a successful service restart, letting the
	// caller reset circuit breakers that tripped while the services were down.
	OnServicesRestart func()
}

// Server serves the Orakle HTTP API.
type Server struct {
	opts Options
}

// New constructs a Server. Store, Registry, and Health must be non-nil.
func New(opts Options) *Server {
	if opts.Metrics == nil {
		opts.Metrics = observe.DefaultMetrics()
	}
	return &Server{opts: opts}
}

// Routes builds the full route table wrapped in the tracing and metrics
// middleware.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()

	s.opts.Health.Register(mux)
	mux.Handle("GET /metrics", promhttp.Handler())

	mux.HandleFunc("POST /framework/chat", s.handleChat)

	mux.HandleFunc("GET /config", s.handleGetConfig)
	mux.HandleFunc("PUT /config", s.handlePutConfig)
	mux.HandleFunc("GET /config/defaults", s.handleConfigDefaults)

	mux.HandleFunc("GET /providers", s.handleProviders)
	mux.HandleFunc("POST /test-llm", s.handleTestLLM)
	mux.HandleFunc("POST /test-skill-key", s.handleTestSkillKey)
	mux.HandleFunc("GET /capabilities", s.handleCapabilities)
	mux.HandleFunc("GET /hardware/acceleration", s.handleHardware)

	mux.HandleFunc("GET /services", s.handleServiceStates)
	mux.HandleFunc("GET /services/events", s.handleServiceEvents)
	mux.HandleFunc("POST /services/start", s.handleServiceStart)
	mux.HandleFunc("POST /services/stop", s.handleServiceStop)
	mux.HandleFunc("POST /services/restart", s.handleServiceRestart)

	return observe.Middleware(s.opts.Metrics)(mux)
}

// errorBody is the fixed failure envelope.
type errorBody struct {
	OK      bool   `json:"ok"`
	Message string `json:"message"`
}

// okBody is the fixed success envelope for endpoints with no payload.
type okBody struct {
	OK bool `json:"ok"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("response encode failed", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorBody{OK: false, Message: message})
}
