package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/orakle-ai/orakle/internal/config"
	"github.com/orakle-ai/orakle/internal/providers"
	"github.com/orakle-ai/orakle/pkg/provider/llm"
)

// testLLMTimeout bounds the /test-llm round trip. Probe completions are tiny,
// but cold local models can take a while to answer the first request.
const testLLMTimeout = 60 * time.Second

// handleGetConfig returns the live configuration. Secrets are masked unless
// the caller passes ?show_sensitive=true.
func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	show := r.URL.Query().Get("show_sensitive") == "true"
	writeJSON(w, http.StatusOK, s.opts.Store.Snapshot(show))
}

// handlePutConfig validates and applies a full configuration document. Masked
// secret placeholders in the body resolve against the stored values, so a
// client can round-trip a masked GET straight back.
func (s *Server) handlePutConfig(w http.ResponseWriter, r *http.Request) {
	var next config.Config
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&next); err != nil {
		writeError(w, http.StatusBadRequest, "invalid configuration body: "+err.Error())
		return
	}

	if _, err := s.opts.Store.Update(&next); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, okBody{OK: true})
}

// handleConfigDefaults returns the built-in default configuration, for
// setup UIs that want a starting point.
func (s *Server) handleConfigDefaults(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, config.Default())
}

// providersBody is the envelope of the /providers response.
type providersBody struct {
	Providers map[string]providers.Info `json:"providers"`
}

// handleProviders lists the known provider catalog, optionally narrowed by
// ?filter= matching provider ids, display names, and model names.
func (s *Server) handleProviders(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, providersBody{
		Providers: providers.Filter(r.URL.Query().Get("filter")),
	})
}

// probeBody is the JSON outcome of /test-llm and /test-skill-key. It mirrors
// the bridge's ProbeResult shape so both probe endpoints answer identically.
type probeBody struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// handleTestLLM builds a throwaway provider from the posted entry and sends a
// one-word completion through it. The provider is never installed; this only
// verifies that the credentials and model name work.
func (s *Server) handleTestLLM(w http.ResponseWriter, r *http.Request) {
	if s.opts.BuildLLM == nil {
		writeError(w, http.StatusServiceUnavailable, "provider probing is not available")
		return
	}

	var entry config.ProviderEntry
	if err := json.NewDecoder(r.Body).Decode(&entry); err != nil {
		writeError(w, http.StatusBadRequest, "invalid provider entry: "+err.Error())
		return
	}
	if entry.Name == "" {
		writeError(w, http.StatusBadRequest, "provider name must not be empty")
		return
	}

	p, err := s.opts.BuildLLM(entry)
	if err != nil {
		writeJSON(w, http.StatusOK, probeBody{Success: false, Message: err.Error()})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), testLLMTimeout)
	defer cancel()

	resp, err := p.Complete(ctx, llm.CompletionRequest{
		Messages: []llm.Message{{Role: llm.RoleUser, Content: "Reply with the single word: ready"}},
	})
	if err != nil {
		writeJSON(w, http.StatusOK, probeBody{Success: false, Message: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, probeBody{Success: true, Message: "model " + p.ModelID() + " answered: " + resp.Content})
}

// skillKeyRequest is the body of /test-skill-key.
type skillKeyRequest struct {
	Service string            `json:"service"`
	Keys    map[string]string `json:"keys"`
}

// handleTestSkillKey proxies a key probe to the python-bridge, which holds the
// per-service probing logic.
func (s *Server) handleTestSkillKey(w http.ResponseWriter, r *http.Request) {
	if s.opts.Bridge == nil {
		writeError(w, http.StatusServiceUnavailable, "the python bridge is not running")
		return
	}

	var req skillKeyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Service == "" {
		writeError(w, http.StatusBadRequest, "service must not be empty")
		return
	}

	result, err := s.opts.Bridge.TestSkillKey(r.Context(), req.Service, req.Keys)
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, probeBody{Success: result.Success, Message: result.Message})
}

// capability is the per-skill shape of the /capabilities response.
type capability struct {
	Description string `json:"description"`
	Type        string `json:"type"`
	Server      string `json:"server,omitempty"`
}

// handleCapabilities summarizes the current skill catalog, keyed by skill id.
func (s *Server) handleCapabilities(w http.ResponseWriter, _ *http.Request) {
	list := s.opts.Registry.List()
	out := make(map[string]capability, len(list))
	for _, d := range list {
		kind := d.Type
		if kind == "" {
			kind = "tool"
		}
		out[d.SkillID] = capability{
			Description: d.Description,
			Type:        kind,
			Server:      d.Server,
		}
	}
	writeJSON(w, http.StatusOK, out)
}

// handleHardware proxies the bridge's hardware acceleration probe verbatim.
func (s *Server) handleHardware(w http.ResponseWriter, r *http.Request) {
	if s.opts.Bridge == nil {
		writeError(w, http.StatusServiceUnavailable, "the python bridge is not running")
		return
	}

	raw, err := s.opts.Bridge.HardwareAcceleration(r.Context())
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write(raw)
}
