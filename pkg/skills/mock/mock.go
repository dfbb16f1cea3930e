// Package mock provides a test double for the skills.Host interface.
//
// Use Host to serve canned capability lists and invocation results without a
// live skills-host process, and to verify that routes, methods and parameter
// bodies reach the host exactly as dispatched.
package mock

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/orakle-ai/orakle/pkg/skills"
)

// InvokeCall records a single invocation of Invoke.
type InvokeCall struct {
	// Ctx is the context passed to Invoke.
	Ctx context.Context
	// Route is the skill route passed to Invoke.
	Route string
	// Method is the HTTP method passed to Invoke.
	Method string
	// Params is the parameter map passed to Invoke.
	Params map[string]any
}

// Host is a mock implementation of skills.Host.
type Host struct {
	mu sync.Mutex

	// --- Configurable responses ---

	// CapabilitiesResult is returned by Capabilities.
	CapabilitiesResult []skills.Descriptor

	// CapabilitiesErr, if non-nil, is returned as the error from Capabilities.
	CapabilitiesErr error

	// InvokeResults maps a route to the raw JSON result Invoke should return
	// for it. Routes with no entry fall back to InvokeResult.
	InvokeResults map[string]json.RawMessage

	// InvokeResult is returned by Invoke for routes absent from InvokeResults.
	InvokeResult json.RawMessage

	// InvokeErrs maps a route to an error Invoke should return for it.
	InvokeErrs map[string]error

	// InvokeErr, if non-nil, is returned by Invoke for routes absent from
	// InvokeErrs.
	InvokeErr error

	// HealthErr, if non-nil, is returned as the error from Health.
	HealthErr error

	// --- Call records ---

	// CapabilitiesCalls counts calls to Capabilities.
	CapabilitiesCalls int

	// InvokeCalls records every call to Invoke in order.
	InvokeCalls []InvokeCall

	// HealthCalls counts calls to Health.
	HealthCalls int
}

// Capabilities records the call and returns the configured descriptor list.
func (h *Host) Capabilities(ctx context.Context) ([]skills.Descriptor, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.CapabilitiesCalls++
	if h.CapabilitiesErr != nil {
		return nil, h.CapabilitiesErr
	}
	return h.CapabilitiesResult, nil
}

// Invoke records the call and returns the configured result for the route.
func (h *Host) Invoke(ctx context.Context, route, method string, params map[string]any) (json.RawMessage, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.InvokeCalls = append(h.InvokeCalls, InvokeCall{Ctx: ctx, Route: route, Method: method, Params: params})
	if err, ok := h.InvokeErrs[route]; ok {
		return nil, err
	}
	if h.InvokeErr != nil {
		return nil, h.InvokeErr
	}
	if res, ok := h.InvokeResults[route]; ok {
		return res, nil
	}
	return h.InvokeResult, nil
}

// Health records the call and returns HealthErr.
func (h *Host) Health(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.HealthCalls++
	return h.HealthErr
}

// Reset clears all recorded calls. Thread-safe.
func (h *Host) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.CapabilitiesCalls = 0
	h.InvokeCalls = nil
	h.HealthCalls = 0
}

// Ensure Host implements skills.Host at compile time.
var _ skills.Host = (*Host)(nil)
