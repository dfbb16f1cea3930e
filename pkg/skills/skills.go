// Package skills defines the client surface for the out-of-process skills host.
//
// The skills host is a supervised subprocess that exposes the installed
// skills: a /capabilities endpoint returning every skill descriptor, one HTTP
// route per skill accepting a JSON parameter object, and a /health liveness
// endpoint. Skill implementations themselves are opaque — Orakle only ever
// sees their descriptors and their structured JSON results.
package skills

import (
	"context"
	"encoding/json"
)

// Parameter describes one named parameter in a skill's schema.
type Parameter struct {
	// Name is the parameter name as it appears in the invocation body.
	Name string `json:"name"`

	// Type is the declared value type ("string", "number", "boolean",
	// "object", "array").
	Type string `json:"type"`

	// Required marks parameters the skill cannot run without. The matcher
	// disqualifies a skill when a required parameter has no inferable value.
	Required bool `json:"required"`

	// Description optionally explains the parameter for the refinement prompt.
	Description string `json:"description,omitempty"`
}

// Descriptor is the wire representation of one skill as served by the skills
// host's /capabilities endpoint.
type Descriptor struct {
	// SkillID is the stable identity of the skill (e.g., "tools/calculator").
	SkillID string `json:"skill_id"`

	// Description is the natural-language summary embedded for semantic search
	// and shown to the refinement LLM.
	Description string `json:"description"`

	// Parameters is the ordered parameter schema.
	Parameters []Parameter `json:"parameters"`

	// Route is the skill's HTTP path on the skills host.
	Route string `json:"route"`

	// Method is the HTTP method for Route. Defaults to POST when empty.
	Method string `json:"method,omitempty"`

	// Type categorises the skill for UI display (e.g., "tool", "system").
	Type string `json:"type,omitempty"`

	// Server optionally names the backing service for keyed skills.
	Server string `json:"server,omitempty"`
}

// Host is the abstraction over the skills-host process. The production
// implementation is [Client]; tests use the mock subpackage.
//
// Implementations must be safe for concurrent use.
type Host interface {
	// Capabilities fetches all skill descriptors currently served by the host.
	Capabilities(ctx context.Context) ([]Descriptor, error)

	// Invoke calls the skill at route/method with params as the JSON body and
	// returns the raw structured result. Non-2xx responses are returned as a
	// [*StatusError] so callers can distinguish transport failures from skill
	// failures.
	Invoke(ctx context.Context, route, method string, params map[string]any) (json.RawMessage, error)

	// Health probes the host's liveness endpoint. A nil return means the host
	// answered.
	Health(ctx context.Context) error
}
