// Package matcher resolves a natural-language directive to exactly one skill
// and its parameter object.
//
// Matching runs in two phases. Phase 1 embeds the directive and pre-filters
// the catalog by cosine similarity against each skill description. Phase 2
// shows the surviving candidates to an LLM and asks for a strict JSON
// decision: the chosen skill_id, extracted parameters, a conversational
// intention line, and a frustration score. Malformed LLM output triggers
// exactly one retry with a tighter reminder; a second failure surfaces as
// [ErrResolutionFailed].
package matcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/antzucaro/matchr"

	"github.com/orakle-ai/orakle/internal/registry"
	"github.com/orakle-ai/orakle/pkg/provider/llm"
	"github.com/orakle-ai/orakle/pkg/skills"
)

// ErrResolutionFailed is returned when the refinement LLM produced malformed
// output twice in a row and no decision could be recovered.
var ErrResolutionFailed = errors.New("matcher: skill resolution failed after retry")

// Default phase-1 tuning.
const (
	DefaultTopK            = 10
	DefaultSimilarityFloor = 0.35
	DefaultConfidenceFloor = 0.75
)

// maxIDRepairDistance is the largest Levenshtein distance at which a skill_id
// returned by the LLM is snapped to the closest candidate instead of being
// treated as malformed.
const maxIDRepairDistance = 2

// Config tunes the phase-1 pre-filter.
type Config struct {
	// TopK is the number of candidates retrieved by similarity.
	TopK int

	// SimilarityFloor discards candidates below this cosine similarity.
	SimilarityFloor float64

	// ConfidenceFloor lets phase 2 be skipped when a single parameterless
	// candidate scores at or above it.
	ConfidenceFloor float64
}

// withDefaults fills zero fields with the package defaults.
func (c Config) withDefaults() Config {
	if c.TopK <= 0 {
		c.TopK = DefaultTopK
	}
	if c.SimilarityFloor == 0 {
		c.SimilarityFloor = DefaultSimilarityFloor
	}
	if c.ConfidenceFloor == 0 {
		c.ConfidenceFloor = DefaultConfidenceFloor
	}
	return c
}

// Decision is the matcher's structured output for one directive.
//
// Either SkillID is non-empty and the decision names a skill with its
// parameters, or SkillID is empty and ErrorMsg explains why no skill fits.
type Decision struct {
	// SkillID is the chosen skill, present in the current catalog.
	SkillID string

	// Parameters holds only keys declared in the chosen skill's schema.
	Parameters map[string]any

	// Intention is a short conversational line describing what is about to
	// happen, shown to the user before the skill runs.
	Intention string

	// FrustrationLevel is the model's read of user frustration in [0, 1].
	FrustrationLevel float64

	// FrustrationReason optionally explains a non-zero frustration level.
	FrustrationReason string

	// ErrorMsg is set instead of SkillID when no suitable skill exists.
	ErrorMsg string
}

// NoMatch reports whether the decision declined to pick a skill.
func (d *Decision) NoMatch() bool { return d.SkillID == "" }

// Matcher is the two-phase resolver. Safe for concurrent use.
type Matcher struct {
	registry *registry.Registry
	llm      llm.Provider
	cfg      Config
}

// New constructs a Matcher over the given registry and refinement LLM.
func New(reg *registry.Registry, provider llm.Provider, cfg Config) *Matcher {
	return &Matcher{registry: reg, llm: provider, cfg: cfg.withDefaults()}
}

// Match resolves query to a decision.
//
// An empty candidate set after phase 1 yields a no-match decision without
// calling the LLM. LLM output that stays malformed after one retry returns
// [ErrResolutionFailed].
func (m *Matcher) Match(ctx context.Context, query string) (*Decision, error) {
	candidates, err := m.prefilter(ctx, query)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return &Decision{ErrorMsg: "I don't have a skill that can help with that."}, nil
	}

	// A lone high-confidence candidate with no parameters needs no LLM pass.
	if d := m.confidentShortcut(candidates); d != nil {
		return d, nil
	}

	prompt := renderSelectionPrompt(query, candidates)
	decision, parseErr := m.refine(ctx, prompt, candidates)
	if parseErr == nil {
		return decision, nil
	}

	slog.Warn("skill selection output malformed, retrying",
		"error", parseErr)
	decision, retryErr := m.refine(ctx, prompt+retryReminder, candidates)
	if retryErr == nil {
		return decision, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrResolutionFailed, retryErr)
}

// prefilter runs phase 1: similarity search plus the floor cut.
func (m *Matcher) prefilter(ctx context.Context, query string) ([]registry.Match, error) {
	matches, err := m.registry.Search(ctx, query, m.cfg.TopK, nil)
	if err != nil {
		return nil, fmt.Errorf("matcher: prefilter: %w", err)
	}
	kept := matches[:0]
	for _, match := range matches {
		if match.Similarity >= m.cfg.SimilarityFloor {
			kept = append(kept, match)
		}
	}
	return kept, nil
}

// confidentShortcut returns a ready decision when exactly one candidate
// survived, it scores at or above the confidence floor, and its schema
// declares no parameters. Anything else goes to phase 2.
func (m *Matcher) confidentShortcut(candidates []registry.Match) *Decision {
	if len(candidates) != 1 {
		return nil
	}
	top := candidates[0]
	if top.Similarity < m.cfg.ConfidenceFloor || len(top.Descriptor.Parameters) > 0 {
		return nil
	}
	return &Decision{
		SkillID:    top.Descriptor.SkillID,
		Parameters: map[string]any{},
		Intention:  fmt.Sprintf("Let me use %s for that.", top.Descriptor.SkillID),
	}
}

// decisionWire is the strict JSON shape expected from the refinement LLM.
type decisionWire struct {
	SkillID           string         `json:"skill_id"`
	Parameters        map[string]any `json:"parameters"`
	SkillIntention    string         `json:"skill_intention"`
	FrustrationLevel  float64        `json:"frustration_level"`
	FrustrationReason *string        `json:"frustration_reason"`
	ErrorMsg          string         `json:"error_msg"`
}

// refine runs one phase-2 LLM pass and validates its output against the
// candidate set.
func (m *Matcher) refine(ctx context.Context, prompt string, candidates []registry.Match) (*Decision, error) {
	resp, err := m.llm.Complete(ctx, llm.CompletionRequest{
		Messages:    []llm.Message{{Role: llm.RoleUser, Content: prompt}},
		Temperature: 0,
	})
	if err != nil {
		return nil, fmt.Errorf("matcher: refinement call: %w", err)
	}
	if resp == nil {
		return nil, fmt.Errorf("matcher: refinement call returned no response")
	}

	wire, err := parseDecision(resp.Content)
	if err != nil {
		return nil, err
	}

	if wire.SkillID == "" {
		if wire.ErrorMsg == "" {
			return nil, fmt.Errorf("matcher: decision has neither skill_id nor error_msg")
		}
		return &Decision{ErrorMsg: wire.ErrorMsg}, nil
	}

	descriptor, err := resolveSkillID(wire.SkillID, candidates)
	if err != nil {
		return nil, err
	}

	params := wire.Parameters
	if params == nil {
		params = map[string]any{}
	}
	if err := validateParameters(params, descriptor); err != nil {
		return nil, err
	}

	d := &Decision{
		SkillID:          descriptor.SkillID,
		Parameters:       params,
		Intention:        wire.SkillIntention,
		FrustrationLevel: wire.FrustrationLevel,
	}
	if wire.FrustrationReason != nil {
		d.FrustrationReason = *wire.FrustrationReason
	}
	if d.Intention == "" {
		d.Intention = fmt.Sprintf("Let me use %s for that.", descriptor.SkillID)
	}
	return d, nil
}

// parseDecision strictly decodes the LLM's JSON object, tolerating only a
// surrounding markdown code fence.
func parseDecision(raw string) (*decisionWire, error) {
	cleaned := stripCodeFence(strings.TrimSpace(raw))
	dec := json.NewDecoder(strings.NewReader(cleaned))
	dec.DisallowUnknownFields()

	var wire decisionWire
	if err := dec.Decode(&wire); err != nil {
		return nil, fmt.Errorf("matcher: decode decision: %w", err)
	}
	// Trailing content after the object means the model added prose.
	if dec.More() {
		return nil, fmt.Errorf("matcher: decision followed by extra content")
	}
	return &wire, nil
}

// resolveSkillID maps the LLM's skill_id onto a candidate, snapping obvious
// near-misses (typos, dropped prefixes) to the closest candidate id.
func resolveSkillID(id string, candidates []registry.Match) (skills.Descriptor, error) {
	for _, c := range candidates {
		if c.Descriptor.SkillID == id {
			return c.Descriptor, nil
		}
	}

	best := -1
	bestDist := maxIDRepairDistance + 1
	for i, c := range candidates {
		if dist := matchr.Levenshtein(id, c.Descriptor.SkillID); dist < bestDist {
			best = i
			bestDist = dist
		}
	}
	if best < 0 {
		return skills.Descriptor{}, fmt.Errorf("matcher: skill_id %q is not a candidate", id)
	}
	repaired := candidates[best].Descriptor
	slog.Warn("repaired near-miss skill_id from selection output",
		"returned", id,
		"repaired", repaired.SkillID,
		"distance", bestDist)
	return repaired, nil
}

// validateParameters enforces the decision invariants: only declared keys,
// and every required parameter present.
func validateParameters(params map[string]any, d skills.Descriptor) error {
	declared := make(map[string]bool, len(d.Parameters))
	for _, p := range d.Parameters {
		declared[p.Name] = true
	}
	for key := range params {
		if !declared[key] {
			return fmt.Errorf("matcher: parameter %q is not declared by %s", key, d.SkillID)
		}
	}
	for _, p := range d.Parameters {
		if !p.Required {
			continue
		}
		if _, ok := params[p.Name]; !ok {
			return fmt.Errorf("matcher: required parameter %q missing for %s", p.Name, d.SkillID)
		}
	}
	return nil
}

// stripCodeFence removes a surrounding ``` or ```json fence if present.
func stripCodeFence(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
