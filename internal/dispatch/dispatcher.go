// Package dispatch executes invocation directives: it resolves each directive
// through the hybrid matcher, calls the chosen skill on the skills host, asks
// the LLM to interpret the structured result, and publishes the resulting
// event sequence.
//
// Error handling is localized per dispatch: a failed match, skill call, or
// interpretation produces error events for that dispatch and the turn
// continues with any remaining directives. The only cross-dispatch state is
// the circuit breaker guarding the skills host.
package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/orakle-ai/orakle/internal/events"
	"github.com/orakle-ai/orakle/internal/matcher"
	"github.com/orakle-ai/orakle/internal/observe"
	"github.com/orakle-ai/orakle/internal/registry"
	"github.com/orakle-ai/orakle/internal/resilience"
	"github.com/orakle-ai/orakle/pkg/memory"
	"github.com/orakle-ai/orakle/pkg/provider/embeddings"
	"github.com/orakle-ai/orakle/pkg/provider/llm"
	"github.com/orakle-ai/orakle/pkg/skills"
)

// DefaultMemoryTopK is how many memory entries are retrieved for the
// interpretation prompt when no explicit value is configured.
const DefaultMemoryTopK = 5

// Options wires a Dispatcher to its collaborators. Matcher, Registry, Host,
// and Interpreter are required; Memory (with Embedder) and Breaker are
// optional.
type Options struct {
	// Matcher resolves directives to skills.
	Matcher *matcher.Matcher

	// Registry supplies the route and method of the chosen skill.
	Registry *registry.Registry

	// Host executes skill invocations.
	Host skills.Host

	// Interpreter is the LLM used for the second, interpretation stream.
	Interpreter llm.Provider

	// Memory optionally supplies user context for interpretation.
	Memory memory.Store

	// Embedder embeds the directive for the memory search. Required when
	// Memory is set.
	Embedder embeddings.Provider

	// Breaker optionally guards skill invocations. While open, dispatches
	// fail fast with a "skills host unavailable" error event.
	Breaker *resilience.CircuitBreaker

	// MemoryTopK caps the memory entries injected into the interpretation
	// prompt. Defaults to [DefaultMemoryTopK].
	MemoryTopK int

	// UserID scopes memory retrieval. Empty retrieves global entries only.
	UserID string

	// Metrics receives dispatch and skill instrumentation. Nil disables
	// recording.
	Metrics *observe.Metrics
}

// Dispatcher runs one directive at a time. Safe for concurrent use, though
// the turn orchestrator serializes dispatches in directive arrival order.
type Dispatcher struct {
	opts Options
}

// New constructs a Dispatcher.
func New(opts Options) *Dispatcher {
	if opts.MemoryTopK <= 0 {
		opts.MemoryTopK = DefaultMemoryTopK
	}
	return &Dispatcher{opts: opts}
}

// Dispatch runs the full match → invoke → interpret sequence for one
// directive, publishing its events to mux. It returns once the dispatch has
// reached a terminal state; errors are reported as events, not as a return
// value, because they end only this dispatch.
//
// Cancelling ctx aborts the dispatch at the next suspension point; the mux
// drops anything published after its own Abort.
func (d *Dispatcher) Dispatch(ctx context.Context, directive string, mux *events.Mux) {
	id := uuid.NewString()
	log := slog.With("dispatch_id", id)
	start := time.Now()
	status := "ok"
	defer func() {
		d.record(func(m *observe.Metrics) {
			m.RecordDispatch(ctx, status, time.Since(start).Seconds())
		})
	}()

	mux.Publish(events.NewLoading(events.LoadingStart))
	defer mux.Publish(events.NewLoading(events.LoadingStop))

	decision, err := d.opts.Matcher.Match(ctx, directive)
	if err != nil {
		log.Warn("skill resolution failed", "error", err)
		status = "resolution_error"
		mux.Publish(events.NewError(resolutionFailureMessage(err)))
		return
	}
	if decision.NoMatch() {
		log.Info("no suitable skill", "reason", decision.ErrorMsg)
		status = "no_match"
		mux.Publish(events.NewError(decision.ErrorMsg))
		return
	}

	descriptor, ok := d.opts.Registry.Find(decision.SkillID)
	if !ok {
		// The catalog was swapped between match and dispatch.
		log.Warn("matched skill vanished from catalog", "skill", decision.SkillID)
		status = "skill_vanished"
		mux.Publish(events.NewError(fmt.Sprintf("skill %s is no longer available", decision.SkillID)))
		return
	}

	log.Info("dispatching skill",
		"skill", descriptor.SkillID,
		"frustration", decision.FrustrationLevel)

	mux.Publish(events.NewCommand(descriptor.SkillID))
	mux.Publish(events.NewIntention(decision.Intention, id))

	invokeStart := time.Now()
	result, err := d.invoke(ctx, descriptor, decision.Parameters)
	d.record(func(m *observe.Metrics) {
		s := "ok"
		if err != nil {
			s = "error"
		}
		m.RecordSkillInvocation(ctx, descriptor.SkillID, s, time.Since(invokeStart).Seconds())
	})
	if err != nil {
		log.Warn("skill invocation failed", "skill", descriptor.SkillID, "error", err)
		status = "invocation_error"
		mux.Publish(events.NewError(invocationFailureMessage(descriptor.SkillID, err)))
		mux.Publish(events.NewCompleted())
		return
	}

	if err := d.interpret(ctx, directive, descriptor, result, id, mux); err != nil {
		if ctx.Err() != nil {
			status = "aborted"
			return
		}
		log.Warn("interpretation failed", "skill", descriptor.SkillID, "error", err)
		status = "interpretation_error"
		// The raw skill result is never shown in place of an interpretation.
		mux.Publish(events.NewError(fmt.Sprintf("I ran %s but could not explain the result.", descriptor.SkillID)))
		mux.Publish(events.NewCompleted())
		return
	}

	mux.Publish(events.NewCompleted())
}

// record runs fn against the configured metrics, if any.
func (d *Dispatcher) record(fn func(*observe.Metrics)) {
	if d.opts.Metrics != nil {
		fn(d.opts.Metrics)
	}
}

// invoke calls the skill, routed through the circuit breaker when one is
// configured.
func (d *Dispatcher) invoke(ctx context.Context, descriptor skills.Descriptor, params map[string]any) (json.RawMessage, error) {
	if d.opts.Breaker == nil {
		return d.opts.Host.Invoke(ctx, descriptor.Route, descriptor.Method, params)
	}

	var (
		result  json.RawMessage
		callErr error
	)
	err := d.opts.Breaker.Execute(func() error {
		result, callErr = d.opts.Host.Invoke(ctx, descriptor.Route, descriptor.Method, params)
		// A skill that answered with an error status is alive; only transport
		// failures count against the breaker.
		var statusErr *skills.StatusError
		if errors.As(callErr, &statusErr) {
			return nil
		}
		return callErr
	})
	if err != nil {
		return nil, err
	}
	if callErr != nil {
		return nil, callErr
	}
	return result, nil
}

// interpret opens the second LLM stream and forwards its chunks as
// skill-result stream events.
func (d *Dispatcher) interpret(ctx context.Context, directive string, descriptor skills.Descriptor, result json.RawMessage, messageID string, mux *events.Mux) error {
	memories := d.memoryContext(ctx, directive)

	stream, err := d.opts.Interpreter.StreamCompletion(ctx, llm.CompletionRequest{
		SystemPrompt: interpretationSystemPrompt,
		Messages: []llm.Message{{
			Role:    llm.RoleUser,
			Content: renderInterpretationPrompt(directive, descriptor, result, memories),
		}},
	})
	if err != nil {
		return fmt.Errorf("dispatch: open interpretation stream: %w", err)
	}

	for chunk := range stream {
		if chunk.FinishReason == "error" {
			return fmt.Errorf("dispatch: interpretation stream: %s", chunk.Text)
		}
		if chunk.Text != "" {
			mux.Publish(events.NewSkillResult(chunk.Text, messageID))
		}
	}
	return ctx.Err()
}

// memoryContext retrieves relevant memory entries for the directive. Failures
// are soft: interpretation proceeds without context.
func (d *Dispatcher) memoryContext(ctx context.Context, directive string) []memory.Result {
	if d.opts.Memory == nil || d.opts.Embedder == nil {
		return nil
	}

	vec, err := d.opts.Embedder.Embed(ctx, directive)
	if err != nil {
		slog.Warn("memory context skipped: embed failed", "error", err)
		return nil
	}
	results, err := d.opts.Memory.Search(ctx, vec, d.opts.MemoryTopK, memory.Filter{UserID: d.opts.UserID})
	if err != nil {
		slog.Warn("memory context skipped: search failed", "error", err)
		return nil
	}
	return results
}

// resolutionFailureMessage maps matcher errors onto caller-facing text.
func resolutionFailureMessage(err error) string {
	if errors.Is(err, matcher.ErrResolutionFailed) {
		return "I could not work out which skill to use for that."
	}
	return "Something went wrong while choosing a skill."
}

// invocationFailureMessage maps skill-call errors onto caller-facing text.
func invocationFailureMessage(skillID string, err error) string {
	if errors.Is(err, resilience.ErrCircuitOpen) {
		return "skills host unavailable"
	}
	var statusErr *skills.StatusError
	if errors.As(err, &statusErr) {
		return fmt.Sprintf("%s failed: %s", skillID, statusErr.Body)
	}
	return fmt.Sprintf("%s failed: %v", skillID, err)
}
