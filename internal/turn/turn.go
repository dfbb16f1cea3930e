// Package turn orchestrates one full chat turn: it drives the primary LLM
// stream through the directive parser, forwards narrative chunks straight to
// the event multiplexer, and hands each completed directive to the
// dispatcher.
//
// Dispatches run serialized in directive arrival order on a single worker
// goroutine while the primary stream keeps flowing, so later narrative may
// interleave with an earlier dispatch's events. Intra-dispatch order and the
// narrative-before-its-directive guarantee both hold because narrative is
// published before the directive that follows it is enqueued.
package turn

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/orakle-ai/orakle/internal/dispatch"
	"github.com/orakle-ai/orakle/internal/events"
	"github.com/orakle-ai/orakle/internal/observe"
	"github.com/orakle-ai/orakle/internal/registry"
	"github.com/orakle-ai/orakle/internal/streamparse"
	"github.com/orakle-ai/orakle/pkg/provider/llm"
)

// directiveQueueSize bounds the number of directives waiting for the worker.
// The primary stream blocks when the queue is full, which only happens when a
// single response carries an unreasonable number of directives.
const directiveQueueSize = 16

// Runner executes chat turns. Safe for concurrent use; each Run call is one
// independent turn.
type Runner struct {
	provider   llm.Provider
	dispatcher *dispatch.Dispatcher
	registry   *registry.Registry
	metrics    *observe.Metrics
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithMetrics enables turn instrumentation.
func WithMetrics(m *observe.Metrics) RunnerOption {
	return func(r *Runner) { r.metrics = m }
}

// NewRunner constructs a Runner.
func NewRunner(provider llm.Provider, dispatcher *dispatch.Dispatcher, reg *registry.Registry, opts ...RunnerOption) *Runner {
	r := &Runner{provider: provider, dispatcher: dispatcher, registry: reg}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Run executes one turn for message, publishing all events to mux, and closes
// mux when the turn is finished. It blocks until the primary stream is
// drained and every dispatch has reached a terminal state.
//
// Cancelling ctx stops the turn at the next suspension point; the caller is
// responsible for mux.Abort on user-initiated aborts.
func (r *Runner) Run(ctx context.Context, message string, mux *events.Mux) {
	defer mux.Close()

	messageID := uuid.NewString()
	log := slog.With("turn_id", messageID)

	start := time.Now()
	turnStatus := "ok"
	if r.metrics != nil {
		r.metrics.ActiveTurns.Add(ctx, 1)
		defer func() {
			r.metrics.ActiveTurns.Add(ctx, -1)
			r.metrics.RecordTurn(ctx, turnStatus, time.Since(start).Seconds())
		}()
	}

	stream, err := r.provider.StreamCompletion(ctx, llm.CompletionRequest{
		SystemPrompt: renderSystemPrompt(r.registry.List()),
		Messages:     []llm.Message{{Role: llm.RoleUser, Content: message}},
	})
	if err != nil {
		log.Warn("primary stream failed to open", "error", err)
		turnStatus = "stream_open_error"
		mux.Publish(events.NewError("The language model is not reachable right now."))
		return
	}

	directives := make(chan string, directiveQueueSize)
	workerDone := make(chan struct{})
	go func() {
		defer close(workerDone)
		for directive := range directives {
			r.dispatcher.Dispatch(ctx, directive, mux)
		}
	}()

	parser := streamparse.New()
	streamFailed := false
	for chunk := range stream {
		if chunk.FinishReason == "error" {
			log.Warn("primary stream error", "detail", chunk.Text)
			turnStatus = "stream_error"
			mux.Publish(events.NewError("The language model stream was interrupted."))
			streamFailed = true
			break
		}
		if chunk.Text == "" {
			continue
		}
		r.emit(parser.Feed(chunk.Text), messageID, mux, directives)
	}

	if !streamFailed {
		tail, err := parser.Close()
		r.emit(tail, messageID, mux, directives)
		if errors.Is(err, streamparse.ErrUnterminatedDirective) {
			log.Warn("stream ended inside a directive")
			turnStatus = "unterminated_directive"
			mux.Publish(events.NewError("The response ended before a skill request was complete."))
		}
	}

	close(directives)
	<-workerDone
}

// emit routes parser items: narrative goes straight to the mux, directives go
// to the dispatch worker.
func (r *Runner) emit(items []streamparse.Item, messageID string, mux *events.Mux, directives chan<- string) {
	for _, item := range items {
		switch item.Kind {
		case streamparse.KindNarrative:
			mux.Publish(events.NewNarrative(item.Text, messageID))
		case streamparse.KindDirective:
			directives <- item.Text
		}
	}
}
