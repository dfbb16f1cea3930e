// Package events defines the outbound event protocol and the per-turn
// multiplexer that orders it.
//
// Every record sent to a chat caller is an [Event] with the fixed envelope
// {type, event, content}. Events for one turn are strictly ordered by a
// monotonic sequence number assigned when the event enters the turn's [Mux].
package events

// Envelope type values.
const (
	TypeMessage = "message"
	TypeSignal  = "signal"
)

// Envelope event values.
const (
	KindStream    = "stream"
	KindLoading   = "loading"
	KindCommand   = "command"
	KindCompleted = "completed"
	KindError     = "error"
	KindAbort     = "abort"
)

// Loading states.
const (
	LoadingStart = "start"
	LoadingStop  = "stop"
)

// Flags qualifies a stream chunk for the UI.
type Flags struct {
	// Skill marks the chunk as skill-related (the pre-call intention line and
	// interpreted skill results) so the UI can render it separately.
	Skill bool `json:"skill,omitempty"`

	// Audio marks the chunk as carrying a TTS audio segment. Set only when a
	// synthesis backend is wired in; the Go core never produces it itself.
	Audio bool `json:"audio,omitempty"`

	// Duration is an estimated display duration in seconds. Like Audio, it
	// is populated only by a synthesis backend.
	Duration float64 `json:"duration,omitempty"`
}

// Audio points at a synthesized audio segment for a stream chunk. Produced
// only when a synthesis backend is wired in.
type Audio struct {
	// URL locates the audio segment.
	URL string `json:"url"`
}

// StreamChunk is the inner payload of a stream event.
type StreamChunk struct {
	// Content is the text of this chunk.
	Content string `json:"content"`

	// Flags qualifies the chunk.
	Flags Flags `json:"flags"`

	// Audio is set when Flags.Audio is true.
	Audio *Audio `json:"audio,omitempty"`

	// MessageID correlates chunks belonging to one logical message.
	MessageID string `json:"messageId,omitempty"`
}

// streamContent is the wire wrapper around a StreamChunk. The double nesting
// is part of the fixed protocol.
type streamContent struct {
	Content StreamChunk `json:"content"`
}

// loadingContent is the wire payload of a loading signal.
type loadingContent struct {
	State string `json:"state"`
}

// commandContent is the wire payload of a command signal.
type commandContent struct {
	Name string `json:"name"`
}

// errorContent is the wire payload of an error signal.
type errorContent struct {
	Message string `json:"message"`
}

// Event is one record in the outbound stream.
//
// The JSON shape is the fixed caller-facing envelope; the sequence number is
// internal ordering state and is not serialized.
type Event struct {
	Type    string `json:"type"`
	Event   string `json:"event"`
	Content any    `json:"content"`

	seq uint64
}

// Seq returns the event's turn-local sequence number. It is zero until the
// event has been published to a [Mux].
func (e Event) Seq() uint64 { return e.seq }

// NewStream builds a stream event carrying one chunk of text.
func NewStream(chunk StreamChunk) Event {
	return Event{
		Type:    TypeMessage,
		Event:   KindStream,
		Content: streamContent{Content: chunk},
	}
}

// NewNarrative builds a plain narrative stream event with no flags set.
func NewNarrative(text, messageID string) Event {
	return NewStream(StreamChunk{Content: text, MessageID: messageID})
}

// NewIntention builds the skill-flagged stream event announcing what a skill
// call is about to do.
func NewIntention(text, messageID string) Event {
	return NewStream(StreamChunk{Content: text, Flags: Flags{Skill: true}, MessageID: messageID})
}

// NewSkillResult builds a skill-flagged stream event carrying a chunk of
// interpreted skill output.
func NewSkillResult(text, messageID string) Event {
	return NewStream(StreamChunk{Content: text, Flags: Flags{Skill: true}, MessageID: messageID})
}

// NewLoading builds a loading signal. state is [LoadingStart] or [LoadingStop].
func NewLoading(state string) Event {
	return Event{
		Type:    TypeSignal,
		Event:   KindLoading,
		Content: loadingContent{State: state},
	}
}

// NewCommand builds the signal announcing that the named skill is starting.
func NewCommand(name string) Event {
	return Event{
		Type:    TypeSignal,
		Event:   KindCommand,
		Content: commandContent{Name: name},
	}
}

// NewCompleted builds the signal marking a skill dispatch as finished.
func NewCompleted() Event {
	return Event{
		Type:    TypeSignal,
		Event:   KindCompleted,
		Content: struct{}{},
	}
}

// NewError builds an error signal carrying a human-readable message.
func NewError(message string) Event {
	return Event{
		Type:    TypeSignal,
		Event:   KindError,
		Content: errorContent{Message: message},
	}
}

// newAbort builds the abort signal. Only the Mux emits it, exactly once per
// turn.
func newAbort() Event {
	return Event{
		Type:    TypeSignal,
		Event:   KindAbort,
		Content: struct{}{},
	}
}
