package events

import (
	"encoding/json"
	"testing"
)

func TestStreamEventEnvelopeShape(t *testing.T) {
	t.Parallel()

	ev := NewIntention("Let me calculate that.", "m1")
	raw, err := json.Marshal(ev)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var decoded struct {
		Type    string `json:"type"`
		Event   string `json:"event"`
		Content struct {
			Content struct {
				Content string `json:"content"`
				Flags   struct {
					Skill bool `json:"skill"`
				} `json:"flags"`
				MessageID string `json:"messageId"`
			} `json:"content"`
		} `json:"content"`
	}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded.Type != TypeMessage || decoded.Event != KindStream {
		t.Errorf("unexpected envelope: type=%q event=%q", decoded.Type, decoded.Event)
	}
	if decoded.Content.Content.Content != "Let me calculate that." {
		t.Errorf("unexpected chunk text %q", decoded.Content.Content.Content)
	}
	if !decoded.Content.Content.Flags.Skill {
		t.Error("expected skill flag to be set")
	}
	if decoded.Content.Content.MessageID != "m1" {
		t.Errorf("unexpected messageId %q", decoded.Content.Content.MessageID)
	}
}

func TestSignalEventShapes(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		event   Event
		kind    string
		content string
	}{
		{"loading start", NewLoading(LoadingStart), KindLoading, `{"state":"start"}`},
		{"loading stop", NewLoading(LoadingStop), KindLoading, `{"state":"stop"}`},
		{"command", NewCommand("tools/calculator"), KindCommand, `{"name":"tools/calculator"}`},
		{"completed", NewCompleted(), KindCompleted, `{}`},
		{"error", NewError("boom"), KindError, `{"message":"boom"}`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			raw, err := json.Marshal(tc.event)
			if err != nil {
				t.Fatalf("marshal: %v", err)
			}
			var decoded struct {
				Type    string          `json:"type"`
				Event   string          `json:"event"`
				Content json.RawMessage `json:"content"`
			}
			if err := json.Unmarshal(raw, &decoded); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if decoded.Type != TypeSignal {
				t.Errorf("expected type %q, got %q", TypeSignal, decoded.Type)
			}
			if decoded.Event != tc.kind {
				t.Errorf("expected event %q, got %q", tc.kind, decoded.Event)
			}
			if string(decoded.Content) != tc.content {
				t.Errorf("expected content %s, got %s", tc.content, decoded.Content)
			}
		})
	}
}
