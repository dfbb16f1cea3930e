package streamparse

import (
	"strings"
	"testing"
)

// feedAll pushes every chunk through a fresh parser and returns all items plus
// the Close result.
func feedAll(t *testing.T, chunks []string) ([]Item, error) {
	t.Helper()
	p := New()
	var items []Item
	for _, c := range chunks {
		items = append(items, p.Feed(c)...)
	}
	closing, err := p.Close()
	return append(items, closing...), err
}

// narrativeText concatenates all narrative items.
func narrativeText(items []Item) string {
	var b strings.Builder
	for _, it := range items {
		if it.Kind == KindNarrative {
			b.WriteString(it.Text)
		}
	}
	return b.String()
}

// directives extracts all directive bodies in order.
func directives(items []Item) []string {
	var out []string
	for _, it := range items {
		if it.Kind == KindDirective {
			out = append(out, it.Text)
		}
	}
	return out
}

func TestPureNarrative(t *testing.T) {
	t.Parallel()

	items, err := feedAll(t, []string{"Hello, ", "who are ", "you?"})
	if err != nil {
		t.Fatalf("close: %v", err)
	}
	if got := narrativeText(items); got != "Hello, who are you?" {
		t.Errorf("narrative = %q", got)
	}
	if d := directives(items); len(d) != 0 {
		t.Errorf("unexpected directives %v", d)
	}
}

func TestSingleDirectiveWithSurroundingNarrative(t *testing.T) {
	t.Parallel()

	items, err := feedAll(t, []string{
		"Sure, let me check. <<<ORAKLE compute cos(3.14159) * 2 ORAKLE done.",
	})
	if err != nil {
		t.Fatalf("close: %v", err)
	}
	d := directives(items)
	if len(d) != 1 || d[0] != "compute cos(3.14159) * 2" {
		t.Fatalf("directives = %v", d)
	}
	if got := narrativeText(items); got != "Sure, let me check.  done." {
		t.Errorf("narrative = %q", got)
	}
}

func TestMarkersSplitByteByByte(t *testing.T) {
	t.Parallel()

	full := "hi <<<ORAKLE get weather in Paris ORAKLE bye"
	var chunks []string
	for i := 0; i < len(full); i++ {
		chunks = append(chunks, full[i:i+1])
	}

	items, err := feedAll(t, chunks)
	if err != nil {
		t.Fatalf("close: %v", err)
	}
	d := directives(items)
	if len(d) != 1 || d[0] != "get weather in Paris" {
		t.Fatalf("directives = %v", d)
	}
	if got := narrativeText(items); got != "hi  bye" {
		t.Errorf("narrative = %q", got)
	}
}

func TestEmbeddedMarkerWordDoesNotClose(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name  string
		input string
		want  string
	}{
		{
			"glued right",
			"<<<ORAKLE look up ORAKLEsque paintings ORAKLE",
			"look up ORAKLEsque paintings",
		},
		{
			"glued left",
			"<<<ORAKLE search for fooORAKLE bars ORAKLE",
			"search for fooORAKLE bars",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			items, err := feedAll(t, []string{tc.input})
			if err != nil {
				t.Fatalf("close: %v", err)
			}
			d := directives(items)
			if len(d) != 1 || d[0] != tc.want {
				t.Fatalf("directives = %v, want [%q]", d, tc.want)
			}
		})
	}
}

func TestTwoAdjacentDirectives(t *testing.T) {
	t.Parallel()

	items, err := feedAll(t, []string{
		"<<<ORAKLE get weather in Paris ORAKLE<<<ORAKLE convert 20 C to F ORAKLE",
	})
	if err != nil {
		t.Fatalf("close: %v", err)
	}
	d := directives(items)
	if len(d) != 2 {
		t.Fatalf("expected 2 directives, got %v", d)
	}
	if d[0] != "get weather in Paris" || d[1] != "convert 20 C to F" {
		t.Errorf("directives = %v", d)
	}
}

func TestNarrativePrecedesDirective(t *testing.T) {
	t.Parallel()

	p := New()
	items := p.Feed("before <<<ORAKLE do it ORAKLE after")
	if _, err := p.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	var order []Kind
	for _, it := range items {
		order = append(order, it.Kind)
	}
	if len(items) < 2 || items[0].Kind != KindNarrative || items[1].Kind != KindDirective {
		t.Fatalf("unexpected item order %v", order)
	}
	if items[0].Text != "before " {
		t.Errorf("leading narrative = %q", items[0].Text)
	}
}

func TestClosingMarkerAtEndOfStream(t *testing.T) {
	t.Parallel()

	items, err := feedAll(t, []string{"<<<ORAKLE find my documents ORAKLE"})
	if err != nil {
		t.Fatalf("close: %v", err)
	}
	d := directives(items)
	if len(d) != 1 || d[0] != "find my documents" {
		t.Fatalf("directives = %v", d)
	}
}

func TestUnterminatedDirectiveErrorsOnClose(t *testing.T) {
	t.Parallel()

	p := New()
	p.Feed("<<<ORAKLE get weather in ")
	items, err := p.Close()
	if err != ErrUnterminatedDirective {
		t.Fatalf("expected ErrUnterminatedDirective, got %v", err)
	}
	if len(items) != 0 {
		t.Errorf("expected discarded buffer, got items %v", items)
	}
}

func TestPartialOpenMarkerFlushedAsNarrativeOnClose(t *testing.T) {
	t.Parallel()

	p := New()
	first := p.Feed("text <<<ORA")
	if got := narrativeText(first); got != "text " {
		t.Errorf("narrative before close = %q", got)
	}
	closing, err := p.Close()
	if err != nil {
		t.Fatalf("close: %v", err)
	}
	if got := narrativeText(closing); got != "<<<ORA" {
		t.Errorf("flushed tail = %q", got)
	}
}

func TestPartialOpenMarkerResumesAsDirective(t *testing.T) {
	t.Parallel()

	items, err := feedAll(t, []string{"a <<<ORA", "KLE ping ORAKLE b"})
	if err != nil {
		t.Fatalf("close: %v", err)
	}
	d := directives(items)
	if len(d) != 1 || d[0] != "ping" {
		t.Fatalf("directives = %v", d)
	}
	if got := narrativeText(items); got != "a  b" {
		t.Errorf("narrative = %q", got)
	}
}

func TestAngleBracketsInNarrative(t *testing.T) {
	t.Parallel()

	items, err := feedAll(t, []string{"x < y and y << z <<< w"})
	if err != nil {
		t.Fatalf("close: %v", err)
	}
	if got := narrativeText(items); got != "x < y and y << z <<< w" {
		t.Errorf("narrative = %q", got)
	}
}

func TestDirectiveBodySplitAcrossChunksWithHeldCloseCandidate(t *testing.T) {
	t.Parallel()

	// "ORAKLE" arrives fully but its right boundary only in the next chunk.
	items, err := feedAll(t, []string{"<<<ORAKLE ping ORAKLE", "sworth now ORAKLE"})
	if err != nil {
		t.Fatalf("close: %v", err)
	}
	d := directives(items)
	if len(d) != 1 || d[0] != "ping ORAKLEsworth now" {
		t.Fatalf("directives = %v", d)
	}
}

func TestMultilineDirectiveBody(t *testing.T) {
	t.Parallel()

	items, err := feedAll(t, []string{"<<<ORAKLE summarize this:\nline one\nline two\nORAKLE"})
	if err != nil {
		t.Fatalf("close: %v", err)
	}
	d := directives(items)
	if len(d) != 1 || d[0] != "summarize this:\nline one\nline two" {
		t.Fatalf("directives = %v", d)
	}
}
