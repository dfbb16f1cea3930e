// Package streamparse separates an LLM token stream into narrative text and
// in-band invocation directives.
//
// Directive syntax: an opening marker "<<<ORAKLE", an arbitrary body, and a
// closing marker "ORAKLE". The closing marker must be a standalone word:
// whitespace (or the directive start) on its left, and whitespace, '<', or
// end-of-stream on its right. A literal ORAKLE glued to other characters
// ("ORAKLEsque", "fooORAKLE") is body text.
//
// Both markers may arrive split across any number of chunks; the parser
// buffers the undecidable tail across chunk boundaries. A closing candidate
// sitting at the very end of the received input is held until the next chunk
// (or stream close) decides its right boundary.
package streamparse

import (
	"errors"
	"strings"
)

// OpenMarker starts a directive.
const OpenMarker = "<<<ORAKLE"

// CloseMarker ends a directive when it stands alone as a word.
const CloseMarker = "ORAKLE"

// ErrUnterminatedDirective is returned by Close when the stream ends inside a
// directive body. The buffered body is discarded.
var ErrUnterminatedDirective = errors.New("streamparse: stream closed inside an unterminated directive")

// Kind tags a parser output item.
type Kind int

const (
	// KindNarrative is plain text flowing straight to the caller.
	KindNarrative Kind = iota

	// KindDirective is a completed invocation directive body.
	KindDirective
)

// Item is one parser output: a narrative chunk or a completed directive.
type Item struct {
	Kind Kind

	// Text is the narrative chunk, or the directive body with surrounding
	// whitespace trimmed.
	Text string
}

type state int

const (
	outside state = iota
	inside
)

// Parser is the push-based directive parser. Feed it chunks in stream order;
// each call returns the items that became decidable. It is not safe for
// concurrent use — one parser serves one LLM stream.
type Parser struct {
	state state

	// carry holds an outside-state tail that is a proper prefix of the opening
	// marker and cannot be classified yet.
	carry string

	// body accumulates the directive body while inside a directive.
	body string

	// scan is the offset in body from which the next closing-marker search
	// resumes.
	scan int
}

// New constructs a Parser in the initial narrative state.
func New() *Parser {
	return &Parser{}
}

// Feed consumes the next stream chunk and returns all items it completes, in
// stream order.
func (p *Parser) Feed(chunk string) []Item {
	if chunk == "" {
		return nil
	}
	var items []Item
	if p.state == outside {
		p.feedOutside(p.carry+chunk, &items)
	} else {
		p.feedInside(chunk, &items)
	}
	return items
}

// Close signals end of stream. In narrative state any held tail is flushed as
// narrative. Inside a directive, a closing candidate at the trailing edge is
// accepted (end-of-stream is a valid right boundary); otherwise the directive
// is incomplete and [ErrUnterminatedDirective] is returned.
func (p *Parser) Close() ([]Item, error) {
	defer func() {
		p.carry, p.body, p.scan = "", "", 0
		p.state = outside
	}()

	if p.state == outside {
		if p.carry != "" {
			return []Item{{Kind: KindNarrative, Text: p.carry}}, nil
		}
		return nil, nil
	}

	// A trailing "ORAKLE" with a valid left boundary closes at end-of-stream.
	n := len(p.body)
	if n >= len(CloseMarker) && strings.HasSuffix(p.body, CloseMarker) {
		i := n - len(CloseMarker)
		if i == 0 || isSpace(p.body[i-1]) {
			return []Item{{Kind: KindDirective, Text: strings.TrimSpace(p.body[:i])}}, nil
		}
	}
	return nil, ErrUnterminatedDirective
}

// feedOutside classifies data while scanning for the opening marker. The
// parser's outside carry is assumed to be already prepended by the caller.
func (p *Parser) feedOutside(data string, items *[]Item) {
	p.carry = ""
	idx := strings.Index(data, OpenMarker)
	if idx < 0 {
		// Hold back the longest tail that could still grow into the opening
		// marker; everything before it is settled narrative.
		hold := openMarkerPrefixLen(data)
		if narrative := data[:len(data)-hold]; narrative != "" {
			*items = append(*items, Item{Kind: KindNarrative, Text: narrative})
		}
		p.carry = data[len(data)-hold:]
		return
	}

	if idx > 0 {
		*items = append(*items, Item{Kind: KindNarrative, Text: data[:idx]})
	}
	p.state = inside
	p.body = ""
	p.scan = 0
	if rest := data[idx+len(OpenMarker):]; rest != "" {
		p.feedInside(rest, items)
	}
}

// feedInside appends chunk to the directive body and searches for a closing
// marker from the last undecided position.
func (p *Parser) feedInside(chunk string, items *[]Item) {
	p.body += chunk

	for {
		rel := strings.Index(p.body[p.scan:], CloseMarker)
		if rel < 0 {
			// The next chunk could complete a marker straddling the boundary.
			p.scan = max(0, len(p.body)-len(CloseMarker)+1)
			return
		}
		i := p.scan + rel

		if i > 0 && !isSpace(p.body[i-1]) {
			p.scan = i + 1
			continue
		}

		end := i + len(CloseMarker)
		if end == len(p.body) {
			// Right boundary not decidable yet; re-examine on the next feed.
			p.scan = i
			return
		}

		if c := p.body[end]; isSpace(c) || c == '<' {
			*items = append(*items, Item{Kind: KindDirective, Text: strings.TrimSpace(p.body[:i])})
			rest := p.body[end:]
			p.state = outside
			p.body = ""
			p.scan = 0
			p.feedOutside(rest, items)
			return
		}

		// Glued to a following character: body text, keep scanning.
		p.scan = i + 1
	}
}

// openMarkerPrefixLen returns the length of the longest suffix of data that is
// a proper prefix of the opening marker.
func openMarkerPrefixLen(data string) int {
	maxLen := len(OpenMarker) - 1
	if len(data) < maxLen {
		maxLen = len(data)
	}
	for k := maxLen; k > 0; k-- {
		if strings.HasSuffix(data, OpenMarker[:k]) {
			return k
		}
	}
	return 0
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}
