package dispatch

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/orakle-ai/orakle/pkg/memory"
	"github.com/orakle-ai/orakle/pkg/skills"
)

// interpretationSystemPrompt frames the second LLM stream.
const interpretationSystemPrompt = "You are the voice of an assistant that just ran a tool for the user. " +
	"Explain the tool's result naturally and concisely, as a direct answer to the user's request. " +
	"Do not mention tools, JSON, or internal identifiers. Do not invent data not present in the result."

// renderInterpretationPrompt builds the user message for the interpretation
// stream: the original request, the structured skill output, and any
// retrieved memory context.
func renderInterpretationPrompt(directive string, descriptor skills.Descriptor, result json.RawMessage, memories []memory.Result) string {
	var b strings.Builder

	b.WriteString("The user asked:\n")
	b.WriteString(directive)
	fmt.Fprintf(&b, "\n\nThe %s tool returned this result:\n", descriptor.SkillID)
	b.Write(result)

	if len(memories) > 0 {
		b.WriteString("\n\nThings you know about this user that may be relevant:\n")
		for _, m := range memories {
			fmt.Fprintf(&b, "- %s\n", m.Entry.Content)
		}
	}

	b.WriteString("\nAnswer the user's request using this result.")
	return b.String()
}
