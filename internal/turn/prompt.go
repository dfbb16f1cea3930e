package turn

import (
	"fmt"
	"strings"

	"github.com/orakle-ai/orakle/pkg/skills"
)

// renderSystemPrompt teaches the primary LLM the directive syntax and lists
// the skills it may request. With an empty catalog the directive instructions
// are omitted entirely so the model never emits markers that cannot be
// served.
func renderSystemPrompt(catalog []skills.Descriptor) string {
	var b strings.Builder

	b.WriteString("You are Orakle, a helpful assistant.")

	if len(catalog) == 0 {
		b.WriteString(" Answer from your own knowledge; no external tools are available.")
		return b.String()
	}

	b.WriteString(` You can call external tools.

To call a tool, emit a request delimited by the exact markers below, in the middle of your answer, at the point where its result belongs:

<<<ORAKLE describe what you need in plain language ORAKLE

Write the request as a natural-language instruction. Do not name the tool, do not write JSON, do not explain the markers to the user. You may emit several requests in one answer. Only emit a request when one of these tools can fulfil it:
`)

	for _, d := range catalog {
		fmt.Fprintf(&b, "- %s: %s\n", d.SkillID, d.Description)
	}

	b.WriteString("\nFor everything else, answer directly without markers.")
	return b.String()
}
