package matcher

import (
	"fmt"
	"strings"

	"github.com/orakle-ai/orakle/internal/registry"
)

// retryReminder is appended to the prompt after a malformed first answer.
const retryReminder = "\n\nREMINDER: your previous answer was not a single valid JSON object. " +
	"Respond with exactly one JSON object matching the schema above. " +
	"No markdown, no explanation, no text before or after the object."

// renderSelectionPrompt builds the phase-2 prompt: the user's request, the
// surviving candidates with their full schemas, and the selection rules.
func renderSelectionPrompt(query string, candidates []registry.Match) string {
	var b strings.Builder

	b.WriteString("You select exactly one skill to fulfil a user request, or decline.\n\n")
	b.WriteString("User request:\n")
	b.WriteString(query)
	b.WriteString("\n\nAvailable skills:\n")

	for i, c := range candidates {
		d := c.Descriptor
		fmt.Fprintf(&b, "\n%d. skill_id: %s\n   description: %s\n", i+1, d.SkillID, d.Description)
		if len(d.Parameters) == 0 {
			b.WriteString("   parameters: none\n")
			continue
		}
		b.WriteString("   parameters:\n")
		for _, p := range d.Parameters {
			requirement := "optional"
			if p.Required {
				requirement = "required"
			}
			fmt.Fprintf(&b, "     - %s (%s, %s)", p.Name, p.Type, requirement)
			if p.Description != "" {
				fmt.Fprintf(&b, ": %s", p.Description)
			}
			b.WriteString("\n")
		}
	}

	b.WriteString(`
Rules:
1. skill_id must be exactly one of the listed skills.
2. parameters may only contain names declared by the chosen skill.
3. Include an optional parameter only when the request implies a value for it.
4. If a required parameter has no inferable value, the skill is disqualified;
   pick another skill or decline.
5. Respond with a single JSON object and nothing else.

To choose a skill, respond with:
{"skill_id": "...", "parameters": {...}, "skill_intention": "one short conversational sentence announcing what you are about to do", "frustration_level": 0.0, "frustration_reason": null}

To decline, respond with:
{"error_msg": "one short sentence explaining why no skill fits or what is missing"}
`)

	return b.String()
}
