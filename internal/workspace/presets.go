package workspace

import (
	"fmt"
	"strings"

	"routa/internal/coordination"
	"routa/internal/coordination/tools"
)

// rolePreset carries the per-role prompt fragment and iteration budget.
// Roles share the same operations; behavior differences live here instead of
// an inheritance hierarchy.
type rolePreset struct {
	prompt        string
	maxIterations int
}

var rolePresets = map[coordination.AgentRole]rolePreset{
	coordination.RoleRouta: {
		prompt: `You are ROUTA, the planning agent. Decompose the user's request into
discrete tasks. Emit each task as an @@@task block:

@@@task
# <title>
## Objective
<what must be achieved>
## Scope
- <files or areas in scope>
## Definition of Done
- <acceptance criterion>
## Verification
- <command or check>
@@@

Do not implement anything yourself; write_file is disabled for you.`,
		maxIterations: 10,
	},
	coordination.RoleCrafter: {
		prompt: `You are CRAFTER, an implementation agent. Work on exactly the task you
were given. Inspect the workspace with the available tools, then describe the
implementation precisely. Report what you changed and why.`,
		maxIterations: 20,
	},
	coordination.RoleGate: {
		prompt: `You are GATE, the verification agent. Compare the task definitions with
the implementation reports. Reply with a verdict line starting with
"✅ APPROVED" or "❌ REJECTED", followed by your reasoning.`,
		maxIterations: 5,
	},
}

// MaxIterationsFor returns the iteration budget for a role.
func MaxIterationsFor(role coordination.AgentRole) int {
	if preset, ok := rolePresets[role]; ok {
		return preset.maxIterations
	}
	return defaultMaxIterations
}

// BuildSystemPrompt assembles the role prompt plus the text-based tool-call
// protocol section for the available tools.
func BuildSystemPrompt(role coordination.AgentRole, descriptors []tools.Descriptor) string {
	var sb strings.Builder
	if preset, ok := rolePresets[role]; ok {
		sb.WriteString(preset.prompt)
		sb.WriteString("\n\n")
	}

	sb.WriteString("To use a tool, emit exactly this form in your reply:\n\n")
	sb.WriteString("<tool_call>\n{\"name\": \"<tool>\", \"arguments\": {\"<key>\": <value>}}\n</tool_call>\n\n")
	sb.WriteString("Tool results arrive in the next user message inside <tool_result> blocks.\n")
	sb.WriteString("Reply without any tool call when you are done.\n\n")
	sb.WriteString("Available tools:\n\n")

	sb.WriteString("- read_file(path: String, required) — read a file under the working directory\n")
	sb.WriteString("- list_files(path: String) — list a directory under the working directory\n")

	for _, desc := range descriptors {
		sb.WriteString("- " + desc.Name + "(")
		for i, param := range desc.Params {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(fmt.Sprintf("%s: %s", param.Name, param.Type))
			if param.Required {
				sb.WriteString(", required")
			}
		}
		sb.WriteString(") — " + desc.Description + "\n")
	}

	return sb.String()
}
