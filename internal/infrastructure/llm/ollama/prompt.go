package ollama

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kirillkom/action-orchestrator/internal/core/domain"
)

const maxPromptChars = 4000

func buildPlannerPrompt(tools []ToolHint, req domain.PlannerRequest) string {
	var toolList strings.Builder
	for _, tool := range tools {
		toolList.WriteString(fmt.Sprintf("- %s (%s); required args: %s\n",
			tool.Name, tool.Label, strings.Join(tool.Required, ", ")))
	}

	return fmt.Sprintf(`You route procurement requests to drafting tools.
Return strict JSON object with key "kind" set to one of: clarification, plan, tool, none.
- clarification: the user wants one tool but required args are missing. Keys: tool, args, missing_args, question.
- tool: one tool with all required args. Keys: tool, args.
- plan: several tools in order. Key steps: array of {tool, args}. A step may reference an earlier draft with "$prev.draft_id" or "$step.N.draft_id".
- none: anything else (questions, lookups, small talk).
No markdown, no extra keys.

Tools:
%s
Recent conversation:
%s
Message:
%s
`, toolList.String(), formatMemory(req.Memory), truncate(req.Prompt))
}

func buildResponderPrompt(workspaceTools []string, req domain.ResponderRequest) (string, error) {
	contextJSON := []byte("{}")
	if len(req.Context) > 0 {
		raw, err := json.Marshal(req.Context)
		if err != nil {
			return "", err
		}
		contextJSON = raw
	}

	return fmt.Sprintf(`You are a procurement workspace assistant.
Return strict JSON object with keys:
text (string), tool_calls (array of {id, tool, args, expect_single}), draft (object with action_type, payload, confidence, needs_review, citations, or null).
Request tool_calls when you need workspace data; results come back in context.tool_results.
Only propose a draft when the user asked for an action.
Workspace tools: %s

Recent conversation:
%s
Context:
%s

Message:
%s
`, strings.Join(workspaceTools, ", "), formatMemory(req.Memory), truncate(string(contextJSON)), truncate(req.Prompt)), nil
}

func formatMemory(turns []domain.MemoryTurn) string {
	if len(turns) == 0 {
		return "(none)\n"
	}
	var b strings.Builder
	for _, turn := range turns {
		b.WriteString(turn.Role)
		b.WriteString(": ")
		b.WriteString(turn.Content)
		b.WriteString("\n")
	}
	return b.String()
}

func truncate(text string) string {
	if len(text) > maxPromptChars {
		return text[:maxPromptChars]
	}
	return text
}
