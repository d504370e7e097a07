package domain

import (
	"fmt"
	"strings"
)

type PlannerKind string

const (
	PlannerKindClarification PlannerKind = "clarification"
	PlannerKindPlan          PlannerKind = "plan"
	PlannerKindTool          PlannerKind = "tool"
	PlannerKindNone          PlannerKind = "none"
)

type PlanStep struct {
	Tool string         `json:"tool"`
	Args map[string]any `json:"args,omitempty"`
}

type PlannerRequest struct {
	Prompt         string       `json:"prompt"`
	ConversationID string       `json:"conversation_id"`
	UserID         string       `json:"user_id"`
	Memory         []MemoryTurn `json:"memory,omitempty"`
}

// PlannerDecision is the planner oracle's classification of one message.
type PlannerDecision struct {
	Kind        PlannerKind    `json:"kind"`
	Tool        string         `json:"tool,omitempty"`
	Args        map[string]any `json:"args,omitempty"`
	MissingArgs []string       `json:"missing_args,omitempty"`
	Question    string         `json:"question,omitempty"`
	Steps       []PlanStep     `json:"steps,omitempty"`
}

// Validate applies the per-kind requirements the schema cannot express.
func (d PlannerDecision) Validate() error {
	switch d.Kind {
	case PlannerKindClarification:
		if strings.TrimSpace(d.Tool) == "" {
			return fmt.Errorf("clarification decision requires tool")
		}
		if len(d.MissingArgs) == 0 {
			return fmt.Errorf("clarification decision requires missing_args")
		}
		for _, name := range d.MissingArgs {
			if strings.TrimSpace(name) == "" {
				return fmt.Errorf("clarification decision has empty missing argument name")
			}
		}
	case PlannerKindPlan:
		if len(d.Steps) == 0 {
			return fmt.Errorf("plan decision requires steps")
		}
		for i, step := range d.Steps {
			if strings.TrimSpace(step.Tool) == "" {
				return fmt.Errorf("plan step %d requires tool", i+1)
			}
		}
	case PlannerKindTool:
		if strings.TrimSpace(d.Tool) == "" {
			return fmt.Errorf("tool decision requires tool")
		}
	case PlannerKindNone:
	default:
		return fmt.Errorf("unsupported planner kind %q", d.Kind)
	}
	return nil
}

type ToolCall struct {
	ID           string         `json:"id,omitempty"`
	Tool         string         `json:"tool"`
	Args         map[string]any `json:"args,omitempty"`
	ExpectSingle bool           `json:"expect_single,omitempty"`
}

// WorkspaceResult is one workspace tool result. Items holds every returned record;
// Single is true when the collaborator returned a singleton rather than a list.
type WorkspaceResult struct {
	CallID string           `json:"call_id,omitempty"`
	Tool   string           `json:"tool"`
	Single bool             `json:"single"`
	Items  []map[string]any `json:"items"`
	Error  string           `json:"error,omitempty"`
}

type ResponderRequest struct {
	Prompt  string         `json:"prompt"`
	Memory  []MemoryTurn   `json:"-"`
	Context map[string]any `json:"context,omitempty"`
}

// ProposedDraft is a draft the responder suggests directly.
type ProposedDraft struct {
	ActionType  ActionType     `json:"action_type"`
	Payload     map[string]any `json:"payload"`
	Citations   []Citation     `json:"citations,omitempty"`
	Confidence  float64        `json:"confidence"`
	NeedsReview bool           `json:"needs_review"`
}

type ResponderReply struct {
	Text      string         `json:"text"`
	ToolCalls []ToolCall     `json:"tool_calls,omitempty"`
	Draft     *ProposedDraft `json:"draft,omitempty"`
}
