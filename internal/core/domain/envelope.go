package domain

type EnvelopeType string

const (
	EnvelopeClarification EnvelopeType = "clarification"
	EnvelopeEntityPicker  EnvelopeType = "entity_picker"
	EnvelopeDraftAction   EnvelopeType = "draft_action"
	EnvelopeUnsafeAction  EnvelopeType = "unsafe_action_confirmation"
	EnvelopeMessage       EnvelopeType = "message"
	EnvelopeError         EnvelopeType = "error"
)

type ClarificationPayload struct {
	ID          string   `json:"id"`
	Tool        string   `json:"tool"`
	MissingArgs []string `json:"missing_args"`
	Question    string   `json:"question"`
}

type EntityPickerPayload struct {
	ID         string      `json:"id"`
	Tool       string      `json:"tool"`
	Candidates []Candidate `json:"candidates"`
}

type UnsafeActionPayload struct {
	DraftID         string     `json:"draft_id"`
	ActionType      ActionType `json:"action_type"`
	Impact          string     `json:"impact"`
	Acknowledgement string     `json:"acknowledgement"`
}

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type StepSummary struct {
	Index   int          `json:"index"`
	Tool    string       `json:"tool"`
	Outcome EnvelopeType `json:"outcome"`
	DraftID string       `json:"draft_id,omitempty"`
	Message string       `json:"message"`
}

// ResponseEnvelope is the reply to one inbound message, discriminated by Type.
type ResponseEnvelope struct {
	Type           EnvelopeType          `json:"type"`
	ConversationID string                `json:"conversation_id"`
	Message        string                `json:"message,omitempty"`
	Clarification  *ClarificationPayload `json:"clarification,omitempty"`
	EntityPicker   *EntityPickerPayload  `json:"entity_picker,omitempty"`
	Draft          *ActionDraft          `json:"draft,omitempty"`
	UnsafeAction   *UnsafeActionPayload  `json:"unsafe_action,omitempty"`
	Steps          []StepSummary         `json:"steps,omitempty"`
	RemainingSteps []PlanStep            `json:"remaining_steps,omitempty"`
	Error          *ErrorPayload         `json:"error,omitempty"`
}

type ClarificationRef struct {
	ID      string         `json:"id"`
	Answers map[string]any `json:"answers,omitempty"`
}

type EntityPickerRef struct {
	ID          string `json:"id"`
	CandidateID string `json:"candidate_id"`
}

// TurnContext carries references to a pending interaction the message answers.
type TurnContext struct {
	Clarification *ClarificationRef `json:"clarification,omitempty"`
	EntityPicker  *EntityPickerRef  `json:"entity_picker,omitempty"`
}

type TurnRequest struct {
	TenantID       string      `json:"tenant_id"`
	UserID         string      `json:"user_id"`
	ConversationID string      `json:"conversation_id"`
	Text           string      `json:"text"`
	Context        TurnContext `json:"context"`
}

type BridgeCallReport struct {
	Tool    string       `json:"tool"`
	Outcome EnvelopeType `json:"outcome"`
}

// TurnResult is the envelope plus what happened while producing it, for observability.
type TurnResult struct {
	Envelope      ResponseEnvelope   `json:"envelope"`
	Route         string             `json:"route"`
	PlannerKind   PlannerKind        `json:"planner_kind,omitempty"`
	BridgeCalls   []BridgeCallReport `json:"bridge_calls,omitempty"`
	PendingEvent  string             `json:"pending_event,omitempty"`
	MemoryWindow  int                `json:"memory_window"`
	ResponderUsed int                `json:"responder_rounds"`
	Err           error              `json:"-"`
}
