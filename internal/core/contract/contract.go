// Package contract validates the JSON shapes returned by the planner and responder
// before the orchestrator branches on them.
package contract

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"

	"github.com/kirillkom/action-orchestrator/internal/core/domain"
)

//go:embed schemas/planner_decision.json
var plannerDecisionSchemaJSON []byte

//go:embed schemas/responder_reply.json
var responderReplySchemaJSON []byte

var (
	plannerDecisionSchema = mustLoadSchema("planner_decision", plannerDecisionSchemaJSON)
	responderReplySchema  = mustLoadSchema("responder_reply", responderReplySchemaJSON)
)

func mustLoadSchema(name string, raw []byte) *openapi3.Schema {
	var schema openapi3.Schema
	if err := json.Unmarshal(raw, &schema); err != nil {
		panic(fmt.Sprintf("contract: decode %s schema: %v", name, err))
	}
	if err := schema.Validate(context.Background()); err != nil {
		panic(fmt.Sprintf("contract: invalid %s schema: %v", name, err))
	}
	return &schema
}

// ParsePlannerDecision extracts the JSON object from raw planner output, validates it
// against the planner decision schema and then applies the per-kind checks.
func ParsePlannerDecision(raw string) (domain.PlannerDecision, error) {
	const op = "parse planner decision"

	obj, err := decodeObject(raw)
	if err != nil {
		return domain.PlannerDecision{}, domain.WrapError(domain.ErrUpstream, op, err)
	}
	if kind, ok := obj["kind"].(string); ok {
		obj["kind"] = strings.ToLower(strings.TrimSpace(kind))
	}
	if err := plannerDecisionSchema.VisitJSON(obj); err != nil {
		return domain.PlannerDecision{}, domain.WrapError(domain.ErrUpstream, op, err)
	}

	var decision domain.PlannerDecision
	if err := remarshal(obj, &decision); err != nil {
		return domain.PlannerDecision{}, domain.WrapError(domain.ErrUpstream, op, err)
	}
	decision.Tool = normalizeToolName(decision.Tool)
	for i := range decision.Steps {
		decision.Steps[i].Tool = normalizeToolName(decision.Steps[i].Tool)
	}
	for i, name := range decision.MissingArgs {
		decision.MissingArgs[i] = strings.TrimSpace(name)
	}
	decision.Question = strings.TrimSpace(decision.Question)

	// A tool decision without a tool is not actionable.
	if decision.Kind == domain.PlannerKindTool && decision.Tool == "" {
		decision.Kind = domain.PlannerKindNone
	}
	if err := decision.Validate(); err != nil {
		return domain.PlannerDecision{}, domain.WrapError(domain.ErrUpstream, op, err)
	}
	return decision, nil
}

// ParseResponderReply accepts either a JSON reply object or plain text. Plain text, including
// text with braces that do not decode as an object, is a message-only reply.
func ParseResponderReply(raw string) (domain.ResponderReply, error) {
	const op = "parse responder reply"

	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return domain.ResponderReply{}, domain.WrapError(domain.ErrUpstream, op, fmt.Errorf("empty reply"))
	}
	if !strings.Contains(trimmed, "{") {
		return domain.ResponderReply{Text: trimmed}, nil
	}

	obj, err := decodeObject(trimmed)
	if err != nil {
		// Braces in prose, not a reply object.
		return domain.ResponderReply{Text: trimmed}, nil
	}
	if err := responderReplySchema.VisitJSON(obj); err != nil {
		return domain.ResponderReply{}, domain.WrapError(domain.ErrUpstream, op, err)
	}

	var reply domain.ResponderReply
	if err := remarshal(obj, &reply); err != nil {
		return domain.ResponderReply{}, domain.WrapError(domain.ErrUpstream, op, err)
	}
	reply.Text = strings.TrimSpace(reply.Text)
	for i := range reply.ToolCalls {
		reply.ToolCalls[i].Tool = normalizeToolName(reply.ToolCalls[i].Tool)
	}
	if reply.Draft != nil {
		reply.Draft.ActionType = domain.ActionType(normalizeToolName(string(reply.Draft.ActionType)))
	}
	if reply.Text == "" && len(reply.ToolCalls) == 0 && reply.Draft == nil {
		return domain.ResponderReply{}, domain.WrapError(domain.ErrUpstream, op, fmt.Errorf("reply has no text, tool calls or draft"))
	}
	return reply, nil
}

func decodeObject(raw string) (map[string]any, error) {
	var obj map[string]any
	if err := json.Unmarshal([]byte(ExtractJSONObject(raw)), &obj); err != nil {
		return nil, fmt.Errorf("decode json object: %w", err)
	}
	if obj == nil {
		return nil, fmt.Errorf("decode json object: null payload")
	}
	return obj, nil
}

func remarshal(obj map[string]any, dest any) error {
	raw, err := json.Marshal(obj)
	if err != nil {
		return fmt.Errorf("encode validated payload: %w", err)
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return fmt.Errorf("decode validated payload: %w", err)
	}
	return nil
}

// ExtractJSONObject trims model chatter around the outermost JSON object.
func ExtractJSONObject(raw string) string {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start >= 0 && end > start {
		return raw[start : end+1]
	}
	return raw
}

func normalizeToolName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
