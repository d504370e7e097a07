package usecase

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/kirillkom/action-orchestrator/internal/core/domain"
)

// singleEntityTools are lookups that must resolve to exactly one record, keyed to the
// argument that receives the chosen id.
var singleEntityTools = map[string]string{
	"get_invoice":        "invoice_id",
	"get_receipt":        "receipt_id",
	"get_purchase_order": "purchase_order_id",
}

var candidateLabelKeys = []string{"label", "name", "number", "invoice_number", "po_number", "receipt_number", "title"}

// BatchDecision is either a pass-through of the results or a picker to store.
type BatchDecision struct {
	Picker  *domain.PendingEntityPicker
	Results []domain.WorkspaceResult
}

type DisambiguationEngine struct {
	newID func() string
}

func NewDisambiguationEngine() *DisambiguationEngine {
	return &DisambiguationEngine{newID: uuid.NewString}
}

// AfterWorkspaceBatch inspects results in call order and turns the first ambiguous
// single-entity lookup into a picker. Everything else passes through unmodified.
func (e *DisambiguationEngine) AfterWorkspaceBatch(prompt string, calls []domain.ToolCall, results []domain.WorkspaceResult) BatchDecision {
	for i, call := range calls {
		argName, single := singleEntityArg(call)
		if !single {
			continue
		}
		result, ok := resultFor(call, i, results)
		if !ok || result.Error != "" || len(result.Items) < 2 {
			continue
		}
		candidates := buildCandidates(result.Items, argName)
		if len(candidates) < 2 {
			continue
		}
		return BatchDecision{
			Picker: &domain.PendingEntityPicker{
				ID:         e.newID(),
				Tool:       call.Tool,
				ArgName:    argName,
				BaseArgs:   cloneArgs(call.Args),
				Prompt:     prompt,
				Candidates: candidates,
			},
		}
	}
	return BatchDecision{Results: results}
}

// Resolve turns a picker selection into the tool call it stood in for.
func (e *DisambiguationEngine) Resolve(picker *domain.PendingEntityPicker, candidateID string) (domain.ToolCall, error) {
	if picker == nil {
		return domain.ToolCall{}, domain.WrapError(domain.ErrPendingNotFound, "resolve entity picker", fmt.Errorf("no entity picker"))
	}
	candidate, ok := picker.Candidate(strings.TrimSpace(candidateID))
	if !ok {
		return domain.ToolCall{}, domain.WrapError(domain.ErrInvalidInput, "resolve entity picker", fmt.Errorf("candidate %q is not offered", candidateID))
	}
	args := cloneArgs(picker.BaseArgs)
	args[picker.ArgName] = candidate.EntityID
	return domain.ToolCall{ID: picker.ID, Tool: picker.Tool, Args: args}, nil
}

func singleEntityArg(call domain.ToolCall) (string, bool) {
	if argName, ok := singleEntityTools[strings.ToLower(call.Tool)]; ok {
		return argName, true
	}
	if call.ExpectSingle {
		return "id", true
	}
	return "", false
}

func resultFor(call domain.ToolCall, index int, results []domain.WorkspaceResult) (domain.WorkspaceResult, bool) {
	if call.ID != "" {
		for _, result := range results {
			if result.CallID == call.ID {
				return result, true
			}
		}
	}
	if index < len(results) {
		return results[index], true
	}
	return domain.WorkspaceResult{}, false
}

func buildCandidates(items []map[string]any, argName string) []domain.Candidate {
	candidates := make([]domain.Candidate, 0, len(items))
	for _, item := range items {
		entityID := firstString(item, "id", argName, "entity_id")
		if entityID == "" {
			continue
		}
		label := firstString(item, candidateLabelKeys...)
		if label == "" {
			label = entityID
		}
		summary := make(map[string]any, len(item))
		for key, value := range item {
			if key == "id" || key == argName || key == "entity_id" {
				continue
			}
			summary[key] = value
		}
		candidates = append(candidates, domain.Candidate{
			ID:       fmt.Sprintf("cand_%d", len(candidates)+1),
			EntityID: entityID,
			Label:    label,
			Summary:  summary,
		})
	}
	return candidates
}

func pickerQuestion(picker *domain.PendingEntityPicker) string {
	noun := strings.TrimPrefix(strings.ToLower(picker.Tool), "get_")
	noun = strings.ReplaceAll(noun, "_", " ")
	if noun == "" {
		noun = "record"
	}
	labels := make([]string, 0, len(picker.Candidates))
	for _, c := range picker.Candidates {
		labels = append(labels, c.Label)
	}
	return fmt.Sprintf("I found %d matching %s records: %s. Which one did you mean?", len(picker.Candidates), noun, strings.Join(labels, ", "))
}
