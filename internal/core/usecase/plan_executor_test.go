package usecase

import (
	"context"
	"fmt"
	"testing"

	"github.com/kirillkom/action-orchestrator/internal/core/domain"
)

type scriptedInvoker struct {
	outcomes map[string]BridgeOutcomeKind
	calls    []BridgeCall
}

func (s *scriptedInvoker) Invoke(_ context.Context, call BridgeCall) BridgeOutcome {
	s.calls = append(s.calls, call)
	kind, ok := s.outcomes[call.Tool]
	if !ok {
		kind = OutcomeDraft
	}
	switch kind {
	case OutcomeDraft, OutcomeUnsafe:
		return BridgeOutcome{Kind: kind, Tool: call.Tool, Draft: &domain.ActionDraft{ID: fmt.Sprintf("draft-%d", len(s.calls))}}
	case OutcomeClarification:
		return BridgeOutcome{Kind: kind, Tool: call.Tool, Clarification: &domain.PendingClarification{Tool: call.Tool, MissingArgs: []string{"x"}}}
	default:
		return BridgeOutcome{Kind: OutcomeError, Tool: call.Tool, Err: fmt.Errorf("boom")}
	}
}

func TestPlanExecutorRunsStepsInOrder(t *testing.T) {
	invoker := &scriptedInvoker{}
	executor := NewPlanExecutor(invoker, 5)
	steps := []domain.PlanStep{
		{Tool: "a"},
		{Tool: "b", Args: map[string]any{"parent": "$prev.draft_id"}},
		{Tool: "c", Args: map[string]any{"refs": []any{"$step.1.draft_id", "x-$step.2.draft_id"}}},
	}

	run := executor.Run(context.Background(), DraftOwner{ConversationID: "conv"}, 4, steps, PlanPrior{})
	if !run.Completed() {
		t.Fatalf("expected completed run, got %+v", run.Final)
	}
	if len(invoker.calls) != 3 || invoker.calls[0].Tool != "a" || invoker.calls[2].Tool != "c" {
		t.Fatalf("unexpected call order: %+v", invoker.calls)
	}
	if invoker.calls[1].Args["parent"] != "draft-1" {
		t.Fatalf("unexpected $prev substitution: %+v", invoker.calls[1].Args)
	}
	refs := invoker.calls[2].Args["refs"].([]any)
	if refs[0] != "draft-1" || refs[1] != "x-draft-2" {
		t.Fatalf("unexpected $step substitution: %+v", refs)
	}
	if invoker.calls[2].IdempotencyKey != "conv:4:3" {
		t.Fatalf("unexpected idempotency key %q", invoker.calls[2].IdempotencyKey)
	}
	if len(run.CompletedDrafts) != 3 {
		t.Fatalf("expected 3 completed drafts, got %v", run.CompletedDrafts)
	}
}

func TestPlanExecutorStopsOnNonDraftOutcome(t *testing.T) {
	for _, kind := range []BridgeOutcomeKind{OutcomeUnsafe, OutcomeClarification, OutcomeError} {
		t.Run(string(kind), func(t *testing.T) {
			invoker := &scriptedInvoker{outcomes: map[string]BridgeOutcomeKind{"b": kind}}
			executor := NewPlanExecutor(invoker, 5)
			steps := []domain.PlanStep{{Tool: "a"}, {Tool: "b"}, {Tool: "c"}, {Tool: "d"}}

			run := executor.Run(context.Background(), DraftOwner{}, 1, steps, PlanPrior{})
			if run.Final.Kind != kind {
				t.Fatalf("expected final %s, got %s", kind, run.Final.Kind)
			}
			if len(run.Steps) != 2 || len(run.Remaining) != 2 || run.Remaining[0].Tool != "c" {
				t.Fatalf("unexpected run: steps=%d remaining=%+v", len(run.Steps), run.Remaining)
			}
			if len(invoker.calls) != 2 {
				t.Fatalf("steps after the stop must not run")
			}
		})
	}
}

func TestPlanExecutorContinuesFromPrior(t *testing.T) {
	invoker := &scriptedInvoker{}
	executor := NewPlanExecutor(invoker, 3)

	run := executor.Run(context.Background(), DraftOwner{ConversationID: "conv"}, 2,
		[]domain.PlanStep{{Tool: "c", Args: map[string]any{"first": "$step.1.draft_id"}}},
		PlanPrior{CompletedDrafts: []string{"d1", "d2"}, StepOffset: 2},
	)
	if !run.Completed() || run.Steps[0].Index != 3 {
		t.Fatalf("unexpected run: %+v", run)
	}
	if invoker.calls[0].Args["first"] != "d1" {
		t.Fatalf("unexpected substitution: %+v", invoker.calls[0].Args)
	}
}

func TestPlanExecutorRejectsBadReferencesAndLongPlans(t *testing.T) {
	invoker := &scriptedInvoker{}
	executor := NewPlanExecutor(invoker, 2)

	run := executor.Run(context.Background(), DraftOwner{}, 1, []domain.PlanStep{{Tool: "a", Args: map[string]any{"p": "$step.3.draft_id"}}}, PlanPrior{})
	if run.Final.Kind != OutcomeError || !domain.IsKind(run.Final.Err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input for dangling reference, got %+v", run.Final)
	}
	if len(invoker.calls) != 0 {
		t.Fatalf("dangling reference must not reach the bridge")
	}

	run = executor.Run(context.Background(), DraftOwner{}, 1, []domain.PlanStep{{Tool: "a"}, {Tool: "b"}, {Tool: "c"}}, PlanPrior{})
	if run.Final.Kind != OutcomeError || !domain.IsKind(run.Final.Err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input for oversized plan, got %+v", run.Final)
	}
}
