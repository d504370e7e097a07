package usecase

import (
	"context"
	"fmt"
	"regexp"
	"strconv"

	"github.com/kirillkom/action-orchestrator/internal/core/domain"
)

type actionInvoker interface {
	Invoke(ctx context.Context, call BridgeCall) BridgeOutcome
}

// PlanPrior is what earlier turns already completed of the same plan.
type PlanPrior struct {
	CompletedDrafts []string
	StepOffset      int
}

type StepResult struct {
	Index   int
	Tool    string
	Args    map[string]any
	Outcome BridgeOutcome
}

// PlanRun is the result of executing steps in order. Remaining holds the steps after the
// one that stopped the run.
type PlanRun struct {
	Final           BridgeOutcome
	Steps           []StepResult
	Remaining       []domain.PlanStep
	CompletedDrafts []string
}

// Completed reports whether every step produced a safe draft.
func (r PlanRun) Completed() bool {
	return r.Final.Kind == OutcomeDraft && len(r.Remaining) == 0
}

type PlanExecutor struct {
	bridge   actionInvoker
	maxSteps int
}

func NewPlanExecutor(bridge actionInvoker, maxSteps int) *PlanExecutor {
	if maxSteps <= 0 {
		maxSteps = 8
	}
	return &PlanExecutor{bridge: bridge, maxSteps: maxSteps}
}

func (e *PlanExecutor) MaxSteps() int {
	return e.maxSteps
}

// Run executes steps sequentially and stops at the first step that does not yield a
// safe draft. Step indexes are 1-based and continue from prior.StepOffset.
func (e *PlanExecutor) Run(ctx context.Context, owner DraftOwner, turn int, steps []domain.PlanStep, prior PlanPrior) PlanRun {
	run := PlanRun{CompletedDrafts: append([]string(nil), prior.CompletedDrafts...)}
	if len(steps) == 0 {
		run.Final = BridgeOutcome{Kind: OutcomeError, Err: domain.WrapError(domain.ErrInvalidInput, "run plan", fmt.Errorf("plan has no steps"))}
		return run
	}
	if prior.StepOffset+len(steps) > e.maxSteps {
		run.Final = BridgeOutcome{
			Kind: OutcomeError,
			Err:  domain.WrapError(domain.ErrInvalidInput, "run plan", fmt.Errorf("plan has %d steps, limit is %d", prior.StepOffset+len(steps), e.maxSteps)),
		}
		run.Remaining = append([]domain.PlanStep(nil), steps...)
		return run
	}

	for i, step := range steps {
		index := prior.StepOffset + i + 1
		args, err := substituteReferences(step.Args, run.CompletedDrafts)
		var outcome BridgeOutcome
		if err != nil {
			outcome = BridgeOutcome{Kind: OutcomeError, Tool: step.Tool, Err: domain.WrapError(domain.ErrInvalidInput, fmt.Sprintf("plan step %d", index), err)}
		} else {
			outcome = e.bridge.Invoke(ctx, BridgeCall{
				Tool:           step.Tool,
				Args:           args,
				IdempotencyKey: IdempotencyKey(owner.ConversationID, turn, index),
				Owner:          owner,
			})
		}

		run.Steps = append(run.Steps, StepResult{Index: index, Tool: step.Tool, Args: args, Outcome: outcome})
		run.Final = outcome
		if outcome.Kind != OutcomeDraft {
			run.Remaining = append([]domain.PlanStep(nil), steps[i+1:]...)
			return run
		}
		run.CompletedDrafts = append(run.CompletedDrafts, outcome.Draft.ID)
	}
	return run
}

// IdempotencyKey identifies one draft-producing step of one user turn.
func IdempotencyKey(conversationID string, turn, step int) string {
	return fmt.Sprintf("%s:%d:%d", conversationID, turn, step)
}

var draftReferencePattern = regexp.MustCompile(`\$(prev|step\.(\d+))\.draft_id`)

// substituteReferences replaces $prev.draft_id and $step.N.draft_id in string arguments
// with ids of drafts completed earlier in the plan.
func substituteReferences(args map[string]any, completed []string) (map[string]any, error) {
	out := make(map[string]any, len(args))
	for key, value := range args {
		resolved, err := substituteValue(value, completed)
		if err != nil {
			return nil, fmt.Errorf("argument %s: %w", key, err)
		}
		out[key] = resolved
	}
	return out, nil
}

func substituteValue(value any, completed []string) (any, error) {
	switch typed := value.(type) {
	case string:
		return substituteString(typed, completed)
	case map[string]any:
		return substituteReferences(typed, completed)
	case []any:
		out := make([]any, len(typed))
		for i, item := range typed {
			resolved, err := substituteValue(item, completed)
			if err != nil {
				return nil, err
			}
			out[i] = resolved
		}
		return out, nil
	default:
		return value, nil
	}
}

func substituteString(raw string, completed []string) (string, error) {
	var firstErr error
	resolved := draftReferencePattern.ReplaceAllStringFunc(raw, func(ref string) string {
		match := draftReferencePattern.FindStringSubmatch(ref)
		if match[1] == "prev" {
			if len(completed) == 0 {
				if firstErr == nil {
					firstErr = fmt.Errorf("%s used before any draft was created", ref)
				}
				return ref
			}
			return completed[len(completed)-1]
		}
		n, err := strconv.Atoi(match[2])
		if err != nil || n < 1 || n > len(completed) {
			if firstErr == nil {
				firstErr = fmt.Errorf("%s does not refer to a completed step", ref)
			}
			return ref
		}
		return completed[n-1]
	})
	if firstErr != nil {
		return "", firstErr
	}
	return resolved, nil
}
