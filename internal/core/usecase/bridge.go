package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/action-orchestrator/internal/core/domain"
	"github.com/kirillkom/action-orchestrator/internal/core/ports"
)

type BridgeOutcomeKind string

const (
	OutcomeDraft         BridgeOutcomeKind = "draft"
	OutcomeUnsafe        BridgeOutcomeKind = "unsafe"
	OutcomeClarification BridgeOutcomeKind = "clarification"
	OutcomeError         BridgeOutcomeKind = "error"
)

// DraftOwner identifies who a draft is created for.
type DraftOwner struct {
	TenantID       string
	UserID         string
	ConversationID string
}

type BridgeCall struct {
	Tool           string
	Args           map[string]any
	IdempotencyKey string
	Owner          DraftOwner
}

// BridgeOutcome is the normalized result of one tool invocation. Clarification is set
// for OutcomeClarification without a correlation id; the orchestrator assigns one when
// it stores the interruption.
type BridgeOutcome struct {
	Kind          BridgeOutcomeKind
	Tool          string
	Draft         *domain.ActionDraft
	Verdict       domain.SafetyVerdict
	Clarification *domain.PendingClarification
	Err           error
}

func (o BridgeOutcome) EnvelopeType() domain.EnvelopeType {
	switch o.Kind {
	case OutcomeDraft:
		return domain.EnvelopeDraftAction
	case OutcomeUnsafe:
		return domain.EnvelopeUnsafeAction
	case OutcomeClarification:
		return domain.EnvelopeClarification
	default:
		return domain.EnvelopeError
	}
}

// Message is the assistant text recorded for the outcome.
func (o BridgeOutcome) Message() string {
	switch o.Kind {
	case OutcomeDraft:
		return draftMessage(o.Draft)
	case OutcomeUnsafe:
		return strings.TrimSpace(o.Verdict.Impact + " Please confirm before this draft can be approved.")
	case OutcomeClarification:
		if o.Clarification != nil {
			return o.Clarification.Question
		}
		return ""
	default:
		return errorMessage(o.Err)
	}
}

func (o BridgeOutcome) DraftID() string {
	if o.Draft == nil {
		return ""
	}
	return o.Draft.ID
}

// ToolBridge turns planner tool calls into persisted drafts.
type ToolBridge struct {
	drafter ports.ActionDrafter
	drafts  ports.DraftStore
	events  ports.DraftEventPublisher
	timeout time.Duration
	now     func() time.Time
}

func NewToolBridge(drafter ports.ActionDrafter, drafts ports.DraftStore, events ports.DraftEventPublisher, timeout time.Duration) *ToolBridge {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &ToolBridge{
		drafter: drafter,
		drafts:  drafts,
		events:  events,
		timeout: timeout,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (b *ToolBridge) Invoke(ctx context.Context, call BridgeCall) BridgeOutcome {
	tool := strings.ToLower(strings.TrimSpace(call.Tool))
	spec, ok := LookupTool(tool)
	if !ok {
		return BridgeOutcome{
			Kind: OutcomeError,
			Tool: tool,
			Err:  domain.WrapError(domain.ErrUnknownTool, "bridge invoke", fmt.Errorf("tool %q has no action mapping", call.Tool)),
		}
	}

	args := cloneArgs(call.Args)
	if missing := spec.MissingArgs(args); len(missing) > 0 {
		return BridgeOutcome{
			Kind: OutcomeClarification,
			Tool: spec.Name,
			Clarification: &domain.PendingClarification{
				Tool:        spec.Name,
				MissingArgs: missing,
				Question:    spec.Question(missing),
				Args:        args,
			},
		}
	}

	draftCtx, cancel := context.WithTimeout(ctx, b.timeout)
	proposal, err := b.drafter.DraftAction(draftCtx, domain.DraftRequest{
		TenantID:       call.Owner.TenantID,
		UserID:         call.Owner.UserID,
		ConversationID: call.Owner.ConversationID,
		ActionType:     spec.Action,
		Args:           args,
		IdempotencyKey: call.IdempotencyKey,
	})
	cancel()
	if err != nil {
		return BridgeOutcome{Kind: OutcomeError, Tool: spec.Name, Err: upstreamError("draft action", err)}
	}

	return b.record(ctx, spec.Name, call.Owner, spec.Action, args, proposal, call.IdempotencyKey)
}

// RecordProposal persists a draft proposed directly by the responder.
func (b *ToolBridge) RecordProposal(ctx context.Context, owner DraftOwner, proposed domain.ProposedDraft, idempotencyKey string) BridgeOutcome {
	if !knownAction(proposed.ActionType) {
		return BridgeOutcome{
			Kind: OutcomeError,
			Tool: string(proposed.ActionType),
			Err:  domain.WrapError(domain.ErrUnknownTool, "record proposal", fmt.Errorf("action type %q is not supported", proposed.ActionType)),
		}
	}
	proposal := domain.DraftProposal{
		Payload:     proposed.Payload,
		Citations:   proposed.Citations,
		Confidence:  proposed.Confidence,
		NeedsReview: proposed.NeedsReview,
	}
	return b.record(ctx, string(proposed.ActionType), owner, proposed.ActionType, nil, proposal, idempotencyKey)
}

func (b *ToolBridge) record(
	ctx context.Context,
	tool string,
	owner DraftOwner,
	actionType domain.ActionType,
	input map[string]any,
	proposal domain.DraftProposal,
	idempotencyKey string,
) BridgeOutcome {
	payload := proposal.Payload
	if payload == nil {
		payload = map[string]any{}
	}
	if input == nil {
		input = map[string]any{}
	}
	verdict := ClassifyAction(actionType, payload)

	now := b.now()
	draft := &domain.ActionDraft{
		ID:             uuid.NewString(),
		TenantID:       owner.TenantID,
		UserID:         owner.UserID,
		ConversationID: owner.ConversationID,
		ActionType:     actionType,
		Input:          input,
		Payload:        payload,
		Citations:      proposal.Citations,
		Confidence:     proposal.Confidence,
		NeedsReview:    proposal.NeedsReview || !verdict.Safe,
		Status:         domain.DraftStatusDrafted,
		IdempotencyKey: idempotencyKey,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := b.drafts.CreateDraft(ctx, draft); err != nil {
		return BridgeOutcome{Kind: OutcomeError, Tool: tool, Err: fmt.Errorf("persist draft: %w", err)}
	}
	b.publishCreated(ctx, draft)

	if !verdict.Safe {
		return BridgeOutcome{Kind: OutcomeUnsafe, Tool: tool, Draft: draft, Verdict: verdict}
	}
	return BridgeOutcome{Kind: OutcomeDraft, Tool: tool, Draft: draft, Verdict: verdict}
}

func (b *ToolBridge) publishCreated(ctx context.Context, draft *domain.ActionDraft) {
	if b.events == nil {
		return
	}
	err := b.events.PublishDraftEvent(ctx, domain.DraftEvent{
		Type:       domain.DraftEventCreated,
		DraftID:    draft.ID,
		TenantID:   draft.TenantID,
		ActionType: draft.ActionType,
		Actor:      draft.UserID,
		OccurredAt: draft.CreatedAt,
	})
	if err != nil {
		slog.WarnContext(ctx, "draft_event_publish_failed",
			"event", string(domain.DraftEventCreated),
			"draft_id", draft.ID,
			"error", err.Error(),
		)
	}
}

// upstreamError keeps an existing error kind and classifies the rest as upstream.
func upstreamError(op string, err error) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return domain.WrapError(domain.ErrTemporary, op, err)
	case domain.IsKind(err, domain.ErrTemporary), domain.IsKind(err, domain.ErrUpstream),
		domain.IsKind(err, domain.ErrInvalidInput), domain.IsKind(err, domain.ErrNotFound):
		return fmt.Errorf("%s: %w", op, err)
	default:
		return domain.WrapError(domain.ErrUpstream, op, err)
	}
}

func draftMessage(draft *domain.ActionDraft) string {
	if draft == nil {
		return ""
	}
	label := string(draft.ActionType)
	for _, spec := range toolCatalog {
		if spec.Action == draft.ActionType {
			label = spec.Label
			break
		}
	}
	if title := firstString(draft.Payload, "title", "rfq_title", "name"); title != "" {
		return fmt.Sprintf("I drafted the %s %q. It is ready for your review.", label, title)
	}
	return fmt.Sprintf("I drafted the %s. It is ready for your review.", label)
}

func errorMessage(err error) string {
	switch domain.ErrorCode(err) {
	case "unknown_tool":
		return "I don't know how to perform that action."
	case "pending_not_found":
		return "That question or selection is no longer open."
	case "invalid_input":
		return "I could not use that input. Please check it and try again."
	case "temporary":
		return "A downstream service timed out. Please try again."
	case "upstream":
		return "A downstream service failed to respond correctly. Please try again."
	default:
		return "Something went wrong while handling your message."
	}
}
