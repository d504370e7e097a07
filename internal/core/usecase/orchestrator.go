package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/action-orchestrator/internal/core/domain"
	"github.com/kirillkom/action-orchestrator/internal/core/ports"
)

const (
	RouteClarification = "clarification"
	RouteEntityPicker  = "entity_picker"
	RoutePlanner       = "planner"

	maxWorkspaceItems = 20
)

type OrchestratorLimits struct {
	PlannerTimeout     time.Duration
	ResponderTimeout   time.Duration
	ToolTimeout        time.Duration
	MaxResponderRounds int
}

type OrchestratorDeps struct {
	Conversations ports.ConversationStore
	Pending       ports.PendingStore
	Locker        ports.ConversationLocker
	Planner       ports.Planner
	Responder     ports.Responder
	Workspace     ports.WorkspaceResolver
	Bridge        *ToolBridge
	Plans         *PlanExecutor
	Picker        *DisambiguationEngine
	Ledger        *MemoryLedger
}

// TurnOrchestrator is the single entry point for inbound messages.
type TurnOrchestrator struct {
	conversations ports.ConversationStore
	pending       ports.PendingStore
	locker        ports.ConversationLocker
	planner       ports.Planner
	responder     ports.Responder
	workspace     ports.WorkspaceResolver
	bridge        *ToolBridge
	plans         *PlanExecutor
	picker        *DisambiguationEngine
	ledger        *MemoryLedger
	limits        OrchestratorLimits
	now           func() time.Time
}

func NewTurnOrchestrator(deps OrchestratorDeps, limits OrchestratorLimits) *TurnOrchestrator {
	if limits.PlannerTimeout <= 0 {
		limits.PlannerTimeout = 20 * time.Second
	}
	if limits.ResponderTimeout <= 0 {
		limits.ResponderTimeout = 30 * time.Second
	}
	if limits.ToolTimeout <= 0 {
		limits.ToolTimeout = 15 * time.Second
	}
	if limits.MaxResponderRounds <= 0 {
		limits.MaxResponderRounds = 3
	}
	return &TurnOrchestrator{
		conversations: deps.Conversations,
		pending:       deps.Pending,
		locker:        deps.Locker,
		planner:       deps.Planner,
		responder:     deps.Responder,
		workspace:     deps.Workspace,
		bridge:        deps.Bridge,
		plans:         deps.Plans,
		picker:        deps.Picker,
		ledger:        deps.Ledger,
		limits:        limits,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

type assistantReply struct {
	kind    domain.EnvelopeType
	content string
	draftID string
}

type turnState struct {
	req     domain.TurnRequest
	conv    *domain.Conversation
	turn    int
	memory  []domain.MemoryTurn
	pending *domain.PendingInteraction
	replies []assistantReply
	result  *domain.TurnResult
}

func (st *turnState) owner() DraftOwner {
	return DraftOwner{TenantID: st.req.TenantID, UserID: st.req.UserID, ConversationID: st.conv.ID}
}

func (st *turnState) reply(kind domain.EnvelopeType, content, draftID string) {
	st.replies = append(st.replies, assistantReply{kind: kind, content: content, draftID: draftID})
}

func (st *turnState) recordCall(outcome BridgeOutcome) {
	st.result.BridgeCalls = append(st.result.BridgeCalls, domain.BridgeCallReport{
		Tool:    outcome.Tool,
		Outcome: outcome.EnvelopeType(),
	})
}

func (st *turnState) fail(err error) domain.ResponseEnvelope {
	st.result.Err = err
	return domain.ResponseEnvelope{
		Type:    domain.EnvelopeError,
		Message: errorMessage(err),
		Error:   &domain.ErrorPayload{Code: domain.ErrorCode(err), Message: err.Error()},
	}
}

// HandleMessage processes one inbound message under the conversation lock. Failures after
// the conversation is attached come back as error envelopes with the exchange recorded.
func (o *TurnOrchestrator) HandleMessage(ctx context.Context, req domain.TurnRequest) (*domain.TurnResult, error) {
	const op = "handle message"

	req.TenantID = strings.TrimSpace(req.TenantID)
	req.UserID = strings.TrimSpace(req.UserID)
	req.ConversationID = strings.TrimSpace(req.ConversationID)
	req.Text = strings.TrimSpace(req.Text)
	if req.TenantID == "" || req.UserID == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, op, fmt.Errorf("tenant_id and user_id are required"))
	}
	if req.ConversationID == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, op, fmt.Errorf("conversation_id is required"))
	}
	if req.Context.Clarification != nil && req.Context.EntityPicker != nil {
		return nil, domain.WrapError(domain.ErrInvalidInput, op, fmt.Errorf("context may reference only one pending interaction"))
	}
	if req.Text == "" && req.Context.EntityPicker == nil && (req.Context.Clarification == nil || len(req.Context.Clarification.Answers) == 0) {
		return nil, domain.WrapError(domain.ErrInvalidInput, op, fmt.Errorf("text is required"))
	}

	unlock, err := o.locker.Lock(ctx, req.ConversationID)
	if err != nil {
		return nil, domain.WrapError(domain.ErrTemporary, op, fmt.Errorf("lock conversation: %w", err))
	}
	defer unlock()

	conv, err := o.conversations.EnsureConversation(ctx, req.TenantID, req.UserID, req.ConversationID)
	if err != nil {
		return nil, fmt.Errorf("ensure conversation: %w", err)
	}
	if !conv.OwnedBy(req.TenantID, req.UserID) {
		return nil, domain.WrapError(domain.ErrUnauthorized, op, fmt.Errorf("conversation %s belongs to another user", conv.ID))
	}
	if conv.Status == domain.ConversationClosed {
		return nil, domain.WrapError(domain.ErrConversationClosed, op, fmt.Errorf("conversation %s is closed", conv.ID))
	}

	turn, err := o.conversations.NextUserTurn(ctx, conv.ID)
	if err != nil {
		return nil, fmt.Errorf("next user turn: %w", err)
	}
	window, err := o.ledger.WindowFor(ctx, conv.ID)
	if err != nil {
		return nil, err
	}
	pending, err := o.pending.GetPending(ctx, conv.ID)
	if err != nil {
		return nil, fmt.Errorf("load pending interaction: %w", err)
	}

	userContent := userMessageContent(req)
	st := &turnState{
		req:     req,
		conv:    conv,
		turn:    turn,
		memory:  o.ledger.Preview(window, domain.MemoryTurn{Role: domain.RoleUser, Content: userContent}),
		pending: pending,
		result:  &domain.TurnResult{},
	}
	st.result.MemoryWindow = len(st.memory)

	var envelope domain.ResponseEnvelope
	switch {
	case req.Context.Clarification != nil:
		st.result.Route = RouteClarification
		envelope = o.resumeClarification(ctx, st, req.Context.Clarification)
	case req.Context.EntityPicker != nil:
		st.result.Route = RouteEntityPicker
		envelope = o.resolveEntityPicker(ctx, st, req.Context.EntityPicker)
	default:
		st.result.Route = RoutePlanner
		envelope = o.planAndRoute(ctx, st)
	}
	envelope.ConversationID = conv.ID
	st.result.Envelope = envelope
	if len(st.replies) == 0 {
		st.reply(envelope.Type, envelope.Message, envelopeDraftID(envelope))
	}

	if err := o.persistTurn(ctx, st, userContent); err != nil {
		return nil, err
	}
	logTurn(ctx, st)
	return st.result, nil
}

func logTurn(ctx context.Context, st *turnState) {
	attrs := []any{
		"conversation_id", st.conv.ID,
		"user_turn", st.turn,
		"route", st.result.Route,
		"envelope", string(st.result.Envelope.Type),
		"bridge_calls", len(st.result.BridgeCalls),
		"responder_rounds", st.result.ResponderUsed,
	}
	if st.result.PendingEvent != "" {
		attrs = append(attrs, "pending_event", st.result.PendingEvent)
	}
	if st.result.Err != nil {
		slog.WarnContext(ctx, "turn_failed", append(attrs, "error_code", domain.ErrorCode(st.result.Err), "error", st.result.Err)...)
		return
	}
	slog.InfoContext(ctx, "turn_handled", attrs...)
}

func (o *TurnOrchestrator) planAndRoute(ctx context.Context, st *turnState) domain.ResponseEnvelope {
	plannerCtx, cancel := context.WithTimeout(ctx, o.limits.PlannerTimeout)
	decision, err := o.planner.Plan(plannerCtx, domain.PlannerRequest{
		Prompt:         st.req.Text,
		ConversationID: st.conv.ID,
		UserID:         st.req.UserID,
		Memory:         st.memory,
	})
	cancel()
	if err != nil {
		return st.fail(upstreamError("plan", err))
	}
	st.result.PlannerKind = decision.Kind

	switch decision.Kind {
	case domain.PlannerKindClarification:
		spec, ok := LookupTool(decision.Tool)
		if !ok {
			return st.fail(domain.WrapError(domain.ErrUnknownTool, "plan clarification", fmt.Errorf("tool %q has no action mapping", decision.Tool)))
		}
		question := decision.Question
		if question == "" {
			question = spec.Question(decision.MissingArgs)
		}
		return o.askClarification(ctx, st, domain.PendingClarification{
			ID:          uuid.NewString(),
			Tool:        spec.Name,
			MissingArgs: decision.MissingArgs,
			Question:    question,
			Args:        cloneArgs(decision.Args),
		})
	case domain.PlannerKindPlan:
		if len(decision.Steps) > o.plans.MaxSteps() {
			return st.fail(domain.WrapError(domain.ErrInvalidInput, "run plan",
				fmt.Errorf("plan has %d steps, limit is %d", len(decision.Steps), o.plans.MaxSteps())))
		}
		run := o.plans.Run(ctx, st.owner(), st.turn, decision.Steps, PlanPrior{})
		return o.planEnvelope(ctx, st, run)
	case domain.PlannerKindTool:
		outcome := o.bridge.Invoke(ctx, BridgeCall{
			Tool:           decision.Tool,
			Args:           decision.Args,
			IdempotencyKey: IdempotencyKey(st.conv.ID, st.turn, 1),
			Owner:          st.owner(),
		})
		st.recordCall(outcome)
		return o.outcomeEnvelope(ctx, st, outcome)
	default:
		return o.respond(ctx, st, st.req.Text, nil, nil)
	}
}

func (o *TurnOrchestrator) resumeClarification(ctx context.Context, st *turnState, ref *domain.ClarificationRef) domain.ResponseEnvelope {
	stored := st.pending
	if stored == nil || stored.Kind != domain.PendingClarificationKind || stored.Clarification == nil ||
		stored.Clarification.ID != strings.TrimSpace(ref.ID) {
		return st.fail(domain.WrapError(domain.ErrPendingNotFound, "resume clarification", fmt.Errorf("no open clarification %q", ref.ID)))
	}

	clar := *stored.Clarification
	clar.Args = cloneArgs(clar.Args)
	answers := inferAnswers(clar.MissingArgs, ref.Answers, st.req.Text)
	for name, value := range answers {
		clar.Args[name] = value
	}
	if remaining := unanswered(clar.MissingArgs, answers); len(remaining) > 0 {
		clar.MissingArgs = remaining
		if spec, ok := LookupTool(clar.Tool); ok {
			clar.Question = spec.Question(remaining)
		}
		return o.askClarification(ctx, st, clar)
	}

	offset := 0
	var prior []string
	if clar.Continuation != nil {
		offset = clar.Continuation.StepOffset
		prior = clar.Continuation.CompletedDrafts
	}
	index := offset + 1
	outcome := o.bridge.Invoke(ctx, BridgeCall{
		Tool:           clar.Tool,
		Args:           clar.Args,
		IdempotencyKey: IdempotencyKey(st.conv.ID, st.turn, index),
		Owner:          st.owner(),
	})

	switch outcome.Kind {
	case OutcomeError:
		st.recordCall(outcome)
		return st.fail(outcome.Err)
	case OutcomeClarification:
		st.recordCall(outcome)
		next := *outcome.Clarification
		next.ID = clar.ID
		next.Continuation = clar.Continuation
		return o.askClarification(ctx, st, next)
	}

	if err := o.clearPending(ctx, st, stored); err != nil {
		return st.fail(err)
	}
	if clar.Continuation == nil || len(clar.Continuation.Steps) == 0 {
		st.recordCall(outcome)
		return o.outcomeEnvelope(ctx, st, outcome)
	}

	resumed := StepResult{Index: index, Tool: clar.Tool, Args: clar.Args, Outcome: outcome}
	if outcome.Kind != OutcomeDraft {
		return o.planEnvelope(ctx, st, PlanRun{
			Final:           outcome,
			Steps:           []StepResult{resumed},
			Remaining:       clar.Continuation.Steps,
			CompletedDrafts: prior,
		})
	}
	completed := append(append([]string(nil), prior...), outcome.Draft.ID)
	run := o.plans.Run(ctx, st.owner(), st.turn, clar.Continuation.Steps, PlanPrior{CompletedDrafts: completed, StepOffset: index})
	run.Steps = append([]StepResult{resumed}, run.Steps...)
	return o.planEnvelope(ctx, st, run)
}

func (o *TurnOrchestrator) resolveEntityPicker(ctx context.Context, st *turnState, ref *domain.EntityPickerRef) domain.ResponseEnvelope {
	stored := st.pending
	if stored == nil || stored.Kind != domain.PendingEntityPickerKind || stored.EntityPicker == nil ||
		stored.EntityPicker.ID != strings.TrimSpace(ref.ID) {
		return st.fail(domain.WrapError(domain.ErrPendingNotFound, "resolve entity picker", fmt.Errorf("no open entity picker %q", ref.ID)))
	}
	picker := stored.EntityPicker

	call, err := o.picker.Resolve(picker, ref.CandidateID)
	if err != nil {
		return st.fail(err)
	}
	candidate, _ := picker.Candidate(strings.TrimSpace(ref.CandidateID))

	toolCtx, cancel := context.WithTimeout(ctx, o.limits.ToolTimeout)
	results, err := o.workspace.ResolveBatch(toolCtx, st.req.TenantID, []domain.ToolCall{call})
	cancel()
	if err != nil {
		return st.fail(upstreamError("resolve selected entity", err))
	}

	envelope := o.respond(ctx, st, picker.Prompt, results, map[string]any{
		"selection": map[string]any{
			"tool":      picker.Tool,
			"arg_name":  picker.ArgName,
			"candidate": candidate,
		},
	})
	if envelope.Type == domain.EnvelopeError {
		return envelope
	}
	// A follow-up lookup may already have replaced the picker with a new one.
	if st.pending != nil && st.pending.Kind == domain.PendingEntityPickerKind && st.pending.ID() == picker.ID {
		if err := o.clearPending(ctx, st, stored); err != nil {
			return st.fail(err)
		}
	}
	return envelope
}

// respond runs the responder continuation: replies with tool calls are resolved against
// the workspace and fed back until the responder answers or the round limit is reached.
func (o *TurnOrchestrator) respond(ctx context.Context, st *turnState, prompt string, results []domain.WorkspaceResult, extra map[string]any) domain.ResponseEnvelope {
	for round := 0; ; round++ {
		responderCtx, cancel := context.WithTimeout(ctx, o.limits.ResponderTimeout)
		reply, err := o.responder.Respond(responderCtx, domain.ResponderRequest{
			Prompt:  prompt,
			Memory:  st.memory,
			Context: responderContext(st.memory, results, extra),
		})
		cancel()
		st.result.ResponderUsed++
		if err != nil {
			return st.fail(upstreamError("respond", err))
		}

		if reply.Draft != nil {
			outcome := o.bridge.RecordProposal(ctx, st.owner(), *reply.Draft, IdempotencyKey(st.conv.ID, st.turn, 1))
			st.recordCall(outcome)
			return o.outcomeEnvelope(ctx, st, outcome)
		}
		if len(reply.ToolCalls) == 0 {
			return domain.ResponseEnvelope{Type: domain.EnvelopeMessage, Message: reply.Text}
		}
		if round >= o.limits.MaxResponderRounds {
			text := reply.Text
			if text == "" {
				text = "I could not finish looking this up. Please narrow the request."
			}
			return domain.ResponseEnvelope{Type: domain.EnvelopeMessage, Message: text}
		}

		calls := normalizeCalls(reply.ToolCalls, round)
		toolCtx, cancel := context.WithTimeout(ctx, o.limits.ToolTimeout)
		batch, err := o.workspace.ResolveBatch(toolCtx, st.req.TenantID, calls)
		cancel()
		if err != nil {
			return st.fail(upstreamError("resolve workspace batch", err))
		}

		decision := o.picker.AfterWorkspaceBatch(prompt, calls, batch)
		if decision.Picker != nil {
			return o.askEntityPicker(ctx, st, *decision.Picker)
		}
		results = append(results, decision.Results...)
	}
}

func (o *TurnOrchestrator) outcomeEnvelope(ctx context.Context, st *turnState, outcome BridgeOutcome) domain.ResponseEnvelope {
	switch outcome.Kind {
	case OutcomeClarification:
		next := *outcome.Clarification
		next.ID = uuid.NewString()
		return o.askClarification(ctx, st, next)
	case OutcomeError:
		return st.fail(outcome.Err)
	default:
		return settledEnvelope(outcome)
	}
}

// planEnvelope records one assistant message per executed step and stores a
// clarification with the remaining steps when the plan was interrupted.
func (o *TurnOrchestrator) planEnvelope(ctx context.Context, st *turnState, run PlanRun) domain.ResponseEnvelope {
	for _, step := range run.Steps {
		st.recordCall(step.Outcome)
	}

	var envelope domain.ResponseEnvelope
	switch run.Final.Kind {
	case OutcomeClarification:
		last := run.Steps[len(run.Steps)-1]
		next := *run.Final.Clarification
		next.ID = uuid.NewString()
		next.Continuation = &domain.PlanContinuation{
			Steps:           run.Remaining,
			CompletedDrafts: run.CompletedDrafts,
			StepOffset:      last.Index - 1,
		}
		envelope = o.askClarification(ctx, st, next)
	case OutcomeError:
		envelope = st.fail(run.Final.Err)
	default:
		envelope = settledEnvelope(run.Final)
	}

	steps := make([]domain.StepSummary, 0, len(run.Steps))
	for i, step := range run.Steps {
		kind, message := step.Outcome.EnvelopeType(), step.Outcome.Message()
		if i == len(run.Steps)-1 {
			kind, message = envelope.Type, envelope.Message
		}
		st.reply(kind, message, step.Outcome.DraftID())
		steps = append(steps, domain.StepSummary{
			Index:   step.Index,
			Tool:    step.Tool,
			Outcome: kind,
			DraftID: step.Outcome.DraftID(),
			Message: message,
		})
	}
	envelope.Steps = steps
	envelope.RemainingSteps = run.Remaining
	return envelope
}

func (o *TurnOrchestrator) askClarification(ctx context.Context, st *turnState, clar domain.PendingClarification) domain.ResponseEnvelope {
	if err := o.storePending(ctx, st, domain.NewClarificationInteraction(clar, o.now())); err != nil {
		return st.fail(err)
	}
	return domain.ResponseEnvelope{
		Type:    domain.EnvelopeClarification,
		Message: clar.Question,
		Clarification: &domain.ClarificationPayload{
			ID:          clar.ID,
			Tool:        clar.Tool,
			MissingArgs: clar.MissingArgs,
			Question:    clar.Question,
		},
	}
}

func (o *TurnOrchestrator) askEntityPicker(ctx context.Context, st *turnState, picker domain.PendingEntityPicker) domain.ResponseEnvelope {
	if err := o.storePending(ctx, st, domain.NewEntityPickerInteraction(picker, o.now())); err != nil {
		return st.fail(err)
	}
	return domain.ResponseEnvelope{
		Type:    domain.EnvelopeEntityPicker,
		Message: pickerQuestion(&picker),
		EntityPicker: &domain.EntityPickerPayload{
			ID:         picker.ID,
			Tool:       picker.Tool,
			Candidates: picker.Candidates,
		},
	}
}

// storePending writes next into the slot. An interruption of the other kind is
// superseded explicitly; the store itself refuses to drop it.
func (o *TurnOrchestrator) storePending(ctx context.Context, st *turnState, next domain.PendingInteraction) error {
	event := "created"
	if st.pending != nil && st.pending.Kind == next.Kind {
		event = "replaced"
		if st.pending.ID() == next.ID() {
			event = "updated"
		}
	}

	err := o.pending.SavePending(ctx, st.conv.ID, next)
	if domain.IsKind(err, domain.ErrPendingConflict) && st.pending != nil {
		slog.WarnContext(ctx, "pending_superseded",
			"conversation_id", st.conv.ID,
			"from_kind", string(st.pending.Kind),
			"from_id", st.pending.ID(),
			"to_kind", string(next.Kind),
			"to_id", next.ID(),
		)
		if clearErr := o.pending.ClearPending(ctx, st.conv.ID, st.pending.Kind, st.pending.ID()); clearErr != nil {
			return fmt.Errorf("supersede pending interaction: %w", clearErr)
		}
		err = o.pending.SavePending(ctx, st.conv.ID, next)
		event = "superseded"
	}
	if err != nil {
		return fmt.Errorf("save pending interaction: %w", err)
	}
	st.pending = &next
	st.result.PendingEvent = event
	return nil
}

func (o *TurnOrchestrator) clearPending(ctx context.Context, st *turnState, stored *domain.PendingInteraction) error {
	if err := o.pending.ClearPending(ctx, st.conv.ID, stored.Kind, stored.ID()); err != nil {
		return fmt.Errorf("clear pending interaction: %w", err)
	}
	st.pending = nil
	st.result.PendingEvent = "resolved"
	return nil
}

func (o *TurnOrchestrator) persistTurn(ctx context.Context, st *turnState, userContent string) error {
	now := o.now()
	messages := make([]domain.ConversationMessage, 0, len(st.replies)+1)
	messages = append(messages, domain.ConversationMessage{
		ID:             uuid.NewString(),
		ConversationID: st.conv.ID,
		Role:           domain.RoleUser,
		Content:        userContent,
		UserTurn:       st.turn,
		CreatedAt:      now,
	})
	for i, reply := range st.replies {
		messages = append(messages, domain.ConversationMessage{
			ID:             uuid.NewString(),
			ConversationID: st.conv.ID,
			Role:           domain.RoleAssistant,
			Kind:           string(reply.kind),
			Content:        reply.content,
			DraftID:        reply.draftID,
			UserTurn:       st.turn,
			CreatedAt:      now.Add(time.Duration(i+1) * time.Microsecond),
		})
	}
	if err := o.conversations.AppendMessages(ctx, messages...); err != nil {
		return fmt.Errorf("append turn messages: %w", err)
	}

	turns := make([]domain.MemoryTurn, 0, len(messages))
	for _, msg := range messages {
		turns = append(turns, domain.MemoryTurn{Role: msg.Role, Content: msg.Content})
	}
	if _, err := o.ledger.Append(ctx, st.conv.ID, messages[len(messages)-1].ID, turns...); err != nil {
		return err
	}
	return nil
}

func settledEnvelope(outcome BridgeOutcome) domain.ResponseEnvelope {
	envelope := domain.ResponseEnvelope{
		Type:    outcome.EnvelopeType(),
		Message: outcome.Message(),
		Draft:   outcome.Draft,
	}
	if outcome.Kind == OutcomeUnsafe && outcome.Draft != nil {
		envelope.UnsafeAction = &domain.UnsafeActionPayload{
			DraftID:         outcome.Draft.ID,
			ActionType:      outcome.Draft.ActionType,
			Impact:          outcome.Verdict.Impact,
			Acknowledgement: outcome.Verdict.Acknowledgement,
		}
	}
	return envelope
}

func envelopeDraftID(envelope domain.ResponseEnvelope) string {
	if envelope.Draft == nil {
		return ""
	}
	return envelope.Draft.ID
}

func responderContext(memory []domain.MemoryTurn, results []domain.WorkspaceResult, extra map[string]any) map[string]any {
	out := map[string]any{
		"memory": map[string]any{"turns": memory},
	}
	if len(results) > 0 {
		out["tool_results"] = results
	}
	for key, value := range extra {
		out[key] = value
	}
	return out
}

func normalizeCalls(calls []domain.ToolCall, round int) []domain.ToolCall {
	out := make([]domain.ToolCall, 0, len(calls))
	for i, call := range calls {
		call.Args = cloneArgs(call.Args)
		if call.ID == "" {
			call.ID = fmt.Sprintf("call_%d_%d", round+1, i+1)
		}
		if limit := intInput(call.Args, "limit", 0); limit > maxWorkspaceItems {
			call.Args["limit"] = maxWorkspaceItems
		}
		out = append(out, call)
	}
	return out
}

func userMessageContent(req domain.TurnRequest) string {
	if req.Text != "" {
		return req.Text
	}
	if req.Context.EntityPicker != nil {
		return "selected " + strings.TrimSpace(req.Context.EntityPicker.CandidateID)
	}
	if req.Context.Clarification != nil {
		names := make([]string, 0, len(req.Context.Clarification.Answers))
		for name := range req.Context.Clarification.Answers {
			names = append(names, name)
		}
		sort.Strings(names)
		parts := make([]string, 0, len(names))
		for _, name := range names {
			parts = append(parts, fmt.Sprintf("%s: %v", name, req.Context.Clarification.Answers[name]))
		}
		return strings.Join(parts, "\n")
	}
	return ""
}
