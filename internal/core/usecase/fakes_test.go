package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/kirillkom/action-orchestrator/internal/core/domain"
)

type fakeConversationStore struct {
	conversations map[string]*domain.Conversation
	messages      []domain.ConversationMessage
	appendErr     error
}

func newFakeConversationStore() *fakeConversationStore {
	return &fakeConversationStore{conversations: make(map[string]*domain.Conversation)}
}

func (f *fakeConversationStore) EnsureConversation(_ context.Context, tenantID, userID, conversationID string) (*domain.Conversation, error) {
	if conv, ok := f.conversations[conversationID]; ok {
		copied := *conv
		return &copied, nil
	}
	now := time.Now().UTC()
	conv := &domain.Conversation{
		ID:             conversationID,
		TenantID:       tenantID,
		UserID:         userID,
		Status:         domain.ConversationOpen,
		LastActivityAt: now,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	f.conversations[conversationID] = conv
	copied := *conv
	return &copied, nil
}

func (f *fakeConversationStore) GetConversation(_ context.Context, conversationID string) (*domain.Conversation, error) {
	conv, ok := f.conversations[conversationID]
	if !ok {
		return nil, domain.WrapError(domain.ErrNotFound, "get conversation", fmt.Errorf("conversation %s", conversationID))
	}
	copied := *conv
	return &copied, nil
}

func (f *fakeConversationStore) CloseConversation(_ context.Context, conversationID string) error {
	conv, ok := f.conversations[conversationID]
	if !ok {
		return domain.WrapError(domain.ErrNotFound, "close conversation", fmt.Errorf("conversation %s", conversationID))
	}
	conv.Status = domain.ConversationClosed
	return nil
}

func (f *fakeConversationStore) NextUserTurn(_ context.Context, conversationID string) (int, error) {
	conv, ok := f.conversations[conversationID]
	if !ok {
		return 0, domain.WrapError(domain.ErrNotFound, "next user turn", fmt.Errorf("conversation %s", conversationID))
	}
	conv.CurrentUserTurn++
	return conv.CurrentUserTurn, nil
}

func (f *fakeConversationStore) AppendMessages(_ context.Context, messages ...domain.ConversationMessage) error {
	if f.appendErr != nil {
		return f.appendErr
	}
	f.messages = append(f.messages, messages...)
	return nil
}

func (f *fakeConversationStore) ListMessages(_ context.Context, conversationID string, limit int) ([]domain.ConversationMessage, error) {
	out := make([]domain.ConversationMessage, 0)
	for _, msg := range f.messages {
		if msg.ConversationID == conversationID {
			out = append(out, msg)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func (f *fakeConversationStore) assistantMessages(turn int) []domain.ConversationMessage {
	out := make([]domain.ConversationMessage, 0)
	for _, msg := range f.messages {
		if msg.Role == domain.RoleAssistant && msg.UserTurn == turn {
			out = append(out, msg)
		}
	}
	return out
}

type fakePendingStore struct {
	slots map[string]domain.PendingInteraction
	saves int
}

func newFakePendingStore() *fakePendingStore {
	return &fakePendingStore{slots: make(map[string]domain.PendingInteraction)}
}

func (f *fakePendingStore) GetPending(_ context.Context, conversationID string) (*domain.PendingInteraction, error) {
	p, ok := f.slots[conversationID]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (f *fakePendingStore) SavePending(_ context.Context, conversationID string, pending domain.PendingInteraction) error {
	if err := pending.Validate(); err != nil {
		return domain.WrapError(domain.ErrInvalidInput, "save pending", err)
	}
	var current *domain.PendingInteraction
	if p, ok := f.slots[conversationID]; ok {
		current = &p
	}
	if err := domain.CanReplace(current, pending); err != nil {
		return err
	}
	f.slots[conversationID] = pending
	f.saves++
	return nil
}

func (f *fakePendingStore) ClearPending(_ context.Context, conversationID string, kind domain.PendingKind, id string) error {
	p, ok := f.slots[conversationID]
	if !ok || p.Kind != kind || p.ID() != id {
		return domain.WrapError(domain.ErrPendingNotFound, "clear pending", fmt.Errorf("%s %s", kind, id))
	}
	delete(f.slots, conversationID)
	return nil
}

// slotID returns the id of the stored pending interaction, or "" when the slot is empty.
func (f *fakePendingStore) slotID(conversationID string) string {
	p, ok := f.slots[conversationID]
	if !ok {
		return ""
	}
	return p.ID()
}

type fakeMemoryStore struct {
	records map[string]domain.MemoryRecord
}

func newFakeMemoryStore() *fakeMemoryStore {
	return &fakeMemoryStore{records: make(map[string]domain.MemoryRecord)}
}

func (f *fakeMemoryStore) GetMemory(_ context.Context, conversationID string) (*domain.MemoryRecord, error) {
	record, ok := f.records[conversationID]
	if !ok {
		return nil, nil
	}
	record.Window = append([]domain.MemoryTurn(nil), record.Window...)
	return &record, nil
}

func (f *fakeMemoryStore) UpsertMemory(_ context.Context, record *domain.MemoryRecord) error {
	copied := *record
	copied.Window = append([]domain.MemoryTurn(nil), record.Window...)
	f.records[record.ConversationID] = copied
	return nil
}

type fakeDraftStore struct {
	drafts map[string]domain.ActionDraft
	order  []string
}

func newFakeDraftStore() *fakeDraftStore {
	return &fakeDraftStore{drafts: make(map[string]domain.ActionDraft)}
}

func (f *fakeDraftStore) CreateDraft(_ context.Context, draft *domain.ActionDraft) error {
	f.drafts[draft.ID] = *draft
	f.order = append(f.order, draft.ID)
	return nil
}

func (f *fakeDraftStore) GetDraft(_ context.Context, id string) (*domain.ActionDraft, error) {
	draft, ok := f.drafts[id]
	if !ok {
		return nil, domain.WrapError(domain.ErrNotFound, "get draft", fmt.Errorf("draft %s", id))
	}
	return &draft, nil
}

func (f *fakeDraftStore) UpdateDraftStatus(_ context.Context, draft *domain.ActionDraft, from domain.DraftStatus) error {
	stored, ok := f.drafts[draft.ID]
	if !ok {
		return domain.WrapError(domain.ErrNotFound, "update draft", fmt.Errorf("draft %s", draft.ID))
	}
	if stored.Status != from {
		return domain.WrapError(domain.ErrDraftState, "update draft", fmt.Errorf("draft %s is %s", draft.ID, stored.Status))
	}
	f.drafts[draft.ID] = *draft
	return nil
}

func (f *fakeDraftStore) ListDrafts(_ context.Context, filter domain.DraftFilter) ([]domain.ActionDraft, error) {
	out := make([]domain.ActionDraft, 0)
	for _, id := range f.order {
		draft := f.drafts[id]
		if draft.TenantID != filter.TenantID {
			continue
		}
		if filter.Status != "" && draft.Status != filter.Status {
			continue
		}
		out = append(out, draft)
	}
	return out, nil
}

type fakeLocker struct {
	mu     sync.Mutex
	locked map[string]int
}

func (f *fakeLocker) Lock(_ context.Context, conversationID string) (func(), error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.locked == nil {
		f.locked = make(map[string]int)
	}
	f.locked[conversationID]++
	return func() {}, nil
}

type fakePlanner struct {
	decisions []domain.PlannerDecision
	err       error
	requests  []domain.PlannerRequest
}

func (f *fakePlanner) Plan(_ context.Context, req domain.PlannerRequest) (domain.PlannerDecision, error) {
	f.requests = append(f.requests, req)
	if f.err != nil {
		return domain.PlannerDecision{}, f.err
	}
	if len(f.decisions) == 0 {
		return domain.PlannerDecision{Kind: domain.PlannerKindNone}, nil
	}
	out := f.decisions[0]
	f.decisions = f.decisions[1:]
	return out, nil
}

type fakeResponder struct {
	replies  []domain.ResponderReply
	err      error
	requests []domain.ResponderRequest
}

func (f *fakeResponder) Respond(_ context.Context, req domain.ResponderRequest) (domain.ResponderReply, error) {
	f.requests = append(f.requests, req)
	if f.err != nil {
		return domain.ResponderReply{}, f.err
	}
	if len(f.replies) == 0 {
		return domain.ResponderReply{Text: "ok"}, nil
	}
	out := f.replies[0]
	f.replies = f.replies[1:]
	return out, nil
}

type fakeWorkspace struct {
	results map[string][]map[string]any
	err     error
	calls   [][]domain.ToolCall
}

func (f *fakeWorkspace) ResolveBatch(_ context.Context, _ string, calls []domain.ToolCall) ([]domain.WorkspaceResult, error) {
	f.calls = append(f.calls, calls)
	if f.err != nil {
		return nil, f.err
	}
	out := make([]domain.WorkspaceResult, 0, len(calls))
	for _, call := range calls {
		items := f.results[call.Tool]
		if id := stringInput(call.Args, "invoice_id", ""); id != "" {
			items = filterByID(items, id)
		}
		out = append(out, domain.WorkspaceResult{CallID: call.ID, Tool: call.Tool, Items: items, Single: len(items) == 1})
	}
	return out, nil
}

func filterByID(items []map[string]any, id string) []map[string]any {
	out := make([]map[string]any, 0, 1)
	for _, item := range items {
		if item["id"] == id {
			out = append(out, item)
		}
	}
	return out
}

type fakeDrafter struct {
	requests []domain.DraftRequest
	err      error
}

func (f *fakeDrafter) DraftAction(_ context.Context, req domain.DraftRequest) (domain.DraftProposal, error) {
	f.requests = append(f.requests, req)
	if f.err != nil {
		return domain.DraftProposal{}, f.err
	}
	payload := cloneArgs(req.Args)
	if title, ok := req.Args["rfq_title"]; ok {
		payload["title"] = title
	}
	return domain.DraftProposal{
		Payload:    payload,
		Citations:  []domain.Citation{{Source: "workspace", Ref: string(req.ActionType)}},
		Confidence: 0.9,
	}, nil
}

type fakePublisher struct {
	events []domain.DraftEvent
	err    error
}

func (f *fakePublisher) PublishDraftEvent(_ context.Context, event domain.DraftEvent) error {
	if f.err != nil {
		return f.err
	}
	f.events = append(f.events, event)
	return nil
}

type orchestratorFixture struct {
	conversations *fakeConversationStore
	pending       *fakePendingStore
	memory        *fakeMemoryStore
	drafts        *fakeDraftStore
	locker        *fakeLocker
	planner       *fakePlanner
	responder     *fakeResponder
	workspace     *fakeWorkspace
	drafter       *fakeDrafter
	events        *fakePublisher
	orchestrator  *TurnOrchestrator
}

func newOrchestratorFixture() *orchestratorFixture {
	f := &orchestratorFixture{
		conversations: newFakeConversationStore(),
		pending:       newFakePendingStore(),
		memory:        newFakeMemoryStore(),
		drafts:        newFakeDraftStore(),
		locker:        &fakeLocker{},
		planner:       &fakePlanner{},
		responder:     &fakeResponder{},
		workspace:     &fakeWorkspace{results: make(map[string][]map[string]any)},
		drafter:       &fakeDrafter{},
		events:        &fakePublisher{},
	}
	bridge := NewToolBridge(f.drafter, f.drafts, f.events, time.Second)
	f.orchestrator = NewTurnOrchestrator(OrchestratorDeps{
		Conversations: f.conversations,
		Pending:       f.pending,
		Locker:        f.locker,
		Planner:       f.planner,
		Responder:     f.responder,
		Workspace:     f.workspace,
		Bridge:        bridge,
		Plans:         NewPlanExecutor(bridge, 4),
		Picker:        NewDisambiguationEngine(),
		Ledger:        NewMemoryLedger(f.memory, domain.DefaultMemoryWindow),
	}, OrchestratorLimits{MaxResponderRounds: 2})
	return f
}

func (f *orchestratorFixture) send(text string, turnCtx domain.TurnContext) (*domain.TurnResult, error) {
	return f.orchestrator.HandleMessage(context.Background(), domain.TurnRequest{
		TenantID:       "tenant-1",
		UserID:         "user-1",
		ConversationID: "conv-1",
		Text:           text,
		Context:        turnCtx,
	})
}
