package ports

import (
	"context"
	"io"

	"github.com/kirillkom/action-orchestrator/internal/core/domain"
)

// ConversationStore persists conversations and their append-only messages.
type ConversationStore interface {
	EnsureConversation(ctx context.Context, tenantID, userID, conversationID string) (*domain.Conversation, error)
	GetConversation(ctx context.Context, conversationID string) (*domain.Conversation, error)
	CloseConversation(ctx context.Context, conversationID string) error
	NextUserTurn(ctx context.Context, conversationID string) (int, error)
	AppendMessages(ctx context.Context, messages ...domain.ConversationMessage) error
	ListMessages(ctx context.Context, conversationID string, limit int) ([]domain.ConversationMessage, error)
}

// PendingStore holds the single pending-interaction slot of each conversation.
// SavePending fails with domain.ErrPendingConflict when the slot holds the other kind;
// ClearPending fails with domain.ErrPendingNotFound when kind and id do not match.
type PendingStore interface {
	GetPending(ctx context.Context, conversationID string) (*domain.PendingInteraction, error)
	SavePending(ctx context.Context, conversationID string, pending domain.PendingInteraction) error
	ClearPending(ctx context.Context, conversationID string, kind domain.PendingKind, id string) error
}

// MemoryStore persists one memory record per conversation. GetMemory returns nil, nil
// when no record exists yet.
type MemoryStore interface {
	GetMemory(ctx context.Context, conversationID string) (*domain.MemoryRecord, error)
	UpsertMemory(ctx context.Context, record *domain.MemoryRecord) error
}

// DraftStore persists action drafts. UpdateDraftStatus only applies when the stored
// status still equals from.
type DraftStore interface {
	CreateDraft(ctx context.Context, draft *domain.ActionDraft) error
	GetDraft(ctx context.Context, id string) (*domain.ActionDraft, error)
	UpdateDraftStatus(ctx context.Context, draft *domain.ActionDraft, from domain.DraftStatus) error
	ListDrafts(ctx context.Context, filter domain.DraftFilter) ([]domain.ActionDraft, error)
}

// ConversationLocker serializes message handling per conversation.
type ConversationLocker interface {
	Lock(ctx context.Context, conversationID string) (unlock func(), err error)
}

// Planner classifies a message into a clarification, plan, tool call or nothing.
type Planner interface {
	Plan(ctx context.Context, req domain.PlannerRequest) (domain.PlannerDecision, error)
}

// Responder is the general-purpose conversational oracle.
type Responder interface {
	Respond(ctx context.Context, req domain.ResponderRequest) (domain.ResponderReply, error)
}

// WorkspaceResolver runs a batch of read-mostly workspace tool calls for a tenant.
type WorkspaceResolver interface {
	ResolveBatch(ctx context.Context, tenantID string, calls []domain.ToolCall) ([]domain.WorkspaceResult, error)
}

// ActionDrafter is the drafting collaborator.
type ActionDrafter interface {
	DraftAction(ctx context.Context, req domain.DraftRequest) (domain.DraftProposal, error)
}

type DraftEventPublisher interface {
	PublishDraftEvent(ctx context.Context, event domain.DraftEvent) error
}

type DraftEventSubscriber interface {
	SubscribeDraftEvents(ctx context.Context, handler func(context.Context, domain.DraftEvent) error) error
}

// DraftConverter turns an approved draft into a committed business record and returns
// the record reference.
type DraftConverter interface {
	Convert(ctx context.Context, draft domain.ActionDraft, approver string) (string, error)
}

type DraftExporter interface {
	ExportDrafts(w io.Writer, drafts []domain.ActionDraft) error
}
