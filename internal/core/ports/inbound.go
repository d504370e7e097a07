package ports

import (
	"context"
	"io"

	"github.com/kirillkom/action-orchestrator/internal/core/domain"
)

// TurnHandler is the inbound contract for one user message. Upstream and reference
// failures come back as error envelopes; the returned error is reserved for requests
// that could not be attached to a conversation at all.
type TurnHandler interface {
	HandleMessage(ctx context.Context, req domain.TurnRequest) (*domain.TurnResult, error)
}

// ConversationService manages conversation lifecycle and history.
type ConversationService interface {
	Open(ctx context.Context, tenantID, userID, conversationID string) (*domain.Conversation, error)
	Get(ctx context.Context, tenantID, userID, conversationID string) (*domain.Conversation, error)
	Close(ctx context.Context, tenantID, userID, conversationID string) error
	History(ctx context.Context, tenantID, userID, conversationID string, limit int) ([]domain.ConversationMessage, error)
}

// DraftReviewService is the human review surface for drafts.
type DraftReviewService interface {
	Get(ctx context.Context, tenantID, draftID string) (*domain.ActionDraft, error)
	List(ctx context.Context, filter domain.DraftFilter) ([]domain.ActionDraft, error)
	Approve(ctx context.Context, tenantID, draftID, approver string, acknowledged bool) (*domain.ActionDraft, error)
	Reject(ctx context.Context, tenantID, draftID, reviewer, reason string) (*domain.ActionDraft, error)
	Export(ctx context.Context, filter domain.DraftFilter, w io.Writer) error
}

// DraftConversionProcessor hands approved drafts to the converter.
type DraftConversionProcessor interface {
	ProcessApproved(ctx context.Context, event domain.DraftEvent) error
}
