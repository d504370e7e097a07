package usecase

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/kirillkom/action-orchestrator/internal/core/domain"
	"github.com/kirillkom/action-orchestrator/internal/core/ports"
)

const (
	defaultHistoryLimit = 100
	maxHistoryLimit     = 500
)

type ConversationUseCase struct {
	conversations ports.ConversationStore
	locker        ports.ConversationLocker
}

func NewConversationUseCase(conversations ports.ConversationStore, locker ports.ConversationLocker) *ConversationUseCase {
	return &ConversationUseCase{conversations: conversations, locker: locker}
}

// Open creates the conversation, or returns it when the caller already owns it. An empty
// id gets a generated one.
func (uc *ConversationUseCase) Open(ctx context.Context, tenantID, userID, conversationID string) (*domain.Conversation, error) {
	const op = "open conversation"
	tenantID, userID = strings.TrimSpace(tenantID), strings.TrimSpace(userID)
	if tenantID == "" || userID == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, op, fmt.Errorf("tenant_id and user_id are required"))
	}
	conversationID = strings.TrimSpace(conversationID)
	if conversationID == "" {
		conversationID = uuid.NewString()
	}
	conv, err := uc.conversations.EnsureConversation(ctx, tenantID, userID, conversationID)
	if err != nil {
		return nil, fmt.Errorf("ensure conversation: %w", err)
	}
	if !conv.OwnedBy(tenantID, userID) {
		return nil, domain.WrapError(domain.ErrUnauthorized, op, fmt.Errorf("conversation %s belongs to another user", conversationID))
	}
	return conv, nil
}

func (uc *ConversationUseCase) Get(ctx context.Context, tenantID, userID, conversationID string) (*domain.Conversation, error) {
	const op = "get conversation"
	conv, err := uc.conversations.GetConversation(ctx, strings.TrimSpace(conversationID))
	if err != nil {
		return nil, err
	}
	if !conv.OwnedBy(strings.TrimSpace(tenantID), strings.TrimSpace(userID)) {
		return nil, domain.WrapError(domain.ErrUnauthorized, op, fmt.Errorf("conversation %s belongs to another user", conversationID))
	}
	return conv, nil
}

// Close marks the conversation closed. It waits for an in-flight message to finish.
func (uc *ConversationUseCase) Close(ctx context.Context, tenantID, userID, conversationID string) error {
	conv, err := uc.Get(ctx, tenantID, userID, conversationID)
	if err != nil {
		return err
	}
	if conv.Status == domain.ConversationClosed {
		return nil
	}
	unlock, err := uc.locker.Lock(ctx, conv.ID)
	if err != nil {
		return domain.WrapError(domain.ErrTemporary, "close conversation", fmt.Errorf("lock conversation: %w", err))
	}
	defer unlock()
	if err := uc.conversations.CloseConversation(ctx, conv.ID); err != nil {
		return fmt.Errorf("close conversation: %w", err)
	}
	return nil
}

func (uc *ConversationUseCase) History(ctx context.Context, tenantID, userID, conversationID string, limit int) ([]domain.ConversationMessage, error) {
	conv, err := uc.Get(ctx, tenantID, userID, conversationID)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}
	messages, err := uc.conversations.ListMessages(ctx, conv.ID, limit)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	return messages, nil
}
