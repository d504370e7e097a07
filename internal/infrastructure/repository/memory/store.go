// Package memory holds in-process implementations of the conversation, pending,
// memory-record and draft stores. It backs STORE_BACKEND=memory and local development.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/kirillkom/action-orchestrator/internal/core/domain"
)

type Store struct {
	mu            sync.RWMutex
	conversations map[string]*domain.Conversation
	messages      map[string][]domain.ConversationMessage
	memory        map[string]domain.MemoryRecord
	drafts        map[string]domain.ActionDraft
	now           func() time.Time
}

func NewStore() *Store {
	return &Store{
		conversations: make(map[string]*domain.Conversation),
		messages:      make(map[string][]domain.ConversationMessage),
		memory:        make(map[string]domain.MemoryRecord),
		drafts:        make(map[string]domain.ActionDraft),
		now:           func() time.Time { return time.Now().UTC() },
	}
}

func (s *Store) EnsureConversation(_ context.Context, tenantID, userID, conversationID string) (*domain.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.conversations[conversationID]
	if !ok {
		now := s.now()
		conv = &domain.Conversation{
			ID:             conversationID,
			TenantID:       tenantID,
			UserID:         userID,
			Status:         domain.ConversationOpen,
			LastActivityAt: now,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		s.conversations[conversationID] = conv
	}
	return cloneConversation(conv)
}

func (s *Store) GetConversation(_ context.Context, conversationID string) (*domain.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	conv, ok := s.conversations[conversationID]
	if !ok {
		return nil, domain.WrapError(domain.ErrNotFound, "get conversation", fmt.Errorf("conversation %s", conversationID))
	}
	return cloneConversation(conv)
}

func (s *Store) CloseConversation(_ context.Context, conversationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.conversations[conversationID]
	if !ok {
		return domain.WrapError(domain.ErrNotFound, "close conversation", fmt.Errorf("conversation %s", conversationID))
	}
	conv.Status = domain.ConversationClosed
	conv.UpdatedAt = s.now()
	return nil
}

func (s *Store) NextUserTurn(_ context.Context, conversationID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.conversations[conversationID]
	if !ok {
		return 0, domain.WrapError(domain.ErrNotFound, "next user turn", fmt.Errorf("conversation %s", conversationID))
	}
	conv.CurrentUserTurn++
	conv.LastActivityAt = s.now()
	conv.UpdatedAt = conv.LastActivityAt
	return conv.CurrentUserTurn, nil
}

func (s *Store) AppendMessages(_ context.Context, messages ...domain.ConversationMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, msg := range messages {
		if _, ok := s.conversations[msg.ConversationID]; !ok {
			return domain.WrapError(domain.ErrNotFound, "append messages", fmt.Errorf("conversation %s", msg.ConversationID))
		}
	}
	for _, msg := range messages {
		if msg.CreatedAt.IsZero() {
			msg.CreatedAt = s.now()
		}
		s.messages[msg.ConversationID] = append(s.messages[msg.ConversationID], msg)
	}
	return nil
}

func (s *Store) ListMessages(_ context.Context, conversationID string, limit int) ([]domain.ConversationMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := s.messages[conversationID]
	if limit <= 0 {
		return nil, nil
	}
	if len(all) > limit {
		all = all[len(all)-limit:]
	}
	return append([]domain.ConversationMessage(nil), all...), nil
}

func (s *Store) GetPending(_ context.Context, conversationID string) (*domain.PendingInteraction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	conv, ok := s.conversations[conversationID]
	if !ok {
		return nil, domain.WrapError(domain.ErrNotFound, "get pending", fmt.Errorf("conversation %s", conversationID))
	}
	if conv.Pending == nil {
		return nil, nil
	}
	return clonePending(conv.Pending)
}

func (s *Store) SavePending(_ context.Context, conversationID string, pending domain.PendingInteraction) error {
	if err := pending.Validate(); err != nil {
		return domain.WrapError(domain.ErrInvalidInput, "save pending", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.conversations[conversationID]
	if !ok {
		return domain.WrapError(domain.ErrNotFound, "save pending", fmt.Errorf("conversation %s", conversationID))
	}
	if err := domain.CanReplace(conv.Pending, pending); err != nil {
		return err
	}
	stored, err := clonePending(&pending)
	if err != nil {
		return err
	}
	conv.Pending = stored
	conv.UpdatedAt = s.now()
	return nil
}

func (s *Store) ClearPending(_ context.Context, conversationID string, kind domain.PendingKind, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.conversations[conversationID]
	if !ok || conv.Pending == nil || conv.Pending.Kind != kind || conv.Pending.ID() != id {
		return domain.WrapError(domain.ErrPendingNotFound, "clear pending", fmt.Errorf("%s %s", kind, id))
	}
	conv.Pending = nil
	conv.UpdatedAt = s.now()
	return nil
}

func (s *Store) GetMemory(_ context.Context, conversationID string) (*domain.MemoryRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.memory[conversationID]
	if !ok {
		return nil, nil
	}
	record.Window = append([]domain.MemoryTurn(nil), record.Window...)
	return &record, nil
}

func (s *Store) UpsertMemory(_ context.Context, record *domain.MemoryRecord) error {
	if record == nil {
		return domain.WrapError(domain.ErrInvalidInput, "upsert memory", fmt.Errorf("record is nil"))
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := *record
	stored.Window = append([]domain.MemoryTurn(nil), record.Window...)
	s.memory[record.ConversationID] = stored
	return nil
}

func (s *Store) CreateDraft(_ context.Context, draft *domain.ActionDraft) error {
	if draft == nil || draft.ID == "" {
		return domain.WrapError(domain.ErrInvalidInput, "create draft", fmt.Errorf("draft id is required"))
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.drafts[draft.ID]; exists {
		return fmt.Errorf("create draft: duplicate id %s", draft.ID)
	}
	s.drafts[draft.ID] = *draft
	return nil
}

func (s *Store) GetDraft(_ context.Context, id string) (*domain.ActionDraft, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	draft, ok := s.drafts[id]
	if !ok {
		return nil, domain.WrapError(domain.ErrNotFound, "get draft", fmt.Errorf("draft %s", id))
	}
	return &draft, nil
}

func (s *Store) UpdateDraftStatus(_ context.Context, draft *domain.ActionDraft, from domain.DraftStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.drafts[draft.ID]
	if !ok {
		return domain.WrapError(domain.ErrNotFound, "update draft status", fmt.Errorf("draft %s", draft.ID))
	}
	if stored.Status != from {
		return domain.WrapError(domain.ErrDraftState, "update draft status",
			fmt.Errorf("draft %s is %s, expected %s", draft.ID, stored.Status, from))
	}
	stored.Status = draft.Status
	stored.ApprovedBy = draft.ApprovedBy
	stored.ApprovedAt = draft.ApprovedAt
	stored.RejectedBy = draft.RejectedBy
	stored.RejectionReason = draft.RejectionReason
	stored.UpdatedAt = draft.UpdatedAt
	s.drafts[draft.ID] = stored
	return nil
}

func (s *Store) ListDrafts(_ context.Context, filter domain.DraftFilter) ([]domain.ActionDraft, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.ActionDraft, 0)
	for _, draft := range s.drafts {
		if draft.TenantID != filter.TenantID {
			continue
		}
		if filter.Status != "" && draft.Status != filter.Status {
			continue
		}
		out = append(out, draft)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func cloneConversation(conv *domain.Conversation) (*domain.Conversation, error) {
	out := *conv
	if conv.Pending != nil {
		pending, err := clonePending(conv.Pending)
		if err != nil {
			return nil, err
		}
		out.Pending = pending
	}
	return &out, nil
}

// clonePending deep-copies through JSON so callers never share maps with the store,
// matching what a durable backend hands back.
func clonePending(p *domain.PendingInteraction) (*domain.PendingInteraction, error) {
	raw, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("marshal pending: %w", err)
	}
	var out domain.PendingInteraction
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("unmarshal pending: %w", err)
	}
	return &out, nil
}
