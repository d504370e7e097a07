package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/kirillkom/action-orchestrator/internal/core/domain"
	"github.com/kirillkom/action-orchestrator/internal/core/ports"
)

// MemoryLedger keeps the bounded recency window injected into planner and responder calls.
type MemoryLedger struct {
	store  ports.MemoryStore
	window int
	now    func() time.Time
}

func NewMemoryLedger(store ports.MemoryStore, window int) *MemoryLedger {
	if window <= 0 {
		window = domain.DefaultMemoryWindow
	}
	return &MemoryLedger{
		store:  store,
		window: window,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (l *MemoryLedger) Size() int {
	return l.window
}

// WindowFor returns the stored window, oldest first.
func (l *MemoryLedger) WindowFor(ctx context.Context, conversationID string) ([]domain.MemoryTurn, error) {
	record, err := l.store.GetMemory(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("load memory: %w", err)
	}
	if record == nil {
		return nil, nil
	}
	return domain.TrimWindow(record.Window, l.window), nil
}

// Preview is the window as it will look once inflight is appended.
func (l *MemoryLedger) Preview(window []domain.MemoryTurn, inflight domain.MemoryTurn) []domain.MemoryTurn {
	turns := make([]domain.MemoryTurn, 0, len(window)+1)
	turns = append(turns, window...)
	turns = append(turns, inflight)
	return domain.TrimWindow(turns, l.window)
}

// Append folds turns into the conversation's record and upserts it.
func (l *MemoryLedger) Append(ctx context.Context, conversationID, lastMessageID string, turns ...domain.MemoryTurn) (*domain.MemoryRecord, error) {
	record, err := l.store.GetMemory(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("load memory: %w", err)
	}
	now := l.now()
	if record == nil {
		record = &domain.MemoryRecord{ConversationID: conversationID, CreatedAt: now}
	}
	record.Fold(l.window, lastMessageID, turns...)
	record.UpdatedAt = now
	if err := l.store.UpsertMemory(ctx, record); err != nil {
		return nil, fmt.Errorf("upsert memory: %w", err)
	}
	return record, nil
}
